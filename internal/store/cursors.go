package store

import (
	"context"
	"database/sql"
	"errors"
)

// LastBlock returns the last indexed block for a (chain, contract) pair.
// The second return is false when no cursor exists yet.
func (s *Store) LastBlock(ctx context.Context, chainID int64, contract string) (int64, bool, error) {
	var last int64
	err := s.DB.QueryRowContext(ctx, `
        SELECT last_block
        FROM indexer_state
        WHERE chain_id = $1 AND contract_address = $2
    `, chainID, contract).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return last, true, nil
}

// AdvanceCursor moves a cursor forward. The upsert is monotonic: an advance
// to a block below the stored cursor changes nothing and returns
// ErrCursorRegression.
func (s *Store) AdvanceCursor(ctx context.Context, chainID int64, contract, name string, lastBlock int64) error {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO indexer_state (chain_id, contract_address, last_block, contract_name, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (chain_id, contract_address) DO UPDATE SET
            last_block = EXCLUDED.last_block,
            contract_name = COALESCE(EXCLUDED.contract_name, indexer_state.contract_name),
            updated_at = NOW()
        WHERE indexer_state.last_block <= EXCLUDED.last_block
    `, chainID, contract, lastBlock, nullStr(name))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCursorRegression
	}
	return nil
}
