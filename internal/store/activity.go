package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

type NewActivity struct {
	AgentID     int64
	ChainID     int64
	EventType   string
	Actor       string
	Details     json.RawMessage
	BlockNumber int64
	LogIndex    int32
	BlockTime   time.Time
	TxHash      string
}

// InsertActivity appends an activity row. Each on-chain log maps to at most
// one row via the (chain_id, tx_hash, log_index) constraint, so redelivery
// is a no-op.
func (s *Store) InsertActivity(ctx context.Context, a NewActivity) (bool, error) {
	var details interface{}
	if len(a.Details) > 0 {
		details = []byte(a.Details)
	}
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO activity_log (agent_id, chain_id, event_type, actor, details,
            block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
    `, a.AgentID, a.ChainID, a.EventType, nullStr(a.Actor), details,
		a.BlockNumber, a.LogIndex, nullTime(a.BlockTime), a.TxHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Activity is one activity feed row.
type Activity struct {
	ID             int64           `json:"id"`
	AgentID        int64           `json:"agent_id"`
	ChainID        int64           `json:"chain_id"`
	AgentName      *string         `json:"agent_name,omitempty"`
	EventType      string          `json:"event_type"`
	Actor          *string         `json:"actor"`
	Details        json.RawMessage `json:"details"`
	BlockNumber    int64           `json:"block_number"`
	TxHash         string          `json:"tx_hash"`
	BlockTimestamp time.Time       `json:"block_timestamp"`
}

// activityCategories maps a feed category onto the event types it covers.
var activityCategories = map[string][]string{
	"identity":   {"registered", "uri_updated", "metadata_set"},
	"reputation": {"feedback", "feedback_revoked", "response"},
	"marketplace": {
		"marketplace:listed", "marketplace:bought", "marketplace:listing_cancelled",
		"marketplace:offer_made", "marketplace:offer_accepted",
		"marketplace:auction_created", "marketplace:auction_settled", "marketplace:bid",
	},
}

func categoryEventTypes(category string) []string {
	if category == "" || category == "all" {
		return nil
	}
	return activityCategories[category]
}

// AgentActivities lists one agent's activity, newest first.
func (s *Store) AgentActivities(ctx context.Context, agentID, chainID int64, category string, limit int64) ([]Activity, error) {
	types := categoryEventTypes(category)
	query := `
        SELECT id, agent_id, chain_id, event_type, actor, details,
            block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM activity_log
        WHERE agent_id = $1 AND chain_id = $2`
	args := []interface{}{agentID, chainID}
	if types != nil {
		query += ` AND event_type = ANY($3) ORDER BY block_number DESC, log_index DESC LIMIT $4`
		args = append(args, pq.StringArray(types), limit)
	} else {
		query += ` ORDER BY block_number DESC, log_index DESC LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows, false)
}

// GlobalActivities lists the cross-agent activity feed with agent names
// joined in.
func (s *Store) GlobalActivities(ctx context.Context, chainID *int64, category string, limit int64) ([]Activity, error) {
	types := categoryEventTypes(category)
	query := `
        SELECT l.id, l.agent_id, l.chain_id, a.name, l.event_type, l.actor, l.details,
            l.block_number, l.tx_hash, COALESCE(l.block_timestamp, l.created_at)
        FROM activity_log l
        LEFT JOIN agents a ON l.agent_id = a.agent_id AND l.chain_id = a.chain_id
        WHERE ($1::BIGINT IS NULL OR l.chain_id = $1)`
	args := []interface{}{chainID}
	if types != nil {
		query += ` AND l.event_type = ANY($2) ORDER BY l.block_number DESC, l.log_index DESC LIMIT $3`
		args = append(args, pq.StringArray(types), limit)
	} else {
		query += ` ORDER BY l.block_number DESC, l.log_index DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows, true)
}

func scanActivities(rows *sql.Rows, withName bool) ([]Activity, error) {
	var out []Activity
	for rows.Next() {
		var (
			a           Activity
			name, actor sql.NullString
			details     []byte
		)
		var err error
		if withName {
			err = rows.Scan(&a.ID, &a.AgentID, &a.ChainID, &name, &a.EventType, &actor,
				&details, &a.BlockNumber, &a.TxHash, &a.BlockTimestamp)
		} else {
			err = rows.Scan(&a.ID, &a.AgentID, &a.ChainID, &a.EventType, &actor,
				&details, &a.BlockNumber, &a.TxHash, &a.BlockTimestamp)
		}
		if err != nil {
			return nil, err
		}
		a.AgentName = strPtr(name)
		a.Actor = strPtr(actor)
		a.Details = details
		out = append(out, a)
	}
	return out, rows.Err()
}
