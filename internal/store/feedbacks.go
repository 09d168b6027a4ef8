package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type NewFeedback struct {
	AgentID       int64
	ChainID       int64
	ClientAddress string
	FeedbackIndex int64
	Value         decimal.Decimal
	ValueDecimals int32
	Tag1          string
	Tag2          string
	Endpoint      string
	FeedbackURI   string
	FeedbackHash  string
	BlockNumber   int64
	LogIndex      int32
	BlockTime     time.Time
	TxHash        string
}

// InsertFeedback records a feedback entry. Redelivered logs hit the
// (agent_id, chain_id, client_address, feedback_index) unique constraint
// and are silently dropped; the bool reports whether a row was written.
func (s *Store) InsertFeedback(ctx context.Context, f NewFeedback) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO feedbacks (agent_id, chain_id, client_address, feedback_index,
            value, value_decimals, tag1, tag2, endpoint, feedback_uri, feedback_hash,
            block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (agent_id, chain_id, client_address, feedback_index) DO NOTHING
    `, f.AgentID, f.ChainID, f.ClientAddress, f.FeedbackIndex,
		f.Value.String(), f.ValueDecimals, nullStr(f.Tag1), nullStr(f.Tag2),
		nullStr(f.Endpoint), nullStr(f.FeedbackURI), nullStr(f.FeedbackHash),
		f.BlockNumber, f.LogIndex, nullTime(f.BlockTime), f.TxHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeFeedback marks a feedback as revoked. Revocation is terminal, so the
// update is naturally idempotent. The bool reports whether the feedback
// existed.
func (s *Store) RevokeFeedback(ctx context.Context, agentID, chainID int64, clientAddress string, feedbackIndex int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE feedbacks
        SET revoked = true, updated_at = NOW()
        WHERE agent_id = $1 AND chain_id = $2 AND client_address = $3 AND feedback_index = $4
    `, agentID, chainID, clientAddress, feedbackIndex)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type NewFeedbackResponse struct {
	AgentID       int64
	ChainID       int64
	ClientAddress string
	FeedbackIndex int64
	Responder     string
	ResponseURI   string
	ResponseHash  string
	BlockNumber   int64
	LogIndex      int32
	BlockTime     time.Time
	TxHash        string
}

// InsertFeedbackResponse appends a response to a feedback thread. Duplicate
// deliveries are dropped on the (chain_id, tx_hash, log_index) constraint.
func (s *Store) InsertFeedbackResponse(ctx context.Context, r NewFeedbackResponse) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO feedback_responses (agent_id, chain_id, client_address, feedback_index,
            responder, response_uri, response_hash, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
    `, r.AgentID, r.ChainID, r.ClientAddress, r.FeedbackIndex,
		r.Responder, nullStr(r.ResponseURI), nullStr(r.ResponseHash),
		r.BlockNumber, r.LogIndex, nullTime(r.BlockTime), r.TxHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Feedback is one feedback row as served by the read API.
type Feedback struct {
	ID             int64     `json:"id"`
	AgentID        int64     `json:"agent_id"`
	ChainID        int64     `json:"chain_id"`
	ClientAddress  string    `json:"client_address"`
	FeedbackIndex  int64     `json:"feedback_index"`
	Value          string    `json:"value"`
	ValueDecimals  int32     `json:"value_decimals"`
	Score          float64   `json:"score"`
	Tag1           *string   `json:"tag1"`
	Tag2           *string   `json:"tag2"`
	Endpoint       *string   `json:"endpoint"`
	FeedbackURI    *string   `json:"feedback_uri"`
	FeedbackHash   *string   `json:"feedback_hash"`
	Revoked        bool      `json:"revoked"`
	BlockNumber    int64     `json:"block_number"`
	TxHash         string    `json:"tx_hash"`
	BlockTimestamp time.Time `json:"block_timestamp"`
}

// feedbackRange maps an API range token onto an interval. Unknown tokens
// mean no lower bound.
func feedbackRange(r string) string {
	switch r {
	case "7d":
		return "7 days"
	case "30d":
		return "30 days"
	case "90d":
		return "90 days"
	}
	return ""
}

// AgentFeedbacks lists feedbacks for one agent, newest first, capped at 500.
func (s *Store) AgentFeedbacks(ctx context.Context, agentID, chainID int64, timeRange string) ([]Feedback, error) {
	query := `
        SELECT id, agent_id, chain_id, client_address, feedback_index,
            value::TEXT, value_decimals,
            (value / POWER(10, COALESCE(value_decimals, 0)))::FLOAT8 AS score,
            tag1, tag2, endpoint, feedback_uri, feedback_hash, revoked,
            block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM feedbacks
        WHERE agent_id = $1 AND chain_id = $2`
	if iv := feedbackRange(timeRange); iv != "" {
		query += ` AND COALESCE(block_timestamp, created_at) >= NOW() - INTERVAL '` + iv + `'`
	}
	query += `
        ORDER BY block_number DESC, log_index DESC
        LIMIT 500`

	rows, err := s.DB.QueryContext(ctx, query, agentID, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var (
			fb                               Feedback
			tag1, tag2, endpoint, uri, fhash sql.NullString
		)
		if err := rows.Scan(&fb.ID, &fb.AgentID, &fb.ChainID, &fb.ClientAddress, &fb.FeedbackIndex,
			&fb.Value, &fb.ValueDecimals, &fb.Score,
			&tag1, &tag2, &endpoint, &uri, &fhash, &fb.Revoked,
			&fb.BlockNumber, &fb.TxHash, &fb.BlockTimestamp); err != nil {
			return nil, err
		}
		fb.Tag1 = strPtr(tag1)
		fb.Tag2 = strPtr(tag2)
		fb.Endpoint = strPtr(endpoint)
		fb.FeedbackURI = strPtr(uri)
		fb.FeedbackHash = strPtr(fhash)
		out = append(out, fb)
	}
	return out, rows.Err()
}

// ReputationPoint is one day of an agent's reputation history.
type ReputationPoint struct {
	Date          time.Time `json:"date"`
	AverageScore  float64   `json:"average_score"`
	FeedbackCount int64     `json:"feedback_count"`
}

// ReputationHistory returns the daily average score series for an agent,
// oldest first, capped at a year of points.
func (s *Store) ReputationHistory(ctx context.Context, agentID, chainID int64) ([]ReputationPoint, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT DATE(COALESCE(block_timestamp, created_at)) AS day,
            AVG(value / POWER(10, COALESCE(value_decimals, 0)))::FLOAT8,
            COUNT(*)
        FROM feedbacks
        WHERE agent_id = $1 AND chain_id = $2 AND revoked = false
        GROUP BY day
        ORDER BY day ASC
        LIMIT 365
    `, agentID, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReputationPoint
	for rows.Next() {
		var p ReputationPoint
		if err := rows.Scan(&p.Date, &p.AverageScore, &p.FeedbackCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
