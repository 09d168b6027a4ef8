package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// NewAgent is the event-sourced slice of an agent row. Owner and URI left
// empty preserve the stored values on conflict.
type NewAgent struct {
	AgentID     int64
	ChainID     int64
	Owner       string
	URI         string
	Active      bool
	X402Support bool
	BlockNumber int64
	LogIndex    int32
	BlockTime   time.Time
	TxHash      string
}

// UpsertAgent inserts or updates an agent projection. Writes carrying older
// (block_number, log_index) provenance than the stored row are discarded;
// the bool reports whether the write was applied.
func (s *Store) UpsertAgent(ctx context.Context, a NewAgent) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO agents (agent_id, chain_id, owner, uri, x402_support, active, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (agent_id, chain_id) DO UPDATE SET
            owner = CASE WHEN EXCLUDED.owner = '' THEN agents.owner ELSE EXCLUDED.owner END,
            uri = COALESCE(EXCLUDED.uri, agents.uri),
            x402_support = EXCLUDED.x402_support,
            active = EXCLUDED.active,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, agents.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (agents.block_number, agents.log_index)
    `, a.AgentID, a.ChainID, a.Owner, nullStr(a.URI), a.X402Support, a.Active,
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

// SetAgentMetadataKey merges one key/value pair into the agent's metadata
// document. A no-op when the agent row does not exist yet.
func (s *Store) SetAgentMetadataKey(ctx context.Context, agentID, chainID int64, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
        UPDATE agents
        SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object($3::text, $4::text),
            updated_at = NOW()
        WHERE agent_id = $1 AND chain_id = $2
    `, agentID, chainID, key, value)
	return err
}

// AgentCard holds the fields parsed from an agent's metadata URI. Nil fields
// preserve whatever the projection already has.
type AgentCard struct {
	Name        *string
	Description *string
	Image       *string
	Categories  []string
	X402Support *bool
	Metadata    json.RawMessage
}

// ApplyAgentCard merges enrichment results into the agent row. Enrichment
// never nulls previously fetched data.
func (s *Store) ApplyAgentCard(ctx context.Context, agentID, chainID int64, card AgentCard) error {
	var meta interface{}
	if len(card.Metadata) > 0 {
		meta = []byte(card.Metadata)
	}
	_, err := s.DB.ExecContext(ctx, `
        UPDATE agents
        SET name = COALESCE($3, name),
            description = COALESCE($4, description),
            image = COALESCE($5, image),
            categories = COALESCE($6, categories),
            x402_support = COALESCE($7, x402_support),
            metadata = COALESCE($8, metadata),
            updated_at = NOW()
        WHERE agent_id = $1 AND chain_id = $2
    `, agentID, chainID, card.Name, card.Description, card.Image,
		pq.StringArray(card.Categories), card.X402Support, meta)
	return err
}

// AgentFilter narrows ListAgents. Nil pointers mean "any".
type AgentFilter struct {
	ChainID  *int64
	Search   *string
	Category *string
	Sort     string
	Limit    int64
	Offset   int64
}

// AgentListItem is one row of the agent browse list, with reputation
// aggregates folded in.
type AgentListItem struct {
	AgentID         int64     `json:"agent_id"`
	ChainID         int64     `json:"chain_id"`
	Owner           string    `json:"owner"`
	Name            *string   `json:"name"`
	Description     *string   `json:"description"`
	Image           *string   `json:"image"`
	Categories      []string  `json:"categories"`
	X402Support     bool      `json:"x402_support"`
	Active          bool      `json:"active"`
	ReputationScore *float64  `json:"reputation_score"`
	FeedbackCount   int64     `json:"feedback_count"`
	BlockTimestamp  time.Time `json:"block_timestamp"`
}

// ListAgents returns a page of agents and the total match count.
func (s *Store) ListAgents(ctx context.Context, f AgentFilter) ([]AgentListItem, int64, error) {
	orderClause := "COALESCE(a.block_timestamp, a.created_at) DESC NULLS LAST"
	switch f.Sort {
	case "score":
		orderClause = "reputation_score DESC NULLS LAST"
	case "name":
		orderClause = "a.name ASC NULLS LAST"
	}

	query := `
        SELECT
            a.agent_id, a.chain_id, a.owner, a.name, a.description, a.image,
            a.categories, a.x402_support, a.active,
            AVG(CASE WHEN f.revoked = false THEN f.value / POWER(10, COALESCE(f.value_decimals, 0)) ELSE NULL END)::FLOAT8 AS reputation_score,
            COUNT(CASE WHEN f.revoked = false THEN 1 ELSE NULL END) AS feedback_count,
            COALESCE(a.block_timestamp, a.created_at) AS block_timestamp
        FROM agents a
        LEFT JOIN feedbacks f ON a.agent_id = f.agent_id AND a.chain_id = f.chain_id
        WHERE ($1::BIGINT IS NULL OR a.chain_id = $1)
          AND ($2::TEXT IS NULL OR a.name ILIKE '%' || $2 || '%' OR a.description ILIKE '%' || $2 || '%')
          AND ($3::TEXT IS NULL OR $3 = ANY(a.categories))
        GROUP BY a.id
        ORDER BY ` + orderClause + `
        LIMIT $4 OFFSET $5`

	rows, err := s.DB.QueryContext(ctx, query, f.ChainID, f.Search, f.Category, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []AgentListItem
	for rows.Next() {
		var (
			it                AgentListItem
			name, desc, image sql.NullString
			cats              pq.StringArray
			score             sql.NullFloat64
		)
		if err := rows.Scan(&it.AgentID, &it.ChainID, &it.Owner, &name, &desc, &image,
			&cats, &it.X402Support, &it.Active, &score, &it.FeedbackCount, &it.BlockTimestamp); err != nil {
			return nil, 0, err
		}
		it.Name = strPtr(name)
		it.Description = strPtr(desc)
		it.Image = strPtr(image)
		it.Categories = cats
		it.ReputationScore = floatPtr(score)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.DB.QueryRowContext(ctx, `
        SELECT COUNT(*)
        FROM agents a
        WHERE ($1::BIGINT IS NULL OR a.chain_id = $1)
          AND ($2::TEXT IS NULL OR a.name ILIKE '%' || $2 || '%' OR a.description ILIKE '%' || $2 || '%')
          AND ($3::TEXT IS NULL OR $3 = ANY(a.categories))
    `, f.ChainID, f.Search, f.Category).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AgentDetail is the full agent view with reputation aggregates.
type AgentDetail struct {
	AgentID               int64           `json:"agent_id"`
	ChainID               int64           `json:"chain_id"`
	Owner                 string          `json:"owner"`
	URI                   *string         `json:"uri"`
	Name                  *string         `json:"name"`
	Description           *string         `json:"description"`
	Image                 *string         `json:"image"`
	Categories            []string        `json:"categories"`
	X402Support           bool            `json:"x402_support"`
	Active                bool            `json:"active"`
	Metadata              json.RawMessage `json:"metadata"`
	ReputationScore       *float64        `json:"reputation_score"`
	FeedbackCount         int64           `json:"feedback_count"`
	PositiveFeedbackCount int64           `json:"positive_feedback_count"`
	NegativeFeedbackCount int64           `json:"negative_feedback_count"`
	BlockTimestamp        time.Time       `json:"block_timestamp"`
}

// GetAgent fetches one agent. Returns (nil, nil) when absent.
func (s *Store) GetAgent(ctx context.Context, agentID, chainID int64) (*AgentDetail, error) {
	var (
		d                      AgentDetail
		uri, name, desc, image sql.NullString
		cats                   pq.StringArray
		meta                   []byte
		score                  sql.NullFloat64
	)
	err := s.DB.QueryRowContext(ctx, `
        SELECT
            a.agent_id, a.chain_id, a.owner, a.uri, a.name, a.description, a.image,
            a.categories, a.x402_support, a.active, a.metadata,
            AVG(CASE WHEN f.revoked = false THEN f.value / POWER(10, COALESCE(f.value_decimals, 0)) ELSE NULL END)::FLOAT8 AS reputation_score,
            COUNT(CASE WHEN f.revoked = false THEN 1 ELSE NULL END) AS feedback_count,
            COUNT(CASE WHEN f.revoked = false AND f.value / POWER(10, COALESCE(f.value_decimals, 0)) >= 3 THEN 1 ELSE NULL END) AS positive_feedback_count,
            COUNT(CASE WHEN f.revoked = false AND f.value / POWER(10, COALESCE(f.value_decimals, 0)) < 3 THEN 1 ELSE NULL END) AS negative_feedback_count,
            COALESCE(a.block_timestamp, a.created_at) AS block_timestamp
        FROM agents a
        LEFT JOIN feedbacks f ON a.agent_id = f.agent_id AND a.chain_id = f.chain_id
        WHERE a.agent_id = $1 AND a.chain_id = $2
        GROUP BY a.id
    `, agentID, chainID).Scan(&d.AgentID, &d.ChainID, &d.Owner, &uri, &name, &desc, &image,
		&cats, &d.X402Support, &d.Active, &meta, &score,
		&d.FeedbackCount, &d.PositiveFeedbackCount, &d.NegativeFeedbackCount, &d.BlockTimestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.URI = strPtr(uri)
	d.Name = strPtr(name)
	d.Description = strPtr(desc)
	d.Image = strPtr(image)
	d.Categories = cats
	d.Metadata = meta
	d.ReputationScore = floatPtr(score)
	return &d, nil
}

// LeaderboardEntry ranks an agent by average unrevoked feedback value.
type LeaderboardEntry struct {
	Rank            int64    `json:"rank"`
	AgentID         int64    `json:"agent_id"`
	ChainID         int64    `json:"chain_id"`
	Name            *string  `json:"name"`
	Image           *string  `json:"image"`
	Categories      []string `json:"categories"`
	X402Support     bool     `json:"x402_support"`
	ReputationScore *float64 `json:"reputation_score"`
	FeedbackCount   int64    `json:"feedback_count"`
	Owner           string   `json:"owner"`
}

var leaderboardKnownCategories = []string{
	"defi", "analytics", "security", "identity", "trading",
	"ai", "compute", "gaming", "social", "dao",
}

// Leaderboard returns agents with at least one unrevoked feedback, ranked
// by reputation score. category "others" selects agents outside the known
// category set.
func (s *Store) Leaderboard(ctx context.Context, chainID *int64, category *string, limit int64) ([]LeaderboardEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT
            ROW_NUMBER() OVER (ORDER BY AVG(CASE WHEN f.revoked = false THEN f.value / POWER(10, COALESCE(f.value_decimals, 0)) ELSE NULL END) DESC NULLS LAST) AS rank,
            a.agent_id, a.chain_id, a.name, a.image, a.categories, a.x402_support,
            AVG(CASE WHEN f.revoked = false THEN f.value / POWER(10, COALESCE(f.value_decimals, 0)) ELSE NULL END)::FLOAT8 AS reputation_score,
            COUNT(CASE WHEN f.revoked = false THEN 1 ELSE NULL END) AS feedback_count,
            a.owner
        FROM agents a
        LEFT JOIN feedbacks f ON a.agent_id = f.agent_id AND a.chain_id = f.chain_id
        WHERE a.active = true
          AND ($1::BIGINT IS NULL OR a.chain_id = $1)
          AND ($2::TEXT IS NULL OR (
                CASE WHEN $2 = 'others'
                    THEN (a.categories IS NULL OR cardinality(a.categories) = 0 OR NOT (a.categories && $4))
                    ELSE $2 = ANY(a.categories)
                END
            ))
        GROUP BY a.id
        HAVING COUNT(CASE WHEN f.revoked = false THEN 1 ELSE NULL END) > 0
        ORDER BY reputation_score DESC NULLS LAST
        LIMIT $3
    `, chainID, category, limit, pq.StringArray(leaderboardKnownCategories))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var (
			e           LeaderboardEntry
			name, image sql.NullString
			cats        pq.StringArray
			score       sql.NullFloat64
		)
		if err := rows.Scan(&e.Rank, &e.AgentID, &e.ChainID, &name, &image, &cats,
			&e.X402Support, &score, &e.FeedbackCount, &e.Owner); err != nil {
			return nil, err
		}
		e.Name = strPtr(name)
		e.Image = strPtr(image)
		e.Categories = cats
		e.ReputationScore = floatPtr(score)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
