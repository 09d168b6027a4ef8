package store

import (
	"context"
	"database/sql"
)

// CategoryCount is one entry of the category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// PlatformStats summarizes the registry projections.
type PlatformStats struct {
	TotalAgents      int64           `json:"total_agents"`
	ActiveAgents     int64           `json:"active_agents"`
	TotalFeedbacks   int64           `json:"total_feedbacks"`
	Feedbacks24h     int64           `json:"feedbacks_24h"`
	NewAgents24h     int64           `json:"new_agents_24h"`
	X402Agents       int64           `json:"x402_agents"`
	AverageScore     *float64        `json:"average_score"`
	TopCategories    []CategoryCount `json:"top_categories"`
}

// GetPlatformStats computes registry-wide counters, optionally scoped to
// one chain.
func (s *Store) GetPlatformStats(ctx context.Context, chainID *int64) (*PlatformStats, error) {
	var (
		st    PlatformStats
		score sql.NullFloat64
	)
	err := s.DB.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM agents WHERE ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM agents WHERE active = true AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM feedbacks WHERE revoked = false AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM feedbacks WHERE revoked = false
                AND COALESCE(block_timestamp, created_at) >= NOW() - INTERVAL '24 hours'
                AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM agents
                WHERE COALESCE(block_timestamp, created_at) >= NOW() - INTERVAL '24 hours'
                AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM agents WHERE x402_support = true AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT AVG(value / POWER(10, COALESCE(value_decimals, 0)))::FLOAT8 FROM feedbacks
                WHERE revoked = false AND ($1::BIGINT IS NULL OR chain_id = $1))
    `, chainID).Scan(&st.TotalAgents, &st.ActiveAgents, &st.TotalFeedbacks,
		&st.Feedbacks24h, &st.NewAgents24h, &st.X402Agents, &score)
	if err != nil {
		return nil, err
	}
	st.AverageScore = floatPtr(score)

	rows, err := s.DB.QueryContext(ctx, `
        SELECT category, COUNT(*) AS n
        FROM agents, UNNEST(categories) AS category
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
        GROUP BY category
        ORDER BY n DESC
        LIMIT 10
    `, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		st.TopCategories = append(st.TopCategories, c)
	}
	return &st, rows.Err()
}

// MarketplaceStats summarizes the marketplace projections.
type MarketplaceStats struct {
	ActiveListings      int64   `json:"active_listings"`
	TotalSales          int64   `json:"total_sales"`
	TotalVolume         *string `json:"total_volume"`
	Sales24h            int64   `json:"sales_24h"`
	Volume24h           *string `json:"volume_24h"`
	ActiveAuctions      int64   `json:"active_auctions"`
	ActiveDutchAuctions int64   `json:"active_dutch_auctions"`
	ActiveOffers        int64   `json:"active_offers"`
	ActiveBundles       int64   `json:"active_bundles"`
}

// GetMarketplaceStats computes marketplace counters, optionally scoped to
// one chain. Volume figures are base-unit sums over listing sales.
func (s *Store) GetMarketplaceStats(ctx context.Context, chainID *int64) (*MarketplaceStats, error) {
	var (
		st                  MarketplaceStats
		totalVol, vol24     sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
        SELECT
            COUNT(*) FILTER (WHERE status = 'Active'),
            COUNT(*) FILTER (WHERE status = 'Sold'),
            SUM(sold_price) FILTER (WHERE status = 'Sold')::TEXT,
            COUNT(*) FILTER (WHERE status = 'Sold' AND updated_at >= NOW() - INTERVAL '24 hours'),
            SUM(sold_price) FILTER (WHERE status = 'Sold' AND updated_at >= NOW() - INTERVAL '24 hours')::TEXT
        FROM listings
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
    `, chainID).Scan(&st.ActiveListings, &st.TotalSales, &totalVol, &st.Sales24h, &vol24)
	if err != nil {
		return nil, err
	}
	st.TotalVolume = strPtr(totalVol)
	st.Volume24h = strPtr(vol24)

	err = s.DB.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM auctions WHERE status = 'Active' AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM dutch_auctions WHERE status = 'Active' AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM offers WHERE status = 'Active' AND ($1::BIGINT IS NULL OR chain_id = $1))
                + (SELECT COUNT(*) FROM collection_offers WHERE status = 'Active' AND ($1::BIGINT IS NULL OR chain_id = $1)),
            (SELECT COUNT(*) FROM bundle_listings WHERE status = 'Active' AND ($1::BIGINT IS NULL OR chain_id = $1))
    `, chainID).Scan(&st.ActiveAuctions, &st.ActiveDutchAuctions, &st.ActiveOffers, &st.ActiveBundles)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
