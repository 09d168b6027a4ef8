package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// MarketFilter narrows marketplace list queries. Nil pointers mean "any".
type MarketFilter struct {
	ChainID     *int64
	Status      *string
	Seller      *string
	NFTContract *string
	TokenID     *string
	Sort        string
	Limit       int64
	Offset      int64
}

// Listing is a listing row as served by the read API, with the agent
// projection joined in when the token belongs to the identity registry.
type Listing struct {
	ChainID        int64      `json:"chain_id"`
	ListingID      int64      `json:"listing_id"`
	Seller         string     `json:"seller"`
	NFTContract    string     `json:"nft_contract"`
	TokenID        string     `json:"token_id"`
	PaymentToken   string     `json:"payment_token"`
	Price          string     `json:"price"`
	Expiry         *time.Time `json:"expiry"`
	Status         string     `json:"status"`
	Buyer          *string    `json:"buyer"`
	SoldPrice      *string    `json:"sold_price"`
	AgentName      *string    `json:"agent_name,omitempty"`
	AgentImage     *string    `json:"agent_image,omitempty"`
	BlockNumber    int64      `json:"block_number"`
	TxHash         string     `json:"tx_hash"`
	BlockTimestamp time.Time  `json:"block_timestamp"`
}

// Expiry is lazy: rows stay Active in storage until the next mutating event,
// and reads report them as Expired once the deadline passes.
const (
	listingStatusExpr = `CASE WHEN l.status = 'Active' AND l.expiry IS NOT NULL AND l.expiry < NOW() THEN 'Expired' ELSE l.status END`
	expiryStatusExpr  = `CASE WHEN status = 'Active' AND expiry IS NOT NULL AND expiry < NOW() THEN 'Expired' ELSE status END`
	endTimeStatusExpr = `CASE WHEN status = 'Active' AND end_time IS NOT NULL AND end_time < NOW() THEN 'Expired' ELSE status END`
)

// ListListings returns a page of listings and the total match count.
func (s *Store) ListListings(ctx context.Context, f MarketFilter) ([]Listing, int64, error) {
	orderClause := "l.block_number DESC, l.log_index DESC"
	switch f.Sort {
	case "price_asc":
		orderClause = "l.price ASC"
	case "price_desc":
		orderClause = "l.price DESC"
	}

	where := `
        WHERE ($1::BIGINT IS NULL OR l.chain_id = $1)
          AND ($2::TEXT IS NULL OR ` + listingStatusExpr + ` = $2)
          AND ($3::TEXT IS NULL OR l.seller = $3)
          AND ($4::TEXT IS NULL OR l.nft_contract = $4)
          AND ($5::TEXT IS NULL OR l.token_id::TEXT = $5)`

	rows, err := s.DB.QueryContext(ctx, `
        SELECT l.chain_id, l.listing_id, l.seller, l.nft_contract, l.token_id::TEXT,
            l.payment_token, l.price::TEXT, l.expiry, `+listingStatusExpr+`, l.buyer, l.sold_price::TEXT,
            a.name, a.image,
            l.block_number, l.tx_hash, COALESCE(l.block_timestamp, l.created_at)
        FROM listings l
        LEFT JOIN agents a ON a.chain_id = l.chain_id AND a.agent_id = l.token_id::BIGINT`+where+`
        ORDER BY `+orderClause+`
        LIMIT $6 OFFSET $7
    `, f.ChainID, f.Status, f.Seller, f.NFTContract, f.TokenID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Listing
	for rows.Next() {
		var (
			it                                 Listing
			expiry                             sql.NullTime
			buyer, soldPrice, agName, agImage  sql.NullString
		)
		if err := rows.Scan(&it.ChainID, &it.ListingID, &it.Seller, &it.NFTContract, &it.TokenID,
			&it.PaymentToken, &it.Price, &expiry, &it.Status, &buyer, &soldPrice,
			&agName, &agImage, &it.BlockNumber, &it.TxHash, &it.BlockTimestamp); err != nil {
			return nil, 0, err
		}
		it.Expiry = timePtr(expiry)
		it.Buyer = strPtr(buyer)
		it.SoldPrice = strPtr(soldPrice)
		it.AgentName = strPtr(agName)
		it.AgentImage = strPtr(agImage)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings l`+where,
		f.ChainID, f.Status, f.Seller, f.NFTContract, f.TokenID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Offer is an offer row as served by the read API. Collection offers reuse
// the shape with a NULL token_id.
type Offer struct {
	ChainID         int64      `json:"chain_id"`
	OfferID         int64      `json:"offer_id"`
	Offerer         string     `json:"offerer"`
	NFTContract     string     `json:"nft_contract"`
	TokenID         *string    `json:"token_id"`
	PaymentToken    string     `json:"payment_token"`
	Amount          string     `json:"amount"`
	Expiry          *time.Time `json:"expiry"`
	Status          string     `json:"status"`
	AcceptedBy      *string    `json:"accepted_by"`
	AcceptedTokenID *string    `json:"accepted_token_id,omitempty"`
	BlockNumber     int64      `json:"block_number"`
	TxHash          string     `json:"tx_hash"`
	BlockTimestamp  time.Time  `json:"block_timestamp"`
}

// ListOffers returns a page of single-token offers.
func (s *Store) ListOffers(ctx context.Context, f MarketFilter) ([]Offer, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT chain_id, offer_id, offerer, nft_contract, token_id::TEXT,
            payment_token, amount::TEXT, expiry, `+expiryStatusExpr+`, accepted_by, NULL::TEXT,
            block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM offers
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
          AND ($2::TEXT IS NULL OR `+expiryStatusExpr+` = $2)
          AND ($3::TEXT IS NULL OR offerer = $3)
          AND ($4::TEXT IS NULL OR nft_contract = $4)
        ORDER BY block_number DESC, log_index DESC
        LIMIT $5 OFFSET $6
    `, f.ChainID, f.Status, f.Seller, f.NFTContract, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOffers(rows)
}

// ListCollectionOffers returns a page of collection-wide offers.
func (s *Store) ListCollectionOffers(ctx context.Context, f MarketFilter) ([]Offer, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT chain_id, offer_id, offerer, nft_contract, NULL::TEXT,
            payment_token, amount::TEXT, expiry, `+expiryStatusExpr+`, accepted_by, accepted_token_id::TEXT,
            block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM collection_offers
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
          AND ($2::TEXT IS NULL OR `+expiryStatusExpr+` = $2)
          AND ($3::TEXT IS NULL OR offerer = $3)
          AND ($4::TEXT IS NULL OR nft_contract = $4)
        ORDER BY block_number DESC, log_index DESC
        LIMIT $5 OFFSET $6
    `, f.ChainID, f.Status, f.Seller, f.NFTContract, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOffers(rows)
}

func scanOffers(rows *sql.Rows) ([]Offer, error) {
	var out []Offer
	for rows.Next() {
		var (
			o                               Offer
			tokenID, acceptedBy, acceptedID sql.NullString
			expiry                          sql.NullTime
		)
		if err := rows.Scan(&o.ChainID, &o.OfferID, &o.Offerer, &o.NFTContract, &tokenID,
			&o.PaymentToken, &o.Amount, &expiry, &o.Status, &acceptedBy, &acceptedID,
			&o.BlockNumber, &o.TxHash, &o.BlockTimestamp); err != nil {
			return nil, err
		}
		o.TokenID = strPtr(tokenID)
		o.Expiry = timePtr(expiry)
		o.AcceptedBy = strPtr(acceptedBy)
		o.AcceptedTokenID = strPtr(acceptedID)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Auction is an English auction row as served by the read API.
type Auction struct {
	ChainID        int64        `json:"chain_id"`
	AuctionID      int64        `json:"auction_id"`
	Seller         string       `json:"seller"`
	NFTContract    string       `json:"nft_contract"`
	TokenID        string       `json:"token_id"`
	PaymentToken   string       `json:"payment_token"`
	StartPrice     string       `json:"start_price"`
	ReservePrice   *string      `json:"reserve_price"`
	BuyNowPrice    *string      `json:"buy_now_price"`
	StartTime      *time.Time   `json:"start_time"`
	EndTime        *time.Time   `json:"end_time"`
	Status         string       `json:"status"`
	HighestBid     *string      `json:"highest_bid"`
	HighestBidder  *string      `json:"highest_bidder"`
	BidCount       int64        `json:"bid_count"`
	Winner         *string      `json:"winner"`
	FinalPrice     *string      `json:"final_price"`
	BlockNumber    int64        `json:"block_number"`
	TxHash         string       `json:"tx_hash"`
	BlockTimestamp time.Time    `json:"block_timestamp"`
	Bids           []AuctionBid `json:"bids,omitempty"`
}

// AuctionBid is one recorded bid.
type AuctionBid struct {
	Bidder         string    `json:"bidder"`
	Amount         string    `json:"amount"`
	BlockNumber    int64     `json:"block_number"`
	TxHash         string    `json:"tx_hash"`
	BlockTimestamp time.Time `json:"block_timestamp"`
}

const auctionColumns = `
    chain_id, auction_id, seller, nft_contract, token_id::TEXT,
    payment_token, start_price::TEXT, reserve_price::TEXT, buy_now_price::TEXT,
    start_time, end_time, status, highest_bid::TEXT, highest_bidder,
    COALESCE(bid_count, 0), winner, final_price::TEXT,
    block_number, tx_hash, COALESCE(block_timestamp, created_at)`

// ListAuctions returns a page of English auctions.
func (s *Store) ListAuctions(ctx context.Context, f MarketFilter) ([]Auction, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT `+auctionColumns+`
        FROM auctions
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
          AND ($2::TEXT IS NULL OR status = $2)
          AND ($3::TEXT IS NULL OR seller = $3)
          AND ($4::TEXT IS NULL OR nft_contract = $4)
          AND ($5::TEXT IS NULL OR token_id::TEXT = $5)
        ORDER BY block_number DESC, log_index DESC
        LIMIT $6 OFFSET $7
    `, f.ChainID, f.Status, f.Seller, f.NFTContract, f.TokenID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAuction fetches one auction with its bid history, newest bid first.
// Returns (nil, nil) when absent.
func (s *Store) GetAuction(ctx context.Context, chainID, auctionID int64) (*Auction, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT `+auctionColumns+`
        FROM auctions
        WHERE chain_id = $1 AND auction_id = $2
    `, chainID, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAuction(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	bidRows, err := s.DB.QueryContext(ctx, `
        SELECT bidder, amount::TEXT, block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM auction_bids
        WHERE chain_id = $1 AND auction_id = $2
        ORDER BY block_number DESC, log_index DESC
    `, chainID, auctionID)
	if err != nil {
		return nil, err
	}
	defer bidRows.Close()
	for bidRows.Next() {
		var b AuctionBid
		if err := bidRows.Scan(&b.Bidder, &b.Amount, &b.BlockNumber, &b.TxHash, &b.BlockTimestamp); err != nil {
			return nil, err
		}
		a.Bids = append(a.Bids, b)
	}
	return a, bidRows.Err()
}

func scanAuction(rows *sql.Rows) (*Auction, error) {
	var (
		a                                 Auction
		reserve, buyNow, highBid, bidder  sql.NullString
		winner, finalPrice                sql.NullString
		startTime, endTime                sql.NullTime
	)
	if err := rows.Scan(&a.ChainID, &a.AuctionID, &a.Seller, &a.NFTContract, &a.TokenID,
		&a.PaymentToken, &a.StartPrice, &reserve, &buyNow,
		&startTime, &endTime, &a.Status, &highBid, &bidder,
		&a.BidCount, &winner, &finalPrice,
		&a.BlockNumber, &a.TxHash, &a.BlockTimestamp); err != nil {
		return nil, err
	}
	a.ReservePrice = strPtr(reserve)
	a.BuyNowPrice = strPtr(buyNow)
	a.StartTime = timePtr(startTime)
	a.EndTime = timePtr(endTime)
	a.HighestBid = strPtr(highBid)
	a.HighestBidder = strPtr(bidder)
	a.Winner = strPtr(winner)
	a.FinalPrice = strPtr(finalPrice)
	return &a, nil
}

// DutchAuction is a Dutch auction row as served by the read API.
type DutchAuction struct {
	ChainID        int64      `json:"chain_id"`
	AuctionID      int64      `json:"auction_id"`
	Seller         string     `json:"seller"`
	NFTContract    string     `json:"nft_contract"`
	TokenID        string     `json:"token_id"`
	PaymentToken   string     `json:"payment_token"`
	StartPrice     string     `json:"start_price"`
	EndPrice       string     `json:"end_price"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	Status         string     `json:"status"`
	Buyer          *string    `json:"buyer"`
	SoldPrice      *string    `json:"sold_price"`
	BlockNumber    int64      `json:"block_number"`
	TxHash         string     `json:"tx_hash"`
	BlockTimestamp time.Time  `json:"block_timestamp"`
}

// ListDutchAuctions returns a page of Dutch auctions.
func (s *Store) ListDutchAuctions(ctx context.Context, f MarketFilter) ([]DutchAuction, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT chain_id, auction_id, seller, nft_contract, token_id::TEXT,
            payment_token, start_price::TEXT, end_price::TEXT, start_time, end_time,
            `+endTimeStatusExpr+`, buyer, sold_price::TEXT,
            block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM dutch_auctions
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
          AND ($2::TEXT IS NULL OR `+endTimeStatusExpr+` = $2)
          AND ($3::TEXT IS NULL OR seller = $3)
          AND ($4::TEXT IS NULL OR nft_contract = $4)
          AND ($5::TEXT IS NULL OR token_id::TEXT = $5)
        ORDER BY block_number DESC, log_index DESC
        LIMIT $6 OFFSET $7
    `, f.ChainID, f.Status, f.Seller, f.NFTContract, f.TokenID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DutchAuction
	for rows.Next() {
		var (
			d                  DutchAuction
			startTime, endTime sql.NullTime
			buyer, soldPrice   sql.NullString
		)
		if err := rows.Scan(&d.ChainID, &d.AuctionID, &d.Seller, &d.NFTContract, &d.TokenID,
			&d.PaymentToken, &d.StartPrice, &d.EndPrice, &startTime, &endTime,
			&d.Status, &buyer, &soldPrice,
			&d.BlockNumber, &d.TxHash, &d.BlockTimestamp); err != nil {
			return nil, err
		}
		d.StartTime = timePtr(startTime)
		d.EndTime = timePtr(endTime)
		d.Buyer = strPtr(buyer)
		d.SoldPrice = strPtr(soldPrice)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Bundle is a bundle listing row as served by the read API.
type Bundle struct {
	ChainID        int64      `json:"chain_id"`
	BundleID       int64      `json:"bundle_id"`
	Seller         string     `json:"seller"`
	ItemCount      int32      `json:"item_count"`
	TokenContracts []string   `json:"token_contracts"`
	TokenIDs       []string   `json:"token_ids"`
	PaymentToken   string     `json:"payment_token"`
	Price          string     `json:"price"`
	Expiry         *time.Time `json:"expiry"`
	Status         string     `json:"status"`
	Buyer          *string    `json:"buyer"`
	SoldPrice      *string    `json:"sold_price"`
	BlockNumber    int64      `json:"block_number"`
	TxHash         string     `json:"tx_hash"`
	BlockTimestamp time.Time  `json:"block_timestamp"`
}

// ListBundles returns a page of bundle listings.
func (s *Store) ListBundles(ctx context.Context, f MarketFilter) ([]Bundle, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT chain_id, bundle_id, seller, item_count, token_contracts, token_ids,
            payment_token, price::TEXT, expiry, `+expiryStatusExpr+`, buyer, sold_price::TEXT,
            block_number, tx_hash, COALESCE(block_timestamp, created_at)
        FROM bundle_listings
        WHERE ($1::BIGINT IS NULL OR chain_id = $1)
          AND ($2::TEXT IS NULL OR `+expiryStatusExpr+` = $2)
          AND ($3::TEXT IS NULL OR seller = $3)
        ORDER BY block_number DESC, log_index DESC
        LIMIT $4 OFFSET $5
    `, f.ChainID, f.Status, f.Seller, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bundle
	for rows.Next() {
		var (
			b                     Bundle
			contracts, tokenIDs   pq.StringArray
			expiry                sql.NullTime
			buyer, soldPrice      sql.NullString
		)
		if err := rows.Scan(&b.ChainID, &b.BundleID, &b.Seller, &b.ItemCount, &contracts, &tokenIDs,
			&b.PaymentToken, &b.Price, &expiry, &b.Status, &buyer, &soldPrice,
			&b.BlockNumber, &b.TxHash, &b.BlockTimestamp); err != nil {
			return nil, err
		}
		b.TokenContracts = contracts
		b.TokenIDs = tokenIDs
		b.Expiry = timePtr(expiry)
		b.Buyer = strPtr(buyer)
		b.SoldPrice = strPtr(soldPrice)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Portfolio groups one address's open marketplace positions.
type Portfolio struct {
	Listings []Listing `json:"listings"`
	Offers   []Offer   `json:"offers"`
	Auctions []Auction `json:"auctions"`
}

// GetPortfolio returns an address's active listings, offers and auctions,
// capped at 50 rows each.
func (s *Store) GetPortfolio(ctx context.Context, chainID *int64, address string) (*Portfolio, error) {
	p := &Portfolio{}
	active := "Active"

	listings, _, err := s.ListListings(ctx, MarketFilter{
		ChainID: chainID, Status: &active, Seller: &address, Limit: 50,
	})
	if err != nil {
		return nil, err
	}
	p.Listings = listings

	offers, err := s.ListOffers(ctx, MarketFilter{
		ChainID: chainID, Status: &active, Seller: &address, Limit: 50,
	})
	if err != nil {
		return nil, err
	}
	p.Offers = offers

	auctions, err := s.ListAuctions(ctx, MarketFilter{
		ChainID: chainID, Status: &active, Seller: &address, Limit: 50,
	})
	if err != nil {
		return nil, err
	}
	p.Auctions = auctions
	return p, nil
}

// AgentMarket groups the open market positions on one agent token.
type AgentMarket struct {
	Listings      []Listing      `json:"listings"`
	Auctions      []Auction      `json:"auctions"`
	DutchAuctions []DutchAuction `json:"dutch_auctions"`
}

// GetAgentMarket returns active listings and auctions for an identity-registry
// token, capped at 50 rows each.
func (s *Store) GetAgentMarket(ctx context.Context, chainID int64, identityContract string, agentID int64) (*AgentMarket, error) {
	active := "Active"
	tokenID := strconv.FormatInt(agentID, 10)
	f := MarketFilter{
		ChainID:     &chainID,
		Status:      &active,
		NFTContract: &identityContract,
		TokenID:     &tokenID,
		Limit:       50,
	}

	m := &AgentMarket{}
	listings, _, err := s.ListListings(ctx, f)
	if err != nil {
		return nil, err
	}
	m.Listings = listings

	auctions, err := s.ListAuctions(ctx, f)
	if err != nil {
		return nil, err
	}
	m.Auctions = auctions

	dutch, err := s.ListDutchAuctions(ctx, f)
	if err != nil {
		return nil, err
	}
	m.DutchAuctions = dutch
	return m, nil
}

// MarketplaceConfig is the per-chain contract configuration projection.
type MarketplaceConfig struct {
	ChainID        int64     `json:"chain_id"`
	PlatformFeeBps *int32    `json:"platform_fee_bps"`
	FeeRecipient   *string   `json:"fee_recipient"`
	PaymentTokens  []string  `json:"payment_tokens"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetMarketplaceConfig returns the stored config for a chain, or (nil, nil).
func (s *Store) GetMarketplaceConfig(ctx context.Context, chainID int64) (*MarketplaceConfig, error) {
	var (
		c   MarketplaceConfig
		bps sql.NullInt32
		rec sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
        SELECT chain_id, platform_fee_bps, fee_recipient, updated_at
        FROM marketplace_config
        WHERE chain_id = $1
    `, chainID).Scan(&c.ChainID, &bps, &rec, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bps.Valid {
		c.PlatformFeeBps = &bps.Int32
	}
	c.FeeRecipient = strPtr(rec)

	rows, err := s.DB.QueryContext(ctx, `
        SELECT token_address
        FROM marketplace_payment_tokens
        WHERE chain_id = $1 AND active = true
        ORDER BY token_address
    `, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		c.PaymentTokens = append(c.PaymentTokens, t)
	}
	return &c, rows.Err()
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
