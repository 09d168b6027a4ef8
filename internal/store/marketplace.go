package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type NewListing struct {
	ChainID      int64
	ListingID    int64
	Seller       string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	Price        decimal.Decimal
	Expiry       time.Time
	BlockNumber  int64
	LogIndex     int32
	BlockTime    time.Time
	TxHash       string
}

// UpsertListing creates or refreshes a listing projection. Stale writes, by
// (block_number, log_index), are discarded.
func (s *Store) UpsertListing(ctx context.Context, l NewListing) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO listings (chain_id, listing_id, seller, nft_contract, token_id,
            payment_token, price, expiry, status, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'Active', $9, $10, $11, $12)
        ON CONFLICT (chain_id, listing_id) DO UPDATE SET
            seller = EXCLUDED.seller,
            nft_contract = EXCLUDED.nft_contract,
            token_id = EXCLUDED.token_id,
            payment_token = EXCLUDED.payment_token,
            price = EXCLUDED.price,
            expiry = EXCLUDED.expiry,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, listings.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (listings.block_number, listings.log_index)
    `, l.ChainID, l.ListingID, l.Seller, l.NFTContract, l.TokenID.String(),
		l.PaymentToken, l.Price.String(), nullTime(l.Expiry),
		l.BlockNumber, l.LogIndex, nullTime(l.BlockTime), l.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// UpdateListingPrice applies a price change to an active listing. Stale or
// already-closed listings are left untouched.
func (s *Store) UpdateListingPrice(ctx context.Context, chainID, listingID int64, price decimal.Decimal, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE listings
        SET price = $3, block_number = $4, log_index = $5, tx_hash = $6, updated_at = NOW()
        WHERE chain_id = $1 AND listing_id = $2 AND status = 'Active'
          AND (block_number, log_index) <= ($4, $5)
    `, chainID, listingID, price.String(), blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CloseListing transitions an active listing into a terminal status. Buyer
// and soldPrice are recorded on sale and left NULL otherwise. Returns false
// when the listing was not active, which the caller classifies as either a
// duplicate delivery or a logic violation.
func (s *Store) CloseListing(ctx context.Context, chainID, listingID int64, status, buyer string, soldPrice decimal.Decimal, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	var price interface{}
	if !soldPrice.IsZero() {
		price = soldPrice.String()
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE listings
        SET status = $3,
            buyer = COALESCE($4, buyer),
            sold_price = COALESCE($5, sold_price),
            block_number = $6, log_index = $7, tx_hash = $8, updated_at = NOW()
        WHERE chain_id = $1 AND listing_id = $2 AND status = 'Active'
    `, chainID, listingID, status, nullStr(buyer), price, blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

type NewOffer struct {
	ChainID      int64
	OfferID      int64
	Offerer      string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	Amount       decimal.Decimal
	Expiry       time.Time
	BlockNumber  int64
	LogIndex     int32
	BlockTime    time.Time
	TxHash       string
}

func (s *Store) UpsertOffer(ctx context.Context, o NewOffer) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO offers (chain_id, offer_id, offerer, nft_contract, token_id,
            payment_token, amount, expiry, status, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'Active', $9, $10, $11, $12)
        ON CONFLICT (chain_id, offer_id) DO UPDATE SET
            offerer = EXCLUDED.offerer,
            nft_contract = EXCLUDED.nft_contract,
            token_id = EXCLUDED.token_id,
            payment_token = EXCLUDED.payment_token,
            amount = EXCLUDED.amount,
            expiry = EXCLUDED.expiry,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, offers.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (offers.block_number, offers.log_index)
    `, o.ChainID, o.OfferID, o.Offerer, o.NFTContract, o.TokenID.String(),
		o.PaymentToken, o.Amount.String(), nullTime(o.Expiry),
		o.BlockNumber, o.LogIndex, nullTime(o.BlockTime), o.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CloseOffer moves an active offer to a terminal status. acceptedBy is the
// seller on acceptance, empty otherwise.
func (s *Store) CloseOffer(ctx context.Context, chainID, offerID int64, status, acceptedBy string, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE offers
        SET status = $3,
            accepted_by = COALESCE($4, accepted_by),
            block_number = $5, log_index = $6, tx_hash = $7, updated_at = NOW()
        WHERE chain_id = $1 AND offer_id = $2 AND status = 'Active'
    `, chainID, offerID, status, nullStr(acceptedBy), blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

type NewCollectionOffer struct {
	ChainID      int64
	OfferID      int64
	Offerer      string
	NFTContract  string
	PaymentToken string
	Amount       decimal.Decimal
	Expiry       time.Time
	BlockNumber  int64
	LogIndex     int32
	BlockTime    time.Time
	TxHash       string
}

func (s *Store) UpsertCollectionOffer(ctx context.Context, o NewCollectionOffer) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO collection_offers (chain_id, offer_id, offerer, nft_contract,
            payment_token, amount, expiry, status, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 'Active', $8, $9, $10, $11)
        ON CONFLICT (chain_id, offer_id) DO UPDATE SET
            offerer = EXCLUDED.offerer,
            nft_contract = EXCLUDED.nft_contract,
            payment_token = EXCLUDED.payment_token,
            amount = EXCLUDED.amount,
            expiry = EXCLUDED.expiry,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, collection_offers.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (collection_offers.block_number, collection_offers.log_index)
    `, o.ChainID, o.OfferID, o.Offerer, o.NFTContract,
		o.PaymentToken, o.Amount.String(), nullTime(o.Expiry),
		o.BlockNumber, o.LogIndex, nullTime(o.BlockTime), o.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CloseCollectionOffer moves an active collection offer to a terminal
// status. On acceptance the seller and the token it was filled with are
// recorded.
func (s *Store) CloseCollectionOffer(ctx context.Context, chainID, offerID int64, status, acceptedBy string, acceptedTokenID decimal.Decimal, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	var tokenID interface{}
	if status == "Accepted" {
		tokenID = acceptedTokenID.String()
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE collection_offers
        SET status = $3,
            accepted_by = COALESCE($4, accepted_by),
            accepted_token_id = COALESCE($5, accepted_token_id),
            block_number = $6, log_index = $7, tx_hash = $8, updated_at = NOW()
        WHERE chain_id = $1 AND offer_id = $2 AND status = 'Active'
    `, chainID, offerID, status, nullStr(acceptedBy), tokenID, blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

type NewAuction struct {
	ChainID      int64
	AuctionID    int64
	Seller       string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	StartPrice   decimal.Decimal
	ReservePrice decimal.Decimal
	BuyNowPrice  decimal.Decimal
	StartTime    time.Time
	EndTime      time.Time
	BlockNumber  int64
	LogIndex     int32
	BlockTime    time.Time
	TxHash       string
}

func (s *Store) UpsertAuction(ctx context.Context, a NewAuction) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO auctions (chain_id, auction_id, seller, nft_contract, token_id,
            payment_token, start_price, reserve_price, buy_now_price, start_time, end_time,
            status, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'Active', $12, $13, $14, $15)
        ON CONFLICT (chain_id, auction_id) DO UPDATE SET
            seller = EXCLUDED.seller,
            nft_contract = EXCLUDED.nft_contract,
            token_id = EXCLUDED.token_id,
            payment_token = EXCLUDED.payment_token,
            start_price = EXCLUDED.start_price,
            reserve_price = EXCLUDED.reserve_price,
            buy_now_price = EXCLUDED.buy_now_price,
            start_time = EXCLUDED.start_time,
            end_time = EXCLUDED.end_time,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, auctions.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (auctions.block_number, auctions.log_index)
    `, a.ChainID, a.AuctionID, a.Seller, a.NFTContract, a.TokenID.String(),
		a.PaymentToken, a.StartPrice.String(), decStr(a.ReservePrice), decStr(a.BuyNowPrice),
		nullTime(a.StartTime), nullTime(a.EndTime),
		a.BlockNumber, a.LogIndex, nullTime(a.BlockTime), a.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

type NewAuctionBid struct {
	ChainID     int64
	AuctionID   int64
	Bidder      string
	Amount      decimal.Decimal
	BlockNumber int64
	LogIndex    int32
	BlockTime   time.Time
	TxHash      string
}

// InsertAuctionBid records one bid. Duplicate deliveries drop on the
// (chain_id, tx_hash, log_index) constraint.
func (s *Store) InsertAuctionBid(ctx context.Context, b NewAuctionBid) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO auction_bids (chain_id, auction_id, bidder, amount,
            block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
    `, b.ChainID, b.AuctionID, b.Bidder, b.Amount.String(),
		b.BlockNumber, b.LogIndex, nullTime(b.BlockTime), b.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// UpdateAuctionHighBid raises the auction's highest bid. Bids at or below
// the stored high are ignored, so out-of-order delivery cannot lower it.
func (s *Store) UpdateAuctionHighBid(ctx context.Context, chainID, auctionID int64, bidder string, amount decimal.Decimal, blockNumber int64, logIndex int32) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE auctions
        SET highest_bid = $4,
            highest_bidder = $3,
            bid_count = COALESCE(bid_count, 0) + 1,
            block_number = $5, log_index = $6, updated_at = NOW()
        WHERE chain_id = $1 AND auction_id = $2 AND status = 'Active'
          AND (highest_bid IS NULL OR highest_bid < $4)
    `, chainID, auctionID, bidder, amount.String(), blockNumber, logIndex)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// ExtendAuction pushes the end time of an active auction forward.
func (s *Store) ExtendAuction(ctx context.Context, chainID, auctionID int64, newEndTime time.Time, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE auctions
        SET end_time = $3, block_number = $4, log_index = $5, tx_hash = $6, updated_at = NOW()
        WHERE chain_id = $1 AND auction_id = $2 AND status = 'Active'
          AND (block_number, log_index) <= ($4, $5)
    `, chainID, auctionID, newEndTime, blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CloseAuction moves an active auction to a terminal status. Winner and
// finalPrice are recorded on settlement or buy-now.
func (s *Store) CloseAuction(ctx context.Context, chainID, auctionID int64, status, winner string, finalPrice decimal.Decimal, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	var price interface{}
	if !finalPrice.IsZero() {
		price = finalPrice.String()
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE auctions
        SET status = $3,
            winner = COALESCE($4, winner),
            final_price = COALESCE($5, final_price),
            block_number = $6, log_index = $7, tx_hash = $8, updated_at = NOW()
        WHERE chain_id = $1 AND auction_id = $2 AND status = 'Active'
    `, chainID, auctionID, status, nullStr(winner), price, blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

type NewDutchAuction struct {
	ChainID      int64
	AuctionID    int64
	Seller       string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	StartPrice   decimal.Decimal
	EndPrice     decimal.Decimal
	StartTime    time.Time
	EndTime      time.Time
	BlockNumber  int64
	LogIndex     int32
	BlockTime    time.Time
	TxHash       string
}

func (s *Store) UpsertDutchAuction(ctx context.Context, a NewDutchAuction) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO dutch_auctions (chain_id, auction_id, seller, nft_contract, token_id,
            payment_token, start_price, end_price, start_time, end_time,
            status, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'Active', $11, $12, $13, $14)
        ON CONFLICT (chain_id, auction_id) DO UPDATE SET
            seller = EXCLUDED.seller,
            nft_contract = EXCLUDED.nft_contract,
            token_id = EXCLUDED.token_id,
            payment_token = EXCLUDED.payment_token,
            start_price = EXCLUDED.start_price,
            end_price = EXCLUDED.end_price,
            start_time = EXCLUDED.start_time,
            end_time = EXCLUDED.end_time,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, dutch_auctions.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (dutch_auctions.block_number, dutch_auctions.log_index)
    `, a.ChainID, a.AuctionID, a.Seller, a.NFTContract, a.TokenID.String(),
		a.PaymentToken, a.StartPrice.String(), a.EndPrice.String(),
		nullTime(a.StartTime), nullTime(a.EndTime),
		a.BlockNumber, a.LogIndex, nullTime(a.BlockTime), a.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CloseDutchAuction moves an active Dutch auction to a terminal status.
func (s *Store) CloseDutchAuction(ctx context.Context, chainID, auctionID int64, status, buyer string, soldPrice decimal.Decimal, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	var price interface{}
	if !soldPrice.IsZero() {
		price = soldPrice.String()
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE dutch_auctions
        SET status = $3,
            buyer = COALESCE($4, buyer),
            sold_price = COALESCE($5, sold_price),
            block_number = $6, log_index = $7, tx_hash = $8, updated_at = NOW()
        WHERE chain_id = $1 AND auction_id = $2 AND status = 'Active'
    `, chainID, auctionID, status, nullStr(buyer), price, blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

type NewBundle struct {
	ChainID        int64
	BundleID       int64
	Seller         string
	ItemCount      int32
	TokenContracts []string
	TokenIDs       []string
	PaymentToken   string
	Price          decimal.Decimal
	Expiry         time.Time
	BlockNumber    int64
	LogIndex       int32
	BlockTime      time.Time
	TxHash         string
}

func (s *Store) UpsertBundle(ctx context.Context, b NewBundle) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO bundle_listings (chain_id, bundle_id, seller, item_count,
            token_contracts, token_ids, payment_token, price, expiry,
            status, block_number, log_index, block_timestamp, tx_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'Active', $10, $11, $12, $13)
        ON CONFLICT (chain_id, bundle_id) DO UPDATE SET
            seller = EXCLUDED.seller,
            item_count = EXCLUDED.item_count,
            token_contracts = COALESCE(EXCLUDED.token_contracts, bundle_listings.token_contracts),
            token_ids = COALESCE(EXCLUDED.token_ids, bundle_listings.token_ids),
            payment_token = EXCLUDED.payment_token,
            price = EXCLUDED.price,
            expiry = EXCLUDED.expiry,
            block_number = EXCLUDED.block_number,
            log_index = EXCLUDED.log_index,
            block_timestamp = COALESCE(EXCLUDED.block_timestamp, bundle_listings.block_timestamp),
            tx_hash = EXCLUDED.tx_hash,
            updated_at = NOW()
        WHERE (EXCLUDED.block_number, EXCLUDED.log_index) >= (bundle_listings.block_number, bundle_listings.log_index)
    `, b.ChainID, b.BundleID, b.Seller, b.ItemCount,
		strArrayOrNull(b.TokenContracts), strArrayOrNull(b.TokenIDs),
		b.PaymentToken, b.Price.String(), nullTime(b.Expiry),
		b.BlockNumber, b.LogIndex, nullTime(b.BlockTime), b.TxHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CloseBundle moves an active bundle listing to a terminal status.
func (s *Store) CloseBundle(ctx context.Context, chainID, bundleID int64, status, buyer string, soldPrice decimal.Decimal, blockNumber int64, logIndex int32, txHash string) (bool, error) {
	var price interface{}
	if !soldPrice.IsZero() {
		price = soldPrice.String()
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE bundle_listings
        SET status = $3,
            buyer = COALESCE($4, buyer),
            sold_price = COALESCE($5, sold_price),
            block_number = $6, log_index = $7, tx_hash = $8, updated_at = NOW()
        WHERE chain_id = $1 AND bundle_id = $2 AND status = 'Active'
    `, chainID, bundleID, status, nullStr(buyer), price, blockNumber, logIndex, txHash)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// EntityStatus returns the current status of a marketplace entity row. The
// table and id column are compile-time constants at every call site.
func (s *Store) EntityStatus(ctx context.Context, table, idColumn string, chainID, id int64) (string, bool, error) {
	var status string
	query := fmt.Sprintf(`SELECT status FROM %s WHERE chain_id = $1 AND %s = $2`, table, idColumn)
	err := s.DB.QueryRowContext(ctx, query, chainID, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// EntityToken returns the (nft_contract, token_id) pair of a marketplace
// entity row, for mapping sales back onto agent activity.
func (s *Store) EntityToken(ctx context.Context, table, idColumn string, chainID, id int64) (string, string, bool, error) {
	var contract, tokenID string
	query := fmt.Sprintf(`SELECT nft_contract, token_id::TEXT FROM %s WHERE chain_id = $1 AND %s = $2`, table, idColumn)
	err := s.DB.QueryRowContext(ctx, query, chainID, id).Scan(&contract, &tokenID)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return contract, tokenID, true, nil
}

// UpsertMarketplaceConfig stores per-chain marketplace parameters. Nil
// fields preserve the stored values.
func (s *Store) UpsertMarketplaceConfig(ctx context.Context, chainID int64, feeBps *int32, feeRecipient *string) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO marketplace_config (chain_id, platform_fee_bps, fee_recipient, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (chain_id) DO UPDATE SET
            platform_fee_bps = COALESCE(EXCLUDED.platform_fee_bps, marketplace_config.platform_fee_bps),
            fee_recipient = COALESCE(EXCLUDED.fee_recipient, marketplace_config.fee_recipient),
            updated_at = NOW()
    `, chainID, feeBps, feeRecipient)
	return err
}

// SetPaymentToken marks a payment token accepted or removed on a chain.
func (s *Store) SetPaymentToken(ctx context.Context, chainID int64, token string, active bool) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO marketplace_payment_tokens (chain_id, token_address, active, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (chain_id, token_address) DO UPDATE SET
            active = EXCLUDED.active,
            updated_at = NOW()
    `, chainID, token, active)
	return err
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// decStr maps a zero decimal to NULL for optional price columns.
func decStr(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func strArrayOrNull(v []string) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pq.StringArray(v)
}
