package indexer

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractKind identifies which contract family a log belongs to.
type ContractKind string

const (
	ContractIdentity    ContractKind = "identity"
	ContractReputation  ContractKind = "reputation"
	ContractMarketplace ContractKind = "marketplace"
)

// Entity statuses. Listings, offers, dutch auctions and bundles move from
// Active to one of the terminal states; English auctions settle, cancel or
// close with the reserve not met.
const (
	StatusActive        = "Active"
	StatusSold          = "Sold"
	StatusAccepted      = "Accepted"
	StatusCancelled     = "Cancelled"
	StatusExpired       = "Expired"
	StatusSettled       = "Settled"
	StatusReserveNotMet = "ReserveNotMet"
)

// TerminalStatus reports whether a status admits no further transitions.
func TerminalStatus(status string) bool {
	switch status {
	case StatusSold, StatusAccepted, StatusCancelled, StatusExpired, StatusSettled, StatusReserveNotMet:
		return true
	}
	return false
}

// Provenance carries the chain coordinates of the log an event was decoded
// from. Events are ordered by (BlockNumber, LogIndex).
type Provenance struct {
	BlockNumber int64
	LogIndex    int32
	TxHash      string
	BlockTime   time.Time
}

// Before reports whether p was emitted strictly before other.
func (p Provenance) Before(other Provenance) bool {
	if p.BlockNumber != other.BlockNumber {
		return p.BlockNumber < other.BlockNumber
	}
	return p.LogIndex < other.LogIndex
}

// Event is one decoded contract log. The concrete type identifies the event.
type Event interface {
	Prov() Provenance
	Name() string
}

type base struct {
	Provenance
}

func (b base) Prov() Provenance { return b.Provenance }

// Identity events.

type RegisteredEvent struct {
	base
	AgentID  int64
	Owner    string
	AgentURI string
}

func (RegisteredEvent) Name() string { return "Registered" }

type URIUpdatedEvent struct {
	base
	AgentID   int64
	NewURI    string
	UpdatedBy string
}

func (URIUpdatedEvent) Name() string { return "URIUpdated" }

type MetadataSetEvent struct {
	base
	AgentID int64
	Key     string
	Value   string
}

func (MetadataSetEvent) Name() string { return "MetadataSet" }

// Reputation events.

type NewFeedbackEvent struct {
	base
	AgentID       int64
	Client        string
	FeedbackIndex int64
	Value         decimal.Decimal
	ValueDecimals int32
	Tag1          string
	Tag2          string
	Endpoint      string
	FeedbackURI   string
	FeedbackHash  string
}

func (NewFeedbackEvent) Name() string { return "NewFeedback" }

type FeedbackRevokedEvent struct {
	base
	AgentID       int64
	Client        string
	FeedbackIndex int64
}

func (FeedbackRevokedEvent) Name() string { return "FeedbackRevoked" }

type ResponseAppendedEvent struct {
	base
	AgentID       int64
	Client        string
	FeedbackIndex int64
	Responder     string
	ResponseURI   string
	ResponseHash  string
}

func (ResponseAppendedEvent) Name() string { return "ResponseAppended" }

// Marketplace listing events.

type ListedEvent struct {
	base
	ListingID    int64
	Seller       string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	Price        decimal.Decimal
	Expiry       int64
}

func (ListedEvent) Name() string { return "Listed" }

type BoughtEvent struct {
	base
	ListingID int64
	Buyer     string
	Price     decimal.Decimal
}

func (BoughtEvent) Name() string { return "Bought" }

type ListingCancelledEvent struct {
	base
	ListingID int64
}

func (ListingCancelledEvent) Name() string { return "ListingCancelled" }

type ListingPriceUpdatedEvent struct {
	base
	ListingID int64
	NewPrice  decimal.Decimal
}

func (ListingPriceUpdatedEvent) Name() string { return "ListingPriceUpdated" }

// Marketplace offer events.

type OfferMadeEvent struct {
	base
	OfferID      int64
	Offerer      string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	Amount       decimal.Decimal
	Expiry       int64
}

func (OfferMadeEvent) Name() string { return "OfferMade" }

type OfferAcceptedEvent struct {
	base
	OfferID int64
	Seller  string
}

func (OfferAcceptedEvent) Name() string { return "OfferAccepted" }

type OfferCancelledEvent struct {
	base
	OfferID int64
}

func (OfferCancelledEvent) Name() string { return "OfferCancelled" }

type CollectionOfferMadeEvent struct {
	base
	OfferID      int64
	Offerer      string
	NFTContract  string
	PaymentToken string
	Amount       decimal.Decimal
	Expiry       int64
}

func (CollectionOfferMadeEvent) Name() string { return "CollectionOfferMade" }

type CollectionOfferAcceptedEvent struct {
	base
	OfferID int64
	Seller  string
	TokenID decimal.Decimal
}

func (CollectionOfferAcceptedEvent) Name() string { return "CollectionOfferAccepted" }

type CollectionOfferCancelledEvent struct {
	base
	OfferID int64
}

func (CollectionOfferCancelledEvent) Name() string { return "CollectionOfferCancelled" }

// Marketplace English auction events.

type AuctionCreatedEvent struct {
	base
	AuctionID    int64
	Seller       string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	StartPrice   decimal.Decimal
	ReservePrice decimal.Decimal
	BuyNowPrice  decimal.Decimal
	StartTime    int64
	EndTime      int64
}

func (AuctionCreatedEvent) Name() string { return "AuctionCreated" }

type BidPlacedEvent struct {
	base
	AuctionID int64
	Bidder    string
	Amount    decimal.Decimal
}

func (BidPlacedEvent) Name() string { return "BidPlaced" }

type AuctionSettledEvent struct {
	base
	AuctionID int64
	Winner    string
	Amount    decimal.Decimal
}

func (AuctionSettledEvent) Name() string { return "AuctionSettled" }

type AuctionCancelledEvent struct {
	base
	AuctionID int64
}

func (AuctionCancelledEvent) Name() string { return "AuctionCancelled" }

type AuctionExtendedEvent struct {
	base
	AuctionID  int64
	NewEndTime int64
}

func (AuctionExtendedEvent) Name() string { return "AuctionExtended" }

type AuctionBuyNowEvent struct {
	base
	AuctionID int64
	Buyer     string
	Price     decimal.Decimal
}

func (AuctionBuyNowEvent) Name() string { return "AuctionBuyNow" }

type AuctionReserveNotMetEvent struct {
	base
	AuctionID int64
}

func (AuctionReserveNotMetEvent) Name() string { return "AuctionReserveNotMet" }

// Marketplace Dutch auction events.

type DutchAuctionCreatedEvent struct {
	base
	AuctionID    int64
	Seller       string
	NFTContract  string
	TokenID      decimal.Decimal
	PaymentToken string
	StartPrice   decimal.Decimal
	EndPrice     decimal.Decimal
	StartTime    int64
	EndTime      int64
}

func (DutchAuctionCreatedEvent) Name() string { return "DutchAuctionCreated" }

type DutchAuctionBoughtEvent struct {
	base
	AuctionID int64
	Buyer     string
	Price     decimal.Decimal
}

func (DutchAuctionBoughtEvent) Name() string { return "DutchAuctionBought" }

type DutchAuctionCancelledEvent struct {
	base
	AuctionID int64
}

func (DutchAuctionCancelledEvent) Name() string { return "DutchAuctionCancelled" }

// Marketplace bundle events.

type BundleListedEvent struct {
	base
	BundleID     int64
	Seller       string
	ItemCount    int32
	PaymentToken string
	Price        decimal.Decimal
	Expiry       int64

	// Filled by the poll loop from a getBundleListing call; empty when the
	// read-back fails. The log itself only carries the item count.
	TokenContracts []string
	TokenIDs       []string
}

func (BundleListedEvent) Name() string { return "BundleListed" }

type BundleBoughtEvent struct {
	base
	BundleID int64
	Buyer    string
	Price    decimal.Decimal
}

func (BundleBoughtEvent) Name() string { return "BundleBought" }

type BundleListingCancelledEvent struct {
	base
	BundleID int64
}

func (BundleListingCancelledEvent) Name() string { return "BundleListingCancelled" }

// Marketplace config events.

type PlatformFeeUpdatedEvent struct {
	base
	NewFeeBps int32
}

func (PlatformFeeUpdatedEvent) Name() string { return "PlatformFeeUpdated" }

type FeeRecipientUpdatedEvent struct {
	base
	NewRecipient string
}

func (FeeRecipientUpdatedEvent) Name() string { return "FeeRecipientUpdated" }

type PaymentTokenAddedEvent struct {
	base
	Token string
}

func (PaymentTokenAddedEvent) Name() string { return "PaymentTokenAdded" }

type PaymentTokenRemovedEvent struct {
	base
	Token string
}

func (PaymentTokenRemovedEvent) Name() string { return "PaymentTokenRemoved" }
