package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moltlabs/molt-indexer/internal/store"
)

func (a *Applier) applyMarketplace(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case ListedEvent:
		applied, err := a.store.UpsertListing(ctx, store.NewListing{
			ChainID:      a.chainID,
			ListingID:    e.ListingID,
			Seller:       e.Seller,
			NFTContract:  e.NFTContract,
			TokenID:      e.TokenID,
			PaymentToken: e.PaymentToken,
			Price:        e.Price,
			Expiry:       unixTime(e.Expiry),
			BlockNumber:  e.BlockNumber,
			LogIndex:     e.LogIndex,
			BlockTime:    e.BlockTime,
			TxHash:       e.TxHash,
		})
		if err != nil {
			return fmt.Errorf("upsert listing %d: %w", e.ListingID, err)
		}
		if !applied {
			a.countStale(e)
			return nil
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return a.agentActivity(ctx, "marketplace:listed", e.NFTContract, e.TokenID, e.Seller,
			map[string]interface{}{"listing_id": e.ListingID, "price": e.Price.String()}, e.Prov())

	case ListingPriceUpdatedEvent:
		applied, err := a.store.UpdateListingPrice(ctx, a.chainID, e.ListingID, e.NewPrice, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("update listing %d price: %w", e.ListingID, err)
		}
		return a.closeOutcome(ctx, e, "listings", "listing_id", e.ListingID, StatusActive, applied)

	case BoughtEvent:
		applied, err := a.store.CloseListing(ctx, a.chainID, e.ListingID, StatusSold, e.Buyer, e.Price, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("close listing %d: %w", e.ListingID, err)
		}
		if err := a.closeOutcome(ctx, e, "listings", "listing_id", e.ListingID, StatusSold, applied); err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return a.entityAgentActivity(ctx, "marketplace:bought", "listings", "listing_id", e.ListingID, e.Buyer,
			map[string]interface{}{"listing_id": e.ListingID, "price": e.Price.String()}, e.Prov())

	case ListingCancelledEvent:
		applied, err := a.store.CloseListing(ctx, a.chainID, e.ListingID, StatusCancelled, "", decimal.Zero, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("cancel listing %d: %w", e.ListingID, err)
		}
		if err := a.closeOutcome(ctx, e, "listings", "listing_id", e.ListingID, StatusCancelled, applied); err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return a.entityAgentActivity(ctx, "marketplace:listing_cancelled", "listings", "listing_id", e.ListingID, "",
			map[string]interface{}{"listing_id": e.ListingID}, e.Prov())

	case OfferMadeEvent:
		applied, err := a.store.UpsertOffer(ctx, store.NewOffer{
			ChainID:      a.chainID,
			OfferID:      e.OfferID,
			Offerer:      e.Offerer,
			NFTContract:  e.NFTContract,
			TokenID:      e.TokenID,
			PaymentToken: e.PaymentToken,
			Amount:       e.Amount,
			Expiry:       unixTime(e.Expiry),
			BlockNumber:  e.BlockNumber,
			LogIndex:     e.LogIndex,
			BlockTime:    e.BlockTime,
			TxHash:       e.TxHash,
		})
		if err != nil {
			return fmt.Errorf("upsert offer %d: %w", e.OfferID, err)
		}
		if !applied {
			a.countStale(e)
			return nil
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return a.agentActivity(ctx, "marketplace:offer_made", e.NFTContract, e.TokenID, e.Offerer,
			map[string]interface{}{"offer_id": e.OfferID, "amount": e.Amount.String()}, e.Prov())

	case OfferAcceptedEvent:
		applied, err := a.store.CloseOffer(ctx, a.chainID, e.OfferID, StatusAccepted, e.Seller, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("accept offer %d: %w", e.OfferID, err)
		}
		if err := a.closeOutcome(ctx, e, "offers", "offer_id", e.OfferID, StatusAccepted, applied); err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return a.entityAgentActivity(ctx, "marketplace:offer_accepted", "offers", "offer_id", e.OfferID, e.Seller,
			map[string]interface{}{"offer_id": e.OfferID}, e.Prov())

	case OfferCancelledEvent:
		applied, err := a.store.CloseOffer(ctx, a.chainID, e.OfferID, StatusCancelled, "", e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("cancel offer %d: %w", e.OfferID, err)
		}
		return a.closeOutcome(ctx, e, "offers", "offer_id", e.OfferID, StatusCancelled, applied)

	case CollectionOfferMadeEvent:
		applied, err := a.store.UpsertCollectionOffer(ctx, store.NewCollectionOffer{
			ChainID:      a.chainID,
			OfferID:      e.OfferID,
			Offerer:      e.Offerer,
			NFTContract:  e.NFTContract,
			PaymentToken: e.PaymentToken,
			Amount:       e.Amount,
			Expiry:       unixTime(e.Expiry),
			BlockNumber:  e.BlockNumber,
			LogIndex:     e.LogIndex,
			BlockTime:    e.BlockTime,
			TxHash:       e.TxHash,
		})
		if err != nil {
			return fmt.Errorf("upsert collection offer %d: %w", e.OfferID, err)
		}
		if !applied {
			a.countStale(e)
			return nil
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil

	case CollectionOfferAcceptedEvent:
		applied, err := a.store.CloseCollectionOffer(ctx, a.chainID, e.OfferID, StatusAccepted, e.Seller, e.TokenID, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("accept collection offer %d: %w", e.OfferID, err)
		}
		return a.closeOutcome(ctx, e, "collection_offers", "offer_id", e.OfferID, StatusAccepted, applied)

	case CollectionOfferCancelledEvent:
		applied, err := a.store.CloseCollectionOffer(ctx, a.chainID, e.OfferID, StatusCancelled, "", decimal.Zero, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("cancel collection offer %d: %w", e.OfferID, err)
		}
		return a.closeOutcome(ctx, e, "collection_offers", "offer_id", e.OfferID, StatusCancelled, applied)

	case AuctionCreatedEvent:
		applied, err := a.store.UpsertAuction(ctx, store.NewAuction{
			ChainID:      a.chainID,
			AuctionID:    e.AuctionID,
			Seller:       e.Seller,
			NFTContract:  e.NFTContract,
			TokenID:      e.TokenID,
			PaymentToken: e.PaymentToken,
			StartPrice:   e.StartPrice,
			ReservePrice: e.ReservePrice,
			BuyNowPrice:  e.BuyNowPrice,
			StartTime:    unixTime(e.StartTime),
			EndTime:      unixTime(e.EndTime),
			BlockNumber:  e.BlockNumber,
			LogIndex:     e.LogIndex,
			BlockTime:    e.BlockTime,
			TxHash:       e.TxHash,
		})
		if err != nil {
			return fmt.Errorf("upsert auction %d: %w", e.AuctionID, err)
		}
		if !applied {
			a.countStale(e)
			return nil
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return a.agentActivity(ctx, "marketplace:auction_created", e.NFTContract, e.TokenID, e.Seller,
			map[string]interface{}{"auction_id": e.AuctionID, "start_price": e.StartPrice.String()}, e.Prov())

	case BidPlacedEvent:
		return a.applyBid(ctx, e)

	case AuctionExtendedEvent:
		applied, err := a.store.ExtendAuction(ctx, a.chainID, e.AuctionID, unixTime(e.NewEndTime), e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("extend auction %d: %w", e.AuctionID, err)
		}
		return a.closeOutcome(ctx, e, "auctions", "auction_id", e.AuctionID, StatusActive, applied)

	case AuctionSettledEvent:
		applied, err := a.store.CloseAuction(ctx, a.chainID, e.AuctionID, StatusSettled, e.Winner, e.Amount, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("settle auction %d: %w", e.AuctionID, err)
		}
		if err := a.closeOutcome(ctx, e, "auctions", "auction_id", e.AuctionID, StatusSettled, applied); err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return a.entityAgentActivity(ctx, "marketplace:auction_settled", "auctions", "auction_id", e.AuctionID, e.Winner,
			map[string]interface{}{"auction_id": e.AuctionID, "amount": e.Amount.String()}, e.Prov())

	case AuctionBuyNowEvent:
		applied, err := a.store.CloseAuction(ctx, a.chainID, e.AuctionID, StatusSettled, e.Buyer, e.Price, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("buy-now auction %d: %w", e.AuctionID, err)
		}
		if err := a.closeOutcome(ctx, e, "auctions", "auction_id", e.AuctionID, StatusSettled, applied); err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return a.entityAgentActivity(ctx, "marketplace:auction_settled", "auctions", "auction_id", e.AuctionID, e.Buyer,
			map[string]interface{}{"auction_id": e.AuctionID, "amount": e.Price.String(), "buy_now": true}, e.Prov())

	case AuctionCancelledEvent:
		applied, err := a.store.CloseAuction(ctx, a.chainID, e.AuctionID, StatusCancelled, "", decimal.Zero, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("cancel auction %d: %w", e.AuctionID, err)
		}
		return a.closeOutcome(ctx, e, "auctions", "auction_id", e.AuctionID, StatusCancelled, applied)

	case AuctionReserveNotMetEvent:
		applied, err := a.store.CloseAuction(ctx, a.chainID, e.AuctionID, StatusReserveNotMet, "", decimal.Zero, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("close auction %d: %w", e.AuctionID, err)
		}
		return a.closeOutcome(ctx, e, "auctions", "auction_id", e.AuctionID, StatusReserveNotMet, applied)

	case DutchAuctionCreatedEvent:
		applied, err := a.store.UpsertDutchAuction(ctx, store.NewDutchAuction{
			ChainID:      a.chainID,
			AuctionID:    e.AuctionID,
			Seller:       e.Seller,
			NFTContract:  e.NFTContract,
			TokenID:      e.TokenID,
			PaymentToken: e.PaymentToken,
			StartPrice:   e.StartPrice,
			EndPrice:     e.EndPrice,
			StartTime:    unixTime(e.StartTime),
			EndTime:      unixTime(e.EndTime),
			BlockNumber:  e.BlockNumber,
			LogIndex:     e.LogIndex,
			BlockTime:    e.BlockTime,
			TxHash:       e.TxHash,
		})
		if err != nil {
			return fmt.Errorf("upsert dutch auction %d: %w", e.AuctionID, err)
		}
		if !applied {
			a.countStale(e)
			return nil
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil

	case DutchAuctionBoughtEvent:
		applied, err := a.store.CloseDutchAuction(ctx, a.chainID, e.AuctionID, StatusSold, e.Buyer, e.Price, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("close dutch auction %d: %w", e.AuctionID, err)
		}
		if err := a.closeOutcome(ctx, e, "dutch_auctions", "auction_id", e.AuctionID, StatusSold, applied); err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return a.entityAgentActivity(ctx, "marketplace:bought", "dutch_auctions", "auction_id", e.AuctionID, e.Buyer,
			map[string]interface{}{"auction_id": e.AuctionID, "price": e.Price.String()}, e.Prov())

	case DutchAuctionCancelledEvent:
		applied, err := a.store.CloseDutchAuction(ctx, a.chainID, e.AuctionID, StatusCancelled, "", decimal.Zero, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("cancel dutch auction %d: %w", e.AuctionID, err)
		}
		return a.closeOutcome(ctx, e, "dutch_auctions", "auction_id", e.AuctionID, StatusCancelled, applied)

	case BundleListedEvent:
		applied, err := a.store.UpsertBundle(ctx, store.NewBundle{
			ChainID:        a.chainID,
			BundleID:       e.BundleID,
			Seller:         e.Seller,
			ItemCount:      e.ItemCount,
			TokenContracts: e.TokenContracts,
			TokenIDs:       e.TokenIDs,
			PaymentToken:   e.PaymentToken,
			Price:          e.Price,
			Expiry:         unixTime(e.Expiry),
			BlockNumber:    e.BlockNumber,
			LogIndex:       e.LogIndex,
			BlockTime:      e.BlockTime,
			TxHash:         e.TxHash,
		})
		if err != nil {
			return fmt.Errorf("upsert bundle %d: %w", e.BundleID, err)
		}
		if !applied {
			a.countStale(e)
			return nil
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil

	case BundleBoughtEvent:
		applied, err := a.store.CloseBundle(ctx, a.chainID, e.BundleID, StatusSold, e.Buyer, e.Price, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("close bundle %d: %w", e.BundleID, err)
		}
		return a.closeOutcome(ctx, e, "bundle_listings", "bundle_id", e.BundleID, StatusSold, applied)

	case BundleListingCancelledEvent:
		applied, err := a.store.CloseBundle(ctx, a.chainID, e.BundleID, StatusCancelled, "", decimal.Zero, e.BlockNumber, e.LogIndex, e.TxHash)
		if err != nil {
			return fmt.Errorf("cancel bundle %d: %w", e.BundleID, err)
		}
		return a.closeOutcome(ctx, e, "bundle_listings", "bundle_id", e.BundleID, StatusCancelled, applied)

	case PlatformFeeUpdatedEvent:
		fee := e.NewFeeBps
		if err := a.store.UpsertMarketplaceConfig(ctx, a.chainID, &fee, nil); err != nil {
			return fmt.Errorf("update platform fee: %w", err)
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil

	case FeeRecipientUpdatedEvent:
		recipient := e.NewRecipient
		if err := a.store.UpsertMarketplaceConfig(ctx, a.chainID, nil, &recipient); err != nil {
			return fmt.Errorf("update fee recipient: %w", err)
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil

	case PaymentTokenAddedEvent:
		if err := a.store.SetPaymentToken(ctx, a.chainID, e.Token, true); err != nil {
			return fmt.Errorf("add payment token: %w", err)
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil

	case PaymentTokenRemovedEvent:
		if err := a.store.SetPaymentToken(ctx, a.chainID, e.Token, false); err != nil {
			return fmt.Errorf("remove payment token: %w", err)
		}
		eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil
	}
	return fmt.Errorf("unhandled event %s", ev.Name())
}

func (a *Applier) applyBid(ctx context.Context, e BidPlacedEvent) error {
	inserted, err := a.store.InsertAuctionBid(ctx, store.NewAuctionBid{
		ChainID:     a.chainID,
		AuctionID:   e.AuctionID,
		Bidder:      e.Bidder,
		Amount:      e.Amount,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		BlockTime:   e.BlockTime,
		TxHash:      e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("insert bid on auction %d: %w", e.AuctionID, err)
	}
	if !inserted {
		duplicateEvents.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil
	}

	raised, err := a.store.UpdateAuctionHighBid(ctx, a.chainID, e.AuctionID, e.Bidder, e.Amount, e.BlockNumber, e.LogIndex)
	if err != nil {
		return fmt.Errorf("update high bid on auction %d: %w", e.AuctionID, err)
	}
	if !raised {
		// The bid is kept in history either way. A missing auction row is a
		// violation; a bid at or under the stored high is late delivery.
		status, found, err := a.store.EntityStatus(ctx, "auctions", "auction_id", a.chainID, e.AuctionID)
		if err != nil {
			return err
		}
		if !found {
			a.violation(e, "auction not found")
			return nil
		}
		if TerminalStatus(status) {
			a.violation(e, "auction already "+status)
			return nil
		}
		staleEvents.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	return a.entityAgentActivity(ctx, "marketplace:bid", "auctions", "auction_id", e.AuctionID, e.Bidder,
		map[string]interface{}{"auction_id": e.AuctionID, "amount": e.Amount.String()}, e.Prov())
}

// closeOutcome classifies a zero-row status update: the entity is either
// already in the target state (redelivery), missing or in a conflicting
// terminal state (violation).
func (a *Applier) closeOutcome(ctx context.Context, ev Event, table, idColumn string, id int64, target string, applied bool) error {
	if applied {
		eventsApplied.WithLabelValues(a.chainLabel, ev.Name()).Inc()
		return nil
	}
	status, found, err := a.store.EntityStatus(ctx, table, idColumn, a.chainID, id)
	if err != nil {
		return err
	}
	if !found {
		a.violation(ev, fmt.Sprintf("%s row not found", table))
		return nil
	}
	if status == target {
		duplicateEvents.WithLabelValues(a.chainLabel, ev.Name()).Inc()
		return nil
	}
	if target == StatusActive {
		// Updates to live entities that found no row to touch are stale.
		staleEvents.WithLabelValues(a.chainLabel, ev.Name()).Inc()
		return nil
	}
	a.violation(ev, fmt.Sprintf("status is %s, wanted %s", status, target))
	return nil
}

// agentActivity appends a marketplace activity row when the traded token is
// an agent on this chain's identity registry.
func (a *Applier) agentActivity(ctx context.Context, eventType, nftContract string, tokenID decimal.Decimal, actor string, details map[string]interface{}, p Provenance) error {
	if !strings.EqualFold(nftContract, a.identityAddress) {
		return nil
	}
	big := tokenID.BigInt()
	if !big.IsInt64() {
		return nil
	}
	return a.activity(ctx, big.Int64(), eventType, actor, details, p)
}

// entityAgentActivity is agentActivity for events that only carry an entity
// id; the token is read back from the projection.
func (a *Applier) entityAgentActivity(ctx context.Context, eventType, table, idColumn string, id int64, actor string, details map[string]interface{}, p Provenance) error {
	contract, tokenID, found, err := a.store.EntityToken(ctx, table, idColumn, a.chainID, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	d, err := decimal.NewFromString(tokenID)
	if err != nil {
		return nil
	}
	return a.agentActivity(ctx, eventType, contract, d, actor, details, p)
}

func unixTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
