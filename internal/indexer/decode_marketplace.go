package indexer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// idActorAmount decodes the common "id indexed, actor indexed, one uint256
// in data" shape shared by Bought, BidPlaced, AuctionSettled and friends.
func idActorAmount(lg types.Log, name string) (int64, string, decimal.Decimal, error) {
	id, err := topicID(lg, 1)
	if err != nil {
		return 0, "", decimal.Decimal{}, fmt.Errorf("%s: %w", name, err)
	}
	actor, err := topicAddr(lg, 2)
	if err != nil {
		return 0, "", decimal.Decimal{}, fmt.Errorf("%s: %w", name, err)
	}
	vals, err := unpackData(marketplaceABI, name, lg.Data)
	if err != nil {
		return 0, "", decimal.Decimal{}, err
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return 0, "", decimal.Decimal{}, fmt.Errorf("%s: amount is %T", name, vals[0])
	}
	return id, actor, bigDec(amount), nil
}

func idOnly(lg types.Log, name string) (int64, error) {
	id, err := topicID(lg, 1)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}

func decodeMarketplace(lg types.Log, blockTime time.Time) (Event, error) {
	p := provOf(lg, blockTime)
	ev := marketplaceABI.Events

	switch lg.Topics[0] {
	case ev["Listed"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("Listed: %w", err)
		}
		seller, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("Listed: %w", err)
		}
		nft, err := topicAddr(lg, 3)
		if err != nil {
			return nil, fmt.Errorf("Listed: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "Listed", lg.Data)
		if err != nil {
			return nil, err
		}
		expiry, err := asI64(vals[3])
		if err != nil {
			return nil, fmt.Errorf("Listed: expiry: %w", err)
		}
		return ListedEvent{
			base: base{p}, ListingID: id, Seller: seller, NFTContract: nft,
			TokenID:      bigDec(vals[0].(*big.Int)),
			PaymentToken: addrHex(vals[1].(common.Address)),
			Price:        bigDec(vals[2].(*big.Int)),
			Expiry:       expiry,
		}, nil

	case ev["Bought"].ID:
		id, buyer, price, err := idActorAmount(lg, "Bought")
		if err != nil {
			return nil, err
		}
		return BoughtEvent{base: base{p}, ListingID: id, Buyer: buyer, Price: price}, nil

	case ev["ListingCancelled"].ID:
		id, err := idOnly(lg, "ListingCancelled")
		if err != nil {
			return nil, err
		}
		return ListingCancelledEvent{base: base{p}, ListingID: id}, nil

	case ev["ListingPriceUpdated"].ID:
		id, err := idOnly(lg, "ListingPriceUpdated")
		if err != nil {
			return nil, err
		}
		vals, err := unpackData(marketplaceABI, "ListingPriceUpdated", lg.Data)
		if err != nil {
			return nil, err
		}
		return ListingPriceUpdatedEvent{base: base{p}, ListingID: id, NewPrice: bigDec(vals[0].(*big.Int))}, nil

	case ev["OfferMade"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("OfferMade: %w", err)
		}
		offerer, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("OfferMade: %w", err)
		}
		nft, err := topicAddr(lg, 3)
		if err != nil {
			return nil, fmt.Errorf("OfferMade: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "OfferMade", lg.Data)
		if err != nil {
			return nil, err
		}
		expiry, err := asI64(vals[3])
		if err != nil {
			return nil, fmt.Errorf("OfferMade: expiry: %w", err)
		}
		return OfferMadeEvent{
			base: base{p}, OfferID: id, Offerer: offerer, NFTContract: nft,
			TokenID:      bigDec(vals[0].(*big.Int)),
			PaymentToken: addrHex(vals[1].(common.Address)),
			Amount:       bigDec(vals[2].(*big.Int)),
			Expiry:       expiry,
		}, nil

	case ev["OfferAccepted"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("OfferAccepted: %w", err)
		}
		seller, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("OfferAccepted: %w", err)
		}
		return OfferAcceptedEvent{base: base{p}, OfferID: id, Seller: seller}, nil

	case ev["OfferCancelled"].ID:
		id, err := idOnly(lg, "OfferCancelled")
		if err != nil {
			return nil, err
		}
		return OfferCancelledEvent{base: base{p}, OfferID: id}, nil

	case ev["CollectionOfferMade"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("CollectionOfferMade: %w", err)
		}
		offerer, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("CollectionOfferMade: %w", err)
		}
		nft, err := topicAddr(lg, 3)
		if err != nil {
			return nil, fmt.Errorf("CollectionOfferMade: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "CollectionOfferMade", lg.Data)
		if err != nil {
			return nil, err
		}
		expiry, err := asI64(vals[2])
		if err != nil {
			return nil, fmt.Errorf("CollectionOfferMade: expiry: %w", err)
		}
		return CollectionOfferMadeEvent{
			base: base{p}, OfferID: id, Offerer: offerer, NFTContract: nft,
			PaymentToken: addrHex(vals[0].(common.Address)),
			Amount:       bigDec(vals[1].(*big.Int)),
			Expiry:       expiry,
		}, nil

	case ev["CollectionOfferAccepted"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("CollectionOfferAccepted: %w", err)
		}
		seller, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("CollectionOfferAccepted: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "CollectionOfferAccepted", lg.Data)
		if err != nil {
			return nil, err
		}
		return CollectionOfferAcceptedEvent{
			base: base{p}, OfferID: id, Seller: seller, TokenID: bigDec(vals[0].(*big.Int)),
		}, nil

	case ev["CollectionOfferCancelled"].ID:
		id, err := idOnly(lg, "CollectionOfferCancelled")
		if err != nil {
			return nil, err
		}
		return CollectionOfferCancelledEvent{base: base{p}, OfferID: id}, nil

	case ev["AuctionCreated"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("AuctionCreated: %w", err)
		}
		seller, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("AuctionCreated: %w", err)
		}
		nft, err := topicAddr(lg, 3)
		if err != nil {
			return nil, fmt.Errorf("AuctionCreated: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "AuctionCreated", lg.Data)
		if err != nil {
			return nil, err
		}
		startTime, err := asI64(vals[5])
		if err != nil {
			return nil, fmt.Errorf("AuctionCreated: startTime: %w", err)
		}
		endTime, err := asI64(vals[6])
		if err != nil {
			return nil, fmt.Errorf("AuctionCreated: endTime: %w", err)
		}
		return AuctionCreatedEvent{
			base: base{p}, AuctionID: id, Seller: seller, NFTContract: nft,
			TokenID:      bigDec(vals[0].(*big.Int)),
			PaymentToken: addrHex(vals[1].(common.Address)),
			StartPrice:   bigDec(vals[2].(*big.Int)),
			ReservePrice: bigDec(vals[3].(*big.Int)),
			BuyNowPrice:  bigDec(vals[4].(*big.Int)),
			StartTime:    startTime,
			EndTime:      endTime,
		}, nil

	case ev["BidPlaced"].ID:
		id, bidder, amount, err := idActorAmount(lg, "BidPlaced")
		if err != nil {
			return nil, err
		}
		return BidPlacedEvent{base: base{p}, AuctionID: id, Bidder: bidder, Amount: amount}, nil

	case ev["AuctionSettled"].ID:
		id, winner, amount, err := idActorAmount(lg, "AuctionSettled")
		if err != nil {
			return nil, err
		}
		return AuctionSettledEvent{base: base{p}, AuctionID: id, Winner: winner, Amount: amount}, nil

	case ev["AuctionCancelled"].ID:
		id, err := idOnly(lg, "AuctionCancelled")
		if err != nil {
			return nil, err
		}
		return AuctionCancelledEvent{base: base{p}, AuctionID: id}, nil

	case ev["AuctionExtended"].ID:
		id, err := idOnly(lg, "AuctionExtended")
		if err != nil {
			return nil, err
		}
		vals, err := unpackData(marketplaceABI, "AuctionExtended", lg.Data)
		if err != nil {
			return nil, err
		}
		endTime, err := asI64(vals[0])
		if err != nil {
			return nil, fmt.Errorf("AuctionExtended: newEndTime: %w", err)
		}
		return AuctionExtendedEvent{base: base{p}, AuctionID: id, NewEndTime: endTime}, nil

	case ev["AuctionBuyNow"].ID:
		id, buyer, price, err := idActorAmount(lg, "AuctionBuyNow")
		if err != nil {
			return nil, err
		}
		return AuctionBuyNowEvent{base: base{p}, AuctionID: id, Buyer: buyer, Price: price}, nil

	case ev["AuctionReserveNotMet"].ID:
		id, err := idOnly(lg, "AuctionReserveNotMet")
		if err != nil {
			return nil, err
		}
		return AuctionReserveNotMetEvent{base: base{p}, AuctionID: id}, nil

	case ev["DutchAuctionCreated"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("DutchAuctionCreated: %w", err)
		}
		seller, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("DutchAuctionCreated: %w", err)
		}
		nft, err := topicAddr(lg, 3)
		if err != nil {
			return nil, fmt.Errorf("DutchAuctionCreated: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "DutchAuctionCreated", lg.Data)
		if err != nil {
			return nil, err
		}
		startTime, err := asI64(vals[4])
		if err != nil {
			return nil, fmt.Errorf("DutchAuctionCreated: startTime: %w", err)
		}
		endTime, err := asI64(vals[5])
		if err != nil {
			return nil, fmt.Errorf("DutchAuctionCreated: endTime: %w", err)
		}
		return DutchAuctionCreatedEvent{
			base: base{p}, AuctionID: id, Seller: seller, NFTContract: nft,
			TokenID:      bigDec(vals[0].(*big.Int)),
			PaymentToken: addrHex(vals[1].(common.Address)),
			StartPrice:   bigDec(vals[2].(*big.Int)),
			EndPrice:     bigDec(vals[3].(*big.Int)),
			StartTime:    startTime,
			EndTime:      endTime,
		}, nil

	case ev["DutchAuctionBought"].ID:
		id, buyer, price, err := idActorAmount(lg, "DutchAuctionBought")
		if err != nil {
			return nil, err
		}
		return DutchAuctionBoughtEvent{base: base{p}, AuctionID: id, Buyer: buyer, Price: price}, nil

	case ev["DutchAuctionCancelled"].ID:
		id, err := idOnly(lg, "DutchAuctionCancelled")
		if err != nil {
			return nil, err
		}
		return DutchAuctionCancelledEvent{base: base{p}, AuctionID: id}, nil

	case ev["BundleListed"].ID:
		id, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("BundleListed: %w", err)
		}
		seller, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("BundleListed: %w", err)
		}
		vals, err := unpackData(marketplaceABI, "BundleListed", lg.Data)
		if err != nil {
			return nil, err
		}
		itemCount, err := asI64(vals[0])
		if err != nil {
			return nil, fmt.Errorf("BundleListed: itemCount: %w", err)
		}
		expiry, err := asI64(vals[3])
		if err != nil {
			return nil, fmt.Errorf("BundleListed: expiry: %w", err)
		}
		return BundleListedEvent{
			base: base{p}, BundleID: id, Seller: seller,
			ItemCount:    int32(itemCount),
			PaymentToken: addrHex(vals[1].(common.Address)),
			Price:        bigDec(vals[2].(*big.Int)),
			Expiry:       expiry,
		}, nil

	case ev["BundleBought"].ID:
		id, buyer, price, err := idActorAmount(lg, "BundleBought")
		if err != nil {
			return nil, err
		}
		return BundleBoughtEvent{base: base{p}, BundleID: id, Buyer: buyer, Price: price}, nil

	case ev["BundleListingCancelled"].ID:
		id, err := idOnly(lg, "BundleListingCancelled")
		if err != nil {
			return nil, err
		}
		return BundleListingCancelledEvent{base: base{p}, BundleID: id}, nil

	case ev["PlatformFeeUpdated"].ID:
		vals, err := unpackData(marketplaceABI, "PlatformFeeUpdated", lg.Data)
		if err != nil {
			return nil, err
		}
		fee, err := asI64(vals[0])
		if err != nil {
			return nil, fmt.Errorf("PlatformFeeUpdated: newFee: %w", err)
		}
		return PlatformFeeUpdatedEvent{base: base{p}, NewFeeBps: int32(fee)}, nil

	case ev["FeeRecipientUpdated"].ID:
		vals, err := unpackData(marketplaceABI, "FeeRecipientUpdated", lg.Data)
		if err != nil {
			return nil, err
		}
		recipient, ok := vals[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("FeeRecipientUpdated: newRecipient is %T", vals[0])
		}
		return FeeRecipientUpdatedEvent{base: base{p}, NewRecipient: addrHex(recipient)}, nil

	case ev["PaymentTokenAdded"].ID:
		token, err := topicAddr(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("PaymentTokenAdded: %w", err)
		}
		return PaymentTokenAddedEvent{base: base{p}, Token: token}, nil

	case ev["PaymentTokenRemoved"].ID:
		token, err := topicAddr(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("PaymentTokenRemoved: %w", err)
		}
		return PaymentTokenRemovedEvent{base: base{p}, Token: token}, nil
	}
	return nil, ErrUnknownTopic
}
