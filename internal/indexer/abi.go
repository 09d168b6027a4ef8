package indexer

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, reduced to the events and read calls the indexer consumes.

const identityABIJSON = `[
{"type":"event","name":"Registered","anonymous":false,"inputs":[
  {"name":"agentId","type":"uint256","indexed":true},
  {"name":"agentURI","type":"string","indexed":false},
  {"name":"owner","type":"address","indexed":true}]},
{"type":"event","name":"URIUpdated","anonymous":false,"inputs":[
  {"name":"agentId","type":"uint256","indexed":true},
  {"name":"newURI","type":"string","indexed":false},
  {"name":"updatedBy","type":"address","indexed":true}]},
{"type":"event","name":"MetadataSet","anonymous":false,"inputs":[
  {"name":"agentId","type":"uint256","indexed":true},
  {"name":"metadataKey","type":"string","indexed":false},
  {"name":"metadataValue","type":"string","indexed":false}]}
]`

const reputationABIJSON = `[
{"type":"event","name":"NewFeedback","anonymous":false,"inputs":[
  {"name":"agentId","type":"uint256","indexed":true},
  {"name":"clientAddress","type":"address","indexed":true},
  {"name":"feedbackIndex","type":"uint64","indexed":false},
  {"name":"value","type":"int128","indexed":false},
  {"name":"valueDecimals","type":"uint8","indexed":false},
  {"name":"tag1","type":"string","indexed":false},
  {"name":"tag2","type":"string","indexed":false},
  {"name":"endpoint","type":"string","indexed":false},
  {"name":"feedbackURI","type":"string","indexed":false},
  {"name":"feedbackHash","type":"bytes32","indexed":false}]},
{"type":"event","name":"FeedbackRevoked","anonymous":false,"inputs":[
  {"name":"agentId","type":"uint256","indexed":true},
  {"name":"clientAddress","type":"address","indexed":true},
  {"name":"feedbackIndex","type":"uint64","indexed":false}]},
{"type":"event","name":"ResponseAppended","anonymous":false,"inputs":[
  {"name":"agentId","type":"uint256","indexed":true},
  {"name":"clientAddress","type":"address","indexed":true},
  {"name":"feedbackIndex","type":"uint64","indexed":false},
  {"name":"responder","type":"address","indexed":false},
  {"name":"responseURI","type":"string","indexed":false},
  {"name":"responseHash","type":"bytes32","indexed":false}]}
]`

const marketplaceABIJSON = `[
{"type":"event","name":"Listed","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"nftContract","type":"address","indexed":true},
  {"name":"tokenId","type":"uint256","indexed":false},
  {"name":"paymentToken","type":"address","indexed":false},
  {"name":"price","type":"uint256","indexed":false},
  {"name":"expiry","type":"uint256","indexed":false}]},
{"type":"event","name":"Bought","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},
  {"name":"buyer","type":"address","indexed":true},
  {"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"ListingCancelled","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true}]},
{"type":"event","name":"ListingPriceUpdated","anonymous":false,"inputs":[
  {"name":"listingId","type":"uint256","indexed":true},
  {"name":"newPrice","type":"uint256","indexed":false}]},
{"type":"event","name":"OfferMade","anonymous":false,"inputs":[
  {"name":"offerId","type":"uint256","indexed":true},
  {"name":"offerer","type":"address","indexed":true},
  {"name":"nftContract","type":"address","indexed":true},
  {"name":"tokenId","type":"uint256","indexed":false},
  {"name":"paymentToken","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"expiry","type":"uint256","indexed":false}]},
{"type":"event","name":"OfferAccepted","anonymous":false,"inputs":[
  {"name":"offerId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true}]},
{"type":"event","name":"OfferCancelled","anonymous":false,"inputs":[
  {"name":"offerId","type":"uint256","indexed":true}]},
{"type":"event","name":"CollectionOfferMade","anonymous":false,"inputs":[
  {"name":"offerId","type":"uint256","indexed":true},
  {"name":"offerer","type":"address","indexed":true},
  {"name":"nftContract","type":"address","indexed":true},
  {"name":"paymentToken","type":"address","indexed":false},
  {"name":"amount","type":"uint256","indexed":false},
  {"name":"expiry","type":"uint256","indexed":false}]},
{"type":"event","name":"CollectionOfferAccepted","anonymous":false,"inputs":[
  {"name":"offerId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"tokenId","type":"uint256","indexed":false}]},
{"type":"event","name":"CollectionOfferCancelled","anonymous":false,"inputs":[
  {"name":"offerId","type":"uint256","indexed":true}]},
{"type":"event","name":"AuctionCreated","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"nftContract","type":"address","indexed":true},
  {"name":"tokenId","type":"uint256","indexed":false},
  {"name":"paymentToken","type":"address","indexed":false},
  {"name":"startPrice","type":"uint256","indexed":false},
  {"name":"reservePrice","type":"uint256","indexed":false},
  {"name":"buyNowPrice","type":"uint256","indexed":false},
  {"name":"startTime","type":"uint256","indexed":false},
  {"name":"endTime","type":"uint256","indexed":false}]},
{"type":"event","name":"BidPlaced","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"bidder","type":"address","indexed":true},
  {"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"AuctionSettled","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"winner","type":"address","indexed":true},
  {"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"AuctionCancelled","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true}]},
{"type":"event","name":"AuctionExtended","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"newEndTime","type":"uint256","indexed":false}]},
{"type":"event","name":"AuctionBuyNow","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"buyer","type":"address","indexed":true},
  {"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"AuctionReserveNotMet","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true}]},
{"type":"event","name":"DutchAuctionCreated","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"nftContract","type":"address","indexed":true},
  {"name":"tokenId","type":"uint256","indexed":false},
  {"name":"paymentToken","type":"address","indexed":false},
  {"name":"startPrice","type":"uint256","indexed":false},
  {"name":"endPrice","type":"uint256","indexed":false},
  {"name":"startTime","type":"uint256","indexed":false},
  {"name":"endTime","type":"uint256","indexed":false}]},
{"type":"event","name":"DutchAuctionBought","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true},
  {"name":"buyer","type":"address","indexed":true},
  {"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"DutchAuctionCancelled","anonymous":false,"inputs":[
  {"name":"auctionId","type":"uint256","indexed":true}]},
{"type":"event","name":"BundleListed","anonymous":false,"inputs":[
  {"name":"bundleId","type":"uint256","indexed":true},
  {"name":"seller","type":"address","indexed":true},
  {"name":"itemCount","type":"uint256","indexed":false},
  {"name":"paymentToken","type":"address","indexed":false},
  {"name":"price","type":"uint256","indexed":false},
  {"name":"expiry","type":"uint256","indexed":false}]},
{"type":"event","name":"BundleBought","anonymous":false,"inputs":[
  {"name":"bundleId","type":"uint256","indexed":true},
  {"name":"buyer","type":"address","indexed":true},
  {"name":"price","type":"uint256","indexed":false}]},
{"type":"event","name":"BundleListingCancelled","anonymous":false,"inputs":[
  {"name":"bundleId","type":"uint256","indexed":true}]},
{"type":"event","name":"PlatformFeeUpdated","anonymous":false,"inputs":[
  {"name":"newFee","type":"uint256","indexed":false}]},
{"type":"event","name":"FeeRecipientUpdated","anonymous":false,"inputs":[
  {"name":"newRecipient","type":"address","indexed":false}]},
{"type":"event","name":"PaymentTokenAdded","anonymous":false,"inputs":[
  {"name":"token","type":"address","indexed":true}]},
{"type":"event","name":"PaymentTokenRemoved","anonymous":false,"inputs":[
  {"name":"token","type":"address","indexed":true}]},
{"type":"function","name":"getBundleListing","stateMutability":"view","inputs":[
  {"name":"bundleId","type":"uint256"}],"outputs":[
  {"name":"nftContracts","type":"address[]"},
  {"name":"tokenIds","type":"uint256[]"}]},
{"type":"function","name":"platformFeeBps","stateMutability":"view","inputs":[],"outputs":[
  {"name":"","type":"uint256"}]},
{"type":"function","name":"feeRecipient","stateMutability":"view","inputs":[],"outputs":[
  {"name":"","type":"address"}]}
]`

var (
	identityABI    abi.ABI
	reputationABI  abi.ABI
	marketplaceABI abi.ABI
)

func init() {
	identityABI = mustABI(identityABIJSON)
	reputationABI = mustABI(reputationABIJSON)
	marketplaceABI = mustABI(marketplaceABIJSON)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// contractABI returns the parsed ABI for a contract family.
func contractABI(kind ContractKind) abi.ABI {
	switch kind {
	case ContractIdentity:
		return identityABI
	case ContractReputation:
		return reputationABI
	default:
		return marketplaceABI
	}
}
