package indexer

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testOwner  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testClient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testNFT    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testToken  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func idTopic(id int64) common.Hash {
	return common.BigToHash(big.NewInt(id))
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func packData(t *testing.T, a abi.ABI, event string, args ...interface{}) []byte {
	t.Helper()
	data, err := a.Events[event].Inputs.NonIndexed().Pack(args...)
	if err != nil {
		t.Fatalf("pack %s: %v", event, err)
	}
	return data
}

func testLog(topics []common.Hash, data []byte) types.Log {
	return types.Log{
		Topics:      topics,
		Data:        data,
		BlockNumber: 1000,
		Index:       3,
		TxHash:      common.HexToHash("0xABCDEF"),
	}
}

func TestDecodeRegistered(t *testing.T) {
	bt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lg := testLog(
		[]common.Hash{identityABI.Events["Registered"].ID, idTopic(42), addrTopic(testOwner)},
		packData(t, identityABI, "Registered", "https://agents.example/42.json"),
	)

	ev, err := Decode(ContractIdentity, lg, bt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reg, ok := ev.(RegisteredEvent)
	if !ok {
		t.Fatalf("expected RegisteredEvent, got %T", ev)
	}
	if reg.AgentID != 42 {
		t.Fatalf("agent id: got %d", reg.AgentID)
	}
	if reg.Owner != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("owner not lowercased: %s", reg.Owner)
	}
	if reg.AgentURI != "https://agents.example/42.json" {
		t.Fatalf("uri: %s", reg.AgentURI)
	}
	if reg.Prov().BlockNumber != 1000 || reg.Prov().LogIndex != 3 {
		t.Fatalf("provenance: %+v", reg.Prov())
	}
	if !reg.Prov().BlockTime.Equal(bt) {
		t.Fatalf("block time: %v", reg.Prov().BlockTime)
	}
}

func TestDecodeNewFeedback(t *testing.T) {
	var hash [32]byte
	copy(hash[:], []byte("feedback-hash"))
	lg := testLog(
		[]common.Hash{reputationABI.Events["NewFeedback"].ID, idTopic(7), addrTopic(testClient)},
		packData(t, reputationABI, "NewFeedback",
			uint64(2), big.NewInt(450), uint8(2),
			"quality", "speed", "/chat", "ipfs://feedback", hash),
	)

	ev, err := Decode(ContractReputation, lg, time.Time{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fb, ok := ev.(NewFeedbackEvent)
	if !ok {
		t.Fatalf("expected NewFeedbackEvent, got %T", ev)
	}
	if fb.AgentID != 7 || fb.FeedbackIndex != 2 {
		t.Fatalf("ids: %+v", fb)
	}
	if fb.Value.String() != "450" || fb.ValueDecimals != 2 {
		t.Fatalf("value: %s decimals %d", fb.Value, fb.ValueDecimals)
	}
	if fb.Tag1 != "quality" || fb.Tag2 != "speed" || fb.Endpoint != "/chat" {
		t.Fatalf("tags: %+v", fb)
	}
}

func TestDecodeNegativeFeedbackValue(t *testing.T) {
	var hash [32]byte
	lg := testLog(
		[]common.Hash{reputationABI.Events["NewFeedback"].ID, idTopic(7), addrTopic(testClient)},
		packData(t, reputationABI, "NewFeedback",
			uint64(0), big.NewInt(-100), uint8(2), "", "", "", "", hash),
	)

	ev, err := Decode(ContractReputation, lg, time.Time{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fb := ev.(NewFeedbackEvent)
	if fb.Value.String() != "-100" {
		t.Fatalf("negative value lost: %s", fb.Value)
	}
}

func TestDecodeListed(t *testing.T) {
	price, _ := new(big.Int).SetString("2500000000000000000", 10)
	lg := testLog(
		[]common.Hash{marketplaceABI.Events["Listed"].ID, idTopic(9), addrTopic(testOwner), addrTopic(testNFT)},
		packData(t, marketplaceABI, "Listed", big.NewInt(42), testToken, price, big.NewInt(1700000000)),
	)

	ev, err := Decode(ContractMarketplace, lg, time.Time{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	l, ok := ev.(ListedEvent)
	if !ok {
		t.Fatalf("expected ListedEvent, got %T", ev)
	}
	if l.ListingID != 9 || l.TokenID.String() != "42" {
		t.Fatalf("ids: %+v", l)
	}
	if l.Price.String() != "2500000000000000000" {
		t.Fatalf("price precision lost: %s", l.Price)
	}
	if l.Expiry != 1700000000 {
		t.Fatalf("expiry: %d", l.Expiry)
	}
	if l.NFTContract != "0x3333333333333333333333333333333333333333" {
		t.Fatalf("nft contract: %s", l.NFTContract)
	}
}

func TestDecodeBidPlaced(t *testing.T) {
	lg := testLog(
		[]common.Hash{marketplaceABI.Events["BidPlaced"].ID, idTopic(5), addrTopic(testClient)},
		packData(t, marketplaceABI, "BidPlaced", big.NewInt(777)),
	)

	ev, err := Decode(ContractMarketplace, lg, time.Time{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	bid := ev.(BidPlacedEvent)
	if bid.AuctionID != 5 || bid.Amount.String() != "777" {
		t.Fatalf("bid: %+v", bid)
	}
}

func TestDecodeUnknownTopicSkipped(t *testing.T) {
	lg := testLog([]common.Hash{common.HexToHash("0xdeadbeef")}, nil)
	_, err := Decode(ContractMarketplace, lg, time.Time{})
	if !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestDecodeTruncatedDataFails(t *testing.T) {
	lg := testLog(
		[]common.Hash{marketplaceABI.Events["Listed"].ID, idTopic(9), addrTopic(testOwner), addrTopic(testNFT)},
		[]byte{0x01, 0x02},
	)
	_, err := Decode(ContractMarketplace, lg, time.Time{})
	if err == nil || errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecodeAgentIDOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	lg := testLog(
		[]common.Hash{identityABI.Events["Registered"].ID, common.BigToHash(huge), addrTopic(testOwner)},
		packData(t, identityABI, "Registered", "uri"),
	)
	_, err := Decode(ContractIdentity, lg, time.Time{})
	if err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestTerminalStatus(t *testing.T) {
	for _, s := range []string{StatusSold, StatusAccepted, StatusCancelled, StatusExpired, StatusSettled, StatusReserveNotMet} {
		if !TerminalStatus(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if TerminalStatus(StatusActive) {
		t.Fatal("Active must not be terminal")
	}
}

func TestProvenanceOrdering(t *testing.T) {
	a := Provenance{BlockNumber: 10, LogIndex: 5}
	b := Provenance{BlockNumber: 10, LogIndex: 6}
	c := Provenance{BlockNumber: 11, LogIndex: 0}
	if !a.Before(b) || !b.Before(c) || b.Before(a) {
		t.Fatal("provenance ordering broken")
	}
	if a.Before(a) {
		t.Fatal("equal provenance is not before itself")
	}
}
