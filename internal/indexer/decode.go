package indexer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// ErrUnknownTopic marks a log whose topic0 is not part of the contract ABI.
// The poll loop skips these silently; other contracts can share an address
// space with proxies that emit their own events.
var ErrUnknownTopic = errors.New("unknown event topic")

// Decode turns a raw log into a typed event. blockTime may be zero when the
// timestamp lookup failed; appliers treat it as unknown.
func Decode(kind ContractKind, lg types.Log, blockTime time.Time) (Event, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("log without topics at block %d", lg.BlockNumber)
	}
	switch kind {
	case ContractIdentity:
		return decodeIdentity(lg, blockTime)
	case ContractReputation:
		return decodeReputation(lg, blockTime)
	case ContractMarketplace:
		return decodeMarketplace(lg, blockTime)
	}
	return nil, fmt.Errorf("unknown contract kind %q", kind)
}

func provOf(lg types.Log, blockTime time.Time) Provenance {
	return Provenance{
		BlockNumber: int64(lg.BlockNumber),
		LogIndex:    int32(lg.Index),
		TxHash:      strings.ToLower(lg.TxHash.Hex()),
		BlockTime:   blockTime,
	}
}

func addrHex(a common.Address) string { return strings.ToLower(a.Hex()) }

func hashHex(b [32]byte) string { return "0x" + hex.EncodeToString(b[:]) }

func topicBig(lg types.Log, i int) (*big.Int, error) {
	if len(lg.Topics) <= i {
		return nil, fmt.Errorf("missing topic %d", i)
	}
	return new(big.Int).SetBytes(lg.Topics[i].Bytes()), nil
}

func topicID(lg types.Log, i int) (int64, error) {
	v, err := topicBig(lg, i)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("topic %d overflows int64", i)
	}
	return v.Int64(), nil
}

func topicAddr(lg types.Log, i int) (string, error) {
	if len(lg.Topics) <= i {
		return "", fmt.Errorf("missing topic %d", i)
	}
	return addrHex(common.BytesToAddress(lg.Topics[i].Bytes())), nil
}

func bigDec(v *big.Int) decimal.Decimal { return decimal.NewFromBigInt(v, 0) }

// unpackData unpacks the non-indexed inputs of the named event.
func unpackData(a abi.ABI, name string, data []byte) ([]interface{}, error) {
	ev, ok := a.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %s not in ABI", name)
	}
	vals, err := ev.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", name, err)
	}
	return vals, nil
}

// asI64 converts an unpacked uint256 value to int64, rejecting overflow.
func asI64(v interface{}) (int64, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("expected *big.Int, got %T", v)
	}
	if !b.IsInt64() {
		return 0, fmt.Errorf("value %s overflows int64", b)
	}
	return b.Int64(), nil
}
