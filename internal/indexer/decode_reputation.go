package indexer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func decodeReputation(lg types.Log, blockTime time.Time) (Event, error) {
	p := provOf(lg, blockTime)
	switch lg.Topics[0] {
	case reputationABI.Events["NewFeedback"].ID:
		agentID, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("NewFeedback: %w", err)
		}
		client, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("NewFeedback: %w", err)
		}
		vals, err := unpackData(reputationABI, "NewFeedback", lg.Data)
		if err != nil {
			return nil, err
		}
		idx, ok := vals[0].(uint64)
		if !ok {
			return nil, fmt.Errorf("NewFeedback: feedbackIndex is %T", vals[0])
		}
		value, ok := vals[1].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("NewFeedback: value is %T", vals[1])
		}
		dec, ok := vals[2].(uint8)
		if !ok {
			return nil, fmt.Errorf("NewFeedback: valueDecimals is %T", vals[2])
		}
		hash, ok := vals[7].([32]byte)
		if !ok {
			return nil, fmt.Errorf("NewFeedback: feedbackHash is %T", vals[7])
		}
		return NewFeedbackEvent{
			base:          base{p},
			AgentID:       agentID,
			Client:        client,
			FeedbackIndex: int64(idx),
			Value:         bigDec(value),
			ValueDecimals: int32(dec),
			Tag1:          vals[3].(string),
			Tag2:          vals[4].(string),
			Endpoint:      vals[5].(string),
			FeedbackURI:   vals[6].(string),
			FeedbackHash:  hashHex(hash),
		}, nil

	case reputationABI.Events["FeedbackRevoked"].ID:
		agentID, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("FeedbackRevoked: %w", err)
		}
		client, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("FeedbackRevoked: %w", err)
		}
		vals, err := unpackData(reputationABI, "FeedbackRevoked", lg.Data)
		if err != nil {
			return nil, err
		}
		idx, ok := vals[0].(uint64)
		if !ok {
			return nil, fmt.Errorf("FeedbackRevoked: feedbackIndex is %T", vals[0])
		}
		return FeedbackRevokedEvent{base: base{p}, AgentID: agentID, Client: client, FeedbackIndex: int64(idx)}, nil

	case reputationABI.Events["ResponseAppended"].ID:
		agentID, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("ResponseAppended: %w", err)
		}
		client, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("ResponseAppended: %w", err)
		}
		vals, err := unpackData(reputationABI, "ResponseAppended", lg.Data)
		if err != nil {
			return nil, err
		}
		idx, ok := vals[0].(uint64)
		if !ok {
			return nil, fmt.Errorf("ResponseAppended: feedbackIndex is %T", vals[0])
		}
		responder, ok := vals[1].(common.Address)
		if !ok {
			return nil, fmt.Errorf("ResponseAppended: responder is %T", vals[1])
		}
		hash, ok := vals[3].([32]byte)
		if !ok {
			return nil, fmt.Errorf("ResponseAppended: responseHash is %T", vals[3])
		}
		return ResponseAppendedEvent{
			base:          base{p},
			AgentID:       agentID,
			Client:        client,
			FeedbackIndex: int64(idx),
			Responder:     addrHex(responder),
			ResponseURI:   vals[2].(string),
			ResponseHash:  hashHex(hash),
		}, nil
	}
	return nil, ErrUnknownTopic
}
