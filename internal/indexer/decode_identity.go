package indexer

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

func decodeIdentity(lg types.Log, blockTime time.Time) (Event, error) {
	p := provOf(lg, blockTime)
	switch lg.Topics[0] {
	case identityABI.Events["Registered"].ID:
		agentID, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("Registered: %w", err)
		}
		owner, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("Registered: %w", err)
		}
		vals, err := unpackData(identityABI, "Registered", lg.Data)
		if err != nil {
			return nil, err
		}
		uri, ok := vals[0].(string)
		if !ok {
			return nil, fmt.Errorf("Registered: agentURI is %T", vals[0])
		}
		return RegisteredEvent{base: base{p}, AgentID: agentID, Owner: owner, AgentURI: uri}, nil

	case identityABI.Events["URIUpdated"].ID:
		agentID, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("URIUpdated: %w", err)
		}
		updatedBy, err := topicAddr(lg, 2)
		if err != nil {
			return nil, fmt.Errorf("URIUpdated: %w", err)
		}
		vals, err := unpackData(identityABI, "URIUpdated", lg.Data)
		if err != nil {
			return nil, err
		}
		uri, ok := vals[0].(string)
		if !ok {
			return nil, fmt.Errorf("URIUpdated: newURI is %T", vals[0])
		}
		return URIUpdatedEvent{base: base{p}, AgentID: agentID, NewURI: uri, UpdatedBy: updatedBy}, nil

	case identityABI.Events["MetadataSet"].ID:
		agentID, err := topicID(lg, 1)
		if err != nil {
			return nil, fmt.Errorf("MetadataSet: %w", err)
		}
		vals, err := unpackData(identityABI, "MetadataSet", lg.Data)
		if err != nil {
			return nil, err
		}
		key, ok1 := vals[0].(string)
		value, ok2 := vals[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("MetadataSet: unexpected field types %T/%T", vals[0], vals[1])
		}
		return MetadataSetEvent{base: base{p}, AgentID: agentID, Key: key, Value: value}, nil
	}
	return nil, ErrUnknownTopic
}
