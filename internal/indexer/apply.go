package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/moltlabs/molt-indexer/internal/store"
)

// Enricher receives agents whose metadata URI should be fetched. Enqueueing
// must not block the apply path.
type Enricher interface {
	Enqueue(agentID, chainID int64, uri string)
}

// Applier folds decoded events into the Postgres projections. Store errors
// abort the batch so the cursor does not advance past unapplied events;
// duplicates, stale writes and state-machine violations are counted and
// dropped.
type Applier struct {
	store           *store.Store
	chainID         int64
	chainLabel      string
	identityAddress string
	enricher        Enricher
	log             *log.Logger
}

func NewApplier(st *store.Store, chainID int64, chainName, identityAddress string, enricher Enricher, logger *log.Logger) *Applier {
	return &Applier{
		store:           st,
		chainID:         chainID,
		chainLabel:      chainName,
		identityAddress: identityAddress,
		enricher:        enricher,
		log:             logger,
	}
}

// Apply dispatches one event. A nil return means the batch may continue;
// the event is either applied or accounted for and dropped.
func (a *Applier) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case RegisteredEvent:
		return a.applyRegistered(ctx, e)
	case URIUpdatedEvent:
		return a.applyURIUpdated(ctx, e)
	case MetadataSetEvent:
		return a.applyMetadataSet(ctx, e)
	case NewFeedbackEvent:
		return a.applyNewFeedback(ctx, e)
	case FeedbackRevokedEvent:
		return a.applyFeedbackRevoked(ctx, e)
	case ResponseAppendedEvent:
		return a.applyResponseAppended(ctx, e)
	default:
		return a.applyMarketplace(ctx, ev)
	}
}

func (a *Applier) applyRegistered(ctx context.Context, e RegisteredEvent) error {
	applied, err := a.store.UpsertAgent(ctx, store.NewAgent{
		AgentID:     e.AgentID,
		ChainID:     a.chainID,
		Owner:       e.Owner,
		URI:         e.AgentURI,
		Active:      true,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		BlockTime:   e.BlockTime,
		TxHash:      e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("upsert agent %d: %w", e.AgentID, err)
	}
	if !applied {
		a.countStale(e)
		return nil
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	if e.AgentURI != "" && a.enricher != nil {
		a.enricher.Enqueue(e.AgentID, a.chainID, e.AgentURI)
	}
	return a.activity(ctx, e.AgentID, "registered", e.Owner, map[string]interface{}{"uri": e.AgentURI}, e.Prov())
}

func (a *Applier) applyURIUpdated(ctx context.Context, e URIUpdatedEvent) error {
	applied, err := a.store.UpsertAgent(ctx, store.NewAgent{
		AgentID:     e.AgentID,
		ChainID:     a.chainID,
		URI:         e.NewURI,
		Active:      true,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		BlockTime:   e.BlockTime,
		TxHash:      e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("update agent %d uri: %w", e.AgentID, err)
	}
	if !applied {
		a.countStale(e)
		return nil
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	if e.NewURI != "" && a.enricher != nil {
		a.enricher.Enqueue(e.AgentID, a.chainID, e.NewURI)
	}
	return a.activity(ctx, e.AgentID, "uri_updated", e.UpdatedBy, map[string]interface{}{"uri": e.NewURI}, e.Prov())
}

func (a *Applier) applyMetadataSet(ctx context.Context, e MetadataSetEvent) error {
	if err := a.store.SetAgentMetadataKey(ctx, e.AgentID, a.chainID, e.Key, e.Value); err != nil {
		return fmt.Errorf("set agent %d metadata: %w", e.AgentID, err)
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	return a.activity(ctx, e.AgentID, "metadata_set", "", map[string]interface{}{"key": e.Key, "value": e.Value}, e.Prov())
}

func (a *Applier) applyNewFeedback(ctx context.Context, e NewFeedbackEvent) error {
	inserted, err := a.store.InsertFeedback(ctx, store.NewFeedback{
		AgentID:       e.AgentID,
		ChainID:       a.chainID,
		ClientAddress: e.Client,
		FeedbackIndex: e.FeedbackIndex,
		Value:         e.Value,
		ValueDecimals: e.ValueDecimals,
		Tag1:          e.Tag1,
		Tag2:          e.Tag2,
		Endpoint:      e.Endpoint,
		FeedbackURI:   e.FeedbackURI,
		FeedbackHash:  e.FeedbackHash,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		BlockTime:     e.BlockTime,
		TxHash:        e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("insert feedback for agent %d: %w", e.AgentID, err)
	}
	if !inserted {
		duplicateEvents.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	return a.activity(ctx, e.AgentID, "feedback", e.Client, map[string]interface{}{
		"value": e.Value.String(), "value_decimals": e.ValueDecimals, "tag1": e.Tag1, "tag2": e.Tag2,
	}, e.Prov())
}

func (a *Applier) applyFeedbackRevoked(ctx context.Context, e FeedbackRevokedEvent) error {
	found, err := a.store.RevokeFeedback(ctx, e.AgentID, a.chainID, e.Client, e.FeedbackIndex)
	if err != nil {
		return fmt.Errorf("revoke feedback for agent %d: %w", e.AgentID, err)
	}
	if !found {
		// Revoking an unknown feedback usually means the NewFeedback log
		// was skipped; surface it rather than hide it.
		a.violation(e, "feedback not found")
		return nil
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	return a.activity(ctx, e.AgentID, "feedback_revoked", e.Client, map[string]interface{}{
		"feedback_index": e.FeedbackIndex,
	}, e.Prov())
}

func (a *Applier) applyResponseAppended(ctx context.Context, e ResponseAppendedEvent) error {
	inserted, err := a.store.InsertFeedbackResponse(ctx, store.NewFeedbackResponse{
		AgentID:       e.AgentID,
		ChainID:       a.chainID,
		ClientAddress: e.Client,
		FeedbackIndex: e.FeedbackIndex,
		Responder:     e.Responder,
		ResponseURI:   e.ResponseURI,
		ResponseHash:  e.ResponseHash,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		BlockTime:     e.BlockTime,
		TxHash:        e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("insert feedback response for agent %d: %w", e.AgentID, err)
	}
	if !inserted {
		duplicateEvents.WithLabelValues(a.chainLabel, e.Name()).Inc()
		return nil
	}
	eventsApplied.WithLabelValues(a.chainLabel, e.Name()).Inc()
	return a.activity(ctx, e.AgentID, "response", e.Responder, map[string]interface{}{
		"feedback_index": e.FeedbackIndex,
	}, e.Prov())
}

// activity appends an activity row keyed by the event's log coordinates.
// Redelivery is a silent no-op.
func (a *Applier) activity(ctx context.Context, agentID int64, eventType, actor string, details map[string]interface{}, p Provenance) error {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal activity details: %w", err)
		}
		raw = b
	}
	_, err := a.store.InsertActivity(ctx, store.NewActivity{
		AgentID:     agentID,
		ChainID:     a.chainID,
		EventType:   eventType,
		Actor:       actor,
		Details:     raw,
		BlockNumber: p.BlockNumber,
		LogIndex:    p.LogIndex,
		BlockTime:   p.BlockTime,
		TxHash:      p.TxHash,
	})
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", eventType, err)
	}
	return nil
}

func (a *Applier) countStale(ev Event) {
	staleEvents.WithLabelValues(a.chainLabel, ev.Name()).Inc()
}

func (a *Applier) violation(ev Event, reason string) {
	logicViolations.WithLabelValues(a.chainLabel, ev.Name()).Inc()
	p := ev.Prov()
	a.log.Printf("WARN: %s at block %d log %d dropped: %s", ev.Name(), p.BlockNumber, p.LogIndex, reason)
}
