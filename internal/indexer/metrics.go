package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_logs_decoded_total",
		Help: "Decoded contract logs by chain and contract family.",
	}, []string{"chain", "contract"})

	decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_decode_failures_total",
		Help: "Logs that matched a known topic but failed to decode.",
	}, []string{"chain", "contract"})

	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_events_applied_total",
		Help: "Events applied to projections by event name.",
	}, []string{"chain", "event"})

	duplicateEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_duplicate_events_total",
		Help: "Redelivered events dropped by idempotence guards.",
	}, []string{"chain", "event"})

	staleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_stale_events_total",
		Help: "Events discarded for carrying older provenance than the projection.",
	}, []string{"chain", "event"})

	logicViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_logic_violations_total",
		Help: "Events that contradicted the projection state machine.",
	}, []string{"chain", "event"})

	batchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_batch_errors_total",
		Help: "Poll batches aborted before the cursor advanced.",
	}, []string{"chain", "contract"})

	cursorBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "molt_indexer_cursor_block",
		Help: "Last indexed block per chain and contract family.",
	}, []string{"chain", "contract"})

	headBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "molt_indexer_head_block",
		Help: "Latest chain head observed per chain.",
	}, []string{"chain"})

	metadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "molt_indexer_metadata_fetches_total",
		Help: "Agent metadata fetch attempts by outcome.",
	}, []string{"outcome"})
)
