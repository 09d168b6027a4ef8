package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/moltlabs/molt-indexer/internal/store"
)

// agentCardDoc is the JSON document agents publish at their metadata URI.
// Unknown fields are ignored; absent fields leave the projection untouched.
type agentCardDoc struct {
	Name         *string         `json:"name"`
	Description  *string         `json:"description"`
	Image        *string         `json:"image"`
	Categories   []string        `json:"categories"`
	X402Support  *bool           `json:"x402_support"`
	Endpoints    json.RawMessage `json:"endpoints"`
	Capabilities json.RawMessage `json:"capabilities"`
}

type fetchJob struct {
	agentID int64
	chainID int64
	uri     string
}

// MetadataEnricher fetches agent metadata URIs off the apply path and folds
// the results into the agents projection. Fetch failures only log; the
// on-chain projection stays authoritative.
type MetadataEnricher struct {
	store        *store.Store
	client       *http.Client
	jobs         chan fetchJob
	workers      int
	maxBodyBytes int64
	log          *log.Logger
	wg           sync.WaitGroup
}

func NewMetadataEnricher(st *store.Store, workers, queueSize int, fetchTimeout time.Duration, maxBodyBytes int64) *MetadataEnricher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &MetadataEnricher{
		store:        st,
		client:       &http.Client{Timeout: fetchTimeout},
		jobs:         make(chan fetchJob, queueSize),
		workers:      workers,
		maxBodyBytes: maxBodyBytes,
		log:          log.New(log.Writer(), "[METADATA] ", log.LstdFlags),
	}
}

// Start launches the worker pool. Workers drain until Stop closes the queue.
func (m *MetadataEnricher) Start(ctx context.Context) {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for job := range m.jobs {
				if ctx.Err() != nil {
					return
				}
				if err := m.fetch(ctx, job); err != nil {
					metadataFetches.WithLabelValues("error").Inc()
					m.log.Printf("agent %d chain %d: %v", job.agentID, job.chainID, err)
					continue
				}
				metadataFetches.WithLabelValues("ok").Inc()
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight fetches.
func (m *MetadataEnricher) Stop() {
	close(m.jobs)
	m.wg.Wait()
}

// Enqueue schedules a fetch. When the queue is full the job is dropped;
// the next URI update will retry.
func (m *MetadataEnricher) Enqueue(agentID, chainID int64, uri string) {
	select {
	case m.jobs <- fetchJob{agentID: agentID, chainID: chainID, uri: uri}:
	default:
		metadataFetches.WithLabelValues("dropped").Inc()
	}
}

func (m *MetadataEnricher) fetch(ctx context.Context, job fetchJob) error {
	uri := resolveURI(job.uri)
	if uri == "" {
		return fmt.Errorf("unsupported uri %q", job.uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read metadata body: %w", err)
	}

	var doc agentCardDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parse metadata: %w", err)
	}

	card := store.AgentCard{
		Name:        doc.Name,
		Description: doc.Description,
		Image:       doc.Image,
		Categories:  normalizeCategories(doc.Categories),
		X402Support: doc.X402Support,
	}
	if len(doc.Endpoints) > 0 || len(doc.Capabilities) > 0 {
		meta, err := json.Marshal(map[string]json.RawMessage{
			"endpoints":    orNullJSON(doc.Endpoints),
			"capabilities": orNullJSON(doc.Capabilities),
		})
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		card.Metadata = meta
	}
	if err := m.store.ApplyAgentCard(ctx, job.agentID, job.chainID, card); err != nil {
		return fmt.Errorf("apply agent card: %w", err)
	}
	return nil
}

// resolveURI maps ipfs:// URIs onto a public gateway and passes http(s)
// through. Anything else is rejected.
func resolveURI(uri string) string {
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		return "https://ipfs.io/ipfs/" + strings.TrimPrefix(uri, "ipfs://")
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri
	}
	return ""
}

func normalizeCategories(cats []string) []string {
	var out []string
	for _, c := range cats {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func orNullJSON(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}
