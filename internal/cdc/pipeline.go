package cdc

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gridstonehq/workspace-search/internal/document"
	"github.com/gridstonehq/workspace-search/internal/elastic"
	"github.com/gridstonehq/workspace-search/internal/searcher/suggest"
	"github.com/gridstonehq/workspace-search/internal/store"
	"github.com/gridstonehq/workspace-search/pkg/config"
	"github.com/gridstonehq/workspace-search/pkg/errors"
	"github.com/gridstonehq/workspace-search/pkg/kafka"
	"github.com/gridstonehq/workspace-search/pkg/logger"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
	"github.com/gridstonehq/workspace-search/pkg/resilience"
)

// finalFlushTimeout bounds the drain attempt during shutdown.
const finalFlushTimeout = 5 * time.Second

// Indexer is the search-engine surface the pipeline writes through.
type Indexer interface {
	Bulk(ctx context.Context, actions []elastic.BulkAction) (*elastic.BulkResult, error)
	Count(ctx context.Context, index string) (int64, error)
}

// Fetcher resolves buffered identifiers to full documents.
type Fetcher interface {
	FetchDocument(ctx context.Context, kind document.SourceKind, id string) (document.Document, error)
}

// StatusStore persists per-tenant index state after a flush.
type StatusStore interface {
	UpsertIndexStatus(ctx context.Context, st store.IndexStatus) error
}

// Invalidator drops cached entries under a key prefix.
type Invalidator interface {
	InvalidatePrefix(prefix string) int
}

// Publisher emits best-effort index lifecycle events. May be nil.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Buffered    int       `json:"buffered"`
	Flushed     int64     `json:"flushed"`
	Failed      int64     `json:"failed"`
	LastFlushAt time.Time `json:"lastFlushAt"`
}

// Pipeline drains buffered change events into the search index. Flushes
// fire on a size threshold or a timer, whichever comes first, and a guard
// keeps at most one flush in flight.
type Pipeline struct {
	buffers     *Buffers
	indexer     Indexer
	fetcher     Fetcher
	status      StatusStore
	cache       Invalidator
	publisher   Publisher
	indexPrefix string
	cfg         config.PipelineConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger

	flushing  atomic.Bool
	flushed   atomic.Int64
	failed    atomic.Int64
	lastFlush atomic.Int64 // unix nanos
	trigger   chan struct{}
	done      chan struct{}
}

// NewPipeline builds a pipeline over the shared buffers. publisher may be
// nil when event publishing is disabled.
func NewPipeline(
	buffers *Buffers,
	indexer Indexer,
	fetcher Fetcher,
	status StatusStore,
	cache Invalidator,
	publisher Publisher,
	indexPrefix string,
	cfg config.PipelineConfig,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		buffers:     buffers,
		indexer:     indexer,
		fetcher:     fetcher,
		status:      status,
		cache:       cache,
		publisher:   publisher,
		indexPrefix: indexPrefix,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.WithComponent("cdc-pipeline"),
		trigger:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start runs the flush loop until the context is cancelled, then performs
// one final drain so buffered events are not lost on shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
				p.Flush(flushCtx)
				cancel()
				return
			case <-ticker.C:
				p.Flush(ctx)
			case <-p.trigger:
				p.Flush(ctx)
			}
		}
	}()
}

// Stop blocks until the flush loop has exited. Call after cancelling the
// context passed to Start.
func (p *Pipeline) Stop() {
	<-p.done
}

// TriggerFlush requests an immediate flush without blocking the caller.
func (p *Pipeline) TriggerFlush() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Flush drains all channel buffers and delivers the events to the search
// index, one bulk request per tenant. A flush already in progress makes
// this call a no-op; events keep accumulating for the next cycle.
func (p *Pipeline) Flush(ctx context.Context) {
	if !p.flushing.CompareAndSwap(false, true) {
		if p.metrics != nil {
			p.metrics.FlushesTotal.WithLabelValues("skipped").Inc()
		}
		return
	}
	defer p.flushing.Store(false)

	byTenant := make(map[string][]Event)
	for _, ch := range Channels() {
		for _, e := range p.buffers.Drain(ch) {
			byTenant[e.WorkspaceID] = append(byTenant[e.WorkspaceID], e)
		}
	}
	if p.metrics != nil {
		p.metrics.EventsBuffered.Set(float64(p.buffers.Total()))
	}
	if len(byTenant) == 0 {
		return
	}

	// Deterministic tenant order keeps logs and tests stable.
	tenants := make([]string, 0, len(byTenant))
	for ws := range byTenant {
		tenants = append(tenants, ws)
	}
	sort.Strings(tenants)

	anyFailed := false
	for _, ws := range tenants {
		if err := p.flushTenant(ctx, ws, byTenant[ws]); err != nil {
			anyFailed = true
			p.failed.Add(int64(len(byTenant[ws])))
			if p.metrics != nil {
				p.metrics.EventsFailedTotal.Add(float64(len(byTenant[ws])))
			}
			p.logger.Error("tenant flush failed",
				"workspace_id", ws,
				"events", len(byTenant[ws]),
				"error", err,
			)
		}
	}

	now := time.Now().UTC()
	p.lastFlush.Store(now.UnixNano())
	if p.metrics != nil {
		p.metrics.LastFlushTimestamp.Set(float64(now.Unix()))
		status := "success"
		if anyFailed {
			status = "partial"
		}
		p.metrics.FlushesTotal.WithLabelValues(status).Inc()
	}
}

// flushTenant resolves one tenant's events and submits a single bulk
// request with retries. Per-item failures within an accepted bulk response
// are logged but do not fail the flush; a DELETE for an already-absent
// document is normal.
func (p *Pipeline) flushTenant(ctx context.Context, workspaceID string, events []Event) error {
	index := elastic.IndexName(p.indexPrefix, workspaceID)
	actions := make([]elastic.BulkAction, 0, len(events))
	for _, e := range events {
		if e.Op == OpDelete {
			actions = append(actions, elastic.BulkAction{Op: "delete", Index: index, ID: e.RecordID})
			continue
		}
		kind, _ := SourceKindFor(e.Channel)
		doc, err := p.fetcher.FetchDocument(ctx, kind, e.RecordID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				// Deleted between notification and flush.
				p.logger.Debug("skipping vanished record", "record_id", e.RecordID, "channel", e.Channel)
				continue
			}
			return err
		}
		actions = append(actions, elastic.BulkAction{Op: "index", Index: index, ID: doc.RecordID, Doc: doc})
	}
	if len(actions) == 0 {
		p.flushed.Add(int64(len(events)))
		return nil
	}

	var result *elastic.BulkResult
	attempt := 0
	err := resilience.Retry(ctx, "bulk-flush", resilience.RetryConfig{Backoff: p.cfg.Backoff}, func() error {
		attempt++
		var bulkErr error
		result, bulkErr = p.indexer.Bulk(ctx, actions)
		return bulkErr
	})
	if attempt > 1 && p.metrics != nil {
		p.metrics.BulkRetriesTotal.Inc()
	}
	if err != nil {
		return err
	}

	for _, item := range result.ItemErrors {
		if item.Status == 404 {
			continue
		}
		p.logger.Warn("bulk item rejected",
			"workspace_id", workspaceID,
			"doc_id", item.ID,
			"status", item.Status,
			"reason", item.Reason,
		)
	}

	p.flushed.Add(int64(len(events)))
	if p.metrics != nil {
		p.metrics.EventsFlushedTotal.Add(float64(len(events)))
	}
	p.cache.InvalidatePrefix(suggest.TenantPrefix(workspaceID))
	p.recordStatus(ctx, workspaceID, index)
	p.publish(ctx, workspaceID, len(events))
	return nil
}

func (p *Pipeline) recordStatus(ctx context.Context, workspaceID, index string) {
	count, err := p.indexer.Count(ctx, index)
	if err != nil {
		p.logger.Warn("index count unavailable", "workspace_id", workspaceID, "error", err)
		count = -1
	}
	now := time.Now().UTC()
	st := store.IndexStatus{
		WorkspaceID:   workspaceID,
		LastIndexedAt: &now,
		DocumentCount: count,
		IndexVersion:  elastic.MappingVersion,
		Status:        store.IndexReady,
	}
	if err := p.status.UpsertIndexStatus(ctx, st); err != nil {
		p.logger.Warn("failed to record index status", "workspace_id", workspaceID, "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, workspaceID string, count int) {
	if p.publisher == nil {
		return
	}
	event := kafka.Event{
		Key: workspaceID,
		Value: map[string]any{
			"type":         "index.flushed",
			"workspace_id": workspaceID,
			"events":       count,
			"flushed_at":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("lifecycle event publish failed", "workspace_id", workspaceID, "error", err)
	}
}

// Stats reports current pipeline counters.
func (p *Pipeline) Stats() Stats {
	var last time.Time
	if ns := p.lastFlush.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC()
	}
	return Stats{
		Buffered:    p.buffers.Total(),
		Flushed:     p.flushed.Load(),
		Failed:      p.failed.Load(),
		LastFlushAt: last,
	}
}
