// Package reindex rebuilds a tenant's search index from scratch: drop and
// recreate the index, then backfill every source table with cursor-based
// pagination while recording job progress.
package reindex

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gridstonehq/workspace-search/internal/document"
	"github.com/gridstonehq/workspace-search/internal/elastic"
	"github.com/gridstonehq/workspace-search/internal/searcher/suggest"
	"github.com/gridstonehq/workspace-search/internal/store"
	"github.com/gridstonehq/workspace-search/pkg/config"
	"github.com/gridstonehq/workspace-search/pkg/errors"
	"github.com/gridstonehq/workspace-search/pkg/kafka"
	"github.com/gridstonehq/workspace-search/pkg/logger"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
	"github.com/gridstonehq/workspace-search/pkg/postgres"
	"github.com/gridstonehq/workspace-search/pkg/resilience"
)

// backfillOrder fixes the source-kind sequence of a rebuild.
var backfillOrder = []document.SourceKind{
	document.SourceEnrichment,
	document.SourceRecord,
	document.SourceScrape,
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateJob(ctx context.Context, tx *sql.Tx, id, workspaceID string) (*store.ReindexJob, error)
	CompleteJob(ctx context.Context, id string, status store.JobStatus, total, indexed, failed int, errorReason string) error
	LatestJob(ctx context.Context, workspaceID string) (*store.ReindexJob, error)
	FetchDocumentBatch(ctx context.Context, kind document.SourceKind, workspaceID, cursor string, limit int) ([]document.Document, string, error)
	UpsertIndexStatus(ctx context.Context, st store.IndexStatus) error
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Indexer is the search-engine surface used during a rebuild.
type Indexer interface {
	EnsureIndex(ctx context.Context, name string) error
	DeleteIndex(ctx context.Context, name string) error
	Bulk(ctx context.Context, actions []elastic.BulkAction) (*elastic.BulkResult, error)
	Count(ctx context.Context, index string) (int64, error)
}

// Invalidator drops cached entries under a key prefix.
type Invalidator interface {
	InvalidatePrefix(prefix string) int
}

// Publisher emits best-effort index lifecycle events. May be nil.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Orchestrator owns the reindex job lifecycle. At most one job per tenant
// runs at a time, enforced with a transaction-scoped advisory lock combined
// with the latest-job state check.
type Orchestrator struct {
	store       Store
	db          TxRunner
	indexer     Indexer
	cache       Invalidator
	publisher   Publisher
	indexPrefix string
	pageSize    int
	backoff     []time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// lock is a seam for tests; production uses the advisory lock.
	lock func(ctx context.Context, tx *sql.Tx, name string) (bool, error)
}

// New builds an orchestrator. publisher may be nil.
func New(
	st Store,
	db TxRunner,
	indexer Indexer,
	cache Invalidator,
	publisher Publisher,
	indexPrefix string,
	cfg config.ReindexConfig,
	backoff []time.Duration,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:       st,
		db:          db,
		indexer:     indexer,
		cache:       cache,
		publisher:   publisher,
		indexPrefix: indexPrefix,
		pageSize:    cfg.PageSize,
		backoff:     backoff,
		metrics:     m,
		logger:      logger.WithComponent("reindex"),
		lock:        postgres.AcquireTxLock,
	}
}

// Start creates a reindex job for the workspace and launches the rebuild in
// the background. A job already running for the same tenant yields a
// conflict. The returned snapshot reflects the job at creation time.
func (o *Orchestrator) Start(ctx context.Context, workspaceID string) (*store.ReindexJob, error) {
	var job *store.ReindexJob
	err := o.db.InTx(ctx, func(tx *sql.Tx) error {
		acquired, err := o.lock(ctx, tx, "reindex:"+workspaceID)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.Newf(errors.ErrConflict, 409, "reindex already in progress for workspace %s", workspaceID)
		}
		// The latest-job check must run under the lock: a concurrent
		// Start releases its lock at commit while its rebuild is still
		// running, so the only fresh view of its job row is here.
		if latest, err := o.store.LatestJob(ctx, workspaceID); err == nil {
			if latest.Status == store.JobPending || latest.Status == store.JobRunning {
				return errors.Newf(errors.ErrConflict, 409, "reindex already in progress for workspace %s", workspaceID)
			}
		} else if !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		job, err = o.store.CreateJob(ctx, tx, uuid.NewString(), workspaceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	building := store.IndexStatus{
		WorkspaceID:   workspaceID,
		IndexVersion:  elastic.MappingVersion,
		Status:        store.IndexBuilding,
	}
	if err := o.store.UpsertIndexStatus(ctx, building); err != nil {
		o.logger.Warn("failed to mark index building", "workspace_id", workspaceID, "error", err)
	}

	// The rebuild outlives the request that started it.
	go o.run(context.Background(), job.ID, workspaceID)

	return job, nil
}

// Status returns the most recent job for the workspace.
func (o *Orchestrator) Status(ctx context.Context, workspaceID string) (*store.ReindexJob, error) {
	return o.store.LatestJob(ctx, workspaceID)
}

// run executes the rebuild: recreate the index, then backfill each source
// kind page by page. Rejected documents are counted and logged but do not
// abort the job; infrastructure failures do.
func (o *Orchestrator) run(ctx context.Context, jobID, workspaceID string) {
	log := o.logger.With("job_id", jobID, "workspace_id", workspaceID)
	index := elastic.IndexName(o.indexPrefix, workspaceID)
	start := time.Now()

	if err := o.indexer.DeleteIndex(ctx, index); err != nil {
		o.fail(ctx, jobID, workspaceID, log, "dropping index: "+err.Error())
		return
	}
	if err := o.indexer.EnsureIndex(ctx, index); err != nil {
		o.fail(ctx, jobID, workspaceID, log, "creating index: "+err.Error())
		return
	}

	var total, indexed, failed int
	for _, kind := range backfillOrder {
		cursor := ""
		for {
			docs, last, err := o.store.FetchDocumentBatch(ctx, kind, workspaceID, cursor, o.pageSize)
			if err != nil {
				o.fail(ctx, jobID, workspaceID, log, "fetching "+string(kind)+" batch: "+err.Error())
				return
			}
			if len(docs) == 0 {
				break
			}
			total += len(docs)

			pageIndexed, pageFailed := o.indexPage(ctx, index, docs, log)
			indexed += pageIndexed
			failed += pageFailed

			if len(docs) < o.pageSize {
				break
			}
			cursor = last
		}
	}

	status := store.JobCompleted
	reason := ""
	switch {
	case total > 0 && indexed == 0 && failed > 0:
		status = store.JobFailed
		reason = "no documents could be indexed"
	case failed > 0:
		status = store.JobPartiallyCompleted
		reason = "some documents failed to index"
	}

	if err := o.store.CompleteJob(ctx, jobID, status, total, indexed, failed, reason); err != nil {
		log.Error("failed to record job completion", "error", err)
	}
	o.recordStatus(ctx, workspaceID, index, status)
	o.cache.InvalidatePrefix(suggest.TenantPrefix(workspaceID))
	o.publish(ctx, workspaceID, jobID, status)

	if o.metrics != nil {
		o.metrics.ReindexJobsTotal.WithLabelValues(string(status)).Inc()
		o.metrics.ReindexDocsTotal.WithLabelValues("indexed").Add(float64(indexed))
		o.metrics.ReindexDocsTotal.WithLabelValues("failed").Add(float64(failed))
	}
	log.Info("reindex finished",
		"status", status,
		"total", total,
		"indexed", indexed,
		"failed", failed,
		"duration", time.Since(start),
	)
}

// indexPage submits one page as a bulk request with retries. A submission
// that exhausts retries counts the whole page as failed and the backfill
// moves on.
func (o *Orchestrator) indexPage(ctx context.Context, index string, docs []document.Document, log *slog.Logger) (indexed, failed int) {
	actions := make([]elastic.BulkAction, 0, len(docs))
	for _, d := range docs {
		actions = append(actions, elastic.BulkAction{Op: "index", Index: index, ID: d.RecordID, Doc: d})
	}

	var result *elastic.BulkResult
	err := resilience.Retry(ctx, "reindex-bulk", resilience.RetryConfig{Backoff: o.backoff}, func() error {
		var bulkErr error
		result, bulkErr = o.indexer.Bulk(ctx, actions)
		return bulkErr
	})
	if err != nil {
		log.Error("bulk submission failed", "docs", len(docs), "error", err)
		return 0, len(docs)
	}

	for _, item := range result.ItemErrors {
		log.Warn("document rejected", "doc_id", item.ID, "status", item.Status, "reason", item.Reason)
	}
	return result.Succeeded, result.Failed
}

func (o *Orchestrator) fail(ctx context.Context, jobID, workspaceID string, log *slog.Logger, reason string) {
	log.Error("reindex aborted", "reason", reason)
	if err := o.store.CompleteJob(ctx, jobID, store.JobFailed, 0, 0, 0, reason); err != nil {
		log.Error("failed to record job failure", "error", err)
	}
	errReason := reason
	st := store.IndexStatus{
		WorkspaceID:  workspaceID,
		IndexVersion: elastic.MappingVersion,
		Status:       store.IndexError,
		ErrorReason:  &errReason,
	}
	if err := o.store.UpsertIndexStatus(ctx, st); err != nil {
		log.Warn("failed to record index status", "error", err)
	}
	if o.metrics != nil {
		o.metrics.ReindexJobsTotal.WithLabelValues(string(store.JobFailed)).Inc()
	}
}

func (o *Orchestrator) recordStatus(ctx context.Context, workspaceID, index string, status store.JobStatus) {
	count, err := o.indexer.Count(ctx, index)
	if err != nil {
		o.logger.Warn("index count unavailable", "workspace_id", workspaceID, "error", err)
		count = -1
	}
	now := time.Now().UTC()
	state := store.IndexReady
	var errReason *string
	if status == store.JobFailed {
		state = store.IndexError
		reason := "reindex failed"
		errReason = &reason
	}
	st := store.IndexStatus{
		WorkspaceID:   workspaceID,
		LastIndexedAt: &now,
		DocumentCount: count,
		IndexVersion:  elastic.MappingVersion,
		Status:        state,
		ErrorReason:   errReason,
	}
	if err := o.store.UpsertIndexStatus(ctx, st); err != nil {
		o.logger.Warn("failed to record index status", "workspace_id", workspaceID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, workspaceID, jobID string, status store.JobStatus) {
	if o.publisher == nil {
		return
	}
	event := kafka.Event{
		Key: workspaceID,
		Value: map[string]any{
			"type":         "index.rebuilt",
			"workspace_id": workspaceID,
			"job_id":       jobID,
			"status":       string(status),
			"completed_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("lifecycle event publish failed", "workspace_id", workspaceID, "error", err)
	}
}
