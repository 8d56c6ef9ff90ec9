package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gridstonehq/workspace-search/pkg/errors"
)

// JobStatus is the lifecycle state of a reindex job.
type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobRunning            JobStatus = "running"
	JobCompleted          JobStatus = "completed"
	JobPartiallyCompleted JobStatus = "partially_completed"
	JobFailed             JobStatus = "failed"
)

// ReindexJob is the persisted record of one full index rebuild.
type ReindexJob struct {
	ID               string     `json:"id"`
	WorkspaceID      string     `json:"workspaceId"`
	Status           JobStatus  `json:"status"`
	TotalDocuments   int        `json:"totalDocuments"`
	IndexedDocuments int        `json:"indexedDocuments"`
	FailedDocuments  int        `json:"failedDocuments"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ErrorReason      *string    `json:"errorReason,omitempty"`
}

// CreateJob inserts a pending job row inside the caller's transaction and
// immediately marks it running with a start timestamp. The caller holds the
// per-tenant advisory lock for the transaction's lifetime, which serializes
// concurrent job creation for the same tenant.
func (s *Store) CreateJob(ctx context.Context, tx *sql.Tx, id, workspaceID string) (*ReindexJob, error) {
	const insert = `
		INSERT INTO search_reindex_jobs (id, workspace_id, status, created_at)
		VALUES ($1, $2, $3, now())`
	if _, err := tx.ExecContext(ctx, insert, id, workspaceID, JobPending); err != nil {
		return nil, fmt.Errorf("creating reindex job: %w", err)
	}

	const run = `
		UPDATE search_reindex_jobs
		SET status = $2, started_at = now()
		WHERE id = $1
		RETURNING started_at`
	var startedAt time.Time
	if err := tx.QueryRowContext(ctx, run, id, JobRunning).Scan(&startedAt); err != nil {
		return nil, fmt.Errorf("marking reindex job running: %w", err)
	}

	return &ReindexJob{
		ID:          id,
		WorkspaceID: workspaceID,
		Status:      JobRunning,
		StartedAt:   &startedAt,
	}, nil
}

// CompleteJob records a terminal status with final counts and an optional
// error summary.
func (s *Store) CompleteJob(ctx context.Context, id string, status JobStatus, total, indexed, failed int, errorReason string) error {
	const q = `
		UPDATE search_reindex_jobs
		SET status = $2,
		    total_documents = $3,
		    indexed_documents = $4,
		    failed_documents = $5,
		    error_reason = NULLIF($6, ''),
		    completed_at = now()
		WHERE id = $1`
	if _, err := s.client.DB.ExecContext(ctx, q, id, status, total, indexed, failed, errorReason); err != nil {
		return fmt.Errorf("completing reindex job %s: %w", id, err)
	}
	return nil
}

// LatestJob returns the most recent job for a workspace, or ErrNotFound
// when the tenant has never been reindexed.
func (s *Store) LatestJob(ctx context.Context, workspaceID string) (*ReindexJob, error) {
	const q = `
		SELECT id, workspace_id, status, total_documents, indexed_documents,
		       failed_documents, started_at, completed_at, error_reason
		FROM search_reindex_jobs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	var job ReindexJob
	err := s.client.DB.QueryRowContext(ctx, q, workspaceID).Scan(
		&job.ID, &job.WorkspaceID, &job.Status, &job.TotalDocuments,
		&job.IndexedDocuments, &job.FailedDocuments,
		&job.StartedAt, &job.CompletedAt, &job.ErrorReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf(errors.ErrNotFound, 404, "no reindex job for workspace %s", workspaceID)
		}
		return nil, fmt.Errorf("fetching latest reindex job: %w", err)
	}
	return &job, nil
}
