package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gridstonehq/workspace-search/pkg/errors"
)

// IndexState is the operational state of a tenant's index.
type IndexState string

const (
	IndexReady    IndexState = "ready"
	IndexBuilding IndexState = "building"
	IndexError    IndexState = "error"
)

// IndexStatus is per-tenant operational visibility into the index. It is
// updated after every successful flush or reindex and never consulted for
// query correctness.
type IndexStatus struct {
	WorkspaceID   string     `json:"workspaceId"`
	LastIndexedAt *time.Time `json:"lastIndexedAt,omitempty"`
	DocumentCount int64      `json:"documentCount"`
	IndexVersion  string     `json:"indexVersion"`
	Status        IndexState `json:"status"`
	ErrorReason   *string    `json:"errorReason,omitempty"`
}

// UpsertIndexStatus records the tenant's index state after a flush or
// reindex.
func (s *Store) UpsertIndexStatus(ctx context.Context, st IndexStatus) error {
	const q = `
		INSERT INTO search_index_status
			(workspace_id, last_indexed_at, document_count, index_version, status, error_reason)
		VALUES ($1, now(), $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (workspace_id) DO UPDATE SET
			last_indexed_at = now(),
			document_count = EXCLUDED.document_count,
			index_version = EXCLUDED.index_version,
			status = EXCLUDED.status,
			error_reason = EXCLUDED.error_reason`
	errorReason := ""
	if st.ErrorReason != nil {
		errorReason = *st.ErrorReason
	}
	if _, err := s.client.DB.ExecContext(ctx, q,
		st.WorkspaceID, st.DocumentCount, st.IndexVersion, st.Status, errorReason,
	); err != nil {
		return fmt.Errorf("upserting index status for %s: %w", st.WorkspaceID, err)
	}
	return nil
}

// GetIndexStatus returns the tenant's index status, or ErrNotFound when the
// tenant has never been indexed.
func (s *Store) GetIndexStatus(ctx context.Context, workspaceID string) (*IndexStatus, error) {
	const q = `
		SELECT workspace_id, last_indexed_at, document_count, index_version, status, error_reason
		FROM search_index_status
		WHERE workspace_id = $1`
	var st IndexStatus
	err := s.client.DB.QueryRowContext(ctx, q, workspaceID).Scan(
		&st.WorkspaceID, &st.LastIndexedAt, &st.DocumentCount,
		&st.IndexVersion, &st.Status, &st.ErrorReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Newf(errors.ErrNotFound, 404, "no index status for workspace %s", workspaceID)
		}
		return nil, fmt.Errorf("fetching index status: %w", err)
	}
	return &st, nil
}
