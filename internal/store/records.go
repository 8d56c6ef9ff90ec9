// Package store provides read access to the primary relational store's
// source tables and owns the reindex job and index status tables. The
// search index is only ever populated from rows fetched here, never from
// notification payloads.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/gridstonehq/workspace-search/internal/document"
	"github.com/gridstonehq/workspace-search/pkg/errors"
	"github.com/gridstonehq/workspace-search/pkg/postgres"
)

// Store reads source records and owns the job/status tables.
type Store struct {
	client *postgres.Client
}

// New creates a Store on top of the pooled Postgres client.
func New(client *postgres.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying Postgres client for transaction control.
func (s *Store) Client() *postgres.Client {
	return s.client
}

// FetchEnrichmentRecord loads one enrichment row by id.
func (s *Store) FetchEnrichmentRecord(ctx context.Context, id string) (document.EnrichmentRecord, error) {
	const q = `
		SELECT id, workspace_id, name, email, company, job_title, location,
		       phone, domain, provider_slug, status, payload, created_at, updated_at
		FROM enrichment_records
		WHERE id = $1`
	var r document.EnrichmentRecord
	err := s.client.DB.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.WorkspaceID, &r.Name, &r.Email, &r.Company, &r.JobTitle,
		&r.Location, &r.Phone, &r.Domain, &r.ProviderSlug, &r.Status,
		&r.Payload, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return r, errors.Newf(errors.ErrNotFound, 404, "enrichment record %s", id)
		}
		return r, fmt.Errorf("fetching enrichment record %s: %w", id, err)
	}
	return r, nil
}

// FetchWorkspaceRecord loads one spreadsheet row by id.
func (s *Store) FetchWorkspaceRecord(ctx context.Context, id string) (document.WorkspaceRecord, error) {
	const q = `
		SELECT id, workspace_id, name, email, company, job_title, location,
		       phone, domain, tags, payload, created_at, updated_at
		FROM workspace_records
		WHERE id = $1`
	var r document.WorkspaceRecord
	err := s.client.DB.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.WorkspaceID, &r.Name, &r.Email, &r.Company, &r.JobTitle,
		&r.Location, &r.Phone, &r.Domain, pq.Array(&r.Tags),
		&r.Payload, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return r, errors.Newf(errors.ErrNotFound, 404, "workspace record %s", id)
		}
		return r, fmt.Errorf("fetching workspace record %s: %w", id, err)
	}
	return r, nil
}

// FetchScrapeResult loads one scrape result by task id.
func (s *Store) FetchScrapeResult(ctx context.Context, taskID string) (document.ScrapeResult, error) {
	const q = `
		SELECT task_id, workspace_id, job_id, name, company, domain,
		       target_type, source_url, payload, created_at, updated_at
		FROM scrape_results
		WHERE task_id = $1`
	var r document.ScrapeResult
	err := s.client.DB.QueryRowContext(ctx, q, taskID).Scan(
		&r.TaskID, &r.WorkspaceID, &r.JobID, &r.Name, &r.Company, &r.Domain,
		&r.TargetType, &r.SourceURL, &r.Payload, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return r, errors.Newf(errors.ErrNotFound, 404, "scrape result %s", taskID)
		}
		return r, fmt.Errorf("fetching scrape result %s: %w", taskID, err)
	}
	return r, nil
}

// FetchDocument resolves a record id of the given source kind into its
// search document.
func (s *Store) FetchDocument(ctx context.Context, kind document.SourceKind, id string) (document.Document, error) {
	switch kind {
	case document.SourceEnrichment:
		r, err := s.FetchEnrichmentRecord(ctx, id)
		if err != nil {
			return document.Document{}, err
		}
		return document.FromEnrichment(r), nil
	case document.SourceRecord:
		r, err := s.FetchWorkspaceRecord(ctx, id)
		if err != nil {
			return document.Document{}, err
		}
		return document.FromWorkspaceRecord(r), nil
	case document.SourceScrape:
		r, err := s.FetchScrapeResult(ctx, id)
		if err != nil {
			return document.Document{}, err
		}
		return document.FromScrape(r), nil
	default:
		return document.Document{}, fmt.Errorf("unknown source kind %q", kind)
	}
}

// FetchDocumentBatch returns up to limit documents of one source kind for a
// workspace, keyset-paginated by id. The returned cursor is the last id of
// the batch; an empty cursor fetches from the start.
func (s *Store) FetchDocumentBatch(ctx context.Context, kind document.SourceKind, workspaceID, cursor string, limit int) ([]document.Document, string, error) {
	switch kind {
	case document.SourceEnrichment:
		return s.fetchEnrichmentBatch(ctx, workspaceID, cursor, limit)
	case document.SourceRecord:
		return s.fetchWorkspaceRecordBatch(ctx, workspaceID, cursor, limit)
	case document.SourceScrape:
		return s.fetchScrapeBatch(ctx, workspaceID, cursor, limit)
	default:
		return nil, "", fmt.Errorf("unknown source kind %q", kind)
	}
}

func (s *Store) fetchEnrichmentBatch(ctx context.Context, workspaceID, cursor string, limit int) ([]document.Document, string, error) {
	const q = `
		SELECT id, workspace_id, name, email, company, job_title, location,
		       phone, domain, provider_slug, status, payload, created_at, updated_at
		FROM enrichment_records
		WHERE workspace_id = $1 AND ($2 = '' OR id > $2::uuid)
		ORDER BY id
		LIMIT $3`
	rows, err := s.client.DB.QueryContext(ctx, q, workspaceID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("listing enrichment records: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	var lastID string
	for rows.Next() {
		var r document.EnrichmentRecord
		if err := rows.Scan(
			&r.ID, &r.WorkspaceID, &r.Name, &r.Email, &r.Company, &r.JobTitle,
			&r.Location, &r.Phone, &r.Domain, &r.ProviderSlug, &r.Status,
			&r.Payload, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, "", fmt.Errorf("scanning enrichment record: %w", err)
		}
		docs = append(docs, document.FromEnrichment(r))
		lastID = r.ID
	}
	return docs, lastID, rows.Err()
}

func (s *Store) fetchWorkspaceRecordBatch(ctx context.Context, workspaceID, cursor string, limit int) ([]document.Document, string, error) {
	const q = `
		SELECT id, workspace_id, name, email, company, job_title, location,
		       phone, domain, tags, payload, created_at, updated_at
		FROM workspace_records
		WHERE workspace_id = $1 AND ($2 = '' OR id > $2::uuid)
		ORDER BY id
		LIMIT $3`
	rows, err := s.client.DB.QueryContext(ctx, q, workspaceID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("listing workspace records: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	var lastID string
	for rows.Next() {
		var r document.WorkspaceRecord
		if err := rows.Scan(
			&r.ID, &r.WorkspaceID, &r.Name, &r.Email, &r.Company, &r.JobTitle,
			&r.Location, &r.Phone, &r.Domain, pq.Array(&r.Tags),
			&r.Payload, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, "", fmt.Errorf("scanning workspace record: %w", err)
		}
		docs = append(docs, document.FromWorkspaceRecord(r))
		lastID = r.ID
	}
	return docs, lastID, rows.Err()
}

func (s *Store) fetchScrapeBatch(ctx context.Context, workspaceID, cursor string, limit int) ([]document.Document, string, error) {
	const q = `
		SELECT task_id, workspace_id, job_id, name, company, domain,
		       target_type, source_url, payload, created_at, updated_at
		FROM scrape_results
		WHERE workspace_id = $1 AND ($2 = '' OR task_id > $2::uuid)
		ORDER BY task_id
		LIMIT $3`
	rows, err := s.client.DB.QueryContext(ctx, q, workspaceID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("listing scrape results: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	var lastID string
	for rows.Next() {
		var r document.ScrapeResult
		if err := rows.Scan(
			&r.TaskID, &r.WorkspaceID, &r.JobID, &r.Name, &r.Company, &r.Domain,
			&r.TargetType, &r.SourceURL, &r.Payload, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, "", fmt.Errorf("scanning scrape result: %w", err)
		}
		docs = append(docs, document.FromScrape(r))
		lastID = r.TaskID
	}
	return docs, lastID, rows.Err()
}
