// Package document defines the canonical search document and the pure
// transformers that map each source-record shape onto it. The transformers
// are the unit that guarantees idempotent indexing: the same source row
// always yields the same RecordID, which the bulk indexer uses as the
// document's stable key, so re-indexing overwrites rather than duplicates.
package document

import (
	"encoding/json"
	"time"
)

// SourceKind tags the three upstream tables that feed the index.
type SourceKind string

const (
	SourceEnrichment SourceKind = "enrichment_record"
	SourceRecord     SourceKind = "workspace_record"
	SourceScrape     SourceKind = "scrape_result"
)

// DocumentType is the derived type facet of a search document.
type DocumentType string

const (
	TypeEnrichmentRecord DocumentType = "enrichment_record"
	TypeContact          DocumentType = "contact"
	TypeCompany          DocumentType = "company"
	TypeScrapeResult     DocumentType = "scrape_result"
)

// Document is the canonical per-tenant search document.
type Document struct {
	DocumentType DocumentType `json:"document_type"`
	RecordID     string       `json:"record_id"`
	WorkspaceID  string       `json:"workspace_id"`

	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Company  *string `json:"company"`
	JobTitle *string `json:"job_title"`
	Location *string `json:"location"`
	Phone    *string `json:"phone"`
	Domain   *string `json:"domain"`

	ProviderSlug     *string  `json:"provider_slug"`
	EnrichmentStatus *string  `json:"enrichment_status"`
	ScrapeTargetType *string  `json:"scrape_target_type"`
	SourceURL        *string  `json:"source_url"`
	Tags             []string `json:"tags"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// RawPayload is stored for display but never indexed.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// EnrichmentRecord is a row from the enrichment results table.
type EnrichmentRecord struct {
	ID           string
	WorkspaceID  string
	Name         *string
	Email        *string
	Company      *string
	JobTitle     *string
	Location     *string
	Phone        *string
	Domain       *string
	ProviderSlug *string
	Status       *string
	Payload      json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkspaceRecord is a contact or company row in the workspace spreadsheet.
// Whether it surfaces as a contact or a company document depends on the
// company field (see FromWorkspaceRecord).
type WorkspaceRecord struct {
	ID          string
	WorkspaceID string
	Name        *string
	Email       *string
	Company     *string
	JobTitle    *string
	Location    *string
	Phone       *string
	Domain      *string
	Tags        []string
	Payload     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScrapeResult is a completed scrape task row.
type ScrapeResult struct {
	TaskID      string
	WorkspaceID string
	JobID       string
	Name        *string
	Company     *string
	Domain      *string
	TargetType  *string
	SourceURL   *string
	Payload     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
