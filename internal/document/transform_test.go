package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFromEnrichmentIsIdempotent(t *testing.T) {
	r := EnrichmentRecord{
		ID:           "5f1d9a3e-0000-4000-8000-000000000001",
		WorkspaceID:  "5f1d9a3e-0000-4000-8000-0000000000ff",
		Name:         strPtr("Jane Cooper"),
		Email:        strPtr("jane@acme.dev"),
		ProviderSlug: strPtr("clearbit"),
		Status:       strPtr("completed"),
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}

	first := FromEnrichment(r)
	second := FromEnrichment(r)

	assert.Equal(t, first, second, "the same row must always map to the same document")
	assert.Equal(t, r.ID, first.RecordID)
	assert.Equal(t, TypeEnrichmentRecord, first.DocumentType)
	assert.Equal(t, "2026-03-01T12:00:00Z", first.CreatedAt)
	assert.Equal(t, "2026-03-02T09:30:00Z", first.UpdatedAt)
}

func TestFromWorkspaceRecordDocumentType(t *testing.T) {
	base := WorkspaceRecord{
		ID:          "5f1d9a3e-0000-4000-8000-000000000002",
		WorkspaceID: "5f1d9a3e-0000-4000-8000-0000000000ff",
		Name:        strPtr("Jane Cooper"),
	}

	contact := FromWorkspaceRecord(base)
	assert.Equal(t, TypeContact, contact.DocumentType)

	base.Company = strPtr("")
	emptyCompany := FromWorkspaceRecord(base)
	assert.Equal(t, TypeContact, emptyCompany.DocumentType, "empty company string is still a contact")

	base.Company = strPtr("Acme Corp")
	company := FromWorkspaceRecord(base)
	assert.Equal(t, TypeCompany, company.DocumentType)
}

func TestFromWorkspaceRecordCarriesTags(t *testing.T) {
	r := WorkspaceRecord{
		ID:          "5f1d9a3e-0000-4000-8000-000000000003",
		WorkspaceID: "5f1d9a3e-0000-4000-8000-0000000000ff",
		Tags:        []string{"lead", "priority"},
	}
	doc := FromWorkspaceRecord(r)
	assert.Equal(t, []string{"lead", "priority"}, doc.Tags)
}

func TestFromScrapeUsesTaskIDAsRecordID(t *testing.T) {
	r := ScrapeResult{
		TaskID:      "5f1d9a3e-0000-4000-8000-000000000004",
		WorkspaceID: "5f1d9a3e-0000-4000-8000-0000000000ff",
		JobID:       "5f1d9a3e-0000-4000-8000-000000000005",
		TargetType:  strPtr("company_page"),
		SourceURL:   strPtr("https://acme.dev/about"),
	}
	doc := FromScrape(r)
	assert.Equal(t, r.TaskID, doc.RecordID)
	assert.Equal(t, TypeScrapeResult, doc.DocumentType)
	assert.Equal(t, "company_page", *doc.ScrapeTargetType)
}

func TestTransformDispatch(t *testing.T) {
	enr := EnrichmentRecord{ID: "id-1", WorkspaceID: "ws-1"}
	doc, err := Transform(SourceEnrichment, enr)
	require.NoError(t, err)
	assert.Equal(t, TypeEnrichmentRecord, doc.DocumentType)

	rec := WorkspaceRecord{ID: "id-2", WorkspaceID: "ws-1"}
	doc, err = Transform(SourceRecord, rec)
	require.NoError(t, err)
	assert.Equal(t, TypeContact, doc.DocumentType)

	scr := ScrapeResult{TaskID: "id-3", WorkspaceID: "ws-1"}
	doc, err = Transform(SourceScrape, scr)
	require.NoError(t, err)
	assert.Equal(t, TypeScrapeResult, doc.DocumentType)
}

func TestTransformRejectsMismatchedSource(t *testing.T) {
	_, err := Transform(SourceEnrichment, WorkspaceRecord{})
	assert.Error(t, err)

	_, err = Transform(SourceKind("bogus"), EnrichmentRecord{})
	assert.Error(t, err)
}

func TestTimesAreNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	r := EnrichmentRecord{
		ID:          "id-1",
		WorkspaceID: "ws-1",
		CreatedAt:   time.Date(2026, 3, 1, 14, 0, 0, 0, loc),
		UpdatedAt:   time.Date(2026, 3, 1, 14, 0, 0, 0, loc),
	}
	doc := FromEnrichment(r)
	assert.Equal(t, "2026-03-01T12:00:00Z", doc.CreatedAt)
}
