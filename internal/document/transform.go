package document

import (
	"fmt"
	"time"
)

// FromEnrichment maps an enrichment row to its search document.
func FromEnrichment(r EnrichmentRecord) Document {
	return Document{
		DocumentType:     TypeEnrichmentRecord,
		RecordID:         r.ID,
		WorkspaceID:      r.WorkspaceID,
		Name:             r.Name,
		Email:            r.Email,
		Company:          r.Company,
		JobTitle:         r.JobTitle,
		Location:         r.Location,
		Phone:            r.Phone,
		Domain:           r.Domain,
		ProviderSlug:     r.ProviderSlug,
		EnrichmentStatus: r.Status,
		CreatedAt:        formatTime(r.CreatedAt),
		UpdatedAt:        formatTime(r.UpdatedAt),
		RawPayload:       r.Payload,
	}
}

// FromWorkspaceRecord maps a spreadsheet row to its search document. The
// row surfaces as a company document iff its company field is non-empty,
// otherwise as a contact.
func FromWorkspaceRecord(r WorkspaceRecord) Document {
	docType := TypeContact
	if r.Company != nil && *r.Company != "" {
		docType = TypeCompany
	}
	return Document{
		DocumentType: docType,
		RecordID:     r.ID,
		WorkspaceID:  r.WorkspaceID,
		Name:         r.Name,
		Email:        r.Email,
		Company:      r.Company,
		JobTitle:     r.JobTitle,
		Location:     r.Location,
		Phone:        r.Phone,
		Domain:       r.Domain,
		Tags:         r.Tags,
		CreatedAt:    formatTime(r.CreatedAt),
		UpdatedAt:    formatTime(r.UpdatedAt),
		RawPayload:   r.Payload,
	}
}

// FromScrape maps a scrape result to its search document. The task id is
// the stable record id.
func FromScrape(r ScrapeResult) Document {
	return Document{
		DocumentType:     TypeScrapeResult,
		RecordID:         r.TaskID,
		WorkspaceID:      r.WorkspaceID,
		Name:             r.Name,
		Company:          r.Company,
		Domain:           r.Domain,
		ScrapeTargetType: r.TargetType,
		SourceURL:        r.SourceURL,
		CreatedAt:        formatTime(r.CreatedAt),
		UpdatedAt:        formatTime(r.UpdatedAt),
		RawPayload:       r.Payload,
	}
}

// Transform dispatches on the source kind. The source value must be the
// record type matching the kind.
func Transform(kind SourceKind, source any) (Document, error) {
	switch kind {
	case SourceEnrichment:
		r, ok := source.(EnrichmentRecord)
		if !ok {
			return Document{}, fmt.Errorf("transform: %s source has type %T", kind, source)
		}
		return FromEnrichment(r), nil
	case SourceRecord:
		r, ok := source.(WorkspaceRecord)
		if !ok {
			return Document{}, fmt.Errorf("transform: %s source has type %T", kind, source)
		}
		return FromWorkspaceRecord(r), nil
	case SourceScrape:
		r, ok := source.(ScrapeResult)
		if !ok {
			return Document{}, fmt.Errorf("transform: %s source has type %T", kind, source)
		}
		return FromScrape(r), nil
	default:
		return Document{}, fmt.Errorf("transform: unknown source kind %q", kind)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
