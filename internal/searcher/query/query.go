// Package query turns validated search queries into tenant-scoped engine
// requests and maps raw engine responses into typed, faceted results.
package query

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/gridstonehq/workspace-search/pkg/errors"
)

// Limits shared by validation and request building.
const (
	MaxQueryLength  = 500
	MinPageSize     = 1
	MaxPageSize     = 100
	MaxResultWindow = 10000

	FacetBucketSize   = 20
	HighlightFragSize = 150
	HighlightPreTag   = "<mark>"
	HighlightPostTag  = "</mark>"
)

// SearchableFields are the text fields a field-scoped query (`field:value`)
// may target, and the fields a free-text query spans.
var SearchableFields = []string{"name", "email", "company", "job_title", "location", "phone", "domain"}

// FilterableFields are the keyword fields usable in keyword-set filters and
// facets.
var FilterableFields = []string{"document_type", "provider_slug", "enrichment_status", "scrape_target_type", "tags"}

// SortableFields maps the accepted sort fields to the engine field actually
// sorted on. The display name sorts on its exact-match sub-field, not the
// analyzed field.
var SortableFields = map[string]string{
	"_score":     "_score",
	"name":       "name.keyword",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// DateRange bounds a date-range filter; either side may be empty.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Filters holds the keyword-set and date-range filters of a query.
type Filters struct {
	Keywords map[string][]string  `json:"keywords,omitempty"`
	Dates    map[string]DateRange `json:"dates,omitempty"`
}

// Sort names a sort field and direction.
type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Query is a validated user search query. Validate applies canonical
// defaults exactly once; a canonical query re-serializes stably.
type Query struct {
	Q         string   `json:"q"`
	Filters   Filters  `json:"filters"`
	Facets    []string `json:"facets"`
	Page      int      `json:"page"`
	PageSize  int      `json:"pageSize"`
	Sort      Sort     `json:"sort"`
	Fuzziness string   `json:"fuzziness"`
}

// Validate checks limits and allow-lists and fills canonical defaults.
// Validation failures are reported before any engine call.
func (q *Query) Validate() error {
	if utf8.RuneCountInString(q.Q) > MaxQueryLength {
		return errors.Validationf("query exceeds %d characters", MaxQueryLength)
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 20
	}
	if q.PageSize < MinPageSize || q.PageSize > MaxPageSize {
		return errors.Validationf("pageSize must be between %d and %d", MinPageSize, MaxPageSize)
	}
	if q.Page*q.PageSize > MaxResultWindow {
		return errors.Validationf("page %d with pageSize %d exceeds the %d result window", q.Page, q.PageSize, MaxResultWindow)
	}

	for field, values := range q.Filters.Keywords {
		if !contains(FilterableFields, field) {
			return errors.Validationf("filter field %q is not filterable", field)
		}
		if len(values) == 0 {
			delete(q.Filters.Keywords, field)
		}
	}
	for field := range q.Filters.Dates {
		if field != "created_at" && field != "updated_at" {
			return errors.Validationf("date filter field %q must be created_at or updated_at", field)
		}
		if r := q.Filters.Dates[field]; r.From == "" && r.To == "" {
			delete(q.Filters.Dates, field)
		}
	}

	if len(q.Facets) == 0 {
		q.Facets = append([]string(nil), FilterableFields...)
	} else {
		seen := make(map[string]bool, len(q.Facets))
		deduped := q.Facets[:0]
		for _, f := range q.Facets {
			if !contains(FilterableFields, f) {
				return errors.Validationf("facet field %q is not facetable", f)
			}
			if !seen[f] {
				seen[f] = true
				deduped = append(deduped, f)
			}
		}
		q.Facets = deduped
	}

	if q.Sort.Field == "" {
		q.Sort = Sort{Field: "_score", Direction: "desc"}
	}
	if _, ok := SortableFields[q.Sort.Field]; !ok {
		return errors.Validationf("sort field %q is not sortable", q.Sort.Field)
	}
	if q.Sort.Direction == "" {
		q.Sort.Direction = "desc"
	}
	if q.Sort.Direction != "asc" && q.Sort.Direction != "desc" {
		return errors.Validationf("sort direction must be asc or desc")
	}

	if q.Fuzziness == "" {
		q.Fuzziness = "AUTO"
	}
	return nil
}

// activeKeywordFilters returns the keyword filter fields with at least one
// value, in stable order.
func (q *Query) activeKeywordFilters() []string {
	fields := make([]string, 0, len(q.Filters.Keywords))
	for field, values := range q.Filters.Keywords {
		if len(values) > 0 {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

// activeDateFilters returns the date filter fields with at least one bound,
// in stable order.
func (q *Query) activeDateFilters() []string {
	fields := make([]string, 0, len(q.Filters.Dates))
	for field, r := range q.Filters.Dates {
		if r.From != "" || r.To != "" {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

// TotalPages computes the page count for a result total.
func TotalPages(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
