package query

import (
	"strings"
)

// reservedChars are the engine's query-syntax metacharacters escaped in
// free-text input. The two-character operators && and || are handled
// separately.
var reservedChars = []string{
	"\\", "+", "-", "=", ">", "<", "!", "(", ")", "{", "}",
	"[", "]", "^", "\"", "~", "*", "?", ":", "/",
}

// EscapeQueryString escapes engine metacharacters in free-text input so it
// cannot alter query structure.
func EscapeQueryString(s string) string {
	// Backslash must be escaped first so it does not double-escape the rest.
	for _, ch := range reservedChars {
		s = strings.ReplaceAll(s, ch, "\\"+ch)
	}
	s = strings.ReplaceAll(s, "&&", "\\&&")
	s = strings.ReplaceAll(s, "||", "\\||")
	return s
}

// parseFieldScoped splits q as `field:value` when field is an allow-listed
// searchable field. Anything else (no colon, unknown field, empty value)
// is treated as free text.
func parseFieldScoped(q string) (field, value string, ok bool) {
	idx := strings.Index(q, ":")
	if idx <= 0 || idx == len(q)-1 {
		return "", "", false
	}
	field = q[:idx]
	value = q[idx+1:]
	if !contains(SearchableFields, field) {
		return "", "", false
	}
	return field, value, true
}

// BuildRequest constructs the engine request body for a validated query.
// Every request carries the mandatory workspace term filter; the total
// filter clause count is 1 (tenant) + active keyword filters + active date
// filters.
func BuildRequest(q *Query, workspaceID string) map[string]any {
	var match map[string]any
	if field, value, ok := parseFieldScoped(q.Q); ok {
		match = map[string]any{
			"match": map[string]any{
				field: map[string]any{
					"query":     value,
					"fuzziness": q.Fuzziness,
				},
			},
		}
	} else if strings.TrimSpace(q.Q) != "" {
		match = map[string]any{
			"multi_match": map[string]any{
				"query":     EscapeQueryString(q.Q),
				"fields":    SearchableFields,
				"type":      "best_fields",
				"fuzziness": q.Fuzziness,
			},
		}
	} else {
		match = map[string]any{"match_all": map[string]any{}}
	}

	filters := []map[string]any{
		{"term": map[string]any{"workspace_id": workspaceID}},
	}
	for _, field := range q.activeKeywordFilters() {
		filters = append(filters, map[string]any{
			"terms": map[string]any{field: q.Filters.Keywords[field]},
		})
	}
	for _, field := range q.activeDateFilters() {
		bounds := map[string]any{}
		r := q.Filters.Dates[field]
		if r.From != "" {
			bounds["gte"] = r.From
		}
		if r.To != "" {
			bounds["lte"] = r.To
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{field: bounds},
		})
	}

	highlightFields := map[string]any{}
	for _, field := range SearchableFields {
		highlightFields[field] = map[string]any{}
	}

	aggs := map[string]any{}
	for _, facet := range q.Facets {
		aggs[facet] = map[string]any{
			"terms": map[string]any{
				"field":         facet,
				"size":          FacetBucketSize,
				"min_doc_count": 1,
			},
		}
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []map[string]any{match},
				"filter": filters,
			},
		},
		"from": (q.Page - 1) * q.PageSize,
		"size": q.PageSize,
		"highlight": map[string]any{
			"pre_tags":      []string{HighlightPreTag},
			"post_tags":     []string{HighlightPostTag},
			"fragment_size": HighlightFragSize,
			"fields":        highlightFields,
		},
	}
	if len(aggs) > 0 {
		body["aggs"] = aggs
	}
	if q.Sort.Field != "_score" || q.Sort.Direction != "desc" {
		body["sort"] = []map[string]any{
			{SortableFields[q.Sort.Field]: map[string]any{"order": q.Sort.Direction}},
		}
	}
	return body
}
