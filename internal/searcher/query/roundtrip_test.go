package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridstonehq/workspace-search/internal/document"
)

func TestValidatedQueryRoundTripsToCanonicalForm(t *testing.T) {
	original := validated(t, &Query{
		Q: "name:Jane",
		Filters: Filters{
			Keywords: map[string][]string{
				"document_type": {"contact"},
				"tags":          {"prospect", "warm"},
			},
			Dates: map[string]DateRange{
				"created_at": {From: "2025-01-01T00:00:00Z"},
			},
		},
		Facets:   []string{"tags", "document_type"},
		Page:     3,
		PageSize: 25,
		Sort:     Sort{Field: "name", Direction: "asc"},
	})

	first, err := json.Marshal(original)
	require.NoError(t, err)

	var parsed Query
	require.NoError(t, json.Unmarshal(first, &parsed))
	require.NoError(t, parsed.Validate())
	assert.Equal(t, original, &parsed, "canonical form survives serialize/parse/validate")

	second, err := json.Marshal(&parsed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidatedQueryDefaultsRoundTrip(t *testing.T) {
	// A minimal query picks up every default; the filled-in form must be
	// a fixed point of another validation pass.
	q := validated(t, &Query{Q: "jane"})

	raw, err := json.Marshal(q)
	require.NoError(t, err)

	var parsed Query
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.NoError(t, parsed.Validate())
	assert.Equal(t, q, &parsed)
	assert.Equal(t, FilterableFields, parsed.Facets)
	assert.Equal(t, Sort{Field: "_score", Direction: "desc"}, parsed.Sort)
}

func TestResponseSerializationIsStable(t *testing.T) {
	name := "Jane Cooper"
	company := "Globex"
	resp := &Response{
		Data: []Result{{
			Document: document.Document{
				DocumentType: document.TypeContact,
				RecordID:     "11111111-1111-4111-8111-111111111111",
				WorkspaceID:  "22222222-2222-4222-8222-222222222222",
				Name:         &name,
				Company:      &company,
				Tags:         []string{"prospect"},
				CreatedAt:    "2025-05-01T09:30:00Z",
				UpdatedAt:    "2025-05-02T09:30:00Z",
			},
			Score:      4.2,
			Highlights: map[string][]string{"name": {"<mark>Jane</mark> Cooper"}},
		}},
		Meta: Meta{
			Total:           41,
			Page:            1,
			PageSize:        20,
			TotalPages:      3,
			ExecutionTimeMs: 12,
			Facets: map[string][]FacetBucket{
				"tags":          {{Value: "prospect", Count: 41}},
				"document_type": {{Value: "contact", Count: 40}, {Value: "company", Count: 1}},
			},
		},
	}

	first, err := json.Marshal(resp)
	require.NoError(t, err)
	second, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-serialization is byte-identical")

	var parsed Response
	require.NoError(t, json.Unmarshal(first, &parsed))
	third, err := json.Marshal(&parsed)
	require.NoError(t, err)
	assert.Equal(t, first, third, "serialization survives a parse round trip")
}
