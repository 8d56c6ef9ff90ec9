package elastic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexNameIsDeterministicPerTenant(t *testing.T) {
	a := IndexName("workspace-records", "ws-1")
	b := IndexName("workspace-records", "ws-1")
	assert.Equal(t, a, b)
	assert.Equal(t, "workspace-records-ws-1", a)
	assert.NotEqual(t, a, IndexName("workspace-records", "ws-2"))
}

func TestMappingV1Shape(t *testing.T) {
	var mapping map[string]any
	require.NoError(t, json.Unmarshal([]byte(MappingV1), &mapping))

	settings := mapping["settings"].(map[string]any)
	filter := settings["analysis"].(map[string]any)["filter"].(map[string]any)
	ngram := filter["autocomplete_edge_ngram"].(map[string]any)
	assert.Equal(t, "edge_ngram", ngram["type"])
	assert.Equal(t, float64(2), ngram["min_gram"])
	assert.Equal(t, float64(15), ngram["max_gram"])

	props := mapping["mappings"].(map[string]any)["properties"].(map[string]any)

	// Analyzed text fields carry the autocomplete analyzer and a keyword
	// sub-field.
	name := props["name"].(map[string]any)
	assert.Equal(t, "text", name["type"])
	assert.Equal(t, "autocomplete", name["analyzer"])
	assert.Equal(t, "autocomplete_search", name["search_analyzer"])
	keyword := name["fields"].(map[string]any)["keyword"].(map[string]any)
	assert.Equal(t, "keyword", keyword["type"])

	// Tenant scoping and facets are exact-match fields.
	for _, field := range []string{"workspace_id", "document_type", "provider_slug", "enrichment_status", "scrape_target_type", "tags"} {
		prop, ok := props[field].(map[string]any)
		require.True(t, ok, "missing property %s", field)
		assert.Equal(t, "keyword", prop["type"], "field %s", field)
	}

	for _, field := range []string{"created_at", "updated_at"} {
		prop := props[field].(map[string]any)
		assert.Equal(t, "date", prop["type"], "field %s", field)
	}

	raw := props["raw_payload"].(map[string]any)
	assert.Equal(t, false, raw["enabled"], "raw payload must never be indexed")
}
