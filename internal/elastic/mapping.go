package elastic

import "fmt"

// MappingVersion identifies the index schema below. Bump it together with
// any mapping change; a reindex recreates indices on the current version.
const MappingVersion = "v1"

// IndexName returns the deterministic index name for a tenant. The same
// workspace id always yields the same name.
func IndexName(prefix, workspaceID string) string {
	return fmt.Sprintf("%s-%s", prefix, workspaceID)
}

// MappingV1 is the fixed index schema. Text fields are analyzed with an
// edge n-gram autocomplete analyzer at index time and a plain analyzer at
// search time, and carry a keyword sub-field for sorting and aggregation.
// The raw payload is stored but never indexed.
const MappingV1 = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 1,
    "analysis": {
      "filter": {
        "autocomplete_edge_ngram": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 15
        }
      },
      "analyzer": {
        "autocomplete": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding", "autocomplete_edge_ngram"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "document_type":      {"type": "keyword"},
      "record_id":          {"type": "keyword"},
      "workspace_id":       {"type": "keyword"},
      "name":               {"type": "text", "analyzer": "autocomplete", "search_analyzer": "autocomplete_search", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "email":              {"type": "text", "analyzer": "autocomplete", "search_analyzer": "autocomplete_search", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "company":            {"type": "text", "analyzer": "autocomplete", "search_analyzer": "autocomplete_search", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "job_title":          {"type": "text", "analyzer": "autocomplete", "search_analyzer": "autocomplete_search", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "location":           {"type": "text", "analyzer": "autocomplete", "search_analyzer": "autocomplete_search", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "phone":              {"type": "text", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "domain":             {"type": "text", "analyzer": "autocomplete", "search_analyzer": "autocomplete_search", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "provider_slug":      {"type": "keyword"},
      "enrichment_status":  {"type": "keyword"},
      "scrape_target_type": {"type": "keyword"},
      "source_url":         {"type": "keyword"},
      "tags":               {"type": "keyword"},
      "created_at":         {"type": "date"},
      "updated_at":         {"type": "date"},
      "raw_payload":        {"type": "object", "enabled": false}
    }
  }
}`
