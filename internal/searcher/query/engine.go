package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridstonehq/workspace-search/internal/document"
	"github.com/gridstonehq/workspace-search/internal/elastic"
)

// Searcher is the slice of the engine client the query engine needs.
type Searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*elastic.SearchResponse, error)
}

// Result is one mapped search hit.
type Result struct {
	document.Document
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// FacetBucket is one value/count pair of a facet.
type FacetBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Meta carries pagination and facet information alongside results.
type Meta struct {
	Total           int                      `json:"total"`
	Page            int                      `json:"page"`
	PageSize        int                      `json:"pageSize"`
	TotalPages      int                      `json:"totalPages"`
	ExecutionTimeMs int64                    `json:"executionTimeMs"`
	Facets          map[string][]FacetBucket `json:"facets"`
}

// Response is the full query response.
type Response struct {
	Data []Result `json:"data"`
	Meta Meta     `json:"meta"`
}

// Engine validates queries, builds tenant-scoped requests, and maps raw
// engine responses.
type Engine struct {
	searcher    Searcher
	indexPrefix string
	logger      *slog.Logger
}

// NewEngine creates a query Engine on top of a Searcher.
func NewEngine(searcher Searcher, indexPrefix string) *Engine {
	return &Engine{
		searcher:    searcher,
		indexPrefix: indexPrefix,
		logger:      slog.Default().With("component", "query-engine"),
	}
}

// Search validates q, executes it scoped to the workspace, and returns the
// mapped response. Validation failures never reach the engine.
func (e *Engine) Search(ctx context.Context, workspaceID string, q *Query) (*Response, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	body := BuildRequest(q, workspaceID)
	index := elastic.IndexName(e.indexPrefix, workspaceID)
	raw, err := e.searcher.Search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	resp, err := MapResponse(raw, q)
	if err != nil {
		return nil, err
	}
	resp.Meta.ExecutionTimeMs = time.Since(start).Milliseconds()
	e.logger.Debug("query executed",
		"workspace_id", workspaceID,
		"q", q.Q,
		"total", resp.Meta.Total,
		"took_ms", resp.Meta.ExecutionTimeMs,
	)
	return resp, nil
}

// MapResponse converts a raw engine response into the typed result set.
// Zero-count facet buckets are dropped even if the engine returned them.
func MapResponse(raw *elastic.SearchResponse, q *Query) (*Response, error) {
	results := make([]Result, 0, len(raw.Hits.Hits))
	for _, hit := range raw.Hits.Hits {
		var doc document.Document
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decoding hit %s: %w", hit.ID, err)
		}
		results = append(results, Result{
			Document:   doc,
			Score:      hit.Score,
			Highlights: hit.Highlight,
		})
	}

	facets := make(map[string][]FacetBucket, len(raw.Aggregations))
	for name, agg := range raw.Aggregations {
		buckets := make([]FacetBucket, 0, len(agg.Buckets))
		for _, b := range agg.Buckets {
			if b.DocCount < 1 {
				continue
			}
			buckets = append(buckets, FacetBucket{Value: b.Key, Count: b.DocCount})
		}
		facets[name] = buckets
	}

	total := raw.Hits.Total.Value
	return &Response{
		Data: results,
		Meta: Meta{
			Total:      total,
			Page:       q.Page,
			PageSize:   q.PageSize,
			TotalPages: TotalPages(total, q.PageSize),
			Facets:     facets,
		},
	}, nil
}
