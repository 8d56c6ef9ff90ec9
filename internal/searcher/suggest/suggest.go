// Package suggest implements cache-checked autocomplete: a tenant-scoped
// prefix query over the display-name, company, and job-title fields with
// client-side frequency ranking of the candidate values.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/gridstonehq/workspace-search/internal/cache"
	"github.com/gridstonehq/workspace-search/internal/elastic"
	"github.com/gridstonehq/workspace-search/pkg/errors"
)

const (
	// MinPrefixLength is the shortest prefix worth suggesting on.
	MinPrefixLength = 2
	// DefaultTTL is how long a computed suggestion list stays cached.
	DefaultTTL = 30 * time.Second
	// DefaultMaxCandidates bounds the engine hits scanned per prefix.
	DefaultMaxCandidates = 50
	// DefaultMaxResults bounds the returned suggestion list.
	DefaultMaxResults = 10
)

var suggestFields = []string{"name", "company", "job_title"}

// Searcher is the slice of the engine client the suggest engine needs.
type Searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*elastic.SearchResponse, error)
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Engine serves autocomplete suggestions.
type Engine struct {
	searcher      Searcher
	cache         *cache.Cache[[]string]
	indexPrefix   string
	ttl           time.Duration
	maxCandidates int
	maxResults    int
	group         singleflight.Group
	logger        *slog.Logger

	onHit  func()
	onMiss func()
}

// Option tweaks an Engine.
type Option func(*Engine)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithLimits overrides the candidate and result limits.
func WithLimits(maxCandidates, maxResults int) Option {
	return func(e *Engine) {
		if maxCandidates > 0 {
			e.maxCandidates = maxCandidates
		}
		if maxResults > 0 {
			e.maxResults = maxResults
		}
	}
}

// WithCounters registers hit/miss callbacks (metrics hooks).
func WithCounters(onHit, onMiss func()) Option {
	return func(e *Engine) {
		e.onHit = onHit
		e.onMiss = onMiss
	}
}

// NewEngine creates a suggest Engine using the given cache and searcher.
func NewEngine(searcher Searcher, c *cache.Cache[[]string], indexPrefix string, opts ...Option) *Engine {
	e := &Engine{
		searcher:      searcher,
		cache:         c,
		indexPrefix:   indexPrefix,
		ttl:           DefaultTTL,
		maxCandidates: DefaultMaxCandidates,
		maxResults:    DefaultMaxResults,
		logger:        slog.Default().With("component", "suggest-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CacheKey returns the tenant-scoped cache key for a prefix.
func CacheKey(workspaceID, prefix string) string {
	return fmt.Sprintf("search:%s:suggest:%s", workspaceID, prefix)
}

// TenantPrefix returns the invalidation prefix covering every cached entry
// of a tenant.
func TenantPrefix(workspaceID string) string {
	return fmt.Sprintf("search:%s:", workspaceID)
}

// Suggest returns up to maxResults canonical values matching prefix,
// ordered by descending frequency among the candidate hits. Results are
// cached per tenant+prefix; a cache hit never touches the engine.
func (e *Engine) Suggest(ctx context.Context, workspaceID, prefix string) ([]string, error) {
	if utf8.RuneCountInString(strings.TrimSpace(prefix)) < MinPrefixLength {
		return nil, errors.Validationf("prefix must be at least %d characters", MinPrefixLength)
	}

	key := CacheKey(workspaceID, prefix)
	if cached, ok := e.cache.Get(key); ok {
		if e.onHit != nil {
			e.onHit()
		}
		return cached, nil
	}
	if e.onMiss != nil {
		e.onMiss()
	}

	// Collapse concurrent computations of the same tenant+prefix.
	val, err, _ := e.group.Do(key, func() (any, error) {
		if cached, ok := e.cache.Get(key); ok {
			return cached, nil
		}
		suggestions, err := e.compute(ctx, workspaceID, prefix)
		if err != nil {
			return nil, err
		}
		e.cache.Set(key, suggestions, e.ttl)
		return suggestions, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]string), nil
}

func (e *Engine) compute(ctx context.Context, workspaceID, prefix string) ([]string, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{
						"multi_match": map[string]any{
							"query":  prefix,
							"fields": suggestFields,
							"type":   "phrase_prefix",
						},
					},
				},
				"filter": []map[string]any{
					{"term": map[string]any{"workspace_id": workspaceID}},
				},
			},
		},
		"size":    e.maxCandidates,
		"_source": suggestFields,
	}

	index := elastic.IndexName(e.indexPrefix, workspaceID)
	raw, err := e.searcher.Search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	suggestions := rankCandidates(raw, e.maxResults)
	e.logger.Debug("suggestions computed",
		"workspace_id", workspaceID,
		"prefix", prefix,
		"candidates", len(raw.Hits.Hits),
		"returned", len(suggestions),
	)
	return suggestions, nil
}

// rankCandidates groups field values case-insensitively, remembers one
// canonical (original-case, trimmed) spelling per group, and returns the
// top values by frequency with a stable first-seen tie-break.
func rankCandidates(raw *elastic.SearchResponse, limit int) []string {
	type group struct {
		canonical string
		count     int
		firstSeen int
	}
	groups := make(map[string]*group)
	order := 0

	for _, hit := range raw.Hits.Hits {
		var source struct {
			Name     *string `json:"name"`
			Company  *string `json:"company"`
			JobTitle *string `json:"job_title"`
		}
		if err := json.Unmarshal(hit.Source, &source); err != nil {
			continue
		}
		for _, field := range []*string{source.Name, source.Company, source.JobTitle} {
			if field == nil {
				continue
			}
			trimmed := strings.TrimSpace(*field)
			if trimmed == "" {
				continue
			}
			lowered := strings.ToLower(trimmed)
			if g, ok := groups[lowered]; ok {
				g.count++
			} else {
				groups[lowered] = &group{canonical: trimmed, count: 1, firstSeen: order}
				order++
			}
		}
	}

	ranked := make([]*group, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, g)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].firstSeen < ranked[j].firstSeen
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, 0, len(ranked))
	for _, g := range ranked {
		out = append(out, g.canonical)
	}
	return out
}
