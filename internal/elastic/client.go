// Package elastic wraps the go-elasticsearch client with the operations
// this service needs: idempotent index lifecycle, bulk upsert/delete,
// query execution, and health. It also owns the translation of transport
// failures into the service error taxonomy: deadline and engine-reported
// timeouts surface as ErrTimeout, unreachable-engine conditions as
// ErrUnavailable.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/gridstonehq/workspace-search/pkg/config"
	"github.com/gridstonehq/workspace-search/pkg/errors"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
	"github.com/gridstonehq/workspace-search/pkg/resilience"
)

// Client wraps an Elasticsearch connection.
type Client struct {
	es      *elasticsearch.Client
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a Client from configuration. The circuit breaker guards
// query-path calls; an open circuit reports ErrUnavailable without touching
// the engine. m may be nil.
func NewClient(cfg config.ElasticsearchConfig, m *metrics.Metrics) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breakerCfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Client{
		es:      es,
		timeout: timeout,
		breaker: resilience.NewCircuitBreaker("elasticsearch", breakerCfg),
		logger:  slog.Default().With("component", "elastic-client"),
	}, nil
}

// Ping checks connectivity to the cluster.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return c.transportError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Newf(errors.ErrUnavailable, 503, "cluster ping returned %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the index with the fixed v1 mapping. An index that
// already exists is success, not error.
func (c *Client) EnsureIndex(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.es.Indices.Create(
		name,
		c.es.Indices.Create.WithBody(strings.NewReader(MappingV1)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return c.transportError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			c.logger.Debug("index already exists", "index", name)
			return nil
		}
		return fmt.Errorf("creating index %s: %s: %s", name, res.Status(), body)
	}
	c.logger.Info("index created", "index", name, "mapping_version", MappingVersion)
	return nil
}

// DeleteIndex removes the index. A missing index is success, not error.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.es.Indices.Delete(
		[]string{name},
		c.es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return c.transportError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode == 404 {
			c.logger.Debug("index already absent", "index", name)
			return nil
		}
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("deleting index %s: %s: %s", name, res.Status(), body)
	}
	c.logger.Info("index deleted", "index", name)
	return nil
}

// BulkAction is one line pair of the bulk protocol: an upsert carries a
// document, a delete is action-only.
type BulkAction struct {
	Op    string // "index" or "delete"
	Index string
	ID    string
	Doc   any // nil for deletes
}

// BulkItemError describes one failed item within a bulk response.
type BulkItemError struct {
	ID     string
	Status int
	Type   string
	Reason string
}

// BulkResult summarises a bulk submission.
type BulkResult struct {
	Took       int
	Succeeded  int
	Failed     int
	ItemErrors []BulkItemError
}

type bulkResponse struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk submits the actions to the bulk endpoint. A 2xx response with
// item-level failures is still a delivered batch: item errors are returned
// for the caller to log and count, not as an error.
func (c *Client) Bulk(ctx context.Context, actions []BulkAction) (*BulkResult, error) {
	if len(actions) == 0 {
		return &BulkResult{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range actions {
		meta := map[string]map[string]string{
			a.Op: {"_index": a.Index, "_id": a.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encoding bulk action: %w", err)
		}
		if a.Op == "index" {
			if err := enc.Encode(a.Doc); err != nil {
				return nil, fmt.Errorf("encoding bulk document %s: %w", a.ID, err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk request failed: %s: %s", res.Status(), body)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}
	result := &BulkResult{Took: parsed.Took}
	for _, item := range parsed.Items {
		for _, detail := range item {
			if detail.Error != nil {
				result.Failed++
				result.ItemErrors = append(result.ItemErrors, BulkItemError{
					ID:     detail.ID,
					Status: detail.Status,
					Type:   detail.Error.Type,
					Reason: detail.Error.Reason,
				})
			} else {
				result.Succeeded++
			}
		}
	}
	return result, nil
}

// Hit is one search hit with its relevance score, source document, and any
// highlight fragments.
type Hit struct {
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

// TermsBucket is one facet bucket.
type TermsBucket struct {
	Key      string `json:"key"`
	DocCount int    `json:"doc_count"`
}

// Aggregation holds the buckets of a terms aggregation.
type Aggregation struct {
	Buckets []TermsBucket `json:"buckets"`
}

// SearchResponse is the typed shape of the engine's search reply.
type SearchResponse struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Hits     struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]Aggregation `json:"aggregations"`
}

// Search executes a query body against the index, behind the circuit
// breaker. An engine-reported timed_out flag is surfaced as ErrTimeout.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) (*SearchResponse, error) {
	var response *SearchResponse
	err := c.breaker.Execute(func() error {
		var execErr error
		response, execErr = c.doSearch(ctx, index, body)
		return execErr
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, errors.Newf(errors.ErrUnavailable, 503, "search engine circuit open")
		}
		return nil, err
	}
	return response, nil
}

func (c *Client) doSearch(ctx context.Context, index string, body map[string]any) (*SearchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encoding search body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		respBody, _ := io.ReadAll(res.Body)
		if res.StatusCode == 404 {
			return nil, errors.Newf(errors.ErrNotFound, 404, "index %s not found", index)
		}
		return nil, fmt.Errorf("search failed: %s: %s", res.Status(), respBody)
	}

	var parsed SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if parsed.TimedOut {
		return nil, errors.Newf(errors.ErrTimeout, 504, "engine reported query timeout after %dms", parsed.Took)
	}
	return &parsed, nil
}

// Count returns the number of documents in the index, 0 when it is absent.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
	)
	if err != nil {
		return 0, c.transportError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode == 404 {
			return 0, nil
		}
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count failed: %s: %s", res.Status(), body)
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return parsed.Count, nil
}

// transportError distinguishes a timed-out request (retryable by the
// caller) from an unreachable engine.
func (c *Client) transportError(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return errors.Newf(errors.ErrTimeout, 504, "request deadline exceeded: %v", err)
	}
	return errors.Newf(errors.ErrUnavailable, 503, "search engine unreachable: %v", err)
}
