// Package api implements the HTTP surface of the search service: full-text
// search, autocomplete, and reindex management, all scoped to the tenant in
// the X-Workspace-ID header.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gridstonehq/workspace-search/internal/searcher/query"
	"github.com/gridstonehq/workspace-search/internal/store"
	"github.com/gridstonehq/workspace-search/pkg/errors"
	"github.com/gridstonehq/workspace-search/pkg/logger"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
)

// WorkspaceHeader carries the tenant identity. There is no fallback; a
// request without a valid workspace UUID is rejected.
const WorkspaceHeader = "X-Workspace-ID"

// SearchEngine executes validated full-text queries.
type SearchEngine interface {
	Search(ctx context.Context, workspaceID string, q *query.Query) (*query.Response, error)
}

// SuggestEngine serves autocomplete prefixes.
type SuggestEngine interface {
	Suggest(ctx context.Context, workspaceID, prefix string) ([]string, error)
}

// Reindexer starts and reports full index rebuilds.
type Reindexer interface {
	Start(ctx context.Context, workspaceID string) (*store.ReindexJob, error)
	Status(ctx context.Context, workspaceID string) (*store.ReindexJob, error)
}

// StatusReader reports the tenant's index state.
type StatusReader interface {
	GetIndexStatus(ctx context.Context, workspaceID string) (*store.IndexStatus, error)
}

// Handler implements the service's HTTP endpoints.
type Handler struct {
	search  SearchEngine
	suggest SuggestEngine
	reindex Reindexer
	status  StatusReader
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the HTTP handler. metrics may be nil in tests.
func New(search SearchEngine, suggest SuggestEngine, reindex Reindexer, status StatusReader, m *metrics.Metrics) *Handler {
	return &Handler{
		search:  search,
		suggest: suggest,
		reindex: reindex,
		status:  status,
		metrics: m,
		logger:  logger.WithComponent("api"),
	}
}

// Search executes a full-text query for the tenant.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.workspaceID(w, r)
	if !ok {
		return
	}

	var q query.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		h.countSearch("validation")
		h.writeError(w, r, errors.Validationf("invalid JSON body: %v", err))
		return
	}

	start := time.Now()
	resp, err := h.search.Search(r.Context(), workspaceID, &q)
	if err != nil {
		h.countSearch(outcomeOf(err))
		h.writeError(w, r, err)
		return
	}
	h.countSearch("ok")
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues("search").Observe(time.Since(start).Seconds())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Suggest returns autocomplete candidates for the q prefix.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.workspaceID(w, r)
	if !ok {
		return
	}
	prefix := r.URL.Query().Get("q")

	start := time.Now()
	suggestions, err := h.suggest.Suggest(r.Context(), workspaceID, prefix)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.SuggestLatency.Observe(time.Since(start).Seconds())
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// Reindex starts a full rebuild of the tenant's index.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.workspaceID(w, r)
	if !ok {
		return
	}
	job, err := h.reindex.Start(r.Context(), workspaceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

// ReindexStatus reports the tenant's most recent reindex job.
func (h *Handler) ReindexStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.workspaceID(w, r)
	if !ok {
		return
	}
	job, err := h.reindex.Status(r.Context(), workspaceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// IndexStatus reports the tenant's index state and document count.
func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.workspaceID(w, r)
	if !ok {
		return
	}
	st, err := h.status.GetIndexStatus(r.Context(), workspaceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// workspaceID extracts and validates the tenant header, writing the error
// response itself when the header is missing or malformed.
func (h *Handler) workspaceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get(WorkspaceHeader))
	if raw == "" {
		h.writeError(w, r, errors.Validationf("missing %s header", WorkspaceHeader))
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, r, errors.Validationf("invalid %s header: %v", WorkspaceHeader, err))
		return "", false
	}
	return id.String(), true
}

func (h *Handler) countSearch(outcome string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, errors.ErrValidation):
		return "validation"
	case errors.Is(err, errors.ErrTimeout):
		return "timeout"
	case errors.Is(err, errors.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"status", status,
			"path", r.URL.Path,
			"error", err,
		)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
