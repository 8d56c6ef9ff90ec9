package api

import (
	"net/http"
	"time"

	"github.com/gridstonehq/workspace-search/pkg/health"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
	"github.com/gridstonehq/workspace-search/pkg/middleware"
)

// NewRouter builds the full HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST /api/v1/search          → full-text search
//	GET  /api/v1/suggest         → autocomplete (q= prefix)
//	POST /api/v1/reindex         → start full rebuild
//	GET  /api/v1/reindex/status  → latest reindex job
//	GET  /api/v1/index/status    → tenant index state
//	GET  /health/live            → liveness
//	GET  /health/ready           → readiness (runs registered checks)
//	GET  /metrics                → Prometheus scrape
//
// Middleware chain (outermost first): RequestID → Metrics → Timeout.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("POST /api/v1/reindex", h.Reindex)
	mux.HandleFunc("GET /api/v1/reindex/status", h.ReindexStatus)
	mux.HandleFunc("GET /api/v1/index/status", h.IndexStatus)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(requestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	return chain
}
