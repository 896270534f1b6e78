// Package httpapi serves precomputed loss results by run and geography.
// It is a thin read path over published result objects; all computation
// happened at publish time.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/cat-loss-etl/internal/adapter/s3store"
	"github.com/couchcryptid/cat-loss-etl/internal/domain"
	"github.com/couchcryptid/cat-loss-etl/internal/observability"
)

const defaultTopN = 20

// ResultReader resolves runs and fetches published result objects.
type ResultReader interface {
	LatestPublishedRun(ctx context.Context) (string, error)
	GetResult(ctx context.Context, run, name string) ([]byte, error)
}

// Server exposes the loss query surface plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	store      ResultReader
	cache      *ttlcache.Cache[string, []byte]
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates the query API server. Published objects are immutable per
// run, so responses are cached for cacheTTL keyed by object key.
func NewServer(addr string, store ResultReader, cacheTTL time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](cacheTTL),
	)
	go cache.Start()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}

	mux.HandleFunc("GET /loss/top", s.instrument("top", s.handleTop))
	mux.HandleFunc("GET /loss/bands", s.instrument("bands", s.handleBands))
	mux.HandleFunc("GET /loss/counties", s.instrument("counties", s.handleCounties))
	mux.HandleFunc("GET /loss/county", s.instrument("county", s.handleCounty))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", s.instrument("help", s.handleHelp))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cache.Stop()
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// handleTop serves the ranked top-loss list, truncated to ?n entries.
func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	n := defaultTopN
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}

	var doc domain.TopDocument
	if !s.loadResult(w, r, "top.json", &doc) {
		return
	}
	if len(doc.Top) > n {
		doc.Top = doc.Top[:n]
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleBands serves per-tract bands, optionally filtered by ?state.
func (s *Server) handleBands(w http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(r.URL.Query().Get("state"))

	var doc domain.BandsDocument
	if !s.loadResult(w, r, "bands.json", &doc) {
		return
	}

	bands := doc.Bands
	if state != "" {
		filtered := make([]domain.BandEntry, 0, len(bands))
		for _, b := range bands {
			if strings.ToUpper(b.State) == state {
				filtered = append(filtered, b)
			}
		}
		bands = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":   doc.Run,
		"count": len(bands),
		"bands": bands,
	})
}

// handleCounties serves the full county rollup document as published.
func (s *Server) handleCounties(w http.ResponseWriter, r *http.Request) {
	var doc domain.CountiesDocument
	if !s.loadResult(w, r, "counties.json", &doc) {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleCounty serves one county's loss time series by ?fips.
func (s *Server) handleCounty(w http.ResponseWriter, r *http.Request) {
	fips := r.URL.Query().Get("fips")
	if fips == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fips required"})
		return
	}
	for len(fips) < 5 {
		fips = "0" + fips
	}

	var doc domain.CountySeriesDocument
	if !s.loadResult(w, r, "timeseries/county_"+fips+".json", &doc) {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleHelp lists the query surface. Unknown routes land here with a 200,
// matching the original service's behavior of answering with usage.
func (s *Server) handleHelp(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": map[string]string{
			"/loss/top":      "optional ?n=10",
			"/loss/bands":    "optional ?state=TX",
			"/loss/counties": "optional ?run=run_dt=YYYYmmddTHHMMSSZ",
			"/loss/county":   "requires ?fips=XXXXX (optional &run=run_dt=...)",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready once the result store answers. A store with no
// published runs yet is still ready; requests against it will 404.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.LatestPublishedRun(ctx); err != nil && !errors.Is(err, s3store.ErrNoRuns) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// loadResult resolves the request's run, fetches the named result object
// (through the cache), and unmarshals it. On failure it writes the error
// response and returns false.
func (s *Server) loadResult(w http.ResponseWriter, r *http.Request, name string, v any) bool {
	run, err := s.resolveRun(r)
	if err != nil {
		s.writeError(w, err)
		return false
	}

	data, err := s.getCached(r.Context(), run, name)
	if err != nil {
		s.writeError(w, err)
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Error("corrupt result object", "run", run, "name", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "corrupt result object"})
		return false
	}
	return true
}

// resolveRun picks the run from the ?run parameter (with or without the
// "run_dt=" prefix) or falls back to the latest published run.
func (s *Server) resolveRun(r *http.Request) (string, error) {
	if run := r.URL.Query().Get("run"); run != "" {
		return strings.TrimPrefix(strings.Trim(run, "/"), "run_dt="), nil
	}
	return s.store.LatestPublishedRun(r.Context())
}

func (s *Server) getCached(ctx context.Context, run, name string) ([]byte, error) {
	key := run + "/" + name
	if item := s.cache.Get(key); item != nil {
		s.metrics.ResultCache.WithLabelValues("hit").Inc()
		return item.Value(), nil
	}
	s.metrics.ResultCache.WithLabelValues("miss").Inc()

	data, err := s.store.GetResult(ctx, run, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, data, ttlcache.DefaultTTL)
	return data, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, s3store.ErrNoRuns):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no processed runs yet"})
	case errors.Is(err, s3store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.logger.Error("result lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
