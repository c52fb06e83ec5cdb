// Package handler serves the retriever's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/store"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/metrics"
)

const (
	maxIngestBody     = 1 << 20
	defaultIngestList = 20
	maxIngestList     = 100
)

// Querier hands out pinned corpus views so the generation reported with a
// response is the one its results were scored against.
type Querier interface {
	Snapshot() *retriever.Snapshot
	Stats() retriever.Stats
}

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (retriever.Stats, error)
}

// IngestHistory lists past ingests. *store.IngestLog implements it.
type IngestHistory interface {
	Recent(ctx context.Context, limit int) ([]store.IngestRecord, error)
}

// QueryResponse is the body of GET /api/v1/query.
type QueryResponse struct {
	Query      string             `json:"query"`
	TopK       int                `json:"top_k"`
	Generation uint64             `json:"generation"`
	CacheHit   bool               `json:"cache_hit"`
	Results    []retriever.Result `json:"results"`
}

type Handler struct {
	querier     Querier
	ingester    Ingester
	cache       *cache.QueryCache
	history     IngestHistory
	collector   *analytics.Collector
	metrics     *metrics.Metrics
	defaultTopK int
	maxTopK     int
	logger      *slog.Logger
}

// Option configures optional collaborators; nil values disable them.
type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithHistory(hist IngestHistory) Option {
	return func(h *Handler) { h.history = hist }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(q Querier, ing Ingester, cfg config.RetrieverConfig, opts ...Option) *Handler {
	h := &Handler{
		querier:     q,
		ingester:    ing,
		defaultTopK: cfg.DefaultTopK,
		maxTopK:     cfg.MaxTopK,
		logger:      slog.Default().With("component", "retriever-handler"),
	}
	if h.defaultTopK <= 0 {
		h.defaultTopK = retriever.DefaultTopK
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/query", h.Query)
	mux.HandleFunc("POST /api/v1/ingest", h.Ingest)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/ingests", h.Ingests)
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	topK := h.defaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.countQuery(metrics.ResultInvalid)
			h.writeError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
		if h.maxTopK > 0 && parsed > h.maxTopK {
			parsed = h.maxTopK
		}
		topK = parsed
	}

	snap := h.querier.Snapshot()
	generation := snap.Generation()
	cacheStatus := metrics.CacheStatusNoop
	cacheHit := false
	var results []retriever.Result
	var err error
	if h.cache != nil && generation > 0 && topK > 0 {
		results, cacheHit, err = h.cache.GetOrCompute(ctx, generation, query, topK, func() ([]retriever.Result, error) {
			return snap.Query(query, topK)
		})
		cacheStatus = metrics.CacheStatusMiss
		if cacheHit {
			cacheStatus = metrics.CacheStatusHit
		}
	} else {
		results, err = snap.Query(query, topK)
	}
	latency := time.Since(start)

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		h.countQuery(queryErrorResult(err))
		h.trackQuery(ctx, analytics.QueryEvent{
			Type:      analytics.EventQueryFailed,
			Query:     query,
			TopK:      topK,
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		})
		if status >= http.StatusInternalServerError {
			log.Error("query failed", "query", query, "error", err)
			h.writeError(w, status, "query failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(queryResult(results)).Inc()
		h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.metrics.QueryResultsCount.Observe(float64(len(results)))
		switch cacheStatus {
		case metrics.CacheStatusHit:
			h.metrics.CacheHitsTotal.Inc()
		case metrics.CacheStatusMiss:
			h.metrics.CacheMissesTotal.Inc()
		}
	}

	var topScore float64
	if len(results) > 0 {
		topScore = results[0].Score
	}
	h.trackQuery(ctx, analytics.QueryEvent{
		Type:       analytics.EventQuery,
		Query:      query,
		TopK:       topK,
		Returned:   len(results),
		TopScore:   topScore,
		Generation: generation,
		CacheHit:   cacheHit,
		LatencyMs:  latency.Milliseconds(),
	})

	log.Info("query completed",
		"query", query,
		"top_k", topK,
		"returned", len(results),
		"cache_status", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)

	h.writeJSON(w, http.StatusOK, QueryResponse{
		Query:      query,
		TopK:       topK,
		Generation: generation,
		CacheHit:   cacheHit,
		Results:    results,
	})
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingest.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stats, err := h.ingester.Ingest(ctx, req)
	if err != nil {
		var validationErr *loader.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		status := apperrors.HTTPStatusCode(err)
		log.Error("ingest failed", "source", req.Source, "error", err, "status_code", status)
		if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
			h.writeError(w, status, "ingest failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ingested",
		"corpus": stats,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"corpus": h.querier.Stats()}
	if h.cache == nil {
		resp["cache"] = map[string]string{"status": "disabled"}
	} else {
		hits, misses := h.cache.Stats()
		total := hits + misses
		var hitRate float64
		if total > 0 {
			hitRate = float64(hits) / float64(total) * 100
		}
		resp["cache"] = map[string]any{
			"hits":     hits,
			"misses":   misses,
			"total":    total,
			"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Ingests(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "ingest log is disabled")
		return
	}
	limit := defaultIngestList
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxIngestList)
	}
	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing ingests failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing ingests failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"ingests": records,
		"count":   len(records),
	})
}

func (h *Handler) trackQuery(ctx context.Context, event analytics.QueryEvent) {
	if h.collector == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	h.collector.Track("query", event)
}

func (h *Handler) countQuery(result string) {
	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(result).Inc()
	}
}

func queryResult(results []retriever.Result) string {
	if len(results) == 0 {
		return metrics.ResultEmpty
	}
	for _, r := range results {
		if r.Score != 0 {
			return metrics.ResultOK
		}
	}
	return metrics.ResultZeroScore
}

func queryErrorResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return metrics.ResultInvalid
	case errors.Is(err, apperrors.ErrNotReady):
		return metrics.ResultNotReady
	default:
		return metrics.ResultError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
