// Package ingest runs a corpus ingest end to end: validate the request,
// load and index the source, then fan the outcome out to the cache, the
// ingest log, metrics and analytics. Both the HTTP handler and the Kafka
// consumer go through Service.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/tracing"
)

// Request is the JSON body of POST /api/v1/ingest and of messages on the
// corpus ingest topic.
type Request struct {
	Source        string         `json:"source"`
	ChunkType     string         `json:"chunk_type,omitempty"`
	MaxCharacters int            `json:"max_characters,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (r Request) Options() loader.Options {
	return loader.Options{
		ChunkType:     r.ChunkType,
		MaxCharacters: r.MaxCharacters,
		Metadata:      r.Metadata,
	}
}

// Validate returns a *loader.ValidationError wrapped in ErrInvalidInput.
func Validate(req Request) error {
	fields := make(map[string]string)
	if strings.TrimSpace(req.Source) == "" {
		fields["source"] = "source is required"
	}
	if err := loader.ValidateOptions(req.Options()); err != nil {
		var verr *loader.ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Fields {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, &loader.ValidationError{Fields: fields})
	}
	return nil
}

// Recorder persists ingest outcomes. *store.IngestLog implements it.
type Recorder interface {
	Record(ctx context.Context, rec store.IngestRecord) (store.IngestRecord, error)
}

type Service struct {
	retriever *retriever.Retriever
	cache     *cache.QueryCache
	recorder  Recorder
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Service. Every collaborator is optional.
type Option func(*Service)

func WithCache(c *cache.QueryCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithCollector(c *analytics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(r *retriever.Retriever, opts ...Option) *Service {
	s := &Service{
		retriever: r,
		logger:    slog.Default().With("component", "ingest-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates req, processes the source and returns the stats of the
// corpus that is live afterwards. On failure the previous corpus stays
// live and its stats are returned alongside the error.
func (s *Service) Ingest(ctx context.Context, req Request) (retriever.Stats, error) {
	log := logger.FromContext(ctx)
	if err := Validate(req); err != nil {
		return s.retriever.Stats(), err
	}

	ctx, span := tracing.Start(ctx, "ingest", logger.RequestID(ctx))
	span.SetAttr("source", req.Source)
	defer func() {
		span.End()
		span.Log(log)
	}()

	start := time.Now()
	_, processSpan := tracing.StartChild(ctx, "process")
	err := s.retriever.Process(ctx, req.Source, req.Options())
	processSpan.End()
	elapsed := time.Since(start)
	stats := s.retriever.Stats()
	span.SetAttr("generation", stats.Generation)

	status := store.StatusSucceeded
	errText := ""
	if err != nil {
		status = store.StatusFailed
		errText = err.Error()
		log.Error("ingest failed", "source", req.Source, "error", err)
	} else {
		log.Info("ingest completed",
			"source", req.Source,
			"documents", stats.Documents,
			"generation", stats.Generation,
			"latency_ms", elapsed.Milliseconds(),
		)
		if s.cache != nil {
			_, cacheSpan := tracing.StartChild(ctx, "invalidate_cache")
			if cerr := s.cache.Invalidate(ctx); cerr != nil {
				log.Warn("cache invalidation after ingest failed", "error", cerr)
			}
			cacheSpan.End()
		}
	}

	s.observe(status, elapsed, stats)

	if s.recorder != nil {
		rec := store.IngestRecord{
			Source:     req.Source,
			ChunkType:  req.ChunkType,
			Status:     status,
			Generation: stats.Generation,
			DurationMs: elapsed.Milliseconds(),
			Error:      errText,
		}
		if err == nil {
			rec.Documents = stats.Documents
			rec.Vocabulary = stats.VocabularySize
			rec.AvgDocLength = stats.AvgDocLength
		}
		_, recordSpan := tracing.StartChild(ctx, "record")
		if _, rerr := s.recorder.Record(ctx, rec); rerr != nil {
			log.Warn("failed to record ingest", "source", req.Source, "error", rerr)
		}
		recordSpan.End()
	}

	if s.collector != nil {
		eventType := analytics.EventIngest
		if err != nil {
			eventType = analytics.EventIngestFail
		}
		s.collector.Track(req.Source, analytics.IngestEvent{
			Type:       eventType,
			Source:     req.Source,
			ChunkType:  req.ChunkType,
			Documents:  stats.Documents,
			Generation: stats.Generation,
			LatencyMs:  elapsed.Milliseconds(),
			Error:      errText,
			Timestamp:  time.Now().UTC(),
		})
	}

	return stats, err
}

func (s *Service) observe(status string, elapsed time.Duration, stats retriever.Stats) {
	if s.metrics == nil {
		return
	}
	label := metrics.IngestSuccess
	if status == store.StatusFailed {
		label = metrics.IngestFailed
	}
	s.metrics.IngestsTotal.WithLabelValues(label).Inc()
	s.metrics.IngestLatency.Observe(elapsed.Seconds())
	s.metrics.CorpusDocuments.Set(float64(stats.Documents))
	s.metrics.CorpusVocabulary.Set(float64(stats.VocabularySize))
	s.metrics.CorpusGeneration.Set(float64(stats.Generation))
}
