// Package retriever ranks ingested chunks against free-text queries with
// BM25. A Retriever owns exactly one corpus index at a time: Ingest builds
// a replacement off to the side and swaps it in, so queries always read a
// complete, immutable index.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of results returned when callers do not ask
// for a specific count.
const DefaultTopK = 1

// maxConcurrentLoads bounds parallel fetches in ProcessAll.
const maxConcurrentLoads = 8

var errNoLoader = fmt.Errorf("retriever has no loader configured: %w", apperrors.ErrInternal)

// Result is one ranked chunk.
type Result struct {
	DocID       int            `json:"doc_id"`
	Score       float64        `json:"similarity_score"`
	ContentPath string         `json:"content_path"`
	Metadata    map[string]any `json:"metadata"`
	Text        string         `json:"text"`
}

// Stats describes the currently loaded corpus.
type Stats struct {
	Ready          bool      `json:"ready"`
	ContentPath    string    `json:"content_path"`
	Documents      int       `json:"documents"`
	VocabularySize int       `json:"vocabulary_size"`
	AvgDocLength   float64   `json:"avg_doc_length"`
	Generation     uint64    `json:"generation"`
	IngestedAt     time.Time `json:"ingested_at,omitempty"`
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithParams overrides the BM25 parameters.
func WithParams(params ranker.Params) Option {
	return func(r *Retriever) {
		r.params = params
	}
}

// WithLoader sets the collaborator used by Process and ProcessAll.
func WithLoader(l loader.Loader) Option {
	return func(r *Retriever) {
		r.loader = l
	}
}

// corpus is the state swapped as a unit on every successful ingest.
type corpus struct {
	idx         *index.Index
	contentPath string
	generation  uint64
	ingestedAt  time.Time
}

type Retriever struct {
	mu      sync.RWMutex
	current *corpus
	// ingestMu serialises ingests so generations are assigned in swap order.
	ingestMu sync.Mutex
	params   ranker.Params
	loader   loader.Loader
	logger   *slog.Logger
}

func New(opts ...Option) *Retriever {
	r := &Retriever{
		params: ranker.DefaultParams(),
		logger: slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ingest replaces the corpus with docs. An empty batch is valid and leaves
// the retriever ready with a corpus that answers every query with no
// results.
func (r *Retriever) Ingest(docs []index.Input) error {
	r.ingest("", docs)
	return nil
}

// Process loads source through the configured loader and ingests the
// resulting chunks. Loader failures are wrapped in ErrIngestFailure and
// leave the current corpus untouched.
func (r *Retriever) Process(ctx context.Context, source string, opts loader.Options) error {
	if r.loader == nil {
		return errNoLoader
	}
	chunks, err := r.loader.Load(ctx, source, opts)
	if err != nil {
		return apperrors.IngestFailure(source, err)
	}
	r.ingest(source, chunksToInputs(chunks))
	return nil
}

// ProcessAll loads every source concurrently and ingests the chunks of all
// of them as one corpus, in the order the sources are given. Any failure
// aborts the whole batch.
func (r *Retriever) ProcessAll(ctx context.Context, sources []string, opts loader.Options) error {
	if r.loader == nil {
		return errNoLoader
	}
	loaded := make([][]loader.Chunk, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, source := range sources {
		g.Go(func() error {
			chunks, err := r.loader.Load(gctx, source, opts)
			if err != nil {
				return apperrors.IngestFailure(source, err)
			}
			loaded[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	var inputs []index.Input
	for _, chunks := range loaded {
		inputs = append(inputs, chunksToInputs(chunks)...)
	}
	contentPath := ""
	if len(sources) == 1 {
		contentPath = sources[0]
	}
	r.ingest(contentPath, inputs)
	return nil
}

func (r *Retriever) ingest(contentPath string, docs []index.Input) {
	start := time.Now()
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	idx := index.Build(docs)

	r.mu.Lock()
	var generation uint64 = 1
	if r.current != nil {
		generation = r.current.generation + 1
	}
	r.current = &corpus{
		idx:         idx,
		contentPath: contentPath,
		generation:  generation,
		ingestedAt:  time.Now().UTC(),
	}
	r.mu.Unlock()

	r.logger.Info("corpus ingested",
		"content_path", contentPath,
		"documents", idx.DocCount(),
		"vocabulary", idx.VocabularySize(),
		"avg_doc_length", idx.AvgDocLength(),
		"generation", generation,
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

// Snapshot is a read view pinned to the corpus that was live when it was
// taken. Later ingests do not affect it.
type Snapshot struct {
	corpus *corpus
	params ranker.Params
	logger *slog.Logger
}

// Snapshot pins the current corpus. It never fails; querying a snapshot
// taken before the first ingest returns ErrNotReady.
func (r *Retriever) Snapshot() *Snapshot {
	r.mu.RLock()
	c := r.current
	r.mu.RUnlock()
	return &Snapshot{corpus: c, params: r.params, logger: r.logger}
}

// Generation of the pinned corpus, 0 before the first ingest.
func (s *Snapshot) Generation() uint64 {
	if s.corpus == nil {
		return 0
	}
	return s.corpus.generation
}

// Query scores every document against text and returns the topK best,
// ordered by descending score with ties broken by ascending document id.
// Result metadata is a copy; callers may modify it.
func (s *Snapshot) Query(text string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be a positive integer, got %d: %w", topK, apperrors.ErrInvalidArgument)
	}
	c := s.corpus
	if c == nil {
		return nil, apperrors.ErrNotReady
	}

	terms := tokenizer.Terms(text)
	scores := ranker.Score(c.idx, terms, s.params)
	top := ranker.TopK(scores, topK)

	results := make([]Result, 0, len(top))
	for _, sd := range top {
		doc, _ := c.idx.Doc(sd.DocID)
		results = append(results, Result{
			DocID:       sd.DocID,
			Score:       sd.Score,
			ContentPath: c.contentPath,
			Metadata:    maps.Clone(doc.Metadata),
			Text:        doc.Text,
		})
	}
	s.logger.Debug("query executed",
		"query", text,
		"terms", len(terms),
		"top_k", topK,
		"results", len(results),
		"generation", c.generation,
	)
	return results, nil
}

// Query runs text against the current corpus. See Snapshot.Query.
func (r *Retriever) Query(text string, topK int) ([]Result, error) {
	return r.Snapshot().Query(text, topK)
}

// Ready reports whether a corpus has been ingested.
func (r *Retriever) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current != nil
}

// Generation increases by one on every successful ingest. It is 0 before
// the first ingest.
func (r *Retriever) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return 0
	}
	return r.current.generation
}

// Stats describes the current corpus.
func (r *Retriever) Stats() Stats {
	r.mu.RLock()
	c := r.current
	r.mu.RUnlock()
	if c == nil {
		return Stats{}
	}
	return Stats{
		Ready:          true,
		ContentPath:    c.contentPath,
		Documents:      c.idx.DocCount(),
		VocabularySize: c.idx.VocabularySize(),
		AvgDocLength:   c.idx.AvgDocLength(),
		Generation:     c.generation,
		IngestedAt:     c.ingestedAt,
	}
}

func chunksToInputs(chunks []loader.Chunk) []index.Input {
	inputs := make([]index.Input, len(chunks))
	for i, chunk := range chunks {
		inputs[i] = index.Input{Text: chunk.Text, Metadata: chunk.Metadata}
	}
	return inputs
}
