package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputs(texts ...string) []index.Input {
	out := make([]index.Input, len(texts))
	for i, text := range texts {
		out[i] = index.Input{Text: text, Metadata: map[string]any{"n": i}}
	}
	return out
}

var animals = inputs("the cat sat", "the dog ran", "cats and dogs")

func TestQueryBeforeIngest(t *testing.T) {
	r := New()
	_, err := r.Query("cat", 1)
	assert.ErrorIs(t, err, apperrors.ErrNotReady)
	assert.False(t, r.Ready())
	assert.Equal(t, uint64(0), r.Generation())
	assert.Equal(t, Stats{}, r.Stats())
}

func TestQueryInvalidTopK(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(animals))
	for _, k := range []int{0, -1, -100} {
		_, err := r.Query("cat", k)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument, "top_k=%d", k)
	}
	// top_k is validated before readiness.
	_, err := New().Query("cat", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestQueryCatScenario(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(animals))

	results, err := r.Query("cat", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0, results[0].DocID)
	assert.Equal(t, "the cat sat", results[0].Text)
	assert.InDelta(t, ranker.IDF(3, 1), results[0].Score, 1e-12)
	assert.Equal(t, 0, results[0].Metadata["n"])

	assert.Equal(t, 1, results[1].DocID)
	assert.Equal(t, 0.0, results[1].Score)
}

func TestQueryEmptyCorpus(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(nil))
	assert.True(t, r.Ready())

	results, err := r.Query("anything", 1)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestQueryTopKExceedsCorpus(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(inputs("a b", "b b", "c")))

	results, err := r.Query("b", 5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 0, 2}, docIDs(results))
	assertRanked(t, results)
}

func TestQueryNoMatchingTerms(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(animals))

	results, err := r.Query("zebra", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, 0.0, res.Score)
	}
	assert.Equal(t, []int{0, 1, 2}, docIDs(results))
}

func TestQueryResultsRanked(t *testing.T) {
	docs := make([]string, 0, 40)
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for i := 0; i < 40; i++ {
		docs = append(docs, fmt.Sprintf("%s %s %s", words[i%5], words[(i*3)%5], words[(i*7)%5]))
	}
	r := New()
	require.NoError(t, r.Ingest(inputs(docs...)))

	for _, k := range []int{1, 5, 17, 40, 41} {
		results, err := r.Query("alpha gamma", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), k)
		assertRanked(t, results)
		seen := map[int]bool{}
		for _, res := range results {
			assert.False(t, seen[res.DocID], "duplicate doc %d", res.DocID)
			seen[res.DocID] = true
		}
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(animals))
	first, err := r.Query("the cat", 3)
	require.NoError(t, err)

	require.NoError(t, r.Ingest(animals))
	second, err := r.Query("the cat", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, uint64(2), r.Generation())
}

func TestIngestReplacesCorpus(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(animals))
	require.NoError(t, r.Ingest(inputs("only fish here")))

	results, err := r.Query("cat", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only fish here", results[0].Text)
	assert.Equal(t, 1, r.Stats().Documents)
}

func TestResultMetadataIsCopied(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest([]index.Input{
		{Text: "cat", Metadata: map[string]any{"k": "orig"}},
	}))

	results, err := r.Query("cat", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	results[0].Metadata["k"] = "mutated"
	results[0].Metadata["extra"] = true

	again, err := r.Query("cat", 1)
	require.NoError(t, err)
	assert.Equal(t, "orig", again[0].Metadata["k"])
	assert.NotContains(t, again[0].Metadata, "extra")
}

func TestSnapshotPinsGeneration(t *testing.T) {
	r := New()
	before := r.Snapshot()
	assert.Equal(t, uint64(0), before.Generation())
	_, err := before.Query("cat", 1)
	assert.ErrorIs(t, err, apperrors.ErrNotReady)

	require.NoError(t, r.Ingest(animals))
	snap := r.Snapshot()
	require.NoError(t, r.Ingest(inputs("only fish here")))

	assert.Equal(t, uint64(1), snap.Generation())
	assert.Equal(t, uint64(2), r.Generation())
	results, err := snap.Query("cat", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "the cat sat", results[0].Text)

	_, err = snap.Query("cat", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestWithParams(t *testing.T) {
	docs := inputs("cat", "cat x x x x x x x", "dog")
	flat := New(WithParams(ranker.Params{K1: 1.5, B: 0}))
	require.NoError(t, flat.Ingest(docs))
	results, err := flat.Query("cat", 2)
	require.NoError(t, err)
	assert.InDelta(t, results[0].Score, results[1].Score, 1e-12)
}

func TestProcess(t *testing.T) {
	var gotOpts loader.Options
	l := loader.Func(func(ctx context.Context, source string, opts loader.Options) ([]loader.Chunk, error) {
		gotOpts = opts
		return []loader.Chunk{
			{Text: "the cat sat", Metadata: map[string]any{"title": "Cats"}},
			{Text: "the dog ran", Metadata: map[string]any{"title": "Dogs"}},
		}, nil
	})
	r := New(WithLoader(l))
	require.NoError(t, r.Process(context.Background(), "pets.md", loader.Options{ChunkType: loader.ChunkByTitle}))
	assert.Equal(t, loader.ChunkByTitle, gotOpts.ChunkType)

	results, err := r.Query("dog", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pets.md", results[0].ContentPath)
	assert.Equal(t, "Dogs", results[0].Metadata["title"])

	stats := r.Stats()
	assert.True(t, stats.Ready)
	assert.Equal(t, "pets.md", stats.ContentPath)
	assert.Equal(t, 2, stats.Documents)
	assert.False(t, stats.IngestedAt.IsZero())
}

func TestProcessFailureKeepsPreviousCorpus(t *testing.T) {
	errFetch := errors.New("connection refused")
	fail := false
	l := loader.Func(func(ctx context.Context, source string, opts loader.Options) ([]loader.Chunk, error) {
		if fail {
			return nil, errFetch
		}
		return []loader.Chunk{{Text: "the cat sat"}}, nil
	})
	r := New(WithLoader(l))
	require.NoError(t, r.Process(context.Background(), "first.md", loader.Options{}))

	fail = true
	err := r.Process(context.Background(), "second.md", loader.Options{})
	assert.ErrorIs(t, err, apperrors.ErrIngestFailure)
	assert.ErrorIs(t, err, errFetch)

	assert.Equal(t, uint64(1), r.Generation())
	results, err := r.Query("cat", 1)
	require.NoError(t, err)
	assert.Equal(t, "first.md", results[0].ContentPath)
}

func TestProcessWithoutLoader(t *testing.T) {
	err := New().Process(context.Background(), "x.md", loader.Options{})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.False(t, New().Ready())
}

func TestProcessAll(t *testing.T) {
	l := loader.Func(func(ctx context.Context, source string, opts loader.Options) ([]loader.Chunk, error) {
		if source == "broken.md" {
			return nil, errors.New("parse error")
		}
		return []loader.Chunk{
			{Text: source + " one", Metadata: map[string]any{"source": source}},
			{Text: source + " two", Metadata: map[string]any{"source": source}},
		}, nil
	})
	r := New(WithLoader(l))
	require.NoError(t, r.ProcessAll(context.Background(), []string{"a.md", "b.md", "c.md"}, loader.Options{}))

	results, err := r.Query("nothing", 10)
	require.NoError(t, err)
	require.Len(t, results, 6)
	// Chunks keep source order, so ties come back in that order too.
	assert.Equal(t, "a.md one", results[0].Text)
	assert.Equal(t, "c.md two", results[5].Text)
	assert.Empty(t, results[0].ContentPath)

	err = r.ProcessAll(context.Background(), []string{"a.md", "broken.md"}, loader.Options{})
	assert.ErrorIs(t, err, apperrors.ErrIngestFailure)
	assert.Equal(t, 6, r.Stats().Documents)
}

func TestConcurrentQueriesAndIngests(t *testing.T) {
	r := New()
	require.NoError(t, r.Ingest(animals))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				results, err := r.Query("the cat", 2)
				assert.NoError(t, err)
				assertRanked(t, results)
			}
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, r.Ingest(animals))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(101), r.Generation())
}

func docIDs(results []Result) []int {
	ids := make([]int, len(results))
	for i, res := range results {
		ids[i] = res.DocID
	}
	return ids
}

func assertRanked(t *testing.T, results []Result) {
	t.Helper()
	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		if prev.Score == cur.Score {
			assert.Less(t, prev.DocID, cur.DocID)
		} else {
			assert.Greater(t, prev.Score, cur.Score)
		}
	}
}
