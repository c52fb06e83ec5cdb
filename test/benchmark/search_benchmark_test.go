package benchmark

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/ranker"
)

// BenchmarkScore measures BM25 scoring of a three-term query against
// corpora of different sizes.
func BenchmarkScore(b *testing.B) {
	query := []string{"term0", "term42", "term3000"}
	for _, n := range []int{100, 1000, 10000} {
		idx := index.Build(syntheticCorpus(n, 5000, 4))
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			params := ranker.DefaultParams()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				scores := ranker.Score(idx, query, params)
				_ = scores
			}
		})
	}
}

// BenchmarkTopK measures heap selection for different k over 10 000 scores.
func BenchmarkTopK(b *testing.B) {
	idx := index.Build(syntheticCorpus(10000, 5000, 5))
	scores := ranker.Score(idx, []string{"term1", "term77"}, ranker.DefaultParams())
	for _, k := range []int{1, 10, 100, 10000} {
		b.Run(fmt.Sprintf("k_%d", k), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				top := ranker.TopK(scores, k)
				_ = top
			}
		})
	}
}

// BenchmarkQuery measures the full tokenize, score and select path.
func BenchmarkQuery(b *testing.B) {
	r := retriever.New()
	if err := r.Ingest(syntheticCorpus(10000, 5000, 6)); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results, err := r.Query("term3 term250 term4999", 10)
		if err != nil {
			b.Fatal(err)
		}
		_ = results
	}
}

// BenchmarkQueryParallel measures concurrent queries against one corpus.
func BenchmarkQueryParallel(b *testing.B) {
	r := retriever.New()
	if err := r.Ingest(syntheticCorpus(10000, 5000, 7)); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := r.Query("term3 term250", 5); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkChunk measures Markdown chunking for both strategies.
func BenchmarkSegment(b *testing.B) {
	var doc []byte
	for i := 0; i < 200; i++ {
		doc = fmt.Appendf(doc, "## Section %d\n\n%s\n\n%s\n\n", i, sampleTexts["medium"], sampleTexts["short"])
	}
	for _, chunkType := range []string{loader.ChunkByTitle, loader.ChunkByParagraph} {
		b.Run(chunkType, func(b *testing.B) {
			opts := loader.Options{ChunkType: chunkType, MaxCharacters: 500}
			b.ReportAllocs()
			b.SetBytes(int64(len(doc)))
			for i := 0; i < b.N; i++ {
				chunks := loader.Segment(doc, opts, nil)
				_ = chunks
			}
		})
	}
}
