// Package ranker scores a tokenized query against every document of an
// index with Okapi BM25 and selects the best k documents.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/index"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params are the BM25 free parameters. K1 controls term-frequency
// saturation and B the strength of length normalisation.
type Params struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// DefaultParams returns K1=1.5, B=0.75.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// ScoredDoc is a document id and its BM25 score for one query.
type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Score returns one score per document, indexed by document id. Every
// document is scored, so documents matching no query term keep score 0.
// A term repeated in the query contributes once per occurrence; terms
// absent from the vocabulary contribute nothing.
func Score(idx *index.Index, queryTerms []string, params Params) []float64 {
	scores := make([]float64, idx.DocCount())
	if len(scores) == 0 {
		return scores
	}
	totalDocs := int64(idx.DocCount())
	avgDocLength := idx.AvgDocLength()
	for _, term := range queryTerms {
		postings := idx.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := IDF(totalDocs, int64(len(postings)))
		for _, posting := range postings {
			doc, _ := idx.Doc(posting.DocID)
			scores[posting.DocID] += idf * computeTFNorm(
				float64(posting.Frequency),
				float64(doc.Length),
				avgDocLength,
				params,
			)
		}
	}
	return scores
}

// IDF is the smoothed inverse document frequency
// ln((N - df + 0.5) / (df + 0.5) + 1). It is positive for every df <= N.
func IDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64, params Params) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + params.K1*(1-params.B+params.B*lengthRatio)
	return (termFreq * (params.K1 + 1)) / denominator
}
