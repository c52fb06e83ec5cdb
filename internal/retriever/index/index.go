// Package index builds the immutable corpus statistics BM25 scoring reads:
// per-document term frequencies and lengths, per-term document frequency,
// and the average document length.
package index

import (
	"maps"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/tokenizer"
)

// Index is a fully built corpus. It is never mutated after Build returns,
// so any number of goroutines may read it concurrently.
type Index struct {
	docs         []Document
	termFreqs    []map[string]int
	postings     map[string]PostingList
	totalTokens  int64
	avgDocLength float64
}

// Build tokenizes every input and computes the corpus statistics in one
// pass. An empty batch yields an empty, queryable index.
func Build(inputs []Input) *Index {
	idx := &Index{
		docs:      make([]Document, 0, len(inputs)),
		termFreqs: make([]map[string]int, 0, len(inputs)),
		postings:  make(map[string]PostingList),
	}
	for id, in := range inputs {
		terms := tokenizer.Terms(in.Text)
		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		// Documents are visited in id order, so every posting list stays sorted.
		for term, freq := range freqs {
			idx.postings[term] = append(idx.postings[term], Posting{
				DocID:     id,
				Frequency: freq,
			})
		}
		metadata := maps.Clone(in.Metadata)
		if metadata == nil {
			metadata = make(map[string]any)
		}
		idx.docs = append(idx.docs, Document{
			ID:       id,
			Terms:    terms,
			Length:   len(terms),
			Text:     in.Text,
			Metadata: metadata,
		})
		idx.termFreqs = append(idx.termFreqs, freqs)
		idx.totalTokens += int64(len(terms))
	}
	if len(idx.docs) > 0 {
		idx.avgDocLength = float64(idx.totalTokens) / float64(len(idx.docs))
	}
	return idx
}

// DocCount returns N, the number of documents in the corpus.
func (i *Index) DocCount() int {
	return len(i.docs)
}

// AvgDocLength returns the mean token count per document, or 0 for an
// empty corpus.
func (i *Index) AvgDocLength() float64 {
	return i.avgDocLength
}

// TotalTokens returns the sum of all document lengths.
func (i *Index) TotalTokens() int64 {
	return i.totalTokens
}

// VocabularySize returns the number of distinct terms.
func (i *Index) VocabularySize() int {
	return len(i.postings)
}

// DocFreq returns how many documents contain term at least once.
func (i *Index) DocFreq(term string) int {
	return len(i.postings[term])
}

// Postings returns the posting list for term, or nil if the term is not in
// the vocabulary. The returned slice must not be modified.
func (i *Index) Postings(term string) PostingList {
	return i.postings[term]
}

// TermFreq returns the number of occurrences of term in document id.
func (i *Index) TermFreq(id int, term string) int {
	if id < 0 || id >= len(i.termFreqs) {
		return 0
	}
	return i.termFreqs[id][term]
}

// Doc returns the document with the given id.
func (i *Index) Doc(id int) (Document, bool) {
	if id < 0 || id >= len(i.docs) {
		return Document{}, false
	}
	return i.docs[id], true
}
