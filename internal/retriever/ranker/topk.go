package ranker

import "container/heap"

// TopK returns the k highest scores ordered by descending score, with ties
// broken by ascending document id. When k exceeds len(scores) every
// document is returned. k <= 0 yields an empty result.
func TopK(scores []float64, k int) []ScoredDoc {
	if k <= 0 || len(scores) == 0 {
		return []ScoredDoc{}
	}
	if k > len(scores) {
		k = len(scores)
	}
	h := make(scoredDocHeap, 0, k+1)
	for id, score := range scores {
		doc := ScoredDoc{DocID: id, Score: score}
		if h.Len() < k {
			heap.Push(&h, doc)
			continue
		}
		// h[0] is the current worst of the kept set.
		if worse(h[0], doc) {
			h[0] = doc
			heap.Fix(&h, 0)
		}
	}
	result := make([]ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ScoredDoc)
	}
	return result
}

// worse reports whether a ranks below b.
func worse(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

// scoredDocHeap is a min-heap on rank: the root is the worst kept document.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
