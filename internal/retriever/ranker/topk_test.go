package ranker

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopK(t *testing.T) {
	scores := []float64{0.5, 2.0, 0.0, 1.0, 2.0}

	assert.Equal(t, []ScoredDoc{
		{DocID: 1, Score: 2.0},
		{DocID: 4, Score: 2.0},
	}, TopK(scores, 2))

	assert.Equal(t, []ScoredDoc{{DocID: 1, Score: 2.0}}, TopK(scores, 1))
}

func TestTopKTiesByAscendingDocID(t *testing.T) {
	scores := []float64{0, 0, 0, 0}
	assert.Equal(t, []ScoredDoc{
		{DocID: 0, Score: 0},
		{DocID: 1, Score: 0},
		{DocID: 2, Score: 0},
	}, TopK(scores, 3))
}

func TestTopKLargerThanCorpus(t *testing.T) {
	scores := []float64{0.1, 0.3, 0.2}
	assert.Equal(t, []ScoredDoc{
		{DocID: 1, Score: 0.3},
		{DocID: 2, Score: 0.2},
		{DocID: 0, Score: 0.1},
	}, TopK(scores, 5))
}

func TestTopKEmpty(t *testing.T) {
	assert.Empty(t, TopK(nil, 3))
	assert.Empty(t, TopK([]float64{1, 2}, 0))
	assert.Empty(t, TopK([]float64{1, 2}, -1))
}

func TestTopKMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := rng.Intn(40) + 1
		scores := make([]float64, n)
		for i := range scores {
			// Few distinct values so ties are common.
			scores[i] = float64(rng.Intn(5))
		}
		k := rng.Intn(n+3) + 1

		want := make([]ScoredDoc, n)
		for i, s := range scores {
			want[i] = ScoredDoc{DocID: i, Score: s}
		}
		sort.SliceStable(want, func(i, j int) bool {
			return want[i].Score > want[j].Score
		})
		if k < n {
			want = want[:k]
		}
		assert.Equal(t, want, TopK(scores, k), "round %d n=%d k=%d", round, n, k)
	}
}
