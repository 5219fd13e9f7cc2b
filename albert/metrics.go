package albert

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/manningwu07/modelzoo/tensor"
)

// Span is an answer span over token positions, End inclusive.
type Span struct {
	Start, End int
	Score      float64 // start + end log-probability
}

// BestSpans picks, for each sample of (B, S, 2) span scores, the pair
// start <= end < start+maxLen with the highest combined score. Positions
// whose mask entry is 0 are skipped; a nil mask allows every position.
func BestSpans(logProbs *tensor.Tensor, mask [][]int, maxLen int) ([]Span, error) {
	if logProbs.Rank() != 3 || logProbs.Shape[2] != 2 {
		return nil, fmt.Errorf("%w: span scores %v, want (B, S, 2)", ErrShape, logProbs.Shape)
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("albert: max answer length %d must be positive", maxLen)
	}
	batch, seq := logProbs.Shape[0], logProbs.Shape[1]
	if mask != nil && len(mask) != batch {
		return nil, fmt.Errorf("%w: %d mask rows for batch of %d", ErrShape, len(mask), batch)
	}
	valid := func(b, i int) bool { return mask == nil || (i < len(mask[b]) && mask[b][i] != 0) }

	out := make([]Span, batch)
	for b := 0; b < batch; b++ {
		best := Span{Start: -1, End: -1, Score: math.Inf(-1)}
		for s := 0; s < seq; s++ {
			if !valid(b, s) {
				continue
			}
			for e := s; e < seq && e < s+maxLen; e++ {
				if !valid(b, e) {
					continue
				}
				score := logProbs.At(b, s, 0) + logProbs.At(b, e, 1)
				if score > best.Score {
					best = Span{Start: s, End: e, Score: score}
				}
			}
		}
		out[b] = best
	}
	return out, nil
}

// Accuracy is the share of rows of (B, L) scores whose argmax equals the label.
func Accuracy(scores *tensor.Tensor, labels []int) (float64, error) {
	if scores.Rank() != 2 || scores.Shape[0] != len(labels) {
		return 0, fmt.Errorf("%w: scores %v for %d labels", ErrShape, scores.Shape, len(labels))
	}
	if len(labels) == 0 {
		return 0, nil
	}
	n := scores.Shape[1]
	hits := 0
	for i, want := range labels {
		if floats.MaxIdx(scores.Data[i*n:(i+1)*n]) == want {
			hits++
		}
	}
	return float64(hits) / float64(len(labels)), nil
}

// Spearman is the Pearson correlation of the ranks of x and y, with ties
// given their average rank.
func Spearman(x, y []float64) (float64, error) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, fmt.Errorf("albert: spearman needs two equal series of at least 2 values, got %d and %d", len(x), len(y))
	}
	return stat.Correlation(ranks(x), ranks(y), nil), nil
}

func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	out := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}
