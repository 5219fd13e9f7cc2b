package deepspeech

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/manningwu07/modelzoo/tensor"
)

// GreedyDecoder picks the best label per step, merges repeats and drops
// the blank.
type GreedyDecoder struct {
	Labels []rune
	Blank  int
}

func NewGreedyDecoder(labels []rune) *GreedyDecoder {
	return &GreedyDecoder{Labels: labels}
}

// Decode turns (T, N, labels) scores into one transcript per sample,
// reading only the first lengths[n] steps.
func (d *GreedyDecoder) Decode(scores *tensor.Tensor, lengths []int) ([]string, error) {
	if scores.Rank() != 3 || scores.Shape[2] != len(d.Labels) {
		return nil, fmt.Errorf("%w: scores %v for %d labels", ErrShape, scores.Shape, len(d.Labels))
	}
	steps, n, l := scores.Shape[0], scores.Shape[1], scores.Shape[2]
	if len(lengths) != n {
		return nil, fmt.Errorf("%w: %d lengths for batch of %d", ErrShape, len(lengths), n)
	}
	out := make([]string, n)
	for b := 0; b < n; b++ {
		var sb strings.Builder
		prev := -1
		for t := 0; t < min(lengths[b], steps); t++ {
			base := (t*n + b) * l
			best := floats.MaxIdx(scores.Data[base : base+l])
			if best != prev && best != d.Blank {
				sb.WriteRune(d.Labels[best])
			}
			prev = best
		}
		out[b] = sb.String()
	}
	return out, nil
}
