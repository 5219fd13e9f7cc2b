// Package albert holds a compact ALBERT encoder and the two fine-tuning
// heads built on top of any Encoder: sentence classification and
// span extraction.
package albert

import (
	"errors"
	"fmt"

	"github.com/manningwu07/modelzoo/tensor"
)

var ErrShape = errors.New("albert: shape mismatch")

// Batch is one tokenized batch. All three matrices are (B, S); InputMask
// holds 1 for real tokens and 0 for padding.
type Batch struct {
	InputIDs     [][]int
	TokenTypeIDs [][]int
	InputMask    [][]int
}

// Dims validates that the three matrices are rectangular and agree.
func (b Batch) Dims() (batch, seq int, err error) {
	if len(b.InputIDs) == 0 || len(b.InputIDs[0]) == 0 {
		return 0, 0, fmt.Errorf("%w: empty batch", ErrShape)
	}
	batch, seq = len(b.InputIDs), len(b.InputIDs[0])
	for name, m := range map[string][][]int{"input_ids": b.InputIDs, "token_type_ids": b.TokenTypeIDs, "input_mask": b.InputMask} {
		if len(m) != batch {
			return 0, 0, fmt.Errorf("%w: %s has %d rows, want %d", ErrShape, name, len(m), batch)
		}
		for i, row := range m {
			if len(row) != seq {
				return 0, 0, fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrShape, name, i, len(row), seq)
			}
		}
	}
	return batch, seq, nil
}

// EncoderOutput is what a transformer body hands to a head.
type EncoderOutput struct {
	Sequence  *tensor.Tensor // (B, S, H)
	Pooled    *tensor.Tensor // (B, H)
	Embedding *tensor.Tensor // (B, S, E)
}

// Encoder is a pretrained transformer body.
type Encoder interface {
	Forward(b Batch) (*EncoderOutput, error)
}
