package deepspeech

import (
	"errors"
	"fmt"

	"github.com/manningwu07/modelzoo/layers"
)

var (
	ErrShape          = errors.New("deepspeech: shape mismatch")
	ErrNegativeLength = errors.New("deepspeech: negative sequence length")
)

// LengthProjector maps valid input frame counts to valid output step counts
// by replaying each convolution's time-axis arithmetic.
type LengthProjector struct {
	Pre    []int // padLeft + padRight - dilation*(kernel-1) - 1 per stage
	Stride []int
}

// NewLengthProjector reads the time-axis (width) geometry of each conv once.
func NewLengthProjector(convs ...*layers.Conv2D) *LengthProjector {
	p := &LengthProjector{}
	for _, c := range convs {
		p.Pre = append(p.Pre, c.PadLeft+c.PadRight-c.DilationW*(c.KernelW-1)-1)
		p.Stride = append(p.Stride, c.StrideW)
	}
	return p
}

// Project returns, for each length, floor((length + pre)/stride) + 1 applied
// stage by stage.
func (p *LengthProjector) Project(lengths []int) ([]int, error) {
	out := make([]int, len(lengths))
	for i, l := range lengths {
		if l < 0 {
			return nil, fmt.Errorf("%w: sample %d has length %d", ErrNegativeLength, i, l)
		}
		for s := range p.Pre {
			l = floorDiv(l+p.Pre[s], p.Stride[s]) + 1
		}
		out[i] = l
	}
	return out, nil
}

// floorDiv rounds toward negative infinity, unlike Go's '/'.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
