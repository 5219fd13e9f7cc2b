package deepspeech

import (
	"fmt"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/tensor"
)

// SequenceWise applies Module to every (time, batch) position of a
// (T, N, F) tensor by folding T and N into one axis.
type SequenceWise struct {
	Module *layers.Dense
}

func NewSequenceWise(module *layers.Dense) *SequenceWise {
	return &SequenceWise{Module: module}
}

func (s *SequenceWise) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 3 {
		panic(fmt.Sprintf("SequenceWise: input shape %v, want (T, N, F)", x.Shape))
	}
	t, n := x.Shape[0], x.Shape[1]
	y := s.Module.Forward(x.Reshape(t*n, -1))
	return y.Reshape(t, n, -1)
}

func (s *SequenceWise) Params() []layers.Param { return s.Module.Params() }

// InitBindings draws weight and bias from U(-1/fan_in, 1/fan_in).
func (s *SequenceWise) InitBindings() []layers.Binding {
	bound := 1.0 / float64(s.Module.In)
	return layers.Bind(layers.BoundedUniform{Bound: bound}, s.Module.Params()...)
}
