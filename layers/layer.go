// Package layers is the small layer library both models are wired from:
// dense, 2-D convolution, batch/layer normalization, recurrent cells,
// dropout, activations and log-softmax. Every layer computes with gonum.
package layers

import (
	"github.com/manningwu07/modelzoo/tensor"
)

// Layer is the single forward capability every layer variant provides.
type Layer interface {
	Forward(x *tensor.Tensor) *tensor.Tensor
}

// Param is a named view of a learnable array. Data aliases the layer's
// storage, so writing to it updates the layer.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
}

// Parametric layers expose their learnable arrays.
type Parametric interface {
	Params() []Param
}

// Trainable layers behave differently in training and inference.
type Trainable interface {
	SetTraining(training bool)
}

// Sequential applies layers in order.
type Sequential []Layer

func (s Sequential) Forward(x *tensor.Tensor) *tensor.Tensor {
	for _, l := range s {
		x = l.Forward(x)
	}
	return x
}

func (s Sequential) SetTraining(training bool) {
	for _, l := range s {
		if t, ok := l.(Trainable); ok {
			t.SetTraining(training)
		}
	}
}

// CollectParams concatenates Params of every Parametric in ls.
func CollectParams(ls ...any) []Param {
	var out []Param
	for _, l := range ls {
		if p, ok := l.(Parametric); ok {
			out = append(out, p.Params()...)
		}
	}
	return out
}
