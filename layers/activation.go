package layers

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// Activation applies Fn elementwise.
type Activation struct {
	Kind string
	Fn   func(i, j int, v float64) float64
}

func Tanh() Activation { return Activation{Kind: "tanh", Fn: utils.TanhApply} }

func GELU() Activation { return Activation{Kind: "gelu", Fn: utils.GeluApply} }

func (a Activation) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.FromMatrix(utils.Apply(a.Fn, x.Matrix()), x.Shape...)
}

// Dropout zeroes each value with probability Prob and rescales survivors by
// 1/(1-Prob). It is the identity outside training.
type Dropout struct {
	Prob     float64
	Training bool
	Src      rand.Source // nil uses the global generator
}

func NewDropout(prob float64, training bool) *Dropout {
	if prob < 0 || prob > 1 {
		panic(fmt.Sprintf("dropout: probability %v outside [0, 1]", prob))
	}
	return &Dropout{Prob: prob, Training: training}
}

func (d *Dropout) SetTraining(training bool) { d.Training = training }

func (d *Dropout) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !d.Training || d.Prob == 0 {
		return x
	}
	out := x.Clone()
	if d.Prob >= 1 {
		clear(out.Data)
		return out
	}
	keep := 1 - d.Prob
	mask := distuv.Bernoulli{P: keep, Src: d.Src}
	for i := range out.Data {
		out.Data[i] *= mask.Rand() / keep
	}
	return out
}

// LogSoftmax normalizes along Axis; negative values count from the end.
type LogSoftmax struct{ Axis int }

func (l LogSoftmax) Forward(x *tensor.Tensor) *tensor.Tensor {
	axis := x.Axis(l.Axis)
	outer, inner := 1, 1
	for i := 0; i < axis; i++ {
		outer *= x.Shape[i]
	}
	for i := axis + 1; i < x.Rank(); i++ {
		inner *= x.Shape[i]
	}
	n := x.Shape[axis]
	out := x.Clone()
	for o := 0; o < outer; o++ {
		base := o * n * inner
		if inner == 1 {
			utils.LogSoftmaxInPlace(out.Data[base : base+n])
			continue
		}
		for i := 0; i < inner; i++ {
			utils.LogSoftmaxStrided(out.Data, base+i, n, inner)
		}
	}
	return out
}
