package layers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// BatchNorm normalizes each feature along Axis using batch statistics while
// training and running statistics otherwise. Axis 1 on NCHW input is the
// 2-D variant; Axis -1 on (T, N, F) input is the 1-D variant.
type BatchNorm struct {
	Name        string
	Features    int
	Axis        int
	Gamma       []float64 // learnable scale
	Beta        []float64 // learnable shift
	RunningMean []float64
	RunningVar  []float64
	Momentum    float64 // weight kept by the running stats on update
	Eps         float64
	Training    bool
}

func newBatchNorm(name string, features, axis int) *BatchNorm {
	return &BatchNorm{
		Name:        name,
		Features:    features,
		Axis:        axis,
		Gamma:       utils.OnesLike(features),
		Beta:        make([]float64, features),
		RunningMean: make([]float64, features),
		RunningVar:  utils.OnesLike(features),
		Momentum:    0.9,
		Eps:         1e-5,
	}
}

// NewBatchNorm2d normalizes channels of NCHW input.
func NewBatchNorm2d(name string, channels int) *BatchNorm { return newBatchNorm(name, channels, 1) }

// NewBatchNorm1d normalizes the last axis.
func NewBatchNorm1d(name string, features int) *BatchNorm { return newBatchNorm(name, features, -1) }

func (bn *BatchNorm) SetTraining(training bool) { bn.Training = training }

func (bn *BatchNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	axis := x.Axis(bn.Axis)
	if x.Shape[axis] != bn.Features {
		panic(fmt.Sprintf("%s: axis %d has %d features, want %d", bn.Name, axis, x.Shape[axis], bn.Features))
	}
	outer, inner := 1, 1
	for i := 0; i < axis; i++ {
		outer *= x.Shape[i]
	}
	for i := axis + 1; i < x.Rank(); i++ {
		inner *= x.Shape[i]
	}
	out := x.Clone()
	buf := make([]float64, outer*inner)
	for f := 0; f < bn.Features; f++ {
		for o := 0; o < outer; o++ {
			copy(buf[o*inner:(o+1)*inner], x.Data[(o*bn.Features+f)*inner:(o*bn.Features+f+1)*inner])
		}
		mean, variance := bn.RunningMean[f], bn.RunningVar[f]
		if bn.Training {
			var unbiased float64
			mean, unbiased = stat.MeanVariance(buf, nil)
			n := float64(len(buf))
			variance = 0
			if n > 1 {
				variance = unbiased * (n - 1) / n
			} else {
				unbiased = 0
			}
			bn.RunningMean[f] = bn.Momentum*bn.RunningMean[f] + (1-bn.Momentum)*mean
			bn.RunningVar[f] = bn.Momentum*bn.RunningVar[f] + (1-bn.Momentum)*unbiased
		}
		scale := bn.Gamma[f] / math.Sqrt(variance+bn.Eps)
		shift := bn.Beta[f] - mean*scale
		for o := 0; o < outer; o++ {
			seg := out.Data[(o*bn.Features+f)*inner : (o*bn.Features+f+1)*inner]
			for i, v := range seg {
				seg[i] = v*scale + shift
			}
		}
	}
	return out
}

func (bn *BatchNorm) Params() []Param {
	return []Param{
		{Name: bn.Name + ".gamma", Shape: []int{bn.Features}, Data: bn.Gamma},
		{Name: bn.Name + ".beta", Shape: []int{bn.Features}, Data: bn.Beta},
		{Name: bn.Name + ".moving_mean", Shape: []int{bn.Features}, Data: bn.RunningMean},
		{Name: bn.Name + ".moving_variance", Shape: []int{bn.Features}, Data: bn.RunningVar},
	}
}
