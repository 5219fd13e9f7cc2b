package layers

import (
	"fmt"
	"math"

	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

type LayerNorm struct {
	Name  string
	D     int
	Eps   float64
	Gamma []float64 // (d)
	Beta  []float64 // (d)
}

func NewLayerNorm(name string, d int, eps float64) *LayerNorm {
	return &LayerNorm{
		Name:  name,
		D:     d,
		Eps:   eps,
		Gamma: utils.OnesLike(d),
		Beta:  make([]float64, d),
	}
}

// Forward normalizes every position over the last axis.
func (ln *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Dim(-1) != ln.D {
		panic(fmt.Sprintf("%s: input width %d, want %d", ln.Name, x.Dim(-1), ln.D))
	}
	out := x.Clone()
	d := ln.D
	for off := 0; off < len(out.Data); off += d {
		row := out.Data[off : off+d]
		mu := 0.0
		for _, v := range row {
			mu += v
		}
		mu /= float64(d)
		var v float64
		for _, val := range row {
			diff := val - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		for i := range row {
			row[i] = ln.Gamma[i]*(row[i]-mu)*istd + ln.Beta[i]
		}
	}
	return out
}

func (ln *LayerNorm) Params() []Param {
	return []Param{
		{Name: ln.Name + ".gamma", Shape: []int{ln.D}, Data: ln.Gamma},
		{Name: ln.Name + ".beta", Shape: []int{ln.D}, Data: ln.Beta},
	}
}
