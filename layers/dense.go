package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// Dense computes x·Wᵀ + b over the last axis of x.
type Dense struct {
	Name    string
	In, Out int
	Weight  *mat.Dense // (Out x In)
	Bias    []float64  // nil when the layer has no bias
	Compute utils.ComputeType
}

func NewDense(name string, in, out int, hasBias bool) *Dense {
	d := &Dense{
		Name:   name,
		In:     in,
		Out:    out,
		Weight: mat.NewDense(out, in, nil),
	}
	if hasBias {
		d.Bias = make([]float64, out)
	}
	return d
}

func (d *Dense) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Dim(-1) != d.In {
		panic(fmt.Sprintf("%s: input width %d, want %d", d.Name, x.Dim(-1), d.In))
	}
	m := x.Matrix()
	rows, _ := m.Dims()
	out := mat.NewDense(rows, d.Out, nil)
	out.Mul(m, d.Weight.T())
	if d.Bias != nil {
		utils.AddRowBias(out, d.Bias)
	}
	shape := append(append([]int(nil), x.Shape[:x.Rank()-1]...), d.Out)
	res := tensor.FromMatrix(out, shape...)
	utils.Cast(res.Data, d.Compute)
	return res
}

func (d *Dense) Params() []Param {
	ps := []Param{{Name: d.Name + ".weight", Shape: []int{d.Out, d.In}, Data: d.Weight.RawMatrix().Data}}
	if d.Bias != nil {
		ps = append(ps, Param{Name: d.Name + ".bias", Shape: []int{d.Out}, Data: d.Bias})
	}
	return ps
}
