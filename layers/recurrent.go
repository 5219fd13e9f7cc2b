package layers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// Recurrent runs an LSTM, GRU or tanh RNN over time-major (T, N, F) input.
// Bidirectional layers emit (T, N, 2H) with the forward stream first.
type Recurrent struct {
	Name          string
	Kind          params.RNNType
	InputSize     int
	HiddenSize    int
	Bidirectional bool
	Dirs          []*RecurrentWeights
}

// RecurrentWeights holds one direction. Gate blocks are stacked row-wise:
// i,f,g,o for LSTM, r,z,n for GRU.
type RecurrentWeights struct {
	Wih      *mat.Dense // (G*H x In)
	Whh      *mat.Dense // (G*H x H)
	Bih, Bhh []float64  // (G*H), nil without bias
}

func gates(kind params.RNNType) int {
	switch kind {
	case params.GRU:
		return 3
	case params.RNN:
		return 1
	}
	return 4
}

func NewRecurrent(name string, kind params.RNNType, in, hidden int, bidirectional, hasBias bool) *Recurrent {
	r := &Recurrent{
		Name:          name,
		Kind:          kind,
		InputSize:     in,
		HiddenSize:    hidden,
		Bidirectional: bidirectional,
	}
	nd := 1
	if bidirectional {
		nd = 2
	}
	g := gates(kind) * hidden
	for d := 0; d < nd; d++ {
		w := &RecurrentWeights{
			Wih: mat.NewDense(g, in, nil),
			Whh: mat.NewDense(g, hidden, nil),
		}
		if hasBias {
			w.Bih = make([]float64, g)
			w.Bhh = make([]float64, g)
		}
		r.Dirs = append(r.Dirs, w)
	}
	return r
}

func (r *Recurrent) NumDirections() int { return len(r.Dirs) }

func (r *Recurrent) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 3 || x.Shape[2] != r.InputSize {
		panic(fmt.Sprintf("%s: input shape %v, want (T, N, %d)", r.Name, x.Shape, r.InputSize))
	}
	steps, batch := x.Shape[0], x.Shape[1]
	h := r.HiddenSize
	nd := len(r.Dirs)
	out := tensor.New(steps, batch, nd*h)
	for d, w := range r.Dirs {
		// input projections for every step at once: (T*N x G*H)
		xw := utils.Dot(x.Matrix(), w.Wih.T())
		if w.Bih != nil {
			utils.AddRowBias(xw, w.Bih)
		}
		hPrev := mat.NewDense(batch, h, nil)
		cPrev := mat.NewDense(batch, h, nil)
		hw := mat.NewDense(batch, gates(r.Kind)*h, nil)
		for s := 0; s < steps; s++ {
			t := s
			if d == 1 {
				t = steps - 1 - s
			}
			hw.Mul(hPrev, w.Whh.T())
			if w.Bhh != nil {
				utils.AddRowBias(hw, w.Bhh)
			}
			xt := xw.Slice(t*batch, (t+1)*batch, 0, gates(r.Kind)*h).(*mat.Dense)
			r.step(xt, hw, hPrev, cPrev)
			for n := 0; n < batch; n++ {
				base := (t*batch+n)*nd*h + d*h
				copy(out.Data[base:base+h], hPrev.RawRowView(n))
			}
		}
	}
	return out
}

// step updates h (and c for LSTM) in place from the step's input and
// recurrent projections.
func (r *Recurrent) step(xt, hw, h, c *mat.Dense) {
	batch, hidden := h.Dims()
	for n := 0; n < batch; n++ {
		xr, hr := xt.RawRowView(n), hw.RawRowView(n)
		hRow := h.RawRowView(n)
		switch r.Kind {
		case params.LSTM:
			cRow := c.RawRowView(n)
			for j := 0; j < hidden; j++ {
				i := utils.Sigmoid(xr[j] + hr[j])
				f := utils.Sigmoid(xr[hidden+j] + hr[hidden+j])
				g := math.Tanh(xr[2*hidden+j] + hr[2*hidden+j])
				o := utils.Sigmoid(xr[3*hidden+j] + hr[3*hidden+j])
				cRow[j] = f*cRow[j] + i*g
				hRow[j] = o * math.Tanh(cRow[j])
			}
		case params.GRU:
			for j := 0; j < hidden; j++ {
				rg := utils.Sigmoid(xr[j] + hr[j])
				z := utils.Sigmoid(xr[hidden+j] + hr[hidden+j])
				nn := math.Tanh(xr[2*hidden+j] + rg*hr[2*hidden+j])
				hRow[j] = (1-z)*nn + z*hRow[j]
			}
		default:
			for j := 0; j < hidden; j++ {
				hRow[j] = math.Tanh(xr[j] + hr[j])
			}
		}
	}
}

func (r *Recurrent) Params() []Param {
	var ps []Param
	g := gates(r.Kind) * r.HiddenSize
	for d, w := range r.Dirs {
		suffix := ""
		if d == 1 {
			suffix = "_reverse"
		}
		ps = append(ps,
			Param{Name: r.Name + ".weight_ih" + suffix, Shape: []int{g, r.InputSize}, Data: w.Wih.RawMatrix().Data},
			Param{Name: r.Name + ".weight_hh" + suffix, Shape: []int{g, r.HiddenSize}, Data: w.Whh.RawMatrix().Data},
		)
		if w.Bih != nil {
			ps = append(ps,
				Param{Name: r.Name + ".bias_ih" + suffix, Shape: []int{g}, Data: w.Bih},
				Param{Name: r.Name + ".bias_hh" + suffix, Shape: []int{g}, Data: w.Bhh},
			)
		}
	}
	return ps
}

// InitBindings is the usual recurrent default: U(-1/sqrt(H), 1/sqrt(H))
// for every weight and bias.
func (r *Recurrent) InitBindings() []Binding {
	return Bind(BoundedUniform{Bound: 1 / math.Sqrt(float64(r.HiddenSize))}, r.Params()...)
}
