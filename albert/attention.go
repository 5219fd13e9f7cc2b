package albert

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// maskValue is added to attention scores of padded keys.
const maskValue = -10000.0

type Attention struct {
	Name   string
	H      int
	dModel int
	dHead  int

	// per head: (dHead x dModel) and (dHead)
	Wquery, Wkey, Wvalue []*mat.Dense
	Bquery, Bkey, Bvalue [][]float64

	Output  *layers.Dense
	Dropout *layers.Dropout // on attention probabilities
	Compute utils.ComputeType

	parallel bool // one goroutine per head
	T        int  // forward calls, for debug sampling
}

func NewAttention(name string, dModel, heads int, probsDropout float64, training bool, compute utils.ComputeType) *Attention {
	h := utils.ChooseValidHeads(dModel, heads)
	attn := &Attention{
		Name:     name,
		H:        h,
		dModel:   dModel,
		dHead:    dModel / h,
		Output:   layers.NewDense(name+".output.dense", dModel, dModel, true),
		Dropout:  layers.NewDropout(probsDropout, training),
		Compute:  compute,
		parallel: params.ParallelHeads,
	}
	attn.Output.Compute = compute
	for i := 0; i < h; i++ {
		attn.Wquery = append(attn.Wquery, mat.NewDense(attn.dHead, dModel, nil))
		attn.Wkey = append(attn.Wkey, mat.NewDense(attn.dHead, dModel, nil))
		attn.Wvalue = append(attn.Wvalue, mat.NewDense(attn.dHead, dModel, nil))
		attn.Bquery = append(attn.Bquery, make([]float64, attn.dHead))
		attn.Bkey = append(attn.Bkey, make([]float64, attn.dHead))
		attn.Bvalue = append(attn.Bvalue, make([]float64, attn.dHead))
	}
	return attn
}

// paddingMask turns an input mask row into additive scores: 0 for real
// tokens, maskValue for padding.
func paddingMask(row []int) []float64 {
	out := make([]float64, len(row))
	for i, m := range row {
		if m == 0 {
			out[i] = maskValue
		}
	}
	return out
}

func (attn *Attention) project(dst *mat.Dense, x *mat.Dense, w *mat.Dense, b []float64) {
	dst.Mul(x, w.T())
	utils.AddRowBias(dst, b)
	utils.Cast(dst.RawMatrix().Data, attn.Compute)
}

// Forward attends over (B, S, dModel) with one additive mask row per sample.
func (attn *Attention) Forward(x *tensor.Tensor, masks [][]float64) *tensor.Tensor {
	if x.Rank() != 3 || x.Shape[2] != attn.dModel {
		panic(fmt.Sprintf("%s: input %v, want (B, S, %d)", attn.Name, x.Shape, attn.dModel))
	}
	b, s := x.Shape[0], x.Shape[1]
	attn.T++
	debug := utils.DebugStep(attn.T)
	headsCat := tensor.New(b, s, attn.dModel)
	rescale := 1.0 / math.Sqrt(float64(attn.dHead))
	stride := s * attn.dModel

	for i := 0; i < b; i++ {
		X := mat.NewDense(s, attn.dModel, x.Data[i*stride:(i+1)*stride])
		cat := mat.NewDense(s, attn.dModel, headsCat.Data[i*stride:(i+1)*stride])
		mask := masks[i]

		work := func(h int) {
			q := mat.NewDense(s, attn.dHead, nil)
			k := mat.NewDense(s, attn.dHead, nil)
			v := mat.NewDense(s, attn.dHead, nil)
			attn.project(q, X, attn.Wquery[h], attn.Bquery[h])
			attn.project(k, X, attn.Wkey[h], attn.Bkey[h])
			attn.project(v, X, attn.Wvalue[h], attn.Bvalue[h])

			// S = QKᵀ/sqrt(dHead), softmax over keys
			scores := mat.NewDense(s, s, nil)
			scores.Mul(q, k.T())
			scores.Scale(rescale, scores)
			utils.RowSoftmaxMaskedInPlace(scores, scores, mask)
			if debug && i == 0 && h == 0 {
				utils.Debugf("%s call %d: head0 max prob %.4f", attn.Name, attn.T, mat.Max(scores))
			}
			probs := attn.Dropout.Forward(tensor.FromMatrix(scores)).Matrix()

			dst := cat.Slice(0, s, h*attn.dHead, (h+1)*attn.dHead).(*mat.Dense)
			dst.Mul(probs, v)
		}
		if attn.parallel && attn.H > 1 {
			var wg sync.WaitGroup
			wg.Add(attn.H)
			for h := 0; h < attn.H; h++ {
				go func() { defer wg.Done(); work(h) }()
			}
			wg.Wait()
		} else {
			for h := 0; h < attn.H; h++ {
				work(h)
			}
		}
	}
	return attn.Output.Forward(headsCat)
}

func (attn *Attention) SetTraining(training bool) { attn.Dropout.SetTraining(training) }

func (attn *Attention) Params() []layers.Param {
	var ps []layers.Param
	for h := 0; h < attn.H; h++ {
		for _, p := range []struct {
			kind string
			w    *mat.Dense
			b    []float64
		}{{"query", attn.Wquery[h], attn.Bquery[h]}, {"key", attn.Wkey[h], attn.Bkey[h]}, {"value", attn.Wvalue[h], attn.Bvalue[h]}} {
			name := fmt.Sprintf("%s.%s.head%d", attn.Name, p.kind, h)
			ps = append(ps,
				layers.Param{Name: name + ".weight", Shape: []int{attn.dHead, attn.dModel}, Data: p.w.RawMatrix().Data},
				layers.Param{Name: name + ".bias", Shape: []int{attn.dHead}, Data: p.b})
		}
	}
	return append(ps, attn.Output.Params()...)
}
