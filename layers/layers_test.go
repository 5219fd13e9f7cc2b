package layers

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
)

func randomTensor(src rand.Source, shape ...int) *tensor.Tensor {
	x := tensor.New(shape...)
	Normal{Std: 1}.Fill(x.Data, src)
	return x
}

// naiveConv is the textbook six-loop convolution used as a reference.
func naiveConv(c *Conv2D, x *tensor.Tensor) *tensor.Tensor {
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	ho, wo := c.OutputSize(h, w)
	out := tensor.New(n, c.OutChannels, ho, wo)
	for b := 0; b < n; b++ {
		for o := 0; o < c.OutChannels; o++ {
			for oh := 0; oh < ho; oh++ {
				for ow := 0; ow < wo; ow++ {
					sum := 0.0
					for ch := 0; ch < c.InChannels; ch++ {
						for kh := 0; kh < c.KernelH; kh++ {
							for kw := 0; kw < c.KernelW; kw++ {
								ih := oh*c.StrideH - c.PadTop + kh*c.DilationH
								iw := ow*c.StrideW - c.PadLeft + kw*c.DilationW
								if ih < 0 || ih >= h || iw < 0 || iw >= w {
									continue
								}
								wt := c.Weight.At(o, (ch*c.KernelH+kh)*c.KernelW+kw)
								sum += wt * x.At(b, ch, ih, iw)
							}
						}
					}
					if c.Bias != nil {
						sum += c.Bias[o]
					}
					out.Set(sum, b, o, oh, ow)
				}
			}
		}
	}
	return out
}

func TestConv2DMatchesNaive(t *testing.T) {
	src := rand.NewPCG(7, 7)
	c := NewConv2D("conv", 2, 3, 5, 3, WithStride(2, 1), WithPadding(2, 1, 1, 1), WithDilation(1, 2), WithBias())
	Initialize(Bind(Normal{Std: 0.5}, c.Params()...), src)
	x := randomTensor(src, 2, 2, 9, 7)

	got := c.Forward(x)
	want := naiveConv(c, x)
	if !tensor.SameShape(got.Shape, want.Shape) {
		t.Fatalf("shape %v, want %v", got.Shape, want.Shape)
	}
	if !floats.EqualApprox(got.Data, want.Data, 1e-10) {
		t.Fatalf("im2col conv differs from reference")
	}
}

func TestConvOutLen(t *testing.T) {
	cases := []struct{ in, pa, pb, k, s, d, want int }{
		{100, 5, 5, 11, 2, 1, 50},
		{1, 5, 5, 11, 2, 1, 1},
		{161, 20, 20, 41, 2, 1, 81},
		{81, 10, 10, 21, 2, 1, 41},
		{3, 0, 0, 5, 1, 1, 0},
	}
	for _, c := range cases {
		if got := ConvOutLen(c.in, c.pa, c.pb, c.k, c.s, c.d); got != c.want {
			t.Errorf("ConvOutLen(%+v) = %d", c, got)
		}
	}
}

func TestDenseAppliesOverLastAxis(t *testing.T) {
	d := NewDense("fc", 3, 2, true)
	copy(d.Weight.RawMatrix().Data, []float64{1, 0, 0, 0, 1, 1})
	copy(d.Bias, []float64{0.5, -0.5})
	x := tensor.FromData([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2, 2, 3)
	y := d.Forward(x)
	if !tensor.SameShape(y.Shape, []int{2, 2, 2}) {
		t.Fatalf("shape = %v", y.Shape)
	}
	want := []float64{1.5, 4.5, 4.5, 10.5, 7.5, 16.5, 10.5, 22.5}
	if !floats.Equal(y.Data, want) {
		t.Fatalf("got %v", y.Data)
	}
}

func TestLogSoftmaxAxes(t *testing.T) {
	src := rand.NewPCG(3, 4)
	x := randomTensor(src, 2, 3, 4)
	for _, axis := range []int{0, 1, -1} {
		y := LogSoftmax{Axis: axis}.Forward(x)
		a := y.Axis(axis)
		// exp along the axis must sum to one at every other index
		sums := (&tensor.Tensor{Shape: y.Shape, Data: expAll(y.Data)}).SumAxis(a)
		for _, s := range sums.Data {
			if math.Abs(s-1) > 1e-9 {
				t.Fatalf("axis %d: sum %v", axis, s)
			}
		}
	}
}

func expAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Exp(x)
	}
	return out
}

func TestBatchNormTrainingNormalizes(t *testing.T) {
	src := rand.NewPCG(5, 6)
	bn := NewBatchNorm2d("bn", 3)
	bn.SetTraining(true)
	x := randomTensor(src, 4, 3, 5, 6)
	for i := range x.Data {
		x.Data[i] = 3*x.Data[i] + 2
	}
	y := bn.Forward(x)
	per := y.Transpose(1, 0, 2, 3).Reshape(3, -1)
	for c := 0; c < 3; c++ {
		row := per.Data[c*120 : (c+1)*120]
		mean, variance := stat.MeanVariance(row, nil)
		if math.Abs(mean) > 1e-9 || math.Abs(variance*119/120-1) > 1e-3 {
			t.Fatalf("channel %d: mean %v var %v", c, mean, variance)
		}
	}
	if bn.RunningMean[0] == 0 {
		t.Fatalf("running mean not updated")
	}
}

func TestBatchNormInferenceUsesRunningStats(t *testing.T) {
	bn := NewBatchNorm1d("bn", 2)
	x := tensor.FromData([]float64{1, 2, 3, 4}, 2, 1, 2)
	y := bn.Forward(x)
	scale := 1 / math.Sqrt(1+bn.Eps)
	for i, v := range x.Data {
		if math.Abs(y.Data[i]-v*scale) > 1e-12 {
			t.Fatalf("index %d: %v", i, y.Data[i])
		}
	}
}

func TestLayerNorm(t *testing.T) {
	ln := NewLayerNorm("ln", 4, 1e-12)
	y := ln.Forward(tensor.FromData([]float64{1, 2, 3, 4, 10, 10, 10, 10}, 2, 4))
	mean, variance := stat.MeanVariance(y.Data[:4], nil)
	if math.Abs(mean) > 1e-9 || math.Abs(variance*3/4-1) > 1e-6 {
		t.Fatalf("row 0: mean %v var %v", mean, variance)
	}
	for _, v := range y.Data[4:] {
		if v != 0 {
			t.Fatalf("constant row should normalize to 0, got %v", v)
		}
	}
}

func reverseTime(x *tensor.Tensor) *tensor.Tensor {
	steps := x.Shape[0]
	block := x.Size() / steps
	out := tensor.New(x.Shape...)
	for s := 0; s < steps; s++ {
		copy(out.Data[s*block:(s+1)*block], x.Data[(steps-1-s)*block:(steps-s)*block])
	}
	return out
}

func TestRecurrentReverseDirection(t *testing.T) {
	for _, kind := range []params.RNNType{params.LSTM, params.GRU, params.RNN} {
		src := rand.NewPCG(11, uint64(kind))
		bi := NewRecurrent("rnn", kind, 3, 4, true, true)
		Initialize(bi.InitBindings(), src)
		x := randomTensor(src, 5, 2, 3)
		y := bi.Forward(x)
		if !tensor.SameShape(y.Shape, []int{5, 2, 8}) {
			t.Fatalf("%v: shape %v", kind, y.Shape)
		}

		// the reverse stream equals a forward pass over reversed time
		uni := NewRecurrent("rnn", kind, 3, 4, false, true)
		uni.Dirs[0] = bi.Dirs[1]
		r := reverseTime(uni.Forward(reverseTime(x)))
		for i := 0; i < 5*2; i++ {
			got := y.Data[i*8+4 : i*8+8]
			want := r.Data[i*4 : i*4+4]
			if !floats.EqualApprox(got, want, 1e-12) {
				t.Fatalf("%v: position %d reverse %v want %v", kind, i, got, want)
			}
		}
	}
}

func TestRecurrentInitBindingsBound(t *testing.T) {
	r := NewRecurrent("rnn", params.LSTM, 6, 16, false, true)
	Initialize(r.InitBindings(), rand.NewPCG(1, 1))
	for _, p := range r.Params() {
		if floats.Max(p.Data) > 0.25 || floats.Min(p.Data) < -0.25 {
			t.Fatalf("%s outside ±1/sqrt(16)", p.Name)
		}
	}
}

func TestInitSchemes(t *testing.T) {
	src := rand.NewPCG(42, 42)
	u := make([]float64, 20000)
	BoundedUniform{Bound: 0.1}.Fill(u, src)
	if floats.Max(u) > 0.1 || floats.Min(u) < -0.1 {
		t.Fatalf("uniform sample out of range")
	}

	n := make([]float64, 50000)
	std := math.Sqrt(2.0 / (41 * 11 * 32))
	Normal{Std: std}.Fill(n, src)
	if got := stat.StdDev(n, nil); math.Abs(got-std)/std > 0.02 {
		t.Fatalf("normal std %v, want %v", got, std)
	}

	tn := make([]float64, 20000)
	TruncatedNormal{Std: 0.02}.Fill(tn, src)
	if floats.Max(tn) > 0.04 || floats.Min(tn) < -0.04 {
		t.Fatalf("truncated normal beyond 2 std")
	}
}

func TestDropout(t *testing.T) {
	x := tensor.FromData(make([]float64, 1000), 10, 100)
	for i := range x.Data {
		x.Data[i] = 1
	}
	d := NewDropout(0.3, false)
	if y := d.Forward(x); !floats.Equal(y.Data, x.Data) {
		t.Fatalf("inference dropout must be the identity")
	}
	d.SetTraining(true)
	d.Src = rand.NewPCG(9, 9)
	y := d.Forward(x)
	zeros := 0
	for _, v := range y.Data {
		switch {
		case v == 0:
			zeros++
		case math.Abs(v-1/0.7) > 1e-12:
			t.Fatalf("survivor scaled to %v", v)
		}
	}
	if zeros < 200 || zeros > 400 {
		t.Fatalf("dropped %d of 1000 at p=0.3", zeros)
	}
}

func TestEmbeddingLookupRejectsOutOfRange(t *testing.T) {
	e := NewEmbedding("emb", 4, 2)
	if _, err := e.Lookup([][]int{{0, 4}}); err == nil {
		t.Fatalf("expected error for id 4")
	}
	if _, err := e.Lookup([][]int{{0, 1}, {2}}); err == nil {
		t.Fatalf("expected error for ragged batch")
	}
}
