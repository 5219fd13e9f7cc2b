package albert

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
)

func tinyConfig() params.AlbertConfig {
	return params.AlbertConfig{
		VocabSize:                 20,
		EmbeddingSize:             4,
		HiddenSize:                8,
		NumHiddenLayers:           2,
		NumAttentionHeads:         2,
		IntermediateSize:          16,
		MaxPositionEmbeddings:     10,
		TypeVocabSize:             2,
		HiddenDropoutProb:         0.1,
		AttentionProbsDropoutProb: 0.1,
		InitializerRange:          0.02,
		LayerNormEps:              1e-12,
		ComputeType:               "float64",
		DType:                     "float64",
	}
}

// fakeEncoder returns fixed outputs regardless of the batch.
type fakeEncoder struct{ out *EncoderOutput }

func (f fakeEncoder) Forward(Batch) (*EncoderOutput, error) { return f.out, nil }

func randomTensor(src rand.Source, shape ...int) *tensor.Tensor {
	x := tensor.New(shape...)
	layers.Normal{Std: 1}.Fill(x.Data, src)
	return x
}

func tinyBatch() Batch {
	return Batch{
		InputIDs:     [][]int{{2, 5, 7, 3, 0, 0}, {2, 9, 3, 11, 4, 3}},
		TokenTypeIDs: [][]int{{0, 0, 0, 0, 0, 0}, {0, 0, 0, 1, 1, 1}},
		InputMask:    [][]int{{1, 1, 1, 1, 0, 0}, {1, 1, 1, 1, 1, 1}},
	}
}

func checkLogSoftmaxRows(t *testing.T, x *tensor.Tensor) {
	t.Helper()
	n := x.Dim(-1)
	for off := 0; off < len(x.Data); off += n {
		if s := floats.LogSumExp(x.Data[off : off+n]); math.Abs(s) > 1e-9 {
			t.Fatalf("row at %d has logsumexp %g", off, s)
		}
	}
}

func TestCLSModelLogSoftmaxUnlessSpearman(t *testing.T) {
	src := rand.NewPCG(1, 2)
	cfg := tinyConfig()
	enc := fakeEncoder{&EncoderOutput{Pooled: randomTensor(src, 3, cfg.HiddenSize)}}

	for _, method := range []string{AssessAccuracy, AssessF1, AssessMCC, ""} {
		c, err := NewCLSModel(cfg, false, 4, 0.1, method, WithEncoder(enc))
		if err != nil {
			t.Fatal(err)
		}
		c.Initialize(src)
		out, err := c.Forward(Batch{})
		if err != nil {
			t.Fatal(err)
		}
		if !tensor.SameShape(out.Shape, []int{3, 4}) {
			t.Fatalf("%q: shape %v", method, out.Shape)
		}
		checkLogSoftmaxRows(t, out)
	}

	c, err := NewCLSModel(cfg, false, 1, 0.1, SpearmanCorrelation, WithEncoder(enc))
	if err != nil {
		t.Fatal(err)
	}
	c.Initialize(src)
	out, err := c.Forward(Batch{})
	if err != nil {
		t.Fatal(err)
	}
	want := c.Dense.Forward(enc.out.Pooled)
	if !floats.EqualApprox(out.Data, want.Data, 1e-12) {
		t.Fatalf("spearman scores %v, want raw %v", out.Data, want.Data)
	}
}

func TestCLSModelRejectsUnknownAssessment(t *testing.T) {
	enc := fakeEncoder{&EncoderOutput{Pooled: tensor.New(1, tinyConfig().HiddenSize)}}
	if _, err := NewCLSModel(tinyConfig(), false, 2, 0, "auc", WithEncoder(enc)); err == nil {
		t.Fatal("unknown assessment accepted")
	}
}

func TestCLSModelRejectsPooledWidth(t *testing.T) {
	enc := fakeEncoder{&EncoderOutput{Pooled: tensor.New(2, 5)}}
	c, err := NewCLSModel(tinyConfig(), false, 2, 0, AssessAccuracy, WithEncoder(enc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Forward(Batch{}); !errors.Is(err, ErrShape) {
		t.Fatalf("want ErrShape, got %v", err)
	}
}

func TestHeadsDoNotMutateConfig(t *testing.T) {
	cfg := tinyConfig()
	c, err := NewCLSModel(cfg, false, 2, 0.3, AssessAccuracy)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HiddenDropoutProb != 0.1 || cfg.AttentionProbsDropoutProb != 0.1 {
		t.Fatalf("caller config changed: %+v", cfg)
	}
	if c.Config.HiddenDropoutProb != 0 || c.Config.AttentionProbsDropoutProb != 0 {
		t.Fatalf("inference head kept dropout: %+v", c.Config)
	}
	if c.Dropout.Prob != 0 {
		t.Fatalf("inference head dropout %g", c.Dropout.Prob)
	}
	tr, err := NewCLSModel(cfg, true, 2, 0.3, AssessAccuracy)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Config.HiddenDropoutProb != 0.1 || tr.Dropout.Prob != 0.3 {
		t.Fatalf("training head lost dropout: %+v %g", tr.Config, tr.Dropout.Prob)
	}
}

func TestSquadModelShapeAndNormalization(t *testing.T) {
	src := rand.NewPCG(3, 4)
	cfg := tinyConfig()
	enc := fakeEncoder{&EncoderOutput{Sequence: randomTensor(src, 2, 5, cfg.HiddenSize)}}
	s, err := NewSquadModel(cfg, false, 2, WithEncoder(enc))
	if err != nil {
		t.Fatal(err)
	}
	s.Initialize(src)
	out, err := s.Forward(Batch{})
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.SameShape(out.Shape, []int{2, 5, 2}) {
		t.Fatalf("shape %v", out.Shape)
	}
	checkLogSoftmaxRows(t, out)
}

func TestModelForwardShapes(t *testing.T) {
	cfg := tinyConfig()
	m, err := NewModel(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	m.Initialize(rand.NewPCG(5, 6))
	out, err := m.Forward(tinyBatch())
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.SameShape(out.Sequence.Shape, []int{2, 6, cfg.HiddenSize}) {
		t.Errorf("sequence %v", out.Sequence.Shape)
	}
	if !tensor.SameShape(out.Pooled.Shape, []int{2, cfg.HiddenSize}) {
		t.Errorf("pooled %v", out.Pooled.Shape)
	}
	if !tensor.SameShape(out.Embedding.Shape, []int{2, 6, cfg.EmbeddingSize}) {
		t.Errorf("embedding %v", out.Embedding.Shape)
	}
	for _, v := range out.Pooled.Data {
		if math.Abs(v) > 1 {
			t.Fatalf("pooled value %g outside tanh range", v)
		}
	}
}

func TestModelIgnoresPaddedTokens(t *testing.T) {
	cfg := tinyConfig()
	m, err := NewModel(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	m.Initialize(rand.NewPCG(7, 8))
	a := tinyBatch()
	b := tinyBatch()
	b.InputIDs[0][4], b.InputIDs[0][5] = 17, 13

	outA, err := m.Forward(a)
	if err != nil {
		t.Fatal(err)
	}
	outB, err := m.Forward(b)
	if err != nil {
		t.Fatal(err)
	}
	n := 4 * cfg.HiddenSize
	if !floats.EqualApprox(outA.Sequence.Data[:n], outB.Sequence.Data[:n], 1e-12) {
		t.Fatal("padding ids changed the encoding of real tokens")
	}
	if !floats.EqualApprox(outA.Pooled.Data, outB.Pooled.Data, 1e-12) {
		t.Fatal("padding ids changed the pooled output")
	}
}

func TestParallelHeadsMatchSerial(t *testing.T) {
	src := rand.NewPCG(9, 10)
	attn := NewAttention("attn", 8, 4, 0, false, 0)
	layers.Initialize(layers.Bind(layers.Normal{Std: 0.3}, attn.Params()...), src)
	x := randomTensor(src, 2, 3, 8)
	masks := [][]float64{paddingMask([]int{1, 1, 0}), paddingMask([]int{1, 1, 1})}

	serial := attn.Forward(x, masks)
	attn.parallel = true
	parallel := attn.Forward(x, masks)
	if !floats.EqualApprox(serial.Data, parallel.Data, 1e-12) {
		t.Fatal("parallel heads differ from serial")
	}
}

func TestModelRejectsBadBatch(t *testing.T) {
	m, err := NewModel(tinyConfig(), false)
	if err != nil {
		t.Fatal(err)
	}
	ragged := tinyBatch()
	ragged.InputMask[1] = ragged.InputMask[1][:3]
	if _, err := m.Forward(ragged); !errors.Is(err, ErrShape) {
		t.Errorf("ragged mask: got %v", err)
	}
	long := Batch{
		InputIDs:     [][]int{make([]int, 11)},
		TokenTypeIDs: [][]int{make([]int, 11)},
		InputMask:    [][]int{make([]int, 11)},
	}
	if _, err := m.Forward(long); !errors.Is(err, ErrShape) {
		t.Errorf("too long: got %v", err)
	}
	bad := tinyBatch()
	bad.InputIDs[0][0] = 99
	if _, err := m.Forward(bad); err == nil {
		t.Error("out of vocab id accepted")
	}
}

func TestInitBindingsTruncated(t *testing.T) {
	cfg := tinyConfig()
	s, err := NewSquadModel(cfg, false, 2)
	if err != nil {
		t.Fatal(err)
	}
	s.Initialize(rand.NewPCG(11, 12))
	for _, v := range s.Dense.Weight.RawMatrix().Data {
		if math.Abs(v) > 2*cfg.InitializerRange {
			t.Fatalf("weight %g beyond two std", v)
		}
	}
	body := s.Body.(*Model)
	for _, v := range body.EmbeddingNorm.Gamma {
		if v != 1 {
			t.Fatalf("layernorm gamma %g", v)
		}
	}
}

func TestBestSpans(t *testing.T) {
	scores := tensor.New(1, 4, 2)
	for i := range scores.Data {
		scores.Data[i] = -10
	}
	scores.Set(-0.1, 0, 2, 0) // start at 2
	scores.Set(-0.2, 0, 1, 1) // end before start
	scores.Set(-0.5, 0, 3, 1)

	spans, err := BestSpans(scores, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if spans[0].Start != 2 || spans[0].End != 3 {
		t.Fatalf("span %+v", spans[0])
	}
	spans, _ = BestSpans(scores, [][]int{{1, 1, 1, 0}}, 4)
	if spans[0].End == 3 {
		t.Fatalf("masked end chosen: %+v", spans[0])
	}
}

func TestAccuracy(t *testing.T) {
	scores := tensor.FromData([]float64{0.1, 0.9, 0.8, 0.2, 0.3, 0.7}, 3, 2)
	acc, err := Accuracy(scores, []int{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(acc-2.0/3.0) > 1e-12 {
		t.Fatalf("accuracy %g", acc)
	}
}

func TestSpearman(t *testing.T) {
	cases := []struct {
		x, y []float64
		want float64
	}{
		{[]float64{1, 2, 3, 4}, []float64{10, 20, 30, 1000}, 1},
		{[]float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}, -1},
		{[]float64{1, 2, 2, 3}, []float64{1, 2, 2, 3}, 1},
	}
	for _, tc := range cases {
		got, err := Spearman(tc.x, tc.y)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Spearman(%v, %v) = %g, want %g", tc.x, tc.y, got, tc.want)
		}
	}
	if _, err := Spearman([]float64{1}, []float64{1}); err == nil {
		t.Error("single value accepted")
	}
}
