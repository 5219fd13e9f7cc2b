package albert

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// Assessment methods understood by the classification head.
const (
	AssessAccuracy      = "accuracy"
	AssessF1            = "f1"
	AssessMCC           = "mcc"
	SpearmanCorrelation = "spearman_correlation"
)

type HeadOption func(*headOptions)

type headOptions struct {
	encoder Encoder
}

// WithEncoder replaces the ALBERT body a head would otherwise build.
func WithEncoder(e Encoder) HeadOption {
	return func(o *headOptions) { o.encoder = e }
}

type head struct {
	Config  params.AlbertConfig
	Body    Encoder
	Dense   *layers.Dense
	DType   utils.ComputeType
	Compute utils.ComputeType
}

func newHead(name string, cfg params.AlbertConfig, isTraining bool, numLabels int, opts []HeadOption) (*head, error) {
	if numLabels <= 0 {
		return nil, fmt.Errorf("%s: num_labels=%d must be positive", name, numLabels)
	}
	if !isTraining {
		cfg = cfg.ForInference()
	}
	compute, err := utils.ParseComputeType(cfg.ComputeType)
	if err != nil {
		return nil, err
	}
	dtype, err := utils.ParseComputeType(cfg.DType)
	if err != nil {
		return nil, err
	}
	o := headOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.encoder == nil {
		body, err := NewModel(cfg, isTraining)
		if err != nil {
			return nil, err
		}
		o.encoder = body
	}
	h := &head{
		Config:  cfg,
		Body:    o.encoder,
		Dense:   layers.NewDense(name+".dense", cfg.HiddenSize, numLabels, true),
		DType:   dtype,
		Compute: compute,
	}
	h.Dense.Compute = compute
	return h, nil
}

func (h *head) params() []layers.Param {
	var ps []layers.Param
	if p, ok := h.Body.(layers.Parametric); ok {
		ps = p.Params()
	}
	return append(ps, h.Dense.Params()...)
}

// initBindings covers the head's dense layer, and the body when it is ours.
func (h *head) initBindings() []layers.Binding {
	var bs []layers.Binding
	if m, ok := h.Body.(*Model); ok {
		bs = m.InitBindings()
	}
	return append(bs, truncatedBindings(h.Config.InitializerRange, h.Dense.Params())...)
}

// CLSModel classifies whole sequences from the pooled representation.
type CLSModel struct {
	*head
	Dropout    *layers.Dropout
	NumLabels  int
	Assessment string
}

// NewCLSModel builds a classification head. Outputs are log-probabilities
// except for the spearman_correlation assessment, which returns raw scores.
func NewCLSModel(cfg params.AlbertConfig, isTraining bool, numLabels int, dropoutProb float64, assessment string, opts ...HeadOption) (*CLSModel, error) {
	switch assessment {
	case "", AssessAccuracy, AssessF1, AssessMCC, SpearmanCorrelation:
	default:
		return nil, fmt.Errorf("classifier: unknown assessment %q", assessment)
	}
	h, err := newHead("classifier", cfg, isTraining, numLabels, opts)
	if err != nil {
		return nil, err
	}
	if !isTraining {
		dropoutProb = 0
	}
	return &CLSModel{
		head:       h,
		Dropout:    layers.NewDropout(dropoutProb, isTraining),
		NumLabels:  numLabels,
		Assessment: assessment,
	}, nil
}

// LogProbs reports whether Forward normalizes its output.
func (c *CLSModel) LogProbs() bool { return c.Assessment != SpearmanCorrelation }

// Forward returns (B, NumLabels).
func (c *CLSModel) Forward(b Batch) (*tensor.Tensor, error) {
	enc, err := c.Body.Forward(b)
	if err != nil {
		return nil, err
	}
	pooled := enc.Pooled
	if pooled.Rank() != 2 || pooled.Shape[1] != c.Config.HiddenSize {
		return nil, fmt.Errorf("%w: pooled output %v, want (B, %d)", ErrShape, pooled.Shape, c.Config.HiddenSize)
	}
	x := pooled.Clone()
	utils.Cast(x.Data, c.DType)
	logits := c.Dense.Forward(c.Dropout.Forward(x))
	utils.Cast(logits.Data, c.DType)
	if !c.LogProbs() {
		return logits, nil
	}
	return layers.LogSoftmax{Axis: -1}.Forward(logits), nil
}

func (c *CLSModel) SetTraining(training bool) {
	c.Dropout.SetTraining(training)
	if t, ok := c.Body.(layers.Trainable); ok {
		t.SetTraining(training)
	}
}

func (c *CLSModel) Params() []layers.Param { return c.params() }

func (c *CLSModel) InitBindings() []layers.Binding { return c.initBindings() }

func (c *CLSModel) Initialize(src rand.Source) { layers.Initialize(c.InitBindings(), src) }

// SquadModel scores every token as a span start or end.
type SquadModel struct {
	*head
	NumLabels int
}

func NewSquadModel(cfg params.AlbertConfig, isTraining bool, numLabels int, opts ...HeadOption) (*SquadModel, error) {
	h, err := newHead("squad", cfg, isTraining, numLabels, opts)
	if err != nil {
		return nil, err
	}
	return &SquadModel{head: h, NumLabels: numLabels}, nil
}

// Forward returns (B, S, NumLabels) log-probabilities over the label axis.
func (s *SquadModel) Forward(b Batch) (*tensor.Tensor, error) {
	enc, err := s.Body.Forward(b)
	if err != nil {
		return nil, err
	}
	seq := enc.Sequence
	if seq.Rank() != 3 || seq.Shape[2] != s.Config.HiddenSize {
		return nil, fmt.Errorf("%w: sequence output %v, want (B, S, %d)", ErrShape, seq.Shape, s.Config.HiddenSize)
	}
	batch, steps := seq.Shape[0], seq.Shape[1]
	logits := s.Dense.Forward(seq.Reshape(batch*steps, s.Config.HiddenSize))
	utils.Cast(logits.Data, s.DType)
	return layers.LogSoftmax{Axis: -1}.Forward(logits.Reshape(batch, steps, s.NumLabels)), nil
}

func (s *SquadModel) SetTraining(training bool) {
	if t, ok := s.Body.(layers.Trainable); ok {
		t.SetTraining(training)
	}
}

func (s *SquadModel) Params() []layers.Param { return s.params() }

func (s *SquadModel) InitBindings() []layers.Binding { return s.initBindings() }

func (s *SquadModel) Initialize(src rand.Source) { layers.Initialize(s.InitBindings(), src) }
