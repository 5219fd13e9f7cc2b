package deepspeech

import (
	"fmt"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
)

// BatchRNN stacks recurrent layers over (T, N, F) input. Bidirectional
// layers sum their two streams, so every layer emits (T, N, HiddenSize).
type BatchRNN struct {
	InputSize     int
	HiddenSize    int
	NumLayers     int
	Kind          params.RNNType
	Bidirectional bool
	BatchNorm     bool

	RNNs  []*layers.Recurrent
	Norms []*layers.BatchNorm // Norms[i] precedes RNNs[i+1]; empty without batch norm
}

func NewBatchRNN(inputSize, hiddenSize, numLayers int, rnnType string, bidirectional, batchNorm bool) (*BatchRNN, error) {
	kind, err := params.ParseRNNType(rnnType)
	if err != nil {
		return nil, err
	}
	if numLayers <= 0 || hiddenSize <= 0 || inputSize <= 0 {
		return nil, fmt.Errorf("batch rnn: input=%d hidden=%d layers=%d must be positive", inputSize, hiddenSize, numLayers)
	}
	b := &BatchRNN{
		InputSize:     inputSize,
		HiddenSize:    hiddenSize,
		NumLayers:     numLayers,
		Kind:          kind,
		Bidirectional: bidirectional,
		BatchNorm:     batchNorm,
	}
	in := inputSize
	for i := 0; i < numLayers; i++ {
		b.RNNs = append(b.RNNs, layers.NewRecurrent(fmt.Sprintf("rnn.%d", i), kind, in, hiddenSize, bidirectional, true))
		in = hiddenSize
	}
	if batchNorm {
		for i := 1; i < numLayers; i++ {
			b.Norms = append(b.Norms, layers.NewBatchNorm1d(fmt.Sprintf("rnn.bn.%d", i), hiddenSize))
		}
	}
	return b, nil
}

func (b *BatchRNN) Forward(x *tensor.Tensor) *tensor.Tensor {
	for i, rnn := range b.RNNs {
		if b.BatchNorm && i > 0 {
			x = b.Norms[i-1].Forward(x)
		}
		x = rnn.Forward(x)
		if b.Bidirectional {
			t, n := x.Shape[0], x.Shape[1]
			x = x.Reshape(t, n, rnn.NumDirections(), -1).SumAxis(2)
		}
	}
	return x
}

func (b *BatchRNN) SetTraining(training bool) {
	for _, bn := range b.Norms {
		bn.SetTraining(training)
	}
}

func (b *BatchRNN) Params() []layers.Param {
	var ps []layers.Param
	for i, rnn := range b.RNNs {
		if i > 0 && len(b.Norms) > 0 {
			ps = append(ps, b.Norms[i-1].Params()...)
		}
		ps = append(ps, rnn.Params()...)
	}
	return ps
}

func (b *BatchRNN) InitBindings() []layers.Binding {
	var out []layers.Binding
	for _, rnn := range b.RNNs {
		out = append(out, rnn.InitBindings()...)
	}
	return out
}
