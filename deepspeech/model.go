package deepspeech

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// Model is DeepSpeech2: conv front-end, recurrent stack and a per-step
// projection onto the label alphabet.
type Model struct {
	Config  params.DeepSpeechConfig
	Labels  []rune
	Conv    *MaskConv
	Lengths *LengthProjector
	RNN     *BatchRNN
	FC      *SequenceWise

	freqBins     int
	rnnInputSize int
}

// Output of one forward pass. LogProbs and Logits are (T, N, labels),
// Activations is the (T, N, hidden) recurrent output before projection.
type Output struct {
	LogProbs      *tensor.Tensor
	Logits        *tensor.Tensor
	OutputLengths []int
	Activations   *tensor.Tensor
}

// RNNInputSize is the flattened feature width the conv front-end hands to
// the recurrent stack: the frequency axis pushed through each conv, times
// the channel count.
func RNNInputSize(audio params.AudioConfig, conv *MaskConv) int {
	freq := audio.FreqBins()
	for _, c := range conv.Convs() {
		freq = layers.ConvOutLen(freq, c.PadTop, c.PadBottom, c.KernelH, c.StrideH, c.DilationH)
	}
	return freq * ConvChannels
}

// New builds an uninitialized model; call Initialize or load a checkpoint.
func New(cfg params.DeepSpeechConfig) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conv := NewMaskConv()
	rnnIn := RNNInputSize(cfg.Audio, conv)
	if rnnIn <= 0 {
		return nil, fmt.Errorf("%w: %d frequency bins vanish in the conv front-end", ErrShape, cfg.Audio.FreqBins())
	}
	rnn, err := NewBatchRNN(rnnIn, cfg.HiddenSize, cfg.HiddenLayers, cfg.RNNType, cfg.Bidirectional, cfg.BatchNorm)
	if err != nil {
		return nil, err
	}
	labels := []rune(cfg.Labels)
	m := &Model{
		Config:       cfg,
		Labels:       labels,
		Conv:         conv,
		Lengths:      NewLengthProjector(conv.Convs()...),
		RNN:          rnn,
		FC:           NewSequenceWise(layers.NewDense("fc", cfg.HiddenSize, len(labels), false)),
		freqBins:     cfg.Audio.FreqBins(),
		rnnInputSize: rnnIn,
	}
	return m, nil
}

func (m *Model) FreqBins() int { return m.freqBins }

func (m *Model) RNNInputSize() int { return m.rnnInputSize }

// Forward runs a (N, 1, freq, time) spectrogram batch. lengths holds the
// valid frame count of each sample.
func (m *Model) Forward(x *tensor.Tensor, lengths []int) (*Output, error) {
	if x.Rank() != 4 || x.Shape[1] != 1 || x.Shape[2] != m.freqBins {
		return nil, fmt.Errorf("%w: input %v, want (N, 1, %d, T)", ErrShape, x.Shape, m.freqBins)
	}
	n, steps := x.Shape[0], x.Shape[3]
	if n == 0 || steps == 0 {
		return nil, fmt.Errorf("%w: empty input %v", ErrShape, x.Shape)
	}
	if f, t := m.Conv.OutputSize(m.freqBins, steps); f == 0 || t == 0 {
		return nil, fmt.Errorf("%w: %d frames too short for the conv front-end", ErrShape, steps)
	}
	if len(lengths) != n {
		return nil, fmt.Errorf("%w: %d lengths for batch of %d", ErrShape, len(lengths), n)
	}
	for i, l := range lengths {
		if l > steps {
			return nil, fmt.Errorf("%w: sample %d length %d exceeds %d frames", ErrShape, i, l, steps)
		}
	}
	outLens, err := m.Lengths.Project(lengths)
	if err != nil {
		return nil, err
	}

	y := m.Conv.Forward(x, lengths)
	c, f, t := y.Shape[1], y.Shape[2], y.Shape[3]
	y = y.Reshape(n, c*f, t).Transpose(2, 0, 1) // (T, N, C*F)
	if y.Dim(2) != m.rnnInputSize {
		return nil, fmt.Errorf("%w: conv output width %d, rnn expects %d", ErrShape, y.Dim(2), m.rnnInputSize)
	}
	utils.Debugf("deepspeech: conv out %v, output lengths %v", y.Shape, outLens)

	y = m.RNN.Forward(y)
	activations := y.Clone()
	logits := m.FC.Forward(y)
	return &Output{
		LogProbs:      layers.LogSoftmax{Axis: -1}.Forward(logits),
		Logits:        logits,
		OutputLengths: outLens,
		Activations:   activations,
	}, nil
}

// SetTraining switches batch-norm layers between batch and running statistics.
func (m *Model) SetTraining(training bool) {
	m.Conv.SetTraining(training)
	m.RNN.SetTraining(training)
}

func (m *Model) Params() []layers.Param {
	ps := m.Conv.Params()
	ps = append(ps, m.RNN.Params()...)
	return append(ps, m.FC.Params()...)
}

// InitBindings lists every parameter with its initialization scheme.
func (m *Model) InitBindings() []layers.Binding {
	bs := m.Conv.InitBindings()
	bs = append(bs, m.RNN.InitBindings()...)
	return append(bs, m.FC.InitBindings()...)
}

// Initialize applies InitBindings with src (nil uses the global generator).
func (m *Model) Initialize(src rand.Source) {
	layers.Initialize(m.InitBindings(), src)
}
