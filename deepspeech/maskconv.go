package deepspeech

import (
	"math"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/tensor"
)

// ConvChannels is the channel count leaving the convolutional front-end.
const ConvChannels = 32

// MaskConv is the two-stage conv + batch-norm + tanh front-end over a
// (N, 1, freq, time) spectrogram.
//
// Lengths are accepted but not used to mask padded frames between stages;
// padded time steps flow through the convolutions unmasked.
type MaskConv struct {
	Conv1 *layers.Conv2D
	BN1   *layers.BatchNorm
	Conv2 *layers.Conv2D
	BN2   *layers.BatchNorm

	modules layers.Sequential
}

func NewMaskConv() *MaskConv {
	m := &MaskConv{
		Conv1: layers.NewConv2D("conv.conv1", 1, ConvChannels, 41, 11,
			layers.WithStride(2, 2), layers.WithPadding(20, 20, 5, 5)),
		BN1: layers.NewBatchNorm2d("conv.bn1", ConvChannels),
		Conv2: layers.NewConv2D("conv.conv2", ConvChannels, ConvChannels, 21, 11,
			layers.WithStride(2, 1), layers.WithPadding(10, 10, 5, 5)),
		BN2: layers.NewBatchNorm2d("conv.bn2", ConvChannels),
	}
	m.modules = layers.Sequential{m.Conv1, m.BN1, layers.Tanh(), m.Conv2, m.BN2, layers.Tanh()}
	return m
}

// Convs returns the convolutions in application order.
func (m *MaskConv) Convs() []*layers.Conv2D { return []*layers.Conv2D{m.Conv1, m.Conv2} }

// Forward runs the front-end. lengths is kept for future masking.
func (m *MaskConv) Forward(x *tensor.Tensor, lengths []int) *tensor.Tensor {
	_ = lengths
	return m.modules.Forward(x)
}

func (m *MaskConv) SetTraining(training bool) { m.modules.SetTraining(training) }

// OutputSize is the (freq, time) extent of the feature map for an input
// of the given size.
func (m *MaskConv) OutputSize(freq, time int) (int, int) {
	for _, c := range m.Convs() {
		freq, time = c.OutputSize(freq, time)
	}
	return freq, time
}

func (m *MaskConv) Params() []layers.Param {
	return layers.CollectParams(m.Conv1, m.BN1, m.Conv2, m.BN2)
}

// InitBindings draws conv weights from N(0, 2/n) with
// n = kernel_h*kernel_w*out_channels, zeroes conv biases and resets
// batch-norm scale to 1 and shift to 0.
func (m *MaskConv) InitBindings() []layers.Binding {
	var out []layers.Binding
	for _, c := range m.Convs() {
		ps := c.Params()
		std := math.Sqrt(2.0 / float64(c.FanOut()))
		out = append(out, layers.Bind(layers.Normal{Std: std}, ps[0])...)
		out = append(out, layers.Bind(layers.Constant{}, ps[1:]...)...)
	}
	for _, bn := range []*layers.BatchNorm{m.BN1, m.BN2} {
		ps := bn.Params()
		out = append(out, layers.Bind(layers.Constant{Value: 1}, ps[0])...)
		out = append(out, layers.Bind(layers.Constant{}, ps[1])...)
	}
	return out
}
