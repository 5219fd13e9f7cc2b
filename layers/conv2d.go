package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/modelzoo/tensor"
)

// Conv2D is an NCHW convolution computed as im2col followed by one GEMM per
// sample. Padding is (top, bottom, left, right).
type Conv2D struct {
	Name                    string
	InChannels, OutChannels int
	KernelH, KernelW        int
	StrideH, StrideW        int
	PadTop, PadBottom       int
	PadLeft, PadRight       int
	DilationH, DilationW    int
	Weight                  *mat.Dense // (Out x In*KernelH*KernelW)
	Bias                    []float64  // nil when the layer has no bias
}

type ConvOption func(*Conv2D)

func WithStride(h, w int) ConvOption {
	return func(c *Conv2D) { c.StrideH, c.StrideW = h, w }
}

func WithPadding(top, bottom, left, right int) ConvOption {
	return func(c *Conv2D) { c.PadTop, c.PadBottom, c.PadLeft, c.PadRight = top, bottom, left, right }
}

func WithDilation(h, w int) ConvOption {
	return func(c *Conv2D) { c.DilationH, c.DilationW = h, w }
}

func WithBias() ConvOption {
	return func(c *Conv2D) { c.Bias = make([]float64, c.OutChannels) }
}

func NewConv2D(name string, in, out, kernelH, kernelW int, opts ...ConvOption) *Conv2D {
	c := &Conv2D{
		Name:        name,
		InChannels:  in,
		OutChannels: out,
		KernelH:     kernelH,
		KernelW:     kernelW,
		StrideH:     1,
		StrideW:     1,
		DilationH:   1,
		DilationW:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Weight = mat.NewDense(out, in*kernelH*kernelW, nil)
	return c
}

// ConvOutLen is floor((in + padA + padB - dilation*(kernel-1) - 1) / stride) + 1.
// It returns 0 when the padded input is shorter than the dilated kernel.
func ConvOutLen(in, padA, padB, kernel, stride, dilation int) int {
	num := in + padA + padB - dilation*(kernel-1) - 1
	if num < 0 {
		return 0
	}
	return num/stride + 1
}

func (c *Conv2D) OutputSize(h, w int) (int, int) {
	return ConvOutLen(h, c.PadTop, c.PadBottom, c.KernelH, c.StrideH, c.DilationH),
		ConvOutLen(w, c.PadLeft, c.PadRight, c.KernelW, c.StrideW, c.DilationW)
}

func (c *Conv2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 4 || x.Shape[1] != c.InChannels {
		panic(fmt.Sprintf("%s: input shape %v, want (N, %d, H, W)", c.Name, x.Shape, c.InChannels))
	}
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	ho, wo := c.OutputSize(h, w)
	if ho == 0 || wo == 0 {
		panic(fmt.Sprintf("%s: input %dx%d too small for kernel %dx%d", c.Name, h, w, c.KernelH, c.KernelW))
	}
	k := c.InChannels * c.KernelH * c.KernelW
	out := tensor.New(n, c.OutChannels, ho, wo)
	cols := mat.NewDense(k, ho*wo, nil)
	plane := h * w
	block := c.OutChannels * ho * wo
	for b := 0; b < n; b++ {
		c.im2col(cols, x.Data[b*c.InChannels*plane:(b+1)*c.InChannels*plane], h, w, ho, wo)
		dst := mat.NewDense(c.OutChannels, ho*wo, out.Data[b*block:(b+1)*block])
		dst.Mul(c.Weight, cols)
		if c.Bias != nil {
			for o, bias := range c.Bias {
				row := dst.RawRowView(o)
				for i := range row {
					row[i] += bias
				}
			}
		}
	}
	return out
}

// im2col fills cols (In*KH*KW x Ho*Wo) with the receptive field of each
// output position; padded taps stay zero.
func (c *Conv2D) im2col(cols *mat.Dense, src []float64, h, w, ho, wo int) {
	for ch := 0; ch < c.InChannels; ch++ {
		for kh := 0; kh < c.KernelH; kh++ {
			for kw := 0; kw < c.KernelW; kw++ {
				row := cols.RawRowView((ch*c.KernelH+kh)*c.KernelW + kw)
				for oh := 0; oh < ho; oh++ {
					ih := oh*c.StrideH - c.PadTop + kh*c.DilationH
					for ow := 0; ow < wo; ow++ {
						iw := ow*c.StrideW - c.PadLeft + kw*c.DilationW
						v := 0.0
						if ih >= 0 && ih < h && iw >= 0 && iw < w {
							v = src[(ch*h+ih)*w+iw]
						}
						row[oh*wo+ow] = v
					}
				}
			}
		}
	}
}

// FanOut is KernelH*KernelW*OutChannels, the n in the sqrt(2/n) conv init.
func (c *Conv2D) FanOut() int { return c.KernelH * c.KernelW * c.OutChannels }

func (c *Conv2D) Params() []Param {
	ps := []Param{{
		Name:  c.Name + ".weight",
		Shape: []int{c.OutChannels, c.InChannels, c.KernelH, c.KernelW},
		Data:  c.Weight.RawMatrix().Data,
	}}
	if c.Bias != nil {
		ps = append(ps, Param{Name: c.Name + ".bias", Shape: []int{c.OutChannels}, Data: c.Bias})
	}
	return ps
}
