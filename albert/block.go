package albert

import (
	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// MLP is the position-wise feed-forward: Dense -> GELU -> Dense.
type MLP struct {
	Intermediate *layers.Dense
	Output       *layers.Dense
}

func (mlp *MLP) Forward(x *tensor.Tensor) *tensor.Tensor {
	return mlp.Output.Forward(layers.GELU().Forward(mlp.Intermediate.Forward(x)))
}

// Block is one post-LN transformer layer. ALBERT applies the same Block
// NumHiddenLayers times.
type Block struct {
	Attn        *Attention
	AttnDropout *layers.Dropout
	AttnNorm    *layers.LayerNorm
	MLP         *MLP
	OutDropout  *layers.Dropout
	OutNorm     *layers.LayerNorm
}

func NewBlock(cfg params.AlbertConfig, training bool, compute utils.ComputeType) *Block {
	h := cfg.HiddenSize
	b := &Block{
		Attn:        NewAttention("encoder.attention", h, cfg.NumAttentionHeads, cfg.AttentionProbsDropoutProb, training, compute),
		AttnDropout: layers.NewDropout(cfg.HiddenDropoutProb, training),
		AttnNorm:    layers.NewLayerNorm("encoder.attention.layernorm", h, cfg.LayerNormEps),
		MLP: &MLP{
			Intermediate: layers.NewDense("encoder.ffn.intermediate", h, cfg.IntermediateSize, true),
			Output:       layers.NewDense("encoder.ffn.output", cfg.IntermediateSize, h, true),
		},
		OutDropout: layers.NewDropout(cfg.HiddenDropoutProb, training),
		OutNorm:    layers.NewLayerNorm("encoder.ffn.layernorm", h, cfg.LayerNormEps),
	}
	b.MLP.Intermediate.Compute = compute
	b.MLP.Output.Compute = compute
	return b
}

func residual(x, y *tensor.Tensor) *tensor.Tensor {
	return tensor.FromMatrix(utils.Add(x.Matrix(), y.Matrix()), x.Shape...)
}

func (b *Block) Forward(x *tensor.Tensor, masks [][]float64) *tensor.Tensor {
	a := b.AttnDropout.Forward(b.Attn.Forward(x, masks))
	x = b.AttnNorm.Forward(residual(x, a))
	f := b.OutDropout.Forward(b.MLP.Forward(x))
	return b.OutNorm.Forward(residual(x, f))
}

func (b *Block) SetTraining(training bool) {
	b.Attn.SetTraining(training)
	b.AttnDropout.SetTraining(training)
	b.OutDropout.SetTraining(training)
}

func (b *Block) Params() []layers.Param {
	return layers.CollectParams(b.Attn, b.AttnNorm, b.MLP.Intermediate, b.MLP.Output, b.OutNorm)
}
