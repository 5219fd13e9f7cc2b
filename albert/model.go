package albert

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// Model is the ALBERT body: factorized embeddings projected from E to H,
// one shared transformer block applied NumHiddenLayers times and a tanh
// pooler over the first token.
type Model struct {
	Config  params.AlbertConfig
	Compute utils.ComputeType

	WordEmbeddings      *layers.Embedding
	PositionEmbeddings  *layers.Embedding
	TokenTypeEmbeddings *layers.Embedding
	EmbeddingNorm       *layers.LayerNorm
	EmbeddingDropout    *layers.Dropout
	Projection          *layers.Dense // E -> H
	Block               *Block
	Pooler              *layers.Dense
}

// NewModel builds an uninitialized body. When training is false the
// dropout probabilities of cfg are ignored.
func NewModel(cfg params.AlbertConfig, training bool) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !training {
		cfg = cfg.ForInference()
	}
	compute, err := utils.ParseComputeType(cfg.ComputeType)
	if err != nil {
		return nil, err
	}
	m := &Model{
		Config:              cfg,
		Compute:             compute,
		WordEmbeddings:      layers.NewEmbedding("embeddings.word", cfg.VocabSize, cfg.EmbeddingSize),
		PositionEmbeddings:  layers.NewEmbedding("embeddings.position", cfg.MaxPositionEmbeddings, cfg.EmbeddingSize),
		TokenTypeEmbeddings: layers.NewEmbedding("embeddings.token_type", cfg.TypeVocabSize, cfg.EmbeddingSize),
		EmbeddingNorm:       layers.NewLayerNorm("embeddings.layernorm", cfg.EmbeddingSize, cfg.LayerNormEps),
		EmbeddingDropout:    layers.NewDropout(cfg.HiddenDropoutProb, training),
		Projection:          layers.NewDense("encoder.embedding_projection", cfg.EmbeddingSize, cfg.HiddenSize, true),
		Block:               NewBlock(cfg, training, compute),
		Pooler:              layers.NewDense("pooler.dense", cfg.HiddenSize, cfg.HiddenSize, true),
	}
	m.Projection.Compute = compute
	m.Pooler.Compute = compute
	return m, nil
}

func (m *Model) embed(b Batch, batch, seq int) (*tensor.Tensor, error) {
	if seq > m.Config.MaxPositionEmbeddings {
		return nil, fmt.Errorf("%w: sequence length %d exceeds %d positions", ErrShape, seq, m.Config.MaxPositionEmbeddings)
	}
	words, err := m.WordEmbeddings.Lookup(b.InputIDs)
	if err != nil {
		return nil, err
	}
	types, err := m.TokenTypeEmbeddings.Lookup(b.TokenTypeIDs)
	if err != nil {
		return nil, err
	}
	positions := make([][]int, batch)
	for i := range positions {
		positions[i] = make([]int, seq)
		for j := range positions[i] {
			positions[i][j] = j
		}
	}
	pos, err := m.PositionEmbeddings.Lookup(positions)
	if err != nil {
		return nil, err
	}
	sum := utils.Add(utils.Add(words.Matrix(), types.Matrix()), pos.Matrix())
	x := tensor.FromMatrix(sum, batch, seq, m.Config.EmbeddingSize)
	return m.EmbeddingDropout.Forward(m.EmbeddingNorm.Forward(x)), nil
}

func (m *Model) Forward(b Batch) (*EncoderOutput, error) {
	batch, seq, err := b.Dims()
	if err != nil {
		return nil, err
	}
	emb, err := m.embed(b, batch, seq)
	if err != nil {
		return nil, err
	}
	masks := make([][]float64, batch)
	for i, row := range b.InputMask {
		masks[i] = paddingMask(row)
	}

	x := m.Projection.Forward(emb)
	for l := 0; l < m.Config.NumHiddenLayers; l++ {
		x = m.Block.Forward(x, masks)
	}
	utils.Debugf("albert: encoded %v after %d shared layers", x.Shape, m.Config.NumHiddenLayers)

	first := tensor.New(batch, m.Config.HiddenSize)
	for i := 0; i < batch; i++ {
		copy(first.Data[i*m.Config.HiddenSize:], x.Data[i*seq*m.Config.HiddenSize:(i*seq+1)*m.Config.HiddenSize])
	}
	pooled := layers.Tanh().Forward(m.Pooler.Forward(first))
	return &EncoderOutput{Sequence: x, Pooled: pooled, Embedding: emb}, nil
}

func (m *Model) SetTraining(training bool) {
	m.EmbeddingDropout.SetTraining(training)
	m.Block.SetTraining(training)
}

func (m *Model) Params() []layers.Param {
	ps := layers.CollectParams(m.WordEmbeddings, m.PositionEmbeddings, m.TokenTypeEmbeddings,
		m.EmbeddingNorm, m.Projection)
	ps = append(ps, m.Block.Params()...)
	return append(ps, m.Pooler.Params()...)
}

// InitBindings draws every matrix from a normal truncated at two
// initializer_range, zeroes biases and resets layer-norm scales to 1.
func (m *Model) InitBindings() []layers.Binding {
	return truncatedBindings(m.Config.InitializerRange, m.Params())
}

func (m *Model) Initialize(src rand.Source) {
	layers.Initialize(m.InitBindings(), src)
}

func truncatedBindings(std float64, ps []layers.Param) []layers.Binding {
	var out []layers.Binding
	for _, p := range ps {
		switch {
		case strings.HasSuffix(p.Name, ".gamma"):
			out = append(out, layers.Bind(layers.Constant{Value: 1}, p)...)
		case strings.HasSuffix(p.Name, ".bias"), strings.HasSuffix(p.Name, ".beta"):
			out = append(out, layers.Bind(layers.Constant{}, p)...)
		default:
			out = append(out, layers.Bind(layers.TruncatedNormal{Std: std}, p)...)
		}
	}
	return out
}
