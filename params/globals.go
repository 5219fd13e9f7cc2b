package params

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRNNType is returned when a config names a recurrent cell that is not wired.
var ErrUnknownRNNType = errors.New("unknown rnn type")

// Debug turns on utils.Debugf output. MODELZOO_DEBUG=1 sets it at startup.
var (
	Debug      = false
	DebugEvery = 1
)

// ParallelHeads runs attention heads on separate goroutines.
// MODELZOO_HEAD_PAR=1 sets it at startup.
var ParallelHeads = false

type AudioConfig struct {
	SampleRate   int     `json:"sampling_rate"`
	WindowSize   float64 `json:"window_size"`   // seconds
	WindowStride float64 `json:"window_stride"` // seconds
	Window       string  `json:"window"`
	Normalize    bool    `json:"normalize"`
}

// FreqBins is the number of spectrogram rows produced for one STFT frame.
func (a AudioConfig) FreqBins() int {
	return int(float64(a.SampleRate)*a.WindowSize)/2 + 1
}

type DeepSpeechConfig struct {
	BatchSize     int         `json:"batch_size"`
	HiddenSize    int         `json:"hidden_size"` // rnn hidden
	HiddenLayers  int         `json:"hidden_layers"`
	Labels        string      `json:"labels"` // index 0 is the CTC blank
	RNNType       string      `json:"rnn_type"`
	Bidirectional bool        `json:"bidirectional"`
	BatchNorm     bool        `json:"batch_norm"` // BN between rnn layers
	Audio         AudioConfig `json:"audio"`
}

// Validate checks the fields a model cannot be built without.
func (c DeepSpeechConfig) Validate() error {
	if c.HiddenSize <= 0 || c.HiddenLayers <= 0 {
		return fmt.Errorf("deepspeech config: hidden_size=%d hidden_layers=%d must be positive",
			c.HiddenSize, c.HiddenLayers)
	}
	if len([]rune(c.Labels)) < 2 {
		return fmt.Errorf("deepspeech config: need a blank plus at least one label, got %q", c.Labels)
	}
	if c.Audio.SampleRate <= 0 || c.Audio.WindowSize <= 0 {
		return fmt.Errorf("deepspeech config: sampling_rate=%d window_size=%g must be positive",
			c.Audio.SampleRate, c.Audio.WindowSize)
	}
	if _, err := ParseRNNType(c.RNNType); err != nil {
		return err
	}
	return nil
}

type RNNType int

const (
	LSTM RNNType = iota
	GRU
	RNN
)

func (t RNNType) String() string {
	switch t {
	case GRU:
		return "gru"
	case RNN:
		return "rnn"
	}
	return "lstm"
}

// ParseRNNType accepts the names used in DeepSpeech configs, case-insensitive.
// An empty name means LSTM.
func ParseRNNType(name string) (RNNType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lstm":
		return LSTM, nil
	case "gru":
		return GRU, nil
	case "rnn", "rnn_tanh", "tanh":
		return RNN, nil
	}
	return LSTM, fmt.Errorf("%w: %q", ErrUnknownRNNType, name)
}

type AlbertConfig struct {
	VocabSize             int `json:"vocab_size"`
	EmbeddingSize         int `json:"embedding_size"` // factorized E
	HiddenSize            int `json:"hidden_size"`
	NumHiddenLayers       int `json:"num_hidden_layers"` // shared block applications
	NumAttentionHeads     int `json:"num_attention_heads"`
	IntermediateSize      int `json:"intermediate_size"`
	MaxPositionEmbeddings int `json:"max_position_embeddings"`
	TypeVocabSize         int `json:"type_vocab_size"`

	HiddenDropoutProb         float64 `json:"hidden_dropout_prob"`
	AttentionProbsDropoutProb float64 `json:"attention_probs_dropout_prob"`
	InitializerRange          float64 `json:"initializer_range"`
	LayerNormEps              float64 `json:"layer_norm_eps"`

	ComputeType string `json:"compute_type"` // precision of dense layers
	DType       string `json:"dtype"`        // precision of head outputs
}

// ForInference returns a copy with every dropout probability forced to zero.
func (c AlbertConfig) ForInference() AlbertConfig {
	c.HiddenDropoutProb = 0
	c.AttentionProbsDropoutProb = 0
	return c
}

func (c AlbertConfig) Validate() error {
	if c.HiddenSize <= 0 || c.EmbeddingSize <= 0 || c.VocabSize <= 0 {
		return fmt.Errorf("albert config: vocab_size=%d embedding_size=%d hidden_size=%d must be positive",
			c.VocabSize, c.EmbeddingSize, c.HiddenSize)
	}
	if c.NumAttentionHeads <= 0 || c.IntermediateSize <= 0 || c.MaxPositionEmbeddings <= 0 {
		return fmt.Errorf("albert config: heads=%d intermediate=%d max_positions=%d must be positive",
			c.NumAttentionHeads, c.IntermediateSize, c.MaxPositionEmbeddings)
	}
	if c.TypeVocabSize <= 0 {
		return fmt.Errorf("albert config: type_vocab_size=%d must be positive", c.TypeVocabSize)
	}
	return nil
}

// DefaultLabels is the English character set used by DeepSpeech2; '_' is the blank.
const DefaultLabels = "_'ABCDEFGHIJKLMNOPQRSTUVWXYZ "

var DeepSpeech = DeepSpeechConfig{
	BatchSize:     20,
	HiddenSize:    1024,
	HiddenLayers:  5,
	Labels:        DefaultLabels,
	RNNType:       "lstm",
	Bidirectional: true,
	BatchNorm:     false,
	Audio: AudioConfig{
		SampleRate:   16000,
		WindowSize:   0.02,
		WindowStride: 0.01,
		Window:       "hamming",
		Normalize:    true,
	},
}

// albert_base
var Albert = AlbertConfig{
	VocabSize:             30000,
	EmbeddingSize:         128,
	HiddenSize:            768,
	NumHiddenLayers:       12,
	NumAttentionHeads:     12,
	IntermediateSize:      3072,
	MaxPositionEmbeddings: 512,
	TypeVocabSize:         2,

	HiddenDropoutProb:         0.1,
	AttentionProbsDropoutProb: 0.1,
	InitializerRange:          0.02,
	LayerNormEps:              1e-12,

	ComputeType: "float16",
	DType:       "float32",
}
