package main

import (
	"fmt"
	"log"
	"math/rand/v2"
	"strings"

	"github.com/manningwu07/modelzoo/IO"
	"github.com/manningwu07/modelzoo/albert"
	"github.com/manningwu07/modelzoo/audio"
	"github.com/manningwu07/modelzoo/deepspeech"
	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/params"
)

// Checkpoint kinds written by -mode init and checked on load.
const (
	kindDeepSpeech  = "deepspeech"
	kindAlbertCLS   = "albert-cls"
	kindAlbertSquad = "albert-squad"
)

type initializer interface {
	Params() []layers.Param
	Initialize(src rand.Source)
}

// loadWeights restores a checkpoint, or draws fresh weights when path is empty.
func loadWeights(m initializer, kind, path string, seed uint64) error {
	if path == "" {
		log.Printf("no checkpoint given, using random %s weights (seed %d)", kind, seed)
		m.Initialize(rand.NewPCG(seed, seed))
		return nil
	}
	if err := IO.LoadCheckpoint(path, kind, m.Params()); err != nil {
		return err
	}
	log.Printf("loaded %s from %s", kind, path)
	return nil
}

func transcribe(wavPath, checkpoint string, seed uint64) error {
	if wavPath == "" {
		return fmt.Errorf("transcribe needs -wav")
	}
	cfg := params.DeepSpeech
	clip, err := audio.LoadWAV(wavPath)
	if err != nil {
		return err
	}
	if clip.SampleRate != cfg.Audio.SampleRate {
		return fmt.Errorf("%s is %d Hz, model expects %d Hz", wavPath, clip.SampleRate, cfg.Audio.SampleRate)
	}
	spect, err := audio.Spectrogram(clip.Samples, cfg.Audio)
	if err != nil {
		return err
	}
	log.Printf("%s: %.2fs, spectrogram %v", wavPath, clip.Duration(), spect.Shape)

	m, err := deepspeech.New(cfg)
	if err != nil {
		return err
	}
	if err := loadWeights(m, kindDeepSpeech, checkpoint, seed); err != nil {
		return err
	}
	out, err := m.Forward(spect, []int{spect.Shape[3]})
	if err != nil {
		return err
	}
	text, err := deepspeech.NewGreedyDecoder(m.Labels).Decode(out.LogProbs, out.OutputLengths)
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(text[0]))
	return nil
}

func classify(tokPath, text, checkpoint string, seed uint64) error {
	if tokPath == "" || text == "" {
		return fmt.Errorf("classify needs -tokenizer and -text")
	}
	tok, err := IO.LoadTokenizer(tokPath)
	if err != nil {
		return err
	}
	batch, err := tok.EncodeSingle(strings.Split(text, "|"), maxLenFlag)
	if err != nil {
		return err
	}
	m, err := albert.NewCLSModel(params.Albert, false, numLabelsFlag, 0, assessFlag)
	if err != nil {
		return err
	}
	if err := loadWeights(m, kindAlbertCLS, checkpoint, seed); err != nil {
		return err
	}
	scores, err := m.Forward(batch)
	if err != nil {
		return err
	}
	n := scores.Shape[1]
	for i := 0; i < scores.Shape[0]; i++ {
		row := scores.Data[i*n : (i+1)*n]
		fmt.Printf("%d\t%v\n", i, row)
	}
	return nil
}

func squad(tokPath, question, context, checkpoint string, seed uint64) error {
	if tokPath == "" || question == "" || context == "" {
		return fmt.Errorf("squad needs -tokenizer, -question and -text")
	}
	tok, err := IO.LoadTokenizer(tokPath)
	if err != nil {
		return err
	}
	batch, err := tok.EncodePair(question, context, maxLenFlag)
	if err != nil {
		return err
	}
	m, err := albert.NewSquadModel(params.Albert, false, 2)
	if err != nil {
		return err
	}
	if err := loadWeights(m, kindAlbertSquad, checkpoint, seed); err != nil {
		return err
	}
	logProbs, err := m.Forward(batch)
	if err != nil {
		return err
	}
	spans, err := albert.BestSpans(logProbs, batch.InputMask, maxAnswerFlag)
	if err != nil {
		return err
	}
	line, err := formatSpan(spans[0], batch.InputIDs[0])
	if err != nil {
		return err
	}
	fmt.Println(line)
	return nil
}

// formatSpan renders an answer span with its token ids. BestSpans reports
// Start = -1 when every position was masked.
func formatSpan(s albert.Span, ids []int) (string, error) {
	if s.Start < 0 || s.End < s.Start || s.End >= len(ids) {
		return "", fmt.Errorf("squad: no valid answer span (start=%d end=%d)", s.Start, s.End)
	}
	return fmt.Sprintf("start=%d end=%d score=%.4f ids=%v", s.Start, s.End, s.Score, ids[s.Start:s.End+1]), nil
}

// initCheckpoint writes freshly initialized weights for a model kind.
func initCheckpoint(kind, out string, seed uint64) error {
	if out == "" {
		return fmt.Errorf("init needs -out")
	}
	var m initializer
	var err error
	switch kind {
	case kindDeepSpeech:
		m, err = deepspeech.New(params.DeepSpeech)
	case kindAlbertCLS:
		m, err = albert.NewCLSModel(params.Albert, true, numLabelsFlag, 0.1, assessFlag)
	case kindAlbertSquad:
		m, err = albert.NewSquadModel(params.Albert, true, 2)
	default:
		return fmt.Errorf("unknown model kind %q", kind)
	}
	if err != nil {
		return err
	}
	m.Initialize(rand.NewPCG(seed, seed))
	if err := IO.SaveCheckpoint(out, kind, m.Params()); err != nil {
		return err
	}
	log.Printf("wrote %d %s params to %s", len(m.Params()), kind, out)
	return nil
}
