// Package audio turns WAV files into the log-magnitude spectrograms the
// acoustic model consumes.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrNotWAV = errors.New("audio: not a valid WAV file")

// Clip is decoded mono audio with samples in [-1, 1].
type Clip struct {
	SampleRate int
	Samples    []float64
}

func (c Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

func LoadWAV(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close()
	clip, err := ReadWAV(f)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// ReadWAV decodes PCM audio of any bit depth and channel count, averaging
// channels down to mono.
func ReadWAV(r io.ReadSeeker) (Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Clip{}, ErrNotWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode pcm: %w", err)
	}
	depth := int(d.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	if depth <= 0 || depth > 32 {
		return Clip{}, fmt.Errorf("unsupported bit depth %d", depth)
	}
	return Clip{SampleRate: int(d.SampleRate), Samples: mixDown(buf, depth)}, nil
}

func mixDown(buf *goaudio.IntBuffer, depth int) []float64 {
	chans := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		chans = buf.Format.NumChannels
	}
	scale := float64(int64(1) << (depth - 1))
	if depth == 8 {
		// 8-bit WAV is unsigned around 128
		scale = 128
	}
	out := make([]float64, len(buf.Data)/chans)
	for i := range out {
		sum := 0.0
		for c := 0; c < chans; c++ {
			v := float64(buf.Data[i*chans+c])
			if depth == 8 {
				v -= 128
			}
			sum += v
		}
		out[i] = sum / float64(chans) / scale
	}
	return out
}

// WriteWAV encodes samples in [-1, 1] as 16-bit mono PCM.
func WriteWAV(w io.WriteSeeker, clip Clip) error {
	enc := wav.NewEncoder(w, clip.SampleRate, 16, 1, 1)
	data := make([]int, len(clip.Samples))
	for i, v := range clip.Samples {
		v = max(-1, min(1, v))
		data[i] = int(v * 32767)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
