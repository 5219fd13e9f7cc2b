package audio

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/manningwu07/modelzoo/params"
	"github.com/manningwu07/modelzoo/tensor"
)

// Window returns n coefficients of the named window. Unknown names are an error.
func Window(name string, n int) ([]float64, error) {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w, nil
	}
	den := float64(n - 1)
	switch strings.ToLower(name) {
	case "hamming", "":
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/den)
		}
	case "hann", "hanning":
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/den)
		}
	case "blackman":
		for i := range w {
			x := 2 * math.Pi * float64(i) / den
			w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		}
	case "bartlett":
		for i := range w {
			w[i] = 1 - math.Abs(2*float64(i)/den-1)
		}
	default:
		return nil, fmt.Errorf("audio: unknown window %q", name)
	}
	return w, nil
}

// reflectPad mirrors pad samples onto each end without repeating the edge.
func reflectPad(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	copy(out[pad:], x)
	for i := 1; i <= pad; i++ {
		l, r := i, n-1-i
		if n > 1 {
			l, r = reflectIndex(l, n), reflectIndex(r, n)
		} else {
			l, r = 0, 0
		}
		out[pad-i] = x[l]
		out[pad+n-1+i] = x[r]
	}
	return out
}

func reflectIndex(i, n int) int {
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// Spectrogram computes log(1 + |STFT|) of a clip with frames centered on
// multiples of the hop. The result is (1, 1, n_fft/2+1, frames).
func Spectrogram(samples []float64, cfg params.AudioConfig) (*tensor.Tensor, error) {
	nFFT := int(float64(cfg.SampleRate) * cfg.WindowSize)
	hop := int(float64(cfg.SampleRate) * cfg.WindowStride)
	if nFFT < 2 || hop < 1 {
		return nil, fmt.Errorf("audio: window of %d samples with hop %d", nFFT, hop)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: empty clip")
	}
	win, err := Window(cfg.Window, nFFT)
	if err != nil {
		return nil, err
	}

	padded := reflectPad(samples, nFFT/2)
	frames := 1 + (len(padded)-nFFT)/hop
	bins := nFFT/2 + 1
	out := tensor.New(1, 1, bins, frames)

	fft := fourier.NewFFT(nFFT)
	frame := make([]float64, nFFT)
	coeffs := make([]complex128, bins)
	for t := 0; t < frames; t++ {
		seg := padded[t*hop : t*hop+nFFT]
		for i := range frame {
			frame[i] = seg[i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for f, c := range coeffs {
			out.Data[f*frames+t] = math.Log1p(cmplx.Abs(c))
		}
	}
	if cfg.Normalize {
		mean, std := stat.MeanStdDev(out.Data, nil)
		if std == 0 {
			std = 1
		}
		for i, v := range out.Data {
			out.Data[i] = (v - mean) / std
		}
	}
	return out, nil
}
