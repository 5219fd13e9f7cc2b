package utils

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/modelzoo/params"
)

func TestLogSoftmaxInPlace(t *testing.T) {
	v := []float64{1, 2, 3, 1000}
	LogSoftmaxInPlace(v)
	sum := 0.0
	for _, x := range v {
		if math.IsNaN(x) || x > 0 {
			t.Fatalf("bad log-prob %v", x)
		}
		sum += math.Exp(x)
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("exp sums to %v", sum)
	}
}

func TestLogSoftmaxStridedMatchesContiguous(t *testing.T) {
	// column 1 of a 3x2 row-major block
	data := []float64{0, 0.5, 0, -1, 0, 2}
	LogSoftmaxStrided(data, 1, 3, 2)
	want := []float64{0.5, -1, 2}
	LogSoftmaxInPlace(want)
	got := []float64{data[1], data[3], data[5]}
	if !floats.EqualApprox(got, want, 1e-12) {
		t.Fatalf("got %v want %v", got, want)
	}
	if data[0] != 0 || data[2] != 0 || data[4] != 0 {
		t.Fatalf("touched other column: %v", data)
	}
}

func TestRowSoftmaxMasked(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 3, 2, 1})
	dst := mat.NewDense(2, 3, nil)
	RowSoftmaxMaskedInPlace(dst, m, []float64{0, 0, -1e4})
	for i := 0; i < 2; i++ {
		if s := floats.Sum(dst.RawRowView(i)); math.Abs(s-1) > 1e-12 {
			t.Fatalf("row %d sums to %v", i, s)
		}
		if dst.At(i, 2) > 1e-100 {
			t.Fatalf("masked column kept mass %v", dst.At(i, 2))
		}
	}
}

func TestCast(t *testing.T) {
	v := []float64{1.0 / 3.0}
	Cast(v, Float32)
	if v[0] != float64(float32(1.0/3.0)) {
		t.Fatalf("float32 cast = %v", v[0])
	}
	h := []float64{1.0 / 3.0}
	Cast(h, Float16)
	if math.Abs(h[0]-1.0/3.0) > 1e-3 || h[0] == v[0] {
		t.Fatalf("float16 cast = %v", h[0])
	}
	if _, err := ParseComputeType("int8"); err == nil {
		t.Fatalf("expected error for int8")
	}
}

func TestChooseValidHeads(t *testing.T) {
	if got := ChooseValidHeads(12, 5); got != 4 {
		t.Fatalf("ChooseValidHeads(12,5) = %d", got)
	}
	if got := ChooseValidHeads(12, 0); got != 1 {
		t.Fatalf("ChooseValidHeads(12,0) = %d", got)
	}
}

func TestDebugStep(t *testing.T) {
	debug, every := params.Debug, params.DebugEvery
	defer func() { params.Debug, params.DebugEvery = debug, every }()

	params.Debug, params.DebugEvery = true, 3
	var got []int
	for step := 1; step <= 7; step++ {
		if DebugStep(step) {
			got = append(got, step)
		}
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 6 {
		t.Fatalf("logged steps %v, want [3 6]", got)
	}

	params.Debug = false
	if DebugStep(3) {
		t.Fatal("logged with Debug off")
	}
	params.Debug, params.DebugEvery = true, 0
	if DebugStep(3) {
		t.Fatal("logged with DebugEvery 0")
	}
}
