package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) *mat.Dense {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Mul(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Add(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

// AddRowBias adds bias (length c) to every row of m in place.
// Rows are positions, columns are features.
func AddRowBias(m *mat.Dense, bias []float64) *mat.Dense {
	r, c := m.Dims()
	if len(bias) != c {
		panic(fmt.Sprintf("AddRowBias: bias has %d values, matrix has %d cols", len(bias), c))
	}
	for i := 0; i < r; i++ {
		floats.Add(m.RawRowView(i), bias)
	}
	return m
}

// -------- activations --------

// gelu(x) = 0.5 * x * (1 + tanh( sqrt(2/pi) * (x + 0.044715*x^3) ))
func GeluApply(_, _ int, x float64) float64 {
	const k = 0.7978845608028654 // sqrt(2/pi)
	t := k * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

func TanhApply(_, _ int, x float64) float64 { return math.Tanh(x) }

func Sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// ---------- Softmax variants ----------

// LogSoftmaxInPlace replaces v with log(softmax(v)).
func LogSoftmaxInPlace(v []float64) {
	lse := floats.LogSumExp(v)
	floats.AddConst(-lse, v)
}

// LogSoftmaxStrided applies log-softmax to n values spaced stride apart,
// starting at data[off]. It is how a reduction along a non-last axis is done.
func LogSoftmaxStrided(data []float64, off, n, stride int) {
	mx := math.Inf(-1)
	for k := 0; k < n; k++ {
		if v := data[off+k*stride]; v > mx {
			mx = v
		}
	}
	sum := 0.0
	for k := 0; k < n; k++ {
		sum += math.Exp(data[off+k*stride] - mx)
	}
	lse := mx + math.Log(sum)
	for k := 0; k < n; k++ {
		data[off+k*stride] -= lse
	}
}

// RowSoftmaxMaskedInPlace writes softmax(m+mask) into dst (r x c) in place.
// mask is a per-column additive term shared by every row.
func RowSoftmaxMaskedInPlace(dst, m *mat.Dense, mask []float64) *mat.Dense {
	r, c := m.Dims()
	if dr, dc := dst.Dims(); dr != r || dc != c {
		panic("RowSoftmaxMaskedInPlace: dst shape mismatch")
	}
	if len(mask) != c {
		panic("RowSoftmaxMaskedInPlace: mask length mismatch")
	}
	for i := 0; i < r; i++ {
		row := dst.RawRowView(i)
		copy(row, m.RawRowView(i))
		floats.Add(row, mask)
		mx := floats.Max(row)
		sum := 0.0
		for j, v := range row {
			e := math.Exp(v - mx)
			row[j] = e
			sum += e
		}
		floats.Scale(1.0/sum, row)
	}
	return dst
}

// Guard functions
func ChooseValidHeads(dModel, preferred int) int {
	if preferred <= 0 {
		return 1
	}
	if dModel%preferred == 0 {
		return preferred
	}
	limit := preferred
	if limit > dModel {
		limit = dModel
	}
	for h := limit; h >= 1; h-- {
		if dModel%h == 0 {
			Debugf("using %d heads instead of %d", h, preferred)
			return h
		}
	}
	return 1
}
