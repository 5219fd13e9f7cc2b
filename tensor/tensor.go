// Package tensor is a row-major N-D array whose trailing 2-D view is a
// gonum *mat.Dense sharing the same storage. All arithmetic happens in gonum;
// this package only tracks shape.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type Tensor struct {
	Shape []int
	Data  []float64
}

func New(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, volume(shape))}
}

// FromData wraps data without copying.
func FromData(data []float64, shape ...int) *Tensor {
	if len(data) != volume(shape) {
		panic(fmt.Sprintf("tensor.FromData: %d values for shape %v", len(data), shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// FromMatrix reinterprets m as the given shape. The data is shared when m
// is contiguous, copied otherwise.
func FromMatrix(m *mat.Dense, shape ...int) *Tensor {
	r, c := m.Dims()
	raw := m.RawMatrix()
	data := raw.Data
	if raw.Stride != c {
		data = mat.DenseCopyOf(m).RawMatrix().Data
	}
	data = data[:r*c]
	if len(shape) == 0 {
		shape = []int{r, c}
	}
	return &Tensor{Shape: resolve(len(data), shape), Data: data}
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dim in %v", shape))
		}
		n *= d
	}
	return n
}

func (t *Tensor) Rank() int { return len(t.Shape) }

func (t *Tensor) Size() int { return len(t.Data) }

// Dim returns the size of axis i; negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	return t.Shape[t.Axis(i)]
}

// Axis normalises a possibly negative axis index.
func (t *Tensor) Axis(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	if i < 0 || i >= len(t.Shape) {
		panic(fmt.Sprintf("tensor: axis %d out of range for shape %v", i, t.Shape))
	}
	return i
}

func (t *Tensor) Strides() []int {
	s := make([]int, len(t.Shape))
	acc := 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= t.Shape[i]
	}
	return s
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index %v for shape %v", idx, t.Shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + v
	}
	return off
}

func (t *Tensor) At(idx ...int) float64 { return t.Data[t.offset(idx)] }

func (t *Tensor) Set(v float64, idx ...int) { t.Data[t.offset(idx)] = v }

func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float64(nil), t.Data...)}
}

func resolve(n int, shape []int) []int {
	out := append([]int(nil), shape...)
	infer := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if infer >= 0 {
				panic(fmt.Sprintf("tensor.Reshape: more than one -1 in %v", shape))
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || n%known != 0 {
			panic(fmt.Sprintf("tensor.Reshape: cannot infer -1 for %d values into %v", n, shape))
		}
		out[infer] = n / known
	}
	if volume(out) != n {
		panic(fmt.Sprintf("tensor.Reshape: %d values do not fit shape %v", n, shape))
	}
	return out
}

// Reshape returns a view with a new shape; one dim may be -1.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	return &Tensor{Shape: resolve(len(t.Data), shape), Data: t.Data}
}

// Matrix views the tensor as (prod(leading dims) x last dim), sharing storage.
func (t *Tensor) Matrix() *mat.Dense {
	if len(t.Shape) == 0 {
		panic("tensor.Matrix: scalar tensor")
	}
	cols := t.Shape[len(t.Shape)-1]
	if cols == 0 || len(t.Data) == 0 {
		panic(fmt.Sprintf("tensor.Matrix: empty tensor %v", t.Shape))
	}
	return mat.NewDense(len(t.Data)/cols, cols, t.Data)
}

// Transpose permutes axes into a new contiguous tensor.
func (t *Tensor) Transpose(perm ...int) *Tensor {
	if len(perm) != len(t.Shape) {
		panic(fmt.Sprintf("tensor.Transpose: perm %v for shape %v", perm, t.Shape))
	}
	seen := make([]bool, len(perm))
	shape := make([]int, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			panic(fmt.Sprintf("tensor.Transpose: invalid perm %v", perm))
		}
		seen[p] = true
		shape[i] = t.Shape[p]
	}
	src := t.Strides()
	out := New(shape...)
	idx := make([]int, len(shape))
	for o := range out.Data {
		off := 0
		for i, p := range perm {
			off += idx[i] * src[p]
		}
		out.Data[o] = t.Data[off]
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// SumAxis reduces one axis by summation, dropping it from the shape.
func (t *Tensor) SumAxis(axis int) *Tensor {
	axis = t.Axis(axis)
	outer, inner := 1, 1
	for i := 0; i < axis; i++ {
		outer *= t.Shape[i]
	}
	for i := axis + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}
	n := t.Shape[axis]
	shape := append(append([]int(nil), t.Shape[:axis]...), t.Shape[axis+1:]...)
	out := New(shape...)
	for o := 0; o < outer; o++ {
		dst := out.Data[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			src := t.Data[(o*n+k)*inner : (o*n+k+1)*inner]
			floats.Add(dst, src)
		}
	}
	return out
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
