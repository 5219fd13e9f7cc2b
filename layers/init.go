package layers

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/manningwu07/modelzoo/utils"
)

// Scheme fills a parameter array with initial values.
type Scheme interface {
	Fill(dst []float64, src rand.Source)
}

// BoundedUniform draws from U(-Bound, Bound).
type BoundedUniform struct{ Bound float64 }

func (s BoundedUniform) Fill(dst []float64, src rand.Source) {
	u := distuv.Uniform{Min: -s.Bound, Max: s.Bound, Src: src}
	for i := range dst {
		dst[i] = u.Rand()
	}
}

// Normal draws from N(Mean, Std²).
type Normal struct{ Mean, Std float64 }

func (s Normal) Fill(dst []float64, src rand.Source) {
	n := distuv.Normal{Mu: s.Mean, Sigma: s.Std, Src: src}
	for i := range dst {
		dst[i] = n.Rand()
	}
}

// TruncatedNormal draws from N(0, Std²) and redraws anything beyond 2 Std.
type TruncatedNormal struct{ Std float64 }

func (s TruncatedNormal) Fill(dst []float64, src rand.Source) {
	if s.Std == 0 {
		clear(dst)
		return
	}
	n := distuv.Normal{Mu: 0, Sigma: s.Std, Src: src}
	limit := 2 * s.Std
	for i := range dst {
		v := n.Rand()
		for math.Abs(v) > limit {
			v = n.Rand()
		}
		dst[i] = v
	}
}

type Constant struct{ Value float64 }

func (s Constant) Fill(dst []float64, _ rand.Source) {
	for i := range dst {
		dst[i] = s.Value
	}
}

// Binding pairs a parameter with the scheme that initializes it.
type Binding struct {
	Param  Param
	Scheme Scheme
}

func Bind(s Scheme, ps ...Param) []Binding {
	out := make([]Binding, len(ps))
	for i, p := range ps {
		out[i] = Binding{Param: p, Scheme: s}
	}
	return out
}

// Initialize runs every binding in order. Later bindings for the same
// parameter overwrite earlier ones.
func Initialize(bindings []Binding, src rand.Source) {
	for _, b := range bindings {
		b.Scheme.Fill(b.Param.Data, src)
		utils.Debugf("init %s %v with %T", b.Param.Name, b.Param.Shape, b.Scheme)
	}
}
