package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/modelzoo/tensor"
)

// Embedding maps integer ids to rows of Table.
type Embedding struct {
	Name  string
	Vocab int
	Dim   int
	Table *mat.Dense // (Vocab x Dim)
}

func NewEmbedding(name string, vocab, dim int) *Embedding {
	return &Embedding{Name: name, Vocab: vocab, Dim: dim, Table: mat.NewDense(vocab, dim, nil)}
}

// Lookup returns (B, S, Dim) for a rectangular batch of ids.
func (e *Embedding) Lookup(ids [][]int) (*tensor.Tensor, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return nil, fmt.Errorf("%s: empty batch", e.Name)
	}
	b, s := len(ids), len(ids[0])
	out := tensor.New(b, s, e.Dim)
	for i, row := range ids {
		if len(row) != s {
			return nil, fmt.Errorf("%s: row %d has %d ids, want %d", e.Name, i, len(row), s)
		}
		for j, id := range row {
			if id < 0 || id >= e.Vocab {
				return nil, fmt.Errorf("%s: id %d at (%d,%d) outside vocab of %d", e.Name, id, i, j, e.Vocab)
			}
			base := (i*s + j) * e.Dim
			copy(out.Data[base:base+e.Dim], e.Table.RawRowView(id))
		}
	}
	return out, nil
}

func (e *Embedding) Params() []Param {
	return []Param{{Name: e.Name + ".embedding_table", Shape: []int{e.Vocab, e.Dim}, Data: e.Table.RawMatrix().Data}}
}
