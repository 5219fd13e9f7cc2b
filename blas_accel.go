//go:build accelerate

package main

// #cgo darwin LDFLAGS: -framework Accelerate
// #cgo linux LDFLAGS: -lopenblas
import "C"
import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// -tags accelerate routes blas64 (and so every mat.Dense product in the
// conv, recurrent and attention layers) through the system CBLAS.
func init() {
	blas64.Use(netlib.Implementation{})
}
