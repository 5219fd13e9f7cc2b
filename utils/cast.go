package utils

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// ComputeType is the numeric precision a layer's output is rounded to.
// Storage stays float64; rounding models the reduced-precision cast.
type ComputeType int

const (
	Float64 ComputeType = iota
	Float32
	Float16
)

func (c ComputeType) String() string {
	switch c {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	}
	return "float64"
}

func ParseComputeType(name string) (ComputeType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "float64", "fp64":
		return Float64, nil
	case "float32", "fp32":
		return Float32, nil
	case "float16", "fp16", "half":
		return Float16, nil
	}
	return Float64, fmt.Errorf("unknown compute type %q", name)
}

// Cast rounds every value in data through the given precision, in place.
func Cast(data []float64, to ComputeType) {
	switch to {
	case Float32:
		for i, v := range data {
			data[i] = float64(float32(v))
		}
	case Float16:
		for i, v := range data {
			data[i] = float64(float16.Fromfloat32(float32(v)).Float32())
		}
	}
}
