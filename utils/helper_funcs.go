package utils

import (
	"log"
	"os"

	"github.com/manningwu07/modelzoo/params"
)

var debugLog = log.New(os.Stderr, "[debug] ", log.Ltime)

// Debugf prints when params.Debug is set.
func Debugf(format string, args ...any) {
	if params.Debug {
		debugLog.Printf(format, args...)
	}
}

// DebugStep reports whether step should log: Debug is on and step is a
// multiple of params.DebugEvery.
func DebugStep(step int) bool {
	return params.Debug && params.DebugEvery > 0 && step%params.DebugEvery == 0
}

func OnesLike(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
