package params

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// File is the on-disk layout of a config override. Missing sections keep
// the package defaults.
type File struct {
	DeepSpeech *DeepSpeechConfig `json:"deepspeech,omitempty"`
	Albert     *AlbertConfig     `json:"albert,omitempty"`
}

// Load reads a JSON override file into DeepSpeech and Albert.
// Fields absent from the file keep their current values.
func Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f := File{DeepSpeech: &DeepSpeech, Albert: &Albert}
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("params: decode %s: %w", path, err)
	}
	return nil
}

// Export writes the current configuration so it can be edited and loaded back.
func Export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(File{DeepSpeech: &DeepSpeech, Albert: &Albert})
}

// ApplyEnv reads MODELZOO_DEBUG, MODELZOO_DEBUG_EVERY and MODELZOO_HEAD_PAR. It returns the
// seed from MODELZOO_SEED, or def when unset or unparsable.
func ApplyEnv(def uint64) uint64 {
	if v := strings.TrimSpace(os.Getenv("MODELZOO_DEBUG")); v == "1" || strings.EqualFold(v, "true") {
		Debug = true
	}
	if v, err := strconv.Atoi(os.Getenv("MODELZOO_DEBUG_EVERY")); err == nil && v > 0 {
		DebugEvery = v
	}
	ParallelHeads = os.Getenv("MODELZOO_HEAD_PAR") == "1"
	if v, err := strconv.ParseUint(os.Getenv("MODELZOO_SEED"), 10, 64); err == nil {
		return v
	}
	return def
}
