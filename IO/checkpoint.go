package IO

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manningwu07/modelzoo/layers"
	"github.com/manningwu07/modelzoo/tensor"
	"github.com/manningwu07/modelzoo/utils"
)

// checkpointData is the gob layout of a saved model: its kind and every
// named parameter array.
type checkpointData struct {
	Kind   string
	Params []paramData
}

type paramData struct {
	Name  string
	Shape []int
	Data  []float64
}

// SaveCheckpoint writes ps to path with gob. The file is written next to
// path first and renamed into place.
func SaveCheckpoint(path, kind string, ps []layers.Param) error {
	data := checkpointData{Kind: kind, Params: make([]paramData, len(ps))}
	for i, p := range ps {
		data.Params[i] = paramData{Name: p.Name, Shape: p.Shape, Data: p.Data}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	utils.Debugf("saved %d params (%s) to %s", len(ps), kind, path)
	return os.Rename(tmp, path)
}

// LoadCheckpoint copies saved arrays into ps by name. Every param in ps
// must be present with the same shape; extra entries in the file are ignored.
func LoadCheckpoint(path, kind string, ps []layers.Param) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var data checkpointData
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return fmt.Errorf("LoadCheckpoint: decode %s: %w", path, err)
	}
	if data.Kind != kind {
		return fmt.Errorf("LoadCheckpoint: %s holds a %q model, want %q", path, data.Kind, kind)
	}
	saved := make(map[string]paramData, len(data.Params))
	for _, p := range data.Params {
		saved[p.Name] = p
	}
	for _, p := range ps {
		s, ok := saved[p.Name]
		if !ok {
			return fmt.Errorf("LoadCheckpoint: %s missing %s", path, p.Name)
		}
		if !tensor.SameShape(s.Shape, p.Shape) || len(s.Data) != len(p.Data) {
			return fmt.Errorf("LoadCheckpoint: %s shape mismatch (have %v, file %v)", p.Name, p.Shape, s.Shape)
		}
		copy(p.Data, s.Data)
		delete(saved, p.Name)
	}
	if len(saved) > 0 {
		utils.Debugf("LoadCheckpoint: %d unused entries in %s", len(saved), path)
	}
	return nil
}

