package IO

import (
	"fmt"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/manningwu07/modelzoo/albert"
)

// padTokens are tried in order when looking up the padding id.
var padTokens = []string{"<pad>", "[PAD]", "<PAD>"}

// Tokenizer turns text into padded ALBERT batches.
type Tokenizer struct {
	tok   *tk.Tokenizer
	vocab map[string]int
	PadID int
}

// LoadTokenizer reads a tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	vocab := t.GetVocab(true)
	pad := 0
	for _, name := range padTokens {
		if id, ok := vocab[name]; ok {
			pad = id
			break
		}
	}
	return &Tokenizer{tok: t, vocab: vocab, PadID: pad}, nil
}

func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// EncodeSingle encodes each text as one row of width maxLen.
func (t *Tokenizer) EncodeSingle(texts []string, maxLen int) (albert.Batch, error) {
	var b albert.Batch
	for _, text := range texts {
		enc, err := t.tok.EncodeSingle(text, true)
		if err != nil {
			return albert.Batch{}, err
		}
		b = appendRow(b, toInts(enc.Ids), toInts(enc.TypeIds), maxLen, t.PadID)
	}
	return b, nil
}

// EncodePair encodes question and context as one sequence pair with
// segment ids 0 and 1.
func (t *Tokenizer) EncodePair(question, context string, maxLen int) (albert.Batch, error) {
	enc, err := t.tok.EncodePair(question, context, true)
	if err != nil {
		return albert.Batch{}, err
	}
	return appendRow(albert.Batch{}, toInts(enc.Ids), toInts(enc.TypeIds), maxLen, t.PadID), nil
}

func toInts[T ~int | ~int32 | ~int64 | ~uint32](ids []T) []int {
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out
}

// appendRow truncates or pads ids and types to maxLen and records the mask.
func appendRow(b albert.Batch, ids, types []int, maxLen, pad int) albert.Batch {
	row := make([]int, maxLen)
	seg := make([]int, maxLen)
	mask := make([]int, maxLen)
	for i := range row {
		if i < len(ids) {
			row[i] = ids[i]
			mask[i] = 1
			if i < len(types) {
				seg[i] = types[i]
			}
			continue
		}
		row[i] = pad
	}
	b.InputIDs = append(b.InputIDs, row)
	b.TokenTypeIDs = append(b.TokenTypeIDs, seg)
	b.InputMask = append(b.InputMask, mask)
	return b
}
