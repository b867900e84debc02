package backends

import (
	"bytes"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/kiln-ml/kiln/util/safeconv"
)

type GoTokenizer struct {
	Tokenizer *tokenizer.Tokenizer
}

func loadGoTokenizer(tokenizerBytes []byte) (*Tokenizer, error) {
	tk, err := pretrained.FromReader(bytes.NewReader(tokenizerBytes))
	if err != nil {
		return nil, err
	}
	return &Tokenizer{
		Runtime:     "GO",
		GoTokenizer: &GoTokenizer{Tokenizer: tk},
		Destroy: func() error {
			return nil
		},
	}, nil
}

func encodeGo(t *Tokenizer, text string, addSpecialTokens bool) ([]int64, error) {
	encoding, err := t.GoTokenizer.Tokenizer.EncodeSingle(text, addSpecialTokens)
	if err != nil {
		return nil, err
	}
	return safeconv.IntSliceToInt64Slice(encoding.Ids), nil
}

func decodeGo(t *Tokenizer, tokenIDs []int64, skipSpecialTokens bool) string {
	return t.GoTokenizer.Tokenizer.Decode(safeconv.Int64SliceToIntSlice(tokenIDs), skipSpecialTokens)
}
