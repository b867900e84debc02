//go:build !NOORT || ALL

package backends

import (
	"github.com/daulet/tokenizers"

	"github.com/kiln-ml/kiln/util/safeconv"
)

type RustTokenizer struct {
	Tokenizer *tokenizers.Tokenizer
}

func loadRustTokenizer(tokenizerBytes []byte) (*Tokenizer, error) {
	tk, err := tokenizers.FromBytes(tokenizerBytes)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{
		Runtime:       "RUST",
		RustTokenizer: &RustTokenizer{Tokenizer: tk},
		Destroy: func() error {
			return tk.Close()
		},
	}, nil
}

func encodeRust(t *Tokenizer, text string, addSpecialTokens bool) ([]int64, error) {
	ids, _ := t.RustTokenizer.Tokenizer.Encode(text, addSpecialTokens)
	return safeconv.Uint32SliceToInt64Slice(ids), nil
}

func decodeRust(t *Tokenizer, tokenIDs []int64, skipSpecialTokens bool) string {
	return t.RustTokenizer.Tokenizer.Decode(safeconv.Int64SliceToUint32Slice(tokenIDs), skipSpecialTokens)
}
