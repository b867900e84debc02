//go:build NOORT && !ALL

package backends

import "errors"

type RustTokenizer struct{}

func loadRustTokenizer(_ []byte) (*Tokenizer, error) {
	return nil, errors.New("the rust tokenizer is not included in this build, use the GO backend or rebuild without the NOORT tag")
}

func encodeRust(_ *Tokenizer, _ string, _ bool) ([]int64, error) {
	return nil, errors.New("the rust tokenizer is not included in this build")
}

func decodeRust(_ *Tokenizer, _ []int64, _ bool) string {
	return ""
}
