package backends

import (
	"fmt"

	"github.com/kiln-ml/kiln/util/fileutil"
)

// Tokenizer is the opaque text to token-id capability. The rust runtime backs
// ORT builds, the pure Go runtime backs GO builds, mirroring the session
// backend split.
type Tokenizer struct {
	RustTokenizer *RustTokenizer
	GoTokenizer   *GoTokenizer
	Runtime       string
	Destroy       func() error
}

// LoadTokenizer reads tokenizer.json from the model directory and creates the
// tokenizer runtime matching the session backend.
func LoadTokenizer(path string, backend string) (*Tokenizer, error) {
	tokenizerPath := fileutil.PathJoinSafe(path, "tokenizer.json")
	exists, err := fileutil.FileExists(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("error checking for existence of tokenizer.json: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("no tokenizer.json found at %s", path)
	}
	tokenizerBytes, err := fileutil.ReadFileBytes(tokenizerPath)
	if err != nil {
		return nil, err
	}
	switch backend {
	case "ORT":
		return loadRustTokenizer(tokenizerBytes)
	case "GO":
		return loadGoTokenizer(tokenizerBytes)
	default:
		return nil, fmt.Errorf("backend %s not recognized", backend)
	}
}

// Encode converts text to token ids.
func (t *Tokenizer) Encode(text string, addSpecialTokens bool) ([]int64, error) {
	switch t.Runtime {
	case "RUST":
		return encodeRust(t, text, addSpecialTokens)
	case "GO":
		return encodeGo(t, text, addSpecialTokens)
	default:
		return nil, fmt.Errorf("tokenizer runtime %s not recognized", t.Runtime)
	}
}

// Decode converts token ids back to text.
func (t *Tokenizer) Decode(tokenIDs []int64, skipSpecialTokens bool) string {
	switch t.Runtime {
	case "RUST":
		return decodeRust(t, tokenIDs, skipSpecialTokens)
	case "GO":
		return decodeGo(t, tokenIDs, skipSpecialTokens)
	default:
		return ""
	}
}
