package backends

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/kiln-ml/kiln/util/fileutil"
)

// ModelConfig is the resolved, immutable description of a model directory:
// which preprocessing applies to images and which token ids drive generation.
// It is populated from config.json and preprocessor_config.json where those
// files exist; absent fields keep their zero value.
type ModelConfig struct {
	Path string

	// Image preprocessing.
	TargetSize int // longest-side resize target, 0 disables resizing
	ImageMean  [3]float32
	ImageStd   [3]float32
	Pad        bool
	PadSize    int

	// Generation.
	EosTokenIDs         map[int64]bool
	DecoderStartTokenID int64
	PadTokenID          int64
	MaxLength           int
	VocabSize           int
}

// LoadModelConfig reads config.json and preprocessor_config.json from the
// model directory. Both files are optional; a missing file leaves the
// corresponding fields at defaults (std 1, no padding, no resize).
func LoadModelConfig(path string) (*ModelConfig, error) {
	config := &ModelConfig{
		Path:        path,
		ImageStd:    [3]float32{1, 1, 1},
		EosTokenIDs: map[int64]bool{},
	}
	if err := loadGenerationConfig(config); err != nil {
		return nil, err
	}
	if err := loadPreprocessorConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadGenerationConfig(config *ModelConfig) error {
	configMap, err := readJSONMap(fileutil.PathJoinSafe(config.Path, "config.json"))
	if err != nil || configMap == nil {
		return err
	}
	if eosRaw, exists := configMap["eos_token_id"]; exists {
		switch v := eosRaw.(type) {
		case []any:
			for i, item := range v {
				num, ok := item.(float64)
				if !ok {
					return fmt.Errorf("eos_token_id contains non-numeric value at index %d", i)
				}
				config.EosTokenIDs[int64(num)] = true
			}
		case float64:
			config.EosTokenIDs[int64(v)] = true
		default:
			return errors.New("eos_token_id must be either a number or an array of numbers")
		}
	}
	if v, ok := numberField(configMap, "decoder_start_token_id"); ok {
		config.DecoderStartTokenID = int64(v)
	} else if v, ok := numberField(configMap, "bos_token_id"); ok {
		config.DecoderStartTokenID = int64(v)
	}
	if v, ok := numberField(configMap, "pad_token_id"); ok {
		config.PadTokenID = int64(v)
	}
	if v, ok := numberField(configMap, "max_length"); ok {
		config.MaxLength = int(v)
	}
	if v, ok := numberField(configMap, "vocab_size"); ok {
		config.VocabSize = int(v)
	}
	return nil
}

func loadPreprocessorConfig(config *ModelConfig) error {
	configMap, err := readJSONMap(fileutil.PathJoinSafe(config.Path, "preprocessor_config.json"))
	if err != nil || configMap == nil {
		return err
	}
	if sizeRaw, exists := configMap["size"]; exists {
		switch v := sizeRaw.(type) {
		case float64:
			config.TargetSize = int(v)
		case map[string]any:
			// {"longest_edge": n} or {"height": h, "width": w}; the longest
			// edge drives the aspect-preserving resize either way.
			for _, key := range []string{"longest_edge", "shortest_edge", "height", "width"} {
				if n, ok := numberField(v, key); ok && int(n) > config.TargetSize {
					config.TargetSize = int(n)
				}
			}
		default:
			return fmt.Errorf("size has unexpected type: %v", v)
		}
	}
	if doPad, ok := configMap["do_pad"].(bool); ok {
		config.Pad = doPad
	}
	if v, ok := numberField(configMap, "pad_size"); ok {
		config.PadSize = int(v)
		config.Pad = config.Pad || config.PadSize > 0
	}
	if mean, ok := floatTriple(configMap, "image_mean"); ok {
		config.ImageMean = mean
	}
	if std, ok := floatTriple(configMap, "image_std"); ok {
		config.ImageStd = std
	}
	if doNormalize, ok := configMap["do_normalize"].(bool); ok && !doNormalize {
		config.ImageMean = [3]float32{}
		config.ImageStd = [3]float32{1, 1, 1}
	}
	return nil
}

func readJSONMap(path string) (map[string]any, error) {
	exists, err := fileutil.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	configBytes, err := fileutil.ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	configMap := map[string]any{}
	if err := jsoniter.Unmarshal(configBytes, &configMap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return configMap, nil
}

func numberField(m map[string]any, key string) (float64, bool) {
	raw, exists := m[key]
	if !exists {
		return 0, false
	}
	v, ok := raw.(float64)
	return v, ok
}

func floatTriple(m map[string]any, key string) ([3]float32, bool) {
	raw, exists := m[key].([]any)
	if !exists || len(raw) < 3 {
		return [3]float32{}, false
	}
	var out [3]float32
	for i := range 3 {
		v, ok := raw[i].(float64)
		if !ok {
			return [3]float32{}, false
		}
		out[i] = float32(v)
	}
	return out, true
}

// FindArtifact returns the first candidate file name that exists under path,
// or "" when none do.
func FindArtifact(path string, candidates []string) (string, error) {
	for _, name := range candidates {
		candidate := fileutil.PathJoinSafe(path, name)
		exists, err := fileutil.FileExists(candidate)
		if err != nil {
			return "", err
		}
		if exists {
			return candidate, nil
		}
	}
	return "", nil
}
