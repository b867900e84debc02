package backends

import (
	"errors"
	"fmt"

	"github.com/kiln-ml/kiln/options"
)

// roleArtifactCandidates lists the ONNX file names accepted for each logical
// role, in preference order. The names follow the layout of exported
// transformer checkpoints.
var roleArtifactCandidates = map[string][]string{
	"model":   {"model.onnx", "model_quantized.onnx"},
	"encoder": {"encoder_model.onnx", "encoder.onnx", "vision_encoder.onnx"},
	"decoder": {"decoder_model_merged.onnx", "decoder_model.onnx", "decoder.onnx"},
}

// Model bundles everything loaded from one model directory: the resolved
// configuration, the named sessions and (for text-producing models) the
// tokenizer. A model instance serves one logical caller at a time.
type Model struct {
	Path      string
	Config    *ModelConfig
	Sessions  *SessionSet
	Tokenizer *Tokenizer
	Pipelines map[string]Pipeline
	Destroy   func() error
}

// LoadModel resolves the artifacts for the given roles under path and loads
// one session per role. When withTokenizer is set, tokenizer.json is loaded
// with the runtime matching the backend.
func LoadModel(path string, roles []string, withTokenizer bool, opts *options.Options) (*Model, error) {
	config, err := LoadModelConfig(path)
	if err != nil {
		return nil, err
	}

	artifacts := make(map[string]string, len(roles))
	for _, role := range roles {
		candidates, ok := roleArtifactCandidates[role]
		if !ok {
			return nil, fmt.Errorf("%w: no artifact naming convention for role %q", ErrSessionLoad, role)
		}
		artifact, err := FindArtifact(path, candidates)
		if err != nil {
			return nil, err
		}
		if artifact == "" {
			return nil, fmt.Errorf("%w: no artifact found for role %q at %s", ErrSessionLoad, role, path)
		}
		artifacts[role] = artifact
	}

	sessions, err := LoadSessionSet(artifacts, roles, opts)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Path:      path,
		Config:    config,
		Sessions:  sessions,
		Pipelines: map[string]Pipeline{},
	}

	if withTokenizer {
		tk, tkErr := LoadTokenizer(path, opts.Backend)
		if tkErr != nil {
			return nil, errors.Join(tkErr, sessions.Destroy())
		}
		model.Tokenizer = tk
	}

	model.Destroy = func() error {
		var destroyErr error
		if model.Tokenizer != nil {
			destroyErr = model.Tokenizer.Destroy()
			model.Tokenizer = nil
		}
		destroyErr = errors.Join(destroyErr, model.Sessions.Destroy())
		model.Sessions = nil
		return destroyErr
	}
	return model, nil
}
