// Package pipelines implements the inference pipelines that can be run
// against a loaded model: image to image, image to text, and text to text.
package pipelines

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiln-ml/kiln/backends"
)

// basePipeline holds the fields common to all pipeline types.
type basePipeline struct {
	PipelineName    string
	Model           *backends.Model
	PipelineTimings *backends.Timings
}

func newBasePipeline(name string, model *backends.Model) basePipeline {
	return basePipeline{
		PipelineName:    name,
		Model:           model,
		PipelineTimings: &backends.Timings{},
	}
}

// GetStats returns the runtime statistics accumulated by the pipeline.
func (p *basePipeline) GetStats() []string {
	return p.PipelineTimings.Stats(p.PipelineName)
}

// Destroy is a no-op at the pipeline level: sessions and tokenizers belong
// to the model, which is shared between the pipelines created from it and
// released by the owning session.
func (p *basePipeline) Destroy() error {
	return nil
}

// TextOutput is the result of running a text-producing pipeline to completion.
type TextOutput struct {
	Text    string
	State   DecoderState
	Steps   int
	Elapsed time.Duration
}

// requireRoles checks that the model carries a session for every role the
// pipeline needs.
func (p *basePipeline) requireRoles(roles ...string) error {
	for _, role := range roles {
		if !p.Model.Sessions.HasRole(role) {
			return fmt.Errorf("%w: pipeline %q needs session role %q, model %q has roles [%s]",
				backends.ErrSessionLoad, p.PipelineName, role, p.Model.Path,
				strings.Join(p.Model.Sessions.Roles(), ", "))
		}
	}
	return nil
}

// firstInputName returns the name of the first declared input of a role.
func (p *basePipeline) firstInputName(role string) (string, error) {
	names, err := p.Model.Sessions.InputNames(role)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: session role %q declares no inputs", backends.ErrSessionLoad, role)
	}
	return names[0], nil
}

// pickOutput returns the output tensor under preferred when present,
// otherwise the first tensor in declared output order.
func (p *basePipeline) pickOutput(role, preferred string, outputs map[string]*backends.Tensor) (*backends.Tensor, error) {
	if out, ok := outputs[preferred]; ok {
		return out, nil
	}
	names, err := p.Model.Sessions.OutputNames(role)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if out, ok := outputs[name]; ok {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: session role %q produced no usable output", backends.ErrInference, role)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// onesTensor builds an attention mask of the given shape filled with ones.
func onesTensor(shape ...int64) *backends.Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	data := make([]int64, n)
	for i := range data {
		data[i] = 1
	}
	t, _ := backends.NewInt64Tensor(backends.NewShape(shape...), data)
	return t
}
