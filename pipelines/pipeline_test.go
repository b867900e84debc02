package pipelines

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiln-ml/kiln/backends"
	"github.com/kiln-ml/kiln/imageproc"
)

func emptyModel() *backends.Model {
	return &backends.Model{
		Path:      "test-model",
		Config:    &backends.ModelConfig{ImageStd: [3]float32{1, 1, 1}},
		Sessions:  &backends.SessionSet{},
		Pipelines: map[string]backends.Pipeline{},
	}
}

func TestNewImageToImagePipelineRequiresModelRole(t *testing.T) {
	_, err := NewImageToImagePipeline(backends.PipelineConfig[*ImageToImagePipeline]{
		Name: "test",
	}, nil, emptyModel())
	assert.ErrorIs(t, err, backends.ErrSessionLoad)
}

func TestNewImageToImagePipelineRejectsZeroStd(t *testing.T) {
	model := emptyModel()
	model.Config.ImageStd = [3]float32{}
	_, err := NewImageToImagePipeline(backends.PipelineConfig[*ImageToImagePipeline]{
		Name: "test",
		Options: []backends.PipelineOption[*ImageToImagePipeline]{
			WithEncodeConfig(imageproc.Config{}),
		},
	}, nil, model)
	assert.ErrorIs(t, err, backends.ErrInvalidImage)
}

func TestNewImageToTextPipelineRequiresEncoderAndDecoder(t *testing.T) {
	_, err := NewImageToTextPipeline(backends.PipelineConfig[*ImageToTextPipeline]{
		Name: "test",
	}, nil, emptyModel())
	assert.ErrorIs(t, err, backends.ErrSessionLoad)
}

func TestNewTextToTextPipelineRequiresEncoderAndDecoder(t *testing.T) {
	_, err := NewTextToTextPipeline(backends.PipelineConfig[*TextToTextPipeline]{
		Name: "test",
	}, nil, emptyModel())
	assert.ErrorIs(t, err, backends.ErrSessionLoad)
}

func TestPipelineStats(t *testing.T) {
	base := newBasePipeline("statsTest", emptyModel())
	stats := base.GetStats()
	assert.Len(t, stats, 2)
	assert.Contains(t, stats[0], "statsTest")
	assert.Contains(t, stats[1], "Execution count=0")
}
