package pipelines

import (
	"fmt"
	"image"
	"time"

	"github.com/kiln-ml/kiln/backends"
	"github.com/kiln-ml/kiln/imageproc"
	"github.com/kiln-ml/kiln/options"
)

// ImageToImagePipeline runs a single-session image transformation model:
// the input image is encoded to a tensor, run through the "model" session,
// and the output tensor is decoded back to pixels with the padding that was
// added during encoding cropped away.
type ImageToImagePipeline struct {
	basePipeline
	EncodeConfig imageproc.Config
}

// ImageOutput is the decoded result of an image to image run. Pixels holds
// outputWidth*outputHeight RGBA pixels in row-major order after crop.
type ImageOutput struct {
	Pixels  []byte
	Width   int
	Height  int
	Elapsed time.Duration
}

// WithEncodeConfig overrides the preprocessing configuration loaded from the
// model directory.
func WithEncodeConfig(config imageproc.Config) backends.PipelineOption[*ImageToImagePipeline] {
	return func(p *ImageToImagePipeline) {
		p.EncodeConfig = config
	}
}

// NewImageToImagePipeline initializes an image to image pipeline over a
// loaded model.
func NewImageToImagePipeline(config backends.PipelineConfig[*ImageToImagePipeline], _ *options.Options, model *backends.Model) (*ImageToImagePipeline, error) {
	pipeline := &ImageToImagePipeline{
		basePipeline: newBasePipeline(config.Name, model),
		EncodeConfig: imageproc.ConfigFromModel(model.Config),
	}
	for _, o := range config.Options {
		o(pipeline)
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// Validate checks that the pipeline is runnable against its model.
func (p *ImageToImagePipeline) Validate() error {
	if err := p.requireRoles("model"); err != nil {
		return err
	}
	for i, s := range p.EncodeConfig.Std {
		if s == 0 {
			return fmt.Errorf("%w: normalization std for channel %d is zero", backends.ErrInvalidImage, i)
		}
	}
	return nil
}

// GetMetadata returns the output layout of the underlying session.
func (p *ImageToImagePipeline) GetMetadata() backends.PipelineMetadata {
	meta := backends.PipelineMetadata{}
	outputs, err := p.Model.Sessions.OutputsMeta("model")
	if err != nil {
		return meta
	}
	for _, output := range outputs {
		meta.OutputsInfo = append(meta.OutputsInfo, backends.OutputInfo{
			Name:       output.Name,
			Dimensions: output.Dimensions,
		})
	}
	return meta
}

// Run loads an image from a file path or data URI and transforms it.
func (p *ImageToImagePipeline) Run(source string) (*ImageOutput, error) {
	img, err := imageproc.LoadImage(source)
	if err != nil {
		return nil, err
	}
	return p.RunImage(img)
}

// RunImage transforms an already decoded image.
func (p *ImageToImagePipeline) RunImage(img image.Image) (*ImageOutput, error) {
	start := time.Now()
	input, plan, err := imageproc.Encode(img, p.EncodeConfig)
	if err != nil {
		return nil, err
	}
	inputName, err := p.firstInputName("model")
	if err != nil {
		return nil, err
	}
	outputs, err := p.Model.Sessions.Run("model", map[string]*backends.Tensor{inputName: input})
	if err != nil {
		return nil, err
	}
	output, err := p.pickOutput("model", "output", outputs)
	if err != nil {
		return nil, err
	}
	buffer, err := imageproc.Decode(output, plan)
	if err != nil {
		return nil, err
	}
	p.PipelineTimings.Observe(start)
	return &ImageOutput{
		Pixels:  buffer.Pixels,
		Width:   buffer.Width,
		Height:  buffer.Height,
		Elapsed: time.Since(start),
	}, nil
}
