package pipelines

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/kiln-ml/kiln/backends"
	"github.com/kiln-ml/kiln/imageproc"
	"github.com/kiln-ml/kiln/options"
)

// ImageToTextPipeline captions an image with an encoder-decoder model: the
// "encoder" session turns the image tensor into hidden states, which are then
// fed to the "decoder" session on every autoregressive step.
type ImageToTextPipeline struct {
	basePipeline
	EncodeConfig imageproc.Config
	MaxSteps     int
}

// WithCaptionMaxSteps caps the number of generated tokens per caption.
func WithCaptionMaxSteps(n int) backends.PipelineOption[*ImageToTextPipeline] {
	return func(p *ImageToTextPipeline) {
		p.MaxSteps = n
	}
}

// NewImageToTextPipeline initializes an image captioning pipeline over a
// loaded model.
func NewImageToTextPipeline(config backends.PipelineConfig[*ImageToTextPipeline], _ *options.Options, model *backends.Model) (*ImageToTextPipeline, error) {
	pipeline := &ImageToTextPipeline{
		basePipeline: newBasePipeline(config.Name, model),
		EncodeConfig: imageproc.ConfigFromModel(model.Config),
		MaxSteps:     model.Config.MaxLength,
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
func (p *ImageToTextPipeline) Validate() error {
	if err := p.requireRoles("encoder", "decoder"); err != nil {
		return err
	}
	if p.Model.Tokenizer == nil {
		return fmt.Errorf("%w: pipeline %q needs a tokenizer, model %q has none",
			backends.ErrSessionLoad, p.PipelineName, p.Model.Path)
	}
	return nil
}

// GetMetadata returns the output layout of the decoder session.
func (p *ImageToTextPipeline) GetMetadata() backends.PipelineMetadata {
	meta := backends.PipelineMetadata{}
	outputs, err := p.Model.Sessions.OutputsMeta("decoder")
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

// encodeImage runs the encoder session once and assembles the static decoder
// inputs reused on every generation step.
func (p *ImageToTextPipeline) encodeImage(img image.Image) (map[string]*backends.Tensor, error) {
	input, _, err := imageproc.Encode(img, p.EncodeConfig)
	if err != nil {
		return nil, err
	}
	inputName, err := p.firstInputName("encoder")
	if err != nil {
		return nil, err
	}
	outputs, err := p.Model.Sessions.Run("encoder", map[string]*backends.Tensor{inputName: input})
	if err != nil {
		return nil, err
	}
	hidden, err := p.pickOutput("encoder", "last_hidden_state", outputs)
	if err != nil {
		return nil, err
	}
	static := map[string]*backends.Tensor{"encoder_hidden_states": hidden}
	decoderInputs, err := p.Model.Sessions.InputNames("decoder")
	if err != nil {
		return nil, err
	}
	if containsName(decoderInputs, "encoder_attention_mask") {
		static["encoder_attention_mask"] = onesTensor(1, hidden.Dim(1))
	}
	return static, nil
}

func (p *ImageToTextPipeline) newDecoder() *StreamingDecoder {
	return NewStreamingDecoder(p.Model.Sessions, p.Model.Tokenizer, DecoderConfig{
		MaxSteps:            p.MaxSteps,
		EosTokenIDs:         p.Model.Config.EosTokenIDs,
		DecoderStartTokenID: p.Model.Config.DecoderStartTokenID,
	})
}

// RunStream loads an image, runs the encoder once, and starts a streaming
// caption generation. The returned decoder exposes the terminal state once
// both channels are closed.
func (p *ImageToTextPipeline) RunStream(ctx context.Context, source string) (*StreamingDecoder, <-chan Fragment, <-chan error, error) {
	img, err := imageproc.LoadImage(source)
	if err != nil {
		return nil, nil, nil, err
	}
	return p.RunStreamImage(ctx, img)
}

// RunStreamImage starts a streaming caption generation for an already
// decoded image.
func (p *ImageToTextPipeline) RunStreamImage(ctx context.Context, img image.Image) (*StreamingDecoder, <-chan Fragment, <-chan error, error) {
	static, err := p.encodeImage(img)
	if err != nil {
		return nil, nil, nil, err
	}
	decoder := p.newDecoder()
	fragments, errs, err := decoder.Start(ctx, static, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return decoder, fragments, errs, nil
}

// Run captions an image, draining the stream to completion.
func (p *ImageToTextPipeline) Run(ctx context.Context, source string) (*TextOutput, error) {
	start := time.Now()
	decoder, fragments, errs, err := p.RunStream(ctx, source)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	for fragment := range fragments {
		text.WriteString(fragment.Text)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	p.PipelineTimings.Observe(start)
	return &TextOutput{
		Text:    text.String(),
		State:   decoder.State(),
		Steps:   decoder.Steps(),
		Elapsed: time.Since(start),
	}, nil
}
