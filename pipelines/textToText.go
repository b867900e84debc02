package pipelines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiln-ml/kiln/backends"
	"github.com/kiln-ml/kiln/options"
)

// TextToTextPipeline runs sequence to sequence generation with an
// encoder-decoder model: the prompt is tokenized and encoded once, then the
// decoder generates a continuation token by token. An optional prefix seeds
// the decoder so the generation continues from it instead of starting cold.
type TextToTextPipeline struct {
	basePipeline
	MaxSteps int
}

// WithMaxNewTokens caps the number of generated tokens per run.
func WithMaxNewTokens(n int) backends.PipelineOption[*TextToTextPipeline] {
	return func(p *TextToTextPipeline) {
		p.MaxSteps = n
	}
}

// NewTextToTextPipeline initializes a sequence to sequence pipeline over a
// loaded model.
func NewTextToTextPipeline(config backends.PipelineConfig[*TextToTextPipeline], _ *options.Options, model *backends.Model) (*TextToTextPipeline, error) {
	pipeline := &TextToTextPipeline{
		basePipeline: newBasePipeline(config.Name, model),
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
func (p *TextToTextPipeline) Validate() error {
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
func (p *TextToTextPipeline) GetMetadata() backends.PipelineMetadata {
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

// encodePrompt tokenizes the prompt, runs the encoder session once and
// assembles the static decoder inputs reused on every generation step.
func (p *TextToTextPipeline) encodePrompt(prompt string) (map[string]*backends.Tensor, error) {
	ids, err := p.Model.Tokenizer.Encode(prompt, true)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: prompt %q tokenized to an empty sequence", backends.ErrInference, prompt)
	}
	inputIDs, err := backends.NewInt64Tensor(backends.NewShape(1, int64(len(ids))), ids)
	if err != nil {
		return nil, err
	}
	inputs := map[string]*backends.Tensor{"input_ids": inputIDs}
	encoderInputs, err := p.Model.Sessions.InputNames("encoder")
	if err != nil {
		return nil, err
	}
	if containsName(encoderInputs, "attention_mask") {
		inputs["attention_mask"] = onesTensor(1, int64(len(ids)))
	}
	outputs, err := p.Model.Sessions.Run("encoder", inputs)
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
		static["encoder_attention_mask"] = onesTensor(1, int64(len(ids)))
	}
	return static, nil
}

func (p *TextToTextPipeline) newDecoder() *StreamingDecoder {
	return NewStreamingDecoder(p.Model.Sessions, p.Model.Tokenizer, DecoderConfig{
		MaxSteps:            p.MaxSteps,
		EosTokenIDs:         p.Model.Config.EosTokenIDs,
		DecoderStartTokenID: p.Model.Config.DecoderStartTokenID,
	})
}

// RunStream encodes the prompt and starts a streaming generation. A non-empty
// prefix is tokenized without special tokens and seeds the decoder sequence;
// the streamed fragments contain only the continuation, not the prefix.
func (p *TextToTextPipeline) RunStream(ctx context.Context, prompt, prefix string) (*StreamingDecoder, <-chan Fragment, <-chan error, error) {
	static, err := p.encodePrompt(prompt)
	if err != nil {
		return nil, nil, nil, err
	}
	var prefixIDs []int64
	if prefix != "" {
		prefixIDs, err = p.Model.Tokenizer.Encode(prefix, false)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	decoder := p.newDecoder()
	fragments, errs, err := decoder.Start(ctx, static, prefixIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	return decoder, fragments, errs, nil
}

// Run generates a continuation for the prompt, draining the stream to
// completion. The returned text is the prefix followed by the continuation.
func (p *TextToTextPipeline) Run(ctx context.Context, prompt, prefix string) (*TextOutput, error) {
	start := time.Now()
	decoder, fragments, errs, err := p.RunStream(ctx, prompt, prefix)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	text.WriteString(prefix)
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
