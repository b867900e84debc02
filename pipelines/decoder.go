package pipelines

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kiln-ml/kiln/backends"
)

const defaultMaxSteps = 256

// DecoderState is the lifecycle state of a StreamingDecoder.
type DecoderState int32

const (
	DecoderIdle DecoderState = iota
	DecoderGenerating
	DecoderCompleted
	DecoderCancelled
	DecoderFailed
)

func (s DecoderState) String() string {
	switch s {
	case DecoderIdle:
		return "idle"
	case DecoderGenerating:
		return "generating"
	case DecoderCompleted:
		return "completed"
	case DecoderCancelled:
		return "cancelled"
	case DecoderFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Fragment is one decoded piece of generated output, yielded to the consumer
// before the next step is computed.
type Fragment struct {
	Text    string
	TokenID int64
	Step    int
}

// FragmentDecoder turns generated token ids into text. *backends.Tokenizer
// satisfies it.
type FragmentDecoder interface {
	Decode(tokenIDs []int64, skipSpecialTokens bool) string
}

// DecoderConfig controls one generation.
type DecoderConfig struct {
	// MaxSteps bounds the number of produced fragments. Defaults to 256.
	MaxSteps int
	// EosTokenIDs terminate the generation when produced.
	EosTokenIDs map[int64]bool
	// DecoderStartTokenID seeds the decoder input sequence.
	DecoderStartTokenID int64

	// Role is the session the decoder drives, "decoder" by default.
	Role string
	// InputIDsName and LogitsName are the decoder's token input and logits
	// output, "input_ids" and "logits" by default.
	InputIDsName string
	LogitsName   string
}

// StreamingDecoder drives repeated decoder session invocations for
// autoregressive generation, producing a lazy, finite, non-restartable
// sequence of decoded fragments. Token selection is greedy arg-max over the
/// final logits row. A decoder is one-shot: once it leaves the generating
// state it cannot be resumed, a new decoder is required.
type StreamingDecoder struct {
	runner    backends.Runner
	fragments FragmentDecoder
	config    DecoderConfig

	state atomic.Int32

	mu    sync.Mutex
	text  strings.Builder
	steps int
}

// NewStreamingDecoder creates an idle decoder over the given session runner.
// fragments may be nil, in which case fragments carry token ids only.
func NewStreamingDecoder(runner backends.Runner, fragments FragmentDecoder, config DecoderConfig) *StreamingDecoder {
	if config.Role == "" {
		config.Role = "decoder"
	}
	if config.InputIDsName == "" {
		config.InputIDsName = "input_ids"
	}
	if config.LogitsName == "" {
		config.LogitsName = "logits"
	}
	return &StreamingDecoder{runner: runner, fragments: fragments, config: config}
}

// State returns the last state the decoder reached.
func (d *StreamingDecoder) State() DecoderState {
	return DecoderState(d.state.Load())
}

// Text returns the accumulated generated text. After a failed generation the
// accumulated state is discarded and Text returns "".
func (d *StreamingDecoder) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.String()
}

// Steps returns the number of fragments produced so far.
func (d *StreamingDecoder) Steps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steps
}

// Start transitions the decoder from idle to generating and returns the
// fragment stream. static holds the tensors fed unchanged to every decoder
// step (typically the cached encoder hidden states, so the encoder pass runs
// at most once per generation); prefix seeds the generated sequence after the
// decoder start token.
//
// The fragment channel is unbuffered: the generation suspends before each
// step until the consumer receives the previous fragment. Cancelling ctx
// takes effect at the next step boundary; in-flight forward passes are not
// interrupted, only not continued. The error channel receives at most one
// error and both channels are closed when the decoder reaches a terminal
// state.
func (d *StreamingDecoder) Start(ctx context.Context, static map[string]*backends.Tensor, prefix []int64) (<-chan Fragment, <-chan error, error) {
	if d.runner == nil {
		return nil, nil, fmt.Errorf("%w: decoder has no session runner", backends.ErrUninitialized)
	}
	if !d.state.CompareAndSwap(int32(DecoderIdle), int32(DecoderGenerating)) {
		return nil, nil, fmt.Errorf("decoder is not restartable: state is %s, create a new decoder", d.State())
	}
	maxSteps := d.config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	fragments := make(chan Fragment)
	errs := make(chan error, 1)
	go d.generate(ctx, static, prefix, maxSteps, fragments, errs)
	return fragments, errs, nil
}

func (d *StreamingDecoder) generate(ctx context.Context, static map[string]*backends.Tensor, prefix []int64, maxSteps int, fragments chan<- Fragment, errs chan<- error) {
	defer close(fragments)
	defer close(errs)

	tokens := make([]int64, 0, len(prefix)+1+maxSteps)
	tokens = append(tokens, d.config.DecoderStartTokenID)
	tokens = append(tokens, prefix...)

	for step := 0; step < maxSteps; step++ {
		if ctx.Err() != nil {
			d.state.Store(int32(DecoderCancelled))
			errs <- fmt.Errorf("%w: %w", backends.ErrCancelled, context.Cause(ctx))
			return
		}

		inputs := make(map[string]*backends.Tensor, len(static)+1)
		for name, t := range static {
			inputs[name] = t
		}
		ids := make([]int64, len(tokens))
		copy(ids, tokens)
		inputIDs, err := backends.NewInt64Tensor(backends.NewShape(1, int64(len(ids))), ids)
		if err != nil {
			d.fail(errs, err)
			return
		}
		inputs[d.config.InputIDsName] = inputIDs

		outputs, err := d.runner.Run(d.config.Role, inputs)
		if err != nil {
			d.fail(errs, err)
			return
		}

		next, err := d.selectToken(outputs)
		if err != nil {
			d.fail(errs, err)
			return
		}
		if d.config.EosTokenIDs[next] {
			d.state.Store(int32(DecoderCompleted))
			return
		}

		text := ""
		if d.fragments != nil {
			text = d.fragments.Decode([]int64{next}, true)
		}
		d.mu.Lock()
		d.text.WriteString(text)
		d.steps++
		d.mu.Unlock()
		tokens = append(tokens, next)

		select {
		case fragments <- Fragment{Text: text, TokenID: next, Step: step}:
		case <-ctx.Done():
			d.state.Store(int32(DecoderCancelled))
			errs <- fmt.Errorf("%w: %w", backends.ErrCancelled, context.Cause(ctx))
			return
		}
	}
	d.state.Store(int32(DecoderCompleted))
}

// fail discards the accumulated state: a failed generation reports no partial output.
func (d *StreamingDecoder) fail(errs chan<- error, err error) {
	d.mu.Lock()
	d.text.Reset()
	d.steps = 0
	d.mu.Unlock()
	d.state.Store(int32(DecoderFailed))
	errs <- err
}

// selectToken picks the next token id by greedy arg-max over the logits row
// of the last sequence position.
func (d *StreamingDecoder) selectToken(outputs map[string]*backends.Tensor) (int64, error) {
	logits, ok := outputs[d.config.LogitsName]
	if !ok {
		for _, t := range outputs {
			if t.IsFloat32() {
				logits = t
				break
			}
		}
	}
	if logits == nil || !logits.IsFloat32() || len(logits.Shape) < 2 {
		return 0, fmt.Errorf("decoder produced no usable logits output %q", d.config.LogitsName)
	}
	vocabSize := int(logits.Dim(-1))
	if vocabSize < 1 || len(logits.Float32s) < vocabSize {
		return 0, fmt.Errorf("logits shape %s is inconsistent with buffer length %d", logits.Shape, len(logits.Float32s))
	}
	row := logits.Float32s[len(logits.Float32s)-vocabSize:]
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return int64(best), nil
}
