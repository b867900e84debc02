package pipelines

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiln-ml/kiln/backends"
)

// scriptedRunner emits one-hot logits for a scripted token sequence,
// recording the input ids it was called with.
type scriptedRunner struct {
	mu        sync.Mutex
	script    []int64
	vocabSize int
	calls     int
	seen      [][]int64
	failAt    int
	failErr   error
}

func (r *scriptedRunner) Run(role string, inputs map[string]*backends.Tensor) (map[string]*backends.Tensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role != "decoder" {
		return nil, fmt.Errorf("unexpected role %q", role)
	}
	ids, ok := inputs["input_ids"]
	if !ok {
		return nil, errors.New("missing input_ids")
	}
	r.seen = append(r.seen, append([]int64(nil), ids.Int64s...))
	if r.failErr != nil && r.calls == r.failAt {
		return nil, r.failErr
	}
	token := r.script[min(r.calls, len(r.script)-1)]
	r.calls++
	logits := make([]float32, r.vocabSize)
	logits[token] = 1
	out, err := backends.NewFloat32Tensor(backends.NewShape(1, 1, int64(r.vocabSize)), logits)
	if err != nil {
		return nil, err
	}
	return map[string]*backends.Tensor{"logits": out}, nil
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// wordDecoder maps every token id to "t<id> ".
type wordDecoder struct{}

func (wordDecoder) Decode(ids []int64, _ bool) string {
	var out string
	for _, id := range ids {
		out += fmt.Sprintf("t%d ", id)
	}
	return out
}

func collect(t *testing.T, fragments <-chan Fragment, errs <-chan error) ([]Fragment, error) {
	t.Helper()
	var got []Fragment
	for fragment := range fragments {
		got = append(got, fragment)
	}
	return got, <-errs
}

func TestDecoderStopsAtEos(t *testing.T) {
	runner := &scriptedRunner{script: []int64{3, 5, 2}, vocabSize: 8}
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{
		EosTokenIDs:         map[int64]bool{2: true},
		DecoderStartTokenID: 0,
	})

	fragments, errs, err := decoder.Start(context.Background(), nil, nil)
	assert.NoError(t, err)
	got, streamErr := collect(t, fragments, errs)
	assert.NoError(t, streamErr)

	// eos terminates without an eos fragment
	assert.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].TokenID)
	assert.Equal(t, int64(5), got[1].TokenID)
	assert.Equal(t, DecoderCompleted, decoder.State())
	assert.Equal(t, "t3 t5 ", decoder.Text())
	assert.Equal(t, 2, decoder.Steps())
}

func TestDecoderSequenceGrowsByOneTokenPerStep(t *testing.T) {
	runner := &scriptedRunner{script: []int64{3, 5, 2}, vocabSize: 8}
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{
		EosTokenIDs:         map[int64]bool{2: true},
		DecoderStartTokenID: 7,
	})

	fragments, errs, err := decoder.Start(context.Background(), nil, []int64{4})
	assert.NoError(t, err)
	_, streamErr := collect(t, fragments, errs)
	assert.NoError(t, streamErr)

	assert.Equal(t, [][]int64{
		{7, 4},
		{7, 4, 3},
		{7, 4, 3, 5},
	}, runner.seen)
}

func TestDecoderHonoursMaxSteps(t *testing.T) {
	runner := &scriptedRunner{script: []int64{1}, vocabSize: 4}
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{
		MaxSteps:            5,
		DecoderStartTokenID: 0,
	})

	fragments, errs, err := decoder.Start(context.Background(), nil, nil)
	assert.NoError(t, err)
	got, streamErr := collect(t, fragments, errs)
	assert.NoError(t, streamErr)

	assert.Len(t, got, 5)
	assert.Equal(t, DecoderCompleted, decoder.State())
	assert.Equal(t, 5, runner.callCount())
}

func TestDecoderCancellationStopsCleanly(t *testing.T) {
	runner := &scriptedRunner{script: []int64{1}, vocabSize: 4}
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{
		MaxSteps:            100,
		DecoderStartTokenID: 0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fragments, errs, err := decoder.Start(ctx, nil, nil)
	assert.NoError(t, err)

	var got []Fragment
	for fragment := range fragments {
		got = append(got, fragment)
		if len(got) == 3 {
			cancel()
		}
	}
	streamErr := <-errs
	assert.ErrorIs(t, streamErr, backends.ErrCancelled)
	assert.Equal(t, DecoderCancelled, decoder.State())

	// no further forward passes after the cancelled step boundary
	callsAtCancel := runner.callCount()
	assert.LessOrEqual(t, callsAtCancel, 4)
	// text produced before cancellation is retained
	assert.GreaterOrEqual(t, decoder.Steps(), len(got))
}

func TestDecoderFailureDiscardsPartialOutput(t *testing.T) {
	runner := &scriptedRunner{
		script:    []int64{1},
		vocabSize: 4,
		failAt:    2,
		failErr:   fmt.Errorf("%w: engine exploded", backends.ErrInference),
	}
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{
		MaxSteps:            10,
		DecoderStartTokenID: 0,
	})

	fragments, errs, err := decoder.Start(context.Background(), nil, nil)
	assert.NoError(t, err)
	got, streamErr := collect(t, fragments, errs)

	assert.Len(t, got, 2)
	assert.ErrorIs(t, streamErr, backends.ErrInference)
	assert.Equal(t, DecoderFailed, decoder.State())
	assert.Equal(t, "", decoder.Text())
	assert.Equal(t, 0, decoder.Steps())
}

func TestDecoderIsNotRestartable(t *testing.T) {
	runner := &scriptedRunner{script: []int64{2}, vocabSize: 4}
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{
		EosTokenIDs:         map[int64]bool{2: true},
		DecoderStartTokenID: 0,
	})

	fragments, errs, err := decoder.Start(context.Background(), nil, nil)
	assert.NoError(t, err)
	_, streamErr := collect(t, fragments, errs)
	assert.NoError(t, streamErr)
	assert.Equal(t, DecoderCompleted, decoder.State())

	_, _, err = decoder.Start(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not restartable")
}

func TestDecoderStaticInputsAreForwardedEveryStep(t *testing.T) {
	var sawStatic int
	runner := runnerFunc(func(role string, inputs map[string]*backends.Tensor) (map[string]*backends.Tensor, error) {
		if _, ok := inputs["encoder_hidden_states"]; ok {
			sawStatic++
		}
		logits := []float32{0, 1}
		out, err := backends.NewFloat32Tensor(backends.NewShape(1, 1, 2), logits)
		if err != nil {
			return nil, err
		}
		return map[string]*backends.Tensor{"logits": out}, nil
	})
	decoder := NewStreamingDecoder(runner, wordDecoder{}, DecoderConfig{MaxSteps: 3})

	hidden, err := backends.NewFloat32Tensor(backends.NewShape(1, 2, 4), make([]float32, 8))
	assert.NoError(t, err)
	fragments, errs, startErr := decoder.Start(context.Background(), map[string]*backends.Tensor{
		"encoder_hidden_states": hidden,
	}, nil)
	assert.NoError(t, startErr)
	_, streamErr := collect(t, fragments, errs)
	assert.NoError(t, streamErr)
	assert.Equal(t, 3, sawStatic)
}

func TestDecoderWithoutRunner(t *testing.T) {
	decoder := NewStreamingDecoder(nil, wordDecoder{}, DecoderConfig{})
	_, _, err := decoder.Start(context.Background(), nil, nil)
	assert.ErrorIs(t, err, backends.ErrUninitialized)
}

type runnerFunc func(role string, inputs map[string]*backends.Tensor) (map[string]*backends.Tensor, error)

func (f runnerFunc) Run(role string, inputs map[string]*backends.Tensor) (map[string]*backends.Tensor, error) {
	return f(role, inputs)
}
