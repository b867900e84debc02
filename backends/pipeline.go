package backends

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Pipeline is the interface that any pipeline must implement.
type Pipeline interface {
	Destroy() error                // Destroy the pipeline along with its sessions
	GetStats() []string            // Get the pipeline running stats
	Validate() error               // Validate the pipeline for correctness
	GetMetadata() PipelineMetadata // Return metadata information for the pipeline
}

// PipelineOption is an option for a pipeline type.
type PipelineOption[T Pipeline] func(eo T)

// PipelineConfig is a configuration for a pipeline type that can be used
// to create that pipeline.
type PipelineConfig[T Pipeline] struct {
	ModelPath string
	Name      string
	Options   []PipelineOption[T]
}

type PipelineMetadata struct {
	OutputsInfo []OutputInfo
}

type OutputInfo struct {
	Name       string
	Dimensions []int64
}

// Timings accumulates per-pipeline call counts and wall-clock time. Updated
// with atomics so that GetStats can be read while a call is in flight.
type Timings struct {
	NumCalls uint64
	TotalNS  uint64
}

func (t *Timings) Observe(start time.Time) {
	atomic.AddUint64(&t.NumCalls, 1)
	atomic.AddUint64(&t.TotalNS, uint64(time.Since(start)))
}

func (t *Timings) Stats(name string) []string {
	calls := atomic.LoadUint64(&t.NumCalls)
	total := atomic.LoadUint64(&t.TotalNS)
	return []string{
		fmt.Sprintf("Statistics for pipeline: %s", name),
		fmt.Sprintf("ONNX: Total time=%s, Execution count=%d, Average query time=%s",
			time.Duration(int64(total)),
			calls,
			time.Duration(float64(total)/math.Max(1, float64(calls)))),
	}
}
