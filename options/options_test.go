package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsHaveLibraryPath(t *testing.T) {
	opts := Defaults()
	assert.NotNil(t, opts.ORTOptions)
	assert.NotNil(t, opts.ORTOptions.LibraryPath)
	assert.NoError(t, opts.Destroy())
}

func TestORTOnlyOptionsRejectOtherBackends(t *testing.T) {
	opts := Defaults()
	opts.Backend = "GO"

	assert.Error(t, WithTelemetry()(opts))
	assert.Error(t, WithIntraOpNumThreads(4)(opts))
	assert.Error(t, WithInterOpNumThreads(4)(opts))
	assert.Error(t, WithCPUMemArena(true)(opts))
	assert.Error(t, WithMemPattern(true)(opts))
	assert.Error(t, WithCuda(nil)(opts))
	assert.Error(t, WithOnnxLibraryPath(t.TempDir())(opts))
}

func TestWithThreadOptions(t *testing.T) {
	opts := Defaults()
	opts.Backend = "ORT"

	assert.NoError(t, WithIntraOpNumThreads(2)(opts))
	assert.NoError(t, WithInterOpNumThreads(3)(opts))
	assert.Equal(t, 2, *opts.ORTOptions.IntraOpNumThreads)
	assert.Equal(t, 3, *opts.ORTOptions.InterOpNumThreads)
}

func TestWithOnnxLibraryPathRequiresLibrary(t *testing.T) {
	opts := Defaults()
	opts.Backend = "ORT"
	err := WithOnnxLibraryPath(t.TempDir())(opts)
	assert.Error(t, err)
}
