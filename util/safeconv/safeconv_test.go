package safeconv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint32SliceToInt64Slice(t *testing.T) {
	assert.Equal(t, []int64{0, 1, math.MaxUint32}, Uint32SliceToInt64Slice([]uint32{0, 1, math.MaxUint32}))
}

func TestInt64SliceToUint32SliceClamps(t *testing.T) {
	got := Int64SliceToUint32Slice([]int64{-5, 0, 42, math.MaxUint32 + 1})
	assert.Equal(t, []uint32{0, 0, 42, math.MaxUint32}, got)
}

func TestIntSliceRoundTrip(t *testing.T) {
	values := []int{0, 1, -7, 1 << 30}
	assert.Equal(t, values, Int64SliceToIntSlice(IntSliceToInt64Slice(values)))
}
