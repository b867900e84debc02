package safeconv

import "math"

// IntSliceToInt64Slice converts tokenizer ids from int to int64.
func IntSliceToInt64Slice(input []int) []int64 {
	out := make([]int64, len(input))
	for i, v := range input {
		out[i] = int64(v)
	}
	return out
}

// Int64SliceToIntSlice converts a slice of int64 to int with clamping to avoid overflow.
func Int64SliceToIntSlice(input []int64) []int {
	out := make([]int, len(input))
	for i, v := range input {
		if v > math.MaxInt {
			out[i] = math.MaxInt
		} else if v < math.MinInt {
			out[i] = math.MinInt
		} else {
			out[i] = int(v)
		}
	}
	return out
}

// Uint32SliceToInt64Slice converts tokenizer ids from uint32 to int64.
func Uint32SliceToInt64Slice(input []uint32) []int64 {
	out := make([]int64, len(input))
	for i, v := range input {
		out[i] = int64(v)
	}
	return out
}

// Int64SliceToUint32Slice converts a slice of int64 to uint32 with clamping to avoid overflow/underflow.
func Int64SliceToUint32Slice(input []int64) []uint32 {
	out := make([]uint32, len(input))
	for i, v := range input {
		if v < 0 {
			out[i] = 0
		} else if v > math.MaxUint32 {
			out[i] = math.MaxUint32
		} else {
			out[i] = uint32(v)
		}
	}
	return out
}
