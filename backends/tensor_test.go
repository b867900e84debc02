package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFloat32TensorValidatesLength(t *testing.T) {
	tensor, err := NewFloat32Tensor(NewShape(2, 3), make([]float32, 6))
	assert.NoError(t, err)
	assert.True(t, tensor.IsFloat32())
	assert.False(t, tensor.IsInt64())

	_, err = NewFloat32Tensor(NewShape(2, 3), make([]float32, 5))
	assert.Error(t, err)
}

func TestNewInt64TensorValidatesLength(t *testing.T) {
	tensor, err := NewInt64Tensor(NewShape(1, 4), make([]int64, 4))
	assert.NoError(t, err)
	assert.True(t, tensor.IsInt64())

	_, err = NewInt64Tensor(NewShape(1, 4), make([]int64, 3))
	assert.Error(t, err)
}

func TestTensorDim(t *testing.T) {
	tensor, err := NewFloat32Tensor(NewShape(1, 3, 64, 48), make([]float32, 3*64*48))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), tensor.Dim(0))
	assert.Equal(t, int64(48), tensor.Dim(3))
	assert.Equal(t, int64(48), tensor.Dim(-1))
	assert.Equal(t, int64(64), tensor.Dim(-2))
}

func TestShapeNumElements(t *testing.T) {
	assert.Equal(t, int64(12), NewShape(2, 2, 3).NumElements())
	assert.Equal(t, int64(1), NewShape().NumElements())
	assert.Equal(t, int64(0), NewShape(0, 5).NumElements())
}

func TestShapeValuesInt(t *testing.T) {
	assert.Equal(t, []int{1, 3, 2}, NewShape(1, 3, 2).ValuesInt())
}

func TestSessionSetRunUninitialized(t *testing.T) {
	var set SessionSet
	_, err := set.Run("model", nil)
	assert.ErrorIs(t, err, ErrUninitialized)
}
