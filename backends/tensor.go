package backends

import "fmt"

type Shape []int64

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int64(s))
}

// NewShape returns a Shape with the given dimensions.
func NewShape(dimensions ...int64) Shape {
	return dimensions
}

func (s Shape) ValuesInt() []int {
	values := make([]int, len(s))
	for i, v := range s {
		values[i] = int(v)
	}
	return values
}

// NumElements returns the product of all dimensions.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, v := range s {
		n *= v
	}
	return n
}

// Tensor is an n-dimensional numeric buffer with an explicit shape. Exactly one
// of Float32s and Int64s is set; its length always equals the product of the
// dimensions (enforced by the constructors).
//
// Tensors returned from SessionSet.Run are fresh buffers exclusively owned by
// the caller and never alias the tensors that were passed in.
type Tensor struct {
	Shape    Shape
	Float32s []float32
	Int64s   []int64
}

// NewFloat32Tensor creates a float32 tensor, checking that the buffer length
// matches the shape.
func NewFloat32Tensor(shape Shape, data []float32) (*Tensor, error) {
	if int64(len(data)) != shape.NumElements() {
		return nil, fmt.Errorf("tensor buffer has %d elements but shape %s implies %d", len(data), shape, shape.NumElements())
	}
	return &Tensor{Shape: shape, Float32s: data}, nil
}

// NewInt64Tensor creates an int64 tensor, checking that the buffer length
// matches the shape.
func NewInt64Tensor(shape Shape, data []int64) (*Tensor, error) {
	if int64(len(data)) != shape.NumElements() {
		return nil, fmt.Errorf("tensor buffer has %d elements but shape %s implies %d", len(data), shape, shape.NumElements())
	}
	return &Tensor{Shape: shape, Int64s: data}, nil
}

// Dim returns the size of dimension i, supporting negative indices from the end.
func (t *Tensor) Dim(i int) int64 {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

func (t *Tensor) IsFloat32() bool {
	return t.Float32s != nil
}

func (t *Tensor) IsInt64() bool {
	return t.Int64s != nil
}

type InputOutputInfo struct {
	// The name of the input or output.
	Name string
	// The input or output's dimensions, -1 for dynamic axes.
	Dimensions Shape
}
