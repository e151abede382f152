package tensor

import "fmt"

// Tensor is a generic typed view over a RawTensor.
//
// Example:
//
//	t := tensor.Zeros[float32](tensor.Shape{2, 3})
//	t.Set(1.5, 0, 2)
//	v := t.At(0, 2)
type Tensor[T DType] struct {
	raw *RawTensor
}

// New creates a Tensor from a RawTensor.
// Panics if the element type does not match the raw dtype.
func New[T DType](raw *RawTensor) *Tensor[T] {
	var dummy T
	if inferDataType(any(dummy)) != raw.DType() {
		panic(fmt.Sprintf("tensor: element type mismatch: raw is %s", raw.DType()))
	}
	return &Tensor[T]{raw: raw}
}

// Zeros creates a zero-filled tensor on the host.
func Zeros[T DType](shape Shape) *Tensor[T] {
	var dummy T
	raw, err := NewRaw(shape, inferDataType(any(dummy)), CPU)
	if err != nil {
		panic(err)
	}
	return &Tensor[T]{raw: raw}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T DType](data []T, shape Shape) (*Tensor[T], error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t := Zeros[T](shape)
	copy(t.Data(), data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor[T]) Shape() Shape {
	return t.raw.Shape()
}

// Raw returns the underlying RawTensor.
// Used by engine implementations for low-level operations.
func (t *Tensor[T]) Raw() *RawTensor {
	return t.raw
}

// Data returns the elements as a typed slice sharing the tensor's memory.
func (t *Tensor[T]) Data() []T {
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return any(t.raw.AsFloat32()).([]T)
	case float64:
		return any(t.raw.AsFloat64()).([]T)
	default:
		panic("unsupported element type")
	}
}

// At returns the element at a multi-index.
func (t *Tensor[T]) At(idx ...int) T {
	return t.Data()[t.raw.Offset(idx...)]
}

// Set writes the element at a multi-index.
func (t *Tensor[T]) Set(v T, idx ...int) {
	t.Data()[t.raw.Offset(idx...)] = v
}

// Batch returns the active size of the first dimension.
func (t *Tensor[T]) Batch() int {
	return t.raw.Batch()
}

// SetBatch records the active size of the first dimension.
func (t *Tensor[T]) SetBatch(n int) {
	t.raw.SetBatch(n)
}
