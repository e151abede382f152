package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents the compute device a tensor's canonical copy lives on.
// Host memory is always canonical; WebGPU tensors are mirrored, not moved.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level tensor representation: a flat row-major buffer
// plus shape metadata. The first dimension doubles as a capacity; the active
// leading size (batch) may be smaller, set per call via SetBatch.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
	batch  int // active size of dimension 0, <= shape[0]
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized. The active batch starts at the
// full first dimension.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()

	batch := 1
	if len(shape) > 0 {
		batch = shape[0]
	}

	return &RawTensor{
		data:   make([]byte, byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
		batch:  batch,
	}, nil
}

// Shape returns the tensor's shape (full capacity, not the active batch).
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Batch returns the active size of the first dimension.
func (r *RawTensor) Batch() int {
	return r.batch
}

// SetBatch records the active size of the first dimension.
// Panics if n exceeds the allocated first dimension.
func (r *RawTensor) SetBatch(n int) {
	if len(r.shape) == 0 || n < 0 || n > r.shape[0] {
		panic(fmt.Sprintf("tensor: batch %d out of range for shape %v", n, r.shape))
	}
	r.batch = n
}

// Offset computes the flat index of a multi-index.
func (r *RawTensor) Offset(idx ...int) int {
	if len(idx) != len(r.shape) {
		panic(fmt.Sprintf("tensor: %d indices for %dD tensor", len(idx), len(r.shape)))
	}
	off := 0
	for d, i := range idx {
		if i < 0 || i >= r.shape[d] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d (size %d)", i, d, r.shape[d]))
		}
		off += i * r.stride[d]
	}
	return off
}

// Data returns the raw byte slice.
// WARNING: direct access to underlying memory.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// CopyFrom copies the contents and active batch of src into r.
// The shapes and dtypes must match exactly.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if !r.shape.Equal(src.shape) {
		return fmt.Errorf("tensor: copy shape mismatch: %v vs %v", r.shape, src.shape)
	}
	if r.dtype != src.dtype {
		return fmt.Errorf("tensor: copy dtype mismatch: %s vs %s", r.dtype, src.dtype)
	}
	copy(r.data, src.data)
	r.batch = src.batch
	return nil
}

// Zero resets every element to zero, keeping shape and batch.
func (r *RawTensor) Zero() {
	clear(r.data)
}
