// Copyright 2026 The Convkit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the dense tensors consumed by
// the convolution layer: a typed generic view over a flat raw buffer with an
// active-batch dimension.
package tensor

import (
	"math/rand"

	"github.com/convkit-ml/convkit/internal/tensor"
)

// DType is the element-type constraint of the generic tensor.
type DType = tensor.DType

// DataType identifies the runtime element type of a RawTensor.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Device identifies where a tensor's canonical bytes live.
type Device = tensor.Device

// Supported devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// Shape is the dimension list of a tensor, outermost first.
type Shape = tensor.Shape

// RawTensor is the untyped flat buffer plus shape, strides and active batch.
type RawTensor = tensor.RawTensor

// Tensor is a typed view over a RawTensor.
type Tensor[T DType] = tensor.Tensor[T]

// NewRaw allocates a zeroed RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// New wraps a RawTensor in a typed view.
func New[T DType](raw *RawTensor) *Tensor[T] {
	return tensor.New[T](raw)
}

// Zeros allocates a zeroed typed tensor.
func Zeros[T DType](shape Shape) *Tensor[T] {
	return tensor.Zeros[T](shape)
}

// FromSlice builds a typed tensor from a flat row-major slice.
func FromSlice[T DType](data []T, shape Shape) (*Tensor[T], error) {
	return tensor.FromSlice(data, shape)
}

// FillUniform fills a float32 RawTensor uniformly from [lo, hi).
func FillUniform(r *RawTensor, rng *rand.Rand, lo, hi float32) {
	tensor.FillUniform(r, rng, lo, hi)
}
