// Copyright 2026 The Convkit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the public API for the WebGPU accelerator backend.
package webgpu

import (
	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/backend/webgpu"
)

// Backend owns the WebGPU device and the compiled kernel caches.
type Backend = webgpu.Backend

// Engine executes the convolution calls of one layer on the device.
type Engine = webgpu.Engine

// Tuning sizes the workgroups of the fast engine's kernels.
type Tuning = webgpu.Tuning

// New creates a WebGPU backend, or an error when no device is available.
func New() (*Backend, error) {
	return webgpu.New()
}

// NewEngine builds a device engine for one layer geometry.
func NewEngine(be *Backend, geom backend.Geometry, tune Tuning, fast bool) (*Engine, error) {
	return webgpu.NewEngine(be, geom, tune, fast)
}

// DefaultTuning returns the benchmark-derived kernel sizing.
func DefaultTuning() Tuning {
	return webgpu.DefaultTuning()
}
