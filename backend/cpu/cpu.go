// Copyright 2026 The Convkit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the public API for the CPU convolution engines.
package cpu

import (
	"github.com/convkit-ml/convkit/internal/backend/cpu"
	"github.com/convkit-ml/convkit/internal/parallel"
)

// Config sizes the worker fan-out of the parallel engines.
type Config = parallel.Config

// DefaultConfig returns the default fan-out sizing.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// Serial is the plain-loop reference engine.
type Serial = cpu.Serial

// Vector is the unrolled single-goroutine engine.
type Vector = cpu.Vector

// Parallel fans the plain loops out over a worker pool.
type Parallel = cpu.Parallel

// ParallelVector fans the unrolled kernels out over a worker pool.
type ParallelVector = cpu.ParallelVector

// NewSerial creates the reference engine.
func NewSerial() *Serial {
	return cpu.NewSerial()
}

// NewVector creates the vectorized engine.
func NewVector() *Vector {
	return cpu.NewVector()
}

// NewParallel creates the parallel engine with the given fan-out.
func NewParallel(cfg Config) *Parallel {
	return cpu.NewParallel(cfg)
}

// NewParallelVector creates the parallel vectorized engine.
func NewParallelVector(cfg Config) *ParallelVector {
	return cpu.NewParallelVector(cfg)
}
