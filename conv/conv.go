// Copyright 2026 The Convkit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package conv provides the public API for the trainable 2-D convolution
// layer.
//
// Example:
//
//	layer, err := conv.New(conv.Config{
//		Geom: conv.Geometry{MaxBatch: 8, InC: 2, H: 16, W: 16, Kernel: 3, OutC: 3},
//		LR:   0.05,
//	})
//	layer.Init(rng)
//	pass, err := layer.Forward(x)
//	gx, err := layer.Backward(pass, gy)
//	err = layer.Update()
package conv

import (
	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/conv"
)

// Geometry holds the shape parameters of one layer.
type Geometry = backend.Geometry

// Config describes one layer, including its per-call-class engine selection.
type Config = conv.Config

// Layer is a trainable 2-D convolution layer.
type Layer = conv.Layer

// Pass is the single-use context linking one Forward to its Backward.
type Pass = conv.Pass

// Algo selects the execution engine for one call class.
type Algo = conv.Algo

// Engine selectors.
const (
	AlgoAuto              = conv.AlgoAuto
	AlgoCPUSerial         = conv.AlgoCPUSerial
	AlgoCPUVector         = conv.AlgoCPUVector
	AlgoCPUParallel       = conv.AlgoCPUParallel
	AlgoCPUParallelVector = conv.AlgoCPUParallelVector
	AlgoGPUBase           = conv.AlgoGPUBase
	AlgoGPUFast           = conv.AlgoGPUFast
)

// Sentinel errors.
var (
	ErrNoDevice  = conv.ErrNoDevice
	ErrNoForward = conv.ErrNoForward
	ErrShape     = conv.ErrShape
)

// New builds a layer for the configured geometry.
func New(cfg Config) (*Layer, error) {
	return conv.New(cfg)
}

// ParseAlgo maps an identifier to its Algo; unknown identifiers act as auto.
func ParseAlgo(s string) Algo {
	return conv.ParseAlgo(s)
}
