// Copyright 2026 The Convkit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the public API for the parameter optimizers used by
// the convolution layer.
package optim

import (
	"github.com/convkit-ml/convkit/internal/optim"
	"github.com/convkit-ml/convkit/internal/tensor"
)

// Optimizer is the in-place parameter update contract the layer consumes.
type Optimizer = optim.Optimizer

// AdaDelta is the adaptive update rule of the training harness.
type AdaDelta = optim.AdaDelta

// SGD is plain stochastic gradient descent.
type SGD = optim.SGD

// NewAdaDelta creates an AdaDelta optimizer for parameters of the given shape.
func NewAdaDelta(shape tensor.Shape) *AdaDelta {
	return optim.NewAdaDelta(shape)
}

// NewSGD creates an SGD optimizer.
func NewSGD() *SGD {
	return optim.NewSGD()
}
