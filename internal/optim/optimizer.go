// Package optim implements the per-parameter update rules used by the
// convolution layer.
//
// Each optimizer is bound to a single parameter tensor shape at construction,
// initialized once with a learning rate, then repeatedly applied to a
// (parameter, gradient) pair in place:
//
//	opt := optim.NewAdaDelta(tensor.Shape{outC, inC, k, k})
//	opt.Init(0.05)
//	...
//	opt.Update(w, gw)
package optim

import "github.com/convkit-ml/convkit/internal/tensor"

// Optimizer is the contract the convolution layer consumes: an adaptive
// in-place update of one parameter tensor from its gradient.
type Optimizer interface {
	// Init sets the learning rate and resets any accumulated state.
	Init(lr float32)

	// Update applies one optimization step: param is mutated in place from
	// grad. The tensors must match the shape the optimizer was built for.
	Update(param, grad *tensor.RawTensor) error

	// LR returns the configured learning rate.
	LR() float32
}
