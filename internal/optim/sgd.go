package optim

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/convkit-ml/convkit/internal/tensor"
)

// SGD implements plain stochastic gradient descent: param -= lr * grad.
// Stateless apart from the learning rate; mostly useful for tests and as the
// simplest reference against which AdaDelta behavior is compared.
type SGD struct {
	lr float32
}

// NewSGD creates an SGD optimizer.
func NewSGD() *SGD {
	return &SGD{}
}

// Init sets the learning rate.
func (s *SGD) Init(lr float32) {
	s.lr = lr
}

// Update applies param -= lr * grad in place.
func (s *SGD) Update(param, grad *tensor.RawTensor) error {
	if !param.Shape().Equal(grad.Shape()) {
		return fmt.Errorf("sgd: grad shape %v does not match param shape %v", grad.Shape(), param.Shape())
	}
	n := param.NumElements()
	blas32.Axpy(-s.lr,
		blas32.Vector{N: n, Inc: 1, Data: grad.AsFloat32()},
		blas32.Vector{N: n, Inc: 1, Data: param.AsFloat32()})
	return nil
}

// LR returns the configured learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}
