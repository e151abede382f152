package optim

import (
	"fmt"
	"math"

	"github.com/convkit-ml/convkit/internal/tensor"
)

// AdaDelta default hyperparameters.
const (
	adaDeltaRho = 0.95
	adaDeltaEps = 1e-6
)

// AdaDelta implements the AdaDelta adaptive update rule, scaled by a
// learning rate.
//
// Update rule, element-wise:
//
//	g2 = rho * g2 + (1-rho) * g²
//	dx = -lr * sqrt((d2 + eps) / (g2 + eps)) * g
//	d2 = rho * d2 + (1-rho) * dx²
//	param += dx
//
// The two accumulators persist across steps and are part of the layer's
// device shadow when an accelerator is attached.
//
// Reference: "ADADELTA: An Adaptive Learning Rate Method" (Zeiler, 2012).
type AdaDelta struct {
	lr  float32
	rho float32
	eps float32

	gradSq  *tensor.RawTensor // running average of squared gradients
	deltaSq *tensor.RawTensor // running average of squared updates
}

// NewAdaDelta creates an AdaDelta optimizer for parameters of the given shape.
// Accumulators are allocated zeroed; call Init before the first Update.
func NewAdaDelta(shape tensor.Shape) *AdaDelta {
	gsq, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("adadelta: %v", err))
	}
	dsq, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("adadelta: %v", err))
	}
	return &AdaDelta{
		rho:     adaDeltaRho,
		eps:     adaDeltaEps,
		gradSq:  gsq,
		deltaSq: dsq,
	}
}

// Init sets the learning rate and clears both accumulators, so a re-initialized
// layer starts from identical optimizer state.
func (a *AdaDelta) Init(lr float32) {
	a.lr = lr
	a.gradSq.Zero()
	a.deltaSq.Zero()
}

// Update applies one AdaDelta step to param in place.
func (a *AdaDelta) Update(param, grad *tensor.RawTensor) error {
	if !param.Shape().Equal(a.gradSq.Shape()) {
		return fmt.Errorf("adadelta: param shape %v does not match state shape %v", param.Shape(), a.gradSq.Shape())
	}
	if !grad.Shape().Equal(param.Shape()) {
		return fmt.Errorf("adadelta: grad shape %v does not match param shape %v", grad.Shape(), param.Shape())
	}

	p := param.AsFloat32()
	g := grad.AsFloat32()
	g2 := a.gradSq.AsFloat32()
	d2 := a.deltaSq.AsFloat32()

	for i := range p {
		gi := g[i]
		g2[i] = a.rho*g2[i] + (1-a.rho)*gi*gi
		dx := -a.lr * float32(math.Sqrt(float64((d2[i]+a.eps)/(g2[i]+a.eps)))) * gi
		d2[i] = a.rho*d2[i] + (1-a.rho)*dx*dx
		p[i] += dx
	}
	return nil
}

// LR returns the configured learning rate.
func (a *AdaDelta) LR() float32 {
	return a.lr
}

// Rho returns the decay coefficient.
func (a *AdaDelta) Rho() float32 {
	return a.rho
}

// Eps returns the numerical-stability term.
func (a *AdaDelta) Eps() float32 {
	return a.eps
}

// GradSq exposes the squared-gradient accumulator for device mirroring.
func (a *AdaDelta) GradSq() *tensor.RawTensor {
	return a.gradSq
}

// DeltaSq exposes the squared-update accumulator for device mirroring.
func (a *AdaDelta) DeltaSq() *tensor.RawTensor {
	return a.deltaSq
}
