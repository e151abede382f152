// Package backend defines the capability interface implemented by every
// execution engine of the convolution layer: the serial baseline, the
// vectorized and goroutine-parallel CPU variants, and the WebGPU accelerator.
//
// All engines compute the same mathematical result; they differ only in how
// the iteration space is scheduled. Reduction order may differ, so engine
// outputs agree within floating-point tolerance, not bit-for-bit.
package backend

import (
	"fmt"

	"github.com/convkit-ml/convkit/internal/optim"
	"github.com/convkit-ml/convkit/internal/tensor"
)

// Geometry holds the shape parameters of one convolution layer:
// valid-mode cross-correlation, square kernel, unit stride, no padding.
// The output spatial size is fixed at (H-Kernel+1) x (W-Kernel+1).
type Geometry struct {
	MaxBatch int // capacity of the leading batch dimension
	InC      int // input channels
	H        int // input height
	W        int // input width
	Kernel   int // square kernel size
	OutC     int // output channels
}

// Validate checks the geometry invariants.
func (g Geometry) Validate() error {
	if g.MaxBatch <= 0 || g.InC <= 0 || g.H <= 0 || g.W <= 0 || g.Kernel <= 0 || g.OutC <= 0 {
		return fmt.Errorf("geometry: all dimensions must be positive: %+v", g)
	}
	if g.Kernel > g.H || g.Kernel > g.W {
		return fmt.Errorf("geometry: kernel %d exceeds input %dx%d", g.Kernel, g.H, g.W)
	}
	return nil
}

// OutH returns the valid-convolution output height.
func (g Geometry) OutH() int {
	return g.H - g.Kernel + 1
}

// OutW returns the valid-convolution output width.
func (g Geometry) OutW() int {
	return g.W - g.Kernel + 1
}

// InputShape returns [MaxBatch, InC, H, W].
func (g Geometry) InputShape() tensor.Shape {
	return tensor.Shape{g.MaxBatch, g.InC, g.H, g.W}
}

// OutputShape returns [MaxBatch, OutC, OutH, OutW].
func (g Geometry) OutputShape() tensor.Shape {
	return tensor.Shape{g.MaxBatch, g.OutC, g.OutH(), g.OutW()}
}

// WeightShape returns [OutC, InC, Kernel, Kernel].
func (g Geometry) WeightShape() tensor.Shape {
	return tensor.Shape{g.OutC, g.InC, g.Kernel, g.Kernel}
}

// BiasShape returns [OutC].
func (g Geometry) BiasShape() tensor.Shape {
	return tensor.Shape{g.OutC}
}

// Problem bundles the tensors of one forward/backward/update call.
// The layer owns every tensor here; engines only read and write them.
// Batch is the active batch size (<= Geom.MaxBatch) of this call.
type Problem struct {
	Geom  Geometry
	Batch int

	// Parameters.
	W *tensor.RawTensor // [OutC, InC, K, K]
	B *tensor.RawTensor // [OutC]

	// Forward: read X, write Y.
	X *tensor.RawTensor // [MaxBatch, InC, H, W]
	Y *tensor.RawTensor // [MaxBatch, OutC, OutH, OutW]

	// Backward: read X, W, GY; write GW, GB, GX.
	GY *tensor.RawTensor // same shape as Y
	GW *tensor.RawTensor // same shape as W
	GB *tensor.RawTensor // same shape as B
	GX *tensor.RawTensor // same shape as X

	// Update: optimizers applied to (W, GW) and (B, GB).
	OptW optim.Optimizer
	OptB optim.Optimizer
}

// Engine executes the three call classes of the layer. Every call blocks until
// all of its internal parallel work has completed; there is no cancellation.
type Engine interface {
	// Name identifies the engine in logs and errors.
	Name() string

	// Forward computes Y from X, W, B over the active batch.
	Forward(p *Problem) error

	// Backward computes GW, GB, GX from X, W, GY over the active batch.
	Backward(p *Problem) error

	// Update applies the optimizers to (W, GW) and (B, GB) in place.
	Update(p *Problem) error
}
