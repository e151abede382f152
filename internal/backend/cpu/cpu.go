// Package cpu implements the host execution engines for the convolution
// layer: a serial baseline, a vectorized variant with pre-sliced and unrolled
// inner loops, a goroutine-parallel variant, and the combination of both.
//
// The serial baseline is the numerical reference; every other engine (here and
// in the webgpu package) must match it within floating-point tolerance.
package cpu

import (
	"fmt"

	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/parallel"
)

// Serial is the baseline engine: plain nested loops, one element at a time.
type Serial struct{}

// NewSerial creates the serial baseline engine.
func NewSerial() *Serial {
	return &Serial{}
}

// Name returns the engine name.
func (e *Serial) Name() string { return "cpu-serial" }

// Update applies the optimizers on the host.
func (e *Serial) Update(p *backend.Problem) error { return hostUpdate(p) }

// Vector uses pre-sliced planes and kernel-loop unrolling so the compiler can
// eliminate bounds checks and vectorize the innermost accumulation.
type Vector struct{}

// NewVector creates the vectorized engine.
func NewVector() *Vector {
	return &Vector{}
}

// Name returns the engine name.
func (e *Vector) Name() string { return "cpu-vector" }

// Update applies the optimizers on the host.
func (e *Vector) Update(p *backend.Problem) error { return hostUpdate(p) }

// Parallel partitions independent output elements across worker goroutines.
// Each worker writes a disjoint slice of the output, so no locking is needed;
// every call returns only after all workers finish.
type Parallel struct {
	cfg parallel.Config
}

// NewParallel creates the goroutine-parallel engine.
func NewParallel(cfg parallel.Config) *Parallel {
	return &Parallel{cfg: cfg}
}

// Name returns the engine name.
func (e *Parallel) Name() string { return "cpu-parallel" }

// Update applies the optimizers on the host.
func (e *Parallel) Update(p *backend.Problem) error { return hostUpdate(p) }

// ParallelVector combines the goroutine fan-out of Parallel with the unrolled
// inner kernels of Vector.
type ParallelVector struct {
	cfg parallel.Config
}

// NewParallelVector creates the combined engine.
func NewParallelVector(cfg parallel.Config) *ParallelVector {
	return &ParallelVector{cfg: cfg}
}

// Name returns the engine name.
func (e *ParallelVector) Name() string { return "cpu-parallel-vector" }

// Update applies the optimizers on the host.
func (e *ParallelVector) Update(p *backend.Problem) error { return hostUpdate(p) }

func hostUpdate(p *backend.Problem) error {
	if p.OptW == nil || p.OptB == nil {
		return fmt.Errorf("cpu: update called before optimizers were initialized")
	}
	if err := p.OptW.Update(p.W, p.GW); err != nil {
		return fmt.Errorf("cpu: weight update: %w", err)
	}
	if err := p.OptB.Update(p.B, p.GB); err != nil {
		return fmt.Errorf("cpu: bias update: %w", err)
	}
	return nil
}
