// Package conv implements a trainable 2-D convolution layer: valid-mode
// cross-correlation forward, the three gradients backward, and an in-place
// parameter update, each independently dispatchable to a serial, vectorized,
// goroutine-parallel or WebGPU engine.
package conv

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/backend/cpu"
	"github.com/convkit-ml/convkit/internal/backend/webgpu"
	"github.com/convkit-ml/convkit/internal/optim"
	"github.com/convkit-ml/convkit/internal/parallel"
	"github.com/convkit-ml/convkit/internal/tensor"
)

// Config describes one layer. The three Algo fields pick the engine per call
// class; AlgoAuto follows PreferGPU. The zero values of Parallel and Tuning
// mean "use the defaults".
type Config struct {
	Geom backend.Geometry
	LR   float32

	Forward   Algo
	Backward  Algo
	Update    Algo
	PreferGPU bool

	// Parallel sizes the worker fan-out of the cpu-parallel tiers.
	Parallel parallel.Config

	// Tuning sizes the gpu-fast kernels.
	Tuning webgpu.Tuning

	// Optim builds the per-parameter optimizers. Nil means AdaDelta.
	Optim func(shape tensor.Shape) optim.Optimizer

	// Logger receives per-call timing at debug level. Nil discards.
	Logger *slog.Logger
}

// Layer is a trainable 2-D convolution layer. It owns its parameters,
// gradients and output; Forward/Backward/Update hand those to the selected
// engine. A Layer is not safe for concurrent use.
type Layer struct {
	cfg  Config
	geom backend.Geometry
	log  *slog.Logger

	w, b   *tensor.RawTensor
	gw, gb *tensor.RawTensor
	y, gx  *tensor.RawTensor

	optW, optB optim.Optimizer

	serial  *cpu.Serial
	vector  *cpu.Vector
	par     *cpu.Parallel
	parVec  *cpu.ParallelVector
	gpuBase *webgpu.Engine
	gpuFast *webgpu.Engine
}

// New builds a layer for the configured geometry. Parameters and gradients
// are allocated zeroed; call Init before training.
func New(cfg Config) (*Layer, error) {
	if err := cfg.Geom.Validate(); err != nil {
		return nil, err
	}
	if cfg.Parallel == (parallel.Config{}) {
		cfg.Parallel = parallel.DefaultConfig()
	}
	if cfg.Tuning == (webgpu.Tuning{}) {
		cfg.Tuning = webgpu.DefaultTuning()
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Optim == nil {
		cfg.Optim = func(shape tensor.Shape) optim.Optimizer {
			return optim.NewAdaDelta(shape)
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	g := cfg.Geom
	alloc := func(s tensor.Shape) *tensor.RawTensor {
		r, err := tensor.NewRaw(s, tensor.Float32, tensor.CPU)
		if err != nil {
			panic(fmt.Sprintf("conv: %v", err))
		}
		return r
	}

	l := &Layer{
		cfg:    cfg,
		geom:   g,
		log:    log,
		w:      alloc(g.WeightShape()),
		b:      alloc(g.BiasShape()),
		gw:     alloc(g.WeightShape()),
		gb:     alloc(g.BiasShape()),
		y:      alloc(g.OutputShape()),
		gx:     alloc(g.InputShape()),
		optW:   cfg.Optim(g.WeightShape()),
		optB:   cfg.Optim(g.BiasShape()),
		serial: cpu.NewSerial(),
		vector: cpu.NewVector(),
		par:    cpu.NewParallel(cfg.Parallel),
		parVec: cpu.NewParallelVector(cfg.Parallel),
	}
	return l, nil
}

// Geom returns the layer geometry.
func (l *Layer) Geom() backend.Geometry {
	return l.geom
}

// Weights returns the weight tensor [OutC, InC, K, K]. Owned by the layer.
func (l *Layer) Weights() *tensor.Tensor[float32] {
	return tensor.New[float32](l.w)
}

// Biases returns the bias tensor [OutC]. Owned by the layer.
func (l *Layer) Biases() *tensor.Tensor[float32] {
	return tensor.New[float32](l.b)
}

// Init fills w and b uniformly from [-1/sqrt(IC*K*K), +1/sqrt(IC*K*K)] and
// resets both optimizers to the configured learning rate. Two layers
// initialized from equal RNG states are identical.
func (l *Layer) Init(rng *rand.Rand) {
	bound := float32(1.0 / math.Sqrt(float64(l.geom.InC*l.geom.Kernel*l.geom.Kernel)))
	tensor.FillUniform(l.w, rng, -bound, bound)
	tensor.FillUniform(l.b, rng, -bound, bound)
	l.optW.Init(l.cfg.LR)
	l.optB.Init(l.cfg.LR)
}

// AttachDevice builds the layer's device mirror and the two GPU engines on
// the given backend. Host tensors stay canonical; every accelerated call
// uploads what it reads and reads back what it writes.
func (l *Layer) AttachDevice(gpu *webgpu.Backend) error {
	if gpu == nil {
		return fmt.Errorf("%w: nil backend", ErrNoDevice)
	}
	l.DetachDevice()
	base, err := webgpu.NewEngine(gpu, l.geom, l.cfg.Tuning, false)
	if err != nil {
		return err
	}
	fast, err := webgpu.NewEngine(gpu, l.geom, l.cfg.Tuning, true)
	if err != nil {
		base.Close()
		return err
	}
	l.gpuBase = base
	l.gpuFast = fast
	return nil
}

// DetachDevice releases the device mirror. Subsequent gpu-algo calls return
// ErrNoDevice.
func (l *Layer) DetachDevice() {
	if l.gpuBase != nil {
		l.gpuBase.Close()
		l.gpuBase = nil
	}
	if l.gpuFast != nil {
		l.gpuFast.Close()
		l.gpuFast = nil
	}
}

// engineFor resolves one call class to a concrete engine.
func (l *Layer) engineFor(a Algo) (backend.Engine, error) {
	switch a.resolve(l.cfg.PreferGPU) {
	case AlgoCPUSerial:
		return l.serial, nil
	case AlgoCPUVector:
		return l.vector, nil
	case AlgoCPUParallel:
		return l.par, nil
	case AlgoCPUParallelVector:
		return l.parVec, nil
	case AlgoGPUBase:
		if l.gpuBase == nil {
			return nil, fmt.Errorf("%w: algo %s", ErrNoDevice, AlgoGPUBase)
		}
		return l.gpuBase, nil
	default:
		if l.gpuFast == nil {
			return nil, fmt.Errorf("%w: algo %s", ErrNoDevice, AlgoGPUFast)
		}
		return l.gpuFast, nil
	}
}

// problem bundles the layer tensors for one engine call.
func (l *Layer) problem(batch int, x *tensor.RawTensor, gy *tensor.RawTensor) *backend.Problem {
	return &backend.Problem{
		Geom:  l.geom,
		Batch: batch,
		W:     l.w,
		B:     l.b,
		X:     x,
		Y:     l.y,
		GY:    gy,
		GW:    l.gw,
		GB:    l.gb,
		GX:    l.gx,
		OptW:  l.optW,
		OptB:  l.optB,
	}
}

// Forward computes the layer output for x and returns the pass context that
// Backward consumes. x must have the geometry's input shape; its batch field
// sets the active batch size, which is propagated to the output.
func (l *Layer) Forward(x *tensor.Tensor[float32]) (*Pass, error) {
	if !x.Shape().Equal(l.geom.InputShape()) {
		return nil, fmt.Errorf("%w: input %v, want %v", ErrShape, x.Shape(), l.geom.InputShape())
	}
	batch := x.Batch()

	eng, err := l.engineFor(l.cfg.Forward)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := eng.Forward(l.problem(batch, x.Raw(), nil)); err != nil {
		return nil, err
	}
	l.y.SetBatch(batch)
	l.log.Debug("forward", "engine", eng.Name(), "batch", batch, "dur", time.Since(start))

	return &Pass{
		layer: l,
		x:     x,
		y:     tensor.New[float32](l.y),
		batch: batch,
	}, nil
}

// Backward computes the weight, bias and input gradients from the pass and
// the output gradient gy, consuming the pass. The returned input gradient is
// owned by the layer and overwritten by its next Backward.
func (l *Layer) Backward(pass *Pass, gy *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	if pass == nil || pass.consumed || pass.layer != l {
		return nil, ErrNoForward
	}
	if !gy.Shape().Equal(l.geom.OutputShape()) {
		return nil, fmt.Errorf("%w: output gradient %v, want %v", ErrShape, gy.Shape(), l.geom.OutputShape())
	}
	if gy.Batch() != pass.batch {
		return nil, fmt.Errorf("%w: output gradient batch %d, forward ran with %d", ErrShape, gy.Batch(), pass.batch)
	}

	eng, err := l.engineFor(l.cfg.Backward)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := eng.Backward(l.problem(pass.batch, pass.x.Raw(), gy.Raw())); err != nil {
		return nil, err
	}
	pass.consumed = true
	l.gx.SetBatch(pass.batch)
	l.log.Debug("backward", "engine", eng.Name(), "batch", pass.batch, "dur", time.Since(start))

	return tensor.New[float32](l.gx), nil
}

// Update applies one optimizer step to the weights and biases from the
// gradients of the last Backward.
func (l *Layer) Update() error {
	eng, err := l.engineFor(l.cfg.Update)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := eng.Update(l.problem(0, nil, nil)); err != nil {
		return err
	}
	l.log.Debug("update", "engine", eng.Name(), "dur", time.Since(start))
	return nil
}

// RandGrad fills both parameter gradients uniformly from [lo, hi).
func (l *Layer) RandGrad(rng *rand.Rand, lo, hi float32) {
	tensor.FillUniform(l.gw, rng, lo, hi)
	tensor.FillUniform(l.gb, rng, lo, hi)
}

// CopyGrad copies the other layer's parameter gradients into this layer.
func (l *Layer) CopyGrad(other *Layer) error {
	if !l.geom.WeightShape().Equal(other.geom.WeightShape()) || !l.geom.BiasShape().Equal(other.geom.BiasShape()) {
		return fmt.Errorf("%w: layer geometries differ", ErrShape)
	}
	if err := l.gw.CopyFrom(other.gw); err != nil {
		return err
	}
	return l.gb.CopyFrom(other.gb)
}

// AddGrad perturbs the parameters along their gradients:
// w += alpha*gw, b += alpha*gb.
func (l *Layer) AddGrad(alpha float32) {
	// Shapes match by construction.
	_ = tensor.AddScaled(l.w, alpha, l.gw)
	_ = tensor.AddScaled(l.b, alpha, l.gb)
}

// GradDotGrad returns the inner product of the two layers' parameter
// gradients, accumulated in float64.
func (l *Layer) GradDotGrad(other *Layer) (float64, error) {
	dw, err := tensor.Dot(l.gw, other.gw)
	if err != nil {
		return 0, err
	}
	db, err := tensor.Dot(l.gb, other.gb)
	if err != nil {
		return 0, err
	}
	return dw + db, nil
}
