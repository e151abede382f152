// Package gradcheck validates the layer's analytic gradients against a
// finite-difference probe.
//
// Each trial perturbs the parameters along their own gradient: with loss
// L = sum of all outputs, the predicted change of a step alpha*g is
// alpha * <g, g>, which is compared against the measured central difference
// L(w + alpha/2*g) - L(w - alpha/2*g).
package gradcheck

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/convkit-ml/convkit/internal/backend/webgpu"
	"github.com/convkit-ml/convkit/internal/conv"
	"github.com/convkit-ml/convkit/internal/tensor"
)

// Options configures a gradient-check run.
type Options struct {
	// Config is the layer template; every trial builds fresh layers from
	// it. The geometry and algorithm selection are taken as-is.
	Config conv.Config

	// Device, when non-nil, is attached to every layer so gpu algorithms
	// resolve. Trials share the backend; each layer gets its own mirror.
	Device *webgpu.Backend

	// Batch is the active batch size per trial. Zero means the geometry's
	// full capacity.
	Batch int

	// Trials is the number of independent checks. Zero means one.
	Trials int

	// Alpha is the perturbation step. Zero means 1e-3.
	Alpha float64

	// Seed derives the per-trial RNG streams.
	Seed int64

	// Concurrency caps the trials in flight. Zero means GOMAXPROCS.
	Concurrency int
}

// Trial is the outcome of one finite-difference probe.
type Trial struct {
	Index    int
	Analytic float64 // alpha * <grad, grad>
	Numeric  float64 // measured loss difference
	RelErr   float64
}

// Report aggregates all trials of one run.
type Report struct {
	Trials    []Trial
	MaxRelErr float64
	AvgRelErr float64
}

// Run executes the configured trials concurrently and aggregates the result.
func Run(opts Options) (*Report, error) {
	if err := opts.Config.Geom.Validate(); err != nil {
		return nil, err
	}
	if opts.Batch <= 0 {
		opts.Batch = opts.Config.Geom.MaxBatch
	}
	if opts.Batch > opts.Config.Geom.MaxBatch {
		return nil, fmt.Errorf("gradcheck: batch %d exceeds capacity %d", opts.Batch, opts.Config.Geom.MaxBatch)
	}
	if opts.Trials <= 0 {
		opts.Trials = 1
	}
	if opts.Alpha == 0 {
		opts.Alpha = 1e-3
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	trials := make([]Trial, opts.Trials)
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i := range opts.Trials {
		g.Go(func() error {
			trial, err := runTrial(opts, i)
			if err != nil {
				return fmt.Errorf("gradcheck: trial %d: %w", i, err)
			}
			trials[i] = trial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Trials: trials}
	for _, tr := range trials {
		report.MaxRelErr = math.Max(report.MaxRelErr, tr.RelErr)
		report.AvgRelErr += tr.RelErr
	}
	report.AvgRelErr /= float64(len(trials))
	return report, nil
}

func runTrial(opts Options, index int) (Trial, error) {
	seed := opts.Seed + int64(index)

	// Two layers with identical parameters: ref keeps the gradient, probe
	// is perturbed for the two loss evaluations.
	ref, err := newLayer(opts, seed)
	if err != nil {
		return Trial{}, err
	}
	defer ref.DetachDevice()
	probe, err := newLayer(opts, seed)
	if err != nil {
		return Trial{}, err
	}
	defer probe.DetachDevice()

	geom := opts.Config.Geom
	x := tensor.Zeros[float32](geom.InputShape())
	tensor.FillUniform(x.Raw(), rand.New(rand.NewSource(seed^0x5eed)), -1, 1)
	x.SetBatch(opts.Batch)

	// Loss is the sum of all outputs, so the output gradient is all ones.
	gy := tensor.Zeros[float32](geom.OutputShape())
	for i := range gy.Data() {
		gy.Data()[i] = 1
	}
	gy.SetBatch(opts.Batch)

	pass, err := ref.Forward(x)
	if err != nil {
		return Trial{}, err
	}
	if _, err := ref.Backward(pass, gy); err != nil {
		return Trial{}, err
	}
	gg, err := ref.GradDotGrad(ref)
	if err != nil {
		return Trial{}, err
	}

	if err := probe.CopyGrad(ref); err != nil {
		return Trial{}, err
	}
	alpha := float32(opts.Alpha)
	probe.AddGrad(alpha / 2)
	lossPlus, err := loss(probe, x, opts.Batch)
	if err != nil {
		return Trial{}, err
	}
	probe.AddGrad(-alpha)
	lossMinus, err := loss(probe, x, opts.Batch)
	if err != nil {
		return Trial{}, err
	}

	analytic := opts.Alpha * gg
	numeric := lossPlus - lossMinus
	scale := math.Max(math.Abs(analytic), math.Abs(numeric))
	relErr := 0.0
	if scale > 0 {
		relErr = math.Abs(numeric-analytic) / scale
	}
	return Trial{Index: index, Analytic: analytic, Numeric: numeric, RelErr: relErr}, nil
}

func newLayer(opts Options, seed int64) (*conv.Layer, error) {
	l, err := conv.New(opts.Config)
	if err != nil {
		return nil, err
	}
	l.Init(rand.New(rand.NewSource(seed)))
	if opts.Device != nil {
		if err := l.AttachDevice(opts.Device); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// loss sums the layer output over the active batch in float64.
func loss(l *conv.Layer, x *tensor.Tensor[float32], batch int) (float64, error) {
	pass, err := l.Forward(x)
	if err != nil {
		return 0, err
	}
	geom := l.Geom()
	n := batch * geom.OutC * geom.OutH() * geom.OutW()
	var sum float64
	for _, v := range pass.Output().Data()[:n] {
		sum += float64(v)
	}
	return sum, nil
}
