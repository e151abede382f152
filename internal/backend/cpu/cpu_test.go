package cpu

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/optim"
	"github.com/convkit-ml/convkit/internal/parallel"
	"github.com/convkit-ml/convkit/internal/tensor"
)

const relTol = 1e-5

func zeros(t *testing.T, s tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(s, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	return r
}

func randomProblem(t *testing.T, g backend.Geometry, batch int, seed int64) *backend.Problem {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	filled := func(s tensor.Shape) *tensor.RawTensor {
		r := zeros(t, s)
		tensor.FillUniform(r, rng, -1, 1)
		return r
	}
	return &backend.Problem{
		Geom:  g,
		Batch: batch,
		W:     filled(g.WeightShape()),
		B:     filled(g.BiasShape()),
		X:     filled(g.InputShape()),
		Y:     zeros(t, g.OutputShape()),
		GY:    filled(g.OutputShape()),
		GW:    zeros(t, g.WeightShape()),
		GB:    zeros(t, g.BiasShape()),
		GX:    zeros(t, g.InputShape()),
	}
}

func assertClose(t *testing.T, name string, want, got *tensor.RawTensor) {
	t.Helper()
	wd := want.AsFloat32()
	gd := got.AsFloat32()
	require.Len(t, gd, len(wd))
	for i := range wd {
		diff := math.Abs(float64(wd[i] - gd[i]))
		scale := math.Max(1, math.Abs(float64(wd[i])))
		if diff/scale > relTol {
			t.Fatalf("%s[%d]: want %g, got %g (rel err %g)", name, i, wd[i], gd[i], diff/scale)
		}
	}
}

func engines() map[string]backend.Engine {
	cfg := parallel.DefaultConfig()
	// Force fan-out even on tiny iteration spaces.
	cfg.MinChunkSize = 1
	return map[string]backend.Engine{
		"cpu-vector":          NewVector(),
		"cpu-parallel":        NewParallel(cfg),
		"cpu-parallel-vector": NewParallelVector(cfg),
	}
}

func TestEngines_MatchSerialBaseline(t *testing.T) {
	geometries := []struct {
		g     backend.Geometry
		batch int
	}{
		{backend.Geometry{MaxBatch: 2, InC: 2, H: 16, W: 16, Kernel: 3, OutC: 3}, 2},
		{backend.Geometry{MaxBatch: 1, InC: 1, H: 3, W: 3, Kernel: 2, OutC: 1}, 1},
		{backend.Geometry{MaxBatch: 3, InC: 3, H: 7, W: 5, Kernel: 4, OutC: 2}, 2},
		// Kernel == H == W: a single valid output pixel per channel.
		{backend.Geometry{MaxBatch: 1, InC: 2, H: 4, W: 4, Kernel: 4, OutC: 3}, 1},
		// Batch smaller than capacity.
		{backend.Geometry{MaxBatch: 4, InC: 1, H: 8, W: 8, Kernel: 5, OutC: 2}, 2},
	}

	serial := NewSerial()
	for gi, tc := range geometries {
		t.Run(fmt.Sprintf("geom%d", gi), func(t *testing.T) {
			ref := randomProblem(t, tc.g, tc.batch, int64(100+gi))
			require.NoError(t, serial.Forward(ref))
			require.NoError(t, serial.Backward(ref))

			for name, eng := range engines() {
				t.Run(name, func(t *testing.T) {
					p := randomProblem(t, tc.g, tc.batch, int64(100+gi))
					require.NoError(t, eng.Forward(p))
					require.NoError(t, eng.Backward(p))

					assertClose(t, "y", ref.Y, p.Y)
					assertClose(t, "gw", ref.GW, p.GW)
					assertClose(t, "gb", ref.GB, p.GB)
					assertClose(t, "gx", ref.GX, p.GX)
				})
			}
		})
	}
}

// TestSerial_KnownForward checks the fixed 3x3 input / 2x2 all-ones kernel
// scenario against hand-computed values.
func TestSerial_KnownForward(t *testing.T) {
	g := backend.Geometry{MaxBatch: 1, InC: 1, H: 3, W: 3, Kernel: 2, OutC: 1}
	p := randomProblem(t, g, 1, 1)

	for i := range p.W.AsFloat32() {
		p.W.AsFloat32()[i] = 1
	}
	p.B.AsFloat32()[0] = 0
	x := p.X.AsFloat32()
	for i := 0; i < 9; i++ {
		x[i] = float32(i + 1)
	}

	require.NoError(t, NewSerial().Forward(p))
	assert.InDeltaSlice(t, []float32{12, 16, 24, 28}, p.Y.AsFloat32(), 1e-6)
}

// TestSerial_KnownBackward checks the gradients for the same scenario with an
// all-ones upstream gradient.
func TestSerial_KnownBackward(t *testing.T) {
	g := backend.Geometry{MaxBatch: 1, InC: 1, H: 3, W: 3, Kernel: 2, OutC: 1}
	p := randomProblem(t, g, 1, 1)

	for i := range p.W.AsFloat32() {
		p.W.AsFloat32()[i] = 1
	}
	x := p.X.AsFloat32()
	for i := 0; i < 9; i++ {
		x[i] = float32(i + 1)
	}
	gy := p.GY.AsFloat32()
	for i := range gy {
		gy[i] = 1
	}

	require.NoError(t, NewSerial().Backward(p))

	assert.InDelta(t, 4, p.GB.AsFloat32()[0], 1e-6)
	assert.InDeltaSlice(t, []float32{12, 16, 24, 28}, p.GW.AsFloat32(), 1e-6)
	// With all-ones w and gy, gx[i][j] counts the valid kernel placements
	// covering (i,j): corners 1, edges 2, center 4.
	assert.InDeltaSlice(t, []float32{1, 2, 1, 2, 4, 2, 1, 2, 1}, p.GX.AsFloat32(), 1e-6)
}

// TestBackward_SinglePixelOutput covers K == H == W: one output location, and
// every gx element reachable through exactly one kernel offset.
func TestBackward_SinglePixelOutput(t *testing.T) {
	g := backend.Geometry{MaxBatch: 1, InC: 1, H: 2, W: 2, Kernel: 2, OutC: 1}
	p := randomProblem(t, g, 1, 7)

	gy := p.GY.AsFloat32()
	gy[0] = 2

	require.NoError(t, NewSerial().Backward(p))

	// gw equals gy[0] * x, gb equals gy[0], gx equals gy[0] * w.
	x := p.X.AsFloat32()
	w := p.W.AsFloat32()
	assert.InDelta(t, 2, p.GB.AsFloat32()[0], 1e-6)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 2*x[i], p.GW.AsFloat32()[i], 1e-5)
		assert.InDelta(t, 2*w[i], p.GX.AsFloat32()[i], 1e-5)
	}
}

func TestUpdate_DelegatesToOptimizers(t *testing.T) {
	g := backend.Geometry{MaxBatch: 1, InC: 1, H: 3, W: 3, Kernel: 2, OutC: 1}
	p := randomProblem(t, g, 1, 3)

	optW := optim.NewSGD()
	optW.Init(0.5)
	optB := optim.NewSGD()
	optB.Init(0.5)
	p.OptW = optW
	p.OptB = optB

	wBefore := append([]float32(nil), p.W.AsFloat32()...)
	gw := p.GW.AsFloat32()
	for i := range gw {
		gw[i] = 1
	}

	require.NoError(t, NewSerial().Update(p))
	for i, v := range p.W.AsFloat32() {
		assert.InDelta(t, wBefore[i]-0.5, v, 1e-6)
	}
}

func TestUpdate_MissingOptimizers(t *testing.T) {
	g := backend.Geometry{MaxBatch: 1, InC: 1, H: 3, W: 3, Kernel: 2, OutC: 1}
	p := randomProblem(t, g, 1, 3)
	require.Error(t, NewSerial().Update(p))
}
