package webgpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/backend/cpu"
	"github.com/convkit-ml/convkit/internal/optim"
	"github.com/convkit-ml/convkit/internal/tensor"
)

// GPU reductions reorder relative to the serial baseline, so the tolerance is
// looser than the CPU equivalence tests use.
const gpuRelTol = 1e-4

func requireBackend(t *testing.T) *Backend {
	t.Helper()
	be, err := New()
	if err != nil {
		t.Skipf("webgpu unavailable: %v", err)
	}
	t.Cleanup(be.Close)
	return be
}

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
		if diff/scale > gpuRelTol {
			t.Fatalf("%s[%d]: want %g, got %g (rel err %g)", name, i, wd[i], gd[i], diff/scale)
		}
	}
}

func TestNewEngine_RejectsBadInputs(t *testing.T) {
	be := requireBackend(t)

	_, err := NewEngine(nil, backend.Geometry{MaxBatch: 1, InC: 1, H: 4, W: 4, Kernel: 2, OutC: 1}, DefaultTuning(), false)
	assert.Error(t, err)

	_, err = NewEngine(be, backend.Geometry{MaxBatch: 1, InC: 1, H: 2, W: 2, Kernel: 3, OutC: 1}, DefaultTuning(), false)
	assert.Error(t, err)

	bad := DefaultTuning()
	bad.ForwardTile = [2]int{32, 32}
	_, err = NewEngine(be, backend.Geometry{MaxBatch: 1, InC: 1, H: 4, W: 4, Kernel: 2, OutC: 1}, bad, true)
	assert.Error(t, err)
}

func TestEngines_MatchSerialBaseline(t *testing.T) {
	be := requireBackend(t)
	serial := cpu.NewSerial()

	geometries := []struct {
		g     backend.Geometry
		batch int
	}{
		{backend.Geometry{MaxBatch: 2, InC: 2, H: 16, W: 16, Kernel: 3, OutC: 3}, 2},
		{backend.Geometry{MaxBatch: 1, InC: 1, H: 3, W: 3, Kernel: 2, OutC: 1}, 1},
		{backend.Geometry{MaxBatch: 3, InC: 2, H: 5, W: 7, Kernel: 5, OutC: 2}, 2},
		{backend.Geometry{MaxBatch: 1, InC: 1, H: 4, W: 4, Kernel: 4, OutC: 1}, 1},
	}

	for _, fast := range []bool{false, true} {
		for seed, gc := range geometries {
			eng, err := NewEngine(be, gc.g, DefaultTuning(), fast)
			require.NoError(t, err)
			t.Cleanup(eng.Close)

			name := eng.Name()
			ref := randomProblem(t, gc.g, gc.batch, int64(seed))
			got := randomProblem(t, gc.g, gc.batch, int64(seed))

			require.NoError(t, serial.Forward(ref))
			require.NoError(t, serial.Backward(ref))
			require.NoError(t, eng.Forward(got))
			require.NoError(t, eng.Backward(got))

			assertClose(t, name+"/y", ref.Y, got.Y)
			assertClose(t, name+"/gw", ref.GW, got.GW)
			assertClose(t, name+"/gb", ref.GB, got.GB)
			assertClose(t, name+"/gx", ref.GX, got.GX)
		}
	}
}

func TestEngine_AdaDeltaUpdateMatchesHost(t *testing.T) {
	be := requireBackend(t)
	g := backend.Geometry{MaxBatch: 2, InC: 2, H: 8, W: 8, Kernel: 3, OutC: 3}

	eng, err := NewEngine(be, g, DefaultTuning(), false)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	host := randomProblem(t, g, 2, 7)
	dev := randomProblem(t, g, 2, 7)
	tensor.FillUniform(host.GW, rand.New(rand.NewSource(11)), -1, 1)
	tensor.FillUniform(host.GB, rand.New(rand.NewSource(12)), -1, 1)
	require.NoError(t, dev.GW.CopyFrom(host.GW))
	require.NoError(t, dev.GB.CopyFrom(host.GB))

	for _, p := range []*backend.Problem{host, dev} {
		p.OptW = optim.NewAdaDelta(g.WeightShape())
		p.OptB = optim.NewAdaDelta(g.BiasShape())
		p.OptW.Init(0.05)
		p.OptB.Init(0.05)
	}

	serial := cpu.NewSerial()
	// Two steps so the device path also exercises non-zero accumulators.
	for range 2 {
		require.NoError(t, serial.Update(host))
		require.NoError(t, eng.Update(dev))
	}

	assertClose(t, "w", host.W, dev.W)
	assertClose(t, "b", host.B, dev.B)
	assertClose(t, "g2w", host.OptW.(*optim.AdaDelta).GradSq(), dev.OptW.(*optim.AdaDelta).GradSq())
	assertClose(t, "d2b", host.OptB.(*optim.AdaDelta).DeltaSq(), dev.OptB.(*optim.AdaDelta).DeltaSq())
}

func TestEngine_SGDUpdateFallsBackToHost(t *testing.T) {
	be := requireBackend(t)
	g := backend.Geometry{MaxBatch: 1, InC: 1, H: 4, W: 4, Kernel: 2, OutC: 1}

	eng, err := NewEngine(be, g, DefaultTuning(), false)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	p := randomProblem(t, g, 1, 3)
	tensor.FillUniform(p.GW, rand.New(rand.NewSource(4)), -1, 1)
	p.OptW = optim.NewSGD()
	p.OptB = optim.NewSGD()
	p.OptW.Init(0.1)
	p.OptB.Init(0.1)

	w0 := append([]float32(nil), p.W.AsFloat32()...)
	require.NoError(t, eng.Update(p))

	w := p.W.AsFloat32()
	gw := p.GW.AsFloat32()
	for i := range w {
		assert.InDelta(t, w0[i]-0.1*gw[i], w[i], 1e-6)
	}
}
