package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convkit-ml/convkit/internal/tensor"
)

func TestSGD_Update(t *testing.T) {
	param, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	grad, err := tensor.FromSlice([]float32{1, -1, 0.5}, tensor.Shape{3})
	require.NoError(t, err)

	opt := NewSGD()
	opt.Init(0.1)
	require.NoError(t, opt.Update(param.Raw(), grad.Raw()))

	assert.InDeltaSlice(t, []float32{0.9, 2.1, 2.95}, param.Data(), 1e-6)
}

func TestSGD_ShapeMismatch(t *testing.T) {
	param := tensor.Zeros[float32](tensor.Shape{3})
	grad := tensor.Zeros[float32](tensor.Shape{4})

	opt := NewSGD()
	opt.Init(0.1)
	require.Error(t, opt.Update(param.Raw(), grad.Raw()))
}

func TestAdaDelta_MovesAgainstGradient(t *testing.T) {
	shape := tensor.Shape{4}
	param, err := tensor.FromSlice([]float32{1, 1, 1, 1}, shape)
	require.NoError(t, err)
	grad, err := tensor.FromSlice([]float32{1, 2, -1, 0}, shape)
	require.NoError(t, err)

	opt := NewAdaDelta(shape)
	opt.Init(0.05)
	require.NoError(t, opt.Update(param.Raw(), grad.Raw()))

	p := param.Data()
	assert.Less(t, p[0], float32(1))    // positive gradient decreases param
	assert.Less(t, p[1], float32(1))
	assert.Greater(t, p[2], float32(1)) // negative gradient increases param
	assert.InDelta(t, 1, p[3], 0)       // zero gradient leaves param alone
}

func TestAdaDelta_InitResetsState(t *testing.T) {
	shape := tensor.Shape{8}
	grad := tensor.Zeros[float32](shape)
	for i := range grad.Data() {
		grad.Data()[i] = float32(i) - 3.5
	}

	run := func() []float32 {
		param := tensor.Zeros[float32](shape)
		opt := NewAdaDelta(shape)
		opt.Init(0.05)
		for step := 0; step < 5; step++ {
			require.NoError(t, opt.Update(param.Raw(), grad.Raw()))
		}
		out := make([]float32, len(param.Data()))
		copy(out, param.Data())
		return out
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestAdaDelta_ReinitIsIdempotent(t *testing.T) {
	shape := tensor.Shape{4}
	param := tensor.Zeros[float32](shape)
	grad, err := tensor.FromSlice([]float32{1, 1, 1, 1}, shape)
	require.NoError(t, err)

	opt := NewAdaDelta(shape)
	opt.Init(0.05)
	require.NoError(t, opt.Update(param.Raw(), grad.Raw()))
	afterFirst := append([]float32(nil), param.Data()...)

	// Re-init clears accumulators: a fresh param must evolve identically.
	opt.Init(0.05)
	param2 := tensor.Zeros[float32](shape)
	require.NoError(t, opt.Update(param2.Raw(), grad.Raw()))
	assert.Equal(t, afterFirst, param2.Data())
}

func TestAdaDelta_StateShapeMismatch(t *testing.T) {
	opt := NewAdaDelta(tensor.Shape{3})
	opt.Init(0.05)

	param := tensor.Zeros[float32](tensor.Shape{4})
	grad := tensor.Zeros[float32](tensor.Shape{4})
	require.Error(t, opt.Update(param.Raw(), grad.Raw()))
}
