package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaw_Basic(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3, 4}, Float32, CPU)
	require.NoError(t, err)

	assert.True(t, raw.Shape().Equal(Shape{2, 3, 4}))
	assert.Equal(t, 24, raw.NumElements())
	assert.Equal(t, 96, raw.ByteSize())
	assert.Equal(t, 2, raw.Batch())
	assert.Equal(t, []int{12, 4, 1}, raw.Strides())
}

func TestNewRaw_InvalidShape(t *testing.T) {
	_, err := NewRaw(Shape{2, 0, 4}, Float32, CPU)
	require.Error(t, err)
}

func TestRawTensor_SetBatch(t *testing.T) {
	raw, err := NewRaw(Shape{8, 3}, Float32, CPU)
	require.NoError(t, err)

	raw.SetBatch(5)
	assert.Equal(t, 5, raw.Batch())

	assert.Panics(t, func() { raw.SetBatch(9) })
	assert.Panics(t, func() { raw.SetBatch(-1) })
}

func TestTensor_AtSet(t *testing.T) {
	x := Zeros[float32](Shape{2, 3})
	x.Set(1.5, 0, 2)
	x.Set(-2, 1, 0)

	assert.InDelta(t, 1.5, x.At(0, 2), 0)
	assert.InDelta(t, -2, x.At(1, 0), 0)
	// Row-major layout: [0,2] is flat index 2.
	assert.InDelta(t, 1.5, x.Data()[2], 0)

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestFromSlice(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 6, x.At(1, 2), 0)

	_, err = FromSlice([]float32{1, 2, 3}, Shape{2, 3})
	require.Error(t, err)
}

func TestCopyFrom(t *testing.T) {
	src, err := NewRaw(Shape{4, 2}, Float32, CPU)
	require.NoError(t, err)
	srcData := src.AsFloat32()
	for i := range srcData {
		srcData[i] = float32(i)
	}
	src.SetBatch(3)

	dst, err := NewRaw(Shape{4, 2}, Float32, CPU)
	require.NoError(t, err)
	require.NoError(t, dst.CopyFrom(src))

	assert.Equal(t, srcData, dst.AsFloat32())
	assert.Equal(t, 3, dst.Batch())

	other, err := NewRaw(Shape{4, 3}, Float32, CPU)
	require.NoError(t, err)
	require.Error(t, dst.CopyFrom(other))
}

func TestFillUniform_Deterministic(t *testing.T) {
	a, err := NewRaw(Shape{16}, Float32, CPU)
	require.NoError(t, err)
	b, err := NewRaw(Shape{16}, Float32, CPU)
	require.NoError(t, err)

	FillUniform(a, rand.New(rand.NewSource(42)), -0.5, 0.5)
	FillUniform(b, rand.New(rand.NewSource(42)), -0.5, 0.5)

	assert.Equal(t, a.AsFloat32(), b.AsFloat32())
	for _, v := range a.AsFloat32() {
		assert.GreaterOrEqual(t, v, float32(-0.5))
		assert.Less(t, v, float32(0.5))
	}
}

func TestAddScaled(t *testing.T) {
	dst, err := FromSlice([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)
	src, err := FromSlice([]float32{10, 20, 30}, Shape{3})
	require.NoError(t, err)

	require.NoError(t, AddScaled(dst.Raw(), 0.5, src.Raw()))
	assert.InDeltaSlice(t, []float32{6, 12, 18}, dst.Data(), 1e-6)

	bad := Zeros[float32](Shape{4})
	require.Error(t, AddScaled(dst.Raw(), 1, bad.Raw()))
}

func TestDot(t *testing.T) {
	a, err := FromSlice([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)
	b, err := FromSlice([]float32{4, 5, 6}, Shape{3})
	require.NoError(t, err)

	d, err := Dot(a.Raw(), b.Raw())
	require.NoError(t, err)
	assert.InDelta(t, 32.0, d, 1e-9)

	bad := Zeros[float32](Shape{2})
	_, err = Dot(a.Raw(), bad.Raw())
	require.Error(t, err)
}
