package tensor

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/blas/blas32"
)

// FillUniform fills a float32 tensor with independent draws from the uniform
// distribution on [lo, hi).
func FillUniform(r *RawTensor, rng *rand.Rand, lo, hi float32) {
	data := r.AsFloat32()
	for i := range data {
		data[i] = lo + (hi-lo)*rng.Float32()
	}
}

// AddScaled performs dst += alpha * src element-wise.
// The shapes must match exactly.
func AddScaled(dst *RawTensor, alpha float32, src *RawTensor) error {
	if !dst.Shape().Equal(src.Shape()) {
		return fmt.Errorf("tensor: add-scaled shape mismatch: %v vs %v", dst.Shape(), src.Shape())
	}
	blas32.Axpy(alpha, vec(src), vec(dst))
	return nil
}

// Dot returns the inner product of two tensors of identical shape.
// Accumulation happens in float64 so gradient comparisons keep precision.
func Dot(a, b *RawTensor) (float64, error) {
	if !a.Shape().Equal(b.Shape()) {
		return 0, fmt.Errorf("tensor: dot shape mismatch: %v vs %v", a.Shape(), b.Shape())
	}
	ad := a.AsFloat32()
	bd := b.AsFloat32()
	sum := 0.0
	for i := range ad {
		sum += float64(ad[i]) * float64(bd[i])
	}
	return sum, nil
}

func vec(r *RawTensor) blas32.Vector {
	return blas32.Vector{
		N:    r.NumElements(),
		Inc:  1,
		Data: r.AsFloat32(),
	}
}
