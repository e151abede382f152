package webgpu

import "fmt"

// Tuning holds the workgroup sizing of the tuned ("gpu-fast") engine.
// The three backward kernels have unrelated output shapes, so each gets its
// own sizing; the defaults were chosen by coarse benchmarking on small VGG
// geometries, not derived, and callers are expected to re-tune for theirs.
type Tuning struct {
	// ForwardTile is the (columns, rows) workgroup shape of the tiled
	// forward kernel; the z dimension iterates sample x output channel.
	ForwardTile [2]int

	// WeightGradGroup is the linear workgroup width of the weight-gradient
	// kernel (one thread per kernel element).
	WeightGradGroup int

	// BiasGradGroup is the linear workgroup width of the bias-gradient
	// kernel (one thread per output channel).
	BiasGradGroup int

	// InputGradTile is the (columns, rows) workgroup shape of the tiled
	// input-gradient kernel; the z dimension iterates sample x input channel.
	InputGradTile [2]int
}

// DefaultTuning returns the benchmark-derived defaults.
func DefaultTuning() Tuning {
	return Tuning{
		ForwardTile:     [2]int{8, 8},
		WeightGradGroup: 64,
		BiasGradGroup:   32,
		InputGradTile:   [2]int{8, 8},
	}
}

// Validate rejects non-positive or oversized workgroup shapes.
func (t Tuning) Validate() error {
	dims := []int{
		t.ForwardTile[0], t.ForwardTile[1],
		t.WeightGradGroup, t.BiasGradGroup,
		t.InputGradTile[0], t.InputGradTile[1],
	}
	for _, d := range dims {
		if d <= 0 {
			return fmt.Errorf("webgpu: tuning dimensions must be positive: %+v", t)
		}
	}
	if t.ForwardTile[0]*t.ForwardTile[1] > 256 || t.InputGradTile[0]*t.InputGradTile[1] > 256 {
		return fmt.Errorf("webgpu: tile workgroups exceed 256 invocations: %+v", t)
	}
	if t.WeightGradGroup > 256 || t.BiasGradGroup > 256 {
		return fmt.Errorf("webgpu: linear workgroups exceed 256 invocations: %+v", t)
	}
	return nil
}
