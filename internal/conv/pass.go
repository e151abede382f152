package conv

import "github.com/convkit-ml/convkit/internal/tensor"

// Pass is the context of one forward call: the input the layer read, the
// output it produced and the batch size both were evaluated at. Backward
// consumes it; a Pass is single-use.
type Pass struct {
	layer    *Layer
	x        *tensor.Tensor[float32]
	y        *tensor.Tensor[float32]
	batch    int
	consumed bool
}

// Output returns the layer output of this pass. The tensor is owned by the
// layer and overwritten by its next Forward.
func (p *Pass) Output() *tensor.Tensor[float32] {
	return p.y
}

// Batch returns the active batch size of this pass.
func (p *Pass) Batch() int {
	return p.batch
}
