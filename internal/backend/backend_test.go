package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/convkit-ml/convkit/internal/tensor"
)

func TestGeometry_Validate(t *testing.T) {
	ok := Geometry{MaxBatch: 2, InC: 2, H: 16, W: 16, Kernel: 3, OutC: 3}
	assert.NoError(t, ok.Validate())

	cases := []Geometry{
		{MaxBatch: 0, InC: 1, H: 4, W: 4, Kernel: 2, OutC: 1},
		{MaxBatch: 1, InC: -1, H: 4, W: 4, Kernel: 2, OutC: 1},
		{MaxBatch: 1, InC: 1, H: 2, W: 4, Kernel: 3, OutC: 1},
		{MaxBatch: 1, InC: 1, H: 4, W: 2, Kernel: 3, OutC: 1},
	}
	for _, g := range cases {
		assert.Errorf(t, g.Validate(), "%+v", g)
	}
}

func TestGeometry_Shapes(t *testing.T) {
	g := Geometry{MaxBatch: 4, InC: 2, H: 16, W: 12, Kernel: 3, OutC: 5}

	assert.Equal(t, 14, g.OutH())
	assert.Equal(t, 10, g.OutW())
	assert.Equal(t, tensor.Shape{4, 2, 16, 12}, g.InputShape())
	assert.Equal(t, tensor.Shape{4, 5, 14, 10}, g.OutputShape())
	assert.Equal(t, tensor.Shape{5, 2, 3, 3}, g.WeightShape())
	assert.Equal(t, tensor.Shape{5}, g.BiasShape())

	// Kernel == H == W leaves a single output pixel.
	edge := Geometry{MaxBatch: 1, InC: 1, H: 4, W: 4, Kernel: 4, OutC: 1}
	assert.NoError(t, edge.Validate())
	assert.Equal(t, 1, edge.OutH())
	assert.Equal(t, 1, edge.OutW())
}
