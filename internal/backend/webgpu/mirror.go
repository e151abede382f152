package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/convkit-ml/convkit/internal/backend"
)

const f32Size = 4

// mirror is the persistent device shadow of one layer's tensors. Buffers are
// sized for the geometry's full batch capacity and allocated once when the
// engine is built, so steady-state calls only move bytes, never allocate.
//
// Host tensors stay canonical: every call uploads the inputs it reads and
// reads back the outputs it writes, touching only the active batch prefix.
type mirror struct {
	x  *wgpu.Buffer // [MaxBatch, InC, H, W]
	y  *wgpu.Buffer // [MaxBatch, OutC, OutH, OutW]
	gy *wgpu.Buffer // same size as y
	gx *wgpu.Buffer // same size as x

	w  *wgpu.Buffer // [OutC, InC, K, K]
	b  *wgpu.Buffer // [OutC]
	gw *wgpu.Buffer // same size as w
	gb *wgpu.Buffer // same size as b

	// AdaDelta accumulators, uploaded before and read back after each
	// accelerated update step.
	g2w, d2w *wgpu.Buffer
	g2b, d2b *wgpu.Buffer
}

func newMirror(be *Backend, g backend.Geometry) *mirror {
	inBytes := g.InputShape().NumElements() * f32Size
	outBytes := g.OutputShape().NumElements() * f32Size
	wBytes := g.WeightShape().NumElements() * f32Size
	bBytes := g.BiasShape().NumElements() * f32Size

	return &mirror{
		x:   be.createStorageBuffer(inBytes),
		y:   be.createStorageBuffer(outBytes),
		gy:  be.createStorageBuffer(outBytes),
		gx:  be.createStorageBuffer(inBytes),
		w:   be.createStorageBuffer(wBytes),
		b:   be.createStorageBuffer(bBytes),
		gw:  be.createStorageBuffer(wBytes),
		gb:  be.createStorageBuffer(bBytes),
		g2w: be.createStorageBuffer(wBytes),
		d2w: be.createStorageBuffer(wBytes),
		g2b: be.createStorageBuffer(bBytes),
		d2b: be.createStorageBuffer(bBytes),
	}
}

func (m *mirror) release() {
	buffers := []*wgpu.Buffer{
		m.x, m.y, m.gy, m.gx,
		m.w, m.b, m.gw, m.gb,
		m.g2w, m.d2w, m.g2b, m.d2b,
	}
	for _, buf := range buffers {
		if buf != nil {
			buf.Release()
		}
	}
}
