package cpu

import (
	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/parallel"
)

// Forward partitions the (sample, output channel) space across workers.
// Workers write disjoint output planes and only read shared tensors that stay
// immutable for the duration of the call.
func (e *Parallel) Forward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	bd := p.B.AsFloat32()
	yd := p.Y.AsFloat32()

	parallel.ForCollapse(p.Batch, g.OutC, func(s, oc int) {
		for i := 0; i < oh; i++ {
			for j := 0; j < ow; j++ {
				v := float32(0)
				for ic := 0; ic < g.InC; ic++ {
					for di := 0; di < g.Kernel; di++ {
						for dj := 0; dj < g.Kernel; dj++ {
							wIdx := ((oc*g.InC+ic)*g.Kernel+di)*g.Kernel + dj
							xIdx := ((s*g.InC+ic)*g.H+i+di)*g.W + j + dj
							v += wd[wIdx] * xd[xIdx]
						}
					}
				}
				yd[((s*g.OutC+oc)*oh+i)*ow+j] = v + bd[oc]
			}
		}
	}, e.cfg)
	return nil
}

// Backward runs the three gradient passes with collapsed-loop fan-out: weight
// gradients over (oc, ic), bias gradients over oc, input gradients over
// (sample, ic). Each pass completes before the next starts.
func (e *Parallel) Backward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	gyd := p.GY.AsFloat32()
	gwd := p.GW.AsFloat32()
	gbd := p.GB.AsFloat32()
	gxd := p.GX.AsFloat32()

	parallel.ForCollapse(g.OutC, g.InC, func(oc, ic int) {
		for di := 0; di < g.Kernel; di++ {
			for dj := 0; dj < g.Kernel; dj++ {
				v := float32(0)
				for s := 0; s < p.Batch; s++ {
					for i := 0; i < oh; i++ {
						for j := 0; j < ow; j++ {
							gyIdx := ((s*g.OutC+oc)*oh+i)*ow + j
							xIdx := ((s*g.InC+ic)*g.H+i+di)*g.W + j + dj
							v += gyd[gyIdx] * xd[xIdx]
						}
					}
				}
				gwd[((oc*g.InC+ic)*g.Kernel+di)*g.Kernel+dj] = v
			}
		}
	}, e.cfg)

	parallel.For(g.OutC, func(oc int) {
		v := float32(0)
		for s := 0; s < p.Batch; s++ {
			for i := 0; i < oh; i++ {
				for j := 0; j < ow; j++ {
					v += gyd[((s*g.OutC+oc)*oh+i)*ow+j]
				}
			}
		}
		gbd[oc] = v
	}, e.cfg)

	parallel.ForCollapse(p.Batch, g.InC, func(s, ic int) {
		for i := 0; i < g.H; i++ {
			for j := 0; j < g.W; j++ {
				v := float32(0)
				for oc := 0; oc < g.OutC; oc++ {
					for di := 0; di < g.Kernel; di++ {
						for dj := 0; dj < g.Kernel; dj++ {
							if i-di >= 0 && i-di < oh && j-dj >= 0 && j-dj < ow {
								gyIdx := ((s*g.OutC+oc)*oh+i-di)*ow + j - dj
								wIdx := ((oc*g.InC+ic)*g.Kernel+di)*g.Kernel + dj
								v += gyd[gyIdx] * wd[wIdx]
							}
						}
					}
				}
				gxd[((s*g.InC+ic)*g.H+i)*g.W+j] = v
			}
		}
	}, e.cfg)
	return nil
}

// Forward fans out over (sample, output channel) and runs the unrolled row
// kernel inside each partition.
func (e *ParallelVector) Forward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	bd := p.B.AsFloat32()
	yd := p.Y.AsFloat32()

	parallel.ForCollapse(p.Batch, g.OutC, func(s, oc int) {
		xSample := xd[s*g.InC*g.H*g.W:][:g.InC*g.H*g.W]
		wOut := wd[oc*g.InC*g.Kernel*g.Kernel:][:g.InC*g.Kernel*g.Kernel]
		for i := 0; i < oh; i++ {
			yRow := yd[((s*g.OutC+oc)*oh+i)*ow:][:ow]
			forwardRow(yRow, xSample, wOut, bd[oc], g, i)
		}
	}, e.cfg)
	return nil
}

// Backward fans out each gradient pass and runs the unrolled kernels inside
// the partitions.
func (e *ParallelVector) Backward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	gyd := p.GY.AsFloat32()
	gwd := p.GW.AsFloat32()
	gbd := p.GB.AsFloat32()
	gxd := p.GX.AsFloat32()

	k := g.Kernel
	parallel.ForCollapse(g.OutC, g.InC, func(oc, ic int) {
		weightGradBlock(gwd[(oc*g.InC+ic)*k*k:][:k*k], xd, gyd, g, oc, ic, p.Batch)
	}, e.cfg)

	parallel.For(g.OutC, func(oc int) {
		gbd[oc] = biasGradChannel(gyd, g, oc, p.Batch)
	}, e.cfg)

	parallel.ForCollapse(p.Batch, g.InC, func(s, ic int) {
		gySample := gyd[s*g.OutC*oh*ow:][:g.OutC*oh*ow]
		for i := 0; i < g.H; i++ {
			gxRow := gxd[((s*g.InC+ic)*g.H+i)*g.W:][:g.W]
			inputGradRow(gxRow, gySample, wd, g, ic, i)
		}
	}, e.cfg)
	return nil
}
