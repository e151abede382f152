package cpu

import (
	"github.com/convkit-ml/convkit/internal/backend"
)

// Forward computes the cross-correlation one output element at a time:
//
//	y[s,oc,i,j] = b[oc] + sum_ic sum_di sum_dj w[oc,ic,di,dj] * x[s,ic,i+di,j+dj]
func (e *Serial) Forward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	bd := p.B.AsFloat32()
	yd := p.Y.AsFloat32()

	for s := 0; s < p.Batch; s++ {
		for oc := 0; oc < g.OutC; oc++ {
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
		}
	}
	return nil
}

// Backward computes the three gradients with the reference loop orders.
//
// The input gradient is the adjoint of the valid-mode forward pass: gy is
// implicitly zero outside [0,OutH)x[0,OutW), which the bounds check below
// reproduces exactly.
func (e *Serial) Backward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	gyd := p.GY.AsFloat32()
	gwd := p.GW.AsFloat32()
	gbd := p.GB.AsFloat32()
	gxd := p.GX.AsFloat32()

	// Weight gradient: gw[oc,ic,di,dj] = sum_{s,i,j} gy[s,oc,i,j] * x[s,ic,i+di,j+dj].
	for oc := 0; oc < g.OutC; oc++ {
		for ic := 0; ic < g.InC; ic++ {
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
		}
	}

	// Bias gradient: gb[oc] = sum_{s,i,j} gy[s,oc,i,j].
	for oc := 0; oc < g.OutC; oc++ {
		v := float32(0)
		for s := 0; s < p.Batch; s++ {
			for i := 0; i < oh; i++ {
				for j := 0; j < ow; j++ {
					v += gyd[((s*g.OutC+oc)*oh+i)*ow+j]
				}
			}
		}
		gbd[oc] = v
	}

	// Input gradient: full correlation of gy with w.
	for s := 0; s < p.Batch; s++ {
		for ic := 0; ic < g.InC; ic++ {
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
		}
	}
	return nil
}
