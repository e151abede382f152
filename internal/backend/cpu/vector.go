package cpu

import (
	"github.com/convkit-ml/convkit/internal/backend"
)

// The kernels below are shared by Vector and ParallelVector. They pre-slice
// the channel planes once per row so the innermost loops run on small
// unit-stride slices with unrolled accumulation.

// forwardRow computes y[s,oc,i,:] for one sample plane and one output channel.
// xSample is the sample's [InC*H*W] plane, wOut the channel's [InC*K*K] block.
func forwardRow(yRow, xSample, wOut []float32, bias float32, g backend.Geometry, i int) {
	k := g.Kernel
	ow := g.OutW()
	for j := 0; j < ow; j++ {
		v := float32(0)
		for ic := 0; ic < g.InC; ic++ {
			xPlane := xSample[ic*g.H*g.W:]
			wk := wOut[ic*k*k:]
			for di := 0; di < k; di++ {
				xRow := xPlane[(i+di)*g.W+j:]
				wRow := wk[di*k:]
				dj := 0
				for ; dj+4 <= k; dj += 4 {
					v += wRow[dj]*xRow[dj] +
						wRow[dj+1]*xRow[dj+1] +
						wRow[dj+2]*xRow[dj+2] +
						wRow[dj+3]*xRow[dj+3]
				}
				for ; dj < k; dj++ {
					v += wRow[dj] * xRow[dj]
				}
			}
		}
		yRow[j] = v + bias
	}
}

// weightGradBlock computes the [K*K] block gw[oc,ic,:,:]. For each kernel
// offset the accumulation over output columns is an unrolled dot product of
// two unit-stride rows.
func weightGradBlock(gwBlock, xd, gyd []float32, g backend.Geometry, oc, ic, batch int) {
	k := g.Kernel
	oh, ow := g.OutH(), g.OutW()
	for di := 0; di < k; di++ {
		for dj := 0; dj < k; dj++ {
			v := float32(0)
			for s := 0; s < batch; s++ {
				for i := 0; i < oh; i++ {
					gyRow := gyd[((s*g.OutC+oc)*oh+i)*ow:][:ow]
					xRow := xd[((s*g.InC+ic)*g.H+i+di)*g.W+dj:]
					j := 0
					for ; j+4 <= ow; j += 4 {
						v += gyRow[j]*xRow[j] +
							gyRow[j+1]*xRow[j+1] +
							gyRow[j+2]*xRow[j+2] +
							gyRow[j+3]*xRow[j+3]
					}
					for ; j < ow; j++ {
						v += gyRow[j] * xRow[j]
					}
				}
			}
			gwBlock[di*k+dj] = v
		}
	}
}

// biasGradChannel sums gy over one output channel.
func biasGradChannel(gyd []float32, g backend.Geometry, oc, batch int) float32 {
	oh, ow := g.OutH(), g.OutW()
	v := float32(0)
	for s := 0; s < batch; s++ {
		plane := gyd[(s*g.OutC+oc)*oh*ow:][:oh*ow]
		n := 0
		for ; n+4 <= len(plane); n += 4 {
			v += plane[n] + plane[n+1] + plane[n+2] + plane[n+3]
		}
		for ; n < len(plane); n++ {
			v += plane[n]
		}
	}
	return v
}

// inputGradRow computes gx[s,ic,i,:] from one sample's gy plane. The valid
// kernel-offset range is computed up front, replacing the per-element bounds
// check of the baseline: for output row ii = i-di the contributing columns
// are jj in [max(0,j-K+1), min(ow-1,j)].
func inputGradRow(gxRow, gySample, wd []float32, g backend.Geometry, ic, i int) {
	k := g.Kernel
	oh, ow := g.OutH(), g.OutW()

	diLo := max(0, i-oh+1)
	diHi := min(k-1, i)

	for j := 0; j < g.W; j++ {
		v := float32(0)
		jjLo := max(0, j-k+1)
		jjHi := min(ow-1, j)
		for oc := 0; oc < g.OutC; oc++ {
			wBlock := wd[(oc*g.InC+ic)*k*k:]
			for di := diLo; di <= diHi; di++ {
				gyRow := gySample[(oc*oh+i-di)*ow:]
				wRow := wBlock[di*k:]
				jj := jjLo
				for ; jj+2 <= jjHi+1; jj += 2 {
					v += gyRow[jj]*wRow[j-jj] + gyRow[jj+1]*wRow[j-jj-1]
				}
				for ; jj <= jjHi; jj++ {
					v += gyRow[jj] * wRow[j-jj]
				}
			}
		}
		gxRow[j] = v
	}
}

// Forward runs the vectorized kernels with sequential outer loops.
func (e *Vector) Forward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	bd := p.B.AsFloat32()
	yd := p.Y.AsFloat32()

	for s := 0; s < p.Batch; s++ {
		xSample := xd[s*g.InC*g.H*g.W:][:g.InC*g.H*g.W]
		for oc := 0; oc < g.OutC; oc++ {
			wOut := wd[oc*g.InC*g.Kernel*g.Kernel:][:g.InC*g.Kernel*g.Kernel]
			for i := 0; i < oh; i++ {
				yRow := yd[((s*g.OutC+oc)*oh+i)*ow:][:ow]
				forwardRow(yRow, xSample, wOut, bd[oc], g, i)
			}
		}
	}
	return nil
}

// Backward runs the vectorized gradient kernels with sequential outer loops.
func (e *Vector) Backward(p *backend.Problem) error {
	g := p.Geom
	oh, ow := g.OutH(), g.OutW()
	xd := p.X.AsFloat32()
	wd := p.W.AsFloat32()
	gyd := p.GY.AsFloat32()
	gwd := p.GW.AsFloat32()
	gbd := p.GB.AsFloat32()
	gxd := p.GX.AsFloat32()

	k := g.Kernel
	for oc := 0; oc < g.OutC; oc++ {
		for ic := 0; ic < g.InC; ic++ {
			weightGradBlock(gwd[(oc*g.InC+ic)*k*k:][:k*k], xd, gyd, g, oc, ic, p.Batch)
		}
	}

	for oc := 0; oc < g.OutC; oc++ {
		gbd[oc] = biasGradChannel(gyd, g, oc, p.Batch)
	}

	for s := 0; s < p.Batch; s++ {
		gySample := gyd[s*g.OutC*oh*ow:][:g.OutC*oh*ow]
		for ic := 0; ic < g.InC; ic++ {
			for i := 0; i < g.H; i++ {
				gxRow := gxd[((s*g.InC+ic)*g.H+i)*g.W:][:g.W]
				inputGradRow(gxRow, gySample, wd, g, ic, i)
			}
		}
	}
	return nil
}
