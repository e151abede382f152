package webgpu

import (
	"fmt"

	"github.com/convkit-ml/convkit/internal/backend"
)

// WGSL kernel sources are generated per layer geometry: the shape parameters
// are baked in as shader constants so the compiler can fully unroll the small
// kernel loops, and only the active batch size travels in a uniform.

func geomConsts(g backend.Geometry) string {
	return fmt.Sprintf(`
const IC: u32 = %du;
const H: u32 = %du;
const W: u32 = %du;
const K: u32 = %du;
const OC: u32 = %du;
const OH: u32 = %du;
const OW: u32 = %du;
`, g.InC, g.H, g.W, g.Kernel, g.OutC, g.OutH(), g.OutW())
}

// forwardBody computes one output element. Shared by the linear and tiled
// forward kernels.
const forwardBody = `
	var v: f32 = bias[oc];
	for (var ic: u32 = 0u; ic < IC; ic = ic + 1u) {
		for (var di: u32 = 0u; di < K; di = di + 1u) {
			for (var dj: u32 = 0u; dj < K; dj = dj + 1u) {
				let wi = ((oc * IC + ic) * K + di) * K + dj;
				let xi = ((s * IC + ic) * H + i + di) * W + j + dj;
				v = v + w[wi] * x[xi];
			}
		}
	}
	y[((s * OC + oc) * OH + i) * OW + j] = v;
`

// forwardLinearWGSL maps one thread to one output element over a 1D index
// space of batch*OC*OH*OW.
func forwardLinearWGSL(g backend.Geometry, group int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read> bias: array<f32>;
@group(0) @binding(3) var<storage, read_write> y: array<f32>;

struct Params {
	batch: u32,
}
@group(0) @binding(4) var<uniform> params: Params;
%s
@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let idx = gid.x;
	let total = params.batch * OC * OH * OW;
	if (idx >= total) {
		return;
	}
	let j = idx %% OW;
	let i = (idx / OW) %% OH;
	let oc = (idx / (OW * OH)) %% OC;
	let s = idx / (OW * OH * OC);
%s}
`, geomConsts(g), group, forwardBody)
}

// forwardTiledWGSL maps a 2D workgroup tile onto the output plane; the z
// dispatch dimension walks sample x output channel.
func forwardTiledWGSL(g backend.Geometry, tx, ty int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read> bias: array<f32>;
@group(0) @binding(3) var<storage, read_write> y: array<f32>;

struct Params {
	batch: u32,
}
@group(0) @binding(4) var<uniform> params: Params;
%s
@compute @workgroup_size(%d, %d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let j = gid.x;
	let i = gid.y;
	let oc = gid.z %% OC;
	let s = gid.z / OC;
	if (j >= OW || i >= OH || s >= params.batch) {
		return;
	}
%s}
`, geomConsts(g), tx, ty, forwardBody)
}

// weightGradWGSL maps one thread to one weight-gradient element and reduces
// over the whole batch and output plane in-thread.
func weightGradWGSL(g backend.Geometry, group int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> gy: array<f32>;
@group(0) @binding(2) var<storage, read_write> gw: array<f32>;

struct Params {
	batch: u32,
}
@group(0) @binding(3) var<uniform> params: Params;
%s
@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let idx = gid.x;
	let total = OC * IC * K * K;
	if (idx >= total) {
		return;
	}
	let dj = idx %% K;
	let di = (idx / K) %% K;
	let ic = (idx / (K * K)) %% IC;
	let oc = idx / (K * K * IC);

	var v: f32 = 0.0;
	for (var s: u32 = 0u; s < params.batch; s = s + 1u) {
		for (var i: u32 = 0u; i < OH; i = i + 1u) {
			for (var j: u32 = 0u; j < OW; j = j + 1u) {
				let gyi = ((s * OC + oc) * OH + i) * OW + j;
				let xi = ((s * IC + ic) * H + i + di) * W + j + dj;
				v = v + gy[gyi] * x[xi];
			}
		}
	}
	gw[idx] = v;
}
`, geomConsts(g), group)
}

// biasGradWGSL maps one thread to one output channel.
func biasGradWGSL(g backend.Geometry, group int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> gy: array<f32>;
@group(0) @binding(1) var<storage, read_write> gb: array<f32>;

struct Params {
	batch: u32,
}
@group(0) @binding(2) var<uniform> params: Params;
%s
@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let oc = gid.x;
	if (oc >= OC) {
		return;
	}
	var v: f32 = 0.0;
	for (var s: u32 = 0u; s < params.batch; s = s + 1u) {
		for (var i: u32 = 0u; i < OH; i = i + 1u) {
			for (var j: u32 = 0u; j < OW; j = j + 1u) {
				v = v + gy[((s * OC + oc) * OH + i) * OW + j];
			}
		}
	}
	gb[oc] = v;
}
`, geomConsts(g), group)
}

// inputGradBody computes one input-gradient element. The signed bounds checks
// realize the implicit zero padding of gy outside its valid region.
const inputGradBody = `
	var v: f32 = 0.0;
	for (var oc: u32 = 0u; oc < OC; oc = oc + 1u) {
		for (var di: u32 = 0u; di < K; di = di + 1u) {
			for (var dj: u32 = 0u; dj < K; dj = dj + 1u) {
				let ii = i32(i) - i32(di);
				let jj = i32(j) - i32(dj);
				if (ii >= 0 && ii < i32(OH) && jj >= 0 && jj < i32(OW)) {
					let gyi = ((s * OC + oc) * OH + u32(ii)) * OW + u32(jj);
					let wi = ((oc * IC + ic) * K + di) * K + dj;
					v = v + gy[gyi] * w[wi];
				}
			}
		}
	}
	gx[((s * IC + ic) * H + i) * W + j] = v;
`

// inputGradLinearWGSL maps one thread to one input-gradient element over a 1D
// index space of batch*IC*H*W.
func inputGradLinearWGSL(g backend.Geometry, group int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> gy: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read_write> gx: array<f32>;

struct Params {
	batch: u32,
}
@group(0) @binding(3) var<uniform> params: Params;
%s
@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let idx = gid.x;
	let total = params.batch * IC * H * W;
	if (idx >= total) {
		return;
	}
	let j = idx %% W;
	let i = (idx / W) %% H;
	let ic = (idx / (W * H)) %% IC;
	let s = idx / (W * H * IC);
%s}
`, geomConsts(g), group, inputGradBody)
}

// inputGradTiledWGSL maps a 2D workgroup tile onto the input plane; the z
// dispatch dimension walks sample x input channel.
func inputGradTiledWGSL(g backend.Geometry, tx, ty int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> gy: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read_write> gx: array<f32>;

struct Params {
	batch: u32,
}
@group(0) @binding(3) var<uniform> params: Params;
%s
@compute @workgroup_size(%d, %d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let j = gid.x;
	let i = gid.y;
	let ic = gid.z %% IC;
	let s = gid.z / IC;
	if (j >= W || i >= H || s >= params.batch) {
		return;
	}
%s}
`, geomConsts(g), tx, ty, inputGradBody)
}

// adaDeltaWGSL applies the AdaDelta update rule element-wise against the
// mirrored parameter, gradient and accumulator buffers.
func adaDeltaWGSL(group int) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read_write> p: array<f32>;
@group(0) @binding(1) var<storage, read> g: array<f32>;
@group(0) @binding(2) var<storage, read_write> g2: array<f32>;
@group(0) @binding(3) var<storage, read_write> d2: array<f32>;

struct Params {
	n: u32,
	lr: f32,
	rho: f32,
	eps: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let idx = gid.x;
	if (idx >= params.n) {
		return;
	}
	let gi = g[idx];
	g2[idx] = params.rho * g2[idx] + (1.0 - params.rho) * gi * gi;
	let dx = -params.lr * sqrt((d2[idx] + params.eps) / (g2[idx] + params.eps)) * gi;
	d2[idx] = params.rho * d2[idx] + (1.0 - params.rho) * dx * dx;
	p[idx] = p[idx] + dx;
}
`, group)
}
