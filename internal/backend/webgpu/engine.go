package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/convkit-ml/convkit/internal/backend"
	"github.com/convkit-ml/convkit/internal/optim"
	"github.com/convkit-ml/convkit/internal/tensor"
)

// Engine executes the convolution calls of one layer on the GPU. The base
// variant uses linear one-thread-per-element kernels; the fast variant tiles
// the spatial kernels per the Tuning it was built with.
//
// An Engine is bound to a single geometry: the shader sources bake the shape
// constants in, and the device mirror is sized for the full batch capacity.
type Engine struct {
	be   *Backend
	geom backend.Geometry
	tune Tuning
	fast bool
	name string

	mir *mirror
	key string

	// Full mirror-buffer byte sizes, used for bind-group ranges.
	inCap, outCap, wCap, bCap uint64
}

// NewEngine builds an engine for the given geometry on an initialized backend.
// fast selects the tuned tiled kernels; the base engine ignores tune.
func NewEngine(be *Backend, g backend.Geometry, tune Tuning, fast bool) (*Engine, error) {
	if be == nil {
		return nil, fmt.Errorf("webgpu: engine requires an attached backend")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if fast {
		if err := tune.Validate(); err != nil {
			return nil, err
		}
	}
	name := "gpu-base"
	if fast {
		name = "gpu-fast"
	}
	e := &Engine{
		be:     be,
		geom:   g,
		tune:   tune,
		fast:   fast,
		name:   name,
		mir:    newMirror(be, g),
		key:    fmt.Sprintf("b%d-ic%d-%dx%d-k%d-oc%d", g.MaxBatch, g.InC, g.H, g.W, g.Kernel, g.OutC),
		inCap:  uint64(g.InputShape().NumElements() * f32Size),  //nolint:gosec // non-negative
		outCap: uint64(g.OutputShape().NumElements() * f32Size), //nolint:gosec // non-negative
		wCap:   uint64(g.WeightShape().NumElements() * f32Size), //nolint:gosec // non-negative
		bCap:   uint64(g.BiasShape().NumElements() * f32Size),   //nolint:gosec // non-negative
	}
	return e, nil
}

// Name identifies the engine in logs and errors.
func (e *Engine) Name() string {
	return e.name
}

// Close releases the engine's device mirror. The backend itself is shared and
// stays open.
func (e *Engine) Close() {
	if e.mir != nil {
		e.mir.release()
		e.mir = nil
	}
}

// Forward computes Y from X, W, B over the active batch.
func (e *Engine) Forward(p *backend.Problem) error {
	if err := checkFloat32(p.X, p.W, p.B, p.Y); err != nil {
		return err
	}
	batch := p.Batch
	inBytes := e.sampleInBytes() * uint64(batch)   //nolint:gosec // batch validated by the layer
	outBytes := e.sampleOutBytes() * uint64(batch) //nolint:gosec // batch validated by the layer

	e.be.writeBuffer(e.mir.x, p.X.Data()[:inBytes])
	e.be.writeBuffer(e.mir.w, p.W.Data())
	e.be.writeBuffer(e.mir.b, p.B.Data())

	var pipeline *wgpu.ComputePipeline
	var nx, ny, nz uint32
	if e.fast {
		tx, ty := e.tune.ForwardTile[0], e.tune.ForwardTile[1]
		pipeline = e.pipelineFor(
			fmt.Sprintf("conv-fwd-tiled-%s-%dx%d", e.key, tx, ty),
			forwardTiledWGSL(e.geom, tx, ty),
		)
		nx = ceilDiv(e.geom.OutW(), tx)
		ny = ceilDiv(e.geom.OutH(), ty)
		nz = uint32(batch * e.geom.OutC) //nolint:gosec // non-negative
	} else {
		pipeline = e.pipelineFor(
			fmt.Sprintf("conv-fwd-linear-%s", e.key),
			forwardLinearWGSL(e.geom, workgroupSize),
		)
		nx = ceilDiv(batch*e.geom.OutC*e.geom.OutH()*e.geom.OutW(), workgroupSize)
		ny, nz = 1, 1
	}

	paramsBuf := e.be.createUniformBuffer(uniformU32(uint32(batch))) //nolint:gosec // non-negative
	defer paramsBuf.Release()

	e.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, e.mir.x, 0, e.inCap),
		wgpu.BufferBindingEntry(1, e.mir.w, 0, e.wCap),
		wgpu.BufferBindingEntry(2, e.mir.b, 0, e.bCap),
		wgpu.BufferBindingEntry(3, e.mir.y, 0, e.outCap),
		wgpu.BufferBindingEntry(4, paramsBuf, 0, 16),
	}, nx, ny, nz)

	result, err := e.be.readBuffer(e.mir.y, outBytes)
	if err != nil {
		return err
	}
	copy(p.Y.Data()[:outBytes], result)
	return nil
}

// Backward computes GW, GB, GX from X, W, GY over the active batch. The three
// gradient kernels are dispatched independently; the final readback doubles
// as the completion barrier for all of them.
func (e *Engine) Backward(p *backend.Problem) error {
	if err := checkFloat32(p.X, p.W, p.GY, p.GW, p.GB, p.GX); err != nil {
		return err
	}
	batch := p.Batch
	inBytes := e.sampleInBytes() * uint64(batch)   //nolint:gosec // batch validated by the layer
	outBytes := e.sampleOutBytes() * uint64(batch) //nolint:gosec // batch validated by the layer

	e.be.writeBuffer(e.mir.x, p.X.Data()[:inBytes])
	e.be.writeBuffer(e.mir.gy, p.GY.Data()[:outBytes])
	e.be.writeBuffer(e.mir.w, p.W.Data())

	paramsBuf := e.be.createUniformBuffer(uniformU32(uint32(batch))) //nolint:gosec // non-negative
	defer paramsBuf.Release()

	// Weight gradient: one thread per kernel element.
	gwGroup := workgroupSize
	if e.fast {
		gwGroup = e.tune.WeightGradGroup
	}
	gwPipeline := e.pipelineFor(
		fmt.Sprintf("conv-gw-%s-g%d", e.key, gwGroup),
		weightGradWGSL(e.geom, gwGroup),
	)
	e.dispatch(gwPipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, e.mir.x, 0, e.inCap),
		wgpu.BufferBindingEntry(1, e.mir.gy, 0, e.outCap),
		wgpu.BufferBindingEntry(2, e.mir.gw, 0, e.wCap),
		wgpu.BufferBindingEntry(3, paramsBuf, 0, 16),
	}, ceilDiv(e.geom.WeightShape().NumElements(), gwGroup), 1, 1)

	// Bias gradient: one thread per output channel.
	gbGroup := workgroupSize
	if e.fast {
		gbGroup = e.tune.BiasGradGroup
	}
	gbPipeline := e.pipelineFor(
		fmt.Sprintf("conv-gb-%s-g%d", e.key, gbGroup),
		biasGradWGSL(e.geom, gbGroup),
	)
	e.dispatch(gbPipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, e.mir.gy, 0, e.outCap),
		wgpu.BufferBindingEntry(1, e.mir.gb, 0, e.bCap),
		wgpu.BufferBindingEntry(2, paramsBuf, 0, 16),
	}, ceilDiv(e.geom.OutC, gbGroup), 1, 1)

	// Input gradient: one thread per input element, gather form.
	var gxPipeline *wgpu.ComputePipeline
	var nx, ny, nz uint32
	if e.fast {
		tx, ty := e.tune.InputGradTile[0], e.tune.InputGradTile[1]
		gxPipeline = e.pipelineFor(
			fmt.Sprintf("conv-gx-tiled-%s-%dx%d", e.key, tx, ty),
			inputGradTiledWGSL(e.geom, tx, ty),
		)
		nx = ceilDiv(e.geom.W, tx)
		ny = ceilDiv(e.geom.H, ty)
		nz = uint32(batch * e.geom.InC) //nolint:gosec // non-negative
	} else {
		gxPipeline = e.pipelineFor(
			fmt.Sprintf("conv-gx-linear-%s", e.key),
			inputGradLinearWGSL(e.geom, workgroupSize),
		)
		nx = ceilDiv(batch*e.geom.InC*e.geom.H*e.geom.W, workgroupSize)
		ny, nz = 1, 1
	}
	e.dispatch(gxPipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, e.mir.gy, 0, e.outCap),
		wgpu.BufferBindingEntry(1, e.mir.w, 0, e.wCap),
		wgpu.BufferBindingEntry(2, e.mir.gx, 0, e.inCap),
		wgpu.BufferBindingEntry(3, paramsBuf, 0, 16),
	}, nx, ny, nz)

	gwData, err := e.be.readBuffer(e.mir.gw, e.wCap)
	if err != nil {
		return err
	}
	gbData, err := e.be.readBuffer(e.mir.gb, e.bCap)
	if err != nil {
		return err
	}
	gxData, err := e.be.readBuffer(e.mir.gx, inBytes)
	if err != nil {
		return err
	}
	copy(p.GW.Data(), gwData)
	copy(p.GB.Data(), gbData)
	copy(p.GX.Data()[:inBytes], gxData)
	return nil
}

// Update applies the optimizers to (W, GW) and (B, GB). AdaDelta runs on the
// device against the mirrored accumulators; any other optimizer falls back to
// its host implementation.
func (e *Engine) Update(p *backend.Problem) error {
	if p.OptW == nil || p.OptB == nil {
		return fmt.Errorf("webgpu: %s: update requires initialized optimizers", e.name)
	}
	adaW, okW := p.OptW.(*optim.AdaDelta)
	adaB, okB := p.OptB.(*optim.AdaDelta)
	if !okW || !okB {
		if err := p.OptW.Update(p.W, p.GW); err != nil {
			return err
		}
		return p.OptB.Update(p.B, p.GB)
	}
	if err := e.adaDeltaStep(adaW, p.W, p.GW, e.mir.w, e.mir.gw, e.mir.g2w, e.mir.d2w, e.wCap); err != nil {
		return err
	}
	return e.adaDeltaStep(adaB, p.B, p.GB, e.mir.b, e.mir.gb, e.mir.g2b, e.mir.d2b, e.bCap)
}

// adaDeltaStep runs one device-side AdaDelta update for a single parameter
// tensor and syncs the parameter and both accumulators back to the host.
func (e *Engine) adaDeltaStep(opt *optim.AdaDelta, param, grad *tensor.RawTensor, pBuf, gBuf, g2Buf, d2Buf *wgpu.Buffer, size uint64) error {
	if err := checkFloat32(param, grad); err != nil {
		return err
	}
	e.be.writeBuffer(pBuf, param.Data())
	e.be.writeBuffer(gBuf, grad.Data())
	e.be.writeBuffer(g2Buf, opt.GradSq().Data())
	e.be.writeBuffer(d2Buf, opt.DeltaSq().Data())

	n := param.NumElements()
	pipeline := e.pipelineFor(
		fmt.Sprintf("adadelta-g%d", workgroupSize),
		adaDeltaWGSL(workgroupSize),
	)
	paramsBuf := e.be.createUniformBuffer(uniformAdaDelta(uint32(n), opt.LR(), opt.Rho(), opt.Eps())) //nolint:gosec // non-negative
	defer paramsBuf.Release()

	e.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, pBuf, 0, size),
		wgpu.BufferBindingEntry(1, gBuf, 0, size),
		wgpu.BufferBindingEntry(2, g2Buf, 0, size),
		wgpu.BufferBindingEntry(3, d2Buf, 0, size),
		wgpu.BufferBindingEntry(4, paramsBuf, 0, 16),
	}, ceilDiv(n, workgroupSize), 1, 1)

	pData, err := e.be.readBuffer(pBuf, size)
	if err != nil {
		return err
	}
	g2Data, err := e.be.readBuffer(g2Buf, size)
	if err != nil {
		return err
	}
	d2Data, err := e.be.readBuffer(d2Buf, size)
	if err != nil {
		return err
	}
	copy(param.Data(), pData)
	copy(opt.GradSq().Data(), g2Data)
	copy(opt.DeltaSq().Data(), d2Data)
	return nil
}

// dispatch records and submits one compute pass.
func (e *Engine) dispatch(pipeline *wgpu.ComputePipeline, entries []wgpu.BindGroupEntry, nx, ny, nz uint32) {
	bindGroup := e.be.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := e.be.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(nx, ny, nz)
	pass.End()
	e.be.queue.Submit(encoder.Finish(nil))
}

func (e *Engine) pipelineFor(name, code string) *wgpu.ComputePipeline {
	shader := e.be.compileShader(name, code)
	return e.be.getOrCreatePipeline(name, shader)
}

func (e *Engine) sampleInBytes() uint64 {
	return uint64(e.geom.InC * e.geom.H * e.geom.W * f32Size) //nolint:gosec // non-negative
}

func (e *Engine) sampleOutBytes() uint64 {
	return uint64(e.geom.OutC * e.geom.OutH() * e.geom.OutW() * f32Size) //nolint:gosec // non-negative
}

func checkFloat32(tensors ...*tensor.RawTensor) error {
	for _, t := range tensors {
		if t.DType() != tensor.Float32 {
			return fmt.Errorf("webgpu: only float32 is supported, got %s", t.DType())
		}
	}
	return nil
}

func ceilDiv(n, d int) uint32 {
	return uint32((n + d - 1) / d) //nolint:gosec // non-negative
}

// uniformAdaDelta packs the AdaDelta kernel parameters into a 16-byte uniform.
func uniformAdaDelta(n uint32, lr, rho, eps float32) []byte {
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], n)
	binary.LittleEndian.PutUint32(params[4:8], math.Float32bits(lr))
	binary.LittleEndian.PutUint32(params[8:12], math.Float32bits(rho))
	binary.LittleEndian.PutUint32(params[12:16], math.Float32bits(eps))
	return params
}
