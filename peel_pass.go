package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
)

// noQuery marks a pass recorded without an occlusion query.
const noQuery = -1

// PassContext carries everything one depth bounds pass binds. It is
// filled by the frame loop and passed explicitly to each stage, so no
// binding state survives from one pass to the next.
type PassContext struct {
	Encoder   gpucore.CommandEncoder
	Iteration int
	Buffers   BufferPair

	// Frame is the group 0 bind group (frame uniforms, instances) for
	// the program being recorded.
	Frame gpucore.BindGroupID

	// QuerySet and Query select the occlusion query wrapping the draws.
	// Query is noQuery for passes that are not counted.
	QuerySet gpucore.QuerySetID
	Query    int

	batch *frozenBatch
}

// PeelPass records the init pass and the peel passes. It owns the front
// and back layer textures, which are cleared by every peel pass.
type PeelPass struct {
	dev   gpucore.Device
	front gpucore.TextureID
	back  gpucore.TextureID

	initPipeline gpucore.PipelineID
	peelPipeline gpucore.PipelineID
}

func newPeelPass(dev gpucore.Device, width, height int, boundsFormat gpucore.TextureFormat) (*PeelPass, error) {
	p := &PeelPass{dev: dev}
	var err error
	if p.front, err = createColorTarget(dev, "peel.layer.front", width, height); err != nil {
		p.Release()
		return nil, err
	}
	if p.back, err = createColorTarget(dev, "peel.layer.back", width, height); err != nil {
		p.Release()
		return nil, err
	}

	maxBlend := gpucore.BlendMax()
	p.initPipeline, err = dev.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:   "peel.init",
		Program: gpucore.ProgramDepthInit,
		Targets: []gpucore.ColorTargetDesc{{Format: boundsFormat, Blend: &maxBlend}},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("peel: init pipeline: %w", err)
	}
	p.peelPipeline, err = dev.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:   "peel.peel",
		Program: gpucore.ProgramPeel,
		Targets: []gpucore.ColorTargetDesc{
			{Format: boundsFormat, Blend: &maxBlend},
			{Format: layerFormat, Blend: &maxBlend},
			{Format: layerFormat, Blend: &maxBlend},
		},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("peel: peel pipeline: %w", err)
	}
	return p, nil
}

// RecordInit records the init pass: every fragment of the batch is merged
// into ctx.Buffers.Dest, producing the outermost bounds (-nearest, farthest).
func (p *PeelPass) RecordInit(ctx *PassContext) {
	rp := ctx.Encoder.BeginRenderPass(&gpucore.RenderPassDesc{
		Label: "peel.init",
		ColorAttachments: []gpucore.ColorAttachment{
			{Texture: ctx.Buffers.Dest, LoadOp: gpucore.LoadOpClear, Clear: boundsClear},
		},
	})
	rp.SetPipeline(p.initPipeline)
	rp.SetBindGroup(0, ctx.Frame)
	for _, d := range ctx.batch.draws {
		rp.SetVertexBuffer(0, d.vertexBuffer, 0)
		rp.Draw(d.vertexCount, d.instanceCount, 0, d.instanceOffset)
	}
	rp.End()
}

// Record records one peel iteration. Fragments at the source bounds go
// to the front or back layer; fragments strictly inside them extend the
// destination bounds and are counted by the occlusion query.
func (p *PeelPass) Record(ctx *PassContext) {
	desc := &gpucore.RenderPassDesc{
		Label: fmt.Sprintf("peel.iteration.%d", ctx.Iteration),
		ColorAttachments: []gpucore.ColorAttachment{
			{Texture: ctx.Buffers.Dest, LoadOp: gpucore.LoadOpClear, Clear: boundsClear},
			{Texture: p.front, LoadOp: gpucore.LoadOpClear},
			{Texture: p.back, LoadOp: gpucore.LoadOpClear},
		},
	}
	if ctx.Query != noQuery {
		desc.OcclusionQuerySet = ctx.QuerySet
	}
	rp := ctx.Encoder.BeginRenderPass(desc)
	rp.SetPipeline(p.peelPipeline)
	rp.SetBindGroup(0, ctx.Frame)
	rp.SetBindGroup(2, ctx.Buffers.SourceGroup)
	if ctx.Query != noQuery {
		rp.BeginOcclusionQuery(uint32(ctx.Query))
	}
	for _, d := range ctx.batch.draws {
		rp.SetBindGroup(1, d.material)
		rp.SetVertexBuffer(0, d.vertexBuffer, 0)
		rp.Draw(d.vertexCount, d.instanceCount, 0, d.instanceOffset)
	}
	if ctx.Query != noQuery {
		rp.EndOcclusionQuery()
	}
	rp.End()
}

// Layers returns the front and back layer textures.
func (p *PeelPass) Layers() (front, back gpucore.TextureID) { return p.front, p.back }

// Release destroys the pass's textures and pipelines.
func (p *PeelPass) Release() {
	destroyPipelines(p.dev, &p.initPipeline, &p.peelPipeline)
	destroyTextures(p.dev, &p.front, &p.back)
}
