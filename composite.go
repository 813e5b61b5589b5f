package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
)

// Compositor merges the accumulators and the background into the
// surface texture. Every draw blends under what is already there, so the
// front accumulator wins over the back one, and both win over the
// background.
type Compositor struct {
	dev    gpucore.Device
	format gpucore.TextureFormat

	underPipeline gpucore.PipelineID
	skyPipeline   gpucore.PipelineID

	frontAccum gpucore.BindGroupID
	backAccum  gpucore.BindGroupID
	sky        gpucore.BindGroupID
}

func newCompositor(dev gpucore.Device, format gpucore.TextureFormat, accum *AccumulationStage, frameUniforms gpucore.BufferID) (*Compositor, error) {
	c := &Compositor{dev: dev, format: format}
	var err error
	if c.underPipeline, err = blitPipeline(dev, "peel.composite", format, gpucore.BlendUnder()); err != nil {
		return nil, c.fail(err)
	}
	under := gpucore.BlendUnder()
	c.skyPipeline, err = dev.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:   "peel.background",
		Program: gpucore.ProgramSky,
		Targets: []gpucore.ColorTargetDesc{{Format: format, Blend: &under}},
	})
	if err != nil {
		return nil, c.fail(fmt.Errorf("peel: background pipeline: %w", err))
	}
	front, back := accum.Accumulators()
	if c.frontAccum, err = blitGroup(dev, "peel.accum.front", front); err != nil {
		return nil, c.fail(err)
	}
	if c.backAccum, err = blitGroup(dev, "peel.accum.back", back); err != nil {
		return nil, c.fail(err)
	}
	c.sky, err = dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "peel.background",
		Program: gpucore.ProgramSky,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Buffer: frameUniforms, Size: gpucore.FrameUniformsSize}},
	})
	if err != nil {
		return nil, c.fail(fmt.Errorf("peel: bind background: %w", err))
	}
	return c, nil
}

func (c *Compositor) fail(err error) error {
	c.Release()
	return err
}

// Record composites into target: front accumulator onto a cleared
// target, then the back accumulator, then the background unless
// withBackground is false.
func (c *Compositor) Record(enc gpucore.CommandEncoder, target gpucore.TextureID, withBackground bool) {
	fullscreen(enc, "peel.composite.front",
		gpucore.ColorAttachment{Texture: target, LoadOp: gpucore.LoadOpClear},
		c.underPipeline, c.frontAccum)
	fullscreen(enc, "peel.composite.back",
		gpucore.ColorAttachment{Texture: target, LoadOp: gpucore.LoadOpLoad},
		c.underPipeline, c.backAccum)
	if withBackground {
		fullscreen(enc, "peel.composite.background",
			gpucore.ColorAttachment{Texture: target, LoadOp: gpucore.LoadOpLoad},
			c.skyPipeline, c.sky)
	}
}

// Release destroys the compositor's pipelines and bind groups.
func (c *Compositor) Release() {
	destroyBindGroups(c.dev, &c.frontAccum, &c.backAccum, &c.sky)
	destroyPipelines(c.dev, &c.underPipeline, &c.skyPipeline)
}
