package peel

import (
	"github.com/gogpu/peel/gpucore"
)

// AccumulationStage blends each iteration's layers into the persistent
// front and back accumulators. Front layers arrive near to far and are
// blended under; back layers arrive far to near and are blended over.
type AccumulationStage struct {
	dev        gpucore.Device
	frontAccum gpucore.TextureID
	backAccum  gpucore.TextureID

	underPipeline gpucore.PipelineID
	overPipeline  gpucore.PipelineID

	// Blit inputs reading the peel pass's layers.
	frontLayer gpucore.BindGroupID
	backLayer  gpucore.BindGroupID
}

func newAccumulationStage(dev gpucore.Device, width, height int, layers *PeelPass) (*AccumulationStage, error) {
	a := &AccumulationStage{dev: dev}
	var err error
	if a.frontAccum, err = createColorTarget(dev, "peel.accum.front", width, height); err != nil {
		return nil, a.fail(err)
	}
	if a.backAccum, err = createColorTarget(dev, "peel.accum.back", width, height); err != nil {
		return nil, a.fail(err)
	}
	if a.underPipeline, err = blitPipeline(dev, "peel.accum.under", layerFormat, gpucore.BlendUnder()); err != nil {
		return nil, a.fail(err)
	}
	if a.overPipeline, err = blitPipeline(dev, "peel.accum.over", layerFormat, gpucore.BlendOver()); err != nil {
		return nil, a.fail(err)
	}
	front, back := layers.Layers()
	if a.frontLayer, err = blitGroup(dev, "peel.layer.front", front); err != nil {
		return nil, a.fail(err)
	}
	if a.backLayer, err = blitGroup(dev, "peel.layer.back", back); err != nil {
		return nil, a.fail(err)
	}
	return a, nil
}

func (a *AccumulationStage) fail(err error) error {
	a.Release()
	return err
}

// Record blends the current layers into the accumulators. The first peel
// iteration clears the accumulators; later ones load them.
func (a *AccumulationStage) Record(enc gpucore.CommandEncoder, iteration int) {
	load := gpucore.LoadOpLoad
	if iteration <= 1 {
		load = gpucore.LoadOpClear
	}
	fullscreen(enc, "peel.accum.front",
		gpucore.ColorAttachment{Texture: a.frontAccum, LoadOp: load},
		a.underPipeline, a.frontLayer)
	fullscreen(enc, "peel.accum.back",
		gpucore.ColorAttachment{Texture: a.backAccum, LoadOp: load},
		a.overPipeline, a.backLayer)
}

// Accumulators returns the front and back accumulator textures.
func (a *AccumulationStage) Accumulators() (front, back gpucore.TextureID) {
	return a.frontAccum, a.backAccum
}

// Release destroys the stage's resources.
func (a *AccumulationStage) Release() {
	destroyBindGroups(a.dev, &a.frontLayer, &a.backLayer)
	destroyPipelines(a.dev, &a.underPipeline, &a.overPipeline)
	destroyTextures(a.dev, &a.frontAccum, &a.backAccum)
}
