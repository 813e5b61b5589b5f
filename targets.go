package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
)

// layerFormat is the format of the layer and accumulator textures.
const layerFormat = gpucore.TextureFormatRGBA16Float

func createColorTarget(dev gpucore.Device, label string, width, height int) (gpucore.TextureID, error) {
	id, err := dev.CreateTexture(&gpucore.TextureDesc{
		Label:  label,
		Width:  width,
		Height: height,
		Format: layerFormat,
		Usage: gpucore.TextureUsageRenderAttachment |
			gpucore.TextureUsageTextureBinding |
			gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("peel: create %s: %w", label, err)
	}
	return id, nil
}

func blitGroup(dev gpucore.Device, label string, tex gpucore.TextureID) (gpucore.BindGroupID, error) {
	id, err := dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   label,
		Program: gpucore.ProgramBlit,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Texture: tex}},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("peel: bind %s: %w", label, err)
	}
	return id, nil
}

func blitPipeline(dev gpucore.Device, label string, format gpucore.TextureFormat, blend gpucore.BlendState) (gpucore.PipelineID, error) {
	id, err := dev.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:   label,
		Program: gpucore.ProgramBlit,
		Targets: []gpucore.ColorTargetDesc{{Format: format, Blend: &blend}},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("peel: %s pipeline: %w", label, err)
	}
	return id, nil
}

// fullscreen records one pass drawing a fullscreen triangle.
func fullscreen(enc gpucore.CommandEncoder, label string, target gpucore.ColorAttachment,
	pipeline gpucore.PipelineID, group gpucore.BindGroupID) {
	rp := enc.BeginRenderPass(&gpucore.RenderPassDesc{
		Label:            label,
		ColorAttachments: []gpucore.ColorAttachment{target},
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, group)
	rp.Draw(3, 1, 0, 0)
	rp.End()
}

func destroyTextures(dev gpucore.Device, ids ...*gpucore.TextureID) {
	for _, id := range ids {
		if *id != gpucore.InvalidID {
			dev.DestroyTexture(*id)
			*id = gpucore.InvalidID
		}
	}
}

func destroyPipelines(dev gpucore.Device, ids ...*gpucore.PipelineID) {
	for _, id := range ids {
		if *id != gpucore.InvalidID {
			dev.DestroyRenderPipeline(*id)
			*id = gpucore.InvalidID
		}
	}
}

func destroyBindGroups(dev gpucore.Device, ids ...*gpucore.BindGroupID) {
	for _, id := range ids {
		if *id != gpucore.InvalidID {
			dev.DestroyBindGroup(*id)
			*id = gpucore.InvalidID
		}
	}
}

func destroyBuffers(dev gpucore.Device, ids ...*gpucore.BufferID) {
	for _, id := range ids {
		if *id != gpucore.InvalidID {
			dev.DestroyBuffer(*id)
			*id = gpucore.InvalidID
		}
	}
}
