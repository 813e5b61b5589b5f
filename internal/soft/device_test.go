package soft

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
	"honnef.co/go/safeish"
)

const rtUsage = gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopySrc

func mustTexture(t *testing.T, d *Device, label string, f gpucore.TextureFormat, w, h int) gpucore.TextureID {
	t.Helper()
	id, err := d.CreateTexture(&gpucore.TextureDesc{Label: label, Width: w, Height: h, Format: f, Usage: rtUsage})
	if err != nil {
		t.Fatalf("CreateTexture(%s): %v", label, err)
	}
	return id
}

func mustBuffer(t *testing.T, d *Device, size uint64, usage gpucore.BufferUsage, data []byte) gpucore.BufferID {
	t.Helper()
	id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "test", Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if data != nil {
		if err := d.WriteBuffer(id, 0, data); err != nil {
			t.Fatalf("WriteBuffer: %v", err)
		}
	}
	return id
}

func bytesOf[T any](v []T) []byte { return safeish.SliceCast[[]byte](v) }

// geometryGroup creates a frame bind group with identity transforms.
func geometryGroup(t *testing.T, d *Device, program gpucore.ProgramKind) gpucore.BindGroupID {
	t.Helper()
	frame := []gpucore.FrameUniforms{{ViewProj: mgl32.Ident4(), Params: [4]float32{4, 4, 0, 0}}}
	instances := []mgl32.Mat4{mgl32.Ident4()}
	fb := mustBuffer(t, d, gpucore.FrameUniformsSize, gpucore.BufferUsageUniform, bytesOf(frame))
	ib := mustBuffer(t, d, gpucore.InstanceSize, gpucore.BufferUsageStorage, bytesOf(instances))
	bg, err := d.CreateBindGroup(&gpucore.BindGroupDesc{
		Program: program,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Buffer: fb}, {Binding: 1, Buffer: ib}},
	})
	if err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}
	return bg
}

func quadBuffer(t *testing.T, d *Device, z float32) gpucore.BufferID {
	t.Helper()
	v := []gpucore.Vertex{
		{Position: [3]float32{-1, -1, z}}, {Position: [3]float32{1, -1, z}}, {Position: [3]float32{1, 1, z}},
		{Position: [3]float32{-1, -1, z}}, {Position: [3]float32{1, 1, z}}, {Position: [3]float32{-1, 1, z}},
	}
	return mustBuffer(t, d, uint64(len(v)*gpucore.VertexStride), gpucore.BufferUsageVertex, bytesOf(v))
}

func TestDepthInitWritesBounds(t *testing.T) {
	d := New()
	defer d.Destroy()

	bounds := mustTexture(t, d, "bounds", gpucore.TextureFormatRG32Float, 4, 4)
	blend := gpucore.BlendMax()
	pl, err := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Program: gpucore.ProgramDepthInit,
		Targets: []gpucore.ColorTargetDesc{{Format: gpucore.TextureFormatRG32Float, Blend: &blend}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}
	fg := geometryGroup(t, d, gpucore.ProgramDepthInit)
	near := quadBuffer(t, d, 0.25)
	far := quadBuffer(t, d, 0.75)

	enc, _ := d.CreateCommandEncoder("init")
	rp := enc.BeginRenderPass(&gpucore.RenderPassDesc{
		ColorAttachments: []gpucore.ColorAttachment{{Texture: bounds, LoadOp: gpucore.LoadOpClear, Clear: gpucore.Color{R: -1, G: -1}}},
	})
	rp.SetPipeline(pl)
	rp.SetBindGroup(0, fg)
	for _, vb := range []gpucore.BufferID{far, near} {
		rp.SetVertexBuffer(0, vb, 0)
		rp.Draw(6, 1, 0, 0)
	}
	rp.End()
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := d.Submit(cb); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	texels, err := d.ReadTexture(bounds)
	if err != nil {
		t.Fatalf("ReadTexture: %v", err)
	}
	for i := 0; i < len(texels); i += 4 {
		if texels[i] != -0.25 || texels[i+1] != 0.75 {
			t.Fatalf("texel %d = (%v, %v), want (-0.25, 0.75)", i/4, texels[i], texels[i+1])
		}
	}
	if s := d.Stats(); s.Draws != 2 || s.RenderPasses != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestHazardRejected(t *testing.T) {
	d := New()
	defer d.Destroy()

	tex := mustTexture(t, d, "layer", gpucore.TextureFormatRGBA16Float, 4, 4)
	pl, err := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Program: gpucore.ProgramBlit,
		Targets: []gpucore.ColorTargetDesc{{Format: gpucore.TextureFormatRGBA16Float}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}
	bg, err := d.CreateBindGroup(&gpucore.BindGroupDesc{
		Program: gpucore.ProgramBlit,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Texture: tex}},
	})
	if err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}

	enc, _ := d.CreateCommandEncoder("hazard")
	rp := enc.BeginRenderPass(&gpucore.RenderPassDesc{
		ColorAttachments: []gpucore.ColorAttachment{{Texture: tex}},
	})
	rp.SetPipeline(pl)
	rp.SetBindGroup(0, bg)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	if _, err := enc.Finish(); !errors.Is(err, gpucore.ErrResourceHazard) {
		t.Errorf("Finish error = %v, want ErrResourceHazard", err)
	}
}

func TestPipelineTargetMismatch(t *testing.T) {
	d := New()
	defer d.Destroy()

	_, err := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Program: gpucore.ProgramPeel,
		Targets: []gpucore.ColorTargetDesc{{Format: gpucore.TextureFormatRG32Float}},
	})
	if !errors.Is(err, gpucore.ErrInvalidDescriptor) {
		t.Errorf("peel pipeline with one target: err = %v", err)
	}

	restricted := New(WithBlendableFormats(gpucore.TextureFormatRGBA16Float))
	blend := gpucore.BlendMax()
	_, err = restricted.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Program: gpucore.ProgramDepthInit,
		Targets: []gpucore.ColorTargetDesc{{Format: gpucore.TextureFormatRG32Float, Blend: &blend}},
	})
	if !errors.Is(err, gpucore.ErrInvalidDescriptor) {
		t.Errorf("blending a non-blendable format: err = %v", err)
	}
}

func TestMapState(t *testing.T) {
	d := New()
	defer d.Destroy()

	buf := mustBuffer(t, d, 16, gpucore.BufferUsageMapRead|gpucore.BufferUsageQueryResolve, nil)
	if _, err := d.MapRead(buf, 0, 8); err != nil {
		t.Fatalf("MapRead: %v", err)
	}
	if !d.IsMapped(buf) {
		t.Fatal("buffer not reported as mapped")
	}
	if _, err := d.MapRead(buf, 0, 8); !errors.Is(err, gpucore.ErrBufferMapped) {
		t.Errorf("second MapRead err = %v, want ErrBufferMapped", err)
	}
	if err := d.WriteBuffer(buf, 0, []byte{1}); !errors.Is(err, gpucore.ErrBufferMapped) {
		t.Errorf("WriteBuffer while mapped err = %v, want ErrBufferMapped", err)
	}

	qs, _ := d.CreateQuerySet(&gpucore.QuerySetDesc{Count: 1})
	enc, _ := d.CreateCommandEncoder("resolve")
	enc.ResolveQuerySet(qs, 0, 1, buf, 0)
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := d.Submit(cb); !errors.Is(err, gpucore.ErrBufferMapped) {
		t.Errorf("resolve into mapped buffer err = %v, want ErrBufferMapped", err)
	}

	d.Unmap(buf)
	if d.IsMapped(buf) {
		t.Error("buffer still mapped after Unmap")
	}
}

func TestOcclusionQueryCountsInsideFragments(t *testing.T) {
	d := New()
	defer d.Destroy()

	const w, h = 4, 4
	source := mustTexture(t, d, "source", gpucore.TextureFormatRG32Float, w, h)
	dest := mustTexture(t, d, "dest", gpucore.TextureFormatRG32Float, w, h)
	front := mustTexture(t, d, "front", gpucore.TextureFormatRGBA16Float, w, h)
	back := mustTexture(t, d, "back", gpucore.TextureFormatRGBA16Float, w, h)

	blend := gpucore.BlendMax()
	initPL, _ := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Program: gpucore.ProgramDepthInit,
		Targets: []gpucore.ColorTargetDesc{{Format: gpucore.TextureFormatRG32Float, Blend: &blend}},
	})
	peelPL, err := d.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Program: gpucore.ProgramPeel,
		Targets: []gpucore.ColorTargetDesc{
			{Format: gpucore.TextureFormatRG32Float, Blend: &blend},
			{Format: gpucore.TextureFormatRGBA16Float, Blend: &blend},
			{Format: gpucore.TextureFormatRGBA16Float, Blend: &blend},
		},
	})
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}
	initFrame := geometryGroup(t, d, gpucore.ProgramDepthInit)
	peelFrame := geometryGroup(t, d, gpucore.ProgramPeel)
	mat := mustBuffer(t, d, gpucore.MaterialUniformsSize, gpucore.BufferUsageUniform,
		bytesOf([]gpucore.MaterialUniforms{{BaseColor: [4]float32{1, 0, 0, 0.5}}}))
	matGroup, _ := d.CreateBindGroup(&gpucore.BindGroupDesc{Program: gpucore.ProgramPeel, Group: 1,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Buffer: mat}}})
	srcGroup, _ := d.CreateBindGroup(&gpucore.BindGroupDesc{Program: gpucore.ProgramPeel, Group: 2,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Texture: source}}})
	qs, _ := d.CreateQuerySet(&gpucore.QuerySetDesc{Count: 1})
	readback := mustBuffer(t, d, 8, gpucore.BufferUsageMapRead|gpucore.BufferUsageQueryResolve, nil)

	quads := []gpucore.BufferID{quadBuffer(t, d, 0.2), quadBuffer(t, d, 0.4), quadBuffer(t, d, 0.6)}

	enc, _ := d.CreateCommandEncoder("peel")
	rp := enc.BeginRenderPass(&gpucore.RenderPassDesc{
		ColorAttachments: []gpucore.ColorAttachment{{Texture: source, Clear: gpucore.Color{R: -1, G: -1}}},
	})
	rp.SetPipeline(initPL)
	rp.SetBindGroup(0, initFrame)
	for _, q := range quads {
		rp.SetVertexBuffer(0, q, 0)
		rp.Draw(6, 1, 0, 0)
	}
	rp.End()

	rp = enc.BeginRenderPass(&gpucore.RenderPassDesc{
		ColorAttachments: []gpucore.ColorAttachment{
			{Texture: dest, Clear: gpucore.Color{R: -1, G: -1}},
			{Texture: front},
			{Texture: back},
		},
		OcclusionQuerySet: qs,
	})
	rp.SetPipeline(peelPL)
	rp.SetBindGroup(0, peelFrame)
	rp.SetBindGroup(1, matGroup)
	rp.SetBindGroup(2, srcGroup)
	rp.BeginOcclusionQuery(0)
	for _, q := range quads {
		rp.SetVertexBuffer(0, q, 0)
		rp.Draw(6, 1, 0, 0)
	}
	rp.EndOcclusionQuery()
	rp.End()
	enc.ResolveQuerySet(qs, 0, 1, readback, 0)
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := d.Submit(cb); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	data, err := d.MapRead(readback, 0, 8)
	if err != nil {
		t.Fatalf("MapRead: %v", err)
	}
	if got := binary.LittleEndian.Uint64(data); got != w*h {
		t.Errorf("occlusion count = %d, want %d (middle layer at every pixel)", got, w*h)
	}
	d.Unmap(readback)

	bounds, _ := d.ReadTexture(dest)
	if bounds[0] != -0.4 || bounds[1] != 0.4 {
		t.Errorf("dest bounds = (%v, %v), want (-0.4, 0.4)", bounds[0], bounds[1])
	}
	f, _ := d.ReadTexture(front)
	b, _ := d.ReadTexture(back)
	if !approx(f[3], 0.5) || !approx(b[3], 0.5) {
		t.Errorf("front alpha %v, back alpha %v; want 0.5 each", f[3], b[3])
	}
}
