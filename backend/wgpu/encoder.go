package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/wgpu/hal"
)

const maxBindGroups = 3

type drawCmd struct {
	pipeline      gpucore.PipelineID
	groups        [maxBindGroups]gpucore.BindGroupID
	vertexBuffer  gpucore.BufferID
	vertexOffset  uint64
	vertexCount   uint32
	instanceCount uint32
	firstVertex   uint32
	firstInstance uint32
	query         int64 // -1 outside an occlusion query
}

type passCmd struct {
	desc    gpucore.RenderPassDesc
	draws   []drawCmd
	queries []uint32
}

type resolveCmd struct {
	set       gpucore.QuerySetID
	first     uint32
	count     uint32
	dst       gpucore.BufferID
	dstOffset uint64
}

// commandEncoder records gpucore commands. Translation to HAL commands
// happens in Device.Submit.
type commandEncoder struct {
	dev      *Device
	label    string
	cmds     []any // *passCmd or *resolveCmd
	pass     *renderPass
	err      error
	finished bool
}

type commandBuffer struct {
	dev       *Device
	label     string
	cmds      []any
	submitted bool
}

func (c *commandBuffer) Label() string { return c.label }

func (e *commandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// BeginRenderPass starts recording a render pass.
func (e *commandEncoder) BeginRenderPass(desc *gpucore.RenderPassDesc) gpucore.RenderPassEncoder {
	p := &renderPass{enc: e, query: -1}
	switch {
	case e.finished:
		e.fail(gpucore.ErrEncoderFinished)
	case e.pass != nil:
		e.fail(fmt.Errorf("wgpu: %q: render pass begun inside another: %w", e.label, gpucore.ErrInvalidDescriptor))
	case desc == nil || len(desc.ColorAttachments) == 0:
		e.fail(fmt.Errorf("wgpu: %q: render pass without attachments: %w", e.label, gpucore.ErrInvalidDescriptor))
	default:
		p.cmd.desc = *desc
		p.cmd.desc.ColorAttachments = append([]gpucore.ColorAttachment(nil), desc.ColorAttachments...)
	}
	e.pass = p
	return p
}

// ResolveQuerySet copies occlusion counts into dst.
func (e *commandEncoder) ResolveQuerySet(set gpucore.QuerySetID, first, count uint32, dst gpucore.BufferID, dstOffset uint64) {
	if e.finished {
		e.fail(gpucore.ErrEncoderFinished)
		return
	}
	if e.pass != nil {
		e.fail(fmt.Errorf("wgpu: %q: resolve inside a render pass: %w", e.label, gpucore.ErrInvalidDescriptor))
		return
	}
	e.cmds = append(e.cmds, &resolveCmd{set: set, first: first, count: count, dst: dst, dstOffset: dstOffset})
}

// Finish ends recording.
func (e *commandEncoder) Finish() (gpucore.CommandBuffer, error) {
	if e.finished {
		return nil, gpucore.ErrEncoderFinished
	}
	e.finished = true
	if e.pass != nil {
		e.fail(fmt.Errorf("wgpu: %q: render pass not ended: %w", e.label, gpucore.ErrInvalidDescriptor))
	}
	if e.err != nil {
		return nil, e.err
	}
	return &commandBuffer{dev: e.dev, label: e.label, cmds: e.cmds}, nil
}

// Discard abandons the recording.
func (e *commandEncoder) Discard() {
	e.finished = true
	e.cmds = nil
	e.pass = nil
}

type renderPass struct {
	enc   *commandEncoder
	cmd   passCmd
	state drawCmd
	query int64
	ended bool
}

func (p *renderPass) SetPipeline(id gpucore.PipelineID) { p.state.pipeline = id }

func (p *renderPass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if index >= maxBindGroups {
		p.enc.fail(fmt.Errorf("wgpu: bind group index %d out of range: %w", index, gpucore.ErrInvalidDescriptor))
		return
	}
	p.state.groups[index] = group
}

func (p *renderPass) SetVertexBuffer(slot uint32, buf gpucore.BufferID, offset uint64) {
	if slot != 0 {
		p.enc.fail(fmt.Errorf("wgpu: vertex buffer slot %d: %w", slot, gpucore.ErrInvalidDescriptor))
		return
	}
	p.state.vertexBuffer = buf
	p.state.vertexOffset = offset
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p.ended {
		p.enc.fail(fmt.Errorf("wgpu: draw after End: %w", gpucore.ErrInvalidDescriptor))
		return
	}
	if p.state.pipeline == gpucore.InvalidID {
		p.enc.fail(fmt.Errorf("wgpu: draw without pipeline: %w", gpucore.ErrInvalidDescriptor))
		return
	}
	d := p.state
	d.vertexCount = vertexCount
	d.instanceCount = instanceCount
	d.firstVertex = firstVertex
	d.firstInstance = firstInstance
	d.query = p.query
	p.cmd.draws = append(p.cmd.draws, d)
}

func (p *renderPass) BeginOcclusionQuery(index uint32) {
	switch {
	case p.cmd.desc.OcclusionQuerySet == gpucore.InvalidID:
		p.enc.fail(fmt.Errorf("wgpu: occlusion query without query set: %w", gpucore.ErrInvalidDescriptor))
	case p.query >= 0:
		p.enc.fail(fmt.Errorf("wgpu: nested occlusion query: %w", gpucore.ErrInvalidDescriptor))
	default:
		p.query = int64(index)
		p.cmd.queries = append(p.cmd.queries, index)
	}
}

func (p *renderPass) EndOcclusionQuery() {
	if p.query < 0 {
		p.enc.fail(fmt.Errorf("wgpu: EndOcclusionQuery without Begin: %w", gpucore.ErrInvalidDescriptor))
		return
	}
	p.query = -1
}

func (p *renderPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	if p.query >= 0 {
		p.enc.fail(fmt.Errorf("wgpu: render pass ended inside an occlusion query: %w", gpucore.ErrInvalidDescriptor))
	}
	if p.enc.pass == p {
		p.enc.pass = nil
	}
	cmd := p.cmd
	p.enc.cmds = append(p.enc.cmds, &cmd)
}

// translator encodes one recorded command buffer into a HAL encoder.
// Must be used with d.mu held.
type translator struct {
	d   *Device
	enc hal.CommandEncoder
	// written collects buffers the GPU writes, stamped at submit.
	written []*buffer
	// prior holds texture states to restore if encoding fails.
	prior map[*texture]gputypes.TextureUsage
}

func loadOp(op gpucore.LoadOp) gputypes.LoadOp {
	if op == gpucore.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

// transition moves t into usage, recording a barrier when it changes.
func (tr *translator) transition(t *texture, usage gputypes.TextureUsage) {
	if t.usage == usage {
		return
	}
	if _, ok := tr.prior[t]; !ok {
		tr.prior[t] = t.usage
	}
	tr.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	}})
	t.usage = usage
}

// rollback restores the texture states of a discarded encoding.
func (tr *translator) rollback() {
	for t, u := range tr.prior {
		t.usage = u
	}
}

func (tr *translator) bufferBarrier(b hal.Buffer, from, to gputypes.BufferUsage) {
	tr.enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: b,
		Usage:  hal.BufferUsageTransition{OldUsage: from, NewUsage: to},
	}})
}

func (tr *translator) encode(cb *commandBuffer) error {
	for _, c := range cb.cmds {
		var err error
		switch c := c.(type) {
		case *passCmd:
			err = tr.encodePass(c)
		case *resolveCmd:
			err = tr.encodeResolve(c)
		}
		if err != nil {
			return fmt.Errorf("wgpu: %q: %w", cb.label, err)
		}
	}
	return nil
}

// resolvedDraw is a draw with every ID looked up.
type resolvedDraw struct {
	cmd      *drawCmd
	pipeline *pipeline
	groups   [maxBindGroups]*bindGroup
	vertex   *buffer
}

func (tr *translator) encodePass(p *passCmd) error {
	d := tr.d
	attachments := make([]hal.RenderPassColorAttachment, len(p.desc.ColorAttachments))
	attached := make(map[gpucore.TextureID]*texture, len(attachments))
	for i, a := range p.desc.ColorAttachments {
		t, ok := d.textures.Get(uint64(a.Texture))
		if !ok {
			return fmt.Errorf("pass %q attachment %d: %w", p.desc.Label, i, gpucore.ErrUnknownResource)
		}
		if t.desc.Usage&gpucore.TextureUsageRenderAttachment == 0 {
			return fmt.Errorf("pass %q: %q lacks RenderAttachment usage: %w", p.desc.Label, t.desc.Label, gpucore.ErrInvalidDescriptor)
		}
		if attached[a.Texture] != nil {
			return fmt.Errorf("pass %q: %q attached twice: %w", p.desc.Label, t.desc.Label, gpucore.ErrInvalidDescriptor)
		}
		attached[a.Texture] = t
		attachments[i] = hal.RenderPassColorAttachment{
			View:       t.view,
			LoadOp:     loadOp(a.LoadOp),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: a.Clear.R, G: a.Clear.G, B: a.Clear.B, A: a.Clear.A},
		}
	}

	qs := d.scratch
	if p.desc.OcclusionQuerySet != gpucore.InvalidID {
		var ok bool
		if qs, ok = d.querySets.Get(uint64(p.desc.OcclusionQuerySet)); !ok {
			return fmt.Errorf("pass %q occlusion query set: %w", p.desc.Label, gpucore.ErrUnknownResource)
		}
		for _, q := range p.queries {
			if q >= qs.count {
				return fmt.Errorf("pass %q: occlusion query %d out of range: %w", p.desc.Label, q, gpucore.ErrInvalidDescriptor)
			}
		}
	}

	draws := make([]resolvedDraw, len(p.draws))
	for i := range p.draws {
		rd, err := tr.resolveDraw(p, &p.draws[i], attached)
		if err != nil {
			return err
		}
		draws[i] = rd
	}

	// Barriers and counter resets must precede the pass.
	for _, t := range attached {
		tr.transition(t, gputypes.TextureUsageRenderAttachment)
	}
	for _, rd := range draws {
		for _, g := range rd.groups {
			if g == nil {
				continue
			}
			for _, id := range g.textures {
				if t, ok := d.textures.Get(uint64(id)); ok {
					tr.transition(t, gputypes.TextureUsageTextureBinding)
				}
			}
		}
	}
	if len(p.queries) > 0 {
		tr.bufferBarrier(qs.buf, gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc, gputypes.BufferUsageCopyDst)
		for _, q := range p.queries {
			tr.enc.ClearBuffer(qs.buf, uint64(q)*querySlotStride, 4)
		}
		tr.bufferBarrier(qs.buf, gputypes.BufferUsageCopyDst, gputypes.BufferUsageStorage)
	}

	rp := tr.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            p.desc.Label,
		ColorAttachments: attachments,
	})
	for _, rd := range draws {
		rp.SetPipeline(rd.pipeline.rp)
		prog := rd.pipeline.desc.Program
		for g := 0; g < prog.BindGroupCount(); g++ {
			rp.SetBindGroup(uint32(g), rd.groups[g].group, nil)
		}
		if prog == gpucore.ProgramPeel {
			if rd.cmd.query >= 0 {
				rp.SetBindGroup(occlusionGroup, qs.group, []uint32{uint32(rd.cmd.query) * querySlotStride})
			} else {
				rp.SetBindGroup(occlusionGroup, d.scratch.group, []uint32{0})
			}
		}
		if rd.vertex != nil {
			rp.SetVertexBuffer(0, rd.vertex.buf, rd.cmd.vertexOffset)
		}
		rp.Draw(rd.cmd.vertexCount, rd.cmd.instanceCount, rd.cmd.firstVertex, rd.cmd.firstInstance)
	}
	rp.End()
	return nil
}

func (tr *translator) resolveDraw(p *passCmd, dc *drawCmd, attached map[gpucore.TextureID]*texture) (resolvedDraw, error) {
	d := tr.d
	rd := resolvedDraw{cmd: dc}
	pl, ok := d.pipelines.Get(uint64(dc.pipeline))
	if !ok {
		return rd, fmt.Errorf("pipeline %d: %w", dc.pipeline, gpucore.ErrUnknownResource)
	}
	rd.pipeline = pl
	if len(pl.desc.Targets) != len(p.desc.ColorAttachments) {
		return rd, fmt.Errorf("pipeline %q has %d targets, pass %q has %d attachments: %w",
			pl.desc.Label, len(pl.desc.Targets), p.desc.Label, len(p.desc.ColorAttachments), gpucore.ErrInvalidDescriptor)
	}
	for j, a := range p.desc.ColorAttachments {
		if f := attached[a.Texture].desc.Format; f != pl.desc.Targets[j].Format {
			return rd, fmt.Errorf("pipeline %q target %d is %v, attachment is %v: %w",
				pl.desc.Label, j, pl.desc.Targets[j].Format, f, gpucore.ErrInvalidDescriptor)
		}
	}
	for g := 0; g < pl.desc.Program.BindGroupCount(); g++ {
		bg, ok := d.bindGroups.Get(uint64(dc.groups[g]))
		if !ok {
			return rd, fmt.Errorf("pipeline %q: bind group %d not set: %w", pl.desc.Label, g, gpucore.ErrUnknownResource)
		}
		if bg.desc.Program != pl.desc.Program || bg.desc.Group != uint32(g) {
			return rd, fmt.Errorf("bind group %q does not match %v group %d: %w",
				bg.desc.Label, pl.desc.Program, g, gpucore.ErrInvalidDescriptor)
		}
		for _, id := range bg.textures {
			if attached[id] != nil {
				return rd, fmt.Errorf("pass %q, bind group %q: %w", p.desc.Label, bg.desc.Label, gpucore.ErrResourceHazard)
			}
		}
		rd.groups[g] = bg
	}
	if pl.desc.Program.UsesVertexBuffer() {
		vb, ok := d.buffers.Get(uint64(dc.vertexBuffer))
		if !ok {
			return rd, fmt.Errorf("pipeline %q: vertex buffer not set: %w", pl.desc.Label, gpucore.ErrUnknownResource)
		}
		rd.vertex = vb
	}
	return rd, nil
}

// encodeResolve widens the 32-bit counters to little-endian uint64 results.
func (tr *translator) encodeResolve(r *resolveCmd) error {
	d := tr.d
	qs, ok := d.querySets.Get(uint64(r.set))
	if !ok {
		return fmt.Errorf("resolve: query set %d: %w", r.set, gpucore.ErrUnknownResource)
	}
	b, ok := d.buffers.Get(uint64(r.dst))
	if !ok {
		return fmt.Errorf("resolve: buffer %d: %w", r.dst, gpucore.ErrUnknownResource)
	}
	if b.mapped {
		return fmt.Errorf("resolve into %q: %w", b.desc.Label, gpucore.ErrBufferMapped)
	}
	if b.desc.Usage&gpucore.BufferUsageQueryResolve == 0 {
		return fmt.Errorf("resolve into %q without QueryResolve usage: %w", b.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	size := uint64(r.count) * gpucore.QueryResultSize
	if uint64(r.first)+uint64(r.count) > uint64(qs.count) || r.dstOffset+size > b.desc.Size {
		return fmt.Errorf("resolve range out of bounds: %w", gpucore.ErrInvalidDescriptor)
	}

	tr.enc.ClearBuffer(b.buf, r.dstOffset, size)
	tr.bufferBarrier(b.buf, gputypes.BufferUsageCopyDst, gputypes.BufferUsageCopyDst)
	tr.bufferBarrier(qs.buf, gputypes.BufferUsageStorage, gputypes.BufferUsageCopySrc)
	regions := make([]hal.BufferCopy, r.count)
	for i := range regions {
		regions[i] = hal.BufferCopy{
			SrcOffset: uint64(r.first+uint32(i)) * querySlotStride,
			DstOffset: r.dstOffset + uint64(i)*gpucore.QueryResultSize,
			Size:      4,
		}
	}
	tr.enc.CopyBufferToBuffer(qs.buf, b.buf, regions)
	tr.bufferBarrier(b.buf, gputypes.BufferUsageCopyDst, gputypes.BufferUsageMapRead)
	tr.written = append(tr.written, b)
	return nil
}
