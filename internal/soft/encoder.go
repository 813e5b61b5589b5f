package soft

import (
	"errors"
	"fmt"

	"github.com/gogpu/peel/gpucore"
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
	queries []uint32 // indices begun in this pass
}

type resolveCmd struct {
	set       gpucore.QuerySetID
	first     uint32
	count     uint32
	dst       gpucore.BufferID
	dstOffset uint64
}

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
		e.fail(fmt.Errorf("soft: %q: render pass begun inside another: %w", e.label, gpucore.ErrInvalidDescriptor))
	case desc == nil || len(desc.ColorAttachments) == 0:
		e.fail(fmt.Errorf("soft: %q: render pass without attachments: %w", e.label, gpucore.ErrInvalidDescriptor))
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
		e.fail(fmt.Errorf("soft: %q: resolve inside a render pass: %w", e.label, gpucore.ErrInvalidDescriptor))
		return
	}
	e.cmds = append(e.cmds, &resolveCmd{set: set, first: first, count: count, dst: dst, dstOffset: dstOffset})
}

// Finish validates the recording against the device's resources.
func (e *commandEncoder) Finish() (gpucore.CommandBuffer, error) {
	if e.finished {
		return nil, gpucore.ErrEncoderFinished
	}
	e.finished = true
	if e.pass != nil {
		e.fail(fmt.Errorf("soft: %q: render pass not ended: %w", e.label, gpucore.ErrInvalidDescriptor))
	}
	if e.err != nil {
		return nil, e.err
	}

	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	for _, c := range e.cmds {
		if p, ok := c.(*passCmd); ok {
			if err := e.dev.validatePass(p); err != nil {
				return nil, fmt.Errorf("soft: %q: %w", e.label, err)
			}
		}
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
		p.enc.fail(fmt.Errorf("soft: bind group index %d out of range: %w", index, gpucore.ErrInvalidDescriptor))
		return
	}
	p.state.groups[index] = group
}

func (p *renderPass) SetVertexBuffer(slot uint32, buf gpucore.BufferID, offset uint64) {
	if slot != 0 {
		p.enc.fail(fmt.Errorf("soft: vertex buffer slot %d: %w", slot, gpucore.ErrInvalidDescriptor))
		return
	}
	p.state.vertexBuffer = buf
	p.state.vertexOffset = offset
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p.ended {
		p.enc.fail(fmt.Errorf("soft: draw after End: %w", gpucore.ErrInvalidDescriptor))
		return
	}
	if p.state.pipeline == gpucore.InvalidID {
		p.enc.fail(fmt.Errorf("soft: draw without pipeline: %w", gpucore.ErrInvalidDescriptor))
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
		p.enc.fail(fmt.Errorf("soft: occlusion query without query set: %w", gpucore.ErrInvalidDescriptor))
	case p.query >= 0:
		p.enc.fail(fmt.Errorf("soft: nested occlusion query: %w", gpucore.ErrInvalidDescriptor))
	default:
		p.query = int64(index)
		p.cmd.queries = append(p.cmd.queries, index)
	}
}

func (p *renderPass) EndOcclusionQuery() {
	if p.query < 0 {
		p.enc.fail(fmt.Errorf("soft: EndOcclusionQuery without Begin: %w", gpucore.ErrInvalidDescriptor))
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
		p.enc.fail(fmt.Errorf("soft: render pass ended inside an occlusion query: %w", gpucore.ErrInvalidDescriptor))
	}
	if p.enc.pass == p {
		p.enc.pass = nil
	}
	cmd := p.cmd
	p.enc.cmds = append(p.enc.cmds, &cmd)
}

var errAttachment = errors.New("soft: invalid color attachment")

// validatePass checks a recorded pass. Must be called with d.mu held.
func (d *Device) validatePass(p *passCmd) error {
	attached := make(map[gpucore.TextureID]bool, len(p.desc.ColorAttachments))
	for _, a := range p.desc.ColorAttachments {
		t, ok := d.textures.Get(uint64(a.Texture))
		if !ok {
			return fmt.Errorf("%w: texture %d: %w", errAttachment, a.Texture, gpucore.ErrUnknownResource)
		}
		if t.desc.Usage&gpucore.TextureUsageRenderAttachment == 0 {
			return fmt.Errorf("%w: %q lacks RenderAttachment usage", errAttachment, t.desc.Label)
		}
		if attached[a.Texture] {
			return fmt.Errorf("%w: %q attached twice", errAttachment, t.desc.Label)
		}
		attached[a.Texture] = true
	}
	if p.desc.OcclusionQuerySet != gpucore.InvalidID {
		qs, ok := d.querySets.Get(uint64(p.desc.OcclusionQuerySet))
		if !ok {
			return fmt.Errorf("occlusion query set %d: %w", p.desc.OcclusionQuerySet, gpucore.ErrUnknownResource)
		}
		for _, q := range p.queries {
			if int(q) >= len(qs.counts) {
				return fmt.Errorf("occlusion query %d out of range: %w", q, gpucore.ErrInvalidDescriptor)
			}
		}
	}

	for i := range p.draws {
		dc := &p.draws[i]
		pl, ok := d.pipelines.Get(uint64(dc.pipeline))
		if !ok {
			return fmt.Errorf("pipeline %d: %w", dc.pipeline, gpucore.ErrUnknownResource)
		}
		if len(pl.desc.Targets) != len(p.desc.ColorAttachments) {
			return fmt.Errorf("pipeline %q has %d targets, pass %q has %d attachments: %w",
				pl.desc.Label, len(pl.desc.Targets), p.desc.Label, len(p.desc.ColorAttachments), gpucore.ErrInvalidDescriptor)
		}
		for j, a := range p.desc.ColorAttachments {
			t, _ := d.textures.Get(uint64(a.Texture))
			if t.desc.Format != pl.desc.Targets[j].Format {
				return fmt.Errorf("pipeline %q target %d is %v, attachment %q is %v: %w",
					pl.desc.Label, j, pl.desc.Targets[j].Format, t.desc.Label, t.desc.Format, gpucore.ErrInvalidDescriptor)
			}
		}
		for g := 0; g < pl.desc.Program.BindGroupCount(); g++ {
			bg, ok := d.bindGroups.Get(uint64(dc.groups[g]))
			if !ok {
				return fmt.Errorf("pipeline %q: bind group %d not set: %w", pl.desc.Label, g, gpucore.ErrUnknownResource)
			}
			if bg.desc.Program != pl.desc.Program || bg.desc.Group != uint32(g) {
				return fmt.Errorf("bind group %q does not match %v group %d: %w",
					bg.desc.Label, pl.desc.Program, g, gpucore.ErrInvalidDescriptor)
			}
			for _, e := range bg.desc.Entries {
				if e.Texture != gpucore.InvalidID && attached[e.Texture] {
					return fmt.Errorf("pass %q, bind group %q: %w", p.desc.Label, bg.desc.Label, gpucore.ErrResourceHazard)
				}
			}
		}
		if pl.desc.Program.UsesVertexBuffer() {
			if _, ok := d.buffers.Get(uint64(dc.vertexBuffer)); !ok {
				return fmt.Errorf("pipeline %q: vertex buffer not set: %w", pl.desc.Label, gpucore.ErrUnknownResource)
			}
		}
	}
	return nil
}
