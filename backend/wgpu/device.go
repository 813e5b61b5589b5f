package wgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// readbackTimeout bounds how long MapRead and ReadTexture wait for the GPU.
const readbackTimeout = 5 * time.Second

type texture struct {
	desc gpucore.TextureDesc
	tex  hal.Texture
	view hal.TextureView
	// usage is the state the last submitted command buffer left the texture in.
	usage gputypes.TextureUsage
}

type buffer struct {
	desc   gpucore.BufferDesc
	buf    hal.Buffer
	mapped bool
	// written is the submission index of the last command buffer that
	// wrote the buffer on the GPU.
	written uint64
}

type pipeline struct {
	desc gpucore.RenderPipelineDesc
	rp   hal.RenderPipeline
}

type bindGroup struct {
	desc     gpucore.BindGroupDesc
	group    hal.BindGroup
	textures []gpucore.TextureID
}

// querySet emulates occlusion queries with atomic counters in a storage
// buffer, one counter per querySlotStride bytes.
type querySet struct {
	count uint32
	buf   hal.Buffer
	group hal.BindGroup
}

type inflight struct {
	index uint64
	cmd   hal.CommandBuffer
}

// Option configures a Device.
type Option func(*config)

type config struct {
	adapter hal.Adapter
	limits  gputypes.Limits
	name    string
	spirv   bool
}

// WithAdapter reports blendable formats from the adapter's texture format
// capabilities. Without an adapter only formats WebGPU guarantees to be
// blendable are reported: RGBA8Unorm, RG16Float and RGBA16Float.
func WithAdapter(a hal.Adapter) Option {
	return func(c *config) { c.adapter = a }
}

// WithLimits sets the limits the device was opened with.
func WithLimits(l gputypes.Limits) Option {
	return func(c *config) { c.limits = l }
}

// WithName sets the device name reported in Caps.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithSPIRV compiles shaders to SPIR-V with naga before creating shader
// modules. Use it for Vulkan devices.
func WithSPIRV(enabled bool) Option {
	return func(c *config) { c.spirv = enabled }
}

// Device is a gpucore.Device backed by a gogpu/wgpu HAL device.
//
// Thread Safety: Device is safe for concurrent use. Encoders are not.
type Device struct {
	mu    sync.Mutex
	dev   hal.Device
	queue hal.Queue
	caps  gpucore.Caps
	spirv bool

	// owned resources are destroyed by Destroy
	instance hal.Instance
	owned    bool

	programs   map[gpucore.ProgramKind]*program
	textures   gpucore.Arena[*texture]
	buffers    gpucore.Arena[*buffer]
	pipelines  gpucore.Arena[*pipeline]
	bindGroups gpucore.Arena[*bindGroup]
	querySets  gpucore.Arena[*querySet]

	// scratch receives the counts of peel draws outside an occlusion query.
	scratch *querySet

	inflight  []inflight
	destroyed bool
}

var _ gpucore.Device = (*Device)(nil)

// candidateFormats are the formats peel renders to.
var candidateFormats = []gpucore.TextureFormat{
	gpucore.TextureFormatRGBA8Unorm,
	gpucore.TextureFormatRG16Float,
	gpucore.TextureFormatRG32Float,
	gpucore.TextureFormatRGBA16Float,
	gpucore.TextureFormatRGBA32Float,
}

// NewFromHAL wraps an open HAL device and queue. The device is not owned:
// Destroy releases only the resources created through the returned Device.
func NewFromHAL(dev hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil HAL device or queue: %w", gpucore.ErrInvalidDescriptor)
	}
	c := config{limits: gputypes.DefaultLimits(), name: "wgpu"}
	for _, opt := range opts {
		opt(&c)
	}

	d := &Device{
		dev:      dev,
		queue:    queue,
		spirv:    c.spirv,
		programs: make(map[gpucore.ProgramKind]*program),
		caps: gpucore.Caps{
			Name:                c.name,
			MaxTextureDimension: int(c.limits.MaxTextureDimension2D),
			BlendableFormats:    blendableFormats(c.adapter),
		},
	}
	var err error
	if d.scratch, err = d.newQuerySet("peel_occlusion_scratch", 1); err != nil {
		return nil, err
	}
	return d, nil
}

// blendableFormats asks the adapter which candidate formats can be blended
// render targets.
func blendableFormats(a hal.Adapter) []gpucore.TextureFormat {
	if a == nil {
		return []gpucore.TextureFormat{
			gpucore.TextureFormatRGBA8Unorm,
			gpucore.TextureFormatRG16Float,
			gpucore.TextureFormatRGBA16Float,
		}
	}
	const need = hal.TextureFormatCapabilityRenderAttachment | hal.TextureFormatCapabilityBlendable
	var out []gpucore.TextureFormat
	for _, f := range candidateFormats {
		if a.TextureFormatCapabilities(textureFormat(f)).Flags&need == need {
			out = append(out, f)
		}
	}
	return out
}

// SetLogger sets the logger used by the wgpu device.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// HAL returns the underlying HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

// Caps returns the device capabilities.
func (d *Device) Caps() gpucore.Caps {
	c := d.caps
	c.BlendableFormats = append([]gpucore.TextureFormat(nil), d.caps.BlendableFormats...)
	return c
}

func textureFormat(f gpucore.TextureFormat) gputypes.TextureFormat {
	switch f {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case gpucore.TextureFormatRG16Float:
		return gputypes.TextureFormatRG16Float
	case gpucore.TextureFormatRG32Float:
		return gputypes.TextureFormatRG32Float
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatUndefined
	}
}

func textureUsage(u gpucore.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&gpucore.TextureUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&gpucore.TextureUsageTextureBinding != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&gpucore.TextureUsageRenderAttachment != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

func bufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageMapRead != 0 {
		out |= gputypes.BufferUsageMapRead
	}
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	// Query results are resolved with buffer copies.
	if u&(gpucore.BufferUsageCopyDst|gpucore.BufferUsageQueryResolve) != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageVertex != 0 {
		out |= gputypes.BufferUsageVertex
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	return out
}

// CreateTexture creates a 2D texture and its default view.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 || desc.Format.Channels() == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture descriptor: %w", gpucore.ErrInvalidDescriptor)
	}
	if m := d.caps.MaxTextureDimension; m > 0 && (desc.Width > m || desc.Height > m) {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture %q size %dx%d exceeds %d: %w",
			desc.Label, desc.Width, desc.Height, m, gpucore.ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        textureFormat(desc.Format),
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("wgpu: create texture view %q: %w", desc.Label, err)
	}
	return gpucore.TextureID(d.textures.Insert(&texture{desc: *desc, tex: tex, view: view})), nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures.Remove(uint64(id)); ok {
		d.destroyTexture(t)
	}
}

func (d *Device) destroyTexture(t *texture) {
	d.dev.DestroyTextureView(t.view)
	d.dev.DestroyTexture(t.tex)
}

// CreateBuffer creates a buffer. Sizes are rounded up to 4 bytes.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: empty buffer: %w", gpucore.ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  align(desc.Size, 4),
		Usage: bufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return gpucore.BufferID(d.buffers.Insert(&buffer{desc: *desc, buf: buf})), nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers.Remove(uint64(id)); ok {
		d.destroyBuffer(b)
	}
}

func (d *Device) destroyBuffer(b *buffer) {
	if b.mapped {
		_ = d.dev.UnmapBuffer(b.buf)
	}
	d.dev.DestroyBuffer(b.buf)
}

// WriteBuffer writes data through the queue ahead of later submissions.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return fmt.Errorf("wgpu: write buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if b.mapped {
		return fmt.Errorf("wgpu: write buffer %q: %w", b.desc.Label, gpucore.ErrBufferMapped)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("wgpu: write of %d bytes at %d overflows buffer %q (%d bytes): %w",
			len(data), offset, b.desc.Label, b.desc.Size, gpucore.ErrInvalidDescriptor)
	}
	if err := d.queue.WriteBuffer(b.buf, offset, data); err != nil {
		return fmt.Errorf("wgpu: write buffer %q: %w", b.desc.Label, err)
	}
	return nil
}

func targetCount(k gpucore.ProgramKind) int {
	if k == gpucore.ProgramPeel {
		return 3
	}
	return 1
}

// CreateRenderPipeline creates a pipeline running one of the fixed programs.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.PipelineID, error) {
	if desc == nil || desc.Program.BindGroupCount() == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: unknown program: %w", gpucore.ErrInvalidDescriptor)
	}
	if len(desc.Targets) != targetCount(desc.Program) {
		return gpucore.InvalidID, fmt.Errorf("wgpu: pipeline %q: program %v needs %d targets, got %d: %w",
			desc.Label, desc.Program, targetCount(desc.Program), len(desc.Targets), gpucore.ErrInvalidDescriptor)
	}
	targets := make([]gputypes.ColorTargetState, len(desc.Targets))
	for i, t := range desc.Targets {
		if t.Blend != nil && !d.caps.CanBlend(t.Format) {
			return gpucore.InvalidID, fmt.Errorf("wgpu: pipeline %q target %d: %v is not blendable: %w",
				desc.Label, i, t.Format, gpucore.ErrInvalidDescriptor)
		}
		targets[i] = gputypes.ColorTargetState{
			Format:    textureFormat(t.Format),
			Blend:     convertBlend(t.Blend),
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	prog, err := d.loadProgram(desc.Program)
	if err != nil {
		return gpucore.InvalidID, err
	}
	vertex := hal.VertexState{Module: prog.module, EntryPoint: "vs_main"}
	if desc.Program.UsesVertexBuffer() {
		vertex.Buffers = vertexLayout
	}
	rp, err := d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: prog.layout,
		Vertex: vertex,
		Fragment: &hal.FragmentState{
			Module:     prog.module,
			EntryPoint: "fs_main",
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create pipeline %q: %w", desc.Label, err)
	}
	p := &pipeline{desc: *desc, rp: rp}
	p.desc.Targets = append([]gpucore.ColorTargetDesc(nil), desc.Targets...)
	return gpucore.PipelineID(d.pipelines.Insert(p)), nil
}

// DestroyRenderPipeline releases a pipeline.
func (d *Device) DestroyRenderPipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines.Remove(uint64(id)); ok {
		d.dev.DestroyRenderPipeline(p.rp)
	}
}

// CreateBindGroup creates a bind group for one group slot of a program.
func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil || int(desc.Group) >= desc.Program.BindGroupCount() {
		return gpucore.InvalidID, fmt.Errorf("wgpu: bind group outside program layout: %w", gpucore.ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	prog, err := d.loadProgram(desc.Program)
	if err != nil {
		return gpucore.InvalidID, err
	}

	g := &bindGroup{desc: *desc}
	g.desc.Entries = append([]gpucore.BindGroupEntry(nil), desc.Entries...)
	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		switch {
		case e.Buffer != gpucore.InvalidID:
			b, ok := d.buffers.Get(uint64(e.Buffer))
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: buffer %d: %w",
					desc.Label, e.Binding, e.Buffer, gpucore.ErrUnknownResource)
			}
			size := e.Size
			if size == 0 {
				size = b.desc.Size - e.Offset
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: e.Offset, Size: size},
			})
		case e.Texture != gpucore.InvalidID:
			t, ok := d.textures.Get(uint64(e.Texture))
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: texture %d: %w",
					desc.Label, e.Binding, e.Texture, gpucore.ErrUnknownResource)
			}
			if t.desc.Usage&gpucore.TextureUsageTextureBinding == 0 {
				return gpucore.InvalidID, fmt.Errorf("wgpu: bind group %q: texture %q lacks TextureBinding usage: %w",
					desc.Label, t.desc.Label, gpucore.ErrInvalidDescriptor)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
			})
			g.textures = append(g.textures, e.Texture)
		default:
			return gpucore.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d is empty: %w",
				desc.Label, e.Binding, gpucore.ErrInvalidDescriptor)
		}
	}

	g.group, err = d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  prog.groups[desc.Group],
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group %q: %w", desc.Label, err)
	}
	return gpucore.BindGroupID(d.bindGroups.Insert(g)), nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.bindGroups.Remove(uint64(id)); ok {
		d.dev.DestroyBindGroup(g.group)
	}
}

// newQuerySet allocates count occlusion counters and their bind group.
// Must be called with d.mu held, or before the device is shared.
func (d *Device) newQuerySet(label string, count uint32) (*querySet, error) {
	prog, err := d.loadProgram(gpucore.ProgramPeel)
	if err != nil {
		return nil, err
	}
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(count) * querySlotStride,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create query set %q: %w", label, err)
	}
	group, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label + "_group",
		Layout: prog.groups[occlusionGroup],
		Entries: []gputypes.BindGroupEntry{{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: 4},
		}},
	})
	if err != nil {
		d.dev.DestroyBuffer(buf)
		return nil, fmt.Errorf("wgpu: bind query set %q: %w", label, err)
	}
	return &querySet{count: count, buf: buf, group: group}, nil
}

func (d *Device) destroyQuerySet(q *querySet) {
	d.dev.DestroyBindGroup(q.group)
	d.dev.DestroyBuffer(q.buf)
}

// CreateQuerySet allocates occlusion counters.
func (d *Device) CreateQuerySet(desc *gpucore.QuerySetDesc) (gpucore.QuerySetID, error) {
	if desc == nil || desc.Count == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: empty query set: %w", gpucore.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	q, err := d.newQuerySet(desc.Label, desc.Count)
	if err != nil {
		return gpucore.InvalidID, err
	}
	return gpucore.QuerySetID(d.querySets.Insert(q)), nil
}

// DestroyQuerySet releases a query set.
func (d *Device) DestroyQuerySet(id gpucore.QuerySetID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.querySets.Remove(uint64(id)); ok {
		d.destroyQuerySet(q)
	}
}

// CreateCommandEncoder starts a recording. Commands are translated to HAL
// commands at Submit, so texture state follows submission order.
func (d *Device) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	return &commandEncoder{dev: d, label: label}, nil
}

// Destroy releases every resource created through the device, and the HAL
// device itself when the Device opened it.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	if err := d.dev.WaitIdle(); err != nil {
		slogger().Warn("wgpu: wait idle before destroy", "err", err)
	}
	d.retire(^uint64(0))

	d.bindGroups.All(func(_ uint64, g *bindGroup) bool {
		d.dev.DestroyBindGroup(g.group)
		return true
	})
	d.bindGroups.Clear()
	d.pipelines.All(func(_ uint64, p *pipeline) bool {
		d.dev.DestroyRenderPipeline(p.rp)
		return true
	})
	d.pipelines.Clear()
	d.querySets.All(func(_ uint64, q *querySet) bool {
		d.destroyQuerySet(q)
		return true
	})
	d.querySets.Clear()
	if d.scratch != nil {
		d.destroyQuerySet(d.scratch)
		d.scratch = nil
	}
	d.buffers.All(func(_ uint64, b *buffer) bool {
		d.destroyBuffer(b)
		return true
	})
	d.buffers.Clear()
	d.textures.All(func(_ uint64, t *texture) bool {
		d.destroyTexture(t)
		return true
	})
	d.textures.Clear()
	for k, p := range d.programs {
		d.destroyProgram(p)
		delete(d.programs, k)
	}

	if d.owned {
		d.dev.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}

func align(n, a uint64) uint64 { return (n + a - 1) &^ (a - 1) }
