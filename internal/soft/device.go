// Package soft implements gpucore.Device on the CPU.
//
// The device records commands like a GPU command encoder and executes them
// on Submit. Rasterization follows WebGPU conventions: pixel centers at
// half-integer coordinates, the top-left fill rule, clip-space depth in
// [0, w], and framebuffer y pointing down. Texels are stored as float32 and
// quantized to their texture format on every write, so half-float targets
// behave like their GPU counterparts.
//
// The device validates what a GPU driver would reject: textures bound as
// shader input and color attachment in one pass, writes to mapped buffers,
// and pipeline/attachment mismatches.
package soft

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/peel/gpucore"
	"honnef.co/go/safeish"
)

type texture struct {
	desc   gpucore.TextureDesc
	texels []float32 // 4 per texel, quantized to desc.Format
}

func (t *texture) index(x, y int) int { return (y*t.desc.Width + x) * 4 }

type buffer struct {
	desc   gpucore.BufferDesc
	data   []byte
	mapped bool
}

type pipeline struct {
	desc gpucore.RenderPipelineDesc
}

type bindGroup struct {
	desc gpucore.BindGroupDesc
}

type querySet struct {
	counts []uint64
}

// Option configures a Device.
type Option func(*Device)

// WithBlendableFormats restricts the formats reported as blendable.
// Used to emulate adapters without float32 blending.
func WithBlendableFormats(formats ...gpucore.TextureFormat) Option {
	return func(d *Device) {
		d.caps.BlendableFormats = append([]gpucore.TextureFormat(nil), formats...)
	}
}

// WithMaxTextureDimension sets the largest accepted texture edge.
func WithMaxTextureDimension(n int) Option {
	return func(d *Device) {
		d.caps.MaxTextureDimension = n
	}
}

// Device is a software gpucore.Device.
//
// Thread Safety: Device is safe for concurrent use. Encoders are not.
type Device struct {
	mu   sync.Mutex
	caps gpucore.Caps

	textures   gpucore.Arena[*texture]
	buffers    gpucore.Arena[*buffer]
	pipelines  gpucore.Arena[*pipeline]
	bindGroups gpucore.Arena[*bindGroup]
	querySets  gpucore.Arena[*querySet]

	stats Stats
}

// Stats counts work executed by the device.
type Stats struct {
	CommandBuffers int
	RenderPasses   int
	Draws          int
	Fragments      int
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device.
func New(opts ...Option) *Device {
	d := &Device{
		caps: gpucore.Caps{
			Name:                "software",
			MaxTextureDimension: 8192,
			BlendableFormats: []gpucore.TextureFormat{
				gpucore.TextureFormatRGBA8Unorm,
				gpucore.TextureFormatRG16Float,
				gpucore.TextureFormatRG32Float,
				gpucore.TextureFormatRGBA16Float,
				gpucore.TextureFormatRGBA32Float,
			},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetLogger sets the logger used by the software device.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Caps returns the device capabilities.
func (d *Device) Caps() gpucore.Caps {
	c := d.caps
	c.BlendableFormats = append([]gpucore.TextureFormat(nil), d.caps.BlendableFormats...)
	return c
}

// Stats returns counters of executed work.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// CreateTexture allocates a texture with every texel zero.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("soft: nil texture descriptor: %w", gpucore.ErrInvalidDescriptor)
	}
	if desc.Width <= 0 || desc.Height <= 0 ||
		desc.Width > d.caps.MaxTextureDimension || desc.Height > d.caps.MaxTextureDimension {
		return gpucore.InvalidID, fmt.Errorf("soft: texture %q size %dx%d: %w",
			desc.Label, desc.Width, desc.Height, gpucore.ErrInvalidDescriptor)
	}
	if desc.Format.Channels() == 0 {
		return gpucore.InvalidID, fmt.Errorf("soft: texture %q format %v: %w",
			desc.Label, desc.Format, gpucore.ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.textures.Insert(&texture{
		desc:   *desc,
		texels: make([]float32, desc.Width*desc.Height*4),
	})
	return gpucore.TextureID(id), nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textures.Remove(uint64(id))
}

// alignedBytes returns a zeroed byte slice backed by 8-byte aligned memory,
// so typed views of buffer contents never straddle alignment.
func alignedBytes(size uint64) []byte {
	words := make([]uint64, (size+7)/8)
	return safeish.SliceCast[[]byte](words)[:size]
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("soft: empty buffer: %w", gpucore.ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.buffers.Insert(&buffer{desc: *desc, data: alignedBytes(desc.Size)})
	return gpucore.BufferID(id), nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers.Remove(uint64(id))
}

// WriteBuffer copies data into the buffer immediately. Commands submitted
// earlier have already executed, so call order is preserved.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return fmt.Errorf("soft: write buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if b.mapped {
		return fmt.Errorf("soft: write buffer %q: %w", b.desc.Label, gpucore.ErrBufferMapped)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("soft: write of %d bytes at %d overflows buffer %q (%d bytes): %w",
			len(data), offset, b.desc.Label, b.desc.Size, gpucore.ErrInvalidDescriptor)
	}
	copy(b.data[offset:], data)
	return nil
}

func targetCount(k gpucore.ProgramKind) int {
	if k == gpucore.ProgramPeel {
		return 3
	}
	return 1
}

// CreateRenderPipeline validates a pipeline against the program contract.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.PipelineID, error) {
	if desc == nil || desc.Program.BindGroupCount() == 0 {
		return gpucore.InvalidID, fmt.Errorf("soft: unknown program: %w", gpucore.ErrInvalidDescriptor)
	}
	if len(desc.Targets) != targetCount(desc.Program) {
		return gpucore.InvalidID, fmt.Errorf("soft: pipeline %q: program %v needs %d targets, got %d: %w",
			desc.Label, desc.Program, targetCount(desc.Program), len(desc.Targets), gpucore.ErrInvalidDescriptor)
	}
	for i, t := range desc.Targets {
		if t.Format.Channels() == 0 {
			return gpucore.InvalidID, fmt.Errorf("soft: pipeline %q target %d: format %v: %w",
				desc.Label, i, t.Format, gpucore.ErrInvalidDescriptor)
		}
		if t.Blend != nil && !d.caps.CanBlend(t.Format) {
			return gpucore.InvalidID, fmt.Errorf("soft: pipeline %q target %d: %v is not blendable: %w",
				desc.Label, i, t.Format, gpucore.ErrInvalidDescriptor)
		}
	}

	p := &pipeline{desc: *desc}
	p.desc.Targets = append([]gpucore.ColorTargetDesc(nil), desc.Targets...)

	d.mu.Lock()
	defer d.mu.Unlock()
	return gpucore.PipelineID(d.pipelines.Insert(p)), nil
}

// DestroyRenderPipeline releases a pipeline.
func (d *Device) DestroyRenderPipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelines.Remove(uint64(id))
}

// CreateBindGroup validates that every entry names a live resource.
func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if desc == nil || int(desc.Group) >= desc.Program.BindGroupCount() {
		return gpucore.InvalidID, fmt.Errorf("soft: bind group outside program layout: %w", gpucore.ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range desc.Entries {
		switch {
		case e.Buffer != gpucore.InvalidID:
			if _, ok := d.buffers.Get(uint64(e.Buffer)); !ok {
				return gpucore.InvalidID, fmt.Errorf("soft: bind group %q binding %d: buffer %d: %w",
					desc.Label, e.Binding, e.Buffer, gpucore.ErrUnknownResource)
			}
		case e.Texture != gpucore.InvalidID:
			t, ok := d.textures.Get(uint64(e.Texture))
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("soft: bind group %q binding %d: texture %d: %w",
					desc.Label, e.Binding, e.Texture, gpucore.ErrUnknownResource)
			}
			if t.desc.Usage&gpucore.TextureUsageTextureBinding == 0 {
				return gpucore.InvalidID, fmt.Errorf("soft: bind group %q: texture %q lacks TextureBinding usage: %w",
					desc.Label, t.desc.Label, gpucore.ErrInvalidDescriptor)
			}
		default:
			return gpucore.InvalidID, fmt.Errorf("soft: bind group %q binding %d is empty: %w",
				desc.Label, e.Binding, gpucore.ErrInvalidDescriptor)
		}
	}

	g := &bindGroup{desc: *desc}
	g.desc.Entries = append([]gpucore.BindGroupEntry(nil), desc.Entries...)
	return gpucore.BindGroupID(d.bindGroups.Insert(g)), nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindGroups.Remove(uint64(id))
}

// CreateQuerySet allocates occlusion counters.
func (d *Device) CreateQuerySet(desc *gpucore.QuerySetDesc) (gpucore.QuerySetID, error) {
	if desc == nil || desc.Count == 0 {
		return gpucore.InvalidID, fmt.Errorf("soft: empty query set: %w", gpucore.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpucore.QuerySetID(d.querySets.Insert(&querySet{counts: make([]uint64, desc.Count)})), nil
}

// DestroyQuerySet releases a query set.
func (d *Device) DestroyQuerySet(id gpucore.QuerySetID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.querySets.Remove(uint64(id))
}

// CreateCommandEncoder starts a recording.
func (d *Device) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	return &commandEncoder{dev: d, label: label}, nil
}

// Submit executes command buffers in order.
func (d *Device) Submit(cmds ...gpucore.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok || cb.dev != d {
			return fmt.Errorf("soft: command buffer from another device: %w", gpucore.ErrInvalidDescriptor)
		}
		if cb.submitted {
			return fmt.Errorf("soft: command buffer %q submitted twice: %w", cb.label, gpucore.ErrInvalidDescriptor)
		}
		cb.submitted = true
		if err := d.execute(cb); err != nil {
			return fmt.Errorf("soft: execute %q: %w", cb.label, err)
		}
		d.stats.CommandBuffers++
	}
	return nil
}

// MapRead maps a buffer for reading. Work is executed at Submit, so the
// data is always complete.
func (d *Device) MapRead(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return nil, fmt.Errorf("soft: map buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if b.desc.Usage&gpucore.BufferUsageMapRead == 0 {
		return nil, fmt.Errorf("soft: map buffer %q without MapRead usage: %w", b.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	if b.mapped {
		return nil, fmt.Errorf("soft: map buffer %q: %w", b.desc.Label, gpucore.ErrBufferMapped)
	}
	if offset+size > b.desc.Size {
		return nil, fmt.Errorf("soft: map range %d+%d outside buffer %q: %w", offset, size, b.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	b.mapped = true
	return b.data[offset : offset+size : offset+size], nil
}

// Unmap releases a mapping.
func (d *Device) Unmap(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers.Get(uint64(id)); ok {
		b.mapped = false
	}
}

// IsMapped reports whether the buffer is mapped.
func (d *Device) IsMapped(id gpucore.BufferID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(uint64(id))
	return ok && b.mapped
}

// ReadTexture returns a copy of the texture contents.
func (d *Device) ReadTexture(id gpucore.TextureID) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures.Get(uint64(id))
	if !ok {
		return nil, fmt.Errorf("soft: read texture %d: %w", id, gpucore.ErrUnknownResource)
	}
	if t.desc.Usage&gpucore.TextureUsageCopySrc == 0 {
		return nil, fmt.Errorf("soft: read texture %q without CopySrc usage: %w", t.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	return append([]float32(nil), t.texels...), nil
}

// Destroy releases all resources.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textures.Clear()
	d.buffers.Clear()
	d.pipelines.Clear()
	d.bindGroups.Clear()
	d.querySets.Clear()
}
