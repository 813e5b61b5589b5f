package wgpu

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/wgpu/hal"
	"github.com/mrjoshuak/go-openexr/half"
	"honnef.co/go/safeish"
)

// Submit translates the command buffers into one HAL command buffer and
// queues it. It does not wait for the GPU.
func (d *Device) Submit(cmds ...gpucore.CommandBuffer) error {
	if len(cmds) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("wgpu: submit after Destroy: %w", gpucore.ErrInvalidDescriptor)
	}

	bufs := make([]*commandBuffer, len(cmds))
	for i, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok || cb.dev != d {
			return fmt.Errorf("wgpu: command buffer from another device: %w", gpucore.ErrInvalidDescriptor)
		}
		if cb.submitted {
			return fmt.Errorf("wgpu: command buffer %q submitted twice: %w", cb.label, gpucore.ErrInvalidDescriptor)
		}
		bufs[i] = cb
	}

	index, err := d.encodeAndSubmit(bufs[0].label, func(tr *translator) error {
		for _, cb := range bufs {
			if err := tr.encode(cb); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, cb := range bufs {
		cb.submitted = true
	}
	slogger().Debug("wgpu: submitted", "label", bufs[0].label, "buffers", len(bufs), "index", index)
	return nil
}

// encodeAndSubmit records fn into a fresh HAL encoder and submits the
// result. Must be called with d.mu held.
func (d *Device) encodeAndSubmit(label string, fn func(*translator) error) (uint64, error) {
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create command encoder %q: %w", label, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return 0, fmt.Errorf("wgpu: begin encoding %q: %w", label, err)
	}
	tr := &translator{d: d, enc: enc, prior: make(map[*texture]gputypes.TextureUsage)}
	if err := fn(tr); err != nil {
		enc.DiscardEncoding()
		tr.rollback()
		return 0, err
	}
	cmd, err := enc.EndEncoding()
	if err != nil {
		tr.rollback()
		return 0, fmt.Errorf("wgpu: end encoding %q: %w", label, err)
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		tr.rollback()
		return 0, fmt.Errorf("wgpu: submit %q: %w", label, err)
	}
	for _, b := range tr.written {
		b.written = index
	}
	d.inflight = append(d.inflight, inflight{index: index, cmd: cmd})
	d.retire(d.queue.PollCompleted())
	return index, nil
}

// retire frees the command buffers of completed submissions.
func (d *Device) retire(completed uint64) {
	n := 0
	for _, f := range d.inflight {
		if f.index <= completed {
			d.dev.FreeCommandBuffer(f.cmd)
			continue
		}
		d.inflight[n] = f
		n++
	}
	clear(d.inflight[n:])
	d.inflight = d.inflight[:n]
}

// waitFor polls the queue until submission index has completed.
// Must be called with d.mu held.
func (d *Device) waitFor(index uint64) error {
	if index == 0 {
		return nil
	}
	deadline := time.Now().Add(readbackTimeout)
	for {
		done := d.queue.PollCompleted()
		if done >= index {
			d.retire(done)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wgpu: submission %d (completed %d): %w", index, done, gpucore.ErrReadbackTimeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// MapRead waits for the last submission that wrote the buffer, then maps
// the range.
func (d *Device) MapRead(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return nil, fmt.Errorf("wgpu: map buffer %d: %w", id, gpucore.ErrUnknownResource)
	}
	if b.desc.Usage&gpucore.BufferUsageMapRead == 0 {
		return nil, fmt.Errorf("wgpu: map buffer %q without MapRead usage: %w", b.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	if b.mapped {
		return nil, fmt.Errorf("wgpu: map buffer %q: %w", b.desc.Label, gpucore.ErrBufferMapped)
	}
	if offset+size > b.desc.Size {
		return nil, fmt.Errorf("wgpu: map range %d+%d outside buffer %q: %w", offset, size, b.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	if err := d.waitFor(b.written); err != nil {
		return nil, err
	}
	data, err := d.mapBuffer(b, offset, size)
	if err != nil {
		return nil, err
	}
	b.mapped = true
	return data, nil
}

func (d *Device) mapBuffer(b *buffer, offset, size uint64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	m, err := d.dev.MapBuffer(b.buf, offset, size)
	if err != nil {
		return nil, fmt.Errorf("wgpu: map buffer %q: %w", b.desc.Label, err)
	}
	return unsafe.Slice((*byte)(m.Ptr), size), nil
}

// Unmap releases a mapping.
func (d *Device) Unmap(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(uint64(id))
	if !ok || !b.mapped {
		return
	}
	if err := d.dev.UnmapBuffer(b.buf); err != nil {
		slogger().Warn("wgpu: unmap", "buffer", b.desc.Label, "err", err)
	}
	b.mapped = false
}

// IsMapped reports whether the buffer is mapped.
func (d *Device) IsMapped(id gpucore.BufferID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(uint64(id))
	return ok && b.mapped
}

// ReadTexture copies a texture into a staging buffer and decodes it to
// RGBA float32 quadruples. It waits for the copy.
func (d *Device) ReadTexture(id gpucore.TextureID) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures.Get(uint64(id))
	if !ok {
		return nil, fmt.Errorf("wgpu: read texture %d: %w", id, gpucore.ErrUnknownResource)
	}
	if t.desc.Usage&gpucore.TextureUsageCopySrc == 0 {
		return nil, fmt.Errorf("wgpu: read texture %q without CopySrc usage: %w", t.desc.Label, gpucore.ErrInvalidDescriptor)
	}

	w, h := t.desc.Width, t.desc.Height
	texel := t.desc.Format.BytesPerTexel()
	rowBytes := uint64(w * texel)
	pitch := align(rowBytes, 256)
	staging := &buffer{desc: gpucore.BufferDesc{
		Label: t.desc.Label + "_readback",
		Size:  pitch * uint64(h),
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	}}
	var err error
	staging.buf, err = d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: staging.desc.Label,
		Size:  staging.desc.Size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create readback buffer for %q: %w", t.desc.Label, err)
	}
	defer d.destroyBuffer(staging)

	index, err := d.encodeAndSubmit(staging.desc.Label, func(tr *translator) error {
		tr.transition(t, gputypes.TextureUsageCopySrc)
		tr.enc.CopyTextureToBuffer(t.tex, staging.buf, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: uint32(h)},
			TextureBase:  hal.ImageCopyTexture{Texture: t.tex},
			Size:         hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		}})
		tr.bufferBarrier(staging.buf, gputypes.BufferUsageCopyDst, gputypes.BufferUsageMapRead)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := d.waitFor(index); err != nil {
		return nil, err
	}
	raw, err := d.mapBuffer(staging, 0, staging.desc.Size)
	if err != nil {
		return nil, err
	}
	staging.mapped = true

	out := make([]float32, w*h*4)
	row := make([]float32, w*t.desc.Format.Channels())
	for y := range h {
		decodeRow(row, raw[uint64(y)*pitch:uint64(y)*pitch+rowBytes], t.desc.Format)
		expandRow(out[y*w*4:(y+1)*w*4], row, t.desc.Format.Channels())
	}
	return out, nil
}

// decodeRow converts one row of texels to float32 channels.
func decodeRow(dst []float32, src []byte, f gpucore.TextureFormat) {
	switch {
	case f == gpucore.TextureFormatRGBA8Unorm:
		for i, v := range src {
			dst[i] = float32(v) / 255
		}
	case f.IsHalf():
		half.ConvertBytesToFloat32(dst, src)
	default:
		copy(dst, safeish.SliceCast[[]float32](src))
	}
}

// expandRow widens channels-per-texel to RGBA, zero filling.
func expandRow(dst, src []float32, channels int) {
	if channels == 4 {
		copy(dst, src)
		return
	}
	for i := 0; i < len(src)/channels; i++ {
		for c := range 4 {
			v := float32(0)
			if c < channels {
				v = src[i*channels+c]
			}
			dst[i*4+c] = v
		}
	}
}
