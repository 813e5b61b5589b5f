package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
)

// Surface is the final composite destination.
//
// Acquire is called once per frame after the peel loop and returns the
// texture to composite into; it must have RenderAttachment usage and the
// size passed to Initialize. Present is called after the composite has
// been submitted.
type Surface interface {
	Format() gpucore.TextureFormat
	Acquire() (gpucore.TextureID, error)
	Present() error
}

// surfaceConfigurer is implemented by surfaces the renderer can size.
type surfaceConfigurer interface {
	Configure(dev gpucore.Device, width, height int) error
	Release()
}

// OffscreenSurface is a renderer-owned RGBA16Float texture that can be
// read back after each frame. It is the default Surface.
type OffscreenSurface struct {
	dev     gpucore.Device
	texture gpucore.TextureID
	width   int
	height  int
	frames  int
}

// NewOffscreenSurface returns an unconfigured offscreen surface.
// The renderer configures it in Initialize.
func NewOffscreenSurface() *OffscreenSurface {
	return &OffscreenSurface{}
}

// Format implements Surface.
func (s *OffscreenSurface) Format() gpucore.TextureFormat {
	return gpucore.TextureFormatRGBA16Float
}

// Configure allocates the texture, releasing any previous one.
func (s *OffscreenSurface) Configure(dev gpucore.Device, width, height int) error {
	s.Release()
	id, err := dev.CreateTexture(&gpucore.TextureDesc{
		Label:  "peel.composite",
		Width:  width,
		Height: height,
		Format: s.Format(),
		Usage: gpucore.TextureUsageRenderAttachment |
			gpucore.TextureUsageTextureBinding |
			gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("offscreen surface: %w", err)
	}
	s.dev, s.texture = dev, id
	s.width, s.height = width, height
	return nil
}

// Release destroys the texture.
func (s *OffscreenSurface) Release() {
	if s.dev != nil && s.texture != gpucore.InvalidID {
		s.dev.DestroyTexture(s.texture)
	}
	s.texture = gpucore.InvalidID
}

// Acquire implements Surface.
func (s *OffscreenSurface) Acquire() (gpucore.TextureID, error) {
	if s.texture == gpucore.InvalidID {
		return gpucore.InvalidID, ErrNotInitialized
	}
	return s.texture, nil
}

// Present implements Surface.
func (s *OffscreenSurface) Present() error {
	s.frames++
	return nil
}

// Texture returns the composite texture, or InvalidID before configuration.
func (s *OffscreenSurface) Texture() gpucore.TextureID { return s.texture }

// Size returns the configured size.
func (s *OffscreenSurface) Size() (width, height int) { return s.width, s.height }

// Frames returns how many frames have been presented.
func (s *OffscreenSurface) Frames() int { return s.frames }

// Pixels reads back the last composite as premultiplied RGBA float32
// quadruples in row-major order.
func (s *OffscreenSurface) Pixels() ([]float32, error) {
	if s.texture == gpucore.InvalidID {
		return nil, ErrNotInitialized
	}
	return s.dev.ReadTexture(s.texture)
}
