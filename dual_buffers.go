package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
)

// boundsClear is the depth bounds clear value (-MaxDepth, -MaxDepth).
// Under MAX blending it loses to every written depth.
var boundsClear = gpucore.Color{R: -gpucore.MaxDepth, G: -gpucore.MaxDepth}

// DualBufferSet owns the two ping-pong depth bounds textures.
//
// Each texel stores (-minDepth, maxDepth), so a single MAX blend merges
// both bounds. Iteration i writes buffer i%2 and reads buffer (i+1)%2,
// so the destination of iteration i is the source of iteration i+1.
// Iteration 0 is the init pass.
type DualBufferSet struct {
	dev     gpucore.Device
	format  gpucore.TextureFormat
	width   int
	height  int
	buffers [2]gpucore.TextureID
	sources [2]gpucore.BindGroupID
}

// BufferPair is the source and destination of one iteration.
type BufferPair struct {
	// Source is the depth bounds written by the previous iteration.
	Source gpucore.TextureID

	// SourceGroup binds Source as group 2 of the peel program.
	SourceGroup gpucore.BindGroupID

	// Dest receives this iteration's depth bounds.
	Dest gpucore.TextureID
}

func newDualBufferSet(dev gpucore.Device, width, height int, format gpucore.TextureFormat) (*DualBufferSet, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("peel: depth bounds size %dx%d: %w", width, height, ErrConfiguration)
	}
	s := &DualBufferSet{dev: dev, format: format, width: width, height: height}
	for i, name := range [2]string{"peel.bounds.a", "peel.bounds.b"} {
		tex, err := dev.CreateTexture(&gpucore.TextureDesc{
			Label:  name,
			Width:  width,
			Height: height,
			Format: format,
			Usage: gpucore.TextureUsageRenderAttachment |
				gpucore.TextureUsageTextureBinding |
				gpucore.TextureUsageCopySrc,
		})
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("peel: create %s: %w", name, err)
		}
		s.buffers[i] = tex

		group, err := dev.CreateBindGroup(&gpucore.BindGroupDesc{
			Label:   name,
			Program: gpucore.ProgramPeel,
			Group:   2,
			Entries: []gpucore.BindGroupEntry{{Binding: 0, Texture: tex}},
		})
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("peel: bind %s: %w", name, err)
		}
		s.sources[i] = group
	}
	return s, nil
}

// Current returns the buffers used by the given iteration.
func (s *DualBufferSet) Current(iteration int) BufferPair {
	dst := iteration % 2
	src := (iteration + 1) % 2
	return BufferPair{
		Source:      s.buffers[src],
		SourceGroup: s.sources[src],
		Dest:        s.buffers[dst],
	}
}

// Format returns the depth bounds texture format.
func (s *DualBufferSet) Format() gpucore.TextureFormat { return s.format }

// Size returns the texture size.
func (s *DualBufferSet) Size() (width, height int) { return s.width, s.height }

// Release destroys both textures and their bind groups.
func (s *DualBufferSet) Release() {
	for i := range s.buffers {
		if s.sources[i] != gpucore.InvalidID {
			s.dev.DestroyBindGroup(s.sources[i])
			s.sources[i] = gpucore.InvalidID
		}
		if s.buffers[i] != gpucore.InvalidID {
			s.dev.DestroyTexture(s.buffers[i])
			s.buffers[i] = gpucore.InvalidID
		}
	}
}
