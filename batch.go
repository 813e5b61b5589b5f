package peel

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
)

// DrawDescriptor draws InstanceCount instances of a geometry with one
// material, using model matrices Instances[InstanceOffset:InstanceOffset+InstanceCount].
type DrawDescriptor struct {
	Geometry       GeometryID
	Material       MaterialID
	InstanceCount  uint32
	InstanceOffset uint32
}

// RenderableBatch is the ordered list of draws rendered by every pass of
// a frame.
type RenderableBatch struct {
	// Instances holds one model matrix per instance.
	Instances []mgl32.Mat4

	// Draws are issued in order by the init pass and every peel pass.
	Draws []DrawDescriptor
}

// drawCall is a DrawDescriptor with its handles resolved to device resources.
type drawCall struct {
	vertexBuffer   gpucore.BufferID
	vertexCount    uint32
	material       gpucore.BindGroupID
	instanceCount  uint32
	instanceOffset uint32
}

// frozenBatch is the per-frame copy of a RenderableBatch. Every pass of a
// frame reads the same frozenBatch, so a caller mutating its batch during
// RenderFrame cannot change what later passes see.
type frozenBatch struct {
	instances []mgl32.Mat4
	draws     []drawCall
}

// freeze validates b against the renderer's resources and copies it.
// Must be called with r.mu held.
func (r *Renderer) freeze(b *RenderableBatch) (*frozenBatch, error) {
	fb := &frozenBatch{}
	if b == nil {
		return fb, nil
	}
	fb.instances = slices.Clone(b.Instances)
	fb.draws = make([]drawCall, 0, len(b.Draws))
	for i, d := range b.Draws {
		g, ok := r.geometries.Get(uint64(d.Geometry))
		if !ok {
			return nil, fmt.Errorf("draw %d: geometry %d: %w", i, d.Geometry, ErrInvalidBatch)
		}
		m, ok := r.materials.Get(uint64(d.Material))
		if !ok {
			return nil, fmt.Errorf("draw %d: material %d: %w", i, d.Material, ErrInvalidBatch)
		}
		if end := uint64(d.InstanceOffset) + uint64(d.InstanceCount); end > uint64(len(fb.instances)) {
			return nil, fmt.Errorf("draw %d: instances %d..%d outside %d: %w",
				i, d.InstanceOffset, end, len(fb.instances), ErrInvalidBatch)
		}
		if d.InstanceCount == 0 {
			continue
		}
		fb.draws = append(fb.draws, drawCall{
			vertexBuffer:   g.buffer,
			vertexCount:    g.count,
			material:       m.group,
			instanceCount:  d.InstanceCount,
			instanceOffset: d.InstanceOffset,
		})
	}
	return fb, nil
}
