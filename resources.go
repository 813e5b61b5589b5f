package peel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
	"honnef.co/go/safeish"
)

// GeometryID names a vertex buffer created by CreateGeometry.
type GeometryID uint64

// MaterialID names a material created by CreateMaterial.
type MaterialID uint64

// Material is a flat or checkered translucent surface. Colors are
// straight (non-premultiplied) linear RGBA; alpha is coverage.
type Material struct {
	Color mgl32.Vec4

	// Checker alternates with Color on a grid of CheckerScale cells per
	// unit of texture coordinate. A zero scale disables the pattern.
	Checker      mgl32.Vec4
	CheckerScale float32
}

func (m Material) uniforms() gpucore.MaterialUniforms {
	return gpucore.MaterialUniforms{
		BaseColor:    m.Color,
		CheckerColor: m.Checker,
		Params:       [4]float32{m.CheckerScale},
	}
}

type geometry struct {
	buffer gpucore.BufferID
	count  uint32
}

type material struct {
	buffer gpucore.BufferID
	group  gpucore.BindGroupID
}

// CreateGeometry uploads a triangle list. len(vertices) must be a
// positive multiple of 3.
func (r *Renderer) CreateGeometry(vertices []gpucore.Vertex) (GeometryID, error) {
	if len(vertices) == 0 || len(vertices)%3 != 0 {
		return 0, fmt.Errorf("peel: geometry of %d vertices is not a triangle list: %w",
			len(vertices), gpucore.ErrInvalidDescriptor)
	}
	data := safeish.SliceCast[[]byte](vertices)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrNotInitialized
	}
	buf, err := r.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: "peel.geometry",
		Size:  uint64(len(data)),
		Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("peel: create geometry: %w", err)
	}
	if err := r.dev.WriteBuffer(buf, 0, data); err != nil {
		r.dev.DestroyBuffer(buf)
		return 0, fmt.Errorf("peel: upload geometry: %w", err)
	}
	return GeometryID(r.geometries.Insert(geometry{buffer: buf, count: uint32(len(vertices))})), nil
}

// DestroyGeometry releases a geometry. Unknown IDs are ignored.
func (r *Renderer) DestroyGeometry(id GeometryID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.geometries.Remove(uint64(id)); ok {
		r.dev.DestroyBuffer(g.buffer)
	}
}

// CreateMaterial uploads a material's uniforms.
func (r *Renderer) CreateMaterial(m Material) (MaterialID, error) {
	u := []gpucore.MaterialUniforms{m.uniforms()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrNotInitialized
	}
	buf, err := r.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: "peel.material",
		Size:  gpucore.MaterialUniformsSize,
		Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("peel: create material: %w", err)
	}
	if err := r.dev.WriteBuffer(buf, 0, safeish.SliceCast[[]byte](u)); err != nil {
		r.dev.DestroyBuffer(buf)
		return 0, fmt.Errorf("peel: upload material: %w", err)
	}
	group, err := r.dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   "peel.material",
		Program: gpucore.ProgramPeel,
		Group:   1,
		Entries: []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}},
	})
	if err != nil {
		r.dev.DestroyBuffer(buf)
		return 0, fmt.Errorf("peel: material bind group: %w", err)
	}
	return MaterialID(r.materials.Insert(material{buffer: buf, group: group})), nil
}

// DestroyMaterial releases a material. Unknown IDs are ignored.
func (r *Renderer) DestroyMaterial(id MaterialID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.materials.Remove(uint64(id)); ok {
		r.dev.DestroyBindGroup(m.group)
		r.dev.DestroyBuffer(m.buffer)
	}
}

func (r *Renderer) releaseResources() {
	r.geometries.All(func(_ uint64, g geometry) bool {
		r.dev.DestroyBuffer(g.buffer)
		return true
	})
	r.geometries.Clear()
	r.materials.All(func(_ uint64, m material) bool {
		r.dev.DestroyBindGroup(m.group)
		r.dev.DestroyBuffer(m.buffer)
		return true
	})
	r.materials.Clear()
}
