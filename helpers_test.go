package peel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/internal/soft"
)

// glassColor is exactly representable in half precision.
var glassColor = mgl32.Vec4{1, 0.5, 0.25, 0.5}

// fixture is a renderer on a software device looking down -Z from the
// origin, with one unit quad and one half-transparent material.
type fixture struct {
	dev   *soft.Device
	r     *Renderer
	quad  GeometryID
	glass MaterialID
	cam   *Camera
	w, h  int
}

func newFixture(t *testing.T, w, h int, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, soft.New(), w, h, opts...)
}

func newFixtureOn(t *testing.T, dev *soft.Device, w, h int, opts ...Option) *fixture {
	t.Helper()
	r, err := NewRenderer(dev, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		dev.Destroy()
	})
	if err := r.Initialize(w, h); err != nil {
		t.Fatalf("Initialize(%d, %d): %v", w, h, err)
	}
	quad, err := r.CreateGeometry(unitQuad())
	if err != nil {
		t.Fatalf("CreateGeometry: %v", err)
	}
	glass, err := r.CreateMaterial(Material{Color: glassColor})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	return &fixture{
		dev:   dev,
		r:     r,
		quad:  quad,
		glass: glass,
		cam:   NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}),
		w:     w,
		h:     h,
	}
}

func unitQuad() []gpucore.Vertex {
	return []gpucore.Vertex{
		{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 1}},
		{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 1}},
		{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 0}},
		{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 1}},
		{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 0}},
		{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 0}},
	}
}

// stack returns one screen-filling glass quad per distance from the camera.
func (f *fixture) stack(distances ...float32) *RenderableBatch {
	b := &RenderableBatch{}
	for _, d := range distances {
		b.Instances = append(b.Instances,
			mgl32.Translate3D(0, 0, -d).Mul4(mgl32.Scale3D(10, 10, 1)))
	}
	b.Draws = []DrawDescriptor{{
		Geometry:      f.quad,
		Material:      f.glass,
		InstanceCount: uint32(len(distances)),
	}}
	return b
}

func (f *fixture) render(t *testing.T, b *RenderableBatch) FrameStats {
	t.Helper()
	stats, err := f.r.RenderFrame(b, f.cam)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	return stats
}

func (f *fixture) pixels(t *testing.T) []float32 {
	t.Helper()
	px, err := f.r.Output().Pixels()
	if err != nil {
		t.Fatalf("Pixels: %v", err)
	}
	return px
}

func (f *fixture) texels(t *testing.T, id gpucore.TextureID) []float32 {
	t.Helper()
	px, err := f.dev.ReadTexture(id)
	if err != nil {
		t.Fatalf("ReadTexture: %v", err)
	}
	return px
}

func approx(a, b float32) bool {
	const eps = 1e-3
	d := a - b
	return d < eps && d > -eps
}
