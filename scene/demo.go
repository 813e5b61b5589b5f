package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel"
)

// Demo surface size.
const (
	DemoWidth  = 800
	DemoHeight = 600
)

// Materials used by the demo scenes. Colors are exactly representable in
// half precision.
var (
	FloorMaterial = peel.Material{
		Color:        mgl32.Vec4{0.75, 0.75, 0.75, 1},
		Checker:      mgl32.Vec4{0.25, 0.25, 0.25, 1},
		CheckerScale: 8,
	}
	BlueGlass = peel.Material{Color: mgl32.Vec4{0.25, 0.5, 1, 0.5}}
	RedGlass  = peel.Material{Color: mgl32.Vec4{1, 0.25, 0.25, 0.5}}
	GreenTint = peel.Material{Color: mgl32.Vec4{0.25, 1, 0.5, 0.25}}
)

// Resources creates geometries and materials on a renderer.
type Resources struct {
	r         *peel.Renderer
	Quad      peel.GeometryID
	Triangle  peel.GeometryID
	Materials map[string]peel.MaterialID
}

// NewResources uploads the demo meshes and materials.
func NewResources(r *peel.Renderer) (*Resources, error) {
	res := &Resources{r: r, Materials: make(map[string]peel.MaterialID)}
	var err error
	if res.Quad, err = r.CreateGeometry(Quad()); err != nil {
		return nil, fmt.Errorf("scene: quad: %w", err)
	}
	if res.Triangle, err = r.CreateGeometry(Triangle()); err != nil {
		res.Release()
		return nil, fmt.Errorf("scene: triangle: %w", err)
	}
	for name, m := range map[string]peel.Material{
		"floor": FloorMaterial,
		"blue":  BlueGlass,
		"red":   RedGlass,
		"green": GreenTint,
	} {
		id, err := r.CreateMaterial(m)
		if err != nil {
			res.Release()
			return nil, fmt.Errorf("scene: material %s: %w", name, err)
		}
		res.Materials[name] = id
	}
	return res, nil
}

// Material returns a named material, creating it from m on first use.
func (res *Resources) Material(name string, m peel.Material) (peel.MaterialID, error) {
	if id, ok := res.Materials[name]; ok {
		return id, nil
	}
	id, err := res.r.CreateMaterial(m)
	if err != nil {
		return 0, fmt.Errorf("scene: material %s: %w", name, err)
	}
	res.Materials[name] = id
	return id, nil
}

// Release destroys everything NewResources created.
func (res *Resources) Release() {
	if res.Quad != 0 {
		res.r.DestroyGeometry(res.Quad)
	}
	if res.Triangle != 0 {
		res.r.DestroyGeometry(res.Triangle)
	}
	for name, id := range res.Materials {
		res.r.DestroyMaterial(id)
		delete(res.Materials, name)
	}
}

// DemoCamera is the demo viewpoint: slightly above the floor, looking at
// the standing quads.
func DemoCamera() *peel.Camera {
	return peel.NewCamera(mgl32.Vec3{0, 1.25, 4}, mgl32.Vec3{0, 0.5, 0})
}

// Demo is a checkered floor with two standing glass quads, one rotated
// through the other, and a tinted triangle behind them.
func Demo(res *Resources) *Scene {
	s := &Scene{Camera: DemoCamera()}
	s.Add("floor", res.Quad, res.Materials["floor"], Flat(0, 3, 3))
	s.Add("blue", res.Quad, res.Materials["blue"],
		Place(mgl32.Vec3{-0.25, 0.75, 0}, mgl32.DegToRad(20), mgl32.Vec3{0.75, 0.75, 1}))
	s.Add("red", res.Quad, res.Materials["red"],
		Place(mgl32.Vec3{0.25, 0.75, -0.25}, mgl32.DegToRad(-35), mgl32.Vec3{0.75, 0.75, 1}))
	s.Add("green", res.Triangle, res.Materials["green"],
		Place(mgl32.Vec3{0, 1, -1.5}, 0, mgl32.Vec3{1, 1, 1}))
	return s
}

// FloorScene is a single opaque floor filling the view of a camera
// looking straight down.
func FloorScene(res *Resources) *Scene {
	cam := peel.NewCamera(mgl32.Vec3{0, 2, 0}, mgl32.Vec3{})
	cam.Up = mgl32.Vec3{0, 0, -1}
	s := &Scene{Camera: cam}
	s.Add("floor", res.Quad, res.Materials["floor"], Flat(0, 10, 10))
	return s
}

// StackedQuads is one screen-filling quad of material m per distance in
// front of a camera looking down -Z from the origin.
func StackedQuads(res *Resources, m peel.MaterialID, distances ...float32) *Scene {
	s := &Scene{Camera: peel.NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1})}
	o := s.Add("stack", res.Quad, m)
	for _, d := range distances {
		o.Transforms = append(o.Transforms, Place(mgl32.Vec3{0, 0, -d}, 0, mgl32.Vec3{10, 10, 1}))
	}
	return s
}
