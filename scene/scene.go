package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel"
)

// Object is a geometry drawn with one material at one or more places.
type Object struct {
	Name       string
	Geometry   peel.GeometryID
	Material   peel.MaterialID
	Transforms []mgl32.Mat4
}

// Scene is an ordered list of objects and the camera looking at them.
type Scene struct {
	Objects []Object
	Camera  *peel.Camera
}

// Add appends an object and returns it for further placement.
func (s *Scene) Add(name string, g peel.GeometryID, m peel.MaterialID, transforms ...mgl32.Mat4) *Object {
	s.Objects = append(s.Objects, Object{Name: name, Geometry: g, Material: m, Transforms: transforms})
	return &s.Objects[len(s.Objects)-1]
}

// Batch flattens the scene into one draw per object. Instances are laid
// out in object order, so each draw's offset is the number of instances
// of the objects before it.
func (s *Scene) Batch() *peel.RenderableBatch {
	b := &peel.RenderableBatch{}
	for _, o := range s.Objects {
		if len(o.Transforms) == 0 {
			continue
		}
		b.Draws = append(b.Draws, peel.DrawDescriptor{
			Geometry:       o.Geometry,
			Material:       o.Material,
			InstanceCount:  uint32(len(o.Transforms)),
			InstanceOffset: uint32(len(b.Instances)),
		})
		b.Instances = append(b.Instances, o.Transforms...)
	}
	return b
}

// Place returns the model matrix translating to pos after rotating by
// yaw around +Y and scaling by scale.
func Place(pos mgl32.Vec3, yaw float32, scale mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()).
		Mul4(mgl32.HomogRotate3DY(yaw)).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// Flat returns the model matrix laying a Quad flat at height y, facing
// +Y, scaled by half-extents sx and sz.
func Flat(y, sx, sz float32) mgl32.Mat4 {
	return mgl32.Translate3D(0, y, 0).
		Mul4(mgl32.HomogRotate3DX(-mgl32.DegToRad(90))).
		Mul4(mgl32.Scale3D(sx, sz, 1))
}
