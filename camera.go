package peel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// depthCorrection maps OpenGL clip depth [-w, w] to WebGPU's [0, w].
var depthCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Camera is a perspective camera.
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	// FovY is the vertical field of view in radians.
	FovY float32
	Near float32
	Far  float32
}

// NewCamera returns a camera at eye looking at target with +Y up, a 45°
// field of view and a 0.1–10 depth range.
func NewCamera(eye, target mgl32.Vec3) *Camera {
	return &Camera{
		Position: eye,
		Target:   target,
		Up:       mgl32.Vec3{0, 1, 0},
		FovY:     math.Pi / 4,
		Near:     0.1,
		Far:      10,
	}
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

// Projection returns the projection matrix with depth in [0, 1].
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return depthCorrection.Mul4(mgl32.Perspective(c.FovY, aspect, c.Near, c.Far))
}

// ViewProjection returns Projection(aspect) * View().
func (c *Camera) ViewProjection(aspect float32) mgl32.Mat4 {
	return c.Projection(aspect).Mul4(c.View())
}

// Basis returns the unit forward axis and the right and up axes scaled so
// that forward + right*x + up*y points through NDC (x, y).
func (c *Camera) Basis(aspect float32) (forward, right, up mgl32.Vec3) {
	forward = c.Target.Sub(c.Position).Normalize()
	right = forward.Cross(c.Up).Normalize()
	up = right.Cross(forward)
	dy := float32(math.Tan(float64(c.FovY) / 2))
	return forward, right.Mul(dy * aspect), up.Mul(dy)
}
