package peel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestProjectionDepthRange(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1})
	vp := cam.ViewProjection(4.0 / 3.0)
	tests := []struct {
		z    float32
		want float32
	}{
		{-cam.Near, 0},
		{-cam.Far, 1},
	}
	for _, tt := range tests {
		clip := vp.Mul4x1(mgl32.Vec4{0, 0, tt.z, 1})
		if got := clip.Z() / clip.W(); !approx(got, tt.want) {
			t.Errorf("depth at z=%v is %v, want %v", tt.z, got, tt.want)
		}
	}

	near := vp.Mul4x1(mgl32.Vec4{0, 0, -2, 1})
	far := vp.Mul4x1(mgl32.Vec4{0, 0, -3, 1})
	if near.Z()/near.W() >= far.Z()/far.W() {
		t.Error("depth does not increase with distance")
	}
}

func TestBasisReachesFrustumCorners(t *testing.T) {
	cam := NewCamera(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 0})
	const aspect = 2
	forward, right, up := cam.Basis(aspect)
	if !approx(forward.Len(), 1) {
		t.Errorf("forward length %v", forward.Len())
	}

	// forward + right + up points at the top-right corner of the image.
	corner := cam.Position.Add(forward.Add(right).Add(up))
	clip := cam.ViewProjection(aspect).Mul4x1(corner.Vec4(1))
	if x, y := clip.X()/clip.W(), clip.Y()/clip.W(); !approx(x, 1) || !approx(y, 1) {
		t.Errorf("corner projects to (%v, %v), want (1, 1)", x, y)
	}
}
