package peel

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
)

// BackgroundMode selects how the background pass fills the frame.
type BackgroundMode int

const (
	// BackgroundSolid fills uncovered coverage with one color.
	BackgroundSolid BackgroundMode = gpucore.BackgroundSolid

	// BackgroundSky fills it with a vertical gradient reconstructed from
	// the camera basis, horizon color at eye level and zenith overhead.
	BackgroundSky BackgroundMode = gpucore.BackgroundSky
)

// Background is the opaque layer composited behind every peeled layer.
// Colors are straight (non-premultiplied) linear RGBA.
type Background struct {
	Mode    BackgroundMode
	Horizon mgl32.Vec4
	Zenith  mgl32.Vec4
}

// Solid returns a single-color background.
func Solid(c mgl32.Vec4) *Background {
	return &Background{Mode: BackgroundSolid, Horizon: c, Zenith: c}
}

// Sky returns a gradient background.
func Sky(zenith, horizon mgl32.Vec4) *Background {
	return &Background{Mode: BackgroundSky, Horizon: horizon, Zenith: zenith}
}

// DefaultSky is the renderer's default background: pale blue at the
// horizon fading to a deeper blue overhead.
func DefaultSky() *Background {
	return Sky(mgl32.Vec4{0.25, 0.45, 0.85, 1}, mgl32.Vec4{0.75, 0.85, 0.95, 1})
}
