package peel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.maxPasses != DefaultMaxPasses {
		t.Errorf("maxPasses = %d, want %d", o.maxPasses, DefaultMaxPasses)
	}
	if o.background == nil || o.background.Mode != BackgroundSky {
		t.Errorf("background = %+v, want the default sky", o.background)
	}
	if o.pipelined {
		t.Error("pipelined queries enabled by default")
	}
	if o.boundsFormat != gpucore.TextureFormatUndefined || o.surface != nil {
		t.Errorf("unexpected defaults %+v", o)
	}
}

func TestOptions(t *testing.T) {
	solid := Solid(mgl32.Vec4{1, 0, 0, 1})
	surface := NewOffscreenSurface()
	tests := []struct {
		name  string
		opt   Option
		check func(o options) bool
	}{
		{"max passes", WithMaxPasses(7), func(o options) bool { return o.maxPasses == 7 }},
		{"max passes ignores zero", WithMaxPasses(0), func(o options) bool { return o.maxPasses == DefaultMaxPasses }},
		{"background", WithBackground(solid), func(o options) bool { return o.background == solid }},
		{"no background", WithBackground(nil), func(o options) bool { return o.background == nil }},
		{"pipelined", WithPipelinedQueries(true), func(o options) bool { return o.pipelined }},
		{"bounds format", WithDepthBoundsFormat(gpucore.TextureFormatRG16Float),
			func(o options) bool { return o.boundsFormat == gpucore.TextureFormatRG16Float }},
		{"surface", WithSurface(surface), func(o options) bool { return o.surface == surface }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("option not applied: %+v", o)
			}
		})
	}
}

func TestBackgroundConstructors(t *testing.T) {
	c := mgl32.Vec4{0.1, 0.2, 0.3, 1}
	if s := Solid(c); s.Mode != BackgroundSolid || s.Horizon != c || s.Zenith != c {
		t.Errorf("Solid = %+v", s)
	}
	z, h := mgl32.Vec4{0, 0, 1, 1}, mgl32.Vec4{1, 1, 1, 1}
	if s := Sky(z, h); s.Mode != BackgroundSky || s.Zenith != z || s.Horizon != h {
		t.Errorf("Sky = %+v", s)
	}
}
