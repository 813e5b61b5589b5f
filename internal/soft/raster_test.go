package soft

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func cv(x, y, z float32) clipVertex {
	return clipVertex{pos: mgl32.Vec4{x, y, z, 1}}
}

func TestRasterSharedEdgeCoveredOnce(t *testing.T) {
	const w, h = 16, 16
	hits := make([]int, w*h)
	emit := func(f fragment) { hits[f.y*w+f.x]++ }

	// Two triangles of a full-screen quad sharing the diagonal.
	rasterTriangle([3]clipVertex{cv(-1, -1, 0.5), cv(1, -1, 0.5), cv(1, 1, 0.5)}, w, h, emit)
	rasterTriangle([3]clipVertex{cv(-1, -1, 0.5), cv(1, 1, 0.5), cv(-1, 1, 0.5)}, w, h, emit)

	for i, n := range hits {
		if n != 1 {
			t.Fatalf("pixel (%d,%d) covered %d times, want 1", i%w, i/w, n)
		}
	}
}

func TestRasterBothWindings(t *testing.T) {
	const w, h = 8, 8
	count := func(tri [3]clipVertex) int {
		n := 0
		rasterTriangle(tri, w, h, func(fragment) { n++ })
		return n
	}
	cw := count([3]clipVertex{cv(-1, -1, 0), cv(1, -1, 0), cv(-1, 1, 0)})
	ccw := count([3]clipVertex{cv(-1, -1, 0), cv(-1, 1, 0), cv(1, -1, 0)})
	if cw == 0 || cw != ccw {
		t.Errorf("coverage differs by winding: %d vs %d", cw, ccw)
	}
}

func TestRasterDepthInterpolation(t *testing.T) {
	const w, h = 4, 4
	var got []float32
	rasterTriangle([3]clipVertex{cv(-1, -1, 0.25), cv(3, -1, 0.25), cv(-1, 3, 0.25)}, w, h, func(f fragment) {
		got = append(got, f.depth)
	})
	if len(got) != w*h {
		t.Fatalf("covered %d pixels, want %d", len(got), w*h)
	}
	for _, d := range got {
		if d != 0.25 {
			t.Fatalf("depth = %v, want 0.25", d)
		}
	}
}

func TestRasterNearClip(t *testing.T) {
	const w, h = 8, 8
	n := 0
	// Entirely behind the near plane.
	rasterTriangle([3]clipVertex{cv(-1, -1, -0.5), cv(1, -1, -0.5), cv(-1, 1, -0.5)}, w, h, func(fragment) { n++ })
	if n != 0 {
		t.Errorf("triangle behind near plane produced %d fragments", n)
	}

	// Straddling: only the part with z >= 0 survives.
	rasterTriangle([3]clipVertex{cv(-1, -1, -1), cv(1, -1, 1), cv(-1, 1, 1)}, w, h, func(f fragment) {
		if f.depth < 0 {
			t.Errorf("fragment depth %v < 0 after near clip", f.depth)
		}
		n++
	})
	if n == 0 {
		t.Error("straddling triangle was fully clipped")
	}
}

func TestIsTopLeft(t *testing.T) {
	a := screenVertex{x: 0, y: 0}
	b := screenVertex{x: 1, y: 0}
	c := screenVertex{x: 0, y: 1}
	if !isTopLeft(a, b) {
		t.Error("horizontal edge going right should be top")
	}
	if !isTopLeft(c, a) {
		t.Error("edge going up should be left")
	}
	if isTopLeft(b, c) {
		t.Error("edge going down should be neither top nor left")
	}
}
