package soft

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// clipVertex is a vertex after the vertex stage.
type clipVertex struct {
	pos mgl32.Vec4 // clip space
	uv  mgl32.Vec2
}

// fragment is one covered pixel center of a triangle.
type fragment struct {
	x, y  int
	depth float32 // z/w in [0, 1]
	uv    mgl32.Vec2
}

// screenVertex is a vertex after perspective division and viewport mapping.
type screenVertex struct {
	x, y  float64
	z     float32
	invW  float64
	uvOvW [2]float64
}

// clipNear clips a polygon against the z >= 0 plane in clip space.
// WebGPU clip space has depth in [0, w]; the far plane is handled per
// fragment by the depth range test.
func clipNear(poly []clipVertex) []clipVertex {
	const eps = 1e-6
	out := make([]clipVertex, 0, len(poly)+2)
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		ina := a.pos.Z() >= 0 && a.pos.W() > eps
		inb := b.pos.Z() >= 0 && b.pos.W() > eps
		if ina {
			out = append(out, a)
		}
		if ina != inb {
			t := a.pos.Z() / (a.pos.Z() - b.pos.Z())
			out = append(out, clipVertex{
				pos: a.pos.Add(b.pos.Sub(a.pos).Mul(t)),
				uv:  a.uv.Add(b.uv.Sub(a.uv).Mul(t)),
			})
		}
	}
	return out
}

func toScreen(v clipVertex, width, height int) screenVertex {
	w := float64(v.pos.W())
	invW := 1 / w
	ndcX := float64(v.pos.X()) * invW
	ndcY := float64(v.pos.Y()) * invW
	return screenVertex{
		x:     (ndcX*0.5 + 0.5) * float64(width),
		y:     (0.5 - ndcY*0.5) * float64(height),
		z:     v.pos.Z() / v.pos.W(),
		invW:  invW,
		uvOvW: [2]float64{float64(v.uv.X()) * invW, float64(v.uv.Y()) * invW},
	}
}

func edge(a, b screenVertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// isTopLeft reports whether edge a->b of a positively oriented triangle
// (clockwise on a y-down screen) is a top or left edge.
func isTopLeft(a, b screenVertex) bool {
	dy := b.y - a.y
	dx := b.x - a.x
	return (dy == 0 && dx > 0) || dy < 0
}

func covered(w float64, topLeft bool) bool {
	return w > 0 || (w == 0 && topLeft)
}

// rasterTriangle calls emit for every pixel center covered by the triangle.
// Both windings are rasterized. Depth is interpolated linearly in screen
// space; UVs are perspective-correct.
func rasterTriangle(tri [3]clipVertex, width, height int, emit func(fragment)) {
	poly := clipNear(tri[:])
	if len(poly) < 3 {
		return
	}
	s := make([]screenVertex, len(poly))
	for i, v := range poly {
		s[i] = toScreen(v, width, height)
	}
	for i := 1; i+1 < len(s); i++ {
		rasterScreenTriangle(s[0], s[i], s[i+1], width, height, emit)
	}
}

func rasterScreenTriangle(v0, v1, v2 screenVertex, width, height int, emit func(fragment)) {
	area := edge(v0, v1, v2.x, v2.y)
	if area == 0 || math.IsNaN(area) {
		return
	}
	if area < 0 {
		v1, v2 = v2, v1
		area = -area
	}

	minX := max(0, int(math.Floor(min(v0.x, v1.x, v2.x))))
	maxX := min(width-1, int(math.Ceil(max(v0.x, v1.x, v2.x))))
	minY := max(0, int(math.Floor(min(v0.y, v1.y, v2.y))))
	maxY := min(height-1, int(math.Ceil(max(v0.y, v1.y, v2.y))))

	tl0 := isTopLeft(v1, v2)
	tl1 := isTopLeft(v2, v0)
	tl2 := isTopLeft(v0, v1)

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := edge(v1, v2, px, py)
			w1 := edge(v2, v0, px, py)
			w2 := edge(v0, v1, px, py)
			if !covered(w0, tl0) || !covered(w1, tl1) || !covered(w2, tl2) {
				continue
			}
			l0, l1, l2 := w0/area, w1/area, w2/area
			z := float32(l0*float64(v0.z) + l1*float64(v1.z) + l2*float64(v2.z))
			invW := l0*v0.invW + l1*v1.invW + l2*v2.invW
			u := (l0*v0.uvOvW[0] + l1*v1.uvOvW[0] + l2*v2.uvOvW[0]) / invW
			v := (l0*v0.uvOvW[1] + l1*v1.uvOvW[1] + l2*v2.uvOvW[1]) / invW
			emit(fragment{x: x, y: y, depth: z, uv: mgl32.Vec2{float32(u), float32(v)}})
		}
	}
}
