// Package scene builds renderable batches for peel: primitive meshes,
// placed objects and the demo scenes.
package scene

import "github.com/gogpu/peel/gpucore"

// Quad returns a two-triangle quad spanning [-1, 1] in the XY plane,
// facing +Z, with UVs running left to right and top to bottom.
func Quad() []gpucore.Vertex {
	bl := gpucore.Vertex{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 1}}
	br := gpucore.Vertex{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 1}}
	tr := gpucore.Vertex{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 0}}
	tl := gpucore.Vertex{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 0}}
	return []gpucore.Vertex{bl, br, tr, bl, tr, tl}
}

// Triangle returns a single triangle in the XY plane pointing up.
func Triangle() []gpucore.Vertex {
	return []gpucore.Vertex{
		{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 1}},
		{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 1}},
		{Position: [3]float32{0, 1, 0}, UV: [2]float32{0.5, 0}},
	}
}
