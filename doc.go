// Package peel renders overlapping translucent geometry with dual depth
// peeling.
//
// # Overview
//
// Each frame, peel extracts per pixel the nearest and the farthest depth
// layer not yet composited, blends them into two accumulators and repeats
// until an occlusion query reports that no layer is left. No sorting of
// triangles is needed and the result is independent of draw order.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/peel"
//	    "github.com/gogpu/peel/backend"
//	)
//
//	dev, err := backend.OpenDefault()
//	r, err := peel.NewRenderer(dev)
//	err = r.Initialize(800, 600)
//
//	quad, err := r.CreateGeometry(vertices)
//	glass, err := r.CreateMaterial(peel.Material{Color: mgl32.Vec4{0.2, 0.6, 1, 0.5}})
//
//	stats, err := r.RenderFrame(&peel.RenderableBatch{
//	    Instances: []mgl32.Mat4{mgl32.Ident4()},
//	    Draws:     []peel.DrawDescriptor{{Geometry: quad, Material: glass, InstanceCount: 1}},
//	}, peel.NewCamera(mgl32.Vec3{0, 1, 4}, mgl32.Vec3{}))
//
//	pixels, err := r.Output().Pixels()
//
// # Frame Structure
//
//	upload ─► init pass ─► ┌ peel pass ─► accumulate ─► occlusion readback ┐ ─► composite ─► background ─► present
//	                       └──────────────────── until count == 0 ─────────┘
//
// The depth bounds live in two ping-pong textures (DualBufferSet). Each
// texel holds (-near, far) so a single MAX blend tracks both bounds.
// Iteration i writes texture i%2 and reads texture (i+1)%2; iteration 0
// is the init pass.
//
// A peel pass (PeelPass) sends fragments lying on the near bound to the
// front layer and fragments on the far bound to the back layer. Fragments
// strictly between the bounds form the next bounds and are counted by
// the occlusion query (OcclusionGate). The AccumulationStage blends the
// front layer under the front accumulator and the back layer over the back
// accumulator. The Compositor blends the front accumulator, the back
// accumulator and the background under each other into the surface.
//
// # Termination
//
// A peel iteration whose occlusion count is zero ends the loop. A batch
// with K depth layers at a pixel is resolved in ceil(K/2) iterations. An
// unreadable count continues the loop, and WithMaxPasses bounds it.
// FrameStats reports which of these ended a frame.
//
// # Devices
//
// Rendering goes through gpucore.Device. The backend package opens a
// WebGPU device (backend/wgpu) or a CPU reference device (software).
//
// # Logging
//
// peel is silent by default. Use SetLogger to enable log/slog output.
package peel
