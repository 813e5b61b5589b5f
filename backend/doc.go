// Package backend selects the gpucore.Device a peel.Renderer draws with.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The software backend is registered when this package is imported; the
// WebGPU backend registers itself when its package is imported:
//
//	import (
//		"github.com/gogpu/peel/backend"
//		_ "github.com/gogpu/peel/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use OpenDefault to open the best available device, or Open to request
// a specific backend by name:
//
//	// The WebGPU device if one can be opened, otherwise software
//	dev, err := backend.OpenDefault()
//
//	// Or request a specific backend
//	dev, err := backend.Open(backend.BackendSoftware)
//
// The software device rasterizes on the CPU. It is exact and
// deterministic, which makes it the reference for tests, but it is slow.
package backend
