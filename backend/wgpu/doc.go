// Package wgpu implements gpucore.Device on the Pure Go WebGPU HAL
// (github.com/gogpu/wgpu/hal).
//
// Importing the package registers the "wgpu" backend:
//
//	import _ "github.com/gogpu/peel/backend/wgpu"
//
//	dev, err := backend.OpenDefault()
//
// A host application that already owns a HAL device wraps it with
// NewFromHAL or NewFromProvider instead.
//
// # Shaders
//
// Each gpucore.ProgramKind is a WGSL module embedded from shaders/. On
// Vulkan the modules are compiled to SPIR-V with naga.
//
// # Occlusion queries
//
// The HAL render pass has no occlusion queries. The peel shader instead
// adds one to an atomic counter per fragment strictly inside the depth
// bounds. Each query index owns a counter at a 256-byte stride, bound
// through a dynamic offset of the device-owned bind group 3. Counters are
// cleared before the pass that begins their query, and ResolveQuerySet
// widens them to the uint64 results gpucore defines. Peel draws outside a
// query count into a scratch slot.
package wgpu
