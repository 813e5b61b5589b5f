// Package gpucore provides the GPU abstraction the peel renderer records against.
//
// This package defines the [Device] interface, which abstracts over different
// GPU implementations, allowing the same peeling pipeline to run on:
//   - gogpu/wgpu (Pure Go WebGPU via HAL, package backend/wgpu)
//   - the software device (CPU rasterizer, package internal/soft)
//
// # Architecture
//
// The peel loop is implemented once in the root package, while devices
// translate between the [Device] interface and a concrete backend.
//
//	               +-----------------+
//	               |      peel       |
//	               |   (Renderer)    |
//	               +--------+--------+
//	                        |
//	                 gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  wgpu device    |          | software device |
//	|  (hal.Device)   |          |  (CPU raster)   |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Programs
//
// Devices do not compile user shaders. Each pipeline selects one of a fixed
// set of programs ([ProgramKind]) whose bind group layouts and data layouts
// ([FrameUniforms], [MaterialUniforms], [Vertex]) are shared by all devices.
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.)
// issued from an [Arena]. Shared state such as bind group layouts is owned by
// the device and referenced by program, never by pointer, so pipelines and
// bind groups hold no references to each other.
package gpucore
