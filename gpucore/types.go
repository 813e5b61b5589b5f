package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate generation-tagged arena handles.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// PipelineID is an opaque handle to a render pipeline.
type PipelineID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// QuerySetID is an opaque handle to a set of occlusion queries.
type QuerySetID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 1

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 2

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 4

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 5

	// BufferUsageQueryResolve indicates the buffer can receive resolved query results.
	BufferUsageQueryResolve BufferUsage = 1 << 6
)

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be read back to the host.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageTextureBinding indicates the texture can be bound as a shader input.
	TextureUsageTextureBinding TextureUsage = 1 << 1

	// TextureUsageRenderAttachment indicates the texture can be used as a render target.
	TextureUsageRenderAttachment TextureUsage = 1 << 2
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatUndefined selects a format automatically where allowed.
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm

	// TextureFormatRG16Float is 16-bit RG, floating point.
	TextureFormatRG16Float

	// TextureFormatRG32Float is 32-bit RG, floating point.
	TextureFormatRG32Float

	// TextureFormatRGBA16Float is 16-bit RGBA, floating point.
	TextureFormatRGBA16Float

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float
)

// Channels returns the number of color channels stored by the format.
func (f TextureFormat) Channels() int {
	switch f {
	case TextureFormatRG16Float, TextureFormatRG32Float:
		return 2
	case TextureFormatRGBA8Unorm, TextureFormatRGBA16Float, TextureFormatRGBA32Float:
		return 4
	default:
		return 0
	}
}

// BytesPerTexel returns the size of one texel in bytes.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatRG16Float:
		return 4
	case TextureFormatRG32Float, TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// IsHalf reports whether the format stores 16-bit floats.
func (f TextureFormat) IsHalf() bool {
	return f == TextureFormatRG16Float || f == TextureFormatRGBA16Float
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatUndefined:
		return "Undefined"
	case TextureFormatRGBA8Unorm:
		return "RGBA8Unorm"
	case TextureFormatRG16Float:
		return "RG16Float"
	case TextureFormatRG32Float:
		return "RG32Float"
	case TextureFormatRGBA16Float:
		return "RGBA16Float"
	case TextureFormatRGBA32Float:
		return "RGBA32Float"
	default:
		return fmt.Sprintf("TextureFormat(%d)", uint32(f))
	}
}

// LoadOp selects what happens to an attachment at the start of a render pass.
type LoadOp uint8

const (
	// LoadOpClear fills the attachment with the clear color.
	LoadOpClear LoadOp = iota
	// LoadOpLoad preserves the previous contents.
	LoadOpLoad
)

// Color is a linear RGBA color used for attachment clears.
type Color struct {
	R, G, B, A float64
}

// Vertex is the vertex layout shared by every geometry program.
// Must match VertexInput in the WGSL shaders.
type Vertex struct {
	Position [3]float32
	UV       [2]float32
}

// VertexStride is the size of a Vertex in bytes.
const VertexStride = 20

// FrameUniforms holds per-frame parameters.
// Must match FrameUniforms in the WGSL shaders.
type FrameUniforms struct {
	ViewProj [16]float32 // Column-major view-projection matrix
	Forward  [4]float32  // Camera forward axis
	Right    [4]float32  // Camera right axis scaled by tan(fovY/2)*aspect
	Up       [4]float32  // Camera up axis scaled by tan(fovY/2)
	Horizon  [4]float32  // Background color, or sky color at the horizon
	Zenith   [4]float32  // Sky color straight up
	Params   [4]float32  // width, height, background mode, half-precision bounds flag
}

// FrameUniformsSize is the size of FrameUniforms in bytes.
const FrameUniformsSize = 160

// Background modes stored in FrameUniforms.Params[2].
const (
	BackgroundSolid = 0
	BackgroundSky   = 1
)

// MaterialUniforms holds the parameters of one flat or checkered material.
// Must match MaterialUniforms in peel.wgsl.
type MaterialUniforms struct {
	BaseColor    [4]float32 // Straight (non-premultiplied) RGBA
	CheckerColor [4]float32 // Second checker color, straight RGBA
	Params       [4]float32 // checker scale (0 disables), unused x3
}

// MaterialUniformsSize is the size of MaterialUniforms in bytes.
const MaterialUniformsSize = 48

// InstanceSize is the size of one per-instance model matrix in bytes.
const InstanceSize = 64

// QueryResultSize is the size of one resolved occlusion query result.
const QueryResultSize = 8

// MaxDepth is the far end of the device depth range.
const MaxDepth = 1.0
