package gpucore

// ProgramKind selects one of the fixed shader programs a device provides.
//
// Bind group layouts are implied by the program:
//
//	ProgramDepthInit  group 0: frame uniforms (0), instance storage (1)
//	ProgramPeel       group 0: as above; group 1: material uniforms (0);
//	                  group 2: source depth bounds texture (0)
//	ProgramBlit       group 0: source texture (0)
//	ProgramSky        group 0: frame uniforms (0)
type ProgramKind uint8

const (
	// ProgramDepthInit writes (-depth, depth) for every covered fragment.
	ProgramDepthInit ProgramKind = iota + 1

	// ProgramPeel peels the nearest and farthest unresolved layers.
	// Targets: depth bounds, front layer, back layer.
	ProgramPeel

	// ProgramBlit copies a same-sized texture through the pipeline blend.
	ProgramBlit

	// ProgramSky fills the target with the solid or sky background.
	ProgramSky
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramDepthInit:
		return "DepthInit"
	case ProgramPeel:
		return "Peel"
	case ProgramBlit:
		return "Blit"
	case ProgramSky:
		return "Sky"
	default:
		return "Unknown"
	}
}

// BindGroupCount returns how many bind groups the program uses.
func (k ProgramKind) BindGroupCount() int {
	switch k {
	case ProgramPeel:
		return 3
	case ProgramDepthInit, ProgramBlit, ProgramSky:
		return 1
	default:
		return 0
	}
}

// UsesVertexBuffer reports whether the program reads geometry from slot 0.
// Fullscreen programs generate their triangle from the vertex index.
func (k ProgramKind) UsesVertexBuffer() bool {
	return k == ProgramDepthInit || k == ProgramPeel
}

// BlendFactor is a multiplier applied to a blend input.
type BlendFactor uint8

// Blend factors.
const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
)

// BlendOperation combines the weighted source and destination.
type BlendOperation uint8

// Blend operations.
const (
	BlendOperationAdd BlendOperation = iota
	// BlendOperationMax takes the component-wise maximum; factors are ignored.
	BlendOperationMax
)

// BlendComponent describes the blend of either the color or the alpha channel.
type BlendComponent struct {
	SrcFactor BlendFactor
	DstFactor BlendFactor
	Operation BlendOperation
}

// BlendState describes how fragment output merges into a color target.
type BlendState struct {
	Color BlendComponent
	Alpha BlendComponent
}

func uniformBlend(c BlendComponent) BlendState {
	return BlendState{Color: c, Alpha: c}
}

// BlendMax merges by component-wise maximum.
func BlendMax() BlendState {
	return uniformBlend(BlendComponent{
		SrcFactor: BlendFactorOne,
		DstFactor: BlendFactorOne,
		Operation: BlendOperationMax,
	})
}

// BlendUnder composites the source behind the destination:
// dst = src*(1-dst.a) + dst.
func BlendUnder() BlendState {
	return uniformBlend(BlendComponent{
		SrcFactor: BlendFactorOneMinusDstAlpha,
		DstFactor: BlendFactorOne,
		Operation: BlendOperationAdd,
	})
}

// BlendOver composites the source in front of the destination:
// dst = src + dst*(1-src.a).
func BlendOver() BlendState {
	return uniformBlend(BlendComponent{
		SrcFactor: BlendFactorOne,
		DstFactor: BlendFactorOneMinusSrcAlpha,
		Operation: BlendOperationAdd,
	})
}

// ColorTargetDesc describes one color output of a pipeline.
type ColorTargetDesc struct {
	Format TextureFormat
	// Blend is nil for replace.
	Blend *BlendState
}

// RenderPipelineDesc describes a render pipeline.
type RenderPipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Program is the shader program the pipeline runs.
	Program ProgramKind

	// Targets must match the color attachments of every pass the pipeline
	// is used in, in order.
	Targets []ColorTargetDesc
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label  string
	Width  int
	Height int
	Format TextureFormat
	Usage  TextureUsage
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// BindGroupEntry describes a single binding in a bind group.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64

	// Texture is the texture to bind (for texture bindings).
	Texture TextureID
}

// BindGroupDesc describes a bind group for one group slot of a program.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Program and Group select the implied bind group layout.
	Program ProgramKind
	Group   uint32

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}

// QuerySetDesc describes a set of occlusion queries.
type QuerySetDesc struct {
	Label string
	Count uint32
}

// ColorAttachment binds a texture as a render pass output.
type ColorAttachment struct {
	Texture TextureID
	LoadOp  LoadOp
	Clear   Color
}

// RenderPassDesc describes a render pass.
type RenderPassDesc struct {
	Label            string
	ColorAttachments []ColorAttachment

	// OcclusionQuerySet receives the counts of occlusion queries begun
	// inside the pass. InvalidID disables queries.
	OcclusionQuerySet QuerySetID
}
