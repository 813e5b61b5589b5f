package gpucore

import (
	"errors"
	"slices"
)

// Device errors.
var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrInvalidDescriptor is returned for malformed descriptors.
	ErrInvalidDescriptor = errors.New("gpucore: invalid descriptor")

	// ErrBufferMapped is returned when a buffer is mapped while it is
	// already mapped, or written while mapped.
	ErrBufferMapped = errors.New("gpucore: buffer is mapped")

	// ErrResourceHazard is returned when a texture is bound as a shader
	// input and as a color attachment of the same pass.
	ErrResourceHazard = errors.New("gpucore: texture used as input and attachment in one pass")

	// ErrEncoderFinished is returned when an encoder is used after Finish.
	ErrEncoderFinished = errors.New("gpucore: encoder already finished")

	// ErrReadbackTimeout is returned when GPU work does not complete in time.
	ErrReadbackTimeout = errors.New("gpucore: readback timed out")
)

// Caps describes what a device supports.
type Caps struct {
	// Name identifies the device, e.g. "software" or the adapter name.
	Name string

	// MaxTextureDimension is the largest supported texture edge.
	MaxTextureDimension int

	// BlendableFormats lists formats usable as blended color targets.
	BlendableFormats []TextureFormat
}

// CanBlend reports whether f can be used as a blended color target.
func (c Caps) CanBlend(f TextureFormat) bool {
	return slices.Contains(c.BlendableFormats, f)
}

// Device abstracts over GPU implementations.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction; a stale ID never names a new resource
//
// Queue operations (WriteBuffer, Submit) execute in call order. Submit does
// not wait for completion; MapRead and ReadTexture wait for the work that
// produced their data.
type Device interface {
	// Caps returns the device capabilities.
	Caps() Caps

	CreateTexture(desc *TextureDesc) (TextureID, error)
	DestroyTexture(id TextureID)

	CreateBuffer(desc *BufferDesc) (BufferID, error)
	DestroyBuffer(id BufferID)

	// WriteBuffer schedules a host write ahead of later submissions.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	CreateRenderPipeline(desc *RenderPipelineDesc) (PipelineID, error)
	DestroyRenderPipeline(id PipelineID)

	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)
	DestroyBindGroup(id BindGroupID)

	CreateQuerySet(desc *QuerySetDesc) (QuerySetID, error)
	DestroyQuerySet(id QuerySetID)

	// CreateCommandEncoder starts recording a command buffer.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit queues finished command buffers for execution.
	Submit(cmds ...CommandBuffer) error

	// MapRead maps a MapRead buffer range for host reading once the work
	// writing it has completed. The returned slice is valid until Unmap.
	// Returns ErrBufferMapped if the buffer is already mapped.
	MapRead(id BufferID, offset, size uint64) ([]byte, error)

	// Unmap releases a mapping. Unmapping an unmapped buffer is a no-op.
	Unmap(id BufferID)

	// IsMapped reports whether the buffer is currently mapped.
	IsMapped(id BufferID) bool

	// ReadTexture returns the texels of a CopySrc texture as RGBA float32
	// quadruples in row-major order. Two-channel formats report B and A as 0.
	ReadTexture(id TextureID) ([]float32, error)

	// Destroy releases every resource owned by the device.
	Destroy()
}

// CommandEncoder records commands into a command buffer.
// Recording errors are deferred and reported by Finish. Resource errors
// (unknown IDs, hazards) are reported by Finish or, on devices that look
// resources up at submission, by Submit.
type CommandEncoder interface {
	// BeginRenderPass starts a render pass. The pass must be ended before
	// any other command is recorded.
	BeginRenderPass(desc *RenderPassDesc) RenderPassEncoder

	// ResolveQuerySet writes count results starting at first into dst as
	// little-endian uint64 values.
	ResolveQuerySet(set QuerySetID, first, count uint32, dst BufferID, dstOffset uint64)

	// Finish ends recording.
	Finish() (CommandBuffer, error)

	// Discard abandons recording.
	Discard()
}

// RenderPassEncoder records draw commands.
//
// Usage:
//  1. Obtain encoder from CommandEncoder.BeginRenderPass()
//  2. Set pipeline, bind groups and vertex buffer
//  3. Draw, optionally between Begin/EndOcclusionQuery
//  4. Call End() to finish recording
type RenderPassEncoder interface {
	SetPipeline(pipeline PipelineID)
	SetBindGroup(index uint32, group BindGroupID)
	SetVertexBuffer(slot uint32, buffer BufferID, offset uint64)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// BeginOcclusionQuery resets query index of the pass's occlusion query
	// set and counts surviving fragments until EndOcclusionQuery.
	BeginOcclusionQuery(index uint32)
	EndOcclusionQuery()

	End()
}

// CommandBuffer is a finished, submittable recording.
type CommandBuffer interface {
	Label() string
}
