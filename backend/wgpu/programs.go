package wgpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL sources, one per gpucore.ProgramKind.

//go:embed shaders/depth_init.wgsl
var depthInitShaderSource string

//go:embed shaders/peel.wgsl
var peelShaderSource string

//go:embed shaders/blit.wgsl
var blitShaderSource string

//go:embed shaders/sky.wgsl
var skyShaderSource string

// occlusionGroup is the bind group the peel shader counts fragments in.
// gpucore programs use groups 0-2; the occlusion slot is device-owned.
const occlusionGroup = 3

// querySlotStride separates occlusion counters so each one can be bound
// with a dynamic offset (minStorageBufferOffsetAlignment).
const querySlotStride = 256

// shaderSource returns the WGSL source of a program.
func shaderSource(k gpucore.ProgramKind) (string, bool) {
	switch k {
	case gpucore.ProgramDepthInit:
		return depthInitShaderSource, true
	case gpucore.ProgramPeel:
		return peelShaderSource, true
	case gpucore.ProgramBlit:
		return blitShaderSource, true
	case gpucore.ProgramSky:
		return skyShaderSource, true
	default:
		return "", false
	}
}

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// frameLayoutEntries is group 0 of the geometry programs.
func frameLayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: gpucore.FrameUniformsSize,
			},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageVertex,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeReadOnlyStorage,
				MinBindingSize: gpucore.InstanceSize,
			},
		},
	}
}

// sourceTextureEntry binds an unfilterable float texture read with textureLoad.
func sourceTextureEntry() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}}
}

// layoutEntries returns the bind group layout entries of every group a
// program uses, including the device-owned occlusion group of ProgramPeel.
func layoutEntries(k gpucore.ProgramKind) [][]gputypes.BindGroupLayoutEntry {
	switch k {
	case gpucore.ProgramDepthInit:
		return [][]gputypes.BindGroupLayoutEntry{frameLayoutEntries()}
	case gpucore.ProgramPeel:
		return [][]gputypes.BindGroupLayoutEntry{
			frameLayoutEntries(),
			{{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeUniform,
					MinBindingSize: gpucore.MaterialUniformsSize,
				},
			}},
			sourceTextureEntry(),
			{{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{
					Type:             gputypes.BufferBindingTypeStorage,
					HasDynamicOffset: true,
					MinBindingSize:   4,
				},
			}},
		}
	case gpucore.ProgramBlit:
		return [][]gputypes.BindGroupLayoutEntry{sourceTextureEntry()}
	case gpucore.ProgramSky:
		return [][]gputypes.BindGroupLayoutEntry{{{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: gpucore.FrameUniformsSize,
			},
		}}}
	default:
		return nil
	}
}

// program holds the shader module and layouts shared by every pipeline
// and bind group of one gpucore.ProgramKind.
type program struct {
	kind   gpucore.ProgramKind
	module hal.ShaderModule
	groups []hal.BindGroupLayout
	layout hal.PipelineLayout
}

// loadProgram compiles a program and creates its layouts. Must be called
// with d.mu held.
func (d *Device) loadProgram(k gpucore.ProgramKind) (*program, error) {
	if p, ok := d.programs[k]; ok {
		return p, nil
	}
	src, ok := shaderSource(k)
	if !ok {
		return nil, fmt.Errorf("wgpu: program %v: %w", k, gpucore.ErrInvalidDescriptor)
	}

	source := hal.ShaderSource{WGSL: src}
	if d.spirv {
		words, err := compileSPIRV(src)
		if err != nil {
			return nil, fmt.Errorf("wgpu: compile %v shader: %w", k, err)
		}
		source = hal.ShaderSource{SPIRV: words}
	}

	p := &program{kind: k}
	var err error
	p.module, err = d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "peel_" + k.String(),
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %v shader module: %w", k, err)
	}
	for i, entries := range layoutEntries(k) {
		l, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("peel_%v_group%d", k, i),
			Entries: entries,
		})
		if err != nil {
			d.destroyProgram(p)
			return nil, fmt.Errorf("wgpu: create %v bind group layout %d: %w", k, i, err)
		}
		p.groups = append(p.groups, l)
	}
	p.layout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "peel_" + k.String() + "_layout",
		BindGroupLayouts: p.groups,
	})
	if err != nil {
		d.destroyProgram(p)
		return nil, fmt.Errorf("wgpu: create %v pipeline layout: %w", k, err)
	}
	d.programs[k] = p
	slogger().Debug("wgpu: program loaded", "program", k.String(), "spirv", d.spirv)
	return p, nil
}

func (d *Device) destroyProgram(p *program) {
	if p.layout != nil {
		d.dev.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for _, l := range p.groups {
		d.dev.DestroyBindGroupLayout(l)
	}
	p.groups = nil
	if p.module != nil {
		d.dev.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// vertexLayout matches gpucore.Vertex.
var vertexLayout = []gputypes.VertexBufferLayout{{
	ArrayStride: gpucore.VertexStride,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
	},
}}

var blendFactors = map[gpucore.BlendFactor]gputypes.BlendFactor{
	gpucore.BlendFactorZero:             gputypes.BlendFactorZero,
	gpucore.BlendFactorOne:              gputypes.BlendFactorOne,
	gpucore.BlendFactorSrcAlpha:         gputypes.BlendFactorSrcAlpha,
	gpucore.BlendFactorOneMinusSrcAlpha: gputypes.BlendFactorOneMinusSrcAlpha,
	gpucore.BlendFactorDstAlpha:         gputypes.BlendFactorDstAlpha,
	gpucore.BlendFactorOneMinusDstAlpha: gputypes.BlendFactorOneMinusDstAlpha,
}

func convertBlendComponent(c gpucore.BlendComponent) gputypes.BlendComponent {
	if c.Operation == gpucore.BlendOperationMax {
		// Min and max require unit factors.
		return gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationMax,
		}
	}
	return gputypes.BlendComponent{
		SrcFactor: blendFactors[c.SrcFactor],
		DstFactor: blendFactors[c.DstFactor],
		Operation: gputypes.BlendOperationAdd,
	}
}

func convertBlend(b *gpucore.BlendState) *gputypes.BlendState {
	if b == nil {
		return nil
	}
	return &gputypes.BlendState{
		Color: convertBlendComponent(b.Color),
		Alpha: convertBlendComponent(b.Alpha),
	}
}
