package wgpu

import (
	"strings"
	"testing"

	"github.com/gogpu/peel/gpucore"
)

var programs = []gpucore.ProgramKind{
	gpucore.ProgramDepthInit,
	gpucore.ProgramPeel,
	gpucore.ProgramBlit,
	gpucore.ProgramSky,
}

func TestShadersCompileToSPIRV(t *testing.T) {
	for _, k := range programs {
		t.Run(k.String(), func(t *testing.T) {
			src, ok := shaderSource(k)
			if !ok || src == "" {
				t.Fatalf("no source for %v", k)
			}
			words, err := compileSPIRV(src)
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				t.Fatalf("compile %v: %v", k, err)
			}
			if len(words) == 0 {
				t.Fatal("SPIR-V output is empty")
			}
			if words[0] != 0x07230203 {
				t.Errorf("SPIR-V magic = %#x", words[0])
			}
		})
	}
}

func TestShaderEntryPoints(t *testing.T) {
	for _, k := range programs {
		src, _ := shaderSource(k)
		for _, entry := range []string{"fn vs_main(", "fn fs_main("} {
			if !strings.Contains(src, entry) {
				t.Errorf("%v shader lacks %s", k, entry)
			}
		}
	}
}

func TestLayoutGroupsMatchPrograms(t *testing.T) {
	for _, k := range programs {
		groups := len(layoutEntries(k))
		want := k.BindGroupCount()
		if k == gpucore.ProgramPeel {
			want++ // occlusion counter
		}
		if groups != want {
			t.Errorf("%v: %d layout groups, want %d", k, groups, want)
		}
	}
	peel := layoutEntries(gpucore.ProgramPeel)[occlusionGroup][0]
	if peel.Buffer == nil || !peel.Buffer.HasDynamicOffset {
		t.Error("occlusion group must use a dynamic offset")
	}
}

func TestPeelShaderDepthQuantization(t *testing.T) {
	for _, k := range []gpucore.ProgramKind{gpucore.ProgramDepthInit, gpucore.ProgramPeel} {
		src, _ := shaderSource(k)
		if !strings.Contains(src, "pack2x16float") {
			t.Errorf("%v shader does not quantize depth for half bounds", k)
		}
	}
}
