package soft

import (
	"math"
	"testing"

	"github.com/gogpu/peel/gpucore"
)

func approx(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-6 }

func TestApplyBlend(t *testing.T) {
	max := gpucore.BlendMax()
	under := gpucore.BlendUnder()
	over := gpucore.BlendOver()

	tests := []struct {
		name  string
		blend *gpucore.BlendState
		src   rgba
		dst   rgba
		want  rgba
	}{
		{"replace", nil, rgba{1, 2, 3, 4}, rgba{9, 9, 9, 9}, rgba{1, 2, 3, 4}},
		{"max", &max, rgba{-0.3, 0.2, 0, 0}, rgba{-0.5, 0.7, 0, 0}, rgba{-0.3, 0.7, 0, 0}},
		{"under empty", &under, rgba{0.25, 0, 0, 0.5}, rgba{}, rgba{0.25, 0, 0, 0.5}},
		{"under half", &under, rgba{0, 0.5, 0, 0.5}, rgba{0.5, 0, 0, 0.5}, rgba{0.5, 0.25, 0, 0.75}},
		{"under opaque", &under, rgba{0, 1, 0, 1}, rgba{1, 0, 0, 1}, rgba{1, 0, 0, 1}},
		{"over half", &over, rgba{0, 0.5, 0, 0.5}, rgba{0.5, 0, 0, 0.5}, rgba{0.25, 0.5, 0, 0.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyBlend(tt.blend, tt.src, tt.dst)
			for i := range got {
				if !approx(got[i], tt.want[i]) {
					t.Fatalf("applyBlend = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestQuantize(t *testing.T) {
	v := rgba{0.1, 0.2, 0.3, 0.4}

	rg := quantize(gpucore.TextureFormatRG32Float, v)
	if rg != (rgba{0.1, 0.2, 0, 0}) {
		t.Errorf("RG32Float = %v, want B and A dropped", rg)
	}

	h := quantize(gpucore.TextureFormatRGBA16Float, v)
	if h[0] == v[0] || !approx(float32(math.Round(float64(h[0])*1000)/1000), 0.1) {
		t.Errorf("RGBA16Float did not round 0.1 to half precision: %v", h[0])
	}

	u := quantize(gpucore.TextureFormatRGBA8Unorm, rgba{-1, 2, 0.5, 1})
	if u != (rgba{0, 1, 128.0 / 255, 1}) {
		t.Errorf("RGBA8Unorm = %v", u)
	}
}

func TestQuantizeHalfKeepsExactValues(t *testing.T) {
	for _, f := range []float32{0, 0.5, 0.75, 1, -1} {
		if got := quantizeHalf(f); got != f {
			t.Errorf("quantizeHalf(%v) = %v", f, got)
		}
	}
}
