package soft

import (
	"math"

	"github.com/gogpu/peel/gpucore"
	"github.com/mrjoshuak/go-openexr/half"
)

type rgba = [4]float32

func blendFactor(f gpucore.BlendFactor, src, dst rgba) float32 {
	switch f {
	case gpucore.BlendFactorOne:
		return 1
	case gpucore.BlendFactorSrcAlpha:
		return src[3]
	case gpucore.BlendFactorOneMinusSrcAlpha:
		return 1 - src[3]
	case gpucore.BlendFactorDstAlpha:
		return dst[3]
	case gpucore.BlendFactorOneMinusDstAlpha:
		return 1 - dst[3]
	default:
		return 0
	}
}

func blendChannel(c gpucore.BlendComponent, s, d float32, src, dst rgba) float32 {
	if c.Operation == gpucore.BlendOperationMax {
		return max(s, d)
	}
	return s*blendFactor(c.SrcFactor, src, dst) + d*blendFactor(c.DstFactor, src, dst)
}

// applyBlend merges src into dst. A nil state replaces dst.
func applyBlend(b *gpucore.BlendState, src, dst rgba) rgba {
	if b == nil {
		return src
	}
	return rgba{
		blendChannel(b.Color, src[0], dst[0], src, dst),
		blendChannel(b.Color, src[1], dst[1], src, dst),
		blendChannel(b.Color, src[2], dst[2], src, dst),
		blendChannel(b.Alpha, src[3], dst[3], src, dst),
	}
}

func quantizeHalf(v float32) float32 {
	return half.FromFloat32(v).Float32()
}

func quantizeUnorm8(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	v = min(max(v, 0), 1)
	return float32(math.Round(float64(v)*255)) / 255
}

// quantize stores v the way a texture of format f would.
func quantize(f gpucore.TextureFormat, v rgba) rgba {
	if f.Channels() == 2 {
		v[2], v[3] = 0, 0
	}
	switch {
	case f.IsHalf():
		for i := range v {
			v[i] = quantizeHalf(v[i])
		}
	case f == gpucore.TextureFormatRGBA8Unorm:
		for i := range v {
			v[i] = quantizeUnorm8(v[i])
		}
	}
	return v
}

func premultiply(c rgba) rgba {
	return rgba{c[0] * c[3], c[1] * c[3], c[2] * c[3], c[3]}
}
