package peel

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/internal/soft"
)

func TestNewRendererNilDevice(t *testing.T) {
	if _, err := NewRenderer(nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("err = %v, want ErrNilDevice", err)
	}
}

func TestInitializeConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		dev    func() *soft.Device
		opts   []Option
		w, h   int
		want   error
		bounds gpucore.TextureFormat
	}{
		{
			name:   "prefers RG32Float",
			dev:    func() *soft.Device { return soft.New() },
			w:      4, h: 4,
			bounds: gpucore.TextureFormatRG32Float,
		},
		{
			name: "falls back to RG16Float",
			dev: func() *soft.Device {
				return soft.New(soft.WithBlendableFormats(gpucore.TextureFormatRG16Float, gpucore.TextureFormatRGBA16Float))
			},
			w: 4, h: 4,
			bounds: gpucore.TextureFormatRG16Float,
		},
		{
			name:   "forced format",
			dev:    func() *soft.Device { return soft.New() },
			opts:   []Option{WithDepthBoundsFormat(gpucore.TextureFormatRG16Float)},
			w:      4, h: 4,
			bounds: gpucore.TextureFormatRG16Float,
		},
		{
			name: "forced format not blendable",
			dev: func() *soft.Device {
				return soft.New(soft.WithBlendableFormats(gpucore.TextureFormatRG16Float, gpucore.TextureFormatRGBA16Float))
			},
			opts: []Option{WithDepthBoundsFormat(gpucore.TextureFormatRG32Float)},
			w:    4, h: 4,
			want: ErrConfiguration,
		},
		{
			name: "no blendable bounds format",
			dev: func() *soft.Device {
				return soft.New(soft.WithBlendableFormats(gpucore.TextureFormatRGBA16Float))
			},
			w: 4, h: 4,
			want: ErrConfiguration,
		},
		{
			name: "layers not blendable",
			dev: func() *soft.Device {
				return soft.New(soft.WithBlendableFormats(gpucore.TextureFormatRG32Float))
			},
			w: 4, h: 4,
			want: ErrConfiguration,
		},
		{
			name: "zero width",
			dev:  func() *soft.Device { return soft.New() },
			w:    0, h: 4,
			want: ErrConfiguration,
		},
		{
			name: "too large",
			dev:  func() *soft.Device { return soft.New(soft.WithMaxTextureDimension(16)) },
			w:    17, h: 4,
			want: ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := tt.dev()
			defer dev.Destroy()
			r, err := NewRenderer(dev, tt.opts...)
			if err != nil {
				t.Fatalf("NewRenderer: %v", err)
			}
			defer r.Close()

			err = r.Initialize(tt.w, tt.h)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("Initialize err = %v, want %v", err, tt.want)
				}
				if _, err := r.RenderFrame(&RenderableBatch{}, NewCamera(mgl32.Vec3{0, 0, 1}, mgl32.Vec3{})); !errors.Is(err, ErrNotInitialized) {
					t.Errorf("RenderFrame after failed Initialize: err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if got := r.Targets().BoundsFormat; got != tt.bounds {
				t.Errorf("bounds format %v, want %v", got, tt.bounds)
			}
		})
	}
}

func TestHalfBoundsPeelsLikeFullPrecision(t *testing.T) {
	half := newFixtureOn(t, soft.New(soft.WithBlendableFormats(gpucore.TextureFormatRG16Float, gpucore.TextureFormatRGBA16Float)), 6, 6)
	full := newFixture(t, 6, 6)
	distances := []float32{1, 2, 4, 8}

	hs := half.render(t, half.stack(distances...))
	fs := full.render(t, full.stack(distances...))
	if hs.PeelIterations != fs.PeelIterations || hs.Termination != TerminatedByOcclusion {
		t.Errorf("half stats %+v, full stats %+v", hs, fs)
	}
	hp, fp := half.pixels(t), full.pixels(t)
	for i := range hp {
		if !approx(hp[i], fp[i]) {
			t.Fatalf("component %d: half %v, full %v", i, hp[i], fp[i])
		}
	}
}

func TestResizeReallocates(t *testing.T) {
	f := newFixture(t, 4, 4)
	f.render(t, f.stack(1, 2))
	old := f.r.Output().Texture()

	if err := f.r.Resize(6, 3); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := f.r.Size(); w != 6 || h != 3 {
		t.Errorf("Size = %dx%d", w, h)
	}
	if _, err := f.dev.ReadTexture(old); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("old composite still alive: %v", err)
	}
	f.render(t, f.stack(1, 2))
	if px := f.pixels(t); len(px) != 6*3*4 {
		t.Errorf("%d components after resize, want %d", len(px), 6*3*4)
	}
	if err := f.r.Resize(0, 3); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Resize(0, 3) err = %v", err)
	}
}

func TestRendererCloseReleasesResources(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	r, err := NewRenderer(dev)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if err := r.Initialize(2, 2); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := r.CreateGeometry(unitQuad()); err != nil {
		t.Fatalf("CreateGeometry: %v", err)
	}
	if _, err := r.CreateGeometry(unitQuad()[:4]); !errors.Is(err, gpucore.ErrInvalidDescriptor) {
		t.Errorf("CreateGeometry(4 vertices) err = %v", err)
	}
	composite := r.Output().Texture()
	bounds := r.buffers.Current(0).Dest

	r.Close()
	r.Close()
	for _, id := range []gpucore.TextureID{composite, bounds} {
		if _, err := dev.ReadTexture(id); !errors.Is(err, gpucore.ErrUnknownResource) {
			t.Errorf("texture %d still alive after Close", id)
		}
	}
	if r.geometries.Len() != 0 {
		t.Errorf("%d geometries left", r.geometries.Len())
	}
	if _, err := r.CreateMaterial(Material{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateMaterial after Close err = %v", err)
	}
	renderersMu.Lock()
	_, live := renderers[r]
	renderersMu.Unlock()
	if live {
		t.Error("closed renderer still registered")
	}
}

func TestFreezeCopiesBatch(t *testing.T) {
	f := newFixture(t, 2, 2)
	b := f.stack(1, 2)
	fb, err := f.r.freeze(b)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	b.Instances[0] = mgl32.Ident4()
	b.Draws[0].InstanceCount = 0
	if fb.instances[0] == mgl32.Ident4() {
		t.Error("frozen instances alias the caller's slice")
	}
	if len(fb.draws) != 1 || fb.draws[0].instanceCount != 2 {
		t.Errorf("frozen draws %+v", fb.draws)
	}

	empty := &RenderableBatch{Instances: b.Instances, Draws: []DrawDescriptor{{Geometry: f.quad, Material: f.glass}}}
	fb, err = f.r.freeze(empty)
	if err != nil || len(fb.draws) != 0 {
		t.Errorf("zero-instance draw: %+v, %v", fb, err)
	}
}
