package capture

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/peel"
	"github.com/gogpu/peel/internal/soft"
	"github.com/gogpu/peel/scene"
	"github.com/mrjoshuak/go-openexr/exr"
)

func renderStack(t *testing.T) *peel.Renderer {
	t.Helper()
	dev := soft.New()
	t.Cleanup(dev.Destroy)
	r, err := peel.NewRenderer(dev, peel.WithBackground(nil))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Close)
	if err := r.Initialize(8, 6); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	res, err := scene.NewResources(r)
	if err != nil {
		t.Fatalf("NewResources: %v", err)
	}
	t.Cleanup(res.Release)
	s := scene.StackedQuads(res, res.Materials["blue"], 2, 3)
	if _, err := r.RenderFrame(s.Batch(), s.Camera); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	return r
}

func TestCaptureFrame(t *testing.T) {
	f, err := Capture(renderStack(t))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if f.Composite == nil || f.Composite.Width != 8 || f.Composite.Height != 6 {
		t.Fatalf("composite = %+v", f.Composite)
	}
	// two layers of alpha 0.5
	if _, _, _, a := f.Composite.At(4, 3); math.Abs(float64(a)-0.75) > 1e-3 {
		t.Errorf("composite alpha %v, want 0.75", a)
	}
	if _, _, _, a := f.FrontAccum.At(4, 3); math.Abs(float64(a)-0.5) > 1e-3 {
		t.Errorf("front accumulator alpha %v, want 0.5", a)
	}
}

func TestCaptureUninitialized(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	r, err := peel.NewRenderer(dev)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	defer r.Close()
	if _, err := Capture(r); !errors.Is(err, peel.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestWriteDir(t *testing.T) {
	f, err := Capture(renderStack(t))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "frame")
	if err := f.WriteDir(dir); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "composite.png"))
	if err != nil {
		t.Fatalf("read png: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if _, _, _, a := img.At(4, 3).RGBA(); a>>8 != 191 {
		t.Errorf("png alpha %d, want 191", a>>8)
	}

	decoded, err := exr.DecodeFile(filepath.Join(dir, "composite.exr"))
	if err != nil {
		t.Fatalf("decode exr: %v", err)
	}
	if _, _, _, a := decoded.RGBA(4, 3); math.Abs(float64(a)-0.75) > 1e-3 {
		t.Errorf("exr alpha %v, want 0.75", a)
	}
	for _, name := range []string{"bounds.png", "front_accum.exr", "back_accum.exr"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestBounds(t *testing.T) {
	img := &Image{Width: 2, Height: 1, Pix: []float32{
		-0.25, 0.75, 0, 0, // near 0.25, far 0.75
		-1, -1, 0, 0, // cleared
	}}
	out := Bounds(img)
	if r, g, _, a := out.At(0, 0); r != 0.25 || g != 0.75 || a != 1 {
		t.Errorf("written pixel = %v %v %v", r, g, a)
	}
	if _, _, _, a := out.At(1, 0); a != 0 {
		t.Errorf("cleared pixel alpha %v, want 0", a)
	}
}

func TestRGBAQuantization(t *testing.T) {
	img := &Image{Width: 1, Height: 1, Pix: []float32{-1, 0.5, 2, 1}}
	got := img.RGBA().Pix
	want := []uint8{0, 128, 255, 255}
	if !bytes.Equal(got, want) {
		t.Errorf("Pix = %v, want %v", got, want)
	}
}
