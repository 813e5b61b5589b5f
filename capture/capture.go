// Package capture reads renderer targets back from the device and writes
// them as PNG or OpenEXR files.
//
// Colors are stored premultiplied, which both image.RGBA and OpenEXR
// expect, so no conversion happens besides quantization for PNG.
package capture

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/gogpu/peel"
	"github.com/gogpu/peel/gpucore"
	"github.com/mrjoshuak/go-openexr/exr"
)

// ErrSizeMismatch is returned when a texture readback does not match the
// requested dimensions.
var ErrSizeMismatch = errors.New("capture: texel count does not match size")

// Image is a float RGBA image in row-major order.
type Image struct {
	Width, Height int
	Pix           []float32
}

// Read copies a CopySrc texture of the given size back from dev.
func Read(dev gpucore.Device, tex gpucore.TextureID, width, height int) (*Image, error) {
	px, err := dev.ReadTexture(tex)
	if err != nil {
		return nil, fmt.Errorf("capture: read texture %d: %w", tex, err)
	}
	if len(px) != width*height*4 {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrSizeMismatch, len(px), width, height)
	}
	return &Image{Width: width, Height: height, Pix: px}, nil
}

// At returns the RGBA values at (x, y).
func (img *Image) At(x, y int) (r, g, b, a float32) {
	i := (y*img.Width + x) * 4
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]
}

func to8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// RGBA quantizes the image to 8 bits per channel.
func (img *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, v := range img.Pix {
		out.Pix[i] = to8(v)
	}
	return out
}

// EXR converts the image to an OpenEXR RGBA image.
func (img *Image) EXR() *exr.RGBAImage {
	out := exr.NewRGBAImage(image.Rect(0, 0, img.Width, img.Height))
	copy(out.Pix, img.Pix)
	return out
}

// EncodePNG writes the image as PNG to w.
func (img *Image) EncodePNG(w io.Writer) error {
	return png.Encode(w, img.RGBA())
}

// EncodeEXR writes the image as OpenEXR (half float, ZIP) to w.
func (img *Image) EncodeEXR(w io.WriteSeeker) error {
	return exr.Encode(w, img.EXR())
}

// SavePNG writes the image to a PNG file.
func (img *Image) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return img.EncodePNG(f)
}

// SaveEXR writes the image to an OpenEXR file.
func (img *Image) SaveEXR(path string) error {
	return exr.EncodeFile(path, img.EXR())
}

// Save picks the encoder from the file extension: ".exr" writes OpenEXR,
// anything else PNG.
func (img *Image) Save(path string) error {
	if filepath.Ext(path) == ".exr" {
		return img.SaveEXR(path)
	}
	return img.SavePNG(path)
}

// Bounds visualizes a depth bounds readback: red is the near depth, green
// the far depth. Pixels no layer reached are transparent.
func Bounds(img *Image) *Image {
	out := &Image{Width: img.Width, Height: img.Height, Pix: make([]float32, len(img.Pix))}
	for i := 0; i < len(img.Pix); i += 4 {
		near, far := -img.Pix[i], img.Pix[i+1]
		if far < near {
			continue
		}
		out.Pix[i] = near
		out.Pix[i+1] = far
		out.Pix[i+3] = 1
	}
	return out
}

// Frame holds every target of the last rendered frame.
type Frame struct {
	Composite  *Image
	Bounds     *Image
	FrontAccum *Image
	BackAccum  *Image
}

// Capture reads the targets of r's last frame. Composite is nil when r
// presents to a surface other than its offscreen output.
func Capture(r *peel.Renderer) (*Frame, error) {
	w, h := r.Size()
	t := r.Targets()
	if t.Bounds == gpucore.InvalidID {
		return nil, fmt.Errorf("capture: %w", peel.ErrNotInitialized)
	}
	dev := r.Device()
	f := &Frame{}
	var err error
	if out := r.Output(); out != nil {
		if f.Composite, err = Read(dev, out.Texture(), w, h); err != nil {
			return nil, err
		}
	}
	bounds, err := Read(dev, t.Bounds, w, h)
	if err != nil {
		return nil, err
	}
	f.Bounds = Bounds(bounds)
	if f.FrontAccum, err = Read(dev, t.FrontAccum, w, h); err != nil {
		return nil, err
	}
	if f.BackAccum, err = Read(dev, t.BackAccum, w, h); err != nil {
		return nil, err
	}
	return f, nil
}

// WriteDir writes the frame to dir: composite.png and composite.exr,
// bounds.png, front_accum.exr and back_accum.exr.
func (f *Frame) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	files := []struct {
		name string
		img  *Image
	}{
		{"composite.png", f.Composite},
		{"composite.exr", f.Composite},
		{"bounds.png", f.Bounds},
		{"front_accum.exr", f.FrontAccum},
		{"back_accum.exr", f.BackAccum},
	}
	for _, file := range files {
		if file.img == nil {
			continue
		}
		if err := file.img.Save(filepath.Join(dir, file.name)); err != nil {
			return fmt.Errorf("capture: write %s: %w", file.name, err)
		}
	}
	return nil
}
