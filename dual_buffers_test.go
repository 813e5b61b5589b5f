package peel

import (
	"errors"
	"testing"

	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/internal/soft"
)

func TestDualBufferSetAlternates(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	s, err := newDualBufferSet(dev, 4, 4, gpucore.TextureFormatRG32Float)
	if err != nil {
		t.Fatalf("newDualBufferSet: %v", err)
	}
	defer s.Release()

	for i := 0; i < 6; i++ {
		cur, next := s.Current(i), s.Current(i+1)
		if cur.Source == cur.Dest {
			t.Fatalf("iteration %d reads and writes the same texture", i)
		}
		if next.Source != cur.Dest {
			t.Errorf("iteration %d source %d, want iteration %d dest %d", i+1, next.Source, i, cur.Dest)
		}
		want := s.buffers[0]
		if i%2 == 1 {
			want = s.buffers[1]
		}
		if cur.Dest != want {
			t.Errorf("iteration %d writes %d, want %d", i, cur.Dest, want)
		}
	}
	if s.Current(1).SourceGroup != s.sources[0] {
		t.Error("source bind group does not follow the source texture")
	}
}

func TestDualBufferSetRejectsZeroSize(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	for _, size := range [][2]int{{0, 4}, {4, 0}, {-1, 4}} {
		if _, err := newDualBufferSet(dev, size[0], size[1], gpucore.TextureFormatRG32Float); !errors.Is(err, ErrConfiguration) {
			t.Errorf("size %v: err = %v, want ErrConfiguration", size, err)
		}
	}
}

func TestDualBufferSetRelease(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	s, err := newDualBufferSet(dev, 2, 2, gpucore.TextureFormatRG16Float)
	if err != nil {
		t.Fatalf("newDualBufferSet: %v", err)
	}
	tex := s.buffers[0]
	s.Release()
	s.Release()
	if _, err := dev.ReadTexture(tex); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("ReadTexture after Release: err = %v, want ErrUnknownResource", err)
	}
}

// Depth bounds stay ordered after every iteration: either the cleared
// (-MaxDepth, -MaxDepth) or a pair with min <= max.
func TestDepthBoundsMonotonic(t *testing.T) {
	f := newFixture(t, 6, 6, WithMaxPasses(1))
	b := f.stack(1, 2, 3, 4, 5, 6)
	for passes := 1; passes <= 4; passes++ {
		f.r.opts.maxPasses = passes
		f.render(t, b)
		bounds := f.texels(t, f.r.Targets().Bounds)
		for i := 0; i < len(bounds); i += 4 {
			negMin, maxD := bounds[i], bounds[i+1]
			if negMin < -gpucore.MaxDepth {
				t.Fatalf("passes %d texel %d: -min = %v below -MaxDepth", passes, i/4, negMin)
			}
			if negMin == -gpucore.MaxDepth && maxD == -gpucore.MaxDepth {
				continue
			}
			if maxD < -negMin {
				t.Fatalf("passes %d texel %d: max %v < min %v", passes, i/4, maxD, -negMin)
			}
		}
	}
}

func TestInitPassIdempotent(t *testing.T) {
	f := newFixture(t, 5, 5)
	b := f.stack(1.5, 2.5, 3.5)
	fb, err := f.r.freeze(b)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := f.r.upload(fb, f.cam); err != nil {
		t.Fatalf("upload: %v", err)
	}

	runInit := func() []float32 {
		enc, err := f.dev.CreateCommandEncoder("init")
		if err != nil {
			t.Fatalf("CreateCommandEncoder: %v", err)
		}
		f.r.peel.RecordInit(&PassContext{
			Encoder: enc,
			Buffers: f.r.buffers.Current(0),
			Frame:   f.r.initFrame,
			Query:   noQuery,
			batch:   fb,
		})
		cb, err := enc.Finish()
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		if err := f.dev.Submit(cb); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		return f.texels(t, f.r.buffers.Current(0).Dest)
	}

	first := runInit()
	second := runInit()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("texel component %d: %v then %v", i, first[i], second[i])
		}
	}
	if first[0] >= 0 || first[1] <= -first[0] {
		t.Errorf("init bounds (%v, %v) do not span the stack", first[0], first[1])
	}
}
