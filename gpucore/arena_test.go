package gpucore

import "testing"

func TestArenaInsertGet(t *testing.T) {
	var a Arena[string]
	h1 := a.Insert("one")
	h2 := a.Insert("two")

	if h1 == InvalidID || h2 == InvalidID {
		t.Fatal("arena issued the zero handle")
	}
	if h1 == h2 {
		t.Fatal("arena issued duplicate handles")
	}
	if v, ok := a.Get(h2); !ok || v != "two" {
		t.Errorf("Get(h2) = %q, %v; want two, true", v, ok)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}
}

func TestArenaStaleHandle(t *testing.T) {
	var a Arena[int]
	h := a.Insert(1)
	if _, ok := a.Remove(h); !ok {
		t.Fatal("Remove of live handle failed")
	}
	reused := a.Insert(2)

	if uint32(reused) != uint32(h) {
		t.Fatalf("slot not reused: %x vs %x", reused, h)
	}
	if _, ok := a.Get(h); ok {
		t.Error("stale handle resolved after slot reuse")
	}
	if _, ok := a.Remove(h); ok {
		t.Error("stale handle removed a live value")
	}
	if v, _ := a.Get(reused); v != 2 {
		t.Errorf("Get(reused) = %d, want 2", v)
	}
}

func TestArenaAllAndClear(t *testing.T) {
	var a Arena[int]
	for i := range 5 {
		a.Insert(i)
	}
	h, _ := func() (uint64, bool) {
		for h, v := range a.All {
			if v == 2 {
				return h, true
			}
		}
		return 0, false
	}()
	a.Remove(h)

	sum := 0
	for _, v := range a.All {
		sum += v
	}
	if sum != 0+1+3+4 {
		t.Errorf("sum over live values = %d, want 8", sum)
	}

	a.Clear()
	if a.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", a.Len())
	}
}

func TestTextureFormatLayout(t *testing.T) {
	tests := []struct {
		format   TextureFormat
		channels int
		bytes    int
		half     bool
	}{
		{TextureFormatRGBA8Unorm, 4, 4, false},
		{TextureFormatRG16Float, 2, 4, true},
		{TextureFormatRG32Float, 2, 8, false},
		{TextureFormatRGBA16Float, 4, 8, true},
		{TextureFormatRGBA32Float, 4, 16, false},
		{TextureFormatUndefined, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.Channels(); got != tt.channels {
				t.Errorf("Channels() = %d, want %d", got, tt.channels)
			}
			if got := tt.format.BytesPerTexel(); got != tt.bytes {
				t.Errorf("BytesPerTexel() = %d, want %d", got, tt.bytes)
			}
			if got := tt.format.IsHalf(); got != tt.half {
				t.Errorf("IsHalf() = %v, want %v", got, tt.half)
			}
		})
	}
}

func TestBlendPresets(t *testing.T) {
	under := BlendUnder()
	if under.Color.SrcFactor != BlendFactorOneMinusDstAlpha || under.Color.DstFactor != BlendFactorOne {
		t.Errorf("BlendUnder color = %+v", under.Color)
	}
	if under.Alpha != under.Color {
		t.Error("BlendUnder alpha differs from color")
	}
	over := BlendOver()
	if over.Color.SrcFactor != BlendFactorOne || over.Color.DstFactor != BlendFactorOneMinusSrcAlpha {
		t.Errorf("BlendOver color = %+v", over.Color)
	}
	if BlendMax().Color.Operation != BlendOperationMax {
		t.Error("BlendMax does not use the max operation")
	}
}

func TestCapsCanBlend(t *testing.T) {
	caps := Caps{BlendableFormats: []TextureFormat{TextureFormatRG16Float}}
	if !caps.CanBlend(TextureFormatRG16Float) {
		t.Error("RG16Float should be blendable")
	}
	if caps.CanBlend(TextureFormatRG32Float) {
		t.Error("RG32Float should not be blendable")
	}
}
