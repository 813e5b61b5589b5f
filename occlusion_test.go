package peel

import (
	"errors"
	"testing"

	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/internal/soft"
)

func TestOcclusionResultContinue(t *testing.T) {
	tests := []struct {
		name string
		res  OcclusionResult
		want bool
	}{
		{"zero terminates", OcclusionResult{Count: 0, Known: true}, false},
		{"survivors continue", OcclusionResult{Count: 7, Known: true}, true},
		{"unknown continues", OcclusionResult{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Continue(); got != tt.want {
				t.Errorf("Continue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOcclusionGateSlots(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	g, err := newOcclusionGate(dev)
	if err != nil {
		t.Fatalf("newOcclusionGate: %v", err)
	}
	defer g.Release()

	for i := 0; i < 6; i++ {
		if g.Slot(i) == g.Slot(i+1) {
			t.Errorf("iterations %d and %d share a slot", i, i+1)
		}
		if g.Slot(i) != g.Slot(i+2) {
			t.Errorf("iterations %d and %d use different slots", i, i+2)
		}
	}
}

func TestOcclusionGateSkipsMappedReadback(t *testing.T) {
	dev := soft.New()
	defer dev.Destroy()
	g, err := newOcclusionGate(dev)
	if err != nil {
		t.Fatalf("newOcclusionGate: %v", err)
	}
	defer g.Release()

	if _, err := dev.MapRead(g.readback[0], 0, gpucore.QueryResultSize); err != nil {
		t.Fatalf("MapRead: %v", err)
	}
	enc, _ := dev.CreateCommandEncoder("gate")
	if g.Resolve(enc, 0) {
		t.Error("Resolve recorded a copy into a mapped buffer")
	}
	if !g.Resolve(enc, 1) {
		t.Error("Resolve skipped an unmapped slot")
	}
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := dev.Submit(cb); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := g.Collect(0); !errors.Is(err, gpucore.ErrBufferMapped) {
		t.Errorf("Collect(mapped slot) err = %v, want ErrBufferMapped", err)
	}
	res, err := g.Collect(1)
	if err != nil {
		t.Fatalf("Collect(1): %v", err)
	}
	if !res.Known || res.Count != 0 {
		t.Errorf("Collect(1) = %+v, want known zero", res)
	}
	if dev.IsMapped(g.readback[1]) {
		t.Error("Collect left the readback buffer mapped")
	}

	dev.Unmap(g.readback[0])
	if _, err := g.Collect(0); err == nil {
		t.Error("Collect succeeded for a slot that was never resolved")
	}
}
