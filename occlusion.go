package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
	"honnef.co/go/safeish"
)

// occlusionSlots is the number of in-flight occlusion results. Two slots
// let iteration i's result gate iteration i+2 in pipelined mode.
const occlusionSlots = 2

// OcclusionResult is the readback of one peel iteration's occlusion query.
type OcclusionResult struct {
	// Count is the number of fragments strictly inside the source bounds.
	Count uint64

	// Known is false when the result could not be read back.
	Known bool
}

// Continue reports whether the peel loop must run another iteration.
// An unknown result continues: stopping early would drop visible layers,
// while an extra iteration only peels nothing.
func (r OcclusionResult) Continue() bool {
	return !r.Known || r.Count > 0
}

// OcclusionGate owns the occlusion query set and one readback buffer
// per slot.
type OcclusionGate struct {
	dev      gpucore.Device
	set      gpucore.QuerySetID
	readback [occlusionSlots]gpucore.BufferID
	resolved [occlusionSlots]bool
}

func newOcclusionGate(dev gpucore.Device) (*OcclusionGate, error) {
	g := &OcclusionGate{dev: dev}
	var err error
	g.set, err = dev.CreateQuerySet(&gpucore.QuerySetDesc{Label: "peel.occlusion", Count: occlusionSlots})
	if err != nil {
		return nil, fmt.Errorf("peel: occlusion query set: %w", err)
	}
	for i := range g.readback {
		g.readback[i], err = dev.CreateBuffer(&gpucore.BufferDesc{
			Label: fmt.Sprintf("peel.occlusion.readback.%d", i),
			Size:  gpucore.QueryResultSize,
			Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageQueryResolve,
		})
		if err != nil {
			g.Release()
			return nil, fmt.Errorf("peel: occlusion readback buffer: %w", err)
		}
	}
	return g, nil
}

// Slot returns the query slot used by a peel iteration.
func (g *OcclusionGate) Slot(iteration int) int { return iteration % occlusionSlots }

// QuerySet returns the query set peel passes count into.
func (g *OcclusionGate) QuerySet() gpucore.QuerySetID { return g.set }

// Resolve records the copy of slot's count into its readback buffer.
// It records nothing and returns false when the buffer is still mapped;
// the slot's next Collect then reports an unknown result.
func (g *OcclusionGate) Resolve(enc gpucore.CommandEncoder, slot int) bool {
	if g.dev.IsMapped(g.readback[slot]) {
		g.resolved[slot] = false
		return false
	}
	enc.ResolveQuerySet(g.set, uint32(slot), 1, g.readback[slot], 0)
	g.resolved[slot] = true
	return true
}

// Collect waits for slot's resolved count and reads it.
func (g *OcclusionGate) Collect(slot int) (OcclusionResult, error) {
	if !g.resolved[slot] {
		return OcclusionResult{}, fmt.Errorf("occlusion slot %d: %w", slot, gpucore.ErrBufferMapped)
	}
	g.resolved[slot] = false

	data, err := g.dev.MapRead(g.readback[slot], 0, gpucore.QueryResultSize)
	if err != nil {
		return OcclusionResult{}, fmt.Errorf("occlusion slot %d: %w", slot, err)
	}
	defer g.dev.Unmap(g.readback[slot])
	if len(data) < gpucore.QueryResultSize {
		return OcclusionResult{}, fmt.Errorf("occlusion slot %d: short readback of %d bytes", slot, len(data))
	}
	count := safeish.SliceCast[[]uint64](data[:gpucore.QueryResultSize])[0]
	return OcclusionResult{Count: count, Known: true}, nil
}

// Release destroys the query set and readback buffers.
func (g *OcclusionGate) Release() {
	for i := range g.readback {
		if g.dev.IsMapped(g.readback[i]) {
			g.dev.Unmap(g.readback[i])
		}
	}
	destroyBuffers(g.dev, &g.readback[0], &g.readback[1])
	if g.set != gpucore.InvalidID {
		g.dev.DestroyQuerySet(g.set)
		g.set = gpucore.InvalidID
	}
}
