package peel

import (
	"fmt"

	"github.com/gogpu/peel/gpucore"
	"honnef.co/go/safeish"
)

// RenderFrame peels batch as seen from cam, composites the result into
// the surface and presents it.
//
// The batch is copied before the first pass, so every pass of the frame
// draws the same geometry in the same order. RenderFrame returns an
// error wrapping ErrNotInitialized before Initialize, and ErrInvalidBatch
// when a draw references unknown resources. Unreadable occlusion results
// and the pass cap are handled inside the frame and only reported in
// the returned FrameStats.
func (r *Renderer) RenderFrame(batch *RenderableBatch, cam *Camera) (FrameStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return FrameStats{}, ErrNotInitialized
	}
	if cam == nil {
		return FrameStats{}, fmt.Errorf("peel: nil camera: %w", ErrInvalidBatch)
	}
	fb, err := r.freeze(batch)
	if err != nil {
		return FrameStats{}, err
	}
	if err := r.upload(fb, cam); err != nil {
		return FrameStats{}, err
	}

	var stats FrameStats
	if r.opts.pipelined {
		err = r.peelPipelined(fb, &stats)
	} else {
		err = r.peelSync(fb, &stats)
	}
	if err != nil {
		return stats, err
	}
	if stats.Termination == TerminatedByPassCap {
		Logger().Warn("peel: pass cap reached", "maxPasses", r.opts.maxPasses)
	}
	if err := r.composite(); err != nil {
		return stats, err
	}
	r.stats = stats
	Logger().Debug("peel: frame done",
		"iterations", stats.PeelIterations, "termination", stats.Termination.String(),
		"readbackMisses", stats.ReadbackMisses)
	return stats, nil
}

// upload writes the frame uniforms and instance matrices.
func (r *Renderer) upload(fb *frozenBatch, cam *Camera) error {
	u := r.frameUniformsFor(cam)
	if err := r.dev.WriteBuffer(r.frameUniforms, 0, safeish.SliceCast[[]byte]([]gpucore.FrameUniforms{u})); err != nil {
		return fmt.Errorf("peel: upload frame uniforms: %w", err)
	}
	if len(fb.instances) == 0 {
		return nil
	}
	if err := r.ensureInstanceCapacity(len(fb.instances)); err != nil {
		return err
	}
	if err := r.dev.WriteBuffer(r.instances, 0, safeish.SliceCast[[]byte](fb.instances)); err != nil {
		return fmt.Errorf("peel: upload instances: %w", err)
	}
	return nil
}

func (r *Renderer) frameUniformsFor(cam *Camera) gpucore.FrameUniforms {
	aspect := float32(r.width) / float32(r.height)
	forward, right, up := cam.Basis(aspect)
	u := gpucore.FrameUniforms{
		ViewProj: cam.ViewProjection(aspect),
		Forward:  forward.Vec4(0),
		Right:    right.Vec4(0),
		Up:       up.Vec4(0),
		Params:   [4]float32{float32(r.width), float32(r.height), 0, 0},
	}
	if bg := r.opts.background; bg != nil {
		u.Horizon = bg.Horizon
		u.Zenith = bg.Zenith
		u.Params[2] = float32(bg.Mode)
	}
	if r.boundsFormat.IsHalf() {
		u.Params[3] = 1
	}
	return u
}

// submitIteration encodes and submits peel iteration i. The first
// iteration also carries the init pass.
func (r *Renderer) submitIteration(fb *frozenBatch, i int, stats *FrameStats) error {
	enc, err := r.dev.CreateCommandEncoder(fmt.Sprintf("peel.iteration.%d", i))
	if err != nil {
		return fmt.Errorf("peel: iteration %d: %w", i, err)
	}
	if i == 1 {
		r.peel.RecordInit(&PassContext{
			Encoder: enc,
			Buffers: r.buffers.Current(0),
			Frame:   r.initFrame,
			Query:   noQuery,
			batch:   fb,
		})
		stats.Passes++
	}

	slot := r.gate.Slot(i)
	ctx := &PassContext{
		Encoder:   enc,
		Iteration: i,
		Buffers:   r.buffers.Current(i),
		Frame:     r.peelFrame,
		QuerySet:  r.gate.QuerySet(),
		Query:     slot,
		batch:     fb,
	}
	r.peel.Record(ctx)
	r.accum.Record(enc, i)
	if !r.gate.Resolve(enc, slot) {
		Logger().Warn("peel: occlusion readback still mapped, skipping resolve", "iteration", i)
	}

	cb, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("peel: iteration %d: %w", i, err)
	}
	if err := r.dev.Submit(cb); err != nil {
		return fmt.Errorf("peel: iteration %d: %w", i, err)
	}
	r.lastBounds = ctx.Buffers.Dest
	stats.PeelIterations++
	stats.Passes++
	return nil
}

// collect reads iteration i's occlusion result into stats. A failed
// readback is recorded as unknown and continues the loop.
func (r *Renderer) collect(i int, stats *FrameStats) OcclusionResult {
	res, err := r.gate.Collect(r.gate.Slot(i))
	if err != nil {
		stats.ReadbackMisses++
		stats.OcclusionCounts = append(stats.OcclusionCounts, -1)
		Logger().Warn("peel: occlusion readback unavailable", "iteration", i, "err", err)
		return OcclusionResult{}
	}
	stats.OcclusionCounts = append(stats.OcclusionCounts, int64(res.Count))
	Logger().Debug("peel: iteration", "iteration", i, "count", res.Count)
	return res
}

// peelSync waits for each iteration's occlusion result before encoding
// the next one.
func (r *Renderer) peelSync(fb *frozenBatch, stats *FrameStats) error {
	stats.Termination = TerminatedByPassCap
	for i := 1; i <= r.opts.maxPasses; i++ {
		if err := r.submitIteration(fb, i, stats); err != nil {
			return err
		}
		if !r.collect(i, stats).Continue() {
			stats.Termination = TerminatedByOcclusion
			return nil
		}
	}
	return nil
}

// peelPipelined keeps two iterations in flight: iteration i is encoded
// once iteration i-2's result has been read, which is also when i-2's
// query slot becomes free again.
func (r *Renderer) peelPipelined(fb *frozenBatch, stats *FrameStats) error {
	stats.Termination = TerminatedByPassCap
	next, submitted := 1, 0
	for i := 1; i <= r.opts.maxPasses; i++ {
		if i-next >= occlusionSlots {
			res := r.collect(next, stats)
			next++
			if !res.Continue() {
				stats.Termination = TerminatedByOcclusion
				break
			}
		}
		if err := r.submitIteration(fb, i, stats); err != nil {
			return err
		}
		submitted = i
	}
	for ; next <= submitted; next++ {
		if !r.collect(next, stats).Continue() {
			stats.Termination = TerminatedByOcclusion
		}
	}
	return nil
}

// composite records the final passes into the surface and presents it.
func (r *Renderer) composite() error {
	target, err := r.surface.Acquire()
	if err != nil {
		return fmt.Errorf("peel: acquire surface: %w", err)
	}
	enc, err := r.dev.CreateCommandEncoder("peel.composite")
	if err != nil {
		return fmt.Errorf("peel: composite: %w", err)
	}
	r.comp.Record(enc, target, r.opts.background != nil)
	cb, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("peel: composite: %w", err)
	}
	if err := r.dev.Submit(cb); err != nil {
		return fmt.Errorf("peel: composite: %w", err)
	}
	if err := r.surface.Present(); err != nil {
		return fmt.Errorf("peel: present: %w", err)
	}
	return nil
}
