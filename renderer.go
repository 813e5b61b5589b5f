package peel

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/peel/gpucore"
)

// renderers tracks live renderers so SetLogger reaches their devices.
var (
	renderersMu sync.Mutex
	renderers   = map[*Renderer]struct{}{}
)

// Renderer composites translucent geometry with dual depth peeling.
//
// A Renderer is created once per device, sized with Initialize, and then
// renders frames with RenderFrame. All methods are safe for concurrent
// use; frames are serialized.
type Renderer struct {
	mu   sync.Mutex
	dev  gpucore.Device
	opts options

	geometries gpucore.Arena[geometry]
	materials  gpucore.Arena[material]

	width        int
	height       int
	boundsFormat gpucore.TextureFormat
	surface      Surface
	offscreen    *OffscreenSurface

	frameUniforms gpucore.BufferID
	instances     gpucore.BufferID
	instanceCap   int
	initFrame     gpucore.BindGroupID
	peelFrame     gpucore.BindGroupID

	buffers *DualBufferSet
	peel    *PeelPass
	gate    *OcclusionGate
	accum   *AccumulationStage
	comp    *Compositor

	lastBounds gpucore.TextureID
	stats      FrameStats
	ready      bool
	closed     bool
}

// NewRenderer creates a renderer on dev. The renderer does not own dev;
// Close releases only what the renderer created.
func NewRenderer(dev gpucore.Device, opts ...Option) (*Renderer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	r := &Renderer{dev: dev, opts: o}

	renderersMu.Lock()
	renderers[r] = struct{}{}
	renderersMu.Unlock()
	propagateLogger(dev, Logger())
	return r, nil
}

// Initialize allocates every peel, accumulator and composite target at
// width x height. Calling it again reallocates everything.
//
// Returns an error wrapping ErrConfiguration if the size is zero or too
// large, or the device cannot blend the required float formats.
func (r *Renderer) Initialize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialize(width, height)
}

// Resize reallocates the targets at a new size. A resize resets the
// whole pipeline; it is the same as Initialize.
func (r *Renderer) Resize(width, height int) error {
	return r.Initialize(width, height)
}

func (r *Renderer) initialize(width, height int) error {
	if r.closed {
		return ErrNotInitialized
	}
	caps := r.dev.Caps()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("peel: surface size %dx%d: %w", width, height, ErrConfiguration)
	}
	if m := caps.MaxTextureDimension; m > 0 && (width > m || height > m) {
		return fmt.Errorf("peel: surface size %dx%d exceeds %d: %w", width, height, m, ErrConfiguration)
	}
	bounds, err := selectBoundsFormat(caps, r.opts.boundsFormat)
	if err != nil {
		return err
	}
	if !caps.CanBlend(layerFormat) {
		return fmt.Errorf("peel: %s: %v is not blendable: %w", caps.Name, layerFormat, ErrConfiguration)
	}

	r.releaseTargets()
	r.width, r.height, r.boundsFormat = width, height, bounds
	if err := r.allocateTargets(); err != nil {
		r.releaseTargets()
		return err
	}
	r.ready = true
	Logger().Info("peel: targets allocated",
		"device", caps.Name, "width", width, "height", height,
		"bounds", bounds.String(), "surface", r.surface.Format().String(),
		"pipelined", r.opts.pipelined, "maxPasses", r.opts.maxPasses)
	return nil
}

// selectBoundsFormat picks the depth bounds format. A forced format must
// be blendable; otherwise RG32Float is preferred over RG16Float.
func selectBoundsFormat(caps gpucore.Caps, forced gpucore.TextureFormat) (gpucore.TextureFormat, error) {
	if forced != gpucore.TextureFormatUndefined {
		if forced.Channels() < 2 || !caps.CanBlend(forced) {
			return 0, fmt.Errorf("peel: %s: depth bounds format %v is not blendable: %w", caps.Name, forced, ErrConfiguration)
		}
		return forced, nil
	}
	for _, f := range []gpucore.TextureFormat{gpucore.TextureFormatRG32Float, gpucore.TextureFormatRG16Float} {
		if caps.CanBlend(f) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("peel: %s: no blendable float format for depth bounds: %w", caps.Name, ErrConfiguration)
}

func (r *Renderer) allocateTargets() error {
	var err error
	r.surface = r.opts.surface
	if r.surface == nil {
		r.offscreen = NewOffscreenSurface()
		r.surface = r.offscreen
	}
	if f := r.surface.Format(); !r.dev.Caps().CanBlend(f) {
		return fmt.Errorf("peel: surface format %v is not blendable: %w", f, ErrConfiguration)
	}
	if sc, ok := r.surface.(surfaceConfigurer); ok {
		if err := sc.Configure(r.dev, r.width, r.height); err != nil {
			return err
		}
	}

	r.frameUniforms, err = r.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: "peel.frame",
		Size:  gpucore.FrameUniformsSize,
		Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("peel: frame uniforms: %w", err)
	}
	if err := r.ensureInstanceCapacity(1); err != nil {
		return err
	}
	if r.buffers, err = newDualBufferSet(r.dev, r.width, r.height, r.boundsFormat); err != nil {
		return err
	}
	if r.peel, err = newPeelPass(r.dev, r.width, r.height, r.boundsFormat); err != nil {
		return err
	}
	if r.gate, err = newOcclusionGate(r.dev); err != nil {
		return err
	}
	if r.accum, err = newAccumulationStage(r.dev, r.width, r.height, r.peel); err != nil {
		return err
	}
	if r.comp, err = newCompositor(r.dev, r.surface.Format(), r.accum, r.frameUniforms); err != nil {
		return err
	}
	return nil
}

// ensureInstanceCapacity grows the instance storage buffer to hold n
// matrices, rebuilding the bind groups that reference it.
func (r *Renderer) ensureInstanceCapacity(n int) error {
	if n <= r.instanceCap && r.instances != gpucore.InvalidID {
		return nil
	}
	capacity := max(r.instanceCap, 16)
	for capacity < n {
		capacity *= 2
	}
	destroyBindGroups(r.dev, &r.initFrame, &r.peelFrame)
	destroyBuffers(r.dev, &r.instances)
	r.instanceCap = 0

	var err error
	r.instances, err = r.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: "peel.instances",
		Size:  uint64(capacity) * gpucore.InstanceSize,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("peel: instance buffer: %w", err)
	}
	r.instanceCap = capacity

	entries := []gpucore.BindGroupEntry{
		{Binding: 0, Buffer: r.frameUniforms, Size: gpucore.FrameUniformsSize},
		{Binding: 1, Buffer: r.instances},
	}
	if r.initFrame, err = r.dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label: "peel.frame.init", Program: gpucore.ProgramDepthInit, Entries: entries,
	}); err != nil {
		return fmt.Errorf("peel: bind frame: %w", err)
	}
	if r.peelFrame, err = r.dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label: "peel.frame.peel", Program: gpucore.ProgramPeel, Entries: entries,
	}); err != nil {
		return fmt.Errorf("peel: bind frame: %w", err)
	}
	return nil
}

func (r *Renderer) releaseTargets() {
	if r.comp != nil {
		r.comp.Release()
		r.comp = nil
	}
	if r.accum != nil {
		r.accum.Release()
		r.accum = nil
	}
	if r.gate != nil {
		r.gate.Release()
		r.gate = nil
	}
	if r.peel != nil {
		r.peel.Release()
		r.peel = nil
	}
	if r.buffers != nil {
		r.buffers.Release()
		r.buffers = nil
	}
	destroyBindGroups(r.dev, &r.initFrame, &r.peelFrame)
	destroyBuffers(r.dev, &r.instances, &r.frameUniforms)
	r.instanceCap = 0
	if sc, ok := r.surface.(surfaceConfigurer); ok {
		sc.Release()
	}
	r.lastBounds = gpucore.InvalidID
	r.ready = false
}

// Close releases every resource the renderer created. The device stays open.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.releaseTargets()
	r.releaseResources()
	r.closed = true

	renderersMu.Lock()
	delete(renderers, r)
	renderersMu.Unlock()
}

// Device returns the device the renderer draws with.
func (r *Renderer) Device() gpucore.Device { return r.dev }

// Stats returns the statistics of the last rendered frame.
func (r *Renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.OcclusionCounts = slices.Clone(s.OcclusionCounts)
	return s
}

// Output returns the default offscreen surface, or nil when the renderer
// presents to a surface passed with WithSurface.
func (r *Renderer) Output() *OffscreenSurface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offscreen
}

// Targets names the intermediate textures of the last frame, for capture
// and inspection. All are InvalidID before Initialize.
type Targets struct {
	// Bounds is the depth bounds texture written by the last iteration.
	Bounds       gpucore.TextureID
	BoundsFormat gpucore.TextureFormat

	FrontLayer gpucore.TextureID
	BackLayer  gpucore.TextureID
	FrontAccum gpucore.TextureID
	BackAccum  gpucore.TextureID
}

// Targets returns the intermediate textures.
func (r *Renderer) Targets() Targets {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return Targets{}
	}
	t := Targets{Bounds: r.lastBounds, BoundsFormat: r.boundsFormat}
	t.FrontLayer, t.BackLayer = r.peel.Layers()
	t.FrontAccum, t.BackAccum = r.accum.Accumulators()
	return t
}

// Size returns the size passed to the last successful Initialize.
func (r *Renderer) Size() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}
