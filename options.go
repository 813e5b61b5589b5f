package peel

import "github.com/gogpu/peel/gpucore"

// DefaultMaxPasses bounds the peel loop when occlusion never reports zero.
const DefaultMaxPasses = 50

// Option configures a Renderer during creation.
// Use functional options to customize Renderer behavior.
//
// Example:
//
//	// Defaults: 50 peel iterations, sky background, synchronous queries
//	r, err := peel.NewRenderer(dev)
//
//	// Transparent output, double-buffered occlusion queries
//	r, err := peel.NewRenderer(dev,
//	    peel.WithBackground(nil),
//	    peel.WithPipelinedQueries(true))
type Option func(*options)

// options holds optional configuration for Renderer creation.
type options struct {
	maxPasses    int
	background   *Background
	pipelined    bool
	boundsFormat gpucore.TextureFormat
	surface      Surface
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{
		maxPasses:    DefaultMaxPasses,
		background:   DefaultSky(),
		boundsFormat: gpucore.TextureFormatUndefined, // chosen from device caps
	}
}

// WithMaxPasses sets the maximum number of peel iterations per frame.
// Values below 1 are ignored.
func WithMaxPasses(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxPasses = n
		}
	}
}

// WithBackground sets the background composited behind the peeled layers.
// Pass nil to skip the background pass and keep the composite's alpha.
func WithBackground(b *Background) Option {
	return func(o *options) {
		o.background = b
	}
}

// WithPipelinedQueries lets iteration i's occlusion result gate the
// encoding of iteration i+2 instead of i+1, so the CPU never waits on the
// iteration it just submitted. Termination may then run one iteration late;
// the extra iteration peels nothing.
func WithPipelinedQueries(enabled bool) Option {
	return func(o *options) {
		o.pipelined = enabled
	}
}

// WithDepthBoundsFormat forces the depth bounds format. Initialize fails
// with ErrConfiguration if the device cannot blend it. By default
// RG32Float is used when blendable, otherwise RG16Float.
func WithDepthBoundsFormat(f gpucore.TextureFormat) Option {
	return func(o *options) {
		o.boundsFormat = f
	}
}

// WithSurface renders into a presentation surface instead of an
// offscreen target owned by the renderer.
func WithSurface(s Surface) Option {
	return func(o *options) {
		o.surface = s
	}
}
