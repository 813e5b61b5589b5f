package peel

// Termination records why a frame's peel loop stopped.
type Termination int

const (
	// TerminatedByOcclusion means a peel iteration found no fragment
	// strictly inside the previous depth bounds.
	TerminatedByOcclusion Termination = iota

	// TerminatedByPassCap means the loop ran the configured maximum number
	// of iterations without observing a zero occlusion count. Layers
	// deeper than the cap are not composited.
	TerminatedByPassCap
)

func (t Termination) String() string {
	switch t {
	case TerminatedByOcclusion:
		return "occlusion"
	case TerminatedByPassCap:
		return "pass-cap"
	default:
		return "unknown"
	}
}

// FrameStats describes one RenderFrame call.
type FrameStats struct {
	// PeelIterations is the number of peel passes executed.
	PeelIterations int

	// Passes counts the depth bounds passes: the init pass plus every peel pass.
	Passes int

	// OcclusionCounts holds the occlusion count of each peel iteration in
	// order, or -1 where the readback was unavailable.
	OcclusionCounts []int64

	// ReadbackMisses counts iterations whose count could not be read.
	ReadbackMisses int

	Termination Termination
}
