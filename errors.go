package peel

import "errors"

// Renderer errors. Returned errors wrap these; test with errors.Is.
var (
	// ErrConfiguration is returned by Initialize when the surface size is
	// zero or the device lacks a blendable float format for the depth
	// bounds or layer targets. Not retryable with the same arguments.
	ErrConfiguration = errors.New("peel: configuration error")

	// ErrNotInitialized is returned when a frame is rendered before
	// Initialize succeeds or after Close.
	ErrNotInitialized = errors.New("peel: renderer not initialized")

	// ErrInvalidBatch is returned when a draw descriptor references an
	// unknown geometry or material, or instances outside the batch.
	ErrInvalidBatch = errors.New("peel: invalid renderable batch")

	// ErrNilDevice is returned by NewRenderer without a device.
	ErrNilDevice = errors.New("peel: nil device")
)
