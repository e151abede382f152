package conv

import "errors"

// Sentinel errors returned by the layer's precondition checks. Callers match
// them with errors.Is; the wrapped messages carry the offending detail.
var (
	// ErrNoDevice is returned when a gpu algorithm is selected while no
	// accelerator is attached. There is no silent CPU fallback.
	ErrNoDevice = errors.New("conv: gpu algorithm requires an attached device")

	// ErrNoForward is returned by Backward when the pass is nil, already
	// consumed, or belongs to a different layer.
	ErrNoForward = errors.New("conv: backward requires the pass of a preceding forward")

	// ErrShape is returned when an input or gradient tensor does not match
	// the layer geometry.
	ErrShape = errors.New("conv: tensor shape mismatch")
)
