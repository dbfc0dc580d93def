package mixer

import "errors"

var (
	// ErrUnknownPath is returned when applying a path missing from the
	// paths file.
	ErrUnknownPath = errors.New("unknown mixer path")

	// ErrUnknownControl is returned when reading a control the card does
	// not have.
	ErrUnknownControl = errors.New("unknown control")

	// ErrNoInitialValue is returned when a paths file changes a control
	// without listing its initial value.
	ErrNoInitialValue = errors.New("control without initial value")

	errClosed = errors.New("mixer is closed")
)
