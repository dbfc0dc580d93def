package hal

import "errors"

var (
	// ErrNotSupported is returned when an operation is not valid for the
	// stream kind or state, including parameter changes while a stream is
	// transferring.
	ErrNotSupported = errors.New("operation not supported")

	// ErrInvalid is returned for out of range arguments or unsupported
	// open flags.
	ErrInvalid = errors.New("invalid argument")

	// ErrExists is returned when opening a second primary output.
	ErrExists = errors.New("already exists")

	// ErrNoDevice is returned by InitCheck when no route backend or
	// transport provider is configured.
	ErrNoDevice = errors.New("no audio device")

	// ErrClosed is returned when using a device or stream after it was
	// closed.
	ErrClosed = errors.New("closed")
)
