package collector

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable means the transport could not be opened; the
	// session never started.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrTransportError means the transport failed while reading; the
	// session stopped.
	ErrTransportError = errors.New("transport error")
	// ErrMalformedFrame means a complete frame did not decode; it was dropped.
	ErrMalformedFrame = errors.New("malformed frame")

	ErrAlreadyRegistered  = errors.New("device already registered")
	ErrNotFound           = errors.New("device not registered")
	ErrInvalidRoundBudget = errors.New("round budget must not be negative")
)

// DeviceError ties an error to the device it happened on.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceErr(device string, err error) error {
	return &DeviceError{Device: device, Err: err}
}
