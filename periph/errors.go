package periph

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrAddressOverlap = errors.New("address range overlaps an existing mapping")
	ErrUnknownDriver  = errors.New("unknown device driver")
	ErrNoDevice       = errors.New("no such device")
)

// DeviceError attributes an error to a named device instance.
type DeviceError struct {
	Device  string
	wrapped error
}

func NewDeviceError(device string, err error) *DeviceError {
	return &DeviceError{Device: device, wrapped: err}
}

func (e *DeviceError) Unwrap() error { return e.wrapped }
func (e *DeviceError) Error() string {
	if e.wrapped == nil {
		return fmt.Sprintf("%s: device error", e.Device)
	}
	return fmt.Sprintf("%s: %v", e.Device, e.wrapped)
}
