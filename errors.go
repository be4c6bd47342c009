package chime

import "sync/atomic"

// Error is the engine's public error code taxonomy. Codes double as Go
// errors and as the values reported by the poll-style LastError channel.
type Error int32

const (
	ErrNone Error = iota
	ErrInvalidDevice
	ErrInvalidContext
	ErrInvalidEnum
	ErrInvalidValue
	ErrOutOfMemory
	// ErrNoDevice reports a backend open or enumerate failure.
	ErrNoDevice
	// ErrDeviceError reports a backend reset, start, or runtime failure.
	ErrDeviceError
	// ErrDisconnected reports a device lost after having worked.
	ErrDisconnected
)

func (e Error) Error() string {
	switch e {
	case ErrNone:
		return "no error"
	case ErrInvalidDevice:
		return "invalid device"
	case ErrInvalidContext:
		return "invalid context"
	case ErrInvalidEnum:
		return "invalid enum"
	case ErrInvalidValue:
		return "invalid value"
	case ErrOutOfMemory:
		return "out of memory"
	case ErrNoDevice:
		return "no device available"
	case ErrDeviceError:
		return "device error"
	case ErrDisconnected:
		return "device disconnected"
	}
	return "unknown error"
}

// globalError holds codes raised by calls made without a valid device.
var globalError atomic.Int32

func setGlobalError(code Error) {
	globalError.CompareAndSwap(int32(ErrNone), int32(code))
}

// storeError records code in the device's last-error cell, or the global
// cell when dev is nil. The first code wins until polled.
func storeError(dev *Device, code Error) Error {
	if dev == nil {
		setGlobalError(code)
	} else {
		dev.lastError.CompareAndSwap(int32(ErrNone), int32(code))
	}
	return code
}

// LastError returns and clears the device's last error, or the global last
// error when dev is nil.
func LastError(dev *Device) Error {
	if dev == nil {
		return Error(globalError.Swap(int32(ErrNone)))
	}
	return Error(dev.lastError.Swap(int32(ErrNone)))
}
