// Package backend defines the contract between the rendering core and the
// OS-specific audio drivers, plus the process-wide factory registry used to
// select one playback and one capture driver at first use.
package backend

import "errors"

type FormatType uint8

const (
	FormatUnknown FormatType = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

func FormatSize(format FormatType) int {
	if format < 4 {
		return int(format)
	}
	return 4
}

type ChannelLayout uint8

const (
	LayoutMono ChannelLayout = iota
	LayoutStereo
	LayoutQuad
	LayoutSurround51
	LayoutSurround61
	LayoutSurround71
)

func LayoutChannels(layout ChannelLayout) int {
	switch layout {
	case LayoutMono:
		return 1
	case LayoutStereo:
		return 2
	case LayoutQuad:
		return 4
	case LayoutSurround51:
		return 6
	case LayoutSurround61:
		return 7
	case LayoutSurround71:
		return 8
	}
	return 2
}

type DeviceType uint8

const (
	Playback DeviceType = iota
	Capture
)

var (
	ErrNoDevice     = errors.New("no such device")
	ErrNotSupported = errors.New("operation not supported")
)

// DeviceSpec carries the format being negotiated with a driver. Reset reads
// the requested values and overwrites any field the driver cannot honor; the
// caller reconciles afterwards.
type DeviceSpec struct {
	Name         string
	SampleRate   int
	Layout       ChannelLayout
	Format       FormatType
	PeriodFrames int
	BufferFrames int
}

func (s *DeviceSpec) Channels() int {
	return LayoutChannels(s.Layout)
}

func (s *DeviceSpec) FrameSize() int {
	return s.Channels() * FormatSize(s.Format)
}

// RenderFunc is invoked by a playback driver once per period with a
// caller-owned buffer of frames*FrameSize bytes. It must complete within the
// period budget and must not call back into device state mutation.
type RenderFunc func(out []byte, frames int)

// DisconnectFunc reports an irrecoverable driver failure to the core.
type DisconnectFunc func(err error)

// Backend is one opened driver instance. Hot-path dispatch is bound once at
// Create; Reset/Start/Stop are control-thread calls serialized by the device
// lock.
type Backend interface {
	// Open resolves name (empty means default) to a concrete driver handle.
	Open(name string) error
	// Reset negotiates spec in place. Drivers without in-place
	// reconfiguration return ErrNotSupported.
	Reset(spec *DeviceSpec) error
	Start() error
	// Stop is idempotent and returns only once the callback is quiesced.
	Stop()
	Close()
}

// Capturer is implemented by capture-capable backends. Samples are pulled.
type Capturer interface {
	Backend
	CaptureSamples(dst []byte, frames int) error
	Available() int
}
