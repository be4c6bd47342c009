package chime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"chime/internal/backend"
)

// CaptureDevice records from an input device. Samples are pulled with
// CaptureSamples; the backend buffers up to the requested frame count.
type CaptureDevice struct {
	mu        sync.Mutex
	backend   backend.Capturer
	spec      backend.DeviceSpec
	started   bool
	closed    bool
	connected atomic.Bool
	lastError atomic.Int32
}

// OpenCaptureDevice opens the named capture device (empty means default)
// with the given format. channels and sampleType take the attribute enum
// values (ChannelsMono, SampleS16, ...); bufferFrames is how much audio the
// backend may hold between pulls.
func OpenCaptureDevice(name string, frequency, channels, sampleType, bufferFrames int) (*CaptureDevice, error) {
	layout, ok := layoutFromAttr(channels)
	if !ok {
		return nil, storeError(nil, ErrInvalidValue)
	}
	format, ok := formatFromAttr(sampleType)
	if !ok {
		return nil, storeError(nil, ErrInvalidValue)
	}
	if frequency <= 0 || bufferFrames <= 0 {
		return nil, storeError(nil, ErrInvalidValue)
	}

	factory := backend.For(backend.Capture)
	if factory == nil {
		return nil, storeError(nil, ErrNoDevice)
	}

	c := &CaptureDevice{
		spec: backend.DeviceSpec{
			Name:         name,
			SampleRate:   clampRate(frequency),
			Layout:       layout,
			Format:       format,
			PeriodFrames: clampRate(frequency) / 100,
			BufferFrames: bufferFrames,
		},
	}
	c.connected.Store(true)

	b, err := factory.Create(&c.spec, nil, c.handleDisconnect, backend.Capture)
	if err != nil {
		return nil, storeError(nil, ErrNoDevice)
	}
	capturer, ok := b.(backend.Capturer)
	if !ok {
		b.Close()
		return nil, storeError(nil, ErrNoDevice)
	}
	if err := capturer.Open(name); err != nil {
		return nil, storeError(nil, ErrNoDevice)
	}
	c.backend = capturer
	return c, nil
}

func (c *CaptureDevice) handleDisconnect(err error) {
	if c.connected.CompareAndSwap(true, false) {
		slog.Warn("capture device disconnected", "device", c.spec.Name, "err", err)
		c.lastError.CompareAndSwap(int32(ErrNone), int32(ErrDisconnected))
	}
}

// Start begins capturing.
func (c *CaptureDevice) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return storeError(nil, ErrInvalidDevice)
	}
	if !c.connected.Load() {
		return c.storeErr(ErrDeviceError)
	}
	if c.started {
		return nil
	}
	if err := c.backend.Start(); err != nil {
		c.connected.Store(false)
		return c.storeErr(ErrDeviceError)
	}
	c.started = true
	return nil
}

// Stop halts capturing. Already-captured samples stay readable. Idempotent.
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return storeError(nil, ErrInvalidDevice)
	}
	if c.started {
		c.backend.Stop()
		c.started = false
	}
	return nil
}

// Close releases the device.
func (c *CaptureDevice) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return storeError(nil, ErrInvalidDevice)
	}
	c.backend.Stop()
	c.backend.Close()
	c.closed = true
	return nil
}

// Available reports how many frames can be pulled without blocking. A
// disconnected device reports zero.
func (c *CaptureDevice) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.connected.Load() {
		return 0
	}
	return c.backend.Available()
}

// CaptureSamples copies frames of captured audio into dst. Asking for more
// than Available is an error; a disconnected device fills silence.
func (c *CaptureDevice) CaptureSamples(dst []byte, frames int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return storeError(nil, ErrInvalidDevice)
	}
	need := frames * c.spec.FrameSize()
	if len(dst) < need {
		return c.storeErr(ErrInvalidValue)
	}
	if !c.connected.Load() {
		clear(dst[:need])
		return nil
	}
	if frames > c.backend.Available() {
		return c.storeErr(ErrInvalidValue)
	}
	if err := c.backend.CaptureSamples(dst, frames); err != nil {
		return c.storeErr(ErrDeviceError)
	}
	return nil
}

// LastError returns and clears the capture device's last error code.
func (c *CaptureDevice) LastError() Error {
	return Error(c.lastError.Swap(int32(ErrNone)))
}

func (c *CaptureDevice) storeErr(code Error) Error {
	c.lastError.CompareAndSwap(int32(ErrNone), int32(code))
	return code
}
