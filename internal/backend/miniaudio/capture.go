package miniaudio

import (
	"fmt"
	"sync"
	"unsafe"

	"chime/internal/backend"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
)

type capture struct {
	ctx        *malgo.AllocatedContext
	spec       *backend.DeviceSpec
	disconnect backend.DisconnectFunc

	mu      sync.Mutex
	id      *malgo.DeviceID
	device  *malgo.Device
	ring    *ringbuffer.RingBuffer
	running bool
}

func newCapture(ctx *malgo.AllocatedContext, spec *backend.DeviceSpec, disconnect backend.DisconnectFunc) *capture {
	return &capture{
		ctx:        ctx,
		spec:       spec,
		disconnect: disconnect,
		ring:       ringbuffer.New(spec.BufferFrames * spec.FrameSize()),
	}
}

func (b *capture) Open(name string) error {
	id, err := resolve(b.ctx, malgo.Capture, name)
	if err != nil {
		return err
	}
	b.id = id

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = formatFor(b.spec.Format)
	config.Capture.Channels = uint32(b.spec.Channels())
	config.SampleRate = uint32(b.spec.SampleRate)
	config.PeriodSizeInFrames = uint32(b.spec.PeriodFrames)
	config.Alsa.NoMMap = 1
	if b.id != nil {
		config.Capture.DeviceID = unsafe.Pointer(b.id)
	}

	device, err := malgo.InitDevice(b.ctx.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			// Overflow drops the oldest unread audio the ring can't hold;
			// the app wasn't pulling fast enough either way.
			b.ring.TryWrite(input)
		},
	})
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	b.device = device

	b.spec.SampleRate = int(device.SampleRate())
	b.spec.Format = formatFrom(device.CaptureFormat())
	if layout, err := layoutFromChannels(int(device.CaptureChannels())); err == nil {
		b.spec.Layout = layout
	}
	return nil
}

func (b *capture) Reset(*backend.DeviceSpec) error { return backend.ErrNotSupported }

func (b *capture) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return backend.ErrNoDevice
	}
	if b.running {
		return nil
	}
	if err := b.device.Start(); err != nil {
		return fmt.Errorf("starting capture device: %w", err)
	}
	b.running = true
	return nil
}

func (b *capture) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.device == nil {
		return
	}
	if err := b.device.Stop(); err != nil {
		b.disconnect(fmt.Errorf("stopping capture device: %w", err))
	}
	b.running = false
}

func (b *capture) Close() {
	b.Stop()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device != nil {
		b.device.Uninit()
		b.device = nil
	}
	b.ring.Reset()
}

func (b *capture) Available() int {
	return b.ring.Length() / b.spec.FrameSize()
}

func (b *capture) CaptureSamples(dst []byte, frames int) error {
	need := frames * b.spec.FrameSize()
	read := 0
	for read < need {
		n, err := b.ring.Read(dst[read:need])
		read += n
		if err != nil {
			return fmt.Errorf("reading capture ring: %w", err)
		}
	}
	return nil
}
