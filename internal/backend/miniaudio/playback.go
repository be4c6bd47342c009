package miniaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"chime/internal/backend"

	"github.com/gen2brain/malgo"
)

type playback struct {
	ctx        *malgo.AllocatedContext
	spec       *backend.DeviceSpec
	render     backend.RenderFunc
	disconnect backend.DisconnectFunc

	mu     sync.Mutex
	id     *malgo.DeviceID
	device *malgo.Device

	// Read by the malgo stop callback, which must not take mu: the device
	// stop call holds it while waiting for the audio thread.
	running  atomic.Bool
	stopping atomic.Bool
}

func (b *playback) Open(name string) error {
	id, err := resolve(b.ctx, malgo.Playback, name)
	if err != nil {
		return err
	}
	b.id = id
	return nil
}

// Reset tears down any existing malgo device and initializes one against
// the requested spec, then reports back what the driver actually gave us.
func (b *playback) Reset(spec *backend.DeviceSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device != nil {
		b.stopDeviceLocked()
		b.device.Uninit()
		b.device = nil
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = formatFor(spec.Format)
	config.Playback.Channels = uint32(spec.Channels())
	config.SampleRate = uint32(spec.SampleRate)
	config.PeriodSizeInFrames = uint32(spec.PeriodFrames)
	config.PerformanceProfile = malgo.LowLatency
	config.Alsa.NoMMap = 1
	if b.id != nil {
		config.Playback.DeviceID = unsafe.Pointer(b.id)
	}

	frameSize := spec.FrameSize()
	device, err := malgo.InitDevice(b.ctx.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			b.render(output[:int(frameCount)*frameSize], int(frameCount))
		},
		Stop: func() {
			if b.running.Load() && !b.stopping.Load() {
				b.disconnect(errors.New("miniaudio device stopped unexpectedly"))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("initializing playback device: %w", err)
	}
	b.device = device

	// The driver's answer is authoritative; the core reconciles flags.
	spec.SampleRate = int(device.SampleRate())
	spec.Format = formatFrom(device.PlaybackFormat())
	if layout, err := layoutFromChannels(int(device.PlaybackChannels())); err == nil {
		spec.Layout = layout
	}
	frameSize = spec.FrameSize()
	return nil
}

func (b *playback) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return backend.ErrNotSupported
	}
	if b.running.Load() {
		return nil
	}
	if err := b.device.Start(); err != nil {
		return fmt.Errorf("starting playback device: %w", err)
	}
	b.running.Store(true)
	return nil
}

func (b *playback) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopDeviceLocked()
}

func (b *playback) stopDeviceLocked() {
	if !b.running.Load() || b.device == nil {
		return
	}
	b.stopping.Store(true)
	// Stop blocks until the data callback has quiesced.
	if err := b.device.Stop(); err != nil {
		b.disconnect(fmt.Errorf("stopping playback device: %w", err))
	}
	b.running.Store(false)
	b.stopping.Store(false)
}

func (b *playback) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopDeviceLocked()
	if b.device != nil {
		b.device.Uninit()
		b.device = nil
	}
}
