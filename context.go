package chime

import (
	"sync"
	"sync/atomic"

	"chime/internal/backend"
	"chime/internal/mixer"
)

// Context is one isolated rendering scene attached to a device. It owns the
// voice pool, the source and effect-slot tables, and the VoiceChange queue;
// a context stays reachable from the global registry and from its device's
// context array for its whole life.
type Context struct {
	id     uint64
	device *Device

	// mu serializes the context's control side: source/slot tables and
	// VoiceChange enqueues. The render thread never takes it.
	mu sync.Mutex

	scene   *mixer.Scene
	sources map[uint32]*Source
	nextSrc uint32
	slots   []*EffectSlot

	changeSeq              atomic.Uint64
	stopVoicesOnDisconnect atomic.Bool

	destroyed bool
}

var contextIDs atomic.Uint64

// NewContext creates a rendering context on the device, configuring the
// device first if this is its first context or attrs are given.
func NewContext(dev *Device, attrs []int) (*Context, error) {
	if dev == nil {
		return nil, storeError(nil, ErrInvalidDevice)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.closed || dev.typ != backend.Playback {
		return nil, storeError(nil, ErrInvalidDevice)
	}

	if dev.state == stateUnprepared || len(attrs) > 0 {
		if code := dev.updateParams(attrs); code != ErrNone {
			return nil, storeError(dev, code)
		}
	}

	ctx := &Context{
		id:      contextIDs.Add(1),
		device:  dev,
		scene:   mixer.NewScene(),
		sources: make(map[uint32]*Source),
		nextSrc: 1,
	}
	ctx.stopVoicesOnDisconnect.Store(true)
	ctx.scene.AllocVoices(dev.stereoSources + min(dev.monoSources, 64))

	registerContext(ctx)
	dev.attachContext(ctx)

	if dev.state == stateConfigured && dev.flags&flagPaused == 0 && dev.connected.Load() {
		if err := dev.backend.Start(); err != nil {
			dev.connected.Store(false)
			storeError(dev, ErrDeviceError)
		} else {
			dev.state = statePlaying
		}
	}
	return ctx, nil
}

// attachContext installs ctx in the device's context array copy-on-write:
// a new N+1 array replaces the pointer, and the old array is only let go
// once no in-flight mix can still be walking it. Caller holds dev.mu.
func (d *Device) attachContext(ctx *Context) {
	old := *d.contexts.Load()
	next := make([]*Context, len(old)+1)
	copy(next, old)
	next[len(old)] = ctx
	d.contexts.Store(&next)
	d.waitForMix()
}

// detachContext removes ctx with the same copy-on-write discipline and
// reports how many contexts remain. Caller holds dev.mu.
func (d *Device) detachContext(ctx *Context) int {
	old := *d.contexts.Load()
	next := make([]*Context, 0, len(old))
	for _, c := range old {
		if c != ctx {
			next = append(next, c)
		}
	}
	d.contexts.Store(&next)
	d.waitForMix()
	return len(next)
}

// Destroy detaches the context from its device and the registry. If it was
// the device's last context, the backend stops.
func (c *Context) Destroy() error {
	dev := c.device
	dev.mu.Lock()
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		dev.mu.Unlock()
		return storeError(nil, ErrInvalidContext)
	}
	c.destroyed = true
	c.mu.Unlock()

	clearCurrentIf(c)
	remaining := dev.detachContext(c)
	if remaining == 0 && dev.state == statePlaying {
		dev.backend.Stop()
		dev.state = stateConfigured
	}
	dev.mu.Unlock()

	unregisterContext(c)
	return nil
}

// Device returns the device the context lives on.
func (c *Context) Device() *Device { return c.device }

// Suspend defers property and voice-change propagation to the mixer until
// Process. Publications made while suspended are kept, not lost.
func (c *Context) Suspend() { c.scene.SetHold(true) }

// Process resumes deferred propagation; held updates land on the next mix.
func (c *Context) Process() { c.scene.SetHold(false) }

// SetGain sets the context master gain.
func (c *Context) SetGain(gain float32) error {
	if gain < 0 {
		return storeError(c.device, ErrInvalidValue)
	}
	c.scene.SetGain(gain)
	return nil
}

// SetStopVoicesOnDisconnect controls whether device loss force-stops the
// context's voices or leaves them for the app to inspect.
func (c *Context) SetStopVoicesOnDisconnect(stop bool) {
	c.stopVoicesOnDisconnect.Store(stop)
}

// nextChangeSeq tags VoiceChanges so application order is observable.
func (c *Context) nextChangeSeq() uint64 { return c.changeSeq.Add(1) }
