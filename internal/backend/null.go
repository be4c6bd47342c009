package backend

import (
	"sync"
	"time"
)

// The null driver renders into a discarded buffer on a timer thread. It
// backs headless operation and tests, and is the fallback when no OS driver
// is usable.

type nullFactory struct{}

func (nullFactory) Name() string                 { return "null" }
func (nullFactory) Init() bool                   { return true }
func (nullFactory) QuerySupport(DeviceType) bool { return true }

func (nullFactory) Enumerate(t DeviceType) []string {
	if t == Capture {
		return []string{"Null Input"}
	}
	return []string{"Null Output"}
}

func (nullFactory) Create(spec *DeviceSpec, render RenderFunc, _ DisconnectFunc, t DeviceType) (Backend, error) {
	if t == Capture {
		return &nullCapture{spec: spec}, nil
	}
	return &nullPlayback{spec: spec, render: render}, nil
}

// NullFactory returns the null driver factory. Registered last by the core,
// and usable directly by tests.
func NullFactory() Factory { return nullFactory{} }

type nullPlayback struct {
	spec   *DeviceSpec
	render RenderFunc

	mu      sync.Mutex
	quit    chan struct{}
	done    sync.WaitGroup
	running bool
}

func (b *nullPlayback) Open(name string) error {
	if name != "" && name != "Null Output" {
		return ErrNoDevice
	}
	return nil
}

func (b *nullPlayback) Reset(spec *DeviceSpec) error {
	// Anything goes; the requested format is the actual format.
	b.spec = spec
	return nil
}

func (b *nullPlayback) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	period := time.Duration(b.spec.PeriodFrames) * time.Second / time.Duration(b.spec.SampleRate)
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	buf := make([]byte, b.spec.PeriodFrames*b.spec.FrameSize())

	b.quit = make(chan struct{})
	b.done.Add(1)
	b.running = true

	go func(quit chan struct{}) {
		defer b.done.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				b.render(buf, b.spec.PeriodFrames)
			}
		}
	}(b.quit)
	return nil
}

func (b *nullPlayback) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	close(b.quit)
	b.done.Wait()
	b.running = false
}

func (b *nullPlayback) Close() { b.Stop() }

type nullCapture struct {
	spec *DeviceSpec

	mu      sync.Mutex
	started time.Time
	read    int
	running bool
}

func (b *nullCapture) Open(name string) error {
	if name != "" && name != "Null Input" {
		return ErrNoDevice
	}
	return nil
}

func (b *nullCapture) Reset(*DeviceSpec) error { return ErrNotSupported }

func (b *nullCapture) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		b.started = time.Now()
		b.read = 0
		b.running = true
	}
	return nil
}

func (b *nullCapture) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

func (b *nullCapture) Close() { b.Stop() }

func (b *nullCapture) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.availableLocked()
}

func (b *nullCapture) availableLocked() int {
	if !b.running {
		return 0
	}
	elapsed := time.Since(b.started)
	total := int(elapsed * time.Duration(b.spec.SampleRate) / time.Second)
	avail := total - b.read
	if max := b.spec.BufferFrames; avail > max {
		avail = max
	}
	return avail
}

func (b *nullCapture) CaptureSamples(dst []byte, frames int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if frames > b.availableLocked() {
		return ErrNotSupported
	}
	clear(dst[:frames*b.spec.FrameSize()])
	b.read += frames
	return nil
}
