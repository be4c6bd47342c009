// Package otoplay adapts ebitengine/oto as an alternate playback backend.
// oto allows a single context per process; the first Reset pins the output
// format and later devices are coerced onto it, with the core's request
// flag reconciliation reporting the substitution.
package otoplay

import (
	"sync"
	"time"

	"chime/internal/backend"

	"github.com/ebitengine/oto/v3"
)

type factory struct{}

// Factory returns the oto backend factory.
func Factory() backend.Factory { return factory{} }

func (factory) Name() string { return "oto" }
func (factory) Init() bool   { return true }

func (factory) QuerySupport(t backend.DeviceType) bool {
	return t == backend.Playback
}

func (factory) Enumerate(t backend.DeviceType) []string {
	if t != backend.Playback {
		return nil
	}
	return []string{"Default Output"}
}

func (factory) Create(spec *backend.DeviceSpec, render backend.RenderFunc, _ backend.DisconnectFunc, t backend.DeviceType) (backend.Backend, error) {
	if t != backend.Playback {
		return nil, backend.ErrNotSupported
	}
	return &playback{spec: spec, render: render}, nil
}

var shared struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

type playback struct {
	spec   *backend.DeviceSpec
	render backend.RenderFunc

	mu      sync.Mutex
	player  *oto.Player
	running bool
}

func (b *playback) Open(name string) error {
	if name != "" && name != "Default Output" {
		return backend.ErrNoDevice
	}
	return nil
}

func (b *playback) Reset(spec *backend.DeviceSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player != nil {
		b.stopLocked()
		b.player.Close()
		b.player = nil
	}

	// oto renders float32 and at most stereo.
	spec.Format = backend.FormatF32
	if spec.Channels() > 2 {
		spec.Layout = backend.LayoutStereo
	}

	shared.mu.Lock()
	if shared.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   spec.SampleRate,
			ChannelCount: spec.Channels(),
			Format:       oto.FormatFloat32LE,
			BufferSize: time.Duration(spec.BufferFrames) * time.Second /
				time.Duration(spec.SampleRate),
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			shared.mu.Unlock()
			return err
		}
		<-ready
		shared.ctx = ctx
		shared.sampleRate = spec.SampleRate
		shared.channels = spec.Channels()
	}
	// The context's format is process-wide and final.
	spec.SampleRate = shared.sampleRate
	if shared.channels == 1 {
		spec.Layout = backend.LayoutMono
	} else {
		spec.Layout = backend.LayoutStereo
	}
	ctx := shared.ctx
	shared.mu.Unlock()

	b.player = ctx.NewPlayer(&renderReader{
		render:       b.render,
		frameSize:    spec.FrameSize(),
		periodFrames: spec.PeriodFrames,
	})
	return nil
}

func (b *playback) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player == nil {
		return backend.ErrNotSupported
	}
	if !b.running {
		b.player.Play()
		b.running = true
	}
	return nil
}

func (b *playback) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *playback) stopLocked() {
	if b.running && b.player != nil {
		b.player.Pause()
		b.running = false
	}
}

func (b *playback) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	if b.player != nil {
		b.player.Close()
		b.player = nil
	}
}

// renderReader feeds oto's pull model from the device render step. oto may
// ask for more than one period at a time while the render step fills at most
// one period per call, so reads are chunked.
type renderReader struct {
	render       backend.RenderFunc
	frameSize    int
	periodFrames int
}

func (r *renderReader) Read(p []byte) (int, error) {
	total := len(p) / r.frameSize * r.frameSize
	for off := 0; off < total; {
		frames := (total - off) / r.frameSize
		if frames > r.periodFrames {
			frames = r.periodFrames
		}
		n := frames * r.frameSize
		r.render(p[off:off+n], frames)
		off += n
	}
	return total, nil
}
