// Package wsstream is a playback backend that Opus-encodes each rendered
// period and ships it over a websocket, for driving a remote listener
// instead of local hardware. It activates only when CHIME_WS_URL is set.
package wsstream

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"chime/internal/backend"

	"gopkg.in/hraban/opus.v2"
)

const (
	// Opus wants 48 kHz and 20 ms frames; the spec is coerced onto that
	// and the core's reconciliation reports the substitution.
	streamRate   = 48000
	streamPeriod = 960

	maxPacketSize = 4000
)

type factory struct{}

// Factory returns the websocket streaming factory.
func Factory() backend.Factory { return factory{} }

func (factory) Name() string { return "wsstream" }

func (factory) Init() bool {
	return os.Getenv("CHIME_WS_URL") != ""
}

func (factory) QuerySupport(t backend.DeviceType) bool {
	return t == backend.Playback
}

func (factory) Enumerate(t backend.DeviceType) []string {
	if t != backend.Playback {
		return nil
	}
	return []string{"Websocket Stream"}
}

func (factory) Create(spec *backend.DeviceSpec, render backend.RenderFunc, disconnect backend.DisconnectFunc, t backend.DeviceType) (backend.Backend, error) {
	if t != backend.Playback {
		return nil, backend.ErrNotSupported
	}
	return &stream{
		spec:       spec,
		render:     render,
		disconnect: disconnect,
		url:        os.Getenv("CHIME_WS_URL"),
	}, nil
}

type stream struct {
	spec       *backend.DeviceSpec
	render     backend.RenderFunc
	disconnect backend.DisconnectFunc
	url        string

	mu      sync.Mutex
	enc     *opus.Encoder
	conn    *conn
	cancel  context.CancelFunc
	quit    chan struct{}
	done    sync.WaitGroup
	running bool
}

func (s *stream) Open(name string) error {
	if name != "" && name != "Websocket Stream" {
		return backend.ErrNoDevice
	}
	return nil
}

func (s *stream) Reset(spec *backend.DeviceSpec) error {
	spec.SampleRate = streamRate
	spec.Format = backend.FormatS16
	if spec.Channels() > 2 {
		spec.Layout = backend.LayoutStereo
	}
	spec.PeriodFrames = streamPeriod
	if spec.BufferFrames < streamPeriod {
		spec.BufferFrames = streamPeriod * 3
	}

	enc, err := opus.NewEncoder(streamRate, spec.Channels(), opus.AppAudio)
	if err != nil {
		return fmt.Errorf("creating opus encoder: %w", err)
	}
	s.mu.Lock()
	s.enc = enc
	s.mu.Unlock()
	return nil
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.enc == nil {
		return backend.ErrNotSupported
	}

	ctx, cancel := context.WithCancel(context.Background())
	c, err := dial(ctx, s.url)
	if err != nil {
		cancel()
		return fmt.Errorf("dialing %s: %w", s.url, err)
	}
	s.conn = c
	s.cancel = cancel

	period := time.Duration(streamPeriod) * time.Second / time.Duration(streamRate)
	pcm := make([]byte, streamPeriod*s.spec.FrameSize())
	packet := make([]byte, maxPacketSize)

	s.quit = make(chan struct{})
	s.done.Add(1)
	s.running = true

	go func(quit chan struct{}) {
		defer s.done.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				s.render(pcm, streamPeriod)
				samples := unsafe.Slice((*int16)(unsafe.Pointer(&pcm[0])), len(pcm)/2)
				n, err := s.enc.Encode(samples, packet)
				if err != nil {
					s.disconnect(fmt.Errorf("encoding stream period: %w", err))
					return
				}
				if err := c.Write(ctx, packet[:n]); err != nil {
					s.disconnect(fmt.Errorf("writing stream packet: %w", err))
					return
				}
			}
		}
	}(s.quit)
	return nil
}

func (s *stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	close(s.quit)
	s.done.Wait()
	s.running = false
}

func (s *stream) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
