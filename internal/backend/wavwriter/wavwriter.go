// Package wavwriter is a playback backend that renders into a WAV file at
// real-time pacing instead of an OS device. It only activates when
// CHIME_WAVE_FILE names the output path, so it can never shadow a real
// driver by accident.
package wavwriter

import (
	"fmt"
	"os"
	"sync"
	"time"

	"chime/internal/backend"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type factory struct{}

// Factory returns the WAV file writer factory.
func Factory() backend.Factory { return factory{} }

func (factory) Name() string { return "wave" }

func (factory) Init() bool {
	return os.Getenv("CHIME_WAVE_FILE") != ""
}

func (factory) QuerySupport(t backend.DeviceType) bool {
	return t == backend.Playback
}

func (factory) Enumerate(t backend.DeviceType) []string {
	if t != backend.Playback {
		return nil
	}
	return []string{"Wave File Writer"}
}

func (factory) Create(spec *backend.DeviceSpec, render backend.RenderFunc, disconnect backend.DisconnectFunc, t backend.DeviceType) (backend.Backend, error) {
	if t != backend.Playback {
		return nil, backend.ErrNotSupported
	}
	return &writer{
		spec:       spec,
		render:     render,
		disconnect: disconnect,
		path:       os.Getenv("CHIME_WAVE_FILE"),
	}, nil
}

type writer struct {
	spec       *backend.DeviceSpec
	render     backend.RenderFunc
	disconnect backend.DisconnectFunc
	path       string

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	quit    chan struct{}
	done    sync.WaitGroup
	running bool
}

func (w *writer) Open(name string) error {
	if name != "" && name != "Wave File Writer" {
		return backend.ErrNoDevice
	}
	return nil
}

func (w *writer) Reset(spec *backend.DeviceSpec) error {
	// The file is written as 16-bit PCM whatever was asked for.
	spec.Format = backend.FormatS16
	return nil
}

func (w *writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if w.enc == nil {
		f, err := os.Create(w.path)
		if err != nil {
			return fmt.Errorf("creating wave file: %w", err)
		}
		w.file = f
		w.enc = wav.NewEncoder(f, w.spec.SampleRate, 16, w.spec.Channels(), 1)
	}

	period := time.Duration(w.spec.PeriodFrames) * time.Second / time.Duration(w.spec.SampleRate)
	raw := make([]byte, w.spec.PeriodFrames*w.spec.FrameSize())
	ints := make([]int, w.spec.PeriodFrames*w.spec.Channels())
	format := &audio.Format{
		NumChannels: w.spec.Channels(),
		SampleRate:  w.spec.SampleRate,
	}

	w.quit = make(chan struct{})
	w.done.Add(1)
	w.running = true

	go func(quit chan struct{}) {
		defer w.done.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				w.render(raw, w.spec.PeriodFrames)
				for i := range ints {
					ints[i] = int(int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8))
				}
				err := w.enc.Write(&audio.IntBuffer{
					Format:         format,
					Data:           ints,
					SourceBitDepth: 16,
				})
				if err != nil {
					w.disconnect(fmt.Errorf("writing wave file: %w", err))
					return
				}
			}
		}
	}(w.quit)
	return nil
}

func (w *writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.quit)
	w.done.Wait()
	w.running = false
}

func (w *writer) Close() {
	w.Stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			w.disconnect(fmt.Errorf("finalizing wave file: %w", err))
		}
		w.file.Close()
		w.enc = nil
		w.file = nil
	}
}
