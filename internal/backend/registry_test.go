package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct {
	name     string
	initOK   bool
	playback bool
	capture  bool
	inits    int
}

func (f *stubFactory) Name() string { return f.name }
func (f *stubFactory) Init() bool   { f.inits++; return f.initOK }

func (f *stubFactory) QuerySupport(t DeviceType) bool {
	if t == Capture {
		return f.capture
	}
	return f.playback
}

func (f *stubFactory) Enumerate(DeviceType) []string { return []string{f.name + " device"} }

func (f *stubFactory) Create(spec *DeviceSpec, render RenderFunc, disconnect DisconnectFunc, t DeviceType) (Backend, error) {
	return nil, ErrNotSupported
}

func resetRegistry(t *testing.T) {
	t.Helper()
	registry.mu.Lock()
	saved := registry.entries
	registry.entries = nil
	registry.mu.Unlock()
	ResetSelection()
	t.Cleanup(func() {
		registry.mu.Lock()
		registry.entries = saved
		registry.mu.Unlock()
		ResetSelection()
	})
}

func TestSelectionFollowsPriority(t *testing.T) {
	resetRegistry(t)
	low := &stubFactory{name: "low", initOK: true, playback: true}
	high := &stubFactory{name: "high", initOK: true, playback: true}
	Register(low, 1)
	Register(high, 10)

	require.Equal(t, high.Name(), For(Playback).Name())
	// Selection is sticky for the process (or until reset).
	assert.Equal(t, high.Name(), For(Playback).Name())
	assert.Equal(t, 1, high.inits)
}

func TestSelectionSkipsFailedInitAndUnsupported(t *testing.T) {
	resetRegistry(t)
	broken := &stubFactory{name: "broken", initOK: false, playback: true}
	playbackOnly := &stubFactory{name: "po", initOK: true, playback: true}
	Register(broken, 10)
	Register(playbackOnly, 1)

	require.Equal(t, "po", For(Playback).Name())
	assert.Nil(t, For(Capture))
}

func TestDriverListOverridesPriority(t *testing.T) {
	resetRegistry(t)
	a := &stubFactory{name: "a", initOK: true, playback: true}
	b := &stubFactory{name: "b", initOK: true, playback: true}
	Register(a, 10)
	Register(b, 1)

	SetDriverList([]string{"b", "a"})
	require.Equal(t, "b", For(Playback).Name())
}

func TestDriverDenyList(t *testing.T) {
	resetRegistry(t)
	a := &stubFactory{name: "a", initOK: true, playback: true}
	b := &stubFactory{name: "b", initOK: true, playback: true}
	Register(a, 10)
	Register(b, 1)

	SetDriverList([]string{"-a"})
	require.Equal(t, "b", For(Playback).Name())
}

func TestEnumerateUsesSelectedFactory(t *testing.T) {
	resetRegistry(t)
	a := &stubFactory{name: "a", initOK: true, playback: true, capture: true}
	Register(a, 1)
	assert.Equal(t, []string{"a device"}, Enumerate(Playback))
}

func TestDuplicateRegistrationIgnored(t *testing.T) {
	resetRegistry(t)
	first := &stubFactory{name: "dup", initOK: true, playback: true}
	second := &stubFactory{name: "dup", initOK: true, playback: true}
	Register(first, 1)
	Register(second, 10)

	require.Equal(t, "dup", For(Playback).Name())
	assert.Equal(t, 1, first.inits)
	assert.Equal(t, 0, second.inits)
}
