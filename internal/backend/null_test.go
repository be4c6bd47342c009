package backend

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullPlaybackRendersPeriodically(t *testing.T) {
	var calls atomic.Int32
	spec := &DeviceSpec{
		SampleRate:   48000,
		Layout:       LayoutStereo,
		Format:       FormatF32,
		PeriodFrames: 48, // 1ms period keeps the test short
		BufferFrames: 144,
	}
	b, err := NullFactory().Create(spec, func(out []byte, frames int) {
		calls.Add(1)
	}, nil, Playback)
	require.NoError(t, err)
	require.NoError(t, b.Open(""))
	require.NoError(t, b.Start())

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	b.Stop()
	got := calls.Load()
	require.GreaterOrEqual(t, got, int32(3))

	// Stopped means stopped: the render thread is joined, not just signalled.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, got, calls.Load())

	// Stop and Start are idempotent.
	b.Stop()
	require.NoError(t, b.Start())
	require.NoError(t, b.Start())
	b.Close()
}

func TestNullPlaybackRejectsUnknownName(t *testing.T) {
	spec := &DeviceSpec{SampleRate: 48000, Layout: LayoutMono, Format: FormatS16, PeriodFrames: 512}
	b, err := NullFactory().Create(spec, func([]byte, int) {}, nil, Playback)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Open("No Such Output"), ErrNoDevice)
	assert.NoError(t, b.Open("Null Output"))
}

func TestNullCaptureAvailability(t *testing.T) {
	spec := &DeviceSpec{
		SampleRate:   48000,
		Layout:       LayoutMono,
		Format:       FormatS16,
		PeriodFrames: 512,
		BufferFrames: 4800,
	}
	b, err := NullFactory().Create(spec, nil, nil, Capture)
	require.NoError(t, err)
	rec, ok := b.(Capturer)
	require.True(t, ok)

	require.NoError(t, b.Open(""))
	assert.Equal(t, 0, rec.Available())

	require.NoError(t, b.Start())
	deadline := time.Now().Add(2 * time.Second)
	for rec.Available() < 100 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	avail := rec.Available()
	require.GreaterOrEqual(t, avail, 100)
	assert.LessOrEqual(t, avail, spec.BufferFrames)

	dst := make([]byte, 100*spec.FrameSize())
	for i := range dst {
		dst[i] = 0xff
	}
	require.NoError(t, rec.CaptureSamples(dst, 100))
	for _, v := range dst {
		if v != 0 {
			t.Fatal("captured samples not silent")
		}
	}

	// Asking for more than is buffered fails without consuming anything.
	assert.Error(t, rec.CaptureSamples(make([]byte, spec.BufferFrames*2*spec.FrameSize()), spec.BufferFrames*2))

	b.Stop()
	assert.Equal(t, 0, rec.Available())
}
