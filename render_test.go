package chime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The canonical smoke test: open, attach, bind, play, and hear something.
func TestPlayProducesAudio(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()
	require.NoError(t, MakeContextCurrent(ctx))
	defer MakeContextCurrent(nil)

	src := playTestTone(t, ctx)

	// Nothing is audible until the render thread picks up the change.
	assert.Equal(t, StoppedState, src.State())

	out := f.backend().Step(512)
	assert.Equal(t, PlayingState, src.State())
	assert.Greater(t, peak(decodeF32(out)), float32(0.1))
}

func TestPlayWithoutBufferFails(t *testing.T) {
	useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	src, err := ctx.NewSource()
	require.NoError(t, err)
	require.Error(t, src.Play())
	assert.Equal(t, ErrInvalidValue, LastError(dev))
}

func TestSourceParameterValidation(t *testing.T) {
	useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()
	src, err := ctx.NewSource()
	require.NoError(t, err)

	assert.Error(t, src.SetGain(-1))
	assert.Error(t, src.SetPitch(0))
	assert.Error(t, src.SetDirectHF(1.5))
	assert.Error(t, src.SetSend(-1, nil, 1))
	assert.Error(t, src.SetSend(99, nil, 1))

	_, err = NewBuffer(make([]float32, 3), 2, 48000)
	assert.Error(t, err)
	_, err = NewBuffer(make([]float32, 4), 0, 48000)
	assert.Error(t, err)
	_, err = NewBuffer(make([]float32, 4), 2, 0)
	assert.Error(t, err)
}

func TestSourceTransitions(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	src := playTestTone(t, ctx)
	f.backend().Step(512)
	require.Equal(t, PlayingState, src.State())

	// Pause fades out over one period, then the position freezes.
	require.NoError(t, src.Pause())
	f.backend().Step(512)
	f.backend().Step(512)
	require.Equal(t, PausedState, src.State())
	frozen := src.Position()
	f.backend().Step(512)
	assert.Equal(t, frozen, src.Position())

	require.NoError(t, src.Resume())
	f.backend().Step(512)
	require.Equal(t, PlayingState, src.State())
	assert.Greater(t, src.Position(), frozen)

	// Rewind stops and resets; the voice unbinds.
	require.NoError(t, src.Rewind())
	f.backend().Step(512)
	f.backend().Step(512)
	assert.Equal(t, StoppedState, src.State())
	assert.Zero(t, src.Position())
}

func TestSourcePositionTracksPitch(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	src := playTestTone(t, ctx)
	f.backend().Step(512)
	assert.Equal(t, uint64(512), src.Position())

	require.NoError(t, src.SetPitch(2))
	f.backend().Step(512)
	assert.Equal(t, uint64(512+1024), src.Position())
}

func TestPlayWhilePlayingRestartsAtomically(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	src := playTestTone(t, ctx)
	for i := 0; i < 4; i++ {
		f.backend().Step(512)
	}
	require.Equal(t, uint64(2048), src.Position())

	// Restarting swaps voices in one change; position restarts from zero
	// and the source never reads as stopped in between.
	require.NoError(t, src.Play())
	f.backend().Step(512)
	assert.Equal(t, PlayingState, src.State())
	assert.Equal(t, uint64(512), src.Position())
}

func TestNonLoopingSourceDrainsToStopped(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	data := make([]float32, 256)
	for i := range data {
		data[i] = 0.5
	}
	buf, err := NewBuffer(data, 1, 48000)
	require.NoError(t, err)
	src, err := ctx.NewSource()
	require.NoError(t, err)
	require.NoError(t, src.SetBuffer(buf))
	require.NoError(t, src.Play())

	// 256 frames drain inside the first period; one more period fades the
	// voice out and releases it.
	f.backend().Step(512)
	require.Equal(t, PlayingState, src.State())
	f.backend().Step(512)
	assert.Equal(t, StoppedState, src.State())
}

func TestEffectSlotWetPath(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	src := playTestTone(t, ctx)
	f.backend().Step(512)
	f.backend().Step(512)
	dry := peak(decodeF32(f.backend().Step(512)))

	slot, err := ctx.NewEffectSlot()
	require.NoError(t, err)
	require.NoError(t, src.SetSend(0, slot, 1))

	// With no processor the slot passes the wet signal through, doubling
	// the source's contribution.
	f.backend().Step(512)
	wet := peak(decodeF32(f.backend().Step(512)))
	assert.InDelta(t, float64(dry*2), float64(wet), 0.02)

	// A processor replaces the passthrough entirely.
	require.NoError(t, slot.SetProcessor(muteProcessor{}))
	f.backend().Step(512)
	muted := peak(decodeF32(f.backend().Step(512)))
	assert.InDelta(t, float64(dry), float64(muted), 0.02)

	// Destroying the slot deactivates its contribution.
	require.NoError(t, slot.Destroy())
	f.backend().Step(512)
	after := peak(decodeF32(f.backend().Step(512)))
	assert.InDelta(t, float64(dry), float64(after), 0.02)
}

type muteProcessor struct{}

func (muteProcessor) Process(dst, wet []float32, frames, channels int) {}

func TestOutputLimiterClampsFullScale(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	// Five half-scale tones sum well past full scale.
	for i := 0; i < 5; i++ {
		playTestTone(t, ctx)
	}
	f.backend().Step(512)
	hot := peak(decodeF32(f.backend().Step(512)))
	require.Greater(t, hot, float32(1.2))

	require.NoError(t, dev.Reset([]int{AttrOutputLimiter, 1, AttrNone}))
	f.backend().Step(512)
	limited := peak(decodeF32(f.backend().Step(512)))
	assert.LessOrEqual(t, limited, float32(1))
	assert.Greater(t, limited, float32(0.9))
}

func TestPackedFormats(t *testing.T) {
	f := useFakeBackend(t)
	dev, err := OpenDevice("")
	require.NoError(t, err)
	defer dev.Close()
	ctx, err := NewContext(dev, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	// Silence is mid-scale in unsigned 8-bit.
	require.NoError(t, dev.Reset([]int{AttrFormatType, SampleU8, AttrNone}))
	out := f.backend().Step(64)
	require.Len(t, out, 64*2)
	for _, b := range out {
		require.Equal(t, byte(128), b)
	}

	// Signed 16-bit silence is all zeros; a tone moves the high bytes.
	require.NoError(t, dev.Reset([]int{AttrFormatType, SampleS16, AttrNone}))
	out = f.backend().Step(64)
	require.Len(t, out, 64*4)
	for _, b := range out {
		require.Equal(t, byte(0), b)
	}

	playTestTone(t, ctx)
	f.backend().Step(512)
	out = f.backend().Step(512)
	var maxSample int16
	for i := 0; i+1 < len(out); i += 2 {
		v := int16(uint16(out[i]) | uint16(out[i+1])<<8)
		if v > maxSample {
			maxSample = v
		}
	}
	assert.Greater(t, maxSample, int16(8000))
}
