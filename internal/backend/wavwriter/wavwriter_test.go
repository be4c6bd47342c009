package wavwriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chime/internal/backend"
)

func TestFactoryRequiresConfiguredPath(t *testing.T) {
	t.Setenv("CHIME_WAVE_FILE", "")
	assert.False(t, Factory().Init())
	t.Setenv("CHIME_WAVE_FILE", "/tmp/out.wav")
	assert.True(t, Factory().Init())
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	t.Setenv("CHIME_WAVE_FILE", path)

	spec := &backend.DeviceSpec{
		SampleRate:   48000,
		Layout:       backend.LayoutMono,
		Format:       backend.FormatF32,
		PeriodFrames: 480,
		BufferFrames: 1440,
	}
	b, err := Factory().Create(spec, func(out []byte, frames int) {
		// A constant 16000 in signed 16-bit little endian.
		sample := int16(16000)
		for i := 0; i < frames; i++ {
			out[i*2] = byte(sample)
			out[i*2+1] = byte(sample >> 8)
		}
	}, func(error) {}, backend.Playback)
	require.NoError(t, err)

	require.NoError(t, b.Open(""))
	require.NoError(t, b.Reset(spec))
	assert.Equal(t, backend.FormatS16, spec.Format)

	require.NoError(t, b.Start())
	time.Sleep(120 * time.Millisecond)
	b.Stop()
	b.Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	require.NotEmpty(t, buf.Data)
	for _, s := range buf.Data {
		require.Equal(t, 16000, s)
	}
}
