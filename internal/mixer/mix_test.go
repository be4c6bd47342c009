package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 48000

func playingVoice(t *testing.T, s *Scene, buf *SampleBuffer) *Voice {
	t.Helper()
	v := s.FreeVoice()
	v.Publish(s, &Props{Seq: 1, Gain: 1, Pitch: 1, DirectHF: 1, Buffer: buf})

	vc := s.GetVoiceChange()
	vc.Voice = v
	vc.SourceID = 1
	vc.State = ChangePlay
	vc.Seq = 1
	s.SendVoiceChanges(vc)
	require.Equal(t, uint64(1), s.ProcessVoiceChanges())
	require.Equal(t, Playing, v.State())
	return v
}

func constantBuffer(frames int, value float32) *SampleBuffer {
	data := make([]float32, frames)
	for i := range data {
		data[i] = value
	}
	return &SampleBuffer{Data: data, Channels: 1, SampleRate: testRate}
}

func TestMixProducesNonSilence(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	playingVoice(t, s, constantBuffer(testRate, 0.5))

	const frames = 256
	dst := make([]float32, frames*2)
	s.Mix(dst, frames, 2, testRate)

	// Gains ramp in from zero, so judge the period tail.
	var tail float32
	for _, sample := range dst[len(dst)-64:] {
		if sample > tail {
			tail = sample
		}
	}
	assert.Greater(t, tail, float32(0.1))
}

func TestMixDrainsThenStops(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	// Shorter than one period: the voice underruns within the first mix.
	v := playingVoice(t, s, constantBuffer(64, 0.5))

	const frames = 256
	dst := make([]float32, frames*2)
	s.Mix(dst, frames, 2, testRate)
	assert.Equal(t, Stopping, v.State(), "tail must drain before the underrun is final")

	s.Mix(dst, frames, 2, testRate)
	assert.Equal(t, Stopped, v.State())
	assert.Equal(t, uint32(0), v.SourceID(), "natural end releases the binding")
}

func TestMixLoopingVoiceKeepsPlaying(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	v := s.FreeVoice()
	buf := constantBuffer(64, 0.25)
	v.Publish(s, &Props{Seq: 1, Gain: 1, Pitch: 1, DirectHF: 1, Loop: true, Buffer: buf})

	vc := s.GetVoiceChange()
	vc.Voice = v
	vc.SourceID = 2
	vc.State = ChangePlay
	vc.Seq = 1
	s.SendVoiceChanges(vc)
	s.ProcessVoiceChanges()

	dst := make([]float32, 512*2)
	for range 10 {
		s.Mix(dst, 512, 2, testRate)
		clear(dst)
	}
	assert.Equal(t, Playing, v.State())
}

func TestMixPausingSettlesToPaused(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	v := playingVoice(t, s, constantBuffer(testRate, 0.5))

	vc := s.GetVoiceChange()
	vc.Voice = v
	vc.State = ChangePause
	vc.Seq = 2
	s.SendVoiceChanges(vc)
	s.ProcessVoiceChanges()
	require.Equal(t, Pausing, v.State())

	dst := make([]float32, 256*2)
	s.Mix(dst, 256, 2, testRate)
	assert.Equal(t, Paused, v.State())

	pos := v.Position()
	s.Mix(dst, 256, 2, testRate)
	assert.Equal(t, pos, v.Position(), "paused voices do not advance")
}

func TestMixHonorsHold(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	v := playingVoice(t, s, constantBuffer(testRate, 0.5))

	v.Publish(s, &Props{Seq: 9, Gain: 0, Pitch: 1, DirectHF: 1, Buffer: v.props.Buffer})
	s.SetHold(true)

	dst := make([]float32, 256*2)
	s.Mix(dst, 256, 2, testRate)
	assert.Equal(t, uint64(1), v.props.Seq, "held updates must not land")

	s.SetHold(false)
	s.Mix(dst, 256, 2, testRate)
	assert.Equal(t, uint64(9), v.props.Seq, "released updates land on the next mix")
}

func TestMixSendsFeedSlotWetPath(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)

	slot := &Slot{}
	const frames = 256
	slot.SetWetBuffer(make([]float32, frames*2))
	slot.Publish(&SlotProps{Seq: 1, Gain: 1})
	s.SetActiveSlots([]*Slot{slot})

	v := s.FreeVoice()
	props := &Props{Seq: 1, Gain: 1, Pitch: 1, DirectHF: 1, Buffer: constantBuffer(testRate, 0.5)}
	props.Sends[0] = SendProps{Slot: slot, Gain: 1}
	v.Publish(s, props)

	vc := s.GetVoiceChange()
	vc.Voice = v
	vc.SourceID = 1
	vc.State = ChangePlay
	vc.Seq = 1
	s.SendVoiceChanges(vc)
	s.ProcessVoiceChanges()

	dst := make([]float32, frames*2)
	s.Mix(dst, frames, 2, testRate)

	// The wet buffer holds this mix's accumulation until the next mix
	// clears it.
	var wetPeak float32
	for _, sample := range slot.wet {
		if sample > wetPeak {
			wetPeak = sample
		}
	}
	assert.Greater(t, wetPeak, float32(0.1))

	// Without a processor the wet path sums into the output, so dry+wet
	// exceeds the dry-only level.
	var peak float32
	for _, sample := range dst {
		if sample > peak {
			peak = sample
		}
	}
	assert.Greater(t, peak, float32(0.3))
}
