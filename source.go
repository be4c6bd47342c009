package chime

import (
	"chime/internal/mixer"
)

// SourceState is the control-thread view of a source's playback state.
type SourceState uint8

const (
	Initial SourceState = iota
	PlayingState
	PausedState
	StoppedState
)

func (s SourceState) String() string {
	switch s {
	case Initial:
		return "initial"
	case PlayingState:
		return "playing"
	case PausedState:
		return "paused"
	case StoppedState:
		return "stopped"
	}
	return "unknown"
}

// Buffer is an immutable playable sample payload. The engine never writes
// to the data after creation.
type Buffer struct {
	buf mixer.SampleBuffer
}

// NewBuffer wraps interleaved float32 samples. data is used as-is, not
// copied; callers must not mutate it afterwards.
func NewBuffer(data []float32, channels, sampleRate int) (*Buffer, error) {
	if channels < 1 || channels > mixer.MaxChannels || sampleRate <= 0 {
		return nil, ErrInvalidValue
	}
	if len(data)%channels != 0 {
		return nil, ErrInvalidValue
	}
	return &Buffer{buf: mixer.SampleBuffer{
		Data:       data,
		Channels:   channels,
		SampleRate: sampleRate,
	}}, nil
}

// Frames returns the buffer length in frames.
func (b *Buffer) Frames() int { return b.buf.Frames() }

type sendConfig struct {
	slot *EffectSlot
	gain float32
}

// Source is a control-owned description of one playable sound. Its
// parameters are published to the bound voice as immutable snapshots; the
// voice binding itself changes only through the VoiceChange queue.
type Source struct {
	ctx *Context
	id  uint32

	// Guarded by ctx.mu.
	gain     float32
	pitch    float32
	loop     bool
	directHF float32
	buffer   *Buffer
	sends    [mixer.MaxSends]sendConfig
	propSeq  uint64
}

// NewSource creates a source in the context's table.
func (c *Context) NewSource() (*Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, storeError(c.device, ErrInvalidContext)
	}
	s := &Source{
		ctx:      c,
		id:       c.nextSrc,
		gain:     1,
		pitch:    1,
		directHF: 1,
	}
	c.nextSrc++
	c.sources[s.id] = s
	return s, nil
}

// Destroy stops the source and removes it from the context.
func (s *Source) Destroy() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.ctx.mu.Lock()
	delete(s.ctx.sources, s.id)
	s.ctx.mu.Unlock()
	return nil
}

func (s *Source) ID() uint32 { return s.id }

// SetBuffer binds the playable payload. Takes effect on the next Play, or
// on the next snapshot pickup if the source is already playing.
func (s *Source) SetBuffer(b *Buffer) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.buffer = b
	s.publishLocked()
	return nil
}

func (s *Source) SetGain(gain float32) error {
	if gain < 0 {
		return storeError(s.ctx.device, ErrInvalidValue)
	}
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.gain = gain
	s.publishLocked()
	return nil
}

func (s *Source) SetPitch(pitch float32) error {
	if pitch <= 0 {
		return storeError(s.ctx.device, ErrInvalidValue)
	}
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.pitch = pitch
	s.publishLocked()
	return nil
}

func (s *Source) SetLooping(loop bool) error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.loop = loop
	s.publishLocked()
	return nil
}

// SetDirectHF attenuates the direct path's high frequencies; 1 is
// transparent, smaller values close the filter.
func (s *Source) SetDirectHF(gainHF float32) error {
	if gainHF < 0 || gainHF > 1 {
		return storeError(s.ctx.device, ErrInvalidValue)
	}
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.directHF = gainHF
	s.publishLocked()
	return nil
}

// SetSend routes the source into an effect slot's wet path. A nil slot
// clears the send.
func (s *Source) SetSend(index int, slot *EffectSlot, gain float32) error {
	if index < 0 || index >= s.ctx.device.sends || gain < 0 {
		return storeError(s.ctx.device, ErrInvalidValue)
	}
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	s.sends[index] = sendConfig{slot: slot, gain: gain}
	s.publishLocked()
	return nil
}

// publishLocked snapshots the source parameters to the bound voice, if
// any. Caller holds ctx.mu.
func (s *Source) publishLocked() {
	voice := s.ctx.scene.VoiceForSource(s.id)
	if voice == nil {
		return
	}
	s.publishTo(voice)
}

func (s *Source) publishTo(voice *mixer.Voice) {
	s.propSeq++
	props := mixer.Props{
		Seq:      s.propSeq,
		Gain:     s.gain,
		Pitch:    s.pitch,
		Loop:     s.loop,
		DirectHF: s.directHF,
	}
	if s.buffer != nil {
		props.Buffer = &s.buffer.buf
	}
	for i, send := range s.sends {
		if send.slot != nil {
			props.Sends[i] = mixer.SendProps{Slot: send.slot.slot, Gain: send.gain}
		}
	}
	voice.Publish(s.ctx.scene, &props)
}

// Play binds the source to a free voice and enqueues the transition. If the
// source is already playing, the old voice is released in the same change
// so the restart is atomic.
func (s *Source) Play() error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return storeError(c.device, ErrInvalidContext)
	}
	if s.buffer == nil || s.buffer.Frames() == 0 {
		return storeError(c.device, ErrInvalidValue)
	}

	old := c.scene.VoiceForSource(s.id)
	voice := c.scene.FreeVoice()
	s.publishTo(voice)

	vc := c.scene.GetVoiceChange()
	vc.Voice = voice
	vc.OldVoice = old
	vc.SourceID = s.id
	vc.State = mixer.ChangePlay
	vc.Seq = c.nextChangeSeq()
	c.scene.SendVoiceChanges(vc)
	return nil
}

func (s *Source) enqueueSimple(state mixer.ChangeState) error {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return storeError(c.device, ErrInvalidContext)
	}
	voice := c.scene.VoiceForSource(s.id)
	if voice == nil {
		return nil
	}
	vc := c.scene.GetVoiceChange()
	vc.Voice = voice
	vc.SourceID = s.id
	vc.State = state
	vc.Seq = c.nextChangeSeq()
	c.scene.SendVoiceChanges(vc)
	return nil
}

// Stop unbinds the source's voice.
func (s *Source) Stop() error { return s.enqueueSimple(mixer.ChangeStop) }

// Pause halts the voice without unbinding it.
func (s *Source) Pause() error { return s.enqueueSimple(mixer.ChangePause) }

// Resume restarts a paused voice.
func (s *Source) Resume() error { return s.enqueueSimple(mixer.ChangeRestart) }

// Rewind stops the voice and resets its playback position.
func (s *Source) Rewind() error { return s.enqueueSimple(mixer.ChangeReset) }

// State reports the source's observed playback state. The render thread
// may be up to one period behind the most recent request.
func (s *Source) State() SourceState {
	voice := s.ctx.scene.VoiceForSource(s.id)
	if voice == nil {
		return StoppedState
	}
	switch voice.State() {
	case mixer.Playing, mixer.Stopping:
		return PlayingState
	case mixer.Pausing, mixer.Paused:
		return PausedState
	}
	return StoppedState
}

// Position reports the playback position of the bound voice in frames.
func (s *Source) Position() uint64 {
	voice := s.ctx.scene.VoiceForSource(s.id)
	if voice == nil {
		return 0
	}
	return voice.Position()
}
