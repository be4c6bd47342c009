// Package mixer implements the render-thread side of the engine: the voice
// pool, the VoiceChange command queue, property snapshot handoff, and the
// mixing loop. Control threads touch this package only through the publish
// and enqueue entry points; everything else runs on the device callback.
package mixer

import "sync/atomic"

const (
	// MaxChannels is the widest output layout mixed (7.1).
	MaxChannels = 8
	// MaxSends is the per-voice auxiliary send limit.
	MaxSends = 4

	voiceClusterSize  = 32
	changeClusterSize = 128
)

type PlayState uint32

const (
	Stopped PlayState = iota
	Playing
	Stopping
	Pausing
	Paused
)

func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Stopping:
		return "stopping"
	case Pausing:
		return "pausing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// SampleBuffer is the playable payload a source binds to a voice. Data is
// interleaved float32; the engine never mutates it after binding.
type SampleBuffer struct {
	Data       []float32
	Channels   int
	SampleRate int
}

func (b *SampleBuffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// SendProps routes a share of a voice's output into an effect slot.
type SendProps struct {
	Slot *Slot
	Gain float32
}

// Props is an immutable parameter snapshot published by a control thread and
// consumed whole by the render thread. Seq increases with every publish.
type Props struct {
	Seq      uint64
	Gain     float32
	Pitch    float32
	Loop     bool
	DirectHF float32
	Buffer   *SampleBuffer
	Sends    [MaxSends]SendProps
}

// PropsItem is a recyclable container for one snapshot. Items circulate
// between a per-scene free list and the voices' pending slots, so steady
// state publishes allocate nothing.
type PropsItem struct {
	next atomic.Pointer[PropsItem]
	Props
}

// Voice is the render state for one in-flight source. Voices live in
// append-only clusters and are addressed by index; they never move.
type Voice struct {
	index int

	// sourceID is written only by the render thread applying a VoiceChange.
	sourceID atomic.Uint32
	state    atomic.Uint32
	pending  atomic.Pointer[PropsItem]
	position atomic.Uint64

	// pendingChange marks a queued VoiceChange referencing this voice. Set
	// by the enqueuing control thread, cleared by the render thread after
	// the change is applied; FreeVoice must not hand out a marked voice.
	pendingChange atomic.Bool

	// Render-thread only from here down.
	props    Props
	frac     uint64
	curGain  [MaxChannels]float32
	curSend  [MaxSends]float32
	hfFilter [MaxChannels]OnePole
}

func (v *Voice) Index() int       { return v.index }
func (v *Voice) SourceID() uint32 { return v.sourceID.Load() }
func (v *Voice) State() PlayState { return PlayState(v.state.Load()) }
func (v *Voice) Position() uint64 { return v.position.Load() }

// Publish hands a new parameter snapshot to the render thread. The previous
// unconsumed snapshot, if any, is recycled; the voice always sees the newest
// values no later than the next mix.
func (v *Voice) Publish(s *Scene, p *Props) {
	item := s.getPropsItem()
	item.Props = *p
	if old := v.pending.Swap(item); old != nil {
		s.putPropsItem(old)
	}
}

// render-thread: adopt the newest pending snapshot, if any.
func (v *Voice) pickupProps(s *Scene) {
	item := v.pending.Swap(nil)
	if item == nil {
		return
	}
	v.props = item.Props
	s.putPropsItem(item)
}

// render-thread: clear playback state ahead of a fresh Play binding.
func (v *Voice) rewind() {
	v.position.Store(0)
	v.frac = 0
	for i := range v.hfFilter {
		v.hfFilter[i].Reset()
	}
}
