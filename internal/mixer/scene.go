package mixer

import "sync/atomic"

// Scene is the render-side state a context owns: the voice pool, the
// VoiceChange ring, the snapshot free list, and the active effect slots.
// Control-thread entry points must be serialized by the owning context's
// lock; everything else is render-thread only or atomic.
type Scene struct {
	voices      atomic.Pointer[[]*Voice]
	activeSlots atomic.Pointer[[]*Slot]

	// Voice and change clusters are append-only; entries never move or free
	// while the device exists, so a stale index can never dangle.
	voiceClusters  []*[voiceClusterSize]Voice
	changeClusters []*[changeClusterSize]VoiceChange

	// changeTail heads the free segment, up to and excluding current. The
	// node at current was the last one processed; anything after is pending.
	changeTail *VoiceChange
	current    atomic.Pointer[VoiceChange]

	freeProps     atomic.Pointer[PropsItem]
	lastChangeSeq uint64

	// holdUpdates defers snapshot pickup and queue draining while a
	// context is suspended; publications are kept, not dropped.
	holdUpdates atomic.Bool

	// Master gain snapshot for the whole scene, applied by the mix loop.
	gain atomicFloat32
}

func NewScene() *Scene {
	s := &Scene{}
	s.gain.Store(1)

	s.allocVoiceChanges()
	// Seed current with the chain's last node, treated as already consumed.
	// The free segment runs from changeTail up to current, and the tail
	// chases current around the ring as nodes are recycled.
	s.current.Store(&s.changeClusters[0][changeClusterSize-1])

	empty := make([]*Voice, 0)
	s.voices.Store(&empty)
	slots := make([]*Slot, 0)
	s.activeSlots.Store(&slots)
	return s
}

func (s *Scene) allocVoiceChanges() {
	cluster := new([changeClusterSize]VoiceChange)
	for i := 1; i < changeClusterSize; i++ {
		cluster[i-1].next.Store(&cluster[i])
	}
	cluster[changeClusterSize-1].next.Store(s.changeTail)
	s.changeClusters = append(s.changeClusters, cluster)
	s.changeTail = &cluster[0]
}

// AllocVoices grows the pool by at least addCount voices and installs the
// new index array atomically. The caller handshakes with the mixer before
// relying on the old array being unobserved.
func (s *Scene) AllocVoices(addCount int) {
	clusters := (addCount + voiceClusterSize - 1) / voiceClusterSize
	if clusters == 0 {
		if len(s.voiceClusters) > 0 {
			return
		}
		clusters = 1
	}
	for range clusters {
		s.voiceClusters = append(s.voiceClusters, new([voiceClusterSize]Voice))
	}

	voices := make([]*Voice, 0, len(s.voiceClusters)*voiceClusterSize)
	for ci, cluster := range s.voiceClusters {
		for i := range cluster {
			cluster[i].index = ci*voiceClusterSize + i
			voices = append(voices, &cluster[i])
		}
	}
	s.voices.Store(&voices)
}

// Voices returns the live index array. Render thread and control threads
// both read through this; the slice itself is immutable once installed.
func (s *Scene) Voices() []*Voice {
	return *s.voices.Load()
}

// FreeVoice finds a voice with no source binding, growing the pool when
// every voice is taken. Caller holds the context lock.
func (s *Scene) FreeVoice() *Voice {
	for _, v := range s.Voices() {
		if v.SourceID() == 0 && v.State() == Stopped &&
			v.pending.Load() == nil && !v.pendingChange.Load() {
			return v
		}
	}
	n := len(s.Voices())
	s.AllocVoices(voiceClusterSize)
	return s.Voices()[n]
}

// VoiceForSource returns the voice currently bound to the source, if any.
func (s *Scene) VoiceForSource(id uint32) *Voice {
	for _, v := range s.Voices() {
		if v.SourceID() == id {
			return v
		}
	}
	return nil
}

func (s *Scene) getPropsItem() *PropsItem {
	for {
		item := s.freeProps.Load()
		if item == nil {
			return &PropsItem{}
		}
		next := item.next.Load()
		if s.freeProps.CompareAndSwap(item, next) {
			item.next.Store(nil)
			return item
		}
	}
}

func (s *Scene) putPropsItem(item *PropsItem) {
	for {
		head := s.freeProps.Load()
		item.next.Store(head)
		if s.freeProps.CompareAndSwap(head, item) {
			return
		}
	}
}

// SetHold suspends (true) or resumes (false) update propagation.
func (s *Scene) SetHold(hold bool) { s.holdUpdates.Store(hold) }
func (s *Scene) Held() bool        { return s.holdUpdates.Load() }

// SetGain publishes the scene master gain.
func (s *Scene) SetGain(gain float32) { s.gain.Store(gain) }
func (s *Scene) Gain() float32        { return s.gain.Load() }

// SetActiveSlots installs the effect slot list copy-on-write.
func (s *Scene) SetActiveSlots(slots []*Slot) {
	installed := make([]*Slot, len(slots))
	copy(installed, slots)
	s.activeSlots.Store(&installed)
}

func (s *Scene) ActiveSlots() []*Slot {
	return *s.activeSlots.Load()
}

// StopAll force-resets every voice to a clean stopped state. Used on device
// disconnect, where the usual draining handshake no longer applies.
func (s *Scene) StopAll() {
	for _, v := range s.Voices() {
		if v.State() != Stopped {
			v.sourceID.Store(0)
			v.state.Store(uint32(Stopped))
		}
	}
}

// LastChangeSeq reports the sequence number of the most recently applied
// VoiceChange. Render-thread value, read opportunistically by tests.
func (s *Scene) LastChangeSeq() uint64 { return s.lastChangeSeq }
