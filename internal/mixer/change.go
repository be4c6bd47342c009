package mixer

import "sync/atomic"

type ChangeState uint32

const (
	ChangePlay ChangeState = iota
	ChangeStop
	ChangePause
	ChangeRestart
	ChangeReset
)

// VoiceChange is one queued state-transition command. Control threads link
// changes onto the tail of a singly-linked queue; the render thread consumes
// them strictly in order once per mix. Nodes circulate through the scene's
// cluster ring and are never freed individually.
type VoiceChange struct {
	Voice    *Voice
	OldVoice *Voice
	SourceID uint32
	State    ChangeState
	Seq      uint64

	next atomic.Pointer[VoiceChange]
}

func (vc *VoiceChange) Next() *VoiceChange { return vc.next.Load() }

// GetVoiceChange pops a free node. Caller must hold the scene's owning
// context lock; the free segment runs from changeTail up to, excluding, the
// render thread's current node.
func (s *Scene) GetVoiceChange() *VoiceChange {
	if s.changeTail == s.current.Load() {
		s.allocVoiceChanges()
	}
	vc := s.changeTail
	s.changeTail = vc.next.Load()

	vc.next.Store(nil)
	vc.OldVoice = nil
	return vc
}

// SendVoiceChanges splices a chain of one or more changes onto the queue.
// The atomic store on next publishes the nodes; the render thread only
// dereferences a node after observing that store. Every referenced voice is
// marked busy before the splice so FreeVoice cannot steal it while the
// change is in flight.
func (s *Scene) SendVoiceChanges(head *VoiceChange) {
	for vc := head; vc != nil; vc = vc.next.Load() {
		if vc.Voice != nil {
			vc.Voice.pendingChange.Store(true)
		}
		if vc.OldVoice != nil {
			vc.OldVoice.pendingChange.Store(true)
		}
	}

	cur := s.current.Load()
	for next := cur.next.Load(); next != nil; next = cur.next.Load() {
		cur = next
	}
	cur.next.Store(head)
}

// ProcessVoiceChanges drains the queue on the render thread, applying each
// transition in enqueue order. Returns the sequence number of the last
// applied change, for callers tracking consumption.
func (s *Scene) ProcessVoiceChanges() uint64 {
	cur := s.current.Load()
	last := s.lastChangeSeq

	for next := cur.next.Load(); next != nil; next = cur.next.Load() {
		cur = next
		s.applyVoiceChange(cur)
		// Only now, with sourceID and state settled, may the voices go
		// back into the free pool.
		if cur.Voice != nil {
			cur.Voice.pendingChange.Store(false)
		}
		if cur.OldVoice != nil {
			cur.OldVoice.pendingChange.Store(false)
		}
		last = cur.Seq
	}
	s.current.Store(cur)
	s.lastChangeSeq = last
	return last
}

func (s *Scene) applyVoiceChange(vc *VoiceChange) {
	switch vc.State {
	case ChangePlay:
		// A swap carries the old voice so a restarted source releases its
		// previous binding atomically with taking the new one.
		if old := vc.OldVoice; old != nil {
			old.sourceID.Store(0)
			old.state.Store(uint32(Stopped))
		}
		vc.Voice.rewind()
		vc.Voice.pickupProps(s)
		vc.Voice.sourceID.Store(vc.SourceID)
		vc.Voice.state.Store(uint32(Playing))

	case ChangeStop, ChangeReset:
		v := vc.Voice
		if v == nil {
			return
		}
		v.sourceID.Store(0)
		v.state.Store(uint32(Stopped))
		if vc.State == ChangeReset {
			v.rewind()
		}

	case ChangePause:
		v := vc.Voice
		switch PlayState(v.state.Load()) {
		case Playing:
			v.state.Store(uint32(Pausing))
		case Stopping:
			// Already draining; force the terminal state so the control
			// thread's view stays consistent.
			v.state.Store(uint32(Stopped))
		}

	case ChangeRestart:
		v := vc.Voice
		switch PlayState(v.state.Load()) {
		case Paused, Pausing:
			v.state.Store(uint32(Playing))
		case Stopping:
			v.state.Store(uint32(Stopped))
		}
	}
}
