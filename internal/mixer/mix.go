package mixer

import "math"

const fracBits = 32

// Mix renders one period of the scene into dst, which holds frames*channels
// interleaved float32 samples and accumulates across scenes. Runs on the
// render thread only.
func (s *Scene) Mix(dst []float32, frames, channels, sampleRate int) {
	if channels > MaxChannels {
		channels = MaxChannels
	}
	sceneGain := s.gain.Load()
	held := s.holdUpdates.Load()

	slots := s.ActiveSlots()
	for _, sl := range slots {
		if !held {
			sl.pickupProps()
		}
		if sl.wet != nil {
			clear(sl.wet[:min(len(sl.wet), frames*channels)])
		}
	}

	for _, v := range s.Voices() {
		switch v.State() {
		case Playing, Stopping, Pausing:
			if !held {
				v.pickupProps(s)
			}
			s.mixVoice(v, dst, frames, channels, sampleRate, sceneGain)
		}
	}

	for _, sl := range slots {
		if sl.wet == nil {
			continue
		}
		wet := sl.wet[:min(len(sl.wet), frames*channels)]
		gain := sl.props.Gain * sceneGain
		if sl.props.Processor != nil {
			sl.props.Processor.Process(dst, wet, frames, channels)
			continue
		}
		for i, w := range wet {
			dst[i] += w * gain
		}
	}
}

// spreadGain distributes a mono or mismatched source across the output
// layout at constant power.
func spreadGain(srcChans, dstChans int) float32 {
	if srcChans >= dstChans {
		return 1
	}
	return float32(1 / math.Sqrt(float64(dstChans)))
}

func (s *Scene) mixVoice(v *Voice, dst []float32, frames, channels, sampleRate int, sceneGain float32) {
	state := PlayState(v.state.Load())
	buf := v.props.Buffer
	if buf == nil || buf.Frames() == 0 || sampleRate <= 0 {
		v.sourceID.Store(0)
		v.state.Store(uint32(Stopped))
		return
	}

	// Target gains for this period. Draining and pausing voices ramp to
	// silence so the transition lands without a click.
	var target [MaxChannels]float32
	if state == Playing {
		g := v.props.Gain * sceneGain * spreadGain(buf.Channels, channels)
		for c := range channels {
			target[c] = g
		}
	}

	pitch := v.props.Pitch
	if pitch <= 0 {
		pitch = 1
	}
	step := uint64(float64(pitch) * float64(buf.SampleRate) / float64(sampleRate) * (1 << fracBits))
	if step == 0 {
		step = 1
	}

	filtered := v.props.DirectHF < 1
	if filtered {
		for c := range channels {
			v.hfFilter[c].SetCoeff(float64(v.props.DirectHF) * 0.5)
		}
	}

	srcFrames := uint64(buf.Frames())
	pos := v.position.Load()
	frac := v.frac
	exhausted := false

	for i := range frames {
		if pos >= srcFrames {
			if !v.props.Loop {
				exhausted = true
				break
			}
			pos %= srcFrames
		}
		next := pos + 1
		if next >= srcFrames {
			if v.props.Loop {
				next = 0
			} else {
				next = pos
			}
		}
		mu := float32(frac>>16) / float32(1<<16)

		t := float32(i+1) / float32(frames)
		for c := range channels {
			sc := c
			if sc >= buf.Channels {
				sc = buf.Channels - 1
			}
			s0 := buf.Data[pos*uint64(buf.Channels)+uint64(sc)]
			s1 := buf.Data[next*uint64(buf.Channels)+uint64(sc)]
			sample := s0 + (s1-s0)*mu
			if filtered {
				sample = v.hfFilter[c].Process(sample)
			}

			gain := v.curGain[c] + (target[c]-v.curGain[c])*t
			dst[i*channels+c] += sample * gain

			for si := range v.props.Sends {
				send := &v.props.Sends[si]
				if send.Slot == nil || send.Slot.wet == nil {
					continue
				}
				wet := send.Slot.wet
				if idx := i*channels + c; idx < len(wet) {
					wet[idx] += sample * gain * send.Gain
				}
			}
		}

		frac += step
		pos += frac >> fracBits
		frac &= (1 << fracBits) - 1
	}

	v.curGain = target
	v.position.Store(pos)
	v.frac = frac

	switch {
	case exhausted && state == Stopping, exhausted && !v.props.Loop && state != Playing:
		v.sourceID.Store(0)
		v.state.Store(uint32(Stopped))
	case exhausted:
		// Drain the tail one more period before reporting the underrun.
		v.state.Store(uint32(Stopping))
	case state == Pausing:
		v.state.Store(uint32(Paused))
	case state == Stopping:
		v.sourceID.Store(0)
		v.state.Store(uint32(Stopped))
	}
}
