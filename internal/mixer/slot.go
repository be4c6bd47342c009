package mixer

import "sync/atomic"

// EffectProcessor renders a slot's accumulated wet input into the output
// mix. Implementations live outside the engine core; the mixer only routes
// samples through this interface.
type EffectProcessor interface {
	// Process reads frames*channels interleaved samples from wet and adds
	// its result into dst. wet may be reused afterwards.
	Process(dst, wet []float32, frames, channels int)
}

// SlotProps is an effect slot's published parameter snapshot.
type SlotProps struct {
	Seq       uint64
	Gain      float32
	Processor EffectProcessor
}

// Slot is an effect slot's render state. Voices with a send targeting the
// slot accumulate into its wet buffer during the voice pass; the slot pass
// then feeds the buffer through the processor into the device mix.
type Slot struct {
	pending atomic.Pointer[SlotProps]
	props   SlotProps

	// wet is owned by the device and re-pointed on every reconfiguration,
	// before the backend restarts.
	wet []float32
}

// Publish swaps in a new snapshot; the render thread adopts it on the next
// mix. Last writer wins, readers never block the publisher.
func (sl *Slot) Publish(p *SlotProps) {
	snapshot := *p
	sl.pending.Store(&snapshot)
}

func (sl *Slot) pickupProps() {
	if p := sl.pending.Swap(nil); p != nil {
		sl.props = *p
	}
}

// SetWetBuffer re-points the slot's accumulation target. Called with the
// device state lock held while the backend is stopped.
func (sl *Slot) SetWetBuffer(buf []float32) { sl.wet = buf }

func (sl *Slot) PropsSeq() uint64 { return sl.props.Seq }
