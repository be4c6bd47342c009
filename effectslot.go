package chime

import "chime/internal/mixer"

// EffectProcessor is re-exported so applications can plug DSP in without
// importing internals.
type EffectProcessor = mixer.EffectProcessor

// EffectSlot is a control-owned mixing destination. Sources route into it
// via sends; an attached EffectProcessor shapes the accumulated wet signal
// into the device mix. The DSP itself is an external collaborator.
type EffectSlot struct {
	ctx  *Context
	slot *mixer.Slot

	// Guarded by ctx.mu.
	gain    float32
	proc    EffectProcessor
	propSeq uint64
}

// NewEffectSlot creates an effect slot and activates it in the scene.
func (c *Context) NewEffectSlot() (*EffectSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, storeError(c.device, ErrInvalidContext)
	}

	slot := &mixer.Slot{}
	d := c.device
	slot.SetWetBuffer(make([]float32, d.spec.PeriodFrames*d.spec.Channels()))

	es := &EffectSlot{ctx: c, slot: slot, gain: 1}
	es.publishLocked()

	c.slots = append(c.slots, es)
	c.publishSlotsLocked()
	return es, nil
}

// Destroy deactivates the slot. Sources still holding a send to it keep
// feeding a buffer nothing reads until they republish.
func (es *EffectSlot) Destroy() error {
	c := es.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.slots {
		if s == es {
			c.slots = append(c.slots[:i], c.slots[i+1:]...)
			c.publishSlotsLocked()
			return nil
		}
	}
	return storeError(c.device, ErrInvalidValue)
}

func (c *Context) publishSlotsLocked() {
	slots := make([]*mixer.Slot, len(c.slots))
	for i, es := range c.slots {
		slots[i] = es.slot
	}
	c.scene.SetActiveSlots(slots)
}

func (es *EffectSlot) SetGain(gain float32) error {
	if gain < 0 {
		return storeError(es.ctx.device, ErrInvalidValue)
	}
	es.ctx.mu.Lock()
	defer es.ctx.mu.Unlock()
	es.gain = gain
	es.publishLocked()
	return nil
}

// SetProcessor attaches the effect DSP. A nil processor mixes the wet
// signal through unchanged at the slot gain.
func (es *EffectSlot) SetProcessor(proc EffectProcessor) error {
	es.ctx.mu.Lock()
	defer es.ctx.mu.Unlock()
	es.proc = proc
	es.publishLocked()
	return nil
}

func (es *EffectSlot) publishLocked() {
	es.propSeq++
	es.slot.Publish(&mixer.SlotProps{
		Seq:       es.propSeq,
		Gain:      es.gain,
		Processor: es.proc,
	})
}
