package chime

import (
	"math"

	"chime/internal/backend"
)

// renderSamples is the device's render step, invoked by the backend once
// per period on its callback thread. It drains each context's VoiceChange
// queue, mixes active voices with the latest published snapshots, and packs
// the result into the backend's buffer. It takes no locks; the mix-count
// parity is the only synchronization control threads can rely on.
func (d *Device) renderSamples(out []byte, frames int) {
	if !d.connected.Load() {
		clear(out)
		return
	}

	channels := d.spec.Channels()
	mix := d.mixBuf
	if len(mix) < frames*channels {
		// The backend asked for more than a period; render what fits.
		frames = len(mix) / channels
	}
	mix = mix[:frames*channels]

	d.mixCount.Add(1)

	clear(mix)
	for _, ctx := range *d.contexts.Load() {
		if !ctx.scene.Held() {
			ctx.scene.ProcessVoiceChanges()
		}
		ctx.scene.Mix(mix, frames, channels, d.spec.SampleRate)
	}

	if d.limiter {
		limitSamples(mix)
	}
	packSamples(out, mix, d.spec.Format)

	d.samplesDone.Add(uint64(frames))
	d.mixCount.Add(1)
}

// limitSamples is a hard clamp standing in for the output limiter. The
// full compressor lives with the DSP collaborators.
func limitSamples(mix []float32) {
	for i, s := range mix {
		if s > 1 {
			mix[i] = 1
		} else if s < -1 {
			mix[i] = -1
		}
	}
}

func clampUnit(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// packSamples converts the float mix into the device sample type, little
// endian, matching what the backend negotiated.
func packSamples(out []byte, mix []float32, format backend.FormatType) {
	switch format {
	case backend.FormatU8:
		for i, s := range mix {
			out[i] = uint8((clampUnit(s) * 127) + 128)
		}
	case backend.FormatS16:
		for i, s := range mix {
			v := int16(clampUnit(s) * 32767)
			out[i*2] = byte(v)
			out[i*2+1] = byte(v >> 8)
		}
	case backend.FormatS24:
		for i, s := range mix {
			v := int32(clampUnit(s) * 8388607)
			out[i*3] = byte(v)
			out[i*3+1] = byte(v >> 8)
			out[i*3+2] = byte(v >> 16)
		}
	case backend.FormatS32:
		for i, s := range mix {
			v := int32(clampUnit(s) * 2147483647)
			out[i*4] = byte(v)
			out[i*4+1] = byte(v >> 8)
			out[i*4+2] = byte(v >> 16)
			out[i*4+3] = byte(v >> 24)
		}
	default:
		for i, s := range mix {
			v := math.Float32bits(s)
			out[i*4] = byte(v)
			out[i*4+1] = byte(v >> 8)
			out[i*4+2] = byte(v >> 16)
			out[i*4+3] = byte(v >> 24)
		}
	}
}
