package mixer

import (
	"math"
	"sync/atomic"
)

type atomicFloat32 struct {
	bits atomic.Uint32
}

func (f *atomicFloat32) Store(v float32) { f.bits.Store(math.Float32bits(v)) }
func (f *atomicFloat32) Load() float32   { return math.Float32frombits(f.bits.Load()) }

// OnePole is a first-order lowpass used for the per-voice direct-path HF
// attenuation. Heavier filter design lives outside this package; the mixer
// only needs something cheap and stable on the hot path.
type OnePole struct {
	a float32
	z float32
}

// SetCoeff derives the smoothing coefficient from a normalized cutoff
// (cutoffHz / sampleRate). Values >= 0.5 make the filter transparent.
func (f *OnePole) SetCoeff(normCutoff float64) {
	if normCutoff >= 0.5 {
		f.a = 1
		return
	}
	if normCutoff < 1e-5 {
		normCutoff = 1e-5
	}
	f.a = float32(1 - math.Exp(-2*math.Pi*normCutoff))
}

func (f *OnePole) Reset() { f.z = 0 }

func (f *OnePole) Process(x float32) float32 {
	if f.a >= 1 {
		f.z = x
		return x
	}
	f.z += f.a * (x - f.z)
	return f.z
}
