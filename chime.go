// Package chime is a real-time audio rendering engine. Applications open a
// playback device, attach one or more rendering contexts, bind buffers to
// sources, and the engine mixes the active voices into the OS audio stream
// at a fixed period through a pluggable backend.
//
// The control API may be called from any goroutine. State that the render
// callback reads is published through atomic snapshot swaps and a queued
// command stream, so control calls block at worst for one mix period.
package chime

import (
	"chime/internal/backend"
	"chime/internal/backend/miniaudio"
	"chime/internal/backend/otoplay"
	"chime/internal/backend/wavwriter"
	"chime/internal/backend/wsstream"
)

func init() {
	backend.Register(miniaudio.Factory(), 100)
	backend.Register(otoplay.Factory(), 90)
	// File and network outputs only activate when configured by env.
	backend.Register(wavwriter.Factory(), 20)
	backend.Register(wsstream.Factory(), 10)
	backend.Register(backend.NullFactory(), 0)

	backend.SetDriverList(loadConfig().drivers)
}
