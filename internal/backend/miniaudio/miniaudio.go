// Package miniaudio adapts the miniaudio library (via malgo) as the
// engine's primary OS backend. One malgo context is shared process-wide;
// each device instance owns one malgo device.
package miniaudio

import (
	"fmt"
	"log/slog"

	"chime/internal/backend"

	"github.com/gen2brain/malgo"
)

type factory struct {
	ctx *malgo.AllocatedContext
}

var shared factory

// Factory returns the miniaudio backend factory.
func Factory() backend.Factory { return &shared }

func (f *factory) Name() string { return "miniaudio" }

func (f *factory) Init() bool {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return false
	}
	f.ctx = ctx
	return true
}

func (f *factory) QuerySupport(backend.DeviceType) bool { return true }

func (f *factory) Enumerate(t backend.DeviceType) []string {
	if f.ctx == nil {
		return nil
	}
	kind := malgo.Playback
	if t == backend.Capture {
		kind = malgo.Capture
	}
	infos, err := f.ctx.Devices(kind)
	if err != nil {
		slog.Debug("miniaudio enumerate failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func (f *factory) Create(spec *backend.DeviceSpec, render backend.RenderFunc, disconnect backend.DisconnectFunc, t backend.DeviceType) (backend.Backend, error) {
	if f.ctx == nil {
		return nil, backend.ErrNoDevice
	}
	if t == backend.Capture {
		return newCapture(f.ctx, spec, disconnect), nil
	}
	return &playback{
		ctx:        f.ctx,
		spec:       spec,
		render:     render,
		disconnect: disconnect,
	}, nil
}

func formatFor(f backend.FormatType) malgo.FormatType {
	// The enum values line up with miniaudio's.
	return malgo.FormatType(f)
}

func formatFrom(f malgo.FormatType) backend.FormatType {
	return backend.FormatType(f)
}

func layoutFromChannels(n int) (backend.ChannelLayout, error) {
	switch n {
	case 1:
		return backend.LayoutMono, nil
	case 2:
		return backend.LayoutStereo, nil
	case 4:
		return backend.LayoutQuad, nil
	case 6:
		return backend.LayoutSurround51, nil
	case 7:
		return backend.LayoutSurround61, nil
	case 8:
		return backend.LayoutSurround71, nil
	}
	return 0, fmt.Errorf("unmappable channel count %d", n)
}

// resolve finds the device id for name; nil means system default.
func resolve(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == name {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, backend.ErrNoDevice
}
