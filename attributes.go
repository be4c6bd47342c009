package chime

import (
	"log/slog"

	"chime/internal/backend"
)

// Attribute keys accepted in device attribute lists. A list is a flat slice
// of (key, value) pairs terminated by a single AttrNone key; unknown keys
// are logged and skipped, never fatal.
const (
	AttrNone = iota
	AttrFrequency
	AttrRefresh
	AttrSync
	AttrMonoSources
	AttrStereoSources
	AttrMaxAuxiliarySends
	AttrHRTF
	AttrHRTFID
	AttrOutputLimiter
	AttrOutputMode
	AttrFormatChannels
	AttrFormatType
	AttrAmbisonicLayout
	AttrAmbisonicScaling
	AttrAmbisonicOrder
	AttrContextFlags
)

// Channel layout values for AttrFormatChannels.
const (
	ChannelsMono = iota + 0x100
	ChannelsStereo
	ChannelsQuad
	ChannelsSurround51
	ChannelsSurround61
	ChannelsSurround71
)

// Sample type values for AttrFormatType.
const (
	SampleU8 = iota + 0x200
	SampleS16
	SampleS24
	SampleS32
	SampleF32
)

// HRTF request values.
const (
	HRTFDisabled = iota
	HRTFEnabled
	HRTFDontCare
)

// Output mode values for AttrOutputMode.
const (
	OutputAny = iota + 0x300
	OutputMono
	OutputStereo
	OutputSurround
)

// attrValues is a parsed attribute list. Zero-valued fields with their
// "set" bit clear fall through to configuration and defaults.
type attrValues struct {
	set map[int]int
}

func parseAttributes(attrs []int) (attrValues, Error) {
	out := attrValues{set: make(map[int]int)}
	for i := 0; i+1 < len(attrs); i += 2 {
		key, val := attrs[i], attrs[i+1]
		if key == AttrNone {
			return out, ErrNone
		}
		switch key {
		case AttrFrequency, AttrRefresh, AttrSync, AttrMonoSources,
			AttrStereoSources, AttrMaxAuxiliarySends, AttrHRTF, AttrHRTFID,
			AttrOutputLimiter, AttrOutputMode, AttrFormatChannels,
			AttrFormatType, AttrAmbisonicLayout, AttrAmbisonicScaling,
			AttrAmbisonicOrder, AttrContextFlags:
			out.set[key] = val
		default:
			slog.Warn("ignoring unknown device attribute", "key", key, "value", val)
		}
	}
	if len(attrs) == 0 {
		return out, ErrNone
	}
	// A non-empty list must carry its terminator.
	if len(attrs)%2 != 0 && attrs[len(attrs)-1] == AttrNone {
		return out, ErrNone
	}
	return out, ErrInvalidValue
}

func (a attrValues) get(key int) (int, bool) {
	v, ok := a.set[key]
	return v, ok
}

func layoutFromAttr(val int) (backend.ChannelLayout, bool) {
	switch val {
	case ChannelsMono:
		return backend.LayoutMono, true
	case ChannelsStereo:
		return backend.LayoutStereo, true
	case ChannelsQuad:
		return backend.LayoutQuad, true
	case ChannelsSurround51:
		return backend.LayoutSurround51, true
	case ChannelsSurround61:
		return backend.LayoutSurround61, true
	case ChannelsSurround71:
		return backend.LayoutSurround71, true
	}
	return 0, false
}

func attrFromLayout(layout backend.ChannelLayout) int {
	switch layout {
	case backend.LayoutMono:
		return ChannelsMono
	case backend.LayoutStereo:
		return ChannelsStereo
	case backend.LayoutQuad:
		return ChannelsQuad
	case backend.LayoutSurround51:
		return ChannelsSurround51
	case backend.LayoutSurround61:
		return ChannelsSurround61
	case backend.LayoutSurround71:
		return ChannelsSurround71
	}
	return ChannelsStereo
}

func formatFromAttr(val int) (backend.FormatType, bool) {
	switch val {
	case SampleU8:
		return backend.FormatU8, true
	case SampleS16:
		return backend.FormatS16, true
	case SampleS24:
		return backend.FormatS24, true
	case SampleS32:
		return backend.FormatS32, true
	case SampleF32:
		return backend.FormatF32, true
	}
	return 0, false
}

func attrFromFormat(format backend.FormatType) int {
	switch format {
	case backend.FormatU8:
		return SampleU8
	case backend.FormatS16:
		return SampleS16
	case backend.FormatS24:
		return SampleS24
	case backend.FormatS32:
		return SampleS32
	case backend.FormatF32:
		return SampleF32
	}
	return SampleF32
}
