package chime

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"chime/internal/backend"
)

// Defaults for everything neither the attribute list nor the environment
// specifies. Rates outside [8000, 192000] are clamped.
const (
	defaultSampleRate   = 48000
	defaultPeriodFrames = 512
	defaultPeriods      = 3
	defaultSends        = 2
	maxSends            = 4
	defaultMonoSources  = 255
	defaultStereoSrcs   = 1

	minSampleRate = 8000
	maxSampleRate = 192000
)

// config is the persisted-configuration layer of the negotiation precedence
// (attributes > config > defaults), read once from the environment.
type config struct {
	drivers    []string
	sampleRate int
	periodSize int
	periods    int
	layout     backend.ChannelLayout
	hasLayout  bool
	format     backend.FormatType
	hasFormat  bool
	sends      int
	hasSends   bool
}

var loadConfig = sync.OnceValue(func() *config {
	cfg := &config{}

	if v := os.Getenv("CHIME_DRIVERS"); v != "" {
		cfg.drivers = strings.Split(v, ",")
	}
	if n, ok := envInt("CHIME_FREQUENCY"); ok {
		cfg.sampleRate = clampRate(n)
	}
	if n, ok := envInt("CHIME_PERIOD_SIZE"); ok && n >= 64 && n <= 8192 {
		cfg.periodSize = n
	}
	if n, ok := envInt("CHIME_PERIODS"); ok && n >= 2 && n <= 16 {
		cfg.periods = n
	}
	if n, ok := envInt("CHIME_SENDS"); ok && n >= 0 {
		cfg.sends = min(n, maxSends)
		cfg.hasSends = true
	}
	switch strings.ToLower(os.Getenv("CHIME_CHANNELS")) {
	case "mono":
		cfg.layout, cfg.hasLayout = backend.LayoutMono, true
	case "stereo":
		cfg.layout, cfg.hasLayout = backend.LayoutStereo, true
	case "quad":
		cfg.layout, cfg.hasLayout = backend.LayoutQuad, true
	case "surround51":
		cfg.layout, cfg.hasLayout = backend.LayoutSurround51, true
	case "surround61":
		cfg.layout, cfg.hasLayout = backend.LayoutSurround61, true
	case "surround71":
		cfg.layout, cfg.hasLayout = backend.LayoutSurround71, true
	case "":
	default:
		slog.Warn("unknown CHIME_CHANNELS value", "value", os.Getenv("CHIME_CHANNELS"))
	}
	switch strings.ToLower(os.Getenv("CHIME_SAMPLE_TYPE")) {
	case "uint8":
		cfg.format, cfg.hasFormat = backend.FormatU8, true
	case "int16":
		cfg.format, cfg.hasFormat = backend.FormatS16, true
	case "int24":
		cfg.format, cfg.hasFormat = backend.FormatS24, true
	case "int32":
		cfg.format, cfg.hasFormat = backend.FormatS32, true
	case "float32":
		cfg.format, cfg.hasFormat = backend.FormatF32, true
	case "":
	default:
		slog.Warn("unknown CHIME_SAMPLE_TYPE value", "value", os.Getenv("CHIME_SAMPLE_TYPE"))
	}

	return cfg
})

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed environment value", "name", name, "value", v)
		return 0, false
	}
	return n, true
}

func clampRate(rate int) int {
	if rate < minSampleRate {
		return minSampleRate
	}
	if rate > maxSampleRate {
		return maxSampleRate
	}
	return rate
}
