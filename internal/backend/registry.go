package backend

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory creates Backend instances for one driver family. Exactly one
// playback and one capture factory are selected process-wide at first use.
type Factory interface {
	Name() string
	// Init probes the driver once; a false return removes the factory from
	// selection for the life of the process.
	Init() bool
	QuerySupport(t DeviceType) bool
	Enumerate(t DeviceType) []string
	Create(spec *DeviceSpec, render RenderFunc, disconnect DisconnectFunc, t DeviceType) (Backend, error)
}

type registryEntry struct {
	factory  Factory
	priority int
	inited   bool
	ok       bool
}

var registry struct {
	mu      sync.Mutex
	entries []*registryEntry
	drivers []string
	denied  map[string]bool

	selectOnce [2]sync.Once
	selected   [2]Factory
}

// Register adds a factory to the process-wide table. Higher priority wins
// when no explicit driver list is configured. Must be called before the
// first device open; later calls are ignored with a warning.
func Register(f Factory, priority int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for _, e := range registry.entries {
		if e.factory.Name() == f.Name() {
			slog.Warn("backend factory already registered", "name", f.Name())
			return
		}
	}
	registry.entries = append(registry.entries, &registryEntry{factory: f, priority: priority})
	sort.SliceStable(registry.entries, func(i, j int) bool {
		return registry.entries[i].priority > registry.entries[j].priority
	})
}

// SetDriverList installs the configured priority order. Each name may carry
// a leading '-' to deny that driver. An empty list keeps registration order.
func SetDriverList(names []string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.drivers = registry.drivers[:0]
	registry.denied = make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, "-") {
			registry.denied[name[1:]] = true
			continue
		}
		registry.drivers = append(registry.drivers, name)
	}
}

func initEntry(e *registryEntry) bool {
	if !e.inited {
		e.inited = true
		e.ok = e.factory.Init()
		if !e.ok {
			slog.Debug("backend failed to initialize", "name", e.factory.Name())
		}
	}
	return e.ok
}

// For returns the factory serving the given device type, selecting it on
// first use. Returns nil if no usable factory exists.
func For(t DeviceType) Factory {
	registry.selectOnce[t].Do(func() {
		registry.mu.Lock()
		defer registry.mu.Unlock()

		candidates := registry.entries
		if len(registry.drivers) > 0 {
			ordered := make([]*registryEntry, 0, len(registry.drivers))
			for _, name := range registry.drivers {
				for _, e := range registry.entries {
					if e.factory.Name() == name {
						ordered = append(ordered, e)
					}
				}
			}
			candidates = ordered
		}
		for _, e := range candidates {
			if registry.denied[e.factory.Name()] {
				continue
			}
			if !e.factory.QuerySupport(t) || !initEntry(e) {
				continue
			}
			registry.selected[t] = e.factory
			slog.Debug("selected backend", "name", e.factory.Name(), "type", t)
			return
		}
	})
	return registry.selected[t]
}

// Enumerate lists device names known to the selected factory.
func Enumerate(t DeviceType) []string {
	f := For(t)
	if f == nil {
		return nil
	}
	return f.Enumerate(t)
}

// ResetSelection clears factory selection and the driver list. Test hook.
func ResetSelection() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.selectOnce = [2]sync.Once{}
	registry.selected = [2]Factory{}
	registry.drivers = nil
	registry.denied = nil
	for _, e := range registry.entries {
		e.inited = false
	}
}
