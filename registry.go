package chime

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
)

// Process-wide handle registries. Admin operations (open/close,
// create/destroy) take the blocking mutexes; the hot current-context slot
// uses a spin flag so readers never hold it longer than a pointer exchange.

var deviceRegistry struct {
	mu      sync.Mutex
	devices []*Device
}

func registerDevice(d *Device) {
	deviceRegistry.mu.Lock()
	deviceRegistry.devices = append(deviceRegistry.devices, d)
	deviceRegistry.mu.Unlock()
}

func unregisterDevice(d *Device) {
	deviceRegistry.mu.Lock()
	defer deviceRegistry.mu.Unlock()
	for i, dev := range deviceRegistry.devices {
		if dev == d {
			deviceRegistry.devices = append(deviceRegistry.devices[:i], deviceRegistry.devices[i+1:]...)
			return
		}
	}
}

var contextRegistry struct {
	mu sync.Mutex
	// Sorted by id for lookup.
	contexts []*Context
}

func registerContext(c *Context) {
	contextRegistry.mu.Lock()
	defer contextRegistry.mu.Unlock()
	i := sort.Search(len(contextRegistry.contexts), func(i int) bool {
		return contextRegistry.contexts[i].id >= c.id
	})
	contextRegistry.contexts = append(contextRegistry.contexts, nil)
	copy(contextRegistry.contexts[i+1:], contextRegistry.contexts[i:])
	contextRegistry.contexts[i] = c
}

func unregisterContext(c *Context) {
	contextRegistry.mu.Lock()
	defer contextRegistry.mu.Unlock()
	i := sort.Search(len(contextRegistry.contexts), func(i int) bool {
		return contextRegistry.contexts[i].id >= c.id
	})
	if i < len(contextRegistry.contexts) && contextRegistry.contexts[i] == c {
		contextRegistry.contexts = append(contextRegistry.contexts[:i], contextRegistry.contexts[i+1:]...)
	}
}

func validContext(c *Context) bool {
	if c == nil {
		return false
	}
	contextRegistry.mu.Lock()
	defer contextRegistry.mu.Unlock()
	i := sort.Search(len(contextRegistry.contexts), func(i int) bool {
		return contextRegistry.contexts[i].id >= c.id
	})
	return i < len(contextRegistry.contexts) && contextRegistry.contexts[i] == c
}

// spinFlag is a one-word lock for the global current-context slot. Owners
// hold it only across a pointer exchange, so waiters spin rather than park.
type spinFlag struct {
	held atomic.Bool
}

func (f *spinFlag) lock() {
	for !f.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (f *spinFlag) unlock() { f.held.Store(false) }

var (
	currentFlag spinFlag
	currentCtx  *Context
)

// MakeContextCurrent installs ctx as the process-wide current context. A
// nil ctx clears it.
func MakeContextCurrent(ctx *Context) error {
	if ctx != nil && !validContext(ctx) {
		return storeError(nil, ErrInvalidContext)
	}
	currentFlag.lock()
	currentCtx = ctx
	currentFlag.unlock()
	return nil
}

// CurrentContext returns the process-wide current context, if any.
func CurrentContext() *Context {
	currentFlag.lock()
	ctx := currentCtx
	currentFlag.unlock()
	return ctx
}

func clearCurrentIf(ctx *Context) {
	currentFlag.lock()
	if currentCtx == ctx {
		currentCtx = nil
	}
	currentFlag.unlock()
}
