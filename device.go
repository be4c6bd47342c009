package chime

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"chime/internal/backend"
)

type deviceState uint8

const (
	stateUnprepared deviceState = iota
	stateConfigured
	statePlaying
)

type deviceFlags uint8

const (
	// The app or config explicitly asked for this field; a backend that
	// deviates clears the flag rather than failing.
	flagFrequencyRequest deviceFlags = 1 << iota
	flagChannelsRequest
	flagSampleTypeRequest
	flagPaused
)

// Device owns one backend instance, the negotiated output format, and the
// set of attached contexts. It is created by OpenDevice, reconfigured in
// place by Reset/Reopen, and destroyed by Close once all contexts are gone.
type Device struct {
	// mu is the device state lock: all configuration and context
	// attach/detach happens under it. The render thread never takes it.
	mu sync.Mutex

	typ       backend.DeviceType
	name      string
	backend   backend.Backend
	spec      backend.DeviceSpec
	state     deviceState
	flags     deviceFlags
	connected atomic.Bool
	closed    bool

	// Negotiated context attributes beyond the raw format.
	refresh       int
	monoSources   int
	stereoSources int
	sends         int
	hrtf          int
	hrtfID        int
	limiter       bool
	outputMode    int
	ambiOrder     int
	ambiLayout    int
	ambiScaling   int

	// mixCount increments before and after every mix; the low bit flags a
	// mix in progress. It is the one handshake the render thread honors.
	mixCount    atomic.Uint32
	samplesDone atomic.Uint64
	clockBase   atomic.Int64 // nanoseconds
	clockRate   atomic.Int64 // shadows spec.SampleRate for lock-free Clock reads

	contexts atomic.Pointer[[]*Context]

	mixBuf []float32

	lastError atomic.Int32
}

// OpenDevice opens the named playback device, or the default when name is
// empty. The device starts Unprepared; the first context configures it.
func OpenDevice(name string) (*Device, error) {
	factory := backend.For(backend.Playback)
	if factory == nil {
		return nil, storeError(nil, ErrNoDevice)
	}

	d := &Device{
		typ:   backend.Playback,
		name:  name,
		state: stateUnprepared,
		spec:  defaultSpec(),
	}
	d.connected.Store(true)
	d.clockRate.Store(int64(d.spec.SampleRate))
	empty := make([]*Context, 0)
	d.contexts.Store(&empty)

	b, err := factory.Create(&d.spec, d.renderSamples, d.handleDisconnect, backend.Playback)
	if err != nil {
		slog.Error("backend create failed", "backend", factory.Name(), "err", err)
		return nil, storeError(nil, ErrNoDevice)
	}
	if err := b.Open(name); err != nil {
		slog.Debug("device open failed", "name", name, "err", err)
		return nil, storeError(nil, ErrNoDevice)
	}
	d.backend = b

	registerDevice(d)
	return d, nil
}

func defaultSpec() backend.DeviceSpec {
	cfg := loadConfig()
	spec := backend.DeviceSpec{
		SampleRate:   defaultSampleRate,
		Layout:       backend.LayoutStereo,
		Format:       backend.FormatF32,
		PeriodFrames: defaultPeriodFrames,
	}
	if cfg.sampleRate != 0 {
		spec.SampleRate = cfg.sampleRate
	}
	if cfg.hasLayout {
		spec.Layout = cfg.layout
	}
	if cfg.hasFormat {
		spec.Format = cfg.format
	}
	if cfg.periodSize != 0 {
		spec.PeriodFrames = cfg.periodSize
	}
	periods := defaultPeriods
	if cfg.periods != 0 {
		periods = cfg.periods
	}
	spec.BufferFrames = spec.PeriodFrames * periods
	return spec
}

// Close destroys the device. All contexts must have been destroyed first.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return storeError(nil, ErrInvalidDevice)
	}
	if len(*d.contexts.Load()) > 0 {
		d.mu.Unlock()
		return storeError(d, ErrInvalidDevice)
	}
	d.closed = true
	d.backend.Stop()
	d.backend.Close()
	d.state = stateUnprepared
	d.mu.Unlock()

	unregisterDevice(d)
	return nil
}

// Reset reconfigures the device in place against a new attribute list,
// renegotiating the output format with the backend.
func (d *Device) Reset(attrs []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.typ != backend.Playback {
		return storeError(nil, ErrInvalidDevice)
	}

	d.flags &^= flagPaused
	if code := d.updateParams(attrs); code != ErrNone {
		return storeError(d, code)
	}
	return nil
}

// Reopen moves the device to a different output by name without destroying
// its contexts. On failure the device keeps its previous backend.
func (d *Device) Reopen(name string, attrs []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.typ != backend.Playback {
		return storeError(nil, ErrInvalidDevice)
	}

	factory := backend.For(backend.Playback)
	newBackend, err := factory.Create(&d.spec, d.renderSamples, d.handleDisconnect, backend.Playback)
	if err != nil {
		return storeError(d, ErrNoDevice)
	}
	if err := newBackend.Open(name); err != nil {
		newBackend.Close()
		return storeError(d, ErrNoDevice)
	}

	old := d.backend
	old.Stop()
	d.backend = newBackend
	d.name = name
	d.state = stateUnprepared
	d.connected.Store(true)

	if code := d.updateParams(attrs); code != ErrNone {
		// The new output failed to configure; the device stays on it but
		// disconnected, same as a failed Reset.
		old.Close()
		return storeError(d, code)
	}
	old.Close()
	return nil
}

// updateParams renegotiates the output format and context attributes
// against the backend. Caller holds d.mu.
func (d *Device) updateParams(attrs []int) Error {
	values, code := parseAttributes(attrs)
	if code != ErrNone {
		return code
	}
	cfg := loadConfig()

	// Precedence: explicit attributes > configuration > current/defaults.
	request := defaultSpec()
	request.Name = d.name
	d.flags &^= flagFrequencyRequest | flagChannelsRequest | flagSampleTypeRequest
	if cfg.sampleRate != 0 {
		d.flags |= flagFrequencyRequest
	}
	if cfg.hasLayout {
		d.flags |= flagChannelsRequest
	}
	if cfg.hasFormat {
		d.flags |= flagSampleTypeRequest
	}

	if v, ok := values.get(AttrFrequency); ok {
		request.SampleRate = clampRate(v)
		d.flags |= flagFrequencyRequest
	}
	if v, ok := values.get(AttrFormatChannels); ok {
		layout, valid := layoutFromAttr(v)
		if !valid {
			return ErrInvalidValue
		}
		request.Layout = layout
		d.flags |= flagChannelsRequest
	}
	if v, ok := values.get(AttrFormatType); ok {
		format, valid := formatFromAttr(v)
		if !valid {
			return ErrInvalidValue
		}
		request.Format = format
		d.flags |= flagSampleTypeRequest
	}
	if v, ok := values.get(AttrRefresh); ok && v > 0 {
		request.PeriodFrames = clampRate(request.SampleRate) / v
		if request.PeriodFrames < 64 {
			request.PeriodFrames = 64
		}
		request.BufferFrames = request.PeriodFrames * defaultPeriods
	}

	sends := defaultSends
	if cfg.hasSends {
		sends = cfg.sends
	}
	if v, ok := values.get(AttrMaxAuxiliarySends); ok {
		if v < 0 || v > maxSends {
			return ErrInvalidValue
		}
		sends = v
	}
	d.sends = sends
	if v, ok := values.get(AttrMonoSources); ok && v >= 0 {
		d.monoSources = v
	} else {
		d.monoSources = defaultMonoSources
	}
	if v, ok := values.get(AttrStereoSources); ok && v >= 0 {
		d.stereoSources = v
	} else {
		d.stereoSources = defaultStereoSrcs
	}
	if v, ok := values.get(AttrHRTF); ok {
		if v != HRTFDisabled && v != HRTFEnabled && v != HRTFDontCare {
			return ErrInvalidEnum
		}
		d.hrtf = v
	}
	if v, ok := values.get(AttrHRTFID); ok {
		d.hrtfID = v
	}
	if v, ok := values.get(AttrOutputLimiter); ok {
		d.limiter = v != 0
	}
	if v, ok := values.get(AttrOutputMode); ok {
		d.outputMode = v
	}
	if v, ok := values.get(AttrAmbisonicOrder); ok {
		d.ambiOrder = v
	}
	if v, ok := values.get(AttrAmbisonicLayout); ok {
		d.ambiLayout = v
	}
	if v, ok := values.get(AttrAmbisonicScaling); ok {
		d.ambiScaling = v
	}

	// Reconfiguration never runs concurrently with rendering.
	if d.state == statePlaying {
		d.backend.Stop()
		d.state = stateConfigured
	}

	// Stale derived state must never survive a format change.
	oldRate := d.spec.SampleRate
	d.mixBuf = nil

	requested := request
	if err := d.backend.Reset(&request); err != nil {
		slog.Error("backend reset failed", "device", d.name, "err", err)
		d.connected.Store(false)
		return ErrDeviceError
	}

	// The app asked, the driver refused: keep the driver's value
	// authoritative but drop the request flag. Only fields that were
	// explicitly requested are reconciled this way.
	if request.SampleRate != requested.SampleRate {
		d.flags &^= flagFrequencyRequest
	}
	if request.Layout != requested.Layout {
		d.flags &^= flagChannelsRequest
	}
	if request.Format != requested.Format {
		d.flags &^= flagSampleTypeRequest
	}
	if request.PeriodFrames <= 0 {
		request.PeriodFrames = defaultPeriodFrames
	}
	if request.BufferFrames < request.PeriodFrames {
		request.BufferFrames = request.PeriodFrames * defaultPeriods
	}
	d.spec = request
	d.refresh = request.SampleRate / request.PeriodFrames

	// Mixing parameters come from the final format, never the request.
	d.mixBuf = make([]float32, request.PeriodFrames*request.Channels())
	d.repointContexts()

	// The reported clock must not jump across a rate change. Rebase before
	// publishing the new rate so a concurrent Clock read pairs the new rate
	// only with the zeroed sample counter.
	d.rebaseClock(oldRate)
	d.clockRate.Store(int64(request.SampleRate))

	d.state = stateConfigured
	if len(*d.contexts.Load()) > 0 && d.flags&flagPaused == 0 {
		if err := d.backend.Start(); err != nil {
			slog.Error("backend start failed", "device", d.name, "err", err)
			d.connected.Store(false)
			return ErrDeviceError
		}
		d.state = statePlaying
	}
	return ErrNone
}

// repointContexts re-targets every live context's effect-slot wet buffers
// at freshly sized storage. Runs before the device lock is released, since
// mixing may resume as soon as the backend restarts.
func (d *Device) repointContexts() {
	samples := d.spec.PeriodFrames * d.spec.Channels()
	for _, ctx := range *d.contexts.Load() {
		ctx.mu.Lock()
		for _, slot := range ctx.slots {
			slot.slot.SetWetBuffer(make([]float32, samples))
		}
		ctx.mu.Unlock()
	}
}

func (d *Device) rebaseClock(oldRate int) {
	if oldRate <= 0 {
		return
	}
	done := d.samplesDone.Swap(0)
	d.clockBase.Add(int64(done) * int64(time.Second) / int64(oldRate))
}

// Clock returns the device playback clock: base time plus samples rendered
// at the current rate. Reads spin on the mix-count parity for a consistent
// snapshot instead of taking a lock.
func (d *Device) Clock() time.Duration {
	for {
		count := d.mixCount.Load()
		if count&1 != 0 {
			runtime.Gosched()
			continue
		}
		base := d.clockBase.Load()
		done := d.samplesDone.Load()
		rate := d.clockRate.Load()
		if d.mixCount.Load() != count {
			continue
		}
		if rate <= 0 {
			return time.Duration(base)
		}
		return time.Duration(base + int64(done)*int64(time.Second)/rate)
	}
}

// waitForMix blocks until no mix is in flight, so state swapped out under
// the device lock can no longer be observed by the render thread.
func (d *Device) waitForMix() {
	for {
		count := d.mixCount.Load()
		if count&1 == 0 && d.mixCount.Load() == count {
			return
		}
		runtime.Gosched()
	}
}

// Pause suspends the device's rendering until Resume. Contexts and voices
// keep their state; pending VoiceChanges apply on the next start.
func (d *Device) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.typ != backend.Playback {
		return storeError(nil, ErrInvalidDevice)
	}
	if d.state == statePlaying {
		d.backend.Stop()
		d.state = stateConfigured
	}
	d.flags |= flagPaused
	return nil
}

// Resume restarts rendering on a paused device.
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.typ != backend.Playback {
		return storeError(nil, ErrInvalidDevice)
	}
	d.flags &^= flagPaused
	if d.state != stateConfigured || len(*d.contexts.Load()) == 0 {
		return nil
	}
	if !d.connected.Load() {
		return storeError(d, ErrDeviceError)
	}
	if err := d.backend.Start(); err != nil {
		d.connected.Store(false)
		return storeError(d, ErrDeviceError)
	}
	d.state = statePlaying
	return nil
}

// Connected reports whether the device has suffered an irrecoverable I/O
// failure. Disconnected devices accept API calls but render silence.
func (d *Device) Connected() bool { return d.connected.Load() }

// Name returns the device's resolved name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spec.Name != "" {
		return d.spec.Name
	}
	return d.name
}

// handleDisconnect is the backend's failure report. Safe to call from the
// backend's callback thread.
func (d *Device) handleDisconnect(err error) {
	if !d.connected.CompareAndSwap(true, false) {
		return
	}
	slog.Warn("device disconnected", "device", d.name, "err", err)
	storeError(d, ErrDisconnected)
	for _, ctx := range *d.contexts.Load() {
		if ctx.stopVoicesOnDisconnect.Load() {
			ctx.scene.StopAll()
		}
	}
}

// GetInteger answers single-value integer property queries.
func (d *Device) GetInteger(key int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, storeError(nil, ErrInvalidDevice)
	}
	switch key {
	case AttrFrequency:
		return d.spec.SampleRate, nil
	case AttrRefresh:
		return d.refresh, nil
	case AttrSync:
		return 0, nil
	case AttrMonoSources:
		return d.monoSources, nil
	case AttrStereoSources:
		return d.stereoSources, nil
	case AttrMaxAuxiliarySends:
		return d.sends, nil
	case AttrHRTF:
		return d.hrtf, nil
	case AttrHRTFID:
		return d.hrtfID, nil
	case AttrOutputLimiter:
		if d.limiter {
			return 1, nil
		}
		return 0, nil
	case AttrOutputMode:
		return d.outputMode, nil
	case AttrFormatChannels:
		return attrFromLayout(d.spec.Layout), nil
	case AttrFormatType:
		return attrFromFormat(d.spec.Format), nil
	case AttrAmbisonicOrder:
		return d.ambiOrder, nil
	case AttrAmbisonicLayout:
		return d.ambiLayout, nil
	case AttrAmbisonicScaling:
		return d.ambiScaling, nil
	}
	return 0, storeError(d, ErrInvalidEnum)
}

// Attributes returns the device's full negotiated attribute snapshot as a
// zero-terminated list, in the same shape the attribute input takes.
func (d *Device) Attributes() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []int{
		AttrFrequency, d.spec.SampleRate,
		AttrRefresh, d.refresh,
		AttrSync, 0,
		AttrMonoSources, d.monoSources,
		AttrStereoSources, d.stereoSources,
		AttrMaxAuxiliarySends, d.sends,
		AttrHRTF, d.hrtf,
		AttrOutputLimiter, boolToInt(d.limiter),
		AttrOutputMode, d.outputMode,
		AttrFormatChannels, attrFromLayout(d.spec.Layout),
		AttrFormatType, attrFromFormat(d.spec.Format),
		AttrAmbisonicOrder, d.ambiOrder,
		AttrNone,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DeviceNames enumerates playback device names from the selected backend.
func DeviceNames() []string {
	return backend.Enumerate(backend.Playback)
}

// CaptureDeviceNames enumerates capture device names.
func CaptureDeviceNames() []string {
	return backend.Enumerate(backend.Capture)
}
