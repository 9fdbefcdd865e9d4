package mpvframe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// maxQueuedEvents bounds the PatternEngine event queue. Events pushed while
// it is full are dropped and reported once as EventQueueOverflow.
const maxQueuedEvents = 1000

// patternOptions lists the options PatternEngine accepts. Options that only
// matter to libmpv are stored and otherwise ignored.
var patternOptions = map[string]bool{
	"vo":                  true,
	"hwdec":               true,
	"video-timing-offset": true,
	"msg-level":           true,
	"terminal":            true,
	"config":              true,
	"keep-open":           true,
	"vd-lavc-dr":          true,
	"pattern-bottom-up":   true,
}

// PatternEngine is a pure-Go Engine that plays synthetic test patterns. It
// follows the same contract as the libmpv binding: events are queued and
// announced through the wakeup notifier, and new frames are announced
// through the render bridge's update notifier, both from the playback
// goroutine.
type PatternEngine struct {
	mu          sync.Mutex
	options     map[string]string
	initialized bool
	destroyed   bool

	events   []Event
	overflow bool
	queued   chan struct{}
	wakeup   Notifier
	observed map[string]uint64

	bridge  *patternBridge
	bridges atomic.Uint64
	renders atomic.Uint64
	swaps   atomic.Uint64

	// playback state
	media    *PatternMedia
	frame    uint64        // frames advanced since load
	seq      uint64        // increments for every new picture
	position float64       // seconds
	playing  bool          // false before load and after end-file
	frameCh  chan struct{} // closed and replaced on every new picture
	stop     chan struct{}
	done     chan struct{}
}

// NewPatternEngine creates an uninitialized pattern engine.
func NewPatternEngine() *PatternEngine {
	return &PatternEngine{
		options:  map[string]string{},
		queued:   make(chan struct{}, 1),
		observed: map[string]uint64{},
		frameCh:  make(chan struct{}),
	}
}

// PatternEngineFactory returns an EngineFactory producing PatternEngines.
func PatternEngineFactory() EngineFactory {
	return func() (Engine, error) {
		return NewPatternEngine(), nil
	}
}

// SetOption implements Engine.
func (e *PatternEngine) SetOption(name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return newEngineError("set option "+name, ErrorUninitialized)
	}
	if !patternOptions[name] {
		return newEngineError("set option "+name, ErrorOptionNotFound)
	}
	if name == "pattern-bottom-up" && value != "yes" && value != "no" {
		return newEngineError("set option "+name, ErrorOptionFormat)
	}
	e.options[name] = value
	return nil
}

// Option returns the stored value of an option.
func (e *PatternEngine) Option(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.options[name]
	return v, ok
}

// Initialize implements Engine.
func (e *PatternEngine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return newEngineError("initialize", ErrorUninitialized)
	}
	if e.initialized {
		return newEngineError("initialize", ErrorInvalidParameter)
	}
	e.initialized = true
	return nil
}

// ObserveProperty implements Engine. The current value is queued
// immediately, as libmpv does.
func (e *PatternEngine) ObserveProperty(userdata uint64, name string, format Format) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return newEngineError("observe "+name, ErrorUninitialized)
	}
	if format != FormatDouble && format != FormatNone {
		e.mu.Unlock()
		return newEngineError("observe "+name, ErrorPropertyFormat)
	}
	e.observed[name] = userdata
	e.pushProperty(name)
	notify := e.wakeup
	e.mu.Unlock()

	call(notify)
	return nil
}

// Command implements Engine.
func (e *PatternEngine) Command(args ...string) error {
	return e.command(args)
}

// CommandAsync implements Engine. The command runs immediately and its
// result is queued as EventCommandReply.
func (e *PatternEngine) CommandAsync(userdata uint64, args ...string) error {
	e.mu.Lock()
	if e.destroyed || !e.initialized {
		e.mu.Unlock()
		return newEngineError("command", ErrorUninitialized)
	}
	e.mu.Unlock()

	err := e.command(args)

	e.mu.Lock()
	e.push(Event{ID: EventCommandReply, ReplyUserdata: userdata, Err: err})
	notify := e.wakeup
	e.mu.Unlock()
	call(notify)
	return nil
}

func (e *PatternEngine) command(args []string) error {
	if len(args) == 0 {
		return newEngineError("command", ErrorInvalidParameter)
	}
	e.mu.Lock()
	if e.destroyed || !e.initialized {
		e.mu.Unlock()
		return newEngineError(args[0], ErrorUninitialized)
	}
	e.mu.Unlock()

	switch args[0] {
	case "loadfile":
		if len(args) < 2 {
			return newEngineError("loadfile", ErrorInvalidParameter)
		}
		e.load(args[1])
		return nil
	case "stop":
		e.stopPlayback(true)
		return nil
	case "quit":
		e.stopPlayback(true)
		e.mu.Lock()
		e.push(Event{ID: EventShutdown})
		notify := e.wakeup
		e.mu.Unlock()
		call(notify)
		return nil
	default:
		return newEngineError(args[0], ErrorInvalidParameter)
	}
}

// load replaces the current clip. A clip that cannot be opened is reported
// through end-file, not as a command failure.
func (e *PatternEngine) load(target string) {
	e.stopPlayback(true)

	m, err := OpenPatternMedia(target)

	e.mu.Lock()
	e.push(Event{ID: EventStartFile})
	if err != nil {
		e.push(Event{ID: EventEndFile, Err: &EngineError{
			Op: "loadfile", Code: ErrorLoadingFailed,
			Message: fmt.Sprintf("%s: %v", ErrorString(ErrorLoadingFailed), err),
		}})
		notify := e.wakeup
		e.mu.Unlock()
		call(notify)
		return
	}

	e.media = &m
	e.frame = 0
	e.position = 0
	e.playing = true
	e.push(Event{ID: EventFileLoaded})
	e.pushProperty("duration")
	e.pushProperty("time-pos")
	e.newPicture()

	stop, done := make(chan struct{}), make(chan struct{})
	e.stop, e.done = stop, done
	wakeup, update := e.notifiers()
	e.mu.Unlock()

	call(wakeup)
	call(update)
	go e.play(m, stop, done)
}

func (e *PatternEngine) play(m PatternMedia, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(m.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if e.advance() {
				return
			}
		}
	}
}

// advance moves playback one frame and reports whether the clip ended.
func (e *PatternEngine) advance() bool {
	e.mu.Lock()
	if !e.playing || e.media == nil {
		e.mu.Unlock()
		return true
	}
	m := e.media
	e.frame++
	e.position = float64(e.frame) / float64(m.FPS)
	ended := e.position >= m.Duration()
	if ended {
		e.position = m.Duration()
	}
	e.pushProperty("time-pos")
	e.newPicture()
	if ended {
		e.playing = false
		e.push(Event{ID: EventEndFile})
	}
	wakeup, update := e.notifiers()
	e.mu.Unlock()

	call(wakeup)
	call(update)
	return ended
}

// stopPlayback halts the playback goroutine and waits for it to exit.
func (e *PatternEngine) stopPlayback(endFile bool) {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	wasPlaying := e.playing
	e.playing = false
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	e.mu.Lock()
	if wasPlaying && endFile {
		e.push(Event{ID: EventEndFile})
	}
	e.broadcastFrame()
	notify := e.wakeup
	e.mu.Unlock()
	if wasPlaying && endFile {
		call(notify)
	}
}

// PollEvent implements Engine. A negative timeout waits until an event is
// queued or the engine is destroyed.
func (e *PatternEngine) PollEvent(timeout time.Duration) Event {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		e.mu.Lock()
		if len(e.events) > 0 {
			ev := e.events[0]
			e.events[0] = Event{}
			e.events = e.events[1:]
			if e.overflow {
				e.overflow = false
				e.events = append(e.events, Event{ID: EventQueueOverflow})
			}
			e.mu.Unlock()
			return ev
		}
		destroyed := e.destroyed
		e.mu.Unlock()

		if timeout == 0 || destroyed {
			return Event{ID: EventNone}
		}
		select {
		case <-e.queued:
		case <-deadline:
			return Event{ID: EventNone}
		}
	}
}

// SetWakeupNotifier implements Engine.
func (e *PatternEngine) SetWakeupNotifier(fn Notifier) {
	e.mu.Lock()
	e.wakeup = fn
	pending := len(e.events) > 0
	e.mu.Unlock()
	if pending {
		call(fn)
	}
}

// CreateRenderBridge implements Engine. Only the software API is supported,
// and only while the vo option is libmpv.
func (e *PatternEngine) CreateRenderBridge(cfg BridgeConfig) (RenderBridge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || !e.initialized {
		return nil, newEngineError("create render context", ErrorUninitialized)
	}
	if vo := e.options["vo"]; vo != "libmpv" {
		return nil, &EngineError{
			Op:      "create render context",
			Code:    ErrorUnsupported,
			Message: fmt.Sprintf("%s (vo=%q, need vo=libmpv)", ErrorString(ErrorUnsupported), vo),
		}
	}
	if cfg.API != APISoftware {
		return nil, newEngineError("create render context "+string(cfg.API), ErrorNotImplemented)
	}
	if e.bridge != nil {
		return nil, newEngineError("create render context", ErrorUnsupported)
	}
	b := &patternBridge{
		engine:   e,
		advanced: cfg.AdvancedControl,
		block:    cfg.BlockForTargetTime,
		bottomUp: e.options["pattern-bottom-up"] == "yes",
	}
	e.bridge = b
	e.bridges.Add(1)
	return b, nil
}

// Destroy implements Engine.
func (e *PatternEngine) Destroy() {
	e.stopPlayback(false)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.wakeup = nil
	e.broadcastFrame()
	select {
	case e.queued <- struct{}{}:
	default:
	}
}

// Destroyed reports whether Destroy has been called.
func (e *PatternEngine) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// push queues an event. Callers hold e.mu.
func (e *PatternEngine) push(ev Event) {
	if e.destroyed {
		return
	}
	if len(e.events) >= maxQueuedEvents {
		e.overflow = true
		return
	}
	e.events = append(e.events, ev)
	select {
	case e.queued <- struct{}{}:
	default:
	}
}

// pushProperty queues the current value of an observed property. Callers
// hold e.mu.
func (e *PatternEngine) pushProperty(name string) {
	userdata, ok := e.observed[name]
	if !ok {
		return
	}
	prop := &PropertyChange{Name: name}
	if e.media != nil {
		prop.Format = FormatDouble
		switch name {
		case "duration":
			prop.Value = e.media.Duration()
		case "time-pos":
			prop.Value = e.position
		default:
			prop.Format = FormatNone
		}
	}
	e.push(Event{ID: EventPropertyChange, ReplyUserdata: userdata, Property: prop})
}

// newPicture publishes a new frame to renders. Callers hold e.mu.
func (e *PatternEngine) newPicture() {
	e.seq++
	e.broadcastFrame()
}

func (e *PatternEngine) broadcastFrame() {
	close(e.frameCh)
	e.frameCh = make(chan struct{})
}

// notifiers returns the callbacks to run after e.mu is released.
func (e *PatternEngine) notifiers() (wakeup, update Notifier) {
	wakeup = e.wakeup
	if e.bridge != nil && !e.bridge.freed {
		update = e.bridge.update
	}
	return wakeup, update
}

func call(fn Notifier) {
	if fn != nil {
		fn()
	}
}

// patternBridge renders PatternEngine pictures in software.
type patternBridge struct {
	engine   *PatternEngine
	advanced bool
	block    bool
	bottomUp bool

	// guarded by engine.mu
	update   Notifier
	rendered uint64
	freed    bool

	painter patternPainter
}

// SetUpdateNotifier implements RenderBridge.
func (b *patternBridge) SetUpdateNotifier(fn Notifier) {
	b.engine.mu.Lock()
	b.update = fn
	b.engine.mu.Unlock()
}

// Update implements RenderBridge.
func (b *patternBridge) Update() UpdateFlags {
	e := b.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if b.freed || e.destroyed || e.media == nil {
		return 0
	}
	if e.seq > b.rendered {
		return UpdateFrame
	}
	return 0
}

// Render implements RenderBridge. With BlockForTargetTime it waits for the
// next picture, bounded by two frame periods.
func (b *patternBridge) Render(target *Framebuffer, params RenderParams) error {
	if target == nil || target.Pix() == nil {
		return fmt.Errorf("render: %w", ErrUnsupportedTarget)
	}
	e := b.engine

	var deadline <-chan time.Time
	for {
		e.mu.Lock()
		if b.freed || e.destroyed {
			e.mu.Unlock()
			return newEngineError("render", ErrorUninitialized)
		}
		if !b.block || !e.playing || e.seq > b.rendered {
			break
		}
		ch := e.frameCh
		if deadline == nil {
			wait := 2 * time.Second / time.Duration(e.media.FPS)
			t := time.NewTimer(wait)
			defer t.Stop()
			deadline = t.C
		}
		e.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-deadline:
		}
		e.mu.Lock()
		break
	}
	var media PatternMedia
	hasMedia := e.media != nil
	if hasMedia {
		media = *e.media
	}
	frame, seq := e.frame, e.seq
	b.rendered = seq
	e.mu.Unlock()

	w, h := target.Size()
	var src []byte
	if hasMedia {
		src = b.painter.paint(media, frame, w, h)
	} else {
		// Nothing loaded: black, like an idle video output.
		src = b.painter.paint(PatternMedia{Pattern: PatternSolidColor}, 0, w, h)
	}
	copyPattern(target, src, b.bottomUp != params.FlipY)
	e.renders.Add(1)
	return nil
}

// ReportSwap implements RenderBridge.
func (b *patternBridge) ReportSwap() { b.engine.swaps.Add(1) }

// NativeBottomUp implements RenderBridge.
func (b *patternBridge) NativeBottomUp() bool { return b.bottomUp }

// Free implements RenderBridge.
func (b *patternBridge) Free() {
	e := b.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	b.freed = true
	b.update = nil
	if e.bridge == b {
		e.bridge = nil
	}
	e.broadcastFrame()
}

// PatternStats counts render bridge activity across the engine's lifetime.
type PatternStats struct {
	Bridges uint64 // render bridges created
	Renders uint64 // completed Render calls
	Swaps   uint64 // ReportSwap calls
}

// Stats returns render bridge counters.
func (e *PatternEngine) Stats() PatternStats {
	return PatternStats{
		Bridges: e.bridges.Load(),
		Renders: e.renders.Load(),
		Swaps:   e.swaps.Load(),
	}
}
