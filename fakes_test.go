package mpvframe

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// callLog records calls across fakes in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// indexOf returns the position of the first call equal to name, or -1.
func (l *callLog) indexOf(name string) int {
	for i, c := range l.list() {
		if c == name {
			return i
		}
	}
	return -1
}

type fakeEngine struct {
	log *callLog

	initErr    error
	bridgeErr  error
	commandErr error
	optionErr  map[string]error

	bridge *fakeBridge
	wakeup Notifier
	events []Event
}

func newFakeEngine(log *callLog) *fakeEngine {
	return &fakeEngine{log: log, bridge: &fakeBridge{log: log}}
}

func (e *fakeEngine) factory() EngineFactory {
	return func() (Engine, error) {
		e.log.add("create")
		return e, nil
	}
}

func (e *fakeEngine) SetOption(name, value string) error {
	e.log.add("option %s=%s", name, value)
	return e.optionErr[name]
}

func (e *fakeEngine) Initialize() error {
	e.log.add("initialize")
	return e.initErr
}

func (e *fakeEngine) ObserveProperty(userdata uint64, name string, format Format) error {
	e.log.add("observe %s", name)
	return nil
}

func (e *fakeEngine) Command(args ...string) error {
	e.log.add("command %v", args)
	return e.commandErr
}

func (e *fakeEngine) CommandAsync(userdata uint64, args ...string) error {
	e.log.add("command-async %v", args)
	return e.commandErr
}

func (e *fakeEngine) PollEvent(timeout time.Duration) Event {
	if len(e.events) == 0 {
		return Event{ID: EventNone}
	}
	ev := e.events[0]
	e.events = e.events[1:]
	return ev
}

func (e *fakeEngine) SetWakeupNotifier(fn Notifier) {
	if fn == nil {
		e.log.add("wakeup cleared")
	} else {
		e.log.add("wakeup set")
	}
	e.wakeup = fn
}

// queue adds events and fires the wakeup notifier.
func (e *fakeEngine) queue(events ...Event) {
	e.events = append(e.events, events...)
	if e.wakeup != nil {
		e.wakeup()
	}
}

func (e *fakeEngine) CreateRenderBridge(cfg BridgeConfig) (RenderBridge, error) {
	e.log.add("create bridge")
	if e.bridgeErr != nil {
		return nil, e.bridgeErr
	}
	e.bridge.cfg = cfg
	return e.bridge, nil
}

func (e *fakeEngine) Destroy() { e.log.add("destroy") }

type fakeBridge struct {
	log *callLog
	cfg BridgeConfig

	bottomUp  bool
	frameDue  bool
	renderErr error
	update    Notifier

	updates    int
	renders    int
	swaps      int
	lastFlip   bool
	lastTarget *Framebuffer
}

func (b *fakeBridge) SetUpdateNotifier(fn Notifier) { b.update = fn }

func (b *fakeBridge) Update() UpdateFlags {
	b.updates++
	if b.frameDue {
		b.frameDue = false
		return UpdateFrame
	}
	return 0
}

func (b *fakeBridge) Render(target *Framebuffer, params RenderParams) error {
	b.lastFlip = params.FlipY
	b.lastTarget = target
	if b.cfg.API == APIOpenGL && target.Pix() != nil {
		return ErrUnsupportedTarget
	}
	if b.renderErr != nil {
		return b.renderErr
	}
	b.renders++
	return nil
}

func (b *fakeBridge) ReportSwap() { b.swaps++ }

func (b *fakeBridge) NativeBottomUp() bool { return b.bottomUp }

func (b *fakeBridge) Free() { b.log.add("free bridge") }

// newFrame marks a frame due and fires the update notifier.
func (b *fakeBridge) newFrame() {
	b.frameDue = true
	if b.update != nil {
		b.update()
	}
}

type fakeAlloc struct {
	log *callLog
	err error
}

func (a *fakeAlloc) NewFramebuffer(width, height int, format PixelFormat) (*Framebuffer, error) {
	a.log.add("alloc")
	if a.err != nil {
		return nil, a.err
	}
	return NewFramebuffer(width, height, format)
}

func (a *fakeAlloc) ReleaseFramebuffer(fb *Framebuffer) {
	a.log.add("release framebuffer")
	_ = fb.Release()
}

// fakeGLAlloc hands out OpenGL framebuffers wrapping fbo.
type fakeGLAlloc struct {
	fakeAlloc
	fbo uint32
}

func (a *fakeGLAlloc) NewGLFramebuffer(width, height int) (*Framebuffer, error) {
	a.log.add("alloc gl")
	if a.err != nil {
		return nil, a.err
	}
	return NewGLFramebuffer(a.fbo, width, height)
}

var errFake = errors.New("fake failure")
