package mpvframe

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateContextCreated
	StateInitialized
	StateRenderContextReady
	StateRunning
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateContextCreated:
		return "ContextCreated"
	case StateInitialized:
		return "Initialized"
	case StateRenderContextReady:
		return "RenderContextReady"
	case StateRunning:
		return "Running"
	case StateTornDown:
		return "TornDown"
	default:
		return "Unknown"
	}
}

// Option is a named engine option applied before initialization.
type Option struct {
	Name  string
	Value string
}

// Observed property reply ids.
const (
	propDuration uint64 = iota + 1
	propTimePos
)

// DefaultOptions returns the engine options for mode.
func DefaultOptions(mode Mode) []Option {
	opts := []Option{
		{Name: "vo", Value: "libmpv"},
		{Name: "hwdec", Value: "auto"},
	}
	if mode == ModeAdvanced {
		// Frames are timed by the host, not by audio/video sync offsets.
		opts = append(opts, Option{Name: "video-timing-offset", Value: "0"})
	}
	return opts
}

// SessionConfig configures a playback session.
type SessionConfig struct {
	Media  string      // Media path or URL passed to loadfile
	Width  int         // Framebuffer width (default: 1280)
	Height int         // Framebuffer height (default: 720)
	Format PixelFormat // Framebuffer pixel layout for the software API
	Mode   Mode        // Handoff mode (default: advanced)
	Flip   FlipStage   // Where a needed vertical flip is applied
	API    API         // Render API (default: software)

	// ProcAddress resolves GPU entry points for APIOpenGL.
	ProcAddress ProcAddressFunc

	// Options are applied in order before Initialize. Nil means DefaultOptions(Mode).
	Options []Option
}

// DefaultSessionConfig returns a 1280x720 advanced-mode configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Width:  1280,
		Height: 720,
		Format: PixelFormatRGB0,
		Mode:   ModeAdvanced,
		Flip:   FlipAtRender,
		API:    APISoftware,
	}
}

// FramebufferAllocator is implemented by hosts that own framebuffer storage.
type FramebufferAllocator interface {
	NewFramebuffer(width, height int, format PixelFormat) (*Framebuffer, error)
	ReleaseFramebuffer(fb *Framebuffer)
}

// GLFramebufferAllocator is implemented by hosts that can wrap an OpenGL
// framebuffer object for sessions using APIOpenGL. The returned framebuffer
// is released through FramebufferAllocator.ReleaseFramebuffer.
type GLFramebufferAllocator interface {
	NewGLFramebuffer(width, height int) (*Framebuffer, error)
}

// SessionOption customizes Open.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session owns the playback context, the render bridge and the shared
// framebuffer, and walks them through the lifecycle states.
type Session struct {
	id     string
	cfg    SessionConfig
	logger *slog.Logger
	state  atomic.Int32

	engine Engine
	bridge RenderBridge
	fb     *Framebuffer

	ready  *Signal
	wakeup *Signal
	clock  *Clock
	flip   FlipPlan

	handoff  *Handoff
	releases releaser
}

// Open creates, configures and starts a session. On failure every resource
// acquired so far is released in reverse order and the error is returned.
func Open(factory EngineFactory, alloc FramebufferAllocator, cfg SessionConfig, opts ...SessionOption) (*Session, error) {
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	if cfg.API == "" {
		cfg.API = APISoftware
	}
	if cfg.Options == nil {
		cfg.Options = DefaultOptions(cfg.Mode)
	}

	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		ready:  NewSignal(),
		wakeup: NewSignal(),
		clock:  NewClock(),
	}
	s.logger = slog.New(slog.DiscardHandler)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)

	if err := s.open(factory, alloc); err != nil {
		s.logger.Error("session startup failed", "state", s.State(), "error", err)
		s.teardown()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(factory EngineFactory, alloc FramebufferAllocator) error {
	// Uninitialized -> ContextCreated
	engine, err := factory()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateContext, err)
	}
	if engine == nil {
		return ErrCreateContext
	}
	s.engine = engine
	s.releases.push("engine", func() {
		engine.Destroy()
	})
	s.setState(StateContextCreated)

	// ContextCreated -> Initialized
	for _, o := range s.cfg.Options {
		if err := engine.SetOption(o.Name, o.Value); err != nil {
			s.logger.Warn("engine rejected option", "name", o.Name, "value", o.Value, "error", err)
		}
	}
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initialize playback context: %w", err)
	}
	s.setState(StateInitialized)

	// Initialized -> RenderContextReady
	bridge, err := engine.CreateRenderBridge(BridgeConfig{
		API:                s.cfg.API,
		ProcAddress:        s.cfg.ProcAddress,
		AdvancedControl:    s.cfg.Mode == ModeAdvanced,
		BlockForTargetTime: s.cfg.Mode == ModeBlocking,
	})
	if err != nil {
		return fmt.Errorf("create render context: %w", err)
	}
	if bridge == nil {
		return errors.New("create render context: engine returned no bridge")
	}
	s.bridge = bridge
	s.releases.push("bridge", func() {
		bridge.SetUpdateNotifier(nil)
		bridge.Free()
	})
	s.flip = PlanFlip(bridge.NativeBottomUp(), s.cfg.Flip)
	s.setState(StateRenderContextReady)

	// RenderContextReady -> Running
	if err := engine.ObserveProperty(propDuration, "duration", FormatDouble); err != nil {
		s.logger.Warn("observe duration failed", "error", err)
	}
	if err := engine.ObserveProperty(propTimePos, "time-pos", FormatDouble); err != nil {
		s.logger.Warn("observe time-pos failed", "error", err)
	}

	ready, wakeup := s.ready, s.wakeup
	bridge.SetUpdateNotifier(ready.Notify)
	engine.SetWakeupNotifier(wakeup.Notify)
	s.releases.push("notifiers", func() {
		engine.SetWakeupNotifier(nil)
	})

	fb, err := s.allocate(alloc)
	if err != nil {
		return fmt.Errorf("allocate framebuffer: %w", err)
	}
	s.fb = fb
	s.releases.push("framebuffer", func() {
		alloc.ReleaseFramebuffer(fb)
	})

	s.handoff = NewHandoff(s.cfg.Mode, bridge, fb, ready, s.flip, s.logger)

	if s.cfg.Media != "" {
		if err := s.Load(s.cfg.Media); err != nil {
			return err
		}
	}

	s.setState(StateRunning)
	s.logger.Info("session running",
		"mode", s.cfg.Mode.String(),
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"render_flip", s.flip.RenderFlip,
		"draw_flip", s.flip.DrawFlip)
	return nil
}

// allocate asks the host for a framebuffer matching the render API.
func (s *Session) allocate(alloc FramebufferAllocator) (*Framebuffer, error) {
	if s.cfg.API != APIOpenGL {
		return alloc.NewFramebuffer(s.cfg.Width, s.cfg.Height, s.cfg.Format)
	}
	gl, ok := alloc.(GLFramebufferAllocator)
	if !ok {
		return nil, fmt.Errorf("%w: host %T cannot allocate OpenGL framebuffers", ErrUnsupportedTarget, alloc)
	}
	fb, err := gl.NewGLFramebuffer(s.cfg.Width, s.cfg.Height)
	if err != nil {
		return nil, err
	}
	if fb.Pix() != nil {
		alloc.ReleaseFramebuffer(fb)
		return nil, fmt.Errorf("%w: host returned a CPU framebuffer for OpenGL", ErrUnsupportedTarget)
	}
	return fb, nil
}

// Load issues loadfile for media: fire-and-forget in advanced mode (the
// reply arrives as an event), synchronous in blocking mode.
func (s *Session) Load(media string) error {
	if s.engine == nil || s.State() == StateTornDown {
		return ErrSessionClosed
	}
	if s.cfg.Mode == ModeAdvanced {
		if err := s.engine.CommandAsync(0, "loadfile", media); err != nil {
			return fmt.Errorf("loadfile %s: %w", media, err)
		}
		return nil
	}
	if err := s.engine.Command("loadfile", media); err != nil {
		return fmt.Errorf("loadfile %s: %w", media, err)
	}
	return nil
}

// Close tears the session down: framebuffer, then render bridge, then
// playback context. It is safe to call more than once.
func (s *Session) Close() error {
	if s.State() == StateTornDown {
		return nil
	}
	s.teardown()
	s.logger.Info("session closed", "stats", s.handoffStats())
	return nil
}

func (s *Session) teardown() {
	s.releases.run(func(name string) {
		s.logger.Debug("released", "resource", name)
	})
	s.setState(StateTornDown)
}

func (s *Session) handoffStats() HandoffStats {
	if s.handoff == nil {
		return HandoffStats{}
	}
	return s.handoff.Stats()
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.Debug("state transition", "from", prev.String(), "to", st.String())
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Config returns the effective configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

// Engine returns the playback context.
func (s *Session) Engine() Engine { return s.engine }

// Framebuffer returns the shared framebuffer.
func (s *Session) Framebuffer() *Framebuffer { return s.fb }

// Handoff returns the frame handoff driver.
func (s *Session) Handoff() *Handoff { return s.handoff }

// Clock returns the playback clock.
func (s *Session) Clock() *Clock { return s.clock }

// Flip returns where vertical flipping happens for this session.
func (s *Session) Flip() FlipPlan { return s.flip }

// Wakeup returns the signal set by the engine's wakeup notifier.
func (s *Session) Wakeup() *Signal { return s.wakeup }

// RenderReady returns the signal set by the bridge's update notifier.
func (s *Session) RenderReady() *Signal { return s.ready }

// releaser runs release functions in reverse registration order.
type releaser struct {
	steps []releaseStep
}

type releaseStep struct {
	name string
	fn   func()
}

func (r *releaser) push(name string, fn func()) {
	r.steps = append(r.steps, releaseStep{name: name, fn: fn})
}

func (r *releaser) run(done func(name string)) {
	for i := len(r.steps) - 1; i >= 0; i-- {
		r.steps[i].fn()
		if done != nil {
			done(r.steps[i].name)
		}
	}
	r.steps = nil
}
