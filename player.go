package mpvframe

import (
	"context"
	"fmt"
	"log/slog"
)

// maxEventsPerTick bounds how many engine events one iteration drains.
const maxEventsPerTick = 256

// PlayerConfig configures a Player.
type PlayerConfig struct {
	// ExitOnEOF ends the loop when playback reaches the end of the media.
	ExitOnEOF bool
}

// Player is the host frame loop: once per iteration it drains engine events,
// runs the frame handoff, composites the scene and presents it.
type Player struct {
	session    *Session
	compositor *Compositor
	config     PlayerConfig
	logger     *slog.Logger

	frames uint64
	loaded bool
	ended  bool
	done   bool
	err    error
}

// NewPlayer creates a player for an open session.
func NewPlayer(session *Session, compositor *Compositor, config PlayerConfig) *Player {
	return &Player{
		session:    session,
		compositor: compositor,
		config:     config,
		logger:     session.logger,
	}
}

// Tick runs one iteration against host.
func (p *Player) Tick(host Host) error {
	if p.session.State() != StateRunning {
		return ErrSessionClosed
	}

	p.drainEvents()
	p.session.handoff.Step()

	dc, err := host.BeginFrame()
	if err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}
	if err := p.compositor.Compose(dc, p.session.clock.Snapshot()); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if err := host.EndFrame(); err != nil {
		return fmt.Errorf("end frame: %w", err)
	}

	p.session.handoff.ReportSwap()
	p.frames++
	return nil
}

// Run loops until ctx is cancelled, the host asks to close, or the engine
// finishes. It does not close the session.
func (p *Player) Run(ctx context.Context, host Host) error {
	for !host.ShouldClose() && !p.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.Tick(host); err != nil {
			return err
		}
	}
	return p.err
}

func (p *Player) drainEvents() {
	if !p.session.wakeup.Take() {
		return
	}
	engine := p.session.engine
	for i := 0; i < maxEventsPerTick; i++ {
		ev := engine.PollEvent(0)
		if ev.ID == EventNone {
			return
		}
		p.handleEvent(ev)
	}
	// More events are queued; look again next iteration.
	p.session.wakeup.Notify()
}

func (p *Player) handleEvent(ev Event) {
	clock := p.session.clock
	switch ev.ID {
	case EventPropertyChange:
		prop := ev.Property
		if prop == nil {
			return
		}
		v, ok := prop.Float()
		if !ok {
			v = 0
		}
		switch prop.Name {
		case "duration":
			clock.SetDuration(v)
		case "time-pos":
			clock.SetPosition(v)
		}
	case EventCommandReply:
		if ev.Err != nil {
			p.logger.Error("command failed", "reply", ev.ReplyUserdata, "error", ev.Err)
			if !p.loaded {
				p.err = fmt.Errorf("load %s: %w", p.session.cfg.Media, ev.Err)
				p.done = true
			}
		}
	case EventFileLoaded:
		p.loaded = true
		p.logger.Info("media loaded", "media", p.session.cfg.Media)
	case EventEndFile:
		p.ended = true
		if ev.Err != nil {
			p.logger.Error("playback ended with error", "error", ev.Err)
			if !p.loaded {
				// The media never loaded; nothing will ever be shown.
				p.err = fmt.Errorf("load %s: %w", p.session.cfg.Media, ev.Err)
				p.done = true
			}
		} else {
			p.logger.Info("playback ended")
		}
		if p.config.ExitOnEOF {
			p.done = true
		}
	case EventShutdown:
		p.logger.Info("engine shut down")
		p.done = true
	case EventQueueOverflow:
		p.logger.Warn("engine event queue overflowed")
	default:
		p.logger.Debug("engine event", "event", ev.ID.String())
	}
}

// Done reports whether the engine has finished (shutdown, load failure, or
// end of file with ExitOnEOF).
func (p *Player) Done() bool { return p.done }

// Err returns the load failure that ended the loop, if any.
func (p *Player) Err() error { return p.err }

// Ended reports whether playback reached the end of the media.
func (p *Player) Ended() bool { return p.ended }

// Frames returns the number of completed iterations.
func (p *Player) Frames() uint64 { return p.frames }

// Session returns the underlying session.
func (p *Player) Session() *Session { return p.session }
