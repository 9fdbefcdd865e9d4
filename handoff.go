package mpvframe

import (
	"fmt"
	"log/slog"
)

// Mode selects how the host decides when to render.
type Mode int

const (
	// ModeBlocking renders every iteration; Render may block until a frame is
	// available, tying the host frame rate to the video frame rate.
	ModeBlocking Mode = iota

	// ModeAdvanced renders only after an update notification and an Update
	// poll reporting UpdateFrame, and reports swaps back to the engine.
	ModeAdvanced
)

func (m Mode) String() string {
	switch m {
	case ModeBlocking:
		return "blocking"
	case ModeAdvanced:
		return "advanced"
	default:
		return "Unknown"
	}
}

// ParseMode parses "blocking" or "advanced".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "blocking", "basic":
		return ModeBlocking, nil
	case "advanced", "":
		return ModeAdvanced, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want blocking or advanced)", s)
	}
}

// renderErrorLogEvery throttles per-frame render failure logs.
const renderErrorLogEvery = 100

// HandoffStats counts handoff activity.
type HandoffStats struct {
	Steps        uint64 // Step calls
	Polls        uint64 // Update polls after a notification
	Renders      uint64 // successful render calls
	RenderErrors uint64 // failed render calls (skipped)
	NotDue       uint64 // polls that reported no frame
	Swaps        uint64 // ReportSwap calls forwarded to the bridge
}

// Handoff runs the frame handoff protocol between a RenderBridge and the host
// frame loop. It is driven from the host goroutine only.
type Handoff struct {
	mode   Mode
	bridge RenderBridge
	target *Framebuffer
	ready  *Signal
	flip   FlipPlan
	logger *slog.Logger

	stats HandoffStats
}

// NewHandoff creates a handoff rendering into target. ready is the signal the
// bridge's update notifier sets.
func NewHandoff(mode Mode, bridge RenderBridge, target *Framebuffer, ready *Signal, flip FlipPlan, logger *slog.Logger) *Handoff {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handoff{
		mode:   mode,
		bridge: bridge,
		target: target,
		ready:  ready,
		flip:   flip,
		logger: logger,
	}
}

// Mode returns the handoff mode.
func (h *Handoff) Mode() Mode { return h.mode }

// Step runs one iteration of the protocol and reports whether a new frame
// was written into the framebuffer. Render failures are logged and skipped;
// the framebuffer keeps its previous picture.
func (h *Handoff) Step() bool {
	h.stats.Steps++

	if h.mode == ModeBlocking {
		return h.render()
	}

	if !h.ready.Take() {
		return false
	}
	h.stats.Polls++
	if !h.bridge.Update().Has(UpdateFrame) {
		h.stats.NotDue++
		return false
	}
	return h.render()
}

func (h *Handoff) render() bool {
	if err := h.target.BeginWrite(); err != nil {
		h.renderFailed(fmt.Errorf("framebuffer: %w", err))
		return false
	}
	err := h.bridge.Render(h.target, RenderParams{FlipY: h.flip.RenderFlip})
	if err != nil {
		h.target.AbortWrite()
		h.renderFailed(err)
		return false
	}
	h.target.EndWrite()
	h.stats.Renders++
	return true
}

func (h *Handoff) renderFailed(err error) {
	h.stats.RenderErrors++
	if n := h.stats.RenderErrors; n == 1 || n%renderErrorLogEvery == 0 {
		h.logger.Warn("render failed, keeping previous frame",
			"error", err, "failures", n)
	}
}

// ReportSwap tells the engine the host presented a frame. Only advanced
// mode forwards swaps; blocking mode leaves frame timing to the engine.
func (h *Handoff) ReportSwap() {
	if h.mode != ModeAdvanced {
		return
	}
	h.bridge.ReportSwap()
	h.stats.Swaps++
}

// Stats returns the counters.
func (h *Handoff) Stats() HandoffStats { return h.stats }
