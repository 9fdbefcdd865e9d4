// Package gogpuhost presents mpvframe players in a gogpu window. The canvas
// is drawn with gg and uploaded through ggcanvas once per frame.
package gogpuhost

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/integration/ggcanvas"
	"github.com/gogpu/gogpu"

	"github.com/thesyncim/mpvframe"
)

// Config configures the window.
type Config struct {
	Title  string
	Width  int
	Height int
}

// Host is an mpvframe.Host backed by a gogpu window. The window's draw
// callback runs on the thread owning the graphics context, so the player is
// ticked from there.
type Host struct {
	config Config
	logger *slog.Logger

	app    *gogpu.App
	canvas *ggcanvas.Canvas
	frame  *gogpu.Context
	anim   *gogpu.AnimationToken

	closed atomic.Bool
	err    error
}

// New creates a window host. The window opens in Run.
func New(config Config, logger *slog.Logger) *Host {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.Title == "" {
		config.Title = "mpvframe"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	app := gogpu.NewApp(gogpu.DefaultConfig().
		WithTitle(config.Title).
		WithSize(config.Width, config.Height).
		WithContinuousRender(false))
	return &Host{config: config, logger: logger, app: app}
}

// NewFramebuffer implements mpvframe.FramebufferAllocator. Frames are
// rendered in software and uploaded with the canvas.
func (h *Host) NewFramebuffer(width, height int, format mpvframe.PixelFormat) (*mpvframe.Framebuffer, error) {
	return mpvframe.NewFramebuffer(width, height, format)
}

// ReleaseFramebuffer implements mpvframe.FramebufferAllocator.
func (h *Host) ReleaseFramebuffer(fb *mpvframe.Framebuffer) {
	if fb == nil {
		return
	}
	if err := fb.Release(); err != nil {
		h.logger.Warn("release framebuffer", "error", err)
	}
}

// ShouldClose implements mpvframe.Host.
func (h *Host) ShouldClose() bool { return h.closed.Load() }

// BeginFrame implements mpvframe.Host. It is only valid inside the window's
// draw callback.
func (h *Host) BeginFrame() (*gg.Context, error) {
	dc := h.frame
	if dc == nil {
		return nil, errors.New("gogpuhost: BeginFrame outside draw callback")
	}
	w, ht := dc.Width(), dc.Height()
	if w <= 0 || ht <= 0 {
		return nil, fmt.Errorf("gogpuhost: window has no area (%dx%d)", w, ht)
	}

	if h.canvas == nil {
		provider := h.app.GPUContextProvider()
		if provider == nil {
			return nil, errors.New("gogpuhost: GPU context not ready")
		}
		canvas, err := ggcanvas.New(provider, w, ht)
		if err != nil {
			return nil, fmt.Errorf("gogpuhost: create canvas: %w", err)
		}
		h.canvas = canvas
		h.logger.Debug("canvas created", "width", w, "height", ht)
	}
	if cw, ch := h.canvas.Size(); cw != w || ch != ht {
		if err := h.canvas.Resize(w, ht); err != nil {
			return nil, fmt.Errorf("gogpuhost: resize canvas: %w", err)
		}
	}
	return h.canvas.Context(), nil
}

// EndFrame implements mpvframe.Host.
func (h *Host) EndFrame() error {
	if h.canvas == nil || h.frame == nil {
		return errors.New("gogpuhost: EndFrame without BeginFrame")
	}
	h.canvas.MarkDirty()
	return h.canvas.RenderTo(h.frame.AsTextureDrawer())
}

// Run opens the window and ticks player once per frame until the window is
// closed. When the player finishes, animation stops and the last frame stays
// on screen. The session is not closed.
func (h *Host) Run(player *mpvframe.Player) error {
	h.app.OnDraw(func(dc *gogpu.Context) {
		if h.closed.Load() {
			return
		}
		if h.anim == nil && !player.Done() {
			h.anim = h.app.StartAnimation()
		}

		h.frame = dc
		err := player.Tick(h)
		h.frame = nil
		if err != nil {
			h.logger.Error("frame failed", "error", err)
			h.err = err
			h.stopAnimation()
			h.closed.Store(true)
			return
		}
		if player.Done() {
			h.stopAnimation()
		}
	})

	h.app.OnClose(func() {
		h.closed.Store(true)
		h.stopAnimation()
		if h.canvas != nil {
			if err := h.canvas.Close(); err != nil {
				h.logger.Warn("close canvas", "error", err)
			}
			h.canvas = nil
		}
		gg.CloseAccelerator()
	})

	if err := h.app.Run(); err != nil {
		return fmt.Errorf("gogpuhost: %w", err)
	}
	return h.err
}

func (h *Host) stopAnimation() {
	if h.anim != nil {
		h.anim.Stop()
		h.anim = nil
	}
}

var _ mpvframe.Host = (*Host)(nil)
