package mpvframe

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"
)

// Host is the windowing/drawing side of a Player. It owns framebuffer
// storage and presents one composed canvas per iteration.
type Host interface {
	FramebufferAllocator

	// ShouldClose reports whether the host wants the loop to stop.
	ShouldClose() bool

	// BeginFrame returns the canvas for the next frame.
	BeginFrame() (*gg.Context, error)

	// EndFrame presents the canvas returned by BeginFrame.
	EndFrame() error
}

// OffscreenConfig configures an OffscreenHost.
type OffscreenConfig struct {
	Width     int // Canvas width (default: 1280)
	Height    int // Canvas height (default: 720)
	FPS       int // Presentation rate; 0 presents as fast as possible
	MaxFrames int // Close after this many presented frames; 0 means never
}

// OffscreenHost presents into an in-memory canvas. It is used for headless
// rendering and tests.
type OffscreenHost struct {
	config OffscreenConfig
	dc     *gg.Context

	ticker *time.Ticker

	mu        sync.Mutex
	presented int
	closed    bool
	fbs       []*Framebuffer
}

// NewOffscreenHost creates an offscreen host.
func NewOffscreenHost(config OffscreenConfig) *OffscreenHost {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	h := &OffscreenHost{
		config: config,
		dc:     gg.NewContext(config.Width, config.Height),
	}
	if config.FPS > 0 {
		h.ticker = time.NewTicker(time.Second / time.Duration(config.FPS))
	}
	return h
}

// NewFramebuffer implements FramebufferAllocator.
func (h *OffscreenHost) NewFramebuffer(width, height int, format PixelFormat) (*Framebuffer, error) {
	fb, err := NewFramebuffer(width, height, format)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.fbs = append(h.fbs, fb)
	h.mu.Unlock()
	return fb, nil
}

// ReleaseFramebuffer implements FramebufferAllocator.
func (h *OffscreenHost) ReleaseFramebuffer(fb *Framebuffer) {
	if fb == nil {
		return
	}
	_ = fb.Release()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, f := range h.fbs {
		if f == fb {
			h.fbs = append(h.fbs[:i], h.fbs[i+1:]...)
			break
		}
	}
}

// LiveFramebuffers returns the number of allocated, unreleased framebuffers.
func (h *OffscreenHost) LiveFramebuffers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fbs)
}

// ShouldClose implements Host.
func (h *OffscreenHost) ShouldClose() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// RequestClose makes ShouldClose return true.
func (h *OffscreenHost) RequestClose() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// BeginFrame implements Host.
func (h *OffscreenHost) BeginFrame() (*gg.Context, error) {
	if h.ShouldClose() {
		return nil, fmt.Errorf("offscreen host closed")
	}
	return h.dc, nil
}

// EndFrame implements Host. It waits for the next tick when FPS is set.
func (h *OffscreenHost) EndFrame() error {
	if h.ticker != nil {
		<-h.ticker.C
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presented++
	if h.config.MaxFrames > 0 && h.presented >= h.config.MaxFrames {
		h.closed = true
	}
	return nil
}

// Presented returns the number of presented frames.
func (h *OffscreenHost) Presented() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presented
}

// Context returns the canvas.
func (h *OffscreenHost) Context() *gg.Context { return h.dc }

// Snapshot copies the last presented canvas.
func (h *OffscreenHost) Snapshot() *image.RGBA {
	_ = h.dc.FlushGPU()
	src := h.dc.Image()
	dst := image.NewRGBA(src.Bounds())
	draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
	return dst
}

// Close stops pacing and releases any framebuffers still allocated.
func (h *OffscreenHost) Close() error {
	if h.ticker != nil {
		h.ticker.Stop()
	}
	h.mu.Lock()
	fbs := h.fbs
	h.fbs = nil
	h.closed = true
	h.mu.Unlock()
	for _, fb := range fbs {
		_ = fb.Release()
	}
	return nil
}
