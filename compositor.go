package mpvframe

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gg"
)

// Mover updates a layer's position once per composed frame.
type Mover interface {
	Move(layer *CompositorLayer, canvasWidth, canvasHeight int)
}

// CompositorLayer is a framebuffer drawn onto the host canvas.
type CompositorLayer struct {
	ID      int          // Unique layer ID
	Source  *Framebuffer // Shared framebuffer sampled by this layer
	X, Y    float64      // Position on canvas
	Width   int          // Drawn width (0 = source width)
	Height  int          // Drawn height (0 = source height)
	ZOrder  int          // Layer order (higher = on top)
	Alpha   float64      // Layer opacity 0.0-1.0
	Visible bool         // Layer visibility
	FlipY   bool         // Mirror rows while sampling (draw-time flip)
	Mover   Mover        // Optional per-frame motion

	buf        *gg.ImageBuf
	uploadGen  uint64
	uploadFlip bool
	uploaded   bool
}

// ProgressBarConfig configures the playback progress overlay.
type ProgressBarConfig struct {
	Enabled bool
	Height  float64 // Bar height in pixels (default: 8)
	Track   gg.RGBA // Unfilled color
	Fill    gg.RGBA // Filled color
}

// CompositorConfig configures the host compositor.
type CompositorConfig struct {
	Width      int     // Canvas width
	Height     int     // Canvas height
	Background gg.RGBA // Clear color
	Progress   ProgressBarConfig
}

// DefaultCompositorConfig returns a 1280x720 canvas with a light background
// and the progress bar enabled.
func DefaultCompositorConfig() CompositorConfig {
	return CompositorConfig{
		Width:      1280,
		Height:     720,
		Background: gg.Hex("#f5f5f5"),
		Progress: ProgressBarConfig{
			Enabled: true,
			Height:  8,
			Track:   gg.Hex("#828282"),
			Fill:    gg.Hex("#66bfff"),
		},
	}
}

// Compositor draws framebuffer layers and overlays into a gg.Context.
// Layer setters may be called from any goroutine; Compose runs on the host
// goroutine.
type Compositor struct {
	config CompositorConfig

	layers   []*CompositorLayer
	layersMu sync.Mutex
	nextID   int

	composed uint64
}

// NewCompositor creates a compositor.
func NewCompositor(config CompositorConfig) *Compositor {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.Progress.Height <= 0 {
		config.Progress.Height = 8
	}
	return &Compositor{config: config}
}

// Config returns the compositor configuration.
func (c *Compositor) Config() CompositorConfig { return c.config }

// AddLayer adds a framebuffer as a layer at (x, y) and returns its ID.
func (c *Compositor) AddLayer(source *Framebuffer, x, y float64) int {
	c.layersMu.Lock()
	defer c.layersMu.Unlock()

	c.nextID++
	c.layers = append(c.layers, &CompositorLayer{
		ID:      c.nextID,
		Source:  source,
		X:       x,
		Y:       y,
		ZOrder:  len(c.layers),
		Alpha:   1.0,
		Visible: true,
	})
	c.sortLayers()
	return c.nextID
}

// RemoveLayer removes a layer by ID.
func (c *Compositor) RemoveLayer(id int) bool {
	c.layersMu.Lock()
	defer c.layersMu.Unlock()

	for i, layer := range c.layers {
		if layer.ID == id {
			c.layers = append(c.layers[:i], c.layers[i+1:]...)
			return true
		}
	}
	return false
}

// Layer returns a copy of a layer's settings.
func (c *Compositor) Layer(id int) (CompositorLayer, bool) {
	c.layersMu.Lock()
	defer c.layersMu.Unlock()

	if l := c.find(id); l != nil {
		return CompositorLayer{
			ID: l.ID, Source: l.Source, X: l.X, Y: l.Y,
			Width: l.Width, Height: l.Height, ZOrder: l.ZOrder,
			Alpha: l.Alpha, Visible: l.Visible, FlipY: l.FlipY, Mover: l.Mover,
		}, true
	}
	return CompositorLayer{}, false
}

// LayerCount returns the number of layers.
func (c *Compositor) LayerCount() int {
	c.layersMu.Lock()
	defer c.layersMu.Unlock()
	return len(c.layers)
}

// SetLayerPosition updates the position of a layer.
func (c *Compositor) SetLayerPosition(id int, x, y float64) {
	c.update(id, func(l *CompositorLayer) { l.X, l.Y = x, y })
}

// SetLayerSize updates the drawn size of a layer.
func (c *Compositor) SetLayerSize(id, width, height int) {
	c.update(id, func(l *CompositorLayer) { l.Width, l.Height = width, height })
}

// SetLayerAlpha updates the opacity of a layer.
func (c *Compositor) SetLayerAlpha(id int, alpha float64) {
	c.update(id, func(l *CompositorLayer) { l.Alpha = alpha })
}

// SetLayerVisible updates the visibility of a layer.
func (c *Compositor) SetLayerVisible(id int, visible bool) {
	c.update(id, func(l *CompositorLayer) { l.Visible = visible })
}

// SetLayerFlip enables draw-time vertical flipping for a layer.
func (c *Compositor) SetLayerFlip(id int, flip bool) {
	c.update(id, func(l *CompositorLayer) { l.FlipY = flip })
}

// SetLayerMover attaches a per-frame mover to a layer.
func (c *Compositor) SetLayerMover(id int, m Mover) {
	c.update(id, func(l *CompositorLayer) { l.Mover = m })
}

// SetLayerZOrder updates the z-order of a layer.
func (c *Compositor) SetLayerZOrder(id, zorder int) {
	c.layersMu.Lock()
	defer c.layersMu.Unlock()

	if l := c.find(id); l != nil {
		l.ZOrder = zorder
		c.sortLayers()
	}
}

// CenterLayer places a layer in the middle of the canvas.
func (c *Compositor) CenterLayer(id int) {
	c.update(id, func(l *CompositorLayer) {
		w, h := l.drawSize()
		l.X = float64(c.config.Width-w) / 2
		l.Y = float64(c.config.Height-h) / 2
	})
}

func (c *Compositor) update(id int, fn func(*CompositorLayer)) {
	c.layersMu.Lock()
	defer c.layersMu.Unlock()

	if l := c.find(id); l != nil {
		fn(l)
	}
}

func (c *Compositor) find(id int) *CompositorLayer {
	for _, l := range c.layers {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (c *Compositor) sortLayers() {
	sort.SliceStable(c.layers, func(i, j int) bool {
		return c.layers[i].ZOrder < c.layers[j].ZOrder
	})
}

func (l *CompositorLayer) drawSize() (int, int) {
	w, h := l.Width, l.Height
	if l.Source != nil {
		if w <= 0 {
			w = l.Source.Width()
		}
		if h <= 0 {
			h = l.Source.Height()
		}
	}
	return w, h
}

// Compose clears dc and draws every visible layer in z-order, followed by
// the progress bar when the clock has a known duration.
func (c *Compositor) Compose(dc *gg.Context, clock ClockSnapshot) error {
	if dc == nil {
		return fmt.Errorf("compose: nil context")
	}
	dc.ClearWithColor(c.config.Background)

	c.layersMu.Lock()
	defer c.layersMu.Unlock()

	for _, l := range c.layers {
		if l.Mover != nil {
			l.Mover.Move(l, dc.Width(), dc.Height())
		}
		if !l.Visible || l.Source == nil || l.Alpha <= 0 {
			continue
		}
		if !c.upload(l) {
			continue
		}
		w, h := l.drawSize()
		interp := gg.InterpBilinear
		if w == l.buf.Width() && h == l.buf.Height() {
			interp = gg.InterpNearest
		}
		dc.DrawImageEx(l.buf, gg.DrawImageOptions{
			X:             l.X,
			Y:             l.Y,
			DstWidth:      float64(w),
			DstHeight:     float64(h),
			Interpolation: interp,
			Opacity:       l.Alpha,
			BlendMode:     gg.BlendNormal,
		})
	}

	if c.config.Progress.Enabled {
		if ratio, ok := clock.Progress(); ok {
			c.drawProgress(dc, ratio)
		}
	}
	c.composed++
	return nil
}

// upload copies the layer's framebuffer into its image buffer when the
// framebuffer changed since the last upload.
func (c *Compositor) upload(l *CompositorLayer) bool {
	fb := l.Source
	if fb.Pix() == nil {
		// GPU-backed framebuffers, FBO 0 included, are sampled by the host
		// toolkit directly.
		return false
	}
	if err := fb.BeginRead(); err != nil {
		return l.uploaded
	}
	defer fb.EndRead()

	gen := fb.Generation()
	if l.uploaded && gen == l.uploadGen && l.FlipY == l.uploadFlip {
		return true
	}
	if gen == 0 {
		// Nothing rendered yet.
		return false
	}

	w, h := fb.Size()
	if l.buf == nil || l.buf.Width() != w || l.buf.Height() != h {
		buf, err := gg.NewImageBuf(w, h, gg.FormatRGBA8)
		if err != nil {
			return false
		}
		l.buf = buf
	}
	copyToRGBA(l.buf, fb, l.FlipY)
	l.uploadGen = gen
	l.uploadFlip = l.FlipY
	l.uploaded = true
	return true
}

// copyToRGBA converts framebuffer rows into opaque RGBA rows, optionally in
// reverse order.
func copyToRGBA(dst *gg.ImageBuf, fb *Framebuffer, flip bool) {
	w, h := fb.Size()
	pix, stride, format := fb.Pix(), fb.Stride(), fb.Format()
	rowBytes := w * 4

	for y := 0; y < h; y++ {
		sy := y
		if flip {
			sy = h - 1 - y
		}
		src := pix[sy*stride : sy*stride+rowBytes]
		out := dst.RowBytes(y)
		switch format {
		case PixelFormatBGR0:
			for i := 0; i < rowBytes; i += 4 {
				out[i+0] = src[i+2]
				out[i+1] = src[i+1]
				out[i+2] = src[i+0]
				out[i+3] = 0xff
			}
		case PixelFormatRGBA:
			copy(out, src)
		default:
			copy(out, src)
			for i := 3; i < rowBytes; i += 4 {
				out[i] = 0xff
			}
		}
	}
}

func (c *Compositor) drawProgress(dc *gg.Context, ratio float64) {
	p := c.config.Progress
	width := float64(dc.Width())
	top := float64(dc.Height()) - p.Height

	dc.SetRGBA(p.Track.R, p.Track.G, p.Track.B, p.Track.A)
	dc.DrawRectangle(0, top, width, p.Height)
	_ = dc.Fill()

	if ratio > 0 {
		dc.SetRGBA(p.Fill.R, p.Fill.G, p.Fill.B, p.Fill.A)
		dc.DrawRectangle(0, top, width*ratio, p.Height)
		_ = dc.Fill()
	}
}

// Composed returns the number of completed Compose calls.
func (c *Compositor) Composed() uint64 { return c.composed }

// BounceMover moves a layer at a constant velocity and reflects it off the
// canvas edges. A velocity component flips only while it points past an edge,
// so a layer placed outside the canvas walks back in.
type BounceMover struct {
	VX, VY float64
}

// Move implements Mover.
func (b *BounceMover) Move(l *CompositorLayer, canvasWidth, canvasHeight int) {
	w, h := l.drawSize()
	maxX, maxY := float64(canvasWidth-w), float64(canvasHeight-h)
	if (l.Y <= 0 && b.VY < 0) || (l.Y >= maxY && b.VY > 0) {
		b.VY = -b.VY
	}
	if (l.X <= 0 && b.VX < 0) || (l.X >= maxX && b.VX > 0) {
		b.VX = -b.VX
	}
	l.X += b.VX
	l.Y += b.VY
}
