package mpvframe

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
	PatternMarker                          // Red top band over blue, for orientation checks
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternNoise:
		return "Noise"
	case PatternMovingBox:
		return "MovingBox"
	case PatternMarker:
		return "Marker"
	default:
		return "Unknown"
	}
}

var patternNames = map[string]PatternType{
	"colorbars":    PatternColorBars,
	"gradient":     PatternGradient,
	"checkerboard": PatternCheckerboard,
	"solid":        PatternSolidColor,
	"noise":        PatternNoise,
	"movingbox":    PatternMovingBox,
	"marker":       PatternMarker,
}

// PatternMedia describes a synthetic clip played by PatternEngine.
type PatternMedia struct {
	Pattern PatternType
	Length  time.Duration // Clip length (default: 5s)
	FPS     int           // Frames per second (default: 30)

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern
	CheckerSize int // Size of each checker square (default: 32)
}

// Duration returns the clip length in seconds.
func (m PatternMedia) Duration() float64 { return m.Length.Seconds() }

// Animated reports whether frames differ over time.
func (m PatternMedia) Animated() bool {
	return m.Pattern == PatternMovingBox || m.Pattern == PatternNoise
}

// ParsePatternURL parses pattern://<type>?length=S&fps=N[&color=RRGGBB][&size=N].
func ParsePatternURL(raw string) (PatternMedia, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PatternMedia{}, err
	}
	if u.Scheme != "pattern" {
		return PatternMedia{}, fmt.Errorf("not a pattern url: %q", raw)
	}
	name := u.Host
	if name == "" {
		name = u.Opaque
	}
	pt, ok := patternNames[strings.ToLower(name)]
	if !ok {
		return PatternMedia{}, fmt.Errorf("unknown pattern %q", name)
	}

	m := PatternMedia{
		Pattern:     pt,
		Length:      5 * time.Second,
		FPS:         30,
		CheckerSize: 32,
		SolidR:      0x80, SolidG: 0x80, SolidB: 0x80,
	}
	q := u.Query()
	if v := q.Get("length"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		// The product must stay below 2^63 to fit a time.Duration.
		if err != nil || !(secs > 0 && secs*float64(time.Second) < math.MaxInt64) {
			return PatternMedia{}, fmt.Errorf("invalid length %q", v)
		}
		m.Length = time.Duration(secs * float64(time.Second))
	}
	if v := q.Get("fps"); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil || fps <= 0 || fps > 1000 {
			return PatternMedia{}, fmt.Errorf("invalid fps %q", v)
		}
		m.FPS = fps
	}
	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return PatternMedia{}, fmt.Errorf("invalid size %q", v)
		}
		m.CheckerSize = size
	}
	if v := q.Get("color"); v != "" {
		c, err := strconv.ParseUint(strings.TrimPrefix(v, "#"), 16, 32)
		if err != nil || len(strings.TrimPrefix(v, "#")) != 6 {
			return PatternMedia{}, fmt.Errorf("invalid color %q", v)
		}
		m.SolidR, m.SolidG, m.SolidB = uint8(c>>16), uint8(c>>8), uint8(c)
	}
	return m, nil
}

// OpenPatternMedia resolves a loadfile argument: either a pattern URL or a
// file whose first non-comment line is one.
func OpenPatternMedia(target string) (PatternMedia, error) {
	if strings.HasPrefix(target, "pattern:") {
		return ParsePatternURL(target)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return PatternMedia{}, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return ParsePatternURL(line)
	}
	return PatternMedia{}, fmt.Errorf("%s: no pattern url", target)
}

// patternPainter renders PatternMedia frames into a top-down RGBX scratch
// image, regenerating only when the picture changes.
type patternPainter struct {
	width, height int
	pix           []byte // width*4 bytes per row

	media    PatternMedia
	frame    uint64
	valid    bool
	rngState uint64
}

func (p *patternPainter) paint(m PatternMedia, frame uint64, width, height int) []byte {
	if p.width != width || p.height != height {
		p.width, p.height = width, height
		p.pix = make([]byte, width*height*4)
		p.valid = false
	}
	if p.valid && p.media == m && (!m.Animated() || p.frame == frame) {
		return p.pix
	}
	p.media, p.frame, p.valid = m, frame, true

	switch m.Pattern {
	case PatternColorBars:
		p.generateColorBars()
	case PatternGradient:
		p.generateGradient()
	case PatternCheckerboard:
		p.generateCheckerboard(m.CheckerSize)
	case PatternSolidColor:
		p.fill(m.SolidR, m.SolidG, m.SolidB)
	case PatternNoise:
		p.generateNoise(frame)
	case PatternMovingBox:
		p.generateMovingBox(frame)
	case PatternMarker:
		p.generateMarker()
	default:
		p.generateColorBars()
	}
	return p.pix
}

func (p *patternPainter) set(x, y int, r, g, b uint8) {
	i := (y*p.width + x) * 4
	p.pix[i+0] = r
	p.pix[i+1] = g
	p.pix[i+2] = b
	p.pix[i+3] = 0xff
}

func (p *patternPainter) fill(r, g, b uint8) {
	for i := 0; i < len(p.pix); i += 4 {
		p.pix[i+0] = r
		p.pix[i+1] = g
		p.pix[i+2] = b
		p.pix[i+3] = 0xff
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (p *patternPainter) generateColorBars() {
	w, h := p.width, p.height
	barWidth := max(w/8, 1)
	for x := 0; x < w; x++ {
		rgb := colorBarsRGB[min(x/barWidth, 7)]
		p.set(x, 0, rgb[0], rgb[1], rgb[2])
	}
	p.repeatFirstRow(h)
}

func (p *patternPainter) generateGradient() {
	w, h := p.width, p.height
	for x := 0; x < w; x++ {
		v := uint8((x * 255) / w)
		p.set(x, 0, v, v, v)
	}
	p.repeatFirstRow(h)
}

func (p *patternPainter) repeatFirstRow(h int) {
	row := p.width * 4
	for y := 1; y < h; y++ {
		copy(p.pix[y*row:(y+1)*row], p.pix[:row])
	}
}

func (p *patternPainter) generateCheckerboard(size int) {
	if size <= 0 {
		size = 32
	}
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			if ((x/size)+(y/size))%2 == 0 {
				p.set(x, y, 235, 235, 235)
			} else {
				p.set(x, y, 16, 16, 16)
			}
		}
	}
}

func (p *patternPainter) generateNoise(frame uint64) {
	// xorshift64, seeded per frame so repeated renders of a frame match
	p.rngState = 0x9e3779b97f4a7c15 ^ (frame + 1)
	for i := 0; i < len(p.pix); i += 4 {
		p.rngState ^= p.rngState << 13
		p.rngState ^= p.rngState >> 7
		p.rngState ^= p.rngState << 17
		v := uint8(p.rngState)
		p.pix[i+0], p.pix[i+1], p.pix[i+2], p.pix[i+3] = v, v, v, 0xff
	}
}

func (p *patternPainter) generateMovingBox(frame uint64) {
	w, h := p.width, p.height
	p.fill(16, 16, 16)

	// Box moves in a circle around the center
	boxSize := max(min(w, h)/7, 1)
	radius := float64(min(w, h)) / 4
	angle := float64(frame) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			p.set(x, y, 235, 235, 235)
		}
	}
}

func (p *patternPainter) generateMarker() {
	band := max(p.height/8, 1)
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			if y < band {
				p.set(x, y, 255, 0, 0)
			} else {
				p.set(x, y, 0, 0, 255)
			}
		}
	}
}

// copyPattern writes a top-down RGBX picture into dst in dst's pixel format,
// reversing the row order when bottomUp is set.
func copyPattern(dst *Framebuffer, src []byte, bottomUp bool) {
	w, h := dst.Size()
	pix, stride := dst.Pix(), dst.Stride()
	row := w * 4
	for y := 0; y < h; y++ {
		dy := y
		if bottomUp {
			dy = h - 1 - y
		}
		s := src[y*row : (y+1)*row]
		d := pix[dy*stride : dy*stride+row]
		if dst.Format() == PixelFormatBGR0 {
			for i := 0; i < row; i += 4 {
				d[i+0], d[i+1], d[i+2], d[i+3] = s[i+2], s[i+1], s[i+0], s[i+3]
			}
			continue
		}
		copy(d, s)
	}
}
