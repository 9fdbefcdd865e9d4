package mpvframe

// PixelFormat represents the byte layout of a Framebuffer.
type PixelFormat int

const (
	PixelFormatRGB0 PixelFormat = iota // R, G, B, padding (4 bytes per pixel)
	PixelFormatBGR0                    // B, G, R, padding (4 bytes per pixel)
	PixelFormatRGBA                    // R, G, B, A (4 bytes per pixel)
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGB0:
		return "rgb0"
	case PixelFormatBGR0:
		return "bgr0"
	case PixelFormatRGBA:
		return "rgba"
	default:
		return "Unknown"
	}
}

// BytesPerPixel returns the number of bytes per pixel for this format.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB0, PixelFormatBGR0, PixelFormatRGBA:
		return 4
	default:
		return 0
	}
}

// HasAlpha reports whether the fourth byte carries alpha rather than padding.
func (p PixelFormat) HasAlpha() bool { return p == PixelFormatRGBA }

// swFormatName returns the software-renderer format name understood by libmpv.
// RGBA is rendered as rgb0 since libmpv leaves the padding byte undefined.
func (p PixelFormat) swFormatName() string {
	switch p {
	case PixelFormatBGR0:
		return "bgr0"
	default:
		return "rgb0"
	}
}

// ParsePixelFormat parses a format name as printed by String.
func ParsePixelFormat(s string) (PixelFormat, bool) {
	switch s {
	case "rgb0", "":
		return PixelFormatRGB0, true
	case "bgr0":
		return PixelFormatBGR0, true
	case "rgba":
		return PixelFormatRGBA, true
	default:
		return 0, false
	}
}

// alignStride rounds a row size up to 64 bytes, the alignment libmpv's
// software renderer works fastest with.
func alignStride(rowBytes int) int {
	return (rowBytes + 63) &^ 63
}
