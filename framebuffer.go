package mpvframe

import (
	"fmt"
	"sync/atomic"
)

type fbState int32

const (
	fbIdle fbState = iota
	fbWriting
	fbReading
	fbReleased
)

// Framebuffer is the shared color target a RenderBridge draws into and the
// host samples from. Ownership alternates: the bridge holds it between
// BeginWrite/EndWrite, the host between BeginRead/EndRead, never both.
//
// A Framebuffer is either CPU-backed (Pix != nil, used by the software render
// API) or GPU-backed (FBO != 0, used by the OpenGL render API).
type Framebuffer struct {
	width  int
	height int
	stride int
	format PixelFormat
	pix    []byte
	fbo    uint32

	state      atomic.Int32
	generation atomic.Uint64
}

// NewFramebuffer allocates a CPU-backed framebuffer.
func NewFramebuffer(width, height int, format PixelFormat) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported pixel format %v", format)
	}
	stride := alignStride(width * bpp)
	return &Framebuffer{
		width:  width,
		height: height,
		stride: stride,
		format: format,
		pix:    make([]byte, stride*height),
	}, nil
}

// NewGLFramebuffer wraps a host-owned OpenGL framebuffer object.
func NewGLFramebuffer(fbo uint32, width, height int) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Framebuffer{
		width:  width,
		height: height,
		format: PixelFormatRGBA,
		fbo:    fbo,
	}, nil
}

// Size returns the pixel dimensions.
func (f *Framebuffer) Size() (width, height int) { return f.width, f.height }

// Width returns the width in pixels.
func (f *Framebuffer) Width() int { return f.width }

// Height returns the height in pixels.
func (f *Framebuffer) Height() int { return f.height }

// Stride returns the number of bytes per row, including padding.
func (f *Framebuffer) Stride() int { return f.stride }

// Format returns the pixel layout.
func (f *Framebuffer) Format() PixelFormat { return f.format }

// FBO returns the OpenGL framebuffer object id, or 0 for CPU-backed buffers.
func (f *Framebuffer) FBO() uint32 { return f.fbo }

// Pix returns the pixel storage. Callers must hold write or read ownership.
func (f *Framebuffer) Pix() []byte { return f.pix }

// Generation counts completed writes. The host uses it to skip re-uploading
// an unchanged picture.
func (f *Framebuffer) Generation() uint64 { return f.generation.Load() }

// BeginWrite takes write ownership for a render call.
func (f *Framebuffer) BeginWrite() error {
	return f.acquire(fbWriting)
}

// EndWrite returns write ownership and publishes a new generation.
func (f *Framebuffer) EndWrite() {
	if f.state.CompareAndSwap(int32(fbWriting), int32(fbIdle)) {
		f.generation.Add(1)
	}
}

// AbortWrite returns write ownership without publishing a new generation.
func (f *Framebuffer) AbortWrite() {
	f.state.CompareAndSwap(int32(fbWriting), int32(fbIdle))
}

// BeginRead takes read ownership for compositing.
func (f *Framebuffer) BeginRead() error {
	return f.acquire(fbReading)
}

// EndRead returns read ownership.
func (f *Framebuffer) EndRead() {
	f.state.CompareAndSwap(int32(fbReading), int32(fbIdle))
}

func (f *Framebuffer) acquire(to fbState) error {
	if f.state.CompareAndSwap(int32(fbIdle), int32(to)) {
		return nil
	}
	if fbState(f.state.Load()) == fbReleased {
		return ErrFramebufferReleased
	}
	return ErrFramebufferBusy
}

// Release marks the framebuffer as freed. It fails while either role holds
// ownership. Releasing twice is a no-op.
func (f *Framebuffer) Release() error {
	if f.state.CompareAndSwap(int32(fbIdle), int32(fbReleased)) {
		f.pix = nil
		return nil
	}
	if fbState(f.state.Load()) == fbReleased {
		return nil
	}
	return ErrFramebufferBusy
}

// Released reports whether Release has completed.
func (f *Framebuffer) Released() bool {
	return fbState(f.state.Load()) == fbReleased
}

// FlipRows mirrors an image vertically in place.
func FlipRows(pix []byte, stride, height int) {
	if stride <= 0 || height < 2 || len(pix) < stride*height {
		return
	}
	tmp := make([]byte, stride)
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// fillAlpha sets the fourth byte of every pixel to opaque. libmpv renders
// rgba targets as rgb0 and leaves that byte undefined.
func fillAlpha(pix []byte, stride, width, height int) {
	if len(pix) < stride*height {
		return
	}
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*4]
		for i := 3; i < len(row); i += 4 {
			row[i] = 0xff
		}
	}
}
