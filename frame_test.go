package mpvframe

import (
	"errors"
	"testing"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatRGB0, "rgb0"},
		{PixelFormatBGR0, "bgr0"},
		{PixelFormatRGBA, "rgba"},
		{PixelFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
			if tt.format.BytesPerPixel() == 0 {
				return
			}
			parsed, ok := ParsePixelFormat(tt.want)
			if !ok || parsed != tt.format {
				t.Errorf("ParsePixelFormat(%q) = %v, %v", tt.want, parsed, ok)
			}
		})
	}
}

func TestPixelFormat_SoftwareName(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatRGB0, "rgb0"},
		{PixelFormatBGR0, "bgr0"},
		{PixelFormatRGBA, "rgb0"},
	}
	for _, tt := range tests {
		if got := tt.format.swFormatName(); got != tt.want {
			t.Errorf("%v.swFormatName() = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestNewFramebuffer(t *testing.T) {
	fb, err := NewFramebuffer(100, 10, PixelFormatRGB0)
	if err != nil {
		t.Fatalf("NewFramebuffer: %v", err)
	}
	if fb.Stride() != 448 {
		t.Errorf("Stride() = %d, want 448 (400 rounded up to 64)", fb.Stride())
	}
	if len(fb.Pix()) != fb.Stride()*10 {
		t.Errorf("len(Pix()) = %d, want %d", len(fb.Pix()), fb.Stride()*10)
	}

	for _, size := range [][2]int{{0, 10}, {10, 0}, {-1, 5}} {
		if _, err := NewFramebuffer(size[0], size[1], PixelFormatRGB0); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("NewFramebuffer(%d, %d) error = %v, want ErrInvalidDimensions", size[0], size[1], err)
		}
	}
	if _, err := NewFramebuffer(4, 4, PixelFormat(42)); err == nil {
		t.Error("NewFramebuffer with unknown format succeeded")
	}
}

func TestFramebufferOwnership(t *testing.T) {
	fb, _ := NewFramebuffer(4, 4, PixelFormatRGB0)

	if err := fb.BeginWrite(); err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := fb.BeginRead(); !errors.Is(err, ErrFramebufferBusy) {
		t.Errorf("BeginRead during write = %v, want ErrFramebufferBusy", err)
	}
	if err := fb.Release(); !errors.Is(err, ErrFramebufferBusy) {
		t.Errorf("Release during write = %v, want ErrFramebufferBusy", err)
	}
	fb.EndWrite()
	if fb.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", fb.Generation())
	}

	if err := fb.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	if err := fb.BeginWrite(); !errors.Is(err, ErrFramebufferBusy) {
		t.Errorf("BeginWrite during read = %v, want ErrFramebufferBusy", err)
	}
	fb.EndRead()

	// aborted writes do not publish
	_ = fb.BeginWrite()
	fb.AbortWrite()
	if fb.Generation() != 1 {
		t.Errorf("Generation() after abort = %d, want 1", fb.Generation())
	}

	if err := fb.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := fb.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if !fb.Released() || fb.Pix() != nil {
		t.Error("framebuffer not released")
	}
	if err := fb.BeginWrite(); !errors.Is(err, ErrFramebufferReleased) {
		t.Errorf("BeginWrite after release = %v, want ErrFramebufferReleased", err)
	}
}

func TestFlipRows(t *testing.T) {
	pix := []byte{1, 1, 2, 2, 3, 3}
	FlipRows(pix, 2, 3)
	want := []byte{3, 3, 2, 2, 1, 1}
	for i := range want {
		if pix[i] != want[i] {
			t.Fatalf("FlipRows = %v, want %v", pix, want)
		}
	}

	// short buffers are left alone
	short := []byte{1, 2}
	FlipRows(short, 2, 3)
	if short[0] != 1 || short[1] != 2 {
		t.Errorf("FlipRows modified a short buffer: %v", short)
	}
}

func TestFillAlpha(t *testing.T) {
	// 2x2 pixels, 12-byte stride: 4 padding bytes per row stay untouched
	pix := make([]byte, 24)
	fillAlpha(pix, 12, 2, 2)
	for y := 0; y < 2; y++ {
		row := pix[y*12 : (y+1)*12]
		for i, v := range row {
			want := byte(0)
			if i < 8 && i%4 == 3 {
				want = 0xff
			}
			if v != want {
				t.Fatalf("row %d byte %d = %#x, want %#x", y, i, v, want)
			}
		}
	}

	short := make([]byte, 8)
	fillAlpha(short, 12, 2, 2)
	for _, v := range short {
		if v != 0 {
			t.Fatal("fillAlpha wrote into a short buffer")
		}
	}
}

func TestEngineError(t *testing.T) {
	err := error(newEngineError("initialize", ErrorUninitialized))
	if got, want := err.Error(), "initialize: core not initialized (-3)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	wrapped := errors.Join(errors.New("context"), err)
	if !IsEngineCode(wrapped, ErrorUninitialized) {
		t.Error("IsEngineCode did not see through wrapping")
	}
	if IsEngineCode(wrapped, ErrorGeneric) {
		t.Error("IsEngineCode matched the wrong code")
	}
	if ErrorString(12345) != "unknown error" {
		t.Errorf("ErrorString(12345) = %q", ErrorString(12345))
	}
}
