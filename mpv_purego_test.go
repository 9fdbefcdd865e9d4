//go:build darwin || linux

package mpvframe

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"
	"unsafe"

	"github.com/gogpu/gg"
)

func TestCStringArray(t *testing.T) {
	argv, strs := cStringArray([]string{"loadfile", "movie.mkv"})
	if len(argv) != 3 || argv[2] != 0 {
		t.Fatalf("argv = %v, want two pointers and a NULL", argv)
	}
	for i, want := range []string{"loadfile", "movie.mkv"} {
		if got := goStringFromPtr(argv[i]); got != want {
			t.Errorf("argv[%d] = %q, want %q", i, got, want)
		}
		if strs[i][len(strs[i])-1] != 0 {
			t.Errorf("strs[%d] not NUL-terminated", i)
		}
	}
	if goStringFromPtr(0) != "" {
		t.Error("goStringFromPtr(0) not empty")
	}
}

func TestCallbackRegistry(t *testing.T) {
	var calls int
	id := registerNotifier(func() { calls++ })
	mpvNotifyHandler(id)
	mpvNotifyHandler(id + 1000) // unknown ids are ignored
	if calls != 1 {
		t.Errorf("notifier called %d times, want 1", calls)
	}

	name := cString("glGetString")
	rid := registerProcResolver(func(n string) uintptr {
		if n == "glGetString" {
			return 42
		}
		return 0
	})
	if got := mpvProcAddrHandler(rid, uintptr(unsafe.Pointer(&name[0]))); got != 42 {
		t.Errorf("proc address = %d, want 42", got)
	}

	unregisterCallback(id)
	unregisterCallback(rid)
	mpvNotifyHandler(id)
	if calls != 1 {
		t.Error("unregistered notifier still called")
	}
	if mpvProcAddrHandler(rid, uintptr(unsafe.Pointer(&name[0]))) != 0 {
		t.Error("unregistered resolver still called")
	}
}

func TestDecodeEndFileEvent(t *testing.T) {
	tests := []struct {
		name     string
		reason   int32
		code     int32
		wantCode int // 0 means no error
	}{
		{"eof", 0, 0, 0},
		{"stop", 2, ErrorLoadingFailed, 0},
		{"error", mpvEndFileReasonError, ErrorUnknownFormat, ErrorUnknownFormat},
		{"error without code", mpvEndFileReasonError, 0, ErrorLoadingFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ef := mpvEventEndFile{Reason: tt.reason, Error: tt.code}
			raw := mpvEvent{EventID: int32(EventEndFile), Data: uintptr(unsafe.Pointer(&ef))}
			ev := decodeEvent(&raw)
			runtime.KeepAlive(&ef)

			if ev.ID != EventEndFile {
				t.Fatalf("ID = %v", ev.ID)
			}
			if tt.wantCode == 0 {
				if ev.Err != nil {
					t.Errorf("Err = %v, want nil", ev.Err)
				}
				return
			}
			if !IsEngineCode(ev.Err, tt.wantCode) {
				t.Errorf("Err = %v, want code %d", ev.Err, tt.wantCode)
			}
		})
	}

	// the outer error field still reports failed replies
	raw := mpvEvent{EventID: int32(EventCommandReply), Error: ErrorCommand, ReplyUserdata: 9}
	if ev := decodeEvent(&raw); ev.ReplyUserdata != 9 || !IsEngineCode(ev.Err, ErrorCommand) {
		t.Errorf("command reply = %+v", ev)
	}
}

func TestMPVOpenGLRejectsCPUFramebuffer(t *testing.T) {
	fb, err := NewFramebuffer(64, 64, PixelFormatRGB0)
	if err != nil {
		t.Fatal(err)
	}
	b := &mpvRenderBridge{api: APIOpenGL}
	if err := b.Render(fb, RenderParams{}); !errors.Is(err, ErrUnsupportedTarget) {
		t.Errorf("Render = %v, want ErrUnsupportedTarget", err)
	}
}

func TestMPVSoftwareRender(t *testing.T) {
	if !IsMPVAvailable() {
		t.Skip("libmpv not available")
	}
	version, err := MPVVersion()
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("libmpv client API %s", version)

	for _, format := range []PixelFormat{PixelFormatRGB0, PixelFormatBGR0, PixelFormatRGBA} {
		t.Run(format.String(), func(t *testing.T) {
			host := NewOffscreenHost(OffscreenConfig{Width: 160, Height: 120, MaxFrames: 30, FPS: 60})
			defer host.Close()

			cfg := DefaultSessionConfig()
			cfg.Width, cfg.Height = 160, 120
			cfg.Format = format
			cfg.Media = "av://lavfi:testsrc=duration=2:size=160x120:rate=30"
			cfg.Options = append(DefaultOptions(ModeAdvanced),
				Option{Name: "terminal", Value: "no"},
				Option{Name: "msg-level", Value: "all=no"},
				Option{Name: "audio", Value: "no"})

			s, err := Open(MPVFactory(), host, cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if s.Flip().Flips() != 0 {
				t.Errorf("software renderer needs no flip, got %+v", s.Flip())
			}

			p := NewPlayer(s, NewCompositor(testCompositorConfig(160, 120)), PlayerConfig{ExitOnEOF: true})
			deadline := time.Now().Add(5 * time.Second)
			for !host.ShouldClose() && !p.Done() && time.Now().Before(deadline) {
				if err := p.Tick(host); err != nil {
					t.Fatal(err)
				}
			}
			if p.Err() != nil {
				t.Fatal(p.Err())
			}
			if s.Handoff().Stats().Renders == 0 {
				t.Fatal("libmpv rendered no frames")
			}

			if format.HasAlpha() {
				fb := s.Framebuffer()
				if err := fb.BeginRead(); err != nil {
					t.Fatal(err)
				}
				defer fb.EndRead()
				pix := fb.Pix()
				for y := 0; y < fb.Height(); y++ {
					for x := 0; x < fb.Width(); x++ {
						if a := pix[y*fb.Stride()+x*4+3]; a != 0xff {
							t.Fatalf("alpha at %d,%d = %#x, want opaque", x, y, a)
						}
					}
				}
			}
		})
	}
}

func TestMPVLoadFailure(t *testing.T) {
	if !IsMPVAvailable() {
		t.Skip("libmpv not available")
	}
	host := NewOffscreenHost(OffscreenConfig{Width: 64, Height: 64, MaxFrames: 300})
	defer host.Close()

	cfg := DefaultSessionConfig()
	cfg.Width, cfg.Height = 64, 64
	cfg.Media = filepath.Join(t.TempDir(), "missing.mkv")
	cfg.Options = append(DefaultOptions(ModeAdvanced),
		Option{Name: "terminal", Value: "no"},
		Option{Name: "msg-level", Value: "all=no"})

	s, err := Open(MPVFactory(), host, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	p := NewPlayer(s, NewCompositor(testCompositorConfig(64, 64)), PlayerConfig{})
	deadline := time.Now().Add(5 * time.Second)
	for !host.ShouldClose() && !p.Done() && time.Now().Before(deadline) {
		if err := p.Tick(host); err != nil {
			t.Fatal(err)
		}
	}
	if p.Err() == nil {
		t.Fatal("missing media did not fail the player")
	}
}

// BenchmarkPuregoCallOverhead measures the cost of crossing into libmpv.
func BenchmarkPuregoCallOverhead(b *testing.B) {
	if !IsMPVAvailable() {
		b.Skip("libmpv not available")
	}

	b.Run("ClientAPIVersion", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = mpvClientAPIVersion()
		}
	})

	b.Run("CreateDestroy", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			m, err := NewMPV()
			if err != nil {
				b.Fatal(err)
			}
			m.Destroy()
		}
	})

	b.Run("PollEmpty", func(b *testing.B) {
		m, err := NewMPV()
		if err != nil {
			b.Fatal(err)
		}
		defer m.Destroy()
		if err := m.Initialize(); err != nil {
			b.Fatal(err)
		}
		for m.PollEvent(0).ID != EventNone {
		}

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = m.PollEvent(0)
		}
	})
}

func BenchmarkCompose(b *testing.B) {
	fb, _ := NewFramebuffer(1280, 720, PixelFormatBGR0)
	c := NewCompositor(DefaultCompositorConfig())
	id := c.AddLayer(fb, 0, 0)
	c.SetLayerFlip(id, true)
	dc := gg.NewContext(1280, 720)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// a new generation forces a re-upload, as every video frame does
		_ = fb.BeginWrite()
		fb.EndWrite()
		if err := c.Compose(dc, ClockSnapshot{Duration: 10, Position: 5}); err != nil {
			b.Fatal(err)
		}
	}
}
