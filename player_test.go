package mpvframe

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openPattern(t *testing.T, host *OffscreenHost, cfg SessionConfig) *Session {
	t.Helper()
	s, err := Open(PatternEngineFactory(), host, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlayerEndToEnd(t *testing.T) {
	host := NewOffscreenHost(OffscreenConfig{Width: 1280, Height: 720, FPS: 120, MaxFrames: 60})
	defer host.Close()

	cfg := DefaultSessionConfig()
	cfg.Media = filepath.Join("testdata", "movingbox.pattern")
	s := openPattern(t, host, cfg)

	comp := NewCompositor(DefaultCompositorConfig())
	id := comp.AddLayer(s.Framebuffer(), 0, 0)
	comp.SetLayerFlip(id, s.Flip().DrawFlip)
	p := NewPlayer(s, comp, PlayerConfig{ExitOnEOF: true})

	last := -1.0
	for i := 0; i < 60 && !host.ShouldClose() && !p.Done(); i++ {
		if err := p.Tick(host); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		if ratio, ok := s.Clock().Progress(); ok {
			if ratio < last {
				t.Fatalf("progress went backwards: %v after %v", ratio, last)
			}
			last = ratio
		}
	}
	if last <= 0 {
		t.Errorf("progress never advanced (last %v)", last)
	}
	if s.Handoff().Stats().Renders == 0 {
		t.Fatal("nothing rendered")
	}

	// the moving box background differs from the canvas background
	img := host.Snapshot()
	bg := [3]uint8{0xf5, 0xf5, 0xf5}
	if got := rgbAt(img, 640, 360); near(got, bg) {
		t.Errorf("center pixel %v is still background", got)
	}
	if st := s.Handoff().Stats(); st.Swaps != uint64(p.Frames()) {
		t.Errorf("swaps %d != frames %d", st.Swaps, p.Frames())
	}
}

func TestPlayerExitOnEOF(t *testing.T) {
	host := NewOffscreenHost(OffscreenConfig{Width: 64, Height: 64, FPS: 200})
	defer host.Close()

	cfg := DefaultSessionConfig()
	cfg.Width, cfg.Height = 64, 64
	cfg.Media = "pattern://solid?length=0.05&fps=100"
	s := openPattern(t, host, cfg)

	p := NewPlayer(s, NewCompositor(testCompositorConfig(64, 64)), PlayerConfig{ExitOnEOF: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Run(ctx, host); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !p.Ended() || !p.Done() {
		t.Errorf("ended=%v done=%v", p.Ended(), p.Done())
	}
	if ratio, ok := s.Clock().Progress(); !ok || ratio != 1 {
		t.Errorf("final progress = %v, %v", ratio, ok)
	}
}

func TestPlayerLoadFailure(t *testing.T) {
	host := NewOffscreenHost(OffscreenConfig{Width: 64, Height: 64, MaxFrames: 100})
	defer host.Close()

	cfg := DefaultSessionConfig()
	cfg.Width, cfg.Height = 64, 64
	cfg.Media = filepath.Join(t.TempDir(), "missing.pattern")
	s := openPattern(t, host, cfg)

	p := NewPlayer(s, NewCompositor(testCompositorConfig(64, 64)), PlayerConfig{})
	err := p.Run(context.Background(), host)
	if !IsEngineCode(err, ErrorLoadingFailed) {
		t.Fatalf("Run error = %v, want loading failed", err)
	}
	if p.Err() == nil {
		t.Error("Err() = nil")
	}
}

func TestPlayerMarkerFlippedOnce(t *testing.T) {
	for _, stage := range []FlipStage{FlipAtRender, FlipAtDraw} {
		for _, mode := range []Mode{ModeBlocking, ModeAdvanced} {
			t.Run(stage.String()+"/"+mode.String(), func(t *testing.T) {
				host := NewOffscreenHost(OffscreenConfig{Width: 64, Height: 64, MaxFrames: 3})
				defer host.Close()

				cfg := DefaultSessionConfig()
				cfg.Width, cfg.Height = 64, 64
				cfg.Mode = mode
				cfg.Flip = stage
				cfg.Media = filepath.Join("testdata", "marker.pattern")
				cfg.Options = append(DefaultOptions(mode), Option{Name: "pattern-bottom-up", Value: "yes"})
				s := openPattern(t, host, cfg)
				if s.Flip().Flips() != 1 {
					t.Fatalf("Flip() = %+v, want exactly one flip", s.Flip())
				}

				comp := NewCompositor(testCompositorConfig(64, 64))
				id := comp.AddLayer(s.Framebuffer(), 0, 0)
				comp.SetLayerFlip(id, s.Flip().DrawFlip)
				p := NewPlayer(s, comp, PlayerConfig{})
				if err := p.Run(context.Background(), host); err != nil {
					t.Fatal(err)
				}

				img := host.Snapshot()
				if top := rgbAt(img, 32, 1); !near(top, [3]uint8{255, 0, 0}) {
					t.Errorf("top = %v, want red", top)
				}
				if bottom := rgbAt(img, 32, 62); !near(bottom, [3]uint8{0, 0, 255}) {
					t.Errorf("bottom = %v, want blue", bottom)
				}
			})
		}
	}
}

func TestPlayerTickAfterClose(t *testing.T) {
	host := NewOffscreenHost(OffscreenConfig{Width: 64, Height: 64})
	defer host.Close()

	cfg := DefaultSessionConfig()
	cfg.Width, cfg.Height = 64, 64
	s, err := Open(PatternEngineFactory(), host, cfg)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPlayer(s, NewCompositor(testCompositorConfig(64, 64)), PlayerConfig{})
	s.Close()
	if err := p.Tick(host); err != ErrSessionClosed {
		t.Errorf("Tick after Close = %v, want ErrSessionClosed", err)
	}
	if host.LiveFramebuffers() != 0 {
		t.Errorf("%d framebuffers leaked", host.LiveFramebuffers())
	}
}
