package cli

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/image/draw"

	"github.com/thesyncim/mpvframe"
)

type renderOptions struct {
	Frames     int
	Out        string
	ThumbWidth int
	Timeout    time.Duration
}

func newRenderCommand(a *app) *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [media]",
		Short: "Render frames offscreen and save the last one",
		Example: `  mpvframe render --frames 120 --out frame.png movie.mkv
  mpvframe render --engine pattern --fps 0 --out bars.png --thumb-width 160 pattern://colorbars`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender(cmd.Context(), cmd.OutOrStdout(), firstArg(args), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Frames, "frames", 60, "Number of frames to present")
	flags.StringVar(&opts.Out, "out", "", "Write the last composited frame to this PNG file")
	flags.IntVar(&opts.ThumbWidth, "thumb-width", 0, "Also write a thumbnail of this width next to --out")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Give up after this long (0 = no limit)")
	return cmd
}

func (a *app) runRender(ctx context.Context, w io.Writer, media string, opts renderOptions) error {
	if opts.Frames <= 0 {
		return fmt.Errorf("--frames must be positive")
	}
	if opts.ThumbWidth > 0 && opts.Out == "" {
		return fmt.Errorf("--thumb-width needs --out")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	host := mpvframe.NewOffscreenHost(mpvframe.OffscreenConfig{
		Width:     a.cfg.Width,
		Height:    a.cfg.Height,
		FPS:       a.cfg.FPS,
		MaxFrames: opts.Frames,
	})
	defer host.Close()

	session, engine, err := a.open(media, host)
	if err != nil {
		return err
	}
	defer session.Close()

	player := mpvframe.NewPlayer(session, a.newScene(session), mpvframe.PlayerConfig{
		ExitOnEOF: a.cfg.ExitOnEOF,
	})
	start := time.Now()
	if err := player.Run(ctx, host); err != nil {
		return err
	}
	elapsed := time.Since(start)

	snap := host.Snapshot()
	if opts.Out != "" {
		if err := writePNG(opts.Out, snap); err != nil {
			return err
		}
		if opts.ThumbWidth > 0 {
			thumbPath := thumbnailPath(opts.Out)
			if err := writePNG(thumbPath, thumbnail(snap, opts.ThumbWidth)); err != nil {
				return err
			}
		}
	}

	stats := session.Handoff().Stats()
	printf(w, "engine=%s mode=%s frames=%d renders=%d render_errors=%d elapsed=%s\n",
		engine, session.Config().Mode, player.Frames(), stats.Renders, stats.RenderErrors,
		elapsed.Round(time.Millisecond))
	if ratio, ok := session.Clock().Progress(); ok {
		printf(w, "progress=%.1f%%\n", ratio*100)
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// thumbnail scales img to width, keeping the aspect ratio.
func thumbnail(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	height := max(b.Dy()*width/max(b.Dx(), 1), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func thumbnailPath(out string) string {
	return strings.TrimSuffix(out, ".png") + "-thumb.png"
}
