// Package cli implements the mpvframe command-line interface.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gogpu/gg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/mpvframe"
	"github.com/thesyncim/mpvframe/config"
	"github.com/thesyncim/mpvframe/internal/logging"
)

// Window geometry of the bouncing-video scene.
const (
	bounceVideoWidth  = 192
	bounceVideoHeight = 144
	bounceSpeed       = 3
	bounceBackground  = "#66bfff"
)

// app holds state shared by the commands of one invocation.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

// NewRootCommand builds the mpvframe command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "mpvframe",
		Short: "Composite libmpv video frames into a gg canvas",
		Long: `mpvframe plays media through libmpv's render API and composites each frame
into a gogpu/gg scene, either in a window or offscreen.

When libmpv is not installed, the pattern engine plays synthetic clips such as
pattern://colorbars?length=5 or pattern://movingbox?fps=60.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default: ./mpvframe.yaml or $HOME/.config/mpvframe/mpvframe.yaml)")
	flags.String("engine", "auto", "Playback engine (mpv, pattern or auto)")
	flags.String("mode", "advanced", "Frame handoff mode (blocking or advanced)")
	flags.Int("width", 1280, "Canvas width")
	flags.Int("height", 720, "Canvas height")
	flags.String("format", "rgb0", "Framebuffer pixel format (rgb0, bgr0 or rgba)")
	flags.String("flip-stage", "render", "Where a needed vertical flip is applied (render or draw)")
	flags.Int("fps", 60, "Presentation rate for offscreen rendering (0 = unpaced)")
	flags.Bool("progress", true, "Draw the playback progress bar")
	flags.Bool("bounce", false, "Bounce a small video around the canvas")
	flags.Bool("exit-on-eof", true, "Stop when playback reaches the end of the media")
	flags.String("background", "#f5f5f5", "Canvas background color")
	flags.String("log-level", "info", "Log level (debug, info, warn or error)")
	flags.String("log-format", "auto", "Log format (auto, text or json)")

	for key, flag := range map[string]string{
		"engine":      "engine",
		"mode":        "mode",
		"width":       "width",
		"height":      "height",
		"format":      "format",
		"flip_stage":  "flip-stage",
		"fps":         "fps",
		"progress":    "progress",
		"bounce":      "bounce",
		"exit_on_eof": "exit-on-eof",
		"background":  "background",
		"log.level":   "log-level",
		"log.format":  "log-format",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		newPlayCommand(a),
		newRenderCommand(a),
		newProbeCommand(a),
		newConfigCommand(a),
	)
	return root
}

// load resolves the configuration and logger before any subcommand runs.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	if cfg.Bounce && !a.backgroundSet(cmd) {
		cfg.Background = bounceBackground
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
	})
	if err != nil {
		return err
	}
	a.logger = logger
	gg.SetLogger(logger.With("component", "gg"))
	return nil
}

// backgroundSet reports whether the background was chosen explicitly by flag,
// environment or config file.
func (a *app) backgroundSet(cmd *cobra.Command) bool {
	if f := cmd.Flag("background"); f != nil && f.Changed {
		return true
	}
	if _, ok := os.LookupEnv(config.EnvPrefix + "_BACKGROUND"); ok {
		return true
	}
	return a.v.InConfig("background")
}

// sessionConfig returns the session configuration for media.
func (a *app) sessionConfig(media string) (mpvframe.SessionConfig, error) {
	cfg := a.cfg
	if media != "" {
		cfg.Media = media
	}
	if cfg.Media == "" {
		return mpvframe.SessionConfig{}, fmt.Errorf("no media given")
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return mpvframe.SessionConfig{}, err
	}
	if cfg.Bounce {
		sc.Width, sc.Height = bounceVideoWidth, bounceVideoHeight
	}
	return sc, nil
}

// newScene builds the compositor for an open session.
func (a *app) newScene(s *mpvframe.Session) *mpvframe.Compositor {
	comp := mpvframe.NewCompositor(a.cfg.CompositorConfig())
	id := comp.AddLayer(s.Framebuffer(), 0, 0)
	comp.SetLayerFlip(id, s.Flip().DrawFlip)
	comp.CenterLayer(id)
	if a.cfg.Bounce {
		comp.SetLayerMover(id, &mpvframe.BounceMover{VX: bounceSpeed, VY: bounceSpeed})
	}
	return comp
}

// open selects the engine and opens a session backed by alloc.
func (a *app) open(media string, alloc mpvframe.FramebufferAllocator) (*mpvframe.Session, string, error) {
	factory, engine, err := mpvframe.SelectEngine(a.cfg.Engine)
	if err != nil {
		return nil, "", err
	}
	sc, err := a.sessionConfig(media)
	if err != nil {
		return nil, "", err
	}
	a.logger.Debug("opening session", "engine", engine, "media", sc.Media, "mode", sc.Mode.String())
	s, err := mpvframe.Open(factory, alloc, sc, mpvframe.WithLogger(a.logger.With("engine", engine)))
	if err != nil {
		return nil, "", fmt.Errorf("open %s engine: %w", engine, err)
	}
	return s, engine, nil
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
