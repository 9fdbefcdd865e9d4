// Package config loads mpvframe settings from defaults, an optional YAML
// file, MPVFRAME_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/mpvframe"
)

// EnvPrefix prefixes environment overrides, e.g. MPVFRAME_WIDTH.
const EnvPrefix = "MPVFRAME"

// Config is the effective configuration of a run.
type Config struct {
	Engine     string            `mapstructure:"engine" yaml:"engine"`
	Media      string            `mapstructure:"media" yaml:"media"`
	Mode       string            `mapstructure:"mode" yaml:"mode"`
	Width      int               `mapstructure:"width" yaml:"width"`
	Height     int               `mapstructure:"height" yaml:"height"`
	Format     string            `mapstructure:"format" yaml:"format"`
	FlipStage  string            `mapstructure:"flip_stage" yaml:"flip_stage"`
	FPS        int               `mapstructure:"fps" yaml:"fps"`
	Progress   bool              `mapstructure:"progress" yaml:"progress"`
	Bounce     bool              `mapstructure:"bounce" yaml:"bounce"`
	ExitOnEOF  bool              `mapstructure:"exit_on_eof" yaml:"exit_on_eof"`
	Background string            `mapstructure:"background" yaml:"background"`
	Options    map[string]string `mapstructure:"options" yaml:"options,omitempty"`
	Log        LogConfig         `mapstructure:"log" yaml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Engine:     mpvframe.EngineAuto,
		Mode:       "advanced",
		Width:      1280,
		Height:     720,
		Format:     "rgb0",
		FlipStage:  "render",
		FPS:        60,
		Progress:   true,
		ExitOnEOF:  true,
		Background: "#f5f5f5",
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("engine", d.Engine)
	v.SetDefault("media", d.Media)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("format", d.Format)
	v.SetDefault("flip_stage", d.FlipStage)
	v.SetDefault("fps", d.FPS)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("bounce", d.Bounce)
	v.SetDefault("exit_on_eof", d.ExitOnEOF)
	v.SetDefault("background", d.Background)
	v.SetDefault("options", map[string]string{})
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and returns the validated configuration. An
// explicit path must exist; otherwise mpvframe.yaml is looked up in the
// working directory and $HOME/.config/mpvframe and may be absent.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mpvframe")
		v.SetConfigType("yaml")
		for _, p := range []string{".", "$HOME/.config/mpvframe"} {
			v.AddConfigPath(os.ExpandEnv(p))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Engine {
	case mpvframe.EngineMPV, mpvframe.EnginePattern, mpvframe.EngineAuto:
	default:
		return fmt.Errorf("engine: unknown engine %q", c.Engine)
	}
	if _, err := mpvframe.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	if _, err := mpvframe.ParseFlipStage(c.FlipStage); err != nil {
		return fmt.Errorf("flip_stage: %w", err)
	}
	if _, ok := mpvframe.ParsePixelFormat(c.Format); !ok {
		return fmt.Errorf("format: unknown pixel format %q", c.Format)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("size: %w: %dx%d", mpvframe.ErrInvalidDimensions, c.Width, c.Height)
	}
	if c.FPS < 0 {
		return fmt.Errorf("fps: must not be negative, got %d", c.FPS)
	}
	if c.Background != "" && !isHexColor(c.Background) {
		return fmt.Errorf("background: invalid hex color %q", c.Background)
	}
	return nil
}

// isHexColor accepts the forms gg.Hex parses: RGB, RGBA, RRGGBB and
// RRGGBBAA, with an optional leading '#'.
func isHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 3, 4, 6, 8:
	default:
		return false
	}
	_, err := strconv.ParseUint(s, 16, 32)
	return err == nil
}

// SessionConfig converts c to the library session configuration. Extra
// options follow the mode defaults, sorted by name.
func (c Config) SessionConfig() (mpvframe.SessionConfig, error) {
	mode, err := mpvframe.ParseMode(c.Mode)
	if err != nil {
		return mpvframe.SessionConfig{}, err
	}
	flip, err := mpvframe.ParseFlipStage(c.FlipStage)
	if err != nil {
		return mpvframe.SessionConfig{}, err
	}
	format, ok := mpvframe.ParsePixelFormat(c.Format)
	if !ok {
		return mpvframe.SessionConfig{}, fmt.Errorf("unknown pixel format %q", c.Format)
	}

	sc := mpvframe.DefaultSessionConfig()
	sc.Media = c.Media
	sc.Width, sc.Height = c.Width, c.Height
	sc.Format = format
	sc.Mode = mode
	sc.Flip = flip
	sc.Options = mpvframe.DefaultOptions(mode)

	names := make([]string, 0, len(c.Options))
	for name := range c.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sc.Options = append(sc.Options, mpvframe.Option{Name: name, Value: c.Options[name]})
	}
	return sc, nil
}

// CompositorConfig converts c to the compositor configuration.
func (c Config) CompositorConfig() mpvframe.CompositorConfig {
	cc := mpvframe.DefaultCompositorConfig()
	cc.Width, cc.Height = c.Width, c.Height
	if c.Background != "" {
		cc.Background = gg.Hex(c.Background)
	}
	cc.Progress.Enabled = c.Progress
	return cc
}

// YAML renders c as a YAML document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
