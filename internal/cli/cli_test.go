package cli

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command in an empty working directory so no stray
// mpvframe.yaml is picked up.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func testdata(t *testing.T, name string) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	return path
}

func TestRenderPattern(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bars.png")

	stdout, err := run(t, "render",
		"--engine", "pattern",
		"--width", "320", "--height", "180",
		"--fps", "0",
		"--frames", "20",
		"--out", out,
		"--thumb-width", "64",
		"pattern://colorbars?length=5")
	require.NoError(t, err)
	assert.Contains(t, stdout, "engine=pattern")
	assert.Contains(t, stdout, "frames=20")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())

	// First bar is 75% white.
	r, g, b, _ := img.At(10, 60).RGBA()
	assert.InDelta(t, 192, r>>8, 2)
	assert.InDelta(t, 192, g>>8, 2)
	assert.InDelta(t, 192, b>>8, 2)

	thumb, err := os.Open(filepath.Join(dir, "bars-thumb.png"))
	require.NoError(t, err)
	defer thumb.Close()
	timg, err := png.Decode(thumb)
	require.NoError(t, err)
	assert.Equal(t, 64, timg.Bounds().Dx())
	assert.Equal(t, 36, timg.Bounds().Dy())
}

func TestRenderPatternFile(t *testing.T) {
	stdout, err := run(t, "render",
		"--engine", "pattern",
		"--width", "160", "--height", "90",
		"--fps", "0",
		"--frames", "5",
		testdata(t, "movingbox.pattern"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "mode=advanced")
}

func TestRenderBounce(t *testing.T) {
	stdout, err := run(t, "render",
		"--engine", "pattern",
		"--bounce",
		"--fps", "0",
		"--frames", "10",
		"pattern://solid?color=ff0000")
	require.NoError(t, err)
	assert.Contains(t, stdout, "frames=10")
}

func TestRenderLoadFailure(t *testing.T) {
	_, err := run(t, "render",
		"--engine", "pattern",
		"--fps", "0",
		"--frames", "100",
		filepath.Join(t.TempDir(), "missing.pattern"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")
}

func TestRenderNoMedia(t *testing.T) {
	_, err := run(t, "render", "--engine", "pattern")
	assert.ErrorContains(t, err, "no media")
}

func TestRenderFlags(t *testing.T) {
	_, err := run(t, "render", "--engine", "pattern", "--frames", "0", "pattern://solid")
	assert.ErrorContains(t, err, "--frames")

	_, err = run(t, "render", "--engine", "pattern", "--thumb-width", "10", "pattern://solid")
	assert.ErrorContains(t, err, "--out")
}

func TestInvalidEngine(t *testing.T) {
	_, err := run(t, "render", "--engine", "vlc", "pattern://solid")
	assert.ErrorContains(t, err, "unknown engine")
}

func TestInvalidBackground(t *testing.T) {
	_, err := run(t, "render", "--background", "#12345", "pattern://solid")
	assert.ErrorContains(t, err, "invalid hex color")
}

func TestConfigCommand(t *testing.T) {
	stdout, err := run(t, "config", "--width", "640", "--flip-stage", "draw")
	require.NoError(t, err)
	assert.Contains(t, stdout, "engine: auto")
	assert.Contains(t, stdout, "width: 640")
	assert.Contains(t, stdout, "flip_stage: draw")
}

func TestConfigCommandFile(t *testing.T) {
	stdout, err := run(t, "config", "--config", testdata(t, "mpvframe.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "engine: pattern")
	assert.Contains(t, stdout, "format: bgr0")
	assert.Contains(t, stdout, "pattern-bottom-up")
}

func TestConfigCommandBounceBackground(t *testing.T) {
	stdout, err := run(t, "config", "--bounce")
	require.NoError(t, err)
	assert.Contains(t, stdout, "66bfff")

	stdout, err = run(t, "config", "--bounce", "--background", "#000000")
	require.NoError(t, err)
	assert.Contains(t, stdout, "000000")
	assert.NotContains(t, stdout, "66bfff")
}

func TestProbe(t *testing.T) {
	stdout, err := run(t, "probe", "--engine", "pattern")
	require.NoError(t, err)
	assert.Contains(t, stdout, "libmpv:")
	assert.Contains(t, stdout, "- pattern")
	assert.Contains(t, stdout, "selected: pattern")
}

func TestThumbnailPath(t *testing.T) {
	assert.Equal(t, "out-thumb.png", thumbnailPath("out.png"))
	assert.Equal(t, "frame-thumb.png", thumbnailPath("frame"))
}
