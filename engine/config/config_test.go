package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "settings.toml", `
[window]
title = "demo"
width = 1280
height = 720

[renderer]
vsync = "mailbox"
max_frames_in_flight = 3
fence_timeout = "250ms"
overflow = "reject"
compute_particles = false

[renderer.shaders]
quad_vertex = "shaders/quad.vert.spv"

[log]
level = "debug"
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, VSyncMailbox, cfg.Renderer.VSync)
	assert.Equal(t, uint32(3), cfg.Renderer.MaxFramesInFlight)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Renderer.FenceTimeout)
	assert.Equal(t, OverflowReject, cfg.Renderer.Overflow)
	assert.False(t, cfg.Renderer.ComputeParticles)
	assert.Equal(t, "shaders/quad.vert.spv", cfg.Renderer.Shaders.QuadVertex)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultRenderer().MaxQuads, cfg.Renderer.MaxQuads)
	assert.Equal(t, DefaultRenderer().Shaders.TextVertex, cfg.Renderer.Shaders.TextVertex)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, lvl)
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "settings.json", `{"renderer": {"vsync": "disabled", "max_quads": 64}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, VSyncDisabled, cfg.Renderer.VSync)
	assert.Equal(t, uint32(64), cfg.Renderer.MaxQuads)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", "[renderer]\nmax_frames_in_flight = 9\n"))
	assert.ErrorContains(t, err, "max_frames_in_flight")

	_, err = Load(writeFile(t, "bad.toml", "[renderer]\nvsync = \"sometimes\"\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "a: b"))
	assert.ErrorContains(t, err, "unsupported")
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Renderer.Overflow = OverflowReject
	require.NoError(t, Save(p, cfg))

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "lumen.toml"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, DefaultRenderer().Shaders, cfg.Renderer.Shaders)
	assert.Equal(t, OverflowClamp, cfg.Renderer.Overflow)
}
