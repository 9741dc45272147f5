// Package config loads engine settings from TOML or JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

// VSync selects the swapchain present mode.
type VSync uint8

const (
	VSyncDisabled VSync = iota
	VSyncEnabled
	VSyncMailbox
)

func (v VSync) String() string {
	switch v {
	case VSyncDisabled:
		return "disabled"
	case VSyncEnabled:
		return "enabled"
	case VSyncMailbox:
		return "mailbox"
	}
	return fmt.Sprintf("VSync(%d)", uint8(v))
}

func (v VSync) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *VSync) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "disabled", "off", "false":
		*v = VSyncDisabled
	case "enabled", "on", "true", "fifo":
		*v = VSyncEnabled
	case "mailbox":
		*v = VSyncMailbox
	default:
		return fmt.Errorf("unknown vsync mode %q", text)
	}
	return nil
}

// OverflowPolicy decides what happens when a frame carries more instances of
// a category than the renderer's buffers hold.
type OverflowPolicy uint8

const (
	// OverflowClamp drops the excess instances and logs a warning.
	OverflowClamp OverflowPolicy = iota
	// OverflowReject fails the frame before any GPU work.
	OverflowReject
)

func (o OverflowPolicy) String() string {
	if o == OverflowReject {
		return "reject"
	}
	return "clamp"
}

func (o OverflowPolicy) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *OverflowPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "clamp", "":
		*o = OverflowClamp
	case "reject":
		*o = OverflowReject
	default:
		return fmt.Errorf("unknown overflow policy %q", text)
	}
	return nil
}

// Duration is a time.Duration written as a string such as "5s" or "250ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Window struct {
	Title      string `toml:"title" json:"title"`
	Width      uint32 `toml:"width" json:"width"`
	Height     uint32 `toml:"height" json:"height"`
	Fullscreen bool   `toml:"fullscreen" json:"fullscreen"`
}

// Shaders lists the seven shader files used by the renderer. Paths ending in
// .spv are SPIR-V binaries, paths ending in .wgsl are compiled at load time.
type Shaders struct {
	QuadVertex       string `toml:"quad_vertex" json:"quad_vertex"`
	QuadFragment     string `toml:"quad_fragment" json:"quad_fragment"`
	TextVertex       string `toml:"text_vertex" json:"text_vertex"`
	TextFragment     string `toml:"text_fragment" json:"text_fragment"`
	ParticleVertex   string `toml:"particle_vertex" json:"particle_vertex"`
	ParticleFragment string `toml:"particle_fragment" json:"particle_fragment"`
	ParticleCompute  string `toml:"particle_compute" json:"particle_compute"`
}

type Renderer struct {
	VSync             VSync          `toml:"vsync" json:"vsync"`
	MaxFramesInFlight uint32         `toml:"max_frames_in_flight" json:"max_frames_in_flight"`
	MaxQuads          uint32         `toml:"max_quads" json:"max_quads"`
	MaxGlyphs         uint32         `toml:"max_glyphs" json:"max_glyphs"`
	MaxParticles      uint32         `toml:"max_particles" json:"max_particles"`
	MaxTextures       uint32         `toml:"max_textures" json:"max_textures"`
	MaxFonts          uint32         `toml:"max_fonts" json:"max_fonts"`
	FenceTimeout      Duration       `toml:"fence_timeout" json:"fence_timeout"`
	Overflow          OverflowPolicy `toml:"overflow" json:"overflow"`
	ComputeParticles  bool           `toml:"compute_particles" json:"compute_particles"`
	ClearColour       [4]float32     `toml:"clear_colour" json:"clear_colour"`
	Gravity           [2]float32     `toml:"gravity" json:"gravity"`
	Debug             bool           `toml:"debug" json:"debug"`
	Shaders           Shaders        `toml:"shaders" json:"shaders"`
}

// Audio volumes are carried for the application; the renderer ignores them.
type Audio struct {
	MasterVolume  float32 `toml:"master_volume" json:"master_volume"`
	MusicVolume   float32 `toml:"music_volume" json:"music_volume"`
	EffectsVolume float32 `toml:"effects_volume" json:"effects_volume"`
}

type Log struct {
	Level string `toml:"level" json:"level"`
}

type Config struct {
	Window   Window   `toml:"window" json:"window"`
	Renderer Renderer `toml:"renderer" json:"renderer"`
	Audio    Audio    `toml:"audio" json:"audio"`
	Log      Log      `toml:"log" json:"log"`
}

const (
	MaxFramesInFlightLimit = 4
)

func DefaultRenderer() Renderer {
	return Renderer{
		VSync:             VSyncEnabled,
		MaxFramesInFlight: 2,
		MaxQuads:          10000,
		MaxGlyphs:         10000,
		MaxParticles:      10000,
		MaxTextures:       16,
		MaxFonts:          4,
		FenceTimeout:      Duration(5 * time.Second),
		Overflow:          OverflowClamp,
		ComputeParticles:  true,
		ClearColour:       [4]float32{0.05, 0.05, 0.08, 1},
		Gravity:           [2]float32{0, 98},
		Shaders: Shaders{
			QuadVertex:       "assets/shaders/quad.wgsl",
			QuadFragment:     "assets/shaders/quad.wgsl",
			TextVertex:       "assets/shaders/text.wgsl",
			TextFragment:     "assets/shaders/text.wgsl",
			ParticleVertex:   "assets/shaders/particle.wgsl",
			ParticleFragment: "assets/shaders/particle.wgsl",
			ParticleCompute:  "assets/shaders/particle_sim.wgsl",
		},
	}
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "Lumen",
			Width:  800,
			Height: 800,
		},
		Renderer: DefaultRenderer(),
		Audio: Audio{
			MasterVolume:  1,
			MusicVolume:   0.8,
			EffectsVolume: 0.8,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a config file, picking the decoder from the extension. Keys
// missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as TOML.
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	var errs []error
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, errors.New("window size must be non-zero"))
	}
	if err := c.Renderer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r Renderer) Validate() error {
	var errs []error
	if r.MaxFramesInFlight < 1 || r.MaxFramesInFlight > MaxFramesInFlightLimit {
		errs = append(errs, fmt.Errorf("max_frames_in_flight must be in [1, %d], got %d", MaxFramesInFlightLimit, r.MaxFramesInFlight))
	}
	if r.MaxQuads == 0 || r.MaxGlyphs == 0 || r.MaxParticles == 0 {
		errs = append(errs, errors.New("max_quads, max_glyphs and max_particles must be non-zero"))
	}
	if r.MaxTextures == 0 || r.MaxFonts == 0 {
		errs = append(errs, errors.New("max_textures and max_fonts must be non-zero"))
	}
	if r.FenceTimeout <= 0 {
		errs = append(errs, errors.New("fence_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) LogLevel() (log.Level, error) {
	if c.Log.Level == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(c.Log.Level)
}
