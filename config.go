// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/deferred/internal/gpu"
	"github.com/gogpu/deferred/internal/scene"
)

// Config is the renderer configuration. It maps one to one onto a TOML
// file:
//
//	width = 1280
//	height = 720
//	image_count = 3
//	present_mode = "fifo-relaxed"
//	fence_timeout = "1s"
//
//	[camera]
//	fov = 60.0
//
//	[lights]
//	ambient = [0.2, 0.2, 0.2, 1.0]
type Config struct {
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	ImageCount int    `toml:"image_count"`
	// PresentMode is one of fifo, fifo-relaxed, mailbox, immediate or
	// empty for the surface's best vsync mode.
	PresentMode string `toml:"present_mode"`
	// SurfaceFormats is the output format preference, empty for sRGB first.
	SurfaceFormats []string `toml:"surface_formats"`
	GBufferFormat  string   `toml:"gbuffer_format"`
	DepthFormat    string   `toml:"depth_format"`

	Pool         PoolConfig `toml:"pool"`
	FenceTimeout Duration   `toml:"fence_timeout"`
	ClearColor   [4]float64 `toml:"clear_color"`

	Camera CameraConfig `toml:"camera"`
	Lights LightConfig  `toml:"lights"`

	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `toml:"log_level"`
}

// PoolConfig sizes the binding pool.
type PoolConfig struct {
	MaxSets        int `toml:"max_sets"`
	UniformBuffers int `toml:"uniform_buffers"`
	SampledImages  int `toml:"sampled_images"`
}

// CameraConfig configures the fly camera.
type CameraConfig struct {
	Fov         float32    `toml:"fov"` // degrees
	Near        float32    `toml:"near"`
	Far         float32    `toml:"far"`
	Speed       float32    `toml:"speed"`
	Sensitivity float32    `toml:"sensitivity"`
	Position    [3]float32 `toml:"position"`
}

// LightConfig configures the light set.
type LightConfig struct {
	Ambient [4]float32 `toml:"ambient"`
	Step    float32    `toml:"step"`
	Animate bool       `toml:"animate"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalText parses strings like "500ms" or "2s".
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns an 800x600 setup with three swapchain images and
// every light on.
func DefaultConfig() Config {
	g := gpu.DefaultConfig()
	c := scene.DefaultCameraConfig()
	return Config{
		Width:         g.Extent.Width,
		Height:        g.Extent.Height,
		ImageCount:    g.ImageCount,
		GBufferFormat: g.GBufferFormat.String(),
		DepthFormat:   g.DepthFormat.String(),
		Pool: PoolConfig{
			MaxSets:        g.Pool.MaxSets,
			UniformBuffers: g.Pool.UniformBuffers,
			SampledImages:  g.Pool.SampledImages,
		},
		FenceTimeout: Duration(g.FenceTimeout),
		ClearColor:   [4]float64{0, 0, 0, 1},
		Camera: CameraConfig{
			Fov:         float32(float64(c.FovY) * 180 / math.Pi),
			Near:        c.Near,
			Far:         c.Far,
			Speed:       c.Speed,
			Sensitivity: c.Sensitivity,
			Position:    [3]float32{0, 2, 8},
		},
		Lights: LightConfig{
			Ambient: scene.DefaultAmbient,
			Step:    scene.DefaultAnimationStep,
		},
		LogLevel: "info",
	}
}

// ParseConfig decodes TOML over DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}
	if c.Width == 0 || c.Height == 0 {
		bad("extent %dx%d has a zero dimension", c.Width, c.Height)
	}
	if c.ImageCount < 1 || c.ImageCount > 8 {
		bad("image_count %d outside [1, 8]", c.ImageCount)
	}
	if _, err := parsePresentMode(c.PresentMode); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.SurfaceFormats {
		if _, err := parseFormat(name); err != nil {
			errs = append(errs, err)
		}
	}
	if f, err := parseFormat(c.GBufferFormat); err != nil {
		errs = append(errs, err)
	} else if isDepth(f) {
		bad("gbuffer_format %s is a depth format", f)
	}
	if f, err := parseFormat(c.DepthFormat); err != nil {
		errs = append(errs, err)
	} else if !isDepth(f) {
		bad("depth_format %s is not a depth format", f)
	}
	if c.Pool.MaxSets < 1 || c.Pool.UniformBuffers < 1 || c.Pool.SampledImages < 1 {
		bad("pool sizes %+v must be positive", c.Pool)
	}
	if c.FenceTimeout <= 0 {
		bad("fence_timeout %s must be positive", time.Duration(c.FenceTimeout))
	}
	if c.Camera.Fov <= 0 || c.Camera.Fov >= 180 {
		bad("camera.fov %g outside (0, 180)", c.Camera.Fov)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		bad("camera near %g / far %g", c.Camera.Near, c.Camera.Far)
	}
	if c.Lights.Step < 0 {
		bad("lights.step %g is negative", c.Lights.Step)
	}
	if _, err := c.logLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// gpuConfig converts c into the orchestrator configuration. c must be valid.
func (c Config) gpuConfig() gpu.Config {
	g := gpu.DefaultConfig()
	g.Extent = gpu.Extent{Width: c.Width, Height: c.Height}
	g.ImageCount = c.ImageCount
	g.PresentMode, _ = parsePresentMode(c.PresentMode)
	for _, name := range c.SurfaceFormats {
		f, _ := parseFormat(name)
		g.SurfaceFormats = append(g.SurfaceFormats, f)
	}
	g.GBufferFormat, _ = parseFormat(c.GBufferFormat)
	g.DepthFormat, _ = parseFormat(c.DepthFormat)
	g.Pool = gpu.PoolSizes{
		MaxSets:        c.Pool.MaxSets,
		UniformBuffers: c.Pool.UniformBuffers,
		SampledImages:  c.Pool.SampledImages,
	}
	g.FenceTimeout = time.Duration(c.FenceTimeout)
	g.ClearColor = gputypes.Color{R: c.ClearColor[0], G: c.ClearColor[1], B: c.ClearColor[2], A: c.ClearColor[3]}
	return g
}

func (c Config) cameraConfig() scene.CameraConfig {
	return scene.CameraConfig{
		FovY:        float32(float64(c.Camera.Fov) * math.Pi / 180),
		Near:        c.Camera.Near,
		Far:         c.Camera.Far,
		Speed:       c.Camera.Speed,
		Sensitivity: c.Camera.Sensitivity,
	}
}

func (c Config) cameraPosition() f32.Vec3 { return f32.Vec3(c.Camera.Position) }

// logLevel parses LogLevel; empty means info.
func (c Config) logLevel() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// Level returns the configured slog level, info when unset or invalid.
func (c Config) Level() slog.Level {
	l, err := c.logLevel()
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

var presentModes = map[string]gputypes.PresentMode{
	"":             0,
	"auto":         0,
	"fifo":         gputypes.PresentModeFifo,
	"fifo-relaxed": gputypes.PresentModeFifoRelaxed,
	"mailbox":      gputypes.PresentModeMailbox,
	"immediate":    gputypes.PresentModeImmediate,
}

func parsePresentMode(name string) (gputypes.PresentMode, error) {
	m, ok := presentModes[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown present_mode %q", ErrInvalidConfig, name)
	}
	return m, nil
}

// formats lists the texture formats a config may name.
var formats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatRGBA16Float,
	gputypes.TextureFormatRGBA32Float,
	gputypes.TextureFormatDepth32Float,
	gputypes.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth24PlusStencil8,
}

func parseFormat(name string) (gputypes.TextureFormat, error) {
	for _, f := range formats {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: unknown texture format %q", ErrInvalidConfig, name)
}

func isDepth(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		return true
	}
	return false
}
