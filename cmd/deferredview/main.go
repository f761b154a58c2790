// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command deferredview runs the deferred renderer headless on the noop HAL
// backend and reports frame statistics.
//
// Usage:
//
//	deferredview [-config deferred.toml] [-frames 120] [-resize 400x300@60] [-v]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/internal/gputest"
)

// logChunk bounds how many frames the recording queue keeps before its log
// is dropped.
const logChunk = 64

type resizeAt struct {
	width, height uint32
	frame         int
}

func parseResize(s string) (*resizeAt, error) {
	if s == "" {
		return nil, nil
	}
	size, at, ok := strings.Cut(s, "@")
	if !ok {
		return nil, fmt.Errorf("resize %q: want WxH@frame", s)
	}
	ws, hs, ok := strings.Cut(size, "x")
	if !ok {
		return nil, fmt.Errorf("resize %q: want WxH@frame", s)
	}
	w, err := strconv.ParseUint(ws, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("resize width: %w", err)
	}
	h, err := strconv.ParseUint(hs, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("resize height: %w", err)
	}
	n, err := strconv.Atoi(at)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("resize frame %q", at)
	}
	return &resizeAt{width: uint32(w), height: uint32(h), frame: n}, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		frames     = flag.Int("frames", 120, "frames to render")
		width      = flag.Uint("width", 0, "surface width, 0 for the config value")
		height     = flag.Uint("height", 0, "surface height, 0 for the config value")
		resize     = flag.String("resize", "", "inject a resize, e.g. 400x300@60")
		verbose    = flag.Bool("v", false, "debug logging")
		dump       = flag.Bool("dump-config", false, "print the effective config and exit")
	)
	flag.Parse()

	if err := run(*configPath, *frames, uint32(*width), uint32(*height), *resize, *verbose, *dump); err != nil {
		fmt.Fprintln(os.Stderr, "deferredview:", err)
		os.Exit(1)
	}
}

func run(configPath string, frames int, width, height uint32, resizeFlag string, verbose, dump bool) error {
	cfg := deferred.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = deferred.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if dump {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	inject, err := parseResize(resizeFlag)
	if err != nil {
		return err
	}

	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	deferred.SetLogger(log)

	var opts []deferred.Option
	if width > 0 && height > 0 {
		opts = append(opts, deferred.WithExtent(width, height))
	}

	dev, q, cleanup, err := openNoop(cfg.ImageCount)
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := deferred.New(dev, cfg, opts...)
	if err != nil {
		return err
	}
	defer r.Destroy()

	fc := deferred.NewFrameContext(cfg)
	if err := buildScenes(r, fc); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	half := frames / 2
	for done := 0; done < frames && !fc.Quit(); {
		if inject != nil && inject.frame <= done {
			log.Info("injecting resize", "frame", done, "width", inject.width, "height", inject.height)
			if err := r.RequestResize(inject.width, inject.height); err != nil {
				return err
			}
			inject = nil
		}
		if done >= half && fc.ActiveScene() == 0 {
			log.Info("switching scene", "frame", done, "scene", fc.NextScene())
		}
		end := min(done+logChunk, frames)
		if inject != nil && inject.frame > done {
			end = min(end, inject.frame)
		}
		if half > done {
			end = min(end, half)
		}
		err := r.Run(ctx, fc, end-done)
		q.ResetLog()
		if errors.Is(err, context.Canceled) {
			log.Info("interrupted", "frame", done)
			break
		}
		if err != nil {
			return err
		}
		done = end
	}

	st := r.Stats()
	w, h := r.Extent()
	log.Info("done",
		"frames", st.Frames, "presented", st.Presented, "skipped", st.Skipped,
		"resizes", st.Resizes, "extent", fmt.Sprintf("%dx%d", w, h), "format", r.SurfaceFormat())
	return nil
}

// openNoop walks instance, surface and adapter on the noop backend. Noop
// resources share one zero-size identity, so rendering goes through the
// recording device, which wraps noop and numbers every object; the noop
// adapter reports the surface capabilities.
func openNoop(images int) (deferred.DeviceSet, *gputest.Queue, func(), error) {
	backend, ok := hal.GetBackend(gputypes.BackendEmpty)
	if !ok {
		return deferred.DeviceSet{}, nil, nil, errors.New("noop backend not registered")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return deferred.DeviceSet{}, nil, nil, fmt.Errorf("create instance: %w", err)
	}
	hint, err := instance.CreateSurface(0, 0)
	if err != nil {
		instance.Destroy()
		return deferred.DeviceSet{}, nil, nil, fmt.Errorf("create surface: %w", err)
	}
	adapters := instance.EnumerateAdapters(hint)
	if len(adapters) == 0 {
		hint.Destroy()
		instance.Destroy()
		return deferred.DeviceSet{}, nil, nil, errors.New("no adapters")
	}
	selected := adapters[0]
	deferred.Logger().Info("adapter", "name", selected.Info.Name, "driver", selected.Info.Driver)

	d, q := gputest.New()
	set := deferred.DeviceSet{
		Device:       d,
		Queue:        q,
		Surface:      d.NewSurface(images),
		Capabilities: selected.Adapter,
	}
	cleanup := func() {
		for _, v := range d.Violations() {
			deferred.Logger().Warn("synchronization violation", "detail", v)
		}
		selected.Adapter.Destroy()
		hint.Destroy()
		instance.Destroy()
	}
	return set, q, cleanup, nil
}

// buildScenes uploads a cube and a floor and registers two scenes: the
// cube alone, and the cube over the floor.
func buildScenes(r *deferred.Renderer, fc *deferred.FrameContext) error {
	cube, err := r.Upload("cube", deferred.Cube(2, f32.Vec3{0, 1, 0}),
		&deferred.Material{Albedo: f32.Vec4{1, 1, 1, 1}, Shininess: 32},
		deferred.Checker(64, 8, color.RGBA{200, 60, 40, 255}, color.RGBA{240, 220, 200, 255}))
	if err != nil {
		return err
	}
	floor, err := r.Upload("floor", deferred.Plane(20, 0),
		&deferred.Material{Albedo: f32.Vec4{0.8, 0.8, 0.8, 1}, Shininess: 8, Metalness: 0.1},
		deferred.Checker(128, 16, color.RGBA{90, 90, 90, 255}, color.RGBA{160, 160, 160, 255}))
	if err != nil {
		return err
	}
	fc.AddScene(cube.Drawable())
	fc.AddScene(cube.Drawable(), floor.Drawable())
	return nil
}
