// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package deferred is a two-pass deferred renderer built on the gogpu HAL.
//
// # Overview
//
// Each frame runs two dependent passes. The offscreen pass writes the
// G-buffer (three color targets and a depth target) from the drawables of
// the active scene. The composite pass samples the G-buffer and shades a
// fullscreen triangle pair into a swapchain image, which is then presented.
//
// The renderer owns the frame graph and its synchronization: binding sets,
// uniform uploads recorded as barrier/copy/barrier triples, a fence per
// command buffer, image barriers between the passes, and recreation of the
// surface-dependent resources on resize.
//
// # Quick Start
//
//	cfg, err := deferred.LoadConfig("deferred.toml")
//	...
//	r, err := deferred.New(deferred.DeviceSet{
//	    Device:       device,
//	    Queue:        queue,
//	    Surface:      surface,
//	    Capabilities: adapter,
//	}, cfg)
//	defer r.Destroy()
//
//	fc := deferred.NewFrameContext(cfg)
//	cube, err := r.Upload("cube", deferred.Cube(1, f32.Vec3{}), &deferred.Material{}, texture)
//	fc.AddScene(cube.Drawable())
//	deferred.BindInput(events, r, fc)
//
//	err = r.Run(ctx, fc, 0)
//
// # Errors
//
// A stale surface never surfaces as an error: the frame is skipped and the
// next one resizes. Everything else is fatal and is reported by [IsFatal].
//
// # Logging
//
// Nothing is logged by default. See [SetLogger].
package deferred
