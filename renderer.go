// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/internal/gpu"
	"github.com/gogpu/deferred/internal/mesh"
	"github.com/gogpu/deferred/internal/scene"
)

// Frame graph types.
type (
	Drawable         = gpu.Drawable
	FrameState       = gpu.FrameState
	FrameResult      = gpu.FrameResult
	FrameStats       = gpu.FrameStats
	CapabilitySource = gpu.CapabilitySource
)

// Frame states.
const (
	StateIdle               = gpu.StateIdle
	StateRecordingOffscreen = gpu.StateRecordingOffscreen
	StateSubmittedOffscreen = gpu.StateSubmittedOffscreen
	StateAcquiringSurface   = gpu.StateAcquiringSurface
	StateRecordingComposite = gpu.StateRecordingComposite
	StateSubmittedComposite = gpu.StateSubmittedComposite
	StatePresenting         = gpu.StatePresenting
	StateResizePending      = gpu.StateResizePending
)

// DeviceSet is the HAL device boundary the renderer draws with.
type DeviceSet struct {
	Device  hal.Device
	Queue   hal.Queue
	Surface hal.Surface
	// Capabilities reports surface formats and present modes. hal.Adapter
	// satisfies it; nil means the defaults.
	Capabilities CapabilitySource
}

// StaticCapabilities reports fixed surface capabilities.
type StaticCapabilities hal.SurfaceCapabilities

// SurfaceCapabilities implements CapabilitySource.
func (c *StaticCapabilities) SurfaceCapabilities(hal.Surface) *hal.SurfaceCapabilities {
	return (*hal.SurfaceCapabilities)(c)
}

// Renderer is a two-pass deferred renderer: a G-buffer pass into offscreen
// targets and a composite pass into the surface.
//
// Renderer methods are safe for concurrent use; frames are serialized.
type Renderer struct {
	mu        sync.Mutex
	o         *gpu.Orchestrator
	cfg       Config
	sceneBuf  gpu.ByteSource
	lightBuf  gpu.ByteSource
	pending   *gpu.Extent
	models    []*Model
	destroyed bool
}

// New builds the frame graph on dev. Options override cfg.
func New(dev DeviceSet, cfg Config, opts ...Option) (*Renderer, error) {
	o := defaultOptions(cfg)
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if dev.Device == nil || dev.Queue == nil || dev.Surface == nil {
		return nil, fmt.Errorf("%w: device set needs a device, queue and surface", ErrInvalidConfig)
	}

	r := &Renderer{
		cfg:      o.cfg,
		sceneBuf: make(gpu.ByteSource, scene.SceneUniformSize),
		lightBuf: make(gpu.ByteSource, scene.LightSetSize),
	}
	orch, err := gpu.NewOrchestrator(
		gpu.Devices{Device: dev.Device, Queue: dev.Queue, Surface: dev.Surface, Caps: dev.Capabilities},
		gpu.Sources{Scene: r.sceneBuf, Lights: r.lightBuf},
		o.gpuConfig(),
	)
	if err != nil {
		return nil, fmt.Errorf("deferred: %w", err)
	}
	r.o = orch
	if o.observer != nil {
		orch.SetObserver(o.observer)
	}
	Logger().Info("renderer ready",
		"extent", orch.Extent(), "format", orch.SurfaceFormat(), "images", o.cfg.ImageCount)
	return r, nil
}

// Config returns the resolved configuration.
func (r *Renderer) Config() Config { return r.cfg }

// RenderFrame advances fc, records and submits both passes and presents.
// A stale surface is reported through FrameResult.Skipped, not as an error.
// Light animation advances only when the frame was presented.
func (r *Renderer) RenderFrame(ctx context.Context, fc *FrameContext) (FrameResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return FrameResult{ImageIndex: -1}, ErrDestroyed
	}
	extent := r.o.Extent()
	if r.pending != nil && !r.pending.IsZero() {
		extent = *r.pending
	}
	drawables := fc.prepare(extent, r.sceneBuf, r.lightBuf)

	res, err := r.o.RenderFrame(ctx, drawables)
	if res.Resized {
		r.pending = nil
	}
	if err != nil {
		return res, err
	}
	if res.Presented {
		fc.presented()
	}
	return res, nil
}

// RequestResize schedules a surface resize before the next frame. A zero
// dimension keeps the request pending until a non-zero size arrives.
func (r *Renderer) RequestResize(width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	e := gpu.Extent{Width: width, Height: height}
	r.pending = &e
	Logger().Debug("resize requested", "extent", e)
	return r.o.RequestResize(e)
}

// Run renders until fc requests quit, ctx is done or frames frames were
// rendered (frames <= 0 means no limit). Stale surfaces are skipped.
// A fatal error waits for the device, is logged and returned. A done ctx
// returns ctx.Err().
func (r *Renderer) Run(ctx context.Context, fc *FrameContext, frames int) error {
	for i := 0; frames <= 0 || i < frames; i++ {
		if fc.Quit() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.RenderFrame(ctx, fc)
		switch {
		case err == nil:
			if res.Skipped {
				Logger().Debug("frame skipped", "frame", i, "state", r.State())
			}
		case !IsFatal(err):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			Logger().Warn("frame dropped", "frame", i, "err", err)
		default:
			if werr := r.WaitIdle(); werr != nil {
				Logger().Warn("wait idle after fatal error", "err", werr)
			}
			Logger().Error("render loop stopped", "frame", i, "err", err)
			return err
		}
	}
	return nil
}

// Upload creates GPU resources for m and returns a model whose Drawable
// can be added to a FrameContext. The renderer releases it on Destroy.
func (r *Renderer) Upload(label string, m Mesh, mat *Material, base *image.RGBA) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, ErrDestroyed
	}
	model, err := mesh.Upload(r.o, label, m, mat, base)
	if err != nil {
		return nil, err
	}
	r.models = append(r.models, model)
	Logger().Debug("model uploaded", "label", label, "vertices", len(m.Positions), "indices", len(m.Indices))
	return model, nil
}

// UpdateMaterial writes the current fields of the model's material.
func (r *Renderer) UpdateMaterial(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	return m.UpdateMaterial(r.o.Queue())
}

// Release waits for the device and destroys m. Drawables of m must not be
// rendered afterwards.
func (r *Renderer) Release(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	i := slices.Index(r.models, m)
	if i < 0 {
		return nil
	}
	if err := r.o.WaitIdle(); err != nil {
		return err
	}
	m.Destroy(r.o.Device())
	r.models = slices.Delete(r.models, i, i+1)
	return nil
}

// State returns the frame state machine's current state.
func (r *Renderer) State() FrameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.o.State()
}

// Stats returns the cumulative frame counters.
func (r *Renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.o.Stats()
}

// Extent returns the current surface size.
func (r *Renderer) Extent() (width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.o.Extent()
	return e.Width, e.Height
}

// SurfaceFormat returns the configured output format.
func (r *Renderer) SurfaceFormat() gputypes.TextureFormat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.o.SurfaceFormat()
}

// WaitIdle blocks until the device finished all submitted work.
func (r *Renderer) WaitIdle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil
	}
	return r.o.WaitIdle()
}

// Destroy waits for the device and releases every resource, models
// included. Safe to call more than once.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.destroyed = true
	if err := r.o.WaitIdle(); err != nil {
		Logger().Warn("wait idle before destroy", "err", err)
	}
	d := r.o.Device()
	for _, m := range slices.Backward(r.models) {
		m.Destroy(d)
	}
	r.models = nil
	r.o.Destroy()
	Logger().Debug("renderer destroyed")
}
