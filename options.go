// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"time"

	"github.com/gogpu/deferred/internal/gpu"
)

// Option overrides a Config field at construction. Options are applied
// after the config file, so command-line flags win.
//
// Example:
//
//	r, err := deferred.New(dev, cfg,
//	    deferred.WithExtent(1280, 720),
//	    deferred.WithFenceTimeout(250*time.Millisecond),
//	)
type Option func(*options)

// options holds the resolved construction settings.
type options struct {
	cfg      Config
	compile  func(source string) ([]uint32, error)
	observer func(from, to FrameState)
}

func defaultOptions(cfg Config) options {
	return options{cfg: cfg}
}

// WithExtent sets the initial surface size.
func WithExtent(width, height uint32) Option {
	return func(o *options) {
		o.cfg.Width, o.cfg.Height = width, height
	}
}

// WithImageCount sets the number of swapchain images.
func WithImageCount(n int) Option {
	return func(o *options) {
		o.cfg.ImageCount = n
	}
}

// WithPoolSizes sets the binding pool capacity.
func WithPoolSizes(maxSets, uniformBuffers, sampledImages int) Option {
	return func(o *options) {
		o.cfg.Pool = PoolConfig{MaxSets: maxSets, UniformBuffers: uniformBuffers, SampledImages: sampledImages}
	}
}

// WithFenceTimeout bounds every fence wait.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.FenceTimeout = Duration(d)
	}
}

// WithPresentMode selects the present mode by name: fifo, fifo-relaxed,
// mailbox or immediate.
func WithPresentMode(name string) Option {
	return func(o *options) {
		o.cfg.PresentMode = name
	}
}

// WithShaderCompiler replaces the WGSL to SPIR-V compiler. Headless
// backends that ignore shader code can pass a stub.
func WithShaderCompiler(fn func(source string) ([]uint32, error)) Option {
	return func(o *options) {
		o.compile = fn
	}
}

// WithObserver registers a callback for every frame state transition.
// It runs on the rendering goroutine.
func WithObserver(fn func(from, to FrameState)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

func (o *options) gpuConfig() gpu.Config {
	g := o.cfg.gpuConfig()
	g.Compile = o.compile
	return g
}
