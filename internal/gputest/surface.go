// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// AcquireResult scripts one AcquireTexture call.
type AcquireResult struct {
	Err        error
	Suboptimal bool
}

// Surface is a scriptable hal.Surface with a fixed number of images.
// Images rotate round-robin; an image is busy from acquire until it is
// presented or discarded.
type Surface struct {
	Resource

	dev    *Device
	images int

	configured bool
	configs    []hal.SurfaceConfiguration
	textures   []*Texture
	held       map[*Texture]bool
	next       int
	script     []AcquireResult
	discards   int
}

// NewSurface returns a surface that exposes images swapchain images.
func (d *Device) NewSurface(images int) *Surface {
	return &Surface{
		Resource: d.newResource("surface", "surface"),
		dev:      d,
		images:   max(images, 1),
		held:     make(map[*Texture]bool),
	}
}

func (s *Surface) Configure(_ hal.Device, cfg *hal.SurfaceConfiguration) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return hal.ErrZeroArea
	}
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.configs = append(s.configs, *cfg)
	s.configured = true
	s.textures = s.textures[:0]
	clear(s.held)
	s.next = 0
	for i := 0; i < s.images; i++ {
		s.dev.nextID++
		s.textures = append(s.textures, &Texture{
			Resource: Resource{ID: s.dev.nextID, Kind: "surface_texture", Label: "swapchain_image"},
			Desc: hal.TextureDescriptor{
				Size:   hal.Extent3D{Width: cfg.Width, Height: cfg.Height, DepthOrArrayLayers: 1},
				Format: cfg.Format,
				Usage:  cfg.Usage,
			},
		})
	}
	return nil
}

func (s *Surface) Unconfigure(hal.Device) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.configured = false
}

// Script queues results for the next acquires. A zero AcquireResult
// acquires normally.
func (s *Surface) Script(results ...AcquireResult) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.script = append(s.script, results...)
}

func (s *Surface) AcquireTexture(hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if !s.configured {
		return nil, hal.ErrSurfaceOutdated
	}
	var res AcquireResult
	if len(s.script) > 0 {
		res = s.script[0]
		s.script = s.script[1:]
	}
	if res.Err != nil {
		return nil, res.Err
	}
	for range s.textures {
		t := s.textures[s.next]
		s.next = (s.next + 1) % len(s.textures)
		if !s.held[t] {
			s.held[t] = true
			return &hal.AcquiredSurfaceTexture{Texture: t, Suboptimal: res.Suboptimal}, nil
		}
	}
	return nil, hal.ErrTimeout
}

func (s *Surface) DiscardTexture(t hal.SurfaceTexture) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.discards++
	s.release(t)
}

func (s *Surface) release(t hal.SurfaceTexture) {
	if tex, ok := t.(*Texture); ok {
		delete(s.held, tex)
	}
}

// Configs returns every configuration applied so far.
func (s *Surface) Configs() []hal.SurfaceConfiguration {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return slices.Clone(s.configs)
}

// Discards returns the number of DiscardTexture calls.
func (s *Surface) Discards() int {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.discards
}

// Held returns the number of images acquired and not yet returned.
func (s *Surface) Held() int {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return len(s.held)
}

// Capabilities is a CapabilitySource with mutable contents.
type Capabilities struct {
	Caps hal.SurfaceCapabilities
}

// DefaultCapabilities offers sRGB and linear RGBA/BGRA formats, every
// present mode and opaque alpha.
func DefaultCapabilities() *Capabilities {
	return &Capabilities{Caps: hal.SurfaceCapabilities{
		Formats: []gputypes.TextureFormat{
			gputypes.TextureFormatBGRA8Unorm,
			gputypes.TextureFormatRGBA8UnormSrgb,
			gputypes.TextureFormatBGRA8UnormSrgb,
		},
		PresentModes: []hal.PresentMode{
			gputypes.PresentModeFifo,
			gputypes.PresentModeFifoRelaxed,
			gputypes.PresentModeImmediate,
			gputypes.PresentModeMailbox,
		},
		AlphaModes: []hal.CompositeAlphaMode{gputypes.CompositeAlphaModeOpaque},
	}}
}

func (c *Capabilities) SurfaceCapabilities(hal.Surface) *hal.SurfaceCapabilities {
	cp := c.Caps
	return &cp
}
