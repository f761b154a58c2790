// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CapabilitySource reports what a surface supports. hal.Adapter satisfies it.
type CapabilitySource interface {
	SurfaceCapabilities(surface hal.Surface) *hal.SurfaceCapabilities
}

// DefaultSurfaceFormats are chosen in order when the surface offers them.
var DefaultSurfaceFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8UnormSrgb,
}

// maxSwapchainImages bounds image discovery. A surface handing out more
// distinct textures than this is treated as stale.
const maxSwapchainImages = 8

// ChooseSurfaceFormat picks the first of preferred that formats offers, else
// the first offered format. A nil preferred means DefaultSurfaceFormats.
func ChooseSurfaceFormat(formats, preferred []gputypes.TextureFormat) gputypes.TextureFormat {
	if preferred == nil {
		preferred = DefaultSurfaceFormats
	}
	for _, f := range preferred {
		if slices.Contains(formats, f) {
			return f
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// ChoosePresentMode returns requested when supported. Otherwise it prefers
// FifoRelaxed and falls back to Fifo, which every surface supports.
func ChoosePresentMode(modes []gputypes.PresentMode, requested gputypes.PresentMode) gputypes.PresentMode {
	if requested != 0 && slices.Contains(modes, requested) {
		return requested
	}
	if slices.Contains(modes, gputypes.PresentModeFifoRelaxed) {
		return gputypes.PresentModeFifoRelaxed
	}
	return gputypes.PresentModeFifo
}

// SwapchainDesc configures a Swapchain.
type SwapchainDesc struct {
	Extent      Extent
	PresentMode gputypes.PresentMode
	// Formats is the surface format preference order, nil for sRGB first.
	Formats []gputypes.TextureFormat
}

// SwapChanges reports what changed on Recreate.
type SwapChanges struct {
	FormatChanged bool
	SizeChanged   bool
}

// AcquiredImage is a swapchain image ready to be rendered.
type AcquiredImage struct {
	Texture hal.SurfaceTexture
	// Index identifies the image within the current swapchain generation.
	Index int
	// New is true the first time Index is seen in this generation.
	New bool
}

// Swapchain configures a hal.Surface and rotates through its images.
//
// Image indices are assigned in first-acquire order and stay stable until
// the next Recreate.
type Swapchain struct {
	device  hal.Device
	queue   hal.Queue
	surface hal.Surface
	caps    CapabilitySource

	requestedMode gputypes.PresentMode
	preferred     []gputypes.TextureFormat

	format      gputypes.TextureFormat
	presentMode gputypes.PresentMode
	alphaMode   gputypes.CompositeAlphaMode
	extent      Extent

	indices map[hal.SurfaceTexture]int
	current *AcquiredImage
}

// NewSwapchain configures surface at desc.Extent.
func NewSwapchain(device hal.Device, queue hal.Queue, surface hal.Surface, caps CapabilitySource, desc SwapchainDesc) (*Swapchain, error) {
	s := &Swapchain{
		device:        device,
		queue:         queue,
		surface:       surface,
		caps:          caps,
		requestedMode: desc.PresentMode,
		preferred:     desc.Formats,
		indices:       make(map[hal.SurfaceTexture]int),
	}
	if err := s.configure(desc.Extent); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) configure(extent Extent) error {
	var formats []gputypes.TextureFormat
	var modes []gputypes.PresentMode
	var alphas []gputypes.CompositeAlphaMode
	if s.caps != nil {
		if c := s.caps.SurfaceCapabilities(s.surface); c != nil {
			formats, modes, alphas = c.Formats, c.PresentModes, c.AlphaModes
		}
	}
	format := ChooseSurfaceFormat(formats, s.preferred)
	mode := ChoosePresentMode(modes, s.requestedMode)
	alpha := gputypes.CompositeAlphaModeOpaque
	if len(alphas) > 0 && !slices.Contains(alphas, alpha) {
		alpha = alphas[0]
	}

	err := s.surface.Configure(s.device, &hal.SurfaceConfiguration{
		Width:       extent.Width,
		Height:      extent.Height,
		Format:      format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: mode,
		AlphaMode:   alpha,
	})
	if err != nil {
		return resourceErr("configure surface", "swapchain", err)
	}
	s.format, s.presentMode, s.alphaMode, s.extent = format, mode, alpha, extent
	clear(s.indices)

	slogger().Info("swapchain configured",
		"extent", extent, "format", format, "present_mode", mode)
	return nil
}

// Recreate reconfigures the surface at extent. The device must be idle.
func (s *Swapchain) Recreate(extent Extent) (SwapChanges, error) {
	if s.current != nil {
		s.surface.DiscardTexture(s.current.Texture)
		s.current = nil
	}
	oldFormat, oldExtent := s.format, s.extent
	if err := s.configure(extent); err != nil {
		return SwapChanges{}, err
	}
	return SwapChanges{
		FormatChanged: s.format != oldFormat,
		SizeChanged:   s.extent != oldExtent,
	}, nil
}

// Acquire returns the next image. A stale or suboptimal surface returns a
// *SurfaceStaleError and no image; a suboptimal image is handed back to the
// surface. hal.ErrTimeout and hal.ErrNotReady are returned unwrapped.
func (s *Swapchain) Acquire() (AcquiredImage, error) {
	if s.current != nil {
		return AcquiredImage{}, fmt.Errorf("swapchain: acquire while image %d is held: %w", s.current.Index, ErrInvalidState)
	}
	acq, err := s.surface.AcquireTexture(nil)
	if err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) || errors.Is(err, hal.ErrSurfaceLost) {
			return AcquiredImage{}, &SurfaceStaleError{Op: "acquire", Err: err}
		}
		if errors.Is(err, hal.ErrTimeout) || errors.Is(err, hal.ErrNotReady) {
			return AcquiredImage{}, err
		}
		return AcquiredImage{}, fmt.Errorf("swapchain: acquire: %w", err)
	}
	if acq.Suboptimal {
		s.surface.DiscardTexture(acq.Texture)
		return AcquiredImage{}, &SurfaceStaleError{Op: "acquire", Suboptimal: true}
	}

	idx, seen := s.indices[acq.Texture]
	if !seen && len(s.indices) >= maxSwapchainImages {
		s.surface.DiscardTexture(acq.Texture)
		return AcquiredImage{}, &SurfaceStaleError{Op: "acquire", Err: fmt.Errorf("more than %d distinct images", maxSwapchainImages)}
	}
	if !seen {
		idx = len(s.indices)
		s.indices[acq.Texture] = idx
		slogger().Debug("swapchain image discovered", "index", idx)
	}
	s.current = &AcquiredImage{Texture: acq.Texture, Index: idx, New: !seen}
	return *s.current, nil
}

// Present queues the held image for display.
func (s *Swapchain) Present() error {
	if s.current == nil {
		return fmt.Errorf("swapchain: present without an acquired image: %w", ErrInvalidState)
	}
	tex := s.current.Texture
	s.current = nil
	if err := s.queue.Present(s.surface, tex, nil); err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) || errors.Is(err, hal.ErrSurfaceLost) {
			return &SurfaceStaleError{Op: "present", Err: err}
		}
		return fmt.Errorf("swapchain: present: %w", err)
	}
	return nil
}

// Release hands a held image back without presenting it.
func (s *Swapchain) Release() {
	if s.current != nil {
		s.surface.DiscardTexture(s.current.Texture)
		s.current = nil
	}
}

// Format returns the configured surface format.
func (s *Swapchain) Format() gputypes.TextureFormat { return s.format }

// PresentMode returns the configured present mode.
func (s *Swapchain) PresentMode() gputypes.PresentMode { return s.presentMode }

// Extent returns the configured size.
func (s *Swapchain) Extent() Extent { return s.extent }

// ImageCount returns the number of distinct images seen since configure.
func (s *Swapchain) ImageCount() int { return len(s.indices) }

// Destroy releases any held image and unconfigures the surface.
func (s *Swapchain) Destroy() {
	s.Release()
	s.surface.Unconfigure(s.device)
	clear(s.indices)
}
