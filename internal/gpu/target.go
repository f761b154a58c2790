// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent) IsZero() bool { return e.Width == 0 || e.Height == 0 }

func (e Extent) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

func (e Extent) hal() hal.Extent3D {
	return hal.Extent3D{Width: e.Width, Height: e.Height, DepthOrArrayLayers: 1}
}

// TargetDesc describes a RenderTarget.
type TargetDesc struct {
	Label  string
	Extent Extent
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// RenderTarget owns a 2D texture and its matching view.
//
// The view always matches the current texture. The format is fixed at
// creation. Recreate swaps texture and view together, so a RenderTarget is
// never observed half-replaced.
type RenderTarget struct {
	label  string
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
	extent Extent

	texture hal.Texture
	view    hal.TextureView

	// generation increments on every successful (re)creation. Framebuffers
	// and binding sets compare it to detect replaced views.
	generation uint64
	destroyed  bool

	// state is the usage the texture was last transitioned to.
	// Zero means undefined contents.
	state gputypes.TextureUsage
}

// NewRenderTarget allocates a texture and a matching view.
func NewRenderTarget(device hal.Device, desc TargetDesc) (*RenderTarget, error) {
	if desc.Extent.IsZero() {
		return nil, resourceErr("create texture", desc.Label, hal.ErrZeroArea)
	}
	t := &RenderTarget{
		label:  desc.Label,
		format: desc.Format,
		usage:  desc.Usage,
	}
	tex, view, err := t.allocate(device, desc.Extent, desc.Usage)
	if err != nil {
		return nil, err
	}
	t.texture, t.view = tex, view
	t.extent = desc.Extent
	t.generation = 1

	slogger().Debug("render target created",
		"label", t.label, "extent", t.extent, "format", t.format)
	return t, nil
}

// Recreate replaces the texture and view at a new extent. The old pair is
// destroyed only after the new pair exists. The format must not change.
func (t *RenderTarget) Recreate(device hal.Device, extent Extent, format gputypes.TextureFormat, usage gputypes.TextureUsage) error {
	if t.destroyed {
		return fmt.Errorf("recreate %q: %w", t.label, ErrDestroyed)
	}
	if format != t.format {
		return fmt.Errorf("recreate %q as %v (created as %v): %w", t.label, format, t.format, ErrFormatMismatch)
	}
	if extent.IsZero() {
		return resourceErr("create texture", t.label, hal.ErrZeroArea)
	}
	tex, view, err := t.allocate(device, extent, usage)
	if err != nil {
		return err
	}

	device.DestroyTextureView(t.view)
	device.DestroyTexture(t.texture)

	t.texture, t.view = tex, view
	t.extent = extent
	t.usage = usage
	t.generation++
	t.state = 0

	slogger().Debug("render target recreated",
		"label", t.label, "extent", extent, "generation", t.generation)
	return nil
}

// allocate creates a texture and view without touching t's current pair.
func (t *RenderTarget) allocate(device hal.Device, extent Extent, usage gputypes.TextureUsage) (hal.Texture, hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         t.label,
		Size:          extent.hal(),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, resourceErr("create texture", t.label, err)
	}

	aspect := gputypes.TextureAspectAll
	if t.format.HasDepth() {
		aspect = gputypes.TextureAspectDepthOnly
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           t.label + "_view",
		Format:          t.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, nil, resourceErr("create texture view", t.label, err)
	}
	return tex, view, nil
}

// Barrier returns the transition from the tracked usage to next and
// records next as current. It reports false when no transition is needed.
func (t *RenderTarget) Barrier(next gputypes.TextureUsage) (hal.TextureBarrier, bool) {
	if t.state == next {
		return hal.TextureBarrier{}, false
	}
	aspect := gputypes.TextureAspectAll
	if t.IsDepth() {
		aspect = gputypes.TextureAspectDepthOnly
	}
	b := hal.TextureBarrier{
		Texture: t.texture,
		Range: hal.TextureRange{
			Aspect:          aspect,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		},
		Usage: hal.TextureUsageTransition{OldUsage: t.state, NewUsage: next},
	}
	t.state = next
	return b, true
}

// State returns the usage the texture was last transitioned to.
func (t *RenderTarget) State() gputypes.TextureUsage { return t.state }

// Label returns the debug label.
func (t *RenderTarget) Label() string { return t.label }

// Format returns the immutable pixel format.
func (t *RenderTarget) Format() gputypes.TextureFormat { return t.format }

// Usage returns the current usage flags.
func (t *RenderTarget) Usage() gputypes.TextureUsage { return t.usage }

// Extent returns the current size.
func (t *RenderTarget) Extent() Extent { return t.extent }

// Texture returns the current texture.
func (t *RenderTarget) Texture() hal.Texture { return t.texture }

// View returns the view of the current texture.
func (t *RenderTarget) View() hal.TextureView { return t.view }

// Generation identifies the current texture/view pair.
func (t *RenderTarget) Generation() uint64 { return t.generation }

// IsDepth reports whether the target has a depth format.
func (t *RenderTarget) IsDepth() bool { return t.format.HasDepth() }

// Destroy releases the texture and view. Safe to call more than once.
func (t *RenderTarget) Destroy(device hal.Device) {
	if t == nil || t.destroyed {
		return
	}
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		device.DestroyTexture(t.texture)
		t.texture = nil
	}
	t.destroyed = true
}
