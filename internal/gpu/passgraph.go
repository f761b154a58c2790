// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// AttachmentDesc describes one attachment of a render pass.
type AttachmentDesc struct {
	Format     gputypes.TextureFormat
	Load       gputypes.LoadOp
	Store      gputypes.StoreOp
	Clear      gputypes.Color
	ClearDepth float32
	// FinalUsage is the usage the attachment is left in after the pass.
	// RenderAttachment means no transition.
	FinalUsage gputypes.TextureUsage
}

// PassDescription is the render pass shape: one subpass writing every
// color attachment plus the optional depth attachment.
type PassDescription struct {
	Label  string
	Colors []AttachmentDesc
	Depth  *AttachmentDesc
}

// ColorAttachment returns a clear-and-store color attachment description.
func ColorAttachment(format gputypes.TextureFormat, finalUsage gputypes.TextureUsage) AttachmentDesc {
	return AttachmentDesc{
		Format:     format,
		Load:       gputypes.LoadOpClear,
		Store:      gputypes.StoreOpStore,
		Clear:      gputypes.Color{A: 1},
		FinalUsage: finalUsage,
	}
}

// DepthAttachment returns a depth attachment cleared to 1 with the given
// store policy.
func DepthAttachment(format gputypes.TextureFormat, store gputypes.StoreOp) *AttachmentDesc {
	return &AttachmentDesc{
		Format:     format,
		Load:       gputypes.LoadOpClear,
		Store:      store,
		ClearDepth: 1,
		FinalUsage: gputypes.TextureUsageRenderAttachment,
	}
}

// surfaceImage is the framebuffer of one swapchain image.
type surfaceImage struct {
	texture hal.SurfaceTexture
	view    hal.TextureView
}

// PassGraph binds a PassDescription to the views it renders into.
//
// A fixed PassGraph renders into RenderTargets. A surface PassGraph renders
// into the rotating swapchain images and keeps one framebuffer per image,
// all sharing the description.
//
// The framebuffer is valid only while every captured view is still current
// and it was built against the current description version.
type PassGraph struct {
	label   string
	desc    PassDescription
	version uint64

	// framebuffer state
	fbVersion  uint64
	generation uint64
	extent     Extent

	// fixed variant
	colors []*RenderTarget
	depth  *RenderTarget
	gens   []uint64

	// surface variant
	surface bool
	images  map[int]*surfaceImage
}

func validateDescription(desc PassDescription) error {
	if len(desc.Colors) == 0 {
		return fmt.Errorf("pass %q: no color attachments: %w", desc.Label, ErrInvalidState)
	}
	for i, c := range desc.Colors {
		if c.Format.IsDepthStencil() {
			return fmt.Errorf("pass %q: color attachment %d has depth format %v: %w", desc.Label, i, c.Format, ErrFormatMismatch)
		}
	}
	if desc.Depth != nil && !desc.Depth.Format.HasDepth() {
		return fmt.Errorf("pass %q: depth attachment has color format %v: %w", desc.Label, desc.Depth.Format, ErrFormatMismatch)
	}
	return nil
}

// NewPassGraph builds a fixed pass and its framebuffer over colors and depth.
func NewPassGraph(desc PassDescription, colors []*RenderTarget, depth *RenderTarget) (*PassGraph, error) {
	if err := validateDescription(desc); err != nil {
		return nil, err
	}
	g := &PassGraph{label: desc.Label, desc: desc, version: 1}
	if err := g.bindTargets(colors, depth); err != nil {
		return nil, err
	}
	return g, nil
}

// NewSurfacePassGraph builds a pass over swapchain images. The description
// must have exactly one color attachment and no depth.
func NewSurfacePassGraph(desc PassDescription, extent Extent) (*PassGraph, error) {
	if err := validateDescription(desc); err != nil {
		return nil, err
	}
	if len(desc.Colors) != 1 || desc.Depth != nil {
		return nil, fmt.Errorf("pass %q: surface pass needs one color attachment and no depth: %w", desc.Label, ErrInvalidState)
	}
	g := &PassGraph{
		label:      desc.Label,
		desc:       desc,
		version:    1,
		fbVersion:  1,
		generation: 1,
		extent:     extent,
		surface:    true,
		images:     make(map[int]*surfaceImage),
	}
	return g, nil
}

func (g *PassGraph) bindTargets(colors []*RenderTarget, depth *RenderTarget) error {
	if len(colors) != len(g.desc.Colors) {
		return fmt.Errorf("pass %q: %d color targets for %d attachments: %w", g.label, len(colors), len(g.desc.Colors), ErrInvalidState)
	}
	if (depth == nil) != (g.desc.Depth == nil) {
		return fmt.Errorf("pass %q: depth target does not match description: %w", g.label, ErrInvalidState)
	}
	all := append([]*RenderTarget(nil), colors...)
	if depth != nil {
		all = append(all, depth)
	}
	extent := all[0].Extent()
	gens := make([]uint64, len(all))
	for i, t := range all {
		want := g.desc.Depth
		if i < len(colors) {
			want = &g.desc.Colors[i]
		}
		if t.Format() != want.Format {
			return fmt.Errorf("pass %q: target %q is %v, attachment wants %v: %w",
				g.label, t.Label(), t.Format(), want.Format, ErrFormatMismatch)
		}
		if t.Extent() != extent {
			return fmt.Errorf("pass %q: target %q is %v, framebuffer is %v: %w",
				g.label, t.Label(), t.Extent(), extent, ErrInvalidState)
		}
		gens[i] = t.Generation()
	}
	g.colors = append(g.colors[:0], colors...)
	g.depth = depth
	g.gens = gens
	g.extent = extent
	g.fbVersion = g.version
	g.generation++
	return nil
}

// RebuildFramebuffer re-captures the current views of the bound targets.
// A surface pass drops every per-image framebuffer and adopts extent;
// images are re-bound lazily on acquire.
func (g *PassGraph) RebuildFramebuffer(device hal.Device, extent Extent) error {
	if g.surface {
		g.dropImages(device)
		g.extent = extent
		g.fbVersion = g.version
		g.generation++
		slogger().Debug("surface framebuffers rebuilt", "pass", g.label, "extent", extent, "generation", g.generation)
		return nil
	}
	if err := g.bindTargets(g.colors, g.depth); err != nil {
		return err
	}
	slogger().Debug("framebuffer rebuilt", "pass", g.label, "extent", g.extent, "generation", g.generation)
	return nil
}

// RebuildRenderPass replaces the description after an attachment format
// change. The framebuffer is invalid until RebuildFramebuffer.
func (g *PassGraph) RebuildRenderPass(desc PassDescription) error {
	if err := validateDescription(desc); err != nil {
		return err
	}
	if len(desc.Colors) != len(g.desc.Colors) || (desc.Depth == nil) != (g.desc.Depth == nil) {
		return fmt.Errorf("pass %q: attachment layout changed: %w", g.label, ErrInvalidState)
	}
	desc.Label = g.label
	g.desc = desc
	g.version++
	slogger().Debug("render pass rebuilt", "pass", g.label, "version", g.version)
	return nil
}

// SetColorFormat rebuilds the description with a new format for color
// attachment i.
func (g *PassGraph) SetColorFormat(i int, format gputypes.TextureFormat) error {
	desc := g.desc
	desc.Colors = append([]AttachmentDesc(nil), g.desc.Colors...)
	desc.Colors[i].Format = format
	return g.RebuildRenderPass(desc)
}

// Validate reports ErrStaleFramebuffer if any captured view was replaced
// or the description changed since the framebuffer was built.
func (g *PassGraph) Validate() error {
	if g.fbVersion != g.version {
		return fmt.Errorf("pass %q: framebuffer built for description v%d, current v%d: %w",
			g.label, g.fbVersion, g.version, ErrStaleFramebuffer)
	}
	if g.surface {
		return nil
	}
	for i, t := range g.targets() {
		if t.Generation() != g.gens[i] {
			return fmt.Errorf("pass %q: target %q replaced: %w", g.label, t.Label(), ErrStaleFramebuffer)
		}
	}
	return nil
}

func (g *PassGraph) targets() []*RenderTarget {
	if g.depth == nil {
		return g.colors
	}
	return append(append([]*RenderTarget(nil), g.colors...), g.depth)
}

// BindImage records the framebuffer for swapchain image index, creating
// a view of tex when the index is new to this generation.
func (g *PassGraph) BindImage(device hal.Device, index int, tex hal.SurfaceTexture) error {
	if !g.surface {
		return fmt.Errorf("pass %q: BindImage on a fixed pass: %w", g.label, ErrInvalidState)
	}
	if img, ok := g.images[index]; ok && img.texture == tex {
		return nil
	} else if ok {
		device.DestroyTextureView(img.view)
		delete(g.images, index)
	}
	label := fmt.Sprintf("%s_image%d", g.label, index)
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          g.desc.Colors[0].Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return resourceErr("create texture view", label, err)
	}
	g.images[index] = &surfaceImage{texture: tex, view: view}
	return nil
}

// Images returns the number of swapchain images with a framebuffer.
func (g *PassGraph) Images() int { return len(g.images) }

func (g *PassGraph) dropImages(device hal.Device) {
	for i, img := range g.images {
		device.DestroyTextureView(img.view)
		delete(g.images, i)
	}
}

// Begin validates the framebuffer and opens the render pass. image selects
// the swapchain framebuffer of a surface pass and is ignored otherwise.
func (g *PassGraph) Begin(enc hal.CommandEncoder, image int) (hal.RenderPassEncoder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rp := &hal.RenderPassDescriptor{Label: g.label}
	if g.surface {
		img, ok := g.images[image]
		if !ok {
			return nil, fmt.Errorf("pass %q: image %d not bound: %w", g.label, image, ErrStaleFramebuffer)
		}
		c := g.desc.Colors[0]
		rp.ColorAttachments = []hal.RenderPassColorAttachment{{
			View: img.view, LoadOp: c.Load, StoreOp: c.Store, ClearValue: c.Clear,
		}}
	} else {
		for i, t := range g.colors {
			c := g.desc.Colors[i]
			rp.ColorAttachments = append(rp.ColorAttachments, hal.RenderPassColorAttachment{
				View: t.View(), LoadOp: c.Load, StoreOp: c.Store, ClearValue: c.Clear,
			})
		}
		if g.depth != nil {
			d := g.desc.Depth
			rp.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
				View:            g.depth.View(),
				DepthLoadOp:     d.Load,
				DepthStoreOp:    d.Store,
				DepthClearValue: d.ClearDepth,
			}
		}
	}
	pass := enc.BeginRenderPass(rp)
	pass.SetViewport(0, 0, float32(g.extent.Width), float32(g.extent.Height), 0, 1)
	pass.SetScissorRect(0, 0, g.extent.Width, g.extent.Height)
	return pass, nil
}

// EnterBarriers returns the transitions that put every fixed attachment in
// RenderAttachment usage before Begin.
func (g *PassGraph) EnterBarriers() []hal.TextureBarrier {
	var out []hal.TextureBarrier
	for _, t := range g.targets() {
		if b, ok := t.Barrier(gputypes.TextureUsageRenderAttachment); ok {
			out = append(out, b)
		}
	}
	return out
}

// FinalBarriers returns the transitions to each color attachment's final
// usage, recorded right after the pass ends. The depth attachment keeps
// its final usage from the description; consumers transition it.
func (g *PassGraph) FinalBarriers() []hal.TextureBarrier {
	var out []hal.TextureBarrier
	for i, t := range g.colors {
		final := g.desc.Colors[i].FinalUsage
		if final == 0 || final == gputypes.TextureUsageRenderAttachment {
			continue
		}
		if b, ok := t.Barrier(final); ok {
			out = append(out, b)
		}
	}
	return out
}

// Description returns the current description.
func (g *PassGraph) Description() PassDescription { return g.desc }

// DescriptionVersion increments on every RebuildRenderPass.
func (g *PassGraph) DescriptionVersion() uint64 { return g.version }

// Generation increments on every framebuffer (re)build.
func (g *PassGraph) Generation() uint64 { return g.generation }

// Extent returns the framebuffer size.
func (g *PassGraph) Extent() Extent { return g.extent }

// IsSurface reports whether this pass renders to swapchain images.
func (g *PassGraph) IsSurface() bool { return g.surface }

// ColorFormats returns the color attachment formats in order.
func (g *PassGraph) ColorFormats() []gputypes.TextureFormat {
	out := make([]gputypes.TextureFormat, len(g.desc.Colors))
	for i, c := range g.desc.Colors {
		out[i] = c.Format
	}
	return out
}

// DepthFormat returns the depth attachment format, or Undefined.
func (g *PassGraph) DepthFormat() gputypes.TextureFormat {
	if g.desc.Depth == nil {
		return gputypes.TextureFormatUndefined
	}
	return g.desc.Depth.Format
}

// Destroy releases the per-image views of a surface pass. Fixed passes do
// not own their targets.
func (g *PassGraph) Destroy(device hal.Device) {
	if g.surface {
		g.dropImages(device)
	}
}
