// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gputest provides a recording hal.Device for headless runs and
// tests.
//
// It wraps the noop backend, gives every resource a distinct identity,
// records every encoded command, executes buffer copies when a submission
// completes and reports synchronization violations: re-recording or freeing
// an in-flight command buffer, mapping a buffer the GPU still uses, and
// destroying resources referenced by in-flight work.
//
// Submissions complete immediately unless the queue is switched to manual
// completion with SetAutoComplete(false).
package gputest

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Resource is a HAL object with a stable identity.
type Resource struct {
	ID    uint64
	Kind  string
	Label string
}

// Destroy is a no-op; destruction goes through the Device.
func (r *Resource) Destroy() {}

// NativeHandle returns the resource ID.
func (r *Resource) NativeHandle() uintptr { return uintptr(r.ID) }

func (r *Resource) resourceID() uint64 { return r.ID }

type identified interface{ resourceID() uint64 }

func idOf(v any) uint64 {
	if r, ok := v.(identified); ok && r != nil {
		return r.resourceID()
	}
	return 0
}

// Buffer is a buffer with in-memory contents.
type Buffer struct {
	Resource
	Usage gputypes.BufferUsage
	data  []byte
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Texture is a texture or swapchain image.
type Texture struct {
	Resource
	Desc hal.TextureDescriptor
}

func (t *Texture) CurrentUsage() gputypes.TextureUsage { return 0 }
func (t *Texture) AddPendingRef()                      {}
func (t *Texture) DecPendingRef()                      {}

// Device is a recording hal.Device. Unrecorded entry points fall through to
// the noop backend.
type Device struct {
	noop.Device

	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Resource
	queue  *Queue

	created    map[string]int
	violations []string
}

// New returns a device and its queue.
func New() (*Device, *Queue) {
	d := &Device{
		live:    make(map[uint64]*Resource),
		created: make(map[string]int),
	}
	d.queue = &Queue{dev: d, auto: true}
	return d, d.queue
}

func (d *Device) newResource(kind, label string) Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	r := Resource{ID: d.nextID, Kind: kind, Label: label}
	d.live[r.ID] = &r
	d.created[kind]++
	return r
}

func (d *Device) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Violations returns every synchronization violation seen so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Created returns how many resources of kind were created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Live returns how many resources of kind are not destroyed. An empty kind
// counts everything.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.live {
		if kind == "" || r.Kind == kind {
			n++
		}
	}
	return n
}

func (d *Device) destroy(kind string, v any) {
	id := idOf(v)
	if id == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[id]; !ok {
		d.violate("destroy %s #%d: not live", kind, id)
		return
	}
	if d.queue.inFlightRef(id) {
		d.violate("destroy %s #%d: referenced by in-flight work", kind, id)
	}
	delete(d.live, id)
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc == nil {
		return nil, fmt.Errorf("gputest: nil buffer descriptor")
	}
	return &Buffer{
		Resource: d.newResource("buffer", desc.Label),
		Usage:    desc.Usage,
		data:     make([]byte, desc.Size),
	}, nil
}

func (d *Device) DestroyBuffer(b hal.Buffer) { d.destroy("buffer", b) }

func (d *Device) MapBuffer(buffer hal.Buffer, offset, size uint64) (hal.BufferMapping, error) {
	b, ok := buffer.(*Buffer)
	if !ok || offset+size > uint64(len(b.data)) || size == 0 {
		return hal.BufferMapping{}, hal.ErrInvalidMapRange
	}
	d.mu.Lock()
	if d.queue.inFlightRef(b.ID) {
		d.violate("map buffer %q #%d: used by in-flight work", b.Label, b.ID)
	}
	d.mu.Unlock()
	return hal.BufferMapping{Ptr: unsafe.Pointer(&b.data[offset]), IsCoherent: true}, nil
}

func (d *Device) UnmapBuffer(hal.Buffer) error { return nil }

func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if desc == nil {
		return nil, fmt.Errorf("gputest: nil texture descriptor")
	}
	return &Texture{Resource: d.newResource("texture", desc.Label), Desc: *desc}, nil
}

func (d *Device) DestroyTexture(t hal.Texture) { d.destroy("texture", t) }

func (d *Device) CreateTextureView(_ hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	label := ""
	if desc != nil {
		label = desc.Label
	}
	r := d.newResource("view", label)
	return &r, nil
}

func (d *Device) DestroyTextureView(v hal.TextureView) { d.destroy("view", v) }

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	r := d.newResource("sampler", desc.Label)
	return &r, nil
}

func (d *Device) DestroySampler(s hal.Sampler) { d.destroy("sampler", s) }

func (d *Device) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	r := d.newResource("bind_group_layout", desc.Label)
	return &r, nil
}

func (d *Device) DestroyBindGroupLayout(l hal.BindGroupLayout) { d.destroy("bind_group_layout", l) }

func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	r := d.newResource("bind_group", desc.Label)
	return &r, nil
}

func (d *Device) DestroyBindGroup(g hal.BindGroup) { d.destroy("bind_group", g) }

func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	r := d.newResource("pipeline_layout", desc.Label)
	return &r, nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) { d.destroy("pipeline_layout", l) }

func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	r := d.newResource("shader_module", desc.Label)
	return &r, nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) { d.destroy("shader_module", m) }

// RenderPipeline keeps its descriptor for inspection.
type RenderPipeline struct {
	Resource
	Desc hal.RenderPipelineDescriptor
}

func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	return &RenderPipeline{Resource: d.newResource("render_pipeline", desc.Label), Desc: *desc}, nil
}

func (d *Device) DestroyRenderPipeline(p hal.RenderPipeline) { d.destroy("render_pipeline", p) }

func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	label := ""
	if desc != nil {
		label = desc.Label
	}
	return &Encoder{dev: d, label: label}, nil
}

func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	c, ok := cb.(*CommandBuffer)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue.inFlight(c) {
		d.violate("free command buffer %q: in flight", c.Label)
	}
	c.freed = true
}

// WaitIdle completes every pending submission.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.completeLocked(len(d.queue.pending))
	return nil
}
