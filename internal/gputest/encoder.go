// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Op names a recorded command.
type Op string

const (
	OpTransitionTextures Op = "transition_textures"
	OpTransitionBuffers  Op = "transition_buffers"
	OpCopyBuffer         Op = "copy_buffer"
	OpBeginPass          Op = "begin_pass"
	OpEndPass            Op = "end_pass"
	OpSetPipeline        Op = "set_pipeline"
	OpSetBindGroup       Op = "set_bind_group"
	OpSetVertexBuffer    Op = "set_vertex_buffer"
	OpSetIndexBuffer     Op = "set_index_buffer"
	OpDraw               Op = "draw"
	OpDrawIndexed        Op = "draw_indexed"
)

// Command is one recorded encoder call. Only the fields of its Op are set.
type Command struct {
	Op Op

	TextureBarriers []hal.TextureBarrier
	BufferBarriers  []hal.BufferBarrier

	Src, Dst *Buffer
	Regions  []hal.BufferCopy

	Pass *hal.RenderPassDescriptor

	Pipeline  hal.RenderPipeline
	Group     uint32
	BindGroup hal.BindGroup
	Slot      uint32
	Buffer    hal.Buffer

	// Count is the vertex or index count of a draw.
	Count     uint32
	Instances uint32
}

// CommandBuffer is a finished recording.
type CommandBuffer struct {
	Resource
	Commands []Command

	refs  map[uint64]bool
	freed bool
}

// Ops returns the recorded op sequence.
func (c *CommandBuffer) Ops() []Op {
	out := make([]Op, len(c.Commands))
	for i, cmd := range c.Commands {
		out[i] = cmd.Op
	}
	return out
}

// Find returns the recorded commands with op.
func (c *CommandBuffer) Find(op Op) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

// Index returns the position of the first op, or -1.
func (c *CommandBuffer) Index(op Op) int {
	for i, cmd := range c.Commands {
		if cmd.Op == op {
			return i
		}
	}
	return -1
}

// Encoder records commands into CommandBuffers.
type Encoder struct {
	noop.CommandEncoder

	dev   *Device
	label string

	recording bool
	cmds      []Command
	refs      map[uint64]bool
	last      *CommandBuffer
}

func (e *Encoder) record(c Command, refs ...any) {
	e.cmds = append(e.cmds, c)
	for _, r := range refs {
		if id := idOf(r); id != 0 {
			e.refs[id] = true
		}
	}
}

func (e *Encoder) BeginEncoding(label string) error {
	if e.recording {
		return fmt.Errorf("gputest: encoder %q: already recording", e.label)
	}
	e.dev.mu.Lock()
	if e.last != nil && e.dev.queue.inFlight(e.last) {
		e.dev.violate("re-record encoder %q: previous command buffer in flight", e.label)
	}
	e.dev.mu.Unlock()
	if label != "" {
		e.label = label
	}
	e.recording = true
	e.cmds = nil
	e.refs = make(map[uint64]bool)
	return nil
}

func (e *Encoder) EndEncoding() (hal.CommandBuffer, error) {
	if !e.recording {
		return nil, fmt.Errorf("gputest: encoder %q: not recording", e.label)
	}
	e.recording = false
	cb := &CommandBuffer{
		Resource: e.dev.newResource("command_buffer", e.label),
		Commands: e.cmds,
		refs:     e.refs,
	}
	e.cmds, e.refs = nil, nil
	e.last = cb
	e.dev.mu.Lock()
	delete(e.dev.live, cb.ID)
	e.dev.mu.Unlock()
	return cb, nil
}

func (e *Encoder) DiscardEncoding() {
	e.recording = false
	e.cmds, e.refs = nil, nil
}

func (e *Encoder) TransitionTextures(b []hal.TextureBarrier) {
	refs := make([]any, 0, len(b))
	for _, x := range b {
		refs = append(refs, x.Texture)
	}
	e.record(Command{Op: OpTransitionTextures, TextureBarriers: append([]hal.TextureBarrier(nil), b...)}, refs...)
}

func (e *Encoder) TransitionBuffers(b []hal.BufferBarrier) {
	refs := make([]any, 0, len(b))
	for _, x := range b {
		refs = append(refs, x.Buffer)
	}
	e.record(Command{Op: OpTransitionBuffers, BufferBarriers: append([]hal.BufferBarrier(nil), b...)}, refs...)
}

func (e *Encoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	s, _ := src.(*Buffer)
	d, _ := dst.(*Buffer)
	e.record(Command{Op: OpCopyBuffer, Src: s, Dst: d, Regions: append([]hal.BufferCopy(nil), regions...)}, src, dst)
}

func (e *Encoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	cp := *desc
	refs := []any{}
	for _, c := range desc.ColorAttachments {
		refs = append(refs, c.View)
	}
	if desc.DepthStencilAttachment != nil {
		ds := *desc.DepthStencilAttachment
		cp.DepthStencilAttachment = &ds
		refs = append(refs, ds.View)
	}
	cp.ColorAttachments = append([]hal.RenderPassColorAttachment(nil), desc.ColorAttachments...)
	e.record(Command{Op: OpBeginPass, Pass: &cp}, refs...)
	return &RenderPass{enc: e}
}

// RenderPass records into its Encoder.
type RenderPass struct {
	noop.RenderPassEncoder
	enc *Encoder
}

func (r *RenderPass) End() { r.enc.record(Command{Op: OpEndPass}) }

func (r *RenderPass) SetPipeline(p hal.RenderPipeline) {
	r.enc.record(Command{Op: OpSetPipeline, Pipeline: p}, p)
}

func (r *RenderPass) SetBindGroup(index uint32, g hal.BindGroup, _ []uint32) {
	r.enc.record(Command{Op: OpSetBindGroup, Group: index, BindGroup: g}, g)
}

func (r *RenderPass) SetVertexBuffer(slot uint32, b hal.Buffer, _ uint64) {
	r.enc.record(Command{Op: OpSetVertexBuffer, Slot: slot, Buffer: b}, b)
}

func (r *RenderPass) SetIndexBuffer(b hal.Buffer, _ gputypes.IndexFormat, _ uint64) {
	r.enc.record(Command{Op: OpSetIndexBuffer, Buffer: b}, b)
}

func (r *RenderPass) Draw(vertexCount, instanceCount, _, _ uint32) {
	r.enc.record(Command{Op: OpDraw, Count: vertexCount, Instances: instanceCount})
}

func (r *RenderPass) DrawIndexed(indexCount, instanceCount, _ uint32, _ int32, _ uint32) {
	r.enc.record(Command{Op: OpDrawIndexed, Count: indexCount, Instances: instanceCount})
}
