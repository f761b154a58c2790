// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// MaxUniformUpdate is the largest uniform slot that can be refreshed with a
// single in-command-buffer update.
const MaxUniformUpdate = 65536

// UniformSource supplies the current bytes of a CPU-side uniform block.
// The slot keeps a reference and reads it on every push; the owner keeps
// the memory alive and must not change its length.
type UniformSource interface {
	Bytes() []byte
}

// ByteSource adapts a byte slice to UniformSource.
type ByteSource []byte

// Bytes returns the slice itself.
func (b ByteSource) Bytes() []byte { return b }

// UniformSlot is a GPU uniform buffer refreshed from a UniformSource.
//
// Every command buffer slot owns a private staging buffer, so a push
// recorded for a new frame never overwrites bytes still being copied by a
// frame in flight.
type UniformSlot struct {
	label   string
	size    uint64
	source  UniformSource
	buffer  hal.Buffer
	staging []hal.Buffer
}

// NewUniformSlot allocates a uniform buffer sized to source and regions
// staging buffers.
func NewUniformSlot(device hal.Device, label string, source UniformSource, regions int) (*UniformSlot, error) {
	size := uint64(len(source.Bytes()))
	if size == 0 || size%4 != 0 {
		return nil, fmt.Errorf("uniform %q: size %d: %w", label, size, ErrUniformAlignment)
	}
	if size > MaxUniformUpdate {
		return nil, fmt.Errorf("uniform %q: size %d > %d: %w", label, size, MaxUniformUpdate, ErrUniformTooLarge)
	}

	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, resourceErr("create buffer", label, err)
	}
	u := &UniformSlot{label: label, size: size, source: source, buffer: buf}
	if err := u.Grow(device, regions); err != nil {
		u.Destroy(device)
		return nil, err
	}
	return u, nil
}

// Grow adds staging buffers until there are at least n.
func (u *UniformSlot) Grow(device hal.Device, n int) error {
	for len(u.staging) < n {
		label := fmt.Sprintf("%s_staging[%d]", u.label, len(u.staging))
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: label,
			Size:  u.size,
			Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
		})
		if err != nil {
			return resourceErr("create buffer", label, err)
		}
		u.staging = append(u.staging, buf)
	}
	return nil
}

// Push records a refresh of the GPU buffer from the current source bytes:
// a barrier from uniform reads to transfer writes, the copy, and a barrier
// back. It must be recorded outside a render pass.
func (u *UniformSlot) Push(device hal.Device, cmd *CommandBuffer) error {
	data := u.source.Bytes()
	if uint64(len(data)) != u.size {
		return fmt.Errorf("uniform %q: source is %d bytes, slot is %d: %w", u.label, len(data), u.size, ErrInvalidState)
	}
	if err := u.Grow(device, cmd.Slot()+1); err != nil {
		return err
	}
	staging := u.staging[cmd.Slot()]

	mapping, err := device.MapBuffer(staging, 0, u.size)
	if err != nil {
		return fmt.Errorf("uniform %q: map staging: %w", u.label, err)
	}
	copy(unsafe.Slice((*byte)(mapping.Ptr), u.size), data)
	if err := device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("uniform %q: unmap staging: %w", u.label, err)
	}

	enc := cmd.Encoder()
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: u.buffer,
		Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageUniform,
			NewUsage: gputypes.BufferUsageCopyDst,
		},
	}})
	enc.CopyBufferToBuffer(staging, u.buffer, []hal.BufferCopy{{Size: u.size}})
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: u.buffer,
		Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageCopyDst,
			NewUsage: gputypes.BufferUsageUniform,
		},
	}})
	return nil
}

// Buffer returns the GPU uniform buffer.
func (u *UniformSlot) Buffer() hal.Buffer { return u.buffer }

// Size returns the slot size in bytes.
func (u *UniformSlot) Size() uint64 { return u.size }

// Label returns the debug label.
func (u *UniformSlot) Label() string { return u.label }

// Destroy releases the uniform and staging buffers.
func (u *UniformSlot) Destroy(device hal.Device) {
	for _, s := range u.staging {
		device.DestroyBuffer(s)
	}
	u.staging = nil
	if u.buffer != nil {
		device.DestroyBuffer(u.buffer)
		u.buffer = nil
	}
}
