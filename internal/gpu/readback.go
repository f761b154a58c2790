// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ReadBuffer copies size bytes of src into a host-visible staging buffer,
// waits for the copy and returns the bytes. src needs CopySrc usage.
func ReadBuffer(ctx context.Context, device hal.Device, queue hal.Queue, src hal.Buffer, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, resourceErr("create buffer", "readback_staging", err)
	}
	defer device.DestroyBuffer(staging)

	pool, err := NewCommandPool(device, queue, "readback", 1)
	if err != nil {
		return nil, err
	}
	defer pool.Destroy()

	cmd, err := pool.Begin(0)
	if err != nil {
		return nil, err
	}
	cmd.Encoder().CopyBufferToBuffer(src, staging, []hal.BufferCopy{{Size: size}})
	if _, err := pool.Submit(cmd); err != nil {
		return nil, err
	}
	if err := pool.Fence(0).Wait(ctx, DefaultFenceTimeout); err != nil {
		return nil, err
	}

	mapping, err := device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("readback: map staging: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("readback: unmap staging: %w", err)
	}
	return out, nil
}
