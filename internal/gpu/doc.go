// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu implements the frame-graph and synchronization engine of the
// two-pass deferred renderer on top of the gogpu/wgpu HAL.
//
// This is an internal package used by the deferred facade. It talks to
// hal.Device, hal.Queue and hal.Surface directly, so it runs unchanged on
// the Vulkan, Metal, DX12, GLES and noop backends.
//
// # Architecture Overview
//
// Each frame submits two dependent passes:
//
//	Offscreen G-buffer pass -> [depth barrier] -> Composite pass -> Present
//
// Key components, leaf first:
//
//   - RenderTarget: an owned texture + view + format, recreated on resize
//   - BindingLayout / BindingPool / BindingSet: bind group layouts, pool
//     accounting and batched bind group writes
//   - UniformSlot: a uniform buffer fed from externally owned CPU bytes,
//     pushed with a (barrier, copy, barrier) bracket
//   - PassGraph: a render pass description plus the framebuffer bound to a
//     fixed set of RenderTargets, or to the rotating surface images
//   - Fence / Semaphore / CommandPool: submission-index fences, binary
//     semaphore protocol checks and fence-gated command buffer reuse
//   - Swapchain: surface configuration, acquire and present
//   - Orchestrator: the per-frame state machine and the resize sequence
//
// # Frame State Machine
//
//	Idle -> RecordingOffscreen -> SubmittedOffscreen -> AcquiringSurface
//	     -> RecordingComposite -> SubmittedComposite -> Presenting -> Idle
//
// ResizePending is entered from any state when the surface reports stale,
// suboptimal or out-of-date status. The next RenderFrame call performs the
// resize before recording.
//
// # Error Handling
//
//   - DeviceResourceError (ErrDeviceResource): fatal
//   - PoolExhaustedError (ErrPoolExhausted): fatal
//   - SurfaceStaleError (ErrSurfaceStale): recoverable, triggers a resize
//
// Use IsFatal to classify an error returned from RenderFrame.
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use. A single goroutine
// records and submits; the deferred.Renderer facade adds locking.
package gpu
