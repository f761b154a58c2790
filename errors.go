// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"errors"

	"github.com/gogpu/deferred/internal/gpu"
)

// Errors returned by the renderer. Match them with errors.Is.
var (
	ErrDeviceResource   = gpu.ErrDeviceResource
	ErrPoolExhausted    = gpu.ErrPoolExhausted
	ErrSurfaceStale     = gpu.ErrSurfaceStale
	ErrFenceTimeout     = gpu.ErrFenceTimeout
	ErrFenceNotSignaled = gpu.ErrFenceNotSignaled
	ErrInvalidState     = gpu.ErrInvalidState
	ErrUniformTooLarge  = gpu.ErrUniformTooLarge
	ErrDuplicateBinding = gpu.ErrDuplicateBinding
	ErrBindingKind      = gpu.ErrBindingKind
	ErrIncompleteWrite  = gpu.ErrIncompleteWrite
	ErrFormatMismatch   = gpu.ErrFormatMismatch
	ErrStaleFramebuffer = gpu.ErrStaleFramebuffer
	ErrDestroyed        = gpu.ErrDestroyed
)

var (
	// ErrInvalidConfig is wrapped by every Config validation failure.
	ErrInvalidConfig = errors.New("deferred: invalid config")

	// ErrNoHALProvider is returned by FromProvider when the provider does
	// not expose its HAL device and queue.
	ErrNoHALProvider = errors.New("deferred: provider does not expose HAL device and queue")
)

// Typed errors carrying context. They wrap the sentinels above.
type (
	DeviceResourceError = gpu.DeviceResourceError
	PoolExhaustedError  = gpu.PoolExhaustedError
	SurfaceStaleError   = gpu.SurfaceStaleError
)

// IsFatal reports whether err must stop the driver loop. Stale surfaces
// and context cancellation are recoverable.
func IsFatal(err error) bool { return gpu.IsFatal(err) }
