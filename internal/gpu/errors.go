// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below wrap them so callers can match
// with errors.Is regardless of the concrete type.
var (
	// ErrDeviceResource is wrapped by every failure to create an image,
	// view, buffer, pass, pipeline or framebuffer. Always fatal.
	ErrDeviceResource = errors.New("gpu: device resource creation failed")

	// ErrPoolExhausted is returned when a binding pool has no free capacity.
	ErrPoolExhausted = errors.New("gpu: binding pool exhausted")

	// ErrSurfaceStale is returned when acquire or present reports a stale,
	// suboptimal or out-of-date surface. Recoverable through a resize.
	ErrSurfaceStale = errors.New("gpu: surface is stale")

	// ErrFenceTimeout is returned when a fence does not signal in time.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")

	// ErrFenceNotSignaled is returned when a command buffer is re-recorded
	// before the fence guarding its previous submission has signaled.
	ErrFenceNotSignaled = errors.New("gpu: command buffer fence not signaled")

	// ErrInvalidState is returned for an illegal frame state transition or
	// a synchronization object used out of protocol.
	ErrInvalidState = errors.New("gpu: invalid state")

	// ErrUniformTooLarge is returned for uniform slots above MaxUniformUpdate.
	ErrUniformTooLarge = errors.New("gpu: uniform slot exceeds single-update limit")

	// ErrUniformAlignment is returned for uniform sizes that are not a multiple of 4.
	ErrUniformAlignment = errors.New("gpu: uniform slot size must be a multiple of 4")

	// ErrDuplicateBinding is returned when a layout repeats a binding index.
	ErrDuplicateBinding = errors.New("gpu: duplicate binding index")

	// ErrBindingKind is returned when a write targets an index of another kind
	// or an index the layout does not declare.
	ErrBindingKind = errors.New("gpu: binding kind mismatch")

	// ErrIncompleteWrite is returned when a batched write leaves a layout index unbound.
	ErrIncompleteWrite = errors.New("gpu: binding write does not cover every layout index")

	// ErrFormatMismatch is returned when a render target is recreated with a new format.
	ErrFormatMismatch = errors.New("gpu: render target format is immutable")

	// ErrStaleFramebuffer is returned when a pass begins after an attachment
	// view changed without a framebuffer rebuild.
	ErrStaleFramebuffer = errors.New("gpu: framebuffer references a replaced view")

	// ErrDestroyed is returned when an object is used after Destroy.
	ErrDestroyed = errors.New("gpu: object destroyed")
)

// DeviceResourceError reports a failed device object creation.
type DeviceResourceError struct {
	// Op is the device call that failed, e.g. "create texture".
	Op string
	// Label is the debug label of the object being created.
	Label string
	// Err is the backend error.
	Err error
}

func (e *DeviceResourceError) Error() string {
	return fmt.Sprintf("gpu: %s %q: %v", e.Op, e.Label, e.Err)
}

// Unwrap exposes both ErrDeviceResource and the backend error.
func (e *DeviceResourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDeviceResource}
	}
	return []error{ErrDeviceResource, e.Err}
}

// resourceErr wraps a backend creation failure.
func resourceErr(op, label string, err error) error {
	return &DeviceResourceError{Op: op, Label: label, Err: err}
}

// PoolExhaustedError reports which pool capacity ran out.
type PoolExhaustedError struct {
	// Kind is "sets" or the descriptor kind that ran out.
	Kind string
	// Requested is the amount the allocation needed.
	Requested int
	// Available is the amount left in the pool.
	Available int
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("gpu: binding pool exhausted: %s requested %d, available %d",
		e.Kind, e.Requested, e.Available)
}

// Unwrap returns ErrPoolExhausted.
func (e *PoolExhaustedError) Unwrap() error { return ErrPoolExhausted }

// SurfaceStaleError reports a surface that must be recreated before the
// next frame. It is not a failure.
type SurfaceStaleError struct {
	// Op is "acquire" or "present".
	Op string
	// Suboptimal is true when the backend still returned an image.
	Suboptimal bool
	// Err is the backend status, nil for a suboptimal image.
	Err error
}

func (e *SurfaceStaleError) Error() string {
	if e.Suboptimal {
		return fmt.Sprintf("gpu: %s: surface suboptimal", e.Op)
	}
	return fmt.Sprintf("gpu: %s: surface stale: %v", e.Op, e.Err)
}

// Unwrap exposes ErrSurfaceStale and the backend status.
func (e *SurfaceStaleError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSurfaceStale}
	}
	return []error{ErrSurfaceStale, e.Err}
}

// IsFatal reports whether err must unwind to the top level.
// Stale surfaces and context cancellation are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSurfaceStale) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
