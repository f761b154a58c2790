// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFenceStates(t *testing.T) {
	d, q := newTestDevice(t)
	q.SetAutoComplete(false)

	pool, err := NewCommandPool(d, q, "cmd", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	f := pool.Fence(0)
	if !f.Signaled() {
		t.Fatal("fresh fence not signaled")
	}
	cmd, err := pool.Begin(0)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := pool.Submit(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if f.Signaled() || f.Index() != idx {
		t.Fatalf("armed fence: signaled=%v index=%d want %d", f.Signaled(), f.Index(), idx)
	}
	if _, err := pool.Begin(0); !errors.Is(err, ErrFenceNotSignaled) {
		t.Errorf("Begin on busy slot = %v, want ErrFenceNotSignaled", err)
	}

	err = f.Wait(context.Background(), 5*time.Millisecond)
	if !errors.Is(err, ErrFenceTimeout) || !IsFatal(err) {
		t.Errorf("Wait on pending = %v, want fatal ErrFenceTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait with cancelled ctx = %v", err)
	}

	q.Complete(1)
	if err := f.Wait(context.Background(), time.Second); err != nil {
		t.Errorf("Wait after completion = %v", err)
	}
	if _, err := pool.Begin(0); err != nil {
		t.Errorf("Begin after completion = %v", err)
	}
}

func TestFenceWaitCompletesAsync(t *testing.T) {
	d, q := newTestDevice(t)
	q.SetAutoComplete(false)
	pool, err := NewCommandPool(d, q, "cmd", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	cmd, _ := pool.Begin(0)
	if _, err := pool.Submit(cmd); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(2 * time.Millisecond)
		q.Complete(1)
	}()
	if err := pool.Fence(0).Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("Wait = %v", err)
	}
}

func TestFenceWaitOnResetFence(t *testing.T) {
	_, q := newTestDevice(t)
	f := NewFence(q, "f")
	f.Reset()
	if err := f.Wait(context.Background(), time.Millisecond); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Wait on reset fence = %v, want ErrInvalidState", err)
	}
}

func TestSemaphoreProtocol(t *testing.T) {
	s := NewSemaphore("image_acquired")
	if err := s.Consume(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Consume unsignaled = %v", err)
	}
	if err := s.Signal(); err != nil {
		t.Fatal(err)
	}
	if err := s.Signal(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Signal = %v", err)
	}
	if err := s.Consume(); err != nil {
		t.Errorf("Consume = %v", err)
	}
	if s.Signaled() {
		t.Error("still signaled after Consume")
	}
}

func TestCommandPoolGrowAndDiscard(t *testing.T) {
	d, q := newTestDevice(t)
	pool, err := NewCommandPool(d, q, "cmd", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	if err := pool.Grow(4); err != nil {
		t.Fatal(err)
	}
	if pool.Len() != 4 {
		t.Fatalf("Len = %d", pool.Len())
	}
	if _, err := pool.Begin(4); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Begin out of range = %v", err)
	}

	cmd, err := pool.Begin(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Begin(3); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Begin while recording = %v", err)
	}
	pool.Discard(cmd)
	if _, err := pool.Begin(3); err != nil {
		t.Errorf("Begin after Discard = %v", err)
	}
}
