// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/internal/gputest"
)

func TestNewUniformSlotValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	tests := []struct {
		name string
		size int
		want error
	}{
		{"empty", 0, ErrUniformAlignment},
		{"unaligned", 6, ErrUniformAlignment},
		{"too large", MaxUniformUpdate + 4, ErrUniformTooLarge},
		{"max", MaxUniformUpdate, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewUniformSlot(d, tt.name, make(ByteSource, tt.size), 1)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if u != nil {
				u.Destroy(d)
			}
		})
	}
}

func TestUniformPushRecordsTriple(t *testing.T) {
	d, q := newTestDevice(t)
	src := make(ByteSource, 48)
	u, err := NewUniformSlot(d, "material", src, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Destroy(d)

	pool, err := NewCommandPool(d, q, "cmd", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cmd, err := pool.Begin(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Push(d, cmd); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := pool.Submit(cmd); err != nil {
		t.Fatal(err)
	}

	subs := q.Submissions()
	cb := subs[len(subs)-1].Buffers[0]
	want := []gputest.Op{gputest.OpTransitionBuffers, gputest.OpCopyBuffer, gputest.OpTransitionBuffers}
	if got := cb.Ops(); !slices.Equal(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	in, out := cb.Commands[0].BufferBarriers[0], cb.Commands[2].BufferBarriers[0]
	if in.Usage.OldUsage != gputypes.BufferUsageUniform || in.Usage.NewUsage != gputypes.BufferUsageCopyDst {
		t.Errorf("entry barrier = %+v", in.Usage)
	}
	if out.Usage.OldUsage != gputypes.BufferUsageCopyDst || out.Usage.NewUsage != gputypes.BufferUsageUniform {
		t.Errorf("exit barrier = %+v", out.Usage)
	}
	if cp := cb.Commands[1]; cp.Dst == nil || cp.Dst.ID != idOfBuffer(u) || cp.Regions[0].Size != 48 {
		t.Errorf("copy = %+v", cp)
	}
}

func TestUniformPushRejectsResizedSource(t *testing.T) {
	d, q := newTestDevice(t)
	src := &growingSource{b: make([]byte, 16)}
	u, err := NewUniformSlot(d, "scene", src, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Destroy(d)
	pool, _ := NewCommandPool(d, q, "cmd", 1)
	defer pool.Destroy()
	cmd, _ := pool.Begin(0)
	defer pool.Discard(cmd)

	src.b = append(src.b, 0, 0, 0, 0)
	if err := u.Push(d, cmd); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Push with resized source = %v, want ErrInvalidState", err)
	}
}

// Scenario C: bytes pushed through a submitted, fence-awaited command
// buffer read back unchanged.
func TestUniformPushReadback(t *testing.T) {
	d, q := newTestDevice(t)
	q.SetAutoComplete(false)

	src := make(ByteSource, 80)
	for i := range src {
		src[i] = byte(i + 1)
	}
	u, err := NewUniformSlot(d, "scene", src, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Destroy(d)

	pool, err := NewCommandPool(d, q, "cmd", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cmd, err := pool.Begin(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Push(d, cmd); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Submit(cmd); err != nil {
		t.Fatal(err)
	}
	q.Complete(1)
	if err := pool.Fence(0).Wait(context.Background(), DefaultFenceTimeout); err != nil {
		t.Fatal(err)
	}

	q.SetAutoComplete(true)
	got, err := ReadBuffer(context.Background(), d, q, u.Buffer(), u.Size())
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("readback = %v, want %v", got, []byte(src))
	}
}

func TestUniformStagingPerSlot(t *testing.T) {
	d, q := newTestDevice(t)
	q.SetAutoComplete(false)

	src := make(ByteSource, 16)
	u, err := NewUniformSlot(d, "lights", src, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Destroy(d)
	pool, _ := NewCommandPool(d, q, "cmd", 2)
	defer pool.Destroy()

	// Two frames in flight on different slots must not share staging.
	for slot := range 2 {
		cmd, err := pool.Begin(slot)
		if err != nil {
			t.Fatal(err)
		}
		src[0] = byte(slot + 1)
		if err := u.Push(d, cmd); err != nil {
			t.Fatal(err)
		}
		if _, err := pool.Submit(cmd); err != nil {
			t.Fatal(err)
		}
	}
	q.Complete(2)
	got := u.Buffer().(*gputest.Buffer).Bytes()
	if got[0] != 2 {
		t.Errorf("uniform[0] = %d, want 2 (last push wins)", got[0])
	}
	if v := d.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

type growingSource struct{ b []byte }

func (g *growingSource) Bytes() []byte { return g.b }

func idOfBuffer(u *UniformSlot) uint64 { return u.Buffer().(*gputest.Buffer).ID }
