// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// DefaultFenceTimeout bounds a single fence wait.
const DefaultFenceTimeout = 5 * time.Second

// Fence poll backoff bounds.
const (
	fencePollMin = 20 * time.Microsecond
	fencePollMax = 2 * time.Millisecond
)

type fenceState uint8

const (
	fenceSignaled fenceState = iota
	fenceReset
	fenceArmed
)

// Fence is a CPU-visible completion signal for one queue submission.
//
// It tracks the submission index returned by hal.Queue.Submit and reports
// signaled once hal.Queue.PollCompleted reaches it. A Fence starts
// signaled, so the first wait on a fresh command buffer slot never blocks.
type Fence struct {
	queue hal.Queue
	label string
	state fenceState
	index uint64
}

// NewFence returns a signaled fence bound to queue.
func NewFence(queue hal.Queue, label string) *Fence {
	return &Fence{queue: queue, label: label, state: fenceSignaled}
}

// Signaled reports whether the guarded submission has completed.
func (f *Fence) Signaled() bool {
	switch f.state {
	case fenceSignaled:
		return true
	case fenceArmed:
		if f.queue.PollCompleted() >= f.index {
			f.state = fenceSignaled
			return true
		}
	}
	return false
}

// Reset returns the fence to unsignaled before a new submission.
func (f *Fence) Reset() {
	f.state = fenceReset
	f.index = 0
}

// attach arms a reset fence with the index of the submission it guards.
func (f *Fence) attach(index uint64) error {
	if f.state != fenceReset {
		return fmt.Errorf("fence %q: attach without reset: %w", f.label, ErrInvalidState)
	}
	f.state = fenceArmed
	f.index = index
	return nil
}

// restore marks the fence signaled after a failed submission.
func (f *Fence) restore() {
	f.state = fenceSignaled
	f.index = 0
}

// Index returns the guarded submission index, 0 if none.
func (f *Fence) Index() uint64 { return f.index }

// Wait blocks until the fence signals, timeout elapses or ctx is done.
// A non-positive timeout means DefaultFenceTimeout.
func (f *Fence) Wait(ctx context.Context, timeout time.Duration) error {
	if f.Signaled() {
		return nil
	}
	if f.state == fenceReset {
		return fmt.Errorf("fence %q: wait on a reset fence with no submission: %w", f.label, ErrInvalidState)
	}
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	delay := fencePollMin
	for {
		poll := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			poll.Stop()
			return ctx.Err()
		case <-deadline.C:
			poll.Stop()
			if f.Signaled() {
				return nil
			}
			slogger().Warn("fence wait timed out",
				"fence", f.label, "index", f.index, "completed", f.queue.PollCompleted(), "timeout", timeout)
			return fmt.Errorf("fence %q index %d after %v: %w", f.label, f.index, timeout, ErrFenceTimeout)
		case <-poll.C:
		}
		if f.Signaled() {
			return nil
		}
		delay = min(delay*2, fencePollMax)
	}
}

// Semaphore tracks the binary semaphore protocol between GPU submissions:
// every signal is consumed by exactly one wait before it is signaled again.
//
// The HAL orders submissions on the queue itself; Semaphore records the
// edges the frame declares and rejects any that would break the protocol.
type Semaphore struct {
	label    string
	signaled bool
}

// NewSemaphore returns an unsignaled semaphore.
func NewSemaphore(label string) *Semaphore { return &Semaphore{label: label} }

// Signal marks the semaphore signaled by a submission.
func (s *Semaphore) Signal() error {
	if s.signaled {
		return fmt.Errorf("semaphore %q: signaled twice without a wait: %w", s.label, ErrInvalidState)
	}
	s.signaled = true
	return nil
}

// Consume records a submission that waits on the semaphore.
func (s *Semaphore) Consume() error {
	if !s.signaled {
		return fmt.Errorf("semaphore %q: wait without a pending signal: %w", s.label, ErrInvalidState)
	}
	s.signaled = false
	return nil
}

// Signaled reports whether a signal is pending.
func (s *Semaphore) Signaled() bool { return s.signaled }

// Label returns the debug label.
func (s *Semaphore) Label() string { return s.label }

// reset drops a pending signal. Only valid once the device is idle.
func (s *Semaphore) reset() { s.signaled = false }

// CommandBuffer is a command buffer being recorded in a CommandPool slot.
type CommandBuffer struct {
	pool    *CommandPool
	slot    int
	label   string
	encoder hal.CommandEncoder
	raw     hal.CommandBuffer
	ended   bool
}

// Slot returns the pool slot index. Staging regions are indexed by slot.
func (c *CommandBuffer) Slot() int { return c.slot }

// Encoder returns the HAL encoder recording into this buffer.
func (c *CommandBuffer) Encoder() hal.CommandEncoder { return c.encoder }

// Label returns the debug label.
func (c *CommandBuffer) Label() string { return c.label }

// End finishes recording.
func (c *CommandBuffer) End() error {
	if c.ended {
		return fmt.Errorf("command buffer %q: ended twice: %w", c.label, ErrInvalidState)
	}
	raw, err := c.encoder.EndEncoding()
	if err != nil {
		return resourceErr("end encoding", c.label, err)
	}
	c.raw = raw
	c.ended = true
	return nil
}

type cmdSlot struct {
	encoder hal.CommandEncoder
	fence   *Fence
	last    hal.CommandBuffer
	active  *CommandBuffer
}

// CommandPool owns one re-recordable command buffer per slot, each guarded
// by its own Fence. A slot is only re-recorded after its fence signals.
type CommandPool struct {
	device hal.Device
	queue  hal.Queue
	label  string
	slots  []*cmdSlot
}

// NewCommandPool creates a pool with n slots.
func NewCommandPool(device hal.Device, queue hal.Queue, label string, n int) (*CommandPool, error) {
	p := &CommandPool{device: device, queue: queue, label: label}
	if err := p.Grow(n); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// Grow adds slots until the pool holds at least n.
func (p *CommandPool) Grow(n int) error {
	for len(p.slots) < n {
		i := len(p.slots)
		label := fmt.Sprintf("%s[%d]", p.label, i)
		enc, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
		if err != nil {
			return resourceErr("create command encoder", label, err)
		}
		p.slots = append(p.slots, &cmdSlot{
			encoder: enc,
			fence:   NewFence(p.queue, label),
		})
	}
	return nil
}

// Len returns the number of slots.
func (p *CommandPool) Len() int { return len(p.slots) }

// Fence returns the fence guarding slot i.
func (p *CommandPool) Fence(i int) *Fence { return p.slots[i].fence }

// Begin starts re-recording slot i. The slot's fence must have signaled.
func (p *CommandPool) Begin(i int) (*CommandBuffer, error) {
	if i < 0 || i >= len(p.slots) {
		return nil, fmt.Errorf("command pool %q: slot %d out of range [0,%d): %w", p.label, i, len(p.slots), ErrInvalidState)
	}
	s := p.slots[i]
	label := fmt.Sprintf("%s[%d]", p.label, i)
	if s.active != nil {
		return nil, fmt.Errorf("command pool %q: slot %d already recording: %w", p.label, i, ErrInvalidState)
	}
	if !s.fence.Signaled() {
		return nil, fmt.Errorf("command pool %q: slot %d: %w", p.label, i, ErrFenceNotSignaled)
	}
	if s.last != nil {
		p.device.FreeCommandBuffer(s.last)
		s.last = nil
	}
	if err := s.encoder.BeginEncoding(label); err != nil {
		return nil, resourceErr("begin encoding", label, err)
	}
	s.active = &CommandBuffer{pool: p, slot: i, label: label, encoder: s.encoder}
	return s.active, nil
}

// Submit ends cmd if needed, submits it and arms the slot fence.
// The returned index is the queue submission index.
func (p *CommandPool) Submit(cmd *CommandBuffer) (uint64, error) {
	if cmd.pool != p {
		return 0, fmt.Errorf("command pool %q: foreign command buffer %q: %w", p.label, cmd.label, ErrInvalidState)
	}
	if !cmd.ended {
		if err := cmd.End(); err != nil {
			return 0, err
		}
	}
	s := p.slots[cmd.slot]
	s.active = nil
	s.last = cmd.raw

	s.fence.Reset()
	index, err := p.queue.Submit([]hal.CommandBuffer{cmd.raw})
	if err != nil {
		s.fence.restore()
		return 0, fmt.Errorf("submit %q: %w", cmd.label, err)
	}
	if err := s.fence.attach(index); err != nil {
		return 0, err
	}
	return index, nil
}

// Discard abandons a recording started with Begin.
func (p *CommandPool) Discard(cmd *CommandBuffer) {
	if cmd == nil || cmd.pool != p {
		return
	}
	s := p.slots[cmd.slot]
	if s.active != cmd {
		return
	}
	if !cmd.ended {
		cmd.encoder.DiscardEncoding()
	} else if cmd.raw != nil {
		p.device.FreeCommandBuffer(cmd.raw)
	}
	s.active = nil
}

// Destroy releases all encoders. The device must be idle.
func (p *CommandPool) Destroy() {
	for _, s := range p.slots {
		if s.active != nil && !s.active.ended {
			s.encoder.DiscardEncoding()
		}
		if s.last != nil {
			p.device.FreeCommandBuffer(s.last)
		}
		s.encoder.Destroy()
	}
	p.slots = nil
}
