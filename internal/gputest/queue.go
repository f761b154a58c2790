// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/wgpu/hal"
)

// Submission is one recorded Queue.Submit call.
type Submission struct {
	Index      uint64
	Buffers    []*CommandBuffer
	Suppressed bool
}

// Queue is a recording hal.Queue.
type Queue struct {
	dev *Device

	auto       bool
	submitted  uint64
	completed  uint64
	pending    []Submission
	log        []Submission
	suppressed bool

	presents   int
	presentErr []error
	writes     int
}

// SetAutoComplete selects whether submissions complete as soon as they are
// submitted. With false, Complete or Device.WaitIdle must be called.
func (q *Queue) SetAutoComplete(auto bool) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.auto = auto
	if auto {
		q.completeLocked(len(q.pending))
	}
}

// Complete finishes the n oldest pending submissions.
func (q *Queue) Complete(n int) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.completeLocked(n)
}

// Pending returns the number of submissions not yet complete.
func (q *Queue) Pending() int {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) completeLocked(n int) {
	for ; n > 0 && len(q.pending) > 0; n-- {
		s := q.pending[0]
		q.pending = q.pending[1:]
		for _, cb := range s.Buffers {
			execute(cb)
		}
		q.completed = s.Index
	}
}

// execute applies the buffer copies of cb.
func execute(cb *CommandBuffer) {
	for _, c := range cb.Commands {
		if c.Op != OpCopyBuffer || c.Src == nil || c.Dst == nil {
			continue
		}
		for _, r := range c.Regions {
			end := r.SrcOffset + r.Size
			if end > uint64(len(c.Src.data)) || r.DstOffset+r.Size > uint64(len(c.Dst.data)) {
				continue
			}
			copy(c.Dst.data[r.DstOffset:], c.Src.data[r.SrcOffset:end])
		}
	}
}

func (q *Queue) inFlight(cb *CommandBuffer) bool {
	for _, s := range q.pending {
		for _, b := range s.Buffers {
			if b == cb {
				return true
			}
		}
	}
	return false
}

func (q *Queue) inFlightRef(id uint64) bool {
	for _, s := range q.pending {
		for _, b := range s.Buffers {
			if b.refs[id] {
				return true
			}
		}
	}
	return false
}

func (q *Queue) Submit(buffers []hal.CommandBuffer) (uint64, error) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	s := Submission{Suppressed: q.suppressed}
	for _, b := range buffers {
		cb, ok := b.(*CommandBuffer)
		if !ok {
			return 0, fmt.Errorf("gputest: submit foreign command buffer %T", b)
		}
		if cb.freed {
			q.dev.violate("submit freed command buffer %q", cb.Label)
		}
		if q.inFlight(cb) {
			q.dev.violate("submit command buffer %q: already in flight", cb.Label)
		}
		s.Buffers = append(s.Buffers, cb)
	}
	q.submitted++
	s.Index = q.submitted
	q.pending = append(q.pending, s)
	q.log = append(q.log, s)
	if q.auto {
		q.completeLocked(len(q.pending))
	}
	return s.Index, nil
}

func (q *Queue) PollCompleted() uint64 {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return q.completed
}

// Submissions returns every submission so far.
func (q *Queue) Submissions() []Submission {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return append([]Submission(nil), q.log...)
}

// ResetLog clears the submission log.
func (q *Queue) ResetLog() {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.log = nil
}

func (q *Queue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	b, ok := buffer.(*Buffer)
	if !ok {
		return fmt.Errorf("gputest: WriteBuffer: foreign buffer %T", buffer)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return hal.ErrInvalidMapRange
	}
	q.dev.mu.Lock()
	q.writes++
	q.dev.mu.Unlock()
	copy(b.data[offset:], data)
	return nil
}

func (q *Queue) WriteTexture(dst *hal.ImageCopyTexture, _ []byte, _ *hal.ImageDataLayout, _ *hal.Extent3D) error {
	if dst == nil || dst.Texture == nil {
		return errors.New("gputest: WriteTexture: no destination")
	}
	q.dev.mu.Lock()
	q.writes++
	q.dev.mu.Unlock()
	return nil
}

// Writes returns the number of WriteBuffer and WriteTexture calls.
func (q *Queue) Writes() int {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return q.writes
}

// FailPresent makes the next len(errs) presents return errs in order.
// A nil entry presents normally.
func (q *Queue) FailPresent(errs ...error) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.presentErr = append(q.presentErr, errs...)
}

func (q *Queue) Present(surface hal.Surface, texture hal.SurfaceTexture, _ []image.Rectangle) error {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	if s, ok := surface.(*Surface); ok {
		s.release(texture)
	}
	if len(q.presentErr) > 0 {
		err := q.presentErr[0]
		q.presentErr = q.presentErr[1:]
		if err != nil {
			return err
		}
	}
	q.presents++
	return nil
}

// Presents returns the number of successful presents.
func (q *Queue) Presents() int {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return q.presents
}

func (q *Queue) GetTimestampPeriod() float32 { return 1 }

func (q *Queue) SupportsCommandBufferCopies() bool { return true }

func (q *Queue) SetSwapchainSuppressed(suppressed bool) {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	q.suppressed = suppressed
}
