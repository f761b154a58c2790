// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"testing"

	"github.com/gogpu/deferred/internal/gputest"
)

// stubSPIRV stands in for naga in tests that only exercise pipeline wiring.
func stubSPIRV(string) ([]uint32, error) { return []uint32{0x07230203, 0x00010300}, nil }

func newTestDevice(t *testing.T) (*gputest.Device, *gputest.Queue) {
	t.Helper()
	d, q := gputest.New()
	t.Cleanup(func() {
		for _, v := range d.Violations() {
			t.Errorf("sync violation: %s", v)
		}
	})
	return d, q
}

type orchestratorFixture struct {
	o       *Orchestrator
	dev     *gputest.Device
	queue   *gputest.Queue
	surface *gputest.Surface
	caps    *gputest.Capabilities
	scene   ByteSource
	lights  ByteSource
}

func newOrchestrator(t *testing.T, extent Extent, images int) *orchestratorFixture {
	t.Helper()
	return newOrchestratorWith(t, extent, images, nil)
}

func newOrchestratorWith(t *testing.T, extent Extent, images int, edit func(*Config)) *orchestratorFixture {
	t.Helper()
	d, q := newTestDevice(t)
	f := &orchestratorFixture{
		dev:     d,
		queue:   q,
		surface: d.NewSurface(images),
		caps:    gputest.DefaultCapabilities(),
		scene:   make(ByteSource, 80),
		lights:  make(ByteSource, 352),
	}
	cfg := DefaultConfig()
	cfg.Extent = extent
	cfg.ImageCount = images
	cfg.Compile = stubSPIRV
	if edit != nil {
		edit(&cfg)
	}
	o, err := NewOrchestrator(
		Devices{Device: d, Queue: q, Surface: f.surface, Caps: f.caps},
		Sources{Scene: f.scene, Lights: f.lights},
		cfg,
	)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	t.Cleanup(o.Destroy)
	f.o = o
	return f
}

// record installs an observer and returns the transition log.
func (f *orchestratorFixture) record() *[]FrameState {
	var log []FrameState
	f.o.SetObserver(func(_, to FrameState) { log = append(log, to) })
	return &log
}

// lastTwo returns the offscreen and composite buffers of the latest frame.
func (f *orchestratorFixture) lastTwo(t *testing.T) (offscreen, composite *gputest.CommandBuffer) {
	t.Helper()
	subs := f.queue.Submissions()
	if len(subs) < 2 {
		t.Fatalf("%d submissions, want at least 2", len(subs))
	}
	return subs[len(subs)-2].Buffers[0], subs[len(subs)-1].Buffers[0]
}
