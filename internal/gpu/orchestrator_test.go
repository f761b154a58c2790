// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/internal/gputest"
)

func TestLegalEdges(t *testing.T) {
	tests := []struct {
		from, to FrameState
		want     bool
	}{
		{StateIdle, StateRecordingOffscreen, true},
		{StateIdle, StatePresenting, false},
		{StateRecordingOffscreen, StateSubmittedOffscreen, true},
		{StateSubmittedOffscreen, StateAcquiringSurface, true},
		{StateAcquiringSurface, StateRecordingComposite, true},
		{StateAcquiringSurface, StateIdle, true},
		{StateRecordingComposite, StateSubmittedComposite, true},
		{StateSubmittedComposite, StatePresenting, true},
		{StatePresenting, StateIdle, true},
		{StatePresenting, StateRecordingOffscreen, false},
		{StateResizePending, StateIdle, true},
		{StateResizePending, StateRecordingOffscreen, false},
	}
	for _, tt := range tests {
		if got := Legal(tt.from, tt.to); got != tt.want {
			t.Errorf("Legal(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for s := StateIdle; s <= StateResizePending; s++ {
		if !Legal(s, StateResizePending) {
			t.Errorf("ResizePending not reachable from %v", s)
		}
	}
	if got := FrameState(42).String(); got != "FrameState(42)" {
		t.Errorf("String = %q", got)
	}
}

// Scenario A: three color targets and depth at 800x600, no drawables.
func TestRenderFrameSingle(t *testing.T) {
	f := newOrchestrator(t, Extent{800, 600}, 3)
	log := f.record()

	res, err := f.o.RenderFrame(context.Background(), nil)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if !res.Presented || res.Skipped || res.ImageIndex != 0 {
		t.Fatalf("result = %+v", res)
	}
	want := []FrameState{
		StateRecordingOffscreen, StateSubmittedOffscreen, StateAcquiringSurface,
		StateRecordingComposite, StateSubmittedComposite, StatePresenting, StateIdle,
	}
	if !slices.Equal(*log, want) {
		t.Errorf("transitions = %v, want %v", *log, want)
	}
	if f.queue.Presents() != 1 {
		t.Errorf("presents = %d", f.queue.Presents())
	}

	subs := f.queue.Submissions()
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2", len(subs))
	}
	if !subs[0].Suppressed || subs[1].Suppressed {
		t.Errorf("swapchain suppression: offscreen=%v composite=%v", subs[0].Suppressed, subs[1].Suppressed)
	}

	off, comp := subs[0].Buffers[0], subs[1].Buffers[0]
	wantOff := []gputest.Op{
		gputest.OpTransitionBuffers, gputest.OpCopyBuffer, gputest.OpTransitionBuffers,
		gputest.OpTransitionTextures,
		gputest.OpBeginPass, gputest.OpSetPipeline, gputest.OpSetBindGroup, gputest.OpEndPass,
		gputest.OpTransitionTextures,
	}
	if got := off.Ops(); !slices.Equal(got, wantOff) {
		t.Errorf("offscreen ops = %v\nwant %v", got, wantOff)
	}
	wantComp := []gputest.Op{
		gputest.OpTransitionTextures,
		gputest.OpTransitionBuffers, gputest.OpCopyBuffer, gputest.OpTransitionBuffers,
		gputest.OpBeginPass, gputest.OpSetPipeline, gputest.OpSetBindGroup, gputest.OpSetBindGroup,
		gputest.OpDraw, gputest.OpEndPass,
	}
	if got := comp.Ops(); !slices.Equal(got, wantComp) {
		t.Errorf("composite ops = %v\nwant %v", got, wantComp)
	}
	if d := comp.Find(gputest.OpDraw)[0]; d.Count != 6 || d.Instances != 1 {
		t.Errorf("composite draw = %d x %d", d.Count, d.Instances)
	}
	begin := off.Find(gputest.OpBeginPass)[0].Pass
	if len(begin.ColorAttachments) != 3 || begin.DepthStencilAttachment == nil {
		t.Errorf("offscreen pass = %+v", begin)
	}
	for _, tgt := range f.o.GBufferTargets() {
		if tgt.Extent() != (Extent{800, 600}) {
			t.Errorf("%s extent = %v", tgt.Label(), tgt.Extent())
		}
	}
	if st := f.o.Stats(); st.Frames != 1 || st.Presented != 1 || st.Skipped != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDepthBarrierOncePerFrame(t *testing.T) {
	f := newOrchestrator(t, Extent{320, 200}, 2)
	depth := f.o.GBufferTargets()[3]

	for frame := range 4 {
		if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		off, comp := f.lastTwo(t)

		var depthBarriers []hal.TextureBarrier
		firstBarrier := -1
		for i, c := range comp.Commands {
			for _, b := range c.TextureBarriers {
				if b.Texture == depth.Texture() {
					depthBarriers = append(depthBarriers, b)
					if firstBarrier < 0 {
						firstBarrier = i
					}
				}
			}
		}
		if len(depthBarriers) != 1 {
			t.Fatalf("frame %d: %d depth barriers in composite, want 1", frame, len(depthBarriers))
		}
		u := depthBarriers[0].Usage
		if u.OldUsage != gputypes.TextureUsageRenderAttachment || u.NewUsage != gputypes.TextureUsageTextureBinding {
			t.Errorf("frame %d: depth barrier %v -> %v", frame, u.OldUsage, u.NewUsage)
		}
		if depthBarriers[0].Range.Aspect != gputypes.TextureAspectDepthOnly {
			t.Errorf("frame %d: depth barrier aspect %v", frame, depthBarriers[0].Range.Aspect)
		}
		if firstBarrier > comp.Index(gputest.OpBeginPass) {
			t.Errorf("frame %d: depth barrier after BeginRenderPass", frame)
		}

		// The offscreen pass returns depth to an attachment and never
		// hands it to the shader.
		for _, c := range off.Commands {
			for _, b := range c.TextureBarriers {
				if b.Texture == depth.Texture() && b.Usage.NewUsage == gputypes.TextureUsageTextureBinding {
					t.Errorf("frame %d: offscreen transitions depth to sampling", frame)
				}
			}
		}
	}
}

func TestFenceDiscipline(t *testing.T) {
	f := newOrchestrator(t, Extent{64, 64}, 3)
	f.queue.SetAutoComplete(false)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(200 * time.Microsecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				f.queue.Complete(1)
			}
		}
	}()

	for frame := range 12 {
		if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	close(stop)
	wg.Wait()
	if v := f.dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestFenceTimeoutAborts(t *testing.T) {
	f := newOrchestratorWith(t, Extent{64, 64}, 2, func(c *Config) {
		c.FenceTimeout = 5 * time.Millisecond
	})
	f.queue.SetAutoComplete(false)

	if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	_, err := f.o.RenderFrame(context.Background(), nil)
	if !errors.Is(err, ErrFenceTimeout) || !IsFatal(err) {
		t.Fatalf("second frame = %v, want fatal ErrFenceTimeout", err)
	}
	if f.o.State() != StateIdle {
		t.Errorf("state after abort = %v", f.o.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.o.RenderFrame(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled frame = %v", err)
	}
}

// Scenario B: 800x600 to 400x300.
func TestResizeCycle(t *testing.T) {
	f := newOrchestrator(t, Extent{800, 600}, 3)
	if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	gb, comp := f.o.Pipelines()
	off, surf := f.o.Passes()
	offGen := off.Generation()
	log := f.record()

	if err := f.o.RequestResize(Extent{400, 300}); err != nil {
		t.Fatal(err)
	}
	res, err := f.o.RenderFrame(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resized || !res.Presented {
		t.Fatalf("result = %+v", res)
	}

	pending := 0
	for _, s := range *log {
		if s == StateResizePending {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("ResizePending entered %d times, want 1", pending)
	}
	if f.o.Extent() != (Extent{400, 300}) || surf.Extent() != (Extent{400, 300}) {
		t.Errorf("surface extent = %v, pass extent = %v", f.o.Extent(), surf.Extent())
	}
	for _, tgt := range f.o.GBufferTargets() {
		if tgt.Extent() != (Extent{400, 300}) {
			t.Errorf("%s extent = %v", tgt.Label(), tgt.Extent())
		}
		if tgt.Generation() != 2 {
			t.Errorf("%s generation = %d", tgt.Label(), tgt.Generation())
		}
	}
	if f.o.GBufferSet().Stale() {
		t.Error("G-buffer set still references replaced targets")
	}
	if off.Generation() <= offGen || off.Validate() != nil {
		t.Error("offscreen framebuffer not rebuilt")
	}
	if gb.Rebuilds() != 1 || comp.Rebuilds() != 1 {
		t.Errorf("pipeline rebuilds = %d, %d", gb.Rebuilds(), comp.Rebuilds())
	}
	cfgs := f.surface.Configs()
	if last := cfgs[len(cfgs)-1]; last.Width != 400 || last.Height != 300 {
		t.Errorf("surface configured at %dx%d", last.Width, last.Height)
	}
	if st := f.o.Stats(); st.Resizes != 1 || st.Presented != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestResizeDrainsInFlightWork(t *testing.T) {
	f := newOrchestrator(t, Extent{128, 128}, 2)
	f.queue.SetAutoComplete(false)
	if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if f.queue.Pending() != 2 {
		t.Fatalf("pending = %d", f.queue.Pending())
	}
	if err := f.o.RequestResize(Extent{256, 64}); err != nil {
		t.Fatal(err)
	}
	if err := f.o.Resize(Extent{256, 64}); err != nil {
		t.Fatal(err)
	}
	if f.queue.Pending() != 0 {
		t.Error("Resize did not wait for idle")
	}
	if f.o.State() != StateIdle {
		t.Errorf("state = %v", f.o.State())
	}
}

func TestStaleAcquireSkipsFrame(t *testing.T) {
	tests := []struct {
		name   string
		result gputest.AcquireResult
	}{
		{"outdated", gputest.AcquireResult{Err: hal.ErrSurfaceOutdated}},
		{"lost", gputest.AcquireResult{Err: hal.ErrSurfaceLost}},
		{"suboptimal", gputest.AcquireResult{Suboptimal: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestrator(t, Extent{200, 100}, 2)
			gb, _ := f.o.Pipelines()
			f.surface.Script(tt.result)

			res, err := f.o.RenderFrame(context.Background(), nil)
			if err != nil {
				t.Fatalf("stale frame returned %v", err)
			}
			if !res.Skipped || res.Presented {
				t.Errorf("result = %+v", res)
			}
			if f.o.State() != StateResizePending {
				t.Fatalf("state = %v", f.o.State())
			}
			if f.surface.Held() != 0 {
				t.Error("image held after skipped frame")
			}

			res, err = f.o.RenderFrame(context.Background(), nil)
			if err != nil || !res.Presented || !res.Resized {
				t.Fatalf("next frame = %+v, %v", res, err)
			}
			// Same size, same format: only framebuffers are rebuilt.
			if gb.Rebuilds() != 0 || f.o.GBufferTargets()[0].Generation() != 1 {
				t.Errorf("unchanged surface rebuilt pipelines (%d) or targets", gb.Rebuilds())
			}
		})
	}
}

func TestAcquireTimeoutSkipsFrame(t *testing.T) {
	f := newOrchestrator(t, Extent{200, 100}, 2)
	f.surface.Script(gputest.AcquireResult{Err: hal.ErrTimeout})
	res, err := f.o.RenderFrame(context.Background(), nil)
	if err != nil || !res.Skipped {
		t.Fatalf("timeout frame = %+v, %v", res, err)
	}
	if f.o.State() != StateIdle {
		t.Errorf("state = %v, want Idle", f.o.State())
	}
	if res, err := f.o.RenderFrame(context.Background(), nil); err != nil || !res.Presented {
		t.Errorf("next frame = %+v, %v", res, err)
	}
	if st := f.o.Stats(); st.Skipped != 1 || st.Presented != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestStalePresent(t *testing.T) {
	f := newOrchestrator(t, Extent{200, 100}, 2)
	f.queue.FailPresent(hal.ErrSurfaceOutdated)
	res, err := f.o.RenderFrame(context.Background(), nil)
	if err != nil || res.Presented || !res.Skipped {
		t.Fatalf("result = %+v, %v", res, err)
	}
	if f.o.State() != StateResizePending {
		t.Fatalf("state = %v", f.o.State())
	}
	if res, err := f.o.RenderFrame(context.Background(), nil); err != nil || !res.Presented {
		t.Errorf("next frame = %+v, %v", res, err)
	}
}

func TestResizeFormatChange(t *testing.T) {
	f := newOrchestrator(t, Extent{200, 100}, 2)
	gb, comp := f.o.Pipelines()
	_, surf := f.o.Passes()

	f.caps.Caps.Formats = []gputypes.TextureFormat{gputypes.TextureFormatBGRA8UnormSrgb}
	if err := f.o.RequestResize(Extent{200, 100}); err != nil {
		t.Fatal(err)
	}
	res, err := f.o.RenderFrame(context.Background(), nil)
	if err != nil || !res.Presented {
		t.Fatalf("frame = %+v, %v", res, err)
	}
	if f.o.SurfaceFormat() != gputypes.TextureFormatBGRA8UnormSrgb {
		t.Errorf("surface format = %v", f.o.SurfaceFormat())
	}
	if surf.ColorFormats()[0] != gputypes.TextureFormatBGRA8UnormSrgb {
		t.Errorf("surface pass format = %v", surf.ColorFormats()[0])
	}
	if comp.Rebuilds() != 1 || gb.Rebuilds() != 0 {
		t.Errorf("rebuilds: composite %d, gbuffer %d", comp.Rebuilds(), gb.Rebuilds())
	}
	p := comp.Raw().(*gputest.RenderPipeline)
	if p.Desc.Fragment.Targets[0].Format != gputypes.TextureFormatBGRA8UnormSrgb {
		t.Errorf("composite pipeline target = %v", p.Desc.Fragment.Targets[0].Format)
	}
}

func TestResizeZeroExtentStaysPending(t *testing.T) {
	f := newOrchestrator(t, Extent{200, 100}, 2)
	if err := f.o.RequestResize(Extent{}); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		res, err := f.o.RenderFrame(context.Background(), nil)
		if err != nil || !res.Skipped {
			t.Fatalf("minimized frame = %+v, %v", res, err)
		}
		if f.o.State() != StateResizePending {
			t.Fatalf("state = %v", f.o.State())
		}
	}
	if err := f.o.RequestResize(Extent{640, 480}); err != nil {
		t.Fatal(err)
	}
	res, err := f.o.RenderFrame(context.Background(), nil)
	if err != nil || !res.Presented {
		t.Fatalf("restored frame = %+v, %v", res, err)
	}
	if f.o.Extent() != (Extent{640, 480}) {
		t.Errorf("extent = %v", f.o.Extent())
	}
}

func TestSwapchainImagesGrowSlots(t *testing.T) {
	// The surface exposes three images although one was requested.
	f := newOrchestratorWith(t, Extent{64, 64}, 3, func(c *Config) { c.ImageCount = 1 })
	if n := f.o.Commands().Len(); n != 2 {
		t.Fatalf("initial slots = %d, want 2", n)
	}
	var seen []int
	for range 6 {
		res, err := f.o.RenderFrame(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, res.ImageIndex)
	}
	if !slices.Equal(seen, []int{0, 1, 2, 0, 1, 2}) {
		t.Errorf("image indices = %v", seen)
	}
	if n := f.o.Commands().Len(); n != 4 {
		t.Errorf("slots = %d, want 4", n)
	}
}

func TestRenderFrameDrawables(t *testing.T) {
	f := newOrchestrator(t, Extent{64, 64}, 2)
	d := f.dev
	o := f.o

	tex, err := NewRenderTarget(d, TargetDesc{Label: "base_color", Extent: Extent{4, 4},
		Format: gputypes.TextureFormatRGBA8UnormSrgb, Usage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy(d)
	mat, err := NewUniformSlot(d, "material", make(ByteSource, 48), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer mat.Destroy(d)

	texSet, err := o.Pool().Allocate(o.TextureLayout(), "texture_set")
	if err != nil {
		t.Fatal(err)
	}
	defer o.Pool().Free(texSet)
	if err := texSet.Write(ImageWrite(TextureBinding, tex)); err != nil {
		t.Fatal(err)
	}
	matSet, err := o.Pool().Allocate(o.MaterialLayout(), "material_set")
	if err != nil {
		t.Fatal(err)
	}
	defer o.Pool().Free(matSet)
	if err := matSet.Write(UniformWrite(MaterialBinding, mat)); err != nil {
		t.Fatal(err)
	}

	buf := func(label string, size uint64) hal.Buffer {
		b, err := d.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: gputypes.BufferUsageVertex})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { d.DestroyBuffer(b) })
		return b
	}
	idx := buf("index", 36*4)
	drawables := []Drawable{
		{Positions: buf("pos", 36*12), Texcoords: buf("uv", 36*8), Normals: buf("n", 36*12),
			VertexCount: 36, Texture: texSet, Material: matSet},
		{Positions: buf("pos2", 24*12), Texcoords: buf("uv2", 24*8), Normals: buf("n2", 24*12),
			Index: idx, IndexFormat: gputypes.IndexFormatUint32, IndexCount: 36, Texture: texSet, Material: matSet},
	}
	if _, err := o.RenderFrame(context.Background(), drawables); err != nil {
		t.Fatal(err)
	}
	off, _ := f.lastTwo(t)

	if n := len(off.Find(gputest.OpSetVertexBuffer)); n != 6 {
		t.Errorf("vertex buffer binds = %d, want 6", n)
	}
	groups := off.Find(gputest.OpSetBindGroup)
	if len(groups) != 5 || groups[0].Group != 0 || groups[1].Group != 1 || groups[2].Group != 2 {
		t.Errorf("bind groups = %+v", groups)
	}
	if dr := off.Find(gputest.OpDraw); len(dr) != 1 || dr[0].Count != 36 {
		t.Errorf("draws = %+v", dr)
	}
	if dr := off.Find(gputest.OpDrawIndexed); len(dr) != 1 || dr[0].Count != 36 {
		t.Errorf("indexed draws = %+v", dr)
	}
	if len(off.Find(gputest.OpSetIndexBuffer)) != 1 {
		t.Error("index buffer not bound")
	}
}

func TestUniformsReachGPU(t *testing.T) {
	f := newOrchestrator(t, Extent{64, 64}, 2)
	for i := range f.scene {
		f.scene[i] = byte(i)
	}
	f.lights[0] = 5
	if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBuffer(context.Background(), f.dev, f.queue, f.o.sceneUniform.Buffer(), 80)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []byte(f.scene)) {
		t.Errorf("scene uniform = %v", got)
	}
	got, err = ReadBuffer(context.Background(), f.dev, f.queue, f.o.lightUniform.Buffer(), 352)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 5 {
		t.Errorf("light count byte = %d", got[0])
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newOrchestrator(t, Extent{64, 64}, 2)
	for range 3 {
		if _, err := f.o.RenderFrame(context.Background(), nil); err != nil {
			t.Fatal(err)
		}
	}
	f.o.Destroy()
	f.o.Destroy()
	// Only the surface object itself outlives the orchestrator.
	if n := f.dev.Live(""); n != 1 {
		t.Errorf("%d live resources after Destroy, want 1 (surface)", n)
	}
	if _, err := f.o.RenderFrame(context.Background(), nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("RenderFrame after Destroy = %v", err)
	}
}
