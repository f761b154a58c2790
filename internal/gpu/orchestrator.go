// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/internal/shader"
)

// FrameState is a state of the per-frame state machine.
type FrameState uint8

const (
	StateIdle FrameState = iota
	StateRecordingOffscreen
	StateSubmittedOffscreen
	StateAcquiringSurface
	StateRecordingComposite
	StateSubmittedComposite
	StatePresenting
	StateResizePending
)

var stateNames = [...]string{
	StateIdle:               "Idle",
	StateRecordingOffscreen: "RecordingOffscreen",
	StateSubmittedOffscreen: "SubmittedOffscreen",
	StateAcquiringSurface:   "AcquiringSurface",
	StateRecordingComposite: "RecordingComposite",
	StateSubmittedComposite: "SubmittedComposite",
	StatePresenting:         "Presenting",
	StateResizePending:      "ResizePending",
}

func (s FrameState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("FrameState(%d)", uint8(s))
}

// legalEdges lists the forward edges. ResizePending is reachable from any
// state and Idle is reachable from any recording state on abort.
var legalEdges = map[FrameState][]FrameState{
	StateIdle:               {StateRecordingOffscreen},
	StateRecordingOffscreen: {StateSubmittedOffscreen},
	StateSubmittedOffscreen: {StateAcquiringSurface},
	StateAcquiringSurface:   {StateRecordingComposite, StateIdle},
	StateRecordingComposite: {StateSubmittedComposite},
	StateSubmittedComposite: {StatePresenting},
	StatePresenting:         {StateIdle},
	StateResizePending:      {StateIdle},
}

// Legal reports whether from -> to is an edge of the state machine.
func Legal(from, to FrameState) bool {
	if to == StateResizePending {
		return true
	}
	for _, s := range legalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateObserver is called after every state transition.
type StateObserver func(from, to FrameState)

// Drawable is one mesh of the G-buffer pass.
type Drawable struct {
	Positions   hal.Buffer
	Texcoords   hal.Buffer
	Normals     hal.Buffer
	VertexCount uint32

	// Index is optional. When set, IndexCount indices are drawn.
	Index       hal.Buffer
	IndexFormat gputypes.IndexFormat
	IndexCount  uint32

	Texture  *BindingSet
	Material *BindingSet
}

// FrameResult reports what a RenderFrame call did.
type FrameResult struct {
	// Skipped is true when no image was presented and no error occurred.
	Skipped bool
	// Presented is true when the composite image was queued for display.
	Presented bool
	// Resized is true when the call began with a resize.
	Resized bool
	// ImageIndex is the swapchain image rendered, -1 if none.
	ImageIndex int
}

// FrameStats are cumulative frame counters.
type FrameStats struct {
	Frames    uint64
	Presented uint64
	Skipped   uint64
	Resizes   uint64
}

// Devices are the HAL objects the orchestrator renders with.
type Devices struct {
	Device  hal.Device
	Queue   hal.Queue
	Surface hal.Surface
	Caps    CapabilitySource
}

// Sources are the CPU uniform blocks owned by the caller.
type Sources struct {
	Scene  UniformSource
	Lights UniformSource
}

// Config configures an Orchestrator.
type Config struct {
	Extent      Extent
	ImageCount  int
	PresentMode gputypes.PresentMode
	// SurfaceFormats is the surface format preference, nil for sRGB first.
	SurfaceFormats []gputypes.TextureFormat
	GBufferFormat  gputypes.TextureFormat
	DepthFormat    gputypes.TextureFormat
	Pool           PoolSizes
	FenceTimeout   time.Duration
	ClearColor     gputypes.Color
	// Compile overrides WGSL compilation, nil means naga.
	Compile shader.CompileFunc
}

// DefaultConfig returns an 800x600 setup with three swapchain images.
func DefaultConfig() Config {
	return Config{
		Extent:        Extent{Width: 800, Height: 600},
		ImageCount:    3,
		GBufferFormat: gputypes.TextureFormatRGBA16Float,
		DepthFormat:   gputypes.TextureFormatDepth32Float,
		Pool:          PoolSizes{MaxSets: 64, UniformBuffers: 64, SampledImages: 64},
		FenceTimeout:  DefaultFenceTimeout,
	}
}

const gbufferTargetUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding

// Orchestrator drives the two-pass frame: the offscreen G-buffer pass,
// then the composite pass into a swapchain image, then present.
type Orchestrator struct {
	device hal.Device
	queue  hal.Queue
	cfg    Config

	compiler *shader.Compiler

	// bindings
	sceneLayout    *BindingLayout
	textureLayout  *BindingLayout
	materialLayout *BindingLayout
	gbufferLayout  *BindingLayout
	pool           *BindingPool
	sceneSet       *BindingSet
	gbufferSet     *BindingSet

	sceneUniform *UniformSlot
	lightUniform *UniformSlot

	// G-buffer targets: position, normal, albedo, then depth.
	colors []*RenderTarget
	depth  *RenderTarget

	offscreen *PassGraph
	surface   *PassGraph

	gbufferPipeline   *Pipeline
	compositePipeline *Pipeline

	swapchain *Swapchain

	// sync: slot 0 records the offscreen pass, slot 1+i the composite for
	// swapchain image i.
	commands          *CommandPool
	imageAcquired     *Semaphore
	offscreenComplete *Semaphore
	compositeComplete *Semaphore

	state         FrameState
	pendingExtent Extent
	observer      StateObserver
	stats         FrameStats
	destroyed     bool
}

// NewOrchestrator builds every GPU object of the frame graph.
func NewOrchestrator(dev Devices, src Sources, cfg Config) (o *Orchestrator, err error) {
	if cfg.ImageCount < 1 {
		cfg.ImageCount = 1
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}
	if cfg.GBufferFormat == gputypes.TextureFormatUndefined {
		cfg.GBufferFormat = gputypes.TextureFormatRGBA16Float
	}
	if cfg.DepthFormat == gputypes.TextureFormatUndefined {
		cfg.DepthFormat = gputypes.TextureFormatDepth32Float
	}
	if cfg.Extent.IsZero() {
		return nil, resourceErr("create orchestrator", "extent", hal.ErrZeroArea)
	}

	o = &Orchestrator{
		device:            dev.Device,
		queue:             dev.Queue,
		cfg:               cfg,
		compiler:          shader.NewCompiler(cfg.Compile),
		imageAcquired:     NewSemaphore("image_acquired"),
		offscreenComplete: NewSemaphore("offscreen_complete"),
		compositeComplete: NewSemaphore("composite_complete"),
		pendingExtent:     cfg.Extent,
	}
	defer func() {
		if err != nil {
			o.Destroy()
			o = nil
		}
	}()

	slots := 1 + cfg.ImageCount
	if o.commands, err = NewCommandPool(o.device, o.queue, "frame_cmd", slots); err != nil {
		return o, err
	}
	if o.swapchain, err = NewSwapchain(o.device, o.queue, dev.Surface, dev.Caps, SwapchainDesc{
		Extent: cfg.Extent, PresentMode: cfg.PresentMode, Formats: cfg.SurfaceFormats,
	}); err != nil {
		return o, err
	}
	if err = o.createBindings(src, slots); err != nil {
		return o, err
	}
	if err = o.createTargets(o.swapchain.Extent()); err != nil {
		return o, err
	}
	if err = o.createPasses(); err != nil {
		return o, err
	}
	if err = o.writeSets(); err != nil {
		return o, err
	}
	if err = o.createPipelines(); err != nil {
		return o, err
	}

	slogger().Info("frame graph ready",
		"extent", o.swapchain.Extent(), "surface_format", o.swapchain.Format(),
		"gbuffer_format", cfg.GBufferFormat, "images", cfg.ImageCount)
	return o, nil
}

func (o *Orchestrator) createBindings(src Sources, slots int) error {
	var err error
	if o.sceneLayout, err = NewBindingLayout(o.device, "scene_layout", SceneBindings()); err != nil {
		return err
	}
	if o.textureLayout, err = NewBindingLayout(o.device, "texture_layout", TextureBindings()); err != nil {
		return err
	}
	if o.materialLayout, err = NewBindingLayout(o.device, "material_layout", MaterialBindings()); err != nil {
		return err
	}
	if o.gbufferLayout, err = NewBindingLayout(o.device, "gbuffer_layout", GBufferBindings()); err != nil {
		return err
	}
	if o.pool, err = NewBindingPool(o.device, "binding_pool", o.cfg.Pool); err != nil {
		return err
	}
	if o.sceneUniform, err = NewUniformSlot(o.device, "scene_uniform", src.Scene, slots); err != nil {
		return err
	}
	if o.lightUniform, err = NewUniformSlot(o.device, "light_uniform", src.Lights, slots); err != nil {
		return err
	}
	if o.sceneSet, err = o.pool.Allocate(o.sceneLayout, "scene_set"); err != nil {
		return err
	}
	if o.gbufferSet, err = o.pool.Allocate(o.gbufferLayout, "gbuffer_set"); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) createTargets(extent Extent) error {
	for _, name := range []string{"gbuffer_position", "gbuffer_normal", "gbuffer_albedo"} {
		t, err := NewRenderTarget(o.device, TargetDesc{
			Label: name, Extent: extent, Format: o.cfg.GBufferFormat, Usage: gbufferTargetUsage,
		})
		if err != nil {
			return err
		}
		o.colors = append(o.colors, t)
	}
	var err error
	o.depth, err = NewRenderTarget(o.device, TargetDesc{
		Label: "gbuffer_depth", Extent: extent, Format: o.cfg.DepthFormat, Usage: gbufferTargetUsage,
	})
	return err
}

func (o *Orchestrator) offscreenDescription() PassDescription {
	desc := PassDescription{
		Label: "offscreen_pass",
		Depth: DepthAttachment(o.cfg.DepthFormat, gputypes.StoreOpStore),
	}
	for range o.colors {
		desc.Colors = append(desc.Colors, ColorAttachment(o.cfg.GBufferFormat, gputypes.TextureUsageTextureBinding))
	}
	return desc
}

func (o *Orchestrator) surfaceDescription() PassDescription {
	c := ColorAttachment(o.swapchain.Format(), gputypes.TextureUsageRenderAttachment)
	c.Clear = o.cfg.ClearColor
	return PassDescription{Label: "composite_pass", Colors: []AttachmentDesc{c}}
}

func (o *Orchestrator) createPasses() error {
	var err error
	if o.offscreen, err = NewPassGraph(o.offscreenDescription(), o.colors, o.depth); err != nil {
		return err
	}
	o.surface, err = NewSurfacePassGraph(o.surfaceDescription(), o.swapchain.Extent())
	return err
}

func (o *Orchestrator) writeSets() error {
	if err := o.sceneSet.Write(UniformWrite(SceneBinding, o.sceneUniform)); err != nil {
		return err
	}
	return o.gbufferSet.Write(
		ImageWrite(GBufferPositionBinding, o.colors[0]),
		ImageWrite(GBufferNormalBinding, o.colors[1]),
		ImageWrite(GBufferAlbedoBinding, o.colors[2]),
		ImageWrite(GBufferDepthBinding, o.depth),
		UniformWrite(LightBinding, o.lightUniform),
	)
}

func (o *Orchestrator) createPipelines() error {
	var err error
	o.gbufferPipeline, err = NewPipeline(o.device, o.compiler, PipelineSpec{
		Label:   "gbuffer_pipeline",
		Source:  shader.GBufferSource,
		Layouts: []*BindingLayout{o.sceneLayout, o.textureLayout, o.materialLayout},
		Pass:    o.offscreen,
		Vertex:  GBufferVertexLayouts(),
		Cull:    gputypes.CullModeBack,
	})
	if err != nil {
		return err
	}
	o.compositePipeline, err = NewPipeline(o.device, o.compiler, PipelineSpec{
		Label:   "composite_pipeline",
		Source:  shader.CompositeSource,
		Layouts: []*BindingLayout{o.gbufferLayout, o.sceneLayout},
		Pass:    o.surface,
		Cull:    gputypes.CullModeNone,
	})
	return err
}

// SetObserver installs fn to be called on every state transition.
func (o *Orchestrator) SetObserver(fn StateObserver) { o.observer = fn }

// State returns the current frame state.
func (o *Orchestrator) State() FrameState { return o.state }

func (o *Orchestrator) transition(to FrameState) error {
	from := o.state
	if !Legal(from, to) {
		return fmt.Errorf("frame state %v -> %v: %w", from, to, ErrInvalidState)
	}
	o.state = to
	slogger().Debug("frame state", "from", from, "to", to)
	if o.observer != nil {
		o.observer(from, to)
	}
	return nil
}

// abort drops a partially recorded frame and its pending signals, then
// returns to Idle.
func (o *Orchestrator) abort(cmd *CommandBuffer) {
	if cmd != nil {
		o.commands.Discard(cmd)
	}
	o.swapchain.Release()
	o.imageAcquired.reset()
	o.offscreenComplete.reset()
	o.compositeComplete.reset()
	if o.state != StateIdle && o.state != StateResizePending {
		from := o.state
		o.state = StateIdle
		if o.observer != nil {
			o.observer(from, StateIdle)
		}
	}
}

// RequestResize schedules a resize to extent before the next frame.
func (o *Orchestrator) RequestResize(extent Extent) error {
	o.pendingExtent = extent
	if o.state == StateResizePending {
		return nil
	}
	return o.transition(StateResizePending)
}

// RenderFrame records, submits and presents one frame. A pending resize is
// performed first. A stale surface is not an error: the result is Skipped
// and the next call resizes.
func (o *Orchestrator) RenderFrame(ctx context.Context, drawables []Drawable) (FrameResult, error) {
	res := FrameResult{ImageIndex: -1}
	if o.destroyed {
		return res, ErrDestroyed
	}
	if o.state == StateResizePending {
		if err := o.Resize(o.pendingExtent); err != nil {
			return res, err
		}
		if o.state == StateResizePending {
			// zero-area surface, nothing to render into
			o.stats.Skipped++
			res.Skipped = true
			return res, nil
		}
		res.Resized = true
	}
	if o.state != StateIdle {
		return res, fmt.Errorf("render frame in state %v: %w", o.state, ErrInvalidState)
	}
	o.stats.Frames++

	if err := o.recordOffscreen(ctx, drawables); err != nil {
		return res, err
	}

	if err := o.transition(StateAcquiringSurface); err != nil {
		return res, err
	}
	img, err := o.swapchain.Acquire()
	if err != nil {
		// nothing will wait on the offscreen signal this frame
		o.offscreenComplete.reset()
		o.stats.Skipped++
		res.Skipped = true
		var stale *SurfaceStaleError
		switch {
		case errors.As(err, &stale):
			slogger().Info("surface stale, resize pending", "op", stale.Op, "suboptimal", stale.Suboptimal)
			return res, o.transition(StateResizePending)
		case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
			slogger().Warn("acquire not ready, frame skipped", "err", err)
			return res, o.transition(StateIdle)
		default:
			o.abort(nil)
			return FrameResult{ImageIndex: -1}, err
		}
	}
	if err := o.imageAcquired.Signal(); err != nil {
		o.abort(nil)
		return res, err
	}
	res.ImageIndex = img.Index

	if err := o.recordComposite(ctx, img); err != nil {
		return res, err
	}

	if err := o.transition(StatePresenting); err != nil {
		return res, err
	}
	if err := o.compositeComplete.Consume(); err != nil {
		o.abort(nil)
		return res, err
	}
	if err := o.swapchain.Present(); err != nil {
		var stale *SurfaceStaleError
		if errors.As(err, &stale) {
			slogger().Info("surface stale on present, resize pending", "err", stale.Err)
			o.stats.Skipped++
			res.Skipped = true
			return res, o.transition(StateResizePending)
		}
		o.abort(nil)
		return res, err
	}
	o.stats.Presented++
	res.Presented = true
	return res, o.transition(StateIdle)
}

func (o *Orchestrator) recordOffscreen(ctx context.Context, drawables []Drawable) error {
	if err := o.transition(StateRecordingOffscreen); err != nil {
		return err
	}
	if err := o.commands.Fence(0).Wait(ctx, o.cfg.FenceTimeout); err != nil {
		o.abort(nil)
		return err
	}
	cmd, err := o.commands.Begin(0)
	if err != nil {
		o.abort(nil)
		return err
	}
	enc := cmd.Encoder()

	if err := o.sceneUniform.Push(o.device, cmd); err != nil {
		o.abort(cmd)
		return err
	}
	if b := o.offscreen.EnterBarriers(); len(b) > 0 {
		enc.TransitionTextures(b)
	}
	pass, err := o.offscreen.Begin(enc, 0)
	if err != nil {
		o.abort(cmd)
		return err
	}
	pass.SetPipeline(o.gbufferPipeline.Raw())
	pass.SetBindGroup(0, o.sceneSet.Raw(), nil)
	for _, d := range drawables {
		pass.SetVertexBuffer(SlotPosition, d.Positions, 0)
		pass.SetVertexBuffer(SlotTexcoord, d.Texcoords, 0)
		pass.SetVertexBuffer(SlotNormal, d.Normals, 0)
		pass.SetBindGroup(1, d.Texture.Raw(), nil)
		pass.SetBindGroup(2, d.Material.Raw(), nil)
		if d.Index != nil {
			pass.SetIndexBuffer(d.Index, d.IndexFormat, 0)
			pass.DrawIndexed(d.IndexCount, 1, 0, 0, 0)
		} else {
			pass.Draw(d.VertexCount, 1, 0, 0)
		}
	}
	pass.End()
	if b := o.offscreen.FinalBarriers(); len(b) > 0 {
		enc.TransitionTextures(b)
	}

	o.queue.SetSwapchainSuppressed(true)
	_, err = o.commands.Submit(cmd)
	o.queue.SetSwapchainSuppressed(false)
	if err != nil {
		o.abort(cmd)
		return err
	}
	if err := o.offscreenComplete.Signal(); err != nil {
		o.abort(nil)
		return err
	}
	return o.transition(StateSubmittedOffscreen)
}

func (o *Orchestrator) recordComposite(ctx context.Context, img AcquiredImage) error {
	slot := 1 + img.Index
	if img.New {
		if err := o.growForImage(slot + 1); err != nil {
			o.abort(nil)
			return err
		}
	}
	if err := o.surface.BindImage(o.device, img.Index, img.Texture); err != nil {
		o.abort(nil)
		return err
	}
	if o.gbufferSet.Stale() {
		o.abort(nil)
		return fmt.Errorf("composite: G-buffer set references replaced targets: %w", ErrInvalidState)
	}

	if err := o.commands.Fence(slot).Wait(ctx, o.cfg.FenceTimeout); err != nil {
		o.abort(nil)
		return err
	}
	if err := o.transition(StateRecordingComposite); err != nil {
		return err
	}
	cmd, err := o.commands.Begin(slot)
	if err != nil {
		o.abort(nil)
		return err
	}
	enc := cmd.Encoder()

	if b, ok := o.depth.Barrier(gputypes.TextureUsageTextureBinding); ok {
		enc.TransitionTextures([]hal.TextureBarrier{b})
	}
	if err := o.lightUniform.Push(o.device, cmd); err != nil {
		o.abort(cmd)
		return err
	}
	pass, err := o.surface.Begin(enc, img.Index)
	if err != nil {
		o.abort(cmd)
		return err
	}
	pass.SetPipeline(o.compositePipeline.Raw())
	pass.SetBindGroup(0, o.gbufferSet.Raw(), nil)
	pass.SetBindGroup(1, o.sceneSet.Raw(), nil)
	pass.Draw(6, 1, 0, 0)
	pass.End()

	if err := o.offscreenComplete.Consume(); err != nil {
		o.abort(cmd)
		return err
	}
	if err := o.imageAcquired.Consume(); err != nil {
		o.abort(cmd)
		return err
	}
	if _, err := o.commands.Submit(cmd); err != nil {
		o.abort(cmd)
		return err
	}
	if err := o.compositeComplete.Signal(); err != nil {
		o.abort(nil)
		return err
	}
	return o.transition(StateSubmittedComposite)
}

// growForImage extends per-slot resources when a new swapchain image shows up.
func (o *Orchestrator) growForImage(slots int) error {
	if err := o.commands.Grow(slots); err != nil {
		return err
	}
	if err := o.sceneUniform.Grow(o.device, slots); err != nil {
		return err
	}
	return o.lightUniform.Grow(o.device, slots)
}

// Stats returns the cumulative frame counters.
func (o *Orchestrator) Stats() FrameStats { return o.stats }

// Extent returns the current surface extent.
func (o *Orchestrator) Extent() Extent { return o.swapchain.Extent() }

// SurfaceFormat returns the configured swapchain format.
func (o *Orchestrator) SurfaceFormat() gputypes.TextureFormat { return o.swapchain.Format() }

// Device returns the HAL device.
func (o *Orchestrator) Device() hal.Device { return o.device }

// Queue returns the HAL queue.
func (o *Orchestrator) Queue() hal.Queue { return o.queue }

// Pool returns the binding pool used for per-mesh sets.
func (o *Orchestrator) Pool() *BindingPool { return o.pool }

// TextureLayout returns the layout of per-mesh texture sets.
func (o *Orchestrator) TextureLayout() *BindingLayout { return o.textureLayout }

// MaterialLayout returns the layout of per-mesh material sets.
func (o *Orchestrator) MaterialLayout() *BindingLayout { return o.materialLayout }

// GBufferTargets returns the color targets followed by depth.
func (o *Orchestrator) GBufferTargets() []*RenderTarget {
	return append(append([]*RenderTarget(nil), o.colors...), o.depth)
}

// GBufferSet returns the composite input set.
func (o *Orchestrator) GBufferSet() *BindingSet { return o.gbufferSet }

// Passes returns the offscreen and surface passes.
func (o *Orchestrator) Passes() (offscreen, surface *PassGraph) { return o.offscreen, o.surface }

// Pipelines returns the G-buffer and composite pipelines.
func (o *Orchestrator) Pipelines() (gbuffer, composite *Pipeline) {
	return o.gbufferPipeline, o.compositePipeline
}

// Commands returns the command pool.
func (o *Orchestrator) Commands() *CommandPool { return o.commands }

// WaitIdle blocks until the device finished all submitted work.
func (o *Orchestrator) WaitIdle() error {
	if err := o.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	return nil
}

// Destroy waits for the device and releases everything in reverse
// dependency order. Safe to call more than once.
func (o *Orchestrator) Destroy() {
	if o.destroyed {
		return
	}
	o.destroyed = true
	if err := o.device.WaitIdle(); err != nil {
		slogger().Warn("wait idle before destroy", "err", err)
	}
	d := o.device

	if o.gbufferPipeline != nil {
		o.gbufferPipeline.Destroy(d)
	}
	if o.compositePipeline != nil {
		o.compositePipeline.Destroy(d)
	}
	if o.surface != nil {
		o.surface.Destroy(d)
	}
	if o.offscreen != nil {
		o.offscreen.Destroy(d)
	}
	if o.pool != nil {
		o.pool.Free(o.gbufferSet)
		o.pool.Free(o.sceneSet)
	}
	for _, l := range []*BindingLayout{o.gbufferLayout, o.materialLayout, o.textureLayout, o.sceneLayout} {
		if l != nil {
			l.Release()
		}
	}
	if o.pool != nil {
		o.pool.Destroy()
	}
	for _, t := range o.colors {
		t.Destroy(d)
	}
	o.depth.Destroy(d)
	if o.lightUniform != nil {
		o.lightUniform.Destroy(d)
	}
	if o.sceneUniform != nil {
		o.sceneUniform.Destroy(d)
	}
	if o.commands != nil {
		o.commands.Destroy()
	}
	if o.swapchain != nil {
		o.swapchain.Destroy()
	}
}
