// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/deferred/internal/gpu"
	"github.com/gogpu/deferred/internal/scene"
)

// Scene state types shared with the driver loop.
type (
	Camera       = scene.Camera
	LightManager = scene.LightManager
	Movement     = scene.Movement
	SpeedMode    = scene.SpeedMode
)

// Camera movement flags and speed modes.
const (
	MoveForward = scene.MoveForward
	MoveBack    = scene.MoveBack
	MoveLeft    = scene.MoveLeft
	MoveRight   = scene.MoveRight
	MoveUp      = scene.MoveUp
	MoveDown    = scene.MoveDown

	SpeedNormal = scene.SpeedNormal
	SpeedFast   = scene.SpeedFast
	SpeedSlow   = scene.SpeedSlow
)

// FrameContext is the per-application state the driver loop owns: the
// camera, the lights and the drawable lists. Input callbacks and the
// renderer may run on different goroutines; every method is safe for
// concurrent use.
type FrameContext struct {
	mu     sync.Mutex
	camera *scene.Camera
	lights *scene.LightManager
	scene  scene.SceneUniform
	scenes [][]Drawable
	active int
	last   time.Time
	now    func() time.Time

	quit atomic.Bool
}

// NewFrameContext returns a context with the camera and lights of cfg and
// no scenes.
func NewFrameContext(cfg Config) *FrameContext {
	fc := &FrameContext{
		camera: scene.NewCamera(cfg.cameraConfig(), cfg.cameraPosition()),
		lights: scene.NewLightManager(f32.Vec4(cfg.Lights.Ambient), cfg.Lights.Step),
		now:    time.Now,
	}
	if cfg.Lights.Animate {
		fc.lights.ToggleAnimation()
	}
	return fc
}

// AddScene appends a drawable list and returns its index. The first scene
// added is active.
func (fc *FrameContext) AddScene(drawables ...Drawable) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.scenes = append(fc.scenes, drawables)
	return len(fc.scenes) - 1
}

// NextScene activates the next drawable list, wrapping around, and
// returns its index.
func (fc *FrameContext) NextScene() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.scenes) > 0 {
		fc.active = (fc.active + 1) % len(fc.scenes)
	}
	return fc.active
}

// ActiveScene returns the index of the active drawable list.
func (fc *FrameContext) ActiveScene() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.active
}

// Drawables returns a copy of the active drawable list.
func (fc *FrameContext) Drawables() []Drawable {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.drawablesLocked()
}

func (fc *FrameContext) drawablesLocked() []Drawable {
	if len(fc.scenes) == 0 {
		return nil
	}
	return slices.Clone(fc.scenes[fc.active])
}

// SetMoving marks movement keys as held or released.
func (fc *FrameContext) SetMoving(m Movement, held bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.camera.SetMoving(m, held)
}

// SetSpeedMode changes the camera speed multiplier.
func (fc *FrameContext) SetSpeedMode(m SpeedMode) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.camera.SetSpeedMode(m)
}

// ToggleMouseLook switches cursor-driven rotation on or off.
func (fc *FrameContext) ToggleMouseLook() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.camera.ToggleMouseLook()
}

// Cursor reports the pointer position in pixels.
func (fc *FrameContext) Cursor(x, y float64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.camera.Cursor(float32(x), float32(y))
}

// ToggleLight flips light i and repacks the light set. It returns false
// for an index out of range.
func (fc *FrameContext) ToggleLight(i int) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.lights.Toggle(i)
}

// ToggleAnimation starts or stops the light orbit.
func (fc *FrameContext) ToggleAnimation() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.lights.ToggleAnimation()
}

// WithCamera runs fn with exclusive access to the camera.
func (fc *FrameContext) WithCamera(fn func(*Camera)) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fn(fc.camera)
}

// WithLights runs fn with exclusive access to the light manager.
func (fc *FrameContext) WithLights(fn func(*LightManager)) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fn(fc.lights)
}

// RequestQuit asks the driver loop to stop after the current frame.
func (fc *FrameContext) RequestQuit() { fc.quit.Store(true) }

// Quit reports whether shutdown was requested.
func (fc *FrameContext) Quit() bool { return fc.quit.Load() }

// prepare advances the camera, encodes both uniform blocks into the
// renderer-owned staging slices and returns the drawables to record.
func (fc *FrameContext) prepare(extent gpu.Extent, sceneDst, lightDst []byte) []Drawable {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	now := fc.now()
	if !fc.last.IsZero() {
		fc.camera.Update(now.Sub(fc.last))
	}
	fc.last = now
	fc.camera.WriteScene(&fc.scene, extent.Width, extent.Height)
	copy(sceneDst, fc.scene.Bytes())
	copy(lightDst, fc.lights.Set().Bytes())
	return fc.drawablesLocked()
}

// presented advances the light animation once per displayed frame.
func (fc *FrameContext) presented() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.lights.Animate()
}
