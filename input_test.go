// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"testing"

	"github.com/gogpu/gpucontext"
)

// events captures the callbacks BindInput registers.
type events struct {
	gpucontext.NullEventSource
	press, release func(gpucontext.Key, gpucontext.Modifiers)
	move           func(x, y float64)
	mouseUp        func(gpucontext.MouseButton, float64, float64)
	resize         func(w, h int)
}

func (e *events) OnKeyPress(fn func(gpucontext.Key, gpucontext.Modifiers))   { e.press = fn }
func (e *events) OnKeyRelease(fn func(gpucontext.Key, gpucontext.Modifiers)) { e.release = fn }
func (e *events) OnMouseMove(fn func(x, y float64))                          { e.move = fn }
func (e *events) OnMouseRelease(fn func(gpucontext.MouseButton, float64, float64)) {
	e.mouseUp = fn
}
func (e *events) OnResize(fn func(w, h int)) { e.resize = fn }

func (e *events) tap(k gpucontext.Key) {
	e.press(k, 0)
	e.release(k, 0)
}

func TestBindInputKeys(t *testing.T) {
	fc := NewFrameContext(DefaultConfig())
	fc.AddScene()
	fc.AddScene()
	ev := &events{}
	BindInput(ev, nil, fc)

	ev.press(gpucontext.KeyW, 0)
	ev.press(gpucontext.KeyE, 0)
	var moving Movement
	fc.WithCamera(func(c *Camera) { moving = c.Moving() })
	if moving != MoveForward|MoveUp {
		t.Errorf("moving = %b", moving)
	}
	ev.release(gpucontext.KeyW, 0)
	fc.WithCamera(func(c *Camera) { moving = c.Moving() })
	if moving != MoveUp {
		t.Errorf("moving after release = %b", moving)
	}

	ev.tap(gpucontext.Key3)
	var on bool
	fc.WithLights(func(m *LightManager) { on = m.Enabled(2) })
	if on {
		t.Error("key 3 did not switch light 2 off")
	}

	ev.tap(gpucontext.KeySpace)
	fc.WithLights(func(m *LightManager) { on = m.Animating() })
	if !on {
		t.Error("space did not start the animation")
	}

	ev.tap(gpucontext.KeyTab)
	if fc.ActiveScene() != 1 {
		t.Errorf("active scene = %d", fc.ActiveScene())
	}

	if fc.Quit() {
		t.Fatal("quit before escape")
	}
	ev.press(gpucontext.KeyEscape, 0)
	if !fc.Quit() {
		t.Error("escape did not request quit")
	}
}

func TestBindInputSpeed(t *testing.T) {
	fc := NewFrameContext(DefaultConfig())
	ev := &events{}
	BindInput(ev, nil, fc)

	pos := func() float32 {
		var z float32
		fc.WithCamera(func(c *Camera) { z = c.Position[2] })
		return z
	}
	step := func() float32 {
		before := pos()
		fc.WithCamera(func(c *Camera) {
			c.SetMoving(MoveForward, true)
			c.Update(1e9)
			c.SetMoving(MoveForward, false)
		})
		return before - pos()
	}
	normal := step()
	ev.press(gpucontext.KeyLeftShift, 0)
	fast := step()
	ev.release(gpucontext.KeyLeftShift, 0)
	ev.press(gpucontext.KeyRightControl, 0)
	slow := step()
	ev.release(gpucontext.KeyRightControl, 0)
	if !(fast > normal && normal > slow) {
		t.Errorf("steps fast %v normal %v slow %v", fast, normal, slow)
	}
}

func TestBindInputMouseLook(t *testing.T) {
	fc := NewFrameContext(DefaultConfig())
	ev := &events{}
	BindInput(ev, nil, fc)

	yaw := func() float32 {
		var y float32
		fc.WithCamera(func(c *Camera) { y = c.Yaw })
		return y
	}
	ev.move(50, 50)
	if yaw() != 0 {
		t.Fatal("camera rotated without mouse look")
	}
	ev.mouseUp(gpucontext.MouseButtonLeft, 50, 50)
	ev.move(80, 50)
	if yaw() != 0 {
		t.Fatal("left button enabled mouse look")
	}
	ev.mouseUp(gpucontext.MouseButtonRight, 80, 50)
	ev.move(100, 50)
	if yaw() <= 0 {
		t.Errorf("yaw = %v after moving right", yaw())
	}
	ev.mouseUp(gpucontext.MouseButtonRight, 100, 50)
	before := yaw()
	ev.move(200, 50)
	if yaw() != before {
		t.Error("camera rotated after mouse look was switched off")
	}
}

func TestBindInputResize(t *testing.T) {
	g := newRig(t, DefaultConfig())
	ev := &events{}
	BindInput(ev, g.r, g.fc)

	ev.resize(1024, 768)
	if g.r.State() != StateResizePending {
		t.Fatalf("state = %v", g.r.State())
	}
	// A minimized window keeps the resize pending.
	ev.resize(0, 0)
	if res := g.frame(t); !res.Skipped {
		t.Errorf("zero-size frame = %+v", res)
	}
	ev.resize(1024, 768)
	if res := g.frame(t); !res.Resized || !res.Presented {
		t.Errorf("frame = %+v", res)
	}
	if w, h := g.r.Extent(); w != 1024 || h != 768 {
		t.Errorf("extent = %dx%d", w, h)
	}
}
