// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"github.com/gogpu/gpucontext"
)

// movementKeys maps the fly-camera keys to movement flags.
var movementKeys = map[gpucontext.Key]Movement{
	gpucontext.KeyW: MoveForward,
	gpucontext.KeyS: MoveBack,
	gpucontext.KeyA: MoveLeft,
	gpucontext.KeyD: MoveRight,
	gpucontext.KeyE: MoveUp,
	gpucontext.KeyQ: MoveDown,
}

// lightKeys maps the number row to light indices.
var lightKeys = map[gpucontext.Key]int{
	gpucontext.Key1: 0,
	gpucontext.Key2: 1,
	gpucontext.Key3: 2,
	gpucontext.Key4: 3,
	gpucontext.Key5: 4,
}

func isSpeedKey(k gpucontext.Key) bool {
	switch k {
	case gpucontext.KeyLeftShift, gpucontext.KeyRightShift,
		gpucontext.KeyLeftControl, gpucontext.KeyRightControl:
		return true
	}
	return false
}

// BindInput registers the demo controls on src:
//
//	Escape       quit
//	W A S D Q E  move (held)
//	Shift, Ctrl  faster, slower (held)
//	1 .. 5       toggle light
//	Space        toggle light animation
//	Tab          next scene
//	right mouse  toggle mouse look
//
// Window resizes are forwarded to r. r may be nil for input-only use.
func BindInput(src gpucontext.EventSource, r *Renderer, fc *FrameContext) {
	src.OnKeyPress(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		if m, ok := movementKeys[key]; ok {
			fc.SetMoving(m, true)
			return
		}
		if i, ok := lightKeys[key]; ok {
			fc.ToggleLight(i)
			return
		}
		switch key {
		case gpucontext.KeyEscape:
			fc.RequestQuit()
		case gpucontext.KeyLeftShift, gpucontext.KeyRightShift:
			fc.SetSpeedMode(SpeedFast)
		case gpucontext.KeyLeftControl, gpucontext.KeyRightControl:
			fc.SetSpeedMode(SpeedSlow)
		case gpucontext.KeySpace:
			fc.ToggleAnimation()
		case gpucontext.KeyTab:
			fc.NextScene()
		}
	})
	src.OnKeyRelease(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		if m, ok := movementKeys[key]; ok {
			fc.SetMoving(m, false)
			return
		}
		if isSpeedKey(key) {
			fc.SetSpeedMode(SpeedNormal)
		}
	})
	src.OnMouseMove(func(x, y float64) {
		fc.Cursor(x, y)
	})
	src.OnMouseRelease(func(button gpucontext.MouseButton, x, y float64) {
		if button == gpucontext.MouseButtonRight {
			fc.ToggleMouseLook()
			fc.Cursor(x, y)
		}
	})
	src.OnResize(func(width, height int) {
		if r == nil || width < 0 || height < 0 {
			return
		}
		if err := r.RequestResize(uint32(width), uint32(height)); err != nil {
			Logger().Warn("resize request rejected", "width", width, "height", height, "err", err)
		}
	})
}
