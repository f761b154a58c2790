// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"golang.org/x/image/math/f32"
)

const eps = 1e-4

func near(a, b float32) bool { return math.Abs(float64(a-b)) < eps }

func f32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func TestSceneUniformLayout(t *testing.T) {
	var u SceneUniform
	for i := range u.ProjCam {
		u.ProjCam[i] = float32(i)
	}
	u.CamPos = f32.Vec3{7, 8, 9}
	b := u.Bytes()
	if len(b) != SceneUniformSize || len(b)%4 != 0 {
		t.Fatalf("len = %d", len(b))
	}
	// Row 1, column 2 of a row-major matrix lands in column 2 of the
	// column-major block.
	if got := f32At(b, (2*4+1)*4); got != u.ProjCam[1*4+2] {
		t.Errorf("m[1][2] = %v, want %v", got, u.ProjCam[6])
	}
	if f32At(b, 64) != 7 || f32At(b, 68) != 8 || f32At(b, 72) != 9 {
		t.Error("camera position not at offset 64")
	}
}

func TestLightSetLayout(t *testing.T) {
	m := NewLightManager(DefaultAmbient, 0)
	b := m.Set().Bytes()
	if len(b) != LightSetSize || LightSetSize != 352 {
		t.Fatalf("len = %d", len(b))
	}
	if binary.LittleEndian.Uint32(b[0:]) != MaxLights {
		t.Errorf("count = %d", binary.LittleEndian.Uint32(b[0:]))
	}
	if f32At(b, 16) != 0.2 || f32At(b, 28) != 1 {
		t.Error("ambient not at offset 16")
	}
	// light[1]: position at 96, diffuse at 112, radian at 144.
	if f32At(b, 96+4) != 9.3 {
		t.Errorf("light[1].position.y = %v", f32At(b, 100))
	}
	if f32At(b, 112) != 0 || f32At(b, 116) != 2 || f32At(b, 120) != 2 {
		t.Errorf("light[1].diffuse = %v %v %v", f32At(b, 112), f32At(b, 116), f32At(b, 120))
	}
	if !near(f32At(b, 144), math.Pi/5) {
		t.Errorf("light[1].radian = %v", f32At(b, 144))
	}
}

func TestLightToggleReassigns(t *testing.T) {
	m := NewLightManager(DefaultAmbient, 0)
	if !m.Toggle(1) || m.Enabled(1) {
		t.Fatal("light 1 still on")
	}
	s := m.Set()
	if s.Count != 4 {
		t.Fatalf("count = %d", s.Count)
	}
	// Slot 1 now holds light 2.
	if d := s.Lights[1].Diffuse; d != (f32.Vec4{1, 0, 3, 1}) {
		t.Errorf("slot 1 diffuse = %v", d)
	}
	if !near(s.Lights[1].Radian, 2*math.Pi/5) {
		t.Errorf("slot 1 radian = %v", s.Lights[1].Radian)
	}
	if s.Lights[4] != (Light{}) {
		t.Error("unused slot not cleared")
	}
	if m.Toggle(5) || m.Toggle(-1) {
		t.Error("out of range toggle accepted")
	}
	m.Toggle(1)
	if s.Count != MaxLights {
		t.Errorf("count after re-enable = %d", s.Count)
	}
}

func TestLightAnimate(t *testing.T) {
	m := NewLightManager(DefaultAmbient, 0.1)
	before := m.Set().Lights[0].Radian
	m.Animate()
	if m.Set().Lights[0].Radian != before {
		t.Fatal("Animate moved lights with animation off")
	}
	m.ToggleAnimation()
	m.Animate()
	m.Animate()
	if got := m.Set().Lights[0].Radian; !near(got, before+0.2) {
		t.Errorf("radian = %v, want %v", got, before+0.2)
	}
	// The offset survives a rebuild.
	m.Toggle(0)
	if got := m.Set().Lights[0].Radian; !near(got, math.Pi/5+0.2) {
		t.Errorf("radian after toggle = %v", got)
	}
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := Perspective(math.Pi/3, 1, 0.1, 100)
	ndc := func(v f32.Vec4) f32.Vec4 {
		c := Transform(&p, v)
		return f32.Vec4{c[0] / c[3], c[1] / c[3], c[2] / c[3], 1}
	}
	if z := ndc(f32.Vec4{0, 0, -0.1, 1})[2]; !near(z, 0) {
		t.Errorf("near plane depth = %v", z)
	}
	if z := ndc(f32.Vec4{0, 0, -100, 1})[2]; !near(z, 1) {
		t.Errorf("far plane depth = %v", z)
	}
	if y := ndc(f32.Vec4{0, 1, -5, 1})[1]; y >= 0 {
		t.Errorf("point above the axis maps to y = %v, want negative", y)
	}
}

func TestCameraMovement(t *testing.T) {
	c := NewCamera(CameraConfig{Speed: 2}, f32.Vec3{0, 0, 5})
	c.SetMoving(MoveForward, true)
	c.Update(time.Second)
	if !near(c.Position[2], 3) {
		t.Errorf("z after forward = %v", c.Position[2])
	}
	c.SetMoving(MoveForward, false)
	c.SetMoving(MoveRight|MoveUp, true)
	c.SetSpeedMode(SpeedSlow)
	c.Update(time.Second)
	d := float32(0.5 / math.Sqrt2)
	if !near(c.Position[0], d) || !near(c.Position[1], d) {
		t.Errorf("position = %v", c.Position)
	}
	if c.Moving() != MoveRight|MoveUp {
		t.Errorf("moving = %b", c.Moving())
	}
}

func TestCameraMouseLook(t *testing.T) {
	c := NewCamera(CameraConfig{Sensitivity: 0.01}, f32.Vec3{})
	c.Cursor(10, 10)
	if c.Yaw != 0 {
		t.Fatal("cursor rotated without mouse look")
	}
	c.ToggleMouseLook()
	c.Cursor(100, 100)
	c.Cursor(110, 90)
	if !near(c.Yaw, 0.1) || !near(c.Pitch, 0.1) {
		t.Errorf("yaw %v pitch %v", c.Yaw, c.Pitch)
	}
	c.Cursor(110, -100000)
	if c.Pitch > maxPitch+eps {
		t.Errorf("pitch %v not clamped", c.Pitch)
	}
}

func TestCameraWriteScene(t *testing.T) {
	c := NewCamera(DefaultCameraConfig(), f32.Vec3{0, 0, 5})
	var u SceneUniform
	c.WriteScene(&u, 800, 600)
	if u.CamPos != c.Position {
		t.Errorf("cam pos = %v", u.CamPos)
	}
	// The origin is 5 units ahead and lands in the center of the view.
	clip := Transform(&u.ProjCam, f32.Vec4{0, 0, 0, 1})
	if !near(clip[0], 0) || !near(clip[1], 0) || clip[3] <= 0 {
		t.Errorf("origin clip = %v", clip)
	}
	if z := clip[2] / clip[3]; z <= 0 || z >= 1 {
		t.Errorf("origin depth = %v", z)
	}
}
