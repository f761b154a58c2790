// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"math"
	"time"

	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// Movement is a set of held movement keys.
type Movement uint8

const (
	MoveForward Movement = 1 << iota
	MoveBack
	MoveLeft
	MoveRight
	MoveUp
	MoveDown
)

// SpeedMode scales the camera speed.
type SpeedMode uint8

const (
	SpeedNormal SpeedMode = iota
	SpeedFast
	SpeedSlow
)

func (m SpeedMode) factor() float32 {
	switch m {
	case SpeedFast:
		return 4
	case SpeedSlow:
		return 0.25
	}
	return 1
}

const maxPitch = 89 * math.Pi / 180

// CameraConfig holds the camera tunables.
type CameraConfig struct {
	FovY        float32 // radians
	Near        float32
	Far         float32
	Speed       float32 // units per second
	Sensitivity float32 // radians per pixel
}

// DefaultCameraConfig returns a 60° lens from 0.1 to 100.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		FovY:        60 * math.Pi / 180,
		Near:        0.1,
		Far:         100,
		Speed:       5,
		Sensitivity: 0.005,
	}
}

// Camera is a fly camera. Yaw zero looks down -Z; positive pitch looks up.
type Camera struct {
	Position f32.Vec3
	Yaw      float32
	Pitch    float32

	cfg       CameraConfig
	moving    Movement
	speed     SpeedMode
	mouseLook bool

	lastX, lastY float32
	haveLast     bool
}

// NewCamera returns a camera at pos looking down -Z.
func NewCamera(cfg CameraConfig, pos f32.Vec3) *Camera {
	d := DefaultCameraConfig()
	if cfg.FovY <= 0 {
		cfg.FovY = d.FovY
	}
	if cfg.Near <= 0 {
		cfg.Near = d.Near
	}
	if cfg.Far <= cfg.Near {
		cfg.Far = d.Far
	}
	if cfg.Speed <= 0 {
		cfg.Speed = d.Speed
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = d.Sensitivity
	}
	return &Camera{Position: pos, cfg: cfg}
}

// SetMoving marks the movement keys in m as held or released.
func (c *Camera) SetMoving(m Movement, held bool) {
	if held {
		c.moving |= m
	} else {
		c.moving &^= m
	}
}

// Moving returns the held movement keys.
func (c *Camera) Moving() Movement { return c.moving }

// SetSpeedMode selects the speed scale.
func (c *Camera) SetSpeedMode(m SpeedMode) { c.speed = m }

// ToggleMouseLook enables or disables mouse look. The next cursor
// position after enabling only sets the reference point.
func (c *Camera) ToggleMouseLook() {
	c.mouseLook = !c.mouseLook
	c.haveLast = false
}

// MouseLook reports whether cursor motion rotates the camera.
func (c *Camera) MouseLook() bool { return c.mouseLook }

// Cursor feeds an absolute cursor position.
func (c *Camera) Cursor(x, y float32) {
	if !c.mouseLook {
		return
	}
	if c.haveLast {
		c.Yaw += (x - c.lastX) * c.cfg.Sensitivity
		c.Pitch -= (y - c.lastY) * c.cfg.Sensitivity
		c.Pitch = max(-maxPitch, min(maxPitch, c.Pitch))
	}
	c.lastX, c.lastY, c.haveLast = x, y, true
}

// Forward returns the unit view direction.
func (c *Camera) Forward() f32.Vec3 {
	sy, cy := math32.Sincos(c.Yaw)
	sp, cp := math32.Sincos(c.Pitch)
	return f32.Vec3{cp * sy, sp, -cp * cy}
}

// Update moves the camera by the held keys over dt.
func (c *Camera) Update(dt time.Duration) {
	if c.moving == 0 || dt <= 0 {
		return
	}
	step := c.cfg.Speed * c.speed.factor() * float32(dt.Seconds())
	fw := c.Forward()
	right := normalize(cross(fw, f32.Vec3{0, 1, 0}))
	up := f32.Vec3{0, 1, 0}

	var dir f32.Vec3
	if c.moving&MoveForward != 0 {
		dir = add(dir, fw, 1)
	}
	if c.moving&MoveBack != 0 {
		dir = add(dir, fw, -1)
	}
	if c.moving&MoveRight != 0 {
		dir = add(dir, right, 1)
	}
	if c.moving&MoveLeft != 0 {
		dir = add(dir, right, -1)
	}
	if c.moving&MoveUp != 0 {
		dir = add(dir, up, 1)
	}
	if c.moving&MoveDown != 0 {
		dir = add(dir, up, -1)
	}
	c.Position = add(c.Position, normalize(dir), step)
}

// View returns the world-to-view matrix.
func (c *Camera) View() f32.Mat4 {
	return LookDir(c.Position, c.Forward(), f32.Vec3{0, 1, 0})
}

// Projection returns the projection for a framebuffer aspect ratio.
func (c *Camera) Projection(aspect float32) f32.Mat4 {
	return Perspective(c.cfg.FovY, aspect, c.cfg.Near, c.cfg.Far)
}

// WriteScene fills u for a width x height framebuffer.
func (c *Camera) WriteScene(u *SceneUniform, width, height uint32) {
	aspect := float32(1)
	if width > 0 && height > 0 {
		aspect = float32(width) / float32(height)
	}
	p := c.Projection(aspect)
	v := c.View()
	u.ProjCam = Mul(&p, &v)
	u.CamPos = c.Position
}
