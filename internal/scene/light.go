// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"math"

	"golang.org/x/image/math/f32"
)

const (
	// MaxLights is the fixed light array length of the composite shader.
	MaxLights = 5

	// LightSize is the std140 stride of one Light.
	LightSize = 64

	// LightSetSize is the std140 size of LightSet.
	LightSetSize = 32 + MaxLights*LightSize

	// DefaultAnimationStep is the radian advance per animated frame.
	DefaultAnimationStep = 0.05
)

// DefaultAmbient is the ambient term of a new light set.
var DefaultAmbient = f32.Vec4{0.2, 0.2, 0.2, 1}

// Light is one point light orbiting its position.
type Light struct {
	Position f32.Vec4
	Diffuse  f32.Vec4
	Specular f32.Vec4
	Radian   float32
}

// LightSet is the light uniform block of the composite pass.
// Only the first Count entries of Lights are active.
type LightSet struct {
	Count   uint32
	Ambient f32.Vec4
	Lights  [MaxLights]Light

	buf [LightSetSize]byte
}

// Bytes encodes the block and returns the encoded view.
func (s *LightSet) Bytes() []byte {
	clear(s.buf[:])
	putU32(s.buf[0:4], s.Count)
	putVec4(s.buf[16:32], s.Ambient)
	for i := range s.Lights {
		l := &s.Lights[i]
		b := s.buf[32+i*LightSize:]
		putVec4(b[0:16], l.Position)
		putVec4(b[16:32], l.Diffuse)
		putVec4(b[32:48], l.Specular)
		putF32(b[48:52], l.Radian)
	}
	return s.buf[:]
}

// LightManager switches lights on and off and animates their orbit.
// Active lights are packed to the front of the set in index order.
type LightManager struct {
	set     LightSet
	enabled [MaxLights]bool
	offset  float32
	step    float32
	animate bool
}

// NewLightManager returns a manager with every light enabled.
// A non-positive step means DefaultAnimationStep.
func NewLightManager(ambient f32.Vec4, step float32) *LightManager {
	if step <= 0 {
		step = DefaultAnimationStep
	}
	m := &LightManager{step: step}
	m.set.Ambient = ambient
	for i := range m.enabled {
		m.enabled[i] = true
	}
	m.Update()
	return m
}

// Update rebuilds the set from the enabled lights.
func (m *LightManager) Update() {
	var n uint32
	for i := range m.enabled {
		if !m.enabled[i] {
			continue
		}
		k := i + 1
		m.set.Lights[n] = Light{
			Position: f32.Vec4{0, 9.3, -7, 1},
			Diffuse:  f32.Vec4{float32(k % 2), float32(k % 3), float32(k % 4), 1},
			Specular: f32.Vec4{1, 1, 1, 1},
			Radian:   math.Pi/MaxLights*float32(i) + m.offset,
		}
		n++
	}
	for i := n; i < MaxLights; i++ {
		m.set.Lights[i] = Light{}
	}
	m.set.Count = n
}

// Toggle flips light i and rebuilds the set. It reports false for an
// index outside [0, MaxLights).
func (m *LightManager) Toggle(i int) bool {
	if i < 0 || i >= MaxLights {
		return false
	}
	m.enabled[i] = !m.enabled[i]
	m.Update()
	return true
}

// Enabled reports whether light i is on.
func (m *LightManager) Enabled(i int) bool {
	return i >= 0 && i < MaxLights && m.enabled[i]
}

// ToggleAnimation starts or stops the orbit animation.
func (m *LightManager) ToggleAnimation() { m.animate = !m.animate }

// Animating reports whether Animate advances the lights.
func (m *LightManager) Animating() bool { return m.animate }

// Animate advances every active light by one step when animation is on.
func (m *LightManager) Animate() {
	if !m.animate {
		return
	}
	m.offset += m.step
	for i := uint32(0); i < m.set.Count; i++ {
		m.set.Lights[i].Radian += m.step
	}
}

// Set returns the light block, the uniform source of the light slot.
func (m *LightManager) Set() *LightSet { return &m.set }
