// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// Identity returns the 4x4 identity matrix.
func Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns a*b.
func Mul(a, b *f32.Mat4) f32.Mat4 {
	var m f32.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += a[r*4+k] * b[k*4+c]
			}
			m[r*4+c] = s
		}
	}
	return m
}

// Transform returns m*v.
func Transform(m *f32.Mat4, v f32.Vec4) f32.Vec4 {
	var out f32.Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[r*4]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return out
}

// Perspective returns a right-handed projection with depth mapped to [0,1]
// and the Y axis flipped for a top-left framebuffer origin.
func Perspective(fovY, aspect, near, far float32) f32.Mat4 {
	f := 1 / math32.Tan(fovY/2)
	return f32.Mat4{
		f / aspect, 0, 0, 0,
		0, -f, 0, 0,
		0, 0, far / (near - far), -(far * near) / (far - near),
		0, 0, -1, 0,
	}
}

// LookDir returns a right-handed view matrix for an eye at pos facing
// forward. forward must be normalized and not parallel to up.
func LookDir(pos, forward, up f32.Vec3) f32.Mat4 {
	r := normalize(cross(forward, up))
	u := cross(r, forward)
	fw := forward
	return f32.Mat4{
		r[0], r[1], r[2], -dot(r, pos),
		u[0], u[1], u[2], -dot(u, pos),
		-fw[0], -fw[1], -fw[2], dot(fw, pos),
		0, 0, 0, 1,
	}
}

func dot(a, b f32.Vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v f32.Vec3) f32.Vec3 {
	l := math32.Sqrt(dot(v, v))
	if l == 0 {
		return v
	}
	return f32.Vec3{v[0] / l, v[1] / l, v[2] / l}
}

func add(a, b f32.Vec3, s float32) f32.Vec3 {
	return f32.Vec3{a[0] + b[0]*s, a[1] + b[1]*s, a[2] + b[2]*s}
}
