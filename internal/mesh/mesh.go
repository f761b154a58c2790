// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mesh builds the procedural meshes of the demo scene and uploads
// them as drawables of the G-buffer pass.
package mesh

import (
	"errors"
	"fmt"

	"golang.org/x/image/math/f32"
)

// ErrInvalidMesh is returned for meshes whose attribute streams disagree.
var ErrInvalidMesh = errors.New("mesh: invalid mesh")

// Mesh is an indexed triangle list with one stream per vertex attribute.
type Mesh struct {
	Positions []f32.Vec3
	Texcoords []f32.Vec2
	Normals   []f32.Vec3
	Indices   []uint32
}

// Validate checks that the streams have equal length and every index is
// in range.
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	if n == 0 {
		return fmt.Errorf("%w: no vertices", ErrInvalidMesh)
	}
	if len(m.Texcoords) != n || len(m.Normals) != n {
		return fmt.Errorf("%w: %d positions, %d texcoords, %d normals",
			ErrInvalidMesh, n, len(m.Texcoords), len(m.Normals))
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a triangle list", ErrInvalidMesh, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: index %d = %d out of range", ErrInvalidMesh, i, idx)
		}
	}
	return nil
}

// face is one cube side: its normal and the two in-plane axes.
type face struct {
	n, u, v f32.Vec3
}

var cubeFaces = [6]face{
	{f32.Vec3{0, 0, 1}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{0, 0, -1}, f32.Vec3{-1, 0, 0}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{-1, 0, 0}, f32.Vec3{0, 0, 1}, f32.Vec3{0, 1, 0}},
	{f32.Vec3{0, 1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, -1}},
	{f32.Vec3{0, -1, 0}, f32.Vec3{1, 0, 0}, f32.Vec3{0, 0, 1}},
}

// Cube returns an axis-aligned cube of edge size centered at center, with
// 4 vertices per face and counter-clockwise front faces.
func Cube(size float32, center f32.Vec3) Mesh {
	h := size / 2
	var m Mesh
	for _, f := range cubeFaces {
		base := uint32(len(m.Positions))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			var p f32.Vec3
			for k := 0; k < 3; k++ {
				p[k] = center[k] + h*(f.n[k]+c[0]*f.u[k]+c[1]*f.v[k])
			}
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, f.n)
			m.Texcoords = append(m.Texcoords, f32.Vec2{(c[0] + 1) / 2, (1 - c[1]) / 2})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Plane returns a square in the XZ plane at height y facing +Y.
func Plane(size, y float32) Mesh {
	h := size / 2
	up := f32.Vec3{0, 1, 0}
	return Mesh{
		Positions: []f32.Vec3{{-h, y, h}, {h, y, h}, {h, y, -h}, {-h, y, -h}},
		Texcoords: []f32.Vec2{{0, size}, {size, size}, {size, 0}, {0, 0}},
		Normals:   []f32.Vec3{up, up, up, up},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}
