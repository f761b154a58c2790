// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"image"
	"image/color"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/deferred/internal/mesh"
)

// Mesh data types.
type (
	Mesh     = mesh.Mesh
	Material = mesh.Material
	Model    = mesh.Model
)

// ErrInvalidMesh is returned by Upload for inconsistent meshes or images.
var ErrInvalidMesh = mesh.ErrInvalidMesh

// Cube returns an axis-aligned cube mesh of edge size around center.
func Cube(size float32, center f32.Vec3) Mesh { return mesh.Cube(size, center) }

// Plane returns a square floor mesh of edge size at height y.
func Plane(size, y float32) Mesh { return mesh.Plane(size, y) }

// Checker returns a size x size checkerboard texture. size*4 must be a
// multiple of 256 for Upload.
func Checker(size, cells int, a, b color.RGBA) *image.RGBA {
	return mesh.Checker(size, cells, a, b)
}
