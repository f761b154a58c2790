// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mesh

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/math/f32"
)

// MaterialSize is the std140 size of Material.
const MaterialSize = 48

// Material is the per-mesh uniform block of the G-buffer pass.
type Material struct {
	Emissive  f32.Vec4
	Albedo    f32.Vec4
	Shininess float32
	Metalness float32

	buf [MaterialSize]byte
}

// Bytes encodes the block and returns the encoded view.
func (m *Material) Bytes() []byte {
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(m.buf[off:], math.Float32bits(v))
	}
	for i := 0; i < 4; i++ {
		put(i*4, m.Emissive[i])
		put(16+i*4, m.Albedo[i])
	}
	put(32, m.Shininess)
	put(36, m.Metalness)
	return m.buf[:]
}

// Checker returns a size x size checkerboard with cells pixels per square.
func Checker(size, cells int, a, b color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := max(size/max(cells, 1), 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
