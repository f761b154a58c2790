// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"
)

func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func putU32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func putVec3(buf []byte, v f32.Vec3) {
	putF32(buf[0:4], v[0])
	putF32(buf[4:8], v[1])
	putF32(buf[8:12], v[2])
}

func putVec4(buf []byte, v f32.Vec4) {
	putF32(buf[0:4], v[0])
	putF32(buf[4:8], v[1])
	putF32(buf[8:12], v[2])
	putF32(buf[12:16], v[3])
}

// putMat4 writes m column-major, the std140 layout of mat4x4<f32>.
// f32.Mat4 is row-major.
func putMat4(buf []byte, m *f32.Mat4) {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			putF32(buf[(c*4+r)*4:], m[r*4+c])
		}
	}
}
