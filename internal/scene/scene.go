// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene holds the CPU-side state the frame graph uploads each frame:
// the camera, the light set and their std140 uniform blocks.
//
// SceneUniform and LightSet implement the uniform source contract of
// internal/gpu: Bytes returns a view of the block as it must appear on the
// GPU, valid until the next call. The renderer reads it while recording,
// so the owner must not mutate the block concurrently with RenderFrame.
package scene

import (
	"golang.org/x/image/math/f32"
)

// SceneUniformSize is the std140 size of SceneUniform: mat4 + vec3, padded.
const SceneUniformSize = 80

// SceneUniform is the per-frame camera block shared by both passes.
type SceneUniform struct {
	ProjCam f32.Mat4
	CamPos  f32.Vec3

	buf [SceneUniformSize]byte
}

// Bytes encodes the block and returns the encoded view.
func (s *SceneUniform) Bytes() []byte {
	putMat4(s.buf[0:64], &s.ProjCam)
	putVec3(s.buf[64:76], s.CamPos)
	return s.buf[:]
}
