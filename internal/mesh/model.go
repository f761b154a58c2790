// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mesh

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/internal/gpu"
)

// Host is what Upload needs from the frame graph. *gpu.Orchestrator
// implements it.
type Host interface {
	Device() hal.Device
	Queue() hal.Queue
	Pool() *gpu.BindingPool
	TextureLayout() *gpu.BindingLayout
	MaterialLayout() *gpu.BindingLayout
}

// Model is a mesh resident on the GPU with its texture and material sets.
type Model struct {
	label string
	pool  *gpu.BindingPool

	positions hal.Buffer
	texcoords hal.Buffer
	normals   hal.Buffer
	index     hal.Buffer
	count     uint32

	texture     *gpu.RenderTarget
	material    *Material
	materialBuf *gpu.UniformSlot
	textureSet  *gpu.BindingSet
	materialSet *gpu.BindingSet
}

// Upload creates the vertex, index, texture and material resources of m
// and writes them through the queue. The base color image must have a row
// pitch that is a multiple of 256 bytes.
func Upload(h Host, label string, m Mesh, mat *Material, base *image.RGBA) (model *Model, err error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("%w: %s: no base color image", ErrInvalidMesh, label)
	}
	if base.Stride%256 != 0 {
		return nil, fmt.Errorf("%w: %s: row pitch %d is not a multiple of 256", ErrInvalidMesh, label, base.Stride)
	}

	d, q := h.Device(), h.Queue()
	model = &Model{label: label, pool: h.Pool(), material: mat, count: uint32(len(m.Indices))}
	defer func() {
		if err != nil {
			model.Destroy(d)
			model = nil
		}
	}()

	vtx := gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	if model.positions, err = upload(d, q, label+"_positions", vtx, vec3Bytes(m.Positions)); err != nil {
		return model, err
	}
	if model.texcoords, err = upload(d, q, label+"_texcoords", vtx, vec2Bytes(m.Texcoords)); err != nil {
		return model, err
	}
	if model.normals, err = upload(d, q, label+"_normals", vtx, vec3Bytes(m.Normals)); err != nil {
		return model, err
	}
	idx := make([]byte, 4*len(m.Indices))
	for i, v := range m.Indices {
		binary.LittleEndian.PutUint32(idx[i*4:], v)
	}
	if model.index, err = upload(d, q, label+"_indices", gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst, idx); err != nil {
		return model, err
	}

	size := base.Bounds().Size()
	if model.texture, err = gpu.NewRenderTarget(d, gpu.TargetDesc{
		Label:  label + "_base_color",
		Extent: gpu.Extent{Width: uint32(size.X), Height: uint32(size.Y)},
		Format: gputypes.TextureFormatRGBA8UnormSrgb,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	}); err != nil {
		return model, err
	}
	if err = q.WriteTexture(&hal.ImageCopyTexture{
		Texture: model.texture.Texture(),
		Origin:  hal.Origin3D{},
		Aspect:  gputypes.TextureAspectAll,
	}, base.Pix, &hal.ImageDataLayout{
		BytesPerRow:  uint32(base.Stride),
		RowsPerImage: uint32(size.Y),
	}, &hal.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1}); err != nil {
		return model, fmt.Errorf("mesh %s: write texture: %w", label, err)
	}

	if model.materialBuf, err = gpu.NewUniformSlot(d, label+"_material", mat, 1); err != nil {
		return model, err
	}
	if err = q.WriteBuffer(model.materialBuf.Buffer(), 0, mat.Bytes()); err != nil {
		return model, fmt.Errorf("mesh %s: write material: %w", label, err)
	}

	if model.textureSet, err = model.pool.Allocate(h.TextureLayout(), label+"_texture_set"); err != nil {
		return model, err
	}
	if err = model.textureSet.Write(gpu.ImageWrite(gpu.TextureBinding, model.texture)); err != nil {
		return model, err
	}
	if model.materialSet, err = model.pool.Allocate(h.MaterialLayout(), label+"_material_set"); err != nil {
		return model, err
	}
	if err = model.materialSet.Write(gpu.UniformWrite(gpu.MaterialBinding, model.materialBuf)); err != nil {
		return model, err
	}
	return model, nil
}

func upload(d hal.Device, q hal.Queue, label string, usage gputypes.BufferUsage, data []byte) (hal.Buffer, error) {
	buf, err := d.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: uint64(len(data)), Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("mesh: create buffer %s: %w", label, err)
	}
	if err := q.WriteBuffer(buf, 0, data); err != nil {
		d.DestroyBuffer(buf)
		return nil, fmt.Errorf("mesh: write buffer %s: %w", label, err)
	}
	return buf, nil
}

// UpdateMaterial rewrites the material block from its current fields.
func (m *Model) UpdateMaterial(q hal.Queue) error {
	return q.WriteBuffer(m.materialBuf.Buffer(), 0, m.material.Bytes())
}

// Drawable returns the G-buffer draw of the model.
func (m *Model) Drawable() gpu.Drawable {
	return gpu.Drawable{
		Positions:   m.positions,
		Texcoords:   m.texcoords,
		Normals:     m.normals,
		Index:       m.index,
		IndexFormat: gputypes.IndexFormatUint32,
		IndexCount:  m.count,
		Texture:     m.textureSet,
		Material:    m.materialSet,
	}
}

// Material returns the material block. Call UpdateMaterial after
// changing it.
func (m *Model) Material() *Material { return m.material }

// Label returns the debug label.
func (m *Model) Label() string { return m.label }

// Destroy releases every resource of the model. The device must be idle
// with respect to frames that drew it.
func (m *Model) Destroy(d hal.Device) {
	if m.materialSet != nil {
		m.pool.Free(m.materialSet)
		m.materialSet = nil
	}
	if m.textureSet != nil {
		m.pool.Free(m.textureSet)
		m.textureSet = nil
	}
	if m.materialBuf != nil {
		m.materialBuf.Destroy(d)
		m.materialBuf = nil
	}
	if m.texture != nil {
		m.texture.Destroy(d)
		m.texture = nil
	}
	for _, b := range []*hal.Buffer{&m.index, &m.normals, &m.texcoords, &m.positions} {
		if *b != nil {
			d.DestroyBuffer(*b)
			*b = nil
		}
	}
}

func vec3Bytes[V ~[3]float32](vs []V) []byte {
	out := make([]byte, 12*len(vs))
	for i, v := range vs {
		for k := 0; k < 3; k++ {
			binary.LittleEndian.PutUint32(out[i*12+k*4:], math.Float32bits(v[k]))
		}
	}
	return out
}

func vec2Bytes[V ~[2]float32](vs []V) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*8:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(out[i*8+4:], math.Float32bits(v[1]))
	}
	return out
}
