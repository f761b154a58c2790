// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SamplerBindingBase offsets the companion sampler of a sampled image:
// the image at binding i is sampled through the sampler at i+SamplerBindingBase.
const SamplerBindingBase = 16

// BindingKind is the kind of resource at a binding index.
type BindingKind uint8

const (
	// KindUniformBuffer binds a UniformSlot.
	KindUniformBuffer BindingKind = iota + 1
	// KindSampledImage binds a RenderTarget view plus its companion sampler.
	KindSampledImage
)

func (k BindingKind) String() string {
	switch k {
	case KindUniformBuffer:
		return "uniform-buffer"
	case KindSampledImage:
		return "sampled-image"
	default:
		return fmt.Sprintf("BindingKind(%d)", uint8(k))
	}
}

// BindingSpec declares one binding of a layout.
type BindingSpec struct {
	Index      uint32
	Kind       BindingKind
	Visibility gputypes.ShaderStages
	// Depth marks a sampled image holding depth. It is bound as a depth
	// texture with a non-filtering sampler.
	Depth bool
}

// BindingLayout is a reference-counted bind group layout. Sets and
// pipeline layouts that use it retain it.
type BindingLayout struct {
	label  string
	specs  []BindingSpec
	raw    hal.BindGroupLayout
	refs   int
	device hal.Device
}

// NewBindingLayout validates specs and creates the layout with a reference
// count of one.
func NewBindingLayout(device hal.Device, label string, specs []BindingSpec) (*BindingLayout, error) {
	seen := make(map[uint32]bool, len(specs))
	entries := make([]gputypes.BindGroupLayoutEntry, 0, 2*len(specs))
	for _, s := range specs {
		if seen[s.Index] {
			return nil, fmt.Errorf("layout %q: binding %d: %w", label, s.Index, ErrDuplicateBinding)
		}
		seen[s.Index] = true

		switch s.Kind {
		case KindUniformBuffer:
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    s.Index,
				Visibility: s.Visibility,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			})
		case KindSampledImage:
			if s.Index >= SamplerBindingBase {
				return nil, fmt.Errorf("layout %q: sampled image at %d collides with sampler range: %w",
					label, s.Index, ErrBindingKind)
			}
			sampleType := gputypes.TextureSampleTypeFloat
			samplerType := gputypes.SamplerBindingTypeFiltering
			if s.Depth {
				sampleType = gputypes.TextureSampleTypeDepth
				samplerType = gputypes.SamplerBindingTypeNonFiltering
			}
			entries = append(entries,
				gputypes.BindGroupLayoutEntry{
					Binding:    s.Index,
					Visibility: s.Visibility,
					Texture: &gputypes.TextureBindingLayout{
						SampleType:    sampleType,
						ViewDimension: gputypes.TextureViewDimension2D,
					},
				},
				gputypes.BindGroupLayoutEntry{
					Binding:    s.Index + SamplerBindingBase,
					Visibility: s.Visibility,
					Sampler:    &gputypes.SamplerBindingLayout{Type: samplerType},
				})
		default:
			return nil, fmt.Errorf("layout %q: binding %d: %v: %w", label, s.Index, s.Kind, ErrBindingKind)
		}
	}
	for _, s := range specs {
		if s.Kind == KindSampledImage && seen[s.Index+SamplerBindingBase] {
			return nil, fmt.Errorf("layout %q: binding %d shadows sampler of image %d: %w",
				label, s.Index+SamplerBindingBase, s.Index, ErrDuplicateBinding)
		}
	}

	raw, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: label, Entries: entries})
	if err != nil {
		return nil, resourceErr("create bind group layout", label, err)
	}
	return &BindingLayout{
		label:  label,
		specs:  slices.Clone(specs),
		raw:    raw,
		refs:   1,
		device: device,
	}, nil
}

// Retain adds a reference.
func (l *BindingLayout) Retain() { l.refs++ }

// Release drops a reference and destroys the layout on the last one.
func (l *BindingLayout) Release() {
	if l.refs == 0 {
		return
	}
	l.refs--
	if l.refs == 0 {
		l.device.DestroyBindGroupLayout(l.raw)
		l.raw = nil
	}
}

// Refs returns the current reference count.
func (l *BindingLayout) Refs() int { return l.refs }

// Raw returns the HAL layout.
func (l *BindingLayout) Raw() hal.BindGroupLayout { return l.raw }

// Specs returns a copy of the declared bindings.
func (l *BindingLayout) Specs() []BindingSpec { return slices.Clone(l.specs) }

// Label returns the debug label.
func (l *BindingLayout) Label() string { return l.label }

func (l *BindingLayout) spec(index uint32) (BindingSpec, bool) {
	for _, s := range l.specs {
		if s.Index == index {
			return s, true
		}
	}
	return BindingSpec{}, false
}

func (l *BindingLayout) counts() (uniforms, images int) {
	for _, s := range l.specs {
		switch s.Kind {
		case KindUniformBuffer:
			uniforms++
		case KindSampledImage:
			images++
		}
	}
	return uniforms, images
}

// PoolSizes is the capacity of a BindingPool.
type PoolSizes struct {
	MaxSets        int
	UniformBuffers int
	SampledImages  int
}

// BindingPool hands out BindingSets against a fixed capacity.
// It also owns the samplers paired with sampled images.
type BindingPool struct {
	device hal.Device
	label  string
	sizes  PoolSizes
	used   PoolSizes

	linear  hal.Sampler
	nearest hal.Sampler
}

// NewBindingPool creates a pool and its companion samplers.
func NewBindingPool(device hal.Device, label string, sizes PoolSizes) (*BindingPool, error) {
	p := &BindingPool{device: device, label: label, sizes: sizes}
	var err error
	p.linear, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label + "_linear",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, resourceErr("create sampler", label+"_linear", err)
	}
	p.nearest, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label + "_nearest",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		device.DestroySampler(p.linear)
		return nil, resourceErr("create sampler", label+"_nearest", err)
	}
	return p, nil
}

// Available returns the remaining capacity.
func (p *BindingPool) Available() PoolSizes {
	return PoolSizes{
		MaxSets:        p.sizes.MaxSets - p.used.MaxSets,
		UniformBuffers: p.sizes.UniformBuffers - p.used.UniformBuffers,
		SampledImages:  p.sizes.SampledImages - p.used.SampledImages,
	}
}

// Allocate reserves capacity for one set of layout.
func (p *BindingPool) Allocate(layout *BindingLayout, label string) (*BindingSet, error) {
	uniforms, images := layout.counts()
	avail := p.Available()
	switch {
	case avail.MaxSets < 1:
		return nil, &PoolExhaustedError{Kind: "sets", Requested: 1, Available: avail.MaxSets}
	case avail.UniformBuffers < uniforms:
		return nil, &PoolExhaustedError{Kind: KindUniformBuffer.String(), Requested: uniforms, Available: avail.UniformBuffers}
	case avail.SampledImages < images:
		return nil, &PoolExhaustedError{Kind: KindSampledImage.String(), Requested: images, Available: avail.SampledImages}
	}
	p.used.MaxSets++
	p.used.UniformBuffers += uniforms
	p.used.SampledImages += images
	layout.Retain()

	return &BindingSet{
		pool:        p,
		layout:      layout,
		label:       label,
		generations: make(map[uint32]uint64),
		targets:     make(map[uint32]*RenderTarget),
	}, nil
}

// Free returns a set's capacity to the pool and destroys its bind group.
func (p *BindingPool) Free(s *BindingSet) {
	if s == nil || s.freed || s.pool != p {
		return
	}
	if s.group != nil {
		p.device.DestroyBindGroup(s.group)
		s.group = nil
	}
	uniforms, images := s.layout.counts()
	p.used.MaxSets--
	p.used.UniformBuffers -= uniforms
	p.used.SampledImages -= images
	s.layout.Release()
	s.freed = true
}

// Destroy releases the samplers. Sets must be freed first.
func (p *BindingPool) Destroy() {
	if p.linear != nil {
		p.device.DestroySampler(p.linear)
		p.linear = nil
	}
	if p.nearest != nil {
		p.device.DestroySampler(p.nearest)
		p.nearest = nil
	}
}

// BindingWrite assigns a resource to one binding index. Exactly one of
// Uniform and Target is set.
type BindingWrite struct {
	Index   uint32
	Uniform *UniformSlot
	Target  *RenderTarget
}

// UniformWrite binds u at index.
func UniformWrite(index uint32, u *UniformSlot) BindingWrite {
	return BindingWrite{Index: index, Uniform: u}
}

// ImageWrite binds the view of t at index.
func ImageWrite(index uint32, t *RenderTarget) BindingWrite {
	return BindingWrite{Index: index, Target: t}
}

// BindingSet is one bind group allocated from a BindingPool.
type BindingSet struct {
	pool   *BindingPool
	layout *BindingLayout
	label  string
	group  hal.BindGroup
	freed  bool

	// generations of the targets captured by the last Write.
	generations map[uint32]uint64
	targets     map[uint32]*RenderTarget
}

// Write binds every layout index in one batch. Each index must be written
// exactly once with a resource of its declared kind. On success the previous
// bind group is replaced.
func (s *BindingSet) Write(writes ...BindingWrite) error {
	if s.freed {
		return fmt.Errorf("binding set %q: %w", s.label, ErrDestroyed)
	}
	covered := make(map[uint32]bool, len(writes))
	entries := make([]gputypes.BindGroupEntry, 0, 2*len(writes))
	generations := make(map[uint32]uint64)
	targets := make(map[uint32]*RenderTarget)

	for _, w := range writes {
		spec, ok := s.layout.spec(w.Index)
		if !ok {
			return fmt.Errorf("binding set %q: index %d not in layout %q: %w", s.label, w.Index, s.layout.label, ErrBindingKind)
		}
		if covered[w.Index] {
			return fmt.Errorf("binding set %q: index %d: %w", s.label, w.Index, ErrDuplicateBinding)
		}
		covered[w.Index] = true

		switch {
		case spec.Kind == KindUniformBuffer && w.Uniform != nil && w.Target == nil:
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: w.Index,
				Resource: gputypes.BufferBinding{
					Buffer: w.Uniform.Buffer().NativeHandle(),
					Size:   w.Uniform.Size(),
				},
			})
		case spec.Kind == KindSampledImage && w.Target != nil && w.Uniform == nil:
			sampler := s.pool.linear
			if spec.Depth {
				sampler = s.pool.nearest
			}
			entries = append(entries,
				gputypes.BindGroupEntry{
					Binding:  w.Index,
					Resource: gputypes.TextureViewBinding{TextureView: w.Target.View().NativeHandle()},
				},
				gputypes.BindGroupEntry{
					Binding:  w.Index + SamplerBindingBase,
					Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
				})
			generations[w.Index] = w.Target.Generation()
			targets[w.Index] = w.Target
		default:
			return fmt.Errorf("binding set %q: index %d expects %v: %w", s.label, w.Index, spec.Kind, ErrBindingKind)
		}
	}
	for _, spec := range s.layout.specs {
		if !covered[spec.Index] {
			return fmt.Errorf("binding set %q: index %d (%v) unbound: %w", s.label, spec.Index, spec.Kind, ErrIncompleteWrite)
		}
	}

	group, err := s.pool.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   s.label,
		Layout:  s.layout.raw,
		Entries: entries,
	})
	if err != nil {
		return resourceErr("create bind group", s.label, err)
	}
	if s.group != nil {
		s.pool.device.DestroyBindGroup(s.group)
	}
	s.group = group
	s.generations = generations
	s.targets = targets
	return nil
}

// Stale reports whether a bound target was recreated since the last Write.
func (s *BindingSet) Stale() bool {
	for idx, t := range s.targets {
		if t.Generation() != s.generations[idx] {
			return true
		}
	}
	return false
}

// Written reports whether Write has succeeded at least once.
func (s *BindingSet) Written() bool { return s.group != nil }

// Raw returns the HAL bind group.
func (s *BindingSet) Raw() hal.BindGroup { return s.group }

// Layout returns the set's layout.
func (s *BindingSet) Layout() *BindingLayout { return s.layout }

// Label returns the debug label.
func (s *BindingSet) Label() string { return s.label }
