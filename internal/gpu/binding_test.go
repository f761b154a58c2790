// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewBindingLayoutValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	frag := gputypes.ShaderStageFragment
	tests := []struct {
		name  string
		specs []BindingSpec
		want  error
	}{
		{"gbuffer", GBufferBindings(), nil},
		{"holes", []BindingSpec{{Index: 0, Kind: KindUniformBuffer}, {Index: 7, Kind: KindSampledImage}}, nil},
		{"duplicate", []BindingSpec{{Index: 1, Kind: KindUniformBuffer}, {Index: 1, Kind: KindSampledImage}}, ErrDuplicateBinding},
		{"image in sampler range", []BindingSpec{{Index: SamplerBindingBase, Kind: KindSampledImage}}, ErrBindingKind},
		{"shadowed sampler", []BindingSpec{
			{Index: 2, Kind: KindSampledImage, Visibility: frag},
			{Index: 2 + SamplerBindingBase, Kind: KindUniformBuffer, Visibility: frag},
		}, ErrDuplicateBinding},
		{"unknown kind", []BindingSpec{{Index: 0}}, ErrBindingKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewBindingLayout(d, tt.name, tt.specs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if l != nil {
				l.Release()
			}
		})
	}
}

func TestBindingLayoutRefcount(t *testing.T) {
	d, _ := newTestDevice(t)
	l, err := NewBindingLayout(d, "scene", SceneBindings())
	if err != nil {
		t.Fatal(err)
	}
	pool, err := NewBindingPool(d, "pool", PoolSizes{MaxSets: 1, UniformBuffers: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	set, err := pool.Allocate(l, "scene_set")
	if err != nil {
		t.Fatal(err)
	}
	l.Release()
	if l.Raw() == nil || l.Refs() != 1 {
		t.Fatalf("layout destroyed while a set holds it (refs %d)", l.Refs())
	}
	pool.Free(set)
	if l.Raw() != nil {
		t.Error("layout not destroyed after last release")
	}
	if d.Live("bind_group_layout") != 0 {
		t.Error("bind group layout leaked")
	}
}

func TestBindingPoolExhaustion(t *testing.T) {
	d, _ := newTestDevice(t)
	gb, err := NewBindingLayout(d, "gbuffer", GBufferBindings())
	if err != nil {
		t.Fatal(err)
	}
	defer gb.Release()

	tests := []struct {
		name  string
		sizes PoolSizes
		kind  string
	}{
		{"sets", PoolSizes{MaxSets: 0, UniformBuffers: 8, SampledImages: 8}, "sets"},
		{"uniforms", PoolSizes{MaxSets: 8, UniformBuffers: 0, SampledImages: 8}, "uniform-buffer"},
		{"images", PoolSizes{MaxSets: 8, UniformBuffers: 8, SampledImages: 3}, "sampled-image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewBindingPool(d, "pool", tt.sizes)
			if err != nil {
				t.Fatal(err)
			}
			defer pool.Destroy()
			_, err = pool.Allocate(gb, "set")
			var pe *PoolExhaustedError
			if !errors.As(err, &pe) || !errors.Is(err, ErrPoolExhausted) {
				t.Fatalf("err = %v, want PoolExhaustedError", err)
			}
			if pe.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", pe.Kind, tt.kind)
			}
			if !IsFatal(err) {
				t.Error("pool exhaustion is fatal")
			}
		})
	}

	pool, _ := NewBindingPool(d, "pool", PoolSizes{MaxSets: 1, UniformBuffers: 1, SampledImages: 4})
	defer pool.Destroy()
	set, err := pool.Allocate(gb, "set")
	if err != nil {
		t.Fatal(err)
	}
	if a := pool.Available(); a != (PoolSizes{}) {
		t.Errorf("available after allocate = %+v", a)
	}
	pool.Free(set)
	if a := pool.Available(); a != (PoolSizes{MaxSets: 1, UniformBuffers: 1, SampledImages: 4}) {
		t.Errorf("available after free = %+v", a)
	}
}

type gbufferFixture struct {
	layout *BindingLayout
	pool   *BindingPool
	set    *BindingSet
	colors []*RenderTarget
	depth  *RenderTarget
	light  *UniformSlot
}

func newGBufferFixture(t *testing.T) (*gbufferFixture, func()) {
	t.Helper()
	d, _ := newTestDevice(t)
	f := &gbufferFixture{}
	var err error
	if f.layout, err = NewBindingLayout(d, "gbuffer", GBufferBindings()); err != nil {
		t.Fatal(err)
	}
	if f.pool, err = NewBindingPool(d, "pool", PoolSizes{MaxSets: 2, UniformBuffers: 2, SampledImages: 8}); err != nil {
		t.Fatal(err)
	}
	if f.set, err = f.pool.Allocate(f.layout, "gbuffer_set"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"position", "normal", "albedo"} {
		rt, err := NewRenderTarget(d, TargetDesc{Label: name, Extent: Extent{16, 16},
			Format: gputypes.TextureFormatRGBA16Float, Usage: gbufferTargetUsage})
		if err != nil {
			t.Fatal(err)
		}
		f.colors = append(f.colors, rt)
	}
	if f.depth, err = NewRenderTarget(d, TargetDesc{Label: "depth", Extent: Extent{16, 16},
		Format: gputypes.TextureFormatDepth32Float, Usage: gbufferTargetUsage}); err != nil {
		t.Fatal(err)
	}
	if f.light, err = NewUniformSlot(d, "lights", make(ByteSource, 352), 1); err != nil {
		t.Fatal(err)
	}
	return f, func() {
		f.pool.Free(f.set)
		f.layout.Release()
		f.pool.Destroy()
		for _, c := range f.colors {
			c.Destroy(d)
		}
		f.depth.Destroy(d)
		f.light.Destroy(d)
		if n := d.Live(""); n != 0 {
			t.Errorf("%d resources leaked", n)
		}
	}
}

func (f *gbufferFixture) writes() []BindingWrite {
	return []BindingWrite{
		ImageWrite(GBufferPositionBinding, f.colors[0]),
		ImageWrite(GBufferNormalBinding, f.colors[1]),
		ImageWrite(GBufferAlbedoBinding, f.colors[2]),
		ImageWrite(GBufferDepthBinding, f.depth),
		UniformWrite(LightBinding, f.light),
	}
}

func TestBindingSetWrite(t *testing.T) {
	f, done := newGBufferFixture(t)
	defer done()

	if err := f.set.Write(f.writes()...); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !f.set.Written() || f.set.Stale() {
		t.Fatalf("written=%v stale=%v", f.set.Written(), f.set.Stale())
	}

	w := f.writes()
	if err := f.set.Write(w[:4]...); !errors.Is(err, ErrIncompleteWrite) {
		t.Errorf("partial write = %v, want ErrIncompleteWrite", err)
	}
	w = f.writes()
	w[4] = ImageWrite(LightBinding, f.depth)
	if err := f.set.Write(w...); !errors.Is(err, ErrBindingKind) {
		t.Errorf("wrong kind = %v, want ErrBindingKind", err)
	}
	w = append(f.writes(), UniformWrite(9, f.light))
	if err := f.set.Write(w...); !errors.Is(err, ErrBindingKind) {
		t.Errorf("unknown index = %v, want ErrBindingKind", err)
	}
	w = append(f.writes(), UniformWrite(LightBinding, f.light))
	if err := f.set.Write(w...); !errors.Is(err, ErrDuplicateBinding) {
		t.Errorf("duplicate write = %v, want ErrDuplicateBinding", err)
	}
}

func TestBindingSetStaleAfterRecreate(t *testing.T) {
	f, done := newGBufferFixture(t)
	defer done()
	if err := f.set.Write(f.writes()...); err != nil {
		t.Fatal(err)
	}
	old := f.set.Raw()
	d := f.pool.device
	if err := f.depth.Recreate(d, Extent{32, 32}, f.depth.Format(), f.depth.Usage()); err != nil {
		t.Fatal(err)
	}
	if !f.set.Stale() {
		t.Fatal("set not stale after depth recreate")
	}
	if err := f.set.Write(f.writes()...); err != nil {
		t.Fatal(err)
	}
	if f.set.Stale() || f.set.Raw() == old {
		t.Error("rewrite did not refresh the bind group")
	}
}
