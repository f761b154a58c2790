// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/internal/shader"
)

// Vertex buffer slots of the G-buffer pipeline.
const (
	SlotPosition = 0
	SlotTexcoord = 1
	SlotNormal   = 2
)

// GBufferVertexLayouts returns one non-interleaved buffer per attribute:
// position vec3, texcoord vec2, normal vec3.
func GBufferVertexLayouts() []gputypes.VertexBufferLayout {
	attr := func(format gputypes.VertexFormat, loc uint32, stride uint64) gputypes.VertexBufferLayout {
		return gputypes.VertexBufferLayout{
			ArrayStride: stride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  []gputypes.VertexAttribute{{Format: format, ShaderLocation: loc}},
		}
	}
	return []gputypes.VertexBufferLayout{
		attr(gputypes.VertexFormatFloat32x3, SlotPosition, 12),
		attr(gputypes.VertexFormatFloat32x2, SlotTexcoord, 8),
		attr(gputypes.VertexFormatFloat32x3, SlotNormal, 12),
	}
}

// PipelineSpec describes a render pipeline bound to a PassGraph.
type PipelineSpec struct {
	Label   string
	Source  string
	Layouts []*BindingLayout
	Pass    *PassGraph
	Vertex  []gputypes.VertexBufferLayout
	Cull    gputypes.CullMode
}

// Pipeline is a render pipeline plus its layout. It records the pass
// description version it was built for.
type Pipeline struct {
	spec     PipelineSpec
	compiler *shader.Compiler

	module   hal.ShaderModule
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline

	builtFor uint64
	rebuilds int
}

// NewPipeline compiles spec.Source and builds the pipeline. The binding
// layouts are retained until Destroy.
func NewPipeline(device hal.Device, compiler *shader.Compiler, spec PipelineSpec) (*Pipeline, error) {
	if err := validatePipelineLayouts(spec); err != nil {
		return nil, err
	}
	p := &Pipeline{spec: spec, compiler: compiler}
	if err := p.build(device); err != nil {
		return nil, err
	}
	for _, l := range spec.Layouts {
		l.Retain()
	}
	return p, nil
}

func (p *Pipeline) build(device hal.Device) error {
	label := p.spec.Label
	words, err := p.compiler.Compile(p.spec.Source)
	if err != nil {
		return resourceErr("compile shader", label, err)
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_shader",
		Source: hal.ShaderSource{WGSL: p.spec.Source, SPIRV: words},
	})
	if err != nil {
		return resourceErr("create shader module", label, err)
	}

	groups := make([]hal.BindGroupLayout, len(p.spec.Layouts))
	for i, l := range p.spec.Layouts {
		groups[i] = l.Raw()
	}
	layout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		device.DestroyShaderModule(module)
		return resourceErr("create pipeline layout", label, err)
	}

	pass := p.spec.Pass
	targets := make([]gputypes.ColorTargetState, 0, len(pass.ColorFormats()))
	for _, f := range pass.ColorFormats() {
		targets = append(targets, gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll})
	}
	var depth *hal.DepthStencilState
	if f := pass.DepthFormat(); f != gputypes.TextureFormatUndefined {
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		depth = &hal.DepthStencilState{
			Format:            f,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}

	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: shader.VertexEntry,
			Buffers:    p.spec.Vertex,
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: shader.FragmentEntry,
			Targets:    targets,
		},
		DepthStencil: depth,
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  p.spec.Cull,
		},
		Multisample: gputypes.DefaultMultisampleState(),
	})
	if err != nil {
		device.DestroyPipelineLayout(layout)
		device.DestroyShaderModule(module)
		return resourceErr("create render pipeline", label, err)
	}

	p.release(device)
	p.module, p.layout, p.pipeline = module, layout, pipeline
	p.builtFor = pass.DescriptionVersion()
	return nil
}

// Rebuild recreates the pipeline against the current pass description.
// The old pipeline is destroyed only after the new one exists.
func (p *Pipeline) Rebuild(device hal.Device) error {
	if err := p.build(device); err != nil {
		return err
	}
	p.rebuilds++
	slogger().Debug("pipeline rebuilt", "pipeline", p.spec.Label, "pass_version", p.builtFor)
	return nil
}

// Stale reports whether the pass description changed since the last build.
func (p *Pipeline) Stale() bool { return p.builtFor != p.spec.Pass.DescriptionVersion() }

// Rebuilds returns how many times Rebuild succeeded.
func (p *Pipeline) Rebuilds() int { return p.rebuilds }

// Raw returns the HAL pipeline.
func (p *Pipeline) Raw() hal.RenderPipeline { return p.pipeline }

// Label returns the debug label.
func (p *Pipeline) Label() string { return p.spec.Label }

func (p *Pipeline) release(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// Destroy releases the pipeline objects and the retained layouts.
func (p *Pipeline) Destroy(device hal.Device) {
	if p.pipeline == nil {
		return
	}
	p.release(device)
	for _, l := range p.spec.Layouts {
		l.Release()
	}
}

// Binding indices of the standard layouts.
const (
	SceneBinding    = 0
	TextureBinding  = 0
	MaterialBinding = 0

	GBufferPositionBinding = 0
	GBufferNormalBinding   = 1
	GBufferAlbedoBinding   = 2
	GBufferDepthBinding    = 3
	LightBinding           = 4
)

// SceneBindings is the camera uniform set shared by both passes.
func SceneBindings() []BindingSpec {
	return []BindingSpec{{Index: SceneBinding, Kind: KindUniformBuffer, Visibility: gputypes.ShaderStagesVertexFragment}}
}

// TextureBindings is the per-mesh base color texture set.
func TextureBindings() []BindingSpec {
	return []BindingSpec{{Index: TextureBinding, Kind: KindSampledImage, Visibility: gputypes.ShaderStageFragment}}
}

// MaterialBindings is the per-mesh material uniform set.
func MaterialBindings() []BindingSpec {
	return []BindingSpec{{Index: MaterialBinding, Kind: KindUniformBuffer, Visibility: gputypes.ShaderStageFragment}}
}

// GBufferBindings is the composite input set: three color targets, depth
// and the light uniform.
func GBufferBindings() []BindingSpec {
	frag := gputypes.ShaderStageFragment
	return []BindingSpec{
		{Index: GBufferPositionBinding, Kind: KindSampledImage, Visibility: frag},
		{Index: GBufferNormalBinding, Kind: KindSampledImage, Visibility: frag},
		{Index: GBufferAlbedoBinding, Kind: KindSampledImage, Visibility: frag},
		{Index: GBufferDepthBinding, Kind: KindSampledImage, Visibility: frag, Depth: true},
		{Index: LightBinding, Kind: KindUniformBuffer, Visibility: frag},
	}
}

// validatePipelineLayouts guards against pipelines built over released layouts.
func validatePipelineLayouts(spec PipelineSpec) error {
	for i, l := range spec.Layouts {
		if l == nil || l.Raw() == nil {
			return fmt.Errorf("pipeline %q: layout %d released: %w", spec.Label, i, ErrDestroyed)
		}
	}
	if spec.Pass == nil {
		return fmt.Errorf("pipeline %q: no pass: %w", spec.Label, ErrInvalidState)
	}
	return nil
}
