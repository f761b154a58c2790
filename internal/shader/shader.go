// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles the renderer's WGSL sources to SPIR-V and
// creates HAL shader modules from them.
package shader

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/internal/cache"
)

// Embedded WGSL sources.

//go:embed wgsl/gbuffer.wgsl
var GBufferSource string

//go:embed wgsl/composite.wgsl
var CompositeSource string

// Entry points shared by both sources.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// CompileFunc turns WGSL into SPIR-V words.
type CompileFunc func(source string) ([]uint32, error)

// CompileWGSL compiles WGSL with naga and returns little-endian SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V length %d is not word aligned", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// Compiler caches compiled SPIR-V by source hash.
type Compiler struct {
	compile CompileFunc
	cache   *cache.Cache[cache.Key, []uint32]
}

// NewCompiler returns a caching compiler. A nil fn means CompileWGSL.
func NewCompiler(fn CompileFunc) *Compiler {
	if fn == nil {
		fn = CompileWGSL
	}
	return &Compiler{compile: fn, cache: cache.New[cache.Key, []uint32](16)}
}

// Compile returns SPIR-V for source, compiling at most once per source.
func (c *Compiler) Compile(source string) ([]uint32, error) {
	return c.cache.GetOrCreate(cache.KeyOf(source), func() ([]uint32, error) {
		return c.compile(source)
	})
}

// Stats exposes the cache counters.
func (c *Compiler) Stats() cache.Stats { return c.cache.Stats() }

// CreateModule compiles source and creates a shader module on device.
func (c *Compiler) CreateModule(device hal.Device, label, source string) (hal.ShaderModule, error) {
	words, err := c.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
}
