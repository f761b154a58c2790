// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a generic LRU cache with a fallible create path.
//
// The renderer uses it to keep compiled SPIR-V keyed by the hash of its
// WGSL source, so pipelines rebuilt on resize do not recompile shaders.
//
//	c := cache.New[cache.Key, []uint32](16)
//	words, err := c.GetOrCreate(cache.KeyOf(src), func() ([]uint32, error) {
//		return compile(src)
//	})
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
