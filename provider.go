// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by hosts that share their HAL device, such as
// gogpu.App.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider builds a DeviceSet from a host's device provider and the
// surface to present to. The provider must expose HalDevice() and
// HalQueue(), or return HAL objects from Device() and Queue(). Surface
// capabilities come from the provider's adapter when it is a hal.Adapter.
func FromProvider(p gpucontext.DeviceProvider, surface hal.Surface) (DeviceSet, error) {
	if p == nil || surface == nil {
		return DeviceSet{}, fmt.Errorf("%w: nil provider or surface", ErrInvalidConfig)
	}
	var device, queue any = p.Device(), p.Queue()
	if hp, ok := p.(halProvider); ok {
		device, queue = hp.HalDevice(), hp.HalQueue()
	}
	d, ok := device.(hal.Device)
	if !ok || d == nil {
		return DeviceSet{}, fmt.Errorf("%w: device is %T", ErrNoHALProvider, device)
	}
	q, ok := queue.(hal.Queue)
	if !ok || q == nil {
		return DeviceSet{}, fmt.Errorf("%w: queue is %T", ErrNoHALProvider, queue)
	}

	set := DeviceSet{Device: d, Queue: q, Surface: surface}
	if caps, ok := p.Adapter().(CapabilitySource); ok {
		set.Capabilities = caps
	} else if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		set.Capabilities = &StaticCapabilities{Formats: []gputypes.TextureFormat{f}}
	}
	info := p.AdapterInfo()
	Logger().Info("device provider attached", "adapter", info.Name, "type", info.Type)
	return set, nil
}
