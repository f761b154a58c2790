// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

// ResizeReport describes what one Resize rebuilt.
type ResizeReport struct {
	Changes          SwapChanges
	TargetsRecreated bool
	PipelinesRebuilt int
}

// Resize rebuilds the size- and format-dependent objects for extent.
//
// The device is drained first. A zero extent leaves the orchestrator in
// ResizePending with nothing rebuilt. On success the state is Idle and every
// pending semaphore signal is dropped.
func (o *Orchestrator) Resize(extent Extent) error {
	_, err := o.resize(extent)
	return err
}

func (o *Orchestrator) resize(extent Extent) (ResizeReport, error) {
	var rep ResizeReport
	if o.destroyed {
		return rep, ErrDestroyed
	}
	if o.state != StateResizePending {
		if err := o.transition(StateResizePending); err != nil {
			return rep, err
		}
	}
	o.pendingExtent = extent
	if extent.IsZero() {
		slogger().Debug("resize deferred for zero-area surface")
		return rep, nil
	}

	if err := o.WaitIdle(); err != nil {
		return rep, err
	}
	o.swapchain.Release()
	o.imageAcquired.reset()
	o.offscreenComplete.reset()
	o.compositeComplete.reset()

	changes, err := o.swapchain.Recreate(extent)
	if err != nil {
		return rep, err
	}
	rep.Changes = changes
	extent = o.swapchain.Extent()

	if changes.FormatChanged {
		if err := o.surface.SetColorFormat(0, o.swapchain.Format()); err != nil {
			return rep, err
		}
	}
	if changes.SizeChanged {
		for _, t := range o.GBufferTargets() {
			if err := t.Recreate(o.device, extent, t.Format(), t.Usage()); err != nil {
				return rep, err
			}
		}
		rep.TargetsRecreated = true
	}

	if err := o.offscreen.RebuildFramebuffer(o.device, extent); err != nil {
		return rep, err
	}
	if err := o.surface.RebuildFramebuffer(o.device, extent); err != nil {
		return rep, err
	}

	if o.gbufferSet.Stale() {
		if err := o.writeSets(); err != nil {
			return rep, err
		}
	}

	for _, p := range []*Pipeline{o.gbufferPipeline, o.compositePipeline} {
		if !changes.SizeChanged && !p.Stale() {
			continue
		}
		if err := p.Rebuild(o.device); err != nil {
			return rep, err
		}
		rep.PipelinesRebuilt++
	}

	o.stats.Resizes++
	slogger().Info("resized",
		"extent", extent, "format_changed", changes.FormatChanged,
		"size_changed", changes.SizeChanged, "pipelines_rebuilt", rep.PipelinesRebuilt)
	return rep, o.transition(StateIdle)
}
