// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import "github.com/gogpu/wgpu/hal"

// descriptorSetsPerPool is the default capacity of one descriptor pool
// before the frame's pool list grows.
const descriptorSetsPerPool = 1024

// Config configures a Scheduler. Zero fields are defaulted by New the same
// way a nil *DeviceDescriptor is defaulted by Adapter.RequestDevice.
type Config struct {
	// NumCommandBuffers is the size of the flight-slot ring (N in the spec).
	NumCommandBuffers int

	// NumFramesInFlight is the size of the frame-slot ring (F in the spec).
	NumFramesInFlight int

	// DescriptorSetsPerPool bounds how many bind groups one descriptor pool
	// hands out before the frame's pool list grows.
	DescriptorSetsPerPool int
}

// DefaultConfig returns the configuration used when a caller passes a zero
// Config to New.
func DefaultConfig() Config {
	return Config{
		NumCommandBuffers:     3,
		NumFramesInFlight:     2,
		DescriptorSetsPerPool: descriptorSetsPerPool,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NumCommandBuffers <= 0 {
		c.NumCommandBuffers = d.NumCommandBuffers
	}
	if c.NumFramesInFlight <= 0 {
		c.NumFramesInFlight = d.NumFramesInFlight
	}
	if c.DescriptorSetsPerPool <= 0 {
		c.DescriptorSetsPerPool = d.DescriptorSetsPerPool
	}
	return c
}

// PresentRequest bundles the surface and acquired texture a submit should
// present after its command buffers complete.
type PresentRequest struct {
	Surface hal.Surface
	Texture hal.SurfaceTexture
}
