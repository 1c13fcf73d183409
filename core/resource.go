package core

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Resource placeholder types - will be properly defined later.
// These types represent the actual WebGPU resources managed by the hub.

// Adapter represents a physical GPU adapter.
type Adapter struct {
	// Info contains information about the adapter.
	Info gputypes.AdapterInfo
	// Features contains the features supported by the adapter.
	Features gputypes.Features
	// Limits contains the resource limits of the adapter.
	Limits gputypes.Limits
	// Backend identifies which graphics backend this adapter uses.
	Backend gputypes.Backend

	// halAdapter is the underlying HAL adapter, nil for mock adapters.
	halAdapter hal.Adapter
	// halCapabilities caches what the HAL adapter reported on enumeration.
	halCapabilities *hal.Capabilities
}

// HasHAL reports whether this adapter is backed by a real HAL adapter,
// as opposed to a mock adapter used when no GPU backend is available.
func (a *Adapter) HasHAL() bool {
	return a != nil && a.halAdapter != nil
}

// HALAdapter returns the underlying HAL adapter, or nil for mock adapters.
func (a *Adapter) HALAdapter() hal.Adapter {
	if a == nil {
		return nil
	}
	return a.halAdapter
}

// HALCapabilities returns the capabilities reported by the HAL adapter at
// enumeration time, or nil for mock adapters.
func (a *Adapter) HALCapabilities() *hal.Capabilities {
	if a == nil {
		return nil
	}
	return a.halCapabilities
}

// Device represents a logical GPU device.
type Device struct {
	// Adapter is the adapter this device was created from.
	Adapter AdapterID
	// Label is a debug label for the device.
	Label string
	// Features contains the features enabled on this device.
	Features gputypes.Features
	// Limits contains the resource limits of this device.
	Limits gputypes.Limits
	// Queue is the device's default queue.
	Queue QueueID

	// raw holds the HAL device, snatched on Destroy. nil for ID-based,
	// non-HAL devices built through the legacy CreateDevice path.
	raw *Snatchable[hal.Device]
	// snatchLock coordinates access to raw and every Snatchable resource
	// this device owns (buffers, encoders, ...).
	snatchLock *SnatchLock
	// adapter points back to the Adapter this device was opened from.
	adapter *Adapter
	// associatedQueue is the core.Queue wrapping this device's HAL queue.
	associatedQueue *Queue

	errorScopeManager *ErrorScopeManager

	// validity is nil for devices built through the legacy, non-HAL
	// CreateDevice path. Kept as a pointer so Device (which the ID-based
	// hub stores and returns by value) stays safe to copy.
	validity *deviceValidity
}

// deviceValidity guards the valid flag for a HAL-backed device.
type deviceValidity struct {
	mu    sync.RWMutex
	valid bool
}

// NewDevice wraps a HAL device opened from adapter into a core.Device ready
// for the HAL-based resource API (CreateBuffer, CreateCommandEncoder, ...).
func NewDevice(halDevice hal.Device, adapter *Adapter, features gputypes.Features, limits gputypes.Limits, label string) *Device {
	d := &Device{
		Label:      label,
		Features:   features,
		Limits:     limits,
		raw:        NewSnatchable(halDevice),
		snatchLock: NewSnatchLock(),
		adapter:    adapter,
		validity:   &deviceValidity{valid: true},
	}
	return d
}

// HasHAL reports whether this device is backed by a real HAL device.
func (d *Device) HasHAL() bool {
	return d != nil && d.raw != nil
}

// IsValid reports whether the device has not yet been destroyed.
func (d *Device) IsValid() bool {
	if d == nil || d.validity == nil {
		return false
	}
	d.validity.mu.RLock()
	defer d.validity.mu.RUnlock()
	return d.validity.valid
}

// SnatchLock returns the device's snatch lock, or nil for non-HAL devices.
func (d *Device) SnatchLock() *SnatchLock {
	if d == nil || d.raw == nil {
		return nil
	}
	return d.snatchLock
}

// Raw returns the underlying HAL device, or nil once destroyed.
// The caller must hold a SnatchGuard from this device's SnatchLock.
func (d *Device) Raw(guard *SnatchGuard) hal.Device {
	if d == nil || d.raw == nil {
		return nil
	}
	v := d.raw.Get(guard)
	if v == nil {
		return nil
	}
	return *v
}

// checkValid returns ErrDeviceDestroyed if the device has been destroyed.
func (d *Device) checkValid() error {
	if !d.IsValid() {
		return ErrDeviceDestroyed
	}
	return nil
}

// AssociatedQueue returns the core.Queue wrapping this device's default
// HAL queue, or nil if none has been set.
func (d *Device) AssociatedQueue() *Queue {
	if d == nil {
		return nil
	}
	return d.associatedQueue
}

// SetAssociatedQueue records the core.Queue wrapping this device's default
// HAL queue. Called once, from device creation.
func (d *Device) SetAssociatedQueue(q *Queue) {
	if d == nil {
		return
	}
	d.associatedQueue = q
}

// Destroy snatches and destroys the underlying HAL device. Safe to call
// more than once; only the first call has any effect.
func (d *Device) Destroy() {
	if d == nil || d.validity == nil {
		return
	}
	d.validity.mu.Lock()
	if !d.validity.valid {
		d.validity.mu.Unlock()
		return
	}
	d.validity.valid = false
	d.validity.mu.Unlock()

	if d.raw == nil || d.snatchLock == nil {
		return
	}
	guard := d.snatchLock.Write()
	defer guard.Release()
	raw := d.raw.Snatch(guard)
	if raw != nil {
		(*raw).Destroy()
	}
}

// Queue represents a command queue for a device.
type Queue struct {
	// Device is the device this queue belongs to.
	Device DeviceID
	// Label is a debug label for the queue.
	Label string

	// hal is the underlying HAL queue for devices created through NewDevice.
	hal hal.Queue
}

// Texture represents a GPU texture.
type Texture struct{}

// TextureView represents a view into a texture.
type TextureView struct{}

// Sampler represents a texture sampler.
type Sampler struct{}

// BindGroupLayout represents the layout of a bind group.
type BindGroupLayout struct{}

// PipelineLayout represents the layout of a pipeline.
type PipelineLayout struct{}

// BindGroup represents a collection of resources bound together.
type BindGroup struct{}

// ShaderModule represents a compiled shader module.
type ShaderModule struct{}

// RenderPipeline represents a render pipeline.
type RenderPipeline struct{}

// ComputePipeline represents a compute pipeline.
type ComputePipeline struct{}

// CommandEncoder represents a command encoder.
type CommandEncoder struct{}

// CommandBuffer represents a recorded command buffer.
type CommandBuffer struct{}

// QuerySet represents a set of queries.
type QuerySet struct{}

// Surface represents a rendering surface.
type Surface struct{}
