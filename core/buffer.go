package core

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CreateBuffer creates a buffer on this device through the HAL.
//
// Returns ErrDeviceDestroyed if the device has already been destroyed, and a
// *CreateBufferError if the descriptor fails validation.
func (d *Device) CreateBuffer(desc *gputypes.BufferDescriptor) (*Buffer, error) {
	if err := d.checkValid(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("buffer descriptor is required")
	}
	validUsage := gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite |
		gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst | gputypes.BufferUsageIndex |
		gputypes.BufferUsageVertex | gputypes.BufferUsageUniform | gputypes.BufferUsageStorage |
		gputypes.BufferUsageIndirect | gputypes.BufferUsageQueryResolve
	switch {
	case desc.Size == 0:
		return nil, &CreateBufferError{Kind: CreateBufferErrorZeroSize, Label: desc.Label}
	case desc.Size > d.Limits.MaxBufferSize:
		return nil, &CreateBufferError{Kind: CreateBufferErrorMaxBufferSize, Label: desc.Label, RequestedSize: desc.Size, MaxSize: d.Limits.MaxBufferSize}
	case desc.Usage == 0:
		return nil, &CreateBufferError{Kind: CreateBufferErrorEmptyUsage, Label: desc.Label}
	case desc.Usage&^validUsage != 0:
		return nil, &CreateBufferError{Kind: CreateBufferErrorInvalidUsage, Label: desc.Label}
	case desc.Usage&gputypes.BufferUsageMapRead != 0 && desc.Usage&gputypes.BufferUsageMapWrite != 0:
		return nil, &CreateBufferError{Kind: CreateBufferErrorMapReadWriteExclusive, Label: desc.Label}
	}

	guard := d.snatchLock.Read()
	defer guard.Release()

	halDevice := d.raw.Get(guard)
	if halDevice == nil {
		return nil, ErrDeviceDestroyed
	}

	halBuffer, err := (*halDevice).CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  (desc.Size + 3) &^ 3,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}

	buf := NewBuffer(halBuffer, d, desc.Usage, desc.Size, desc.Label)
	if desc.MappedAtCreation {
		buf.MarkInitialized(0, desc.Size)
		buf.SetMapState(BufferMapStateMapped)
	}
	return buf, nil
}

// Buffer represents a GPU buffer, HAL-backed through a Snatchable so it can
// be destroyed safely while other goroutines may still be reading it.
//
// A zero-value Buffer (the ID-based API's placeholder) has no HAL resource:
// HasHAL reports false and it behaves as already destroyed.
type Buffer struct {
	hal    *Snatchable[hal.Buffer]
	device *Device
	usage  gputypes.BufferUsage
	size   uint64
	label  string

	// mapState is nil for the ID-based API's placeholder Buffer, kept as a
	// pointer so Buffer (which the hub stores and returns by value) stays
	// safe to copy.
	mapState *bufferMapStateBox

	initTracker *BufferInitTracker
	tracking    *TrackingData
}

// bufferMapStateBox guards a buffer's current BufferMapState.
type bufferMapStateBox struct {
	mu    sync.Mutex
	state BufferMapState
}

// NewBuffer wraps a HAL buffer created on device into a core.Buffer.
func NewBuffer(halBuffer hal.Buffer, device *Device, usage gputypes.BufferUsage, size uint64, label string) *Buffer {
	return &Buffer{
		hal:         NewSnatchable(halBuffer),
		device:      device,
		usage:       usage,
		size:        size,
		label:       label,
		mapState:    &bufferMapStateBox{},
		initTracker: NewBufferInitTracker(size),
		tracking:    newTrackingData(),
	}
}

// HasHAL reports whether this buffer is backed by a real HAL buffer.
func (b *Buffer) HasHAL() bool {
	return b != nil && b.hal != nil
}

// Device returns the device this buffer was created on, or nil.
func (b *Buffer) Device() *Device {
	if b == nil {
		return nil
	}
	return b.device
}

// Usage returns the buffer's usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage {
	if b == nil {
		return 0
	}
	return b.usage
}

// Size returns the buffer's size in bytes.
func (b *Buffer) Size() uint64 {
	if b == nil {
		return 0
	}
	return b.size
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	if b == nil {
		return ""
	}
	return b.label
}

// Raw returns the underlying HAL buffer, or nil once destroyed or for
// buffers with no HAL backing. The caller must hold a SnatchGuard from
// the owning device's SnatchLock.
func (b *Buffer) Raw(guard *SnatchGuard) hal.Buffer {
	if b == nil || b.hal == nil {
		return nil
	}
	v := b.hal.Get(guard)
	if v == nil {
		return nil
	}
	return *v
}

// IsDestroyed reports whether the buffer has been destroyed, or has no
// HAL resource to begin with.
func (b *Buffer) IsDestroyed() bool {
	if b == nil || b.hal == nil {
		return true
	}
	return b.hal.IsSnatched()
}

// Destroy snatches and destroys the underlying HAL buffer via the owning
// device. Safe to call more than once, and safe on a buffer with no HAL
// resource.
func (b *Buffer) Destroy() {
	if b == nil || b.hal == nil || b.device == nil {
		return
	}
	lock := b.device.SnatchLock()
	if lock == nil {
		return
	}
	guard := lock.Write()
	defer guard.Release()

	raw := b.hal.Snatch(guard)
	if raw == nil {
		return
	}

	// Already hold the device's SnatchLock exclusively; Get only needs a
	// guard for API clarity, so a throwaway one is safe here.
	if halDevice := b.device.Raw(&SnatchGuard{}); halDevice != nil {
		halDevice.DestroyBuffer(*raw)
	}
}

// MapState returns the buffer's current mapping state.
func (b *Buffer) MapState() BufferMapState {
	if b == nil || b.mapState == nil {
		return BufferMapStateIdle
	}
	b.mapState.mu.Lock()
	defer b.mapState.mu.Unlock()
	return b.mapState.state
}

// SetMapState updates the buffer's mapping state.
func (b *Buffer) SetMapState(state BufferMapState) {
	if b == nil || b.mapState == nil {
		return
	}
	b.mapState.mu.Lock()
	b.mapState.state = state
	b.mapState.mu.Unlock()
}

// TrackingData returns the buffer's usage-tracker entry.
//
// Stub implementation: TrackerIndexAllocators (track.go) does not yet assign
// real indices, so Index() always reports InvalidTrackerIndex.
func (b *Buffer) TrackingData() *TrackingData {
	if b == nil {
		return nil
	}
	return b.tracking
}

// IsInitialized reports whether every byte in [offset, offset+size) has
// been marked initialized.
func (b *Buffer) IsInitialized(offset, size uint64) bool {
	if b == nil {
		return true
	}
	return b.initTracker.IsInitialized(offset, size)
}

// MarkInitialized marks [offset, offset+size) as initialized.
func (b *Buffer) MarkInitialized(offset, size uint64) {
	if b == nil {
		return
	}
	b.initTracker.MarkInitialized(offset, size)
}

// BufferMapState is the lifecycle state of a buffer's CPU-visible mapping.
type BufferMapState uint8

const (
	// BufferMapStateIdle means the buffer is not mapped and not being mapped.
	BufferMapStateIdle BufferMapState = iota
	// BufferMapStatePending means a MapAsync request is in flight.
	BufferMapStatePending
	// BufferMapStateMapped means the buffer is currently mapped for CPU access.
	BufferMapStateMapped
)

// TrackerIndex identifies a resource's slot in the device's usage tracker.
type TrackerIndex uint32

// InvalidTrackerIndex marks a resource that has not been assigned a
// tracker index yet.
const InvalidTrackerIndex = ^TrackerIndex(0)

// TrackingData holds the per-resource state used by the usage tracker.
//
// Stub implementation - will be expanded alongside TrackerIndexAllocators
// in track.go.
type TrackingData struct {
	index TrackerIndex
}

func newTrackingData() *TrackingData {
	return &TrackingData{index: InvalidTrackerIndex}
}

// Index returns the resource's tracker index, or InvalidTrackerIndex if
// none has been assigned.
func (t *TrackingData) Index() TrackerIndex {
	if t == nil {
		return InvalidTrackerIndex
	}
	return t.index
}

const bufferInitChunkSize = 4096

// BufferInitTracker tracks which byte ranges of a buffer's backing storage
// have been initialized, at chunk granularity, so zero-fill-on-first-use
// only runs once per chunk. A nil tracker (and one covering zero bytes)
// reports everything initialized.
type BufferInitTracker struct {
	mu     sync.Mutex
	chunks []bool
}

// NewBufferInitTracker creates a tracker covering a buffer of size bytes,
// divided into bufferInitChunkSize-byte chunks.
func NewBufferInitTracker(size uint64) *BufferInitTracker {
	n := (size + bufferInitChunkSize - 1) / bufferInitChunkSize
	return &BufferInitTracker{chunks: make([]bool, n)}
}

func (t *BufferInitTracker) chunkRange(offset, size uint64) (start, end uint64) {
	start = offset / bufferInitChunkSize
	end = (offset + size + bufferInitChunkSize - 1) / bufferInitChunkSize
	if end > uint64(len(t.chunks)) {
		end = uint64(len(t.chunks))
	}
	return start, end
}

// IsInitialized reports whether every chunk touching [offset, offset+size)
// has been marked initialized.
func (t *BufferInitTracker) IsInitialized(offset, size uint64) bool {
	if t == nil || len(t.chunks) == 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start, end := t.chunkRange(offset, size)
	for i := start; i < end; i++ {
		if !t.chunks[i] {
			return false
		}
	}
	return true
}

// MarkInitialized marks every chunk touching [offset, offset+size) as
// initialized.
func (t *BufferInitTracker) MarkInitialized(offset, size uint64) {
	if t == nil || len(t.chunks) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start, end := t.chunkRange(offset, size)
	for i := start; i < end; i++ {
		t.chunks[i] = true
	}
}
