// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// unboundedWait stands in for "no timeout" (spec: fence waits are unbounded
// by design). hal.Device.Wait takes a concrete duration, so a long-but-finite
// value is used instead of a sentinel zero, which some backends treat as
// "don't block at all".
const unboundedWait = 365 * 24 * time.Hour

type descriptorPool struct {
	allocated int
}

type frameSlot struct {
	pools []*descriptorPool
}

func (f *frameSlot) reset() {
	f.pools = f.pools[:0]
}

type cmdBufferSlot struct {
	mu           sync.Mutex
	initEncoder  hal.CommandEncoder
	drawEncoder  hal.CommandEncoder
	fenceGen     uint64
	reclaimed    bool
	cleanup      []func()
}

type pendingSubmit struct {
	slot    int
	buffers []hal.CommandBuffer
	present *PresentRequest
	gen     uint64
	waitCh  chan struct{}
	cleanup []func()
}

type pendingFence struct {
	gen     uint64
	cleanup []func()
}

// CommandBufferManager owns the flight-slot ring, the frame ring, the
// descriptor-pool allocator, and the present-status flags. Its Submit is
// invoked from the RecordingWorker while replaying a chunk.
type CommandBufferManager struct {
	device hal.Device
	queue  hal.Queue
	fence  hal.Fence

	numBuffers int
	numFrames  int
	descPerPool int

	slots  []cmdBufferSlot
	frames []frameSlot

	currentSlot  int
	currentFrame int

	submitQueue *idleQueue[*pendingSubmit]
	fenceQueue  *idleQueue[pendingFence]

	presentMu         sync.Mutex
	lastPresentResult error
	lastPresentFailed atomic.Bool
	lastPresentDone   atomic.Bool

	endRenderPass func()
}

func newCommandBufferManager(device hal.Device, queue hal.Queue, fence hal.Fence, cfg Config) *CommandBufferManager {
	return &CommandBufferManager{
		device:      device,
		queue:       queue,
		fence:       fence,
		numBuffers:  cfg.NumCommandBuffers,
		numFrames:   cfg.NumFramesInFlight,
		descPerPool: cfg.DescriptorSetsPerPool,
		slots:       make([]cmdBufferSlot, cfg.NumCommandBuffers),
		frames:      make([]frameSlot, cfg.NumFramesInFlight),
	}
}

// wireQueues connects the manager to the submission and fence queues owned
// by the SubmissionWorker and FenceWorker, constructed after the manager
// itself since the workers need a *CommandBufferManager to call back into.
func (mgr *CommandBufferManager) wireQueues(submitQueue *idleQueue[*pendingSubmit], fenceQueue *idleQueue[pendingFence]) {
	mgr.submitQueue = submitQueue
	mgr.fenceQueue = fenceQueue
}

// warmup opens the first slot's draw encoder so the scheduler has somewhere
// to record into before the first Submit rotates the ring.
func (mgr *CommandBufferManager) warmup() error {
	return mgr.prepareSlot(0)
}

// SetEndRenderPassHook installs the renderer callback invoked before every
// submit (spec §6: "render-pass end callback").
func (mgr *CommandBufferManager) SetEndRenderPassHook(fn func()) {
	mgr.endRenderPass = fn
}

// CurrentDrawEncoder returns the draw command encoder for the slot
// currently being recorded into.
func (mgr *CommandBufferManager) CurrentDrawEncoder() hal.CommandEncoder {
	return mgr.slots[mgr.currentSlot].drawEncoder
}

// CurrentInitEncoder lazily opens (if needed) and returns the init command
// encoder for the current slot, used for upload/transition work that must
// be ordered before the draw buffer within the same submit.
func (mgr *CommandBufferManager) CurrentInitEncoder() (hal.CommandEncoder, error) {
	slot := &mgr.slots[mgr.currentSlot]
	if slot.initEncoder != nil {
		return slot.initEncoder, nil
	}
	enc, err := mgr.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sched-init"})
	if err != nil {
		return nil, fmt.Errorf("sched: create init encoder: %w", err)
	}
	if err := enc.BeginEncoding("sched-init"); err != nil {
		return nil, fmt.Errorf("sched: begin init encoding: %w", err)
	}
	slot.initEncoder = enc
	return enc, nil
}

// DeferDestroy appends fn to the cleanup list of the slot currently being
// recorded into. It must be called from within a replayed command so it
// observes the manager's own view of "current slot".
func (mgr *CommandBufferManager) DeferDestroy(fn func()) {
	slot := &mgr.slots[mgr.currentSlot]
	slot.mu.Lock()
	slot.cleanup = append(slot.cleanup, fn)
	slot.mu.Unlock()
}

func (mgr *CommandBufferManager) runCleanupLocked(slot *cmdBufferSlot) {
	for _, fn := range slot.cleanup {
		fn()
	}
	slot.cleanup = slot.cleanup[:0]
	slot.reclaimed = true
}

// reclaimUpTo runs and clears cleanup for every slot whose fence generation
// is at or below gen and has not already been reclaimed. Called by
// FenceWorker as the sole proactive executor of deferred destruction.
func (mgr *CommandBufferManager) reclaimUpTo(gen uint64) {
	for i := range mgr.slots {
		slot := &mgr.slots[i]
		slot.mu.Lock()
		if slot.fenceGen != 0 && slot.fenceGen <= gen && !slot.reclaimed {
			mgr.runCleanupLocked(slot)
		}
		slot.mu.Unlock()
	}
}

// blockingWaitForFence blocks the calling goroutine until the shared fence
// has reached gen, with an effectively unbounded timeout.
func (mgr *CommandBufferManager) blockingWaitForFence(gen uint64) error {
	if gen == 0 {
		return nil
	}
	reached, err := mgr.device.Wait(mgr.fence, gen, unboundedWait)
	if err != nil {
		if errors.Is(err, hal.ErrDeviceLost) {
			return fmt.Errorf("sched: wait for fence %d: %w: %w", gen, ErrDeviceLost, err)
		}
		return fmt.Errorf("sched: wait for fence %d: %w", gen, err)
	}
	if !reached {
		return fmt.Errorf("sched: wait for fence %d: %w", gen, hal.ErrTimeout)
	}
	return nil
}

// prepareSlot reclaims (if necessary) and re-opens the draw encoder for
// slot i, guaranteeing testable property 4: no command is recorded into a
// slot until its previous fence generation has completed and its cleanup
// has run.
func (mgr *CommandBufferManager) prepareSlot(i int) error {
	slot := &mgr.slots[i]

	slot.mu.Lock()
	needsWait := slot.fenceGen != 0 && !slot.reclaimed
	gen := slot.fenceGen
	slot.mu.Unlock()

	if needsWait {
		if err := mgr.blockingWaitForFence(gen); err != nil {
			return err
		}
		slot.mu.Lock()
		if !slot.reclaimed {
			mgr.runCleanupLocked(slot)
		}
		slot.mu.Unlock()
	}

	enc, err := mgr.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "sched-draw"})
	if err != nil {
		return fmt.Errorf("sched: create draw encoder: %w", err)
	}
	if err := enc.BeginEncoding("sched-draw"); err != nil {
		return fmt.Errorf("sched: begin draw encoding: %w", err)
	}

	slot.mu.Lock()
	slot.drawEncoder = enc
	slot.mu.Unlock()
	return nil
}

// AllocateDescriptorSet allocates a bind group from the current frame's
// current descriptor pool, growing the pool list once the current pool has
// handed out descPerPool sets.
func (mgr *CommandBufferManager) AllocateDescriptorSet(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	frame := &mgr.frames[mgr.currentFrame]
	if len(frame.pools) == 0 || frame.pools[len(frame.pools)-1].allocated >= mgr.descPerPool {
		frame.pools = append(frame.pools, &descriptorPool{})
	}
	pool := frame.pools[len(frame.pools)-1]

	group, err := mgr.device.CreateBindGroup(desc)
	if err != nil {
		return nil, fmt.Errorf("sched: allocate descriptor set: %w", err)
	}
	pool.allocated++
	return group, nil
}

// Submit ends the current slot's recording, stamps its fence generation,
// enqueues (or inlines) the driver submit plus optional present, then
// rotates the ring and prepares the next slot.
func (mgr *CommandBufferManager) Submit(gen uint64, onWorkerThread, waitForCompletion bool, present *PresentRequest) error {
	if mgr.endRenderPass != nil {
		mgr.endRenderPass()
	}

	slot := &mgr.slots[mgr.currentSlot]

	var buffers []hal.CommandBuffer
	if slot.initEncoder != nil {
		cb, err := slot.initEncoder.EndEncoding()
		if err != nil {
			return fmt.Errorf("sched: end init encoding: %w", err)
		}
		buffers = append(buffers, cb)
		slot.initEncoder = nil
	}
	if slot.drawEncoder == nil {
		return ErrNoDrawEncoder
	}
	cb, err := slot.drawEncoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("sched: end draw encoding: %w", err)
	}
	buffers = append(buffers, cb)
	slot.drawEncoder = nil

	slot.mu.Lock()
	slot.fenceGen = gen
	slot.reclaimed = false
	slot.mu.Unlock()

	ps := &pendingSubmit{slot: mgr.currentSlot, buffers: buffers, present: present, gen: gen}

	if onWorkerThread {
		if waitForCompletion {
			ps.waitCh = make(chan struct{})
		}
		mgr.submitQueue.push(ps)
		if waitForCompletion {
			<-ps.waitCh
		}
	} else {
		if err := mgr.doSubmit(ps); err != nil {
			return err
		}
		mgr.fenceQueue.push(pendingFence{gen: gen})
	}

	mgr.currentSlot = (mgr.currentSlot + 1) % mgr.numBuffers
	if mgr.currentSlot == 0 {
		mgr.currentFrame = (mgr.currentFrame + 1) % mgr.numFrames
		mgr.frames[mgr.currentFrame].reset()
	}

	return mgr.prepareSlot(mgr.currentSlot)
}

// doSubmit performs the actual driver queue-submit and optional present. It
// is called either inline (onWorkerThread=false) or from SubmissionWorker.
func (mgr *CommandBufferManager) doSubmit(ps *pendingSubmit) error {
	err := mgr.queue.Submit(ps.buffers, mgr.fence, ps.gen)
	if err == nil && ps.present != nil {
		perr := mgr.queue.Present(ps.present.Surface, ps.present.Texture)
		mgr.presentMu.Lock()
		mgr.lastPresentResult = perr
		mgr.presentMu.Unlock()
		mgr.lastPresentDone.Store(true)
		if perr != nil {
			mgr.lastPresentFailed.Store(true)
		}
	}
	if ps.waitCh != nil {
		close(ps.waitCh)
	}
	return err
}

// SubmitExternal submits command buffers that were not recorded through a
// manager-owned flight slot (e.g. a CommandEncoder finished by code outside
// the scheduler's own render-loop helpers). It reuses the same shared
// fence and submission/fence-worker pipeline as slot-based submits;
// cleanup runs once gen completes, via FenceWorker, same as slot cleanup.
func (mgr *CommandBufferManager) SubmitExternal(buffers []hal.CommandBuffer, gen uint64, cleanup []func()) {
	mgr.submitQueue.push(&pendingSubmit{slot: -1, buffers: buffers, gen: gen, cleanup: cleanup})
}

// CheckLastPresentFailed atomically tests and clears the last-present-failed flag.
func (mgr *CommandBufferManager) CheckLastPresentFailed() bool {
	return mgr.lastPresentFailed.CompareAndSwap(true, false)
}

// CheckLastPresentDone atomically tests and clears the last-present-done flag.
func (mgr *CommandBufferManager) CheckLastPresentDone() bool {
	return mgr.lastPresentDone.CompareAndSwap(true, false)
}

// LastPresentResult returns the error (possibly nil) from the most recent present.
func (mgr *CommandBufferManager) LastPresentResult() error {
	mgr.presentMu.Lock()
	defer mgr.presentMu.Unlock()
	return mgr.lastPresentResult
}
