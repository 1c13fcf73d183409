// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// Scheduler is the producer-facing façade: record, flush, sync, submit,
// wait-for-fence. It owns the RecordingWorker, SubmissionWorker, and
// FenceWorker for one device.
type Scheduler struct {
	pool ChunkPool

	mu      sync.Mutex
	current *ArenaChunk

	rec *recordingWorker
	sub *submissionWorker
	fen *fenceWorker

	fences  fenceCounter
	manager *CommandBufferManager

	deferredMu  sync.Mutex
	deferredFns []func()

	shuttingDown atomic.Bool
}

// New constructs a Scheduler around device/queue, creating its own fence
// and opening the first flight slot. Zero fields of cfg are defaulted.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("sched: create fence: %w", err)
	}

	mgr := newCommandBufferManager(device, queue, fence, cfg)

	s := &Scheduler{
		current: newArenaChunk(),
		manager: mgr,
	}

	s.fen = newFenceWorker(mgr, &s.fences)
	s.sub = newSubmissionWorker(mgr, s.fen)
	s.rec = newRecordingWorker(&s.pool, mgr)
	mgr.wireQueues(s.sub.queue, s.fen.queue)

	if err := mgr.warmup(); err != nil {
		device.DestroyFence(fence)
		return nil, err
	}

	s.rec.start()
	s.sub.start()
	s.fen.start()

	return s, nil
}

// SetEndRenderPassHook installs the renderer callback invoked before every submit.
func (s *Scheduler) SetEndRenderPassHook(fn func()) {
	s.manager.SetEndRenderPassHook(fn)
}

// Manager exposes the underlying CommandBufferManager for command closures
// that need to record against it (e.g. to fetch CurrentDrawEncoder).
func (s *Scheduler) Manager() *CommandBufferManager {
	return s.manager
}

// Record enqueues cmd into the current arena chunk, flushing and retrying
// once if the chunk is full. It panics if called after Shutdown.
func (s *Scheduler) Record(cmd Command) {
	if s.shuttingDown.Load() {
		panic("sched: Record called after Shutdown")
	}
	s.mu.Lock()
	fits := s.current.Record(cmd)
	s.mu.Unlock()
	if fits {
		return
	}

	s.Flush()

	s.mu.Lock()
	fits = s.current.Record(cmd)
	s.mu.Unlock()
	if !fits {
		panic("sched: command does not fit in a freshly acquired chunk")
	}
}

// RecordFunc is a convenience wrapper recording a Command with no Release.
func (s *Scheduler) RecordFunc(fn func(mgr *CommandBufferManager)) {
	s.Record(Command{Execute: fn})
}

// Flush transfers the current chunk onto the work queue (if non-empty) and
// acquires a fresh one to become current.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.current.IsEmpty() {
		s.mu.Unlock()
		return
	}
	chunk := s.current
	s.current = s.pool.Acquire()
	s.mu.Unlock()

	s.rec.push(chunk)
}

// SyncWorker flushes, then blocks until the work queue is empty and the
// RecordingWorker has observed idle.
func (s *Scheduler) SyncWorker() {
	s.Flush()
	s.rec.waitIdle()
}

// SynchronizeSubmissionThread blocks until both the RecordingWorker and the
// SubmissionWorker have drained and gone idle.
func (s *Scheduler) SynchronizeSubmissionThread() {
	s.SyncWorker()
	s.sub.waitIdle()
}

// Submit records a closure that ends any open render pass and submits the
// current slot's command buffers (and optional present). It returns the
// fence generation assigned to this submit.
func (s *Scheduler) Submit(onWorkerThread, waitForCompletion bool, present *PresentRequest) uint64 {
	gen := s.fences.next()
	cleanup := s.drainDeferred()

	s.RecordFunc(func(mgr *CommandBufferManager) {
		for _, fn := range cleanup {
			mgr.DeferDestroy(fn)
		}
		if err := mgr.Submit(gen, onWorkerThread, waitForCompletion, present); err != nil {
			hal.Logger().Error("sched: submit failed", "gen", gen, "err", err)
		}
	})

	if waitForCompletion {
		if err := s.WaitForFence(gen); err != nil {
			hal.Logger().Error("sched: wait_for_fence failed", "gen", gen, "err", err)
		}
	} else {
		s.Flush()
	}

	return gen
}

// SubmitBuffers submits command buffers that were recorded outside the
// scheduler's own flight-slot encoders (e.g. a CommandEncoder driven
// directly by caller code). It assigns a fresh fence generation, attaches
// any pending DeferDestroy callbacks to that generation, and returns
// immediately; the driver submit and cleanup happen on the scheduler's
// worker goroutines.
func (s *Scheduler) SubmitBuffers(buffers []hal.CommandBuffer) uint64 {
	gen := s.fences.next()
	cleanup := s.drainDeferred()

	s.RecordFunc(func(mgr *CommandBufferManager) {
		mgr.SubmitExternal(buffers, gen, cleanup)
	})
	s.Flush()

	return gen
}

// WaitForFence blocks until completed_fence observes gen. It drains the
// recording and submission workers and the FenceWorker first, so when it
// returns nil the deferred cleanup attached to gen has already run.
func (s *Scheduler) WaitForFence(gen uint64) error {
	if s.fences.Completed() >= gen {
		return nil
	}
	s.SynchronizeSubmissionThread()
	s.fen.waitIdle()
	return s.manager.blockingWaitForFence(gen)
}

// CompletedFence returns the highest fence generation observed complete.
func (s *Scheduler) CompletedFence() uint64 { return s.fences.Completed() }

// CurrentFence returns the most recently assigned fence generation.
func (s *Scheduler) CurrentFence() uint64 { return s.fences.Current() }

// CheckLastPresentFailed atomically tests and clears the last-present-failed flag.
func (s *Scheduler) CheckLastPresentFailed() bool { return s.manager.CheckLastPresentFailed() }

// CheckLastPresentDone atomically tests and clears the last-present-done flag.
func (s *Scheduler) CheckLastPresentDone() bool { return s.manager.CheckLastPresentDone() }

// LastPresentResult returns the error (possibly nil) from the most recent present.
func (s *Scheduler) LastPresentResult() error { return s.manager.LastPresentResult() }

// DeferDestroy queues fn to run once the next Submit or SubmitBuffers call's
// fence generation completes. Calls between two submits batch together and
// all run after that next submit's generation completes.
func (s *Scheduler) DeferDestroy(fn func()) {
	s.deferredMu.Lock()
	s.deferredFns = append(s.deferredFns, fn)
	s.deferredMu.Unlock()
}

// drainDeferred empties the pending deferred-destroy list, returning what
// was queued since the last drain.
func (s *Scheduler) drainDeferred() []func() {
	s.deferredMu.Lock()
	fns := s.deferredFns
	s.deferredFns = nil
	s.deferredMu.Unlock()
	return fns
}

// AllocateDescriptorSet is a convenience pass-through for code that already
// holds a reference to the Scheduler rather than the CommandBufferManager.
func (s *Scheduler) AllocateDescriptorSet(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	return s.manager.AllocateDescriptorSet(desc)
}

// Shutdown drains both pipelines, stops all worker loops, and joins them.
// It is safe to call more than once. After Shutdown, Record panics.
func (s *Scheduler) Shutdown() {
	if s.shuttingDown.Swap(true) {
		return
	}

	s.SyncWorker()
	s.SynchronizeSubmissionThread()

	s.rec.stop()
	s.rec.join()

	s.sub.stop()
	s.sub.join()

	s.fen.stop()
	s.fen.join()

	for _, fn := range s.drainDeferred() {
		fn()
	}
}
