// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import "github.com/gogpu/wgpu/hal"

// fenceWorker drains PendingFences in FIFO order, blocks on the shared
// fence, advances the completed counter, and runs deferred-destruction
// callbacks for every flight slot whose generation has now completed.
type fenceWorker struct {
	queue  *idleQueue[pendingFence]
	mgr    *CommandBufferManager
	fences *fenceCounter
	done   chan struct{}
}

func newFenceWorker(mgr *CommandBufferManager, fences *fenceCounter) *fenceWorker {
	return &fenceWorker{
		queue:  newIdleQueue[pendingFence](),
		mgr:    mgr,
		fences: fences,
		done:   make(chan struct{}),
	}
}

func (w *fenceWorker) start() {
	go w.loop()
}

func (w *fenceWorker) loop() {
	defer close(w.done)
	for {
		pf, ok := w.queue.pop()
		if !ok {
			return
		}
		if err := w.mgr.blockingWaitForFence(pf.gen); err != nil {
			hal.Logger().Error("sched: fence wait failed", "gen", pf.gen, "err", err)
			w.queue.markIdleIfDrained()
			continue
		}
		w.fences.advance(pf.gen)
		w.mgr.reclaimUpTo(pf.gen)
		for _, fn := range pf.cleanup {
			fn()
		}
		w.queue.markIdleIfDrained()
	}
}

func (w *fenceWorker) push(pf pendingFence) { w.queue.push(pf) }
func (w *fenceWorker) waitIdle()            { w.queue.waitIdle() }
func (w *fenceWorker) stop()                { w.queue.stop() }
func (w *fenceWorker) join()                { <-w.done }
