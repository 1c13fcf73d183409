// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import "github.com/gogpu/wgpu/hal"

// submissionWorker consumes PendingSubmits, performs the driver queue
// submit (and optional present), and forwards the resulting fence to the
// FenceWorker.
type submissionWorker struct {
	queue       *idleQueue[*pendingSubmit]
	mgr         *CommandBufferManager
	fenceWorker *fenceWorker
	done        chan struct{}
}

func newSubmissionWorker(mgr *CommandBufferManager, fenceWorker *fenceWorker) *submissionWorker {
	return &submissionWorker{
		queue:       newIdleQueue[*pendingSubmit](),
		mgr:         mgr,
		fenceWorker: fenceWorker,
		done:        make(chan struct{}),
	}
}

func (w *submissionWorker) start() {
	go w.loop()
}

func (w *submissionWorker) loop() {
	defer close(w.done)
	for {
		ps, ok := w.queue.pop()
		if !ok {
			return
		}
		if err := w.mgr.doSubmit(ps); err != nil {
			hal.Logger().Error("sched: driver submit failed", "gen", ps.gen, "err", err)
		} else {
			w.fenceWorker.push(pendingFence{gen: ps.gen, cleanup: ps.cleanup})
		}
		w.queue.markIdleIfDrained()
	}
}

func (w *submissionWorker) push(ps *pendingSubmit) { w.queue.push(ps) }
func (w *submissionWorker) waitIdle()              { w.queue.waitIdle() }
func (w *submissionWorker) stop()                  { w.queue.stop() }
func (w *submissionWorker) join()                  { <-w.done }
