// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newTestDevice builds a noop device+queue pair, following the pattern
// used by hal/noop's own benchmarks (setupNoopDevice).
func newTestDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	openDevice, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open: %v", err)
	}

	cleanup := func() {
		openDevice.Device.Destroy()
		instance.Destroy()
	}
	return openDevice.Device, openDevice.Queue, cleanup
}

func newTestScheduler(t *testing.T) (*Scheduler, func()) {
	t.Helper()
	device, queue, cleanup := newTestDevice(t)
	s, err := New(device, queue, Config{})
	if err != nil {
		cleanup()
		t.Fatalf("New: %v", err)
	}
	return s, cleanup
}

// S1: record 1,000 closures appending their index to a shared log.
func TestSchedulerSmoke(t *testing.T) {
	s, cleanup := newTestScheduler(t)
	defer cleanup()

	var mu sync.Mutex
	var log []int

	for i := 0; i < 1000; i++ {
		i := i
		s.Record(Command{Execute: func(*CommandBufferManager) {
			mu.Lock()
			log = append(log, i)
			mu.Unlock()
		}})
	}
	s.Flush()
	s.SyncWorker()

	mu.Lock()
	defer mu.Unlock()
	if len(log) != 1000 {
		t.Fatalf("log has %d entries, want 1000", len(log))
	}
	for i, v := range log {
		if v != i {
			t.Fatalf("log[%d] = %d, want %d (order not preserved)", i, v, i)
		}
	}
	if got := s.pool.Size(); got != 1 {
		t.Fatalf("pool size = %d, want 1", got)
	}
}

// S3: three submits without waiting, then WaitForFence(3).
func TestSchedulerFenceWaits(t *testing.T) {
	s, cleanup := newTestScheduler(t)
	defer cleanup()

	var mu sync.Mutex
	var order []int

	for i := 1; i <= 3; i++ {
		i := i
		s.RecordFunc(func(*CommandBufferManager) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		gen := s.Submit(true, false, nil)
		if gen != uint64(i) {
			t.Fatalf("submit %d: gen = %d, want %d", i, gen, i)
		}
	}

	if err := s.WaitForFence(3); err != nil {
		t.Fatalf("WaitForFence: %v", err)
	}
	if got := s.CompletedFence(); got < 3 {
		t.Fatalf("CompletedFence() = %d, want >= 3", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("order has %d entries, want 3", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("order[%d] = %d, want %d", i, v, i+1)
		}
	}
}

// S4: deferred destruction runs once per fence generation.
func TestSchedulerDeferredDestruction(t *testing.T) {
	s, cleanup := newTestScheduler(t)
	defer cleanup()

	var runs atomicCounter

	s.DeferDestroy(func() { runs.add(1) })
	gen := s.Submit(true, true, nil)
	if err := s.WaitForFence(gen); err != nil {
		t.Fatalf("WaitForFence: %v", err)
	}

	// Force the slot to be reclaimed and reused by submitting enough more
	// generations to cycle the whole ring back to the slot holding the
	// deferred thunk.
	for i := 0; i < 8; i++ {
		g := s.Submit(true, true, nil)
		if err := s.WaitForFence(g); err != nil {
			t.Fatalf("WaitForFence: %v", err)
		}
	}

	if got := runs.load(); got != 1 {
		t.Fatalf("deferred thunk ran %d times, want exactly 1", got)
	}
}

// SubmitBuffers exercises the non-slot submission path used by code that
// finishes its own CommandEncoder and hands the resulting buffer straight
// to the scheduler (the root package's Queue.Submit does this). Deferred
// cleanup queued beforehand must run only once the assigned generation completes.
func TestSchedulerSubmitBuffersRunsCleanup(t *testing.T) {
	s, cleanup := newTestScheduler(t)
	defer cleanup()

	var freed atomicCounter
	s.DeferDestroy(func() { freed.add(1) })

	gen := s.SubmitBuffers(nil)
	if err := s.WaitForFence(gen); err != nil {
		t.Fatalf("WaitForFence: %v", err)
	}

	if got := freed.load(); got != 1 {
		t.Fatalf("cleanup ran %d times, want exactly 1", got)
	}
}

// S5: a failing present sets the flag exactly once.
type failingPresentQueue struct {
	hal.Queue
	fail atomicBoolFlag
}

func (q *failingPresentQueue) Present(surface hal.Surface, tex hal.SurfaceTexture) error {
	if q.fail.testAndClear() {
		return errors.New("surface out of date")
	}
	return q.Queue.Present(surface, tex)
}

func TestSchedulerPresentFailure(t *testing.T) {
	device, queue, cleanup := newTestDevice(t)
	defer cleanup()

	wrapped := &failingPresentQueue{Queue: queue}
	wrapped.fail.set()

	s, err := New(device, wrapped, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	surface := &noop.Surface{}
	_ = surface.Configure(device, nil)
	acquired, err := surface.AcquireTexture(nil)
	if err != nil {
		t.Fatalf("AcquireTexture: %v", err)
	}

	gen := s.Submit(true, true, &PresentRequest{Surface: surface, Texture: acquired.Texture})
	if err := s.WaitForFence(gen); err != nil {
		t.Fatalf("WaitForFence: %v", err)
	}

	if !s.CheckLastPresentFailed() {
		t.Fatal("expected CheckLastPresentFailed() == true after failing present")
	}
	if s.CheckLastPresentFailed() {
		t.Fatal("expected CheckLastPresentFailed() == false on second call")
	}
	if s.LastPresentResult() == nil {
		t.Fatal("expected LastPresentResult() to carry the present error")
	}

	acquired2, err := surface.AcquireTexture(nil)
	if err != nil {
		t.Fatalf("AcquireTexture: %v", err)
	}
	gen2 := s.Submit(true, true, &PresentRequest{Surface: surface, Texture: acquired2.Texture})
	if err := s.WaitForFence(gen2); err != nil {
		t.Fatalf("WaitForFence: %v", err)
	}
	if s.CheckLastPresentFailed() {
		t.Fatal("expected CheckLastPresentFailed() == false after a successful present")
	}
}

// S6: shutdown runs everything recorded first, then rejects further records.
func TestSchedulerShutdown(t *testing.T) {
	s, cleanup := newTestScheduler(t)
	defer cleanup()

	var ran atomicCounter
	for i := 0; i < 50; i++ {
		s.RecordFunc(func(*CommandBufferManager) { ran.add(1) })
	}

	s.Shutdown()

	if got := ran.load(); got != 50 {
		t.Fatalf("ran = %d, want 50 (all closures must execute before join)", got)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Record after Shutdown to panic")
		}
	}()
	s.Record(Command{Execute: func(*CommandBufferManager) {}})
}

func TestSchedulerShutdownIdempotent(t *testing.T) {
	s, cleanup := newTestScheduler(t)
	defer cleanup()

	s.Shutdown()
	s.Shutdown() // must not block or panic
}

// atomicCounter and atomicBoolFlag are tiny race-free test helpers, kept
// local to this file rather than reaching for sync/atomic.Int64 wrappers
// strewn across every test.
type atomicCounter struct {
	mu sync.Mutex
	n  int
}

func (c *atomicCounter) add(d int) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *atomicCounter) load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type atomicBoolFlag struct {
	mu sync.Mutex
	v  bool
}

func (f *atomicBoolFlag) set() {
	f.mu.Lock()
	f.v = true
	f.mu.Unlock()
}

func (f *atomicBoolFlag) testAndClear() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.v
	f.v = false
	return v
}
