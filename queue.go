package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/internal/sched"
)

// Queue handles command submission and data transfers.
type Queue struct {
	hal       hal.Queue
	halDevice hal.Device
	scheduler *sched.Scheduler
	device    *Device
}

// Submit hands command buffers to the device's scheduler for submission.
// Submit itself does not block on GPU completion: the driver submit runs
// on the scheduler's worker goroutines, and the returned error only
// reports whether the buffers were accepted. Command buffer memory is
// freed once the GPU has finished executing it, not when Submit returns.
// Callers that need to know the work has finished should follow up with
// Device.WaitIdle.
func (q *Queue) Submit(commandBuffers ...*CommandBuffer) error {
	if q.hal == nil {
		return fmt.Errorf("wgpu: queue not available")
	}
	if q.scheduler == nil {
		return fmt.Errorf("wgpu: queue has no scheduler")
	}

	halBuffers := make([]hal.CommandBuffer, len(commandBuffers))
	for i, cb := range commandBuffers {
		halBuffers[i] = cb.halBuffer()
	}

	halDevice := q.halDevice
	q.scheduler.DeferDestroy(func() {
		for _, raw := range halBuffers {
			if raw != nil {
				halDevice.FreeCommandBuffer(raw)
			}
		}
	})
	q.scheduler.SubmitBuffers(halBuffers)

	return nil
}

// WriteBuffer writes data to a buffer.
func (q *Queue) WriteBuffer(buffer *Buffer, offset uint64, data []byte) error {
	if q.hal == nil || buffer == nil {
		return fmt.Errorf("wgpu: WriteBuffer: queue or buffer is nil")
	}

	halBuffer := buffer.halBuffer()
	if halBuffer == nil {
		return fmt.Errorf("wgpu: WriteBuffer: no HAL buffer")
	}

	return q.hal.WriteBuffer(halBuffer, offset, data)
}

// ReadBuffer reads data from a GPU buffer.
func (q *Queue) ReadBuffer(buffer *Buffer, offset uint64, data []byte) error {
	if q.hal == nil {
		return fmt.Errorf("wgpu: queue not available")
	}
	if buffer == nil {
		return fmt.Errorf("wgpu: buffer is nil")
	}

	halBuffer := buffer.halBuffer()
	if halBuffer == nil {
		return ErrReleased
	}

	return q.hal.ReadBuffer(halBuffer, offset, data)
}

// release shuts down the queue's scheduler, running any deferred
// destruction and letting in-flight work finish before the device goes away.
func (q *Queue) release() {
	if q.scheduler != nil {
		q.scheduler.Shutdown()
		q.scheduler = nil
	}
}
