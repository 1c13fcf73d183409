// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sched

import "errors"

// ErrDeviceLost is returned from WaitForFence and blockingWaitForFence when
// the underlying driver reports the device as lost while waiting.
var ErrDeviceLost = errors.New("sched: device lost")

// ErrNoDrawEncoder indicates Submit found no open draw command encoder on
// the current slot, which happens when opening that slot's encoder failed
// after the previous submit.
var ErrNoDrawEncoder = errors.New("sched: slot has no draw encoder to submit")
