// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package sched implements a deferred GPU command scheduler: a producer
// records opaque command closures into bump-allocated arena chunks, a
// RecordingWorker replays completed chunks against a CommandBufferManager,
// and the resulting submissions and fences flow through a SubmissionWorker
// and a FenceWorker so that queue submission, presentation, and resource
// reclamation never block the recording thread.
package sched
