// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package allbackends imports the HAL backends available in this build.
//
// Import this package for side effects to register them:
//
//	import (
//		_ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
// This build carries only the noop backend: a deterministic fake HAL
// exercised by internal/sched's scheduler tests and usable directly by
// callers that want GPU-shaped behavior without a real GPU. Real-driver
// backends (Vulkan, Metal, DX12, GLES) are out of scope for the scheduler
// this package supports; see DESIGN.md.
//
// After importing, use hal.GetBackend or hal.SelectBestBackend to access
// registered backends.
package allbackends
