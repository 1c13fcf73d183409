// Package wgpu provides a safe, ergonomic WebGPU API for Go applications.
//
// This package wraps the lower-level hal/ and core/ packages into a user-friendly
// API aligned with the W3C WebGPU specification.
//
// # Quick Start
//
// Import this package and the backend registration package:
//
//	import (
//	    "github.com/gogpu/wgpu"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	instance, err := wgpu.CreateInstance(nil)
//	// ...
//
// # Resource Lifecycle
//
// All GPU resources must be explicitly released with Release().
// Methods of a released resource that return an error return ErrReleased.
//
// # Backend Registration
//
// This build carries only the noop backend, registered via a blank import:
//
//	_ "github.com/gogpu/wgpu/hal/allbackends"  // noop, for side-effect registration
//	_ "github.com/gogpu/wgpu/hal/noop"         // equivalent, direct import
//
// # Thread Safety
//
// Instance, Adapter, and Device are safe for concurrent use.
// Encoders (CommandEncoder, RenderPassEncoder, ComputePassEncoder) are NOT thread-safe.
package wgpu
