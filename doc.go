// Package learngpu is a minimal, readable walkthrough of the WebGPU
// rendering and compute model in Go, built on the gogpu/wgpu HAL.
//
// # Overview
//
// The package deliberately stays small. It exposes two things:
//
//   - [App]: a surface-owning application shell that clears a window
//     surface and draws a single hard-coded triangle each frame. It owns
//     the device, the queue, the surface configuration, and one render
//     pipeline compiled at startup.
//
//   - Doubler (package compute): a one-shot compute pass that doubles
//     every element of a float array on the GPU and reads the result
//     back.
//
// # Quick Start
//
//	import "github.com/gogpu/learngpu"
//
//	app, err := learngpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	// each frame, with a surface texture view from the windowing layer:
//	if err := app.RenderTo(view); err != nil && !errors.Is(err, learngpu.ErrSurfaceLost) {
//	    log.Fatal(err)
//	}
//
// # Windowing
//
// The windowing layer is not reimplemented here: the runnable demos under
// examples/ drive an App from a gogpu window, rendering into the surface
// texture view handed to the per-frame callback. A GPU backend must be
// registered by the host binary; the demos show both the pure-Go and the
// wgpu-native registrations.
//
// # Logging
//
// By default learngpu produces no log output. Call [SetLogger] to enable
// structured logging.
package learngpu

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
