package learngpu

import "errors"

// Sentinel errors for the surface application lifecycle.
// Callers should test with errors.Is since constructors and render paths
// wrap these with context.
var (
	// ErrDeviceUnavailable indicates that no usable GPU adapter or device
	// could be acquired. Fatal at startup: there is nothing to render with.
	ErrDeviceUnavailable = errors.New("learngpu: no usable GPU device")

	// ErrSurfaceUnsupported indicates that the surface cannot be configured
	// with a texture format the device can render to. Fatal at startup.
	ErrSurfaceUnsupported = errors.New("learngpu: surface format not supported")

	// ErrSurfaceLost indicates that the current frame's surface texture is
	// unavailable (nil view, window resize in flight, surface outdated).
	// Recoverable: skip the frame and keep the render loop running.
	ErrSurfaceLost = errors.New("learngpu: surface lost")

	// ErrNotReady indicates an operation against an App that is closed or
	// was never fully initialized.
	ErrNotReady = errors.New("learngpu: app is not ready")
)
