package learngpu

import "github.com/gogpu/gputypes"

// Default surface configuration, used when no option overrides it.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Option configures an App during creation.
//
// Example:
//
//	// Default 800x600 BGRA surface on the Vulkan backend:
//	app, err := learngpu.New()
//
//	// Custom size:
//	app, err := learngpu.New(learngpu.WithSize(1280, 720))
type Option func(*options)

// options holds optional configuration for App creation.
type options struct {
	width   uint32
	height  uint32
	format  gputypes.TextureFormat
	backend gputypes.Backend
	limits  gputypes.Limits
}

// defaultOptions returns the default App options.
func defaultOptions() options {
	return options{
		width:   DefaultWidth,
		height:  DefaultHeight,
		format:  gputypes.TextureFormatBGRA8Unorm,
		backend: gputypes.BackendVulkan,
		limits:  gputypes.DefaultLimits(),
	}
}

// WithSize sets the initial surface size in physical pixels.
// Dimensions are clamped to the device limits on creation, never below 1.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

// WithFormat sets the surface texture format the render pipeline targets.
// The format must match the format the windowing layer configured the
// surface with, or the pipeline output is undefined.
func WithFormat(format gputypes.TextureFormat) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithBackend selects the HAL backend used to acquire a device when the
// App creates its own (see [New]). The backend must be registered by the
// host binary, typically via a blank import.
func WithBackend(backend gputypes.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithLimits sets the limits requested when opening the device. The
// MaxTextureDimension2D limit bounds how large Resize will let the
// surface grow.
func WithLimits(limits gputypes.Limits) Option {
	return func(o *options) {
		o.limits = limits
	}
}
