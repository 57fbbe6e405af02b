package learngpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// fenceTimeout bounds how long a frame submit waits for the GPU.
const fenceTimeout = 5 * time.Second

// SurfaceConfig describes the surface the App renders to. Width and
// Height are physical pixels, always within [1, MaxTextureDimension2D].
// Mutated only by Resize; read by every RenderTo.
type SurfaceConfig struct {
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
}

// App owns a device, a queue, and a single render pipeline that clears
// the surface and draws a hard-coded triangle. The pipeline is compiled
// once during creation and never rebuilt; resizes only update the
// surface configuration.
//
// An App is a single-owner object: the windowing layer's frame callback
// is the only expected caller of RenderTo and Resize. The mutex guards
// against misuse, it does not make concurrent rendering meaningful.
type App struct {
	mu sync.Mutex

	instance   hal.Instance
	device     hal.Device
	queue      hal.Queue
	ownsDevice bool

	config SurfaceConfig
	maxDim uint32

	shader     hal.ShaderModule
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	submitted uint64
	ready     bool
}

// New acquires a GPU device on the configured backend and compiles the
// triangle pipeline. The returned App is ready to render.
//
// The selected backend must be registered by the host binary, typically
// with a blank import of its package. Adapter preference order is
// discrete GPU, integrated GPU, then whatever is first.
func New(opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, ok := hal.GetBackend(o.backend)
	if !ok {
		return nil, fmt.Errorf("%w: backend %v not registered", ErrDeviceUnavailable, o.backend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrDeviceUnavailable, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrDeviceUnavailable)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), o.limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", ErrDeviceUnavailable, err)
	}

	Logger().Info("adapter selected",
		"name", selected.Info.Name,
		"type", selected.Info.DeviceType)

	app, err := newWithDevice(instance, openDev.Device, openDev.Queue, true, o)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	return app, nil
}

// NewWithDevice builds an App on a device and queue owned by someone
// else, typically the windowing layer's shared GPU context. Close will
// release the pipeline but leave the device and queue alone.
func NewWithDevice(device hal.Device, queue hal.Queue, opts ...Option) (*App, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", ErrDeviceUnavailable)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newWithDevice(nil, device, queue, false, o)
}

// NewFromProvider builds an App from a shared device provider, normally
// gogpu.App.GPUContextProvider(). Beyond the gpucontext.DeviceProvider
// interface the provider must expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue, which gogpu's provider does.
//
// The surface format reported by the provider overrides any WithFormat
// option: the pipeline must target the format the surface was actually
// configured with.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrDeviceUnavailable)
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrDeviceUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrDeviceUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrDeviceUnavailable)
	}
	opts = append(opts, WithFormat(provider.SurfaceFormat()))
	return NewWithDevice(device, queue, opts...)
}

func newWithDevice(instance hal.Instance, device hal.Device, queue hal.Queue, owns bool, o options) (*App, error) {
	maxDim := o.limits.MaxTextureDimension2D
	app := &App{
		instance:   instance,
		device:     device,
		queue:      queue,
		ownsDevice: owns,
		maxDim:     maxDim,
		config: SurfaceConfig{
			Width:  clampDim(o.width, maxDim),
			Height: clampDim(o.height, maxDim),
			Format: o.format,
		},
	}
	if err := app.createPipeline(); err != nil {
		return nil, err
	}
	app.ready = true
	Logger().Info("render pipeline ready",
		"format", app.config.Format,
		"width", app.config.Width,
		"height", app.config.Height)
	return app, nil
}

// createPipeline compiles the triangle shader and builds the one render
// pipeline of the App. Called exactly once, from the constructor.
func (a *App) createPipeline() error {
	shader, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "triangle",
		Source: hal.ShaderSource{WGSL: triangleShaderSource},
	})
	if err != nil {
		return fmt.Errorf("compile triangle shader: %w", err)
	}
	a.shader = shader

	// No bind groups: the triangle geometry and color live in the shader.
	pipeLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "triangle_pipe_layout",
		BindGroupLayouts: nil,
	})
	if err != nil {
		a.destroyPipeline()
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	a.pipeLayout = pipeLayout

	pipeline, err := a.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "triangle_pipeline",
		Layout: a.pipeLayout,
		Vertex: hal.VertexState{
			Module:     a.shader,
			EntryPoint: vertexEntryPoint,
		},
		Fragment: &hal.FragmentState{
			Module:     a.shader,
			EntryPoint: fragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    a.config.Format,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		a.destroyPipeline()
		return fmt.Errorf("%w: create render pipeline: %v", ErrSurfaceUnsupported, err)
	}
	a.pipeline = pipeline
	return nil
}

func (a *App) destroyPipeline() {
	if a.device == nil {
		return
	}
	if a.pipeline != nil {
		a.device.DestroyRenderPipeline(a.pipeline)
		a.pipeline = nil
	}
	if a.pipeLayout != nil {
		a.device.DestroyPipelineLayout(a.pipeLayout)
		a.pipeLayout = nil
	}
	if a.shader != nil {
		a.device.DestroyShaderModule(a.shader)
		a.shader = nil
	}
}

// Config returns a copy of the current surface configuration.
func (a *App) Config() SurfaceConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Submitted returns how many frames have been submitted to the queue.
func (a *App) Submitted() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitted
}

// Resize records a new surface size. Both dimensions are clamped to
// [1, MaxTextureDimension2D]. The pipeline is untouched: the next
// RenderTo simply renders into a view of the new size. Any frame
// acquired before the resize must be dropped by the caller.
func (a *App) Resize(width, height uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return
	}
	w := clampDim(width, a.maxDim)
	h := clampDim(height, a.maxDim)
	if w == a.config.Width && h == a.config.Height {
		return
	}
	a.config.Width = w
	a.config.Height = h
	Logger().Debug("surface resized", "width", w, "height", h)
}

// RenderTo records and submits one frame into the given surface texture
// view: a single render pass that clears to black and draws the triangle.
//
// A nil view means the surface is not currently usable (lost, outdated,
// mid-resize); RenderTo reports ErrSurfaceLost and the caller should
// skip the frame and keep its loop running. All other errors are
// internal failures.
func (a *App) RenderTo(view hal.TextureView) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return ErrNotReady
	}
	if view == nil {
		return ErrSurfaceLost
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "triangle_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(a.pipeline)
	rp.Draw(triangleVertexCount, 1, 0, 0)
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	fence, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	// Wait for the GPU before the windowing layer presents the surface.
	fenceOK, err := a.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	a.submitted++
	Logger().Debug("frame submitted", "frame", a.submitted,
		"width", a.config.Width, "height", a.config.Height)
	return nil
}

// Close releases the pipeline and, when the App acquired its own device,
// the device and instance in reverse creation order. Idempotent.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready && a.device == nil {
		return
	}
	a.destroyPipeline()
	if a.ownsDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device = nil
	a.queue = nil
	a.instance = nil
	a.ready = false
}

// clampDim clamps a surface dimension to [1, maxDim]. A zero max (a
// backend that reports no limit) clamps only the lower bound.
func clampDim(v, maxDim uint32) uint32 {
	if v < 1 {
		return 1
	}
	if maxDim > 0 && v > maxDim {
		return maxDim
	}
	return v
}
