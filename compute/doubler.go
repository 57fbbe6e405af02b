// Package compute is the compute half of the learngpu walkthrough: a
// one-shot GPU pass that doubles every element of a float array in
// place, then reads the result back over a staging buffer.
//
// The intended call sequence is linear:
//
//	d, _ := compute.NewDoubler(device, queue)
//	defer d.Close()
//	d.Upload([]float32{1, 2, 3, 4})
//	d.Dispatch()                 // storage buffer now holds {2, 4, 6, 8}
//	out, _ := d.ReadBack()
//
// Dispatch is deliberately not idempotent: each call doubles the buffer
// contents again.
package compute

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/learngpu"
)

//go:embed shaders/double.wgsl
var doubleShaderSource string

// workgroupSize matches @workgroup_size in shaders/double.wgsl.
const workgroupSize = 64

// fenceTimeout bounds how long Dispatch and ReadBack wait for the GPU.
const fenceTimeout = 5 * time.Second

// Sentinel errors for the doubler lifecycle.
var (
	// ErrNoData indicates Dispatch or ReadBack before a successful Upload.
	ErrNoData = errors.New("compute: no data uploaded")

	// ErrClosed indicates use of a doubler after Close.
	ErrClosed = errors.New("compute: doubler is closed")
)

// Doubler owns the compute pipeline and the buffers for one doubling
// run. It is not safe for concurrent use; the walkthrough drives it
// from a single goroutine.
type Doubler struct {
	device hal.Device
	queue  hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	storage   hal.Buffer
	bindGroup hal.BindGroup
	count     uint32

	closed bool
}

// NewDoubler compiles the doubling pipeline on the given device. The
// device and queue are shared resources; Close leaves them alone.
func NewDoubler(device hal.Device, queue hal.Queue) (*Doubler, error) {
	if device == nil || queue == nil {
		return nil, errors.New("compute: nil device or queue")
	}
	d := &Doubler{device: device, queue: queue}

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "double",
		Source: hal.ShaderSource{WGSL: doubleShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("compile double shader: %w", err)
	}
	d.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "double_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		d.destroyPipeline()
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	d.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "double_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		d.destroyPipeline()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "double_pipeline",
		Layout:  d.pipeLayout,
		Compute: hal.ComputeState{Module: d.shader, EntryPoint: "main"},
	})
	if err != nil {
		d.destroyPipeline()
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	d.pipeline = pipeline

	return d, nil
}

// Upload creates the storage buffer sized for values and writes them to
// the GPU. A previous storage buffer and bind group, if any, are
// released first.
func (d *Doubler) Upload(values []float32) error {
	if d.closed {
		return ErrClosed
	}
	if len(values) == 0 {
		return errors.New("compute: empty input")
	}
	d.releaseData()

	raw := floatsToBytes(values)
	storage, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "double_storage",
		Size:  uint64(len(raw)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create storage buffer: %w", err)
	}
	d.storage = storage

	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "double_bind",
		Layout: d.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: storage.NativeHandle(), Offset: 0, Size: uint64(len(raw))}},
		},
	})
	if err != nil {
		d.releaseData()
		return fmt.Errorf("create bind group: %w", err)
	}
	d.bindGroup = bindGroup

	d.queue.WriteBuffer(d.storage, 0, raw)
	d.count = uint32(len(values))

	learngpu.Logger().Debug("input uploaded", "elements", d.count)
	return nil
}

// Dispatch encodes and submits one compute pass doubling the storage
// buffer in place, then waits for the GPU. Each call doubles again.
func (d *Doubler) Dispatch() error {
	if d.closed {
		return ErrClosed
	}
	if d.storage == nil {
		return ErrNoData
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "double_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("double"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	workgroups := workgroupCount(d.count)
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "double_pass"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, d.bindGroup, nil)
	pass.Dispatch(workgroups, 1, 1)
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	learngpu.Logger().Debug("doubling dispatched",
		"elements", d.count, "workgroups", workgroups)
	return nil
}

// ReadBack copies the storage buffer into a fresh staging buffer, waits
// for the copy, and decodes the floats. Mapping failures are fatal to
// the run: there is no partial result to salvage.
func (d *Doubler) ReadBack() ([]float32, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.storage == nil {
		return nil, ErrNoData
	}

	size := uint64(d.count) * 4
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "double_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "double_readback_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("double_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(d.storage, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return nil, err
	}

	raw := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return bytesToFloats(raw), nil
}

// Close releases the buffers and the pipeline. The shared device and
// queue are left untouched. Idempotent.
func (d *Doubler) Close() {
	if d.closed {
		return
	}
	d.releaseData()
	d.destroyPipeline()
	d.closed = true
}

func (d *Doubler) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("compute: GPU timeout after %v", fenceTimeout)
	}
	return nil
}

func (d *Doubler) releaseData() {
	if d.bindGroup != nil {
		d.device.DestroyBindGroup(d.bindGroup)
		d.bindGroup = nil
	}
	if d.storage != nil {
		d.device.DestroyBuffer(d.storage)
		d.storage = nil
	}
	d.count = 0
}

func (d *Doubler) destroyPipeline() {
	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
		d.pipeline = nil
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.bindLayout != nil {
		d.device.DestroyBindGroupLayout(d.bindLayout)
		d.bindLayout = nil
	}
	if d.shader != nil {
		d.device.DestroyShaderModule(d.shader)
		d.shader = nil
	}
}

// workgroupCount returns how many workgroups cover n elements. The last
// workgroup's excess invocations return early in the shader.
func workgroupCount(n uint32) uint32 {
	return (n + workgroupSize - 1) / workgroupSize
}

// Reference is the CPU mirror of shaders/double.wgsl: a doubled copy of
// values. Tests and demos compare GPU output against it.
func Reference(values []float32) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = v * 2
	}
	return out
}

func floatsToBytes(values []float32) []byte {
	raw := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return raw
}

func bytesToFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
