package renderer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrNoAdapter is returned when no WebGPU adapter is available.
	ErrNoAdapter = errors.New("renderer: no WebGPU adapter")

	// ErrFrameOpen is returned when a readback is requested while a compute frame is recording.
	ErrFrameOpen = errors.New("renderer: compute frame still recording")

	// ErrNoFrame is returned when a dispatch is recorded outside Begin/EndComputeFrame.
	ErrNoFrame = errors.New("renderer: no compute frame")

	// ErrNotRegistered is returned when a pipeline is used before RegisterPipelines.
	ErrNotRegistered = errors.New("renderer: pipeline not registered")

	// ErrReadbackTimeout is returned when mapping a readback buffer does not finish in time.
	ErrReadbackTimeout = errors.New("renderer: readback timed out")
)

// wgpuRendererBackendImpl is the headless WebGPU implementation of wgpuRendererBackend.
type wgpuRendererBackendImpl struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterName string
	limits      wgpu.Limits

	readbackTimeout     time.Duration
	computeFrameEncoder *wgpu.CommandEncoder
}

var _ wgpuRendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend requests an adapter and a device with the adapter's storage limits.
// No surface is created; every command buffer is compute or copy work.
func newWGPURendererBackend(forceFallbackAdapter bool, readbackTimeout time.Duration) (*wgpuRendererBackendImpl, error) {
	b := &wgpuRendererBackendImpl{
		mu:              &sync.Mutex{},
		instance:        wgpu.CreateInstance(nil),
		readbackTimeout: readbackTimeout,
	}
	if b.instance == nil {
		return nil, ErrNoAdapter
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		PowerPreference:      wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || a == nil {
		b.instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrNoAdapter, err)
	}
	b.adapter = a
	info := a.GetInfo()
	b.adapterName = strings.TrimSpace(info.Name)

	// The cull kernels bind up to nine storage buffers in one group and size the object
	// table by scene, so take what the adapter offers instead of the WebGPU defaults.
	supported := a.GetLimits().Limits
	limits := wgpu.DefaultLimits()
	limits.MaxStorageBuffersPerShaderStage = supported.MaxStorageBuffersPerShaderStage
	limits.MaxStorageBufferBindingSize = supported.MaxStorageBufferBindingSize
	limits.MaxBufferSize = supported.MaxBufferSize

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Cull Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		b.instance.Release()
		return nil, fmt.Errorf("renderer: request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()
	b.limits = limits

	common.Logger().Info("webgpu device ready", "adapter", b.adapterName, "fallback", forceFallbackAdapter)
	return b, nil
}

func (b *wgpuRendererBackendImpl) AdapterName() string {
	return b.adapterName
}

func (b *wgpuRendererBackendImpl) Limits() wgpu.Limits {
	return b.limits
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	cs := p.Shader()
	module, err := b.device.CreateShaderModule(cs.Module())
	if err != nil {
		return fmt.Errorf("pipeline %s: shader module: %w", p.Key(), err)
	}
	defer module.Release()

	groups := cs.Groups()
	maxGroup := -1
	if len(groups) > 0 {
		maxGroup = groups[len(groups)-1]
	}
	layouts := make(map[int]*wgpu.BindGroupLayout, len(groups))
	ordered := make([]*wgpu.BindGroupLayout, maxGroup+1)
	releaseLayouts := func() {
		for _, l := range layouts {
			l.Release()
		}
	}
	for g := 0; g <= maxGroup; g++ {
		desc := cs.BindGroupLayoutDescriptor(g)
		if desc.Label == "" {
			desc.Label = p.Key() + " group " + strconv.Itoa(g)
		}
		bgl, bglErr := b.device.CreateBindGroupLayout(&desc)
		if bglErr != nil {
			releaseLayouts()
			return fmt.Errorf("pipeline %s: bind group layout %d: %w", p.Key(), g, bglErr)
		}
		layouts[g] = bgl
		ordered[g] = bgl
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.Key(),
		BindGroupLayouts: ordered,
	})
	if err != nil {
		releaseLayouts()
		return fmt.Errorf("pipeline %s: layout: %w", p.Key(), err)
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.Key() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: cs.EntryPoint(),
		},
	})
	if err != nil {
		releaseLayouts()
		return fmt.Errorf("pipeline %s: %w", p.Key(), err)
	}

	p.SetComputePipeline(created, layouts)
	p.SetMaxWorkgroups(b.limits.MaxComputeWorkgroupsPerDimension)
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  alignBufferSize(size),
		Usage: usage,
	})
}

// InitBindGroup creates the buffers the provider is missing for the pipeline's group, then the
// bind group. Buffers are sized from sizes, falling back to the reflected MinBindingSize, and
// every buffer can be copied from so results can be read back.
func (b *wgpuRendererBackendImpl) InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, sizes map[int]uint64) error {
	layout := p.BindGroupLayout(provider.Group())
	if layout == nil {
		return fmt.Errorf("%w: %s group %d", ErrNotRegistered, p.Key(), provider.Group())
	}

	desc := p.Shader().BindGroupLayoutDescriptor(provider.Group())
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, entry := range desc.Entries {
		binding := int(entry.Binding)
		buf := provider.Buffer(binding)
		if buf == nil {
			usage := wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
			if entry.Buffer.Type == wgpu.BufferBindingTypeUniform {
				usage |= wgpu.BufferUsageUniform
			} else {
				usage |= wgpu.BufferUsageStorage
			}
			size := entry.Buffer.MinBindingSize
			if s, ok := sizes[binding]; ok && s > size {
				size = s
			}
			var err error
			buf, err = b.CreateBuffer(fmt.Sprintf("%s binding %d", provider.Label(), binding), size, usage)
			if err != nil {
				return fmt.Errorf("%s binding %d: %w", provider.Label(), binding, err)
			}
			provider.SetBuffer(binding, buf)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%s: bind group: %w", provider.Label(), err)
	}
	provider.SetBindGroup(bg)
	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	for _, w := range writes {
		b.WriteBuffer(w.Provider.Buffer(w.Binding), w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	if buf == nil || len(data) == 0 {
		return
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(data[:len(data):len(data)], make([]byte, 4-pad)...)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.WriteBuffer(buf, offset, data)
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		return ErrFrameOpen
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(
	p pipeline.Pipeline,
	providers []bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoFrame
	}
	cp := p.ComputePipeline()
	if cp == nil {
		return fmt.Errorf("%w: %s", ErrNotRegistered, p.Key())
	}
	if workGroupCount[0] == 0 || workGroupCount[1] == 0 || workGroupCount[2] == 0 {
		return nil
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(cp)
	for _, provider := range providers {
		bg := provider.BindGroup()
		if bg == nil {
			pass.End()
			pass.Release()
			return fmt.Errorf("%s: bind group not initialized", provider.Label())
		}
		pass.SetBindGroup(uint32(provider.Group()), bg, nil)
	}
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return nil
	}
	encoder := b.computeFrameEncoder
	b.computeFrameEncoder = nil
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

// ReadBuffer copies a range of buf into a mappable staging buffer and waits for the map,
// polling the device until the callback fires or the readback timeout passes.
func (b *wgpuRendererBackendImpl) ReadBuffer(buf *wgpu.Buffer, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		return nil, ErrFrameOpen
	}
	aligned := alignBufferSize(size)
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Staging",
		Size:  aligned,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(buf, offset, staging, 0, aligned)
	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, err
	}
	b.queue.Submit(cmd)
	cmd.Release()

	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	staging.MapAsync(wgpu.MapModeRead, 0, aligned, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})

	deadline := time.After(b.readbackTimeout)
	for {
		b.device.Poll(true, nil)
		select {
		case status := <-done:
			if status != wgpu.BufferMapAsyncStatusSuccess {
				return nil, fmt.Errorf("renderer: map readback: status %v", status)
			}
			out := make([]byte, size)
			copy(out, staging.GetMappedRange(0, uint(aligned)))
			staging.Unmap()
			return out, nil
		case <-deadline:
			return nil, ErrReadbackTimeout
		default:
			time.Sleep(100 * time.Microsecond)
		}
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// alignBufferSize rounds a size up to the 4-byte copy alignment, with a floor of one word.
func alignBufferSize(size uint64) uint64 {
	if size < 4 {
		return 4
	}
	return (size + 3) &^ 3
}
