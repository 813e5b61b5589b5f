package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/peel/backend"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/wgpu/hal"

	// Register every HAL backend available on this platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// ErrNoAdapter is returned by New when no hardware adapter is found.
var ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

// backendPriority lists the HAL backends New tries, in order.
// The noop backend is never selected.
var backendPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.Device, error) {
		return New()
	})
}

// New opens the first hardware adapter of the highest priority HAL
// backend, preferring discrete and integrated GPUs. The returned Device
// owns the HAL device and destroys it in Destroy.
func New() (*Device, error) {
	for _, variant := range backendPriority {
		b, ok := hal.GetBackend(variant)
		if !ok {
			continue
		}
		d, err := open(b)
		if err != nil {
			slogger().Debug("wgpu: backend unavailable", "backend", variant, "err", err)
			continue
		}
		return d, nil
	}
	return nil, ErrNoAdapter
}

func open(b hal.Backend) (*Device, error) {
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := selectAdapter(adapters)
	limits := selected.Capabilities.Limits
	if limits.MaxTextureDimension2D == 0 {
		limits = gputypes.DefaultLimits()
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d, err := NewFromHAL(openDev.Device, openDev.Queue,
		WithAdapter(selected.Adapter),
		WithLimits(limits),
		WithName(selected.Info.Name),
		WithSPIRV(b.Variant() == gputypes.BackendVulkan),
	)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	slogger().Info("wgpu: device opened", "adapter", selected.Info.Name, "backend", b.Variant())
	return d, nil
}

// selectAdapter prefers a discrete or integrated GPU over software and
// virtual adapters.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// NewFromProvider wraps the HAL device of a host application, such as a
// gogpu window. The provider must expose HalDevice and HalQueue. The HAL
// device stays owned by the provider.
func NewFromProvider(provider any, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types: %w", gpucore.ErrInvalidDescriptor)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device: %w", gpucore.ErrInvalidDescriptor)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue: %w", gpucore.ErrInvalidDescriptor)
	}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		opts = append([]Option{WithName(dp.AdapterInfo().Name)}, opts...)
	}
	return NewFromHAL(dev, queue, opts...)
}
