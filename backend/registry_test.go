package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/internal/soft"
)

func TestSoftwareRegistered(t *testing.T) {
	if !IsRegistered(BackendSoftware) {
		t.Fatal("software backend should be auto-registered")
	}
	dev, err := Open(BackendSoftware)
	if err != nil {
		t.Fatalf("Open(software) error = %v", err)
	}
	defer dev.Destroy()
	if name := dev.Caps().Name; name != "software" {
		t.Errorf("Caps().Name = %q, want %q", name, "software")
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("nonexistent"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryRegisterUnregister(t *testing.T) {
	Register("test", func() (gpucore.Device, error) { return soft.New(), nil })
	if !IsRegistered("test") || !slices.Contains(Available(), "test") {
		t.Error("test backend not listed after Register")
	}
	Unregister("test")
	if IsRegistered("test") {
		t.Error("test backend still registered after Unregister")
	}
}

func TestOpenDefaultSkipsFailingBackends(t *testing.T) {
	orig, had := backends[BackendWGPU]
	t.Cleanup(func() {
		if had {
			Register(BackendWGPU, orig)
		} else {
			Unregister(BackendWGPU)
		}
	})

	failure := errors.New("no adapter")
	Register(BackendWGPU, func() (gpucore.Device, error) { return nil, failure })
	dev, err := OpenDefault()
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	defer dev.Destroy()
	if name := dev.Caps().Name; name != "software" {
		t.Errorf("OpenDefault() opened %q, want the software fallback", name)
	}

	Unregister(BackendSoftware)
	defer Register(BackendSoftware, func() (gpucore.Device, error) { return soft.New(), nil })
	if _, err := OpenDefault(); !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, failure) {
		t.Errorf("OpenDefault() error = %v, want ErrBackendNotAvailable wrapping the factory error", err)
	}
}
