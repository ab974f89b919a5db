package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"codeberg.org/tyrven/vitalsd/internal/metric"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

var errNVML = errors.New("NVML operation failed")

// gpuSession lazily binds NVML and the first device. Library or driver
// absence is remembered so machines without the NVIDIA stack pay the
// dlopen probe once, not every tick; other init failures are retried.
type gpuSession struct {
	mu     sync.Mutex
	device nvml.Device
	ready  bool
	absent nvml.Return
}

func (s *gpuSession) acquire() (nvml.Device, nvml.Return) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return s.device, nvml.SUCCESS
	}
	if s.absent != nvml.SUCCESS {
		return nil, s.absent
	}

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		if ret == nvml.ERROR_LIBRARY_NOT_FOUND || ret == nvml.ERROR_DRIVER_NOT_LOADED {
			s.absent = ret
		}

		return nil, ret
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		_ = nvml.Shutdown()

		return nil, ret
	}

	s.device = device
	s.ready = true

	return device, nvml.SUCCESS
}

func (s *gpuSession) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false

	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("%w: %v", errNVML, nvml.ErrorString(ret))
	}

	return nil
}

// classifyNVML maps an NVML return code to the probe taxonomy.
func classifyNVML(ret nvml.Return) metric.Outcome {
	err := fmt.Errorf("%w: %v", errNVML, nvml.ErrorString(ret))
	switch ret {
	case nvml.ERROR_LIBRARY_NOT_FOUND, nvml.ERROR_DRIVER_NOT_LOADED,
		nvml.ERROR_NOT_SUPPORTED, nvml.ERROR_NOT_FOUND:
		return metric.Unsupported(err)
	case nvml.ERROR_NO_PERMISSION:
		return metric.AccessDenied(err)
	default:
		return metric.Failed(err)
	}
}

// GPUFrequency reads the graphics clock in MHz, via NVML where the
// NVIDIA driver is present and via the DRM hwmon clock otherwise.
type GPUFrequency struct {
	session gpuSession
}

func NewGPUFrequency() *GPUFrequency {
	return &GPUFrequency{}
}

func (*GPUFrequency) Metric() metric.ID {
	return metric.GPUFrequency
}

func (r *GPUFrequency) Probe(_ context.Context) metric.Outcome {
	device, ret := r.session.acquire()
	if ret == nvml.SUCCESS {
		clock, cret := device.GetClockInfo(nvml.CLOCK_GRAPHICS)
		if cret != nvml.SUCCESS {
			return classifyNVML(cret)
		}

		return metric.Value(metric.Scalar(float64(clock)))
	}

	if mhz, err := readDRMFrequency(); err == nil {
		return metric.Value(metric.Scalar(mhz))
	}

	return classifyNVML(ret)
}

func (r *GPUFrequency) Release() error {
	return r.session.release()
}

// GPUUtilization reads the GPU busy percentage, via NVML where the
// NVIDIA driver is present and via the DRM gpu_busy_percent node
// otherwise.
type GPUUtilization struct {
	session gpuSession
}

func NewGPUUtilization() *GPUUtilization {
	return &GPUUtilization{}
}

func (*GPUUtilization) Metric() metric.ID {
	return metric.GPUUtilization
}

func (r *GPUUtilization) Probe(_ context.Context) metric.Outcome {
	device, ret := r.session.acquire()
	if ret == nvml.SUCCESS {
		util, uret := device.GetUtilizationRates()
		if uret != nvml.SUCCESS {
			return classifyNVML(uret)
		}

		return metric.Value(metric.Scalar(float64(util.Gpu)))
	}

	if pct, err := readDRMUtilization(); err == nil {
		return metric.Value(metric.Scalar(pct))
	}

	return classifyNVML(ret)
}

func (r *GPUUtilization) Release() error {
	return r.session.release()
}

// drmCards lists DRM card device directories, skipping connector
// entries like card0-DP-1.
func drmCards() []string {
	matches, _ := filepath.Glob(filepath.Join(sysfsRoot, "class/drm/card[0-9]*"))
	var cards []string
	for _, m := range matches {
		if !strings.Contains(filepath.Base(m), "-") {
			cards = append(cards, m)
		}
	}

	return cards
}

func readDRMUtilization() (float64, error) {
	for _, card := range drmCards() {
		if pct, err := readFloatFile(filepath.Join(card, "device/gpu_busy_percent")); err == nil {
			return pct, nil
		}
	}

	return 0, fmt.Errorf("no drm utilization source under %s", sysfsRoot)
}

// readDRMFrequency reads the sclk hwmon frequency input, reported in Hz.
func readDRMFrequency() (float64, error) {
	for _, card := range drmCards() {
		hwmonRoot := filepath.Join(card, "device/hwmon")
		hwmons, _ := os.ReadDir(hwmonRoot)
		for _, hw := range hwmons {
			if hz, err := readFloatFile(filepath.Join(hwmonRoot, hw.Name(), "freq1_input")); err == nil {
				return hz / 1e6, nil
			}
		}
	}

	return 0, fmt.Errorf("no drm frequency source under %s", sysfsRoot)
}
