// Package reader implements the per-metric hardware probes. Every
// reader conforms to the one-probe contract in interface.go; the
// device-specific strategy (which sysfs node, which fallback order,
// which driver call) lives entirely here.
package reader

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"codeberg.org/tyrven/vitalsd/internal/metric"
)

// Roots for the kernel interfaces, swappable in tests.
var (
	sysfsRoot = "/sys"
	procRoot  = "/proc"
)

// For returns a fresh reader for the metric, or false for ids no probe
// implementation exists for.
func For(id metric.ID) (Reader, bool) {
	switch id {
	case metric.CPUUtilization:
		return NewCPUUtilization(), true
	case metric.CPUFrequency:
		return NewCPUFrequency(), true
	case metric.CPUGovernor:
		return NewCPUGovernor(), true
	case metric.GPUFrequency:
		return NewGPUFrequency(), true
	case metric.GPUUtilization:
		return NewGPUUtilization(), true
	case metric.Power:
		return NewPower(), true
	case metric.CPUTemperature:
		return NewCPUTemperature(), true
	case metric.BatteryTemperature:
		return NewBatteryTemperature(), true
	case metric.MemoryUsage:
		return NewMemoryUsage(), true
	default:
		return nil, false
	}
}

// classify maps a file access error to the probe taxonomy: a missing
// node is permanent absence, a permission failure is a privilege
// barrier, anything else is a one-tick failure.
func classify(err error) metric.Outcome {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return metric.Unsupported(err)
	case errors.Is(err, fs.ErrPermission):
		return metric.AccessDenied(err)
	default:
		return metric.Failed(err)
	}
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

func readFloatFile(path string) (float64, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(s, 64)
}

func readIntFile(path string) (int64, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(s, 10, 64)
}
