package reader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"codeberg.org/tyrven/vitalsd/internal/metric"
)

// hwmonTempNames are the sensor drivers whose temp1_input reports CPU
// package temperature.
var hwmonTempNames = []string{
	"coretemp",
	"k10temp",
	"zenpower",
	"cpu_thermal",
}

// CPUTemperature reads the CPU package temperature in Celsius,
// preferring a CPU-typed thermal zone and falling back to a known hwmon
// sensor. Kernel nodes report millidegrees.
type CPUTemperature struct{}

func NewCPUTemperature() *CPUTemperature {
	return &CPUTemperature{}
}

func (*CPUTemperature) Metric() metric.ID {
	return metric.CPUTemperature
}

func (*CPUTemperature) Probe(_ context.Context) metric.Outcome {
	if celsius, err := readThermalZone(); err == nil {
		return metric.Value(metric.Scalar(celsius))
	}

	if celsius, err := readHwmonTemp(); err == nil {
		return metric.Value(metric.Scalar(celsius))
	}

	return metric.Unsupported(fmt.Errorf("no cpu temperature source under %s", sysfsRoot))
}

func readThermalZone() (float64, error) {
	zones, _ := filepath.Glob(filepath.Join(sysfsRoot, "class/thermal/thermal_zone*"))
	for _, zone := range zones {
		zoneType, err := readTrimmed(filepath.Join(zone, "type"))
		if err != nil {
			continue
		}
		if !isCPUZone(zoneType) {
			continue
		}

		if milli, err := readFloatFile(filepath.Join(zone, "temp")); err == nil {
			return milli / 1000, nil
		}
	}

	return 0, fmt.Errorf("no cpu thermal zone under %s", sysfsRoot)
}

func isCPUZone(zoneType string) bool {
	if zoneType == "x86_pkg_temp" || zoneType == "acpitz" {
		return true
	}

	return strings.Contains(zoneType, "cpu")
}

func readHwmonTemp() (float64, error) {
	matches, _ := filepath.Glob(filepath.Join(sysfsRoot, "class/hwmon/hwmon*/temp1_input"))
	for _, file := range matches {
		name, err := readTrimmed(filepath.Join(filepath.Dir(file), "name"))
		if err != nil || !containsAny(name, hwmonTempNames) {
			continue
		}

		if milli, err := readFloatFile(file); err == nil {
			return milli / 1000, nil
		}
	}

	return 0, fmt.Errorf("no cpu temperature hwmon under %s", sysfsRoot)
}

// BatteryTemperature reads the battery temperature in Celsius. Power
// supply temp nodes report tenths of a degree.
type BatteryTemperature struct{}

func NewBatteryTemperature() *BatteryTemperature {
	return &BatteryTemperature{}
}

func (*BatteryTemperature) Metric() metric.ID {
	return metric.BatteryTemperature
}

func (*BatteryTemperature) Probe(_ context.Context) metric.Outcome {
	matches, _ := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*/temp"))
	matches = append(matches, filepath.Join(sysfsRoot, "class/power_supply/battery/temp"))

	var firstErr error
	for _, file := range matches {
		tenths, err := readFloatFile(file)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		return metric.Value(metric.Scalar(tenths / 10))
	}

	return classify(firstErr)
}
