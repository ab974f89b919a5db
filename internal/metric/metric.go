// Package metric defines the identifiers and value types shared by the
// probe, monitoring and import layers.
package metric

// ID identifies one observable hardware metric.
type ID string

const (
	CPUUtilization     ID = "cpu_usage"
	CPUFrequency       ID = "cpu_frequency"
	CPUGovernor        ID = "cpu_governor"
	GPUFrequency       ID = "gpu_frequency"
	GPUUtilization     ID = "gpu_usage"
	Power              ID = "power"
	CPUTemperature     ID = "cpu_temperature"
	BatteryTemperature ID = "battery_temperature"
	MemoryUsage        ID = "memory_usage"
)

// All lists every known metric in display order.
func All() []ID {
	return []ID{
		CPUUtilization,
		CPUFrequency,
		CPUGovernor,
		GPUFrequency,
		GPUUtilization,
		Power,
		CPUTemperature,
		BatteryTemperature,
		MemoryUsage,
	}
}

// Valid reports whether id names a known metric.
func (id ID) Valid() bool {
	switch id {
	case CPUUtilization, CPUFrequency, CPUGovernor, GPUFrequency,
		GPUUtilization, Power, CPUTemperature, BatteryTemperature, MemoryUsage:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (id ID) String() string {
	return string(id)
}

// Unit returns the unit symbol for the metric's scalar value, or an
// empty string for text-only metrics.
func (id ID) Unit() string {
	switch id {
	case CPUUtilization, GPUUtilization, MemoryUsage:
		return "%"
	case CPUFrequency, GPUFrequency:
		return "MHz"
	case Power:
		return "W"
	case CPUTemperature, BatteryTemperature:
		return "°C"
	default:
		return ""
	}
}

// Sample is a single observed reading. HasValue distinguishes scalar
// readings from text-only ones: a governor probe yields a Label and no
// scalar, so it never lands in a time series. PerCore optionally carries
// the per-core detail behind an aggregate Value.
type Sample struct {
	Value    float64
	HasValue bool
	Label    string
	PerCore  []float64
}

// Scalar builds a plain numeric sample.
func Scalar(value float64) Sample {
	return Sample{Value: value, HasValue: true}
}

// Labeled builds a text-only sample, such as a governor name.
func Labeled(label string) Sample {
	return Sample{Label: label}
}

// PerCore builds a numeric sample with per-core detail. The aggregate
// value is what a time series stores; the cores slice rides along for
// display.
func PerCore(value float64, cores []float64) Sample {
	return Sample{Value: value, HasValue: true, PerCore: cores}
}
