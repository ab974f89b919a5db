package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/metric"
)

// errCounterPrimed signals that the energy counter was read for the
// first time and a rate needs a second sample.
var errCounterPrimed = errors.New("energy counter primed, awaiting next probe")

// hwmonPowerNames are the sensor drivers whose power*_input reports CPU
// package draw.
var hwmonPowerNames = []string{
	"zenpower",
	"zenpower3",
	"amd_smu",
	"ryzen_smu",
	"rapl",
	"intel-rapl",
	"intel-rapl-msr",
}

// Power reports instantaneous power draw in watts. It prefers the RAPL
// energy counter (a delta across consecutive probes), then a package
// power hwmon input, then the battery's discharge rate. RAPL is
// root-only on hardened kernels, so a permission failure with no
// fallback surfaces as access denied rather than absence.
type Power struct {
	lastEnergy uint64
	lastTime   time.Time
}

func NewPower() *Power {
	return &Power{}
}

func (*Power) Metric() metric.ID {
	return metric.Power
}

func (r *Power) Probe(_ context.Context) metric.Outcome {
	watts, raplErr := r.readRAPL(time.Now())
	if raplErr == nil {
		return metric.Value(metric.Scalar(watts))
	}

	if watts, err := readHwmonPower(); err == nil {
		return metric.Value(metric.Scalar(watts))
	}
	if watts, err := readBatteryPower(); err == nil {
		return metric.Value(metric.Scalar(watts))
	}

	if errors.Is(raplErr, errCounterPrimed) {
		return metric.Failed(raplErr)
	}

	return classify(raplErr)
}

// readRAPL reads the package energy counter and converts the delta
// since the previous probe into watts. The first read primes the
// counter; a wrapped counter is unwrapped against the 64-bit range.
func (r *Power) readRAPL(now time.Time) (float64, error) {
	energy, err := readIntFile(filepath.Join(sysfsRoot, "class/powercap/intel-rapl/intel-rapl:0/energy_uj"))
	if err != nil {
		return 0, err
	}

	cur := uint64(energy)
	if r.lastTime.IsZero() {
		r.lastEnergy = cur
		r.lastTime = now

		return 0, errCounterPrimed
	}

	deltaEnergy := float64(cur - r.lastEnergy)
	if cur < r.lastEnergy {
		deltaEnergy = float64((^uint64(0) - r.lastEnergy) + cur)
	}
	deltaTime := now.Sub(r.lastTime).Seconds()

	r.lastEnergy = cur
	r.lastTime = now

	if deltaTime <= 0 {
		return 0, errCounterPrimed
	}

	return (deltaEnergy / 1e6) / deltaTime, nil
}

func readHwmonPower() (float64, error) {
	matches, _ := filepath.Glob(filepath.Join(sysfsRoot, "class/hwmon/hwmon*/power*_input"))
	for _, file := range matches {
		name, err := readTrimmed(filepath.Join(filepath.Dir(file), "name"))
		if err != nil || !containsAny(name, hwmonPowerNames) {
			continue
		}

		if uw, err := readFloatFile(file); err == nil && uw > 0 {
			return uw / 1e6, nil
		}
	}

	return 0, fmt.Errorf("no package power hwmon under %s", sysfsRoot)
}

// readBatteryPower derives watts from the battery's power_now node, or
// from voltage and current when the firmware does not report power
// directly.
func readBatteryPower() (float64, error) {
	matches, _ := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	var dirs []string
	dirs = append(dirs, matches...)
	dirs = append(dirs, filepath.Join(sysfsRoot, "class/power_supply/battery"))

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		if uw, err := readIntFile(filepath.Join(dir, "power_now")); err == nil && uw > 0 {
			return float64(uw) / 1e6, nil
		}

		uv, verr := readIntFile(filepath.Join(dir, "voltage_now"))
		ua, aerr := readIntFile(filepath.Join(dir, "current_now"))
		if verr == nil && aerr == nil && uv > 0 && ua > 0 {
			return float64(uv) / 1e6 * float64(ua) / 1e6, nil
		}
	}

	return 0, fmt.Errorf("no battery power source under %s", sysfsRoot)
}

func containsAny(s string, targets []string) bool {
	for _, t := range targets {
		if strings.Contains(s, t) {
			return true
		}
	}

	return false
}
