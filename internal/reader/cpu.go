package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/tyrven/vitalsd/internal/metric"
)

// cpuStat is one /proc/stat counter snapshot.
type cpuStat struct {
	total uint64
	idle  uint64
}

// CPUUtilization reads aggregate and per-core busy percentages from
// /proc/stat. Percentages are deltas against the previous probe's
// counters; the first probe reports usage since boot.
type CPUUtilization struct {
	prev map[string]cpuStat
}

func NewCPUUtilization() *CPUUtilization {
	return &CPUUtilization{prev: make(map[string]cpuStat)}
}

func (r *CPUUtilization) Metric() metric.ID {
	return metric.CPUUtilization
}

func (r *CPUUtilization) Probe(_ context.Context) metric.Outcome {
	data, err := os.ReadFile(filepath.Join(procRoot, "stat"))
	if err != nil {
		return classify(err)
	}

	var total float64
	var perCore []float64
	seen := false
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}

		pct := r.busyPercent(fields[0], parseCPUStat(fields[1:]))
		if fields[0] == "cpu" {
			total = pct
			seen = true
		} else {
			perCore = append(perCore, pct)
		}
	}

	if !seen {
		return metric.Failed(fmt.Errorf("no cpu line in %s/stat", procRoot))
	}

	return metric.Value(metric.PerCore(total, perCore))
}

func (r *CPUUtilization) busyPercent(key string, cur cpuStat) float64 {
	prev, ok := r.prev[key]
	r.prev[key] = cur

	// Counters that went backwards (suspend, container restart) are
	// treated like a first probe.
	if !ok || cur.total < prev.total {
		prev = cpuStat{}
	}

	dTotal := cur.total - prev.total
	if dTotal == 0 {
		return 0
	}
	dIdle := cur.idle - prev.idle

	return float64(dTotal-dIdle) / float64(dTotal) * 100
}

func parseCPUStat(fields []string) cpuStat {
	var s cpuStat
	for i, val := range fields {
		v, _ := strconv.ParseUint(val, 10, 64)
		s.total += v
		if i == 3 {
			s.idle = v
		}
	}

	return s
}

// CPUFrequency reads every core's scaling_cur_freq and reports the mean
// in MHz with per-core detail. On kernels that restrict cpufreq to
// root, the whole metric degrades to an access-denied outcome.
type CPUFrequency struct{}

func NewCPUFrequency() *CPUFrequency {
	return &CPUFrequency{}
}

func (*CPUFrequency) Metric() metric.ID {
	return metric.CPUFrequency
}

func (*CPUFrequency) Probe(_ context.Context) metric.Outcome {
	paths, err := filepath.Glob(filepath.Join(sysfsRoot, "devices/system/cpu/cpu[0-9]*/cpufreq/scaling_cur_freq"))
	if err != nil {
		return metric.Failed(err)
	}
	if len(paths) == 0 {
		return metric.Unsupported(fmt.Errorf("no cpufreq nodes under %s", sysfsRoot))
	}
	sortByCoreIndex(paths)

	var cores []float64
	var sum float64
	var firstErr error
	for _, path := range paths {
		khz, err := readFloatFile(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		mhz := khz / 1e3
		cores = append(cores, mhz)
		sum += mhz
	}

	if len(cores) == 0 {
		return classify(firstErr)
	}

	return metric.Value(metric.PerCore(sum/float64(len(cores)), cores))
}

// sortByCoreIndex orders cpufreq paths numerically so cpu10 does not
// sort before cpu2.
func sortByCoreIndex(paths []string) {
	index := func(path string) int {
		base := filepath.Base(filepath.Dir(filepath.Dir(path)))
		n, _ := strconv.Atoi(strings.TrimPrefix(base, "cpu"))

		return n
	}
	sort.Slice(paths, func(i, j int) bool {
		return index(paths[i]) < index(paths[j])
	})
}

// CPUGovernor reads the scaling governor label of cpu0. Text-only: the
// sample carries a label and no scalar.
type CPUGovernor struct{}

func NewCPUGovernor() *CPUGovernor {
	return &CPUGovernor{}
}

func (*CPUGovernor) Metric() metric.ID {
	return metric.CPUGovernor
}

func (*CPUGovernor) Probe(_ context.Context) metric.Outcome {
	governor, err := readTrimmed(filepath.Join(sysfsRoot, "devices/system/cpu/cpu0/cpufreq/scaling_governor"))
	if err != nil {
		return classify(err)
	}

	return metric.Value(metric.Labeled(governor))
}
