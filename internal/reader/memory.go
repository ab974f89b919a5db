package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/tyrven/vitalsd/internal/metric"
)

// MemoryUsage reports used memory as a percentage of MemTotal, counting
// MemAvailable as free the way free(1) does.
type MemoryUsage struct{}

func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{}
}

func (*MemoryUsage) Metric() metric.ID {
	return metric.MemoryUsage
}

func (*MemoryUsage) Probe(_ context.Context) metric.Outcome {
	data, err := os.ReadFile(filepath.Join(procRoot, "meminfo"))
	if err != nil {
		return classify(err)
	}

	var total, available float64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseFloat(fields[1], 64)
		case "MemAvailable:":
			available, _ = strconv.ParseFloat(fields[1], 64)
		}
	}

	if total <= 0 {
		return metric.Failed(fmt.Errorf("meminfo: MemTotal missing"))
	}

	return metric.Value(metric.Scalar((total - available) / total * 100))
}
