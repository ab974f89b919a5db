// Package bench imports the serialized metrics of a finished benchmark
// run into read-only series with derived statistics. The importer is a
// pure function over its input: malformed data for one metric degrades
// that metric to an empty series and never aborts the rest of the
// import.
package bench

import (
	"bytes"
	"encoding/json"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/errors"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/series"
)

// Imported is one metric's imported history. Stats hold zero values
// when the run carried no data for the metric; HasData tells the two
// apart.
type Imported struct {
	Metric  metric.ID
	Series  *series.Series
	Stats   series.Stats
	HasData bool
}

// Bundle is the imported read model of one benchmark run. It is built
// once from the run's serialized metrics and treated as immutable
// afterwards.
type Bundle struct {
	Power       Imported
	CPUUsage    Imported
	CPUTemp     Imported
	BatteryTemp Imported
	GPUUsage    Imported
}

// All lists the bundle's sections in display order.
func (b *Bundle) All() []Imported {
	return []Imported{b.Power, b.CPUUsage, b.CPUTemp, b.BatteryTemp, b.GPUUsage}
}

// Wire shape: one JSON object with a section per metric, each holding
// parallel timestamp/value arrays. The value key is metric-specific.
type blob struct {
	Power       *wattsSection   `json:"power"`
	CPUUsage    *percentSection `json:"cpu_usage"`
	CPUTemp     *celsiusSection `json:"cpu_temperature"`
	BatteryTemp *celsiusSection `json:"battery_temperature"`
	GPUUsage    *percentSection `json:"gpu_usage"`
}

type wattsSection struct {
	Timestamps []int64   `json:"timestamps"`
	Watts      []float64 `json:"watts"`
}

type percentSection struct {
	Timestamps []int64   `json:"timestamps"`
	Percent    []float64 `json:"percent"`
}

type celsiusSection struct {
	Timestamps []int64   `json:"timestamps"`
	Celsius    []float64 `json:"celsius"`
}

// arrays is a section reduced to its parallel slices; an absent section
// reduces to empty slices.
type arrays struct {
	timestamps []int64
	values     []float64
}

func (s *wattsSection) arrays() arrays {
	if s == nil {
		return arrays{}
	}

	return arrays{timestamps: s.Timestamps, values: s.Watts}
}

func (s *percentSection) arrays() arrays {
	if s == nil {
		return arrays{}
	}

	return arrays{timestamps: s.Timestamps, values: s.Percent}
}

func (s *celsiusSection) arrays() arrays {
	if s == nil {
		return arrays{}
	}

	return arrays{timestamps: s.Timestamps, values: s.Celsius}
}

// Import parses a benchmark metrics blob into a Bundle. Only input that
// is unusable for every metric at once (empty, or not a JSON object)
// returns an error; a missing or mismatched section yields an empty
// series for that metric alone.
func Import(data []byte) (*Bundle, error) {
	errFactory := errors.New()

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errFactory.New(ErrEmptyImport)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errFactory.Wrap(ErrMalformedImport, err)
	}

	span := runSpan(&b)

	return &Bundle{
		Power:       importSection(metric.Power, span, b.Power.arrays()),
		CPUUsage:    importSection(metric.CPUUtilization, span, b.CPUUsage.arrays()),
		CPUTemp:     importSection(metric.CPUTemperature, span, b.CPUTemp.arrays()),
		BatteryTemp: importSection(metric.BatteryTemperature, span, b.BatteryTemp.arrays()),
		GPUUsage:    importSection(metric.GPUUtilization, span, b.GPUUsage.arrays()),
	}, nil
}

// importSection turns one metric's parallel arrays into a series sized
// to the run's span. A length mismatch means no data for this metric,
// not a failed import.
func importSection(id metric.ID, span time.Duration, a arrays) Imported {
	s := series.NewDurationBound(span)
	out := Imported{Metric: id, Series: s}

	if len(a.timestamps) == 0 || len(a.timestamps) != len(a.values) {
		return out
	}

	for i, ts := range a.timestamps {
		// Out-of-order points are dropped, never imported out of order
		if err := s.Append(ts, a.values[i]); err != nil {
			continue
		}
	}

	if stats, ok := s.Stats(); ok {
		out.Stats = stats
		out.HasData = true
	}

	return out
}

// runSpan is the wall-clock span covered by the run, taken across all
// present sections so every series retains the whole run.
func runSpan(b *blob) time.Duration {
	var earliest, latest int64
	seen := false

	observe := func(a arrays) {
		for _, ts := range a.timestamps {
			if !seen {
				earliest, latest = ts, ts
				seen = true

				continue
			}
			if ts < earliest {
				earliest = ts
			}
			if ts > latest {
				latest = ts
			}
		}
	}

	observe(b.Power.arrays())
	observe(b.CPUUsage.arrays())
	observe(b.CPUTemp.arrays())
	observe(b.BatteryTemp.arrays())
	observe(b.GPUUsage.arrays())

	span := time.Duration(latest-earliest) * time.Millisecond
	if span <= 0 {
		span = time.Second
	}

	return span
}
