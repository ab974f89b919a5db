// Package config loads the daemon configuration from a TOML file,
// environment and command line flags. Flags override file values; file
// values override the built-in defaults.
package config

import (
	"os"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/errors"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel applies when neither file nor flags set one.
	DefaultLogLevel = "info"

	configName   = "vitalsd"
	configType   = "toml"
	envConfigVar = "VITALSD_CONFIG"
)

// MetricConfig is one metric's sampling cadence and history retention.
// Interval and Timeout are milliseconds, Window is seconds. Window and
// MaxPoints are mutually exclusive; with neither set the monitor
// applies its default retention.
type MetricConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Interval  int  `mapstructure:"interval_ms"`
	Timeout   int  `mapstructure:"timeout_ms"`
	Window    int  `mapstructure:"window_s"`
	MaxPoints int  `mapstructure:"max_points"`
}

// Period returns the sampling interval as a duration.
func (m MetricConfig) Period() time.Duration {
	return time.Duration(m.Interval) * time.Millisecond
}

// ProbeTimeout returns the per-probe timeout as a duration; zero means
// the monitor's default applies.
func (m MetricConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.Timeout) * time.Millisecond
}

// HistoryWindow returns the duration retention bound; zero means the
// metric is count-bound or uses the monitor's default.
func (m MetricConfig) HistoryWindow() time.Duration {
	return time.Duration(m.Window) * time.Second
}

type Config struct {
	LogLevel string                  `mapstructure:"log_level"`
	Import   string                  `mapstructure:"import"`
	Metrics  map[string]MetricConfig `mapstructure:"metrics"`
}

// Metric returns the configuration for one metric. Defaults are seeded
// for every known metric, so ids the file never mentions still resolve.
func (c *Config) Metric(id metric.ID) MetricConfig {
	return c.Metrics[id.String()]
}

// Enabled lists the enabled metrics in the stable display order.
func (c *Config) Enabled() []metric.ID {
	var ids []metric.ID
	for _, id := range metric.All() {
		if mc, ok := c.Metrics[id.String()]; ok && mc.Enabled {
			ids = append(ids, id)
		}
	}

	return ids
}

// Default cadence profiles. Cheap, noisy signals sample sub-second;
// expensive or stable ones multi-second. The governor is label-only and
// needs no history window.
var defaultMetrics = map[metric.ID]MetricConfig{
	metric.CPUUtilization:     {Enabled: true, Interval: 500, Window: 30},
	metric.CPUFrequency:       {Enabled: true, Interval: 2000, Window: 30},
	metric.CPUGovernor:        {Enabled: true, Interval: 5000},
	metric.GPUFrequency:       {Enabled: true, Interval: 2000, Window: 30},
	metric.GPUUtilization:     {Enabled: true, Interval: 1000, Window: 30},
	metric.Power:              {Enabled: true, Interval: 500, Window: 30},
	metric.CPUTemperature:     {Enabled: true, Interval: 2000, Window: 30},
	metric.BatteryTemperature: {Enabled: true, Interval: 5000, Window: 30},
	metric.MemoryUsage:        {Enabled: true, Interval: 1000, Window: 30},
}

// Load reads the configuration. The config file is taken from the
// --config flag, then the VITALSD_CONFIG environment variable, then a
// vitalsd.toml in /etc or the working directory; a missing file means
// defaults apply.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{args: os.Args[1:]}
	for _, opt := range opts {
		opt(&o)
	}

	flags := pflag.NewFlagSet("vitalsd", pflag.ContinueOnError)
	configFlag := flags.String("config", "", "path to the configuration file")
	flags.String("log-level", DefaultLogLevel, "log level: debug, info, warning or error")
	flags.String("import", "", "import a benchmark results file, log its statistics and exit")
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	if err := v.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := v.BindPFlag("import", flags.Lookup("import")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if o.configPath == "" {
		o.configPath = *configFlag
	}
	if o.configPath == "" {
		o.configPath = os.Getenv(envConfigVar)
	}

	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)

	for id, mc := range defaultMetrics {
		prefix := "metrics." + id.String() + "."
		v.SetDefault(prefix+"enabled", mc.Enabled)
		v.SetDefault(prefix+"interval_ms", mc.Interval)
		v.SetDefault(prefix+"timeout_ms", mc.Timeout)
		v.SetDefault(prefix+"window_s", mc.Window)
		v.SetDefault(prefix+"max_points", mc.MaxPoints)
	}
}

func (c *Config) validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, struct {
			Level string
		}{Level: c.LogLevel})
	}

	for name, mc := range c.Metrics {
		if !metric.ID(name).Valid() {
			return errFactory.WithData(errors.ErrUnknownMetric, struct {
				Metric string
			}{Metric: name})
		}
		if !mc.Enabled {
			continue
		}
		if mc.Interval <= 0 {
			return errFactory.WithMessage(errors.ErrInvalidInterval,
				"sampling interval must be positive for "+name)
		}
		if mc.Timeout < 0 || mc.Window < 0 || mc.MaxPoints < 0 {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				"negative values are not valid for "+name)
		}
		if mc.Window > 0 && mc.MaxPoints > 0 {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				"count and duration retention are mutually exclusive for "+name)
		}
	}

	return nil
}
