package config

// Option adjusts how Load discovers and reads configuration
type Option func(*options)

// options holds internal configuration options
type options struct {
	configPath string
	args       []string
}

// WithConfigFile specifies an explicit configuration file path,
// overriding the VITALSD_CONFIG environment variable and the default
// search paths
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithArgs supplies the command line arguments to parse instead of
// os.Args
func WithArgs(args []string) Option {
	return func(o *options) {
		o.args = args
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
