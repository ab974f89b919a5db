package metric

// Status classifies the result of a single probe.
type Status uint8

const (
	// StatusValue means the probe produced a usable sample.
	StatusValue Status = iota
	// StatusUnsupported means the hardware or kernel interface does not
	// exist on this system. Permanent for the life of the boot.
	StatusUnsupported
	// StatusAccessDenied means the interface exists but the process lacks
	// the privilege to read it. Permanent for the life of the process.
	StatusAccessDenied
	// StatusFailed means a normally working probe failed this once.
	StatusFailed
)

// String implements the Stringer interface
func (s Status) String() string {
	switch s {
	case StatusValue:
		return "value"
	case StatusUnsupported:
		return "unsupported"
	case StatusAccessDenied:
		return "access_denied"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one probe: a sample, a permanent
// unavailability, or a transient failure. Construct it with Value,
// Unsupported, AccessDenied or Failed; the zero Outcome is a zero-valued
// sample.
type Outcome struct {
	status Status
	sample Sample
	err    error
}

// Value wraps a successful reading.
func Value(sample Sample) Outcome {
	return Outcome{status: StatusValue, sample: sample}
}

// Unsupported marks the metric as absent on this system. The cause, if
// any, is kept for logging.
func Unsupported(err error) Outcome {
	return Outcome{status: StatusUnsupported, err: err}
}

// AccessDenied marks the metric as readable only with elevated
// privileges. The cause, if any, is kept for logging.
func AccessDenied(err error) Outcome {
	return Outcome{status: StatusAccessDenied, err: err}
}

// Failed marks a one-off probe failure. The next tick retries.
func Failed(err error) Outcome {
	return Outcome{status: StatusFailed, err: err}
}

// Status returns the outcome classification.
func (o Outcome) Status() Status {
	return o.status
}

// Sample returns the reading and whether one is present.
func (o Outcome) Sample() (Sample, bool) {
	return o.sample, o.status == StatusValue
}

// Err returns the underlying cause for non-value outcomes, which may be
// nil.
func (o Outcome) Err() error {
	return o.err
}

// OK reports whether the probe produced a sample.
func (o Outcome) OK() bool {
	return o.status == StatusValue
}
