// Package capability tracks whether a metric can currently be read.
// Each sampling loop owns one Gate and feeds it every probe outcome; the
// gate decides whether future probes are worth attempting at all.
package capability

import "codeberg.org/tyrven/vitalsd/internal/metric"

// State is the availability of one metric as seen by its loop.
type State uint8

const (
	// Loading means no probe has completed yet.
	Loading State = iota
	// Available means the last probe produced a sample.
	Available
	// RequiresElevatedAccess means the interface exists but cannot be
	// read at this privilege level. Terminal.
	RequiresElevatedAccess
	// NotSupported means the hardware or kernel interface is absent.
	// Terminal.
	NotSupported
	// Error means the last probe of a working metric failed. The next
	// tick retries.
	Error
)

// String implements the Stringer interface
func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Available:
		return "available"
	case RequiresElevatedAccess:
		return "requires_elevated_access"
	case NotSupported:
		return "not_supported"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state can never change again.
func (s State) Terminal() bool {
	return s == RequiresElevatedAccess || s == NotSupported
}

// Gate is the per-loop availability state machine. It starts in Loading
// and settles after the first probe: permanent unavailability is decided
// once and never revisited, while transient failures toggle between
// Available and Error. Not safe for concurrent use; the owning loop is
// the only writer.
type Gate struct {
	state State
}

// NewGate returns a gate in the Loading state.
func NewGate() *Gate {
	return &Gate{state: Loading}
}

// State returns the current availability.
func (g *Gate) State() State {
	return g.state
}

// ShouldProbe reports whether another probe could change anything.
// False once the gate is terminal.
func (g *Gate) ShouldProbe() bool {
	return !g.state.Terminal()
}

// Observe feeds a probe outcome into the gate and returns the resulting
// state plus whether it changed. Outcomes observed after a terminal
// state are ignored.
func (g *Gate) Observe(outcome metric.Outcome) (State, bool) {
	if g.state.Terminal() {
		return g.state, false
	}

	next := g.state
	switch outcome.Status() {
	case metric.StatusValue:
		next = Available
	case metric.StatusUnsupported:
		next = NotSupported
	case metric.StatusAccessDenied:
		next = RequiresElevatedAccess
	case metric.StatusFailed:
		next = Error
	}

	changed := next != g.state
	g.state = next

	return next, changed
}
