package call

import (
	"encoding/json"
	"strconv"
)

// MetricState distinguishes a computed value from the two ways a value can be
// missing. Undefined metrics must never surface as a zero or a garbage number,
// so the state travels with the value instead of using a sentinel.
type MetricState int

const (
	// NotApplicable means the prerequisite timestamps or fields never
	// appeared, e.g. download metrics on a call that never connected.
	NotApplicable MetricState = iota
	// Invalid means the inputs were present but inconsistent, e.g. a
	// negative or zero duration where a positive one is required.
	Invalid
	// Defined means Value holds a real measurement.
	Defined
)

// Metric is a tri-state numeric result.
type Metric struct {
	State MetricState
	Value float64
}

// DefinedMetric wraps a computed value.
func DefinedMetric(v float64) Metric {
	return Metric{State: Defined, Value: v}
}

// InvalidMetric marks a computation whose inputs were inconsistent.
func InvalidMetric() Metric {
	return Metric{State: Invalid}
}

// IsDefined reports whether the metric carries a usable value.
func (m Metric) IsDefined() bool {
	return m.State == Defined
}

// Format renders the metric for display: "-" when not applicable, "invalid"
// when the computation was rejected, otherwise the value with prec decimals.
func (m Metric) Format(prec int) string {
	switch m.State {
	case Defined:
		return strconv.FormatFloat(m.Value, 'f', prec, 64)
	case Invalid:
		return "invalid"
	default:
		return "-"
	}
}

// MarshalJSON encodes Defined as a number, Invalid as the string "invalid"
// and NotApplicable as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	switch m.State {
	case Defined:
		return json.Marshal(m.Value)
	case Invalid:
		return json.Marshal("invalid")
	default:
		return []byte("null"), nil
	}
}
