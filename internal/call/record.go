// Package call defines the parsed representation of a capture file: one
// Record per call attempt plus the derived timing and throughput metrics.
package call

import (
	"fmt"
	"time"
)

// Outcome classifies how a call attempt ended.
type Outcome int

const (
	// OutcomeIncomplete means the record never reached a terminal marker
	// before the next session started or the input ended.
	OutcomeIncomplete Outcome = iota
	// OutcomeSuccess means the call ended normally.
	OutcomeSuccess
	// OutcomeAborted means the script gave up mid-call.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAborted:
		return "aborted"
	default:
		return "incomplete"
	}
}

// DownloadStatus is the protocol-reported result of the test download.
type DownloadStatus int

const (
	DownloadUnknown DownloadStatus = iota
	DownloadSuccess
	DownloadFailure
)

func (d DownloadStatus) String() string {
	switch d {
	case DownloadSuccess:
		return "SUCCESS"
	case DownloadFailure:
		return "FAILED"
	default:
		return "-"
	}
}

// DiagBlock is a tagged span of raw modem-status output captured between
// stats_<tag> and end_stats_<tag> markers.
type DiagBlock struct {
	Tag          string
	Lines        []string
	Unterminated bool
}

// Record is one call attempt. Timestamp fields use the zero time for "never
// seen". A Record is mutated only while its file segment is being folded and
// is immutable once finalized.
type Record struct {
	File    string
	Ordinal int // 1-based position within the file

	StartedAt       time.Time // start_qmodem
	DialAt          time.Time // start_dial
	ConnectedAt     time.Time // connected
	DownloadStartAt time.Time // start_download
	DownloadEndAt   time.Time // end_download
	EndCallAt       time.Time // end_call
	ExitAt          time.Time // exit_qmodem
	AbortedAt       time.Time // aborting

	TestSize int64 // bytes, 0 when the session line did not announce one
	Protocol string

	ConnectBPS   int // from the BBS welcome banner, 0 when absent
	Reliable     bool
	ANSIDetected bool

	Download    DownloadStatus
	ReportedCPS int // protocol-reported CPS, 0 when absent

	AbortReason string
	Diag        []DiagBlock
	Outcome     Outcome

	// Direct marks a null-modem (direct serial) capture: there is no dial
	// phase and call duration runs from session start to exit.
	Direct bool

	// TrailingNoise counts markers seen after an abort froze the record.
	TrailingNoise int
}

// Connected reports whether the call reached the remote system.
func (r *Record) Connected() bool {
	return !r.ConnectedAt.IsZero()
}

// Label identifies the record in output and warnings.
func (r *Record) Label() string {
	return fmt.Sprintf("%s#%d", r.File, r.Ordinal)
}

// ConnectDuration is the handshake time in seconds (connected - start_dial).
// Not applicable for calls that never connected or never dialed; a direct
// serial capture has no handshake and reports zero.
func (r *Record) ConnectDuration() Metric {
	if r.Direct {
		return DefinedMetric(0)
	}
	if !r.Connected() || r.DialAt.IsZero() {
		return Metric{}
	}
	return nonNegativeSeconds(r.DialAt, r.ConnectedAt)
}

// DownloadDuration is the transfer time in seconds. Undefined unless the call
// connected and both download markers were seen.
func (r *Record) DownloadDuration() Metric {
	if !r.Connected() || r.DownloadStartAt.IsZero() || r.DownloadEndAt.IsZero() {
		return Metric{}
	}
	return nonNegativeSeconds(r.DownloadStartAt, r.DownloadEndAt)
}

// TransferRate is the effective throughput in bytes per second, computed from
// the announced test size and the download duration. A zero or negative
// duration is an invalid-metric condition, never an Inf/NaN.
func (r *Record) TransferRate() Metric {
	duration := r.DownloadDuration()
	if duration.State == NotApplicable || r.TestSize == 0 || r.Download == DownloadFailure {
		return Metric{}
	}
	if duration.State == Invalid || duration.Value <= 0 {
		return InvalidMetric()
	}
	return DefinedMetric(float64(r.TestSize) / duration.Value)
}

// CallDuration is the total call time in seconds, anchored at session start
// and ended by the first of end_call, abort, or exit. Direct serial captures
// always use session start to exit.
func (r *Record) CallDuration() Metric {
	if r.StartedAt.IsZero() {
		return Metric{}
	}
	if r.Direct {
		if r.ExitAt.IsZero() {
			return Metric{}
		}
		return nonNegativeSeconds(r.StartedAt, r.ExitAt)
	}
	end := r.EndCallAt
	if end.IsZero() {
		end = r.AbortedAt
	}
	if end.IsZero() {
		end = r.ExitAt
	}
	if end.IsZero() {
		return Metric{}
	}
	return nonNegativeSeconds(r.StartedAt, end)
}

func nonNegativeSeconds(from, to time.Time) Metric {
	seconds := to.Sub(from).Seconds()
	if seconds < 0 {
		return InvalidMetric()
	}
	return DefinedMetric(seconds)
}

// FirstTimestamp returns the earliest timestamp set on the record.
func (r *Record) FirstTimestamp() time.Time {
	return r.StartedAt
}

// LastTimestamp returns the latest timestamp set on the record.
func (r *Record) LastTimestamp() time.Time {
	last := r.StartedAt
	for _, ts := range []time.Time{
		r.DialAt, r.ConnectedAt, r.DownloadStartAt, r.DownloadEndAt,
		r.EndCallAt, r.AbortedAt, r.ExitAt,
	} {
		if ts.After(last) {
			last = ts
		}
	}
	return last
}

// Session is the ordered sequence of records parsed from one or more files,
// in file order then line order. The session exclusively owns its records.
type Session struct {
	Records  []*Record
	Warnings []error
}

// Add appends a file's records and warnings in order.
func (s *Session) Add(records []*Record, warnings []error) {
	s.Records = append(s.Records, records...)
	s.Warnings = append(s.Warnings, warnings...)
}
