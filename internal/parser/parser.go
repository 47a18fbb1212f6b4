// Package parser folds scanned capture-file lines into call records.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"captlog/internal/call"
	"captlog/internal/marker"
)

// ErrNoMarkers is returned when an input contains no recognizable marker
// line at all. The caller treats this as an input error, not a crash.
var ErrNoMarkers = errors.New("no recognizable marker lines")

// Options controls how a capture file is interpreted.
type Options struct {
	// Direct marks the capture as a null-modem (direct serial) session.
	Direct bool
}

// LineStats accounts for every input line. Each line lands in exactly one
// bucket; Markers+Malformed+BlockPayload+Noise == Total.
type LineStats struct {
	Total        int
	Markers      int
	Malformed    int
	BlockPayload int
	Noise        int
}

// FileResult is the outcome of parsing one capture file.
type FileResult struct {
	Name     string
	Records  []*call.Record
	Warnings []error
	Stats    LineStats

	// FirstAt and LastAt span the marker timestamps seen in the file.
	FirstAt time.Time
	LastAt  time.Time
}

// ParseFile opens and parses a capture file.
func ParseFile(path string, opts Options) (*FileResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer file.Close()
	return Parse(file, path, opts)
}

// Parse reads the capture text from r in a single pass and returns the call
// records in input order. Format errors and sequence anomalies are collected
// as warnings; only an unreadable input or a marker-free input fails.
func Parse(r io.Reader, name string, opts Options) (*FileResult, error) {
	result := &FileResult{Name: name}
	builder := &builder{result: result, opts: opts}

	scanner := newScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		builder.feed(lineNo, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}

	builder.finalize()

	if result.Stats.Markers == 0 && result.Stats.Malformed == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoMarkers)
	}
	return result, nil
}

type builder struct {
	result  *FileResult
	opts    Options
	current *call.Record
	block   *call.DiagBlock
	aborted bool
	lastTS  time.Time
}

func (b *builder) feed(lineNo int, line string) {
	stats := &b.result.Stats
	stats.Total++

	m, res := marker.ScanLine(line)
	switch res {
	case marker.ResultMalformed:
		stats.Malformed++
		b.warnf(lineNo, "unparseable marker: %s", m.Err)
		return
	case marker.ResultNone:
		if b.block != nil {
			b.block.Lines = append(b.block.Lines, line)
			stats.BlockPayload++
			return
		}
		stats.Noise++
		return
	}

	stats.Markers++
	if !m.Timestamp.IsZero() {
		b.noteTimestamp(lineNo, m)
	}

	switch m.Kind {
	case marker.KindStartSession:
		b.finalize()
		b.current = &call.Record{
			File:      b.result.Name,
			StartedAt: m.Timestamp,
			TestSize:  m.TestSize,
			Protocol:  m.Protocol,
			Direct:    b.opts.Direct,
		}
		b.aborted = false
		b.lastTS = m.Timestamp

	case marker.KindAbort:
		if b.current == nil {
			b.warnf(lineNo, "abort marker before any session start")
			return
		}
		if b.aborted {
			b.current.TrailingNoise++
			return
		}
		b.current.AbortedAt = m.Timestamp
		b.current.AbortReason = m.Reason
		b.current.Outcome = call.OutcomeAborted
		// An aborted call is terminal: later timing markers are noise.
		// Diagnostic blocks are still collected since the script dumps
		// modem registers after aborting.
		b.aborted = true

	case marker.KindBlockStart:
		if b.current == nil {
			b.warnf(lineNo, "diagnostic block %q before any session start", m.Tag)
			return
		}
		if b.block != nil {
			b.warnf(lineNo, "diagnostic block %q interrupted by %q", b.block.Tag, m.Tag)
			b.flushBlock(true)
		}
		b.block = &call.DiagBlock{Tag: m.Tag}

	case marker.KindBlockEnd:
		if b.block == nil {
			b.warnf(lineNo, "stray end of diagnostic block %q", m.Tag)
			return
		}
		if b.block.Tag != m.Tag {
			b.warnf(lineNo, "diagnostic block %q closed as %q", b.block.Tag, m.Tag)
		}
		b.flushBlock(false)

	case marker.KindBanner:
		if !b.fieldUpdateAllowed(lineNo, "connect banner") {
			return
		}
		b.current.ConnectBPS = m.ConnectBPS
		b.current.Reliable = m.Reliable
		b.current.ANSIDetected = m.ANSIDetected

	case marker.KindTransferStatus:
		if !b.fieldUpdateAllowed(lineNo, "transfer status") {
			return
		}
		if m.TransferOK {
			b.current.Download = call.DownloadSuccess
		} else {
			b.current.Download = call.DownloadFailure
		}
		if m.ReportedCPS > 0 {
			b.current.ReportedCPS = m.ReportedCPS
		}

	default:
		b.setTimestamp(lineNo, m)
	}
}

// fieldUpdateAllowed rejects field updates before the first session marker
// and after an abort froze the record.
func (b *builder) fieldUpdateAllowed(lineNo int, what string) bool {
	if b.current == nil {
		b.warnf(lineNo, "%s before any session start", what)
		return false
	}
	if b.aborted {
		b.current.TrailingNoise++
		return false
	}
	return true
}

func (b *builder) setTimestamp(lineNo int, m marker.Marker) {
	if !b.fieldUpdateAllowed(lineNo, m.Kind.String()+" marker") {
		return
	}

	var field *time.Time
	switch m.Kind {
	case marker.KindStartDial:
		field = &b.current.DialAt
	case marker.KindConnected:
		field = &b.current.ConnectedAt
	case marker.KindStartDownload:
		field = &b.current.DownloadStartAt
	case marker.KindEndDownload:
		field = &b.current.DownloadEndAt
	case marker.KindEndCall:
		field = &b.current.EndCallAt
	case marker.KindExitSession:
		field = &b.current.ExitAt
	default:
		b.warnf(lineNo, "unhandled marker kind %s", m.Kind)
		return
	}

	// Duplicates indicate a transcript anomaly; the later value wins.
	if !field.IsZero() {
		b.warnf(lineNo, "duplicate %s marker, keeping the later value", m.Kind)
	}
	*field = m.Timestamp
}

func (b *builder) noteTimestamp(lineNo int, m marker.Marker) {
	if b.current != nil && !b.aborted && m.Timestamp.Before(b.lastTS) {
		b.warnf(lineNo, "%s timestamp goes backwards (%s < %s)",
			m.Kind, m.Timestamp.Format(marker.TimeLayout), b.lastTS.Format(marker.TimeLayout))
	}
	if m.Timestamp.After(b.lastTS) {
		b.lastTS = m.Timestamp
	}
	if b.result.FirstAt.IsZero() || m.Timestamp.Before(b.result.FirstAt) {
		b.result.FirstAt = m.Timestamp
	}
	if m.Timestamp.After(b.result.LastAt) {
		b.result.LastAt = m.Timestamp
	}
}

func (b *builder) flushBlock(unterminated bool) {
	if b.block == nil {
		return
	}
	b.block.Unterminated = unterminated
	b.current.Diag = append(b.current.Diag, *b.block)
	b.block = nil
}

// finalize closes the in-progress record, classifying its outcome. Called on
// a new session marker and at end of input.
func (b *builder) finalize() {
	if b.current == nil {
		return
	}
	if b.block != nil {
		b.warnf(0, "diagnostic block %q never terminated", b.block.Tag)
		b.flushBlock(true)
	}

	rec := b.current
	rec.Ordinal = len(b.result.Records) + 1
	if rec.Outcome != call.OutcomeAborted {
		if rec.Download == call.DownloadSuccess || !rec.EndCallAt.IsZero() {
			rec.Outcome = call.OutcomeSuccess
		} else {
			rec.Outcome = call.OutcomeIncomplete
		}
	}

	b.result.Records = append(b.result.Records, rec)
	b.current = nil
	b.aborted = false
}

func (b *builder) warnf(lineNo int, format string, args ...any) {
	prefix := b.result.Name
	if lineNo > 0 {
		prefix = fmt.Sprintf("%s:%d", b.result.Name, lineNo)
	}
	b.result.Warnings = append(b.result.Warnings, fmt.Errorf("%s: %s", prefix, fmt.Sprintf(format, args...)))
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Line noise can glue long runs of garbage into one line.
	const maxCapacity = 1024 * 1024
	buf := make([]byte, 4096)
	scanner.Buffer(buf, maxCapacity)
	return scanner
}
