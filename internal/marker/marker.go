// Package marker classifies raw capture-file lines into typed marker events.
//
// The call-automation script writes marker lines of the form
//
//	#### start_qmodem testsize:64k proto:Y 01-22-25 22:29:01
//	### aborting 01-22-25 22:34:14 - we cant login
//
// using either a three- or four-hash prefix. The prefix width is cosmetic and
// both styles are recognized by the same rule. A few non-hash lines emitted by
// the remote BBS and the transfer protocol are also recognized because they
// carry data nothing else provides (initial connect speed, download status).
package marker

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the event a marker line represents.
type Kind int

const (
	KindNone Kind = iota
	KindStartSession   // start_qmodem: opens a new call record
	KindStartDial      // start_dial
	KindConnected      // connected
	KindStartDownload  // start_download
	KindEndDownload    // end_download
	KindEndCall        // end_call
	KindExitSession    // exit_qmodem
	KindAbort          // aborting, carries a free-form reason
	KindBlockStart     // stats_<tag>: start of a diagnostic dump
	KindBlockEnd       // end_stats_<tag>
	KindBanner         // BBS welcome banner with the negotiated speed
	KindTransferStatus // protocol SUCCESSFUL!/UNSUCCESSFUL. status line
)

var kindNames = map[Kind]string{
	KindNone:           "none",
	KindStartSession:   "start_qmodem",
	KindStartDial:      "start_dial",
	KindConnected:      "connected",
	KindStartDownload:  "start_download",
	KindEndDownload:    "end_download",
	KindEndCall:        "end_call",
	KindExitSession:    "exit_qmodem",
	KindAbort:          "aborting",
	KindBlockStart:     "stats_block_start",
	KindBlockEnd:       "stats_block_end",
	KindBanner:         "connect_banner",
	KindTransferStatus: "transfer_status",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Result reports how a line was classified.
type Result int

const (
	// ResultNone means the line is not a recognized marker.
	ResultNone Result = iota
	// ResultMarker means the line parsed cleanly.
	ResultMarker
	// ResultMalformed means the line carries a marker token but its
	// timestamp or fields could not be parsed. The caller should warn and
	// treat the line as unparseable; it must never abort the run.
	ResultMalformed
)

// TimeLayout is the capture-file timestamp format (MM-DD-YY HH:MM:SS).
const TimeLayout = "01-02-06 15:04:05"

// Marker is the parsed content of one recognized line.
type Marker struct {
	Kind      Kind
	Timestamp time.Time

	// start_qmodem fields
	TestSize int64 // bytes, 0 when not announced
	Protocol string

	// diagnostic block tag (stats_<tag>)
	Tag string

	// abort reason, free-form
	Reason string

	// banner fields
	ConnectBPS   int
	Reliable     bool
	ANSIDetected bool

	// transfer status fields
	TransferOK  bool
	ReportedCPS int

	// Err describes why a marker token failed to parse (ResultMalformed).
	Err string
}

// Line noise and broken terminal output can shift our tokens away from column
// zero, so markers are matched anywhere in the line rather than anchored.
var (
	reHashMarker = regexp.MustCompile(`#{3,4} ([A-Za-z_][A-Za-z0-9_&]*)\b\s*(.*)`)
	reTimestamp  = regexp.MustCompile(`\d{2}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)
	reTestSize   = regexp.MustCompile(`testsize:(\S+)`)
	reProtocol   = regexp.MustCompile(`proto:(\S+)`)
	reBanner     = regexp.MustCompile(`Connected at (\d+) bps\.\s*(Reliable connection\.)?\s*(ANSI detected\.)?`)
	reTransfer   = regexp.MustCompile(`\S+\s+-\s+(SUCCESSFUL!|UNSUCCESSFUL\.)(?:\s+CPS = (\S+))?`)
)

var timedKinds = map[string]Kind{
	"start_dial":     KindStartDial,
	"connected":      KindConnected,
	"start_download": KindStartDownload,
	"end_download":   KindEndDownload,
	"end_call":       KindEndCall,
	"exit_qmodem":    KindExitSession,
}

// ScanLine classifies a single raw line. It is a pure function: identical
// input always yields an identical result.
func ScanLine(line string) (Marker, Result) {
	if m := reHashMarker.FindStringSubmatch(line); m != nil {
		return scanHashMarker(m[1], m[2])
	}

	if m := reBanner.FindStringSubmatch(line); m != nil {
		bps, err := strconv.Atoi(m[1])
		if err != nil {
			return Marker{Kind: KindBanner, Err: "connect banner speed: " + err.Error()}, ResultMalformed
		}
		return Marker{
			Kind:         KindBanner,
			ConnectBPS:   bps,
			Reliable:     m[2] != "",
			ANSIDetected: m[3] != "",
		}, ResultMarker
	}

	if m := reTransfer.FindStringSubmatch(line); m != nil {
		out := Marker{Kind: KindTransferStatus, TransferOK: m[1] == "SUCCESSFUL!"}
		if m[2] != "" {
			cps, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
			if err != nil {
				out.Err = "transfer CPS: " + err.Error()
				return out, ResultMalformed
			}
			out.ReportedCPS = cps
		}
		return out, ResultMarker
	}

	return Marker{}, ResultNone
}

func scanHashMarker(token, rest string) (Marker, Result) {
	switch {
	case token == "start_qmodem":
		out := Marker{Kind: KindStartSession}
		ts, ok := extractTimestamp(rest)
		if !ok {
			out.Err = "start_qmodem: bad or missing timestamp"
			return out, ResultMalformed
		}
		out.Timestamp = ts
		if m := reTestSize.FindStringSubmatch(rest); m != nil {
			size, err := ParseTestSize(m[1])
			if err != nil {
				out.Err = "start_qmodem: " + err.Error()
				return out, ResultMalformed
			}
			out.TestSize = size
		}
		if m := reProtocol.FindStringSubmatch(rest); m != nil {
			out.Protocol = m[1]
		}
		return out, ResultMarker

	case token == "aborting":
		out := Marker{Kind: KindAbort}
		loc := reTimestamp.FindStringIndex(rest)
		if loc == nil {
			out.Err = "aborting: bad or missing timestamp"
			return out, ResultMalformed
		}
		ts, err := time.Parse(TimeLayout, rest[loc[0]:loc[1]])
		if err != nil {
			out.Err = "aborting: " + err.Error()
			return out, ResultMalformed
		}
		out.Timestamp = ts
		out.Reason = trimReason(rest[loc[1]:])
		return out, ResultMarker

	case strings.HasPrefix(token, "end_stats_"):
		// Block markers carry no timestamp in real transcripts.
		return Marker{Kind: KindBlockEnd, Tag: token[len("end_stats_"):]}, ResultMarker

	case strings.HasPrefix(token, "stats_"):
		return Marker{Kind: KindBlockStart, Tag: token[len("stats_"):]}, ResultMarker
	}

	if kind, ok := timedKinds[token]; ok {
		ts, tsOK := extractTimestamp(rest)
		if !tsOK {
			return Marker{Kind: kind, Err: token + ": bad or missing timestamp"}, ResultMalformed
		}
		return Marker{Kind: kind, Timestamp: ts}, ResultMarker
	}

	// A hash prefix with an unrecognized token is ordinary transcript noise.
	return Marker{}, ResultNone
}

func extractTimestamp(text string) (time.Time, bool) {
	raw := reTimestamp.FindString(text)
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(TimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// trimReason strips the ", " or " - " separator the script writes between the
// abort timestamp and the reason text.
func trimReason(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, ",")
	text = strings.TrimPrefix(text, "-")
	return strings.TrimSpace(text)
}

// ParseTestSize converts a test-size token such as "65536", "64k" or "1M"
// into a byte count.
func ParseTestSize(token string) (int64, error) {
	if token == "" {
		return 0, strconv.ErrSyntax
	}
	multiplier := int64(1)
	switch token[len(token)-1] {
	case 'k', 'K':
		multiplier = 1024
		token = token[:len(token)-1]
	case 'm', 'M':
		multiplier = 1024 * 1024
		token = token[:len(token)-1]
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}
