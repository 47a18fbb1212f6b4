// Package diag extracts register values from captured modem status dumps.
//
// A USR Courier answers ATI6 and ATI11 with fixed-width key/value tables,
// sometimes two pairs per row. Only the tags with a known key mapping are
// decoded; other dumps (ATY11, AT&V1) stay raw payload on the call record.
package diag

import (
	"regexp"
	"strconv"
	"strings"
)

// Value is one decoded register. Numeric registers also keep their raw text.
type Value struct {
	Text    string
	Num     int64
	Numeric bool
}

// Registers maps canonical register names to decoded values.
type Registers map[string]Value

// Int returns a numeric register value.
func (r Registers) Int(key string) (int64, bool) {
	v, ok := r[key]
	if !ok || !v.Numeric {
		return 0, false
	}
	return v.Num, true
}

// Text returns a register's text value.
func (r Registers) Text(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	return v.Text, true
}

// ati6 is the link-diagnostics table (transfer counters, ending speed).
var ati6 = map[string]string{
	"Chars sent":           "chars_tx",
	"Chars Received":       "chars_rx",
	"Chars lost":           "chars_lost",
	"Octets sent":          "octets_tx",
	"Octets Received":      "octets_rx",
	"Blocks sent":          "blocks_tx",
	"Blocks Received":      "blocks_rx",
	"Blocks resent":        "blocks_resent",
	"Retrains Requested":   "retr_req",
	"Retrains Granted":     "retr_granted",
	"Line Reversals":       "line_reversals",
	"Blers":                "blers",
	"Link Timeouts":        "link_timeouts",
	"Link Naks":            "link_naks",
	"Data Compression":     "data_compression",
	"Equalization":         "equalization",
	"Fallback":             "fallback",
	"Protocol":             "protocol",
	"Speed":                "speed",
	"Last Call":            "last_call",
	"Disconnect Reason is": "disconnect_reason",
}

// ati11 is the line-diagnostics table (modulation, SNR, echo delay).
var ati11 = map[string]string{
	"Modulation":              "modulation",
	"Carrier Freq ( Hz )":     "carrier_freq",
	"Symbol Rate":             "symbol_rate",
	"Trellis Code":            "trellis_code",
	"Nonlinear Encoding":      "nonlinear_encoding",
	"Precoding":               "precoding",
	"Shaping":                 "shaping",
	"Preemphasis Index":       "preemphasis_index",
	"Recv/Xmit Level (-dBm)":  "recv_xmit_level",
	"SNR             ( dB )":  "snr",
	"Near Echo Loss  ( dB )":  "near_echo_loss",
	"Far Echo Loss   ( dB )":  "far_echo_loss",
	"Roundtrip Delay (msec)":  "roundtrip_delay",
	"Round Trip Delay (msec)": "roundtrip_delay",
	"Timing Offset   ( ppm)":  "timing_offset",
	"Carrier Offset  ( ppm)":  "carrier_offset",
	"RX Upshifts":             "rx_upshifts",
	"RX Downshifts":           "rx_downshifts",
	"TX Speedshifts":          "tx_speedshifts",
	"x2 Status":               "x2_status",
}

var mappings = map[string]map[string]string{
	"ati6":  ati6,
	"ati11": ati11,
}

// Row forms observed in real dumps, tried in order: two key/number pairs on
// one row, a single key with a number, a single key with free text. Values
// like "33600/31200" decode as their leading number.
var (
	rePairRow = regexp.MustCompile(`^(.+?)\s+(\d+)\s+(.+?)\s+(\d+)`)
	reNumRow  = regexp.MustCompile(`^(.+?)\s\s+(\d+)`)
	reTextRow = regexp.MustCompile(`^(.+?)\s\s+(.+)`)
	reBanner  = regexp.MustCompile(`^USRobotics`)
)

// Known reports whether a tag has a register mapping.
func Known(tag string) bool {
	_, ok := mappings[tag]
	return ok
}

// Parse decodes the raw payload lines of a diagnostic block. Rows with
// unmapped keys are ignored; an unmapped tag yields nil.
func Parse(tag string, lines []string) Registers {
	mapping, ok := mappings[tag]
	if !ok || len(lines) == 0 {
		return nil
	}

	regs := make(Registers)
	for _, line := range lines {
		if reBanner.MatchString(line) {
			continue
		}

		if m := rePairRow.FindStringSubmatch(line); m != nil {
			regs.setNumeric(mapping, m[1], m[2])
			regs.setNumeric(mapping, m[3], m[4])
			continue
		}
		if m := reNumRow.FindStringSubmatch(line); m != nil {
			regs.setNumeric(mapping, m[1], m[2])
			continue
		}
		if m := reTextRow.FindStringSubmatch(line); m != nil {
			if key, ok := mapping[strings.TrimSpace(m[1])]; ok {
				regs[key] = Value{Text: strings.TrimSpace(m[2])}
			}
		}
	}
	return regs
}

func (r Registers) setNumeric(mapping map[string]string, rawKey, rawValue string) {
	key, ok := mapping[strings.TrimSpace(rawKey)]
	if !ok {
		return
	}
	n, err := strconv.ParseInt(rawValue, 10, 64)
	if err != nil {
		r[key] = Value{Text: rawValue}
		return
	}
	r[key] = Value{Text: rawValue, Num: n, Numeric: true}
}
