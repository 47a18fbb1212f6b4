// Package report computes per-call rows and session-level aggregates from
// parsed call records.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"captlog/internal/call"
	"captlog/internal/diag"
)

// Row is one call in the per-call breakdown. Metrics keep their tri-state so
// every writer renders undefined values as "-" and rejected ones as
// "invalid" instead of a fabricated number.
type Row struct {
	File         string      `json:"file"`
	Call         int         `json:"call"`
	StartedAt    string      `json:"started_at"`
	Protocol     string      `json:"protocol,omitempty"`
	ConnectBPS   call.Metric `json:"connect_bps"`
	ConnectSecs  call.Metric `json:"connect_secs"`
	Download     string      `json:"download"`
	CPS          call.Metric `json:"cps"`
	DownloadSecs call.Metric `json:"download_secs"`
	RateBps      call.Metric `json:"rate_bps"`
	EndSpeed     call.Metric `json:"end_speed"`
	RoundtripMS  call.Metric `json:"roundtrip_ms"`
	CallSecs     call.Metric `json:"call_secs"`
	Outcome      string      `json:"outcome"`
}

// MetricSummary aggregates one metric over the calls where it is defined.
type MetricSummary struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P95   float64 `json:"p95"`
}

// Summary is the session-wide report block.
type Summary struct {
	Attempted       int             `json:"attempted"`
	Succeeded       int             `json:"succeeded"`
	Aborted         int             `json:"aborted"`
	Incomplete      int             `json:"incomplete"`
	Connected       int             `json:"connected"`
	ConnectPct      float64         `json:"connect_pct"`
	DownloadSuccess int             `json:"download_success"`
	DownloadFailure int             `json:"download_failure"`
	Metrics         []MetricSummary `json:"metrics"`
}

const startedAtLayout = "2006-01-02 15:04:05"

// BuildRows converts records into display rows, in session order.
func BuildRows(records []*call.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, buildRow(rec))
	}
	return rows
}

func buildRow(rec *call.Record) Row {
	started := "-"
	if !rec.StartedAt.IsZero() {
		started = rec.StartedAt.Format(startedAtLayout)
	}

	return Row{
		File:         rec.File,
		Call:         rec.Ordinal,
		StartedAt:    started,
		Protocol:     rec.Protocol,
		ConnectBPS:   metricFromCount(rec.ConnectBPS),
		ConnectSecs:  rec.ConnectDuration(),
		Download:     rec.Download.String(),
		CPS:          metricFromCount(rec.ReportedCPS),
		DownloadSecs: rec.DownloadDuration(),
		RateBps:      rec.TransferRate(),
		EndSpeed:     endSpeed(rec),
		RoundtripMS:  roundtripDelay(rec),
		CallSecs:     rec.CallDuration(),
		Outcome:      outcomeText(rec),
	}
}

func outcomeText(rec *call.Record) string {
	if rec.Outcome == call.OutcomeAborted && rec.AbortReason != "" {
		return fmt.Sprintf("aborted: %s", rec.AbortReason)
	}
	return rec.Outcome.String()
}

// endSpeed is the modem-reported ending connect speed from the ATI6 dump.
func endSpeed(rec *call.Record) call.Metric {
	if n, ok := registers(rec, "ati6").Int("speed"); ok {
		return call.DefinedMetric(float64(n))
	}
	return call.Metric{}
}

// roundtripDelay is the audio round trip in milliseconds from the ATI11 dump.
func roundtripDelay(rec *call.Record) call.Metric {
	if n, ok := registers(rec, "ati11").Int("roundtrip_delay"); ok {
		return call.DefinedMetric(float64(n))
	}
	return call.Metric{}
}

func registers(rec *call.Record, tag string) diag.Registers {
	for _, block := range rec.Diag {
		if block.Tag == tag {
			return diag.Parse(tag, block.Lines)
		}
	}
	return nil
}

func metricFromCount(n int) call.Metric {
	if n <= 0 {
		return call.Metric{}
	}
	return call.DefinedMetric(float64(n))
}

// BuildSummary aggregates all records into the session summary. Min, max,
// mean and p95 are computed only over calls where the metric is defined.
func BuildSummary(records []*call.Record) Summary {
	summary := Summary{Attempted: len(records)}

	samples := map[string][]float64{}
	order := []string{}
	collect := func(name string, m call.Metric) {
		if _, seen := samples[name]; !seen {
			order = append(order, name)
			samples[name] = nil
		}
		if m.IsDefined() {
			samples[name] = append(samples[name], m.Value)
		}
	}

	for _, rec := range records {
		switch rec.Outcome {
		case call.OutcomeSuccess:
			summary.Succeeded++
		case call.OutcomeAborted:
			summary.Aborted++
		default:
			summary.Incomplete++
		}
		if rec.Connected() {
			summary.Connected++
		}
		switch rec.Download {
		case call.DownloadSuccess:
			summary.DownloadSuccess++
		case call.DownloadFailure:
			summary.DownloadFailure++
		}

		row := buildRow(rec)
		collect("connect bps", row.ConnectBPS)
		collect("connect secs", row.ConnectSecs)
		collect("download secs", row.DownloadSecs)
		collect("rate B/s", row.RateBps)
		collect("download CPS", row.CPS)
		collect("ending speed", row.EndSpeed)
		collect("roundtrip ms", row.RoundtripMS)
		collect("call secs", row.CallSecs)
	}

	if summary.Attempted > 0 {
		summary.ConnectPct = float64(summary.Connected) / float64(summary.Attempted) * 100
	}

	for _, name := range order {
		summary.Metrics = append(summary.Metrics, summarize(name, samples[name]))
	}
	return summary
}

func summarize(name string, values []float64) MetricSummary {
	out := MetricSummary{Name: name, Count: len(values)}
	if len(values) == 0 {
		return out
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	out.Min = sorted[0]
	out.Max = sorted[len(sorted)-1]
	out.Mean = sum / float64(len(sorted))
	out.P95 = percentile(sorted, 95)
	return out
}

// percentile uses the nearest-rank method on an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Span formats a first/last timestamp pair as a wall-clock duration.
func Span(first, last time.Time) time.Duration {
	if first.IsZero() || last.IsZero() || last.Before(first) {
		return 0
	}
	return last.Sub(first)
}
