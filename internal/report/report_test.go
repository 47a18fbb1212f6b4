package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captlog/internal/call"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("01-02-06 15:04:05", value)
	require.NoError(t, err)
	return ts
}

func successRecord(t *testing.T) *call.Record {
	return &call.Record{
		File:            "a.log",
		Ordinal:         1,
		StartedAt:       at(t, "01-22-25 22:28:55"),
		DialAt:          at(t, "01-22-25 22:29:00"),
		ConnectedAt:     at(t, "01-22-25 22:29:26"),
		DownloadStartAt: at(t, "01-22-25 22:30:10"),
		DownloadEndAt:   at(t, "01-22-25 22:31:13"),
		EndCallAt:       at(t, "01-22-25 22:31:40"),
		ExitAt:          at(t, "01-22-25 22:31:45"),
		TestSize:        65536,
		Protocol:        "Y",
		ConnectBPS:      33600,
		Download:        call.DownloadSuccess,
		ReportedCPS:     1041,
		Outcome:         call.OutcomeSuccess,
		Diag: []call.DiagBlock{
			{Tag: "ati6", Lines: []string{"Speed                  31200/31200"}},
			{Tag: "ati11", Lines: []string{"Roundtrip Delay (msec)  6"}},
		},
	}
}

func abortedRecord(t *testing.T) *call.Record {
	return &call.Record{
		File:        "a.log",
		Ordinal:     2,
		StartedAt:   at(t, "01-22-25 22:33:31"),
		DialAt:      at(t, "01-22-25 22:33:31"),
		ConnectedAt: at(t, "01-22-25 22:34:01"),
		AbortedAt:   at(t, "01-22-25 22:38:14"),
		TestSize:    65536,
		Protocol:    "Y",
		ConnectBPS:  31200,
		AbortReason: "we cant login",
		Outcome:     call.OutcomeAborted,
	}
}

func incompleteRecord(t *testing.T) *call.Record {
	return &call.Record{
		File:      "b.log",
		Ordinal:   1,
		StartedAt: at(t, "01-23-25 09:00:00"),
		DialAt:    at(t, "01-23-25 09:00:05"),
		TestSize:  65536,
		Outcome:   call.OutcomeIncomplete,
	}
}

func TestBuildRows(t *testing.T) {
	rows := BuildRows([]*call.Record{successRecord(t), abortedRecord(t), incompleteRecord(t)})
	require.Len(t, rows, 3)

	ok := rows[0]
	assert.Equal(t, "2025-01-22 22:28:55", ok.StartedAt)
	assert.Equal(t, "SUCCESS", ok.Download)
	assert.Equal(t, "success", ok.Outcome)
	assert.Equal(t, 26.0, ok.ConnectSecs.Value)
	assert.Equal(t, 63.0, ok.DownloadSecs.Value)
	assert.InDelta(t, 1040.25, ok.RateBps.Value, 0.01)
	// Register-derived columns come from the diag dumps.
	assert.Equal(t, 31200.0, ok.EndSpeed.Value)
	assert.Equal(t, 6.0, ok.RoundtripMS.Value)

	aborted := rows[1]
	assert.Equal(t, "aborted: we cant login", aborted.Outcome)
	assert.Equal(t, 30.0, aborted.ConnectSecs.Value)
	assert.Equal(t, call.NotApplicable, aborted.DownloadSecs.State)
	assert.Equal(t, call.NotApplicable, aborted.RateBps.State)
	assert.Equal(t, call.NotApplicable, aborted.EndSpeed.State)

	incomplete := rows[2]
	assert.Equal(t, "incomplete", incomplete.Outcome)
	assert.Equal(t, call.NotApplicable, incomplete.ConnectSecs.State)
	assert.Equal(t, call.NotApplicable, incomplete.ConnectBPS.State)
	assert.Equal(t, call.NotApplicable, incomplete.CallSecs.State)
}

func TestBuildSummary(t *testing.T) {
	summary := BuildSummary([]*call.Record{successRecord(t), abortedRecord(t), incompleteRecord(t)})

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Aborted)
	assert.Equal(t, 1, summary.Incomplete)
	assert.Equal(t, 2, summary.Connected)
	assert.InDelta(t, 66.67, summary.ConnectPct, 0.01)
	assert.Equal(t, 1, summary.DownloadSuccess)
	assert.Equal(t, 0, summary.DownloadFailure)

	byName := map[string]MetricSummary{}
	for _, m := range summary.Metrics {
		byName[m.Name] = m
	}

	connect := byName["connect secs"]
	assert.Equal(t, 2, connect.Count)
	assert.Equal(t, 26.0, connect.Min)
	assert.Equal(t, 30.0, connect.Max)
	assert.Equal(t, 28.0, connect.Mean)
	assert.Equal(t, 30.0, connect.P95)

	rate := byName["rate B/s"]
	assert.Equal(t, 1, rate.Count)
	assert.InDelta(t, 1040.25, rate.Mean, 0.01)

	roundtrip := byName["roundtrip ms"]
	assert.Equal(t, 1, roundtrip.Count)
	assert.Equal(t, 6.0, roundtrip.Mean)
}

func TestBuildSummary_UndefinedMetricNotAveraged(t *testing.T) {
	// Only the incomplete record: nothing connected, so no timing metric
	// may produce a number.
	summary := BuildSummary([]*call.Record{incompleteRecord(t)})

	for _, m := range summary.Metrics {
		assert.Equal(t, 0, m.Count, "metric %s should have no samples", m.Name)
		assert.Equal(t, 0.0, m.Mean, "metric %s mean must stay zero-valued and be rendered N/A", m.Name)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	assert.Equal(t, 100.0, percentile(sorted, 95))
	assert.Equal(t, 50.0, percentile(sorted, 50))
	assert.Equal(t, 10.0, percentile(sorted, 1))
	assert.Equal(t, 0.0, percentile(nil, 95))
}
