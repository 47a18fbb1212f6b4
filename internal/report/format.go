package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Write renders the per-call breakdown and the session summary to w in the
// requested format: table, plain, json, or jsonl.
func Write(w io.Writer, rows []Row, summary Summary, format string, includeHeader bool) error {
	switch strings.ToLower(format) {
	case "", "table":
		if err := writeRowsTable(w, rows, includeHeader); err != nil {
			return err
		}
		fmt.Fprintln(w)
		return writeSummaryText(w, summary)
	case "plain":
		if err := writeRowsPlain(w, rows, includeHeader); err != nil {
			return err
		}
		fmt.Fprintln(w)
		return writeSummaryText(w, summary)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Calls   []Row   `json:"calls"`
			Summary Summary `json:"summary"`
		}{Calls: rows, Summary: summary})
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return enc.Encode(summary)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeRowsTable(w io.Writer, rows []Row, includeHeader bool) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 8, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 9, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 10, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 11, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 12, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 13, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 40},
	})

	if includeHeader {
		tw.AppendHeader(table.Row{
			"Started", "File", "#", "BPS", "Conn s", "Download", "CPS",
			"DL s", "Rate B/s", "Speed", "RTT ms", "Call s", "Outcome",
		})
	}

	for _, row := range rows {
		tw.AppendRow(table.Row{
			row.StartedAt,
			row.File,
			row.Call,
			row.ConnectBPS.Format(0),
			row.ConnectSecs.Format(0),
			row.Download,
			row.CPS.Format(0),
			row.DownloadSecs.Format(0),
			row.RateBps.Format(0),
			row.EndSpeed.Format(0),
			row.RoundtripMS.Format(0),
			row.CallSecs.Format(0),
			row.Outcome,
		})
	}

	if len(rows) == 0 {
		tw.AppendRow(table.Row{"-", "(no calls)", 0, "-", "-", "-", "-", "-", "-", "-", "-", "-", "-"})
	}

	_ = tw.Render()
	return nil
}

func writeRowsPlain(w io.Writer, rows []Row, includeHeader bool) error {
	if includeHeader {
		header := "started_at\tfile\tcall\tconnect_bps\tconnect_secs\tdownload\tcps\tdownload_secs\trate_bps\tend_speed\troundtrip_ms\tcall_secs\toutcome"
		if _, err := fmt.Fprintln(w, header); err != nil {
			return err
		}
	}

	for _, row := range rows {
		line := fmt.Sprintf(
			"%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s",
			row.StartedAt,
			row.File,
			row.Call,
			row.ConnectBPS.Format(0),
			row.ConnectSecs.Format(0),
			row.Download,
			row.CPS.Format(0),
			row.DownloadSecs.Format(0),
			row.RateBps.Format(0),
			row.EndSpeed.Format(0),
			row.RoundtripMS.Format(0),
			row.CallSecs.Format(0),
			escapeNewlines(row.Outcome),
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeSummaryText(w io.Writer, summary Summary) error {
	fmt.Fprintf(w, "Calls attempted: %d (%d success, %d aborted, %d incomplete)\n",
		summary.Attempted, summary.Succeeded, summary.Aborted, summary.Incomplete)
	fmt.Fprintf(w, "Connects: %d/%d (%.2f%%)\n",
		summary.Connected, summary.Attempted, summary.ConnectPct)
	fmt.Fprintf(w, "Downloads: %d success / %d failed\n",
		summary.DownloadSuccess, summary.DownloadFailure)

	for _, m := range summary.Metrics {
		if m.Count == 0 {
			fmt.Fprintf(w, "%-14s: N/A\n", m.Name)
			continue
		}
		fmt.Fprintf(w, "%-14s: n=%-3d min=%8.0f max=%8.0f mean=%8.1f p95=%8.0f\n",
			m.Name, m.Count, m.Min, m.Max, m.Mean, m.P95)
	}
	return nil
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
