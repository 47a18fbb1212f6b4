package store

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timestampLayout = "2006-01-02 15:04:05"

// WriteCaptures writes the capture listing to w in the requested format.
func WriteCaptures(w io.Writer, items []CaptureInfo, includeHeader bool, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeCapturesTable(w, items, includeHeader)
	case "plain":
		return writeCapturesPlain(w, items, includeHeader)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeCapturesTable(w io.Writer, items []CaptureInfo, includeHeader bool) error {
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
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 8, Align: text.AlignRight, AlignHeader: text.AlignCenter},
	})

	if includeHeader {
		tw.AppendHeader(table.Row{"Started", "File", "Calls", "OK", "Aborted", "Incomplete", "Span", "Warnings"})
	}

	for _, item := range items {
		tw.AppendRow(table.Row{
			formatTimestamp(item.StartedAt),
			item.Path,
			item.Calls,
			item.Succeeded,
			item.Aborted,
			item.Incomplete,
			formatSpan(item.FirstAt, item.LastAt),
			item.Warnings,
		})
	}

	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "(no captures)", 0, 0, 0, 0, "00:00:00", 0})
	}

	_ = tw.Render()
	return nil
}

func writeCapturesPlain(w io.Writer, items []CaptureInfo, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "started_at\tfile\tcalls\tok\taborted\tincomplete\tspan\twarnings"); err != nil {
			return err
		}
	}
	for _, item := range items {
		line := fmt.Sprintf("%s\t%s\t%d\t%d\t%d\t%d\t%s\t%d",
			formatTimestamp(item.StartedAt),
			item.Path,
			item.Calls,
			item.Succeeded,
			item.Aborted,
			item.Incomplete,
			formatSpan(item.FirstAt, item.LastAt),
			item.Warnings,
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(timestampLayout)
}

func formatSpan(first, last time.Time) string {
	if first.IsZero() || last.IsZero() || last.Before(first) {
		return "00:00:00"
	}
	seconds := int(last.Sub(first).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
