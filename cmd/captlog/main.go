// Package main provides the captlog CLI for analyzing modem-call capture logs.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"captlog/internal/call"
	"captlog/internal/parser"
	"captlog/internal/report"
	"captlog/internal/store"
	"captlog/internal/view"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "captlog",
	Short: "Analyze modem test-call capture logs",
	Long: "captlog parses the timestamped capture files recorded by the " +
		"call-automation script and reports connect, download and call-quality " +
		"metrics per call and per session.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newViewCmd())
	rootCmd.AddCommand(newInfoCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "captlog: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a marker-free input set to a distinct status so callers can
// tell "bad input" from ordinary failures.
func exitCode(err error) int {
	if errors.Is(err, parser.ErrNoMarkers) {
		return 2
	}
	return 1
}

func newReportCmd() *cobra.Command {
	var (
		formatFlag string
		noHeader   bool
		nullmodem  bool
	)

	cmd := &cobra.Command{
		Use:   "report <file>...",
		Short: "Per-call breakdown and session summary for capture files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			errs := cmd.ErrOrStderr()
			session := &call.Session{}
			failed := 0
			markerFree := 0

			// A bad input fails only that file; the run fails when every
			// input failed.
			for _, path := range args {
				result, err := parser.ParseFile(path, parser.Options{Direct: nullmodem})
				if err != nil {
					failed++
					if errors.Is(err, parser.ErrNoMarkers) {
						markerFree++
					}
					fmt.Fprintf(errs, "warning: %v\n", err) //nolint:errcheck
					continue
				}
				session.Add(result.Records, result.Warnings)
			}

			for _, warn := range session.Warnings {
				fmt.Fprintf(errs, "warning: %v\n", warn) //nolint:errcheck
			}

			if failed == len(args) {
				if markerFree == failed {
					return fmt.Errorf("%w in any input", parser.ErrNoMarkers)
				}
				return errors.New("no input could be parsed")
			}
			if len(session.Records) == 0 {
				return errors.New("no call records parsed")
			}

			rows := report.BuildRows(session.Records)
			summary := report.BuildSummary(session.Records)
			return report.Write(cmd.OutOrStdout(), rows, summary, formatFlag, !noHeader)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table/plain output")
	flags.BoolVar(&nullmodem, "nullmodem", false, "captures are direct serial connections, not dial-up")

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		formatFlag string
		noHeader   bool
		limit      int
		afterStr   string
		beforeStr  string
	)

	cmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List capture files under a directory, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			var after, before *time.Time
			if afterStr != "" {
				t, err := time.Parse(time.RFC3339, afterStr)
				if err != nil {
					return fmt.Errorf("invalid --after value: %w", err)
				}
				after = &t
			}
			if beforeStr != "" {
				t, err := time.Parse(time.RFC3339, beforeStr)
				if err != nil {
					return fmt.Errorf("invalid --before value: %w", err)
				}
				before = &t
			}

			result, err := store.ListCaptures(store.ListOptions{
				Root:   root,
				After:  after,
				Before: before,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			errs := cmd.ErrOrStderr()
			for _, warn := range result.Warnings {
				fmt.Fprintf(errs, "warning: %v\n", warn) //nolint:errcheck
			}

			return store.WriteCaptures(cmd.OutOrStdout(), result.Captures, !noHeader, formatFlag)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table/plain output")
	flags.IntVar(&limit, "limit", 0, "limit number of captures returned (0 means no limit)")
	flags.StringVar(&afterStr, "after", "", "include captures starting on/after the given RFC3339 timestamp")
	flags.StringVar(&beforeStr, "before", "", "include captures starting on/before the given RFC3339 timestamp")

	return cmd
}

func newViewCmd() *cobra.Command {
	var (
		callNum      int
		noDiag       bool
		wrap         int
		nullmodem    bool
		forceColor   bool
		forceNoColor bool
	)

	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Render a capture file call by call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			outFile, _ := out.(*os.File)
			return view.Run(view.Options{
				Path:         args[0],
				Call:         callNum,
				ShowDiag:     !noDiag,
				Wrap:         wrap,
				Direct:       nullmodem,
				ForceColor:   forceColor,
				ForceNoColor: forceNoColor,
				Out:          out,
				ErrOut:       cmd.ErrOrStderr(),
				OutFile:      outFile,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&callNum, "call", 0, "render only the Nth call (1-based, 0 means all)")
	flags.BoolVar(&noDiag, "no-diag", false, "hide diagnostic block payloads")
	flags.IntVar(&wrap, "wrap", 0, "wrap output at the given column width")
	flags.BoolVar(&nullmodem, "nullmodem", false, "capture is a direct serial connection, not dial-up")
	flags.BoolVar(&forceColor, "color", false, "force-enable ANSI colors even when stdout is not a TTY")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable ANSI colors regardless of terminal detection")

	return cmd
}

type infoPayload struct {
	Path        string `json:"path"`
	Calls       int    `json:"calls"`
	Succeeded   int    `json:"succeeded"`
	Aborted     int    `json:"aborted"`
	Incomplete  int    `json:"incomplete"`
	FirstAt     string `json:"first_at"`
	LastAt      string `json:"last_at"`
	SpanSeconds int    `json:"span_seconds"`
	SpanDisplay string `json:"span_display"`
	Lines       int    `json:"lines"`
	Markers     int    `json:"markers"`
	Warnings    int    `json:"warnings"`
}

func newInfoCmd() *cobra.Command {
	var (
		formatFlag string
		nullmodem  bool
	)

	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show capture file details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := parser.ParseFile(args[0], parser.Options{Direct: nullmodem})
			if err != nil {
				return err
			}

			payload := infoPayload{
				Path:     args[0],
				Calls:    len(result.Records),
				FirstAt:  formatTimestamp(result.FirstAt),
				LastAt:   formatTimestamp(result.LastAt),
				Lines:    result.Stats.Total,
				Markers:  result.Stats.Markers,
				Warnings: len(result.Warnings),
			}
			for _, rec := range result.Records {
				switch rec.Outcome {
				case call.OutcomeSuccess:
					payload.Succeeded++
				case call.OutcomeAborted:
					payload.Aborted++
				default:
					payload.Incomplete++
				}
			}
			span := report.Span(result.FirstAt, result.LastAt)
			payload.SpanSeconds = int(span.Seconds())
			payload.SpanDisplay = formatDuration(payload.SpanSeconds)

			switch strings.ToLower(formatFlag) {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			case "", "text":
				renderInfoText(cmd.OutOrStdout(), payload)
				return nil
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "text", "output format: text or json")
	flags.BoolVar(&nullmodem, "nullmodem", false, "capture is a direct serial connection, not dial-up")

	return cmd
}

func renderInfoText(out io.Writer, payload infoPayload) {
	const labelWidth = 12
	writeKV(out, labelWidth, "Path", payload.Path)
	writeKV(out, labelWidth, "Calls", fmt.Sprintf("%d (%d success, %d aborted, %d incomplete)",
		payload.Calls, payload.Succeeded, payload.Aborted, payload.Incomplete))
	writeKV(out, labelWidth, "First Marker", payload.FirstAt)
	writeKV(out, labelWidth, "Last Marker", payload.LastAt)
	writeKV(out, labelWidth, "Span", payload.SpanDisplay)
	writeKV(out, labelWidth, "Lines", fmt.Sprintf("%d (%d markers)", payload.Lines, payload.Markers))
	writeKV(out, labelWidth, "Warnings", fmt.Sprintf("%d", payload.Warnings))
}

func writeKV(out io.Writer, width int, label string, value string) {
	fmt.Fprintf(out, "%-*s: %s\n", width, label, value) //nolint:errcheck
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02 15:04:05")
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
