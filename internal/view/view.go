// Package view renders a capture file call by call for terminal inspection.
package view

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"captlog/internal/call"
	"captlog/internal/marker"
	"captlog/internal/parser"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Options defines the configurable parameters for rendering a capture.
type Options struct {
	Path         string
	Call         int // 1-based call selection, 0 renders every call
	ShowDiag     bool
	Wrap         int
	Direct       bool
	ForceColor   bool
	ForceNoColor bool
	Out          io.Writer
	ErrOut       io.Writer
	OutFile      *os.File
}

// Run parses and renders the capture according to the provided options.
func Run(opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}
	if opts.ForceColor && opts.ForceNoColor {
		return fmt.Errorf("--color and --no-color cannot be used together")
	}

	result, err := parser.ParseFile(opts.Path, parser.Options{Direct: opts.Direct})
	if err != nil {
		return err
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(opts.ErrOut, "warning: %v\n", warn) //nolint:errcheck
	}

	records := result.Records
	if opts.Call > 0 {
		if opts.Call > len(records) {
			return fmt.Errorf("capture has %d calls, no call #%d", len(records), opts.Call)
		}
		records = records[opts.Call-1 : opts.Call]
	}

	useColor := resolveColorChoice(opts)
	width := determineWidth(opts.OutFile, opts.Wrap)

	var lines []string
	for idx, rec := range records {
		if idx > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, renderRecord(rec, opts.ShowDiag, width, useColor)...)
	}

	if len(lines) == 0 {
		_, err := fmt.Fprintln(opts.Out, "(no calls)")
		return err
	}

	if opts.OutFile != nil && isatty.IsTerminal(opts.OutFile.Fd()) {
		return pipeThroughPager(lines, useColor)
	}
	return writeLines(opts.Out, lines)
}

func renderRecord(rec *call.Record, showDiag bool, width int, useColor bool) []string {
	headerPlain := fmt.Sprintf("[#%03d] %s | %s", rec.Ordinal, rec.Outcome, rec.StartedAt.Format(marker.TimeLayout))

	outcomeText := rec.Outcome.String()
	tsText := rec.StartedAt.Format(marker.TimeLayout)
	if useColor {
		outcomeText = colorize(outcomeColor(rec.Outcome), outcomeText)
		tsText = colorize(ansiTimestamp, tsText)
	}

	lines := []string{
		fmt.Sprintf("[#%03d] %s | %s", rec.Ordinal, outcomeText, tsText),
		strings.Repeat("-", min(len(headerPlain), width)),
	}

	prefix := "| "
	if useColor {
		prefix = colorize(ansiSeparator, "|") + " "
	}

	appendLine := func(format string, args ...any) {
		lines = append(lines, prefix+fmt.Sprintf(format, args...))
	}

	timeline := []struct {
		label string
		at    time.Time
		extra string
	}{
		{"start_qmodem", rec.StartedAt, sessionExtra(rec)},
		{"start_dial", rec.DialAt, ""},
		{"connected", rec.ConnectedAt, bannerExtra(rec)},
		{"start_download", rec.DownloadStartAt, ""},
		{"end_download", rec.DownloadEndAt, downloadExtra(rec)},
		{"end_call", rec.EndCallAt, ""},
		{"aborting", rec.AbortedAt, rec.AbortReason},
		{"exit_qmodem", rec.ExitAt, ""},
	}
	for _, entry := range timeline {
		if entry.at.IsZero() {
			continue
		}
		text := entry.at.Format(marker.TimeLayout)
		if entry.extra != "" {
			text += "  " + entry.extra
		}
		appendLine("%-15s %s", entry.label, text)
	}

	appendLine("connect: %ss  download: %ss  rate: %s B/s  call: %ss",
		rec.ConnectDuration().Format(0),
		rec.DownloadDuration().Format(0),
		rec.TransferRate().Format(0),
		rec.CallDuration().Format(0))

	if rec.TrailingNoise > 0 {
		appendLine("(%d markers ignored after abort)", rec.TrailingNoise)
	}

	for _, block := range rec.Diag {
		note := ""
		if block.Unterminated {
			note = " (unterminated)"
		}
		appendLine("diag %s, %d lines%s", block.Tag, len(block.Lines), note)
		if !showDiag {
			continue
		}
		for _, raw := range block.Lines {
			appendLine("  %s", truncateLine(raw, width-4))
		}
	}

	return lines
}

func sessionExtra(rec *call.Record) string {
	parts := []string{}
	if rec.TestSize > 0 {
		parts = append(parts, fmt.Sprintf("testsize:%d", rec.TestSize))
	}
	if rec.Protocol != "" {
		parts = append(parts, "proto:"+rec.Protocol)
	}
	if rec.Direct {
		parts = append(parts, "direct serial")
	}
	return strings.Join(parts, " ")
}

func bannerExtra(rec *call.Record) string {
	if rec.ConnectBPS == 0 {
		return ""
	}
	text := fmt.Sprintf("%d bps", rec.ConnectBPS)
	if rec.Reliable {
		text += " reliable"
	}
	if rec.ANSIDetected {
		text += " ansi"
	}
	return text
}

func downloadExtra(rec *call.Record) string {
	if rec.Download == call.DownloadUnknown {
		return ""
	}
	text := rec.Download.String()
	if rec.ReportedCPS > 0 {
		text += fmt.Sprintf(" CPS=%d", rec.ReportedCPS)
	}
	return text
}

func truncateLine(line string, width int) string {
	if width <= 0 || len(line) <= width {
		return line
	}
	runes := []rune(line)
	if len(runes) <= width {
		return line
	}
	return string(runes[:width-1]) + "…"
}

func resolveColorChoice(opts Options) bool {
	if opts.ForceColor {
		return true
	}
	if opts.ForceNoColor {
		return false
	}
	if opts.OutFile == nil {
		return false
	}
	return isatty.IsTerminal(opts.OutFile.Fd())
}

func determineWidth(out *os.File, wrap int) int {
	if wrap > 0 {
		return wrap
	}
	if out != nil {
		if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if colsStr := os.Getenv("COLUMNS"); colsStr != "" {
		if v, err := strconv.Atoi(colsStr); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func pipeThroughPager(lines []string, colorEnabled bool) error {
	text := strings.Join(lines, "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	pagerCmd := os.Getenv("PAGER")
	var cmd *exec.Cmd
	if pagerCmd == "" {
		args := []string{"less"}
		if colorEnabled {
			args = append(args, "-R")
		}
		cmd = exec.Command(args[0], args[1:]...) // #nosec G204
	} else {
		cmd = exec.Command("sh", "-c", pagerCmd) // #nosec G204
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create pager pipe: %w", err)
	}
	go func() {
		defer stdin.Close()
		io.WriteString(stdin, text) //nolint:errcheck
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run pager: %w", err)
	}
	return nil
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

const (
	ansiReset      = "\x1b[0m"
	ansiTimestamp  = "\x1b[38;5;245m"
	ansiSeparator  = "\x1b[38;5;240m"
	ansiSuccess    = "\x1b[38;5;41m"
	ansiAborted    = "\x1b[38;5;203m"
	ansiIncomplete = "\x1b[38;5;220m"
)

func outcomeColor(outcome call.Outcome) string {
	switch outcome {
	case call.OutcomeSuccess:
		return ansiSuccess
	case call.OutcomeAborted:
		return ansiAborted
	default:
		return ansiIncomplete
	}
}

func colorize(code, text string) string {
	return code + text + ansiReset
}
