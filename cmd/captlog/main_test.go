package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"captlog/internal/parser"
)

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "captures", name)
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestExitCode(t *testing.T) {
	if got := exitCode(parser.ErrNoMarkers); got != 2 {
		t.Fatalf("unexpected exit code for marker-free input: %d", got)
	}
	wrapped := fmt.Errorf("session.log: %w", parser.ErrNoMarkers)
	if got := exitCode(wrapped); got != 2 {
		t.Fatalf("unexpected exit code for wrapped error: %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("unexpected exit code for generic error: %d", got)
	}
}

func TestReportCommand(t *testing.T) {
	out, errOut, err := runCommand(t, newReportCmd(),
		fixturePath("session1.log"), "--format", "plain")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if !strings.Contains(out, "SUCCESS") {
		t.Fatalf("missing successful call row:\n%s", out)
	}
	if !strings.Contains(out, "aborted: we cant login") {
		t.Fatalf("missing aborted call row:\n%s", out)
	}
	if !strings.Contains(out, "Calls attempted: 2 (1 success, 1 aborted, 0 incomplete)") {
		t.Fatalf("missing summary:\n%s", out)
	}
	if errOut != "" {
		t.Fatalf("unexpected warnings:\n%s", errOut)
	}
}

func TestReportCommand_SkipsMarkerFreeFile(t *testing.T) {
	out, errOut, err := runCommand(t, newReportCmd(),
		fixturePath("noise.log"), fixturePath("session1.log"), "--format", "plain")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(errOut, "no recognizable marker lines") {
		t.Fatalf("missing skip warning:\n%s", errOut)
	}
	if !strings.Contains(out, "Calls attempted: 2") {
		t.Fatalf("good input should still be reported:\n%s", out)
	}
}

func TestReportCommand_SkipsUnreadableFile(t *testing.T) {
	out, errOut, err := runCommand(t, newReportCmd(),
		filepath.Join(t.TempDir(), "missing.log"), fixturePath("session1.log"), "--format", "plain")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(errOut, "missing.log") {
		t.Fatalf("missing per-file warning:\n%s", errOut)
	}
	if !strings.Contains(out, "Calls attempted: 2") {
		t.Fatalf("good input should still be reported:\n%s", out)
	}
}

func TestReportCommand_MultipleFiles(t *testing.T) {
	out, _, err := runCommand(t, newReportCmd(),
		fixturePath("session1.log"), fixturePath("session2.log"), "--format", "plain")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if !strings.Contains(out, "Calls attempted: 4 (2 success, 1 aborted, 1 incomplete)") {
		t.Fatalf("missing combined summary:\n%s", out)
	}
	if !strings.Contains(out, "Connects: 3/4 (75.00%)") {
		t.Fatalf("missing connect ratio:\n%s", out)
	}
	if !strings.Contains(out, "Downloads: 1 success / 1 failed") {
		t.Fatalf("missing download counts:\n%s", out)
	}

	// Aggregates cover only the calls where the metric is defined: three
	// connects, two timed downloads, one computable rate.
	if !strings.Contains(out, "connect secs  : n=3   min=      26 max=      35 mean=    30.3 p95=      35") {
		t.Fatalf("unexpected connect aggregate:\n%s", out)
	}
	if !strings.Contains(out, "download secs : n=2   min=      63 max=      80 mean=    71.5 p95=      80") {
		t.Fatalf("unexpected download aggregate:\n%s", out)
	}
	if !strings.Contains(out, "rate B/s      : n=1") {
		t.Fatalf("unexpected rate aggregate:\n%s", out)
	}
}

func TestReportCommand_AllInputsUnreadable(t *testing.T) {
	_, _, err := runCommand(t, newReportCmd(), filepath.Join(t.TempDir(), "missing.log"))
	if err == nil || !strings.Contains(err.Error(), "no input could be parsed") {
		t.Fatalf("expected a run failure, got %v", err)
	}
	if errors.Is(err, parser.ErrNoMarkers) {
		t.Fatal("an unreadable input must not map to the marker-free exit status")
	}
	if exitCode(err) != 1 {
		t.Fatalf("unexpected exit code: %d", exitCode(err))
	}
}

func TestReportCommand_AllInputsMarkerFree(t *testing.T) {
	_, _, err := runCommand(t, newReportCmd(), fixturePath("noise.log"))
	if !errors.Is(err, parser.ErrNoMarkers) {
		t.Fatalf("expected ErrNoMarkers, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Fatalf("marker-free inputs must map to exit status 2")
	}
}

func TestListCommand(t *testing.T) {
	out, errOut, err := runCommand(t, newListCmd(),
		filepath.Join("..", "..", "testdata", "captures"), "--format", "plain")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "session1.log") || !strings.Contains(out, "session2.log") {
		t.Fatalf("missing captures:\n%s", out)
	}
	if !strings.Contains(errOut, "noise.log") {
		t.Fatalf("expected a skip warning for noise.log:\n%s", errOut)
	}
}

func TestListCommand_BadTimestamp(t *testing.T) {
	_, _, err := runCommand(t, newListCmd(), ".", "--after", "yesterday")
	if err == nil || !strings.Contains(err.Error(), "invalid --after value") {
		t.Fatalf("expected a flag parse error, got %v", err)
	}
}

func TestViewCommand(t *testing.T) {
	out, _, err := runCommand(t, newViewCmd(),
		fixturePath("session1.log"), "--call", "1", "--wrap", "100", "--no-color")
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if !strings.Contains(out, "[#001] success") {
		t.Fatalf("missing call header:\n%s", out)
	}
}

func TestInfoCommand_Text(t *testing.T) {
	out, _, err := runCommand(t, newInfoCmd(), fixturePath("session1.log"))
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "Calls       : 2 (1 success, 1 aborted, 0 incomplete)") {
		t.Fatalf("missing call counts:\n%s", out)
	}
	if !strings.Contains(out, "First Marker: 2025-01-22 22:28:55") {
		t.Fatalf("missing first marker timestamp:\n%s", out)
	}
}

func TestInfoCommand_JSON(t *testing.T) {
	out, _, err := runCommand(t, newInfoCmd(), fixturePath("session1.log"), "--format", "json")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}

	var payload infoPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if payload.Calls != 2 || payload.Succeeded != 1 || payload.Aborted != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Markers == 0 || payload.Lines < payload.Markers {
		t.Fatalf("suspicious line accounting: %+v", payload)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "00:00:00"},
		{-5, "00:00:00"},
		{59, "00:00:59"},
		{61, "00:01:01"},
		{3725, "01:02:05"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Fatalf("formatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
