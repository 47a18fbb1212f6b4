// Package store enumerates capture files on disk.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"captlog/internal/call"
	"captlog/internal/parser"
)

// CaptureInfo summarizes one capture file for listing.
type CaptureInfo struct {
	Path       string    `json:"path"`
	StartedAt  time.Time `json:"started_at"`
	Calls      int       `json:"calls"`
	Succeeded  int       `json:"succeeded"`
	Aborted    int       `json:"aborted"`
	Incomplete int       `json:"incomplete"`
	FirstAt    time.Time `json:"first_at"`
	LastAt     time.Time `json:"last_at"`
	Warnings   int       `json:"warnings"`
}

// ListOptions controls capture enumeration.
type ListOptions struct {
	Root   string
	After  *time.Time
	Before *time.Time
	Limit  int
}

// ListResult contains the matched captures and non-fatal warnings.
type ListResult struct {
	Captures []CaptureInfo
	Warnings []error
}

var captureExtensions = map[string]bool{
	".log": true,
	".cap": true,
	".txt": true,
}

// ListCaptures walks Root for capture files, newest first. Files that cannot
// be parsed or contain no markers are reported as warnings, not failures.
func ListCaptures(opts ListOptions) (ListResult, error) {
	root := opts.Root
	if root == "" {
		return ListResult{}, errors.New("root directory is required")
	}

	var result ListResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("walk %s: %w", path, walkErr))
			return nil
		}
		if d.IsDir() || !captureExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		parsed, err := parser.ParseFile(path, parser.Options{})
		if err != nil {
			if errors.Is(err, parser.ErrNoMarkers) {
				result.Warnings = append(result.Warnings, fmt.Errorf("skip %s: %w", path, parser.ErrNoMarkers))
				return nil
			}
			result.Warnings = append(result.Warnings, fmt.Errorf("parse %s: %w", path, err))
			return nil
		}

		info := summarizeFile(path, parsed)
		if opts.After != nil && info.StartedAt.Before(*opts.After) {
			return nil
		}
		if opts.Before != nil && info.StartedAt.After(*opts.Before) {
			return nil
		}

		result.Captures = append(result.Captures, info)
		return nil
	})
	if err != nil {
		return result, err
	}

	sort.Slice(result.Captures, func(i, j int) bool {
		return result.Captures[i].StartedAt.After(result.Captures[j].StartedAt)
	})

	if opts.Limit > 0 && len(result.Captures) > opts.Limit {
		result.Captures = result.Captures[:opts.Limit]
	}

	return result, nil
}

func summarizeFile(path string, parsed *parser.FileResult) CaptureInfo {
	info := CaptureInfo{
		Path:     path,
		Calls:    len(parsed.Records),
		FirstAt:  parsed.FirstAt,
		LastAt:   parsed.LastAt,
		Warnings: len(parsed.Warnings),
	}
	if len(parsed.Records) > 0 {
		info.StartedAt = parsed.Records[0].StartedAt
	} else {
		info.StartedAt = parsed.FirstAt
	}
	for _, rec := range parsed.Records {
		switch rec.Outcome {
		case call.OutcomeSuccess:
			info.Succeeded++
		case call.OutcomeAborted:
			info.Aborted++
		default:
			info.Incomplete++
		}
	}
	return info
}
