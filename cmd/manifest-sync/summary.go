package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/tinoosan/manifest-sync/internal/data"
)

// printSummary writes the human readable end-of-run report.
func printSummary(w io.Writer, res *data.Result) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	if res.DryRun {
		fmt.Fprintln(w, "Sync Summary (dry run)")
	} else {
		fmt.Fprintln(w, "Sync Summary")
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total files in manifest: %d\n", res.Total)
	fmt.Fprintf(w, "Already complete:        %d\n", res.Skipped)
	if res.DryRun {
		fmt.Fprintf(w, "Would download:          %d\n", res.Planned)
		return
	}
	fmt.Fprintf(w, "Downloaded/resumed:      %d\n", res.Attempted)
	if res.PrecheckFailures > 0 {
		fmt.Fprintf(w, "Failed pre-check:        %d\n", res.PrecheckFailures)
	}
	if res.IntegrityRetries > 0 {
		fmt.Fprintf(w, "Integrity retries:       %d\n", res.IntegrityRetries)
	}
	if res.IntegrityFailures > 0 {
		fmt.Fprintf(w, "Integrity failures:      %d\n", res.IntegrityFailures)
		for _, name := range res.FailedFiles {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if len(res.Collisions) > 0 {
		fmt.Fprintf(w, "Name collisions:         %d (later paths not downloaded)\n", len(res.Collisions))
	}
	if len(res.Conflicts) > 0 {
		fmt.Fprintf(w, "Blocked targets:         %d (remove these entries and run again)\n", len(res.Conflicts))
		for _, p := range res.Conflicts {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	fmt.Fprintf(w, "Duration:                %s\n", res.Duration().Round(time.Millisecond))

	switch {
	case res.Interrupted:
		fmt.Fprintln(w, "Interrupted. Run again to resume.")
	case res.ExitCode != 0:
		fmt.Fprintf(w, "aria2c exit code: %d\n", res.ExitCode)
		fmt.Fprintln(w, "Session saved. Run again to resume incomplete downloads.")
	case !res.OK():
		fmt.Fprintln(w, "Sync completed with errors.")
	default:
		fmt.Fprintln(w, "All files synced successfully!")
	}
}

// writeSummaryFile replaces path with the JSON form of res in one step.
func writeSummaryFile(path string, res *data.Result) error {
	var buf bytes.Buffer
	if err := res.ToJSON(&buf); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buf)
}
