package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tinoosan/manifest-sync/internal/downloader"
)

const barWidth = 40

// progress renders counters from sync events as single-line bars.
type progress struct {
	mu   sync.Mutex
	w    io.Writer
	last map[downloader.EventType]int
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, last: make(map[downloader.EventType]int)}
}

var progressLabels = map[downloader.EventType]string{
	downloader.EventPlanProgress:       "Checking",
	downloader.EventTransferProgress:   "Transfer",
	downloader.EventValidationProgress: "Integrity",
}

func (p *progress) Report(e downloader.Event) {
	label, ok := progressLabels[e.Type]
	if !ok || e.Progress == nil || e.Progress.Total <= 0 {
		return
	}
	pr := e.Progress
	done := pr.Completed + pr.Failed
	filled := barWidth * done / pr.Total
	if filled > barWidth {
		filled = barWidth
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// redraw only when the bar moves or completes
	key := filled*2 + boolInt(done >= pr.Total)
	if prev, seen := p.last[e.Type]; seen && prev == key {
		return
	}
	p.last[e.Type] = key

	line := fmt.Sprintf("\r%s: [%s%s] %d/%d", label,
		strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), pr.Completed, pr.Total)
	if pr.Failed > 0 {
		line += fmt.Sprintf(" (%d failed)", pr.Failed)
	}
	if done >= pr.Total {
		line += "\n"
		delete(p.last, e.Type)
	}
	_, _ = io.WriteString(p.w, line)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
