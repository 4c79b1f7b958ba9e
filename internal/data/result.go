package data

import (
	"encoding/json"
	"io"
	"time"
)

// Result accumulates the statistics of one full sync run. It is created at
// the start of a run, mutated only by the orchestrator and returned once.
type Result struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Total is the number of manifest paths considered.
	Total int `json:"total"`
	// Skipped counts files already complete on disk.
	Skipped int `json:"skipped"`
	// Planned is the size of the initial transfer set, session URLs included.
	Planned int `json:"planned"`
	// Attempted is the number of files handed to the first transfer cycle.
	Attempted int `json:"attempted"`
	// ExitCode is the exit status of the last transfer invocation.
	ExitCode int `json:"exitCode"`

	IntegrityFailures int      `json:"integrityFailures"`
	IntegrityRetries  int      `json:"integrityRetries"`
	FailedFiles       []string `json:"failedFiles,omitempty"`
	PrecheckFailures  int      `json:"precheckFailures,omitempty"`

	// Conflicts lists manifest paths whose target name is occupied by
	// something other than a regular file.
	Conflicts []string `json:"conflicts,omitempty"`
	// Collisions lists manifest paths dropped because an earlier path maps
	// to the same local file name.
	Collisions []string `json:"collisions,omitempty"`

	DryRun      bool `json:"dryRun,omitempty"`
	Interrupted bool `json:"interrupted,omitempty"`
}

// OK reports whether the run finished with nothing left for an operator to
// look at.
func (r *Result) OK() bool {
	return r.ExitCode == 0 && r.IntegrityFailures == 0 && len(r.Conflicts) == 0 && !r.Interrupted
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) ToJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Run is a persisted history entry for a finished sync.
type Run struct {
	ID          string    `json:"id"`
	ManifestURL string    `json:"manifestUrl"`
	DownloadDir string    `json:"downloadDir"`
	Result      Result    `json:"result"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r *Run) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(r) }

type Runs []*Run

func (rs Runs) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(rs) }

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Result.FailedFiles = append([]string(nil), r.Result.FailedFiles...)
	c.Result.Conflicts = append([]string(nil), r.Result.Conflicts...)
	c.Result.Collisions = append([]string(nil), r.Result.Collisions...)
	return &c
}

// Clone returns deep copies of all runs.
func (rs Runs) Clone() Runs {
	out := make(Runs, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Clone())
	}
	return out
}
