// Package orchestrator drives a complete sync: plan, transfer, verify and
// retry corrupted files until they converge or the retry budget runs out.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/downloader"
	"github.com/tinoosan/manifest-sync/internal/metrics"
	"github.com/tinoosan/manifest-sync/internal/planner"
	"github.com/tinoosan/manifest-sync/internal/reconciler"
	"github.com/tinoosan/manifest-sync/internal/runid"
)

// DefaultMaxIntegrityRetries bounds transfer-then-verify cycles when Options
// does not.
const DefaultMaxIntegrityRetries = 3

// Verifier validates transferred files and returns the names that failed.
type Verifier interface {
	Verify(ctx context.Context, dir string, names []string, maxWorkers int) []string
}

// Options controls a single run.
type Options struct {
	BaseURL     string
	DownloadDir string
	SessionFile string

	// IntegrityCheck enables verification after each successful transfer.
	IntegrityCheck bool
	// MaxIntegrityRetries is the number of transfer cycles allowed for a
	// set of failing files. Values below 1 are treated as 1.
	MaxIntegrityRetries int
	// MaxWorkers bounds concurrent validations. Zero selects the verifier
	// default.
	MaxWorkers int
	// RunIntegrity validates files already on disk before planning.
	RunIntegrity bool
	// DryRun stops after planning without touching the download directory.
	DryRun bool
}

// state is the terminal state a run reached.
type state int

const (
	stateDone state = iota
	stateConverged
	stateBudgetExhausted
	stateTransferFailed
	stateInterrupted
)

func (s state) String() string {
	switch s {
	case stateConverged:
		return "converged"
	case stateBudgetExhausted:
		return "retry_budget_exhausted"
	case stateTransferFailed:
		return "transfer_failed"
	case stateInterrupted:
		return "interrupted"
	default:
		return "done"
	}
}

// Orchestrator owns the result of a run. It is not safe for concurrent Runs.
type Orchestrator struct {
	planner    *planner.Planner
	reconciler *reconciler.Reconciler
	transferer downloader.Transferer
	verifier   Verifier
	rep        downloader.Reporter
	log        *slog.Logger
	opts       Options

	now func() time.Time
}

// New wires the components of a sync run.
func New(p *planner.Planner, r *reconciler.Reconciler, t downloader.Transferer, v Verifier, opts Options, rep downloader.Reporter, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxIntegrityRetries < 1 {
		opts.MaxIntegrityRetries = 1
	}
	return &Orchestrator{
		planner:    p,
		reconciler: r,
		transferer: t,
		verifier:   v,
		rep:        downloader.Or(rep),
		log:        log,
		opts:       opts,
		now:        time.Now,
	}
}

// Run syncs paths into the download directory and returns the statistics of
// the run. It never fails: every outcome is described by the Result. The
// context is only consulted between cycles; a transfer in flight runs to
// completion.
func (o *Orchestrator) Run(ctx context.Context, paths []string) *data.Result {
	res := &data.Result{
		StartedAt: o.now(),
		Total:     len(paths),
		DryRun:    o.opts.DryRun,
	}
	if id, ok := runid.From(ctx); ok {
		res.RunID = id
	}
	st := o.run(ctx, paths, res)

	res.FinishedAt = o.now()
	metrics.IntegrityFailures.Set(float64(res.IntegrityFailures))
	o.log.Info("sync finished",
		"state", st.String(),
		"total", res.Total,
		"skipped", res.Skipped,
		"attempted", res.Attempted,
		"exit_code", res.ExitCode,
		"integrity_retries", res.IntegrityRetries,
		"integrity_failures", res.IntegrityFailures,
		"dur_ms", res.Duration().Milliseconds())
	return res
}

func (o *Orchestrator) run(ctx context.Context, paths []string, res *data.Result) state {
	dir := o.opts.DownloadDir
	log := o.log

	if o.opts.RunIntegrity && !o.opts.DryRun {
		existing := o.planner.Existing(paths, dir)
		if len(existing) > 0 {
			log.Info("checking integrity of existing files", "files", len(existing))
			failed := o.verifier.Verify(ctx, dir, existing, o.opts.MaxWorkers)
			res.PrecheckFailures = len(failed)
			if len(failed) > 0 {
				log.Warn("existing files failed integrity check", "failed", len(failed))
			}
		}
	}

	plan := o.planner.Plan(paths, o.opts.BaseURL, dir)
	recovered := o.reconciler.Merge(plan, o.reconciler.LoadPendingURLs(o.opts.SessionFile))
	// files resumed from the session are no longer counted complete
	res.Skipped = len(plan.Sizes)
	res.Conflicts = plan.Conflicts
	res.Collisions = plan.Collisions
	tasks := plan.Tasks
	res.Planned = len(tasks)
	metrics.PlannedFiles.Set(float64(len(tasks)))
	o.rep.Report(downloader.Event{
		Type: downloader.EventPlanComputed,
		Plan: &downloader.PlanSummary{
			Total:     res.Total,
			Skipped:   res.Skipped,
			ToFetch:   len(tasks),
			Recovered: recovered,
		},
	})
	log.Info("plan computed", "total", res.Total, "skipped", res.Skipped, "to_fetch", len(tasks), "recovered", recovered)

	if o.opts.DryRun {
		return stateDone
	}
	if len(tasks) == 0 {
		o.reconciler.Remove(o.opts.SessionFile)
		return stateDone
	}

	res.Attempted = len(tasks)
	urlByName := make(map[string]string, len(tasks))
	for _, t := range tasks {
		urlByName[t.Name] = t.URL
	}

	st := o.transferLoop(ctx, tasks, urlByName, res)

	if res.ExitCode == 0 && st != stateInterrupted {
		o.reconciler.Remove(o.opts.SessionFile)
	}
	return st
}

func (o *Orchestrator) transferLoop(ctx context.Context, tasks data.Tasks, urlByName map[string]string, res *data.Result) state {
	dir := o.opts.DownloadDir
	log := o.log
	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			log.Warn("sync interrupted before transfer", "cycle", cycle, "err", err)
			res.Interrupted = true
			return stateInterrupted
		}

		o.rep.Report(downloader.Event{
			Type:  downloader.EventTransferCycleStarted,
			Cycle: &downloader.Cycle{Number: cycle, Files: len(tasks)},
		})
		log.Info("starting transfer", "cycle", cycle, "files", len(tasks))

		code, err := o.transferer.Transfer(ctx, tasks)
		res.ExitCode = code
		if err != nil {
			log.Error("transfer could not run", "cycle", cycle, "err", err)
		}
		finished := &downloader.Cycle{Number: cycle, Files: len(tasks), ExitCode: code}

		if code != 0 {
			log.Warn("transfer exited with error, session kept for resume", "cycle", cycle, "exit_code", code)
			o.reportCycle(finished)
			return stateTransferFailed
		}
		if !o.opts.IntegrityCheck {
			o.reportCycle(finished)
			return stateConverged
		}

		failed := o.verifier.Verify(ctx, dir, tasks.Names(), o.opts.MaxWorkers)
		sort.Strings(failed)
		finished.Verified = true
		finished.Failed = failed
		o.reportCycle(finished)

		if len(failed) == 0 {
			return stateConverged
		}
		res.IntegrityRetries++
		if res.IntegrityRetries >= o.opts.MaxIntegrityRetries {
			res.IntegrityFailures = len(failed)
			res.FailedFiles = failed
			log.Error("files still failing integrity check after retries",
				"retries", res.IntegrityRetries, "failed", len(failed), "files", failed)
			return stateBudgetExhausted
		}

		tasks = rebuild(failed, urlByName)
		log.Warn("re-fetching files that failed integrity check",
			"retry", res.IntegrityRetries, "max", o.opts.MaxIntegrityRetries, "files", len(tasks))
	}
}

func (o *Orchestrator) reportCycle(c *downloader.Cycle) {
	o.rep.Report(downloader.Event{Type: downloader.EventCycleFinished, Cycle: c})
}

// rebuild pairs failing names with the URLs they were originally fetched
// from. names is expected to be sorted.
func rebuild(names []string, urlByName map[string]string) data.Tasks {
	tasks := make(data.Tasks, 0, len(names))
	for _, n := range names {
		if u, ok := urlByName[n]; ok {
			tasks = append(tasks, data.Task{URL: u, Name: n})
		}
	}
	return tasks
}
