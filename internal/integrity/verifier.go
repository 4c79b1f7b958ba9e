package integrity

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/manifest-sync/internal/downloader"
	"github.com/tinoosan/manifest-sync/internal/metrics"
)

// Verifier validates files concurrently.
type Verifier struct {
	fs  afero.Fs
	rep downloader.Reporter
	log *slog.Logger

	// check is swapped in tests.
	check func(afero.Fs, string) error
}

// NewVerifier returns a Verifier reading and deleting through fsys.
func NewVerifier(fsys afero.Fs, rep downloader.Reporter, log *slog.Logger) *Verifier {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{fs: fsys, rep: downloader.Or(rep), log: log, check: Check}
}

// DefaultWorkers is the pool size used when the caller passes a non-positive
// worker count.
func DefaultWorkers() int { return runtime.NumCPU() }

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeValid
	outcomeCorrupt
	outcomeError
)

func (o outcome) String() string {
	switch o {
	case outcomeValid:
		return metrics.OutcomeValid
	case outcomeCorrupt:
		return metrics.OutcomeCorrupt
	case outcomeError:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeSkipped
	}
}

// Verify validates names inside dir using at most maxWorkers goroutines and
// returns the names that failed, in no particular order.
//
// Files that do not exist, are not parquet files, or still have an aria2c
// control file next to them are skipped. Corrupt files are deleted; files
// that fail for any other reason are reported but left in place.
//
// Every name is checked even after ctx is done: an empty result always means
// every file passed.
func (v *Verifier) Verify(_ context.Context, dir string, names []string, maxWorkers int) []string {
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers()
	}
	total := len(names)

	var (
		mu        sync.Mutex
		completed int
		failed    []string
	)

	g := new(errgroup.Group)
	g.SetLimit(maxWorkers)
	for _, name := range names {
		name := name
		g.Go(func() error {
			o := v.verifyOne(dir, name)
			metrics.FilesValidated.WithLabelValues(o.String()).Inc()

			mu.Lock()
			defer mu.Unlock()
			if o == outcomeCorrupt || o == outcomeError {
				failed = append(failed, name)
			}
			completed++
			v.rep.Report(downloader.Event{
				Type:     downloader.EventValidationProgress,
				Progress: &downloader.Progress{Completed: completed, Total: total},
			})
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		v.log.Warn("integrity check failed", "failed", len(failed), "checked", completed)
	} else {
		v.log.Debug("integrity check passed", "checked", completed)
	}
	return failed
}

func (v *Verifier) verifyOne(dir, name string) outcome {
	p := filepath.Join(dir, name)
	log := v.log.With("path", p)

	if !IsValidated(name) {
		return outcomeSkipped
	}
	fi, err := v.fs.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outcomeSkipped
		}
		log.Error("stat file", "err", err)
		return outcomeError
	}
	if !fi.Mode().IsRegular() {
		return outcomeSkipped
	}
	if _, err := v.fs.Stat(p + MarkerSuffix); err == nil {
		log.Debug("transfer still in progress, skipping")
		return outcomeSkipped
	}

	start := time.Now()
	err = v.check(v.fs, p)
	metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		return outcomeValid
	case errors.Is(err, ErrCorrupt):
		log.Warn("corrupt file, deleting", "err", err)
		if rerr := v.fs.Remove(p); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			log.Error("delete corrupt file", "err", rerr)
		}
		return outcomeCorrupt
	default:
		log.Error("validate file", "err", err)
		return outcomeError
	}
}
