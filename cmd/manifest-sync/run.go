package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/tinoosan/manifest-sync/internal/config"
	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/downloader"
	aria2dl "github.com/tinoosan/manifest-sync/internal/downloader/aria2"
	"github.com/tinoosan/manifest-sync/internal/integrity"
	"github.com/tinoosan/manifest-sync/internal/logging"
	"github.com/tinoosan/manifest-sync/internal/manifest"
	"github.com/tinoosan/manifest-sync/internal/metrics"
	"github.com/tinoosan/manifest-sync/internal/orchestrator"
	"github.com/tinoosan/manifest-sync/internal/planner"
	"github.com/tinoosan/manifest-sync/internal/reconciler"
	"github.com/tinoosan/manifest-sync/internal/repo"
	"github.com/tinoosan/manifest-sync/internal/router"
	"github.com/tinoosan/manifest-sync/internal/runid"
)

const (
	manifestRetries = 3
	manifestTimeout = 2 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// run performs one sync and records the exit status in a.code. Errors are
// returned only for failures before the sync could start.
func (a *app) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, closer := logging.Setup(a.stdout, a.verbosity(), a.logFile)
	defer func() { _ = closer.Close() }()

	id := runid.New()
	ctx = runid.With(ctx, id)
	log := base.With("run_id", id)

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Info("configuration loaded",
		"manifest_url", cfg.ManifestURL,
		"download_dir", cfg.DownloadDir,
		"concurrency", cfg.ConcurrentDownloads,
		"integrity_check", cfg.IntegrityCheck,
		"integrity_retries", cfg.IntegrityRetryCount,
		"concurrent_validations", cfg.ConcurrentValidations,
		"pre_check", a.runIntegrity,
		"dry_run", a.dryRun)

	if !a.dryRun {
		unlock, err := lockDir(cfg.DownloadDir, cfg.LockFile())
		if err != nil {
			return err
		}
		defer unlock(log)
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	runs, closeRuns := openHistory(ctx, cfg.HistoryDSN, log)
	defer closeRuns()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           router.New(log, runs, reg, cfg.APIToken),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			log.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	m, err := manifest.NewFetcher(log, manifestRetries, manifestTimeout).Fetch(ctx, cfg.ManifestURL)
	if err != nil {
		log.Error("fetch manifest", "url", cfg.ManifestURL, "err", err)
		a.code = 1
		return nil
	}
	paths, rejected := manifest.Sanitize(m.Paths(), log)
	log.Info("manifest loaded", "files", len(paths), "rejected", len(rejected))

	var rep downloader.Reporter = downloader.Nop
	if a.verbosity() > logging.Quiet {
		rep = newProgress(a.stdout)
	}

	fsys := afero.NewOsFs()
	orc := orchestrator.New(
		planner.New(fsys, rep, log),
		reconciler.New(fsys, log),
		aria2dl.NewInvoker(aria2dl.Options{
			Binary:         cfg.Aria2cPath,
			Dir:            cfg.DownloadDir,
			SessionFile:    cfg.SessionFile(),
			Concurrency:    cfg.ConcurrentDownloads,
			FileAllocation: cfg.FileAllocation,
			RPCPort:        cfg.RPCPort,
			Stdout:         a.stdout,
			Stderr:         a.stderr,
		}, rep, log),
		integrity.NewVerifier(fsys, rep, log),
		orchestrator.Options{
			BaseURL:             cfg.BaseURL,
			DownloadDir:         cfg.DownloadDir,
			SessionFile:         cfg.SessionFile(),
			IntegrityCheck:      cfg.IntegrityCheck,
			MaxIntegrityRetries: cfg.IntegrityRetryCount,
			MaxWorkers:          cfg.ConcurrentValidations,
			RunIntegrity:        a.runIntegrity,
			DryRun:              a.dryRun,
		},
		rep, log,
	)

	res := orc.Run(ctx, paths)
	a.code = exitCode(res)

	// history and exports must survive an interrupted sync
	rctx := context.WithoutCancel(ctx)
	if _, err := runs.Add(rctx, &data.Run{
		ID:          res.RunID,
		ManifestURL: cfg.ManifestURL,
		DownloadDir: cfg.DownloadDir,
		Result:      *res,
	}); err != nil {
		log.Warn("record run history", "err", err)
	}
	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); err != nil {
			log.Warn("write metrics textfile", "path", cfg.MetricsTextfile, "err", err)
		}
	}
	if cfg.SummaryFile != "" {
		if err := writeSummaryFile(cfg.SummaryFile, res); err != nil {
			log.Warn("write summary file", "path", cfg.SummaryFile, "err", err)
		}
	}
	printSummary(a.stdout, res)
	return nil
}

// openHistory returns the Postgres history when dsn is set and reachable and
// an in-memory history otherwise.
func openHistory(ctx context.Context, dsn string, log *slog.Logger) (repo.RunRepo, func()) {
	if dsn == "" {
		return repo.NewInMemoryRunRepo(), func() {}
	}
	pg, err := repo.NewPostgresRepo(ctx, dsn)
	if err != nil {
		log.Warn("run history database unavailable, keeping history in memory", "err", err)
		return repo.NewInMemoryRunRepo(), func() {}
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Warn("close run history", "err", err)
		}
	}
}

// exitCode maps a result to the process exit status: the aria2c status when
// it failed, 1 for anything else needing attention, 130 when interrupted.
func exitCode(res *data.Result) int {
	switch {
	case res.ExitCode > 0:
		return res.ExitCode
	case res.ExitCode < 0:
		return 1
	case res.Interrupted:
		return 130
	case res.IntegrityFailures > 0, len(res.Conflicts) > 0:
		return 1
	}
	return 0
}
