package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tinoosan/manifest-sync/internal/config"
	"github.com/tinoosan/manifest-sync/internal/logging"
)

// app holds the state of one invocation.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer

	configFile   string
	runIntegrity bool
	noIntegrity  bool
	dryRun       bool
	verbose      bool
	quiet        bool
	logFile      string

	// code is the process exit status chosen by the last run.
	code int
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{v: viper.New(), stdout: stdout, stderr: stderr}
}

func (a *app) verbosity() int {
	switch {
	case a.verbose:
		return logging.Verbose
	case a.quiet:
		return logging.Quiet
	default:
		return logging.Normal
	}
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest-sync",
		Short: "Download the files of a remote manifest with aria2c",
		Long: `manifest-sync fetches a JSON manifest, works out which of its files are
missing locally and hands them to aria2c. Interrupted transfers resume from the
aria2c session file; parquet files that fail validation are fetched again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.noIntegrity {
				a.v.Set(config.KeyIntegrityCheck, false)
			}
			return a.run(cmd.Context())
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	fl := cmd.Flags()
	fl.StringVarP(&a.configFile, "config", "c", "", "config file (default config.toml)")
	fl.StringP("download-dir", "d", "", "override download directory")
	fl.StringP("manifest-url", "m", "", "override manifest URL")
	fl.IntP("concurrency", "j", 0, "number of concurrent downloads")
	fl.BoolVarP(&a.runIntegrity, "run-integrity", "r", false, "check existing files before downloading")
	fl.IntP("integrity-retries", "i", 0, "times to re-fetch files that fail integrity checks")
	fl.Int("concurrent-validations", 0, "number of concurrent parquet validations (default CPU count)")
	fl.BoolVar(&a.noIntegrity, "no-integrity", false, "skip parquet validation after transfers")
	fl.BoolVarP(&a.dryRun, "dry-run", "n", false, "plan only, do not download")
	fl.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug output")
	fl.BoolVarP(&a.quiet, "quiet", "q", false, "only print warnings and errors")
	fl.StringVar(&a.logFile, "log-file", "", "also write debug logs to this file")
	fl.Int("rpc-port", 0, "enable the aria2c RPC interface on this port for live progress")
	fl.String("metrics-addr", "", "serve /metrics, /healthz and /v1/runs on this address")
	fl.String("metrics-textfile", "", "write metrics in text format to this file when done")
	fl.String("history-dsn", "", "Postgres DSN for the run history")
	fl.String("summary-file", "", "write the run result as JSON to this file")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Bind Flags to config
	for key, flag := range map[string]string{
		config.KeyDownloadDir:           "download-dir",
		config.KeyManifestURL:           "manifest-url",
		config.KeyConcurrentDownloads:   "concurrency",
		config.KeyIntegrityRetryCount:   "integrity-retries",
		config.KeyConcurrentValidations: "concurrent-validations",
		config.KeyRPCPort:               "rpc-port",
		config.KeyMetricsAddr:           "metrics-addr",
		config.KeyMetricsTextfile:       "metrics-textfile",
		config.KeyHistoryDSN:            "history-dsn",
		config.KeySummaryFile:           "summary-file",
	} {
		if err := a.v.BindPFlag(key, fl.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}
