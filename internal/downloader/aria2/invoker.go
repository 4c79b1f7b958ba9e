package aria2dl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/manifest-sync/internal/aria2"
	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/downloader"
	"github.com/tinoosan/manifest-sync/internal/metrics"
)

// ErrStart is returned when the aria2c process could not be started.
var ErrStart = errors.New("start aria2c")

// Options configures the aria2c invocation.
type Options struct {
	// Binary is the aria2c executable, resolved through PATH.
	Binary string
	// Dir is the download directory; it is created if absent.
	Dir string
	// SessionFile is where aria2c persists unfinished transfers.
	SessionFile string
	// Concurrency is the number of parallel downloads (-j).
	Concurrency int
	// FileAllocation is passed through as --file-allocation.
	FileAllocation string
	// SessionInterval is the checkpoint period in seconds.
	SessionInterval int
	// SummaryInterval is the progress summary period in seconds.
	SummaryInterval int
	// RPCPort enables the RPC interface and live progress events when > 0.
	RPCPort int
	// TempDir holds the generated input file; empty means os.TempDir().
	TempDir string

	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) setDefaults() {
	if o.Binary == "" {
		o.Binary = "aria2c"
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.FileAllocation == "" {
		o.FileAllocation = "falloc"
	}
	if o.SessionInterval <= 0 {
		o.SessionInterval = 10
	}
	if o.SummaryInterval <= 0 {
		o.SummaryInterval = 5
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// Invoker runs aria2c as a child process over a generated input file.
type Invoker struct {
	opts Options
	rep  downloader.Reporter
	log  *slog.Logger

	// command builds the child process; swapped in tests.
	command func(name string, args ...string) *exec.Cmd
}

var _ downloader.Transferer = (*Invoker)(nil)

// NewInvoker creates an Invoker. Zero-valued options take aria2c defaults
// matching a resumable bulk download.
func NewInvoker(opts Options, rep downloader.Reporter, log *slog.Logger) *Invoker {
	opts.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Invoker{opts: opts, rep: downloader.Or(rep), log: log, command: exec.Command}
}

// Args returns the aria2c command line for the given input file. secret is
// only used when the RPC interface is enabled.
func (inv *Invoker) Args(inputFile, secret string) []string {
	o := inv.opts
	args := []string{
		"-c",
		"--save-session=" + o.SessionFile,
		"--save-session-interval=" + strconv.Itoa(o.SessionInterval),
		"-j" + strconv.Itoa(o.Concurrency),
		"-d" + o.Dir,
		"--auto-file-renaming=false",
		"--console-log-level=notice",
		"--summary-interval=" + strconv.Itoa(o.SummaryInterval),
		"--file-allocation=" + o.FileAllocation,
	}
	if o.RPCPort > 0 {
		args = append(args,
			"--enable-rpc",
			"--rpc-listen-port="+strconv.Itoa(o.RPCPort),
			"--rpc-secret="+secret,
		)
	}
	return append(args, "-i"+inputFile)
}

// Transfer writes tasks to a temporary input file and blocks until aria2c
// exits. The exit status is returned verbatim; the input file is removed on
// every path.
func (inv *Invoker) Transfer(ctx context.Context, tasks data.Tasks) (int, error) {
	if err := os.MkdirAll(inv.opts.Dir, 0o755); err != nil {
		return downloader.ExitStartFailure, fmt.Errorf("%w: create download dir: %v", ErrStart, err)
	}

	input, err := createInputFile(inv.opts.TempDir, tasks)
	if err != nil {
		return downloader.ExitStartFailure, fmt.Errorf("%w: %v", ErrStart, err)
	}
	defer func() {
		if err := os.Remove(input); err != nil && !errors.Is(err, os.ErrNotExist) {
			inv.log.Warn("remove aria2c input file", "path", input, "err", err)
		}
	}()

	secret := uuid.NewString()
	cmd := inv.command(inv.opts.Binary, inv.Args(input, secret)...)
	cmd.Stdout = inv.opts.Stdout
	cmd.Stderr = inv.opts.Stderr

	log := inv.log.With("files", len(tasks))
	log.Info("starting aria2c", "binary", inv.opts.Binary, "dir", inv.opts.Dir, "concurrency", inv.opts.Concurrency)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Error("start aria2c", "err", err)
		return downloader.ExitStartFailure, fmt.Errorf("%w: %v", ErrStart, err)
	}
	metrics.TransferCycles.Inc()

	monCtx, stopMonitor := context.WithCancel(ctx)
	monDone := make(chan struct{})
	if inv.opts.RPCPort > 0 {
		go func() {
			defer close(monDone)
			inv.monitor(monCtx, secret, len(tasks))
		}()
	} else {
		close(monDone)
	}

	waitErr := cmd.Wait()
	stopMonitor()
	<-monDone

	code := exitCode(cmd, waitErr)
	elapsed := time.Since(start)
	metrics.TransferDuration.Observe(elapsed.Seconds())
	metrics.TransferExitCodes.WithLabelValues(strconv.Itoa(code)).Inc()

	if code != 0 {
		log.Warn("aria2c exited with error", "exit_code", code, "elapsed", elapsed, "err", waitErr)
	} else {
		log.Info("aria2c finished", "elapsed", elapsed)
	}
	return code, nil
}

func (inv *Invoker) monitor(ctx context.Context, secret string, total int) {
	cl, err := aria2.NewLocalClient(inv.opts.RPCPort, secret)
	if err != nil {
		inv.log.Warn("progress monitor disabled", "err", err)
		return
	}
	NewMonitor(cl, inv.rep, inv.log).Run(ctx, total)
}

func exitCode(cmd *exec.Cmd, err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return downloader.ExitStartFailure
	}
	return 0
}
