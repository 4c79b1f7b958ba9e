// Package logging configures the application's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Verbosity levels accepted by Setup.
const (
	Quiet   = -1
	Normal  = 0
	Verbose = 1
)

// ConsoleLevel maps a verbosity to the console log level.
func ConsoleLevel(verbosity int) slog.Level {
	switch {
	case verbosity < 0:
		return slog.LevelWarn
	case verbosity > 0:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Setup builds the application logger. Console output goes to console (stdout
// when nil) at the level selected by verbosity. When logFile is set, every
// record at Debug and above is also appended to a size-rotated file. The
// returned closer closes the file sink.
func Setup(console io.Writer, verbosity int, logFile string) (*slog.Logger, io.Closer) {
	if console == nil {
		console = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ConsoleLevel(verbosity)}
	if verbosity <= 0 {
		// keep normal console output free of timestamps
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	consoleHandler := slog.NewTextHandler(console, opts)
	if logFile == "" {
		return slog.New(consoleHandler), nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	fileHandler := slog.NewTextHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: false})
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler)), lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
