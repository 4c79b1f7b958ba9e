package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
)

// lockDir creates dir and takes an exclusive lock on lockFile so that only
// one sync writes into a download directory at a time.
func lockDir(dir, lockFile string) (func(*slog.Logger), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir %s: %w", dir, err)
	}
	fl := flock.New(lockFile)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("flock %s: %w", lockFile, err)
	} else if !locked {
		return nil, fmt.Errorf("another sync is already running in %s (locking file %s)", dir, fl.Path())
	}
	return func(log *slog.Logger) {
		if err := fl.Unlock(); err != nil {
			log.Error("failed to unlock file", "path", fl.Path(), "err", err)
		}
	}, nil
}
