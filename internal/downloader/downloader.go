package downloader

import (
	"context"

	"github.com/tinoosan/manifest-sync/internal/data"
)

// ExitStartFailure is reported as the exit status when the transfer process
// could not be started at all.
const ExitStartFailure = -1

// Transferer fetches a task set into the download directory. It blocks until
// the underlying transfer process exits and returns that exit status verbatim.
// A non-nil error is only returned when the process could not be run; the
// status is then ExitStartFailure.
type Transferer interface {
	Transfer(ctx context.Context, tasks data.Tasks) (int, error)
}

// TransferFunc adapts a plain function to the Transferer interface.
type TransferFunc func(ctx context.Context, tasks data.Tasks) (int, error)

func (f TransferFunc) Transfer(ctx context.Context, tasks data.Tasks) (int, error) {
	return f(ctx, tasks)
}
