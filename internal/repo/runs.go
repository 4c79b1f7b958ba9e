package repo

import (
	"context"

	"github.com/tinoosan/manifest-sync/internal/data"
)

// RunRepo stores the history of finished sync runs.
type RunRepo interface {
	RunReader
	RunWriter
}

type RunReader interface {
	List(ctx context.Context) (data.Runs, error)
	Get(ctx context.Context, id string) (*data.Run, error)
}

type RunWriter interface {
	// Add stores run. An empty ID is replaced with a fresh uuid and a zero
	// CreatedAt with the current time.
	Add(ctx context.Context, run *data.Run) (*data.Run, error)
}
