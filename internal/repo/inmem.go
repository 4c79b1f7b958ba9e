package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/manifest-sync/internal/data"
)

type InMemoryRunRepo struct {
	mu   sync.RWMutex
	runs data.Runs
}

func NewInMemoryRunRepo() *InMemoryRunRepo {
	return &InMemoryRunRepo{
		runs: make(data.Runs, 0),
	}
}

func (r *InMemoryRunRepo) List(ctx context.Context) (data.Runs, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs.Clone(), nil
}

func (r *InMemoryRunRepo) Get(ctx context.Context, id string) (*data.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.ID == id {
			return run.Clone(), nil
		}
	}
	return nil, data.ErrNotFound
}

func (r *InMemoryRunRepo) Add(ctx context.Context, run *data.Run) (*data.Run, error) {
	stored := run.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, stored)
	return stored.Clone(), nil
}
