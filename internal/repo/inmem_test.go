package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/manifest-sync/internal/data"
)

func TestInMemoryRunRepo_Add(t *testing.T) {
	repo := NewInMemoryRunRepo()
	ctx := context.Background()

	r1, err := repo.Add(ctx, &data.Run{ManifestURL: "m1"})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if _, err := uuid.Parse(r1.ID); err != nil {
		t.Fatalf("expected generated uuid, got %q", r1.ID)
	}
	if r1.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r2, err := repo.Add(ctx, &data.Run{ID: "run-2", CreatedAt: created})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if r2.ID != "run-2" || !r2.CreatedAt.Equal(created) {
		t.Fatalf("caller supplied fields overwritten: %+v", r2)
	}
}

func TestInMemoryRunRepo_AddCopiesInput(t *testing.T) {
	repo := NewInMemoryRunRepo()
	ctx := context.Background()

	in := &data.Run{ID: "a", Result: data.Result{FailedFiles: []string{"x.parquet"}}}
	if _, err := repo.Add(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.Result.FailedFiles[0] = "mutated"

	got, _ := repo.Get(ctx, "a")
	if got.Result.FailedFiles[0] != "x.parquet" {
		t.Fatalf("stored run aliased caller slice: %v", got.Result.FailedFiles)
	}
}

func TestInMemoryRunRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRunRepo()

	// empty repo
	list, _ := repo.List(ctx)
	if got := len(list); got != 0 {
		t.Fatalf("expected empty list, got %d", got)
	}

	r1, _ := repo.Add(ctx, &data.Run{ManifestURL: "m1"})
	_, _ = repo.Add(ctx, &data.Run{ManifestURL: "m2"})

	list1, _ := repo.List(ctx)
	if len(list1) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(list1))
	}

	// modify returned slice
	list1[0] = &data.Run{ID: "99"}
	list1 = append(list1, &data.Run{ID: "100"})

	list2, _ := repo.List(ctx)
	if len(list2) != 2 {
		t.Fatalf("expected 2 runs after modification, got %d", len(list2))
	}
	if list2[0].ID != r1.ID {
		t.Fatalf("expected first ID %s got %s", r1.ID, list2[0].ID)
	}
}

func TestInMemoryRunRepo_Get(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRunRepo()
	want, _ := repo.Add(ctx, &data.Run{ManifestURL: "m1", Result: data.Result{Total: 3, ExitCode: 7}})

	tests := []struct {
		name    string
		repo    *InMemoryRunRepo
		id      string
		want    *data.Run
		wantErr error
	}{
		{"exists", repo, want.ID, want, nil},
		{"not found", repo, "missing", nil, data.ErrNotFound},
		{"empty repo", NewInMemoryRunRepo(), want.ID, nil, data.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.repo.Get(ctx, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil {
				if !reflect.DeepEqual(*got, *tt.want) {
					t.Fatalf("mismatch:\n got:  %#v\n want: %#v", got, tt.want)
				}
			}
		})
	}
}

func TestInMemoryRunRepo_Concurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRunRepo()
	const n = 50
	var wg sync.WaitGroup

	// reader goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			repo.List(ctx)
			repo.Get(ctx, fmt.Sprint(i))
		}
	}()

	// concurrent writers
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.Add(ctx, &data.Run{ManifestURL: fmt.Sprintf("m%d", i)}); err != nil {
				t.Errorf("Add error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	list, _ := repo.List(ctx)

	if got := len(list); got != n {
		t.Fatalf("expected %d runs, got %d", n, got)
	}
}
