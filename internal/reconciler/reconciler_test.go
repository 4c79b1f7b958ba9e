package reconciler

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/tinoosan/manifest-sync/internal/data"
	"github.com/tinoosan/manifest-sync/internal/planner"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const session = "/d/.aria2c-session"

func TestLoadPendingURLs_ParsesBareURLs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := "https://example.com/file1.parquet\n" +
		"  out=file1.parquet\n" +
		"https://example.com/file2.parquet\n" +
		" gid=abc\n" +
		"\tout=file2.parquet\n" +
		"\n" +
		"ftp://example.com/ignored\n"
	if err := afero.WriteFile(fsys, session, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	urls := New(fsys, quiet()).LoadPendingURLs(session)
	if len(urls) != 2 {
		t.Fatalf("urls = %v, want 2 entries", urls)
	}
	for _, u := range []string{"https://example.com/file1.parquet", "https://example.com/file2.parquet"} {
		if _, ok := urls[u]; !ok {
			t.Fatalf("missing %s in %v", u, urls)
		}
	}
}

func TestLoadPendingURLs_MissingFile(t *testing.T) {
	urls := New(afero.NewMemMapFs(), quiet()).LoadPendingURLs("/nope/.aria2c-session")
	if urls == nil || len(urls) != 0 {
		t.Fatalf("urls = %v, want empty set", urls)
	}
}

type denyFS struct{ afero.Fs }

func (denyFS) Open(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
}

func TestLoadPendingURLs_UnreadableFile(t *testing.T) {
	urls := New(denyFS{afero.NewMemMapFs()}, quiet()).LoadPendingURLs(session)
	if len(urls) != 0 {
		t.Fatalf("urls = %v, want empty set", urls)
	}
}

func TestMerge_AddsOnlyUnplannedURLs(t *testing.T) {
	plan := &planner.Plan{Tasks: data.Tasks{{URL: "https://example.com/a/x.parquet", Name: "x.parquet", Path: "a/x.parquet"}}}
	pending := map[string]struct{}{
		"https://example.com/a/x.parquet": {},
		"https://example.com/b/z.parquet": {},
		"https://example.com/b/w.parquet": {},
	}

	added := New(afero.NewMemMapFs(), quiet()).Merge(plan, pending)
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	if len(plan.Tasks) != 3 {
		t.Fatalf("tasks = %+v", plan.Tasks)
	}
	if plan.Tasks[1] != (data.Task{URL: "https://example.com/b/w.parquet", Name: "w.parquet"}) {
		t.Fatalf("task[1] = %+v", plan.Tasks[1])
	}
	if plan.Tasks[2].Name != "z.parquet" {
		t.Fatalf("task[2] = %+v", plan.Tasks[2])
	}
}

func TestMerge_SkipsBlockedAndClaimedNames(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/d/x.parquet", 0o755); err != nil {
		t.Fatal(err)
	}
	plan := planner.New(fsys, nil, quiet()).Plan([]string{"a/x.parquet", "b/y.parquet"}, "https://h/", "/d")
	pending := map[string]struct{}{
		"https://h/a/x.parquet":   {},
		"https://h/old/y.parquet": {},
		"https://h/old/z.parquet": {},
	}

	added := New(fsys, quiet()).Merge(plan, pending)

	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	want := data.Tasks{
		{URL: "https://h/b/y.parquet", Name: "y.parquet", Path: "b/y.parquet"},
		{URL: "https://h/old/z.parquet", Name: "z.parquet"},
	}
	if !reflect.DeepEqual(plan.Tasks, want) {
		t.Fatalf("tasks = %+v, want %+v", plan.Tasks, want)
	}
	if !reflect.DeepEqual(plan.Conflicts, []string{"a/x.parquet", "https://h/a/x.parquet"}) {
		t.Fatalf("conflicts = %v", plan.Conflicts)
	}
	if !reflect.DeepEqual(plan.Collisions, []string{"https://h/old/y.parquet"}) {
		t.Fatalf("collisions = %v", plan.Collisions)
	}
}

func TestMerge_SessionNamesCollideWithEachOther(t *testing.T) {
	plan := &planner.Plan{}
	pending := map[string]struct{}{
		"https://h/a/w.parquet": {},
		"https://h/b/w.parquet": {},
	}

	added := New(afero.NewMemMapFs(), quiet()).Merge(plan, pending)

	if added != 1 || plan.Tasks[0].URL != "https://h/a/w.parquet" {
		t.Fatalf("added = %d tasks = %+v", added, plan.Tasks)
	}
	if !reflect.DeepEqual(plan.Collisions, []string{"https://h/b/w.parquet"}) {
		t.Fatalf("collisions = %v", plan.Collisions)
	}
}

func TestMerge_ResumesPartialFileCountedComplete(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/d/x.parquet", []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	plan := planner.New(fsys, nil, quiet()).Plan([]string{"a/x.parquet"}, "https://h/", "/d")
	if len(plan.Sizes) != 1 {
		t.Fatalf("sizes = %v", plan.Sizes)
	}

	added := New(fsys, quiet()).Merge(plan, map[string]struct{}{"https://h/a/x.parquet": {}})

	if added != 1 || len(plan.Tasks) != 1 || plan.Tasks[0].Name != "x.parquet" {
		t.Fatalf("added = %d tasks = %+v", added, plan.Tasks)
	}
	if len(plan.Sizes) != 0 {
		t.Fatalf("resumed file still counted complete: %v", plan.Sizes)
	}
	if len(plan.Collisions) != 0 || len(plan.Conflicts) != 0 {
		t.Fatalf("collisions = %v conflicts = %v", plan.Collisions, plan.Conflicts)
	}
}

func TestRemove(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, session, []byte("https://x/y\n"), 0o644)
	r := New(fsys, quiet())

	r.Remove(session)
	if _, err := fsys.Stat(session); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("session still present: %v", err)
	}
	// idempotent
	r.Remove(session)
}
