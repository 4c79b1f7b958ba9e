package integrity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"syscall"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"

	"github.com/tinoosan/manifest-sync/internal/downloader"
)

type row struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func validParquet(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	rows := []row{{1, "a"}, {2, "b"}, {3, "c"}}
	if err := parquet.Write(&buf, rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	return buf.Bytes()
}

func put(t *testing.T, fsys afero.Fs, p string, b []byte) {
	t.Helper()
	if err := afero.WriteFile(fsys, p, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

func exists(fsys afero.Fs, p string) bool {
	_, err := fsys.Stat(p)
	return err == nil
}

var garbage = bytes.Repeat([]byte("garbage!"), 16)

func TestCheck(t *testing.T) {
	fsys := afero.NewMemMapFs()
	good := validParquet(t)
	put(t, fsys, "/d/good.parquet", good)
	put(t, fsys, "/d/bad.parquet", garbage)
	put(t, fsys, "/d/truncated.parquet", good[:len(good)-3])

	if err := Check(fsys, "/d/good.parquet"); err != nil {
		t.Fatalf("valid file: %v", err)
	}
	for _, p := range []string{"/d/bad.parquet", "/d/truncated.parquet"} {
		if err := Check(fsys, p); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: err = %v, want ErrCorrupt", p, err)
		}
	}
	if err := Check(fsys, "/d/missing.parquet"); err == nil || errors.Is(err, ErrCorrupt) {
		t.Fatalf("missing file: err = %v, want non-corrupt error", err)
	}
}

func TestVerify_Classification(t *testing.T) {
	fsys := afero.NewMemMapFs()
	put(t, fsys, "/d/good.parquet", validParquet(t))
	put(t, fsys, "/d/bad.parquet", garbage)
	put(t, fsys, "/d/notes.txt", garbage)
	put(t, fsys, "/d/partial.parquet", garbage)
	put(t, fsys, "/d/partial.parquet.aria2", []byte("ctl"))

	v := NewVerifier(fsys, nil, quiet())
	failed := v.Verify(context.Background(), "/d",
		[]string{"good.parquet", "bad.parquet", "notes.txt", "partial.parquet", "absent.parquet"}, 2)

	if len(failed) != 1 || failed[0] != "bad.parquet" {
		t.Fatalf("failed = %v, want [bad.parquet]", failed)
	}
	if exists(fsys, "/d/bad.parquet") {
		t.Fatal("corrupt file was not deleted")
	}
	for _, p := range []string{"/d/good.parquet", "/d/notes.txt", "/d/partial.parquet"} {
		if !exists(fsys, p) {
			t.Fatalf("%s should be untouched", p)
		}
	}
}

func TestVerify_ExtensionIsCaseInsensitive(t *testing.T) {
	fsys := afero.NewMemMapFs()
	put(t, fsys, "/d/BAD.PARQUET", garbage)

	failed := NewVerifier(fsys, nil, quiet()).Verify(context.Background(), "/d", []string{"BAD.PARQUET"}, 1)
	if len(failed) != 1 {
		t.Fatalf("failed = %v", failed)
	}
}

// deniedFS refuses to open one path and optionally fails removals.
type deniedFS struct {
	afero.Fs
	deny      string
	removeErr error
}

func (d deniedFS) Open(name string) (afero.File, error) {
	if name == d.deny {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Open(name)
}

func (d deniedFS) Remove(name string) error {
	if d.removeErr != nil {
		return d.removeErr
	}
	return d.Fs.Remove(name)
}

func TestVerify_SystemErrorKeepsFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	put(t, mem, "/d/locked.parquet", garbage)
	fsys := deniedFS{Fs: mem, deny: "/d/locked.parquet"}

	v := NewVerifier(fsys, nil, quiet())
	for i := 0; i < 3; i++ {
		failed := v.Verify(context.Background(), "/d", []string{"locked.parquet"}, 1)
		if len(failed) != 1 || failed[0] != "locked.parquet" {
			t.Fatalf("attempt %d: failed = %v", i, failed)
		}
		if !exists(mem, "/d/locked.parquet") {
			t.Fatalf("attempt %d: file deleted on non-corruption error", i)
		}
	}
}

type faultyFile struct{ afero.File }

func (faultyFile) ReadAt([]byte, int64) (int, error) { return 0, syscall.EIO }

type faultyFS struct{ afero.Fs }

func (f faultyFS) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return faultyFile{file}, nil
}

func TestVerify_ReadFaultIsNotCorruption(t *testing.T) {
	mem := afero.NewMemMapFs()
	put(t, mem, "/d/x.parquet", validParquet(t))

	err := Check(faultyFS{mem}, "/d/x.parquet")
	if err == nil || errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want I/O error", err)
	}
	if !errors.Is(err, syscall.EIO) {
		t.Fatalf("err = %v, want EIO", err)
	}

	failed := NewVerifier(faultyFS{mem}, nil, quiet()).Verify(context.Background(), "/d", []string{"x.parquet"}, 1)
	if len(failed) != 1 {
		t.Fatalf("failed = %v", failed)
	}
	if !exists(mem, "/d/x.parquet") {
		t.Fatal("file deleted after read fault")
	}
}

func TestVerify_DeleteFailureStillReported(t *testing.T) {
	mem := afero.NewMemMapFs()
	put(t, mem, "/d/bad.parquet", garbage)
	fsys := deniedFS{Fs: mem, removeErr: &os.PathError{Op: "remove", Path: "/d/bad.parquet", Err: os.ErrPermission}}

	failed := NewVerifier(fsys, nil, quiet()).Verify(context.Background(), "/d", []string{"bad.parquet"}, 1)
	if len(failed) != 1 || failed[0] != "bad.parquet" {
		t.Fatalf("failed = %v", failed)
	}
}

func TestVerify_ConcurrentProgress(t *testing.T) {
	fsys := afero.NewMemMapFs()
	good := validParquet(t)
	var names, wantFailed []string
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("f%02d.parquet", i)
		if i%4 == 0 {
			put(t, fsys, "/d/"+name, garbage)
			wantFailed = append(wantFailed, name)
		} else {
			put(t, fsys, "/d/"+name, good)
		}
		names = append(names, name)
	}

	var (
		mu    sync.Mutex
		calls []downloader.Progress
	)
	rep := downloader.ReporterFunc(func(e downloader.Event) {
		if e.Type != downloader.EventValidationProgress {
			return
		}
		mu.Lock()
		calls = append(calls, *e.Progress)
		mu.Unlock()
	})

	failed := NewVerifier(fsys, rep, quiet()).Verify(context.Background(), "/d", names, 8)

	sort.Strings(failed)
	if fmt.Sprint(failed) != fmt.Sprint(wantFailed) {
		t.Fatalf("failed = %v, want %v", failed, wantFailed)
	}
	if len(calls) != len(names) {
		t.Fatalf("progress calls = %d, want %d", len(calls), len(names))
	}
	seen := map[int]bool{}
	for _, c := range calls {
		if c.Total != len(names) {
			t.Fatalf("total = %d", c.Total)
		}
		seen[c.Completed] = true
	}
	for i := 1; i <= len(names); i++ {
		if !seen[i] {
			t.Fatalf("completed=%d never reported", i)
		}
	}
}

func TestVerify_StubbedCheck(t *testing.T) {
	fsys := afero.NewMemMapFs()
	put(t, fsys, "/d/a.parquet", []byte("x"))
	v := NewVerifier(fsys, nil, quiet())
	v.check = func(afero.Fs, string) error { return errors.New("too many open files") }

	failed := v.Verify(context.Background(), "/d", []string{"a.parquet"}, 0)
	if len(failed) != 1 || !exists(fsys, "/d/a.parquet") {
		t.Fatalf("failed = %v", failed)
	}
}

func TestVerify_CancelledContextStillChecksEverything(t *testing.T) {
	fsys := afero.NewMemMapFs()
	put(t, fsys, "/d/good.parquet", validParquet(t))
	put(t, fsys, "/d/bad.parquet", garbage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failed := NewVerifier(fsys, nil, quiet()).Verify(ctx, "/d", []string{"good.parquet", "bad.parquet"}, 1)

	if len(failed) != 1 || failed[0] != "bad.parquet" {
		t.Fatalf("failed = %v, want [bad.parquet]", failed)
	}
	if exists(fsys, "/d/bad.parquet") {
		t.Fatal("corrupt file was not deleted")
	}
}
