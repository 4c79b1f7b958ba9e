// Package integrity validates downloaded parquet files by reading their
// footer and schema.
package integrity

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
)

// ErrCorrupt marks a file that could be read but whose parquet structure is
// malformed.
var ErrCorrupt = errors.New("corrupt parquet file")

const (
	// Extension selects the files this package validates.
	Extension = ".parquet"
	// MarkerSuffix is appended by aria2c to the control file of a transfer
	// that has not finished yet.
	MarkerSuffix = ".aria2"
)

// IsValidated reports whether name carries the validated extension.
func IsValidated(name string) bool {
	return strings.EqualFold(fileExt(name), Extension)
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// recordingReader remembers the first I/O fault so structural errors can be
// told apart from read failures.
type recordingReader struct {
	r io.ReaderAt

	mu  sync.Mutex
	err error
}

func (rr *recordingReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := rr.r.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		rr.mu.Lock()
		if rr.err == nil {
			rr.err = err
		}
		rr.mu.Unlock()
	}
	return n, err
}

func (rr *recordingReader) fault() error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.err
}

// Check opens the file at path and reads its parquet footer and schema. It
// returns an error wrapping ErrCorrupt when the structure is invalid, and any
// other error when the file could not be read.
func Check(fsys afero.Fs, path string) (err error) {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()

	rr := &recordingReader{r: f}
	defer func() {
		// the footer decoder can panic on hostile input
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: decode panic: %v", ErrCorrupt, path, p)
		}
	}()

	pf, perr := parquet.OpenFile(rr, size, parquet.SkipPageIndex(true), parquet.SkipBloomFilters(true))
	if perr != nil {
		if ferr := rr.fault(); ferr != nil {
			return fmt.Errorf("read %s: %w", path, ferr)
		}
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, perr)
	}
	if pf.Schema() == nil {
		return fmt.Errorf("%w: %s: missing schema", ErrCorrupt, path)
	}
	return checkChunkBounds(pf, size, path)
}

// checkChunkBounds verifies every column chunk recorded in the footer lies
// inside the file.
func checkChunkBounds(pf *parquet.File, size int64, path string) error {
	md := pf.Metadata()
	for i, rg := range md.RowGroups {
		for j, cc := range rg.Columns {
			start := cc.MetaData.DataPageOffset
			if off := cc.MetaData.DictionaryPageOffset; off > 0 && off < start {
				start = off
			}
			end := start + cc.MetaData.TotalCompressedSize
			if start < 0 || cc.MetaData.TotalCompressedSize < 0 || end > size {
				return fmt.Errorf("%w: %s: row group %d column %d spans [%d,%d) beyond size %d",
					ErrCorrupt, path, i, j, start, end, size)
			}
		}
	}
	return nil
}
