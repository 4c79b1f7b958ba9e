package aria2dl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/tinoosan/manifest-sync/internal/data"
)

// WriteInput serializes tasks in aria2c input-file format:
//
//	URL
//	  out=filename
func WriteInput(w io.Writer, tasks data.Tasks) error {
	bw := bufio.NewWriter(w)
	for _, t := range tasks {
		if _, err := fmt.Fprintf(bw, "%s\n  out=%s\n", t.URL, t.Name); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// createInputFile writes tasks to a fresh temp file and returns its path.
// The caller owns removal.
func createInputFile(dir string, tasks data.Tasks) (string, error) {
	f, err := os.CreateTemp(dir, "aria2c_input_*.txt")
	if err != nil {
		return "", fmt.Errorf("create input file: %w", err)
	}
	path := f.Name()
	if err := WriteInput(f, tasks); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write input file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close input file: %w", err)
	}
	return path, nil
}
