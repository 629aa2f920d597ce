// Package archive packages a batch working directory into one zip.
package archive

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// BuildError reports a packaging failure. It is terminal for the batch.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build archive: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Build zips every regular file in dir into w with maximum compression.
// Entries carry bare file names, no directory prefix. Returns the entry
// count; a directory with no files yields a valid empty archive. Failed rows
// simply never produced a file, so nothing is excluded here.
func Build(dir string, w io.Writer) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, &BuildError{Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	count := 0
	for _, name := range names {
		if err := addEntry(zw, dir, name); err != nil {
			zw.Close()
			return count, &BuildError{Err: err}
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return count, &BuildError{Err: err}
	}
	return count, nil
}

func addEntry(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}
