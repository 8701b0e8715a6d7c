// Package writer holds the sinks a rendered memory report is committed to.
package writer

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Sink receives one complete report.
type Sink interface {
	Commit(buf []byte) error
}

// FileWriter replaces the file at Path atomically: readers see the previous
// report or the new one, never a partial write.
type FileWriter struct {
	Path string
}

// Commit writes buf to a temp file next to Path, syncs it and renames it
// over Path.
func (w *FileWriter) Commit(buf []byte) error {
	dir := filepath.Dir(w.Path)
	tmpFile, err := os.CreateTemp(dir, ".hunkkit-report-*")
	if err != nil {
		return errors.Wrap(err, "writer: create temp file")
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(buf); err != nil {
		return errors.Wrap(err, "writer: write temp file")
	}
	if err := tmpFile.Sync(); err != nil {
		return errors.Wrap(err, "writer: sync temp file")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "writer: close temp file")
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, w.Path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "writer: rename to %s", w.Path)
	}
	return nil
}
