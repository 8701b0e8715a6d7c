package writer

import "io"

// StreamWriter passes the report straight through to W.
type StreamWriter struct {
	W io.Writer
}

// Commit writes buf to W.
func (w StreamWriter) Commit(buf []byte) error {
	_, err := w.W.Write(buf)
	return err
}

// MemWriter keeps the last committed report.
type MemWriter struct {
	Buf []byte
}

// Commit stores a copy of buf.
func (w *MemWriter) Commit(buf []byte) error {
	w.Buf = append(w.Buf[:0], buf...)
	return nil
}
