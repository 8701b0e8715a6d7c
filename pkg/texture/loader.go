package texture

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Source locates the undecoded pixels of a texture: Offset bytes into File
// under the loader's directory, or Data when the source is in memory.
type Source struct {
	File   string
	Offset int64
	Data   []byte
}

// InMemory reports whether the source has no backing file.
func (s Source) InMemory() bool { return s.File == "" }

func (s Source) equal(o Source) bool {
	return s.File == o.File && s.Offset == o.Offset && bytes.Equal(s.Data, o.Data)
}

// Loader reads undecoded source bytes for a texture.
type Loader interface {
	LoadSource(src Source, format SrcFormat, width, height int) ([]byte, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(src Source, format SrcFormat, width, height int) ([]byte, error)

// LoadSource calls f.
func (f LoaderFunc) LoadSource(src Source, format SrcFormat, width, height int) ([]byte, error) {
	return f(src, format, width, height)
}

// FileLoader reads sources relative to Dir. In-memory sources are returned
// as they are.
type FileLoader struct {
	Dir string
}

// LoadSource reads width*height pixels of format at src.Offset of src.File.
func (l FileLoader) LoadSource(src Source, format SrcFormat, width, height int) ([]byte, error) {
	size := width * height * format.BytesPerPixel()
	if src.InMemory() {
		return src.Data, nil
	}

	f, err := os.Open(filepath.Join(l.Dir, filepath.FromSlash(src.File)))
	if err != nil {
		return nil, errors.Wrapf(err, "texture: open %s", src.File)
	}
	defer f.Close()

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, src.Offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(ErrDecode, "texture: %s truncated at offset %d (need %d bytes)", src.File, src.Offset, size)
		}
		return nil, errors.Wrapf(err, "texture: read %s", src.File)
	}
	return buf, nil
}
