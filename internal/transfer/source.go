package transfer

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

const defaultMimeType = "application/octet-stream"

// FileSource is an immutable byte source with a known size, read by range.
type FileSource interface {
	io.ReaderAt
	Name() string
	Size() uint64
	MimeType() string
}

// File is a FileSource backed by a file on disk.
type File struct {
	f        *os.File
	name     string
	size     uint64
	mimeType string
}

var _ FileSource = (*File)(nil)

// OpenFile opens path for sharing. The MIME type comes from the extension, falling
// back to content sniffing of the first 512 bytes.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		head := make([]byte, 512)
		n, _ := f.ReadAt(head, 0)
		mimeType = http.DetectContentType(head[:n])
	}

	return &File{
		f:        f,
		name:     filepath.Base(path),
		size:     uint64(info.Size()),
		mimeType: mimeType,
	}, nil
}

func (f *File) Name() string     { return f.name }
func (f *File) Size() uint64     { return f.size }
func (f *File) MimeType() string { return f.mimeType }

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

// Close releases the underlying file handle.
func (f *File) Close() error {
	return f.f.Close()
}

// memSource is a FileSource over a byte slice.
type memSource struct {
	*bytes.Reader
	name     string
	mimeType string
}

// BytesSource wraps data as a FileSource. An empty mimeType defaults to
// application/octet-stream.
func BytesSource(name, mimeType string, data []byte) FileSource {
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return &memSource{Reader: bytes.NewReader(data), name: name, mimeType: mimeType}
}

func (s *memSource) Name() string     { return s.name }
func (s *memSource) Size() uint64     { return uint64(s.Reader.Size()) }
func (s *memSource) MimeType() string { return s.mimeType }
