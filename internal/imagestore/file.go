package imagestore

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/rproc/internal/iomem"
)

// DefaultChunkSize bounds the host buffer used by FileStore.Copy.
const DefaultChunkSize = 64 << 10

// FileStore streams an image from disk so that only one chunk is resident
// at a time.
type FileStore struct {
	ChunkSize int

	f    *os.File
	size int64
}

// NewFileStore creates a store with the default chunk size.
func NewFileStore() *FileStore {
	return &FileStore{ChunkSize: DefaultChunkSize}
}

// Open opens path and returns its size.
func (s *FileStore) Open(path string) (int, error) {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("imagestore: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("imagestore: stat %s: %w", path, err)
	}
	s.f = f
	s.size = st.Size()
	return int(s.size), nil
}

// Read reads [off, off+n). The result may be shorter than n at the end of
// the image.
func (s *FileStore) Read(off int64, n int) ([]byte, error) {
	if s.f == nil {
		return nil, ErrNotOpen
	}
	if off < 0 || off > s.size {
		return nil, fmt.Errorf("%w: offset %d size %d", ErrRange, off, s.size)
	}
	buf := make([]byte, n)
	got, err := s.f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("imagestore: read %s at %d: %w", s.f.Name(), off, err)
	}
	return buf[:got], nil
}

// Copy streams n image bytes at off into dst at dstOff. Plain memory
// destinations are read into directly.
func (s *FileStore) Copy(off int64, n int, dst *iomem.Region, dstOff uint64) (int, error) {
	if s.f == nil {
		return 0, ErrNotOpen
	}
	if b := dst.Bytes(dstOff, uint64(n)); b != nil {
		got, err := s.f.ReadAt(b, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return got, fmt.Errorf("imagestore: read %s at %d: %w", s.f.Name(), off, err)
		}
		return got, nil
	}

	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, min(chunk, n))
	done := 0
	for done < n {
		want := min(len(buf), n-done)
		got, err := s.f.ReadAt(buf[:want], off+int64(done))
		if got > 0 {
			w, werr := copyInto(dst, dstOff+uint64(done), buf[:got])
			done += w
			if werr != nil {
				return done, werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return done, nil
			}
			return done, fmt.Errorf("imagestore: read %s at %d: %w", s.f.Name(), off+int64(done), err)
		}
	}
	return done, nil
}

// Close closes the file.
func (s *FileStore) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
