package imagestore

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/tinyrange/rproc/internal/iomem"
)

// MemStore reads the whole image into memory on Open, or serves an image
// that is already resident.
type MemStore struct {
	fsys   fs.FS
	preset []byte

	data []byte
	open bool
}

// NewMemStore reads images from fsys. A nil fsys reads host paths.
func NewMemStore(fsys fs.FS) *MemStore {
	return &MemStore{fsys: fsys}
}

// NewMemStoreFromBytes serves data whatever path is opened.
func NewMemStoreFromBytes(data []byte) *MemStore {
	return &MemStore{preset: data}
}

// Open loads path and returns its size.
func (s *MemStore) Open(path string) (int, error) {
	if s.preset != nil {
		s.data = s.preset
		s.open = true
		return len(s.data), nil
	}
	var (
		data []byte
		err  error
	)
	if s.fsys == nil {
		data, err = os.ReadFile(path)
	} else {
		data, err = fs.ReadFile(s.fsys, path)
	}
	if err != nil {
		return 0, fmt.Errorf("imagestore: open %s: %w", path, err)
	}
	s.data = data
	s.open = true
	return len(data), nil
}

// Read returns a view of [off, off+n). The view may be shorter than n at the
// end of the image.
func (s *MemStore) Read(off int64, n int) ([]byte, error) {
	if !s.open {
		return nil, ErrNotOpen
	}
	if off < 0 || off > int64(len(s.data)) {
		return nil, fmt.Errorf("%w: offset %d size %d", ErrRange, off, len(s.data))
	}
	end := off + int64(n)
	if end > int64(len(s.data)) {
		end = int64(len(s.data))
	}
	return s.data[off:end:end], nil
}

// Copy writes n image bytes at off into dst at dstOff.
func (s *MemStore) Copy(off int64, n int, dst *iomem.Region, dstOff uint64) (int, error) {
	src, err := s.Read(off, n)
	if err != nil {
		return 0, err
	}
	return copyInto(dst, dstOff, src)
}

// Close drops the image.
func (s *MemStore) Close() error {
	s.data = nil
	s.open = false
	return nil
}
