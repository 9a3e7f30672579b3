// Package imagestore provides firmware image sources for the loader: a
// memory-resident store that reads the whole image on open and a file store
// that streams it.
package imagestore

import (
	"errors"
	"fmt"

	"github.com/tinyrange/rproc/internal/iomem"
)

var (
	ErrNotOpen = errors.New("imagestore: no image open")
	ErrRange   = errors.New("imagestore: read beyond end of image")
)

// copyInto writes src into dst at dstOff, using the host view when dst is
// plain memory.
func copyInto(dst *iomem.Region, dstOff uint64, src []byte) (int, error) {
	if b := dst.Bytes(dstOff, uint64(len(src))); b != nil {
		return copy(b, src), nil
	}
	n, err := dst.WriteAt(src, int64(dstOff))
	if err != nil {
		return n, fmt.Errorf("imagestore: write to %s+0x%x: %w", dst, dstOff, err)
	}
	return n, nil
}
