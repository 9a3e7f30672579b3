package iomem

import "fmt"

// PhysView adapts one or more regions to io.ReaderAt/io.WriterAt where the
// offset is a physical address. Accesses must not straddle two regions.
type PhysView []*Region

func (v PhysView) find(pa uint64, n int) (*Region, int64, error) {
	for _, r := range v {
		if r.Contains(pa, uint64(n)) {
			return r, int64(pa - r.phys), nil
		}
	}
	return nil, 0, fmt.Errorf("%w: no region covers pa=0x%x len=%d", ErrOutOfRange, pa, n)
}

// ReadAt implements io.ReaderAt.
func (v PhysView) ReadAt(p []byte, pa int64) (int, error) {
	r, off, err := v.find(uint64(pa), len(p))
	if err != nil {
		return 0, err
	}
	return r.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (v PhysView) WriteAt(p []byte, pa int64) (int, error) {
	r, off, err := v.find(uint64(pa), len(p))
	if err != nil {
		return 0, err
	}
	return r.WriteAt(p, off)
}

// Read32 reads the word at pa.
func (v PhysView) Read32(pa uint64) (uint32, error) {
	r, off, err := v.find(pa, 4)
	if err != nil {
		return 0, err
	}
	return r.Read32(uint64(off))
}

// Write32 writes the word at pa.
func (v PhysView) Write32(pa uint64, value uint32) error {
	r, off, err := v.find(pa, 4)
	if err != nil {
		return err
	}
	return r.Write32(uint64(off), value)
}
