//go:build linux

package iomem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MapFile maps size bytes of f starting at offset into a region whose
// physical base is phys. The mapping is shared so that writes reach the
// device (or file) behind f. Offset does not need to be page aligned.
func MapFile(f *os.File, offset int64, size uint64, phys uint64) (*Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("iomem: map %s: zero size", f.Name())
	}
	pageSize := int64(unix.Getpagesize())
	aligned := offset &^ (pageSize - 1)
	delta := offset - aligned

	data, err := unix.Mmap(int(f.Fd()), aligned, int(size)+int(delta),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("iomem: mmap %s at 0x%x: %w", f.Name(), offset, err)
	}

	r := FromBytes(phys, data[delta:delta+int64(size)])
	return r.WithCloser(func() error {
		if err := unix.Munmap(data); err != nil {
			return fmt.Errorf("iomem: munmap %s: %w", f.Name(), err)
		}
		return nil
	}), nil
}

// MapPath opens path read-write and maps it like MapFile. The file
// descriptor is closed once the mapping exists.
func MapPath(path string, offset int64, size uint64, phys uint64) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("iomem: open %s: %w", path, err)
	}
	defer f.Close()
	return MapFile(f, offset, size, phys)
}
