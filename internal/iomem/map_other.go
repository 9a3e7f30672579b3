//go:build !linux

package iomem

import (
	"errors"
	"os"
)

var errMapUnsupported = errors.New("iomem: file mappings are only supported on linux")

func MapFile(f *os.File, offset int64, size uint64, phys uint64) (*Region, error) {
	return nil, errMapUnsupported
}

func MapPath(path string, offset int64, size uint64, phys uint64) (*Region, error) {
	return nil, errMapUnsupported
}
