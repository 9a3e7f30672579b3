package physmem

import (
	"github.com/tinyrange/rproc/internal/iomem"
)

// DefaultDevMem is the Linux physical memory device.
const DefaultDevMem = "/dev/mem"

// DevMem maps physical windows through a memory device file where the file
// offset equals the physical address.
type DevMem struct {
	Path string
}

// Window implements Mapper. Each call creates an independent mapping that
// is released when the region is closed.
func (d DevMem) Window(pa, size uint64) (*iomem.Region, error) {
	path := d.Path
	if path == "" {
		path = DefaultDevMem
	}
	return iomem.MapPath(path, int64(pa), size, pa)
}

var (
	_ Mapper = (*Bus)(nil)
	_ Mapper = DevMem{}
)
