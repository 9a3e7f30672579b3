package remoteproc

import (
	"fmt"

	"github.com/tinyrange/rproc/internal/iomem"
)

// MemoryRegion is a window of the remote core's memory, seen at PA by the
// host and at DA by the remote core.
type MemoryRegion struct {
	Name string
	PA   uint64
	DA   uint64
	Size uint64
	IO   *iomem.Region
}

func (m *MemoryRegion) containsPA(pa, size uint64) bool {
	return pa >= m.PA && pa-m.PA <= m.Size && size <= m.Size-(pa-m.PA)
}

func (m *MemoryRegion) containsDA(da, size uint64) bool {
	return da >= m.DA && da-m.DA <= m.Size && size <= m.Size-(da-m.DA)
}

// DAToPA translates a device address inside the region.
func (m *MemoryRegion) DAToPA(da uint64) (uint64, bool) {
	if !m.containsDA(da, 1) {
		return 0, false
	}
	return m.PA + (da - m.DA), true
}

// PAToDA translates a physical address inside the region.
func (m *MemoryRegion) PAToDA(pa uint64) (uint64, bool) {
	if !m.containsPA(pa, 1) {
		return 0, false
	}
	return m.DA + (pa - m.PA), true
}

func (m *MemoryRegion) String() string {
	return fmt.Sprintf("%s pa=[0x%x-0x%x) da=0x%x", m.Name, m.PA, m.PA+m.Size, m.DA)
}

// regionTable keeps regions in insertion order. Lookups return the first
// match.
type regionTable struct {
	regions []*MemoryRegion
}

func (t *regionTable) add(m *MemoryRegion) {
	t.regions = append(t.regions, m)
}

func (t *regionTable) byPA(pa, size uint64) *MemoryRegion {
	for _, m := range t.regions {
		if m.containsPA(pa, size) {
			return m
		}
	}
	return nil
}

func (t *regionTable) byDA(da, size uint64) *MemoryRegion {
	for _, m := range t.regions {
		if m.containsDA(da, size) {
			return m
		}
	}
	return nil
}

// covering finds a region mapping [pa, pa+size) to [da, da+size).
func (t *regionTable) covering(pa, da, size uint64) *MemoryRegion {
	for _, m := range t.regions {
		if m.containsPA(pa, size) && m.containsDA(da, size) && pa-m.PA == da-m.DA {
			return m
		}
	}
	return nil
}

func (t *regionTable) byName(name string) *MemoryRegion {
	for _, m := range t.regions {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (t *regionTable) list() []*MemoryRegion {
	return append([]*MemoryRegion(nil), t.regions...)
}

func (t *regionTable) reset() []*MemoryRegion {
	old := t.regions
	t.regions = nil
	return old
}
