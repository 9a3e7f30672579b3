// Package physmem models a physical address space made of RAM windows and
// memory-mapped register blocks, and maps windows of it for a remote core.
package physmem

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/rproc/internal/iomem"
)

// Mapper hands out I/O regions for physical windows.
type Mapper interface {
	Window(pa, size uint64) (*iomem.Region, error)
}

// Mapping maps a region to an address range
type Mapping struct {
	Name   string
	Base   uint64
	Size   uint64
	Region *iomem.Region
}

// Bus is a physical address space shared by the host and a simulated
// remote core.
type Bus struct {
	mu       sync.RWMutex
	mappings []Mapping
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// AddRAM backs [base, base+size) with zeroed host memory.
func (bus *Bus) AddRAM(name string, base, size uint64) (*iomem.Region, error) {
	r := iomem.NewMemory(base, size)
	if err := bus.add(Mapping{Name: name, Base: base, Size: size, Region: r}); err != nil {
		return nil, err
	}
	return r, nil
}

// AddDevice maps a register block at base.
func (bus *Bus) AddDevice(name string, base uint64, dev iomem.Device) (*iomem.Region, error) {
	r := iomem.FromDevice(base, dev)
	if err := bus.add(Mapping{Name: name, Base: base, Size: dev.Size(), Region: r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (bus *Bus) add(m Mapping) error {
	if m.Size == 0 {
		return fmt.Errorf("physmem: cannot map zero-size region %s", m.Name)
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()

	end := m.Base + m.Size
	for _, other := range bus.mappings {
		if m.Base < other.Base+other.Size && end > other.Base {
			return fmt.Errorf("physmem: %s [0x%x-0x%x) overlaps %s [0x%x-0x%x)",
				m.Name, m.Base, end, other.Name, other.Base, other.Base+other.Size)
		}
	}
	bus.mappings = append(bus.mappings, m)
	sort.Slice(bus.mappings, func(i, j int) bool {
		return bus.mappings[i].Base < bus.mappings[j].Base
	})
	return nil
}

// findMapping finds the mapping covering [addr, addr+size)
func (bus *Bus) findMapping(addr, size uint64) (Mapping, error) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, m := range bus.mappings {
		if addr >= m.Base && addr-m.Base <= m.Size && size <= m.Size-(addr-m.Base) {
			return m, nil
		}
	}
	return Mapping{}, fmt.Errorf("physmem: nothing mapped at [0x%x-0x%x)", addr, addr+size)
}

// Window implements Mapper. The returned region is a view and does not own
// the backing memory; closing it only invalidates the view.
func (bus *Bus) Window(pa, size uint64) (*iomem.Region, error) {
	m, err := bus.findMapping(pa, size)
	if err != nil {
		return nil, err
	}
	return m.Region.Sub(pa-m.Base, size)
}

// Mappings returns a copy of the mappings ordered by base address.
func (bus *Bus) Mappings() []Mapping {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return append([]Mapping(nil), bus.mappings...)
}

// ReadAt reads physical memory at pa.
func (bus *Bus) ReadAt(p []byte, pa int64) (int, error) {
	m, err := bus.findMapping(uint64(pa), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return m.Region.ReadAt(p, pa-int64(m.Base))
}

// WriteAt writes physical memory at pa.
func (bus *Bus) WriteAt(p []byte, pa int64) (int, error) {
	m, err := bus.findMapping(uint64(pa), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return m.Region.WriteAt(p, pa-int64(m.Base))
}

// LoadBytes copies data to physical address addr.
func (bus *Bus) LoadBytes(addr uint64, data []byte) error {
	_, err := bus.WriteAt(data, int64(addr))
	return err
}

// Read32 reads a word at a physical address.
func (bus *Bus) Read32(addr uint64) (uint32, error) {
	m, err := bus.findMapping(addr, 4)
	if err != nil {
		return 0, err
	}
	return m.Region.Read32(addr - m.Base)
}

// Write32 writes a word at a physical address.
func (bus *Bus) Write32(addr uint64, value uint32) error {
	m, err := bus.findMapping(addr, 4)
	if err != nil {
		return err
	}
	return m.Region.Write32(addr-m.Base, value)
}
