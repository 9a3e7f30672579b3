package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/rproc/internal/physmem"
)

// GenericBusName is the name of the statically described bus.
const GenericBusName = "generic"

// Window is a physical window of a generic device.
type Window struct {
	Phys uint64
	Size uint64
}

// Generic describes a device at fixed physical addresses.
type Generic struct {
	Name    string
	Windows []Window
	IRQ     int
}

// GenericBus serves statically registered devices whose windows are mapped
// through a physmem.Mapper.
type GenericBus struct {
	name   string
	mapper physmem.Mapper

	mu      sync.Mutex
	devices map[string]Generic
}

// NewGenericBus creates a bus named GenericBusName.
func NewGenericBus(m physmem.Mapper) *GenericBus {
	return NewNamedGenericBus(GenericBusName, m)
}

// NewNamedGenericBus creates a generic bus with a custom name.
func NewNamedGenericBus(name string, m physmem.Mapper) *GenericBus {
	return &GenericBus{
		name:    name,
		mapper:  m,
		devices: make(map[string]Generic),
	}
}

// Register adds a device description.
func (b *GenericBus) Register(g Generic) error {
	if g.Name == "" {
		return fmt.Errorf("device: register on %s: empty name", b.name)
	}
	if len(g.Windows) == 0 {
		return fmt.Errorf("device: register %s/%s: no windows", b.name, g.Name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[g.Name]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, b.name, g.Name)
	}
	b.devices[g.Name] = g
	return nil
}

// Name implements Bus.
func (b *GenericBus) Name() string { return b.name }

// Open implements Bus. Windows already mapped are released if a later one
// fails.
func (b *GenericBus) Open(name string) (*Device, error) {
	b.mu.Lock()
	g, ok := b.devices[name]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, b.name, name)
	}

	d := &Device{Name: name, Bus: b.name, IRQ: g.IRQ}
	for i, w := range g.Windows {
		r, err := b.mapper.Window(w.Phys, w.Size)
		if err != nil {
			closeAll(d.Regions)
			return nil, fmt.Errorf("device: map %s/%s window %d: %w", b.name, name, i, err)
		}
		d.Regions = append(d.Regions, r)
	}
	return d, nil
}

// List implements Bus.
func (b *GenericBus) List() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.devices))
	for n := range b.devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

var _ Bus = (*GenericBus)(nil)
