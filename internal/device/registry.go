package device

import (
	"fmt"
	"sort"
	"sync"
)

// Info names a device on a bus.
type Info struct {
	Bus  string
	Name string
}

// Registry holds the buses of a platform and tracks open devices.
type Registry struct {
	mu    sync.Mutex
	buses map[string]Bus
	open  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{buses: make(map[string]Bus)}
}

// AddBus registers b under its name.
func (r *Registry) AddBus(b Bus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buses[b.Name()]; ok {
		return fmt.Errorf("%w: bus %q", ErrDuplicate, b.Name())
	}
	r.buses[b.Name()] = b
	return nil
}

// Bus returns the bus called name.
func (r *Registry) Bus(name string) (Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoBus, name)
	}
	return b, nil
}

// Open opens device name on bus. Failures wrap ErrDeviceOpen.
func (r *Registry) Open(bus, name string) (*Device, error) {
	b, err := r.Bus(bus)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrDeviceOpen, bus, name, err)
	}
	d, err := b.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrDeviceOpen, bus, name, err)
	}

	r.mu.Lock()
	r.open++
	r.mu.Unlock()
	d.onClose = func() {
		r.mu.Lock()
		r.open--
		r.mu.Unlock()
	}
	return d, nil
}

// OpenCount returns the number of devices opened through the registry and
// not yet closed.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// List returns every device on every bus, sorted by bus then name.
func (r *Registry) List() ([]Info, error) {
	r.mu.Lock()
	buses := make([]Bus, 0, len(r.buses))
	for _, b := range r.buses {
		buses = append(buses, b)
	}
	r.mu.Unlock()

	var out []Info
	for _, b := range buses {
		names, err := b.List()
		if err != nil {
			return nil, fmt.Errorf("device: list %s: %w", b.Name(), err)
		}
		for _, n := range names {
			out = append(out, Info{Bus: b.Name(), Name: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bus != out[j].Bus {
			return out[i].Bus < out[j].Bus
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
