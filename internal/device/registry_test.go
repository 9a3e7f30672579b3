package device

import (
	"errors"
	"testing"

	"github.com/tinyrange/rproc/internal/physmem"
)

func newTestRegistry(t *testing.T) (*Registry, *physmem.Bus) {
	t.Helper()
	pm := physmem.NewBus()
	if _, err := pm.AddRAM("shm", 0x90000000, 0x10000); err != nil {
		t.Fatalf("AddRAM: %v", err)
	}
	gb := NewGenericBus(pm)
	if err := gb.Register(Generic{
		Name:    "shm",
		Windows: []Window{{Phys: 0x90000000, Size: 0x1000}, {Phys: 0x90002000, Size: 0x1000}},
		IRQ:     NoIRQ,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := gb.Register(Generic{
		Name:    "broken",
		Windows: []Window{{Phys: 0x90000000, Size: 0x1000}, {Phys: 0xa0000000, Size: 0x1000}},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg := NewRegistry()
	if err := reg.AddBus(gb); err != nil {
		t.Fatalf("AddBus: %v", err)
	}
	return reg, pm
}

func TestRegistryOpenClose(t *testing.T) {
	reg, pm := newTestRegistry(t)

	d, err := reg.Open(GenericBusName, "shm")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reg.OpenCount() != 1 {
		t.Fatalf("OpenCount = %d, want 1", reg.OpenCount())
	}
	r, err := d.Region(1)
	if err != nil {
		t.Fatalf("Region(1): %v", err)
	}
	if r.Phys() != 0x90002000 {
		t.Fatalf("region phys = 0x%x", r.Phys())
	}
	if err := r.Write32(0, 0xdeadbeef); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	if v, _ := pm.Read32(0x90002000); v != 0xdeadbeef {
		t.Fatalf("bus word = 0x%x, want 0xdeadbeef", v)
	}
	if _, err := d.Region(2); !errors.Is(err, ErrNoRegion) {
		t.Fatalf("Region(2) error = %v, want ErrNoRegion", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if reg.OpenCount() != 0 {
		t.Fatalf("OpenCount after close = %d, want 0", reg.OpenCount())
	}
}

func TestRegistryOpenErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	if _, err := reg.Open("pci", "shm"); !errors.Is(err, ErrNoBus) || !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("unknown bus error = %v", err)
	}
	if _, err := reg.Open(GenericBusName, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown device error = %v", err)
	}
	// The second window is unmapped: the first one must not leak.
	if _, err := reg.Open(GenericBusName, "broken"); !errors.Is(err, ErrDeviceOpen) {
		t.Fatalf("broken device error = %v", err)
	}
	if reg.OpenCount() != 0 {
		t.Fatalf("OpenCount = %d after failed opens", reg.OpenCount())
	}
}

func TestRegistryList(t *testing.T) {
	reg, _ := newTestRegistry(t)
	infos, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Info{{GenericBusName, "broken"}, {GenericBusName, "shm"}}
	if len(infos) != len(want) {
		t.Fatalf("List = %v, want %v", infos, want)
	}
	for i := range want {
		if infos[i] != want[i] {
			t.Fatalf("List[%d] = %v, want %v", i, infos[i], want[i])
		}
	}
}
