package physmem

import (
	"testing"
)

type scratch struct{ v uint64 }

func (s *scratch) Read(offset uint64, size int) (uint64, error)       { return s.v, nil }
func (s *scratch) Write(offset uint64, size int, value uint64) error { s.v = value; return nil }
func (s *scratch) Size() uint64                                      { return 0x100 }

func TestBusRejectsOverlap(t *testing.T) {
	bus := NewBus()
	if _, err := bus.AddRAM("shm", 0x90100000, 0x100000); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.AddRAM("bad", 0x901ff000, 0x2000); err == nil {
		t.Fatal("overlapping RAM accepted")
	}
	if _, err := bus.AddDevice("ipi", 0x90200000, &scratch{}); err != nil {
		t.Fatalf("adjacent device rejected: %v", err)
	}
	if got := len(bus.Mappings()); got != 2 {
		t.Fatalf("mappings = %d, want 2", got)
	}
}

func TestBusWindowAliasesRAM(t *testing.T) {
	bus := NewBus()
	if _, err := bus.AddRAM("ram", 0x80000000, 0x10000); err != nil {
		t.Fatal(err)
	}

	w, err := bus.Window(0x80001000, 0x100)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.Phys() != 0x80001000 {
		t.Fatalf("window base = 0x%x", w.Phys())
	}
	if err := w.Write32(0x10, 0xcafef00d); err != nil {
		t.Fatal(err)
	}
	v, err := bus.Read32(0x80001010)
	if err != nil || v != 0xcafef00d {
		t.Fatalf("Read32 = 0x%x, %v", v, err)
	}

	if _, err := bus.Window(0x8000ff00, 0x200); err == nil {
		t.Fatal("window past the end of RAM accepted")
	}
}

func TestBusDeviceAccess(t *testing.T) {
	bus := NewBus()
	dev := &scratch{}
	if _, err := bus.AddDevice("reg", 0x1000, dev); err != nil {
		t.Fatal(err)
	}
	if err := bus.Write32(0x1004, 9); err != nil {
		t.Fatal(err)
	}
	if dev.v != 9 {
		t.Fatalf("device saw %d", dev.v)
	}
	if _, err := bus.Read32(0x2000); err == nil {
		t.Fatal("read from unmapped address succeeded")
	}
}
