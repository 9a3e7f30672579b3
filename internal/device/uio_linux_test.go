//go:build linux

package device

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUIOBusOpen(t *testing.T) {
	root := t.TempDir()
	sysfs := filepath.Join(root, "sys")
	dev := filepath.Join(root, "dev")
	page := os.Getpagesize()

	uio := filepath.Join(sysfs, "90200000.rproc", "uio", "uio3")
	writeFile(t, filepath.Join(uio, "maps", "map0", "addr"), "0x90200000\n")
	writeFile(t, filepath.Join(uio, "maps", "map0", "size"), "0x100\n")
	writeFile(t, filepath.Join(uio, "maps", "map1", "addr"), "0x3ed00000\n")
	writeFile(t, filepath.Join(uio, "maps", "map1", "size"), "0x40\n")
	writeFile(t, filepath.Join(uio, "maps", "map1", "offset"), "0x10\n")
	if err := os.MkdirAll(filepath.Join(sysfs, "other"), 0o755); err != nil {
		t.Fatal(err)
	}

	// Stand-in for /dev/uio3: one page per map.
	node := make([]byte, 2*page)
	node[0] = 0xaa
	node[page+0x10] = 0xbb
	writeFile(t, filepath.Join(dev, "uio3"), string(node))

	bus := NewUIOBus("", sysfs, dev)
	names, err := bus.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "90200000.rproc" {
		t.Fatalf("List = %v", names)
	}

	d, err := bus.Open("90200000.rproc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if d.IRQ != 3 {
		t.Fatalf("IRQ = %d, want 3", d.IRQ)
	}
	if len(d.Regions) != 2 {
		t.Fatalf("regions = %d, want 2", len(d.Regions))
	}
	r0, _ := d.Region(0)
	if r0.Phys() != 0x90200000 || r0.Size() != 0x100 {
		t.Fatalf("region 0 = %s", r0)
	}
	if b := r0.Bytes(0, 1); b[0] != 0xaa {
		t.Fatalf("region 0 byte = 0x%x", b[0])
	}
	r1, _ := d.Region(1)
	if r1.Phys() != 0x3ed00010 {
		t.Fatalf("region 1 phys = 0x%x", r1.Phys())
	}
	if b := r1.Bytes(0, 1); b[0] != 0xbb {
		t.Fatalf("region 1 byte = 0x%x", b[0])
	}

	if _, err := bus.Open("other"); err == nil {
		t.Fatal("Open of an unbound device succeeded")
	}
}
