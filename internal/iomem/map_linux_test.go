//go:build linux

package iomem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMapFileSharedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm")
	if err := os.WriteFile(path, make([]byte, 3*4096), 0o600); err != nil {
		t.Fatal(err)
	}

	// Unaligned offset exercises the page rounding.
	r, err := MapPath(path, 4096+16, 64, 0x90100000)
	if err != nil {
		t.Fatalf("MapPath: %v", err)
	}
	if r.Phys() != 0x90100000 || r.Size() != 64 {
		t.Fatalf("region = %v", r)
	}
	if err := r.Write32(0, 0x01020304); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := data[4096+16 : 4096+20]
	if got[0] != 0x04 || got[3] != 0x01 {
		t.Fatalf("file bytes = % x", got)
	}
}
