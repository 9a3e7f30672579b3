package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/tinyrange/rproc/internal/imagestore"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

func elfIdent(class elf.Class, data elf.Data) [elf.EI_NIDENT]byte {
	var id [elf.EI_NIDENT]byte
	copy(id[:], elf.ELFMAG)
	id[elf.EI_CLASS] = byte(class)
	id[elf.EI_DATA] = byte(data)
	id[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	return id
}

// buildELF64 lays out the header, phdrs and then the segment payloads at
// the offsets given in progs.
func buildELF64(t *testing.T, entry uint64, progs []elf.Prog64, payload map[uint64][]byte, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := elf.Header64{
		Ident:     elfIdent(elf.ELFCLASS64, elf.ELFDATA2LSB),
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     64,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     uint16(len(progs)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		t.Fatal(err)
	}
	for i := range progs {
		if err := binary.Write(&buf, binary.LittleEndian, &progs[i]); err != nil {
			t.Fatal(err)
		}
	}
	img := make([]byte, size)
	copy(img, buf.Bytes())
	for off, data := range payload {
		copy(img[off:], data)
	}
	return img
}

func TestELFLoad(t *testing.T) {
	text := pattern(0x80)
	data := bytes.Repeat([]byte{0x42}, 0x40)
	img := buildELF64(t, 0x1000, []elf.Prog64{
		{Type: uint32(elf.PT_LOAD), Off: 0x200, Paddr: 0x1000, Vaddr: 0x1000, Filesz: 0x80, Memsz: 0x100},
		{Type: uint32(elf.PT_NOTE), Off: 0x120, Filesz: 0x10, Memsz: 0x10},
		{Type: uint32(elf.PT_LOAD), Off: 0x2c0, Paddr: 0x3000, Filesz: 0, Memsz: 0x40},
		{Type: uint32(elf.PT_LOAD), Off: 0x280, Paddr: 0x2000, Vaddr: 0x2000, Filesz: 0x40, Memsz: 0x40},
	}, map[uint64][]byte{0x200: text, 0x280: data}, 0x2c0)

	b := &ramBackend{io: filled(0x80000000, 0x4000, 0xff)}
	c, err := remoteproc.New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Remove()

	l := &Loader{Store: imagestore.NewMemStoreFromBytes(img), Planner: NewELFPlanner()}
	res, err := l.LoadChunked(c, "fw.elf")
	if err != nil {
		t.Fatalf("LoadChunked: %v", err)
	}
	if res.Segments != 2 || res.Copied != 0xc0 || res.Padded != 0x80 {
		t.Fatalf("Result = %+v", res)
	}
	if res.Entry != 0x1000 || b.boot != 0x1000 {
		t.Fatalf("entry = 0x%x boot = 0x%x, want 0x1000", res.Entry, b.boot)
	}

	mem := b.io
	if !bytes.Equal(mem.Bytes(0x1000, 0x80), text) {
		t.Fatal("text segment mismatch")
	}
	for i, v := range mem.Bytes(0x1080, 0x80) {
		if v != 0 {
			t.Fatalf("bss byte %d = 0x%x, want 0", i, v)
		}
	}
	if !bytes.Equal(mem.Bytes(0x2000, 0x40), data) {
		t.Fatal("data segment mismatch")
	}
	// Segments without file contents are skipped.
	if v := mem.Bytes(0x3000, 1)[0]; v != 0xff {
		t.Fatalf("filesz==0 segment written: 0x%x", v)
	}
}

func TestELFPlanner32BigEndian(t *testing.T) {
	var buf bytes.Buffer
	hdr := elf.Header32{
		Ident:     elfIdent(elf.ELFCLASS32, elf.ELFDATA2MSB),
		Type:      uint16(elf.ET_EXEC),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x400,
		Phoff:     52,
		Ehsize:    52,
		Phentsize: 32,
		Phnum:     1,
	}
	binary.Write(&buf, binary.BigEndian, &hdr)
	binary.Write(&buf, binary.BigEndian, &elf.Prog32{
		Type: uint32(elf.PT_LOAD), Off: 0x60, Paddr: 0x400, Filesz: 0x20, Memsz: 0x30,
	})
	img := make([]byte, 0x80)
	copy(img, buf.Bytes())

	p := NewELFPlanner()
	if _, ok := p.EntryPoint(); ok {
		t.Fatal("entry point known before the header was read")
	}

	step, err := p.Next(Window{Len: len(img)})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if step.DA.IsSpecified() || step.Offset != 0 || step.CopyLen != 64 {
		t.Fatalf("header fetch = %+v", step)
	}
	step, err = p.Next(Window{Offset: 0, Len: 64, Data: img[:64]})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if step.DA.IsSpecified() || step.Offset != 52 || step.CopyLen != 32 {
		t.Fatalf("phdr fetch = %+v", step)
	}
	step, err = p.Next(Window{Offset: 52, Len: 32, Data: img[52:84]})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := Step{Offset: 0x60, CopyLen: 0x20, MemLen: 0x30, DA: remoteproc.Address(0x400)}
	if step != want {
		t.Fatalf("segment step = %+v, want %+v", step, want)
	}
	step, err = p.Next(Window{Offset: 0x60, Len: 0x20})
	if err != nil || !step.Done() {
		t.Fatalf("final step = %+v, %v", step, err)
	}
	if entry, ok := p.EntryPoint(); !ok || entry != 0x400 {
		t.Fatalf("EntryPoint = 0x%x, %v", entry, ok)
	}
}

func TestELFPlannerRejectsGarbage(t *testing.T) {
	img := bytes.Repeat([]byte{0x7f}, 128)
	target := &ramBackend{io: iomem.NewMemory(0x80000000, 0x1000)}
	c, err := remoteproc.New(target)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Remove()

	l := &Loader{Store: imagestore.NewMemStoreFromBytes(img), Planner: NewELFPlanner()}
	_, err = l.LoadBlocking(c, "garbage")
	if !errors.Is(err, ErrBadELF) || !errors.Is(err, remoteproc.ErrPlanner) {
		t.Fatalf("error = %v, want ErrBadELF via ErrPlanner", err)
	}
	if target.starts != 0 {
		t.Fatal("core started after planner failure")
	}
	if c.State() != remoteproc.Ready {
		t.Fatalf("state = %s, want ready for a retry", c.State())
	}

	short := NewELFPlanner()
	if _, err := short.Next(Window{Len: 10}); !errors.Is(err, ErrBadELF) {
		t.Fatalf("short image error = %v", err)
	}
}
