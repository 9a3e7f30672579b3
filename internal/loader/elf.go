package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tinyrange/rproc/internal/remoteproc"
)

var ErrBadELF = errors.New("loader: malformed ELF image")

type elfStage int

const (
	elfWantHeader elfStage = iota
	elfHaveHeader
	elfHavePhdrs
	elfDone
)

type elfSegment struct {
	offset int64
	filesz int
	memsz  uint64
	paddr  uint64
}

// ELFPlanner loads the PT_LOAD segments of a 32 or 64-bit ELF image at
// their physical addresses. It first fetches the ELF header, then the
// program headers. Segments without file contents are skipped.
type ELFPlanner struct {
	stage    elfStage
	imageLen int

	class    elf.Class
	order    binary.ByteOrder
	entry    uint64
	phoff    int64
	phentsz  int
	phnum    int
	segments []elfSegment
	next     int
}

// NewELFPlanner returns a planner for one load.
func NewELFPlanner() *ELFPlanner {
	return &ELFPlanner{}
}

// Next implements Planner.
func (p *ELFPlanner) Next(w Window) (Step, error) {
	switch p.stage {
	case elfWantHeader:
		p.imageLen = w.Len
		if w.Len < 52 {
			return Step{}, fmt.Errorf("%w: image of %d bytes", ErrBadELF, w.Len)
		}
		p.stage = elfHaveHeader
		return Step{Offset: 0, CopyLen: min(w.Len, 64), DA: remoteproc.Unspecified}, nil

	case elfHaveHeader:
		if err := p.parseHeader(w.Data); err != nil {
			return Step{}, err
		}
		p.stage = elfHavePhdrs
		if p.phnum == 0 {
			p.stage = elfDone
			return Step{}, nil
		}
		return Step{Offset: p.phoff, CopyLen: p.phnum * p.phentsz, DA: remoteproc.Unspecified}, nil

	case elfHavePhdrs:
		if err := p.parsePhdrs(w.Data); err != nil {
			return Step{}, err
		}
		p.stage = elfDone
		return p.nextSegment(), nil

	default:
		return p.nextSegment(), nil
	}
}

func (p *ELFPlanner) nextSegment() Step {
	if p.next >= len(p.segments) {
		return Step{}
	}
	s := p.segments[p.next]
	p.next++
	return Step{
		Offset:  s.offset,
		CopyLen: s.filesz,
		MemLen:  s.memsz,
		DA:      remoteproc.Address(s.paddr),
	}
}

func (p *ELFPlanner) parseHeader(b []byte) error {
	if len(b) < elf.EI_NIDENT || !bytes.Equal(b[:4], []byte(elf.ELFMAG)) {
		return fmt.Errorf("%w: bad magic", ErrBadELF)
	}
	switch elf.Data(b[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		p.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		p.order = binary.BigEndian
	default:
		return fmt.Errorf("%w: unknown data encoding %d", ErrBadELF, b[elf.EI_DATA])
	}
	p.class = elf.Class(b[elf.EI_CLASS])
	r := bytes.NewReader(b)

	switch p.class {
	case elf.ELFCLASS64:
		var hdr elf.Header64
		if err := binary.Read(r, p.order, &hdr); err != nil {
			return fmt.Errorf("%w: header: %w", ErrBadELF, err)
		}
		p.entry = hdr.Entry
		p.phoff = int64(hdr.Phoff)
		p.phentsz = int(hdr.Phentsize)
		p.phnum = int(hdr.Phnum)
		if p.phnum > 0 && p.phentsz < binary.Size(elf.Prog64{}) {
			return fmt.Errorf("%w: program header entry size %d", ErrBadELF, p.phentsz)
		}
	case elf.ELFCLASS32:
		var hdr elf.Header32
		if err := binary.Read(r, p.order, &hdr); err != nil {
			return fmt.Errorf("%w: header: %w", ErrBadELF, err)
		}
		p.entry = uint64(hdr.Entry)
		p.phoff = int64(hdr.Phoff)
		p.phentsz = int(hdr.Phentsize)
		p.phnum = int(hdr.Phnum)
		if p.phnum > 0 && p.phentsz < binary.Size(elf.Prog32{}) {
			return fmt.Errorf("%w: program header entry size %d", ErrBadELF, p.phentsz)
		}
	default:
		return fmt.Errorf("%w: unknown class %d", ErrBadELF, b[elf.EI_CLASS])
	}

	end := p.phoff + int64(p.phnum*p.phentsz)
	if p.phoff < 0 || end > int64(p.imageLen) {
		return fmt.Errorf("%w: program headers [%d, %d) beyond image of %d bytes", ErrBadELF, p.phoff, end, p.imageLen)
	}
	return nil
}

func (p *ELFPlanner) parsePhdrs(b []byte) error {
	if len(b) < p.phnum*p.phentsz {
		return fmt.Errorf("%w: program headers truncated", ErrBadELF)
	}
	for i := 0; i < p.phnum; i++ {
		r := bytes.NewReader(b[i*p.phentsz : (i+1)*p.phentsz])
		var s elfSegment
		var typ elf.ProgType
		switch p.class {
		case elf.ELFCLASS64:
			var ph elf.Prog64
			if err := binary.Read(r, p.order, &ph); err != nil {
				return fmt.Errorf("%w: program header %d: %w", ErrBadELF, i, err)
			}
			typ = elf.ProgType(ph.Type)
			s = elfSegment{offset: int64(ph.Off), filesz: int(ph.Filesz), memsz: ph.Memsz, paddr: ph.Paddr}
		default:
			var ph elf.Prog32
			if err := binary.Read(r, p.order, &ph); err != nil {
				return fmt.Errorf("%w: program header %d: %w", ErrBadELF, i, err)
			}
			typ = elf.ProgType(ph.Type)
			s = elfSegment{offset: int64(ph.Off), filesz: int(ph.Filesz), memsz: uint64(ph.Memsz), paddr: uint64(ph.Paddr)}
		}
		if typ != elf.PT_LOAD || s.filesz == 0 {
			continue
		}
		if s.offset < 0 || s.offset+int64(s.filesz) > int64(p.imageLen) {
			return fmt.Errorf("%w: segment %d [%d, %d) beyond image", ErrBadELF, i, s.offset, s.offset+int64(s.filesz))
		}
		if s.memsz < uint64(s.filesz) {
			return fmt.Errorf("%w: segment %d memsz 0x%x < filesz 0x%x", ErrBadELF, i, s.memsz, s.filesz)
		}
		p.segments = append(p.segments, s)
	}
	return nil
}

// EntryPoint implements EntryPointer.
func (p *ELFPlanner) EntryPoint() (uint64, bool) {
	return p.entry, p.stage > elfHaveHeader
}
