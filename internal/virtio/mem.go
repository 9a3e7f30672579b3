package virtio

import (
	"encoding/binary"
	"fmt"
)

func readInto(mem Memory, addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	n, err := mem.ReadAt(buf, int64(addr))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("virtio: short shared memory read (want %d, got %d)", len(buf), n)
	}
	return nil
}

func writeFrom(mem Memory, addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := mem.WriteAt(data, int64(addr))
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("virtio: short shared memory write (want %d, got %d)", len(data), n)
	}
	return nil
}

func readDescriptor(mem Memory, l Layout, idx uint16) (Descriptor, error) {
	if idx >= l.Num {
		return Descriptor{}, fmt.Errorf("virtio: descriptor index %d out of bounds (size %d)", idx, l.Num)
	}
	var buf [descSize]byte
	if err := readInto(mem, l.DescAddr()+uint64(idx)*descSize, buf[:]); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Addr:   binary.LittleEndian.Uint64(buf[0:8]),
		Length: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:  binary.LittleEndian.Uint16(buf[12:14]),
		Next:   binary.LittleEndian.Uint16(buf[14:16]),
	}, nil
}

func writeDescriptor(mem Memory, l Layout, idx uint16, d Descriptor) error {
	var buf [descSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], d.Addr)
	binary.LittleEndian.PutUint32(buf[8:12], d.Length)
	binary.LittleEndian.PutUint16(buf[12:14], d.Flags)
	binary.LittleEndian.PutUint16(buf[14:16], d.Next)
	return writeFrom(mem, l.DescAddr()+uint64(idx)*descSize, buf[:])
}

// ringHeader reads the flags and idx halves of a ring header word.
func ringHeader(mem Memory, addr uint64) (flags, idx uint16, err error) {
	v, err := mem.Read32(addr)
	if err != nil {
		return 0, 0, err
	}
	return uint16(v), uint16(v >> 16), nil
}

func putRingHeader(mem Memory, addr uint64, flags, idx uint16) error {
	return mem.Write32(addr, uint32(flags)|uint32(idx)<<16)
}
