// Package virtio lays out split virtqueues in shared memory. Queue is the
// device half that consumes available buffers; Driver is the half that
// offers buffers and reaps used ones.
package virtio

import (
	"errors"
	"fmt"
	"io"
)

// Descriptor flags.
const (
	DescFNext  = 1
	DescFWrite = 2
)

// Ring flags.
const (
	AvailFNoInterrupt = 1
	UsedFNoNotify     = 1
)

const (
	descSize     = 16
	usedElemSize = 8
)

var (
	ErrNotReady      = errors.New("virtio: queue not ready")
	ErrNoDescriptors = errors.New("virtio: no free descriptors")
	ErrBadLayout     = errors.New("virtio: bad ring layout")
)

// Memory is shared memory addressed by physical address. The 32-bit word
// accessors publish ring indices.
type Memory interface {
	io.ReaderAt
	io.WriterAt
	Read32(pa uint64) (uint32, error)
	Write32(pa uint64, value uint32) error
}

// Layout places a legacy split ring at Addr: the descriptor table, then
// the available ring, then the used ring at the next Align boundary.
type Layout struct {
	Addr  uint64
	Num   uint16
	Align uint64
}

// Validate checks that Num and Align are powers of two and the rings are
// word aligned.
func (l Layout) Validate() error {
	if l.Num == 0 || l.Num&(l.Num-1) != 0 {
		return fmt.Errorf("%w: size %d is not a power of two", ErrBadLayout, l.Num)
	}
	if l.Align < 4 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("%w: alignment 0x%x", ErrBadLayout, l.Align)
	}
	if l.Addr%4 != 0 {
		return fmt.Errorf("%w: address 0x%x is not word aligned", ErrBadLayout, l.Addr)
	}
	return nil
}

// DescAddr returns the address of the descriptor table.
func (l Layout) DescAddr() uint64 { return l.Addr }

// AvailAddr returns the address of the available ring.
func (l Layout) AvailAddr() uint64 { return l.Addr + descSize*uint64(l.Num) }

// UsedAddr returns the address of the used ring.
func (l Layout) UsedAddr() uint64 {
	return alignUp(l.AvailAddr()+2*(3+uint64(l.Num)), l.Align)
}

// Size returns the number of bytes the rings occupy.
func (l Layout) Size() uint64 {
	return l.UsedAddr() - l.Addr + 2*3 + usedElemSize*uint64(l.Num)
}

// RingSize returns the footprint of a ring of num descriptors.
func RingSize(num uint16, align uint64) uint64 {
	return Layout{Num: num, Align: align}.Size()
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// Payload is one buffer of a descriptor chain.
type Payload struct {
	Addr    uint64
	Length  uint32
	IsWrite bool
}

// Descriptor is a descriptor table entry.
type Descriptor struct {
	Addr   uint64
	Length uint32
	Flags  uint16
	Next   uint16
}
