// Package iomem provides I/O regions: windows of memory with a physical base
// address that can be read and written by offset or by physical address.
//
// A region is backed either by host memory (a heap buffer or an mmap of a
// device file) or by a memory-mapped register block implementing Device.
package iomem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

var (
	ErrOutOfRange = errors.New("iomem: access out of range")
	ErrClosed     = errors.New("iomem: region closed")
)

// byteOrder is the layout of multi-byte registers and words. Both the host
// and the remote cores this package targets are little endian.
var byteOrder = binary.LittleEndian

// Device represents a memory-mapped register block.
type Device interface {
	// Read reads from the device at the given offset
	Read(offset uint64, size int) (uint64, error)
	// Write writes to the device at the given offset
	Write(offset uint64, size int, value uint64) error
	// Size returns the size of the device's address space
	Size() uint64
}

// Region is an I/O handle covering size bytes starting at physical address
// phys.
type Region struct {
	phys uint64
	size uint64

	// Exactly one of mem and dev is set.
	mem    []byte
	dev    Device
	devOff uint64

	closeOnce sync.Once
	closer    func() error
	closeErr  error
	closed    atomic.Bool
}

// NewMemory allocates a zeroed heap-backed region.
func NewMemory(phys, size uint64) *Region {
	return &Region{
		phys: phys,
		size: size,
		mem:  make([]byte, size),
	}
}

// FromBytes wraps an existing buffer. The region aliases b.
func FromBytes(phys uint64, b []byte) *Region {
	return &Region{
		phys: phys,
		size: uint64(len(b)),
		mem:  b,
	}
}

// FromDevice exposes a register block as a region at phys.
func FromDevice(phys uint64, dev Device) *Region {
	return &Region{
		phys: phys,
		size: dev.Size(),
		dev:  dev,
	}
}

// WithCloser attaches a release function that runs once on Close.
func (r *Region) WithCloser(fn func() error) *Region {
	r.closer = fn
	return r
}

// Sub returns a view of [offset, offset+size) sharing the same backing. The
// view has no release function of its own.
func (r *Region) Sub(offset, size uint64) (*Region, error) {
	if err := r.check(offset, size); err != nil {
		return nil, err
	}
	sub := &Region{
		phys: r.phys + offset,
		size: size,
	}
	if r.mem != nil {
		sub.mem = r.mem[offset : offset+size : offset+size]
	} else {
		sub.dev = r.dev
		sub.devOff = r.devOff + offset
	}
	return sub, nil
}

// Phys returns the physical address of offset zero.
func (r *Region) Phys() uint64 { return r.phys }

// Size returns the window size in bytes.
func (r *Region) Size() uint64 { return r.size }

// End returns the first physical address after the window.
func (r *Region) End() uint64 { return r.phys + r.size }

// Contains reports whether [pa, pa+size) lies within the window.
func (r *Region) Contains(pa, size uint64) bool {
	if pa < r.phys {
		return false
	}
	off := pa - r.phys
	return off <= r.size && size <= r.size-off
}

// PhysToOffset translates a physical address into a region offset.
func (r *Region) PhysToOffset(pa uint64) (uint64, bool) {
	if pa < r.phys || pa >= r.phys+r.size {
		return 0, false
	}
	return pa - r.phys, true
}

// OffsetToPhys translates a region offset into a physical address.
func (r *Region) OffsetToPhys(off uint64) (uint64, bool) {
	if off >= r.size {
		return 0, false
	}
	return r.phys + off, true
}

// Bytes returns the host view of [off, off+n). It returns nil for
// device-backed regions and for out of range requests.
func (r *Region) Bytes(off, n uint64) []byte {
	if r.mem == nil || r.check(off, n) != nil {
		return nil
	}
	return r.mem[off : off+n : off+n]
}

func (r *Region) check(off, n uint64) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if off > r.size || n > r.size-off {
		return fmt.Errorf("%w: offset=0x%x len=0x%x size=0x%x", ErrOutOfRange, off, n, r.size)
	}
	return nil
}

// ReadAt implements io.ReaderAt with off relative to the window.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if err := r.check(uint64(off), uint64(len(p))); err != nil {
		return 0, err
	}
	if r.mem != nil {
		return copy(p, r.mem[off:]), nil
	}
	for i := range p {
		v, err := r.dev.Read(r.devOff+uint64(off)+uint64(i), 1)
		if err != nil {
			return i, err
		}
		p[i] = byte(v)
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt with off relative to the window.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if err := r.check(uint64(off), uint64(len(p))); err != nil {
		return 0, err
	}
	if r.mem != nil {
		return copy(r.mem[off:], p), nil
	}
	for i, b := range p {
		if err := r.dev.Write(r.devOff+uint64(off)+uint64(i), 1, uint64(b)); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// BlockSet fills n bytes starting at off with value.
func (r *Region) BlockSet(off uint64, value byte, n uint64) error {
	if err := r.check(off, n); err != nil {
		return err
	}
	if r.mem != nil {
		dst := r.mem[off : off+n]
		for i := range dst {
			dst[i] = value
		}
		return nil
	}
	for i := uint64(0); i < n; i++ {
		if err := r.dev.Write(r.devOff+off+i, 1, uint64(value)); err != nil {
			return err
		}
	}
	return nil
}

// Read32 reads a 32-bit word. Aligned words in host memory are read
// atomically so a word shared with another core can be polled.
func (r *Region) Read32(off uint64) (uint32, error) {
	if err := r.check(off, 4); err != nil {
		return 0, err
	}
	if r.mem != nil {
		if p, ok := r.word32(off); ok {
			return atomic.LoadUint32(p), nil
		}
		return byteOrder.Uint32(r.mem[off:]), nil
	}
	v, err := r.dev.Read(r.devOff+off, 4)
	return uint32(v), err
}

// Write32 writes a 32-bit word, atomically for aligned host memory.
func (r *Region) Write32(off uint64, value uint32) error {
	if err := r.check(off, 4); err != nil {
		return err
	}
	if r.mem != nil {
		if p, ok := r.word32(off); ok {
			atomic.StoreUint32(p, value)
			return nil
		}
		byteOrder.PutUint32(r.mem[off:], value)
		return nil
	}
	return r.dev.Write(r.devOff+off, 4, uint64(value))
}

// Read64 reads a 64-bit little endian value.
func (r *Region) Read64(off uint64) (uint64, error) {
	if err := r.check(off, 8); err != nil {
		return 0, err
	}
	if r.mem != nil {
		return byteOrder.Uint64(r.mem[off:]), nil
	}
	return r.dev.Read(r.devOff+off, 8)
}

// Write64 writes a 64-bit little endian value.
func (r *Region) Write64(off uint64, value uint64) error {
	if err := r.check(off, 8); err != nil {
		return err
	}
	if r.mem != nil {
		byteOrder.PutUint64(r.mem[off:], value)
		return nil
	}
	return r.dev.Write(r.devOff+off, 8, value)
}

// word32 returns a pointer usable with sync/atomic when the word at off is
// naturally aligned in host memory. Only little endian hosts take this path.
func (r *Region) word32(off uint64) (*uint32, bool) {
	p := unsafe.Pointer(&r.mem[off])
	if uintptr(p)%4 != 0 || !hostLittleEndian {
		return nil, false
	}
	return (*uint32)(p), true
}

var hostLittleEndian = func() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// Close releases the backing (munmap for file mappings). It is safe to call
// more than once; later calls return the first result.
func (r *Region) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.closer != nil {
			r.closeErr = r.closer()
		}
	})
	return r.closeErr
}

// Closed reports whether Close has been called.
func (r *Region) Closed() bool { return r.closed.Load() }

// String implements fmt.Stringer.
func (r *Region) String() string {
	return fmt.Sprintf("[0x%x-0x%x)", r.phys, r.phys+r.size)
}
