package virtio

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Driver is the half of a virtqueue that owns the descriptor table and the
// available ring.
type Driver struct {
	mu     sync.Mutex
	layout Layout
	mem    Memory

	free       []uint16
	availIdx   uint16
	availFlags uint16
	lastUsed   uint16
}

// NewDriver clears the ring at l and takes ownership of its descriptors.
func NewDriver(mem Memory, l Layout) (*Driver, error) {
	if mem == nil {
		return nil, fmt.Errorf("virtio: nil shared memory")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if err := clearRing(mem, l); err != nil {
		return nil, fmt.Errorf("virtio: clear ring at 0x%x: %w", l.Addr, err)
	}
	d := &Driver{layout: l, mem: mem}
	for i := int(l.Num) - 1; i >= 0; i-- {
		d.free = append(d.free, uint16(i))
	}
	return d, nil
}

// Layout returns the ring layout.
func (d *Driver) Layout() Layout { return d.layout }

// Free returns the number of unused descriptors.
func (d *Driver) Free() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.free)
}

// Add chains bufs into descriptors and makes the chain available. It
// returns the head descriptor.
func (d *Driver) Add(bufs ...Payload) (uint16, error) {
	if len(bufs) == 0 {
		return 0, fmt.Errorf("virtio: empty descriptor chain")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(bufs) > len(d.free) {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrNoDescriptors, len(bufs), len(d.free))
	}

	n := len(d.free)
	idx := d.free[n-len(bufs):]
	for i, b := range bufs {
		desc := Descriptor{Addr: b.Addr, Length: b.Length}
		if b.IsWrite {
			desc.Flags |= DescFWrite
		}
		if i+1 < len(bufs) {
			desc.Flags |= DescFNext
			desc.Next = idx[i+1]
		}
		if err := writeDescriptor(d.mem, d.layout, idx[i], desc); err != nil {
			return 0, err
		}
	}
	head := idx[0]

	var slot [2]byte
	binary.LittleEndian.PutUint16(slot[:], head)
	ring := d.layout.AvailAddr() + 4 + uint64(d.availIdx%d.layout.Num)*2
	if err := writeFrom(d.mem, ring, slot[:]); err != nil {
		return 0, err
	}
	if err := putRingHeader(d.mem, d.layout.AvailAddr(), d.availFlags, d.availIdx+1); err != nil {
		return 0, err
	}
	d.availIdx++
	d.free = d.free[:n-len(bufs)]
	return head, nil
}

// GetUsed returns the next chain the device has finished with and frees
// its descriptors.
func (d *Driver) GetUsed() (head uint16, length uint32, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, usedIdx, err := ringHeader(d.mem, d.layout.UsedAddr())
	if err != nil {
		return 0, 0, false, err
	}
	if usedIdx == d.lastUsed {
		return 0, 0, false, nil
	}

	var elem [usedElemSize]byte
	base := d.layout.UsedAddr() + 4 + uint64(d.lastUsed%d.layout.Num)*usedElemSize
	if err := readInto(d.mem, base, elem[:]); err != nil {
		return 0, 0, false, err
	}
	head = uint16(binary.LittleEndian.Uint32(elem[0:4]))
	length = binary.LittleEndian.Uint32(elem[4:8])
	d.lastUsed++

	index := head
	for i := uint16(0); i < d.layout.Num; i++ {
		desc, err := readDescriptor(d.mem, d.layout, index)
		if err != nil {
			return 0, 0, false, err
		}
		d.free = append(d.free, index)
		if desc.Flags&DescFNext == 0 {
			break
		}
		index = desc.Next
	}
	return head, length, true, nil
}

// Descriptor returns descriptor idx as written by Add.
func (d *Driver) Descriptor(idx uint16) (Descriptor, error) {
	return readDescriptor(d.mem, d.layout, idx)
}

// SetInterruptSuppressed sets or clears VIRTQ_AVAIL_F_NO_INTERRUPT.
func (d *Driver) SetInterruptSuppressed(suppress bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if suppress {
		d.availFlags |= AvailFNoInterrupt
	} else {
		d.availFlags &^= AvailFNoInterrupt
	}
	return putRingHeader(d.mem, d.layout.AvailAddr(), d.availFlags, d.availIdx)
}

// NotifySuppressed reports whether the device set VIRTQ_USED_F_NO_NOTIFY.
func (d *Driver) NotifySuppressed() (bool, error) {
	flags, _, err := ringHeader(d.mem, d.layout.UsedAddr())
	if err != nil {
		return false, err
	}
	return flags&UsedFNoNotify != 0, nil
}

// clearRing zeroes the rings a word at a time so a device polling the
// headers never sees a torn write.
func clearRing(mem Memory, l Layout) error {
	size := l.Size()
	words := size &^ 3
	for off := uint64(0); off < words; off += 4 {
		if err := mem.Write32(l.Addr+off, 0); err != nil {
			return err
		}
	}
	return writeFrom(mem, l.Addr+words, make([]byte, size-words))
}
