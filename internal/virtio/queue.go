package virtio

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Queue is the device half of a virtqueue: it takes buffers the driver
// made available and returns them through the used ring.
type Queue struct {
	mu     sync.Mutex
	layout Layout
	mem    Memory
	ready  bool

	lastAvailIdx uint16
	usedIdx      uint16
	usedFlags    uint16
}

// NewQueue attaches to a ring the driver has initialised.
func NewQueue(mem Memory, l Layout) (*Queue, error) {
	if mem == nil {
		return nil, fmt.Errorf("virtio: nil shared memory")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &Queue{layout: l, mem: mem, ready: true}, nil
}

// Layout returns the ring layout.
func (q *Queue) Layout() Layout { return q.layout }

// Reset forgets the ring position and marks the queue not ready.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = false
	q.lastAvailIdx = 0
	q.usedIdx = 0
	q.usedFlags = 0
}

// ReadDescriptor reads a descriptor from the descriptor table.
func (q *Queue) ReadDescriptor(idx uint16) (Descriptor, error) {
	if err := q.ensureReady(); err != nil {
		return Descriptor{}, err
	}
	return readDescriptor(q.mem, q.layout, idx)
}

// GetAvailableBuffer reads the next available descriptor head.
func (q *Queue) GetAvailableBuffer() (head uint16, hasBuffer bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready {
		return 0, false, ErrNotReady
	}

	_, availIdx, err := ringHeader(q.mem, q.layout.AvailAddr())
	if err != nil {
		return 0, false, err
	}
	if q.lastAvailIdx == availIdx {
		return 0, false, nil
	}

	ringIndex := q.lastAvailIdx % q.layout.Num
	var buf [2]byte
	if err := readInto(q.mem, q.layout.AvailAddr()+4+uint64(ringIndex)*2, buf[:]); err != nil {
		return 0, false, err
	}
	q.lastAvailIdx++
	return binary.LittleEndian.Uint16(buf[:]), true, nil
}

// GetAvailableBuffers drains the available ring.
func (q *Queue) GetAvailableBuffers() ([]uint16, error) {
	var heads []uint16
	for {
		head, ok, err := q.GetAvailableBuffer()
		if err != nil {
			return heads, err
		}
		if !ok {
			return heads, nil
		}
		heads = append(heads, head)
	}
}

// ReadDescriptorChain walks the chain starting at head. The walk is bounded
// by the ring size.
func (q *Queue) ReadDescriptorChain(head uint16) ([]Payload, error) {
	if err := q.ensureReady(); err != nil {
		return nil, err
	}
	var payloads []Payload
	index := head
	for i := uint16(0); i < q.layout.Num; i++ {
		desc, err := readDescriptor(q.mem, q.layout, index)
		if err != nil {
			return payloads, err
		}
		payloads = append(payloads, Payload{
			Addr:    desc.Addr,
			Length:  desc.Length,
			IsWrite: desc.Flags&DescFWrite != 0,
		})
		if desc.Flags&DescFNext == 0 {
			break
		}
		index = desc.Next
	}
	return payloads, nil
}

// PutUsedBuffer returns head to the driver with length bytes written.
func (q *Queue) PutUsedBuffer(head uint16, length uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready {
		return ErrNotReady
	}

	var elem [usedElemSize]byte
	binary.LittleEndian.PutUint32(elem[0:4], uint32(head))
	binary.LittleEndian.PutUint32(elem[4:8], length)
	base := q.layout.UsedAddr() + 4 + uint64(q.usedIdx%q.layout.Num)*usedElemSize
	if err := writeFrom(q.mem, base, elem[:]); err != nil {
		return err
	}
	q.usedIdx++
	return putRingHeader(q.mem, q.layout.UsedAddr(), q.usedFlags, q.usedIdx)
}

// SetNotifySuppressed sets or clears VIRTQ_USED_F_NO_NOTIFY.
func (q *Queue) SetNotifySuppressed(suppress bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if suppress {
		q.usedFlags |= UsedFNoNotify
	} else {
		q.usedFlags &^= UsedFNoNotify
	}
	return putRingHeader(q.mem, q.layout.UsedAddr(), q.usedFlags, q.usedIdx)
}

// InterruptSuppressed reports whether the driver set
// VIRTQ_AVAIL_F_NO_INTERRUPT.
func (q *Queue) InterruptSuppressed() (bool, error) {
	flags, _, err := ringHeader(q.mem, q.layout.AvailAddr())
	if err != nil {
		return false, err
	}
	return flags&AvailFNoInterrupt != 0, nil
}

// ReadGuest reads a buffer the driver offered.
func (q *Queue) ReadGuest(addr uint64, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	if err := readInto(q.mem, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteGuest fills a buffer the driver offered.
func (q *Queue) WriteGuest(addr uint64, data []byte) error {
	return writeFrom(q.mem, addr, data)
}

func (q *Queue) ensureReady() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready {
		return ErrNotReady
	}
	return nil
}
