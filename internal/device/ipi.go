package device

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
)

// IPI register offsets of one agent's window.
const (
	IPITrig = 0x00
	IPIObs  = 0x04
	IPIISR  = 0x10
	IPIIMR  = 0x14
	IPIIER  = 0x18
	IPIIDR  = 0x1C

	IPIWindowSize = 0x20
)

// IPIBlock models an inter-processor interrupt block. Every agent owns one
// bit of the channel mask and a register window; writing an agent's bit
// mask to TRIG sets the sender's bit in the targets' ISR and raises their
// interrupt unless masked.
type IPIBlock struct {
	mu     sync.Mutex
	agents map[uint32]*IPIAgent
}

// NewIPIBlock creates a block without agents.
func NewIPIBlock() *IPIBlock {
	return &IPIBlock{agents: make(map[uint32]*IPIAgent)}
}

// IPIAgent is one agent's register window. It implements iomem.Device.
type IPIAgent struct {
	block *IPIBlock
	mask  uint32

	ctrl   *irq.Controller
	vector int

	// guarded by block.mu
	isr uint32
	imr uint32
}

// Agent adds an agent owning the single bit in mask. Its interrupt is
// raised on vector of ctrl. All sources start masked.
func (b *IPIBlock) Agent(mask uint32, ctrl *irq.Controller, vector int) (*IPIAgent, error) {
	if bits.OnesCount32(mask) != 1 {
		return nil, fmt.Errorf("device: ipi agent mask 0x%x must have exactly one bit", mask)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.agents[mask]; ok {
		return nil, fmt.Errorf("%w: ipi agent 0x%x", ErrDuplicate, mask)
	}
	a := &IPIAgent{
		block:  b,
		mask:   mask,
		ctrl:   ctrl,
		vector: vector,
		imr:    ^uint32(0),
	}
	b.agents[mask] = a
	return a, nil
}

// Mask returns the agent's channel bit.
func (a *IPIAgent) Mask() uint32 { return a.mask }

// Size implements iomem.Device.
func (a *IPIAgent) Size() uint64 { return IPIWindowSize }

// Read implements iomem.Device.
func (a *IPIAgent) Read(offset uint64, size int) (uint64, error) {
	if size != 4 {
		return 0, fmt.Errorf("device: ipi read of size %d at 0x%x", size, offset)
	}
	b := a.block
	b.mu.Lock()
	defer b.mu.Unlock()

	switch offset {
	case IPITrig, IPIIER, IPIIDR:
		return 0, nil
	case IPIObs:
		var obs uint32
		for bit, other := range b.agents {
			if other.isr&a.mask != 0 {
				obs |= bit
			}
		}
		return uint64(obs), nil
	case IPIISR:
		return uint64(a.isr), nil
	case IPIIMR:
		return uint64(a.imr), nil
	default:
		return 0, fmt.Errorf("device: ipi read of unknown register 0x%x", offset)
	}
}

// Write implements iomem.Device.
func (a *IPIAgent) Write(offset uint64, size int, value uint64) error {
	if size != 4 {
		return fmt.Errorf("device: ipi write of size %d at 0x%x", size, offset)
	}
	v := uint32(value)
	b := a.block

	var raise []*IPIAgent
	b.mu.Lock()
	switch offset {
	case IPITrig:
		for bit, target := range b.agents {
			if v&bit == 0 {
				continue
			}
			target.isr |= a.mask
			if target.imr&a.mask == 0 {
				raise = append(raise, target)
			}
		}
	case IPIISR:
		a.isr &^= v
	case IPIIER:
		a.imr &^= v
		if a.isr&v != 0 {
			raise = append(raise, a)
		}
	case IPIIDR:
		a.imr |= v
	case IPIObs, IPIIMR:
	default:
		b.mu.Unlock()
		return fmt.Errorf("device: ipi write of unknown register 0x%x", offset)
	}
	b.mu.Unlock()

	for _, t := range raise {
		if t.ctrl != nil {
			t.ctrl.Raise(t.vector)
		}
	}
	return nil
}

var _ iomem.Device = (*IPIAgent)(nil)
