package platform

import (
	"fmt"

	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
	"github.com/tinyrange/rproc/internal/physmem"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

// Virt is the rv64 virt machine: physical memory is mapped on demand and
// the remote is signalled through a poll word or an IPI block.
type Virt struct {
	Devices  Opener
	Mapper   physmem.Mapper
	IRQ      *irq.Controller
	Doorbell Notification
}

// Name implements remoteproc.Backend.
func (v *Virt) Name() string { return "virt" }

// Init implements remoteproc.Backend.
func (v *Virt) Init(c *remoteproc.Controller) error {
	if v.Mapper == nil {
		return fmt.Errorf("%w: virt: no physical memory mapper", remoteproc.ErrInvalidArgument)
	}
	ch, err := openChannel(v.Devices, v.IRQ, v.Doorbell, c.Logger())
	if err != nil {
		return err
	}
	if ch != nil {
		c.SetChannel(ch)
	}
	return nil
}

// Mmap implements remoteproc.Backend. Every call maps a fresh window and
// registers it.
func (v *Virt) Mmap(c *remoteproc.Controller, pa, da, size uint64, attr uint32) (*iomem.Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: virt: zero sized mapping at 0x%x", remoteproc.ErrInvalidArgument, pa)
	}
	win, err := v.Mapper.Window(pa, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", remoteproc.ErrInvalidAddress, err)
	}
	c.AddRegion(&remoteproc.MemoryRegion{
		Name: fmt.Sprintf("mmap@0x%x", pa),
		PA:   pa,
		DA:   da,
		Size: size,
		IO:   win,
	})
	return win, nil
}

// Notify implements remoteproc.Notifier.
func (v *Virt) Notify(c *remoteproc.Controller, id uint32) error {
	return signal(c)
}
