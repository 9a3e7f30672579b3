package platform

import (
	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/device"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

// ShmRegion is the name of the shared memory region.
const ShmRegion = "shm"

// Linux is a Linux host sharing one memory device with its remote. The
// resource table, shared buffers and vrings all live inside it.
type Linux struct {
	Devices Opener
	// Shm names the shared memory device. The zero value is the
	// platform/90100000.shm device.
	Shm      config.Device
	IRQ      *irq.Controller
	Doorbell Notification

	dev *device.Device
	io  *iomem.Region
}

// Name implements remoteproc.Backend.
func (l *Linux) Name() string { return "linux" }

// Init implements remoteproc.Backend.
func (l *Linux) Init(c *remoteproc.Controller) error {
	bus, name := l.Shm.Bus, l.Shm.Name
	if bus == "" {
		bus = config.DefaultBus
	}
	if name == "" {
		name = config.DefaultShmName
	}
	dev, err := openDevice(l.Devices, bus, name)
	if err != nil {
		return err
	}
	win, err := firstRegion(dev)
	if err != nil {
		return err
	}
	c.Logger().Info("opened shm device", "device", dev.String(), "window", win.String())

	ch, err := openChannel(l.Devices, l.IRQ, l.Doorbell, c.Logger())
	if err != nil {
		dev.Close()
		return err
	}

	l.dev, l.io = dev, win
	c.AddRegion(&remoteproc.MemoryRegion{
		Name: ShmRegion,
		PA:   win.Phys(),
		DA:   win.Phys(),
		Size: win.Size(),
		IO:   win,
	})
	if ch != nil {
		c.SetChannel(ch)
	}
	return nil
}

// Remove implements remoteproc.Remover.
func (l *Linux) Remove(c *remoteproc.Controller) error {
	if l.dev == nil {
		return nil
	}
	err := l.dev.Close()
	l.dev, l.io = nil, nil
	return err
}

// Mmap implements remoteproc.Backend.
func (l *Linux) Mmap(c *remoteproc.Controller, pa, da, size uint64, attr uint32) (*iomem.Region, error) {
	if l.io == nil {
		return nil, remoteproc.ErrDeviceUnavailable
	}
	return windowOf(l.io, pa, size)
}

// Notify implements remoteproc.Notifier.
func (l *Linux) Notify(c *remoteproc.Controller, id uint32) error {
	return signal(c)
}
