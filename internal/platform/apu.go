package platform

import (
	"fmt"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/device"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

// Valid APU node ids.
const (
	NodeAPU0 = 0
	NodeAPUN = 7
)

// RprocRegion is the name of the region covering the remote's memory.
const RprocRegion = "rproc"

// Power controls the remote core's power domain.
type Power interface {
	// WakeUp starts cpu executing at bootAddr.
	WakeUp(cpu int, bootAddr uint64) error
	// Release gives back the memory nodes backing region.
	Release(cpu int, region *remoteproc.MemoryRegion) error
	// ForcePowerDown turns cpu off.
	ForcePowerDown(cpu int) error
}

// APU loads firmware into a single memory device. Without Power the core
// is assumed to be started by someone else and start, stop and shutdown do
// nothing.
type APU struct {
	CPU     int
	Devices Opener
	// Rproc names the remote memory device. The zero value is the
	// platform/90200000.rproc device.
	Rproc    config.Device
	Power    Power
	IRQ      *irq.Controller
	Doorbell Notification

	dev *device.Device
	io  *iomem.Region
}

// Name implements remoteproc.Backend.
func (a *APU) Name() string { return "apu" }

// Init implements remoteproc.Backend.
func (a *APU) Init(c *remoteproc.Controller) error {
	if a.CPU < NodeAPU0 || a.CPU > NodeAPUN {
		return fmt.Errorf("%w: invalid node id %d", remoteproc.ErrInvalidArgument, a.CPU)
	}
	bus, name := a.Rproc.Bus, a.Rproc.Name
	if bus == "" {
		bus = config.DefaultBus
	}
	if name == "" {
		name = config.DefaultRprocName
	}
	c.Logger().Debug("opening rproc device", "cpu", a.CPU, "bus", bus, "name", name)

	dev, err := openDevice(a.Devices, bus, name)
	if err != nil {
		return err
	}
	win, err := firstRegion(dev)
	if err != nil {
		return err
	}
	ch, err := openChannel(a.Devices, a.IRQ, a.Doorbell, c.Logger())
	if err != nil {
		dev.Close()
		return err
	}

	a.dev, a.io = dev, win
	c.AddRegion(&remoteproc.MemoryRegion{
		Name: RprocRegion,
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
func (a *APU) Remove(c *remoteproc.Controller) error {
	if a.dev == nil {
		return nil
	}
	err := a.dev.Close()
	a.dev, a.io = nil, nil
	return err
}

// Mmap implements remoteproc.Backend. Everything lives in the rproc device.
func (a *APU) Mmap(c *remoteproc.Controller, pa, da, size uint64, attr uint32) (*iomem.Region, error) {
	if a.io == nil {
		return nil, remoteproc.ErrDeviceUnavailable
	}
	return windowOf(a.io, pa, size)
}

// Start implements remoteproc.Starter.
func (a *APU) Start(c *remoteproc.Controller) error {
	if a.Power == nil {
		return nil
	}
	if err := a.Power.WakeUp(a.CPU, c.BootAddr()); err != nil {
		return fmt.Errorf("wake up apu %d: %w", a.CPU, err)
	}
	return nil
}

// Stop implements remoteproc.Stopper. The power interface has no way to
// halt a core short of powering it down.
func (a *APU) Stop(c *remoteproc.Controller) error {
	return nil
}

// Shutdown implements remoteproc.Shutdowner. It releases the memory of
// every registered region and forces the core off.
func (a *APU) Shutdown(c *remoteproc.Controller) error {
	if a.Power == nil {
		return nil
	}
	for _, m := range c.Regions() {
		if err := a.Power.Release(a.CPU, m); err != nil {
			c.Logger().Warn("release failed", "region", m.String(), "error", err)
		}
	}
	if err := a.Power.ForcePowerDown(a.CPU); err != nil {
		return fmt.Errorf("power down apu %d: %w", a.CPU, err)
	}
	return nil
}

// Notify implements remoteproc.Notifier.
func (a *APU) Notify(c *remoteproc.Controller, id uint32) error {
	return signal(c)
}
