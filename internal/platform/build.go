package platform

import (
	"fmt"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/device"
	"github.com/tinyrange/rproc/internal/irq"
	"github.com/tinyrange/rproc/internal/physmem"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

// Env is the host side a backend is built on.
type Env struct {
	Devices *device.Registry
	Mapper  physmem.Mapper
	IRQ     *irq.Controller
	// Power is used by the APU backend.
	Power Power
}

// HostEnv opens the real host: a UIO platform bus, and a generic bus
// mapping the configured devices through the physical memory device.
func HostEnv(cfg config.Config) (Env, error) {
	mapper := physmem.DevMem{Path: cfg.DevMem}
	reg := device.NewRegistry()

	generic := device.NewGenericBus(mapper)
	if err := RegisterGeneric(generic, cfg.Generic); err != nil {
		return Env{}, err
	}
	if err := reg.AddBus(generic); err != nil {
		return Env{}, err
	}
	if err := reg.AddBus(device.NewUIOBus(config.DefaultBus, cfg.Sysfs, cfg.DevRoot)); err != nil {
		return Env{}, err
	}
	return Env{Devices: reg, Mapper: mapper, IRQ: irq.NewController()}, nil
}

// RegisterGeneric adds configured generic devices to bus.
func RegisterGeneric(bus *device.GenericBus, devs []config.GenericDevice) error {
	for _, g := range devs {
		d := device.Generic{Name: g.Name, IRQ: g.IRQ}
		if d.IRQ == 0 {
			d.IRQ = device.NoIRQ
		}
		for _, w := range g.Windows {
			d.Windows = append(d.Windows, device.Window{Phys: uint64(w.PA), Size: uint64(w.Size)})
		}
		if err := bus.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// NotificationFrom converts the notify section of a configuration.
func NotificationFrom(n config.NotifyConfig) Notification {
	return Notification{
		Mode:     n.Mode,
		Bus:      n.Device.Bus,
		Name:     n.Device.Name,
		Offset:   uint64(n.Offset),
		Interval: n.Interval,
		IPIMask:  uint32(n.IPIMask),
	}
}

// Build returns the backend cfg describes.
func Build(cfg config.Config, env Env) (remoteproc.Backend, error) {
	n := NotificationFrom(cfg.Notify)
	switch cfg.Platform {
	case config.PlatformVirt:
		return &Virt{Devices: env.Devices, Mapper: env.Mapper, IRQ: env.IRQ, Doorbell: n}, nil
	case config.PlatformAPU:
		return &APU{CPU: cfg.CPU, Devices: env.Devices, Rproc: cfg.Rproc, Power: env.Power, IRQ: env.IRQ, Doorbell: n}, nil
	case config.PlatformLinux:
		return &Linux{Devices: env.Devices, Shm: cfg.Shm, IRQ: env.IRQ, Doorbell: n}, nil
	default:
		return nil, fmt.Errorf("%w: platform %q", remoteproc.ErrInvalidArgument, cfg.Platform)
	}
}

var (
	_ remoteproc.Notifier   = (*Virt)(nil)
	_ remoteproc.Remover    = (*APU)(nil)
	_ remoteproc.Starter    = (*APU)(nil)
	_ remoteproc.Stopper    = (*APU)(nil)
	_ remoteproc.Shutdowner = (*APU)(nil)
	_ remoteproc.Notifier   = (*APU)(nil)
	_ remoteproc.Remover    = (*Linux)(nil)
	_ remoteproc.Notifier   = (*Linux)(nil)
)
