// Package platform implements remote processor backends on top of the
// device registry: the rv64 virt generic machine, the APU load_fw machine
// and a Linux host sharing memory with its remote.
package platform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/device"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
	"github.com/tinyrange/rproc/internal/notify"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

// Opener opens a device by bus and name. *device.Registry implements it.
type Opener interface {
	Open(bus, name string) (*device.Device, error)
}

// Notification selects how the host and remote signal each other.
type Notification struct {
	Mode config.NotifyMode
	Bus  string
	Name string

	// Offset of the poll word in the device's first region.
	Offset   uint64
	Interval time.Duration

	// IPIMask is the remote's IPI channel bit.
	IPIMask uint32
}

func openDevice(devs Opener, bus, name string) (*device.Device, error) {
	if devs == nil {
		return nil, fmt.Errorf("%w: no device registry", remoteproc.ErrDeviceUnavailable)
	}
	d, err := devs.Open(bus, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", remoteproc.ErrDeviceUnavailable, err)
	}
	return d, nil
}

// firstRegion returns region 0, closing d if it has none.
func firstRegion(d *device.Device) (*iomem.Region, error) {
	r, err := d.Region(0)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %w", remoteproc.ErrDeviceUnavailable, err)
	}
	return r, nil
}

// deviceChannel is a notification channel that owns the device it runs
// over.
type deviceChannel struct {
	notify.Channel
	dev *device.Device
	src *irq.Source
}

func (c *deviceChannel) Close() error {
	err := c.Channel.Close()
	devErr := c.dev.Close()
	if c.src != nil {
		c.src.Close()
	}
	return errors.Join(err, devErr)
}

// Reset clears a polled channel. Interrupt channels clear themselves.
func (c *deviceChannel) Reset() error {
	if r, ok := c.Channel.(notify.Resetter); ok {
		return r.Reset()
	}
	return nil
}

// readOnly hides Close from irq.Source so the device keeps ownership of
// the interrupt file.
type readOnly struct{ io.Reader }

// openChannel opens the notification device and builds the channel. It
// returns nil for NotifyNone. On failure nothing stays open.
func openChannel(devs Opener, ctrl *irq.Controller, n Notification, logger *slog.Logger) (notify.Channel, error) {
	switch n.Mode {
	case config.NotifyNone, "":
		return nil, nil
	case config.NotifyPoll, config.NotifyIPI:
	default:
		return nil, fmt.Errorf("%w: notify mode %q", remoteproc.ErrInvalidArgument, n.Mode)
	}

	dev, err := openDevice(devs, n.Bus, n.Name)
	if err != nil {
		return nil, err
	}
	win, err := firstRegion(dev)
	if err != nil {
		return nil, err
	}

	if n.Mode == config.NotifyPoll {
		ch, err := notify.NewPollChannel(win, n.Offset, n.Interval)
		if err != nil {
			dev.Close()
			return nil, err
		}
		logger.Debug("poll channel ready", "device", dev.String(), "offset", n.Offset)
		return &deviceChannel{Channel: ch, dev: dev}, nil
	}

	if ctrl == nil {
		dev.Close()
		return nil, fmt.Errorf("%w: ipi notification needs an interrupt controller", remoteproc.ErrInvalidArgument)
	}
	if dev.IRQ == device.NoIRQ {
		dev.Close()
		return nil, fmt.Errorf("%w: %w: %s", remoteproc.ErrDeviceUnavailable, device.ErrNoIRQ, dev)
	}
	ch, err := notify.NewInterruptChannel(notify.InterruptConfig{
		Controller: ctrl,
		Vector:     dev.IRQ,
		IPI:        win,
		Mask:       n.IPIMask,
		Logger:     logger,
	})
	if err != nil {
		dev.Close()
		return nil, err
	}
	var src *irq.Source
	if dev.IRQSource != nil {
		f := dev.IRQSource
		if err := uioUnmask(f); err != nil {
			ch.Close()
			dev.Close()
			return nil, fmt.Errorf("%w: unmask %s: %w", remoteproc.ErrDeviceUnavailable, dev, err)
		}
		src = irq.Attach(ctrl, dev.IRQ, readOnly{f}, 4, func() error { return uioUnmask(f) })
	}
	logger.Debug("ipi channel ready", "device", dev.String(), "vector", dev.IRQ, "mask", n.IPIMask)
	return &deviceChannel{Channel: ch, dev: dev, src: src}, nil
}

// uioUnmask re-enables the interrupt of a UIO device node.
func uioUnmask(w io.Writer) error {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], 1)
	_, err := w.Write(b[:])
	return err
}

// signal kicks the remote, doing nothing when no channel is configured.
func signal(c *remoteproc.Controller) error {
	if c.Channel() == nil {
		return nil
	}
	return c.SignalRemote(0)
}

// windowOf returns the part of r covering [pa, pa+size), defaulting to the
// rest of r when size is zero.
func windowOf(r *iomem.Region, pa, size uint64) (*iomem.Region, error) {
	off, ok := r.PhysToOffset(pa)
	if !ok {
		return nil, fmt.Errorf("%w: pa 0x%x outside %s", remoteproc.ErrInvalidAddress, pa, r)
	}
	if size == 0 {
		size = r.Size() - off
	}
	sub, err := r.Sub(off, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", remoteproc.ErrInvalidAddress, err)
	}
	return sub, nil
}
