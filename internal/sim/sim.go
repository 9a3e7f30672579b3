// Package sim is a simulated asymmetric machine: host and remote share
// physical memory, an IPI block and a poll word. The remote core runs a Go
// function as its firmware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/device"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
	"github.com/tinyrange/rproc/internal/notify"
	"github.com/tinyrange/rproc/internal/physmem"
	"github.com/tinyrange/rproc/internal/platform"
	"github.com/tinyrange/rproc/internal/transport"
)

// Memory map.
const (
	PollBase  = config.DefaultPollBase
	PollSize  = 0x1000
	ShmBase   = config.DefaultSHMBase
	ShmSize   = 0x100000
	RprocBase = 0x90200000
	RprocSize = 0x100000
	DDRBase   = 0x80000000
	DDRSize   = 16 << 20

	HostIPIBase   = 0xff360000
	RemoteIPIBase = 0xff370000
	HostIPIName   = "ff360000.ipi"
	HostIPIMask   = 0x1
	RemoteIPIMask = config.DefaultIPIMask

	HostVector   = 1
	RemoteVector = 2
)

// Options configures a machine.
type Options struct {
	Firmware Firmware
	// Notify is how host and remote signal each other.
	Notify config.NotifyMode
	// AutoStart boots the firmware at creation, for platforms whose host
	// does not control the remote's power.
	AutoStart bool
	Logger    *slog.Logger
}

// Machine is a host and one remote core.
type Machine struct {
	Mem       *physmem.Bus
	Devices   *device.Registry
	HostIRQ   *irq.Controller
	RemoteIRQ *irq.Controller

	mode      config.NotifyMode
	remoteIPI *iomem.Region
	poll      *iomem.Region
	core      *Core
	logger    *slog.Logger
}

// New builds the machine and registers its devices on the platform bus.
func New(opts Options) (*Machine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Notify == "" {
		opts.Notify = config.NotifyIPI
	}
	m := &Machine{
		Mem:       physmem.NewBus(),
		Devices:   device.NewRegistry(),
		HostIRQ:   irq.NewController(),
		RemoteIRQ: irq.NewController(),
		mode:      opts.Notify,
		logger:    logger.With("component", "sim"),
	}

	ram := []struct {
		name       string
		base, size uint64
	}{
		{"poll", PollBase, PollSize},
		{"shm", ShmBase, ShmSize},
		{"rproc", RprocBase, RprocSize},
		{"ddr", DDRBase, DDRSize},
	}
	for _, r := range ram {
		region, err := m.Mem.AddRAM(r.name, r.base, r.size)
		if err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
		if r.name == "poll" {
			m.poll = region
		}
	}

	block := device.NewIPIBlock()
	host, err := block.Agent(HostIPIMask, m.HostIRQ, HostVector)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	remote, err := block.Agent(RemoteIPIMask, m.RemoteIRQ, RemoteVector)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if _, err := m.Mem.AddDevice("ipi-host", HostIPIBase, host); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if m.remoteIPI, err = m.Mem.AddDevice("ipi-remote", RemoteIPIBase, remote); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	bus := device.NewNamedGenericBus(config.DefaultBus, m.Mem)
	for _, g := range []device.Generic{
		{Name: config.DefaultPollName, Windows: []device.Window{{Phys: PollBase, Size: PollSize}}, IRQ: device.NoIRQ},
		{Name: config.DefaultShmName, Windows: []device.Window{{Phys: ShmBase, Size: ShmSize}}, IRQ: device.NoIRQ},
		{Name: config.DefaultRprocName, Windows: []device.Window{{Phys: RprocBase, Size: RprocSize}}, IRQ: device.NoIRQ},
		{Name: HostIPIName, Windows: []device.Window{{Phys: HostIPIBase, Size: device.IPIWindowSize}}, IRQ: HostVector},
	} {
		if err := bus.Register(g); err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
	}
	if err := m.Devices.AddBus(bus); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	m.core = &Core{machine: m, firmware: opts.Firmware}
	if opts.AutoStart {
		if err := m.core.WakeUp(platform.NodeAPU0, 0); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Core returns the remote core.
func (m *Machine) Core() *Core { return m.core }

// Env returns the host environment for platform backends.
func (m *Machine) Env() platform.Env {
	return platform.Env{
		Devices: m.Devices,
		Mapper:  m.Mem,
		IRQ:     m.HostIRQ,
		Power:   m.core,
	}
}

// Config returns a configuration for kind that matches the machine.
func (m *Machine) Config(kind config.Platform) config.Config {
	return MachineConfig(kind, m.mode)
}

// MachineConfig returns the configuration of a machine using mode, before
// the machine exists. Firmware built from its memory layout talks to the
// host over the same vrings.
func MachineConfig(kind config.Platform, mode config.NotifyMode) config.Config {
	if mode == "" {
		mode = config.NotifyIPI
	}
	cfg := config.Default()
	cfg.Platform = kind
	cfg.Notify.Mode = mode
	cfg.Notify.Interval = 50 * time.Microsecond
	cfg.Notify.IPIMask = RemoteIPIMask
	if mode == config.NotifyIPI {
		cfg.Notify.Device = config.Device{Bus: config.DefaultBus, Name: HostIPIName}
	}
	return cfg
}

// Close powers the remote down.
func (m *Machine) Close() error {
	if !m.core.Running() {
		return nil
	}
	return m.core.ForcePowerDown(platform.NodeAPU0)
}

// remoteChannel builds the remote core's side of the doorbell.
func (m *Machine) remoteChannel() (notify.Channel, error) {
	switch m.mode {
	case config.NotifyIPI:
		return notify.NewInterruptChannel(notify.InterruptConfig{
			Controller: m.RemoteIRQ,
			Vector:     RemoteVector,
			IPI:        m.remoteIPI,
			Mask:       HostIPIMask,
			Logger:     m.logger,
		})
	case config.NotifyPoll:
		return &remotePoll{word: m.poll}, nil
	case config.NotifyNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("sim: notify mode %q", m.mode)
	}
}

// remotePoll sets the shared word to signal the host. Waiting sleeps for
// one poll period because the word is the host's to clear.
type remotePoll struct {
	word *iomem.Region
}

func (p *remotePoll) Signal(uint32) error {
	return p.word.Write32(0, notify.PollStop)
}

func (p *remotePoll) Wait(ctx context.Context) (notify.ID, error) {
	t := time.NewTimer(100 * time.Microsecond)
	defer t.Stop()
	select {
	case <-t.C:
		return notify.AnyID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *remotePoll) Close() error { return nil }

// Endpoint attaches a device endpoint to the host's vrings.
func (r *Remote) Endpoint(cfg transport.Config) (*transport.Endpoint, error) {
	return transport.NewEndpoint(transport.EndpointConfig{
		Role:       transport.RoleDevice,
		Mem:        r.Mem,
		TX:         cfg.TxLayout(),
		RX:         cfg.RxLayout(),
		BufferSize: cfg.BufferSize,
		Kick:       r.Kick,
	})
}

var errNoChannel = errors.New("sim: remote has no doorbell")
