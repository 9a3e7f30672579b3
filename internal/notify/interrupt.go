package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyrange/rproc/internal/device"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
)

// InterruptConfig describes an interrupt-backed channel.
type InterruptConfig struct {
	Controller *irq.Controller
	Vector     int

	// IPI is the local agent's IPI register window. When set, the channel
	// enables Mask in IER, acknowledges ISR in the handler, writes TRIG to
	// signal and IDR on close.
	IPI *iomem.Region
	// Mask is the peer's channel bit.
	Mask uint32

	// Kick signals the peer when there is no IPI window.
	Kick func(mask uint32) error

	Logger *slog.Logger
}

// InterruptChannel is set pending by an interrupt handler. Wait consumes the
// pending flag with the vector masked, so one interrupt yields exactly one
// return from Wait.
type InterruptChannel struct {
	cfg    InterruptConfig
	logger *slog.Logger

	pending atomic.Bool
	wake    chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// NewInterruptChannel registers and enables the vector.
func NewInterruptChannel(cfg InterruptConfig) (*InterruptChannel, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("notify: interrupt channel: nil controller")
	}
	if cfg.IPI == nil && cfg.Kick == nil {
		return nil, fmt.Errorf("notify: interrupt channel: no IPI window and no kick function")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &InterruptChannel{
		cfg:    cfg,
		logger: logger.With("vector", cfg.Vector),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	if err := cfg.Controller.Register(cfg.Vector, c.handle); err != nil {
		return nil, fmt.Errorf("notify: interrupt channel: %w", err)
	}
	if err := cfg.Controller.Enable(cfg.Vector); err != nil {
		cfg.Controller.Unregister(cfg.Vector)
		return nil, fmt.Errorf("notify: interrupt channel: %w", err)
	}
	if cfg.IPI != nil {
		if err := cfg.IPI.Write32(device.IPIIER, cfg.Mask); err != nil {
			cfg.Controller.Disable(cfg.Vector)
			cfg.Controller.Unregister(cfg.Vector)
			return nil, fmt.Errorf("notify: enable ipi: %w", err)
		}
	}
	return c, nil
}

func (c *InterruptChannel) handle(int) {
	if ipi := c.cfg.IPI; ipi != nil {
		isr, err := ipi.Read32(device.IPIISR)
		if err != nil || isr&c.cfg.Mask == 0 {
			return
		}
		if err := ipi.Write32(device.IPIISR, c.cfg.Mask); err != nil {
			c.logger.Warn("notify: ipi ack failed", "error", err)
		}
	}
	c.pending.Store(true)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Signal kicks the peer.
func (c *InterruptChannel) Signal(mask uint32) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if mask == 0 {
		mask = c.cfg.Mask
	}
	if c.cfg.IPI != nil {
		if err := c.cfg.IPI.Write32(device.IPITrig, mask); err != nil {
			return fmt.Errorf("notify: ipi trigger: %w", err)
		}
		return nil
	}
	if err := c.cfg.Kick(mask); err != nil {
		return fmt.Errorf("notify: kick: %w", err)
	}
	return nil
}

// Wait blocks until the pending flag is set and clears it.
func (c *InterruptChannel) Wait(ctx context.Context) (ID, error) {
	ctrl := c.cfg.Controller
	for {
		if err := ctrl.Disable(c.cfg.Vector); err != nil {
			return 0, ErrClosed
		}
		got := c.pending.CompareAndSwap(true, false)
		if err := ctrl.Enable(c.cfg.Vector); err != nil {
			return 0, ErrClosed
		}
		if got {
			return AnyID, nil
		}

		select {
		case <-c.wake:
		case <-c.done:
			return 0, ErrClosed
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Close masks the peer in the IPI block and releases the vector.
func (c *InterruptChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cfg.IPI != nil {
			if err := c.cfg.IPI.Write32(device.IPIIDR, c.cfg.Mask); err != nil {
				c.closeErr = fmt.Errorf("notify: disable ipi: %w", err)
			}
		}
		c.cfg.Controller.Disable(c.cfg.Vector)
		c.cfg.Controller.Unregister(c.cfg.Vector)
	})
	return c.closeErr
}

var _ Channel = (*InterruptChannel)(nil)
