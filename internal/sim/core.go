package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyrange/rproc/internal/notify"
	"github.com/tinyrange/rproc/internal/physmem"
	"github.com/tinyrange/rproc/internal/remoteproc"
	"github.com/tinyrange/rproc/internal/transport"
)

var ErrRunning = errors.New("sim: core already running")

// Firmware is the program the remote core runs. It should return when ctx
// ends.
type Firmware func(ctx context.Context, r *Remote) error

// Remote is what firmware sees of the machine.
type Remote struct {
	Mem      *physmem.Bus
	BootAddr uint64
	Logger   *slog.Logger

	ch notify.Channel
}

// Kick signals the host.
func (r *Remote) Kick() error {
	if r.ch == nil {
		return errNoChannel
	}
	return r.ch.Signal(0)
}

// Wait blocks until the host kicks, timeout passes or ctx ends. It reports
// whether ctx ended.
func (r *Remote) Wait(ctx context.Context, timeout time.Duration) bool {
	if ctx.Err() != nil {
		return true
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if r.ch == nil {
		<-wctx.Done()
	} else {
		r.ch.Wait(wctx)
	}
	return ctx.Err() != nil
}

// Core is the remote core. It implements platform.Power.
type Core struct {
	machine  *Machine
	firmware Firmware

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	boots    []uint64
	released []string
}

// WakeUp starts the firmware with bootAddr.
func (c *Core) WakeUp(cpu int, bootAddr uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return ErrRunning
	}
	ch, err := c.machine.remoteChannel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done, c.err = cancel, done, nil
	c.boots = append(c.boots, bootAddr)

	r := &Remote{
		Mem:      c.machine.Mem,
		BootAddr: bootAddr,
		Logger:   c.machine.logger.With("cpu", cpu),
		ch:       ch,
	}
	r.Logger.Info("remote core starting", "boot", fmt.Sprintf("0x%x", bootAddr))
	go func() {
		defer close(done)
		if ch != nil {
			defer ch.Close()
		}
		if c.firmware == nil {
			<-ctx.Done()
			return
		}
		if err := c.firmware(ctx, r); err != nil {
			r.Logger.Warn("firmware exited", "error", err)
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
		}
	}()
	return nil
}

// Release records that the memory behind region was given back.
func (c *Core) Release(cpu int, region *remoteproc.MemoryRegion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, region.Name)
	return nil
}

// ForcePowerDown stops the firmware and waits for it.
func (c *Core) ForcePowerDown(cpu int) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done

	c.mu.Lock()
	c.cancel, c.done = nil, nil
	err := c.err
	c.mu.Unlock()
	return err
}

// Running reports whether firmware is executing.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Boots returns the boot address of every wake up.
func (c *Core) Boots() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.boots...)
}

// Released returns the names of released regions.
func (c *Core) Released() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.released...)
}

// Echo is firmware that sends every message it receives straight back.
func Echo(cfg transport.Config) Firmware {
	return func(ctx context.Context, r *Remote) error {
		ep, err := r.Endpoint(cfg)
		if err != nil {
			return err
		}
		defer ep.Release()
		for {
			if _, err := ep.Drain(func(msg []byte) error {
				err := ep.Send(msg)
				if errors.Is(err, transport.ErrNoBuffer) {
					r.Logger.Warn("echo dropped", "bytes", len(msg))
					return nil
				}
				return err
			}); err != nil {
				return err
			}
			if r.Wait(ctx, time.Millisecond) {
				return nil
			}
		}
	}
}
