package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tinyrange/rproc/internal/iomem"
)

const (
	// PollStop is the value a signaller writes to the poll word.
	PollStop = 1

	DefaultPollInterval = 100 * time.Microsecond
)

// PollChannel signals through a 32-bit word in shared memory. A nonzero
// word means pending; the word is only cleared by Reset.
type PollChannel struct {
	io       *iomem.Region
	off      uint64
	interval time.Duration
	closed   atomic.Bool
}

// NewPollChannel uses the word at off in io and clears it.
func NewPollChannel(io *iomem.Region, off uint64, interval time.Duration) (*PollChannel, error) {
	if io == nil {
		return nil, fmt.Errorf("notify: poll channel: nil region")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	c := &PollChannel{io: io, off: off, interval: interval}
	if err := c.Reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// Signal writes PollStop to the word. mask is unused.
func (c *PollChannel) Signal(mask uint32) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.io.Write32(c.off, PollStop); err != nil {
		return fmt.Errorf("notify: poll signal: %w", err)
	}
	return nil
}

// Pending reports whether the word is set.
func (c *PollChannel) Pending() (bool, error) {
	v, err := c.io.Read32(c.off)
	if err != nil {
		return false, fmt.Errorf("notify: poll read: %w", err)
	}
	return v != 0, nil
}

// Wait polls the word every interval. The first check is immediate.
func (c *PollChannel) Wait(ctx context.Context) (ID, error) {
	var ticker *time.Ticker
	for {
		if c.closed.Load() {
			return 0, ErrClosed
		}
		pending, err := c.Pending()
		if err != nil {
			return 0, err
		}
		if pending {
			return AnyID, nil
		}
		if ticker == nil {
			ticker = time.NewTicker(c.interval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reset clears the word.
func (c *PollChannel) Reset() error {
	if err := c.io.Write32(c.off, 0); err != nil {
		return fmt.Errorf("notify: poll reset: %w", err)
	}
	return nil
}

// Close stops the channel. The region belongs to the caller.
func (c *PollChannel) Close() error {
	c.closed.Store(true)
	return nil
}

var _ Channel = (*PollChannel)(nil)
