// Package notify implements the doorbell between the host and a remote
// core. A Channel is backed either by an interrupt vector or by a polled
// shared-memory word.
package notify

import (
	"context"
	"errors"
)

// ID identifies a notification.
type ID uint32

// AnyID means "some notification arrived"; channels in this package carry a
// single notification type.
const AnyID ID = 0xFFFFFFFF

var ErrClosed = errors.New("notify: channel closed")

// Channel is a doorbell shared by both directions.
type Channel interface {
	// Signal kicks the other side. mask selects the channel bits on
	// interrupt backends; zero means the channel's own mask.
	Signal(mask uint32) error
	// Wait blocks until a notification arrives or ctx ends. Expiry of ctx
	// returns ctx.Err() and leaves the channel state unchanged.
	Wait(ctx context.Context) (ID, error)
	Close() error
}

// Resetter is implemented by channels whose pending state must be cleared
// by the receiver after handling.
type Resetter interface {
	Reset() error
}

var _ Resetter = (*PollChannel)(nil)
