// Package irq implements a small interrupt vector table: handlers are
// registered per vector, vectors can be masked, and interrupts raised while
// a vector is masked are latched and delivered when it is unmasked.
package irq

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrVectorInUse = errors.New("irq: vector already registered")
	ErrNoHandler   = errors.New("irq: no handler registered")
)

// Handler runs when an interrupt is delivered on vector. Handlers may run on
// any goroutine and must not block.
type Handler func(vector int)

type line struct {
	handler Handler
	enabled bool
	latched bool
}

// Controller manages interrupt vectors.
type Controller struct {
	mu    sync.Mutex
	lines map[int]*line

	spurious atomic.Uint64
}

// NewController creates a controller with no registered vectors.
func NewController() *Controller {
	return &Controller{
		lines: make(map[int]*line),
	}
}

// Register installs h on vector. The vector starts disabled.
func (c *Controller) Register(vector int, h Handler) error {
	if h == nil {
		return fmt.Errorf("irq: register vector %d: nil handler", vector)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[vector]; ok {
		return fmt.Errorf("%w: %d", ErrVectorInUse, vector)
	}
	c.lines[vector] = &line{handler: h}
	return nil
}

// Unregister removes the handler and drops any latched interrupt.
func (c *Controller) Unregister(vector int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, vector)
}

// Enable unmasks vector and delivers an interrupt latched while it was
// masked.
func (c *Controller) Enable(vector int) error {
	c.mu.Lock()
	l, ok := c.lines[vector]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoHandler, vector)
	}
	l.enabled = true
	deliver := l.latched
	l.latched = false
	h := l.handler
	c.mu.Unlock()

	if deliver {
		h(vector)
	}
	return nil
}

// Disable masks vector. Interrupts raised while masked are latched.
func (c *Controller) Disable(vector int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[vector]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoHandler, vector)
	}
	l.enabled = false
	return nil
}

// Enabled reports whether vector is registered and unmasked.
func (c *Controller) Enabled(vector int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[vector]
	return ok && l.enabled
}

// Raise delivers an interrupt on vector. Interrupts on unregistered vectors
// are counted as spurious and dropped.
func (c *Controller) Raise(vector int) {
	c.mu.Lock()
	l, ok := c.lines[vector]
	if !ok {
		c.mu.Unlock()
		c.spurious.Add(1)
		return
	}
	if !l.enabled {
		l.latched = true
		c.mu.Unlock()
		return
	}
	h := l.handler
	c.mu.Unlock()

	h(vector)
}

// Spurious returns the number of interrupts raised on unregistered vectors.
func (c *Controller) Spurious() uint64 {
	return c.spurious.Load()
}
