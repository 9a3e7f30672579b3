package irq

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRaiseDeliversWhenEnabled(t *testing.T) {
	c := NewController()
	var got atomic.Int32
	if err := c.Register(3, func(v int) {
		if v != 3 {
			t.Errorf("handler vector = %d, want 3", v)
		}
		got.Add(1)
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Enable(3); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	c.Raise(3)
	c.Raise(3)
	if got.Load() != 2 {
		t.Fatalf("deliveries = %d, want 2", got.Load())
	}
}

func TestRaiseLatchesWhileMasked(t *testing.T) {
	c := NewController()
	var got atomic.Int32
	if err := c.Register(1, func(int) { got.Add(1) }); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Registered vectors start masked.
	c.Raise(1)
	c.Raise(1)
	if got.Load() != 0 {
		t.Fatalf("delivered while masked")
	}
	if err := c.Enable(1); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if got.Load() != 1 {
		t.Fatalf("deliveries after enable = %d, want 1", got.Load())
	}

	if err := c.Disable(1); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := c.Enable(1); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if got.Load() != 1 {
		t.Fatalf("nothing latched but got %d deliveries", got.Load())
	}
}

func TestRegisterTwice(t *testing.T) {
	c := NewController()
	h := func(int) {}
	if err := c.Register(0, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(0, h); !errors.Is(err, ErrVectorInUse) {
		t.Fatalf("second Register error = %v, want ErrVectorInUse", err)
	}
	c.Unregister(0)
	if err := c.Register(0, h); err != nil {
		t.Fatalf("Register after Unregister: %v", err)
	}
}

func TestSpurious(t *testing.T) {
	c := NewController()
	c.Raise(9)
	if c.Spurious() != 1 {
		t.Fatalf("spurious = %d, want 1", c.Spurious())
	}
	if err := c.Enable(9); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("Enable unregistered error = %v, want ErrNoHandler", err)
	}
}
