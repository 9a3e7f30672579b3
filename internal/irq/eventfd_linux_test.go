//go:build linux

package irq

import (
	"testing"
	"time"
)

func TestEventFD(t *testing.T) {
	efd, err := NewEventFD()
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}

	c := NewController()
	got := make(chan struct{}, 1)
	if err := c.Register(5, func(int) {
		select {
		case got <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Enable(5); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	src := AttachEventFD(c, 5, efd)
	if err := efd.Trigger(); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("eventfd interrupt not delivered")
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
