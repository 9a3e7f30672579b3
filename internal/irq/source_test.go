package irq

import (
	"io"
	"testing"
	"time"
)

func TestSourceDeliversReads(t *testing.T) {
	c := NewController()
	got := make(chan int, 4)
	if err := c.Register(2, func(v int) { got <- v }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Enable(2); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	pr, pw := io.Pipe()
	acks := make(chan struct{}, 4)
	src := Attach(c, 2, pr, 4, func() error {
		acks <- struct{}{}
		return nil
	})

	for i := 0; i < 2; i++ {
		if _, err := pw.Write([]byte{1, 0, 0, 0}); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case v := <-got:
			if v != 2 {
				t.Fatalf("vector = %d, want 2", v)
			}
		case <-time.After(time.Second):
			t.Fatalf("interrupt %d not delivered", i)
		}
		<-acks
	}

	pw.Close()
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Err(); err != nil {
		t.Fatalf("Err after EOF = %v, want nil", err)
	}
}
