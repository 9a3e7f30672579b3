package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tinyrange/rproc/internal/iomem"
)

func TestPollRoundTrip(t *testing.T) {
	mem := iomem.NewMemory(0x90000000, 0x1000)
	if err := mem.Write32(0, 0x55); err != nil {
		t.Fatal(err)
	}
	ch, err := NewPollChannel(mem, 0, time.Millisecond)
	if err != nil {
		t.Fatalf("NewPollChannel: %v", err)
	}
	defer ch.Close()

	if v, _ := mem.Read32(0); v != 0 {
		t.Fatalf("poll word after init = %d, want 0", v)
	}
	if err := ch.Signal(0); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := ch.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if id != AnyID {
		t.Fatalf("id = 0x%x, want AnyID", id)
	}

	// The word is not cleared by Wait.
	if pending, _ := ch.Pending(); !pending {
		t.Fatal("poll word cleared by Wait")
	}
	if _, err := ch.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if err := ch.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel2()
	if _, err := ch.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait after Reset error = %v, want deadline exceeded", err)
	}
}

func TestPollWaitSeesLateSignal(t *testing.T) {
	mem := iomem.NewMemory(0x90000000, 0x10)
	ch, err := NewPollChannel(mem, 4, time.Millisecond)
	if err != nil {
		t.Fatalf("NewPollChannel: %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		ch.Signal(0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := ch.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ch.Close()
	if _, err := ch.Wait(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Wait after Close error = %v, want ErrClosed", err)
	}
}
