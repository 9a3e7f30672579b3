package device

import (
	"sync/atomic"
	"testing"

	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/irq"
)

func TestIPITrigger(t *testing.T) {
	ctrl := irq.NewController()
	blk := NewIPIBlock()

	host, err := blk.Agent(0x1, ctrl, 1)
	if err != nil {
		t.Fatalf("Agent: %v", err)
	}
	remote, err := blk.Agent(0x8, ctrl, 2)
	if err != nil {
		t.Fatalf("Agent: %v", err)
	}
	if _, err := blk.Agent(0x3, ctrl, 3); err == nil {
		t.Fatal("Agent accepted a two-bit mask")
	}

	var remoteIRQs atomic.Int32
	if err := ctrl.Register(2, func(int) { remoteIRQs.Add(1) }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := ctrl.Enable(2); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	hostIO := iomem.FromDevice(0xff300000, host)
	remoteIO := iomem.FromDevice(0xff310000, remote)

	// Masked in the IPI block: latched in ISR, no interrupt.
	if err := hostIO.Write32(IPITrig, remote.Mask()); err != nil {
		t.Fatalf("trig: %v", err)
	}
	if remoteIRQs.Load() != 0 {
		t.Fatal("interrupt raised while masked")
	}
	if obs, _ := hostIO.Read32(IPIObs); obs != remote.Mask() {
		t.Fatalf("OBS = 0x%x, want 0x%x", obs, remote.Mask())
	}

	// Unmasking a pending source delivers it.
	if err := remoteIO.Write32(IPIIER, host.Mask()); err != nil {
		t.Fatalf("ier: %v", err)
	}
	if remoteIRQs.Load() != 1 {
		t.Fatalf("irqs after IER = %d, want 1", remoteIRQs.Load())
	}
	isr, _ := remoteIO.Read32(IPIISR)
	if isr != host.Mask() {
		t.Fatalf("ISR = 0x%x, want 0x%x", isr, host.Mask())
	}
	if err := remoteIO.Write32(IPIISR, isr); err != nil {
		t.Fatalf("isr clear: %v", err)
	}
	if isr, _ := remoteIO.Read32(IPIISR); isr != 0 {
		t.Fatalf("ISR after clear = 0x%x", isr)
	}

	if err := hostIO.Write32(IPITrig, remote.Mask()); err != nil {
		t.Fatalf("trig: %v", err)
	}
	if remoteIRQs.Load() != 2 {
		t.Fatalf("irqs = %d, want 2", remoteIRQs.Load())
	}

	if err := remoteIO.Write32(IPIIDR, host.Mask()); err != nil {
		t.Fatalf("idr: %v", err)
	}
	if imr, _ := remoteIO.Read32(IPIIMR); imr&host.Mask() == 0 {
		t.Fatalf("IMR = 0x%x, host bit not masked", imr)
	}
	if _, err := remoteIO.Read32(0x08); err == nil {
		t.Fatal("read of unknown register succeeded")
	}
}
