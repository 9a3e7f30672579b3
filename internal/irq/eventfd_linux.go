//go:build linux

package irq

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// EventFD is a software interrupt line backed by a Linux eventfd. One
// Trigger is delivered as one 8-byte read.
type EventFD struct {
	f *os.File
}

// NewEventFD creates a non-blocking eventfd registered with the runtime
// poller so that Close unblocks a pending read.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("irq: eventfd: %w", err)
	}
	return &EventFD{f: os.NewFile(uintptr(fd), "eventfd")}, nil
}

// Trigger raises the line.
func (e *EventFD) Trigger() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := e.f.Write(buf[:])
	return err
}

// Read implements io.Reader.
func (e *EventFD) Read(p []byte) (int, error) {
	return e.f.Read(p)
}

// Close implements io.Closer.
func (e *EventFD) Close() error {
	return e.f.Close()
}

// AttachEventFD delivers the eventfd's triggers on vector.
func AttachEventFD(c *Controller, vector int, e *EventFD) *Source {
	return Attach(c, vector, e, 8, nil)
}
