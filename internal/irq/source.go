package irq

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Source forwards interrupts read from a file descriptor (an eventfd or a
// UIO device node) to a vector. Every successful read of width bytes is one
// interrupt.
type Source struct {
	ctrl   *Controller
	vector int
	r      io.Reader
	width  int
	ack    func() error

	done chan struct{}
	once sync.Once
	err  error
}

// Attach starts a goroutine delivering interrupts from r on vector. ack, if
// not nil, runs after each delivery (UIO needs the interrupt re-enabled).
func Attach(c *Controller, vector int, r io.Reader, width int, ack func() error) *Source {
	s := &Source{
		ctrl:   c,
		vector: vector,
		r:      r,
		width:  width,
		ack:    ack,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Source) run() {
	defer close(s.done)

	buf := make([]byte, s.width)
	for {
		if _, err := io.ReadFull(s.r, buf); err != nil {
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.EOF) {
				s.err = err
				slog.Warn("irq: interrupt source stopped", "vector", s.vector, "error", err)
			}
			return
		}
		s.ctrl.Raise(s.vector)
		if s.ack != nil {
			if err := s.ack(); err != nil {
				s.err = err
				return
			}
		}
	}
}

// Close closes the underlying reader if it is an io.Closer and waits for
// the delivery goroutine to exit.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
		<-s.done
	})
	return err
}

// Err returns the error that stopped the source, if any.
func (s *Source) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
