package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyrange/rproc/internal/virtio"
)

// Role is the side of the virtio device an endpoint plays.
type Role int

const (
	// RoleDriver owns the rings and the buffers (the host).
	RoleDriver Role = iota
	// RoleDevice consumes buffers the driver offers (the remote).
	RoleDevice
)

func (r Role) String() string {
	if r == RoleDevice {
		return "device"
	}
	return "driver"
}

// DefaultBufferSize is the size of one message buffer.
const DefaultBufferSize = 512

var (
	ErrMessageTooLarge = errors.New("transport: message larger than buffer")
	ErrNoBuffer        = errors.New("transport: no buffer available")
	ErrReleased        = errors.New("transport: endpoint released")
)

// EndpointConfig describes one end of a pair of rings. TX carries
// driver-to-device messages and RX device-to-driver messages, whichever
// side the endpoint is on.
type EndpointConfig struct {
	Role Role
	Mem  virtio.Memory
	TX   virtio.Layout
	RX   virtio.Layout

	// Pool supplies buffers to a driver endpoint.
	Pool       *ShmPool
	BufferSize uint32
	// Buffers is the number of receive buffers a driver posts. Zero means
	// as many as fit the ring and half of the pool.
	Buffers int

	// Kick signals the other side after a send.
	Kick func() error
}

// Endpoint sends and receives whole buffers over a pair of rings.
type Endpoint struct {
	cfg EndpointConfig

	mu       sync.Mutex
	released bool

	// driver side
	tx, rx  *virtio.Driver
	txBufs  map[uint16]uint64
	rxBufs  map[uint16]uint64
	txSpare []uint64

	// device side
	txq, rxq *virtio.Queue
}

// NewEndpoint sets up the rings. A driver endpoint initialises them and
// posts its receive buffers; a device endpoint attaches to rings the driver
// has already set up.
func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	e := &Endpoint{cfg: cfg}

	var err error
	if cfg.Role == RoleDevice {
		if e.txq, err = virtio.NewQueue(cfg.Mem, cfg.TX); err != nil {
			return nil, err
		}
		if e.rxq, err = virtio.NewQueue(cfg.Mem, cfg.RX); err != nil {
			return nil, err
		}
		return e, nil
	}

	if cfg.Pool == nil {
		return nil, fmt.Errorf("transport: driver endpoint needs a buffer pool")
	}
	if e.tx, err = virtio.NewDriver(cfg.Mem, cfg.TX); err != nil {
		return nil, err
	}
	if e.rx, err = virtio.NewDriver(cfg.Mem, cfg.RX); err != nil {
		return nil, err
	}
	e.txBufs = make(map[uint16]uint64)
	e.rxBufs = make(map[uint16]uint64)

	n := cfg.Buffers
	if n == 0 {
		n = int(min(uint64(cfg.RX.Num), cfg.Pool.Available()/2/uint64(cfg.BufferSize)))
	}
	for i := 0; i < n; i++ {
		pa, err := cfg.Pool.Get(uint64(cfg.BufferSize))
		if err != nil {
			return nil, err
		}
		head, err := e.rx.Add(virtio.Payload{Addr: pa, Length: cfg.BufferSize, IsWrite: true})
		if err != nil {
			return nil, err
		}
		e.rxBufs[head] = pa
	}
	return e, nil
}

// Role returns the endpoint's role.
func (e *Endpoint) Role() Role { return e.cfg.Role }

// Send copies msg into a buffer, queues it and kicks the other side.
func (e *Endpoint) Send(msg []byte) error {
	if uint32(len(msg)) > e.cfg.BufferSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(msg), e.cfg.BufferSize)
	}
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return ErrReleased
	}
	var err error
	if e.cfg.Role == RoleDevice {
		err = e.sendDevice(msg)
	} else {
		err = e.sendDriver(msg)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if e.cfg.Kick != nil {
		return e.cfg.Kick()
	}
	return nil
}

func (e *Endpoint) sendDriver(msg []byte) error {
	// Recycle buffers the device has finished reading.
	for {
		head, _, ok, err := e.tx.GetUsed()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if pa, ok := e.txBufs[head]; ok {
			e.txSpare = append(e.txSpare, pa)
			delete(e.txBufs, head)
		}
	}

	var pa uint64
	if n := len(e.txSpare); n > 0 {
		pa = e.txSpare[n-1]
		e.txSpare = e.txSpare[:n-1]
	} else {
		var err error
		if pa, err = e.cfg.Pool.Get(uint64(e.cfg.BufferSize)); err != nil {
			return err
		}
	}
	if _, err := e.cfg.Mem.WriteAt(msg, int64(pa)); err != nil {
		e.txSpare = append(e.txSpare, pa)
		return fmt.Errorf("transport: write buffer 0x%x: %w", pa, err)
	}
	head, err := e.tx.Add(virtio.Payload{Addr: pa, Length: uint32(len(msg))})
	if err != nil {
		e.txSpare = append(e.txSpare, pa)
		return err
	}
	e.txBufs[head] = pa
	return nil
}

func (e *Endpoint) sendDevice(msg []byte) error {
	head, ok, err := e.rxq.GetAvailableBuffer()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoBuffer
	}
	chain, err := e.rxq.ReadDescriptorChain(head)
	if err != nil {
		return err
	}
	if len(chain) == 0 || !chain[0].IsWrite || chain[0].Length < uint32(len(msg)) {
		e.rxq.PutUsedBuffer(head, 0)
		return fmt.Errorf("%w: unusable receive buffer", ErrNoBuffer)
	}
	if err := e.rxq.WriteGuest(chain[0].Addr, msg); err != nil {
		return err
	}
	return e.rxq.PutUsedBuffer(head, uint32(len(msg)))
}

// Receive returns the next message, or false when none is waiting.
func (e *Endpoint) Receive() ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil, false, ErrReleased
	}
	if e.cfg.Role == RoleDevice {
		return e.receiveDevice()
	}
	return e.receiveDriver()
}

func (e *Endpoint) receiveDriver() ([]byte, bool, error) {
	head, n, ok, err := e.rx.GetUsed()
	if err != nil || !ok {
		return nil, false, err
	}
	pa, known := e.rxBufs[head]
	if !known {
		return nil, false, fmt.Errorf("transport: used descriptor %d was never posted", head)
	}
	delete(e.rxBufs, head)
	if n > e.cfg.BufferSize {
		n = e.cfg.BufferSize
	}
	msg := make([]byte, n)
	if _, err := e.cfg.Mem.ReadAt(msg, int64(pa)); err != nil {
		return nil, false, fmt.Errorf("transport: read buffer 0x%x: %w", pa, err)
	}
	next, err := e.rx.Add(virtio.Payload{Addr: pa, Length: e.cfg.BufferSize, IsWrite: true})
	if err != nil {
		return nil, false, err
	}
	e.rxBufs[next] = pa
	return msg, true, nil
}

func (e *Endpoint) receiveDevice() ([]byte, bool, error) {
	head, ok, err := e.txq.GetAvailableBuffer()
	if err != nil || !ok {
		return nil, false, err
	}
	chain, err := e.txq.ReadDescriptorChain(head)
	if err != nil {
		return nil, false, err
	}
	var msg []byte
	for _, p := range chain {
		if p.IsWrite {
			continue
		}
		b, err := e.txq.ReadGuest(p.Addr, p.Length)
		if err != nil {
			return nil, false, err
		}
		msg = append(msg, b...)
	}
	if err := e.txq.PutUsedBuffer(head, 0); err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// Drain passes every waiting message to h and returns how many there were.
func (e *Endpoint) Drain(h func([]byte) error) (int, error) {
	n := 0
	for {
		msg, ok, err := e.Receive()
		if err != nil || !ok {
			return n, err
		}
		n++
		if h != nil {
			if err := h(msg); err != nil {
				return n, err
			}
		}
	}
}

// Release stops the endpoint. Device queues are reset.
func (e *Endpoint) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.released = true
	if e.txq != nil {
		e.txq.Reset()
		e.rxq.Reset()
	}
}
