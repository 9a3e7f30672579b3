package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyrange/rproc/internal/iomem"
)

var ErrPoolExhausted = errors.New("transport: shared buffer pool exhausted")

// ShmPool hands out buffers from a shared memory window. Buffers are never
// returned to the pool; endpoints recycle them instead.
type ShmPool struct {
	mu   sync.Mutex
	io   *iomem.Region
	base uint64
	size uint64
	used uint64
}

// NewShmPool manages size bytes of io starting at physical address pa.
func NewShmPool(io *iomem.Region, pa, size uint64) (*ShmPool, error) {
	if io == nil || size == 0 {
		return nil, fmt.Errorf("transport: shm pool: empty window")
	}
	if !io.Contains(pa, size) {
		return nil, fmt.Errorf("transport: shm pool [0x%x+0x%x) outside %s", pa, size, io)
	}
	return &ShmPool{io: io, base: pa, size: size}, nil
}

// Get returns the physical address of a fresh size byte buffer.
func (p *ShmPool) Get(size uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if size > p.size-p.used {
		return 0, fmt.Errorf("%w: want %d, %d left", ErrPoolExhausted, size, p.size-p.used)
	}
	pa := p.base + p.used
	p.used += size
	return pa, nil
}

// Available returns the bytes not yet handed out.
func (p *ShmPool) Available() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - p.used
}

// Region returns the window the pool allocates from.
func (p *ShmPool) Region() *iomem.Region { return p.io }
