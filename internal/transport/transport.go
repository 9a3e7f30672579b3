// Package transport brings up the shared memory message transport once the
// remote core runs: it maps the resource table and the shared buffer,
// creates virtio devices over the vrings and dispatches notifications.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/notify"
	"github.com/tinyrange/rproc/internal/remoteproc"
	"github.com/tinyrange/rproc/internal/virtio"
)

// Window is a physical window.
type Window struct {
	PA   uint64
	Size uint64
}

// Config is the shared memory layout.
type Config struct {
	RscTable   Window
	SharedBuf  Window
	VringTx    uint64
	VringRx    uint64
	VringNum   uint16
	VringAlign uint64
	BufferSize uint32
}

// ConfigFrom converts the memory section of a configuration.
func ConfigFrom(m config.MemoryLayout) Config {
	return Config{
		RscTable:   Window{PA: uint64(m.RscTable.PA), Size: uint64(m.RscTable.Size)},
		SharedBuf:  Window{PA: uint64(m.SharedBuf.PA), Size: uint64(m.SharedBuf.Size)},
		VringTx:    uint64(m.VringTx),
		VringRx:    uint64(m.VringRx),
		VringNum:   uint16(m.VringNum),
		VringAlign: uint64(m.VringAlign),
	}
}

// TxLayout returns the host-to-remote ring.
func (c Config) TxLayout() virtio.Layout {
	return virtio.Layout{Addr: c.VringTx, Num: c.VringNum, Align: c.VringAlign}
}

// RxLayout returns the remote-to-host ring.
func (c Config) RxLayout() virtio.Layout {
	return virtio.Layout{Addr: c.VringRx, Num: c.VringNum, Align: c.VringAlign}
}

// Handler receives the messages of a vdev.
type Handler func(vdev *Vdev, msg []byte) error

// Vdev is a virtio device bound to a controller.
type Vdev struct {
	*Endpoint
	Index   uint
	Pool    *ShmPool
	handler Handler
}

// Transport is the host side of the message transport.
type Transport struct {
	c      *remoteproc.Controller
	cfg    Config
	logger *slog.Logger

	rsc   *iomem.Region
	shbuf *iomem.Region

	mu    sync.Mutex
	vdevs []*Vdev
}

// Setup maps the resource table and the shared buffer and installs the
// notification handler on c.
func Setup(c *remoteproc.Controller, cfg Config) (*Transport, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	t := &Transport{c: c, cfg: cfg, logger: c.Logger().With("component", "transport")}

	pa, _, rsc, err := c.Map(remoteproc.Address(cfg.RscTable.PA), remoteproc.Unspecified, cfg.RscTable.Size, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: map resource table: %w", err)
	}
	if err := c.SetResourceTable(rsc, pa, cfg.RscTable.Size); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	t.rsc = rsc
	t.logger.Info("mapped resource table", "pa", fmt.Sprintf("0x%x", pa), "size", cfg.RscTable.Size)

	_, _, shbuf, err := c.Map(remoteproc.Address(cfg.SharedBuf.PA), remoteproc.Unspecified, cfg.SharedBuf.Size, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: map shared buffer: %w", err)
	}
	t.shbuf = shbuf

	c.SetNotificationHandler(t.dispatch)
	return t, nil
}

// ResourceTable returns the mapped resource table.
func (t *Transport) ResourceTable() *iomem.Region { return t.rsc }

// CreateVdev creates virtio device index over the configured vrings. A
// driver vdev gets its own shared buffer pool.
func (t *Transport) CreateVdev(index uint, role Role, h Handler) (*Vdev, error) {
	shbuf, off, err := t.c.IOForPA(t.cfg.SharedBuf.PA)
	if err != nil {
		return nil, fmt.Errorf("transport: shared buffer io: %w", err)
	}
	size := min(t.cfg.SharedBuf.Size, shbuf.Size()-off)

	mem := iomem.PhysView{shbuf}
	for _, addr := range []uint64{t.cfg.VringTx, t.cfg.VringRx} {
		ring := virtio.RingSize(t.cfg.VringNum, t.cfg.VringAlign)
		_, _, io, err := t.c.Map(remoteproc.Address(addr), remoteproc.Unspecified, ring, 0)
		if err != nil {
			return nil, fmt.Errorf("transport: map vring 0x%x: %w", addr, err)
		}
		mem = append(mem, io)
	}

	vdev := &Vdev{Index: index, handler: h}
	ecfg := EndpointConfig{
		Role:       role,
		Mem:        mem,
		TX:         t.cfg.TxLayout(),
		RX:         t.cfg.RxLayout(),
		BufferSize: t.cfg.BufferSize,
		Kick:       func() error { return t.c.Notify(uint32(index)) },
	}
	if role == RoleDriver {
		if vdev.Pool, err = NewShmPool(shbuf, t.cfg.SharedBuf.PA, size); err != nil {
			return nil, err
		}
		ecfg.Pool = vdev.Pool
	}
	if vdev.Endpoint, err = NewEndpoint(ecfg); err != nil {
		return nil, fmt.Errorf("transport: vdev %d: %w", index, err)
	}

	t.mu.Lock()
	t.vdevs = append(t.vdevs, vdev)
	t.mu.Unlock()
	t.logger.Info("created vdev", "index", index, "role", role.String())
	return vdev, nil
}

// dispatch delivers waiting messages. id selects a vdev; AnyID means all.
func (t *Transport) dispatch(id uint32) error {
	t.mu.Lock()
	vdevs := append([]*Vdev(nil), t.vdevs...)
	t.mu.Unlock()

	var errs []error
	for _, v := range vdevs {
		if id != uint32(notify.AnyID) && uint32(v.Index) != id {
			continue
		}
		n, err := v.Drain(func(msg []byte) error {
			if v.handler == nil {
				return nil
			}
			return v.handler(v, msg)
		})
		if err != nil && !errors.Is(err, ErrReleased) {
			errs = append(errs, fmt.Errorf("vdev %d: %w", v.Index, err))
		}
		if n > 0 {
			t.logger.Debug("dispatched messages", "vdev", v.Index, "count", n)
		}
	}
	return errors.Join(errs...)
}

// Poll waits for one notification and dispatches it.
func (t *Transport) Poll(ctx context.Context) error {
	id, err := t.c.WaitForNotification(ctx)
	if err != nil {
		return err
	}
	if r, ok := t.c.Channel().(notify.Resetter); ok {
		if err := r.Reset(); err != nil {
			return err
		}
	}
	return t.c.GetNotification(uint32(id))
}

// Serve polls until ctx ends. Cancellation is not an error.
func (t *Transport) Serve(ctx context.Context) error {
	for {
		err := t.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Run serves notifications while app runs. When app returns, serving
// stops; the first error of either is returned.
func (t *Transport) Run(ctx context.Context, app func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.Serve(ctx) })
	g.Go(func() error {
		defer cancel()
		return app(ctx)
	})
	return g.Wait()
}

// Release tears down every vdev and detaches from the controller. The
// controller itself stays up.
func (t *Transport) Release() {
	t.c.SetNotificationHandler(nil)
	t.mu.Lock()
	vdevs := t.vdevs
	t.vdevs = nil
	t.mu.Unlock()
	for _, v := range vdevs {
		v.Release()
	}
}
