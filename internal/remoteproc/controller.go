// Package remoteproc manages the lifecycle of a remote processor core: its
// state machine, the memory regions it owns and the notification channel
// shared with it.
package remoteproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/notify"
)

// State is the lifecycle state of a remote core.
type State int

const (
	Offline State = iota
	Ready
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NotificationHandler handles a notification dispatched by GetNotification.
type NotificationHandler func(id uint32) error

// ResourceTable is the location of the firmware resource table.
type ResourceTable struct {
	IO   *iomem.Region
	PA   uint64
	Size uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The controller adds its own attributes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// Controller drives one remote core. It is not safe for concurrent use
// except for GetNotification, Notify and the channel operations, which the
// transport may call from its own goroutine.
type Controller struct {
	id      xid.ID
	backend Backend
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	regions  regionTable
	bootAddr uint64
	rsc      *ResourceTable
	channel  notify.Channel
	handler  NotificationHandler
	removed  bool
}

// New initialises a controller with backend. On success the controller is
// Ready. If Init fails, regions it registered are released.
func New(backend Backend, opts ...Option) (*Controller, error) {
	if backend == nil {
		return nil, fmt.Errorf("remoteproc: init: %w: nil backend", ErrInvalidArgument)
	}
	c := &Controller{
		id:      xid.New(),
		backend: backend,
		state:   Offline,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("rproc", c.id.String(), "backend", backend.Name())

	if err := backend.Init(c); err != nil {
		for _, m := range c.regions.reset() {
			m.IO.Close()
		}
		if c.channel != nil {
			c.channel.Close()
		}
		return nil, fmt.Errorf("remoteproc: init %s: %w", backend.Name(), err)
	}

	c.state = Ready
	c.logger.Info("remote processor initialised", "regions", len(c.regions.regions))
	return c, nil
}

// ID returns the controller's instance id.
func (c *Controller) ID() xid.ID { return c.id }

// Logger returns the controller's logger.
func (c *Controller) Logger() *slog.Logger { return c.logger }

// Backend returns the backend.
func (c *Controller) Backend() Backend { return c.backend }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old != s {
		c.logger.Info("remote processor state changed", "from", old, "to", s)
	}
}

// checkState returns an error unless the controller is live and in one of
// the given states.
func (c *Controller) checkState(op string, allowed ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return fmt.Errorf("remoteproc: %s: %w", op, ErrRemoved)
	}
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return fmt.Errorf("remoteproc: %s: %w: %s", op, ErrInvalidState, c.state)
}

// AddRegion appends a region. Overlap is not checked.
func (c *Controller) AddRegion(m *MemoryRegion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions.add(m)
	c.logger.Debug("region added", "region", m.String())
}

// Regions returns the regions in insertion order.
func (c *Controller) Regions() []*MemoryRegion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regions.list()
}

// Region returns the first region called name.
func (c *Controller) Region(name string) (*MemoryRegion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.regions.byName(name); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: region %q", ErrNotFound, name)
}

// Resolve returns the region containing physical address pa.
func (c *Controller) Resolve(pa uint64) (*MemoryRegion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.regions.byPA(pa, 1); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: pa 0x%x", ErrNotFound, pa)
}

// IOForPA returns the I/O region containing pa and the offset of pa in it.
func (c *Controller) IOForPA(pa uint64) (*iomem.Region, uint64, error) {
	m, err := c.Resolve(pa)
	if err != nil {
		return nil, 0, err
	}
	off, ok := m.IO.PhysToOffset(pa)
	if !ok {
		return nil, 0, fmt.Errorf("%w: pa 0x%x outside io %s", ErrNotFound, pa, m.IO)
	}
	return m.IO, off, nil
}

// IOForDA returns the I/O region containing device address da and the
// physical address da maps to.
func (c *Controller) IOForDA(da uint64) (*iomem.Region, uint64, error) {
	c.mu.Lock()
	m := c.regions.byDA(da, 1)
	c.mu.Unlock()
	if m == nil {
		return nil, 0, fmt.Errorf("%w: da 0x%x", ErrNotFound, da)
	}
	pa, _ := m.DAToPA(da)
	return m.IO, pa, nil
}

// Map returns an I/O region covering size bytes at pa/da. An unspecified
// address defaults to the other one. A registered region that already
// covers the request is reused; otherwise the backend maps it.
func (c *Controller) Map(pa, da Addr, size uint64, attr uint32) (uint64, uint64, *iomem.Region, error) {
	if err := c.checkState("map", Offline, Ready, Running, Stopped); err != nil {
		return 0, 0, nil, err
	}
	if !pa.IsSpecified() && !da.IsSpecified() {
		return 0, 0, nil, fmt.Errorf("remoteproc: map: %w: no physical or device address", ErrInvalidAddress)
	}
	lpa := pa.Or(da).Value()
	lda := da.Or(pa).Value()

	c.mu.Lock()
	m := c.regions.covering(lpa, lda, size)
	c.mu.Unlock()
	if m != nil {
		io, err := m.IO.Sub(lpa-m.PA, size)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("remoteproc: map: %w", err)
		}
		return lpa, lda, io, nil
	}

	io, err := c.backend.Mmap(c, lpa, lda, size, attr)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("remoteproc: map pa=0x%x da=0x%x size=0x%x: %w", lpa, lda, size, err)
	}
	if io == nil {
		return 0, 0, nil, fmt.Errorf("remoteproc: map pa=0x%x: %w: backend returned no region", lpa, ErrBackendFailure)
	}
	return lpa, lda, io, nil
}

// Config runs the backend configure hook. From Offline it re-arms the
// controller to Ready.
func (c *Controller) Config(data any) error {
	if err := c.checkState("config", Offline, Ready); err != nil {
		return err
	}
	if cfg, ok := c.backend.(Configurer); ok {
		if err := cfg.Config(c, data); err != nil {
			return fmt.Errorf("remoteproc: config: %w: %w", ErrBackendFailure, err)
		}
	}
	c.setState(Ready)
	return nil
}

// SetBootAddr records where the remote core starts executing.
func (c *Controller) SetBootAddr(addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootAddr = addr
}

// BootAddr returns the boot address.
func (c *Controller) BootAddr() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootAddr
}

// Start runs the backend start hook and moves Ready to Running. The state
// is unchanged if the hook fails.
func (c *Controller) Start() error {
	if err := c.checkState("start", Ready); err != nil {
		return err
	}
	if s, ok := c.backend.(Starter); ok {
		if err := s.Start(c); err != nil {
			return fmt.Errorf("remoteproc: start: %w: %w", ErrBackendFailure, err)
		}
	}
	c.setState(Running)
	return nil
}

// Stop moves Running to Stopped. A failing stop hook is logged and
// returned, but the state still changes.
func (c *Controller) Stop() error {
	if err := c.checkState("stop", Running); err != nil {
		return err
	}
	var hookErr error
	if s, ok := c.backend.(Stopper); ok {
		if err := s.Stop(c); err != nil {
			c.logger.Warn("stop hook failed", "error", err)
			hookErr = fmt.Errorf("remoteproc: stop: %w: %w", ErrBackendFailure, err)
		}
	}
	c.setState(Stopped)
	return hookErr
}

// Shutdown stops a running core, runs the backend shutdown hook and always
// ends Offline. A failing hook is logged and returned.
func (c *Controller) Shutdown() error {
	if err := c.checkState("shutdown", Offline, Ready, Running, Stopped); err != nil {
		return err
	}
	if c.State() == Running {
		// Best effort; Stop already logged the failure.
		_ = c.Stop()
	}
	var hookErr error
	if s, ok := c.backend.(Shutdowner); ok {
		if err := s.Shutdown(c); err != nil {
			c.logger.Warn("shutdown hook failed", "error", err)
			hookErr = fmt.Errorf("remoteproc: shutdown: %w: %w", ErrBackendFailure, err)
		}
	}
	c.setState(Offline)
	return hookErr
}

// Remove releases every region, the notification channel and the backend
// devices. It is idempotent.
func (c *Controller) Remove() error {
	c.mu.Lock()
	if c.removed {
		c.mu.Unlock()
		return nil
	}
	c.removed = true
	ch := c.channel
	c.channel = nil
	c.handler = nil
	c.rsc = nil
	c.mu.Unlock()

	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r, ok := c.backend.(Remover); ok {
		if err := r.Remove(c); err != nil {
			c.logger.Warn("remove hook failed", "error", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrBackendFailure, err))
		}
	}

	c.mu.Lock()
	regions := c.regions.reset()
	c.state = Offline
	c.mu.Unlock()
	for _, m := range regions {
		if err := m.IO.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close region %s: %w", m.Name, err))
		}
	}

	c.logger.Info("remote processor removed", "regions", len(regions))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("remoteproc: remove: %w", err)
	}
	return nil
}

// Removed reports whether Remove has run.
func (c *Controller) Removed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

// SetResourceTable records the resource table location. Its contents are
// not parsed.
func (c *Controller) SetResourceTable(io *iomem.Region, pa, size uint64) error {
	if io == nil || size == 0 {
		return fmt.Errorf("remoteproc: set resource table: %w", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rsc = &ResourceTable{IO: io, PA: pa, Size: size}
	return nil
}

// ResourceTable returns the recorded resource table, or nil.
func (c *Controller) ResourceTable() *ResourceTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rsc
}

// SetChannel hands ownership of ch to the controller. A previous channel
// is closed.
func (c *Controller) SetChannel(ch notify.Channel) {
	c.mu.Lock()
	old := c.channel
	c.channel = ch
	c.mu.Unlock()
	if old != nil && old != ch {
		old.Close()
	}
}

// Channel returns the notification channel, or nil.
func (c *Controller) Channel() notify.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Controller) liveChannel(op string) (notify.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, fmt.Errorf("remoteproc: %s: %w", op, ErrRemoved)
	}
	if c.channel == nil {
		return nil, fmt.Errorf("remoteproc: %s: %w", op, ErrNoChannel)
	}
	return c.channel, nil
}

// SignalRemote kicks the remote core through the notification channel.
func (c *Controller) SignalRemote(mask uint32) error {
	ch, err := c.liveChannel("signal")
	if err != nil {
		return err
	}
	return ch.Signal(mask)
}

// WaitForNotification blocks until the remote core signals or ctx ends.
func (c *Controller) WaitForNotification(ctx context.Context) (notify.ID, error) {
	ch, err := c.liveChannel("wait")
	if err != nil {
		return 0, err
	}
	c.logger.Debug("waiting for notification")
	return ch.Wait(ctx)
}

// Notify runs the backend notify hook for id.
func (c *Controller) Notify(id uint32) error {
	if err := c.checkState("notify", Offline, Ready, Running, Stopped); err != nil {
		return err
	}
	n, ok := c.backend.(Notifier)
	if !ok {
		return nil
	}
	if err := n.Notify(c, id); err != nil {
		return fmt.Errorf("remoteproc: notify %d: %w: %w", id, ErrBackendFailure, err)
	}
	return nil
}

// SetNotificationHandler installs the handler GetNotification dispatches
// to.
func (c *Controller) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// GetNotification dispatches notification id to the installed handler.
// Without a handler it does nothing.
func (c *Controller) GetNotification(id uint32) error {
	c.mu.Lock()
	removed := c.removed
	h := c.handler
	c.mu.Unlock()
	if removed {
		return fmt.Errorf("remoteproc: get notification: %w", ErrRemoved)
	}
	if h == nil {
		return nil
	}
	return h(id)
}
