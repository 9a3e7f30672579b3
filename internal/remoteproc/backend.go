package remoteproc

import "github.com/tinyrange/rproc/internal/iomem"

// Backend is a platform's remote processor implementation. Init and Mmap
// are required; the other hooks are optional interfaces and an absent hook
// succeeds without doing anything.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Init opens the platform devices and registers the initial regions.
	// On failure it must release whatever it opened.
	Init(c *Controller) error
	// Mmap returns an I/O region covering size bytes at pa (device address
	// da). Backends that allocate a fresh window register it with
	// c.AddRegion.
	Mmap(c *Controller, pa, da, size uint64, attr uint32) (*iomem.Region, error)
}

// Remover releases the devices opened by Init.
type Remover interface {
	Remove(c *Controller) error
}

// Configurer prepares the platform before loading.
type Configurer interface {
	Config(c *Controller, data any) error
}

// Starter starts the remote core at c.BootAddr().
type Starter interface {
	Start(c *Controller) error
}

// Stopper stops the remote core.
type Stopper interface {
	Stop(c *Controller) error
}

// Shutdowner powers the remote core down and releases platform resources.
type Shutdowner interface {
	Shutdown(c *Controller) error
}

// Notifier kicks the remote core for notification id.
type Notifier interface {
	Notify(c *Controller, id uint32) error
}

// FullBackend is a backend implementing every optional hook.
type FullBackend interface {
	Backend
	Remover
	Configurer
	Starter
	Stopper
	Shutdowner
	Notifier
}
