// Package device opens platform devices by bus and name. A device exposes
// one or more I/O regions and optionally an interrupt source.
package device

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tinyrange/rproc/internal/iomem"
)

var (
	ErrNotFound   = errors.New("device: not found")
	ErrNoBus      = errors.New("device: unknown bus")
	ErrDuplicate  = errors.New("device: already registered")
	ErrNoRegion   = errors.New("device: no such region")
	ErrNoIRQ      = errors.New("device: no interrupt")
	ErrDeviceOpen = errors.New("device: open failed")
)

// NoIRQ marks a device without an interrupt line.
const NoIRQ = -1

// Device is an opened device. Close releases every region it owns.
type Device struct {
	Name string
	Bus  string

	Regions []*iomem.Region

	// IRQ is the interrupt vector, or NoIRQ.
	IRQ int
	// IRQSource, when set, produces one read per interrupt (UIO devices).
	IRQSource io.ReadWriteCloser

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// Region returns region i.
func (d *Device) Region(i int) (*iomem.Region, error) {
	if i < 0 || i >= len(d.Regions) {
		return nil, fmt.Errorf("%w: %s/%s region %d", ErrNoRegion, d.Bus, d.Name, i)
	}
	return d.Regions[i], nil
}

// Close releases the device. Later calls return the first result.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		for _, r := range d.Regions {
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if d.IRQSource != nil {
			if err := d.IRQSource.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		d.closeErr = errors.Join(errs...)
		if d.onClose != nil {
			d.onClose()
		}
	})
	return d.closeErr
}

func (d *Device) String() string {
	return d.Bus + "/" + d.Name
}

// Bus opens devices by name.
type Bus interface {
	Name() string
	Open(name string) (*Device, error)
	List() ([]string, error)
}

// closeAll is used on partial open failure.
func closeAll(regions []*iomem.Region) {
	for _, r := range regions {
		r.Close()
	}
}
