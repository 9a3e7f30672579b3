package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tinyrange/rproc/internal/iomem"
)

const (
	// DefaultPlatformSysfs is where platform devices appear in sysfs.
	DefaultPlatformSysfs = "/sys/bus/platform/devices"
	// DefaultDevRoot holds the uioN device nodes.
	DefaultDevRoot = "/dev"
	// PlatformBusName is the bus name Linux platform devices use.
	PlatformBusName = "platform"
)

// UIOBus opens Linux platform devices bound to a UIO driver. Map K of
// /dev/uioN is mmapped at file offset K pages; the device node doubles as
// the interrupt source.
type UIOBus struct {
	name      string
	sysfsRoot string
	devRoot   string
}

// NewUIOBus creates a bus. Empty roots use the Linux defaults.
func NewUIOBus(name, sysfsRoot, devRoot string) *UIOBus {
	if name == "" {
		name = PlatformBusName
	}
	if sysfsRoot == "" {
		sysfsRoot = DefaultPlatformSysfs
	}
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	return &UIOBus{name: name, sysfsRoot: sysfsRoot, devRoot: devRoot}
}

// Name implements Bus.
func (b *UIOBus) Name() string { return b.name }

// uioDir returns the uioN directory of a platform device.
func (b *UIOBus) uioDir(name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(b.sysfsRoot, name, "uio", "uio*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s/%s is not bound to uio", ErrNotFound, b.name, name)
	}
	sort.Strings(matches)
	return matches[0], nil
}

type uioMap struct {
	addr   uint64
	size   uint64
	offset uint64
}

func readSysfsUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("device: parse %s: %w", path, err)
	}
	return v, nil
}

func readMaps(uioDir string) ([]uioMap, error) {
	var maps []uioMap
	for k := 0; ; k++ {
		dir := filepath.Join(uioDir, "maps", "map"+strconv.Itoa(k))
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return maps, nil
			}
			return nil, err
		}
		var m uioMap
		var err error
		if m.addr, err = readSysfsUint(filepath.Join(dir, "addr")); err != nil {
			return nil, err
		}
		if m.size, err = readSysfsUint(filepath.Join(dir, "size")); err != nil {
			return nil, err
		}
		// offset is missing on older kernels.
		if off, err := readSysfsUint(filepath.Join(dir, "offset")); err == nil {
			m.offset = off
		}
		maps = append(maps, m)
	}
}

// Open implements Bus.
func (b *UIOBus) Open(name string) (*Device, error) {
	dir, err := b.uioDir(name)
	if err != nil {
		return nil, err
	}
	uio := filepath.Base(dir)
	irq, err := strconv.Atoi(strings.TrimPrefix(uio, "uio"))
	if err != nil {
		irq = NoIRQ
	}

	maps, err := readMaps(dir)
	if err != nil {
		return nil, fmt.Errorf("device: %s/%s maps: %w", b.name, name, err)
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("%w: %s/%s has no maps", ErrNoRegion, b.name, name)
	}

	f, err := os.OpenFile(filepath.Join(b.devRoot, uio), os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", uio, err)
	}

	d := &Device{Name: name, Bus: b.name, IRQ: irq, IRQSource: f}
	page := int64(os.Getpagesize())
	for k, m := range maps {
		r, err := iomem.MapFile(f, int64(k)*page+int64(m.offset), m.size, m.addr+m.offset)
		if err != nil {
			closeAll(d.Regions)
			f.Close()
			return nil, fmt.Errorf("device: %s/%s map%d: %w", b.name, name, k, err)
		}
		d.Regions = append(d.Regions, r)
	}
	return d, nil
}

// List implements Bus. Only devices bound to uio are listed.
func (b *UIOBus) List() ([]string, error) {
	entries, err := os.ReadDir(b.sysfsRoot)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if _, err := b.uioDir(e.Name()); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

var _ Bus = (*UIOBus)(nil)
