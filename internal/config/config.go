// Package config describes a remote processor platform in YAML: which
// backend to use, where its devices live, the shared memory layout and how
// firmware is loaded.
package config

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFilename is looked up in the working directory.
	DefaultFilename = "rproc.yaml"
	// EnvVar names a configuration file.
	EnvVar = "RPROC_CONFIG"
)

type Platform string

const (
	PlatformLinux Platform = "linux"
	PlatformVirt  Platform = "virt"
	PlatformAPU   Platform = "apu"
)

type NotifyMode string

const (
	NotifyPoll NotifyMode = "poll"
	NotifyIPI  NotifyMode = "ipi"
	NotifyNone NotifyMode = "none"
)

type LoadMode string

const (
	LoadBlock   LoadMode = "block"
	LoadChunked LoadMode = "chunked"
)

type Format string

const (
	FormatELF Format = "elf"
	FormatRaw Format = "raw"
)

// Defaults of the rv64 virt machine layout.
const (
	DefaultSHMBase       = 0x90100000
	DefaultRscTableSize  = 0x20000
	DefaultSharedBufPA   = DefaultSHMBase + DefaultRscTableSize
	DefaultSharedBufSize = 0x40000
	DefaultRingSize      = 0x4000
	DefaultVringTx       = DefaultSharedBufPA + DefaultSharedBufSize
	DefaultVringRx       = DefaultVringTx + DefaultRingSize
	DefaultVringNum      = 256
	// MaxVringNum is the largest queue a split vring can index.
	MaxVringNum          = 32768
	DefaultVringAlign    = 0x1000
	DefaultPollBase      = 0x90000000
	DefaultIPIMask       = 0x8

	DefaultBus        = "platform"
	DefaultRprocName  = "90200000.rproc"
	DefaultShmName    = "90100000.shm"
	DefaultPollName   = "90000000.shm"
	DefaultPollPeriod = time.Millisecond
)

// Hex is an address or size written in hexadecimal.
type Hex uint64

// MarshalYAML implements yaml.Marshaler.
func (h Hex) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("0x%x", uint64(h))}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Hex) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", n.Line)
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(n.Value, "_", ""), 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*h = Hex(v)
	return nil
}

// Device names a device on a bus.
type Device struct {
	Bus  string `yaml:"bus"`
	Name string `yaml:"name"`
}

// Window is a physical window.
type Window struct {
	PA   Hex `yaml:"pa"`
	Size Hex `yaml:"size"`
}

// GenericDevice is a device at fixed physical addresses, served by the
// generic bus through the physical memory mapper.
type GenericDevice struct {
	Name    string   `yaml:"name"`
	Windows []Window `yaml:"windows"`
	// IRQ is the interrupt vector; zero means none.
	IRQ int `yaml:"irq,omitempty"`
}

type NotifyConfig struct {
	Mode     NotifyMode    `yaml:"mode"`
	Device   Device        `yaml:"device"`
	Offset   Hex           `yaml:"offset,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
	// IPIMask is the peer's IPI channel bit.
	IPIMask Hex `yaml:"ipiMask,omitempty"`
}

type MemoryLayout struct {
	RscTable   Window `yaml:"rscTable"`
	SharedBuf  Window `yaml:"sharedBuf"`
	VringTx    Hex    `yaml:"vringTx"`
	VringRx    Hex    `yaml:"vringRx"`
	RingSize   Hex    `yaml:"ringSize"`
	VringNum   int    `yaml:"vringNum"`
	VringAlign Hex    `yaml:"vringAlign"`
}

type LoaderConfig struct {
	Mode      LoadMode `yaml:"mode"`
	Format    Format   `yaml:"format"`
	LoadAddr  Hex      `yaml:"loadAddr,omitempty"`
	MemSize   Hex      `yaml:"memSize,omitempty"`
	Padding   uint8    `yaml:"padding,omitempty"`
	ChunkSize int      `yaml:"chunkSize,omitempty"`
}

// Config is a platform description.
type Config struct {
	Version  int      `yaml:"version"`
	Platform Platform `yaml:"platform"`
	CPU      int      `yaml:"cpu"`

	DevMem  string `yaml:"devMem,omitempty"`
	Sysfs   string `yaml:"sysfs,omitempty"`
	DevRoot string `yaml:"devRoot,omitempty"`

	Generic []GenericDevice `yaml:"generic,omitempty"`

	Rproc  Device       `yaml:"rproc"`
	Shm    Device       `yaml:"shm"`
	Notify NotifyConfig `yaml:"notify"`
	Memory MemoryLayout `yaml:"memory"`
	Loader LoaderConfig `yaml:"loader"`
}

// Default returns the rv64 virt Linux host configuration.
func Default() Config {
	var c Config
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Platform == "" {
		c.Platform = PlatformLinux
	}
	if c.Rproc.Bus == "" {
		c.Rproc.Bus = DefaultBus
	}
	if c.Rproc.Name == "" {
		c.Rproc.Name = DefaultRprocName
	}
	if c.Shm.Bus == "" {
		c.Shm.Bus = DefaultBus
	}
	if c.Shm.Name == "" {
		c.Shm.Name = DefaultShmName
	}

	n := &c.Notify
	if n.Mode == "" {
		n.Mode = NotifyPoll
	}
	if n.Device.Bus == "" {
		n.Device.Bus = DefaultBus
	}
	if n.Device.Name == "" {
		n.Device.Name = DefaultPollName
	}
	if n.Interval == 0 {
		n.Interval = DefaultPollPeriod
	}
	if n.IPIMask == 0 {
		n.IPIMask = DefaultIPIMask
	}

	m := &c.Memory
	if m.RscTable.PA == 0 {
		m.RscTable.PA = DefaultSHMBase
	}
	if m.RscTable.Size == 0 {
		m.RscTable.Size = DefaultRscTableSize
	}
	if m.SharedBuf.PA == 0 {
		m.SharedBuf.PA = DefaultSharedBufPA
	}
	if m.SharedBuf.Size == 0 {
		m.SharedBuf.Size = DefaultSharedBufSize
	}
	if m.RingSize == 0 {
		m.RingSize = DefaultRingSize
	}
	if m.VringTx == 0 {
		m.VringTx = DefaultVringTx
	}
	if m.VringRx == 0 {
		m.VringRx = m.VringTx + m.RingSize
	}
	if m.VringNum == 0 {
		m.VringNum = DefaultVringNum
	}
	if m.VringAlign == 0 {
		m.VringAlign = DefaultVringAlign
	}

	if c.Loader.Mode == "" {
		c.Loader.Mode = LoadChunked
	}
	if c.Loader.Format == "" {
		c.Loader.Format = FormatELF
	}
}

// Validate checks the configuration for values no backend can use.
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformLinux, PlatformVirt, PlatformAPU:
	default:
		return fmt.Errorf("config: unknown platform %q", c.Platform)
	}
	switch c.Notify.Mode {
	case NotifyPoll, NotifyNone:
	case NotifyIPI:
		if bits.OnesCount64(uint64(c.Notify.IPIMask)) != 1 {
			return fmt.Errorf("config: ipi mask 0x%x must have exactly one bit set", uint64(c.Notify.IPIMask))
		}
	default:
		return fmt.Errorf("config: unknown notify mode %q", c.Notify.Mode)
	}
	switch c.Loader.Mode {
	case LoadBlock, LoadChunked:
	default:
		return fmt.Errorf("config: unknown loader mode %q", c.Loader.Mode)
	}
	switch c.Loader.Format {
	case FormatELF, FormatRaw:
	default:
		return fmt.Errorf("config: unknown image format %q", c.Loader.Format)
	}

	m := c.Memory
	rsc := [2]uint64{uint64(m.RscTable.PA), uint64(m.RscTable.PA + m.RscTable.Size)}
	buf := [2]uint64{uint64(m.SharedBuf.PA), uint64(m.SharedBuf.PA + m.SharedBuf.Size)}
	if rsc[0] < buf[1] && buf[0] < rsc[1] {
		return fmt.Errorf("config: resource table [0x%x-0x%x) overlaps shared buffer [0x%x-0x%x)", rsc[0], rsc[1], buf[0], buf[1])
	}
	if m.VringNum <= 0 || m.VringNum&(m.VringNum-1) != 0 {
		return fmt.Errorf("config: vring size %d is not a power of two", m.VringNum)
	}
	if m.VringNum > MaxVringNum {
		return fmt.Errorf("config: vring size %d exceeds %d", m.VringNum, MaxVringNum)
	}
	for _, g := range c.Generic {
		if g.Name == "" || len(g.Windows) == 0 {
			return fmt.Errorf("config: generic device %q needs a name and at least one window", g.Name)
		}
	}
	return nil
}

// Parse decodes, normalises and validates YAML.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Resolve picks the configuration file: an explicit path, then $RPROC_CONFIG,
// then DefaultFilename if it exists. An empty result means built-in
// defaults.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultFilename); err == nil {
		return DefaultFilename
	}
	return ""
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// WriteTemplate writes c, with defaults filled in, to path.
func WriteTemplate(path string, c Config) error {
	c.normalize()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&c); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: close %s: %w", path, err)
	}
	return nil
}
