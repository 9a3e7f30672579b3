// Package loader copies firmware images into a remote core's memory and
// starts it. Images are walked by a Planner; the loader resolves each
// destination through the controller's regions and copies from an image
// store either from a fully resident image (block mode) or segment by
// segment (chunked mode).
package loader

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/rproc/internal/iomem"
	"github.com/tinyrange/rproc/internal/remoteproc"
)

var ErrOpen = errors.New("loader: image open failed")

// ImageStore is a source of image bytes.
type ImageStore interface {
	// Open opens path and returns the number of readable bytes, which must
	// be positive.
	Open(path string) (int, error)
	// Read returns [off, off+n) in host memory. The result may be short at
	// the end of the image.
	Read(off int64, n int) ([]byte, error)
	// Copy writes n image bytes at off into dst at dstOff and returns the
	// number of bytes written.
	Copy(off int64, n int, dst *iomem.Region, dstOff uint64) (int, error)
	Close() error
}

// Target is the controller surface the loader drives.
type Target interface {
	Config(data any) error
	IOForDA(da uint64) (*iomem.Region, uint64, error)
	Map(pa, da remoteproc.Addr, size uint64, attr uint32) (uint64, uint64, *iomem.Region, error)
	SetBootAddr(addr uint64)
	Start() error
}

// Progress receives the number of bytes written to the remote core.
// *progressbar.ProgressBar satisfies it. Reporting is best effort: an error
// from Add64 is logged and the load carries on.
type Progress interface {
	Add64(n int64) error
}

// Result summarises a load.
type Result struct {
	Segments int
	Copied   int64
	Padded   uint64
	Entry    uint64
	// Empty is set when the planner produced no segment; the core is
	// started anyway.
	Empty bool
}

// Loader loads one image per call. Planner must be fresh for every load.
type Loader struct {
	Store    ImageStore
	Planner  Planner
	Logger   *slog.Logger
	Progress Progress
	// ConfigData is passed to the controller's Config before loading.
	ConfigData any
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// source is where segment bytes come from during one load.
type source interface {
	fetch(off int64, n int) ([]byte, error)
	copyTo(off int64, n int, dst *iomem.Region, dstOff uint64) (int, error)
}

type residentSource struct {
	image []byte
}

func (s residentSource) fetch(off int64, n int) ([]byte, error) {
	if off < 0 || off > int64(len(s.image)) {
		return nil, fmt.Errorf("loader: fetch at %d beyond image of %d bytes", off, len(s.image))
	}
	end := min(off+int64(n), int64(len(s.image)))
	return s.image[off:end], nil
}

func (s residentSource) copyTo(off int64, n int, dst *iomem.Region, dstOff uint64) (int, error) {
	src, err := s.fetch(off, n)
	if err != nil {
		return 0, err
	}
	return dst.WriteAt(src, int64(dstOff))
}

type streamSource struct {
	store ImageStore
}

func (s streamSource) fetch(off int64, n int) ([]byte, error) {
	return s.store.Read(off, n)
}

func (s streamSource) copyTo(off int64, n int, dst *iomem.Region, dstOff uint64) (int, error) {
	return s.store.Copy(off, n, dst, dstOff)
}

// cursor is the state of one chunked load.
type cursor struct {
	offset  int64
	length  int
	pa      uint64
	io      *iomem.Region
	padding byte
}

// LoadBlocking reads the whole image into host memory, copies every
// segment and starts the core.
func (l *Loader) LoadBlocking(t Target, path string) (Result, error) {
	return l.load(t, path, true)
}

// LoadChunked streams the image segment by segment from the store and
// starts the core once the planner reports the end of the image.
func (l *Loader) LoadChunked(t Target, path string) (Result, error) {
	return l.load(t, path, false)
}

func (l *Loader) load(t Target, path string, resident bool) (Result, error) {
	if t == nil || l.Store == nil || l.Planner == nil {
		return Result{}, fmt.Errorf("loader: %w: missing target, store or planner", remoteproc.ErrInvalidArgument)
	}
	logger := l.logger().With("image", path)

	if err := t.Config(l.ConfigData); err != nil {
		return Result{}, err
	}

	size, err := l.Store.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer l.Store.Close()
	if size <= 0 {
		return Result{}, fmt.Errorf("%w: %s has %d readable bytes", ErrOpen, path, size)
	}

	var src source = streamSource{store: l.Store}
	if resident {
		image, err := l.Store.Read(0, size)
		if err != nil {
			return Result{}, fmt.Errorf("loader: read %s: %w", path, err)
		}
		if len(image) < size {
			return Result{}, fmt.Errorf("loader: read %s: %w: got %d of %d bytes", path, remoteproc.ErrShortRead, len(image), size)
		}
		src = residentSource{image: image}
	}
	logger.Info("loading image", "size", size, "resident", resident)

	res, err := l.run(t, src, size, logger)
	if err != nil {
		return res, err
	}

	if ep, ok := l.Planner.(EntryPointer); ok {
		if entry, ok := ep.EntryPoint(); ok {
			res.Entry = entry
			t.SetBootAddr(entry)
		}
	}
	if err := t.Start(); err != nil {
		return res, err
	}
	logger.Info("image loaded and started",
		"segments", res.Segments, "copied", res.Copied, "padded", res.Padded,
		"entry", fmt.Sprintf("0x%x", res.Entry), "empty", res.Empty)
	return res, nil
}

func (l *Loader) run(t Target, src source, size int, logger *slog.Logger) (Result, error) {
	var res Result
	w := Window{Offset: 0, Len: size}

	for {
		step, err := l.Planner.Next(w)
		if err != nil {
			return res, fmt.Errorf("loader: plan at offset %d: %w: %w", w.Offset, remoteproc.ErrPlanner, err)
		}
		if step.Done() {
			break
		}
		if step.CopyLen < 0 {
			return res, fmt.Errorf("loader: plan at offset %d: %w: negative length %d", w.Offset, remoteproc.ErrPlanner, step.CopyLen)
		}

		if !step.DA.IsSpecified() {
			data, err := src.fetch(step.Offset, step.CopyLen)
			if err != nil {
				return res, fmt.Errorf("loader: fetch [%d, +%d): %w", step.Offset, step.CopyLen, err)
			}
			if len(data) < step.CopyLen {
				return res, fmt.Errorf("loader: fetch [%d, +%d): %w: got %d bytes", step.Offset, step.CopyLen, remoteproc.ErrShortRead, len(data))
			}
			logger.Debug("fetched image data", "offset", step.Offset, "len", step.CopyLen)
			w = Window{Offset: step.Offset, Len: step.CopyLen, Data: data}
			continue
		}

		cur, err := l.destination(t, step)
		if err != nil {
			return res, err
		}
		dstOff := cur.pa - cur.io.Phys()
		logger.Debug("loading segment",
			"offset", cur.offset, "len", cur.length, "memlen", step.MemLen,
			"da", step.DA, "pa", fmt.Sprintf("0x%x", cur.pa))

		n, err := src.copyTo(cur.offset, cur.length, cur.io, dstOff)
		if err != nil {
			return res, fmt.Errorf("loader: copy segment at offset %d: %w", cur.offset, err)
		}
		if n != cur.length {
			return res, fmt.Errorf("loader: copy segment at offset %d: %w: wrote %d of %d bytes", cur.offset, remoteproc.ErrShortWrite, n, cur.length)
		}
		res.Copied += int64(n)
		if l.Progress != nil {
			if err := l.Progress.Add64(int64(n)); err != nil {
				logger.Debug("progress update failed", "error", err)
			}
		}

		if step.MemLen > uint64(cur.length) {
			pad := step.MemLen - uint64(cur.length)
			if err := cur.io.BlockSet(dstOff+uint64(cur.length), cur.padding, pad); err != nil {
				return res, fmt.Errorf("loader: pad segment at pa 0x%x: %w", cur.pa+uint64(cur.length), err)
			}
			res.Padded += pad
		}
		res.Segments++
		w = Window{Offset: step.Offset, Len: step.CopyLen}
	}

	res.Empty = res.Segments == 0
	return res, nil
}

// destination resolves the I/O region for a step, mapping it through the
// controller when no region covers its device address.
func (l *Loader) destination(t Target, step Step) (cursor, error) {
	da := step.DA.Value()
	size := max(step.MemLen, uint64(step.CopyLen))

	io, pa, err := t.IOForDA(da)
	if err != nil || !io.Contains(pa, size) {
		mpa, _, mio, merr := t.Map(remoteproc.Unspecified, step.DA, size, 0)
		if merr != nil {
			return cursor{}, fmt.Errorf("loader: no memory for da 0x%x size 0x%x: %w", da, size, merr)
		}
		io, pa = mio, mpa
	}
	return cursor{
		offset:  step.Offset,
		length:  step.CopyLen,
		pa:      pa,
		io:      io,
		padding: step.Padding,
	}, nil
}
