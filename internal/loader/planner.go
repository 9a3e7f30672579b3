package loader

import (
	"github.com/tinyrange/rproc/internal/remoteproc"
)

// Window is the part of the image the loader handled last. Data holds the
// bytes of the window when the previous step was a fetch.
type Window struct {
	Offset int64
	Len    int
	Data   []byte
}

// Step tells the loader what to do next.
//
// A step with an unspecified DA is a fetch: the loader reads
// [Offset, Offset+CopyLen) into host memory and hands it back in the next
// Window. Otherwise CopyLen bytes at Offset are copied to DA and the
// destination is padded with Padding up to MemLen. CopyLen == 0 ends the
// image.
type Step struct {
	Offset  int64
	CopyLen int
	MemLen  uint64
	DA      remoteproc.Addr
	Padding byte
}

// Done reports whether the step ends the image.
func (s Step) Done() bool { return s.CopyLen == 0 }

// Planner walks an image format. Planners are stateful and serve one load.
type Planner interface {
	Next(w Window) (Step, error)
}

// EntryPointer is implemented by planners that know where the image starts
// executing.
type EntryPointer interface {
	EntryPoint() (uint64, bool)
}

// RawPlanner loads a flat binary at LoadAddr.
type RawPlanner struct {
	LoadAddr uint64
	// MemSize, if larger than the image, is padded with Padding.
	MemSize uint64
	Padding byte

	done bool
}

// Next implements Planner.
func (p *RawPlanner) Next(w Window) (Step, error) {
	if p.done || w.Len <= 0 {
		p.done = true
		return Step{}, nil
	}
	p.done = true
	return Step{
		Offset:  w.Offset,
		CopyLen: w.Len,
		MemLen:  max(p.MemSize, uint64(w.Len)),
		DA:      remoteproc.Address(p.LoadAddr),
		Padding: p.Padding,
	}, nil
}

// EntryPoint implements EntryPointer.
func (p *RawPlanner) EntryPoint() (uint64, bool) {
	return p.LoadAddr, true
}
