// Package roofline measures floating-point operations and memory traffic
// inside programmer-demarcated regions of interest (ROIs) of a running
// program. The counting engine is driven by an instrumentation host through
// the Engine entry points: the host reports executed blocks, memory accesses,
// marker function entries/exits, and thread lifecycle, and the engine
// attributes counts to the ROI active on each thread. Completed regions are
// written as one XML report per thread, ready for a roofline plot.
package roofline

import "fmt"

// A SourceLocation is the file/line provenance of an ROI marker.
type SourceLocation struct {
	File string
	Line uint32
}

func (l SourceLocation) String() string {
	if l.File == "" {
		return fmt.Sprintf("?:%d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// A Point holds the metrics of one ROI occurrence. It is called a point
// because it is drawn as a point on the roofline plot.
type Point struct {
	Label string
	Start SourceLocation
	End   SourceLocation

	Flops      uint64
	Bytes      uint64
	ReadBytes  uint64
	WriteBytes uint64

	// Wall-clock seconds, only set in timing mode.
	StartTime float64
	EndTime   float64
}

// AddFlops accumulates floating-point operations.
func (p *Point) AddFlops(n uint64) {
	p.Flops += n
}

// AddAccess accumulates one memory access of the given kind.
func (p *Point) AddAccess(size uint16, kind Kind) {
	p.Bytes += uint64(size)
	switch kind {
	case Read:
		p.ReadBytes += uint64(size)
	case Write:
		p.WriteBytes += uint64(size)
	}
}

// Reset zeroes every counter and clears the label and locations.
func (p *Point) Reset() {
	*p = Point{}
}

// Elapsed returns the wall-clock duration of the ROI in seconds.
func (p *Point) Elapsed() float64 {
	return p.EndTime - p.StartTime
}

// Intensity returns the arithmetic intensity (flops per byte) of the point,
// or 0 if no memory was accessed.
func (p *Point) Intensity() float64 {
	if p.Bytes == 0 {
		return 0
	}
	return float64(p.Flops) / float64(p.Bytes)
}
