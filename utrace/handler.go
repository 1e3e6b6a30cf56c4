//go:build linux && amd64

package utrace

import (
	"github.com/zyedidia/roofline/fpcount"
)

// A Marker is a function whose entry (and, with Exit set, return) is
// reported to the Handler. Addr is the static address of the function entry;
// the PIE offset of the running process is added by the Program.
type Marker struct {
	ID   int
	Addr uint64
	Exit bool
	// Quiet markers are excluded from the accounting: neither the call
	// entering them nor their own instructions are reported.
	Quiet bool
}

// A Handler receives the events of a traced program. All methods are called
// from the goroutine running Program.Run, and the events of one thread are
// delivered in program order.
type Handler interface {
	ThreadStart(tid int) error
	ThreadEnd(tid int) error

	// MarkerEnter is called when t is stopped at the entry of a marker. The
	// call arguments can be read from t.
	MarkerEnter(t *Thread, id int)
	// MarkerExit is called when t returns from a marker with Exit set.
	MarkerExit(t *Thread, id int)

	// Active reports whether the thread must be single-stepped so that its
	// blocks and memory accesses are reported.
	Active(tid int) bool
	BlockEnter(tid int, ops uint64)
	MemoryAccess(tid int, size uint16, write bool)
}

// Options configure a Program.
type Options struct {
	Markers []Marker
	// Instrument computes the operation totals of decoded blocks.
	Instrument Instrumenter
}

func (o *Options) instrument() Instrumenter {
	if o.Instrument != nil {
		return o.Instrument
	}
	return func(b []fpcount.Instr) uint64 {
		return fpcount.CountBlock(fpcount.X86_64, b)
	}
}
