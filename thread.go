package roofline

import (
	"time"

	"go.uber.org/zap"
)

// A Clock returns the current wall-clock time in seconds.
type Clock func() float64

// WallClock is the default Clock.
func WallClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ThreadData aggregates the counts of one execution thread. It owns the
// thread's memory reference buffer, the in-progress Point, and the list of
// completed Points. Every method must be called from the owning thread's
// event stream; ThreadData does no synchronization.
type ThreadData struct {
	Tid int

	buf       *Buffer
	cur       Point
	open      bool // cur is a real ROI occurrence
	active    bool // counts are attributed to cur
	timing    bool
	clock     Clock
	completed []Point
}

// NewThreadData allocates the per-thread state with a buffer of the given
// capacity. In timing mode points record start and end timestamps from clock.
func NewThreadData(tid, entries int, timing bool, clock Clock) (*ThreadData, error) {
	buf, err := NewBuffer(entries)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = WallClock
	}
	return &ThreadData{
		Tid:    tid,
		buf:    buf,
		timing: timing,
		clock:  clock,
	}, nil
}

// ReportOperations adds n floating-point operations to the current point if
// the thread is inside an ROI.
func (t *ThreadData) ReportOperations(n uint64) {
	if t.active {
		t.cur.AddFlops(n)
	}
}

// Record buffers one memory access, draining the buffer as soon as it fills.
func (t *ThreadData) Record(size uint16, kind Kind) {
	if t.buf.Append(MemRef{Size: size, Kind: kind}) {
		t.Drain()
	}
}

// Drain empties the buffer. The buffered accesses are added to the current
// point if the thread is inside an ROI and discarded otherwise.
func (t *ThreadData) Drain() {
	if t.active {
		t.buf.Drain(t.attribute)
	} else {
		t.buf.Drain(nil)
	}
}

func (t *ThreadData) attribute(r MemRef) {
	t.cur.AddAccess(r.Size, r.Kind)
}

// OpenPoint starts a new point. A point that is still open is sealed first,
// unchanged.
func (t *ThreadData) OpenPoint(label string, loc SourceLocation) {
	t.Drain()
	if t.open {
		logger.Debug("sealing stale point",
			zap.Int("tid", t.Tid),
			zap.String("label", t.cur.Label),
			zap.String("next", label))
		t.seal()
	}
	t.cur.Reset()
	t.cur.Label = label
	t.cur.Start = loc
	if t.timing {
		t.cur.StartTime = t.clock()
	}
	t.open = true
}

// ClosePoint records the end location of the current point and appends it to
// the completed list. A closing label that differs from the opening one is
// reported, and the point keeps its opening label. It returns false if no
// point was open.
func (t *ThreadData) ClosePoint(label string, loc SourceLocation) bool {
	return t.closePoint(label, loc, t.timing)
}

// FinishPoint is ClosePoint for a point whose end time was already recorded
// with StampEnd.
func (t *ThreadData) FinishPoint(label string, loc SourceLocation) bool {
	return t.closePoint(label, loc, false)
}

func (t *ThreadData) closePoint(label string, loc SourceLocation, stamp bool) bool {
	t.Drain()
	if !t.open {
		return false
	}
	if stamp {
		t.cur.EndTime = t.clock()
	}
	if label != "" && label != t.cur.Label {
		logger.Warn("ending ROI label does not match the starting one",
			zap.Int("tid", t.Tid),
			zap.String("start", t.cur.Label),
			zap.String("end", label))
	}
	t.cur.End = loc
	t.seal()
	return true
}

// StampEnd records the end time of the open point without sealing it.
func (t *ThreadData) StampEnd() {
	if t.open && t.timing {
		t.cur.EndTime = t.clock()
	}
}

func (t *ThreadData) seal() {
	t.completed = append(t.completed, t.cur)
	t.cur.Reset()
	t.open = false
}

// Activate starts attributing counts to the current point.
func (t *ThreadData) Activate() {
	t.active = true
}

// Deactivate stops attributing counts, flushing what is buffered first.
func (t *ThreadData) Deactivate() {
	t.Drain()
	t.active = false
}

// Active reports whether counts are currently attributed.
func (t *ThreadData) Active() bool {
	return t.active
}

// Open reports whether a point is in progress.
func (t *ThreadData) Open() bool {
	return t.open
}

// Current returns a copy of the in-progress point.
func (t *ThreadData) Current() Point {
	return t.cur
}

// Completed returns the sealed points in completion order.
func (t *ThreadData) Completed() []Point {
	return t.completed
}

// Buffered returns the number of undrained memory references.
func (t *ThreadData) Buffered() int {
	if t.buf == nil {
		return 0
	}
	return t.buf.Len()
}

// Release frees the buffer. The thread must not record accesses afterwards.
func (t *ThreadData) Release() {
	t.buf = nil
	t.active = false
}
