package roofline

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrNoROIStart    = errors.New("roi start has not been detected: check the marker name and that the compiler has not inlined it")
	ErrNoROIEnd      = errors.New("roi end has not been detected: check the marker name and that the compiler has not inlined it")
	ErrUnbalancedROI = errors.New("uneven detection of roi start and end")
)

// A State is the ROI state of one thread.
type State uint8

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// A Marker identifies which configured function produced an event.
type Marker uint8

const (
	MarkerStart Marker = iota
	MarkerEnd
	MarkerTraced
)

func (m Marker) String() string {
	switch m {
	case MarkerStart:
		return "start"
	case MarkerEnd:
		return "end"
	case MarkerTraced:
		return "traced"
	}
	return fmt.Sprintf("marker(%d)", uint8(m))
}

// MarkerArgs are the values a host extracted from a marker call: the label
// passed by the program and the call's source location.
type MarkerArgs struct {
	Label string
	Loc   SourceLocation
}

// Counters count ROI openings and closings across all threads. Every start
// must be matched by an end by the time the process exits. The invocations
// of a traced function are numbered process-wide too.
type Counters struct {
	starts atomic.Uint64
	ends   atomic.Uint64
	labels labeler
}

// Starts returns the number of ROI openings.
func (c *Counters) Starts() uint64 {
	return c.starts.Load()
}

// Ends returns the number of ROI closings.
func (c *Counters) Ends() uint64 {
	return c.ends.Load()
}

// Check verifies that at least one ROI was opened and closed and that the
// openings and closings are balanced.
func (c *Counters) Check() error {
	starts, ends := c.Starts(), c.Ends()
	switch {
	case starts == 0:
		return ErrNoROIStart
	case ends == 0:
		return ErrNoROIEnd
	case starts != ends:
		return fmt.Errorf("%w (%d starts, %d ends)", ErrUnbalancedROI, starts, ends)
	}
	return nil
}

// labeler names the invocations of a traced function. The numeric suffix is
// bumped only when the label it produces is the same as the previous one,
// and it is consulted at both entry and exit of an invocation, so one
// invocation's entry and exit share a label and the next one gets a new id.
type labeler struct {
	mu   sync.Mutex
	id   int
	last string
}

func (l *labeler) next(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.id == 0 {
		l.id = 1
	}
	label := name + strconv.Itoa(l.id)
	if l.last == label {
		l.id++
	} else {
		l.last = label
	}
	return label
}

// ROI is the region-of-interest state machine of one thread. It turns marker
// events into point openings and closings on the thread's ThreadData.
type ROI struct {
	cfg *Config
	ctr *Counters
	td  *ThreadData

	opened  bool   // merged mode: the single point has been opened
	calls   int    // traced function invocations seen
	frames  []bool // traced invocations in flight, false if ignored
	lastEnd SourceLocation
}

// NewROI returns the state machine driving td.
func NewROI(cfg *Config, ctr *Counters, td *ThreadData) *ROI {
	return &ROI{
		cfg: cfg,
		ctr: ctr,
		td:  td,
	}
}

// State returns the current state.
func (r *ROI) State() State {
	if r.td.Active() {
		return Active
	}
	return Idle
}

// Enter handles entry into a marker function.
func (r *ROI) Enter(m Marker, args MarkerArgs) {
	switch m {
	case MarkerStart:
		r.start(args)
	case MarkerEnd:
		r.end(args)
	case MarkerTraced:
		r.enterTraced(args)
	}
}

// Exit handles return from a marker function. Only the traced function
// reacts to returns.
func (r *ROI) Exit(m Marker, args MarkerArgs) {
	if m == MarkerTraced {
		r.exitTraced(args)
	}
}

func (r *ROI) start(args MarkerArgs) {
	r.ctr.starts.Add(1)
	label, loc := args.Label, args.Loc
	if !r.cfg.MarkerArgs() {
		label, loc = r.cfg.StartMarker, SourceLocation{}
	}
	r.td.OpenPoint(label, loc)
	r.td.Activate()
}

func (r *ROI) end(args MarkerArgs) {
	r.ctr.ends.Add(1)
	label, loc := args.Label, args.Loc
	if !r.cfg.MarkerArgs() {
		// with named markers the point is labeled after the start marker
		label, loc = r.cfg.StartMarker, SourceLocation{}
	}
	r.td.Deactivate()
	if !r.td.ClosePoint(label, loc) {
		logger.Warn("roi end reached outside of an roi",
			zap.Int("tid", r.td.Tid),
			zap.String("label", label))
	}
}

func (r *ROI) enterTraced(args MarkerArgs) {
	r.calls++
	if r.cfg.UpToCall > 0 && r.calls > r.cfg.UpToCall {
		r.frames = append(r.frames, false)
		return
	}
	r.frames = append(r.frames, true)
	r.ctr.starts.Add(1)

	name := r.cfg.TraceFunc
	switch {
	case r.cfg.SeparateCalls:
		r.td.OpenPoint(r.ctr.labels.next(name), args.Loc)
	case !r.opened:
		// all invocations are merged into the point opened by the first one
		r.td.OpenPoint(name, args.Loc)
		r.opened = true
	default:
		r.td.Drain()
	}
	r.td.Activate()
}

func (r *ROI) exitTraced(args MarkerArgs) {
	if len(r.frames) == 0 {
		r.ctr.ends.Add(1)
		logger.Warn("traced function returned without a recorded entry",
			zap.Int("tid", r.td.Tid),
			zap.String("func", r.cfg.TraceFunc))
		return
	}
	traced := r.frames[len(r.frames)-1]
	r.frames = r.frames[:len(r.frames)-1]
	if !traced {
		return
	}
	r.ctr.ends.Add(1)

	r.td.Deactivate()
	if r.cfg.SeparateCalls {
		r.td.ClosePoint(r.ctr.labels.next(r.cfg.TraceFunc), args.Loc)
		return
	}
	r.lastEnd = args.Loc
	r.td.StampEnd()
}

// Finish is called at thread teardown. In merged mode it seals the point
// accumulated over every invocation of the traced function.
func (r *ROI) Finish() {
	if r.cfg.Traced() && !r.cfg.SeparateCalls && r.opened {
		r.td.Deactivate()
		r.td.FinishPoint(r.cfg.TraceFunc, r.lastEnd)
		r.opened = false
		return
	}
	if r.td.Open() {
		logger.Warn("thread exited inside an roi, dropping it",
			zap.Int("tid", r.td.Tid),
			zap.String("label", r.td.Current().Label))
	}
}
