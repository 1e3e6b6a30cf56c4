package roofline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/zyedidia/roofline/fpcount"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrThreadExists = errors.New("thread already registered")

// An Option customizes an Engine.
type Option func(e *Engine)

// WithClock replaces the wall clock used to stamp points in timing mode.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRunID sets the identifier written in the root element of every report.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.run = id
	}
}

type thread struct {
	data *ThreadData
	roi  *ROI
}

// An Engine is the host-facing side of the counting engine. A host delivers
// thread lifecycle, block, memory access and marker events through its
// methods, each tagged with the id of the thread that produced it. Events for
// different threads may be delivered concurrently; events for one thread must
// be delivered in program order.
type Engine struct {
	cfg   Config
	clock Clock
	run   string

	ctr     Counters
	threads sync.Map // tid -> *thread
	reports *Reports
}

// NewEngine validates cfg and returns an engine ready to receive events.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		clock: WallClock,
		run:   xid.New().String(),
	}
	for _, o := range opts {
		o(e)
	}
	e.reports = NewReports(e.run, cfg.Timing)
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Counters returns the process-wide ROI start/end counters.
func (e *Engine) Counters() *Counters {
	return &e.ctr
}

// Reports returns the per-thread reports collected so far.
func (e *Engine) Reports() *Reports {
	return e.reports
}

func (e *Engine) thread(tid int) *thread {
	v, ok := e.threads.Load(tid)
	if !ok {
		return nil
	}
	return v.(*thread)
}

// InstrumentBlock returns the static floating-point operation total of a
// block. Hosts call it once per block and report the result with
// OnBlockEnter every time the block executes.
func (e *Engine) InstrumentBlock(block []fpcount.Instr) uint64 {
	if e.cfg.Timing {
		return 0
	}
	return fpcount.CountBlock(e.cfg.Arch, block)
}

// OnThreadStart allocates the state of a new thread.
func (e *Engine) OnThreadStart(tid int) error {
	td, err := NewThreadData(tid, e.cfg.entries(), e.cfg.Timing, e.clock)
	if err != nil {
		return fmt.Errorf("thread %d: %w", tid, err)
	}
	t := &thread{
		data: td,
		roi:  NewROI(&e.cfg, &e.ctr, td),
	}
	if _, loaded := e.threads.LoadOrStore(tid, t); loaded {
		return fmt.Errorf("thread %d: %w", tid, ErrThreadExists)
	}
	logger.Debug("thread start", zap.Int("tid", tid))
	return nil
}

// OnThreadEnd finishes the thread's ROIs, serializes its report and frees
// its state. The report is written to disk by Close.
func (e *Engine) OnThreadEnd(tid int) error {
	v, ok := e.threads.LoadAndDelete(tid)
	if !ok {
		return nil
	}
	t := v.(*thread)
	t.roi.Finish()
	t.data.Release()

	points := t.data.Completed()
	logger.Debug("thread end",
		zap.Int("tid", tid),
		zap.Int("points", len(points)))
	return e.reports.Add(tid, points)
}

// OnBlockEnter reports that a block with the given static operation total
// is about to execute.
func (e *Engine) OnBlockEnter(tid int, ops uint64) {
	if e.cfg.Timing || ops == 0 {
		return
	}
	if t := e.thread(tid); t != nil {
		t.data.ReportOperations(ops)
	}
}

// OnMemoryAccess reports one executed memory access.
func (e *Engine) OnMemoryAccess(tid int, size uint16, kind Kind) {
	if e.cfg.Timing || !e.cfg.Records(kind) {
		return
	}
	if t := e.thread(tid); t != nil {
		t.data.Record(size, kind)
	}
}

// OnMarkerEnter reports entry into a marker function.
func (e *Engine) OnMarkerEnter(tid int, m Marker, args MarkerArgs) {
	if t := e.thread(tid); t != nil {
		t.roi.Enter(m, args)
	}
}

// OnMarkerExit reports the return from a marker function.
func (e *Engine) OnMarkerExit(tid int, m Marker, args MarkerArgs) {
	if t := e.thread(tid); t != nil {
		t.roi.Exit(m, args)
	}
}

// Active reports whether events of the thread are currently counted. Hosts
// may skip block and memory instrumentation while it is false. It is always
// false in timing mode.
func (e *Engine) Active(tid int) bool {
	if e.cfg.Timing {
		return false
	}
	t := e.thread(tid)
	return t != nil && t.data.Active()
}

// Close ends the threads the host did not end, checks that ROI starts and
// ends were balanced and, only if they were, writes every thread report to
// the output directory.
func (e *Engine) Close() error {
	var err error
	e.threads.Range(func(k, _ interface{}) bool {
		err = multierr.Append(err, e.OnThreadEnd(k.(int)))
		return true
	})
	if err != nil {
		return err
	}
	if err := e.ctr.Check(); err != nil {
		return err
	}
	return e.reports.Flush(e.cfg.OutputDir)
}
