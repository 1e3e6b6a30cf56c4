//go:build linux && amd64

package roofline

import (
	"os"
	"os/exec"
	"os/signal"
	"runtime"

	"github.com/zyedidia/roofline/bininfo"
	"github.com/zyedidia/roofline/fpcount"
	"github.com/zyedidia/roofline/utrace"
	"go.uber.org/zap"
)

// host adapts the ptrace tracer events to the Engine entry points.
type host struct {
	eng  *Engine
	syms SymbolTable
}

func (h *host) ThreadStart(tid int) error {
	return h.eng.OnThreadStart(tid)
}

func (h *host) ThreadEnd(tid int) error {
	return h.eng.OnThreadEnd(tid)
}

func (h *host) MarkerEnter(t *utrace.Thread, id int) {
	m := Marker(id)
	var args MarkerArgs
	switch {
	case m == MarkerTraced:
		args.Loc = Location(h.syms, t.StaticPC())
	case h.eng.cfg.MarkerArgs():
		args = h.callArgs(t)
	}
	h.eng.OnMarkerEnter(t.Tid(), m, args)
}

// callArgs reads the (label, line, file) arguments of a default marker call.
func (h *host) callArgs(t *utrace.Thread) MarkerArgs {
	label, err := t.ReadString(t.Arg(0))
	if err != nil {
		logger.Debug("cannot read marker label", zap.Int("tid", t.Tid()), zap.Error(err))
	}
	file, err := t.ReadString(t.Arg(2))
	if err != nil {
		logger.Debug("cannot read marker file", zap.Int("tid", t.Tid()), zap.Error(err))
	}
	return MarkerArgs{
		Label: label,
		Loc: SourceLocation{
			File: file,
			Line: uint32(t.Arg(1)),
		},
	}
}

func (h *host) MarkerExit(t *utrace.Thread, id int) {
	// stopped at the return address, which maps to the call site
	h.eng.OnMarkerExit(t.Tid(), Marker(id), MarkerArgs{
		Loc: Location(h.syms, t.StaticPC()),
	})
}

func (h *host) Active(tid int) bool {
	return h.eng.Active(tid)
}

func (h *host) BlockEnter(tid int, ops uint64) {
	h.eng.OnBlockEnter(tid, ops)
}

func (h *host) MemoryAccess(tid int, size uint16, write bool) {
	kind := Read
	if write {
		kind = Write
	}
	h.eng.OnMemoryAccess(tid, size, kind)
}

// Run executes 'target args...' under the ptrace host with the given
// configuration and returns the engine once the target has exited and the
// reports have been written. The returned engine is non-nil whenever the
// target was started, so that partial results can be inspected.
func Run(target string, args []string, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Arch != fpcount.X86_64 {
		return nil, ErrUnsupportedArch
	}
	eng, err := NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}

	path, err := exec.LookPath(target)
	if err != nil {
		return nil, err
	}
	bin, err := bininfo.Open(path)
	if err != nil {
		return nil, err
	}

	var markers []utrace.Marker
	for _, s := range eng.cfg.Sites(bin) {
		markers = append(markers, utrace.Marker{
			ID:    int(s.Marker),
			Addr:  s.Addr,
			Exit:  s.Exit,
			Quiet: s.Quiet,
		})
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h := &host{
		eng:  eng,
		syms: bin,
	}
	prog, err := utrace.Start(path, args, bin, h, utrace.Options{
		Markers:    markers,
		Instrument: eng.InstrumentBlock,
	})
	if err != nil {
		return nil, err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	if err := prog.Run(interrupt); err != nil {
		return eng, err
	}
	logger.Debug("target exited",
		zap.Int("pid", prog.Pid()),
		zap.Int("blocks", prog.Blocks()))
	return eng, eng.Close()
}
