package roofline

import (
	"errors"

	"github.com/zyedidia/roofline/bininfo"
	"go.uber.org/zap"
)

var ErrUnsupportedArch = errors.New("the ptrace host only traces x86_64 programs on linux/amd64")

// A SymbolTable maps function names to static addresses and addresses back to
// source lines. *bininfo.BinFile implements it.
type SymbolTable interface {
	FuncToPC(name string) (uint64, error)
	LineForPC(pc uint64) (string, int, error)
}

type inliner interface {
	Inlined(name string) ([]bininfo.InlinedFunc, error)
}

// A Site is a marker function located in the target executable.
type Site struct {
	Marker Marker
	Name   string
	Addr   uint64
	// Exit requests a MarkerExit event when the function returns.
	Exit bool
	// Quiet start and end marker functions are called by the region they
	// delimit; their call and body are left out of the counts.
	Quiet bool
}

// Sites returns the marker functions the configuration asks for, located in
// syms. Start and end markers may also name a file:line location or a 0x...
// address. A marker that cannot be found is logged and left out: the run
// then fails the ROI start/end check at teardown.
func (c *Config) Sites(syms SymbolTable) []Site {
	var want []Site
	if c.Traced() {
		want = []Site{{Marker: MarkerTraced, Name: c.TraceFunc, Exit: true}}
	} else {
		start, end := c.Markers()
		want = []Site{
			{Marker: MarkerStart, Name: start},
			{Marker: MarkerEnd, Name: end},
		}
	}

	sites := make([]Site, 0, len(want))
	for _, s := range want {
		addr, fn, err := parseLocation(s.Name, syms, !s.Exit)
		if err != nil {
			logger.Warn("marker function not found",
				zap.String("marker", s.Marker.String()),
				zap.String("name", s.Name),
				zap.Error(err))
			if in, ok := syms.(inliner); ok {
				if copies, _ := in.Inlined(s.Name); len(copies) > 0 {
					logger.Warn("marker function has been inlined, declare it noinline",
						zap.String("name", s.Name),
						zap.Int("copies", len(copies)))
				}
			}
			continue
		}
		s.Addr = addr
		s.Quiet = fn && !s.Exit
		sites = append(sites, s)
		logger.Debug("marker function",
			zap.String("name", s.Name),
			zap.Uint64("addr", addr))
	}
	return sites
}

// Location returns the source location of a static pc, or an empty location
// if syms has no line information for it.
func Location(syms SymbolTable, pc uint64) SourceLocation {
	file, line, err := syms.LineForPC(pc)
	if err != nil {
		return SourceLocation{}
	}
	return SourceLocation{File: file, Line: uint32(line)}
}
