//go:build linux && amd64

package utrace

import (
	"errors"
)

var (
	interrupt = []byte{0xCC}

	ErrInvalidBreakpoint = errors.New("invalid breakpoint")
)

// A breakpoint is an int3 placed at a marker entry, at the return address of
// pending marker calls, or both. Breakpoints live in the address space shared
// by every thread.
type breakpoint struct {
	orig     byte
	inserted bool
	marker   int // index in Program.markers, -1 if only a return site
	returns  int // frames of any thread returning here
}

func (b *breakpoint) unused() bool {
	return b.marker < 0 && b.returns == 0
}

func (p *Program) setBreak(t *Thread, addr uint64) (*breakpoint, error) {
	if bp, ok := p.breaks[addr]; ok {
		return bp, nil
	}

	orig := make([]byte, len(interrupt))
	if _, err := t.tracer.PeekData(uintptr(addr), orig); err != nil {
		return nil, err
	}
	if _, err := t.tracer.PokeData(uintptr(addr), interrupt); err != nil {
		return nil, err
	}

	bp := &breakpoint{
		orig:     orig[0],
		inserted: true,
		marker:   -1,
	}
	p.breaks[addr] = bp
	return bp, nil
}

// clearBreak restores the original byte of an unused breakpoint. Breakpoints
// still referenced are kept.
func (p *Program) clearBreak(t *Thread, addr uint64) error {
	bp, ok := p.breaks[addr]
	if !ok {
		return ErrInvalidBreakpoint
	}
	if !bp.unused() {
		return nil
	}
	delete(p.breaks, addr)
	if !bp.inserted {
		return nil
	}
	_, err := t.tracer.PokeData(uintptr(addr), []byte{bp.orig})
	return err
}

// lift removes the breakpoint at addr for the duration of one single step
// of t.
func (p *Program) lift(t *Thread, addr uint64, bp *breakpoint) error {
	if _, err := t.tracer.PokeData(uintptr(addr), []byte{bp.orig}); err != nil {
		return err
	}
	bp.inserted = false
	t.lifted = addr
	return nil
}

// reinsert puts back the breakpoint lifted for the step t just finished.
func (p *Program) reinsert(t *Thread) error {
	addr := t.lifted
	t.lifted = 0
	bp, ok := p.breaks[addr]
	if !ok || bp.inserted {
		return nil
	}
	if _, err := t.tracer.PokeData(uintptr(addr), interrupt); err != nil {
		return err
	}
	bp.inserted = true
	return nil
}

// reader returns a Reader of the tracee text that hides inserted
// breakpoints.
func (p *Program) reader(t *Thread) Reader {
	return func(addr uint64, buf []byte) (int, error) {
		n, err := t.tracer.ReadVM(uintptr(addr), buf)
		if n <= 0 {
			n, err = t.tracer.PeekData(uintptr(addr), buf)
		}
		if n <= 0 {
			return 0, err
		}
		for a, bp := range p.breaks {
			if bp.inserted && a >= addr && a < addr+uint64(n) {
				buf[a-addr] = bp.orig
			}
		}
		return n, nil
	}
}
