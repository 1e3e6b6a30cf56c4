//go:build linux && amd64

package utrace

import (
	"encoding/binary"

	"github.com/zyedidia/roofline/fpcount"
	"github.com/zyedidia/roofline/utrace/ptrace"
	"golang.org/x/sys/unix"
)

// A frame is a pending return from a marker with Exit set.
type frame struct {
	ret    uint64
	sp     uint64
	marker int
}

// A Thread is one traced thread of the program.
type Thread struct {
	tracer *ptrace.Tracer
	prog   *Program

	regs unix.PtraceRegs
	pc   uint64

	frames   []frame
	stepping bool   // resumed with a single step
	lifted   uint64 // breakpoint removed for the current step, 0 if none
	fresh    bool   // initial stop of a new thread not seen yet

	// position in the block being executed
	cur *Block
	idx int

	// call whose stack push is reported once its target is known
	call *fpcount.Instr
	// return address and stack pointer of the quiet marker being run, 0 if
	// none
	quiet   uint64
	quietSP uint64
}

func newThread(tid int, prog *Program) *Thread {
	return &Thread{
		tracer: ptrace.NewTracer(tid),
		prog:   prog,
	}
}

// Tid returns the thread id.
func (t *Thread) Tid() int {
	return t.tracer.Pid()
}

// PC returns the address at which the thread is stopped.
func (t *Thread) PC() uint64 {
	return t.pc
}

// StaticPC returns PC relative to the executable, with the PIE offset
// removed.
func (t *Thread) StaticPC() uint64 {
	return t.prog.reloc.Static(t.pc)
}

// Arg returns the n-th integer argument of the call the thread is stopped
// at, following the System V AMD64 calling convention.
func (t *Thread) Arg(n int) uint64 {
	switch n {
	case 0:
		return t.regs.Rdi
	case 1:
		return t.regs.Rsi
	case 2:
		return t.regs.Rdx
	case 3:
		return t.regs.Rcx
	case 4:
		return t.regs.R8
	case 5:
		return t.regs.R9
	}
	return 0
}

// ReadString reads a NUL-terminated string from the tracee.
func (t *Thread) ReadString(addr uint64) (string, error) {
	return t.tracer.ReadCString(uintptr(addr))
}

// quieted reports whether pc belongs to the quiet marker t is running.
// Returning to the caller ends it.
func (t *Thread) quieted(pc uint64) bool {
	if t.quiet == 0 {
		return false
	}
	if pc == t.quiet && t.regs.Rsp > t.quietSP {
		t.quiet, t.quietSP = 0, 0
		return false
	}
	return true
}

func (t *Thread) readWord(addr uint64) (uint64, error) {
	b := make([]byte, 8)
	if _, err := t.tracer.PeekData(uintptr(addr), b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
