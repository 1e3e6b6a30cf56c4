// Package fpcount statically classifies machine instructions by the number
// of floating-point operations they perform. Classification is table driven:
// each supported architecture has a mnemonic table built once at init, and
// vector forms are scaled by the number of elements packed into the
// destination register.
package fpcount

import (
	"fmt"
	"strings"
)

// An Arch identifies an instruction-set architecture with a classification
// table.
type Arch uint8

const (
	X86_64 Arch = iota
	ARM64
)

func (a Arch) String() string {
	switch a {
	case X86_64:
		return "x86_64"
	case ARM64:
		return "arm64"
	}
	return fmt.Sprintf("arch(%d)", uint8(a))
}

// ParseArch converts an architecture name to an Arch.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return X86_64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	}
	return 0, fmt.Errorf("unknown architecture %q", s)
}

// An OpKind groups floating-point mnemonics by how many operations one
// element performs.
type OpKind uint8

const (
	// Simple covers arithmetic, compare, sqrt-class operations (1 op).
	Simple OpKind = iota
	// Fused covers fused multiply-add-class operations (2 ops).
	Fused
)

// Ops returns the per-element operation count of the kind.
func (k OpKind) Ops() uint64 {
	if k == Fused {
		return 2
	}
	return 1
}

// An Entry is one row of a classification table.
type Entry struct {
	Kind OpKind
	Ops  uint64
}

// An Instr is the classifier's view of one decoded machine instruction.
type Instr struct {
	Addr     uint64
	Len      int
	Mnemonic string // lower case

	// Vector is set when the destination is a vector register; DstBytes is
	// its width and ElemLog2 the log2 of the element width in bytes (-1 when
	// the element width is unknown).
	Vector   bool
	DstBytes int
	ElemLog2 int

	// Memory reference made by the instruction, if any.
	MemSize  uint16
	MemRead  bool
	MemWrite bool

	// Branch is set for control-transfer instructions, which end a block.
	Branch bool
}

// Elements returns how many elements are packed into the destination
// register, or 1 for scalar instructions.
func (in Instr) Elements() uint64 {
	if !in.Vector || in.ElemLog2 < 0 || in.DstBytes <= 0 {
		return 1
	}
	n := in.DstBytes >> uint(in.ElemLog2)
	if n <= 0 {
		return 1
	}
	return uint64(n)
}

// Lookup returns the table entry for a mnemonic.
func Lookup(arch Arch, mnemonic string) (Entry, bool) {
	t, ok := tables[arch]
	if !ok {
		return Entry{}, false
	}
	e, ok := t[strings.ToLower(mnemonic)]
	return e, ok
}

// Classify returns the number of floating-point operations performed by in.
// Unrecognized instructions perform 0 operations.
func Classify(arch Arch, in Instr) uint64 {
	e, ok := Lookup(arch, in.Mnemonic)
	if !ok {
		return 0
	}
	return e.Ops * in.Elements()
}

// CountBlock returns the floating-point total of a straight-line block. It is
// meant to be computed once when a block is first seen and cached by the
// caller.
func CountBlock(arch Arch, instrs []Instr) uint64 {
	var total uint64
	for _, in := range instrs {
		total += Classify(arch, in)
	}
	return total
}

var tables = map[Arch]map[string]Entry{}

func register(arch Arch, kind OpKind, mnemonics ...string) {
	t, ok := tables[arch]
	if !ok {
		t = make(map[string]Entry)
		tables[arch] = t
	}
	for _, m := range mnemonics {
		t[m] = Entry{
			Kind: kind,
			Ops:  kind.Ops(),
		}
	}
}

func init() {
	register(ARM64, Simple, arm64Simple...)
	register(ARM64, Fused, arm64Fused...)
	register(X86_64, Simple, x86Simple...)
	register(X86_64, Fused, x86Fused...)
}
