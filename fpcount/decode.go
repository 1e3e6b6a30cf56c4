package fpcount

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Decode decodes the first instruction in code for the given architecture.
func Decode(arch Arch, code []byte, addr uint64) (Instr, error) {
	if arch == ARM64 {
		return DecodeARM64(code, addr)
	}
	return DecodeX86(code, addr)
}

var x86Branches = map[string]bool{
	"call": true, "lcall": true, "ret": true, "lret": true, "ljmp": true,
	"loop": true, "loope": true, "loopne": true, "syscall": true,
	"sysenter": true, "sysexit": true, "sysret": true, "int": true,
	"into": true, "iret": true, "iretd": true, "iretq": true, "ud2": true,
	"hlt": true,
}

// memory operands of these instructions are not accessed
var x86NoAccess = map[string]bool{
	"lea": true, "nop": true, "prefetchnta": true, "prefetcht0": true,
	"prefetcht1": true, "prefetcht2": true, "prefetchw": true, "clflush": true,
}

// prefixes of mnemonics whose memory destination is only written
var x86StorePrefixes = []string{
	"mov", "set", "stos", "fst", "fist", "fbstp", "fnst", "stmxcsr",
	"fxsave", "xsave", "pextr", "extractps",
}

// mnemonics that read their memory destination and write it back
var x86Modify = map[string]bool{
	"add": true, "adc": true, "sub": true, "sbb": true, "and": true,
	"or": true, "xor": true, "inc": true, "dec": true, "neg": true,
	"not": true, "shl": true, "shr": true, "sar": true, "rol": true,
	"ror": true, "rcl": true, "rcr": true, "xchg": true, "xadd": true,
	"cmpxchg": true, "btc": true, "btr": true, "bts": true,
}

// DecodeX86 decodes one 64-bit mode x86 instruction.
func DecodeX86(code []byte, addr uint64) (Instr, error) {
	if in, ok, err := decodeVEX(code, addr); ok {
		return in, err
	}

	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Instr{Addr: addr}, err
	}
	if inst.Op == 0 {
		return Instr{Addr: addr}, fmt.Errorf("%w: % x", ErrUnknownOp, code[:min(len(code), 4)])
	}

	m := strings.ToLower(inst.Op.String())
	switch {
	case strings.HasSuffix(m, "_xmm"):
		m = strings.TrimSuffix(m, "_xmm")
	case m == "movsd" || m == "cmpsd":
		// string forms share a name with the scalar double SSE forms
		m += "_string"
	}

	in := Instr{
		Addr:     addr,
		Len:      inst.Len,
		Mnemonic: m,
		ElemLog2: -1,
		Branch:   strings.HasPrefix(m, "j") || x86Branches[m],
	}

	if r, ok := inst.Args[0].(x86asm.Reg); ok {
		in.DstBytes = x86RegBytes(r.String())
	}
	if in.DstBytes > 0 {
		switch {
		case strings.HasSuffix(m, "ps"):
			in.ElemLog2 = 2
		case strings.HasSuffix(m, "pd"):
			in.ElemLog2 = 3
		}
		in.Vector = in.ElemLog2 >= 0
	}

	x86Memory(&in, inst)
	return in, nil
}

// x86RegBytes returns the width of a vector register given its name (X0,
// Y3, Z12), or 0 for other registers.
func x86RegBytes(name string) int {
	if len(name) < 2 || name[1] < '0' || name[1] > '9' {
		return 0
	}
	switch name[0] {
	case 'X':
		return 16
	case 'Y':
		return 32
	case 'Z':
		return 64
	}
	return 0
}

func x86Memory(in *Instr, inst x86asm.Inst) {
	switch in.Mnemonic {
	case "push", "call":
		in.MemSize, in.MemWrite = 8, true
		return
	case "pop", "ret", "leave":
		in.MemSize, in.MemRead = 8, true
		return
	}
	if x86NoAccess[in.Mnemonic] {
		return
	}

	dst, src := false, false
	for i, a := range inst.Args {
		if a == nil {
			break
		}
		if _, ok := a.(x86asm.Mem); ok {
			if i == 0 {
				dst = true
			} else {
				src = true
			}
		}
	}
	if !dst && !src {
		return
	}

	size := inst.MemBytes
	if size == 0 {
		size = inst.DataSize / 8
	}
	in.MemSize = uint16(size)

	switch {
	case dst && x86Modify[in.Mnemonic]:
		in.MemRead, in.MemWrite = true, true
	case dst && !src && hasPrefix(in.Mnemonic, x86StorePrefixes):
		in.MemWrite = true
	default:
		in.MemRead = true
	}
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var arm64Branches = map[string]bool{
	"b": true, "bl": true, "br": true, "blr": true, "ret": true, "cbz": true,
	"cbnz": true, "tbz": true, "tbnz": true, "svc": true, "eret": true,
	"brk": true, "hlt": true,
}

// DecodeARM64 decodes one AArch64 instruction. Instructions are always 4
// bytes, so Len is set even when decoding fails.
func DecodeARM64(code []byte, addr uint64) (Instr, error) {
	in := Instr{
		Addr:     addr,
		Len:      4,
		ElemLog2: -1,
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return in, err
	}

	m := strings.ToLower(inst.Op.String())
	in.Mnemonic = m
	in.Branch = arm64Branches[m] || strings.HasPrefix(m, "b.")

	if inst.Args[0] == nil {
		return in, nil
	}
	dst := inst.Args[0].String()
	if lanes, elem, ok := arrangement(dst); ok {
		in.Vector = true
		in.DstBytes = lanes * elem
		in.ElemLog2 = log2(elem)
	} else {
		in.DstBytes = arm64RegBytes(dst)
	}

	mem := false
	for _, a := range inst.Args[1:] {
		if a == nil {
			break
		}
		if strings.HasPrefix(a.String(), "[") {
			mem = true
			break
		}
	}
	if !mem {
		return in, nil
	}

	size := in.DstBytes
	if strings.HasPrefix(dst, "{") {
		size *= strings.Count(dst, ",") + 1
	}
	switch {
	case strings.HasSuffix(m, "b") && !in.Vector:
		size = 1
	case strings.HasSuffix(m, "h") && !in.Vector:
		size = 2
	case strings.HasSuffix(m, "sw"):
		size = 4
	}
	if strings.HasPrefix(m, "ldp") || strings.HasPrefix(m, "stp") || strings.HasPrefix(m, "ldnp") || strings.HasPrefix(m, "stnp") {
		size *= 2
	}
	in.MemSize = uint16(size)
	switch {
	case strings.HasPrefix(m, "ld"):
		in.MemRead = true
	case strings.HasPrefix(m, "st"):
		in.MemWrite = true
	default:
		in.MemRead = true
	}
	return in, nil
}

// arrangement parses the lane count and element width of a vector register
// operand such as "V0.4S" or "{V1.2D, V2.2D}".
func arrangement(operand string) (lanes, elem int, ok bool) {
	s := strings.TrimPrefix(operand, "{")
	if i := strings.IndexAny(s, ",}["); i >= 0 {
		s = s[:i]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 || dot == len(s)-1 {
		return 0, 0, false
	}
	arr := s[dot+1:]
	elem = elemBytes(arr[len(arr)-1])
	if elem == 0 {
		return 0, 0, false
	}
	lanes, err := strconv.Atoi(arr[:len(arr)-1])
	if err != nil || lanes <= 0 {
		return 0, 0, false
	}
	return lanes, elem, true
}

func arm64RegBytes(name string) int {
	if len(name) < 2 || name[1] < '0' || name[1] > '9' {
		return 0
	}
	switch name[0] {
	case 'W':
		return 4
	case 'X':
		return 8
	case 'Q', 'V':
		return 16
	}
	return elemBytes(name[0])
}

func elemBytes(c byte) int {
	switch c {
	case 'B':
		return 1
	case 'H':
		return 2
	case 'S':
		return 4
	case 'D':
		return 8
	case 'Q':
		return 16
	}
	return 0
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
