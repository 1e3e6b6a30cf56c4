package fpcount

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownOp = errors.New("unknown instruction")
	ErrTruncated = errors.New("truncated instruction")
)

// opcode maps selected by the VEX/EVEX prefix
const (
	map0F   = 1
	map0F38 = 2
	map0F3A = 3
)

// implied legacy prefix (pp field)
const (
	ppNone = iota
	pp66
	ppF3
	ppF2
)

type vexKey struct {
	m, op, pp byte
}

type vexOp struct {
	name  string
	store bool // a memory operand is the destination
	fma   bool // name takes a ps/pd or ss/sd suffix from VEX.W
}

// vexOps maps VEX/EVEX encoded opcodes to mnemonics. x86asm only decodes
// legacy encodings, so AVX, FMA and AVX-512 are decoded here.
var vexOps = map[vexKey]vexOp{}

func vexRegister(m, op, pp byte, name string, store bool) {
	vexOps[vexKey{m, op, pp}] = vexOp{name: name, store: store}
}

// vexArith registers an opcode whose form is selected by pp as ps, pd, ss
// and sd.
func vexArith(op byte, base string, pps ...byte) {
	suffix := [...]string{"ps", "pd", "ss", "sd"}
	for _, pp := range pps {
		vexRegister(map0F, op, pp, "v"+base+suffix[pp], false)
	}
}

func init() {
	all := []byte{ppNone, pp66, ppF3, ppF2}
	packed := []byte{ppNone, pp66}
	for op, base := range map[byte]string{
		0x51: "sqrt", 0x58: "add", 0x59: "mul", 0x5c: "sub", 0x5d: "min",
		0x5e: "div", 0x5f: "max", 0xc2: "cmp",
	} {
		vexArith(op, base, all...)
	}
	vexArith(0x52, "rsqrt", ppNone, ppF3)
	vexArith(0x53, "rcp", ppNone, ppF3)
	for op, base := range map[byte]string{
		0x14: "unpckl", 0x15: "unpckh", 0x28: "mova", 0x50: "movmsk",
		0x54: "and", 0x55: "andn", 0x56: "or", 0x57: "xor", 0xc6: "shuf",
	} {
		vexArith(op, base, packed...)
	}
	vexArith(0x10, "movu", packed...)
	vexRegister(map0F, 0x10, ppF3, "vmovss", false)
	vexRegister(map0F, 0x10, ppF2, "vmovsd", false)
	vexRegister(map0F, 0x11, ppNone, "vmovups", true)
	vexRegister(map0F, 0x11, pp66, "vmovupd", true)
	vexRegister(map0F, 0x11, ppF3, "vmovss", true)
	vexRegister(map0F, 0x11, ppF2, "vmovsd", true)
	vexRegister(map0F, 0x29, ppNone, "vmovaps", true)
	vexRegister(map0F, 0x29, pp66, "vmovapd", true)
	vexRegister(map0F, 0x2b, ppNone, "vmovntps", true)
	vexRegister(map0F, 0x2b, pp66, "vmovntpd", true)
	vexRegister(map0F, 0x2e, ppNone, "vucomiss", false)
	vexRegister(map0F, 0x2e, pp66, "vucomisd", false)
	vexRegister(map0F, 0x2f, ppNone, "vcomiss", false)
	vexRegister(map0F, 0x2f, pp66, "vcomisd", false)
	vexRegister(map0F, 0x12, ppNone, "vmovlps", false)
	vexRegister(map0F, 0x12, pp66, "vmovlpd", false)
	vexRegister(map0F, 0x12, ppF3, "vmovsldup", false)
	vexRegister(map0F, 0x12, ppF2, "vmovddup", false)
	vexRegister(map0F, 0x13, ppNone, "vmovlps", true)
	vexRegister(map0F, 0x13, pp66, "vmovlpd", true)
	vexRegister(map0F, 0x16, ppNone, "vmovhps", false)
	vexRegister(map0F, 0x16, pp66, "vmovhpd", false)
	vexRegister(map0F, 0x16, ppF3, "vmovshdup", false)
	vexRegister(map0F, 0x17, ppNone, "vmovhps", true)
	vexRegister(map0F, 0x17, pp66, "vmovhpd", true)
	vexRegister(map0F, 0x5a, ppNone, "vcvtps2pd", false)
	vexRegister(map0F, 0x5a, pp66, "vcvtpd2ps", false)
	vexRegister(map0F, 0x5a, ppF3, "vcvtss2sd", false)
	vexRegister(map0F, 0x5a, ppF2, "vcvtsd2ss", false)
	vexRegister(map0F, 0x5b, ppNone, "vcvtdq2ps", false)
	vexRegister(map0F, 0x5b, pp66, "vcvtps2dq", false)
	vexRegister(map0F, 0x5b, ppF3, "vcvttps2dq", false)
	vexRegister(map0F, 0x6e, pp66, "vmovd", false)
	vexRegister(map0F, 0x6f, pp66, "vmovdqa", false)
	vexRegister(map0F, 0x6f, ppF3, "vmovdqu", false)
	vexRegister(map0F, 0x7e, pp66, "vmovd", true)
	vexRegister(map0F, 0x7e, ppF3, "vmovq", false)
	vexRegister(map0F, 0x7f, pp66, "vmovdqa", true)
	vexRegister(map0F, 0x7f, ppF3, "vmovdqu", true)
	vexRegister(map0F, 0xd6, pp66, "vmovq", true)
	vexRegister(map0F, 0xe7, pp66, "vmovntdq", true)
	vexRegister(map0F, 0x7c, pp66, "vhaddpd", false)
	vexRegister(map0F, 0x7c, ppF2, "vhaddps", false)
	vexRegister(map0F, 0x7d, pp66, "vhsubpd", false)
	vexRegister(map0F, 0x7d, ppF2, "vhsubps", false)
	vexRegister(map0F, 0xd0, pp66, "vaddsubpd", false)
	vexRegister(map0F, 0xd0, ppF2, "vaddsubps", false)
	vexRegister(map0F, 0x77, ppNone, "vzeroupper", false)

	for op, name := range map[byte]string{
		0x0c: "vpermilps", 0x0d: "vpermilpd", 0x0e: "vtestps",
		0x0f: "vtestpd", 0x13: "vcvtph2ps", 0x16: "vpermps",
		0x18: "vbroadcastss", 0x19: "vbroadcastsd", 0x1a: "vbroadcastf128",
		0x2c: "vmaskmovps", 0x2d: "vmaskmovpd", 0x58: "vpbroadcastd",
		0x59: "vpbroadcastq", 0x5a: "vbroadcasti128", 0x8c: "vpmaskmov",
	} {
		vexRegister(map0F38, op, pp66, name, false)
	}
	vexRegister(map0F38, 0x2e, pp66, "vmaskmovps", true)
	vexRegister(map0F38, 0x2f, pp66, "vmaskmovpd", true)
	vexRegister(map0F38, 0x8e, pp66, "vpmaskmov", true)

	// fused multiply-add: the high nibble picks the operand order, the low
	// one the operation
	order := map[byte]string{0x90: "132", 0xa0: "213", 0xb0: "231"}
	kind := map[byte]string{
		0x6: "vfmaddsub", 0x7: "vfmsubadd", 0x8: "vfmadd", 0x9: "vfmadd",
		0xa: "vfmsub", 0xb: "vfmsub", 0xc: "vfnmadd", 0xd: "vfnmadd",
		0xe: "vfnmsub", 0xf: "vfnmsub",
	}
	for hi, o := range order {
		for lo, k := range kind {
			// odd low nibbles above 8 are the scalar forms
			form := "p"
			if lo >= 0x9 && lo%2 == 1 {
				form = "s"
			}
			vexOps[vexKey{map0F38, hi | lo, pp66}] = vexOp{name: k + o + form, fma: true}
		}
	}

	for op, name := range map[byte]string{
		0x04: "vpermilps", 0x05: "vpermilpd", 0x06: "vperm2f128",
		0x08: "vroundps", 0x09: "vroundpd", 0x0a: "vroundss", 0x0b: "vroundsd",
		0x0c: "vblendps", 0x0d: "vblendpd", 0x18: "vinsertf128",
		0x21: "vinsertps", 0x38: "vinserti128", 0x40: "vdpps", 0x41: "vdppd",
		0x4a: "vblendvps", 0x4b: "vblendvpd",
	} {
		vexRegister(map0F3A, op, pp66, name, false)
	}
	vexRegister(map0F3A, 0x17, pp66, "vextractps", true)
	vexRegister(map0F3A, 0x19, pp66, "vextractf128", true)
	vexRegister(map0F3A, 0x1d, pp66, "vcvtps2ph", true)
	vexRegister(map0F3A, 0x39, pp66, "vextracti128", true)
}

// opcodes of map 0F followed by an 8-bit immediate
var vexImm8 = map[byte]bool{
	0x70: true, 0x71: true, 0x72: true, 0x73: true, 0xc2: true, 0xc4: true,
	0xc5: true, 0xc6: true,
}

// memory operand sizes that differ from the vector width
var vexMemSize = map[string]int{
	"vmovlps": 8, "vmovlpd": 8, "vmovhps": 8, "vmovhpd": 8, "vmovq": 8,
	"vmovd": 4, "vbroadcastf128": 16, "vbroadcasti128": 16,
	"vinsertf128": 16, "vinserti128": 16, "vextractf128": 16,
	"vextracti128": 16, "vinsertps": 4, "vextractps": 4,
	"vpbroadcastd": 4, "vpbroadcastq": 8, "vcvtss2sd": 4, "vcvtsd2ss": 8,
}

// decodeVEX decodes an instruction with a VEX (c4, c5) or EVEX (62) prefix.
// ok is false if code does not start with one.
func decodeVEX(code []byte, addr uint64) (in Instr, ok bool, err error) {
	in = Instr{Addr: addr, ElemLog2: -1}

	i := 0
	// segment and address-size overrides may precede the prefix
	for i < len(code) && strings.IndexByte("\x26\x2e\x36\x3e\x64\x65\x67", code[i]) >= 0 {
		i++
	}
	if i >= len(code) {
		return in, false, nil
	}

	var (
		m, pp, l byte
		w, evex  bool
		bcast    bool
	)
	switch code[i] {
	case 0xc5:
		if i+2 > len(code) {
			return in, true, ErrTruncated
		}
		b := code[i+1]
		m, l, pp = map0F, (b>>2)&1, b&3
		i += 2
	case 0xc4:
		if i+3 > len(code) {
			return in, true, ErrTruncated
		}
		b1, b2 := code[i+1], code[i+2]
		m, w, l, pp = b1&0x1f, b2&0x80 != 0, (b2>>2)&1, b2&3
		i += 3
	case 0x62:
		if i+4 > len(code) {
			return in, true, ErrTruncated
		}
		p0, p1, p2 := code[i+1], code[i+2], code[i+3]
		m, w, pp = p0&7, p1&0x80 != 0, p1&3
		l, bcast, evex = (p2>>5)&3, p2&0x10 != 0, true
		i += 4
	default:
		return in, false, nil
	}
	if i >= len(code) {
		return in, true, ErrTruncated
	}
	op := code[i]
	i++

	mod := byte(3)
	if !(m == map0F && op == 0x77) {
		if i >= len(code) {
			return in, true, ErrTruncated
		}
		modrm := code[i]
		i++
		mod = modrm >> 6
		if mod != 3 {
			rm := modrm & 7
			if rm == 4 {
				if i >= len(code) {
					return in, true, ErrTruncated
				}
				if mod == 0 && code[i]&7 == 5 {
					i += 4
				}
				i++
			}
			switch {
			case mod == 0 && rm == 5:
				i += 4
			case mod == 1:
				i++
			case mod == 2:
				i += 4
			}
		}
	}
	if m == map0F3A || (m == map0F && vexImm8[op]) {
		i++
	}
	if i > len(code) {
		return in, true, ErrTruncated
	}
	in.Len = i

	width := 16 << l
	switch {
	case evex && bcast && mod == 3:
		// embedded rounding implies 512-bit registers
		width = 64
	case l > 2 || (!evex && l > 1):
		return in, true, fmt.Errorf("%w: vector length %d", ErrUnknownOp, l)
	}

	v, known := vexOps[vexKey{m, op, pp}]
	if !known {
		in.Mnemonic = fmt.Sprintf("vex.%d.%02x.%d", m, op, pp)
	} else {
		in.Mnemonic = v.name
		if v.fma {
			if w {
				in.Mnemonic += "d"
			} else {
				in.Mnemonic += "s"
			}
		}
	}
	if in.Mnemonic == "vzeroupper" {
		if l == 1 {
			in.Mnemonic = "vzeroall"
		}
		return in, true, nil
	}

	in.DstBytes = width
	switch {
	case strings.HasSuffix(in.Mnemonic, "ps"):
		in.ElemLog2 = 2
	case strings.HasSuffix(in.Mnemonic, "pd"):
		in.ElemLog2 = 3
	}
	in.Vector = in.ElemLog2 >= 0

	if mod != 3 {
		size := width
		switch {
		case evex && bcast:
			size = 4
			if w {
				size = 8
			}
		case vexMemSize[in.Mnemonic] > 0:
			size = vexMemSize[in.Mnemonic]
			if in.Mnemonic == "vmovd" && w {
				size = 8
			}
		case strings.HasSuffix(in.Mnemonic, "ss"):
			size = 4
		case strings.HasSuffix(in.Mnemonic, "sd"):
			size = 8
		case in.Mnemonic == "vcvtps2pd" || in.Mnemonic == "vcvtph2ps" || in.Mnemonic == "vcvtps2ph":
			size = width / 2
		}
		in.MemSize = uint16(size)
		if v.store {
			in.MemWrite = true
		} else {
			in.MemRead = true
		}
	}
	return in, true, nil
}
