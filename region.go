package roofline

import (
	"errors"
	"strconv"
	"strings"
)

var ErrNoLineInfo = errors.New("source locations need an executable with line information")

// A lineTable converts source locations to addresses. *bininfo.BinFile
// implements it.
type lineTable interface {
	LineToPC(file string, line int) (uint64, error)
}

// parseLocation locates a marker. The marker is written as a function name,
// a file:line source code location (if the executable has DWARF debugging
// information), or a direct hexadecimal address in the form 0x... Source
// locations are only accepted when lines is set: a traced function must be
// entered at its first instruction. fn reports whether the marker is a
// function entry.
func parseLocation(s string, syms SymbolTable, lines bool) (addr uint64, fn bool, err error) {
	if strings.HasPrefix(s, "0x") {
		addr, err = strconv.ParseUint(s, 0, 64)
		return addr, false, err
	}
	if file, lineStr, ok := strings.Cut(s, ":"); ok && lines {
		// C++ names such as ns::f fall through to the symbol lookup
		if line, err := strconv.Atoi(lineStr); err == nil {
			lt, ok := syms.(lineTable)
			if !ok {
				return 0, false, ErrNoLineInfo
			}
			addr, err = lt.LineToPC(file, line)
			return addr, false, err
		}
	}
	addr, err = syms.FuncToPC(s)
	return addr, err == nil, err
}
