// Package bininfo reads ELF executables to locate ROI marker functions and
// to map program counters back to source locations.
package bininfo

import (
	"bufio"
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

var (
	ErrInvalidElfType = errors.New("invalid elf type")
	ErrNoSymbols      = errors.New("no elf symbol table")
	ErrNoDwarf        = errors.New("no DWARF debugging data")
	ErrNoPieOffset    = errors.New("could not find pie offset")
)

// ErrMultipleMatches is an error that describes a function name matching
// several known functions, or none.
type ErrMultipleMatches struct {
	Name    string
	Matches []string
}

func (e *ErrMultipleMatches) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("%s: no matches", e.Name)
	}

	b := &bytes.Buffer{}
	fmt.Fprintf(b, "%s: multiple matches:\n", e.Name)
	for _, m := range e.Matches {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	return b.String()
}

type lineEntry struct {
	addr uint64
	file string
	line int
}

// An InlinedFunc is a range of addresses of one inlined copy of a function.
type InlinedFunc struct {
	Low  uint64
	High uint64
}

// A BinFile resolves function names and source lines of one executable.
// Addresses are relative to the first loadable segment when the executable
// is position-independent; add the PieOffset of a running instance.
type BinFile struct {
	name    string
	pie     bool
	funcs   map[string]uint64
	inlined map[string][]InlinedFunc
	lines   []lineEntry // sorted by address
}

// Open reads the executable at path.
func Open(path string) (*BinFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, filepath.Base(path))
}

// FromPid reads the executable of a running process.
func FromPid(pid int) (*BinFile, error) {
	binpath, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return nil, err
	}
	return Open(binpath)
}

// Read creates a new BinFile from an io.ReaderAt. Missing debugging data is
// not an error: name lookups still work from the symbol table.
func Read(r io.ReaderAt, name string) (*BinFile, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := &BinFile{
		name: name,
	}

	switch f.Type {
	case elf.ET_DYN:
		b.pie = true
	case elf.ET_EXEC:
	default:
		return nil, ErrInvalidElfType
	}

	// addresses are made relative to the vaddr of the first loadable segment
	var vaddr uint64
	if b.pie {
		for _, p := range f.Progs {
			if p.Type == elf.PT_LOAD {
				vaddr = p.Vaddr
				break
			}
		}
	}

	if err := b.buildFuncCache(f, vaddr); err != nil {
		return nil, err
	}
	if dw, err := f.DWARF(); err == nil {
		b.buildInlinedFuncCache(dw, vaddr)
		b.buildLineCache(dw, vaddr)
	}
	return b, nil
}

func (b *BinFile) buildFuncCache(f *elf.File, offset uint64) error {
	symbols, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return err
	}
	dynamic, _ := f.DynamicSymbols()
	symbols = append(symbols, dynamic...)

	b.funcs = make(map[string]uint64)
	for _, s := range symbols {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		b.addFunc(s.Name, s.Value-offset)
	}
	return nil
}

func (b *BinFile) addFunc(name string, addr uint64) {
	b.funcs[name] = addr
	// C++ markers are also reachable by their demangled name, with and
	// without parameters
	if full, err := demangle.ToString(name); err == nil && full != name {
		b.funcs[full] = addr
		if short, err := demangle.ToString(name, demangle.NoParams); err == nil {
			if _, ok := b.funcs[short]; !ok {
				b.funcs[short] = addr
			}
		}
	}
}

func highPC(e *dwarf.Entry, lowpc uint64) (uint64, bool) {
	field := e.AttrField(dwarf.AttrHighpc)
	if field == nil {
		return 0, false
	}
	switch field.Class {
	case dwarf.ClassAddress:
		v, ok := field.Val.(uint64)
		return v, ok
	case dwarf.ClassConstant:
		v, ok := field.Val.(int64)
		return lowpc + uint64(v), ok
	}
	return 0, false
}

func (b *BinFile) buildInlinedFuncCache(dw *dwarf.Data, offset uint64) {
	b.inlined = make(map[string][]InlinedFunc)
	abstract := make(map[dwarf.Offset][]InlinedFunc)

	r := dw.Reader()
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			break
		}
		if e.Tag != dwarf.TagInlinedSubroutine {
			continue
		}
		origin, okOff := e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
		lowpc, okLow := e.Val(dwarf.AttrLowpc).(uint64)
		if !okOff || !okLow {
			continue
		}
		if highpc, ok := highPC(e, lowpc); ok {
			abstract[origin] = append(abstract[origin], InlinedFunc{
				Low:  lowpc - offset,
				High: highpc - offset,
			})
		}
	}

	r = dw.Reader()
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		if addrs, ok := abstract[e.Offset]; ok {
			if name, ok := e.Val(dwarf.AttrName).(string); ok {
				b.inlined[name] = addrs
			}
		}
	}
}

func (b *BinFile) buildLineCache(dw *dwarf.Data, offset uint64) {
	r := dw.Reader()
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			break
		}
		if e.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		lr, err := dw.LineReader(e)
		if err != nil || lr == nil {
			continue
		}
		var entry dwarf.LineEntry
		for {
			err := lr.Next(&entry)
			if err == io.EOF {
				break
			} else if err != nil {
				break
			}
			if !entry.IsStmt || entry.EndSequence {
				continue
			}
			file := "<unknown>"
			if entry.File != nil {
				file = entry.File.Name
			}
			b.lines = append(b.lines, lineEntry{
				addr: entry.Address - offset,
				file: file,
				line: entry.Line,
			})
		}
	}
	sort.SliceStable(b.lines, func(i, j int) bool {
		return b.lines[i].addr < b.lines[j].addr
	})
}

// Name returns the base name of the executable.
func (b *BinFile) Name() string {
	return b.name
}

// Pie returns true if this executable is position-independent.
func (b *BinFile) Pie() bool {
	return b.pie
}

// FuncToPC converts a function name to a PC. It does a "fuzzy" search so if
// the given name is a substring of a real function name, and the substring
// uniquely identifies it, that function is used. If there are multiple matches
// it returns a multiple match error describing all the matches.
func (b *BinFile) FuncToPC(name string) (uint64, error) {
	if len(b.funcs) == 0 {
		return 0, ErrNoSymbols
	}

	if addr, ok := b.funcs[name]; ok {
		return addr, nil
	}

	var matches []string
	seen := make(map[uint64]bool)
	for fn, addr := range b.funcs {
		if strings.Contains(fn, name) && !seen[addr] {
			seen[addr] = true
			matches = append(matches, fn)
		}
	}

	if len(matches) == 1 {
		return b.funcs[matches[0]], nil
	}

	sort.Strings(matches)
	return 0, &ErrMultipleMatches{
		Name:    name,
		Matches: matches,
	}
}

// Inlined returns the address ranges where the named function has been
// inlined. Breakpoints cannot observe inlined copies, so callers use it to
// explain a missing marker.
func (b *BinFile) Inlined(name string) ([]InlinedFunc, error) {
	if b.inlined == nil {
		return nil, ErrNoDwarf
	}
	return b.inlined[name], nil
}

// LineToPC converts a file/line location to the lowest PC of that line. It
// performs a "fuzzy" search on the filename similar to FuncToPC.
func (b *BinFile) LineToPC(file string, line int) (uint64, error) {
	if b.lines == nil {
		return 0, ErrNoDwarf
	}

	exact, fuzzy := make(map[string]uint64), make(map[string]uint64)
	for _, l := range b.lines {
		if l.line != line {
			continue
		}
		if l.file == file {
			if _, ok := exact[l.file]; !ok {
				exact[l.file] = l.addr
			}
		} else if strings.Contains(l.file, file) {
			if _, ok := fuzzy[l.file]; !ok {
				fuzzy[l.file] = l.addr
			}
		}
	}
	if addr, ok := exact[file]; ok {
		return addr, nil
	}
	if len(fuzzy) == 1 {
		for _, addr := range fuzzy {
			return addr, nil
		}
	}
	if len(fuzzy) == 0 {
		return 0, fmt.Errorf("%s:%d has no associated PC", file, line)
	}

	matches := make([]string, 0, len(fuzzy))
	for f := range fuzzy {
		matches = append(matches, f)
	}
	sort.Strings(matches)
	return 0, &ErrMultipleMatches{
		Name:    fmt.Sprintf("%s:%d", file, line),
		Matches: matches,
	}
}

// LineForPC returns the source file and line of the statement containing pc.
func (b *BinFile) LineForPC(pc uint64) (string, int, error) {
	if b.lines == nil {
		return "", 0, ErrNoDwarf
	}
	i := sort.Search(len(b.lines), func(i int) bool {
		return b.lines[i].addr > pc
	})
	if i == 0 {
		return "", 0, fmt.Errorf("%#x has no associated line", pc)
	}
	l := b.lines[i-1]
	return l.file, l.line, nil
}

// PieOffset returns the PIE/ASLR offset for a running instance of this binary
// file. It reads /proc/pid/maps to determine the right location, so the caller
// must have ptrace permissions. If possible, you should cache the result of
// this function instead of calling it multiple times.
func (b *BinFile) PieOffset(pid int) (uint64, error) {
	if !b.pie {
		return 0, nil
	}

	maps, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, err
	}
	defer maps.Close()

	// the first mapping of the executable is the bottom of the text segment
	scanner := bufio.NewScanner(maps)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasSuffix(line, "/"+b.name) {
			continue
		}
		start, _, ok := strings.Cut(line, "-")
		if !ok {
			continue
		}
		return strconv.ParseUint(start, 16, 64)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, ErrNoPieOffset
}
