package utrace

import (
	"errors"
	"fmt"

	"github.com/google/btree"
	"github.com/zyedidia/roofline/fpcount"
	"go.uber.org/zap"
)

const (
	// MaxBlockInstrs bounds the length of a decoded block.
	MaxBlockInstrs = 64
	maxInstrLen    = 15
)

var ErrEmptyBlock = errors.New("no instruction could be decoded")

// A Decoder decodes the first instruction of code, located at addr.
type Decoder func(code []byte, addr uint64) (fpcount.Instr, error)

// An Instrumenter returns the static floating-point operation total of a
// sequence of instructions.
type Instrumenter func(block []fpcount.Instr) uint64

// A Reader reads tracee memory at addr into buf and returns the number of
// bytes read.
type Reader func(addr uint64, buf []byte) (int, error)

// A Block is a straight-line run of instructions ending at a control-flow
// instruction, an undecodable instruction, the start of another block, or
// after MaxBlockInstrs instructions.
type Block struct {
	Start  uint64
	Instrs []fpcount.Instr

	suffix []uint64 // suffix[i] is the operation total of Instrs[i:]
}

// Less orders blocks by start address.
func (b *Block) Less(than btree.Item) bool {
	return b.Start < than.(*Block).Start
}

// End returns the address following the last instruction.
func (b *Block) End() uint64 {
	last := b.Instrs[len(b.Instrs)-1]
	return last.Addr + uint64(last.Len)
}

// Index returns the position of the instruction at pc, or -1 if no
// instruction of the block starts there.
func (b *Block) Index(pc uint64) int {
	lo, hi := 0, len(b.Instrs)
	for lo < hi {
		mid := (lo + hi) / 2
		if b.Instrs[mid].Addr < pc {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(b.Instrs) && b.Instrs[lo].Addr == pc {
		return lo
	}
	return -1
}

// Ops returns the operation total of the block executed from its i-th
// instruction to the end.
func (b *Block) Ops(i int) uint64 {
	return b.suffix[i]
}

func (b *Block) String() string {
	return fmt.Sprintf("block 0x%x-0x%x (%d instrs)", b.Start, b.End(), len(b.Instrs))
}

// A BlockCache holds every block decoded so far, ordered by address, so
// that entering the middle of a known block reuses it.
type BlockCache struct {
	tree       *btree.BTree
	decode     Decoder
	instrument Instrumenter
}

// NewBlockCache returns an empty cache decoding with d and computing
// operation totals with in.
func NewBlockCache(d Decoder, in Instrumenter) *BlockCache {
	return &BlockCache{
		tree:       btree.New(8),
		decode:     d,
		instrument: in,
	}
}

// Len returns the number of cached blocks.
func (c *BlockCache) Len() int {
	return c.tree.Len()
}

// Lookup returns the cached block containing an instruction starting at pc
// and its index in the block.
func (c *BlockCache) Lookup(pc uint64) (*Block, int) {
	var found *Block
	c.tree.DescendLessOrEqual(&Block{Start: pc}, func(i btree.Item) bool {
		found = i.(*Block)
		return false
	})
	if found == nil || pc >= found.End() {
		return nil, -1
	}
	i := found.Index(pc)
	if i < 0 {
		return nil, -1
	}
	return found, i
}

// Fetch returns the block containing pc, decoding and caching a new one
// starting at pc if none does.
func (c *BlockCache) Fetch(pc uint64, read Reader) (*Block, int, error) {
	if b, i := c.Lookup(pc); b != nil {
		return b, i, nil
	}

	limit := uint64(MaxBlockInstrs * maxInstrLen)
	c.tree.AscendGreaterOrEqual(&Block{Start: pc + 1}, func(i btree.Item) bool {
		if next := i.(*Block).Start - pc; next < limit {
			limit = next
		}
		return false
	})

	code := make([]byte, limit)
	n, err := read(pc, code)
	if n == 0 {
		if err == nil {
			err = ErrEmptyBlock
		}
		return nil, -1, err
	}
	code = code[:n]

	b := &Block{Start: pc}
	for off := 0; off < len(code) && len(b.Instrs) < MaxBlockInstrs; {
		in, err := c.decode(code[off:], pc+uint64(off))
		if err != nil {
			break
		}
		b.Instrs = append(b.Instrs, in)
		off += in.Len
		if in.Branch {
			break
		}
	}
	if len(b.Instrs) == 0 {
		return nil, -1, fmt.Errorf("0x%x: %w", pc, ErrEmptyBlock)
	}

	c.total(b)
	c.tree.ReplaceOrInsert(b)
	logger.Debug("decoded block",
		zap.Stringer("block", b),
		zap.Uint64("ops", b.Ops(0)))
	return b, 0, nil
}

func (c *BlockCache) total(b *Block) {
	b.suffix = make([]uint64, len(b.Instrs)+1)
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		b.suffix[i] = b.suffix[i+1] + c.instrument(b.Instrs[i:i+1])
	}
}
