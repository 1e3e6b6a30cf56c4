package utrace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zyedidia/roofline/fpcount"
)

const base = 0x1000

// addsd xmm0, [rbx]; mulsd xmm0, xmm1; nop; jmp base; ret
var code = []byte{
	0xf2, 0x0f, 0x58, 0x03,
	0xf2, 0x0f, 0x59, 0xc1,
	0x90,
	0xeb, 0xf5,
	0xc3,
}

func memory(addr uint64, buf []byte) (int, error) {
	if addr < base || addr >= base+uint64(len(code)) {
		return 0, nil
	}
	return copy(buf, code[addr-base:]), nil
}

func newCache() *BlockCache {
	return NewBlockCache(fpcount.DecodeX86, func(b []fpcount.Instr) uint64 {
		return fpcount.CountBlock(fpcount.X86_64, b)
	})
}

func TestFetch(t *testing.T) {
	c := newCache()
	b, i, err := c.Fetch(base, memory)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	require.Len(t, b.Instrs, 4)
	assert.EqualValues(t, base+0xb, b.End())
	assert.True(t, b.Instrs[3].Branch)
	assert.EqualValues(t, 2, b.Ops(0))
	assert.EqualValues(t, 1, b.Ops(1))
	assert.EqualValues(t, 0, b.Ops(2))
	assert.Equal(t, 1, c.Len())

	again, i, err := c.Fetch(base+4, memory)
	require.NoError(t, err)
	assert.Same(t, b, again)
	assert.Equal(t, 1, i)
	assert.Equal(t, 1, c.Len())

	ret, i, err := c.Fetch(base+0xb, memory)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	require.Len(t, ret.Instrs, 1)
	assert.Equal(t, "ret", ret.Instrs[0].Mnemonic)
	assert.Equal(t, 2, c.Len())
}

func TestLookup(t *testing.T) {
	c := newCache()
	b, i := c.Lookup(base)
	assert.Nil(t, b)
	assert.Equal(t, -1, i)

	_, _, err := c.Fetch(base, memory)
	require.NoError(t, err)

	b, i = c.Lookup(base + 8)
	require.NotNil(t, b)
	assert.Equal(t, 2, i)

	// inside an instruction
	b, _ = c.Lookup(base + 5)
	assert.Nil(t, b)
	// past the block
	b, _ = c.Lookup(base + 0xb)
	assert.Nil(t, b)
}

func TestFetchStopsAtNextBlock(t *testing.T) {
	c := newCache()
	tail, _, err := c.Fetch(base+4, memory)
	require.NoError(t, err)
	require.Len(t, tail.Instrs, 3)

	head, i, err := c.Fetch(base, memory)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	require.Len(t, head.Instrs, 1)
	assert.Equal(t, "addsd", head.Instrs[0].Mnemonic)
	assert.EqualValues(t, 1, head.Ops(0))
	assert.EqualValues(t, base+4, head.End())
	assert.Equal(t, 2, c.Len())
}

func TestFetchEmpty(t *testing.T) {
	c := newCache()
	_, _, err := c.Fetch(0x10, memory)
	assert.ErrorIs(t, err, ErrEmptyBlock)

	bad := NewBlockCache(func(code []byte, addr uint64) (fpcount.Instr, error) {
		return fpcount.Instr{}, errors.New("bad instruction")
	}, nil)
	_, _, err = bad.Fetch(base, memory)
	assert.ErrorIs(t, err, ErrEmptyBlock)
	assert.Zero(t, bad.Len())

	failing := func(addr uint64, buf []byte) (int, error) {
		return 0, errors.New("io")
	}
	_, _, err = c.Fetch(base, failing)
	assert.EqualError(t, err, "io")
}

func TestBlockIndex(t *testing.T) {
	c := newCache()
	b, _, err := c.Fetch(base, memory)
	require.NoError(t, err)
	for i, in := range b.Instrs {
		assert.Equal(t, i, b.Index(in.Addr))
	}
	assert.Equal(t, -1, b.Index(base+1))
	assert.Equal(t, "block 0x1000-0x100b (4 instrs)", b.String())
}
