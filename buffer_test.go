package roofline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBufferSize(t *testing.T) {
	_, err := NewBuffer(0)
	assert.ErrorIs(t, err, ErrBufferSize)
	_, err = NewBuffer(-1)
	assert.ErrorIs(t, err, ErrBufferSize)

	b, err := NewBuffer(DefaultBufferEntries)
	require.NoError(t, err)
	assert.Equal(t, 4096, b.Cap())
	assert.Zero(t, b.Len())
}

func TestBufferAppendReportsFull(t *testing.T) {
	b, err := NewBuffer(3)
	require.NoError(t, err)

	assert.False(t, b.Append(MemRef{Size: 8, Kind: Read}))
	assert.False(t, b.Append(MemRef{Size: 4, Kind: Write}))
	assert.True(t, b.Append(MemRef{Size: 2, Kind: Read}))
	assert.Equal(t, 3, b.Len())
}

func TestBufferDrain(t *testing.T) {
	b, err := NewBuffer(8)
	require.NoError(t, err)
	b.Append(MemRef{Size: 8, Kind: Read})
	b.Append(MemRef{Size: 4, Kind: Write})

	var got []MemRef
	b.Drain(func(r MemRef) {
		got = append(got, r)
	})
	assert.Equal(t, []MemRef{{8, Read}, {4, Write}}, got)
	assert.Zero(t, b.Len())

	// draining an empty buffer visits nothing
	b.Drain(func(MemRef) {
		t.Fatal("unexpected reference")
	})

	b.Append(MemRef{Size: 1, Kind: Read})
	b.Drain(nil)
	assert.Zero(t, b.Len())
}
