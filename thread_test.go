package roofline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns 1, 2, 3, ... seconds on successive calls.
func fakeClock() Clock {
	var now float64
	return func() float64 {
		now++
		return now
	}
}

func newThreadData(t *testing.T, entries int, timing bool) *ThreadData {
	td, err := NewThreadData(1, entries, timing, fakeClock())
	require.NoError(t, err)
	return td
}

func TestThreadDataBufferSize(t *testing.T) {
	_, err := NewThreadData(1, 0, false, nil)
	assert.ErrorIs(t, err, ErrBufferSize)
}

func TestDrainOnFull(t *testing.T) {
	td := newThreadData(t, 4, false)
	td.OpenPoint("loop", SourceLocation{})
	td.Activate()

	for i := 0; i < 10; i++ {
		td.Record(8, Read)
		assert.Less(t, td.Buffered(), 4)
	}
	assert.Equal(t, 2, td.Buffered())

	require.True(t, td.ClosePoint("loop", SourceLocation{}))
	p := td.Completed()[0]
	assert.EqualValues(t, 80, p.Bytes)
	assert.EqualValues(t, 80, p.ReadBytes)
	assert.Zero(t, p.WriteBytes)
}

func TestDrainOutsideROIDiscards(t *testing.T) {
	td := newThreadData(t, 16, false)
	td.Record(8, Read)
	td.Record(8, Write)
	td.ReportOperations(5)
	assert.Equal(t, 2, td.Buffered())

	td.OpenPoint("loop", SourceLocation{})
	assert.Zero(t, td.Buffered())
	td.Activate()
	td.ReportOperations(3)
	td.Record(4, Write)
	td.Deactivate()
	td.Record(8, Read)
	td.ReportOperations(7)
	require.True(t, td.ClosePoint("", SourceLocation{}))

	p := td.Completed()[0]
	assert.EqualValues(t, 3, p.Flops)
	assert.EqualValues(t, 4, p.Bytes)
	assert.EqualValues(t, 4, p.WriteBytes)
	assert.Zero(t, p.ReadBytes)
}

func TestOpenSealsStalePoint(t *testing.T) {
	td := newThreadData(t, 16, false)
	start := SourceLocation{File: "a.c", Line: 3}
	td.OpenPoint("outer", start)
	td.Activate()
	td.ReportOperations(2)
	td.Record(8, Read)

	td.OpenPoint("inner", SourceLocation{File: "a.c", Line: 5})
	td.ReportOperations(1)
	require.True(t, td.ClosePoint("inner", SourceLocation{File: "a.c", Line: 7}))

	done := td.Completed()
	require.Len(t, done, 2)
	assert.Equal(t, "outer", done[0].Label)
	assert.Equal(t, start, done[0].Start)
	assert.Equal(t, SourceLocation{}, done[0].End)
	assert.EqualValues(t, 2, done[0].Flops)
	assert.EqualValues(t, 8, done[0].Bytes)

	assert.Equal(t, "inner", done[1].Label)
	assert.EqualValues(t, 1, done[1].Flops)
	assert.Zero(t, done[1].Bytes)
	assert.EqualValues(t, 7, done[1].End.Line)
}

func TestCloseLabelMismatchKeepsData(t *testing.T) {
	td := newThreadData(t, 16, false)
	td.OpenPoint("A", SourceLocation{})
	td.Activate()
	td.ReportOperations(4)
	require.True(t, td.ClosePoint("B", SourceLocation{}))

	p := td.Completed()[0]
	assert.Equal(t, "A", p.Label)
	assert.EqualValues(t, 4, p.Flops)
}

func TestCloseWithoutOpen(t *testing.T) {
	td := newThreadData(t, 16, false)
	assert.False(t, td.ClosePoint("x", SourceLocation{}))
	assert.Empty(t, td.Completed())
}

func TestTimingStamps(t *testing.T) {
	td := newThreadData(t, 16, true)
	td.OpenPoint("t", SourceLocation{})
	td.StampEnd()
	require.True(t, td.ClosePoint("t", SourceLocation{}))

	p := td.Completed()[0]
	assert.Equal(t, 1.0, p.StartTime)
	assert.Equal(t, 3.0, p.EndTime)
	assert.Equal(t, 2.0, p.Elapsed())
}

func TestSealedPointIsACopy(t *testing.T) {
	td := newThreadData(t, 16, false)
	td.OpenPoint("a", SourceLocation{})
	td.Activate()
	td.ReportOperations(1)
	td.ClosePoint("a", SourceLocation{})

	td.OpenPoint("b", SourceLocation{})
	td.ReportOperations(10)
	td.ClosePoint("b", SourceLocation{})

	done := td.Completed()
	assert.EqualValues(t, 1, done[0].Flops)
	assert.EqualValues(t, 10, done[1].Flops)
	assert.Zero(t, td.Current().Flops)
}
