package roofline

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSummaryCSV(t *testing.T) {
	threads := []*ThreadReport{
		{Tid: 1, Points: []Point{
			{Label: "loop", Flops: 1000, Bytes: 16000, ReadBytes: 8000, WriteBytes: 8000,
				Start: SourceLocation{File: "loop.c", Line: 12}, End: SourceLocation{File: "loop.c", Line: 16}},
			{Label: "loop", Flops: 1},
		}},
	}

	var buf bytes.Buffer
	WriteSummary(NewCSVWriter(&buf), threads, false)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, countHeader, records[0])
	assert.Equal(t, []string{"1", "loop", "1000", "16000", "8000", "8000", "0.0625", "loop.c:12", "loop.c:16"}, records[1])
	assert.Equal(t, "loop1", records[2][1])
	assert.Equal(t, "0.0000", records[2][6])
}

func TestWriteSummaryTiming(t *testing.T) {
	threads := []*ThreadReport{
		{Tid: 3, Points: []Point{{Label: "t", StartTime: 1, EndTime: 3.25}}},
	}

	var buf bytes.Buffer
	WriteSummary(NewCSVWriter(&buf), threads, true)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{timingHeader, {"3", "t", "2.250000"}}, records)
}

func TestWriteSummaryTable(t *testing.T) {
	threads := []*ThreadReport{{Tid: 1, Points: []Point{{Label: "kernel", Flops: 2, Bytes: 4}}}}

	var buf bytes.Buffer
	WriteSummary(NewTableWriter(&buf), threads, false)
	assert.Contains(t, buf.String(), "kernel")
	assert.Contains(t, buf.String(), "0.5000")
}

func TestWriteSortedSummary(t *testing.T) {
	threads := []*ThreadReport{
		{Tid: 1, Points: []Point{
			{Label: "a", Flops: 9, Bytes: 100},
			{Label: "b", Flops: 40, Bytes: 10},
		}},
		{Tid: 2, Points: []Point{{Label: "c", Flops: 20, Bytes: 10}}},
	}

	labels := func(buf *bytes.Buffer) []string {
		records, err := csv.NewReader(buf).ReadAll()
		require.NoError(t, err)
		var out []string
		for _, r := range records[1:] {
			out = append(out, r[1])
		}
		return out
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSortedSummary(NewCSVWriter(&buf), threads, false, "flops", false))
	assert.Equal(t, []string{"b", "c", "a"}, labels(&buf))

	buf.Reset()
	require.NoError(t, WriteSortedSummary(NewCSVWriter(&buf), threads, false, "intensity", true))
	assert.Equal(t, []string{"a", "c", "b"}, labels(&buf))

	err := WriteSortedSummary(NewCSVWriter(&buf), threads, false, "cycles", false)
	assert.ErrorIs(t, err, ErrSortKey)
}
