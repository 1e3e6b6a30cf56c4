package roofline

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabels(t *testing.T) {
	points := []Point{
		{Label: "loop"},
		{Label: "loop"},
		{Label: "setup"},
		{Label: "loop"},
	}
	assert.Equal(t, []string{"loop", "loop1", "setup", "loop2"}, Labels(points))
	assert.Empty(t, Labels(nil))
}

func TestReportName(t *testing.T) {
	assert.Equal(t, "roofline-42.xml", ReportName(42, false))
	assert.Equal(t, "roofline_time-42.xml", ReportName(42, true))
}

type xmlReport struct {
	XMLName xml.Name `xml:"roofline"`
	Thread  int      `xml:"thread,attr"`
	Run     string   `xml:"run,attr"`
	Points  []struct {
		Label      string  `xml:"label,attr"`
		Flops      *uint64 `xml:"flops"`
		Bytes      uint64  `xml:"bytes"`
		ReadBytes  uint64  `xml:"read_bytes"`
		WriteBytes uint64  `xml:"write_bytes"`
		FileStart  string  `xml:"src_file_start"`
		FileEnd    string  `xml:"src_file_end"`
		LineStart  uint32  `xml:"line_n_start"`
		LineEnd    uint32  `xml:"line_n_end"`
		Time       string  `xml:"time"`
	} `xml:"point"`
}

func TestWriteReport(t *testing.T) {
	points := []Point{
		{
			Label: "loop", Flops: 1000, Bytes: 16000, ReadBytes: 8000, WriteBytes: 8000,
			Start: SourceLocation{File: "loop.c", Line: 12},
			End:   SourceLocation{File: "loop.c", Line: 16},
		},
		{Label: "loop", Flops: 5},
		{Label: "a<b>&c"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, 9, "run1", points, false))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("<?xml")))

	var r xmlReport
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &r))
	assert.Equal(t, 9, r.Thread)
	assert.Equal(t, "run1", r.Run)
	require.Len(t, r.Points, 3)

	p := r.Points[0]
	assert.Equal(t, "loop", p.Label)
	require.NotNil(t, p.Flops)
	assert.EqualValues(t, 1000, *p.Flops)
	assert.EqualValues(t, 16000, p.Bytes)
	assert.EqualValues(t, 8000, p.ReadBytes)
	assert.EqualValues(t, 8000, p.WriteBytes)
	assert.Equal(t, "loop.c", p.FileStart)
	assert.Equal(t, "loop.c", p.FileEnd)
	assert.EqualValues(t, 12, p.LineStart)
	assert.EqualValues(t, 16, p.LineEnd)
	assert.Empty(t, p.Time)

	assert.Equal(t, "loop1", r.Points[1].Label)
	assert.Equal(t, "a<b>&c", r.Points[2].Label)
}

func TestWriteTimingReport(t *testing.T) {
	points := []Point{{Label: "t", StartTime: 1.5, EndTime: 4}}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, 1, "", points, true))
	assert.Contains(t, buf.String(), "<time>2.500000</time>")
	assert.NotContains(t, buf.String(), "flops")
	assert.NotContains(t, buf.String(), "run=")
}

func TestWriteEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, 1, "r", nil, false))

	var r xmlReport
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &r))
	assert.Empty(t, r.Points)
}

func TestReportsFlush(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := NewReports("run", true)
	require.NoError(t, r.Add(20, []Point{{Label: "b"}}))
	require.NoError(t, r.Add(10, []Point{{Label: "a"}}))

	threads := r.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, 10, threads[0].Tid)
	assert.Equal(t, 20, threads[1].Tid)

	// nothing is written before the flush
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, r.Flush(dir))
	for _, th := range threads {
		data, err := os.ReadFile(filepath.Join(dir, ReportName(th.Tid, true)))
		require.NoError(t, err)
		assert.Equal(t, th.Bytes(), data)
	}
}
