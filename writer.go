package roofline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// A MetricsWriter is an interface for writing tables.
type MetricsWriter interface {
	SetHeader(headers []string)
	Append(record []string)
	Render()
}

// A CSVWriter is a MetricsWriter that outputs the information in CSV format.
type CSVWriter struct {
	*csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to the given output writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		Writer: csv.NewWriter(w),
	}
}

// SetHeader adds a table header.
func (c *CSVWriter) SetHeader(headers []string) {
	c.Writer.Write(headers)
}

// Append creates a new row in the table.
func (c *CSVWriter) Append(record []string) {
	c.Writer.Write(record)
}

// Render flushes the table content to the writer.
func (c *CSVWriter) Render() {
	c.Writer.Flush()
}

// NewTableWriter creates a MetricsWriter that writes a pretty-printed ASCII
// table.
func NewTableWriter(w io.Writer) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

var (
	countHeader  = []string{"thread", "label", "flops", "bytes", "read bytes", "write bytes", "intensity", "start", "end"}
	timingHeader = []string{"thread", "label", "time (s)"}
)

var ErrSortKey = errors.New("unknown summary sort key")

// WriteSummary renders one row per point of every thread report, in report
// order.
func WriteSummary(w MetricsWriter, threads []*ThreadReport, timing bool) {
	header, rows := summaryRows(threads, timing)
	w.SetHeader(header)
	for _, r := range rows {
		w.Append(r)
	}
	w.Render()
}

// WriteSortedSummary is like WriteSummary but orders the rows by the column
// named key, largest first unless reverse is set.
func WriteSortedSummary(w MetricsWriter, threads []*ThreadReport, timing bool, key string, reverse bool) error {
	header, rows := summaryRows(threads, timing)
	col := -1
	for i, h := range header {
		if h == key {
			col = i
		}
	}
	if col < 0 {
		return fmt.Errorf("%w %q (one of %s)", ErrSortKey, key, strings.Join(header, ", "))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if reverse {
			return less(rows[i][col], rows[j][col])
		}
		return less(rows[j][col], rows[i][col])
	})

	w.SetHeader(header)
	for _, r := range rows {
		w.Append(r)
	}
	w.Render()
	return nil
}

// less compares two cells numerically when both are numbers.
func less(a, b string) bool {
	x, errx := strconv.ParseFloat(a, 64)
	y, erry := strconv.ParseFloat(b, 64)
	if errx != nil || erry != nil {
		return a < b
	}
	return x < y
}

func summaryRows(threads []*ThreadReport, timing bool) ([]string, [][]string) {
	header := countHeader
	if timing {
		header = timingHeader
	}
	var rows [][]string
	for _, t := range threads {
		tid := strconv.Itoa(t.Tid)
		for i, label := range Labels(t.Points) {
			p := &t.Points[i]
			if timing {
				rows = append(rows, []string{tid, label, fmt.Sprintf("%f", p.Elapsed())})
				continue
			}
			rows = append(rows, []string{
				tid,
				label,
				strconv.FormatUint(p.Flops, 10),
				strconv.FormatUint(p.Bytes, 10),
				strconv.FormatUint(p.ReadBytes, 10),
				strconv.FormatUint(p.WriteBytes, 10),
				fmt.Sprintf("%.4f", p.Intensity()),
				p.Start.String(),
				p.End.String(),
			})
		}
	}
	return header, rows
}
