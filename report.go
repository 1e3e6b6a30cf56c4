package roofline

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Labels returns the report label of every point. The first occurrence of a
// label is kept as is and later occurrences get the number of earlier ones
// appended: loop, loop1, loop2.
func Labels(points []Point) []string {
	seen := make(map[string]int)
	labels := make([]string, len(points))
	for i, p := range points {
		n := seen[p.Label]
		if n == 0 {
			labels[i] = p.Label
		} else {
			labels[i] = p.Label + strconv.Itoa(n)
		}
		seen[p.Label] = n + 1
	}
	return labels
}

// ReportName returns the file name of a thread report.
func ReportName(tid int, timing bool) string {
	if timing {
		return fmt.Sprintf("roofline_time-%d.xml", tid)
	}
	return fmt.Sprintf("roofline-%d.xml", tid)
}

func element(enc *xml.Encoder, name string, v interface{}) error {
	return enc.EncodeElement(v, xml.StartElement{Name: xml.Name{Local: name}})
}

// WriteReport writes the XML report of one thread. In timing mode every point
// holds only its elapsed time; otherwise it holds the counts and the source
// locations of its markers.
func WriteReport(w io.Writer, tid int, run string, points []Point, timing bool) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "roofline"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "thread"}, Value: strconv.Itoa(tid)},
		},
	}
	if run != "" {
		root.Attr = append(root.Attr, xml.Attr{Name: xml.Name{Local: "run"}, Value: run})
	}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}

	for i, label := range Labels(points) {
		p := &points[i]
		start := xml.StartElement{
			Name: xml.Name{Local: "point"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "label"}, Value: label}},
		}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		var err error
		if timing {
			err = element(enc, "time", fmt.Sprintf("%f", p.Elapsed()))
		} else {
			err = multierr.Combine(
				element(enc, "flops", p.Flops),
				element(enc, "bytes", p.Bytes),
				element(enc, "read_bytes", p.ReadBytes),
				element(enc, "write_bytes", p.WriteBytes),
				element(enc, "src_file_start", p.Start.File),
				element(enc, "src_file_end", p.End.File),
				element(enc, "line_n_start", p.Start.Line),
				element(enc, "line_n_end", p.End.Line),
			)
		}
		if err != nil {
			return err
		}
		if err := enc.EncodeToken(start.End()); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// A ThreadReport is the serialized report of one finished thread.
type ThreadReport struct {
	Tid    int
	Points []Point
	data   []byte
}

// Bytes returns the serialized XML report.
func (r *ThreadReport) Bytes() []byte {
	return r.data
}

// Reports collects the per-thread reports of a run. Threads add their report
// when they end; nothing reaches the disk until Flush.
type Reports struct {
	run    string
	timing bool

	mu      sync.Mutex
	threads []*ThreadReport
}

// NewReports returns an empty collection for the given run.
func NewReports(run string, timing bool) *Reports {
	return &Reports{
		run:    run,
		timing: timing,
	}
}

// Add serializes the completed points of a thread.
func (r *Reports) Add(tid int, points []Point) error {
	var buf bytes.Buffer
	if err := WriteReport(&buf, tid, r.run, points, r.timing); err != nil {
		return fmt.Errorf("thread %d report: %w", tid, err)
	}
	r.mu.Lock()
	r.threads = append(r.threads, &ThreadReport{
		Tid:    tid,
		Points: points,
		data:   buf.Bytes(),
	})
	r.mu.Unlock()
	return nil
}

// Threads returns the collected reports ordered by thread id.
func (r *Reports) Threads() []*ThreadReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	threads := make([]*ThreadReport, len(r.threads))
	copy(threads, r.threads)
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].Tid < threads[j].Tid
	})
	return threads
}

// Flush writes one file per thread into dir, creating it if needed.
func (r *Reports) Flush(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var err error
	for _, t := range r.Threads() {
		path := filepath.Join(dir, ReportName(t.Tid, r.timing))
		if werr := os.WriteFile(path, t.data, 0644); werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		logger.Debug("wrote report",
			zap.String("path", path),
			zap.Int("points", len(t.Points)))
	}
	return err
}
