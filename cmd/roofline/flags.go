package main

import (
	"github.com/zyedidia/roofline"
	"github.com/zyedidia/roofline/fpcount"
)

type options struct {
	RoiStart      string `long:"roi-start" description:"Function, file:line or 0x address marking the start of the ROI (default _RoiStart, with label/line/file arguments)"`
	RoiEnd        string `long:"roi-end" description:"Function, file:line or 0x address marking the end of the ROI (default _RoiEnd)"`
	TraceFunc     string `short:"f" long:"trace-func" description:"Trace a single function: its entry opens the ROI and its return closes it"`
	SeparateCalls bool   `long:"separate-calls" description:"Report every call of the traced function as its own point"`
	UpToCall      int    `long:"up-to-call" description:"Only trace the first n calls of the traced function per thread (0 traces all)"`
	TimeRun       bool   `short:"t" long:"time-run" description:"Only measure the wall-clock time of each ROI"`
	ReadBytes     bool   `long:"read-bytes-only" description:"Only account memory reads"`
	WriteBytes    bool   `long:"write-bytes-only" description:"Only account memory writes"`
	OutputFolder  string `short:"o" long:"output-folder" default:"." description:"Directory the XML reports are written to"`
	BufferEntries int    `long:"buffer-entries" default:"4096" description:"Memory reference buffer capacity per thread"`
	Arch          string `long:"arch" default:"x86_64" description:"Architecture of the target's instruction set"`
	Summary       bool   `short:"s" long:"summary" description:"Print a summary table of every point after the run"`
	SortKey       string `long:"sort-key" description:"Column to sort the summary table with"`
	ReverseSort   bool   `long:"reverse-sort" description:"Reverse summary table sorting"`
	Csv           bool   `long:"csv" description:"Write the summary in CSV format"`
	SummaryOutput string `long:"summary-output" description:"Write the summary to a file instead of stdout"`
	Config        string `long:"config" description:"Read further options from an INI file"`
	Verbose       bool   `short:"V" long:"verbose" description:"Show verbose debug information"`
	Version       bool   `short:"v" long:"version" description:"Show version information"`
	Help          bool   `short:"h" long:"help" description:"Show this help message"`
}

var opts options

// config converts the parsed options to an engine configuration.
func config() (roofline.Config, error) {
	arch, err := fpcount.ParseArch(opts.Arch)
	if err != nil {
		return roofline.Config{}, err
	}
	return roofline.Config{
		StartMarker:   opts.RoiStart,
		EndMarker:     opts.RoiEnd,
		TraceFunc:     opts.TraceFunc,
		SeparateCalls: opts.SeparateCalls,
		UpToCall:      opts.UpToCall,
		Timing:        opts.TimeRun,
		ReadsOnly:     opts.ReadBytes,
		WritesOnly:    opts.WriteBytes,
		OutputDir:     opts.OutputFolder,
		BufferEntries: opts.BufferEntries,
		Arch:          arch,
	}, nil
}
