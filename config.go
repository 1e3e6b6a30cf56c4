package roofline

import (
	"errors"

	"github.com/zyedidia/roofline/fpcount"
	"go.uber.org/multierr"
)

// Default marker function names, as declared by the Roi_Start/Roi_End C API.
const (
	DefaultStartMarker = "_RoiStart"
	DefaultEndMarker   = "_RoiEnd"
)

var (
	ErrMissingStart      = errors.New("roi start marker has not been specified")
	ErrMissingEnd        = errors.New("roi end marker has not been specified")
	ErrConflictingROI    = errors.New("specify either roi start/end markers or a traced function")
	ErrConflictingFilter = errors.New("read-bytes-only and write-bytes-only are mutually exclusive")
	ErrSeparateNoTrace   = errors.New("separate calls require a traced function")
	ErrUpToCallNoTrace   = errors.New("up-to-call requires a traced function")
	ErrUpToCallNegative  = errors.New("up-to-call must not be negative")
)

// A Config selects how ROIs are delimited and what is measured. It is read
// only once the Engine has been created.
type Config struct {
	// Explicit markers. When both are empty the default names are used and
	// the marker arguments (label, line, file) are read from each call.
	StartMarker string
	EndMarker   string

	// TraceFunc selects the single traced function mode.
	TraceFunc string
	// SeparateCalls makes every invocation of TraceFunc its own point
	// instead of merging all invocations.
	SeparateCalls bool
	// UpToCall limits tracing to the first n invocations of TraceFunc per
	// thread; 0 traces every call.
	UpToCall int

	// Timing records wall-clock time only, without counting.
	Timing bool
	// Restrict memory accounting to one direction.
	ReadsOnly  bool
	WritesOnly bool

	OutputDir     string
	BufferEntries int
	Arch          fpcount.Arch
}

// Validate checks the configuration for conflicting or missing ROI settings
// and returns every violation found.
func (c *Config) Validate() error {
	var err error
	if c.StartMarker != "" || c.EndMarker != "" {
		if c.StartMarker == "" {
			err = multierr.Append(err, ErrMissingStart)
		}
		if c.EndMarker == "" {
			err = multierr.Append(err, ErrMissingEnd)
		}
		if c.TraceFunc != "" {
			err = multierr.Append(err, ErrConflictingROI)
		}
	}
	if c.TraceFunc == "" {
		if c.SeparateCalls {
			err = multierr.Append(err, ErrSeparateNoTrace)
		}
		if c.UpToCall != 0 {
			err = multierr.Append(err, ErrUpToCallNoTrace)
		}
	}
	if c.UpToCall < 0 {
		err = multierr.Append(err, ErrUpToCallNegative)
	}
	if c.ReadsOnly && c.WritesOnly {
		err = multierr.Append(err, ErrConflictingFilter)
	}
	if c.BufferEntries < 0 {
		err = multierr.Append(err, ErrBufferSize)
	}
	return err
}

// Traced reports whether the single traced function mode is selected.
func (c *Config) Traced() bool {
	return c.TraceFunc != ""
}

// MarkerArgs reports whether labels and locations are read from the marker
// arguments, which is the case only for the default marker functions.
func (c *Config) MarkerArgs() bool {
	return !c.Traced() && c.StartMarker == "" && c.EndMarker == ""
}

// Markers returns the names of the start and end marker functions.
func (c *Config) Markers() (start, end string) {
	if c.StartMarker == "" && c.EndMarker == "" {
		return DefaultStartMarker, DefaultEndMarker
	}
	return c.StartMarker, c.EndMarker
}

// Records reports whether accesses of the given kind are accounted.
func (c *Config) Records(k Kind) bool {
	switch k {
	case Read:
		return !c.WritesOnly
	case Write:
		return !c.ReadsOnly
	}
	return false
}

func (c *Config) entries() int {
	if c.BufferEntries == 0 {
		return DefaultBufferEntries
	}
	return c.BufferEntries
}
