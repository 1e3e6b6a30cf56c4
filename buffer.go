package roofline

import "errors"

// DefaultBufferEntries is the default Buffer capacity. It must be large
// enough to hold every memory reference between two drains.
const DefaultBufferEntries = 4096

// ErrBufferSize is returned when a buffer cannot be allocated with the
// requested capacity.
var ErrBufferSize = errors.New("invalid memory reference buffer size")

// A Kind is the direction of a memory access.
type Kind uint8

const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// A MemRef is one buffered memory reference.
type MemRef struct {
	Size uint16
	Kind Kind
}

// A Buffer is a fixed-capacity sequence of memory references filled by
// instrumentation and drained in batches by its owning thread. It is not safe
// for concurrent use.
type Buffer struct {
	refs []MemRef
	cur  int
}

// NewBuffer allocates a buffer holding n references.
func NewBuffer(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, ErrBufferSize
	}
	return &Buffer{
		refs: make([]MemRef, n),
	}, nil
}

// Append writes r at the cursor and reports whether the buffer is now full.
// The caller must drain a full buffer before the next Append.
func (b *Buffer) Append(r MemRef) bool {
	b.refs[b.cur] = r
	b.cur++
	return b.cur == len(b.refs)
}

// Drain calls fn for every buffered reference in order and resets the
// cursor. A nil fn discards the references.
func (b *Buffer) Drain(fn func(MemRef)) {
	if fn != nil {
		for _, r := range b.refs[:b.cur] {
			fn(r)
		}
	}
	b.cur = 0
}

// Len returns the number of buffered references.
func (b *Buffer) Len() int {
	return b.cur
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.refs)
}
