//go:build linux

// Package ptrace wraps the ptrace requests used to drive a traced thread.
package ptrace

import (
	"bytes"
	"errors"

	"golang.org/x/sys/unix"
)

// MaxString bounds the length of strings read from the tracee.
const MaxString = 4096

var ErrStringTooLong = errors.New("string exceeds maximum length")

// A Tracer keeps track of a process and allows running ptrace functions on
// that process.
type Tracer struct {
	pid int
}

// NewTracer returns a tracer for the given PID.
func NewTracer(pid int) *Tracer {
	return &Tracer{
		pid: pid,
	}
}

// SetOptions changes the ptrace options.
func (t *Tracer) SetOptions(options int) error {
	return unix.PtraceSetOptions(t.pid, options)
}

// GetEventMsg returns the newest event message.
func (t *Tracer) GetEventMsg() (uint, error) {
	return unix.PtraceGetEventMsg(t.pid)
}

// Cont continues execution of the child until the next event.
func (t *Tracer) Cont(sig unix.Signal) error {
	return unix.PtraceCont(t.pid, int(sig))
}

// SingleStep executes exactly one instruction of the child, delivering sig
// first if it is non-zero.
func (t *Tracer) SingleStep(sig unix.Signal) error {
	if sig == 0 {
		return unix.PtraceSingleStep(t.pid)
	}
	_, _, err := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_SINGLESTEP, uintptr(t.pid), 0, uintptr(sig), 0, 0)
	if err == 0 {
		return nil
	}
	return error(err)
}

// SetRegs assigns the registers of the tracee.
func (t *Tracer) SetRegs(regs *unix.PtraceRegs) error {
	return unix.PtraceSetRegs(t.pid, regs)
}

// GetRegs fetches the registers of the tracee.
func (t *Tracer) GetRegs(regs *unix.PtraceRegs) error {
	return unix.PtraceGetRegs(t.pid, regs)
}

// PeekData reads len(data) bytes at 'addr' in the child and places the bytes
// in the data slice. It returns the amount of data read or an error.
func (t *Tracer) PeekData(addr uintptr, data []byte) (int, error) {
	var nread int
	for nread < len(data) {
		n, err := unix.PtracePeekData(t.pid, addr+uintptr(nread), data[nread:])
		if n == 0 || err != nil {
			return nread, err
		}
		nread += n
	}
	return nread, nil
}

// PokeData writes data to the child's memory at 'addr'.
func (t *Tracer) PokeData(addr uintptr, data []byte) (int, error) {
	var nwritten int
	for nwritten < len(data) {
		n, err := unix.PtracePokeData(t.pid, addr+uintptr(nwritten), data[nwritten:])
		if n == 0 || err != nil {
			return nwritten, err
		}
		nwritten += n
	}
	return nwritten, nil
}

// ReadVM uses the process_read_vm system call to read len(data) bytes from the
// child's 'addr' address. This is the same as PeekData, except process_read_vm
// may be subject to additional permissions that the child is restricted to.
// Generally ReadVM is faster than PeekData.
func (t *Tracer) ReadVM(addr uintptr, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	remoteIov := unix.RemoteIovec{
		Base: addr,
		Len:  len(data),
	}
	localIov := unix.Iovec{
		Base: &data[0],
	}
	localIov.SetLen(len(data))
	return unix.ProcessVMReadv(t.pid, []unix.Iovec{localIov}, []unix.RemoteIovec{remoteIov}, 0)
}

// ReadCString reads a NUL-terminated string at addr. A zero address reads
// as the empty string.
func (t *Tracer) ReadCString(addr uintptr) (string, error) {
	if addr == 0 {
		return "", nil
	}
	var sb bytes.Buffer
	chunk := make([]byte, 64)
	for sb.Len() < MaxString {
		n, err := t.PeekData(addr+uintptr(sb.Len()), chunk)
		if n == 0 {
			if err == nil {
				err = unix.EIO
			}
			return sb.String(), err
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			sb.Write(chunk[:i])
			return sb.String(), nil
		}
		sb.Write(chunk[:n])
	}
	return sb.String(), ErrStringTooLong
}

// Pid returns the PID of the traced process.
func (t *Tracer) Pid() int {
	return t.pid
}
