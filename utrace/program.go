//go:build linux && amd64

// Package utrace instruments a running program with ptrace. It places
// software breakpoints on marker functions and single-steps the threads a
// Handler reports as active, decoding the executed blocks so that their
// floating-point operations and memory accesses can be counted. Threads
// created with clone are traced too; forked children and exec'd images are
// not.
//
// NOTE: make sure runtime.LockOSThread() has been called before using any of
// the following functions, and may not unlock the thread until you are
// finished calling any trace functions.
package utrace

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/zyedidia/roofline/fpcount"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const traceOptions = unix.PTRACE_O_EXITKILL | unix.PTRACE_O_TRACECLONE

type waitResult struct {
	pid int
	ws  unix.WaitStatus
	err error
}

// A Program is a traced process and its threads.
type Program struct {
	pid     int
	handler Handler
	reloc   relocation

	threads map[int]*Thread
	markers []Marker
	breaks  map[uint64]*breakpoint
	cache   *BlockCache

	waits chan waitResult
	done  chan struct{}
}

// Start launches 'target args...' under ptrace, places the marker
// breakpoints, and lets it run. Events are delivered to h once Run is
// called.
func Start(target string, args []string, pie PieOffsetter, h Handler, opts Options) (*Program, error) {
	cmd := exec.Command(target, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Ptrace: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid

	// wait for execve
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, unix.WALL, nil); err != nil {
		return nil, err
	}
	if !ws.Stopped() {
		return nil, fmt.Errorf("%s: no exec stop (status %#x)", target, uint32(ws))
	}

	p, err := newProgram(pid, pie, h, opts)
	if err != nil {
		unix.Kill(pid, unix.SIGKILL)
		return nil, err
	}
	return p, nil
}

func newProgram(pid int, pie PieOffsetter, h Handler, opts Options) (*Program, error) {
	reloc, err := newRelocation(pie, pid)
	if err != nil {
		return nil, err
	}

	p := &Program{
		pid:     pid,
		handler: h,
		reloc:   reloc,
		threads: make(map[int]*Thread),
		markers: opts.Markers,
		breaks:  make(map[uint64]*breakpoint),
		cache:   NewBlockCache(fpcount.DecodeX86, opts.instrument()),
		waits:   make(chan waitResult),
		done:    make(chan struct{}),
	}

	t := newThread(pid, p)
	if err := t.tracer.SetOptions(traceOptions); err != nil {
		return nil, err
	}
	for i, m := range p.markers {
		bp, err := p.setBreak(t, reloc.Runtime(m.Addr))
		if err != nil {
			return nil, fmt.Errorf("marker %d at 0x%x: %w", m.ID, m.Addr, err)
		}
		bp.marker = i
	}
	logger.Debug("process started",
		zap.Int("pid", pid),
		zap.Uint64("pie", uint64(reloc)),
		zap.Int("markers", len(p.markers)))

	p.threads[pid] = t
	if err := h.ThreadStart(pid); err != nil {
		return nil, err
	}

	go p.wait()
	return p, t.tracer.Cont(0)
}

// Pid returns the PID of the traced process.
func (p *Program) Pid() int {
	return p.pid
}

// Blocks returns the number of distinct blocks decoded so far.
func (p *Program) Blocks() int {
	return p.cache.Len()
}

func (p *Program) wait() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		select {
		case p.waits <- waitResult{pid: pid, ws: ws, err: err}:
		case <-p.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Run delivers events to the handler until every thread has exited. A
// signal received on interrupt kills the target; its threads still end
// normally.
func (p *Program) Run(interrupt <-chan os.Signal) error {
	defer close(p.done)
	for len(p.threads) > 0 {
		var r waitResult
		select {
		case r = <-p.waits:
		case sig := <-interrupt:
			logger.Info("interrupted, killing target", zap.Stringer("signal", sig))
			unix.Kill(p.pid, unix.SIGKILL)
			continue
		}
		if r.err == unix.ECHILD {
			return p.finish()
		} else if r.err != nil {
			return multierr.Append(r.err, p.finish())
		}
		if err := p.handle(r.pid, r.ws); err != nil {
			return multierr.Append(err, p.finish())
		}
	}
	return nil
}

// finish ends the threads whose exit was never observed.
func (p *Program) finish() error {
	var err error
	for tid := range p.threads {
		err = multierr.Append(err, p.handler.ThreadEnd(tid))
		delete(p.threads, tid)
	}
	return err
}

func (p *Program) addThread(tid int) (*Thread, error) {
	t := newThread(tid, p)
	t.fresh = true
	p.threads[tid] = t
	logger.Debug("new thread", zap.Int("tid", tid))
	return t, p.handler.ThreadStart(tid)
}

func (p *Program) removeThread(t *Thread) error {
	for _, f := range t.frames {
		if bp, ok := p.breaks[f.ret]; ok {
			// the int3 stays until another thread stops on it
			bp.returns--
		}
	}
	t.frames = nil
	delete(p.threads, t.Tid())
	logger.Debug("thread exited", zap.Int("tid", t.Tid()))
	return p.handler.ThreadEnd(t.Tid())
}

func (p *Program) handle(pid int, ws unix.WaitStatus) error {
	t, ok := p.threads[pid]
	if !ok {
		// a new thread may stop before its parent reports the clone
		var err error
		if t, err = p.addThread(pid); err != nil {
			return err
		}
	}

	if ws.Exited() || ws.Signaled() {
		return p.removeThread(t)
	} else if !ws.Stopped() {
		return nil
	}

	sig := ws.StopSignal()
	switch {
	case sig == unix.SIGSTOP && t.fresh:
		t.fresh = false
		return t.tracer.Cont(0)
	case sig != unix.SIGTRAP:
		logger.Debug("signal", zap.Int("tid", pid), zap.Stringer("signal", sig))
		return p.continueWith(t, sig)
	case ws.TrapCause() == unix.PTRACE_EVENT_CLONE:
		msg, err := t.tracer.GetEventMsg()
		if err != nil {
			return err
		}
		if _, ok := p.threads[int(msg)]; !ok {
			if _, err := p.addThread(int(msg)); err != nil {
				return err
			}
		}
		return p.continueWith(t, 0)
	case ws.TrapCause() > 0:
		return p.continueWith(t, 0)
	}
	return p.trap(t)
}

// continueWith resumes t the way it was last resumed, delivering sig.
func (p *Program) continueWith(t *Thread, sig unix.Signal) error {
	if t.stepping {
		return t.tracer.SingleStep(sig)
	}
	return t.tracer.Cont(sig)
}

// trap handles a SIGTRAP stop: a finished single step or a breakpoint hit.
func (p *Program) trap(t *Thread) error {
	if err := t.tracer.GetRegs(&t.regs); err != nil {
		return err
	}
	if t.lifted != 0 {
		if err := p.reinsert(t); err != nil {
			return err
		}
	}

	pc := t.regs.Rip
	if !t.stepping {
		if _, ok := p.breaks[pc-uint64(len(interrupt))]; !ok {
			// not ours
			return t.tracer.Cont(unix.SIGTRAP)
		}
		pc -= uint64(len(interrupt))
		t.regs.Rip = pc
		if err := t.tracer.SetRegs(&t.regs); err != nil {
			return err
		}
	}
	t.pc = pc

	p.settle(t, pc)
	if bp, ok := p.breaks[pc]; ok {
		if err := p.hit(t, pc, bp); err != nil {
			return err
		}
	}
	if p.handler.Active(t.Tid()) && !t.quieted(pc) {
		p.account(t, pc)
	}
	return p.resume(t)
}

// hit reports the marker returns and entries at pc.
func (p *Program) hit(t *Thread, pc uint64, bp *breakpoint) error {
	if bp.returns > 0 {
		for i := len(t.frames) - 1; i >= 0; i-- {
			if f := t.frames[i]; f.ret != pc || t.regs.Rsp <= f.sp {
				continue
			}
			// frames above i were skipped by a longjmp
			for j := len(t.frames) - 1; j >= i; j-- {
				f := t.frames[j]
				if rbp, ok := p.breaks[f.ret]; ok {
					rbp.returns--
				}
				p.handler.MarkerExit(t, f.marker)
				if f.ret != pc {
					if err := p.clearBreak(t, f.ret); err != nil {
						return err
					}
				}
			}
			t.frames = t.frames[:i]
			break
		}
	}

	if bp.marker >= 0 {
		m := p.markers[bp.marker]
		if m.Quiet {
			ret, err := t.readWord(t.regs.Rsp)
			if err != nil {
				return err
			}
			t.quiet, t.quietSP = ret, t.regs.Rsp
		}
		if m.Exit {
			ret, err := t.readWord(t.regs.Rsp)
			if err != nil {
				return err
			}
			rbp, err := p.setBreak(t, ret)
			if err != nil {
				return err
			}
			rbp.returns++
			t.frames = append(t.frames, frame{
				ret:    ret,
				sp:     t.regs.Rsp,
				marker: m.ID,
			})
		}
		p.handler.MarkerEnter(t, m.ID)
	}

	if bp.unused() {
		return p.clearBreak(t, pc)
	}
	return nil
}

// account reports the instruction at pc, which t is about to execute.
func (p *Program) account(t *Thread, pc uint64) {
	if t.cur != nil {
		in := &t.cur.Instrs[t.idx]
		if in.Addr == pc && !in.Branch {
			// repeated string instruction
			p.report(t, in)
			return
		}
		if next := t.idx + 1; next < len(t.cur.Instrs) && t.cur.Instrs[next].Addr == pc {
			t.idx = next
			p.report(t, &t.cur.Instrs[next])
			return
		}
	}

	b, i, err := p.cache.Fetch(pc, p.reader(t))
	if err != nil {
		logger.Debug("cannot decode", zap.Uint64("pc", pc), zap.Error(err))
		t.cur = nil
		return
	}
	t.cur, t.idx = b, i
	p.handler.BlockEnter(t.Tid(), b.Ops(i))
	p.report(t, &b.Instrs[i])
}

// report reports the memory accesses of in. The stack push of a call waits
// for the next stop, when the callee is known.
func (p *Program) report(t *Thread, in *fpcount.Instr) {
	if in.Mnemonic == "call" {
		t.call = in
		return
	}
	p.memory(t, in)
}

// settle reports the pending call push of t now stopped at pc, unless the
// call entered a quiet marker.
func (p *Program) settle(t *Thread, pc uint64) {
	if t.call == nil {
		return
	}
	if bp, ok := p.breaks[pc]; !ok || bp.marker < 0 || !p.markers[bp.marker].Quiet {
		p.memory(t, t.call)
	}
	t.call = nil
}

func (p *Program) memory(t *Thread, in *fpcount.Instr) {
	if in.MemSize == 0 {
		return
	}
	if in.MemRead {
		p.handler.MemoryAccess(t.Tid(), in.MemSize, false)
	}
	if in.MemWrite {
		p.handler.MemoryAccess(t.Tid(), in.MemSize, true)
	}
}

// resume single-steps t while it is active or while it must step over a
// breakpoint, and lets it run otherwise.
func (p *Program) resume(t *Thread) error {
	step := p.handler.Active(t.Tid())
	if bp, ok := p.breaks[t.pc]; ok && bp.inserted {
		if err := p.lift(t, t.pc, bp); err != nil {
			return err
		}
		step = true
	}

	t.stepping = step
	if step {
		return t.tracer.SingleStep(0)
	}
	t.cur, t.quiet = nil, 0
	return t.tracer.Cont(0)
}
