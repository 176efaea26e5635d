// Process: spawn/fork wrapper. Spawns a child via os/exec (the platform
// primitive — no pack dependency offers process spawning, the same role
// x/sys/unix plays below for affinity/rusage), forwards stdout/stderr
// through pooled scratch buffers, and exposes Wait/Stop/Continue lifecycle
// signals via a Waitable. Resource accounting is built on
// process_unix.go (unix.Getrusage) and clktck_unix.go (SC_CLK_TCK); the
// diagnostics snapshot also reports host uptime via go-osstat/uptime
// through os_boot_time_unix.go.

package sihd_util

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var processLog = NewCompLogger("process")

type ProcessState int

const (
	ProcessNotStarted ProcessState = iota
	ProcessRunning
	ProcessStopped
	ProcessExited
)

// ProcessDiagnostics is a point-in-time snapshot of a finished or running
// child's resource usage plus host context.
type ProcessDiagnostics struct {
	Pid        int
	ExitCode   int
	CpuTimeSec float64
	ClockTicks int64
	HostUptime time.Duration
}

// Process spawns a single child and forwards each of its pipes from a
// dedicated goroutine doing blocking reads; no Poll instance is involved.
type Process struct {
	Name string
	Args []string

	cmd *exec.Cmd

	stdoutSink io.Writer
	stderrSink io.Writer
	// bufPool supplies the scratch buffer forward() reads into, amortizing
	// the allocation across both pipe-forwarding goroutines and repeated
	// Start/Stop cycles of the same Process.
	bufPool *ReadFileBufPool

	mu    sync.Mutex
	state ProcessState

	exitWaitable *Waitable
	exitErr      error
}

func NewProcess(name string, args ...string) *Process {
	return &Process{
		Name:         name,
		Args:         args,
		bufPool:      NewBufPool(8),
		exitWaitable: NewWaitable(NewSteadyClock()),
		state:        ProcessNotStarted,
	}
}

// SetStdoutSink / SetStderrSink wire the child's output streams to
// caller-supplied sinks; nil discards the stream.
func (p *Process) SetStdoutSink(w io.Writer) { p.stdoutSink = w }
func (p *Process) SetStderrSink(w io.Writer) { p.stderrSink = w }

func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start spawns the child and, if any sink is configured, begins forwarding
// its stdout/stderr, one background goroutine per pipe.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.state != ProcessNotStarted {
		p.mu.Unlock()
		return fmt.Errorf("sihd_util: process %q already started", p.Name)
	}
	p.mu.Unlock()

	cmd := exec.Command(p.Name, p.Args...)
	var stdoutPipe, stderrPipe io.ReadCloser
	var err error
	if p.stdoutSink != nil {
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("sihd_util: stdout pipe: %w", err)
		}
	}
	if p.stderrSink != nil {
		stderrPipe, err = cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("sihd_util: stderr pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sihd_util: start %q: %w", p.Name, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.state = ProcessRunning
	p.mu.Unlock()

	if stdoutPipe != nil {
		go p.forward(stdoutPipe, p.stdoutSink)
	}
	if stderrPipe != nil {
		go p.forward(stderrPipe, p.stderrSink)
	}

	go p.reap()

	processLog.Infof("started %q pid=%d", p.Name, cmd.Process.Pid)
	return nil
}

// forward reads one pipe in chunks, using a pooled *bytes.Buffer purely for
// its backing array (never its accumulated contents), and forwards each
// chunk to sink as it arrives, until EOF. It does not multiplex the pipe fd
// through a Poll loop because os.File already does so via the runtime's
// netpoller.
func (p *Process) forward(r io.ReadCloser, sink io.Writer) {
	defer r.Close()

	buf := p.bufPool.GetBuf()
	defer p.bufPool.ReturnBuf(buf)
	buf.Grow(4096)

	for {
		scratch := buf.AvailableBuffer()[:4096]
		n, err := r.Read(scratch)
		if n > 0 && sink != nil {
			sink.Write(scratch[:n])
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) reap() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.state = ProcessExited
	p.exitErr = err
	p.mu.Unlock()

	p.exitWaitable.NotifyAll()
}

// Wait blocks until the child exits or d elapses (0 = forever), returning
// the captured Wait() error, if any.
func (p *Process) Wait(d time.Duration) (bool, error) {
	predicate := func() bool { return p.State() == ProcessExited }
	var exited bool
	if d <= 0 {
		exited = p.exitWaitable.Wait(predicate)
	} else {
		exited, _ = p.exitWaitable.WaitFor(d, predicate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return exited, p.exitErr
}

// Stop sends SIGTERM and marks the process as stopping; reap() still owns
// the transition to ProcessExited once the child actually terminates, so
// ProcessStopped only ever describes the window between the two.
func (p *Process) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	if p.state == ProcessRunning {
		p.state = ProcessStopped
	}
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("sihd_util: process %q not started", p.Name)
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

func (p *Process) Continue() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("sihd_util: process %q not started", p.Name)
	}
	return cmd.Process.Signal(syscall.SIGCONT)
}

// Diagnostics reports the exited child's resource usage (RUSAGE_CHILDREN,
// since the runtime reaps via os/exec rather than a raw wait4 on this pid
// alone) alongside host uptime and the platform's clock-tick rate.
func (p *Process) Diagnostics() (*ProcessDiagnostics, error) {
	p.mu.Lock()
	cmd, state, exitErr := p.cmd, p.state, p.exitErr
	p.mu.Unlock()

	if state != ProcessExited {
		return nil, fmt.Errorf("sihd_util: process %q has not exited", p.Name)
	}

	cpuTimeSec, err := GetCpuTime(unix.RUSAGE_CHILDREN)
	if err != nil {
		return nil, err
	}
	clktck, err := GetSysClktck()
	if err != nil {
		return nil, err
	}
	uptime, err := GetOsBootTime()
	var hostUptime time.Duration
	if err == nil {
		hostUptime = time.Since(uptime)
	}

	exitCode := 0
	if exitErr != nil {
		if ee, ok := exitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return &ProcessDiagnostics{
		Pid:        cmd.Process.Pid,
		ExitCode:   exitCode,
		CpuTimeSec: cpuTimeSec,
		ClockTicks: clktck,
		HostUptime: hostUptime,
	}, nil
}
