// Poll: a readiness-based multiplexer feeding I/O-driven tasks. Grounded
// on golang.org/x/sys/unix, already used elsewhere via
// available_cpus_linux.go/process_unix.go for CPU-affinity and rusage
// queries; this repurposes the same package for unix.Poll.

package sihd_util

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	PollEventRead  = unix.POLLIN
	PollEventWrite = unix.POLLOUT
	PollEventError = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
)

// PollEvent is a single fd's readiness report, handed to the observer after
// a Poll call returns.
type PollEvent struct {
	Fd     int
	Events int16
}

// PollObserver is notified with the full batch of ready fds from one
// Poll(ms) call.
type PollObserver func(events []PollEvent)

var pollLog = NewCompLogger("poll")

// PollConfig is the yaml-decoded configuration for a Poll instance. Limit
// defaults to a multiple of the available CPU count (available_cpus_linux.go
// / available_cpus_others.go, a CPU-affinity probe) rather than
// a flat constant, since a busier host can usefully multiplex more fds.
type PollConfig struct {
	Limit     int `yaml:"limit"`
	TimeoutMs int `yaml:"timeout_ms"`
}

const POLL_LIMIT_PER_CPU = 16

func DefaultPollConfig() *PollConfig {
	return &PollConfig{
		Limit:     GetAvailableCPUCount() * POLL_LIMIT_PER_CPU,
		TimeoutMs: -1,
	}
}

// Poll multiplexes readiness across a set of registered file descriptors.
// Mirrors the single-purpose-struct-with-a-logger-and-a-mutex
// shape (e.g. readfile_buf_pool.go's ReadFileBufPool).
type Poll struct {
	mu       sync.Mutex
	fds      map[int]int16 // fd -> requested events
	limit    int
	timeout  time.Duration
	observer PollObserver
}

func NewPoll() *Poll {
	return NewPollWithConfig(DefaultPollConfig())
}

func NewPollWithConfig(cfg *PollConfig) *Poll {
	if cfg == nil {
		cfg = DefaultPollConfig()
	}
	return &Poll{
		fds:     make(map[int]int16),
		limit:   cfg.Limit,
		timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
}

func (p *Poll) SetObserver(obs PollObserver) {
	p.mu.Lock()
	p.observer = obs
	p.mu.Unlock()
}

func (p *Poll) SetReadFd(fd int) {
	p.mu.Lock()
	p.fds[fd] |= PollEventRead
	p.mu.Unlock()
}

func (p *Poll) SetWriteFd(fd int) {
	p.mu.Lock()
	p.fds[fd] |= PollEventWrite
	p.mu.Unlock()
}

func (p *Poll) ClearFd(fd int) {
	p.mu.Lock()
	delete(p.fds, fd)
	p.mu.Unlock()
}

func (p *Poll) SetLimit(n int) {
	p.mu.Lock()
	p.limit = n
	p.mu.Unlock()
}

func (p *Poll) SetTimeout(ms int) {
	p.mu.Lock()
	p.timeout = time.Duration(ms) * time.Millisecond
	p.mu.Unlock()
}

// Poll blocks for up to the configured timeout, or the overriding ms
// argument if >= 0, waiting for any registered fd to become ready, then
// reports the batch to the observer. Returns the number of ready fds.
func (p *Poll) Poll(ms int) (int, error) {
	p.mu.Lock()
	timeoutMs := int(p.timeout / time.Millisecond)
	if ms >= 0 {
		timeoutMs = ms
	}
	limit := p.limit
	pollFds := make([]unix.PollFd, 0, len(p.fds))
	for fd, events := range p.fds {
		pollFds = append(pollFds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	observer := p.observer
	p.mu.Unlock()

	if limit > 0 && len(pollFds) > limit {
		return 0, fmt.Errorf("sihd_util: poll: %d fds exceeds limit %d", len(pollFds), limit)
	}
	if len(pollFds) == 0 {
		return 0, nil
	}

	n, err := unix.Poll(pollFds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	events := make([]PollEvent, 0, n)
	for _, pfd := range pollFds {
		if pfd.Revents != 0 {
			events = append(events, PollEvent{Fd: int(pfd.Fd), Events: pfd.Revents})
		}
	}
	if observer != nil {
		observer(events)
	}
	return len(events), nil
}
