// Scheduler: the core of the core. Runs submitted Tasks at or after their
// deadlines, with minimal jitter, using a single worker thread.
//
// Built around a heap-ordered task queue and a "drain every pending intake
// item before making a scheduling decision" loop, with a Uint64Stats-array
// for its running counters. There is exactly one worker thread per
// Scheduler and no intra-scheduler parallelism: firing a task and deciding
// what to run next both happen inline in the same loop below, rather than
// being split across a dispatcher and a worker pool.

package sihd_util

import (
	"container/heap"
	"fmt"
	"time"
)

const (
	// Default overrun threshold: a task whose fire-time lag exceeds this is
	// counted as an overrun.
	SCHEDULER_OVERRUN_AT_DEFAULT = 1 * time.Millisecond
	// Default tolerated early firing when the loop wakes slightly ahead of
	// the next deadline.
	SCHEDULER_ACCEPTABLE_PREPLAY_DEFAULT = 100 * time.Microsecond
	// Upper bound on how long the loop ever sleeps before re-checking the
	// intake list, even with an empty queue.
	SCHEDULER_INTAKE_POLL_INTERVAL = 1 * time.Second
)

type SchedulerConfig struct {
	// Lag threshold, in ns, for the overrun counter.
	OverrunAtNs int64 `yaml:"overrun_at_ns"`
	// Max early firing tolerated, in ns.
	AcceptableTaskPreplayNsTime int64 `yaml:"acceptable_task_preplay_ns_time"`
	// Engage virtual-clock replay.
	NoDelay bool `yaml:"no_delay"`
	// Start blocks until the worker thread has entered its loop.
	StartSynchronised bool `yaml:"start_synchronised"`
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		OverrunAtNs:                 int64(SCHEDULER_OVERRUN_AT_DEFAULT),
		AcceptableTaskPreplayNsTime: int64(SCHEDULER_ACCEPTABLE_PREPLAY_DEFAULT),
		NoDelay:                     false,
		StartSynchronised:           true,
	}
}

var schedulerLog = NewCompLogger("scheduler")

// Scheduler runs submitted Tasks in deadline order on a single worker
// thread. See the package doc comment above for the exact main-loop
// semantics this implements.
type Scheduler struct {
	*ThreadedService

	cfg *SchedulerConfig

	clock   Clock
	virtual *virtualClock // non-nil only in no_delay mode; Scheduler is its sole writer

	// Intake: multi-producer, single-consumer, guarded by intakeSignal.
	intake       []*Task
	intakeSignal *Waitable

	// Ordered queue, heap-ordered by deadline then insertion sequence. Only
	// the scheduler's own goroutine ever touches this.
	queue []*Task
	seq   uint64

	paused bool

	stats *schedulerStatsTracker
}

func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}

	var clock Clock
	var virtual *virtualClock
	if cfg.NoDelay {
		virtual = NewVirtualClock(0)
		clock = virtual
	} else {
		clock = NewSteadyClock()
	}

	s := &Scheduler{
		cfg:          cfg,
		clock:        clock,
		virtual:      virtual,
		intakeSignal: NewWaitable(clock),
		stats:        newSchedulerStatsTracker(),
	}
	s.ThreadedService = NewThreadedService("scheduler", s.loop)
	s.ThreadedService.StartSynchronised = cfg.StartSynchronised
	return s, nil
}

func (s *Scheduler) Clock() Clock { return s.clock }

// AddTask submits a task; a task submitted from within its
// own scheduler's run() only becomes visible on the next intake drain.
func (s *Scheduler) AddTask(task *Task) {
	s.intakeSignal.Lock()
	task.seq = s.seq
	s.seq++
	s.intake = append(s.intake, task)
	s.intakeSignal.Unlock()
	s.intakeSignal.NotifyAll()
}

// ClearTasks drops pending tasks but never interrupts a task that is
// currently running.
func (s *Scheduler) ClearTasks() {
	s.intakeSignal.Lock()
	s.intake = s.intake[:0]
	s.intakeSignal.Unlock()
	s.queue = s.queue[:0]
}

// Pause sets a gate the main loop checks before each run(); the task
// currently running, if any, finishes first.
func (s *Scheduler) Pause()  { s.paused = true }
func (s *Scheduler) Resume() { s.paused = false; s.intakeSignal.NotifyAll() }

func (s *Scheduler) Overruns() uint64 { return s.stats.Overruns() }

func (s *Scheduler) SnapStats(to SchedulerStats) SchedulerStats {
	return s.stats.SnapStats(to)
}

// heap.Interface over s.queue, ordered by deadline then insertion sequence
// Tasks with equal deadlines fire in FIFO submission order.
func (s *Scheduler) Len() int { return len(s.queue) }
func (s *Scheduler) Less(i, j int) bool {
	a, b := s.queue[i], s.queue[j]
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq
}
func (s *Scheduler) Swap(i, j int) { s.queue[i], s.queue[j] = s.queue[j], s.queue[i] }
func (s *Scheduler) Push(x any) {
	if t, ok := x.(*Task); ok {
		s.queue = append(s.queue, t)
	}
}
func (s *Scheduler) Pop() any {
	n := len(s.queue) - 1
	t := s.queue[n]
	s.queue = s.queue[:n]
	return t
}

// drainIntake moves everything waiting in the intake list into the ordered
// queue, computing each task's effective deadline along the way. Must be
// called from the loop goroutine only.
func (s *Scheduler) drainIntake() {
	s.intakeSignal.Lock()
	pending := s.intake
	s.intake = nil
	s.intakeSignal.Unlock()

	now := s.clock.Now()
	for _, t := range pending {
		switch {
		case t.RunAt != 0:
			t.deadline = t.RunAt
		case t.RunIn != 0:
			t.deadline = now + t.RunIn
		default:
			t.deadline = now
		}
		heap.Push(s, t)
		s.stats.recordScheduled(t.Id)
	}
}

func (s *Scheduler) loop(stop *Waitable) bool {
	schedulerLog.Infof("start scheduler loop no_delay=%v", s.cfg.NoDelay)
	defer schedulerLog.Info("scheduler loop stopped")

	for {
		s.drainIntake()

		if stop.IsCancelled() {
			return true
		}

		if s.paused || len(s.queue) == 0 {
			s.intakeSignal.WaitFor(SCHEDULER_INTAKE_POLL_INTERVAL, func() bool {
				return stop.IsCancelled() || (!s.paused && len(s.intake) > 0)
			})
			if stop.IsCancelled() {
				return true
			}
			continue
		}

		next := s.queue[0]
		now := s.clock.Now()
		delta := next.deadline - now

		if delta > s.cfg.AcceptableTaskPreplayNsTime {
			if s.virtual != nil {
				s.virtual.SetNow(next.deadline)
			} else {
				waitDur := time.Duration(delta)
				if waitDur > SCHEDULER_INTAKE_POLL_INTERVAL {
					waitDur = SCHEDULER_INTAKE_POLL_INTERVAL
				}
				s.intakeSignal.WaitFor(waitDur, func() bool {
					return stop.IsCancelled() || len(s.intake) > 0
				})
				if stop.IsCancelled() {
					return true
				}
			}
			continue
		}

		heap.Pop(s)

		overran := -delta > s.cfg.OverrunAtNs

		ok := s.runTask(next, overran)

		if ok && next.RescheduleTime > 0 {
			next.deadline += next.RescheduleTime
			heap.Push(s, next)
		}
	}
}

// runTask executes a task's payload, converting a recovered panic into a
// `false` return: logged and treated as no-reschedule, never crossing the
// scheduler's thread boundary.
func (s *Scheduler) runTask(t *Task, overran bool) (ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			schedulerLog.Errorf("task %q panicked: %v", t.Id, r)
			ok = false
		}
		runtimeUs := uint64(time.Since(start).Microseconds())
		s.stats.recordRun(t.Id, overran, runtimeUs)
	}()
	if t.Payload == nil {
		return false
	}
	return t.Payload()
}

func (s *Scheduler) String() string {
	return fmt.Sprintf("Scheduler{no_delay=%v, pending=%d}", s.cfg.NoDelay, len(s.queue))
}
