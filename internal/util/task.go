// Task: a scheduled unit of work. Inert until submitted to a Scheduler,
// which computes its effective deadline and, after submission, owns every
// field below except the payload itself.

package sihd_util

type TaskPayload func() bool

// Task is immutable after submission except for the Scheduler-managed
// deadline field, which only the owning Scheduler's loop ever writes.
type Task struct {
	// Id, used for stats and FIFO tie-breaking diagnostics.
	Id string

	// RunAt: absolute deadline in ns on the scheduler's Clock. If zero, the
	// deadline is derived from RunIn at submission time.
	RunAt Timestamp
	// RunIn: relative delay from submission, in ns. Ignored if RunAt != 0.
	RunIn int64
	// RescheduleTime: 0 = one-shot; >0 = periodic, ns added to the previous
	// deadline (not "now + RescheduleTime") after each successful firing.
	RescheduleTime int64

	Payload TaskPayload

	// scheduler-managed:
	deadline Timestamp
	seq      uint64 // insertion order, for FIFO tie-break among equal deadlines
}

func NewTask(id string, payload TaskPayload) *Task {
	return &Task{Id: id, Payload: payload}
}

// At is sugar for an absolute one-shot task.
func (t *Task) At(runAt Timestamp) *Task {
	t.RunAt = runAt
	return t
}

// In is sugar for a relative one-shot task.
func (t *Task) In(runIn int64) *Task {
	t.RunIn = runIn
	return t
}

// Every turns the task periodic with the given reschedule interval, in ns.
func (t *Task) Every(rescheduleTime int64) *Task {
	t.RescheduleTime = rescheduleTime
	return t
}

// Deadline returns the last computed fire time; valid only once submitted.
func (t *Task) Deadline() Timestamp { return t.deadline }
