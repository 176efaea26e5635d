// Waitable: a clock-aware condition variable supporting predicate waits and
// external cancellation. StepWorker's pause gate, the Scheduler loop's waits
// and Process.Wait are built on top of one of these rather than talking to
// sync.Cond or time.Timer directly.

package sihd_util

import (
	"sync"
	"time"
)

// Waitable owns a mutex, a condition variable, a bound Clock and a
// "cancelled" latch. The only safe way to wait on it is a predicate wait:
// Wait/WaitFor/WaitUntil all re-check the predicate on every wake-up,
// spurious or not.
type Waitable struct {
	clock Clock

	mu   sync.Mutex
	cond *sync.Cond

	cancelled bool
}

func NewWaitable(clock Clock) *Waitable {
	if clock == nil {
		clock = NewSteadyClock()
	}
	w := &Waitable{clock: clock}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *Waitable) Clock() Clock { return w.clock }

// Lock/Unlock expose scoped lock acquisition, so a
// caller can read/update the state a predicate closes over without a data
// race against Notify/NotifyAll.
func (w *Waitable) Lock()   { w.mu.Lock() }
func (w *Waitable) Unlock() { w.mu.Unlock() }

// Wait blocks until predicate() is true or cancel_loop() is called. It
// returns false only in the cancelled case. The caller must NOT already
// hold the lock.
func (w *Waitable) Wait(predicate func() bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.cancelled && !predicate() {
		w.cond.Wait()
	}
	return !w.cancelled
}

// WaitFor waits up to duration d for predicate to become true, consulting
// the bound Clock rather than a raw timer. If predicate is nil, it waits out
// the full duration (or until cancelled/notified past the deadline) and acts
// as a plain clock-aware sleep. Returns (predicateSatisfied, !cancelled);
// with a nil predicate the first value reports whether the deadline was
// reached.
func (w *Waitable) WaitFor(d time.Duration, predicate func() bool) (bool, bool) {
	return w.WaitUntil(w.clock.Now()+int64(d), predicate)
}

// WaitUntil waits until the bound Clock reaches deadline or predicate holds.
// A virtual clock never advances on its own, so against one this call
// evaluates the predicate/deadline once and returns immediately without
// sleeping — the owning Scheduler is responsible for moving the clock
// forward (see scheduler.go); that is what makes no_delay mode non-blocking.
func (w *Waitable) WaitUntil(deadline Timestamp, predicate func() bool) (bool, bool) {
	satisfied := func() bool {
		if predicate != nil && predicate() {
			return true
		}
		return w.clock.Now() >= deadline
	}
	// result is what the first return value reports: the predicate itself
	// when there is one, so a timeout is not mistaken for success.
	result := func() bool {
		if predicate != nil {
			return predicate()
		}
		return w.clock.Now() >= deadline
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, isVirtual := w.clock.(*virtualClock); isVirtual {
		ok := result()
		return ok, !w.cancelled
	}

	for !w.cancelled && !satisfied() {
		remaining := time.Duration(deadline - w.clock.Now())
		if remaining <= 0 {
			break
		}
		timer := time.AfterFunc(remaining, func() {
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		})
		w.cond.Wait()
		timer.Stop()
	}

	return result() && !w.cancelled, !w.cancelled
}

// Notify wakes one waiter, NotifyAll wakes them all; both are no-ops if
// nobody is waiting, same as the underlying condition variable.
func (w *Waitable) Notify() {
	w.mu.Lock()
	w.cond.Signal()
	w.mu.Unlock()
}

func (w *Waitable) NotifyAll() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// CancelLoop latches cancellation: every current and future predicate wait
// returns immediately (false) until ClearCancel is called.
func (w *Waitable) CancelLoop() {
	w.mu.Lock()
	w.cancelled = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *Waitable) ClearCancel() {
	w.mu.Lock()
	w.cancelled = false
	w.mu.Unlock()
}

func (w *Waitable) IsCancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}
