// StepWorker: a Worker that re-invokes its payload at a fixed frequency,
// with a pause/resume gate. Grounded on the same goroutine+latch idiom
// as Worker, adding an io_util-style "sleep the residual period"
// pattern seen in scheduler.go's dispatcher timer handling.

package sihd_util

import (
	"math"
	"sync/atomic"
	"time"
)

const StepWorkerMinPeriod = time.Microsecond

// StepPayload is invoked once per step; a false return stops the StepWorker.
type StepPayload func() bool

type StepWorker struct {
	*Worker

	clock Clock
	freq  atomic.Uint64 // bits of a float64 Hz value

	paused atomic.Bool
	pause  *Waitable

	payload StepPayload
}

func NewStepWorker(name string, clock Clock, frequencyHz float64, payload StepPayload) *StepWorker {
	if clock == nil {
		clock = NewSteadyClock()
	}
	sw := &StepWorker{
		clock:   clock,
		pause:   NewWaitable(clock),
		payload: payload,
	}
	sw.SetFrequency(frequencyHz)
	sw.Worker = NewWorker(name, sw.run)
	return sw
}

func (sw *StepWorker) SetFrequency(hz float64) {
	if hz <= 0 {
		hz = 1
	}
	sw.freq.Store(math.Float64bits(hz))
}

func (sw *StepWorker) Frequency() float64 {
	return math.Float64frombits(sw.freq.Load())
}

func (sw *StepWorker) period() time.Duration {
	hz := sw.Frequency()
	period := time.Duration(1e9 / hz)
	if period < StepWorkerMinPeriod {
		period = StepWorkerMinPeriod
	}
	return period
}

func (sw *StepWorker) Pause() {
	sw.paused.Store(true)
}

func (sw *StepWorker) Resume() {
	sw.paused.Store(false)
	sw.pause.NotifyAll()
}

func (sw *StepWorker) IsPaused() bool {
	return sw.paused.Load()
}

func (sw *StepWorker) run() bool {
	stop := sw.StopSignal()
	for {
		if stop.IsCancelled() {
			return true
		}
		if sw.paused.Load() {
			sw.pause.WaitFor(sw.period(), func() bool {
				return !sw.paused.Load() || stop.IsCancelled()
			})
			if stop.IsCancelled() {
				return true
			}
			continue
		}

		start := sw.clock.Now()
		keepGoing := true
		if sw.payload != nil {
			keepGoing = sw.payload()
		}
		if !keepGoing {
			return true
		}
		elapsed := time.Duration(sw.clock.Now() - start)
		residual := sw.period() - elapsed
		if residual > 0 {
			stop.WaitFor(residual, func() bool { return stop.IsCancelled() })
		}
	}
}
