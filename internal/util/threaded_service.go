// ThreadedService and BlockingService: the two Service specializations
// built on serviceCore + Worker.

package sihd_util

// ThreadedService runs its body on a Worker; Start returns once the worker
// has reached a ready state (a one-shot latch) or on startup failure.
type ThreadedService struct {
	*serviceCore
	worker *Worker
	body   func(stop *Waitable) bool
	// StartSynchronised controls whether Start waits for the worker to reach
	// its ready state ("start_synchronised"); true by default.
	StartSynchronised bool
}

func NewThreadedService(name string, body func(stop *Waitable) bool) *ThreadedService {
	s := &ThreadedService{body: body, StartSynchronised: true}
	s.worker = NewWorker(name, func() bool { return s.body(s.worker.StopSignal()) })
	s.serviceCore = newServiceCore(name, Hooks{
		OnStart: func() error {
			var started bool
			if s.StartSynchronised {
				started = s.worker.StartSyncWorker()
			} else {
				started = s.worker.StartWorker()
			}
			if !started {
				return errServiceAlreadyStarted
			}
			return nil
		},
		OnStop: func() error {
			s.worker.StopWorker()
			return nil
		},
	})
	return s
}

var errServiceAlreadyStarted = serviceError("worker already started")

type serviceError string

func (e serviceError) Error() string { return string(e) }

func (s *ThreadedService) IsRunning() bool { return s.serviceCore.IsRunning() }

// BlockingService runs its body synchronously on the caller's goroutine;
// Start returns only once the body has stopped. Callers needing concurrency
// wrap it in a Worker themselves.
type BlockingService struct {
	*serviceCore
	stop *Waitable
	body func(stop *Waitable) error
}

func NewBlockingService(name string, body func(stop *Waitable) error) *BlockingService {
	s := &BlockingService{stop: NewWaitable(NewSteadyClock())}
	s.body = body
	s.serviceCore = newServiceCore(name, Hooks{
		OnStart: func() error {
			s.stop.ClearCancel()
			return s.body(s.stop)
		},
		OnStop: func() error {
			s.stop.CancelLoop()
			return nil
		},
	})
	return s
}
