// Service lifecycle: the setup/init/start/stop/reset state machine every
// long-lived component in this module follows. Grounded on a
// per-component state enum (SchedulerState in scheduler.go, formerly also
// CompressorPoolState), generalized from each component's ad-hoc 2-3 state
// enum into one shared 8-state machine.

package sihd_util

import (
	"fmt"
	"sync"
)

type ServiceState int

const (
	ServiceNone ServiceState = iota
	ServiceConfiguring
	ServiceSetup
	ServiceInitialised
	ServiceRunning
	ServiceStopping
	ServiceStopped
	ServiceError
)

var serviceStateNames = map[ServiceState]string{
	ServiceNone:        "None",
	ServiceConfiguring: "Configuring",
	ServiceSetup:       "Setup",
	ServiceInitialised: "Initialised",
	ServiceRunning:     "Running",
	ServiceStopping:    "Stopping",
	ServiceStopped:     "Stopped",
	ServiceError:       "Error",
}

func (s ServiceState) String() string {
	if name, ok := serviceStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ServiceState(%d)", int(s))
}

// Service is the abstract lifecycle every long-lived component implements.
type Service interface {
	Setup() error
	Init() error
	Start() error
	Stop() error
	Reset() error
	IsRunning() bool
	State() ServiceState
}

// Hooks are the subclass-overridable lifecycle callbacks;
// a zero-value Hooks is all no-ops, so an embedder only needs to set the
// ones it cares about.
type Hooks struct {
	OnSetup func() error
	OnInit  func() error
	OnStart func() error
	OnStop  func() error
	OnReset func() error
}

// serviceCore is the embeddable state machine shared by every Service
// implementation. It owns a single controller mutex guarding transitions;
// concurrent State()/IsRunning() reads take a read lock, the same "one
// lock protects state plus stats" shape used elsewhere in this package.
type serviceCore struct {
	mu    sync.RWMutex
	state ServiceState
	hooks Hooks
	name  string
}

func newServiceCore(name string, hooks Hooks) *serviceCore {
	return &serviceCore{name: name, hooks: hooks, state: ServiceNone}
}

func (c *serviceCore) State() ServiceState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *serviceCore) IsRunning() bool {
	return c.State() == ServiceRunning
}

func (c *serviceCore) transition(from []ServiceState, to ServiceState, hook func() error) error {
	c.mu.Lock()
	allowed := len(from) == 0
	for _, s := range from {
		if c.state == s {
			allowed = true
			break
		}
	}
	if !allowed {
		entry := c.state
		c.mu.Unlock()
		return fmt.Errorf("sihd_util: %s: cannot transition from %s to %s", c.name, entry, to)
	}
	c.mu.Unlock()

	var err error
	if hook != nil {
		err = hook()
	}

	c.mu.Lock()
	if err != nil {
		c.state = ServiceError
	} else {
		c.state = to
	}
	c.mu.Unlock()
	return err
}

// BaseService is the exported handle other packages embed to get the
// Setup/Init/Start/Stop/Reset state machine without reimplementing it;
// serviceCore itself stays unexported since only this package constructs
// the other two concrete services (ThreadedService, BlockingService).
type BaseService struct {
	*serviceCore
}

func NewBaseService(name string, hooks Hooks) *BaseService {
	return &BaseService{newServiceCore(name, hooks)}
}

// Setup and Init are idempotent on repeated entries from a failure path:
// re-entering from None or from Error is always allowed.
func (c *serviceCore) Setup() error {
	return c.transition([]ServiceState{ServiceNone, ServiceError}, ServiceSetup, c.hooks.OnSetup)
}

func (c *serviceCore) Init() error {
	return c.transition([]ServiceState{ServiceSetup, ServiceError}, ServiceInitialised, c.hooks.OnInit)
}

func (c *serviceCore) Start() error {
	return c.transition([]ServiceState{ServiceInitialised, ServiceStopped}, ServiceRunning, c.hooks.OnStart)
}

// Stop is safe to call from any thread, including one running inside a task
// the service itself dispatched.
func (c *serviceCore) Stop() error {
	c.mu.Lock()
	if c.state != ServiceRunning {
		entry := c.state
		c.mu.Unlock()
		if entry == ServiceStopped {
			return nil
		}
		return fmt.Errorf("sihd_util: %s: cannot stop from %s", c.name, entry)
	}
	c.state = ServiceStopping
	c.mu.Unlock()

	var err error
	if c.hooks.OnStop != nil {
		err = c.hooks.OnStop()
	}

	c.mu.Lock()
	if err != nil {
		c.state = ServiceError
	} else {
		c.state = ServiceStopped
	}
	c.mu.Unlock()
	return err
}

// Reset restores the service to None so that a fresh setup->init->start is
// possible, regardless of the state it is entered from.
func (c *serviceCore) Reset() error {
	var err error
	if c.hooks.OnReset != nil {
		err = c.hooks.OnReset()
	}
	c.mu.Lock()
	if err != nil {
		c.state = ServiceError
	} else {
		c.state = ServiceNone
	}
	c.mu.Unlock()
	return err
}
