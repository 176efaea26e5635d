package sihd_util

import (
	"fmt"
	"testing"
)

// TestServiceFullLifecycleTwice drives Setup->Init->Start->Stop->Reset twice
// in a row on the same BaseService, checking that Reset leaves it in
// ServiceNone and that nothing from the first cycle (hook call counts aside)
// leaks into the second: the second cycle must succeed exactly like the
// first rather than erroring out on a stale state.
func TestServiceFullLifecycleTwice(t *testing.T) {
	var calls []string
	record := func(name string) func() error {
		return func() error {
			calls = append(calls, name)
			return nil
		}
	}

	svc := NewBaseService("test", Hooks{
		OnSetup: record("setup"),
		OnInit:  record("init"),
		OnStart: record("start"),
		OnStop:  record("stop"),
		OnReset: record("reset"),
	})

	runOneCycle := func(cycle int) {
		if err := svc.Setup(); err != nil {
			t.Fatalf("cycle %d: Setup: %v", cycle, err)
		}
		if state := svc.State(); state != ServiceSetup {
			t.Fatalf("cycle %d: state after Setup = %s, want %s", cycle, state, ServiceSetup)
		}

		if err := svc.Init(); err != nil {
			t.Fatalf("cycle %d: Init: %v", cycle, err)
		}
		if state := svc.State(); state != ServiceInitialised {
			t.Fatalf("cycle %d: state after Init = %s, want %s", cycle, state, ServiceInitialised)
		}

		if err := svc.Start(); err != nil {
			t.Fatalf("cycle %d: Start: %v", cycle, err)
		}
		if !svc.IsRunning() {
			t.Fatalf("cycle %d: expected IsRunning() after Start", cycle)
		}

		if err := svc.Stop(); err != nil {
			t.Fatalf("cycle %d: Stop: %v", cycle, err)
		}
		if state := svc.State(); state != ServiceStopped {
			t.Fatalf("cycle %d: state after Stop = %s, want %s", cycle, state, ServiceStopped)
		}

		if err := svc.Reset(); err != nil {
			t.Fatalf("cycle %d: Reset: %v", cycle, err)
		}
		if state := svc.State(); state != ServiceNone {
			t.Fatalf("cycle %d: state after Reset = %s, want %s", cycle, state, ServiceNone)
		}
	}

	runOneCycle(1)
	firstCycleCalls := append([]string(nil), calls...)
	wantOrder := []string{"setup", "init", "start", "stop", "reset"}
	if fmt.Sprint(firstCycleCalls) != fmt.Sprint(wantOrder) {
		t.Fatalf("cycle 1 hook order = %v, want %v", firstCycleCalls, wantOrder)
	}

	calls = nil
	runOneCycle(2)
	if fmt.Sprint(calls) != fmt.Sprint(wantOrder) {
		t.Fatalf("cycle 2 hook order = %v, want %v (must match cycle 1 exactly)", calls, wantOrder)
	}
}

// TestServiceResetFromEveryState checks that Reset succeeds regardless of
// which state it is entered from, including straight from None, and always
// lands on None.
func TestServiceResetFromEveryState(t *testing.T) {
	for _, tc := range []struct {
		name  string
		drive func(svc *BaseService) error
	}{
		{"FromNone", func(svc *BaseService) error { return nil }},
		{"FromSetup", func(svc *BaseService) error { return svc.Setup() }},
		{"FromInitialised", func(svc *BaseService) error {
			if err := svc.Setup(); err != nil {
				return err
			}
			return svc.Init()
		}},
		{"FromRunning", func(svc *BaseService) error {
			if err := svc.Setup(); err != nil {
				return err
			}
			if err := svc.Init(); err != nil {
				return err
			}
			return svc.Start()
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewBaseService("test", Hooks{})
			if err := tc.drive(svc); err != nil {
				t.Fatal(err)
			}
			if err := svc.Reset(); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			if state := svc.State(); state != ServiceNone {
				t.Fatalf("state after Reset = %s, want %s", state, ServiceNone)
			}
		})
	}
}

// TestServiceResetHookFailureSetsError checks that a failing OnReset hook
// leaves the service in ServiceError rather than ServiceNone, and that a
// subsequent Reset (the documented recovery path for a service stuck in
// ServiceError) can still bring it back to None once the hook stops failing.
func TestServiceResetHookFailureSetsError(t *testing.T) {
	shouldFail := true
	svc := NewBaseService("test", Hooks{
		OnReset: func() error {
			if shouldFail {
				return fmt.Errorf("boom")
			}
			return nil
		},
	})

	if err := svc.Reset(); err == nil {
		t.Fatal("expected Reset to propagate the OnReset hook's error")
	}
	if state := svc.State(); state != ServiceError {
		t.Fatalf("state after a failing Reset = %s, want %s", state, ServiceError)
	}

	shouldFail = false
	if err := svc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if state := svc.State(); state != ServiceNone {
		t.Fatalf("state after a successful Reset = %s, want %s", state, ServiceNone)
	}
}

// TestServiceStopIsIdempotent checks that Stop on an already-stopped service
// is a no-op returning nil, rather than an invalid-transition error.
func TestServiceStopIsIdempotent(t *testing.T) {
	svc := NewBaseService("test", Hooks{})
	if err := svc.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Init(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop() on an already-stopped service: %v, want nil", err)
	}
}
