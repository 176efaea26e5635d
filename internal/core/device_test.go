// Tests for device.go

package sihd_core

import (
	"testing"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
	sihd_testutils "github.com/mdufaud/sihd-sub000/testutils"
)

func TestDeviceLifecycleHooksRunInOrder(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	var order []string
	record := func(name string) func(d *Device) error {
		return func(d *Device) error {
			order = append(order, name)
			return nil
		}
	}
	d := NewDevice("dev", sihd_util.NewSteadyClock(), DeviceHooks{
		OnSetup: record("setup"),
		OnInit:  record("init"),
		OnStart: record("start"),
		OnStop:  record("stop"),
	})

	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}

	want := []string{"setup", "init", "start", "stop"}
	if len(order) != len(want) {
		t.Fatalf("want hook order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("want hook order %v, got %v", want, order)
		}
	}
}

func TestDeviceAddAndFindChannel(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	d := NewDevice("dev", sihd_util.NewSteadyClock(), DeviceHooks{})
	ch, err := d.AddChannel("out", sihd_util.TypeInt32, 4)
	if err != nil {
		t.Fatal(err)
	}

	found, err := d.FindChannel("out")
	if err != nil {
		t.Fatal(err)
	}
	if found != ch {
		t.Fatal("FindChannel returned a different channel than AddChannel created")
	}

	if _, err := d.FindChannel("missing"); err == nil {
		t.Fatal("want FindChannel to fail on an unknown name")
	}

	channels := d.Channels()
	if len(channels) != 1 || channels[0] != ch {
		t.Fatalf("want Channels() to report exactly the one added channel, got %v", channels)
	}
}

func TestDeviceFindChannelRejectsNonChannel(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	parent := NewDevice("parent", sihd_util.NewSteadyClock(), DeviceHooks{})
	child := NewDevice("child", sihd_util.NewSteadyClock(), DeviceHooks{})
	if err := parent.AddDevice("child", child); err != nil {
		t.Fatal(err)
	}

	if _, err := parent.FindChannel("child"); err == nil {
		t.Fatal("want FindChannel to reject a non-Channel tree entry")
	}
}
