// Tests for devfilter.go

package sihd_core

import (
	"testing"
	"time"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
	sihd_testutils "github.com/mdufaud/sihd-sub000/testutils"
)

// testFilterTree wires an "io" device exposing "in"/"out" channels and a
// DevFilter under one root, so rules can reference them by absolute path.
func testFilterTree(t *testing.T, clock sihd_util.Clock) (root *sihd_util.Node, io *Device, in, out *Channel, filter *DevFilter) {
	t.Helper()
	root = sihd_util.NewNode("root", nil)

	io = NewDevice("io", clock, DeviceHooks{})
	var err error
	in, err = io.AddChannel("in", sihd_util.TypeInt32, 1)
	if err != nil {
		t.Fatal(err)
	}
	out, err = io.AddChannel("out", sihd_util.TypeInt32, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := root.AddChild("io", io); err != nil {
		t.Fatal(err)
	}

	filter = NewDevFilter("filter", clock)
	if err := root.AddChild("filter", filter); err != nil {
		t.Fatal(err)
	}
	return
}

func TestDevFilterImmediateWrite(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	clock := sihd_util.NewSteadyClock()
	root, _, in, out, filter := testFilterTree(t, clock)

	if err := filter.AddEqualRule("in=/io/in;out=/io/out;trigger=0:42;write=0:1"); err != nil {
		t.Fatal(err)
	}
	if err := filter.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Init(); err != nil {
		t.Fatal(err)
	}
	if err := root.Resolve(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Start(); err != nil {
		t.Fatal(err)
	}
	defer filter.Stop()

	if err := in.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 41)); err != nil {
		t.Fatal(err)
	}
	if v, err := out.Read(0); err != nil || v.AsInt64() == 1 {
		t.Fatalf("want no write on a non-matching trigger, got %v / %v", v, err)
	}

	if err := in.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 42)); err != nil {
		t.Fatal(err)
	}
	v, err := out.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt64() != 1 {
		t.Fatalf("want the matching trigger to write 1, got %d", v.AsInt64())
	}
}

func TestDevFilterBitAndRule(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	clock := sihd_util.NewSteadyClock()
	root, _, in, out, filter := testFilterTree(t, clock)

	if err := filter.AddBitAndRule("in=/io/in;out=/io/out;trigger=0:1;write=0:1"); err != nil {
		t.Fatal(err)
	}
	if err := filter.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Init(); err != nil {
		t.Fatal(err)
	}
	if err := root.Resolve(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Start(); err != nil {
		t.Fatal(err)
	}
	defer filter.Stop()

	if err := in.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 2)); err != nil {
		t.Fatal(err)
	}
	if v, _ := out.Read(0); v.AsInt64() == 1 {
		t.Fatal("want an even value to not satisfy the bit_and-1 trigger")
	}

	if err := in.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 3)); err != nil {
		t.Fatal(err)
	}
	if v, _ := out.Read(0); v.AsInt64() != 1 {
		t.Fatal("want an odd value to satisfy the bit_and-1 trigger")
	}
}

func TestDevFilterDelayedWrite(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	clock := sihd_util.NewSteadyClock()
	root, _, in, out, filter := testFilterTree(t, clock)

	if err := filter.AddEqualRule("in=/io/in;out=/io/out;trigger=0:42;write=0:1;delay=0.05"); err != nil {
		t.Fatal(err)
	}
	if err := filter.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Init(); err != nil {
		t.Fatal(err)
	}
	if err := root.Resolve(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Start(); err != nil {
		t.Fatal(err)
	}
	defer filter.Stop()

	if err := in.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 42)); err != nil {
		t.Fatal(err)
	}
	if v, _ := out.Read(0); v.AsInt64() == 1 {
		t.Fatal("want the delayed write to not have happened yet")
	}

	time.Sleep(150 * time.Millisecond)
	v, err := out.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt64() != 1 {
		t.Fatal("want the delayed write to have happened by now")
	}
}

func TestDevFilterRejectsSameInOutChannel(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	clock := sihd_util.NewSteadyClock()
	root, _, _, _, filter := testFilterTree(t, clock)

	if err := filter.AddEqualRule("in=/io/in;out=/io/in;trigger=0:1"); err != nil {
		t.Fatal(err)
	}
	if err := filter.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := filter.Init(); err != nil {
		t.Fatal(err)
	}
	_ = root.Resolve()
	if err := filter.Start(); err == nil {
		t.Fatal("want Start to reject a rule with identical input and output channels")
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	rule, err := ParseRule(MatchGreaterEq, "in=/a;out=/b;trigger=1:3.5;write=2:7;match=false;delay=0.25")
	if err != nil {
		t.Fatal(err)
	}
	str := rule.String()
	again, err := ParseRule(rule.Op, str)
	if err != nil {
		t.Fatalf("round-trip parse of %q failed: %v", str, err)
	}
	if again.String() != str {
		t.Fatalf("round-trip not stable: %q != %q", again.String(), str)
	}
}
