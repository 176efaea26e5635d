// Tests for channel.go

package sihd_core

import (
	"testing"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
	sihd_testutils "github.com/mdufaud/sihd-sub000/testutils"
)

func testChannelNew(t *testing.T, elemType sihd_util.Type, size int) *Channel {
	t.Helper()
	ch, err := NewChannel("c", sihd_util.NewSteadyClock(), elemType, size)
	if err != nil {
		t.Fatal(err)
	}
	return ch
}

func TestChannelWriteAtNotifiesObservers(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	ch := testChannelNew(t, sihd_util.TypeInt32, 2)

	var got sihd_util.Value
	var calls int
	h := HandlerFunc(func(c *Channel) {
		calls++
		got, _ = c.Read(0)
	})
	ch.AddObserver(h)

	if err := ch.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 7)); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("want 1 notification, got %d", calls)
	}
	if got.AsInt64() != 7 {
		t.Fatalf("want observed value 7, got %d", got.AsInt64())
	}
}

func TestChannelWriteOnChangeSuppressesDuplicate(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	ch := testChannelNew(t, sihd_util.TypeInt32, 1)
	ch.SetWriteOnChange(true)

	var calls int
	ch.AddObserver(HandlerFunc(func(c *Channel) { calls++ }))

	val := sihd_util.Int64Value(sihd_util.TypeInt32, 3)
	if err := ch.WriteAt(0, val); err != nil {
		t.Fatal(err)
	}
	if err := ch.WriteAt(0, val); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("want write-on-change to suppress the duplicate write, got %d notifications", calls)
	}

	if err := ch.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, 4)); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("want a changed value to still notify, got %d notifications", calls)
	}
}

func TestChannelRemoveObserverDuringNotification(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	ch := testChannelNew(t, sihd_util.TypeInt32, 1)

	var firstCalls, secondCalls int
	// Removal compares handlers with ==, so the self-removing observer is
	// registered through a pointer (a bare HandlerFunc is not comparable).
	var first Handler
	firstFn := HandlerFunc(func(c *Channel) {
		firstCalls++
		c.RemoveObserverInsideNotification(first)
	})
	first = &firstFn
	second := HandlerFunc(func(c *Channel) { secondCalls++ })

	ch.AddObserver(first)
	ch.AddObserver(second)

	for i := 0; i < 3; i++ {
		if err := ch.WriteAt(0, sihd_util.Int64Value(sihd_util.TypeInt32, int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	if firstCalls != 1 {
		t.Fatalf("want the self-removing observer to fire exactly once, got %d", firstCalls)
	}
	if secondCalls != 3 {
		t.Fatalf("want the other observer unaffected, got %d calls", secondCalls)
	}
}

func TestChannelWriteTypeMismatchRejected(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	ch := testChannelNew(t, sihd_util.TypeInt32, 2)
	other, err := sihd_util.NewArray(sihd_util.TypeInt64, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Write(other.View()); err == nil {
		t.Fatal("want a type-mismatched Write to be rejected")
	}
}

func TestChannelWriteAtOutOfRange(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, sihd_util.RootLogger, nil)
	defer tlc.RestoreLog()

	ch := testChannelNew(t, sihd_util.TypeInt32, 1)
	if err := ch.WriteAt(5, sihd_util.Int64Value(sihd_util.TypeInt32, 1)); err == nil {
		t.Fatal("want an out-of-range index to be rejected")
	}
}
