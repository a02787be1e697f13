package debounce

import (
	"testing"
	"time"

	"github.com/samsaffron/tonenotes/internal/testutil"
)

func TestBurstSettlesOnceWithLastPayload(t *testing.T) {
	clk := testutil.NewFakeClock()
	var got []int
	d := New(clk, time.Second, func(v int) { got = append(got, v) })

	d.Trigger(1)
	clk.Advance(400 * time.Millisecond)
	d.Trigger(2)
	clk.Advance(400 * time.Millisecond)
	d.Trigger(3)
	if d.State() != Pending {
		t.Fatalf("State() = %v, want pending", d.State())
	}

	clk.Advance(999 * time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("settled early: %v", got)
	}
	clk.Advance(time.Millisecond)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("settled = %v, want [3]", got)
	}
	if d.State() != Idle {
		t.Fatalf("State() = %v, want idle", d.State())
	}
	if clk.Pending() != 0 {
		t.Fatalf("replaced timers still pending: %d", clk.Pending())
	}
}

func TestSettledStateDuringCallback(t *testing.T) {
	clk := testutil.NewFakeClock()
	var d *Debouncer[string]
	var during State
	d = New(clk, time.Second, func(string) { during = d.State() })

	d.Trigger("x")
	clk.Advance(time.Second)
	if during != Settled {
		t.Fatalf("state inside callback = %v, want settled", during)
	}
}

func TestTriggerDuringCallbackStaysPending(t *testing.T) {
	clk := testutil.NewFakeClock()
	var d *Debouncer[int]
	var got []int
	d = New(clk, time.Second, func(v int) {
		got = append(got, v)
		if v == 1 {
			d.Trigger(2)
		}
	})

	d.Trigger(1)
	clk.Advance(time.Second)
	if d.State() != Pending {
		t.Fatalf("State() = %v, want pending after re-trigger", d.State())
	}
	clk.Advance(time.Second)
	if len(got) != 2 || got[1] != 2 {
		t.Fatalf("settled = %v", got)
	}
}

func TestFlushAndCancel(t *testing.T) {
	clk := testutil.NewFakeClock()
	var got []string
	d := New(clk, time.Second, func(v string) { got = append(got, v) })

	if d.Flush() {
		t.Fatal("Flush() on idle debouncer should report false")
	}
	d.Trigger("a")
	if !d.Flush() {
		t.Fatal("Flush() should report a pending payload")
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("settled = %v", got)
	}
	clk.Advance(2 * time.Second)
	if len(got) != 1 {
		t.Fatalf("flushed payload settled twice: %v", got)
	}

	d.Trigger("b")
	if !d.Cancel() {
		t.Fatal("Cancel() should report a pending payload")
	}
	clk.Advance(2 * time.Second)
	if len(got) != 1 {
		t.Fatalf("cancelled payload settled: %v", got)
	}
	if d.Cancel() {
		t.Fatal("second Cancel() should report false")
	}
}
