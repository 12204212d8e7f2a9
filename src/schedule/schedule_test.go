package schedule

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestManualFiresInOrder(t *testing.T) {
	clock := NewManual()
	var order []string
	clock.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	clock.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	clock.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	clock.Advance(1500 * time.Millisecond)
	if d := cmp.Diff([]string{"a"}, order); d != "" {
		t.Fatalf("unexpected fire order: %s", d)
	}
	clock.Advance(5 * time.Second)
	if d := cmp.Diff([]string{"a", "b", "c"}, order); d != "" {
		t.Fatalf("unexpected fire order: %s", d)
	}
	if clock.Elapsed() != 6500*time.Millisecond {
		t.Fatalf("unexpected elapsed %s", clock.Elapsed())
	}
}

func TestManualChainedTasks(t *testing.T) {
	clock := NewManual()
	fired := 0
	clock.AfterFunc(time.Second, func() {
		fired++
		clock.AfterFunc(time.Second, func() { fired++ })
	})
	clock.Advance(2 * time.Second)
	if fired != 2 {
		t.Fatalf("expected chained task inside the window to fire, fired=%d", fired)
	}
}

func TestStopSemantics(t *testing.T) {
	clock := NewManual()
	fired := false
	task := clock.AfterFunc(time.Second, func() { fired = true })
	if !task.Stop() {
		t.Fatal("first stop should report it prevented the task")
	}
	if task.Stop() {
		t.Fatal("second stop should be a no-op")
	}
	clock.Advance(time.Minute)
	if fired {
		t.Fatal("stopped task fired")
	}

	late := clock.AfterFunc(time.Second, func() {})
	clock.Advance(time.Second)
	if late.Stop() {
		t.Fatal("stopping an already fired task should return false")
	}
}

func TestGroupStopAll(t *testing.T) {
	clock := NewManual()
	var g Group
	fired := 0
	for i := 0; i < 3; i++ {
		g.Add(clock.AfterFunc(time.Duration(i+1)*time.Second, func() { fired++ }))
	}
	g.StopAll()
	if g.Len() != 0 || clock.Pending() != 0 {
		t.Fatalf("expected no pending tasks, group=%d clock=%d", g.Len(), clock.Pending())
	}
	clock.Advance(time.Minute)
	if fired != 0 {
		t.Fatalf("expected nothing to fire, got %d", fired)
	}
}

func TestRealScheduler(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("real timer never fired")
	}
}
