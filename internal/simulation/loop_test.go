package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsAtLeastOneTurn(t *testing.T) {
	var turns int32
	loop := NewLoop(60, func() bool {
		atomic.AddInt32(&turns, 1)
		return true
	})
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	time.Sleep(55 * time.Millisecond)
	cancel()
	loop.Stop()
	if atomic.LoadInt32(&turns) == 0 {
		t.Fatalf("expected loop to resolve at least one turn")
	}
}

func TestLoopInterval(t *testing.T) {
	loop := NewLoop(120, nil)
	if loop.Interval() != time.Second/120 || loop.Headless() {
		t.Fatalf("unexpected interval %v", loop.Interval())
	}
	if !NewLoop(0, nil).Headless() {
		t.Fatalf("expected a zero rate to run headless")
	}
}

func TestHeadlessLoopStopsWhenTurnsEnd(t *testing.T) {
	monitor := NewTickMonitor()
	remaining := 50
	clock := time.Unix(0, 0)
	loop := NewLoop(0, func() bool {
		remaining--
		return remaining > 0
	}, WithMonitor(monitor), WithClock(func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}))

	loop.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected every turn to run, %d left", remaining)
	}
	//1.- Every turn took exactly one tick of the fake clock.
	snapshot := monitor.Snapshot()
	if snapshot.Samples != 50 || snapshot.Average != time.Millisecond || snapshot.P95 != time.Millisecond {
		t.Fatalf("unexpected turn metrics %+v", snapshot)
	}
	loop.Stop()
}

func TestTickMonitorTracksWindow(t *testing.T) {
	monitor := NewTickMonitor()
	for i := 1; i <= recentWindow+10; i++ {
		monitor.Observe(time.Duration(i) * time.Microsecond)
	}
	monitor.Observe(0)
	snapshot := monitor.Snapshot()
	if snapshot.Samples != recentWindow+10 || snapshot.Max != time.Duration(recentWindow+10)*time.Microsecond {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.P95 < 11*time.Microsecond || snapshot.P95 > snapshot.Max {
		t.Fatalf("expected p95 within the recent window, got %v", snapshot.P95)
	}
	if snapshot.TurnsPerSecond() <= 0 {
		t.Fatalf("expected a positive turn rate")
	}
	monitor.Reset()
	if monitor.Snapshot().Samples != 0 {
		t.Fatalf("expected reset to clear samples")
	}
}
