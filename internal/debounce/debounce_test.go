package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleCoalescesBursts(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		d.Schedule("tenant-1", "ticket-1", 30*time.Millisecond, func() {
			fired.Add(1)
		})
	}
	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", got)
	}
	if d.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", d.Pending())
	}
}

func TestScheduleIsPerTicket(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var fired atomic.Int32
	d.Schedule("tenant-1", "ticket-1", 20*time.Millisecond, func() { fired.Add(1) })
	d.Schedule("tenant-1", "ticket-2", 20*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Fatalf("expected 2 executions across tickets, got %d", got)
	}
}

func TestCancelStopsPendingAction(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var fired atomic.Int32
	d.Schedule("tenant-1", "ticket-1", 30*time.Millisecond, func() { fired.Add(1) })
	d.Cancel("ticket-1")
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("expected cancelled action not to fire, got %d", got)
	}
}

func TestCancelTenantDropsOnlyThatTenant(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var fired atomic.Int32
	d.Schedule("tenant-1", "ticket-1", 30*time.Millisecond, func() { fired.Add(1) })
	d.Schedule("tenant-1", "ticket-2", 30*time.Millisecond, func() { fired.Add(1) })
	d.Schedule("tenant-2", "ticket-3", 30*time.Millisecond, func() { fired.Add(1) })
	d.CancelTenant("tenant-1")
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected only tenant-2 action to fire, got %d", got)
	}
}
