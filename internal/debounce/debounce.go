// Package debounce coalesces bursts of automated outbound sends. One timer
// is kept per ticket; rescheduling replaces the pending timer, so rapid
// inbound bursts produce a single menu prompt instead of one per message.
package debounce

import (
	"sync"
	"time"
)

type entry struct {
	tenantID string
	timer    *time.Timer
}

// Dispatcher schedules at most one pending action per ticket id.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]*entry
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{pending: map[string]*entry{}}
}

// Schedule queues action to run after delay. A previous pending action for
// the same ticket id is cancelled and replaced.
func (d *Dispatcher) Schedule(tenantID, ticketID string, delay time.Duration, action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.pending[ticketID]; ok {
		prev.timer.Stop()
	}
	e := &entry{tenantID: tenantID}
	e.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if current, ok := d.pending[ticketID]; !ok || current != e {
			// Replaced or cancelled after firing was already queued.
			d.mu.Unlock()
			return
		}
		delete(d.pending, ticketID)
		d.mu.Unlock()
		action()
	})
	d.pending[ticketID] = e
}

// Cancel drops the pending action for one ticket, if any.
func (d *Dispatcher) Cancel(ticketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[ticketID]; ok {
		e.timer.Stop()
		delete(d.pending, ticketID)
	}
}

// CancelTenant drops every pending action belonging to the tenant. Called on
// logout so delayed sends never fire on a dead session.
func (d *Dispatcher) CancelTenant(tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, e := range d.pending {
		if e.tenantID == tenantID {
			e.timer.Stop()
			delete(d.pending, id)
		}
	}
}

// Pending returns the number of scheduled actions.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
