package event

import (
	"testing"
	"time"
)

func TestHubDeliversToMatchingTenant(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	sub := hub.Subscribe("tenant-1")
	defer sub.Close()
	other := hub.Subscribe("tenant-2")
	defer other.Close()

	hub.Publish(Event{TenantID: "tenant-1", Name: NameTicket, Action: ActionUpdate})

	select {
	case evt := <-sub.C:
		if evt.Name != NameTicket {
			t.Fatalf("expected ticket event, got %q", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event for tenant-1")
	}

	select {
	case evt := <-other.C:
		t.Fatalf("tenant-2 should not receive tenant-1 events, got %+v", evt)
	default:
	}
}

func TestHubWildcardSubscription(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	sub := hub.Subscribe("")
	defer sub.Close()

	hub.Publish(Event{TenantID: "tenant-1", Name: NameSession, Action: ActionUpdate})

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscription should receive all tenants")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	sub := hub.Subscribe("tenant-1")
	defer sub.Close()

	for i := 0; i < cap(sub.C)+10; i++ {
		hub.Publish(Event{TenantID: "tenant-1", Name: NameMessage, Action: ActionUpdate})
	}
	if len(sub.C) != cap(sub.C) {
		t.Fatalf("expected full buffer, got %d", len(sub.C))
	}
}

func TestEventInRoom(t *testing.T) {
	t.Parallel()

	evt := Event{Rooms: []string{"open", RoomNotification}}
	if !evt.InRoom("open") {
		t.Fatal("expected event in room open")
	}
	if evt.InRoom("closed") {
		t.Fatal("event should not match room closed")
	}
	if !(Event{}).InRoom("anything") {
		t.Fatal("roomless event should be tenant-wide")
	}
}
