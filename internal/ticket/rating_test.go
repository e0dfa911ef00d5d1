package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
)

func TestParseRatingClamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want int
		ok   bool
	}{
		{"0", 1, true},
		{"-5", 1, true},
		{"1", 1, true},
		{"2", 2, true},
		{"3", 3, true},
		{"4", 3, true},
		{"99", 3, true},
		{" 2 ", 2, true},
		{"great", 0, false},
		{"", 0, false},
		{"1.5", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseRating(tc.body)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseRating(%q) = (%d, %v), want (%d, %v)", tc.body, got, ok, tc.want, tc.ok)
		}
	}
}

func TestResolveRatingCompletesDeferredClose(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1", CompletionMessage: "Bye!"},
		map[string]string{
			settings.KeyUserRating: settings.ValueEnabled,
			settings.KeyMsgAuto:    settings.ValueEnabled,
		})
	seeded := seedTicket(t, f,
		Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen},
		Tracking{StartedAt: time.Now(), RatingAt: time.Now()},
	)

	handled, err := f.svc.ResolveRating(context.Background(), seeded, "2")
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("numeric reply on awaiting ticket must be consumed")
	}
	closed, err := f.store.Get(context.Background(), "tenant-1", seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != StatusClosed {
		t.Fatalf("expected closed after rating, got %s", closed.Status)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Rated {
		t.Fatal("rated flag not set")
	}
	if tr.FinishedAt.IsZero() {
		t.Fatal("finished_at not stamped")
	}
}

func TestResolveRatingIgnoresNonNumeric(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"},
		map[string]string{settings.KeyUserRating: settings.ValueEnabled})
	seeded := seedTicket(t, f,
		Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen},
		Tracking{StartedAt: time.Now(), RatingAt: time.Now()},
	)

	handled, err := f.svc.ResolveRating(context.Background(), seeded, "thanks anyway")
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("replies while awaiting rating must not leak to the chatbot")
	}
	still, err := f.store.Get(context.Background(), "tenant-1", seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != StatusOpen {
		t.Fatalf("ticket must keep awaiting, got %s", still.Status)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Rated {
		t.Fatal("non-numeric reply must not record a rating")
	}
}

func TestResolveRatingPassesThroughWhenNotAwaiting(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"}, nil)
	seeded := seedTicket(t, f,
		Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen},
		Tracking{StartedAt: time.Now()},
	)

	handled, err := f.svc.ResolveRating(context.Background(), seeded, "2")
	if err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Fatal("tickets not awaiting a rating must route normally")
	}
}
