package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"postqueue/internal/clients/remote"
	"postqueue/internal/observability"
)

func TestSweepTransitionsDueRecords(t *testing.T) {
	s, rem, _ := newTestStore(t)
	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()
	rem.listPosts = []remote.Post{
		{ID: "p-1", ProductDescription: "mug", Status: "scheduled", ScheduledAt: &past},
		{ID: "p-2", ProductDescription: "bag", Status: "scheduled", ScheduledAt: &past},
		{ID: "p-3", ProductDescription: "cap", Status: "scheduled", ScheduledAt: &future},
		{ID: "p-4", ProductDescription: "pen", Status: "scheduled", ScheduledAt: &past},
	}
	rem.statuses = map[string]string{
		"p-1": "posted",
		"p-2": "failed",
		// p-4 has no outcome yet and must stay scheduled.
	}
	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	changed, err := s.sweepDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweepDue() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("sweepDue() changed = %d, want 2", changed)
	}

	cases := map[string]Status{
		"p-1": StatusPosted,
		"p-2": StatusFailed,
		"p-3": StatusScheduled,
		"p-4": StatusScheduled,
	}
	for id, want := range cases {
		rec, _ := s.Get(id)
		if rec.Status != want {
			t.Errorf("%s status = %s, want %s", id, rec.Status, want)
		}
	}

	// Terminal records never move again, even if the remote keeps
	// reporting an outcome for them.
	changed, err = s.sweepDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("second sweepDue() error = %v", err)
	}
	if changed != 0 {
		t.Errorf("second sweepDue() changed = %d, want 0", changed)
	}
	rec, _ := s.Get("p-1")
	if rec.Status != StatusPosted {
		t.Errorf("p-1 left terminal state: %s", rec.Status)
	}
}

func TestSweepNoDueRecordsSkipsRemote(t *testing.T) {
	s, rem, _ := newTestStore(t)
	future := time.Now().Add(time.Hour).UnixMilli()
	rem.listPosts = []remote.Post{
		{ID: "p-1", ProductDescription: "mug", Status: "scheduled", ScheduledAt: &future},
	}
	rem.statusErr = errors.New("must not be called")
	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	changed, err := s.sweepDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweepDue() error = %v", err)
	}
	if changed != 0 {
		t.Errorf("sweepDue() changed = %d, want 0", changed)
	}
}

func TestSweeperStartStop(t *testing.T) {
	s, rem, _ := newTestStore(t)
	past := time.Now().Add(-time.Minute).UnixMilli()
	rem.listPosts = []remote.Post{
		{ID: "p-1", ProductDescription: "mug", Status: "scheduled", ScheduledAt: &past},
	}
	rem.statuses = map[string]string{"p-1": "posted"}
	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	events, cancel := subscribeEvents(t, s)
	defer cancel()

	sweeper := NewSweeper(s, observability.NewLogger(), time.Hour)
	done := make(chan struct{})
	go func() {
		sweeper.Start(context.Background())
		close(done)
	}()

	// The initial sweep runs before the first tick.
	waitForEvent(t, events, func(ev Event) bool { return ev.Op == OpSweep })
	rec, _ := s.Get("p-1")
	if rec.Status != StatusPosted {
		t.Errorf("p-1 status = %s, want posted", rec.Status)
	}

	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
