package store

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusDraft, true},
		{StatusDraft, StatusScheduled, true},
		{StatusDraft, StatusPosted, false},
		{StatusDraft, StatusFailed, false},
		{StatusScheduled, StatusDraft, true},
		{StatusScheduled, StatusPosted, true},
		{StatusScheduled, StatusFailed, true},
		{StatusPosted, StatusDraft, false},
		{StatusPosted, StatusScheduled, false},
		{StatusPosted, StatusPosted, true},
		{StatusFailed, StatusDraft, false},
		{StatusFailed, StatusScheduled, false},
		{StatusFailed, StatusFailed, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	at := int64(1700000000000)
	cases := []struct {
		name        string
		remote      string
		scheduledAt *int64
		want        Status
	}{
		{"scheduled with time", "scheduled", &at, StatusScheduled},
		{"scheduled without time", "scheduled", nil, StatusDraft},
		{"posted", "posted", nil, StatusPosted},
		{"published alias", "published", &at, StatusPosted},
		{"failed", "failed", &at, StatusFailed},
		{"unknown", "archived", &at, StatusDraft},
		{"empty", "", nil, StatusDraft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.remote, tc.scheduledAt); got != tc.want {
				t.Errorf("DeriveStatus(%q) = %s, want %s", tc.remote, got, tc.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	at := int64(42)
	rec := Record{
		ID:          "p-1",
		ScheduledAt: &at,
		Platforms:   []Platform{PlatformFacebook},
		Activity:    []ActivityEntry{{At: 1, Text: "created"}},
	}
	cp := rec.clone()

	*cp.ScheduledAt = 99
	cp.Platforms[0] = PlatformReddit
	cp.Activity[0].Text = "mutated"

	if *rec.ScheduledAt != 42 {
		t.Errorf("clone shares ScheduledAt pointer")
	}
	if rec.Platforms[0] != PlatformFacebook {
		t.Errorf("clone shares Platforms backing array")
	}
	if rec.Activity[0].Text != "created" {
		t.Errorf("clone shares Activity backing array")
	}
}
