package store

import "time"

// Status is the lifecycle state of a campaign record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Posted and Failed are terminal; a scheduled
// record may be unscheduled back to draft. Same-state writes are
// always allowed so partial updates can restate the current status.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusDraft:
		return next == StatusScheduled
	case StatusScheduled:
		return next == StatusDraft || next == StatusPosted || next == StatusFailed
	default:
		return false
	}
}

// IsValidStatus reports whether the value is a known status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPosted, StatusFailed:
		return true
	}
	return false
}

// DeriveStatus maps a remote status string plus the presence of a
// schedule time to the record's lifecycle status. Unknown remote
// statuses fall back to draft.
func DeriveStatus(remoteStatus string, scheduledAt *int64) Status {
	switch remoteStatus {
	case "scheduled":
		if scheduledAt != nil {
			return StatusScheduled
		}
		return StatusDraft
	case "posted", "published":
		return StatusPosted
	case "failed":
		return StatusFailed
	default:
		return StatusDraft
	}
}

// SyncState tracks a record's divergence from the remote service.
type SyncState string

const (
	SyncClean   SyncState = "clean"   // remote confirmed the last local write
	SyncPending SyncState = "pending" // a remote write is outstanding
	SyncFailed  SyncState = "failed"  // the last remote write failed; local state retained
)

// Platform is an external publishing destination.
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformTwitter  Platform = "twitter"
	PlatformReddit   Platform = "reddit"
)

// IsValidPlatform reports whether the value is a known platform.
func IsValidPlatform(p Platform) bool {
	switch p {
	case PlatformFacebook, PlatformTwitter, PlatformReddit:
		return true
	}
	return false
}

// ActivityEntry is one line of a record's history. Entries are appended
// in chronological order and never removed.
type ActivityEntry struct {
	At   int64  `json:"at"`
	Text string `json:"text"`
}

// Record is one campaign record in the in-memory table. The table is a
// session cache; the remote campaign service owns persisted state.
type Record struct {
	ID                 string     `json:"id"`
	BatchID            string     `json:"batch_id,omitempty"`
	CreatedAt          int64      `json:"created_at"`
	CampaignName       string     `json:"campaign_name,omitempty"`
	ProductDescription string     `json:"product_description"`
	GeneratedContent   string     `json:"generated_content,omitempty"`
	ImageURL           string     `json:"image_url,omitempty"`
	ScheduledAt        *int64     `json:"scheduled_at,omitempty"`
	Status             Status     `json:"status"`
	Platforms          []Platform `json:"platforms,omitempty"`
	Subreddit          string     `json:"subreddit,omitempty"`

	// Identifiers attached after successful side-effecting calls to
	// collaborating services.
	DriveFileID           string `json:"drive_file_id,omitempty"`
	DriveImageURL         string `json:"drive_image_url,omitempty"`
	ImageFileID           string `json:"image_file_id,omitempty"`
	CalendarEventID       string `json:"calendar_event_id,omitempty"`
	GoogleCalendarEventID string `json:"google_calendar_event_id,omitempty"`
	GoogleCalendarLink    string `json:"google_calendar_link,omitempty"`

	Activity  []ActivityEntry `json:"activity,omitempty"`
	SyncState SyncState       `json:"sync_state"`
}

// appendActivity adds a history entry at the current time.
func (r *Record) appendActivity(text string) {
	r.Activity = append(r.Activity, ActivityEntry{
		At:   time.Now().UnixMilli(),
		Text: text,
	})
}

// clone returns a deep copy safe to hand to callers outside the store lock.
func (r *Record) clone() Record {
	out := *r
	if r.ScheduledAt != nil {
		at := *r.ScheduledAt
		out.ScheduledAt = &at
	}
	out.Platforms = append([]Platform(nil), r.Platforms...)
	out.Activity = append([]ActivityEntry(nil), r.Activity...)
	return out
}
