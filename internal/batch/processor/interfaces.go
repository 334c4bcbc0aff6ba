package processor

import (
	"context"
	"time"

	"postqueue/internal/clients/remote"
	"postqueue/internal/integrations"
	"postqueue/internal/store"
)

// CampaignStore is the slice of the store the batch workflow needs.
// Generated posts are persisted remotely, so the workflow ingests them
// with Reload rather than creating records itself. ApplySchedule is the
// synchronous variant of an update; the workflow relies on it to keep
// per-item remote calls in strict order.
type CampaignStore interface {
	Reload(ctx context.Context) (store.ReloadResult, error)
	Update(ctx context.Context, id string, params store.UpdateParams) error
	ApplySchedule(ctx context.Context, id string, scheduledAt int64, platforms []store.Platform, subreddit string) error
	Delete(ctx context.Context, id string) error
	Get(id string) (store.Record, bool)
	List(batchID string) []store.Record
}

// RemoteAPI is the slice of the remote client the batch workflow needs.
type RemoteAPI interface {
	GenerateBatch(ctx context.Context, params remote.GenerateBatchParams) (remote.GenerateBatchResult, error)
	ScheduleDates(ctx context.Context, count, totalDays int) ([]int64, error)
}

// IntegrationService fans a scheduled post out to Drive and the calendars.
type IntegrationService interface {
	DriveEnabled() bool
	UploadPostAssets(ctx context.Context, rec store.Record) (integrations.AssetRefs, error)
	CreateMirrorEvents(ctx context.Context, rec store.Record, at time.Time) (integrations.CalendarRefs, error)
}
