// Package processor implements the batch workflows: generating a batch
// of posts, scheduling a batch across platforms, and replacing a single
// post. Workflows are long-running, report progress, and at most one may
// run at a time.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"postqueue/internal/clients/remote"
	"postqueue/internal/observability"
	"postqueue/internal/store"
)

var (
	ErrBatchInFlight       = errors.New("another batch workflow is already running")
	ErrDescriptionTooShort = errors.New("description must be at least 10 characters")
	ErrInvalidDays         = errors.New("days must be at least 1")
	ErrInvalidPostCount    = errors.New("post count must be between 1 and 20")
	ErrNoPlatforms         = errors.New("at least one platform is required")
	ErrInvalidPlatform     = errors.New("invalid platform")
	ErrSubredditRequired   = errors.New("subreddit is required when posting to reddit")
	ErrBatchEmpty          = errors.New("batch has no schedulable posts")
)

const (
	minDescriptionLen = 10
	maxBatchPosts     = 20

	// Progress weights for the schedule workflow. Planning the dates is
	// cheap; the per-item fan-out dominates.
	planningWeight = 10
	scheduleWeight = 30
	driveWeight    = 40
	calendarWeight = 20
)

// ProgressUpdate is one step of a running workflow.
type ProgressUpdate struct {
	Percent int    `json:"percent"`
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives workflow progress. It is called from the
// workflow goroutine; a nil func disables reporting.
type ProgressFunc func(ProgressUpdate)

// ItemFailure describes one post that failed a workflow step. The
// workflow keeps going; failures are reported in the aggregate result.
type ItemFailure struct {
	PostID  string `json:"post_id,omitempty"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// CreateBatchParams are the inputs to the batch generation workflow.
type CreateBatchParams struct {
	Description   string
	Days          int
	Posts         int
	ImageProvider string
}

// CreateBatchResult summarizes a finished generation workflow.
type CreateBatchResult struct {
	BatchID  string        `json:"batch_id"`
	Created  int           `json:"created"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// ScheduleBatchParams are the inputs to the batch scheduling workflow.
type ScheduleBatchParams struct {
	BatchID   string
	Days      int
	Platforms []store.Platform
	Subreddit string
}

// ScheduleBatchResult summarizes a finished scheduling workflow.
type ScheduleBatchResult struct {
	Scheduled int           `json:"scheduled"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// ReplaceParams are the inputs to the delete-and-replace workflow.
type ReplaceParams struct {
	PostID        string
	ImageProvider string
}

// Processor runs the batch workflows. A mutex serializes them; a second
// caller gets ErrBatchInFlight instead of queueing.
type Processor struct {
	store        CampaignStore
	remote       RemoteAPI
	integrations IntegrationService
	logger       *observability.Logger

	running sync.Mutex
}

func NewProcessor(campaignStore CampaignStore, remoteAPI RemoteAPI, integrationSvc IntegrationService, logger *observability.Logger) *Processor {
	return &Processor{
		store:        campaignStore,
		remote:       remoteAPI,
		integrations: integrationSvc,
		logger:       logger,
	}
}

// CreateBatch asks the remote service to generate a batch of posts. The
// service persists what it generates, so the workflow finishes with a
// reload that pulls the new posts into the store. Per-item generation
// failures are reported in the result; they do not abort the run.
func (p *Processor) CreateBatch(ctx context.Context, params CreateBatchParams, progress ProgressFunc) (CreateBatchResult, error) {
	if !p.running.TryLock() {
		return CreateBatchResult{}, ErrBatchInFlight
	}
	defer p.running.Unlock()

	if len(strings.TrimSpace(params.Description)) < minDescriptionLen {
		return CreateBatchResult{}, ErrDescriptionTooShort
	}
	if params.Days < 1 {
		return CreateBatchResult{}, ErrInvalidDays
	}
	if params.Posts < 1 || params.Posts > maxBatchPosts {
		return CreateBatchResult{}, ErrInvalidPostCount
	}

	report(progress, ProgressUpdate{Percent: 10, Phase: "generating", Message: "generating post content"})

	generated, err := p.remote.GenerateBatch(ctx, remote.GenerateBatchParams{
		Description:   params.Description,
		TotalDays:     params.Days,
		TotalPosts:    params.Posts,
		ImageProvider: params.ImageProvider,
	})
	if err != nil {
		return CreateBatchResult{}, fmt.Errorf("failed to generate batch: %w", err)
	}

	result := CreateBatchResult{BatchID: generated.BatchID}
	for _, item := range generated.Items {
		if item.Error != "" {
			result.Failures = append(result.Failures, ItemFailure{
				Stage:   "generate",
				Message: item.Error,
			})
			continue
		}
		result.Created++
	}

	report(progress, ProgressUpdate{Percent: 70, Phase: "loading", Message: "loading generated posts"})

	if _, err := p.store.Reload(ctx); err != nil {
		return result, fmt.Errorf("failed to load generated batch: %w", err)
	}

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "batch_id", Value: result.BatchID},
		observability.Field{Key: "created", Value: result.Created},
		observability.Field{Key: "failed", Value: len(result.Failures)},
	), "batch generation finished")

	report(progress, ProgressUpdate{Percent: 100, Phase: "done"})
	return result, nil
}

// ScheduleBatch assigns publish dates to every draft post in a batch and
// fans each one out to Drive and the calendars, strictly one post at a
// time and in table order. An item failure is recorded and the workflow
// moves on; only a planning failure aborts the whole run.
func (p *Processor) ScheduleBatch(ctx context.Context, params ScheduleBatchParams, progress ProgressFunc) (ScheduleBatchResult, error) {
	if !p.running.TryLock() {
		return ScheduleBatchResult{}, ErrBatchInFlight
	}
	defer p.running.Unlock()

	if err := validateTargets(params.Platforms, params.Subreddit); err != nil {
		return ScheduleBatchResult{}, err
	}
	days := params.Days
	if days == 0 {
		days = 7
	}
	if days < 1 {
		return ScheduleBatchResult{}, ErrInvalidDays
	}

	var items []store.Record
	for _, rec := range p.store.List(params.BatchID) {
		if rec.Status == store.StatusDraft {
			items = append(items, rec)
		}
	}
	if len(items) == 0 {
		return ScheduleBatchResult{}, ErrBatchEmpty
	}

	report(progress, ProgressUpdate{Percent: 0, Phase: "planning", Message: "requesting schedule dates"})

	dates, err := p.remote.ScheduleDates(ctx, len(items), days)
	if err != nil {
		return ScheduleBatchResult{}, fmt.Errorf("failed to plan schedule dates: %w", err)
	}
	if len(dates) < len(items) {
		return ScheduleBatchResult{}, fmt.Errorf("schedule planning returned %d dates for %d posts", len(dates), len(items))
	}

	report(progress, ProgressUpdate{Percent: planningWeight, Phase: "planning", Message: fmt.Sprintf("scheduling %d posts", len(items))})

	result := ScheduleBatchResult{}
	n := len(items)
	for i, rec := range items {
		at := dates[i]
		itemBase := planningWeight + ((scheduleWeight + driveWeight + calendarWeight) * i / n)

		if err := p.store.ApplySchedule(ctx, rec.ID, at, params.Platforms, params.Subreddit); err != nil {
			result.Failures = append(result.Failures, ItemFailure{
				PostID:  rec.ID,
				Stage:   "schedule",
				Message: err.Error(),
			})
			p.logger.Error(recCtx(ctx, rec.ID), "failed to schedule post, skipping fan-out", err)
			continue
		}
		result.Scheduled++
		report(progress, ProgressUpdate{
			Percent: itemBase + scheduleWeight/n,
			Phase:   "scheduling",
			Message: fmt.Sprintf("scheduled post %d of %d", i+1, n),
		})

		p.uploadAssets(ctx, rec.ID, &result)
		report(progress, ProgressUpdate{
			Percent: itemBase + (scheduleWeight+driveWeight)/n,
			Phase:   "uploading",
			Message: fmt.Sprintf("uploaded assets for post %d of %d", i+1, n),
		})

		p.mirrorCalendars(ctx, rec.ID, time.UnixMilli(at), &result)
		report(progress, ProgressUpdate{
			Percent: planningWeight + ((scheduleWeight + driveWeight + calendarWeight) * (i + 1) / n),
			Phase:   "calendars",
			Message: fmt.Sprintf("finished post %d of %d", i+1, n),
		})
	}

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "batch_id", Value: params.BatchID},
		observability.Field{Key: "scheduled", Value: result.Scheduled},
		observability.Field{Key: "failed", Value: len(result.Failures)},
	), "batch scheduling finished")

	report(progress, ProgressUpdate{Percent: 100, Phase: "done"})
	return result, nil
}

// uploadAssets copies the post's content and image to Drive and attaches
// the resulting ids to the record. A failure is recorded but does not
// stop the item's remaining steps.
func (p *Processor) uploadAssets(ctx context.Context, id string, result *ScheduleBatchResult) {
	if !p.integrations.DriveEnabled() {
		return
	}
	rec, ok := p.store.Get(id)
	if !ok {
		return
	}

	refs, err := p.integrations.UploadPostAssets(ctx, rec)
	if err != nil {
		result.Failures = append(result.Failures, ItemFailure{
			PostID:  id,
			Stage:   "drive",
			Message: err.Error(),
		})
		p.logger.Error(recCtx(ctx, id), "failed to upload post assets", err)
		return
	}

	params := store.UpdateParams{DriveFileID: &refs.DriveFileID}
	if refs.ImageFileID != "" {
		params.ImageFileID = &refs.ImageFileID
		params.DriveImageURL = &refs.DriveImageURL
	}
	if err := p.store.Update(ctx, id, params); err != nil {
		p.logger.Error(recCtx(ctx, id), "failed to attach drive refs", err)
	}
}

// mirrorCalendars records the scheduled post on the remote calendar and
// Google Calendar and attaches the entry ids to the record.
func (p *Processor) mirrorCalendars(ctx context.Context, id string, at time.Time, result *ScheduleBatchResult) {
	rec, ok := p.store.Get(id)
	if !ok {
		return
	}

	refs, err := p.integrations.CreateMirrorEvents(ctx, rec, at)
	if err != nil {
		result.Failures = append(result.Failures, ItemFailure{
			PostID:  id,
			Stage:   "calendar",
			Message: err.Error(),
		})
		p.logger.Error(recCtx(ctx, id), "failed to create calendar entries", err)
	}
	if refs.RemoteEntryID == "" && refs.EventID == "" {
		return
	}

	params := store.UpdateParams{}
	if refs.RemoteEntryID != "" {
		params.CalendarEventID = &refs.RemoteEntryID
	}
	if refs.EventID != "" {
		params.GoogleCalendarEventID = &refs.EventID
		params.GoogleCalendarLink = &refs.EventLink
	}
	if err := p.store.Update(ctx, id, params); err != nil {
		p.logger.Error(recCtx(ctx, id), "failed to attach calendar refs", err)
	}
}

// DeleteAndReplace removes a post and generates a fresh one from the
// same product description under the same batch. If the original was
// scheduled, the replacement takes over its slot and targets. Returns
// the new post's id.
func (p *Processor) DeleteAndReplace(ctx context.Context, params ReplaceParams, progress ProgressFunc) (string, error) {
	if !p.running.TryLock() {
		return "", ErrBatchInFlight
	}
	defer p.running.Unlock()

	rec, ok := p.store.Get(params.PostID)
	if !ok {
		return "", store.ErrRecordNotFound
	}

	report(progress, ProgressUpdate{Percent: 10, Phase: "deleting", Message: "removing post"})
	if err := p.store.Delete(ctx, params.PostID); err != nil {
		return "", fmt.Errorf("failed to delete post: %w", err)
	}

	report(progress, ProgressUpdate{Percent: 30, Phase: "generating", Message: "generating replacement"})
	generated, err := p.remote.GenerateBatch(ctx, remote.GenerateBatchParams{
		Description:   rec.ProductDescription,
		TotalDays:     1,
		TotalPosts:    1,
		ImageProvider: params.ImageProvider,
		BatchID:       rec.BatchID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate replacement: %w", err)
	}
	if len(generated.Items) == 0 {
		return "", errors.New("replacement generation returned no items")
	}
	item := generated.Items[0]
	if item.Error != "" {
		return "", fmt.Errorf("replacement generation failed: %s", item.Error)
	}
	newID := item.Post.ID
	if newID == "" {
		return "", errors.New("replacement generation returned no post id")
	}

	report(progress, ProgressUpdate{Percent: 70, Phase: "loading", Message: "loading replacement"})
	if _, err := p.store.Reload(ctx); err != nil {
		return "", fmt.Errorf("failed to load replacement: %w", err)
	}

	if rec.ScheduledAt != nil {
		report(progress, ProgressUpdate{Percent: 85, Phase: "scheduling", Message: "restoring schedule"})
		if err := p.store.ApplySchedule(ctx, newID, *rec.ScheduledAt, rec.Platforms, rec.Subreddit); err != nil {
			p.logger.Error(recCtx(ctx, newID), "failed to restore schedule on replacement", err)
		}
	}

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "old_post_id", Value: params.PostID},
		observability.Field{Key: "new_post_id", Value: newID},
	), "post replaced")

	report(progress, ProgressUpdate{Percent: 100, Phase: "done"})
	return newID, nil
}

func validateTargets(platforms []store.Platform, subreddit string) error {
	if len(platforms) == 0 {
		return ErrNoPlatforms
	}
	needsSubreddit := false
	for _, pl := range platforms {
		if !store.IsValidPlatform(pl) {
			return fmt.Errorf("%w: %q", ErrInvalidPlatform, pl)
		}
		if pl == store.PlatformReddit {
			needsSubreddit = true
		}
	}
	if needsSubreddit && strings.TrimSpace(subreddit) == "" {
		return ErrSubredditRequired
	}
	return nil
}

func report(progress ProgressFunc, update ProgressUpdate) {
	if progress != nil {
		progress(update)
	}
}

func recCtx(ctx context.Context, id string) context.Context {
	return observability.WithFields(ctx, observability.Field{Key: "record_id", Value: id})
}
