// Package integrations fronts the third-party services a scheduled post
// fans out to: Google Drive for asset copies, Google Calendar for mirror
// events, and the remote service's own calendar entries.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"postqueue/internal/clients/drive"
	"postqueue/internal/clients/gcal"
	"postqueue/internal/clients/remote"
	"postqueue/internal/observability"
	"postqueue/internal/store"
)

var (
	ErrDriveNotConfigured    = errors.New("drive integration is not configured")
	ErrCalendarNotConfigured = errors.New("calendar integration is not configured")
)

const connectivityTTL = time.Minute

// RemoteAPI is the subset of the remote client the service needs.
type RemoteAPI interface {
	GetConnectivity(ctx context.Context) (remote.Connectivity, error)
	CreateCalendarEntry(ctx context.Context, params remote.CalendarEntryParams) (remote.CalendarEntry, error)
}

// DriveUploader uploads campaign assets.
type DriveUploader interface {
	UploadText(ctx context.Context, name, content string) (drive.UploadResult, error)
	UploadFromURL(ctx context.Context, name, imageURL string) (drive.UploadResult, error)
}

// CalendarWriter creates mirror events.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, title, description string, startAt time.Time) (gcal.Event, error)
}

// Status is the connectivity report served to the UI. Locally configured
// integrations are reported alongside what the remote service says about
// its own side.
type Status struct {
	DriveConfigured    bool                `json:"drive_configured"`
	CalendarConfigured bool                `json:"calendar_configured"`
	Remote             remote.Connectivity `json:"remote"`
}

// AssetRefs are identifiers of the Drive copies made for one post.
type AssetRefs struct {
	DriveFileID   string
	ImageFileID   string
	DriveImageURL string
}

// CalendarRefs are identifiers of the calendar entries made for one post.
type CalendarRefs struct {
	RemoteEntryID string
	EventID       string
	EventLink     string
}

// Service owns the integration clients. Drive and Calendar are optional;
// nil clients mean the integration is not configured and the dependent
// operations are skipped by callers.
type Service struct {
	remote   RemoteAPI
	drive    DriveUploader
	calendar CalendarWriter
	logger   *observability.Logger

	mu          sync.Mutex
	cached      remote.Connectivity
	cachedAt    time.Time
	cacheLoaded bool
}

func NewService(remoteAPI RemoteAPI, driveClient DriveUploader, calendarClient CalendarWriter, logger *observability.Logger) *Service {
	return &Service{
		remote:   remoteAPI,
		drive:    driveClient,
		calendar: calendarClient,
		logger:   logger,
	}
}

func (s *Service) DriveEnabled() bool    { return s.drive != nil }
func (s *Service) CalendarEnabled() bool { return s.calendar != nil }

// GetStatus reports integration connectivity. The remote half is cached
// briefly so status polling does not hammer the remote service; a stale
// value is served when the remote is unreachable but a previous fetch
// succeeded.
func (s *Service) GetStatus(ctx context.Context) (Status, error) {
	status := Status{
		DriveConfigured:    s.DriveEnabled(),
		CalendarConfigured: s.CalendarEnabled(),
	}

	s.mu.Lock()
	if s.cacheLoaded && time.Since(s.cachedAt) < connectivityTTL {
		status.Remote = s.cached
		s.mu.Unlock()
		return status, nil
	}
	s.mu.Unlock()

	conn, err := s.remote.GetConnectivity(ctx)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cacheLoaded {
			s.logger.Error(ctx, "connectivity fetch failed, serving cached status", err)
			status.Remote = s.cached
			return status, nil
		}
		return Status{}, fmt.Errorf("failed to fetch connectivity: %w", err)
	}

	s.mu.Lock()
	s.cached = conn
	s.cachedAt = time.Now()
	s.cacheLoaded = true
	s.mu.Unlock()

	status.Remote = conn
	return status, nil
}

// UploadPostAssets copies a post's generated content and image to Drive.
// The content goes up as a text document; the image is re-fetched from
// its source URL when present.
func (s *Service) UploadPostAssets(ctx context.Context, rec store.Record) (AssetRefs, error) {
	if s.drive == nil {
		return AssetRefs{}, ErrDriveNotConfigured
	}

	name := rec.CampaignName
	if name == "" {
		name = "post-" + rec.ID
	}

	var refs AssetRefs
	doc, err := s.drive.UploadText(ctx, name+".txt", rec.GeneratedContent)
	if err != nil {
		return AssetRefs{}, fmt.Errorf("failed to upload content document: %w", err)
	}
	refs.DriveFileID = doc.FileID

	if rec.ImageURL != "" {
		img, err := s.drive.UploadFromURL(ctx, name+".png", rec.ImageURL)
		if err != nil {
			return AssetRefs{}, fmt.Errorf("failed to upload image: %w", err)
		}
		refs.ImageFileID = img.FileID
		refs.DriveImageURL = img.WebViewLink
	}
	return refs, nil
}

// CreateMirrorEvents records a scheduled post on the remote service's
// calendar and, when configured, on Google Calendar. The remote entry is
// created first; a Google Calendar failure leaves it in place.
func (s *Service) CreateMirrorEvents(ctx context.Context, rec store.Record, at time.Time) (CalendarRefs, error) {
	title := rec.CampaignName
	if title == "" {
		title = "Scheduled post " + rec.ID
	}

	var refs CalendarRefs
	entry, err := s.remote.CreateCalendarEntry(ctx, remote.CalendarEntryParams{
		PostID:      rec.ID,
		Title:       title,
		Description: rec.GeneratedContent,
		ScheduledAt: at.UnixMilli(),
	})
	if err != nil {
		return CalendarRefs{}, fmt.Errorf("failed to create remote calendar entry: %w", err)
	}
	refs.RemoteEntryID = entry.ID

	if s.calendar != nil {
		event, err := s.calendar.CreateEvent(ctx, title, rec.GeneratedContent, at)
		if err != nil {
			return refs, fmt.Errorf("failed to create google calendar event: %w", err)
		}
		refs.EventID = event.EventID
		refs.EventLink = event.HTMLLink
	}
	return refs, nil
}
