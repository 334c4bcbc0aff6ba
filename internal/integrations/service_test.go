package integrations

import (
	"context"
	"errors"
	"testing"
	"time"

	"postqueue/internal/clients/drive"
	"postqueue/internal/clients/gcal"
	"postqueue/internal/clients/remote"
	"postqueue/internal/observability"
	"postqueue/internal/store"
)

type fakeRemote struct {
	conn      remote.Connectivity
	connErr   error
	connCalls int

	entryParams []remote.CalendarEntryParams
	entryErr    error
}

func (f *fakeRemote) GetConnectivity(context.Context) (remote.Connectivity, error) {
	f.connCalls++
	if f.connErr != nil {
		return remote.Connectivity{}, f.connErr
	}
	return f.conn, nil
}

func (f *fakeRemote) CreateCalendarEntry(_ context.Context, params remote.CalendarEntryParams) (remote.CalendarEntry, error) {
	f.entryParams = append(f.entryParams, params)
	if f.entryErr != nil {
		return remote.CalendarEntry{}, f.entryErr
	}
	return remote.CalendarEntry{ID: "entry-1"}, nil
}

type fakeDrive struct {
	textCalls []string
	urlCalls  []string
	uploadErr error
}

func (f *fakeDrive) UploadText(_ context.Context, name, _ string) (drive.UploadResult, error) {
	f.textCalls = append(f.textCalls, name)
	if f.uploadErr != nil {
		return drive.UploadResult{}, f.uploadErr
	}
	return drive.UploadResult{FileID: "doc-1", WebViewLink: "https://drive.example.com/doc-1"}, nil
}

func (f *fakeDrive) UploadFromURL(_ context.Context, name, _ string) (drive.UploadResult, error) {
	f.urlCalls = append(f.urlCalls, name)
	if f.uploadErr != nil {
		return drive.UploadResult{}, f.uploadErr
	}
	return drive.UploadResult{FileID: "img-1", WebViewLink: "https://drive.example.com/img-1"}, nil
}

type fakeCalendar struct {
	calls    int
	eventErr error
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _, _ string, _ time.Time) (gcal.Event, error) {
	f.calls++
	if f.eventErr != nil {
		return gcal.Event{}, f.eventErr
	}
	return gcal.Event{EventID: "ev-1", HTMLLink: "https://calendar.example.com/ev-1"}, nil
}

func TestGetStatusCachesConnectivity(t *testing.T) {
	rem := &fakeRemote{conn: remote.Connectivity{DriveConnected: true}}
	svc := NewService(rem, &fakeDrive{}, nil, observability.NewLogger())

	status, err := svc.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !status.DriveConfigured || status.CalendarConfigured {
		t.Errorf("local config = %+v, want drive only", status)
	}
	if !status.Remote.DriveConnected {
		t.Errorf("remote drive not reported connected")
	}

	if _, err := svc.GetStatus(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rem.connCalls != 1 {
		t.Errorf("connectivity calls = %d, want 1 (cached)", rem.connCalls)
	}
}

func TestGetStatusServesStaleOnRemoteFailure(t *testing.T) {
	rem := &fakeRemote{conn: remote.Connectivity{CalendarConnected: true}}
	svc := NewService(rem, nil, nil, observability.NewLogger())

	if _, err := svc.GetStatus(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Expire the cache, then fail the refresh.
	svc.mu.Lock()
	svc.cachedAt = time.Now().Add(-2 * connectivityTTL)
	svc.mu.Unlock()
	rem.connErr = errors.New("remote down")

	status, err := svc.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v, want stale fallback", err)
	}
	if !status.Remote.CalendarConnected {
		t.Errorf("stale connectivity not served")
	}
}

func TestGetStatusFailsWithoutAnyFetch(t *testing.T) {
	rem := &fakeRemote{connErr: errors.New("remote down")}
	svc := NewService(rem, nil, nil, observability.NewLogger())

	if _, err := svc.GetStatus(context.Background()); err == nil {
		t.Fatal("GetStatus() error = nil, want failure with empty cache")
	}
}

func TestUploadPostAssets(t *testing.T) {
	driveClient := &fakeDrive{}
	svc := NewService(&fakeRemote{}, driveClient, nil, observability.NewLogger())

	refs, err := svc.UploadPostAssets(context.Background(), store.Record{
		ID:               "p-1",
		CampaignName:     "Bottles",
		GeneratedContent: "Stay hydrated!",
		ImageURL:         "https://img.example.com/bottle.png",
	})
	if err != nil {
		t.Fatalf("UploadPostAssets() error = %v", err)
	}
	if refs.DriveFileID != "doc-1" || refs.ImageFileID != "img-1" {
		t.Errorf("refs = %+v", refs)
	}
	if refs.DriveImageURL == "" {
		t.Errorf("image web link missing")
	}
	if len(driveClient.textCalls) != 1 || driveClient.textCalls[0] != "Bottles.txt" {
		t.Errorf("text uploads = %v", driveClient.textCalls)
	}
}

func TestUploadPostAssetsSkipsImageWhenAbsent(t *testing.T) {
	driveClient := &fakeDrive{}
	svc := NewService(&fakeRemote{}, driveClient, nil, observability.NewLogger())

	refs, err := svc.UploadPostAssets(context.Background(), store.Record{
		ID:               "p-1",
		GeneratedContent: "No image here",
	})
	if err != nil {
		t.Fatalf("UploadPostAssets() error = %v", err)
	}
	if refs.ImageFileID != "" {
		t.Errorf("image uploaded without a source url")
	}
	if len(driveClient.urlCalls) != 0 {
		t.Errorf("url uploads = %v, want none", driveClient.urlCalls)
	}
	// Unnamed posts fall back to an id-derived file name.
	if driveClient.textCalls[0] != "post-p-1.txt" {
		t.Errorf("text upload name = %q", driveClient.textCalls[0])
	}
}

func TestUploadPostAssetsRequiresDrive(t *testing.T) {
	svc := NewService(&fakeRemote{}, nil, nil, observability.NewLogger())
	_, err := svc.UploadPostAssets(context.Background(), store.Record{ID: "p-1"})
	if !errors.Is(err, ErrDriveNotConfigured) {
		t.Errorf("error = %v, want ErrDriveNotConfigured", err)
	}
}

func TestCreateMirrorEventsRemoteFirst(t *testing.T) {
	rem := &fakeRemote{}
	cal := &fakeCalendar{}
	svc := NewService(rem, nil, cal, observability.NewLogger())
	at := time.Now().Add(24 * time.Hour)

	refs, err := svc.CreateMirrorEvents(context.Background(), store.Record{
		ID:               "p-1",
		CampaignName:     "Bottles",
		GeneratedContent: "Stay hydrated!",
	}, at)
	if err != nil {
		t.Fatalf("CreateMirrorEvents() error = %v", err)
	}
	if refs.RemoteEntryID != "entry-1" || refs.EventID != "ev-1" {
		t.Errorf("refs = %+v", refs)
	}
	if len(rem.entryParams) != 1 || rem.entryParams[0].ScheduledAt != at.UnixMilli() {
		t.Errorf("remote entry params = %+v", rem.entryParams)
	}
}

func TestCreateMirrorEventsKeepsRemoteEntryOnCalendarFailure(t *testing.T) {
	rem := &fakeRemote{}
	cal := &fakeCalendar{eventErr: errors.New("quota exceeded")}
	svc := NewService(rem, nil, cal, observability.NewLogger())

	refs, err := svc.CreateMirrorEvents(context.Background(), store.Record{ID: "p-1"}, time.Now())
	if err == nil {
		t.Fatal("CreateMirrorEvents() error = nil, want calendar failure")
	}
	if refs.RemoteEntryID != "entry-1" {
		t.Errorf("remote entry ref lost on calendar failure: %+v", refs)
	}
}

func TestCreateMirrorEventsSkipsGoogleWhenUnconfigured(t *testing.T) {
	rem := &fakeRemote{}
	svc := NewService(rem, nil, nil, observability.NewLogger())

	refs, err := svc.CreateMirrorEvents(context.Background(), store.Record{ID: "p-1"}, time.Now())
	if err != nil {
		t.Fatalf("CreateMirrorEvents() error = %v", err)
	}
	if refs.EventID != "" {
		t.Errorf("google event created without a configured client")
	}
}
