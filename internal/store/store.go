package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"postqueue/internal/clients/remote"
	"postqueue/internal/observability"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrDuplicateRecord     = errors.New("duplicate record")
	ErrDescriptionRequired = errors.New("product description is required")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidTransition   = errors.New("illegal status transition")
)

// RemoteAPI defines the remote campaign service operations required by Store
type RemoteAPI interface {
	ListPosts(ctx context.Context, limit int) ([]remote.Post, error)
	CreatePost(ctx context.Context, params remote.CreatePostParams) (remote.Post, error)
	UpdatePost(ctx context.Context, id string, params remote.UpdatePostParams) (remote.Post, error)
	DeletePost(ctx context.Context, id string) error
	ClearPosts(ctx context.Context) error
	PublishStatus(ctx context.Context, ids []string) (map[string]string, error)
}

// FallbackCache defines the durable local cache operations required by Store
type FallbackCache interface {
	SaveSnapshot(ctx context.Context, records []Record) error
	LoadSnapshot(ctx context.Context) ([]Record, error)
	SaveNames(ctx context.Context, names map[string]string) error
	LoadNames(ctx context.Context) (map[string]string, error)
}

// Op identifies which store operation produced an event.
type Op string

const (
	OpReload Op = "reload"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
	OpSweep  Op = "sweep"
)

// Event is delivered to subscribers after a completed store operation.
// ID is empty for whole-table operations.
type Event struct {
	Op Op
	ID string
}

// Config holds store tuning knobs
type Config struct {
	PageLimit int // maximum records fetched per reload
}

// Store owns the in-memory table of campaign records. The table is the
// session's system of record; the remote service owns persisted state
// and the local copy may be stale until the next successful reload.
// All mutation goes through the exported operations, each of which
// notifies subscribers exactly once.
type Store struct {
	remote RemoteAPI
	cache  FallbackCache
	logger *observability.Logger

	pageLimit int

	mu      sync.Mutex
	records []*Record
	byID    map[string]*Record

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func New(remoteAPI RemoteAPI, cache FallbackCache, logger *observability.Logger, cfg Config) *Store {
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 200
	}
	return &Store{
		remote:    remoteAPI,
		cache:     cache,
		logger:    logger,
		pageLimit: pageLimit,
		byID:      make(map[string]*Record),
		subs:      make(map[int]func(Event)),
	}
}

// Subscribe registers an observer for store events. The returned function
// removes the subscription. Callbacks run outside the store lock, on the
// goroutine that completed the operation.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// ReloadResult describes the outcome of a Reload.
type ReloadResult struct {
	Count     int
	FromCache bool
}

// Reload fetches a bounded page of posts from the remote service and
// replaces the in-memory table wholesale. On success the result is also
// written to the durable fallback cache. On remote failure the most
// recent cached snapshot is restored instead of leaving the table empty.
func (s *Store) Reload(ctx context.Context) (ReloadResult, error) {
	posts, err := s.remote.ListPosts(ctx, s.pageLimit)
	if err != nil {
		s.logger.Error(ctx, "reload from remote failed, restoring fallback cache", err)
		return s.restoreFromCache(ctx, err)
	}

	records := make([]Record, 0, len(posts))
	names := make(map[string]string, len(posts))
	for _, p := range posts {
		rec := recordFromRemote(p)
		records = append(records, rec)
		if rec.CampaignName != "" {
			names[rec.ID] = rec.CampaignName
		}
	}

	s.mu.Lock()
	s.replaceLocked(records)
	s.mu.Unlock()

	if err := s.cache.SaveSnapshot(ctx, records); err != nil {
		s.logger.Error(ctx, "failed to save fallback snapshot", err)
	}
	if err := s.cache.SaveNames(ctx, names); err != nil {
		s.logger.Error(ctx, "failed to save fallback names", err)
	}

	s.notify(Event{Op: OpReload})
	return ReloadResult{Count: len(records)}, nil
}

func (s *Store) restoreFromCache(ctx context.Context, remoteErr error) (ReloadResult, error) {
	cached, err := s.cache.LoadSnapshot(ctx)
	if err != nil {
		return ReloadResult{}, fmt.Errorf("remote reload failed and no fallback cache: %w", remoteErr)
	}

	// Backfill display names for records cached without one.
	if names, err := s.cache.LoadNames(ctx); err == nil {
		for i := range cached {
			if cached[i].CampaignName == "" {
				cached[i].CampaignName = names[cached[i].ID]
			}
		}
	} else {
		s.logger.Error(ctx, "failed to load fallback names", err)
	}

	s.mu.Lock()
	s.replaceLocked(cached)
	s.mu.Unlock()

	s.notify(Event{Op: OpReload})
	s.logger.Info(ctx, fmt.Sprintf("restored %d records from fallback cache", len(cached)))
	return ReloadResult{Count: len(cached), FromCache: true}, nil
}

// replaceLocked swaps the whole table. Caller holds s.mu.
func (s *Store) replaceLocked(records []Record) {
	s.records = s.records[:0]
	s.byID = make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i]
		s.records = append(s.records, &rec)
		s.byID[rec.ID] = &rec
	}
}

func recordFromRemote(p remote.Post) Record {
	platforms := make([]Platform, 0, len(p.Platforms))
	for _, pl := range p.Platforms {
		platforms = append(platforms, Platform(pl))
	}
	return Record{
		ID:                 p.ID,
		BatchID:            p.BatchID,
		CreatedAt:          p.CreatedAt,
		CampaignName:       p.CampaignName,
		ProductDescription: p.ProductDescription,
		GeneratedContent:   p.GeneratedContent,
		ImageURL:           p.ImageURL,
		ScheduledAt:        p.ScheduledAt,
		Status:             DeriveStatus(p.Status, p.ScheduledAt),
		Platforms:          platforms,
		Subreddit:          p.Subreddit,
		SyncState:          SyncClean,
	}
}

// CreateParams represents caller-supplied fields for a new record
type CreateParams struct {
	CampaignName       string
	ProductDescription string
	GeneratedContent   string
	ImageURL           string
	ScheduledAt        *int64
	Status             Status
	BatchID            string
	Platforms          []Platform
	Subreddit          string
}

// Create constructs a record, suppresses duplicates, and persists it to
// the remote service. When the remote persist fails the record is kept
// locally with a pending sync state and one background retry reconciles
// the server-assigned id if it succeeds later. Returns the assigned id
// (temporary or final).
func (s *Store) Create(ctx context.Context, params CreateParams) (string, error) {
	if params.ProductDescription == "" {
		return "", ErrDescriptionRequired
	}

	status := params.Status
	if status == "" {
		status = StatusDraft
		if params.ScheduledAt != nil {
			status = StatusScheduled
		}
	}
	if !IsValidStatus(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, params.Status)
	}

	s.mu.Lock()
	for _, rec := range s.records {
		if rec.ProductDescription == params.ProductDescription &&
			rec.GeneratedContent == params.GeneratedContent {
			s.mu.Unlock()
			return "", ErrDuplicateRecord
		}
	}
	s.mu.Unlock()

	rec := Record{
		ID:                 "local-" + uuid.New().String(),
		BatchID:            params.BatchID,
		CreatedAt:          time.Now().UnixMilli(),
		CampaignName:       params.CampaignName,
		ProductDescription: params.ProductDescription,
		GeneratedContent:   params.GeneratedContent,
		ImageURL:           params.ImageURL,
		ScheduledAt:        params.ScheduledAt,
		Status:             status,
		Platforms:          append([]Platform(nil), params.Platforms...),
		Subreddit:          params.Subreddit,
		SyncState:          SyncClean,
	}

	remoteParams := createParamsToRemote(rec)
	post, err := s.remote.CreatePost(ctx, remoteParams)
	if err == nil {
		rec.ID = post.ID
		rec.appendActivity("created")
	} else {
		s.logger.Error(ctx, "remote create failed, keeping record locally", err)
		rec.SyncState = SyncPending
		rec.appendActivity("created locally; remote sync pending")
	}

	s.mu.Lock()
	recPtr := rec.clone()
	s.records = append(s.records, &recPtr)
	s.byID[recPtr.ID] = &recPtr
	s.mu.Unlock()
	s.notify(Event{Op: OpCreate, ID: rec.ID})

	if rec.SyncState == SyncPending {
		go s.retryCreate(rec.ID, remoteParams)
	}
	return rec.ID, nil
}

// retryCreate is the single best-effort background persist for a record
// that failed its synchronous create. It is detached from the caller's
// context: an issued remote call is never cancelled.
func (s *Store) retryCreate(localID string, params remote.CreatePostParams) {
	ctx := observability.WithFields(context.Background(),
		observability.Field{Key: "record_id", Value: localID},
	)
	post, err := s.remote.CreatePost(ctx, params)

	s.mu.Lock()
	rec, ok := s.byID[localID]
	if !ok {
		// Deleted while the retry was in flight; nothing to reconcile.
		s.mu.Unlock()
		return
	}
	if err != nil {
		rec.SyncState = SyncFailed
		s.mu.Unlock()
		s.logger.Error(ctx, "background create retry failed", err)
		s.notify(Event{Op: OpUpdate, ID: localID})
		return
	}
	delete(s.byID, localID)
	rec.ID = post.ID
	rec.SyncState = SyncClean
	rec.appendActivity("remote sync completed")
	s.byID[rec.ID] = rec
	newID := rec.ID
	s.mu.Unlock()

	s.logger.Info(ctx, "background create retry reconciled record id")
	s.notify(Event{Op: OpUpdate, ID: newID})
}

func createParamsToRemote(rec Record) remote.CreatePostParams {
	platforms := make([]string, 0, len(rec.Platforms))
	for _, p := range rec.Platforms {
		platforms = append(platforms, string(p))
	}
	return remote.CreatePostParams{
		BatchID:            rec.BatchID,
		CampaignName:       rec.CampaignName,
		ProductDescription: rec.ProductDescription,
		GeneratedContent:   rec.GeneratedContent,
		ImageURL:           rec.ImageURL,
		ScheduledAt:        rec.ScheduledAt,
		Status:             string(rec.Status),
		Platforms:          platforms,
		Subreddit:          rec.Subreddit,
	}
}

// UpdateParams represents a partial record update. Nil fields are left
// unchanged.
type UpdateParams struct {
	CampaignName     *string
	GeneratedContent *string
	ImageURL         *string
	ScheduledAt      *int64
	Status           *Status
	Platforms        []Platform
	Subreddit        *string

	DriveFileID           *string
	DriveImageURL         *string
	ImageFileID           *string
	CalendarEventID       *string
	GoogleCalendarEventID *string
	GoogleCalendarLink    *string
}

// remoteSyncNeeded reports whether the update touches fields the remote
// service must see.
func (p UpdateParams) remoteSyncNeeded() bool {
	return p.ScheduledAt != nil || p.Status != nil || p.ImageURL != nil
}

// Update applies the partial fields optimistically and, when schedule,
// status, or image fields changed, mirrors them to the remote service in
// the background. Remote failures are logged and flagged on the record's
// sync state; the optimistic local state is retained.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) error {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrRecordNotFound
	}

	if params.Status != nil {
		if !IsValidStatus(*params.Status) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrInvalidStatus, *params.Status)
		}
		if !rec.Status.CanTransitionTo(*params.Status) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, *params.Status)
		}
	}

	applyUpdateLocked(rec, params)

	needsSync := params.remoteSyncNeeded()
	if needsSync {
		rec.SyncState = SyncPending
	}
	s.mu.Unlock()
	s.notify(Event{Op: OpUpdate, ID: id})

	if needsSync {
		go s.mirrorUpdate(id, updateParamsToRemote(params))
	}
	return nil
}

func applyUpdateLocked(rec *Record, params UpdateParams) {
	if params.CampaignName != nil {
		rec.CampaignName = *params.CampaignName
	}
	if params.GeneratedContent != nil {
		rec.GeneratedContent = *params.GeneratedContent
	}
	if params.ImageURL != nil {
		rec.ImageURL = *params.ImageURL
	}
	if params.ScheduledAt != nil {
		at := *params.ScheduledAt
		rec.ScheduledAt = &at
	}
	if params.Status != nil && *params.Status != rec.Status {
		rec.appendActivity(fmt.Sprintf("status changed from %s to %s", rec.Status, *params.Status))
		rec.Status = *params.Status
	}
	if params.Platforms != nil {
		rec.Platforms = append([]Platform(nil), params.Platforms...)
	}
	if params.Subreddit != nil {
		rec.Subreddit = *params.Subreddit
	}
	if params.DriveFileID != nil {
		rec.DriveFileID = *params.DriveFileID
	}
	if params.DriveImageURL != nil {
		rec.DriveImageURL = *params.DriveImageURL
	}
	if params.ImageFileID != nil {
		rec.ImageFileID = *params.ImageFileID
	}
	if params.CalendarEventID != nil {
		rec.CalendarEventID = *params.CalendarEventID
	}
	if params.GoogleCalendarEventID != nil {
		rec.GoogleCalendarEventID = *params.GoogleCalendarEventID
	}
	if params.GoogleCalendarLink != nil {
		rec.GoogleCalendarLink = *params.GoogleCalendarLink
	}
}

func updateParamsToRemote(params UpdateParams) remote.UpdatePostParams {
	out := remote.UpdatePostParams{
		CampaignName:     params.CampaignName,
		GeneratedContent: params.GeneratedContent,
		ImageURL:         params.ImageURL,
		ScheduledAt:      params.ScheduledAt,
		Subreddit:        params.Subreddit,
	}
	if params.Status != nil {
		status := string(*params.Status)
		out.Status = &status
	}
	if params.Platforms != nil {
		platforms := make([]string, 0, len(params.Platforms))
		for _, p := range params.Platforms {
			platforms = append(platforms, string(p))
		}
		out.Platforms = platforms
	}
	return out
}

// mirrorUpdate pushes an optimistic update to the remote service. Detached
// from the request context by design of the sync policy: failures mark the
// record, they never roll it back.
func (s *Store) mirrorUpdate(id string, params remote.UpdatePostParams) {
	ctx := observability.WithFields(context.Background(),
		observability.Field{Key: "record_id", Value: id},
	)
	_, err := s.remote.UpdatePost(ctx, id, params)

	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if err != nil {
		rec.SyncState = SyncFailed
	} else {
		rec.SyncState = SyncClean
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(ctx, "remote update failed, local state retained", err)
	}
	s.notify(Event{Op: OpUpdate, ID: id})
}

// ApplySchedule assigns a schedule time and platform set to a record and
// mirrors the change to the remote service synchronously. The batch
// workflow uses this so per-item remote calls keep strict order; ad-hoc
// edits go through Update instead.
func (s *Store) ApplySchedule(ctx context.Context, id string, scheduledAt int64, platforms []Platform, subreddit string) error {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrRecordNotFound
	}
	if !rec.Status.CanTransitionTo(StatusScheduled) {
		status := rec.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusScheduled)
	}

	at := scheduledAt
	rec.ScheduledAt = &at
	rec.Status = StatusScheduled
	rec.Platforms = append([]Platform(nil), platforms...)
	rec.Subreddit = subreddit
	rec.SyncState = SyncPending
	rec.appendActivity(fmt.Sprintf("scheduled for %s", time.UnixMilli(at).Format(time.RFC3339)))
	s.mu.Unlock()
	s.notify(Event{Op: OpUpdate, ID: id})

	status := string(StatusScheduled)
	remotePlatforms := make([]string, 0, len(platforms))
	for _, p := range platforms {
		remotePlatforms = append(remotePlatforms, string(p))
	}
	_, err := s.remote.UpdatePost(ctx, id, remote.UpdatePostParams{
		ScheduledAt: &at,
		Status:      &status,
		Platforms:   remotePlatforms,
		Subreddit:   &subreddit,
	})

	s.mu.Lock()
	if rec, ok := s.byID[id]; ok {
		if err != nil {
			rec.SyncState = SyncFailed
		} else {
			rec.SyncState = SyncClean
		}
	}
	s.mu.Unlock()
	s.notify(Event{Op: OpUpdate, ID: id})

	if err != nil {
		return fmt.Errorf("failed to mirror schedule to remote: %w", err)
	}
	return nil
}

// Delete removes the record optimistically and issues a best-effort
// remote delete. A remote failure is logged but does not restore the
// record; the next successful reload reconciles.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrRecordNotFound
	}
	delete(s.byID, id)
	for i, r := range s.records {
		if r == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	name := rec.CampaignName
	s.mu.Unlock()

	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "record_id", Value: id},
		observability.Field{Key: "campaign_name", Value: name},
	), "record deleted")
	s.notify(Event{Op: OpDelete, ID: id})

	go func() {
		bgCtx := observability.WithFields(context.Background(),
			observability.Field{Key: "record_id", Value: id},
		)
		if err := s.remote.DeletePost(bgCtx, id); err != nil {
			s.logger.Error(bgCtx, "remote delete failed, record already removed locally", err)
		}
	}()
	return nil
}

// ClearAll wipes the remote table and, only on remote success, the
// in-memory one.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.remote.ClearPosts(ctx); err != nil {
		return fmt.Errorf("failed to clear remote posts: %w", err)
	}

	s.mu.Lock()
	s.records = s.records[:0]
	s.byID = make(map[string]*Record)
	s.mu.Unlock()

	if err := s.cache.SaveSnapshot(ctx, nil); err != nil {
		s.logger.Error(ctx, "failed to clear fallback snapshot", err)
	}
	s.notify(Event{Op: OpClear})
	return nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// List returns copies of all records in insertion order, optionally
// filtered by batch id.
func (s *Store) List(batchID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if batchID != "" && rec.BatchID != batchID {
			continue
		}
		out = append(out, rec.clone())
	}
	return out
}

// Len returns the number of records in the table.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// sweepDue polls the remote service for the delivery outcome of every
// scheduled record whose time has passed and applies the reported
// terminal status. Returns the number of records transitioned.
func (s *Store) sweepDue(ctx context.Context, now time.Time) (int, error) {
	nowMs := now.UnixMilli()

	s.mu.Lock()
	var due []string
	for _, rec := range s.records {
		if rec.Status == StatusScheduled && rec.ScheduledAt != nil && *rec.ScheduledAt <= nowMs {
			due = append(due, rec.ID)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return 0, nil
	}

	statuses, err := s.remote.PublishStatus(ctx, due)
	if err != nil {
		return 0, fmt.Errorf("failed to poll publish status: %w", err)
	}

	changed := 0
	s.mu.Lock()
	for _, id := range due {
		rec, ok := s.byID[id]
		if !ok || rec.Status != StatusScheduled {
			continue
		}
		switch statuses[id] {
		case "posted", "published":
			rec.Status = StatusPosted
			rec.appendActivity("published")
			changed++
		case "failed":
			rec.Status = StatusFailed
			rec.appendActivity("publish failed")
			changed++
		}
	}
	s.mu.Unlock()

	if changed > 0 {
		s.notify(Event{Op: OpSweep})
	}
	return changed, nil
}
