package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postqueue/internal/batch/processor"
	"postqueue/internal/clients/remote"
	"postqueue/internal/integrations"
	"postqueue/internal/observability"
	"postqueue/internal/store"

	"github.com/gin-gonic/gin"
)

type fakeDeps struct {
	records map[string]store.Record
	order   []string

	// pending mimics posts the remote persisted during generation; a
	// reload moves them into records.
	pending []store.Record

	generateResult remote.GenerateBatchResult
	generateErr    error
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{records: map[string]store.Record{}}
}

func (f *fakeDeps) Reload(context.Context) (store.ReloadResult, error) {
	for _, rec := range f.pending {
		if _, ok := f.records[rec.ID]; !ok {
			f.order = append(f.order, rec.ID)
		}
		f.records[rec.ID] = rec
	}
	f.pending = nil
	return store.ReloadResult{Count: len(f.records)}, nil
}

func (f *fakeDeps) Update(context.Context, string, store.UpdateParams) error { return nil }

func (f *fakeDeps) ApplySchedule(_ context.Context, id string, at int64, platforms []store.Platform, subreddit string) error {
	rec := f.records[id]
	rec.Status = store.StatusScheduled
	rec.ScheduledAt = &at
	f.records[id] = rec
	return nil
}

func (f *fakeDeps) Delete(_ context.Context, id string) error {
	delete(f.records, id)
	return nil
}

func (f *fakeDeps) Get(id string) (store.Record, bool) {
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeDeps) List(batchID string) []store.Record {
	var out []store.Record
	for _, id := range f.order {
		rec, ok := f.records[id]
		if ok && (batchID == "" || rec.BatchID == batchID) {
			out = append(out, rec)
		}
	}
	return out
}

func (f *fakeDeps) GenerateBatch(_ context.Context, params remote.GenerateBatchParams) (remote.GenerateBatchResult, error) {
	if f.generateErr != nil {
		return remote.GenerateBatchResult{}, f.generateErr
	}
	result := f.generateResult
	if params.BatchID != "" {
		result.BatchID = params.BatchID
	}
	for _, item := range result.Items {
		if item.Error != "" {
			continue
		}
		f.pending = append(f.pending, store.Record{
			ID:               item.Post.ID,
			BatchID:          result.BatchID,
			GeneratedContent: item.Post.GeneratedContent,
			Status:           store.StatusDraft,
		})
	}
	return result, nil
}

func (f *fakeDeps) ScheduleDates(_ context.Context, count, _ int) ([]int64, error) {
	dates := make([]int64, count)
	base := time.Now().Add(24 * time.Hour).UnixMilli()
	for i := range dates {
		dates[i] = base + int64(i)
	}
	return dates, nil
}

func (f *fakeDeps) DriveEnabled() bool { return false }

func (f *fakeDeps) UploadPostAssets(context.Context, store.Record) (integrations.AssetRefs, error) {
	return integrations.AssetRefs{}, nil
}

func (f *fakeDeps) CreateMirrorEvents(context.Context, store.Record, time.Time) (integrations.CalendarRefs, error) {
	return integrations.CalendarRefs{RemoteEntryID: "entry-1"}, nil
}

func newTestRouter(f *fakeDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger()
	h := New(processor.NewProcessor(f, f, f, logger), logger)

	router := gin.New()
	router.POST("/api/batches", h.CreateBatch)
	router.POST("/api/batches/:batch_id/schedule", h.ScheduleBatch)
	router.POST("/api/posts/:post_id/replace", h.ReplacePost)
	return router
}

// closeNotifyRecorder adds the http.CloseNotifier implementation that
// gin's Context.Stream requires but httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool { return c.closed }

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(&closeNotifyRecorder{w, make(chan bool, 1)}, req)
	return w
}

func TestCreateBatchStreamsProgressAndDone(t *testing.T) {
	f := newFakeDeps()
	f.generateResult = remote.GenerateBatchResult{
		BatchID: "b1",
		Items: []remote.BatchItem{
			{Post: remote.Post{ID: "p-1", ProductDescription: "eco water bottle", GeneratedContent: "one"}},
			{Post: remote.Post{ID: "p-2", ProductDescription: "eco water bottle", GeneratedContent: "two"}},
		},
	}
	router := newTestRouter(f)

	w := doJSON(t, router, http.MethodPost, "/api/batches", gin.H{
		"description": "eco water bottle for hikers",
		"days":        5,
		"posts":       2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event:progress") {
		t.Errorf("no progress events in stream:\n%s", body)
	}
	if !strings.Contains(body, "event:done") {
		t.Errorf("no done event in stream:\n%s", body)
	}
	if !strings.Contains(body, `"batch_id":"b1"`) {
		t.Errorf("done payload missing batch id:\n%s", body)
	}
	if len(f.List("b1")) != 2 {
		t.Errorf("created records = %d, want 2", len(f.List("b1")))
	}
}

func TestCreateBatchValidationFailureIsErrorEvent(t *testing.T) {
	router := newTestRouter(newFakeDeps())

	w := doJSON(t, router, http.MethodPost, "/api/batches", gin.H{
		"description": "too short",
		"days":        5,
		"posts":       2,
	})
	body := w.Body.String()
	if !strings.Contains(body, "event:error") {
		t.Errorf("no error event in stream:\n%s", body)
	}
	if !strings.Contains(body, "DESCRIPTION_TOO_SHORT") {
		t.Errorf("error event missing code:\n%s", body)
	}
	if strings.Contains(body, "event:done") {
		t.Errorf("done event after failure:\n%s", body)
	}
}

func TestCreateBatchBindingFailureIsJSON400(t *testing.T) {
	router := newTestRouter(newFakeDeps())
	w := doJSON(t, router, http.MethodPost, "/api/batches", gin.H{"days": 5})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestScheduleBatchStream(t *testing.T) {
	f := newFakeDeps()
	f.records["p-1"] = store.Record{ID: "p-1", BatchID: "b1", Status: store.StatusDraft}
	f.order = append(f.order, "p-1")
	router := newTestRouter(f)

	w := doJSON(t, router, http.MethodPost, "/api/batches/b1/schedule", gin.H{
		"platforms": []string{"facebook"},
	})
	body := w.Body.String()
	if !strings.Contains(body, "event:done") {
		t.Fatalf("no done event:\n%s", body)
	}
	if !strings.Contains(body, `"scheduled":1`) {
		t.Errorf("done payload missing count:\n%s", body)
	}
	rec := f.records["p-1"]
	if rec.Status != store.StatusScheduled {
		t.Errorf("p-1 status = %s, want scheduled", rec.Status)
	}
}

func TestReplacePost(t *testing.T) {
	f := newFakeDeps()
	f.records["p-1"] = store.Record{ID: "p-1", BatchID: "b1", ProductDescription: "mug", Status: store.StatusDraft}
	f.order = append(f.order, "p-1")
	f.generateResult = remote.GenerateBatchResult{
		Items: []remote.BatchItem{{Post: remote.Post{ID: "p-2", ProductDescription: "mug", GeneratedContent: "fresh"}}},
	}
	router := newTestRouter(f)

	w := doJSON(t, router, http.MethodPost, "/api/posts/p-1/replace", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["id"] != "p-2" {
		t.Errorf("response id = %q, want p-2: %s", resp["id"], w.Body.String())
	}
	if _, ok := f.records["p-1"]; ok {
		t.Errorf("old post still present")
	}
	if rec, ok := f.records["p-2"]; !ok || rec.BatchID != "b1" {
		t.Errorf("replacement not in original batch: %+v", f.records)
	}
}

func TestReplacePostNotFound(t *testing.T) {
	router := newTestRouter(newFakeDeps())
	w := doJSON(t, router, http.MethodPost, "/api/posts/missing/replace", gin.H{})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
