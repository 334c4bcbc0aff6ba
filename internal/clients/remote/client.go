package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"postqueue/internal/observability"
)

// Post is the wire representation of a campaign record on the remote
// campaign service. The service is the authoritative owner of persisted
// state; this client never caches.
type Post struct {
	ID                 string   `json:"id"`
	BatchID            string   `json:"batch_id,omitempty"`
	CampaignName       string   `json:"campaign_name,omitempty"`
	ProductDescription string   `json:"product_description"`
	GeneratedContent   string   `json:"generated_content,omitempty"`
	ImageURL           string   `json:"image_url,omitempty"`
	ScheduledAt        *int64   `json:"scheduled_at,omitempty"`
	Status             string   `json:"status,omitempty"`
	Platforms          []string `json:"platforms,omitempty"`
	Subreddit          string   `json:"subreddit,omitempty"`
	CreatedAt          int64    `json:"created_at,omitempty"`
}

// CreatePostParams represents parameters for creating a post
type CreatePostParams struct {
	BatchID            string   `json:"batch_id,omitempty"`
	CampaignName       string   `json:"campaign_name,omitempty"`
	ProductDescription string   `json:"product_description"`
	GeneratedContent   string   `json:"generated_content,omitempty"`
	ImageURL           string   `json:"image_url,omitempty"`
	ScheduledAt        *int64   `json:"scheduled_at,omitempty"`
	Status             string   `json:"status,omitempty"`
	Platforms          []string `json:"platforms,omitempty"`
	Subreddit          string   `json:"subreddit,omitempty"`
}

// UpdatePostParams represents parameters for a partial post update
type UpdatePostParams struct {
	CampaignName     *string  `json:"campaign_name,omitempty"`
	GeneratedContent *string  `json:"generated_content,omitempty"`
	ImageURL         *string  `json:"image_url,omitempty"`
	ScheduledAt      *int64   `json:"scheduled_at,omitempty"`
	Status           *string  `json:"status,omitempty"`
	Platforms        []string `json:"platforms,omitempty"`
	Subreddit        *string  `json:"subreddit,omitempty"`
}

// GenerateBatchParams represents parameters for the batch-generation
// endpoint. A set BatchID reuses an existing batch instead of opening a
// new one (used when regenerating a single post).
type GenerateBatchParams struct {
	Description   string `json:"description"`
	TotalDays     int    `json:"total_days"`
	TotalPosts    int    `json:"total_posts"`
	ImageProvider string `json:"image_provider,omitempty"`
	BatchID       string `json:"batch_id,omitempty"`
}

// BatchItem is one per-item result of a batch generation. Error is
// non-empty when generation of that item failed server-side.
type BatchItem struct {
	Post  Post   `json:"post"`
	Error string `json:"error,omitempty"`
}

// GenerateBatchResult is the response of the batch-generation endpoint
type GenerateBatchResult struct {
	BatchID string      `json:"batch_id"`
	Items   []BatchItem `json:"items"`
}

// CalendarEntryParams represents parameters for creating a calendar entry
// on the remote service
type CalendarEntryParams struct {
	PostID       string `json:"post_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ScheduledAt  int64  `json:"scheduled_at"`
}

// CalendarEntry is a created remote calendar entry
type CalendarEntry struct {
	ID string `json:"id"`
}

// Connectivity reports whether the third-party integrations are authorized
type Connectivity struct {
	DriveConnected    bool `json:"drive_connected"`
	CalendarConnected bool `json:"calendar_connected"`
}

// Client is an HTTP client for the remote campaign service. All calls are
// request/response with JSON bodies; there is no streaming channel.
type Client struct {
	baseURL    string
	apiKey     string
	logger     *observability.Logger
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, logger *observability.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ListPosts fetches up to limit posts, most recent first.
func (c *Client) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	var result struct {
		Posts []Post `json:"posts"`
	}
	path := "/v1/posts?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return result.Posts, nil
}

// CreatePost persists a new post and returns it with the server-assigned id.
func (c *Client) CreatePost(ctx context.Context, params CreatePostParams) (Post, error) {
	var post Post
	if err := c.doJSON(ctx, http.MethodPost, "/v1/posts", params, &post); err != nil {
		return Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

// UpdatePost applies a partial update to a post.
func (c *Client) UpdatePost(ctx context.Context, id string, params UpdatePostParams) (Post, error) {
	var post Post
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/posts/"+url.PathEscape(id), params, &post); err != nil {
		return Post{}, fmt.Errorf("failed to update post: %w", err)
	}
	return post, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/posts/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ClearPosts wipes all posts.
func (c *Client) ClearPosts(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/posts", nil, nil); err != nil {
		return fmt.Errorf("failed to clear posts: %w", err)
	}
	return nil
}

// GenerateBatch requests server-side generation of a batch of posts.
func (c *Client) GenerateBatch(ctx context.Context, params GenerateBatchParams) (GenerateBatchResult, error) {
	var result GenerateBatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/batches/generate", params, &result); err != nil {
		return GenerateBatchResult{}, fmt.Errorf("failed to generate batch: %w", err)
	}
	return result, nil
}

// ScheduleDates asks the service to spread count posts across totalDays
// days, returning one ascending timestamp (epoch ms) per post.
func (c *Client) ScheduleDates(ctx context.Context, count, totalDays int) ([]int64, error) {
	body := map[string]int{"count": count, "total_days": totalDays}
	var result struct {
		Dates []int64 `json:"dates"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/schedule-dates", body, &result); err != nil {
		return nil, fmt.Errorf("failed to get schedule dates: %w", err)
	}
	return result.Dates, nil
}

// PublishStatus reports the delivery outcome for the given post ids.
// The returned map holds "posted" or "failed" per id; ids the service
// has not resolved yet are absent.
func (c *Client) PublishStatus(ctx context.Context, ids []string) (map[string]string, error) {
	body := map[string][]string{"ids": ids}
	var result struct {
		Statuses map[string]string `json:"statuses"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/publish-status", body, &result); err != nil {
		return nil, fmt.Errorf("failed to get publish status: %w", err)
	}
	return result.Statuses, nil
}

// CreateCalendarEntry creates a calendar entry for a scheduled post.
func (c *Client) CreateCalendarEntry(ctx context.Context, params CalendarEntryParams) (CalendarEntry, error) {
	var entry CalendarEntry
	if err := c.doJSON(ctx, http.MethodPost, "/v1/calendar-entries", params, &entry); err != nil {
		return CalendarEntry{}, fmt.Errorf("failed to create calendar entry: %w", err)
	}
	return entry, nil
}

// GetConnectivity reports whether the Drive and Calendar integrations
// are authorized for this account.
func (c *Client) GetConnectivity(ctx context.Context) (Connectivity, error) {
	var conn Connectivity
	if err := c.doJSON(ctx, http.MethodGet, "/v1/connectivity", nil, &conn); err != nil {
		return Connectivity{}, fmt.Errorf("failed to get connectivity: %w", err)
	}
	return conn, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote service returned %d: %s", resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
