// Package drive uploads campaign assets to a Google Drive folder using a
// service account.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"postqueue/internal/observability"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// UploadResult identifies a file created in Drive.
type UploadResult struct {
	FileID      string
	WebViewLink string
}

// Client wraps the Drive v3 API for asset uploads.
type Client struct {
	service    *drive.Service
	folderID   string
	logger     *observability.Logger
	httpClient *http.Client
}

// NewClient builds a Drive client from a service-account credentials
// file. folderID is the destination folder; empty means the service
// account's root.
func NewClient(ctx context.Context, credentialsFile, folderID string, logger *observability.Logger) (*Client, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{
		service:  service,
		folderID: folderID,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// UploadText creates a plain-text file with the given content.
func (c *Client) UploadText(ctx context.Context, name, content string) (UploadResult, error) {
	return c.upload(ctx, name, "text/plain", bytes.NewReader([]byte(content)))
}

// UploadFromURL fetches the resource at imageURL and re-uploads it to
// Drive under the given name.
func (c *Client) UploadFromURL(ctx context.Context, name, imageURL string) (UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return c.upload(ctx, name, contentType, resp.Body)
}

func (c *Client) upload(ctx context.Context, name, mimeType string, body io.Reader) (UploadResult, error) {
	meta := &drive.File{Name: name}
	if c.folderID != "" {
		meta.Parents = []string{c.folderID}
	}

	file, err := c.service.Files.Create(meta).
		Media(body).
		Fields("id, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to upload %s: %w", name, err)
	}

	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "drive_file_id", Value: file.Id},
		observability.Field{Key: "mime_type", Value: mimeType},
	), "uploaded file to drive")
	return UploadResult{FileID: file.Id, WebViewLink: file.WebViewLink}, nil
}
