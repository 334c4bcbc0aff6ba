// Package gcal mirrors scheduled posts as Google Calendar events using a
// service account.
package gcal

import (
	"context"
	"fmt"
	"time"

	"postqueue/internal/observability"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Event identifies a created calendar event.
type Event struct {
	EventID  string
	HTMLLink string
}

// Client wraps the Calendar v3 API.
type Client struct {
	service    *calendar.Service
	calendarID string
	logger     *observability.Logger
}

// NewClient builds a Calendar client from a service-account credentials
// file. calendarID is typically "primary".
func NewClient(ctx context.Context, credentialsFile, calendarID string, logger *observability.Logger) (*Client, error) {
	service, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{
		service:    service,
		calendarID: calendarID,
		logger:     logger,
	}, nil
}

// CreateEvent inserts a half-hour event starting at the given time.
func (c *Client) CreateEvent(ctx context.Context, title, description string, startAt time.Time) (Event, error) {
	event := &calendar.Event{
		Summary:     title,
		Description: description,
		Start: &calendar.EventDateTime{
			DateTime: startAt.Format(time.RFC3339),
		},
		End: &calendar.EventDateTime{
			DateTime: startAt.Add(30 * time.Minute).Format(time.RFC3339),
		},
	}

	created, err := c.service.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("failed to create calendar event: %w", err)
	}

	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "calendar_event_id", Value: created.Id},
	), "created calendar event")
	return Event{EventID: created.Id, HTMLLink: created.HtmlLink}, nil
}
