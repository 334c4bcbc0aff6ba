// Package handler exposes the batch workflows over HTTP. The create and
// schedule workflows stream progress as server-sent events.
package handler

import (
	"errors"
	"io"
	"net/http"

	"postqueue/internal/apierrors"
	"postqueue/internal/batch/processor"
	"postqueue/internal/observability"
	"postqueue/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler handles batch workflow HTTP requests
type Handler struct {
	processor *processor.Processor
	logger    *observability.Logger
}

func New(p *processor.Processor, logger *observability.Logger) *Handler {
	return &Handler{processor: p, logger: logger}
}

type createBatchRequest struct {
	Description   string `json:"description" binding:"required"`
	Days          int    `json:"days" binding:"required"`
	Posts         int    `json:"posts" binding:"required"`
	ImageProvider string `json:"image_provider"`
}

type scheduleBatchRequest struct {
	Days      int      `json:"days"`
	Platforms []string `json:"platforms" binding:"required"`
	Subreddit string   `json:"subreddit"`
}

type replaceRequest struct {
	ImageProvider string `json:"image_provider"`
}

// CreateBatch handles POST /api/batches as an SSE stream.
func (h *Handler) CreateBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	h.streamWorkflow(c, func(progress processor.ProgressFunc) (any, error) {
		return h.processor.CreateBatch(c.Request.Context(), processor.CreateBatchParams{
			Description:   req.Description,
			Days:          req.Days,
			Posts:         req.Posts,
			ImageProvider: req.ImageProvider,
		}, progress)
	})
}

// ScheduleBatch handles POST /api/batches/:batch_id/schedule as an SSE stream.
func (h *Handler) ScheduleBatch(c *gin.Context) {
	var req scheduleBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	platforms := make([]store.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, store.Platform(p))
	}

	h.streamWorkflow(c, func(progress processor.ProgressFunc) (any, error) {
		return h.processor.ScheduleBatch(c.Request.Context(), processor.ScheduleBatchParams{
			BatchID:   c.Param("batch_id"),
			Days:      req.Days,
			Platforms: platforms,
			Subreddit: req.Subreddit,
		}, progress)
	})
}

// ReplacePost handles POST /api/posts/:post_id/replace
func (h *Handler) ReplacePost(c *gin.Context) {
	var req replaceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.ValidationError(c, err)
			return
		}
	}

	newID, err := h.processor.DeleteAndReplace(c.Request.Context(), processor.ReplaceParams{
		PostID:        c.Param("post_id"),
		ImageProvider: req.ImageProvider,
	}, nil)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": newID})
}

// streamWorkflow runs one workflow in the background and streams its
// progress, then a terminal done or error event.
func (h *Handler) streamWorkflow(c *gin.Context, run func(processor.ProgressFunc) (any, error)) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	type outcome struct {
		result any
		err    error
	}
	updates := make(chan processor.ProgressUpdate, 16)
	done := make(chan outcome, 1)

	go func() {
		result, err := run(func(u processor.ProgressUpdate) { updates <- u })
		done <- outcome{result: result, err: err}
		close(updates)
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				// Workflow finished; block on done for the terminal event.
				updates = nil
				return true
			}
			c.SSEvent("progress", u)
			return true
		case out := <-done:
			if updates != nil {
				for u := range updates {
					c.SSEvent("progress", u)
				}
			}
			if out.err != nil {
				h.logger.Error(c.Request.Context(), "batch workflow failed", out.err)
				c.SSEvent("error", gin.H{
					"error": out.err.Error(),
					"code":  workflowErrorCode(out.err),
				})
			} else {
				c.SSEvent("done", out.result)
			}
			return false
		}
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		apierrors.NotFound(c, "post not found")
	case errors.Is(err, processor.ErrBatchInFlight):
		apierrors.Conflict(c, "BATCH_IN_FLIGHT", err.Error())
	default:
		apierrors.InternalError(c, err)
	}
}

func workflowErrorCode(err error) string {
	switch {
	case errors.Is(err, processor.ErrBatchInFlight):
		return "BATCH_IN_FLIGHT"
	case errors.Is(err, processor.ErrDescriptionTooShort):
		return "DESCRIPTION_TOO_SHORT"
	case errors.Is(err, processor.ErrInvalidDays):
		return "INVALID_DAYS"
	case errors.Is(err, processor.ErrInvalidPostCount):
		return "INVALID_POST_COUNT"
	case errors.Is(err, processor.ErrNoPlatforms):
		return "NO_PLATFORMS"
	case errors.Is(err, processor.ErrInvalidPlatform):
		return "INVALID_PLATFORM"
	case errors.Is(err, processor.ErrSubredditRequired):
		return "SUBREDDIT_REQUIRED"
	case errors.Is(err, processor.ErrBatchEmpty):
		return "BATCH_EMPTY"
	default:
		return "WORKFLOW_FAILED"
	}
}
