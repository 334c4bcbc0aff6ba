// Package handler exposes campaign record operations over HTTP.
package handler

import (
	"errors"
	"net/http"

	"postqueue/internal/apierrors"
	"postqueue/internal/campaign/processor"
	"postqueue/internal/observability"
	"postqueue/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler handles campaign record HTTP requests
type Handler struct {
	processor *processor.Processor
	logger    *observability.Logger
}

func New(p *processor.Processor, logger *observability.Logger) *Handler {
	return &Handler{processor: p, logger: logger}
}

type createRecordRequest struct {
	CampaignName       string   `json:"campaign_name"`
	ProductDescription string   `json:"product_description" binding:"required"`
	GeneratedContent   string   `json:"generated_content"`
	ImageURL           string   `json:"image_url"`
	ScheduledAt        *int64   `json:"scheduled_at"`
	Status             string   `json:"status"`
	BatchID            string   `json:"batch_id"`
	Platforms          []string `json:"platforms"`
	Subreddit          string   `json:"subreddit"`
}

type updateRecordRequest struct {
	CampaignName     *string  `json:"campaign_name"`
	GeneratedContent *string  `json:"generated_content"`
	ImageURL         *string  `json:"image_url"`
	ScheduledAt      *int64   `json:"scheduled_at"`
	Status           *string  `json:"status"`
	Platforms        []string `json:"platforms"`
	Subreddit        *string  `json:"subreddit"`
}

// ListRecords handles GET /api/posts
func (h *Handler) ListRecords(c *gin.Context) {
	records := h.processor.ListRecords(c.Request.Context(), c.Query("batch_id"))
	c.JSON(http.StatusOK, gin.H{
		"posts": records,
		"count": len(records),
	})
}

// GetRecord handles GET /api/posts/:post_id
func (h *Handler) GetRecord(c *gin.Context) {
	rec, err := h.processor.GetRecord(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CreateRecord handles POST /api/posts
func (h *Handler) CreateRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	platforms := make([]store.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, store.Platform(p))
	}

	id, err := h.processor.CreateRecord(c.Request.Context(), store.CreateParams{
		CampaignName:       req.CampaignName,
		ProductDescription: req.ProductDescription,
		GeneratedContent:   req.GeneratedContent,
		ImageURL:           req.ImageURL,
		ScheduledAt:        req.ScheduledAt,
		Status:             store.Status(req.Status),
		BatchID:            req.BatchID,
		Platforms:          platforms,
		Subreddit:          req.Subreddit,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// UpdateRecord handles PATCH /api/posts/:post_id
func (h *Handler) UpdateRecord(c *gin.Context) {
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	params := store.UpdateParams{
		CampaignName:     req.CampaignName,
		GeneratedContent: req.GeneratedContent,
		ImageURL:         req.ImageURL,
		ScheduledAt:      req.ScheduledAt,
		Subreddit:        req.Subreddit,
	}
	if req.Status != nil {
		status := store.Status(*req.Status)
		params.Status = &status
	}
	if req.Platforms != nil {
		platforms := make([]store.Platform, 0, len(req.Platforms))
		for _, p := range req.Platforms {
			platforms = append(platforms, store.Platform(p))
		}
		params.Platforms = platforms
	}

	rec, err := h.processor.UpdateRecord(c.Request.Context(), c.Param("post_id"), params)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/posts/:post_id
func (h *Handler) DeleteRecord(c *gin.Context) {
	if err := h.processor.DeleteRecord(c.Request.Context(), c.Param("post_id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearRecords handles DELETE /api/posts
func (h *Handler) ClearRecords(c *gin.Context) {
	if err := h.processor.ClearRecords(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReloadRecords handles POST /api/posts/reload
func (h *Handler) ReloadRecords(c *gin.Context) {
	res, err := h.processor.ReloadRecords(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      res.Count,
		"from_cache": res.FromCache,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		apierrors.NotFound(c, "post not found")
	case errors.Is(err, store.ErrDuplicateRecord):
		apierrors.Conflict(c, "DUPLICATE_POST", "a post with the same description and content already exists")
	case errors.Is(err, store.ErrDescriptionRequired):
		apierrors.BadRequest(c, "DESCRIPTION_REQUIRED", "product description is required")
	case errors.Is(err, store.ErrInvalidStatus):
		apierrors.BadRequest(c, "INVALID_STATUS", err.Error())
	case errors.Is(err, store.ErrInvalidTransition):
		apierrors.BadRequest(c, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, processor.ErrInvalidPlatform):
		apierrors.BadRequest(c, "INVALID_PLATFORM", err.Error())
	default:
		apierrors.InternalError(c, err)
	}
}
