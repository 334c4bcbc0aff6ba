// Package remotestub is an in-memory stand-in for the remote campaign
// service, used for local development and demos. It speaks the same
// wire contract as internal/clients/remote and simulates publishing
// outcomes for due posts.
package remotestub

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"postqueue/internal/clients/remote"
	"postqueue/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// publishSuccessRate is the fraction of due posts the stub reports as
// delivered; the rest are reported failed.
const publishSuccessRate = 0.9

// Server holds the stub's in-memory post table and generation backends.
type Server struct {
	logger    *observability.Logger
	captioner Captioner
	imager    Imager // nil disables image URLs
	apiKey    string // empty disables auth

	driveConnected    bool
	calendarConnected bool

	mu       sync.Mutex
	posts    map[string]remote.Post
	order    []string
	nextID   int
	nextCal  int
	outcomes map[string]string
	rng      *rand.Rand
}

// Option configures the stub server.
type Option func(*Server)

func WithImager(imager Imager) Option {
	return func(s *Server) { s.imager = imager }
}

func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

func WithConnectivity(drive, calendar bool) Option {
	return func(s *Server) {
		s.driveConnected = drive
		s.calendarConnected = calendar
	}
}

func WithSeed(seed int64) Option {
	return func(s *Server) { s.rng = rand.New(rand.NewSource(seed)) }
}

func NewServer(captioner Captioner, logger *observability.Logger, opts ...Option) *Server {
	s := &Server{
		logger:    logger,
		captioner: captioner,
		posts:     map[string]remote.Post{},
		outcomes:  map[string]string{},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the stub's routes on the engine.
func (s *Server) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	if s.apiKey != "" {
		v1.Use(s.requireAuth)
	}
	v1.GET("/posts", s.listPosts)
	v1.POST("/posts", s.createPost)
	v1.PATCH("/posts/:post_id", s.updatePost)
	v1.DELETE("/posts/:post_id", s.deletePost)
	v1.DELETE("/posts", s.clearPosts)
	v1.POST("/batches/generate", s.generateBatch)
	v1.POST("/schedule-dates", s.scheduleDates)
	v1.POST("/publish-status", s.publishStatus)
	v1.POST("/calendar-entries", s.createCalendarEntry)
	v1.GET("/connectivity", s.connectivity)
}

func (s *Server) requireAuth(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
	}
}

func (s *Server) listPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	s.mu.Lock()
	defer s.mu.Unlock()
	posts := make([]remote.Post, 0, len(s.order))
	for _, id := range s.order {
		if limit > 0 && len(posts) >= limit {
			break
		}
		posts = append(posts, s.posts[id])
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) createPost(c *gin.Context) {
	var params remote.CreatePostParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.ProductDescription == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_description is required"})
		return
	}

	s.mu.Lock()
	s.nextID++
	post := remote.Post{
		ID:                 fmt.Sprintf("post-%d", s.nextID),
		BatchID:            params.BatchID,
		CampaignName:       params.CampaignName,
		ProductDescription: params.ProductDescription,
		GeneratedContent:   params.GeneratedContent,
		ImageURL:           params.ImageURL,
		ScheduledAt:        params.ScheduledAt,
		Status:             params.Status,
		Platforms:          params.Platforms,
		Subreddit:          params.Subreddit,
		CreatedAt:          time.Now().UnixMilli(),
	}
	if post.Status == "" {
		post.Status = "draft"
	}
	s.posts[post.ID] = post
	s.order = append(s.order, post.ID)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, post)
}

func (s *Server) updatePost(c *gin.Context) {
	var params remote.UpdatePostParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[c.Param("post_id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if params.CampaignName != nil {
		post.CampaignName = *params.CampaignName
	}
	if params.GeneratedContent != nil {
		post.GeneratedContent = *params.GeneratedContent
	}
	if params.ImageURL != nil {
		post.ImageURL = *params.ImageURL
	}
	if params.ScheduledAt != nil {
		post.ScheduledAt = params.ScheduledAt
	}
	if params.Status != nil {
		post.Status = *params.Status
	}
	if params.Platforms != nil {
		post.Platforms = params.Platforms
	}
	if params.Subreddit != nil {
		post.Subreddit = *params.Subreddit
	}
	s.posts[post.ID] = post
	c.JSON(http.StatusOK, post)
}

func (s *Server) deletePost(c *gin.Context) {
	id := c.Param("post_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	delete(s.posts, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearPosts(c *gin.Context) {
	s.mu.Lock()
	s.posts = map[string]remote.Post{}
	s.order = nil
	s.outcomes = map[string]string{}
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) generateBatch(c *gin.Context) {
	var params remote.GenerateBatchParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if params.TotalPosts < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_posts must be at least 1"})
		return
	}

	ctx := c.Request.Context()
	batchID := params.BatchID
	if batchID == "" {
		batchID = "batch-" + uuid.New().String()
	}

	// Generated posts are persisted immediately; clients pick them up
	// with a list call.
	items := make([]remote.BatchItem, 0, params.TotalPosts)
	for i := 0; i < params.TotalPosts; i++ {
		caption, err := s.captioner.Caption(ctx, params.Description, i, params.TotalPosts)
		if err != nil {
			s.logger.Error(ctx, "caption generation failed", err)
			items = append(items, remote.BatchItem{Error: err.Error()})
			continue
		}

		post := remote.Post{
			BatchID:            batchID,
			CampaignName:       fmt.Sprintf("%.40s #%d", params.Description, i+1),
			ProductDescription: params.Description,
			GeneratedContent:   caption,
			Status:             "draft",
			CreatedAt:          time.Now().UnixMilli(),
		}
		if s.imager != nil {
			url, err := s.imager.ImageURL(ctx, params.Description)
			if err != nil {
				// A post without an image is still usable.
				s.logger.Error(ctx, "image generation failed", err)
			} else {
				post.ImageURL = url
			}
		}

		s.mu.Lock()
		s.nextID++
		post.ID = fmt.Sprintf("post-%d", s.nextID)
		s.posts[post.ID] = post
		s.order = append(s.order, post.ID)
		s.mu.Unlock()

		items = append(items, remote.BatchItem{Post: post})
	}

	c.JSON(http.StatusOK, remote.GenerateBatchResult{BatchID: batchID, Items: items})
}

// scheduleDates spreads count slots evenly across the requested number
// of days, starting tomorrow at 09:00 local time.
func (s *Server) scheduleDates(c *gin.Context) {
	var req struct {
		Count     int `json:"count"`
		TotalDays int `json:"total_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count < 1 || req.TotalDays < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count and total_days must be at least 1"})
		return
	}

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	window := time.Duration(req.TotalDays) * 24 * time.Hour
	step := window / time.Duration(req.Count)

	dates := make([]int64, req.Count)
	for i := range dates {
		dates[i] = start.Add(time.Duration(i) * step).UnixMilli()
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

// publishStatus reports a simulated delivery outcome for each known due
// post. The first decision per post is sticky.
func (s *Server) publishStatus(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UnixMilli()
	statuses := map[string]string{}

	s.mu.Lock()
	for _, id := range req.IDs {
		if outcome, ok := s.outcomes[id]; ok {
			statuses[id] = outcome
			continue
		}
		post, ok := s.posts[id]
		if !ok || post.ScheduledAt == nil || *post.ScheduledAt > now {
			continue
		}
		outcome := "posted"
		if s.rng.Float64() >= publishSuccessRate {
			outcome = "failed"
		}
		s.outcomes[id] = outcome
		post.Status = outcome
		s.posts[id] = post
		statuses[id] = outcome
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

func (s *Server) createCalendarEntry(c *gin.Context) {
	var params remote.CalendarEntryParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.nextCal++
	id := fmt.Sprintf("cal-%d", s.nextCal)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, remote.CalendarEntry{ID: id})
}

func (s *Server) connectivity(c *gin.Context) {
	c.JSON(http.StatusOK, remote.Connectivity{
		DriveConnected:    s.driveConnected,
		CalendarConnected: s.calendarConnected,
	})
}
