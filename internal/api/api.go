// Package api mounts the HTTP routes.
package api

import (
	"net/http"

	batchHandler "postqueue/internal/batch/handler"
	campaignHandler "postqueue/internal/campaign/handler"
	"postqueue/internal/integrations"

	"github.com/gin-gonic/gin"
)

type API struct {
	router              *gin.RouterGroup
	campaignHandler     *campaignHandler.Handler
	batchHandler        *batchHandler.Handler
	integrationsHandler *integrations.Handler
}

func New(router *gin.RouterGroup, campaign *campaignHandler.Handler, batch *batchHandler.Handler, integrationsH *integrations.Handler) API {
	return API{
		router:              router,
		campaignHandler:     campaign,
		batchHandler:        batch,
		integrationsHandler: integrationsH,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	{
		postsGroup := apiGroup.Group("/posts")
		postsGroup.GET("", a.campaignHandler.ListRecords)
		postsGroup.POST("", a.campaignHandler.CreateRecord)
		postsGroup.DELETE("", a.campaignHandler.ClearRecords)
		postsGroup.POST("/reload", a.campaignHandler.ReloadRecords)
		postsGroup.GET("/:post_id", a.campaignHandler.GetRecord)
		postsGroup.PATCH("/:post_id", a.campaignHandler.UpdateRecord)
		postsGroup.DELETE("/:post_id", a.campaignHandler.DeleteRecord)
		postsGroup.POST("/:post_id/replace", a.batchHandler.ReplacePost)

		batchesGroup := apiGroup.Group("/batches")
		batchesGroup.POST("", a.batchHandler.CreateBatch)
		batchesGroup.POST("/:batch_id/schedule", a.batchHandler.ScheduleBatch)

		apiGroup.GET("/integrations/status", a.integrationsHandler.GetStatus)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
