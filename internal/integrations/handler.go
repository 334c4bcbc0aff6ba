package integrations

import (
	"net/http"

	"postqueue/internal/apierrors"
	"postqueue/internal/observability"

	"github.com/gin-gonic/gin"
)

// Handler exposes integration status over HTTP.
type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// GetStatus handles GET /api/integrations/status
func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context())
	if err != nil {
		apierrors.ServiceUnavailable(c, "CONNECTIVITY_UNAVAILABLE", "integration status is currently unavailable", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
