package notifications

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/pkg/response"
)

// Handler handles notification HTTP endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// ListMine handles GET /notifications.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	list, err := h.service.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /notifications/all (admin).
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("list all notifications failed", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	response.OK(c, list)
}

// MarkAsRead handles PATCH /notifications/:id/read.
func (h *Handler) MarkAsRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.service.MarkAsRead(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		h.logger.Error("mark notification read failed", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	response.OK(c, gin.H{"read": true})
}
