package payments

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/pkg/response"
)

// Handler handles payment HTTP endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Approve handles POST /payments/approve/:orderId. Called by the client once
// the buyer finished the provider's approval flow.
func (h *Handler) Approve(c *gin.Context) {
	orderID := c.Param("orderId")
	if orderID == "" {
		response.BadRequest(c, "order id required")
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)
	p, err := h.service.Approve(c.Request.Context(), orderID, userID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		h.logger.Error("approve payment failed", zap.Error(err), zap.String("order_id", orderID))
		response.Internal(c, "internal error")
		return
	}
	response.OK(c, p)
}

// List handles GET /payments (admin).
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list payments failed", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	response.OK(c, list)
}
