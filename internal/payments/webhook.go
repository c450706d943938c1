package payments

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/pkg/response"
)

// Lifecycle is the deal-side hook the reconciler calls after a capture event,
// so a deal that crossed its target through the webhook path gets completed.
// Implemented by the deals service.
type Lifecycle interface {
	SyncStatus(ctx context.Context, dealID uuid.UUID) error
}

// WebhookEvent is the provider event envelope. The order id arrives either
// directly as the resource id or nested under supplementary data, depending
// on which resource type the event carries.
type WebhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (e *WebhookEvent) orderID() string {
	if e.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		return e.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	return e.Resource.ID
}

// WebhookHandler reconciles provider webhook events against local payments.
type WebhookHandler struct {
	service   *Service
	lifecycle Lifecycle
	logger    *zap.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(service *Service, lifecycle Lifecycle, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{service: service, lifecycle: lifecycle, logger: logger}
}

// HandleEvent handles POST /webhooks/paypal. The provider retries anything
// but a 2xx, so every outcome acknowledges with 200: malformed bodies,
// unknown event types, orders we have no payment for, and even internal
// failures, which are logged and left for the next reconciliation.
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	var event WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.logger.Warn("webhook body not parseable", zap.Error(err))
		response.OK(c, gin.H{"received": true})
		return
	}

	if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		h.logger.Debug("ignoring webhook event", zap.String("event_type", event.EventType))
		response.OK(c, gin.H{"received": true})
		return
	}

	orderID := event.orderID()
	if orderID == "" {
		h.logger.Warn("capture event without order id")
		response.OK(c, gin.H{"received": true})
		return
	}

	dealID, err := h.service.HandleCaptureCompleted(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrDealNotFound) {
			h.logger.Warn("capture event for unknown order", zap.String("order_id", orderID))
		} else {
			h.logger.Error("capture reconciliation failed", zap.Error(err), zap.String("order_id", orderID))
		}
		response.OK(c, gin.H{"received": true})
		return
	}

	if err := h.lifecycle.SyncStatus(c.Request.Context(), dealID); err != nil {
		h.logger.Error("deal status sync failed", zap.Error(err), zap.String("deal_id", dealID.String()))
	}
	response.OK(c, gin.H{"received": true})
}
