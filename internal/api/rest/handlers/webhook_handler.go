package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/gateway"
	"github.com/sunupay/subscription-service/internal/metrics"
	"github.com/sunupay/subscription-service/internal/service"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// WebhookHandler receives gateway payment callbacks
type WebhookHandler struct {
	svc     service.SubscriptionService
	metrics metrics.SubscriptionMetrics
	log     *logger.Logger
}

// NewWebhookHandler creates a webhook handler. metrics may be nil.
func NewWebhookHandler(svc service.SubscriptionService, m metrics.SubscriptionMetrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:     svc,
		metrics: m,
		log:     log,
	}
}

// Handle returns a gin handler that verifies callbacks with the given
// verifier and feeds the outcome into the lifecycle service.
func (h *WebhookHandler) Handle(verifier gateway.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
			return
		}

		event, err := verifier.Verify(c.Request, body)
		if err != nil {
			h.log.Warn("Rejected %s webhook: %v", verifier.Name(), err)
			if h.metrics != nil {
				h.metrics.IncWebhookRejected(verifier.Name())
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid signature"})
			return
		}

		if err := h.svc.ApplyGatewayOutcome(c.Request.Context(), event); err != nil {
			if errors.Is(err, domain.ErrUnknownTransaction) {
				h.log.Warn("Webhook for unknown transaction: %s", event.TransactionID)
				c.JSON(http.StatusNotFound, gin.H{"error": "Unknown transaction"})
				return
			}
			h.log.Error("Failed to apply gateway outcome: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	}
}
