package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sunupay/subscription-service/internal/api/rest/middleware"
	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/service"
	"github.com/sunupay/subscription-service/pkg/logger"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseTier(fl.Field().String())
			return err == nil
		})
	}
}

// SubscriptionHandler serves the subscription API
type SubscriptionHandler struct {
	svc service.SubscriptionService
	log *logger.Logger
}

// NewSubscriptionHandler creates a subscription handler
func NewSubscriptionHandler(svc service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc: svc,
		log: log,
	}
}

// InitiateRequest is the body of POST /subscriptions/initiate
type InitiateRequest struct {
	Tier     string `json:"tier" binding:"required,tier"`
	Provider string `json:"provider" binding:"required,oneof=paytech cinetpay"`
}

// InitiateSubscription starts a subscription purchase
func (h *SubscriptionHandler) InitiateSubscription(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	result, err := h.svc.Initiate(c.Request.Context(), userID, req.Tier, req.Provider)
	if err != nil {
		h.respondError(c, err, "Failed to initiate subscription")
		return
	}

	h.log.Info("Initiated subscription with ID: %s", result.Subscription.ID)
	c.JSON(http.StatusOK, gin.H{
		"subscription": result.Subscription,
		"redirect_url": result.RedirectURL,
	})
}

// GetStatus reports whether a user holds an active subscription
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	userID := c.Param("id")
	if userID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	view, err := h.svc.CheckStatus(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "Failed to check subscription status")
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetHistory lists all subscriptions of a user, newest first
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	userID := c.Param("id")
	if userID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	subs, err := h.svc.History(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "Failed to list subscriptions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// CancelSubscription ends an active subscription immediately
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID format"})
		return
	}

	sub, err := h.svc.Cancel(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		h.respondError(c, err, "Failed to cancel subscription")
		return
	}

	h.log.Info("Cancelled subscription with ID: %s", sub.ID)
	c.JSON(http.StatusOK, sub)
}

func (h *SubscriptionHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidTier):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown subscription tier"})
	case errors.Is(err, domain.ErrAlreadySubscribed):
		c.JSON(http.StatusConflict, gin.H{"error": "An active subscription already exists"})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "Subscription is not in a cancellable state"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
	default:
		h.log.Error("%s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
