package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sunupay/subscription-service/internal/domain"
)

// UserIDHeader carries the authenticated user id, set by the edge proxy
const UserIDHeader = "X-User-ID"

// userIDKey is the context key under which RequireUser stores the id
const userIDKey = "userID"

// RequireUser rejects requests without an authenticated user id
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by RequireUser
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// StatusChecker is the slice of the subscription service the gate needs
type StatusChecker interface {
	CheckStatus(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error)
}

// RequireActiveSubscription gates a route group behind a current
// subscription. When tiers are given, only those tiers pass. Must run
// after RequireUser.
func RequireActiveSubscription(svc StatusChecker, tiers ...domain.Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svc.CheckStatus(c.Request.Context(), UserID(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to check subscription"})
			return
		}
		if !view.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Active subscription required"})
			return
		}
		if len(tiers) > 0 {
			allowed := false
			for _, tier := range tiers {
				if view.Tier == tier {
					allowed = true
					break
				}
			}
			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Subscription tier not allowed"})
				return
			}
		}
		c.Next()
	}
}
