package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	obscontext "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/context"
)

const (
	HeaderUserID        = "X-User-Id"
	contextPrincipalKey = "principal"
)

// IdentityRequired resolves the caller's profile and stores the principal on the
// request. Requests without a known profile stop here with 401.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := s.identities.Resolve(c.Request.Context(), c.GetHeader(HeaderUserID))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), string(principal.Role), principal.UserID))
		c.Next()
	}
}

// RedeemRateLimit throttles redemption attempts per customer. Without a limiter every
// request passes.
func (s *Server) RedeemRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.redeemLimiter == nil {
			c.Next()
			return
		}

		customerID, err := pathID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		result := s.redeemLimiter.Allow(c.Request.Context(), customerID)
		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			if secs := int(result.RetryAfter.Seconds()); secs > 0 {
				c.Header("Retry-After", strconv.Itoa(secs))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (identity.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return identity.Principal{}, false
	}
	principal, ok := value.(identity.Principal)
	return principal, ok
}
