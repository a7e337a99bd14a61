package http

import (
	"net/http"
	"strconv"
	"time"

	"seald/internal/domain"

	"github.com/gin-gonic/gin"
)

// enforceRateLimit guards the public verification endpoints. Keys combine
// the route with the caller address; the limiter fails open so a broken
// Redis never blocks verification.
func (s *Server) enforceRateLimit(c *gin.Context, routeID string) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := domain.VerifierKey(routeID, c.ClientIP())
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter(time.Now()).Seconds())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
