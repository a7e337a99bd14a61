package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"seald/internal/domain"

	"github.com/gin-gonic/gin"
)

// requireAuth authenticates the X-API-Key header against the configured
// static keys and asks the policy engine whether the resulting role may
// perform action. In AUTH_MODE=none every caller acts as an admin, which is
// only meant for local development.
func (s *Server) requireAuth(c *gin.Context, action string) (domain.Principal, bool) {
	if s.authInitErr != nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	if s.cfg.AuthMode == "none" {
		return domain.Principal{Subject: "local-dev", Role: domain.RoleAdmin}, true
	}

	key := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if key == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "api key required")
		return domain.Principal{}, false
	}

	var principal domain.Principal
	switch {
	case s.cfg.AdminAPIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminAPIKey)) == 1:
		principal = domain.Principal{Subject: "admin-key", Role: domain.RoleAdmin}
	case s.cfg.LogisticsAPIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.LogisticsAPIKey)) == 1:
		principal = domain.Principal{Subject: "logistics-key", Role: domain.RoleLogistics}
	default:
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
		return domain.Principal{}, false
	}

	if s.authorizer != nil && action != "" {
		if err := s.authorizer.Require(c.Request.Context(), principal, action); err != nil {
			writeAuthzError(c, err)
			return domain.Principal{}, false
		}
	}
	return principal, true
}

func writeAuthzError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
}
