package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/response"
)

// CapabilityChecker resolves whether a role holds a capability.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, roleID, capability string) (bool, error)
}

// RequireCapability lets the request through when the caller's role holds any
// of the listed capabilities.
func RequireCapability(checker CapabilityChecker, capabilities ...string) gin.HandlerFunc {
	return capabilityGate(checker, "", capabilities)
}

// RequireCapabilityOrSelf also admits callers whose user ID equals the named
// path parameter.
func RequireCapabilityOrSelf(checker CapabilityChecker, param string, capabilities ...string) gin.HandlerFunc {
	return capabilityGate(checker, param, capabilities)
}

func capabilityGate(checker CapabilityChecker, selfParam string, capabilities []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		if selfParam != "" {
			if target := c.Param(selfParam); target != "" && target == claims.UserID {
				c.Next()
				return
			}
		}

		for _, capability := range capabilities {
			allowed, err := checker.HasCapability(c.Request.Context(), claims.Role, capability)
			if err != nil {
				response.Abort(c, err)
				return
			}
			if allowed {
				c.Next()
				return
			}
		}

		response.Abort(c, appErrors.ErrForbidden)
	}
}
