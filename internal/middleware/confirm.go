package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/response"
)

// ConfirmHeader carries the explicit confirmation for destructive calls.
const ConfirmHeader = "X-Confirm-Action"

// RequireConfirmation answers 428 unless the request repeats action in the
// confirmation header.
func RequireConfirmation(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(strings.TrimSpace(c.GetHeader(ConfirmHeader)), action) {
			response.Abort(c, appErrors.Clone(appErrors.ErrConfirmationRequired, "send "+ConfirmHeader+": "+action+" to confirm"))
			return
		}
		c.Next()
	}
}
