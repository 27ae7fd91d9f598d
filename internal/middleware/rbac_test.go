package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/training-roster-api/internal/models"
)

type checkerStub struct {
	grants map[string][]string
	err    error
}

func (s checkerStub) HasCapability(ctx context.Context, roleID, capability string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, granted := range s.grants[roleID] {
		if granted == capability {
			return true, nil
		}
	}
	return false, nil
}

func serveAs(router *gin.Engine, path string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func newCapabilityRouter(checker CapabilityChecker, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	})
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	router.GET("/roles", RequireCapability(checker, models.CapManageRoles), ok)
	router.GET("/export", RequireCapability(checker, models.CapExportData, models.CapManageDirectory), ok)
	router.GET("/users/:id/profile", RequireCapabilityOrSelf(checker, "id", models.CapViewDashboard), ok)
	return router
}

func TestRequireCapability(t *testing.T) {
	checker := checkerStub{grants: map[string][]string{
		"program-manager": {models.CapManageDirectory, models.CapViewDashboard},
		"frontline-staff": {models.CapSubmitCourses},
	}}
	manager := &models.JWTClaims{UserID: "m-1", Role: "program-manager"}
	staff := &models.JWTClaims{UserID: "s-1", Role: "frontline-staff"}

	assert.Equal(t, http.StatusForbidden, serveAs(newCapabilityRouter(checker, manager), "/roles"))
	assert.Equal(t, http.StatusNoContent, serveAs(newCapabilityRouter(checker, manager), "/export"))
	assert.Equal(t, http.StatusForbidden, serveAs(newCapabilityRouter(checker, staff), "/export"))
	assert.Equal(t, http.StatusUnauthorized, serveAs(newCapabilityRouter(checker, nil), "/export"))
}

func TestRequireCapabilityOrSelf(t *testing.T) {
	checker := checkerStub{grants: map[string][]string{"program-manager": {models.CapViewDashboard}}}
	staff := &models.JWTClaims{UserID: "s-1", Role: "frontline-staff"}
	manager := &models.JWTClaims{UserID: "m-1", Role: "program-manager"}

	assert.Equal(t, http.StatusNoContent, serveAs(newCapabilityRouter(checker, staff), "/users/s-1/profile"))
	assert.Equal(t, http.StatusForbidden, serveAs(newCapabilityRouter(checker, staff), "/users/m-1/profile"))
	assert.Equal(t, http.StatusNoContent, serveAs(newCapabilityRouter(checker, manager), "/users/s-1/profile"))
}

func TestRequireCapabilityResolverFailure(t *testing.T) {
	checker := checkerStub{err: errors.New("db down")}
	manager := &models.JWTClaims{UserID: "m-1", Role: "program-manager"}
	assert.Equal(t, http.StatusInternalServerError, serveAs(newCapabilityRouter(checker, manager), "/roles"))
}
