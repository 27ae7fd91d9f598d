package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequireConfirmation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := 0
	router := gin.New()
	router.DELETE("/users/:id", RequireConfirmation("delete"), func(c *gin.Context) {
		called++
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/users/u-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("unexpected status without header: %d", rec.Code)
	}
	if called != 0 {
		t.Fatalf("handler must not run without confirmation")
	}

	req = httptest.NewRequest(http.MethodDelete, "/users/u-1", nil)
	req.Header.Set(ConfirmHeader, "archive")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("unexpected status with wrong action: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/users/u-1", nil)
	req.Header.Set(ConfirmHeader, "Delete")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status with confirmation: %d", rec.Code)
	}
	if called != 1 {
		t.Fatalf("expected handler to run once, ran %d times", called)
	}
}
