package learning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/u-1/courses", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"courses":[{"courseId":"c1","title":"Safety","completed":true,"progressPercent":100,"certificateUrl":"https://lms/c1.pdf"},{"courseId":"c2","title":"Intake","progressPercent":40}]}`))
	})
	mux.HandleFunc("/users/u-1/assignments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"submitted":3}`))
	})
	mux.HandleFunc("/users/u-broken/courses", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPlatformCourseProgress(t *testing.T) {
	srv := newBridge(t)
	platform := NewHTTPPlatform(srv.URL+"/", "tkn", time.Second)

	courses, err := platform.CourseProgress(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.True(t, courses[0].Completed)
	assert.Equal(t, "https://lms/c1.pdf", courses[0].CertificateURL)
	assert.InDelta(t, 40, courses[1].ProgressPercent, 0.001)

	submitted, err := platform.SubmittedAssignments(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, submitted)
}

func TestHTTPPlatformUnknownUserIsEmpty(t *testing.T) {
	srv := newBridge(t)
	platform := NewHTTPPlatform(srv.URL, "tkn", time.Second)

	courses, err := platform.CourseProgress(context.Background(), "u-unknown")
	require.NoError(t, err)
	assert.Empty(t, courses)

	submitted, err := platform.SubmittedAssignments(context.Background(), "u-unknown")
	require.NoError(t, err)
	assert.Zero(t, submitted)
}

func TestHTTPPlatformServerError(t *testing.T) {
	srv := newBridge(t)
	platform := NewHTTPPlatform(srv.URL, "tkn", time.Second)

	_, err := platform.CourseProgress(context.Background(), "u-broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNoopPlatform(t *testing.T) {
	var p Platform = NoopPlatform{}
	courses, err := p.CourseProgress(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Empty(t, courses)
}
