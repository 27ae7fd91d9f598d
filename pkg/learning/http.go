package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPPlatform talks to a REST bridge exposing
//
//	GET {base}/users/{id}/courses      -> {"courses": [CourseProgress...]}
//	GET {base}/users/{id}/assignments  -> {"submitted": n}
//
// A 404 means the platform does not know the user and yields empty data.
type HTTPPlatform struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPPlatform builds a client for baseURL. A zero timeout falls back to 3s.
func NewHTTPPlatform(baseURL, token string, timeout time.Duration) *HTTPPlatform {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPPlatform{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type coursesPayload struct {
	Courses []CourseProgress `json:"courses"`
}

type assignmentsPayload struct {
	Submitted int `json:"submitted"`
}

// CourseProgress fetches the user's enrolled courses.
func (p *HTTPPlatform) CourseProgress(ctx context.Context, userID string) ([]CourseProgress, error) {
	var payload coursesPayload
	found, err := p.get(ctx, userID, "courses", &payload)
	if err != nil || !found {
		return []CourseProgress{}, err
	}
	if payload.Courses == nil {
		payload.Courses = []CourseProgress{}
	}
	return payload.Courses, nil
}

// SubmittedAssignments fetches the number of assignments the user handed in.
func (p *HTTPPlatform) SubmittedAssignments(ctx context.Context, userID string) (int, error) {
	var payload assignmentsPayload
	found, err := p.get(ctx, userID, "assignments", &payload)
	if err != nil || !found {
		return 0, err
	}
	return payload.Submitted, nil
}

func (p *HTTPPlatform) get(ctx context.Context, userID, resource string, dest interface{}) (bool, error) {
	reqURL := fmt.Sprintf("%s/users/%s/%s", p.baseURL, url.PathEscape(userID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("build learning request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("learning %s for %s: %w", resource, userID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("learning %s for %s: status %d: %s", resource, userID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return false, fmt.Errorf("decode learning %s: %w", resource, err)
	}
	return true, nil
}
