// Package learning bridges the roster to an external learning platform that
// owns course enrolments, assignments and certificates.
package learning

import "context"

// CourseProgress is one enrolled course as reported by the platform.
type CourseProgress struct {
	CourseID        string  `json:"courseId"`
	Title           string  `json:"title"`
	Completed       bool    `json:"completed"`
	ProgressPercent float64 `json:"progressPercent"`
	CertificateURL  string  `json:"certificateUrl,omitempty"`
}

// Platform is the read-only view of the learning platform used by the roster.
type Platform interface {
	CourseProgress(ctx context.Context, userID string) ([]CourseProgress, error)
	SubmittedAssignments(ctx context.Context, userID string) (int, error)
}

// NoopPlatform stands in when no platform is configured. It reports nothing.
type NoopPlatform struct{}

// CourseProgress returns no courses.
func (NoopPlatform) CourseProgress(context.Context, string) ([]CourseProgress, error) {
	return []CourseProgress{}, nil
}

// SubmittedAssignments returns zero.
func (NoopPlatform) SubmittedAssignments(context.Context, string) (int, error) {
	return 0, nil
}
