package dto

import (
	"io"
	"time"

	"github.com/noah-isme/training-roster-api/internal/models"
)

// SubmitCourseRequest holds the metadata of an external course.
type SubmitCourseRequest struct {
	CourseName string  `form:"courseName" json:"courseName" validate:"required,max=200"`
	Provider   string  `form:"provider" json:"provider" validate:"required,max=200"`
	Instructor string  `form:"instructor" json:"instructor" validate:"max=200"`
	Hours      float64 `form:"hours" json:"hours" validate:"gt=0,lte=1000"`
}

// CertificateUpload is the optional file sent with a submission.
type CertificateUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// ReviewCourseRequest approves or rejects a submission.
type ReviewCourseRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// CourseQuery mirrors supported listing filters.
type CourseQuery struct {
	Status models.CourseStatus `form:"status"`
	UserID string              `form:"userId"`
	Offset int                 `form:"offset"`
	Limit  int                 `form:"limit"`
}

// CertificateLinkResponse carries a signed download URL.
type CertificateLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
