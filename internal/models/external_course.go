package models

import "time"

// CourseStatus is the review state of an external course.
type CourseStatus string

const (
	CoursePending  CourseStatus = "pending"
	CourseApproved CourseStatus = "approved"
	CourseRejected CourseStatus = "rejected"
)

// ExternalCourse is training a user completed outside the learning platform.
type ExternalCourse struct {
	ID              int64        `db:"id" json:"id"`
	UserID          string       `db:"user_id" json:"userId"`
	CourseName      string       `db:"course_name" json:"courseName"`
	Provider        string       `db:"provider" json:"provider"`
	Instructor      string       `db:"instructor" json:"instructor"`
	Hours           float64      `db:"hours" json:"hours"`
	CertificatePath *string      `db:"certificate_path" json:"-"`
	CertificateMIME *string      `db:"certificate_mime" json:"-"`
	Status          CourseStatus `db:"status" json:"status"`
	Notes           *string      `db:"notes" json:"notes,omitempty"`
	ReviewedBy      *string      `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time   `db:"reviewed_at" json:"reviewedAt,omitempty"`
	SubmittedAt     time.Time    `db:"submitted_at" json:"submittedAt"`
}

// HasCertificate reports whether a certificate file was uploaded.
func (c ExternalCourse) HasCertificate() bool {
	return c.CertificatePath != nil && *c.CertificatePath != ""
}

// ExternalCourseFilter constrains listing queries.
type ExternalCourseFilter struct {
	Status CourseStatus
	UserID string
	Offset int
	Limit  int
}

// CourseSummary aggregates approved external courses for one user.
type CourseSummary struct {
	Count int     `db:"count" json:"count"`
	Hours float64 `db:"hours" json:"hours"`
}
