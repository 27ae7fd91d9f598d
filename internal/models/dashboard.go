package models

import "github.com/noah-isme/training-roster-api/pkg/learning"

// DashboardFilter narrows the user listing. Dates are YYYY-MM-DD and inclusive.
type DashboardFilter struct {
	Program        string
	Site           string
	TrainingStatus TrainingStatus
	DateFrom       string
	DateTo         string
	Role           string
	Offset         int
	Limit          int
}

// LearningStats aggregates platform and external course activity for a user.
type LearningStats struct {
	EnrolledCourses      int     `json:"enrolledCourses"`
	CompletedCourses     int     `json:"completedCourses"`
	SubmittedAssignments int     `json:"submittedAssignments"`
	EarnedCertificates   int     `json:"earnedCertificates"`
	ExternalCourses      int     `json:"externalCourses"`
	ExternalHours        float64 `json:"externalHours"`
}

// UserSummary is one row of the dashboard listing.
type UserSummary struct {
	UserProfile
	Stats LearningStats `json:"stats"`
}

// ProfileDashboard is the single user view.
type ProfileDashboard struct {
	Profile         UserProfile               `json:"profile"`
	Stats           LearningStats             `json:"stats"`
	Courses         []learning.CourseProgress `json:"courses"`
	ExternalCourses []ExternalCourse          `json:"externalCourses"`
}
