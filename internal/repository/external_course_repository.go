package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-roster-api/internal/models"
)

const courseColumns = `id, user_id, course_name, provider, instructor, hours, certificate_path, certificate_mime, status, notes, reviewed_by, reviewed_at, submitted_at`

// ExternalCourseRepository persists externally completed courses.
type ExternalCourseRepository struct {
	db *sqlx.DB
}

// NewExternalCourseRepository constructs the repository.
func NewExternalCourseRepository(db *sqlx.DB) *ExternalCourseRepository {
	return &ExternalCourseRepository{db: db}
}

// Create inserts a pending submission and fills in ID and SubmittedAt.
func (r *ExternalCourseRepository) Create(ctx context.Context, course *models.ExternalCourse) error {
	if course.Status == "" {
		course.Status = models.CoursePending
	}
	const query = `INSERT INTO external_courses (user_id, course_name, provider, instructor, hours, certificate_path, certificate_mime, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, submitted_at`
	row := r.db.QueryRowxContext(ctx, query, course.UserID, course.CourseName, course.Provider, course.Instructor, course.Hours, course.CertificatePath, course.CertificateMIME, course.Status)
	if err := row.Scan(&course.ID, &course.SubmittedAt); err != nil {
		return fmt.Errorf("create external course: %w", err)
	}
	return nil
}

// FindByID returns a submission or sql.ErrNoRows.
func (r *ExternalCourseRepository) FindByID(ctx context.Context, id int64) (*models.ExternalCourse, error) {
	var course models.ExternalCourse
	if err := r.db.GetContext(ctx, &course, `SELECT `+courseColumns+` FROM external_courses WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find external course: %w", err)
	}
	return &course, nil
}

// List returns submissions matching the filter, newest first, and the total count.
func (r *ExternalCourseRepository) List(ctx context.Context, filter models.ExternalCourseFilter) ([]models.ExternalCourse, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM external_courses%s ORDER BY submitted_at DESC, id DESC LIMIT %d OFFSET %d", courseColumns, where, limit, offset)
	var courses []models.ExternalCourse
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list external courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM external_courses"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count external courses: %w", err)
	}
	return courses, total, nil
}

// ListByUser returns every submission of one user, newest first.
func (r *ExternalCourseRepository) ListByUser(ctx context.Context, userID string) ([]models.ExternalCourse, error) {
	var courses []models.ExternalCourse
	query := `SELECT ` + courseColumns + ` FROM external_courses WHERE user_id = $1 ORDER BY submitted_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &courses, query, userID); err != nil {
		return nil, fmt.Errorf("list user external courses: %w", err)
	}
	return courses, nil
}

// Review records a decision on a pending submission. sql.ErrNoRows signals
// the submission was no longer pending.
func (r *ExternalCourseRepository) Review(ctx context.Context, id int64, status models.CourseStatus, reviewerID string, notes *string, reviewedAt time.Time) error {
	const query = `UPDATE external_courses SET status = $2, reviewed_by = $3, notes = $4, reviewed_at = $5 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, status, reviewerID, notes, reviewedAt)
	if err != nil {
		return fmt.Errorf("review external course: %w", err)
	}
	return expectAffected(result, "review external course")
}

// ApprovedSummary counts approved submissions of a user and sums their hours.
func (r *ExternalCourseRepository) ApprovedSummary(ctx context.Context, userID string) (models.CourseSummary, error) {
	const query = `SELECT COUNT(*) AS count, COALESCE(SUM(hours), 0) AS hours FROM external_courses WHERE user_id = $1 AND status = 'approved'`
	var summary models.CourseSummary
	if err := r.db.GetContext(ctx, &summary, query, userID); err != nil {
		return models.CourseSummary{}, fmt.Errorf("summarise external courses: %w", err)
	}
	return summary, nil
}
