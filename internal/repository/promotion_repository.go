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
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

const promotionColumns = `id, requester_id, user_id, current_role_id, requested_role_id, reason, status, admin_notes, reviewed_by, created_at, updated_at`

// PromotionRepository persists promotion requests.
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs the repository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// Create inserts a pending request and fills in the generated ID and timestamps.
func (r *PromotionRepository) Create(ctx context.Context, req *models.PromotionRequest) error {
	if req.Status == "" {
		req.Status = models.PromotionPending
	}
	const query = `INSERT INTO promotion_requests (requester_id, user_id, current_role_id, requested_role_id, reason, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query, req.RequesterID, req.UserID, req.CurrentRole, req.RequestedRole, req.Reason, req.Status)
	if err := row.Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return fmt.Errorf("create promotion request: %w", err)
	}
	return nil
}

// FindByID fetches a request by identifier.
func (r *PromotionRepository) FindByID(ctx context.Context, id int64) (*models.PromotionRequest, error) {
	const query = `SELECT ` + promotionColumns + ` FROM promotion_requests WHERE id = $1`
	var req models.PromotionRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find promotion request: %w", err)
	}
	return &req, nil
}

// HasPending reports whether a pending request already targets (userID, role).
func (r *PromotionRepository) HasPending(ctx context.Context, userID, role string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM promotion_requests WHERE user_id = $1 AND requested_role_id = $2 AND status = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, role, models.PromotionPending); err != nil {
		return false, fmt.Errorf("check pending promotion: %w", err)
	}
	return exists, nil
}

// List returns requests matching the filter, newest first, and the total count.
func (r *PromotionRepository) List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
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

	query := fmt.Sprintf("SELECT %s FROM promotion_requests%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", promotionColumns, where, limit, offset)
	var requests []models.PromotionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list promotion requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM promotion_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count promotion requests: %w", err)
	}
	return requests, total, nil
}

// ReviewParams carries the reviewer's decision.
type ReviewParams struct {
	ID         int64
	ReviewerID string
	Notes      *string
	ReviewedAt time.Time
}

const reviewPromotionQuery = `UPDATE promotion_requests
SET status = $2, admin_notes = $3, reviewed_by = $4, updated_at = $5
WHERE id = $1 AND status = 'pending'`

// ApproveAndApply marks the request approved and assigns the requested role to
// the target user in one transaction. sql.ErrNoRows signals that the request
// was no longer pending; a missing or deactivated target user yields a
// not-found error. Either failure leaves both tables untouched.
func (r *PromotionRepository) ApproveAndApply(ctx context.Context, params ReviewParams, userID, role string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve promotion tx: %w", err)
	}

	result, err := tx.ExecContext(ctx, reviewPromotionQuery, params.ID, models.PromotionApproved, params.Notes, params.ReviewerID, params.ReviewedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("approve promotion request: %w", err)
	}
	if err := expectAffected(result, "approve promotion request"); err != nil {
		_ = tx.Rollback()
		return err
	}

	result, err = tx.ExecContext(ctx, `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1 AND active = TRUE`, userID, role, params.ReviewedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply promoted role: %w", err)
	}
	if err := expectAffected(result, "apply promoted role"); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve promotion tx: %w", err)
	}
	return nil
}

// Reject marks a pending request rejected. sql.ErrNoRows signals that the
// request was no longer pending.
func (r *PromotionRepository) Reject(ctx context.Context, params ReviewParams) error {
	result, err := r.db.ExecContext(ctx, reviewPromotionQuery, params.ID, models.PromotionRejected, params.Notes, params.ReviewerID, params.ReviewedAt)
	if err != nil {
		return fmt.Errorf("reject promotion request: %w", err)
	}
	return expectAffected(result, "reject promotion request")
}
