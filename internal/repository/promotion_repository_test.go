package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

func TestPromotionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO promotion_requests")).
		WithArgs("sup-1", "u-1", "frontline-staff", "site-supervisor", "ready for promotion", models.PromotionPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	req := &models.PromotionRequest{
		RequesterID:   "sup-1",
		UserID:        "u-1",
		CurrentRole:   "frontline-staff",
		RequestedRole: "site-supervisor",
		Reason:        "ready for promotion",
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.EqualValues(t, 7, req.ID)
	assert.Equal(t, models.PromotionPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryApproveAndApply(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	notes := "approved, good performance"
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE promotion_requests")).
		WithArgs(int64(7), models.PromotionApproved, &notes, "admin-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2")).
		WithArgs("u-1", "site-supervisor", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApproveAndApply(context.Background(), ReviewParams{ID: 7, ReviewerID: "admin-1", Notes: &notes, ReviewedAt: now}, "u-1", "site-supervisor")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryApproveStaleRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE promotion_requests")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApproveAndApply(context.Background(), ReviewParams{ID: 7, ReviewerID: "admin-1", ReviewedAt: time.Now()}, "u-1", "site-supervisor")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryApproveRollsBackWhenUserMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE promotion_requests")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApproveAndApply(context.Background(), ReviewParams{ID: 7, ReviewerID: "admin-1", ReviewedAt: time.Now()}, "gone", "site-supervisor")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryRejectOnlyPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Reject(context.Background(), ReviewParams{ID: 7, ReviewerID: "admin-1", ReviewedAt: time.Now()})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPromotionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "requester_id", "user_id", "current_role_id", "requested_role_id", "reason", "status", "admin_notes", "reviewed_by", "created_at", "updated_at"}).
		AddRow(3, "sup-1", "u-1", "frontline-staff", "site-supervisor", "ready", "pending", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM promotion_requests WHERE status = $1 AND requester_id = $2 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.PromotionPending, "sup-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM promotion_requests WHERE status = $1 AND requester_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.PromotionFilter{Status: models.PromotionPending, RequesterID: "sup-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "site-supervisor", list[0].RequestedRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}
