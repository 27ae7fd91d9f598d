package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/training-roster-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, active, last_login, created_at, updated_at`

// UserRepository provides database access for users, their meta attributes,
// refresh tokens and the audit trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier, including deactivated users.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateRole assigns a role to an active user. sql.ErrNoRows is returned when
// no active user matches.
func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) error {
	const query = `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1 AND active = TRUE`
	result, err := r.db.ExecContext(ctx, query, id, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return expectAffected(result, "update user role")
}

// Create inserts a new user together with its initial meta rows.
func (r *UserRepository) Create(ctx context.Context, user *models.User, meta []models.UserMeta) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user tx: %w", err)
	}
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at) VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, user); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create user: %w", err)
	}
	if err := insertMeta(ctx, tx, user.ID, meta); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user tx: %w", err)
	}
	return nil
}

// ApplyQuickEdit updates the user's name and role and replaces the meta rows
// for the given keys in one transaction.
func (r *UserRepository) ApplyQuickEdit(ctx context.Context, user *models.User, keys []string, meta []models.UserMeta) error {
	user.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quick edit tx: %w", err)
	}
	const query = `UPDATE users SET full_name = :full_name, role = :role, updated_at = :updated_at WHERE id = :id AND active = TRUE`
	result, err := tx.NamedExecContext(ctx, query, user)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("quick edit user: %w", err)
	}
	if err := expectAffected(result, "quick edit user"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(keys) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_meta WHERE user_id = $1 AND meta_key = ANY($2)`, user.ID, pq.Array(keys)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear user meta: %w", err)
		}
	}
	if err := insertMeta(ctx, tx, user.ID, meta); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quick edit tx: %w", err)
	}
	return nil
}

// Delete performs a soft delete by marking the user inactive. Active refresh
// tokens are revoked at the same time.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user tx: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1 AND active = TRUE`, id, now)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete user: %w", err)
	}
	if err := expectAffected(result, "delete user"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`, id, now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("revoke deleted user tokens: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user tx: %w", err)
	}
	return nil
}

// ListMeta returns the meta rows of one user.
func (r *UserRepository) ListMeta(ctx context.Context, userID string) ([]models.UserMeta, error) {
	const query = `SELECT user_id, meta_key, meta_value FROM user_meta WHERE user_id = $1 ORDER BY id`
	var rows []models.UserMeta
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list user meta: %w", err)
	}
	return rows, nil
}

// ListMetaForUsers returns meta rows grouped by user ID.
func (r *UserRepository) ListMetaForUsers(ctx context.Context, userIDs []string) (map[string][]models.UserMeta, error) {
	grouped := make(map[string][]models.UserMeta, len(userIDs))
	if len(userIDs) == 0 {
		return grouped, nil
	}
	const query = `SELECT user_id, meta_key, meta_value FROM user_meta WHERE user_id = ANY($1) ORDER BY id`
	var rows []models.UserMeta
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("list users meta: %w", err)
	}
	for _, row := range rows {
		grouped[row.UserID] = append(grouped[row.UserID], row)
	}
	return grouped, nil
}

// HierarchyRow is an active user with its reporting parent.
type HierarchyRow struct {
	ID       string         `db:"id"`
	FullName string         `db:"full_name"`
	Role     string         `db:"role"`
	ParentID sql.NullString `db:"parent_id"`
}

// ListHierarchy returns every active user with its parent link in insertion order.
func (r *UserRepository) ListHierarchy(ctx context.Context) ([]HierarchyRow, error) {
	query := fmt.Sprintf(`SELECT u.id, u.full_name, u.role, m.meta_value AS parent_id
FROM users u
LEFT JOIN user_meta m ON m.user_id = u.id AND m.meta_key = '%s'
WHERE u.active = TRUE
ORDER BY u.created_at, u.id`, models.MetaParentUser)
	var rows []HierarchyRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list hierarchy: %w", err)
	}
	return rows, nil
}

// ParentLinks maps user ID to parent user ID for every user with a parent.
func (r *UserRepository) ParentLinks(ctx context.Context) (map[string]string, error) {
	const query = `SELECT user_id, meta_key, meta_value FROM user_meta WHERE meta_key = $1 AND meta_value <> ''`
	var rows []models.UserMeta
	if err := r.db.SelectContext(ctx, &rows, query, models.MetaParentUser); err != nil {
		return nil, fmt.Errorf("list parent links: %w", err)
	}
	links := make(map[string]string, len(rows))
	for _, row := range rows {
		links[row.UserID] = row.Value
	}
	return links, nil
}

// ListDashboard returns active users matching the filter in insertion order
// together with the total number of matches.
func (r *UserRepository) ListDashboard(ctx context.Context, filter models.DashboardFilter) ([]models.User, int, error) {
	where, args := dashboardConditions(filter)

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf(`SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.active, u.last_login, u.created_at, u.updated_at FROM users u WHERE %s ORDER BY u.created_at, u.id LIMIT %d OFFSET %d`, where, limit, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list dashboard users: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM users u WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count dashboard users: %w", err)
	}
	return users, total, nil
}

func dashboardConditions(filter models.DashboardFilter) (string, []interface{}) {
	conditions := []string{"u.active = TRUE"}
	args := make([]interface{}, 0, 6)

	metaExists := func(key, predicate string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM user_meta m WHERE m.user_id = u.id AND m.meta_key = '%s' AND %s)", key, predicate)
	}

	if filter.Program != "" {
		args = append(args, filter.Program)
		conditions = append(conditions, metaExists(models.MetaProgram, fmt.Sprintf("m.meta_value = $%d", len(args))))
	}
	if filter.Site != "" {
		args = append(args, filter.Site)
		conditions = append(conditions, metaExists(models.MetaSite, fmt.Sprintf("m.meta_value = $%d", len(args))))
	}
	if filter.TrainingStatus != "" {
		args = append(args, string(filter.TrainingStatus))
		cond := metaExists(models.MetaTrainingStatus, fmt.Sprintf("m.meta_value = $%d", len(args)))
		if filter.TrainingStatus == models.TrainingNotStarted {
			cond = fmt.Sprintf("(%s OR NOT %s)", cond, metaExists(models.MetaTrainingStatus, "m.meta_value <> ''"))
		}
		conditions = append(conditions, cond)
	}
	if filter.DateFrom != "" || filter.DateTo != "" {
		bounds := []string{"m.meta_value <> ''"}
		if filter.DateFrom != "" {
			args = append(args, filter.DateFrom)
			bounds = append(bounds, fmt.Sprintf("m.meta_value >= $%d", len(args)))
		}
		if filter.DateTo != "" {
			args = append(args, filter.DateTo)
			bounds = append(bounds, fmt.Sprintf("m.meta_value <= $%d", len(args)))
		}
		conditions = append(conditions, metaExists(models.MetaTrainingDate, strings.Join(bounds, " AND ")))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("u.role = $%d", len(args)))
	}

	return strings.Join(conditions, " AND "), args
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertMeta(ctx context.Context, exec execer, userID string, meta []models.UserMeta) error {
	const query = `INSERT INTO user_meta (user_id, meta_key, meta_value) VALUES ($1, $2, $3)`
	for _, row := range meta {
		if _, err := exec.ExecContext(ctx, query, userID, row.Key, row.Value); err != nil {
			return fmt.Errorf("insert user meta %s: %w", row.Key, err)
		}
	}
	return nil
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
