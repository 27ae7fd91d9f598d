package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-roster-api/internal/models"
)

const roleColumns = `id, display_name, parent_id, capabilities, created_at, updated_at`

// RoleRepository persists the role forest.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository constructs the repository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// List returns every role ordered by identifier.
func (r *RoleRepository) List(ctx context.Context) ([]models.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles ORDER BY id`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// FindByID returns a role or sql.ErrNoRows.
func (r *RoleRepository) FindByID(ctx context.Context, id string) (*models.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &role, nil
}

// Create inserts a role.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	if role.Capabilities == nil {
		role.Capabilities = []string{}
	}
	const query = `INSERT INTO roles (id, display_name, parent_id, capabilities, created_at, updated_at) VALUES (:id, :display_name, :parent_id, :capabilities, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, role); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// Update rewrites display name, parent and capabilities of an existing role.
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now().UTC()
	if role.Capabilities == nil {
		role.Capabilities = []string{}
	}
	const query = `UPDATE roles SET display_name = :display_name, parent_id = :parent_id, capabilities = :capabilities, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return expectAffected(result, "update role")
}
