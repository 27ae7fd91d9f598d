package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-roster-api/internal/models"
)

// ProgramSiteRepository persists the program/site directory.
type ProgramSiteRepository struct {
	db *sqlx.DB
}

// NewProgramSiteRepository constructs the repository.
func NewProgramSiteRepository(db *sqlx.DB) *ProgramSiteRepository {
	return &ProgramSiteRepository{db: db}
}

// List returns every pair in insertion order.
func (r *ProgramSiteRepository) List(ctx context.Context) ([]models.ProgramSite, error) {
	var items []models.ProgramSite
	if err := r.db.SelectContext(ctx, &items, `SELECT id, program, site, created_at FROM program_sites ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list program sites: %w", err)
	}
	return items, nil
}

// FindByID returns a pair or sql.ErrNoRows.
func (r *ProgramSiteRepository) FindByID(ctx context.Context, id int64) (*models.ProgramSite, error) {
	var item models.ProgramSite
	if err := r.db.GetContext(ctx, &item, `SELECT id, program, site, created_at FROM program_sites WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find program site: %w", err)
	}
	return &item, nil
}

// Programs returns the distinct program names, sorted.
func (r *ProgramSiteRepository) Programs(ctx context.Context) ([]string, error) {
	var programs []string
	if err := r.db.SelectContext(ctx, &programs, `SELECT DISTINCT program FROM program_sites ORDER BY program`); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// SitesByProgram returns the distinct sites of a program, sorted.
func (r *ProgramSiteRepository) SitesByProgram(ctx context.Context, program string) ([]string, error) {
	var sites []string
	if err := r.db.SelectContext(ctx, &sites, `SELECT DISTINCT site FROM program_sites WHERE program = $1 ORDER BY site`, program); err != nil {
		return nil, fmt.Errorf("list sites by program: %w", err)
	}
	return sites, nil
}

// Create inserts one pair and fills in ID and CreatedAt.
func (r *ProgramSiteRepository) Create(ctx context.Context, item *models.ProgramSite) error {
	row := r.db.QueryRowxContext(ctx, `INSERT INTO program_sites (program, site) VALUES ($1, $2) RETURNING id, created_at`, item.Program, item.Site)
	if err := row.Scan(&item.ID, &item.CreatedAt); err != nil {
		return fmt.Errorf("create program site: %w", err)
	}
	return nil
}

// Update rewrites one pair. sql.ErrNoRows when the ID is unknown.
func (r *ProgramSiteRepository) Update(ctx context.Context, item *models.ProgramSite) error {
	result, err := r.db.ExecContext(ctx, `UPDATE program_sites SET program = $2, site = $3 WHERE id = $1`, item.ID, item.Program, item.Site)
	if err != nil {
		return fmt.Errorf("update program site: %w", err)
	}
	return expectAffected(result, "update program site")
}

// Delete removes exactly one pair. sql.ErrNoRows when the ID is unknown.
func (r *ProgramSiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM program_sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete program site: %w", err)
	}
	return expectAffected(result, "delete program site")
}

// BulkCreate inserts all pairs in a single transaction.
func (r *ProgramSiteRepository) BulkCreate(ctx context.Context, items []models.ProgramSite) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin program site import tx: %w", err)
	}
	for i := range items {
		row := tx.QueryRowxContext(ctx, `INSERT INTO program_sites (program, site) VALUES ($1, $2) RETURNING id, created_at`, items[i].Program, items[i].Site)
		if err := row.Scan(&items[i].ID, &items[i].CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("import program site: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit program site import tx: %w", err)
	}
	return nil
}
