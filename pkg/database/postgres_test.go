package database

import (
	"io/fs"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/pkg/config"
)

func TestDSNAndURL(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5433, User: "roster", Password: "p@ss", Name: "training", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5433 user=roster password=p@ss dbname=training sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://roster:p%40ss@db:5433/training?sslmode=disable", URL(cfg))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	sort.Strings(entries)

	require.Len(t, entries, 6)
	assert.Equal(t, []string{
		"migrations/000001_init_schema.down.sql",
		"migrations/000001_init_schema.up.sql",
		"migrations/000002_seed_roles.down.sql",
		"migrations/000002_seed_roles.up.sql",
		"migrations/000003_base_role_requests_promotion.down.sql",
		"migrations/000003_base_role_requests_promotion.up.sql",
	}, entries)
}

func TestBaseRoleCanRequestPromotion(t *testing.T) {
	up, err := fs.ReadFile(migrationsFS, "migrations/000003_base_role_requests_promotion.up.sql")
	require.NoError(t, err)
	sql := string(up)
	assert.Contains(t, sql, "array_append(capabilities, 'request_promotion')")
	assert.Contains(t, sql, "WHERE id = 'frontline-staff'")

	down, err := fs.ReadFile(migrationsFS, "migrations/000003_base_role_requests_promotion.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "array_remove(capabilities, 'request_promotion')")
}
