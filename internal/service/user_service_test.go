package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/repository"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	order      []string
	meta       map[string][]models.UserMeta
	quickEdits int
}

func newMockUserRepo(users ...models.User) *mockUserRepo {
	repo := &mockUserRepo{users: map[string]*models.User{}, meta: map[string][]models.UserMeta{}}
	for _, u := range users {
		u := u
		repo.users[u.ID] = &u
		repo.order = append(repo.order, u.ID)
	}
	return repo
}

func (m *mockUserRepo) setMeta(userID string, rows ...models.UserMeta) {
	for i := range rows {
		rows[i].UserID = userID
	}
	m.meta[userID] = rows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User, meta []models.UserMeta) error {
	copy := *user
	m.users[user.ID] = &copy
	m.order = append(m.order, user.ID)
	m.meta[user.ID] = append([]models.UserMeta(nil), meta...)
	return nil
}

func (m *mockUserRepo) ApplyQuickEdit(ctx context.Context, user *models.User, keys []string, meta []models.UserMeta) error {
	stored, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	m.quickEdits++
	stored.FullName = user.FullName
	stored.Role = user.Role
	replace := map[string]bool{}
	for _, k := range keys {
		replace[k] = true
	}
	kept := make([]models.UserMeta, 0)
	for _, row := range m.meta[user.ID] {
		if !replace[row.Key] {
			kept = append(kept, row)
		}
	}
	m.meta[user.ID] = append(kept, meta...)
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	user, ok := m.users[id]
	if !ok || !user.Active {
		return sql.ErrNoRows
	}
	user.Active = false
	return nil
}

func (m *mockUserRepo) ListMeta(ctx context.Context, userID string) ([]models.UserMeta, error) {
	return m.meta[userID], nil
}

func (m *mockUserRepo) ListHierarchy(ctx context.Context) ([]repository.HierarchyRow, error) {
	rows := make([]repository.HierarchyRow, 0, len(m.order))
	for _, id := range m.order {
		u := m.users[id]
		if !u.Active {
			continue
		}
		row := repository.HierarchyRow{ID: u.ID, FullName: u.FullName, Role: u.Role}
		for _, meta := range m.meta[id] {
			if meta.Key == models.MetaParentUser {
				row.ParentID = sql.NullString{String: meta.Value, Valid: true}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *mockUserRepo) ParentLinks(ctx context.Context) (map[string]string, error) {
	links := map[string]string{}
	for id, rows := range m.meta {
		for _, row := range rows {
			if row.Key == models.MetaParentUser && row.Value != "" {
				links[id] = row.Value
			}
		}
	}
	return links, nil
}

func newUserFixture(users ...models.User) (*UserService, *mockUserRepo, *auditStub) {
	repo := newMockUserRepo(users...)
	audit := &auditStub{}
	roles := NewRoleService(newRoleRepoStub(seededRoles()...), nil, nil, nil)
	return NewUserService(repo, roles, nil, audit, nil, nil), repo, audit
}

func activeUser(id, name, role string) models.User {
	return models.User{ID: id, Email: id + "@example.com", FullName: name, Role: role, Active: true}
}

func TestUserServiceCreate(t *testing.T) {
	svc, repo, audit := newUserFixture(activeUser("lead", "Lead", "site-supervisor"))
	actor := models.Actor{ID: "pm", Role: "program-manager"}

	profile, err := svc.Create(context.Background(), actor, dto.CreateUserRequest{
		Email:          " New@Example.com ",
		FullName:       "New Hire",
		Password:       "secret-pass",
		Role:           "frontline-staff",
		ParentUserID:   strPtr("lead"),
		Program:        "Health",
		Sites:          []string{"Clinic A", "Clinic A", " "},
		TrainingStatus: "in_progress",
		TrainingDate:   "2026-03-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", profile.Email)
	assert.Equal(t, "Frontline Staff", profile.RoleName)
	assert.Equal(t, "In Progress", profile.TrainingStatusName)
	assert.Equal(t, []string{"Clinic A"}, profile.Sites)
	require.NotNil(t, profile.ParentUserID)
	assert.Equal(t, "lead", *profile.ParentUserID)

	stored := repo.users[profile.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret-pass")))
	assert.Equal(t, []string{models.AuditActionUserCreate}, audit.actions())
}

func TestUserServiceCreateRejects(t *testing.T) {
	svc, _, _ := newUserFixture(activeUser("taken", "Taken", "frontline-staff"))
	ctx := context.Background()
	base := dto.CreateUserRequest{Email: "a@example.com", FullName: "A", Password: "secret-pass", Role: "frontline-staff"}

	cases := []struct {
		name   string
		actor  models.Actor
		mutate func(r *dto.CreateUserRequest)
		code   string
	}{
		{"role above actor", models.Actor{Role: "site-supervisor"}, func(r *dto.CreateUserRequest) { r.Role = "program-manager" }, appErrors.ErrForbidden.Code},
		{"unknown role", models.Actor{Role: models.RoleAdministrator}, func(r *dto.CreateUserRequest) { r.Role = "captain" }, appErrors.ErrValidation.Code},
		{"duplicate email", models.Actor{Role: models.RoleAdministrator}, func(r *dto.CreateUserRequest) { r.Email = "taken@example.com" }, appErrors.ErrConflict.Code},
		{"bad status", models.Actor{Role: models.RoleAdministrator}, func(r *dto.CreateUserRequest) { r.TrainingStatus = "paused" }, appErrors.ErrValidation.Code},
		{"bad date", models.Actor{Role: models.RoleAdministrator}, func(r *dto.CreateUserRequest) { r.TrainingDate = "03/01/2026" }, appErrors.ErrValidation.Code},
		{"short password", models.Actor{Role: models.RoleAdministrator}, func(r *dto.CreateUserRequest) { r.Password = "short" }, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := svc.Create(ctx, tc.actor, req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestUserServiceQuickEdit(t *testing.T) {
	svc, repo, audit := newUserFixture(
		activeUser("u-1", "Una", "frontline-staff"),
		activeUser("lead", "Lead", "site-supervisor"),
	)
	repo.setMeta("u-1",
		models.UserMeta{Key: models.MetaProgram, Value: "Health"},
		models.UserMeta{Key: models.MetaSite, Value: "Clinic A"},
		models.UserMeta{Key: models.MetaTrainingStatus, Value: "not_started"},
	)
	admin := models.Actor{ID: "admin", Role: models.RoleAdministrator}

	profile, err := svc.QuickEdit(context.Background(), admin, "u-1", dto.QuickEditUserRequest{
		FullName:       strPtr("Una Smith"),
		Sites:          &[]string{"Clinic B", "Clinic C"},
		TrainingStatus: strPtr("completed"),
		ParentUserID:   strPtr("lead"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Una Smith", profile.FullName)
	assert.Equal(t, "Health", profile.Program)
	assert.Equal(t, []string{"Clinic B", "Clinic C"}, profile.Sites)
	assert.Equal(t, "Completed", profile.TrainingStatusName)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserQuickEdit, audit.entries[0].Action)
	assert.NotEmpty(t, audit.entries[0].OldValues)
}

func TestUserServiceQuickEditRejectsReportingLoop(t *testing.T) {
	svc, repo, _ := newUserFixture(
		activeUser("a", "A", "frontline-staff"),
		activeUser("b", "B", "frontline-staff"),
		activeUser("c", "C", "frontline-staff"),
	)
	repo.setMeta("b", models.UserMeta{Key: models.MetaParentUser, Value: "a"})
	repo.setMeta("c", models.UserMeta{Key: models.MetaParentUser, Value: "b"})
	admin := models.Actor{ID: "admin", Role: models.RoleAdministrator}

	_, err := svc.QuickEdit(context.Background(), admin, "a", dto.QuickEditUserRequest{ParentUserID: strPtr("c")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.QuickEdit(context.Background(), admin, "a", dto.QuickEditUserRequest{ParentUserID: strPtr("a")})
	require.Error(t, err)
	assert.Zero(t, repo.quickEdits)
}

func TestUserServiceDelete(t *testing.T) {
	svc, repo, audit := newUserFixture(activeUser("u-1", "Una", "frontline-staff"))
	ctx := context.Background()

	err := svc.Delete(ctx, models.Actor{ID: "u-1"}, "u-1")
	require.Error(t, err)
	assert.True(t, repo.users["u-1"].Active)

	require.NoError(t, svc.Delete(ctx, models.Actor{ID: "admin"}, "u-1"))
	assert.False(t, repo.users["u-1"].Active)
	assert.Equal(t, []string{models.AuditActionUserDelete}, audit.actions())

	err = svc.Delete(ctx, models.Actor{ID: "admin"}, "u-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCurrentRole(t *testing.T) {
	repo := newMockUserRepo(activeUser("u-1", "Una", "frontline-staff"))
	roles := NewRoleService(newRoleRepoStub(seededRoles()...), nil, nil, nil)
	svc := NewUserService(repo, roles, newTestCache(), &auditStub{}, nil, nil)
	admin := models.Actor{ID: "admin", Role: models.RoleAdministrator}
	ctx := context.Background()

	role, err := svc.CurrentRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "frontline-staff", role)

	// served from cache until a write on the user
	repo.users["u-1"].Role = "program-manager"
	role, err = svc.CurrentRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "frontline-staff", role)

	_, err = svc.QuickEdit(ctx, admin, "u-1", dto.QuickEditUserRequest{Role: strPtr("site-supervisor")})
	require.NoError(t, err)
	role, err = svc.CurrentRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "site-supervisor", role)

	require.NoError(t, svc.Delete(ctx, admin, "u-1"))
	_, err = svc.CurrentRole(ctx, "u-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.CurrentRole(ctx, "ghost")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestUserServiceHierarchyTree(t *testing.T) {
	svc, repo, _ := newUserFixture(
		activeUser("boss", "Boss", "program-manager"),
		activeUser("lead", "Lead", "site-supervisor"),
		activeUser("staff", "Staff", "frontline-staff"),
		activeUser("x", "X", "frontline-staff"),
		activeUser("y", "Y", "frontline-staff"),
	)
	repo.setMeta("lead", models.UserMeta{Key: models.MetaParentUser, Value: "boss"})
	repo.setMeta("staff", models.UserMeta{Key: models.MetaParentUser, Value: "lead"})
	repo.setMeta("x", models.UserMeta{Key: models.MetaParentUser, Value: "y"})
	repo.setMeta("y", models.UserMeta{Key: models.MetaParentUser, Value: "x"})

	roots, err := svc.HierarchyTree(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "boss", roots[0].ID)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "lead", roots[0].Children[0].ID)
	assert.Equal(t, "staff", roots[0].Children[0].Children[0].ID)
	assert.Equal(t, "x", roots[1].ID)
	require.Len(t, roots[1].Children, 1)
	assert.Equal(t, "y", roots[1].Children[0].ID)
	assert.Empty(t, roots[1].Children[0].Children)

	subtree, err := svc.HierarchyTree(context.Background(), "lead")
	require.NoError(t, err)
	require.Len(t, subtree, 1)
	assert.Equal(t, "staff", subtree[0].Children[0].ID)

	_, err = svc.HierarchyTree(context.Background(), "ghost")
	require.Error(t, err)
}

func TestUserServiceEnsureAdmin(t *testing.T) {
	svc, repo, _ := newUserFixture()
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "", "", "")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.EnsureAdmin(ctx, "Root@Example.com", "bootstrap-pass", "")
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, repo.users, 1)
	for _, u := range repo.users {
		assert.Equal(t, models.RoleAdministrator, u.Role)
		assert.Equal(t, "root@example.com", u.Email)
	}

	created, err = svc.EnsureAdmin(ctx, "other@example.com", "bootstrap-pass", "")
	require.NoError(t, err)
	assert.False(t, created)
}
