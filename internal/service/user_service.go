package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/repository"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *models.User, meta []models.UserMeta) error
	ApplyQuickEdit(ctx context.Context, user *models.User, keys []string, meta []models.UserMeta) error
	Delete(ctx context.Context, id string) error
	ListMeta(ctx context.Context, userID string) ([]models.UserMeta, error)
	ListHierarchy(ctx context.Context) ([]repository.HierarchyRow, error)
	ParentLinks(ctx context.Context) (map[string]string, error)
}

type roleDirectory interface {
	roleAuthority
	DisplayNames(ctx context.Context) (map[string]string, error)
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	roles     roleDirectory
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, roles roleDirectory, cache *CacheService, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if audit == nil {
		audit = noopAuditor{}
	}
	return &UserService{repo: repo, roles: roles, cache: cache, audit: audit, validator: validate, logger: logger}
}

// Get returns a user together with its profile attributes.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, err := s.repo.ListMeta(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user attributes")
	}
	names, err := s.roles.DisplayNames(ctx)
	if err != nil {
		return nil, err
	}
	profile := buildProfile(*user, meta, names)
	return &profile, nil
}

// Create adds a new user with its initial attributes.
func (s *UserService) Create(ctx context.Context, actor models.Actor, req dto.CreateUserRequest) (*models.UserProfile, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	req.Role = strings.TrimSpace(req.Role)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if err := s.ensureAssignable(ctx, actor, req.Role); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	userID := uuid.NewString()
	if req.ParentUserID != nil {
		if err := s.ensureParent(ctx, userID, strings.TrimSpace(*req.ParentUserID)); err != nil {
			return nil, err
		}
	}
	attrs := dto.QuickEditUserRequest{
		ParentUserID: req.ParentUserID,
		Program:      &req.Program,
		Sites:        &req.Sites,
	}
	if req.TrainingStatus != "" {
		attrs.TrainingStatus = &req.TrainingStatus
	}
	if req.TrainingDate != "" {
		attrs.TrainingDate = &req.TrainingDate
	}
	_, meta, err := s.buildMeta(userID, attrs)
	if err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		ID:           userID,
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user, meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.cache.Invalidate(ctx, dashboardCachePattern)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionUserCreate, "users", user.ID, nil,
		map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role}))
	return s.Get(ctx, user.ID)
}

// QuickEdit updates the fields present in req. Meta keys that are touched are
// replaced as a whole.
func (s *UserService) QuickEdit(ctx context.Context, actor models.Actor, id string, req dto.QuickEditUserRequest) (*models.UserProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quick edit payload")
	}
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "full name cannot be empty")
		}
		user.FullName = name
	}
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		if role != user.Role {
			if err := s.ensureAssignable(ctx, actor, role); err != nil {
				return nil, err
			}
			user.Role = role
		}
	}
	if req.ParentUserID != nil {
		if err := s.ensureParent(ctx, id, strings.TrimSpace(*req.ParentUserID)); err != nil {
			return nil, err
		}
	}
	keys, meta, err := s.buildMeta(id, req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ApplyQuickEdit(ctx, user, keys, meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.cache.Invalidate(ctx, profileCachePattern(id), dashboardCachePattern)
	after, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionUserQuickEdit, "users", id, before, after))
	return after, nil
}

// Delete deactivates a user. Actors cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "you cannot delete your own account")
	}
	user, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.cache.Invalidate(ctx, profileCachePattern(id), dashboardCachePattern)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionUserDelete, "users", id,
		map[string]interface{}{"email": user.Email, "role": user.Role, "active": true},
		map[string]interface{}{"active": false}))
	return nil
}

// HierarchyTree nests active users under their reporting parent. With rootID
// only that user's subtree is returned. Users caught in a reporting loop are
// listed once, the loop being cut where it is first revisited.
func (s *UserService) HierarchyTree(ctx context.Context, rootID string) ([]*models.HierarchyNode, error) {
	rows, err := s.repo.ListHierarchy(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hierarchy")
	}

	byID := make(map[string]repository.HierarchyRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	children := make(map[string][]string)
	for _, row := range rows {
		if row.ParentID.Valid {
			if _, ok := byID[row.ParentID.String]; ok {
				children[row.ParentID.String] = append(children[row.ParentID.String], row.ID)
			}
		}
	}

	visited := make(map[string]bool, len(rows))
	var build func(id string) *models.HierarchyNode
	build = func(id string) *models.HierarchyNode {
		visited[id] = true
		row := byID[id]
		node := &models.HierarchyNode{ID: row.ID, FullName: row.FullName, Role: row.Role, Children: []*models.HierarchyNode{}}
		for _, child := range children[id] {
			if !visited[child] {
				node.Children = append(node.Children, build(child))
			}
		}
		return node
	}

	if rootID != "" {
		if _, ok := byID[rootID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return []*models.HierarchyNode{build(rootID)}, nil
	}

	roots := make([]*models.HierarchyNode, 0)
	for _, row := range rows {
		if _, hasParent := byID[row.ParentID.String]; row.ParentID.Valid && hasParent {
			continue
		}
		roots = append(roots, build(row.ID))
	}
	for _, row := range rows {
		if !visited[row.ID] {
			roots = append(roots, build(row.ID))
		}
	}
	return roots, nil
}

// EnsureAdmin creates the first administrator when the users table is empty.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	if count > 0 {
		return false, nil
	}
	if strings.TrimSpace(fullName) == "" {
		fullName = "Administrator"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		Role:         models.RoleAdministrator,
		Active:       true,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user, nil); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create administrator")
	}
	s.logger.Info("bootstrap administrator created", zap.String("email", email))
	return true, nil
}

// CurrentRole returns the role stored for an active user. Deleted or
// deactivated accounts are unauthorized.
func (s *UserService) CurrentRole(ctx context.Context, userID string) (string, error) {
	key := profileRoleKey(userID)
	var role string
	if s.cache.Get(ctx, key, &role) {
		return role, nil
	}
	user, err := s.find(ctx, userID)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "account is no longer active")
		}
		return "", err
	}
	s.cache.Set(ctx, key, user.Role, 0)
	return user.Role, nil
}

func (s *UserService) find(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

func (s *UserService) ensureAssignable(ctx context.Context, actor models.Actor, role string) error {
	exists, err := s.roles.Exists(ctx, role)
	if err != nil {
		return err
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrValidation, "role not found")
	}
	allowed, err := s.roles.CanAssign(ctx, actor.Role, role)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "role is outside the actor's hierarchy")
	}
	return nil
}

// ensureParent rejects parent links that point at the user itself, at a
// missing user or that would close a reporting loop.
func (s *UserService) ensureParent(ctx context.Context, userID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == userID {
		return appErrors.Clone(appErrors.ErrValidation, "a user cannot report to themselves")
	}
	if _, err := s.find(ctx, parentID); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "parent user not found")
	}
	links, err := s.repo.ParentLinks(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reporting lines")
	}
	visited := map[string]bool{}
	for current := parentID; current != ""; current = links[current] {
		if current == userID {
			return appErrors.Clone(appErrors.ErrValidation, "parent link would create a reporting loop")
		}
		if visited[current] {
			break
		}
		visited[current] = true
	}
	return nil
}

// buildMeta validates the attribute fields of req and returns the meta keys
// to replace with their new rows.
func (s *UserService) buildMeta(userID string, req dto.QuickEditUserRequest) ([]string, []models.UserMeta, error) {
	var (
		keys []string
		rows []models.UserMeta
	)
	add := func(key, value string) {
		rows = append(rows, models.UserMeta{UserID: userID, Key: key, Value: value})
	}

	if req.ParentUserID != nil {
		keys = append(keys, models.MetaParentUser)
		if parent := strings.TrimSpace(*req.ParentUserID); parent != "" {
			add(models.MetaParentUser, parent)
		}
	}
	if req.Program != nil {
		keys = append(keys, models.MetaProgram)
		if program := strings.TrimSpace(*req.Program); program != "" {
			add(models.MetaProgram, program)
		}
	}
	if req.Sites != nil {
		keys = append(keys, models.MetaSite)
		seen := map[string]bool{}
		for _, site := range *req.Sites {
			site = strings.TrimSpace(site)
			if site == "" || seen[site] {
				continue
			}
			seen[site] = true
			add(models.MetaSite, site)
		}
	}
	if req.TrainingStatus != nil {
		keys = append(keys, models.MetaTrainingStatus)
		status := models.TrainingStatus(strings.TrimSpace(*req.TrainingStatus))
		if status != "" {
			if !status.Valid() {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown training status")
			}
			add(models.MetaTrainingStatus, string(status))
		}
	}
	if req.TrainingDate != nil {
		keys = append(keys, models.MetaTrainingDate)
		date := strings.TrimSpace(*req.TrainingDate)
		if date != "" {
			if _, err := time.Parse(models.TrainingDateLayout, date); err != nil {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "training date must be YYYY-MM-DD")
			}
			add(models.MetaTrainingDate, date)
		}
	}
	return keys, rows, nil
}

func buildProfile(user models.User, meta []models.UserMeta, roleNames map[string]string) models.UserProfile {
	attrs := models.AttributesFromMeta(meta)
	roleName := roleNames[user.Role]
	if roleName == "" {
		roleName = user.Role
	}
	return models.UserProfile{
		ID:                 user.ID,
		Email:              user.Email,
		FullName:           user.FullName,
		Role:               user.Role,
		RoleName:           roleName,
		Active:             user.Active,
		TrainingStatusName: attrs.TrainingStatus.DisplayName(),
		CreatedAt:          user.CreatedAt,
		UserAttributes:     attrs,
	}
}
