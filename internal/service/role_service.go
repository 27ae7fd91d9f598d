package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

var roleIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type roleStore interface {
	List(ctx context.Context) ([]models.Role, error)
	FindByID(ctx context.Context, id string) (*models.Role, error)
	Create(ctx context.Context, role *models.Role) error
	Update(ctx context.Context, role *models.Role) error
}

// RoleService manages the role hierarchy and answers capability questions.
type RoleService struct {
	repo      roleStore
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(repo roleStore, cache *CacheService, audit auditRecorder, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = noopAuditor{}
	}
	return &RoleService{
		repo:      repo,
		cache:     cache,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Forest loads the current hierarchy.
func (s *RoleService) Forest(ctx context.Context) (*RoleForest, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	return NewRoleForest(roles), nil
}

// List returns every role with its inherited capability set.
func (s *RoleService) List(ctx context.Context) ([]models.RoleDetail, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	forest := NewRoleForest(roles)
	details := make([]models.RoleDetail, 0, len(roles))
	for _, role := range roles {
		caps, err := forest.Resolve(role.ID, true)
		if err != nil {
			return nil, err
		}
		details = append(details, models.RoleDetail{Role: role, EffectiveCapabilities: caps})
	}
	return details, nil
}

// Get returns one role with its inherited capability set.
func (s *RoleService) Get(ctx context.Context, id string) (*models.RoleDetail, error) {
	forest, err := s.Forest(ctx)
	if err != nil {
		return nil, err
	}
	return detailFromForest(forest, id)
}

// Capabilities resolves the capability set of a role, optionally folding in
// the parent chain. Results are cached until the next role write.
func (s *RoleService) Capabilities(ctx context.Context, id string, inherit bool) ([]string, error) {
	key := roleCapabilitiesKey(id, inherit)
	var cached []string
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	forest, err := s.Forest(ctx)
	if err != nil {
		return nil, err
	}
	caps, err := forest.Resolve(id, inherit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, caps, 0)
	return caps, nil
}

// HasCapability reports whether a role holds capability, inheritance included.
// The administrator role holds every capability.
func (s *RoleService) HasCapability(ctx context.Context, roleID, capability string) (bool, error) {
	if roleID == models.RoleAdministrator {
		return true, nil
	}
	caps, err := s.Capabilities(ctx, roleID, true)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
			return false, nil
		}
		return false, err
	}
	for _, c := range caps {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

// AssignableRoles lists the roles an actor holding actorRole may hand out:
// the roles it inherits from. Administrators may hand out every role.
func (s *RoleService) AssignableRoles(ctx context.Context, actorRole string) ([]string, error) {
	forest, err := s.Forest(ctx)
	if err != nil {
		return nil, err
	}
	if actorRole == models.RoleAdministrator {
		ids := make([]string, 0, len(forest.roles))
		for id := range forest.roles {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}
	return forest.Ancestors(actorRole), nil
}

// CanAssign reports whether actorRole may move a user into target.
func (s *RoleService) CanAssign(ctx context.Context, actorRole, target string) (bool, error) {
	forest, err := s.Forest(ctx)
	if err != nil {
		return false, err
	}
	if !forest.Has(target) {
		return false, appErrors.Clone(appErrors.ErrNotFound, "role not found")
	}
	if actorRole == models.RoleAdministrator {
		return true, nil
	}
	return forest.IsAncestor(target, actorRole), nil
}

// Exists reports whether a role is stored under id.
func (s *RoleService) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := s.findRole(ctx, id); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DisplayNames maps role IDs to their display names.
func (s *RoleService) DisplayNames(ctx context.Context) (map[string]string, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	names := make(map[string]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.DisplayName
	}
	return names, nil
}

// Create adds a role after validating its slug, parent and capabilities.
func (s *RoleService) Create(ctx context.Context, actor models.Actor, req dto.CreateRoleRequest) (*models.RoleDetail, error) {
	req.ID = strings.ToLower(strings.TrimSpace(req.ID))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if !roleIDPattern.MatchString(req.ID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role id may only contain lowercase letters, digits, '-' and '_'")
	}
	caps, err := normaliseCapabilities(req.Capabilities)
	if err != nil {
		return nil, err
	}

	forest, err := s.Forest(ctx)
	if err != nil {
		return nil, err
	}
	if forest.Has(req.ID) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "role already exists")
	}
	parentID := normaliseParent(req.ParentID)
	if parentID != nil {
		if !forest.Has(*parentID) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent role not found")
		}
		if forest.WouldCreateCycle(req.ID, *parentID) {
			return nil, appErrors.Clone(appErrors.ErrRoleCycle, "")
		}
	}

	role := &models.Role{
		ID:           req.ID,
		DisplayName:  req.DisplayName,
		ParentID:     parentID,
		Capabilities: caps,
	}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}
	s.afterWrite(ctx, actor, models.AuditActionRoleCreate, role.ID, nil, role)
	return s.Get(ctx, role.ID)
}

// UpdateCapabilities replaces the own capability set of a role.
func (s *RoleService) UpdateCapabilities(ctx context.Context, actor models.Actor, id string, capabilities []string) (*models.RoleDetail, error) {
	caps, err := normaliseCapabilities(capabilities)
	if err != nil {
		return nil, err
	}
	role, err := s.findRole(ctx, id)
	if err != nil {
		return nil, err
	}
	before := append([]string(nil), role.Capabilities...)
	role.Capabilities = caps
	if err := s.update(ctx, role); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, models.AuditActionRoleCapabilities, role.ID,
		map[string]interface{}{"capabilities": before},
		map[string]interface{}{"capabilities": caps})
	return s.Get(ctx, role.ID)
}

// SetParent moves a role under parentID. A nil or empty parent detaches it.
func (s *RoleService) SetParent(ctx context.Context, actor models.Actor, id string, parentID *string) (*models.RoleDetail, error) {
	forest, err := s.Forest(ctx)
	if err != nil {
		return nil, err
	}
	stored, ok := forest.Role(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
	}
	role := stored
	parentID = normaliseParent(parentID)
	if parentID != nil {
		if !forest.Has(*parentID) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent role not found")
		}
		if forest.WouldCreateCycle(id, *parentID) {
			return nil, appErrors.Clone(appErrors.ErrRoleCycle, "")
		}
	}
	role.ParentID = parentID
	if err := s.update(ctx, &role); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, models.AuditActionRoleParent, id,
		map[string]interface{}{"parentId": stored.ParentID},
		map[string]interface{}{"parentId": parentID})
	return s.Get(ctx, id)
}

// InheritParent copies the resolved capabilities of the parent chain into the
// role's own set.
func (s *RoleService) InheritParent(ctx context.Context, actor models.Actor, id string) (*models.RoleDetail, error) {
	forest, err := s.Forest(ctx)
	if err != nil {
		return nil, err
	}
	role, ok := forest.Role(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
	}
	if role.ParentID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role has no parent to inherit from")
	}
	parentCaps, err := forest.Resolve(*role.ParentID, true)
	if err != nil {
		return nil, err
	}
	before := append([]string(nil), role.Capabilities...)
	merged := make(map[string]struct{}, len(before)+len(parentCaps))
	for _, c := range before {
		merged[c] = struct{}{}
	}
	for _, c := range parentCaps {
		merged[c] = struct{}{}
	}
	role.Capabilities = sortedKeys(merged)
	if err := s.update(ctx, &role); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, models.AuditActionRoleInherit, id,
		map[string]interface{}{"capabilities": before},
		map[string]interface{}{"capabilities": []string(role.Capabilities)})
	return s.Get(ctx, id)
}

func (s *RoleService) findRole(ctx context.Context, id string) (*models.Role, error) {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}
	return role, nil
}

func (s *RoleService) update(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	return nil
}

func (s *RoleService) afterWrite(ctx context.Context, actor models.Actor, action, roleID string, before, after interface{}) {
	s.cache.Invalidate(ctx, rolesCachePattern, dashboardCachePattern)
	s.audit.Record(ctx, newAuditEntry(actor, action, "role", roleID, before, after))
	s.logger.Info("role updated", zap.String("role_id", roleID), zap.String("action", action), zap.String("actor", actor.ID))
}

func detailFromForest(forest *RoleForest, id string) (*models.RoleDetail, error) {
	role, ok := forest.Role(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
	}
	caps, err := forest.Resolve(id, true)
	if err != nil {
		return nil, err
	}
	return &models.RoleDetail{Role: role, EffectiveCapabilities: caps}, nil
}

func normaliseCapabilities(capabilities []string) ([]string, error) {
	set := make(map[string]struct{}, len(capabilities))
	for _, raw := range capabilities {
		c := strings.ToLower(strings.TrimSpace(raw))
		if c == "" {
			continue
		}
		if !models.IsKnownCapability(c) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown capability %q", raw))
		}
		set[c] = struct{}{}
	}
	return sortedKeys(set), nil
}

func normaliseParent(parentID *string) *string {
	if parentID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*parentID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
