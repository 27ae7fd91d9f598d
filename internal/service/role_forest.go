package service

import (
	"sort"

	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

// RoleForest is an in-memory view of the role hierarchy: each role points to
// at most one parent. It is rebuilt from storage for every decision and is not
// safe for concurrent mutation.
type RoleForest struct {
	roles map[string]models.Role
}

// NewRoleForest indexes roles by ID.
func NewRoleForest(roles []models.Role) *RoleForest {
	f := &RoleForest{roles: make(map[string]models.Role, len(roles))}
	for _, role := range roles {
		f.roles[role.ID] = role
	}
	return f
}

// Role returns the stored role with the given ID.
func (f *RoleForest) Role(id string) (models.Role, bool) {
	role, ok := f.roles[id]
	return role, ok
}

// Has reports whether the forest contains id.
func (f *RoleForest) Has(id string) bool {
	_, ok := f.roles[id]
	return ok
}

// Resolve returns the capability set of roleID. With inherit, the parent chain
// is folded in. Traversal stops at the first role seen twice or at a parent that
// no longer exists.
func (f *RoleForest) Resolve(roleID string, inherit bool) ([]string, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
	}

	set := make(map[string]struct{})
	visited := make(map[string]struct{})
	for {
		visited[role.ID] = struct{}{}
		for _, capability := range role.Capabilities {
			set[capability] = struct{}{}
		}
		if !inherit || role.ParentID == nil {
			break
		}
		if _, seen := visited[*role.ParentID]; seen {
			break
		}
		parent, ok := f.roles[*role.ParentID]
		if !ok {
			break
		}
		role = parent
	}

	return sortedKeys(set), nil
}

// WouldCreateCycle reports whether giving roleID the parent parentID closes a
// loop. An empty parentID never does.
func (f *RoleForest) WouldCreateCycle(roleID, parentID string) bool {
	if parentID == "" {
		return false
	}
	visited := make(map[string]struct{})
	current := parentID
	for {
		if current == roleID {
			return true
		}
		if _, seen := visited[current]; seen {
			// pre-existing loop that does not pass through roleID
			return false
		}
		visited[current] = struct{}{}

		role, ok := f.roles[current]
		if !ok || role.ParentID == nil || *role.ParentID == "" {
			return false
		}
		current = *role.ParentID
	}
}

// Ancestors returns the parent chain of roleID, nearest first. These are the
// roles whose capabilities roleID inherits.
func (f *RoleForest) Ancestors(roleID string) []string {
	var chain []string
	seen := map[string]struct{}{roleID: {}}
	role, ok := f.roles[roleID]
	for ok && role.ParentID != nil {
		if _, dup := seen[*role.ParentID]; dup {
			break
		}
		seen[*role.ParentID] = struct{}{}
		role, ok = f.roles[*role.ParentID]
		if ok {
			chain = append(chain, role.ID)
		}
	}
	return chain
}

// IsAncestor reports whether ancestorID sits on the parent chain of roleID.
func (f *RoleForest) IsAncestor(ancestorID, roleID string) bool {
	if ancestorID == roleID {
		return false
	}
	role, ok := f.roles[roleID]
	if !ok || role.ParentID == nil {
		return false
	}
	// walking up from the parent reaches the ancestor
	return f.WouldCreateCycle(ancestorID, *role.ParentID)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
