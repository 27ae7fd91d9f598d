package dto

// CreateRoleRequest payload for adding a role to the hierarchy.
type CreateRoleRequest struct {
	ID           string   `json:"id" validate:"required,max=64"`
	DisplayName  string   `json:"displayName" validate:"required,max=120"`
	ParentID     *string  `json:"parentId"`
	Capabilities []string `json:"capabilities"`
}

// UpdateCapabilitiesRequest replaces the own capability set of a role.
type UpdateCapabilitiesRequest struct {
	Capabilities []string `json:"capabilities"`
}

// SetParentRequest moves a role under another one. A null parent detaches it.
type SetParentRequest struct {
	ParentID *string `json:"parentId"`
}

// RoleCapabilitiesResponse is returned by the capability lookup.
type RoleCapabilitiesResponse struct {
	RoleID       string   `json:"roleId"`
	Inherit      bool     `json:"inherit"`
	Capabilities []string `json:"capabilities"`
}
