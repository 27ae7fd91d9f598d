package models

import (
	"time"

	"github.com/lib/pq"
)

// RoleAdministrator may assign any role and holds every capability.
const RoleAdministrator = "administrator"

// Capabilities understood by the API.
const (
	CapManageRoles      = "manage_roles"
	CapManageUsers      = "manage_users"
	CapDeleteUsers      = "delete_users"
	CapPromoteUsers     = "promote_users"
	CapRequestPromotion = "request_promotion"
	CapReviewPromotions = "review_promotions"
	CapManageDirectory  = "manage_directory"
	CapViewDashboard    = "view_dashboard"
	CapExportData       = "export_data"
	CapSubmitCourses    = "submit_courses"
	CapReviewCourses    = "review_courses"
	CapViewHierarchy    = "view_hierarchy"
)

// CapabilityCatalogue lists every capability a role may carry.
var CapabilityCatalogue = []string{
	CapManageRoles,
	CapManageUsers,
	CapDeleteUsers,
	CapPromoteUsers,
	CapRequestPromotion,
	CapReviewPromotions,
	CapManageDirectory,
	CapViewDashboard,
	CapExportData,
	CapSubmitCourses,
	CapReviewCourses,
	CapViewHierarchy,
}

// IsKnownCapability reports whether c is part of the catalogue.
func IsKnownCapability(c string) bool {
	for _, known := range CapabilityCatalogue {
		if known == c {
			return true
		}
	}
	return false
}

// Role is a node of the role forest.
type Role struct {
	ID           string         `db:"id" json:"id"`
	DisplayName  string         `db:"display_name" json:"displayName"`
	ParentID     *string        `db:"parent_id" json:"parentId,omitempty"`
	Capabilities pq.StringArray `db:"capabilities" json:"capabilities"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// RoleDetail pairs a role with its resolved capability set.
type RoleDetail struct {
	Role
	EffectiveCapabilities []string `json:"effectiveCapabilities"`
}
