package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"

	AuditActionUserCreate    = "USER_CREATE"
	AuditActionUserQuickEdit = "USER_QUICK_EDIT"
	AuditActionUserDelete    = "USER_DELETE"

	AuditActionRoleCreate       = "ROLE_CREATE"
	AuditActionRoleCapabilities = "ROLE_CAPABILITIES_UPDATE"
	AuditActionRoleParent       = "ROLE_PARENT_UPDATE"
	AuditActionRoleInherit      = "ROLE_INHERIT"

	AuditActionPromotionSubmit  = "PROMOTION_SUBMIT"
	AuditActionPromotionDirect  = "PROMOTION_DIRECT"
	AuditActionPromotionApprove = "PROMOTION_APPROVE"
	AuditActionPromotionReject  = "PROMOTION_REJECT"

	AuditActionDirectoryAdd    = "DIRECTORY_ADD"
	AuditActionDirectoryEdit   = "DIRECTORY_EDIT"
	AuditActionDirectoryRemove = "DIRECTORY_REMOVE"
	AuditActionDirectoryImport = "DIRECTORY_IMPORT"

	AuditActionCourseSubmit = "COURSE_SUBMIT"
	AuditActionCourseReview = "COURSE_REVIEW"

	AuditActionDataExport = "DATA_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
