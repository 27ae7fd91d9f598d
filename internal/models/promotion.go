package models

import "time"

// PromotionStatus captures workflow states for promotion requests.
type PromotionStatus string

const (
	PromotionPending  PromotionStatus = "pending"
	PromotionApproved PromotionStatus = "approved"
	PromotionRejected PromotionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s PromotionStatus) Valid() bool {
	switch s {
	case PromotionPending, PromotionApproved, PromotionRejected:
		return true
	}
	return false
}

// PromotionRequest proposes moving a user to another role.
type PromotionRequest struct {
	ID            int64           `db:"id" json:"id"`
	RequesterID   string          `db:"requester_id" json:"requesterId"`
	UserID        string          `db:"user_id" json:"userId"`
	CurrentRole   string          `db:"current_role_id" json:"currentRole"`
	RequestedRole string          `db:"requested_role_id" json:"requestedRole"`
	Reason        string          `db:"reason" json:"reason"`
	Status        PromotionStatus `db:"status" json:"status"`
	AdminNotes    *string         `db:"admin_notes" json:"adminNotes,omitempty"`
	ReviewedBy    *string         `db:"reviewed_by" json:"reviewedBy,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// PromotionFilter constrains listing queries.
type PromotionFilter struct {
	Status      PromotionStatus
	UserID      string
	RequesterID string
	Offset      int
	Limit       int
}
