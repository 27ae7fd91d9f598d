package dto

import "github.com/noah-isme/training-roster-api/internal/models"

// SubmitPromotionRequest asks for a user to be moved to another role.
type SubmitPromotionRequest struct {
	UserID        string `json:"userId" validate:"required"`
	RequestedRole string `json:"requestedRole" validate:"required"`
	Reason        string `json:"reason" validate:"required,max=2000"`
}

// DirectPromotionRequest applies a role without going through review.
type DirectPromotionRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

// ReviewPromotionRequest carries the reviewer's notes.
type ReviewPromotionRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// PromotionQuery mirrors supported listing filters.
type PromotionQuery struct {
	Status models.PromotionStatus `form:"status"`
	UserID string                 `form:"userId"`
	Offset int                    `form:"offset"`
	Limit  int                    `form:"limit"`
}
