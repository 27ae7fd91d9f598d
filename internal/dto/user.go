package dto

// CreateUserRequest payload for adding a user with profile attributes.
type CreateUserRequest struct {
	Email          string   `json:"email" validate:"required,email"`
	FullName       string   `json:"fullName" validate:"required,max=200"`
	Password       string   `json:"password" validate:"required,min=8"`
	Role           string   `json:"role" validate:"required"`
	ParentUserID   *string  `json:"parentUserId"`
	Program        string   `json:"program"`
	Sites          []string `json:"sites"`
	TrainingStatus string   `json:"trainingStatus"`
	TrainingDate   string   `json:"trainingDate"`
}

// QuickEditUserRequest updates the fields present in the payload. An empty
// ParentUserID or TrainingDate clears the attribute.
type QuickEditUserRequest struct {
	FullName       *string   `json:"fullName" validate:"omitempty,max=200"`
	Role           *string   `json:"role"`
	ParentUserID   *string   `json:"parentUserId"`
	Program        *string   `json:"program"`
	Sites          *[]string `json:"sites"`
	TrainingStatus *string   `json:"trainingStatus"`
	TrainingDate   *string   `json:"trainingDate"`
}
