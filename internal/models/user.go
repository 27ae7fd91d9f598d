package models

import "time"

// Meta keys stored in user_meta. Sites are multi-valued: one row per site.
const (
	MetaParentUser     = "parent_user_id"
	MetaProgram        = "program"
	MetaSite           = "site"
	MetaTrainingStatus = "training_status"
	MetaTrainingDate   = "training_date"
)

// TrainingDateLayout is the storage format of MetaTrainingDate.
const TrainingDateLayout = "2006-01-02"

// TrainingStatus tracks where a user stands in their mandatory training.
type TrainingStatus string

const (
	TrainingNotStarted TrainingStatus = "not_started"
	TrainingInProgress TrainingStatus = "in_progress"
	TrainingCompleted  TrainingStatus = "completed"
	TrainingExpired    TrainingStatus = "expired"
)

var trainingStatusNames = map[TrainingStatus]string{
	TrainingNotStarted: "Not Started",
	TrainingInProgress: "In Progress",
	TrainingCompleted:  "Completed",
	TrainingExpired:    "Expired",
}

// Valid reports whether s is a known training status.
func (s TrainingStatus) Valid() bool {
	_, ok := trainingStatusNames[s]
	return ok
}

// DisplayName returns the label shown in listings. Unset statuses read as
// "Not Started".
func (s TrainingStatus) DisplayName() string {
	if s == "" {
		return trainingStatusNames[TrainingNotStarted]
	}
	if name, ok := trainingStatusNames[s]; ok {
		return name
	}
	return string(s)
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         string     `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserMeta is one key/value attribute row.
type UserMeta struct {
	UserID string `db:"user_id" json:"userId"`
	Key    string `db:"meta_key" json:"key"`
	Value  string `db:"meta_value" json:"value"`
}

// UserAttributes is the typed view over a user's meta rows.
type UserAttributes struct {
	ParentUserID   *string        `json:"parentUserId,omitempty"`
	Program        string         `json:"program"`
	Sites          []string       `json:"sites"`
	TrainingStatus TrainingStatus `json:"trainingStatus"`
	TrainingDate   *string        `json:"trainingDate,omitempty"`
}

// AttributesFromMeta folds meta rows into UserAttributes. Unknown keys are ignored.
func AttributesFromMeta(rows []UserMeta) UserAttributes {
	attrs := UserAttributes{Sites: []string{}}
	for _, row := range rows {
		switch row.Key {
		case MetaParentUser:
			if row.Value != "" {
				v := row.Value
				attrs.ParentUserID = &v
			}
		case MetaProgram:
			attrs.Program = row.Value
		case MetaSite:
			if row.Value != "" {
				attrs.Sites = append(attrs.Sites, row.Value)
			}
		case MetaTrainingStatus:
			attrs.TrainingStatus = TrainingStatus(row.Value)
		case MetaTrainingDate:
			if row.Value != "" {
				v := row.Value
				attrs.TrainingDate = &v
			}
		}
	}
	return attrs
}

// UserProfile combines a user with its attributes and display names.
type UserProfile struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FullName           string    `json:"fullName"`
	Role               string    `json:"role"`
	RoleName           string    `json:"roleName"`
	Active             bool      `json:"active"`
	TrainingStatusName string    `json:"trainingStatusName"`
	CreatedAt          time.Time `json:"createdAt"`
	UserAttributes
}

// HierarchyNode is one user in the reporting tree.
type HierarchyNode struct {
	ID       string           `json:"id"`
	FullName string           `json:"fullName"`
	Role     string           `json:"role"`
	Children []*HierarchyNode `json:"children"`
}

// Pagination contains offset pagination metadata returned in list responses.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// Actor identifies who performs a mutating call and from where.
type Actor struct {
	ID        string
	Role      string
	IP        string
	UserAgent string
}
