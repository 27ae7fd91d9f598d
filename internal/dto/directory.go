package dto

// ProgramSiteRequest payload for adding or editing a mapping.
type ProgramSiteRequest struct {
	Program string `json:"program" validate:"required,max=200"`
	Site    string `json:"site" validate:"required,max=200"`
}
