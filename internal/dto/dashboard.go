package dto

// DashboardQuery is bound from the listing query string.
type DashboardQuery struct {
	Program        string `form:"program"`
	Site           string `form:"site"`
	TrainingStatus string `form:"trainingStatus"`
	DateFrom       string `form:"dateFrom"`
	DateTo         string `form:"dateTo"`
	Role           string `form:"role"`
	Offset         int    `form:"offset"`
	Limit          int    `form:"limit"`
}
