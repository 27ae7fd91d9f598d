package service

import (
	"fmt"

	"github.com/noah-isme/training-roster-api/internal/models"
)

const (
	rolesCachePattern     = "roles:*"
	dashboardCachePattern = "dashboard:*"
)

func roleCapabilitiesKey(roleID string, inherit bool) string {
	return fmt.Sprintf("roles:caps:%s:%t", roleID, inherit)
}

func profileStatsKey(userID string) string {
	return fmt.Sprintf("profile:%s:stats", userID)
}

func profileRoleKey(userID string) string {
	return fmt.Sprintf("profile:%s:role", userID)
}

func profileCachePattern(userID string) string {
	return fmt.Sprintf("profile:%s:*", userID)
}

func dashboardListKey(filter models.DashboardFilter) string {
	return fmt.Sprintf("dashboard:list:%s|%s|%s|%s|%s|%s|%d|%d",
		filter.Program, filter.Site, filter.TrainingStatus, filter.DateFrom, filter.DateTo, filter.Role, filter.Offset, filter.Limit)
}
