package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
)

// TokenValidator verifies bearer access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// AuditRecorder persists audit entries for routes that services do not audit.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// Routes bundles everything needed to mount the API.
type Routes struct {
	Tokens       TokenValidator
	CurrentRoles middleware.RoleLookup
	Capabilities middleware.CapabilityChecker
	Audit        AuditRecorder

	Auth       *AuthHandler
	Users      *UserHandler
	Roles      *RoleHandler
	Promotions *PromotionHandler
	Directory  *DirectoryHandler
	Courses    *CourseHandler
}

// Register mounts the API under group.
func (r Routes) Register(group *gin.RouterGroup) {
	can := func(capabilities ...string) gin.HandlerFunc {
		return middleware.RequireCapability(r.Capabilities, capabilities...)
	}
	canOrSelf := func(capabilities ...string) gin.HandlerFunc {
		return middleware.RequireCapabilityOrSelf(r.Capabilities, "id", capabilities...)
	}
	confirmDelete := middleware.RequireConfirmation("delete")

	group.POST("/auth/login", r.Auth.Login)
	group.POST("/auth/refresh", r.Auth.Refresh)
	group.GET("/courses/certificates/:token", r.Courses.Download)

	secured := group.Group("", middleware.JWT(r.Tokens), middleware.CurrentRole(r.CurrentRoles))
	secured.POST("/auth/logout", r.Auth.Logout)
	secured.POST("/auth/change-password", r.Auth.ChangePassword)
	secured.GET("/auth/me", r.Auth.Me)

	users := secured.Group("/users")
	users.GET("", can(models.CapViewDashboard), r.Users.List)
	users.POST("", can(models.CapManageUsers), r.Users.Create)
	users.GET("/hierarchy", can(models.CapViewHierarchy), r.Users.Hierarchy)
	users.GET("/:id", canOrSelf(models.CapManageUsers), r.Users.Get)
	users.GET("/:id/profile", canOrSelf(models.CapViewDashboard), r.Users.Profile)
	users.PATCH("/:id", can(models.CapManageUsers), r.Users.QuickEdit)
	users.DELETE("/:id", can(models.CapDeleteUsers), confirmDelete, r.Users.Delete)

	secured.GET("/dashboard/users/export", can(models.CapExportData),
		middleware.Audit(r.Audit, models.AuditActionDataExport, "users"), r.Users.Export)

	roles := secured.Group("/roles", can(models.CapManageRoles))
	roles.GET("", r.Roles.List)
	roles.POST("", r.Roles.Create)
	roles.GET("/:id", r.Roles.Get)
	roles.GET("/:id/capabilities", r.Roles.Capabilities)
	roles.PUT("/:id/capabilities", r.Roles.UpdateCapabilities)
	roles.PUT("/:id/parent", r.Roles.SetParent)
	roles.POST("/:id/inherit", r.Roles.Inherit)

	promotions := secured.Group("/promotions")
	promotions.GET("", r.Promotions.List)
	promotions.POST("", can(models.CapRequestPromotion), r.Promotions.Submit)
	promotions.POST("/direct", can(models.CapPromoteUsers), r.Promotions.Direct)
	promotions.GET("/:id", r.Promotions.Get)
	promotions.POST("/:id/approve", can(models.CapReviewPromotions), r.Promotions.Approve)
	promotions.POST("/:id/reject", can(models.CapReviewPromotions), r.Promotions.Reject)

	directory := secured.Group("/directory")
	directory.GET("", r.Directory.List)
	directory.GET("/programs", r.Directory.Programs)
	directory.GET("/sites", r.Directory.Sites)
	directory.GET("/export", can(models.CapExportData),
		middleware.Audit(r.Audit, models.AuditActionDataExport, "program_site"), r.Directory.Export)
	directory.POST("", can(models.CapManageDirectory), r.Directory.Create)
	directory.POST("/import", can(models.CapManageDirectory), r.Directory.Import)
	directory.PUT("/:id", can(models.CapManageDirectory), r.Directory.Update)
	directory.DELETE("/:id", can(models.CapManageDirectory), confirmDelete, r.Directory.Delete)

	courses := secured.Group("/courses")
	courses.GET("", can(models.CapReviewCourses), r.Courses.List)
	courses.POST("", can(models.CapSubmitCourses), r.Courses.Submit)
	courses.GET("/mine", can(models.CapSubmitCourses), r.Courses.Mine)
	courses.POST("/:id/review", can(models.CapReviewCourses), r.Courses.Review)
	courses.GET("/:id/certificate", r.Courses.CertificateLink)
}
