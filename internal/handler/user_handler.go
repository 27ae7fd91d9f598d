package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/service"
	"github.com/noah-isme/training-roster-api/pkg/response"
)

type userService interface {
	Get(ctx context.Context, id string) (*models.UserProfile, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreateUserRequest) (*models.UserProfile, error)
	QuickEdit(ctx context.Context, actor models.Actor, id string, req dto.QuickEditUserRequest) (*models.UserProfile, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	HierarchyTree(ctx context.Context, rootID string) ([]*models.HierarchyNode, error)
}

type dashboardService interface {
	List(ctx context.Context, query dto.DashboardQuery) ([]models.UserSummary, *models.Pagination, error)
	UserProfileDashboard(ctx context.Context, userID string) (*models.ProfileDashboard, error)
	Export(ctx context.Context, query dto.DashboardQuery, format string) (*service.ExportFile, error)
}

// UserHandler serves the user directory and the training dashboard.
type UserHandler struct {
	users     userService
	dashboard dashboardService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users userService, dashboard dashboardService) *UserHandler {
	return &UserHandler{users: users, dashboard: dashboard}
}

// List godoc
// @Summary Dashboard listing
// @Description Lists users with profile attributes and learning stats
// @Tags Users
// @Produce json
// @Param program query string false "Program"
// @Param site query string false "Site"
// @Param trainingStatus query string false "Training status"
// @Param dateFrom query string false "Training date lower bound (YYYY-MM-DD)"
// @Param dateTo query string false "Training date upper bound (YYYY-MM-DD)"
// @Param role query string false "Role"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var query dto.DashboardQuery
	if !bindQuery(c, &query) {
		return
	}

	items, pagination, err := h.dashboard.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export dashboard
// @Description Exports every user matching the filters as CSV or PDF
// @Tags Users
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /dashboard/users/export [get]
func (h *UserHandler) Export(c *gin.Context) {
	var query dto.DashboardQuery
	if !bindQuery(c, &query) {
		return
	}

	file, err := h.dashboard.Export(c.Request.Context(), query, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.File(c, file.Filename, file.ContentType, file.Data)
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	profile, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Profile godoc
// @Summary Profile dashboard
// @Description Profile, course progress, external courses and stats of one user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
	view, err := h.dashboard.UserProfileDashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "Create user payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.users.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// QuickEdit godoc
// @Summary Quick edit user
// @Description Updates the fields present in the payload
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.QuickEditUserRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id} [patch]
func (h *UserHandler) QuickEdit(c *gin.Context) {
	var req dto.QuickEditUserRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.users.QuickEdit(c.Request.Context(), middleware.Actor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Delete godoc
// @Summary Delete user
// @Description Requires the X-Confirm-Action: delete header
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 428 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Hierarchy godoc
// @Summary Reporting hierarchy
// @Description Tree of users by reporting line, optionally rooted at one user
// @Tags Users
// @Produce json
// @Param root query string false "Root user ID"
// @Success 200 {object} response.Envelope
// @Router /users/hierarchy [get]
func (h *UserHandler) Hierarchy(c *gin.Context) {
	tree, err := h.users.HierarchyTree(c.Request.Context(), c.Query("root"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tree, nil)
}
