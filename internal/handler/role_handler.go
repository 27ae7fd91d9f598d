package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/response"
)

type roleService interface {
	List(ctx context.Context) ([]models.RoleDetail, error)
	Get(ctx context.Context, id string) (*models.RoleDetail, error)
	Capabilities(ctx context.Context, id string, inherit bool) ([]string, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreateRoleRequest) (*models.RoleDetail, error)
	UpdateCapabilities(ctx context.Context, actor models.Actor, id string, capabilities []string) (*models.RoleDetail, error)
	SetParent(ctx context.Context, actor models.Actor, id string, parentID *string) (*models.RoleDetail, error)
	InheritParent(ctx context.Context, actor models.Actor, id string) (*models.RoleDetail, error)
}

// RoleHandler exposes the role hierarchy.
type RoleHandler struct {
	service roleService
}

// NewRoleHandler constructs a role handler.
func NewRoleHandler(svc roleService) *RoleHandler {
	return &RoleHandler{service: svc}
}

// List godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles [get]
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// Get godoc
// @Summary Get role
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /roles/{id} [get]
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}

// Capabilities godoc
// @Summary Role capabilities
// @Description Own capabilities, or the union along the parent chain when inherit is true
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Param inherit query bool false "Include inherited capabilities (default true)"
// @Success 200 {object} response.Envelope
// @Router /roles/{id}/capabilities [get]
func (h *RoleHandler) Capabilities(c *gin.Context) {
	inherit, err := strconv.ParseBool(c.DefaultQuery("inherit", "true"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "inherit must be a boolean"))
		return
	}

	id := c.Param("id")
	caps, err := h.service.Capabilities(c.Request.Context(), id, inherit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RoleCapabilitiesResponse{RoleID: id, Inherit: inherit, Capabilities: caps}, nil)
}

// Create godoc
// @Summary Create role
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoleRequest true "Role payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /roles [post]
func (h *RoleHandler) Create(c *gin.Context) {
	var req dto.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.service.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// UpdateCapabilities godoc
// @Summary Replace role capabilities
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param payload body dto.UpdateCapabilitiesRequest true "Capabilities"
// @Success 200 {object} response.Envelope
// @Router /roles/{id}/capabilities [put]
func (h *RoleHandler) UpdateCapabilities(c *gin.Context) {
	var req dto.UpdateCapabilitiesRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.service.UpdateCapabilities(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.Capabilities)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}

// SetParent godoc
// @Summary Move role
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param payload body dto.SetParentRequest true "New parent"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /roles/{id}/parent [put]
func (h *RoleHandler) SetParent(c *gin.Context) {
	var req dto.SetParentRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.service.SetParent(c.Request.Context(), middleware.Actor(c), c.Param("id"), req.ParentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}

// Inherit godoc
// @Summary Copy parent capabilities
// @Description Merges the parent's effective capabilities into the role's own set
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} response.Envelope
// @Router /roles/{id}/inherit [post]
func (h *RoleHandler) Inherit(c *gin.Context) {
	role, err := h.service.InheritParent(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}
