package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/service"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/response"
)

type directoryService interface {
	List(ctx context.Context) ([]models.ProgramSite, error)
	Programs(ctx context.Context) ([]string, error)
	SitesByProgram(ctx context.Context, program string) ([]string, error)
	Add(ctx context.Context, actor models.Actor, req dto.ProgramSiteRequest) (*models.ProgramSite, error)
	Edit(ctx context.Context, actor models.Actor, id int64, req dto.ProgramSiteRequest) (*models.ProgramSite, error)
	Remove(ctx context.Context, actor models.Actor, id int64) error
	Import(ctx context.Context, actor models.Actor, r io.Reader) (*models.ImportResult, error)
	Export(ctx context.Context, format string) (*service.ExportFile, error)
}

// DirectoryHandler serves the program/site directory.
type DirectoryHandler struct {
	service directoryService
}

// NewDirectoryHandler constructs a directory handler.
func NewDirectoryHandler(svc directoryService) *DirectoryHandler {
	return &DirectoryHandler{service: svc}
}

// List godoc
// @Summary List program/site mappings
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /directory [get]
func (h *DirectoryHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Programs godoc
// @Summary Distinct programs
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /directory/programs [get]
func (h *DirectoryHandler) Programs(c *gin.Context) {
	programs, err := h.service.Programs(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, nil)
}

// Sites godoc
// @Summary Sites of a program
// @Tags Directory
// @Produce json
// @Param program query string true "Program"
// @Success 200 {object} response.Envelope
// @Router /directory/sites [get]
func (h *DirectoryHandler) Sites(c *gin.Context) {
	sites, err := h.service.SitesByProgram(c.Request.Context(), c.Query("program"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sites, nil)
}

// Create godoc
// @Summary Add program/site mapping
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.ProgramSiteRequest true "Mapping"
// @Success 201 {object} response.Envelope
// @Router /directory [post]
func (h *DirectoryHandler) Create(c *gin.Context) {
	var req dto.ProgramSiteRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Add(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Edit program/site mapping
// @Tags Directory
// @Accept json
// @Produce json
// @Param id path int true "Mapping ID"
// @Param payload body dto.ProgramSiteRequest true "Mapping"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /directory/{id} [put]
func (h *DirectoryHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ProgramSiteRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Edit(c.Request.Context(), middleware.Actor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete program/site mapping
// @Description Requires the X-Confirm-Action: delete header
// @Tags Directory
// @Param id path int true "Mapping ID"
// @Success 204
// @Failure 428 {object} response.Envelope
// @Router /directory/{id} [delete]
func (h *DirectoryHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Remove(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import program/site CSV
// @Description Accepts a multipart "file" field or a raw text/csv body
// @Tags Directory
// @Accept multipart/form-data
// @Accept text/csv
// @Produce json
// @Param file formData file false "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /directory/import [post]
func (h *DirectoryHandler) Import(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
			return
		}
		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload"))
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.service.Import(c.Request.Context(), middleware.Actor(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export program/site directory
// @Tags Directory
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /directory/export [get]
func (h *DirectoryHandler) Export(c *gin.Context) {
	file, err := h.service.Export(c.Request.Context(), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}
