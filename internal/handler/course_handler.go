package handler

import (
	"context"
	"errors"
	"fmt"
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

type courseService interface {
	Submit(ctx context.Context, actor models.Actor, req dto.SubmitCourseRequest, upload *dto.CertificateUpload) (*models.ExternalCourse, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.ExternalCourse, error)
	List(ctx context.Context, actor models.Actor, query dto.CourseQuery) ([]models.ExternalCourse, *models.Pagination, error)
	Review(ctx context.Context, actor models.Actor, id int64, req dto.ReviewCourseRequest) (*models.ExternalCourse, error)
	CertificateLink(ctx context.Context, actor models.Actor, id int64) (*dto.CertificateLinkResponse, error)
	OpenCertificate(ctx context.Context, token string) (*service.CertificateDownload, error)
}

// CourseHandler serves external course submissions and certificate downloads.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// Submit godoc
// @Summary Submit external course
// @Description Multipart form with an optional "certificate" file (PDF, PNG or JPEG)
// @Tags Courses
// @Accept multipart/form-data
// @Produce json
// @Param courseName formData string true "Course name"
// @Param provider formData string true "Provider"
// @Param instructor formData string false "Instructor"
// @Param hours formData number true "Hours"
// @Param certificate formData file false "Certificate"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Submit(c *gin.Context) {
	var req dto.SubmitCourseRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	var upload *dto.CertificateUpload
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("certificate")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid certificate upload"))
			return
		default:
			file, err := header.Open()
			if err != nil {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read certificate"))
				return
			}
			defer file.Close()
			upload = &dto.CertificateUpload{Filename: header.Filename, Size: header.Size, Content: file}
		}
	}

	course, err := h.service.Submit(c.Request.Context(), middleware.Actor(c), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Mine godoc
// @Summary My external courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/mine [get]
func (h *CourseHandler) Mine(c *gin.Context) {
	items, err := h.service.ListMine(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// List godoc
// @Summary List external courses
// @Tags Courses
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param userId query string false "Owner"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var query dto.CourseQuery
	if !bindQuery(c, &query) {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), middleware.Actor(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Review godoc
// @Summary Review external course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body dto.ReviewCourseRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/review [post]
func (h *CourseHandler) Review(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReviewCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.service.Review(c.Request.Context(), middleware.Actor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CertificateLink godoc
// @Summary Certificate download link
// @Description Issues a short-lived signed URL for the owner or a reviewer
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/certificate [get]
func (h *CourseHandler) CertificateLink(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	link, err := h.service.CertificateLink(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download certificate
// @Tags Courses
// @Produce application/octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /courses/certificates/{token} [get]
func (h *CourseHandler) Download(c *gin.Context) {
	download, err := h.service.OpenCertificate(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.DataFromReader(http.StatusOK, download.SizeBytes, download.MimeType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
		"Cache-Control":       "private, no-store",
	})
}
