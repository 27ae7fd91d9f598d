package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/pkg/response"
)

type promotionService interface {
	Submit(ctx context.Context, actor models.Actor, req dto.SubmitPromotionRequest) (*models.PromotionRequest, error)
	DirectPromote(ctx context.Context, actor models.Actor, req dto.DirectPromotionRequest) (*models.User, error)
	Approve(ctx context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error)
	Reject(ctx context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error)
	List(ctx context.Context, actor models.Actor, query dto.PromotionQuery) ([]models.PromotionRequest, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id int64) (*models.PromotionRequest, error)
}

// PromotionHandler serves the promotion workflow.
type PromotionHandler struct {
	service promotionService
}

// NewPromotionHandler constructs a promotion handler.
func NewPromotionHandler(svc promotionService) *PromotionHandler {
	return &PromotionHandler{service: svc}
}

// Submit godoc
// @Summary Request a promotion
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body dto.SubmitPromotionRequest true "Promotion request"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /promotions [post]
func (h *PromotionHandler) Submit(c *gin.Context) {
	var req dto.SubmitPromotionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.service.Submit(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Direct godoc
// @Summary Promote directly
// @Description Applies a role without review
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body dto.DirectPromotionRequest true "Direct promotion"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /promotions/direct [post]
func (h *PromotionHandler) Direct(c *gin.Context) {
	var req dto.DirectPromotionRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.service.DirectPromote(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// List godoc
// @Summary List promotion requests
// @Description Reviewers see every request, others only their own
// @Tags Promotions
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param userId query string false "Subject user"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Router /promotions [get]
func (h *PromotionHandler) List(c *gin.Context) {
	var query dto.PromotionQuery
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

// Get godoc
// @Summary Get promotion request
// @Tags Promotions
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /promotions/{id} [get]
func (h *PromotionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Approve godoc
// @Summary Approve promotion request
// @Description Marks the request approved and applies the role in one step
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.ReviewPromotionRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /promotions/{id}/approve [post]
func (h *PromotionHandler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject promotion request
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.ReviewPromotionRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /promotions/{id}/reject [post]
func (h *PromotionHandler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject)
}

type reviewFunc func(ctx context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error)

func (h *PromotionHandler) review(c *gin.Context, fn reviewFunc) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReviewPromotionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := fn(c.Request.Context(), middleware.Actor(c), id, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
