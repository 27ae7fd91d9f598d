package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

type fakePromotionSrv struct {
	approved  []int64
	rejected  []int64
	lastNotes string
	lastActor models.Actor
	lastQuery dto.PromotionQuery
	reviewErr error
}

func (f *fakePromotionSrv) Submit(_ context.Context, actor models.Actor, req dto.SubmitPromotionRequest) (*models.PromotionRequest, error) {
	f.lastActor = actor
	return &models.PromotionRequest{ID: 1, UserID: req.UserID, RequestedRole: req.RequestedRole, Status: models.PromotionPending}, nil
}

func (f *fakePromotionSrv) DirectPromote(_ context.Context, _ models.Actor, req dto.DirectPromotionRequest) (*models.User, error) {
	return &models.User{ID: req.UserID, Role: req.Role}, nil
}

func (f *fakePromotionSrv) Approve(_ context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.lastActor = actor
	f.lastNotes = notes
	f.approved = append(f.approved, id)
	return &models.PromotionRequest{ID: id, Status: models.PromotionApproved}, nil
}

func (f *fakePromotionSrv) Reject(_ context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.lastActor = actor
	f.lastNotes = notes
	f.rejected = append(f.rejected, id)
	return &models.PromotionRequest{ID: id, Status: models.PromotionRejected}, nil
}

func (f *fakePromotionSrv) List(_ context.Context, _ models.Actor, query dto.PromotionQuery) ([]models.PromotionRequest, *models.Pagination, error) {
	f.lastQuery = query
	return []models.PromotionRequest{}, &models.Pagination{Limit: 20}, nil
}

func (f *fakePromotionSrv) Get(_ context.Context, _ models.Actor, id int64) (*models.PromotionRequest, error) {
	return &models.PromotionRequest{ID: id}, nil
}

func reviewContext(method, path, body, id string) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: id}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "reviewer", Role: "program-manager"})
	return c, rec
}

func TestPromotionHandlerApproveWithAndWithoutNotes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePromotionSrv{}
	handler := NewPromotionHandler(svc)

	c, rec := reviewContext(http.MethodPost, "/promotions/4/approve", "", "4")
	handler.Approve(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{4}, svc.approved)
	assert.Empty(t, svc.lastNotes)
	assert.Equal(t, "reviewer", svc.lastActor.ID)

	c, rec = reviewContext(http.MethodPost, "/promotions/5/reject", `{"notes":"needs more hours"}`, "5")
	handler.Reject(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{5}, svc.rejected)
	assert.Equal(t, "needs more hours", svc.lastNotes)
}

func TestPromotionHandlerReviewErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePromotionSrv{}
	handler := NewPromotionHandler(svc)

	c, rec := reviewContext(http.MethodPost, "/promotions/x/approve", "", "x")
	handler.Approve(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = reviewContext(http.MethodPost, "/promotions/4/approve", `{"notes":`, "4")
	handler.Approve(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.approved)

	svc.reviewErr = appErrors.Clone(appErrors.ErrInvalidState, "promotion request is not pending")
	c, rec = reviewContext(http.MethodPost, "/promotions/4/approve", "", "4")
	handler.Approve(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPromotionHandlerListBindsQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePromotionSrv{}
	handler := NewPromotionHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/promotions?status=pending&userId=u-1&limit=5", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.PromotionQuery{Status: models.PromotionPending, UserID: "u-1", Limit: 5}, svc.lastQuery)
}
