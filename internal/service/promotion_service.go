package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/repository"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

type promotionStore interface {
	Create(ctx context.Context, req *models.PromotionRequest) error
	FindByID(ctx context.Context, id int64) (*models.PromotionRequest, error)
	HasPending(ctx context.Context, userID, role string) (bool, error)
	List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRequest, int, error)
	ApproveAndApply(ctx context.Context, params repository.ReviewParams, userID, role string) error
	Reject(ctx context.Context, params repository.ReviewParams) error
}

type promotionUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id, role string) error
}

type roleAuthority interface {
	HasCapability(ctx context.Context, roleID, capability string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	CanAssign(ctx context.Context, actorRole, target string) (bool, error)
}

// PromotionConfig toggles workflow behaviour.
type PromotionConfig struct {
	Enabled         bool
	AllowDuplicates bool
}

// PromotionService runs the pending → approved/rejected workflow and direct
// role assignment.
type PromotionService struct {
	repo      promotionStore
	users     promotionUserStore
	roles     roleAuthority
	cache     *CacheService
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PromotionConfig
	now       func() time.Time
}

// NewPromotionService constructs the service.
func NewPromotionService(repo promotionStore, users promotionUserStore, roles roleAuthority, cache *CacheService, audit auditRecorder, metrics *MetricsService, logger *zap.Logger, cfg PromotionConfig) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = noopAuditor{}
	}
	return &PromotionService{
		repo:      repo,
		users:     users,
		roles:     roles,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Submit queues a promotion request for review.
func (s *PromotionService) Submit(ctx context.Context, actor models.Actor, req dto.SubmitPromotionRequest) (*models.PromotionRequest, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	req.RequestedRole = strings.TrimSpace(req.RequestedRole)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "userId, requestedRole and reason are required")
	}
	if err := s.requireCapability(ctx, actor, models.CapRequestPromotion); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRole(ctx, req.RequestedRole); err != nil {
		return nil, err
	}
	if user.Role == req.RequestedRole {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user already holds the requested role")
	}
	if !s.cfg.AllowDuplicates {
		pending, err := s.repo.HasPending(ctx, user.ID, req.RequestedRole)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
		}
		if pending {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a pending request for this role already exists")
		}
	}

	request := &models.PromotionRequest{
		RequesterID:   actor.ID,
		UserID:        user.ID,
		CurrentRole:   user.Role,
		RequestedRole: req.RequestedRole,
		Reason:        req.Reason,
		Status:        models.PromotionPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create promotion request")
	}

	s.metrics.RecordPromotion(string(models.PromotionPending))
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionPromotionSubmit, "promotion_request", formatID(request.ID), nil, request))
	s.logger.Info("promotion request submitted",
		zap.Int64("request_id", request.ID),
		zap.String("user_id", user.ID),
		zap.String("requested_role", request.RequestedRole))
	return request, nil
}

// DirectPromote assigns a role immediately without creating a request.
func (s *PromotionService) DirectPromote(ctx context.Context, actor models.Actor, req dto.DirectPromotionRequest) (*models.User, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}
	req.Role = strings.TrimSpace(req.Role)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "userId and role are required")
	}
	if err := s.requireCapability(ctx, actor, models.CapPromoteUsers); err != nil {
		return nil, err
	}
	allowed, err := s.roles.CanAssign(ctx, actor.Role, req.Role)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role is outside the actor's hierarchy")
	}

	user, err := s.findUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	if err := s.users.UpdateRole(ctx, user.ID, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply role")
	}
	user.Role = req.Role

	s.afterRoleChange(ctx, user.ID)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionPromotionDirect, "user", user.ID,
		map[string]string{"role": previous},
		map[string]string{"role": req.Role}))
	s.logger.Info("user promoted directly", zap.String("user_id", user.ID), zap.String("role", req.Role), zap.String("actor", actor.ID))
	return user, nil
}

// Approve applies the requested role and closes the request in one
// transaction. Requests that are no longer pending are left untouched.
func (s *PromotionService) Approve(ctx context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}
	if err := s.requireCapability(ctx, actor, models.CapReviewPromotions); err != nil {
		return nil, err
	}
	request, err := s.findPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRole(ctx, request.RequestedRole); err != nil {
		return nil, err
	}
	if _, err := s.findUser(ctx, request.UserID); err != nil {
		return nil, err
	}

	params := s.reviewParams(actor, id, notes)
	if err := s.repo.ApproveAndApply(ctx, params, request.UserID, request.RequestedRole); err != nil {
		return nil, s.mapReviewError(err, "failed to approve promotion request")
	}

	before := *request
	request.Status = models.PromotionApproved
	request.AdminNotes = params.Notes
	request.ReviewedBy = &params.ReviewerID
	request.UpdatedAt = params.ReviewedAt

	s.metrics.RecordPromotion(string(models.PromotionApproved))
	s.afterRoleChange(ctx, request.UserID)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionPromotionApprove, "promotion_request", formatID(id), before, request))
	s.logger.Info("promotion request approved", zap.Int64("request_id", id), zap.String("user_id", request.UserID), zap.String("role", request.RequestedRole))
	return request, nil
}

// Reject closes a pending request without touching the user.
func (s *PromotionService) Reject(ctx context.Context, actor models.Actor, id int64, notes string) (*models.PromotionRequest, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}
	if err := s.requireCapability(ctx, actor, models.CapReviewPromotions); err != nil {
		return nil, err
	}
	request, err := s.findPending(ctx, id)
	if err != nil {
		return nil, err
	}

	params := s.reviewParams(actor, id, notes)
	if err := s.repo.Reject(ctx, params); err != nil {
		return nil, s.mapReviewError(err, "failed to reject promotion request")
	}

	before := *request
	request.Status = models.PromotionRejected
	request.AdminNotes = params.Notes
	request.ReviewedBy = &params.ReviewerID
	request.UpdatedAt = params.ReviewedAt

	s.metrics.RecordPromotion(string(models.PromotionRejected))
	s.cache.Invalidate(ctx, profileCachePattern(request.UserID))
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionPromotionReject, "promotion_request", formatID(id), before, request))
	s.logger.Info("promotion request rejected", zap.Int64("request_id", id), zap.String("user_id", request.UserID))
	return request, nil
}

// List returns requests newest first. Actors who cannot review only see the
// requests they submitted.
func (s *PromotionService) List(ctx context.Context, actor models.Actor, query dto.PromotionQuery) ([]models.PromotionRequest, *models.Pagination, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	filter := models.PromotionFilter{
		Status: query.Status,
		UserID: query.UserID,
		Offset: query.Offset,
		Limit:  query.Limit,
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	reviewer, err := s.roles.HasCapability(ctx, actor.Role, models.CapReviewPromotions)
	if err != nil {
		return nil, nil, err
	}
	if !reviewer {
		filter.RequesterID = actor.ID
	}

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list promotion requests")
	}
	return requests, &models.Pagination{Offset: filter.Offset, Limit: filter.Limit, Total: total}, nil
}

// Get returns a request. Non reviewers may only read their own submissions.
func (s *PromotionService) Get(ctx context.Context, actor models.Actor, id int64) (*models.PromotionRequest, error) {
	request, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequesterID == actor.ID || request.UserID == actor.ID {
		return request, nil
	}
	reviewer, err := s.roles.HasCapability(ctx, actor.Role, models.CapReviewPromotions)
	if err != nil {
		return nil, err
	}
	if !reviewer {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "promotion request not found")
	}
	return request, nil
}

func (s *PromotionService) ensureEnabled() error {
	if !s.cfg.Enabled {
		return appErrors.Clone(appErrors.ErrFeatureDisabled, "promotion workflow is disabled")
	}
	return nil
}

func (s *PromotionService) requireCapability(ctx context.Context, actor models.Actor, capability string) error {
	ok, err := s.roles.HasCapability(ctx, actor.Role, capability)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "missing capability "+capability)
	}
	return nil
}

func (s *PromotionService) ensureRole(ctx context.Context, roleID string) error {
	exists, err := s.roles.Exists(ctx, roleID)
	if err != nil {
		return err
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "requested role not found")
	}
	return nil
}

func (s *PromotionService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
	}
	return user, nil
}

func (s *PromotionService) find(ctx context.Context, id int64) (*models.PromotionRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "promotion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion request")
	}
	return request, nil
}

func (s *PromotionService) findPending(ctx context.Context, id int64) (*models.PromotionRequest, error) {
	request, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.PromotionPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "promotion request is already "+string(request.Status))
	}
	return request, nil
}

func (s *PromotionService) reviewParams(actor models.Actor, id int64, notes string) repository.ReviewParams {
	params := repository.ReviewParams{
		ID:         id,
		ReviewerID: actor.ID,
		ReviewedAt: s.now().UTC(),
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		params.Notes = &trimmed
	}
	return params
}

// mapReviewError turns a lost pending race into an invalid-state error.
func (s *PromotionService) mapReviewError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrInvalidState, "")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *PromotionService) afterRoleChange(ctx context.Context, userID string) {
	s.cache.Invalidate(ctx, profileCachePattern(userID), dashboardCachePattern)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
