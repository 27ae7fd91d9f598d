package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

const sniffLength = 512

type courseStore interface {
	Create(ctx context.Context, course *models.ExternalCourse) error
	FindByID(ctx context.Context, id int64) (*models.ExternalCourse, error)
	List(ctx context.Context, filter models.ExternalCourseFilter) ([]models.ExternalCourse, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.ExternalCourse, error)
	Review(ctx context.Context, id int64, status models.CourseStatus, reviewerID string, notes *string, reviewedAt time.Time) error
	ApprovedSummary(ctx context.Context, userID string) (models.CourseSummary, error)
}

type certificateStorage interface {
	SaveStream(relPath string, r io.Reader) (int64, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type certificateSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, err error)
}

type capabilityChecker interface {
	HasCapability(ctx context.Context, roleID, capability string) (bool, error)
}

// CourseServiceConfig holds upload validation parameters.
type CourseServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// CertificateDownload bundles an opened certificate for streaming.
type CertificateDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
}

// CourseService manages external course submissions and their certificates.
type CourseService struct {
	repo      courseStore
	roles     capabilityChecker
	storage   certificateStorage
	signer    certificateSigner
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CourseServiceConfig
	mimeSet   map[string]struct{}
	now       func() time.Time
}

// CourseServiceParams groups constructor dependencies.
type CourseServiceParams struct {
	Repo    courseStore
	Roles   capabilityChecker
	Storage certificateStorage
	Signer  certificateSigner
	Cache   *CacheService
	Audit   auditRecorder
	Logger  *zap.Logger
	Config  CourseServiceConfig
}

// NewCourseService constructs the service with defaults.
func NewCourseService(params CourseServiceParams) *CourseService {
	cfg := params.Config
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := params.Audit
	if audit == nil {
		audit = noopAuditor{}
	}
	return &CourseService{
		repo:      params.Repo,
		roles:     params.Roles,
		storage:   params.Storage,
		signer:    params.Signer,
		cache:     params.Cache,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		mimeSet:   mimeSet,
		now:       time.Now,
	}
}

// Submit records a pending external course for the actor. The certificate is
// optional; its type is sniffed from the content, not taken from the client.
func (s *CourseService) Submit(ctx context.Context, actor models.Actor, req dto.SubmitCourseRequest, upload *dto.CertificateUpload) (*models.ExternalCourse, error) {
	if err := s.requireCapability(ctx, actor, models.CapSubmitCourses); err != nil {
		return nil, err
	}
	req.CourseName = strings.TrimSpace(req.CourseName)
	req.Provider = strings.TrimSpace(req.Provider)
	req.Instructor = strings.TrimSpace(req.Instructor)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course submission")
	}

	course := &models.ExternalCourse{
		UserID:     actor.ID,
		CourseName: req.CourseName,
		Provider:   req.Provider,
		Instructor: req.Instructor,
		Hours:      req.Hours,
		Status:     models.CoursePending,
	}

	if upload != nil && upload.Content != nil {
		relPath, mimeType, err := s.storeCertificate(actor.ID, upload)
		if err != nil {
			return nil, err
		}
		course.CertificatePath = &relPath
		course.CertificateMIME = &mimeType
	}

	if err := s.repo.Create(ctx, course); err != nil {
		if course.CertificatePath != nil {
			_ = s.storage.Delete(*course.CertificatePath)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course submission")
	}

	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionCourseSubmit, "external_courses", formatID(course.ID), nil,
		map[string]interface{}{"courseName": course.CourseName, "provider": course.Provider, "hours": course.Hours, "certificate": course.HasCertificate()}))
	s.logger.Info("external course submitted",
		zap.Int64("course_id", course.ID),
		zap.String("user_id", actor.ID))
	return course, nil
}

// ListMine returns the actor's own submissions.
func (s *CourseService) ListMine(ctx context.Context, actor models.Actor) ([]models.ExternalCourse, error) {
	courses, err := s.repo.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.ExternalCourse{}
	}
	return courses, nil
}

// List returns submissions across users for reviewers.
func (s *CourseService) List(ctx context.Context, actor models.Actor, query dto.CourseQuery) ([]models.ExternalCourse, *models.Pagination, error) {
	if err := s.requireCapability(ctx, actor, models.CapReviewCourses); err != nil {
		return nil, nil, err
	}
	filter := models.ExternalCourseFilter{
		Status: query.Status,
		UserID: strings.TrimSpace(query.UserID),
		Offset: query.Offset,
		Limit:  query.Limit,
	}
	switch filter.Status {
	case "", models.CoursePending, models.CourseApproved, models.CourseRejected:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown course status")
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, &models.Pagination{Offset: filter.Offset, Limit: filter.Limit, Total: total}, nil
}

// Review approves or rejects a pending submission.
func (s *CourseService) Review(ctx context.Context, actor models.Actor, id int64, req dto.ReviewCourseRequest) (*models.ExternalCourse, error) {
	if err := s.requireCapability(ctx, actor, models.CapReviewCourses); err != nil {
		return nil, err
	}
	req.Decision = strings.ToLower(strings.TrimSpace(req.Decision))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	course, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CoursePending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course submission already reviewed")
	}

	status := models.CourseApproved
	if req.Decision == "reject" {
		status = models.CourseRejected
	}
	var notes *string
	if trimmed := strings.TrimSpace(req.Notes); trimmed != "" {
		notes = &trimmed
	}
	reviewedAt := s.now().UTC()
	if err := s.repo.Review(ctx, id, status, actor.ID, notes, reviewedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "course submission already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review course")
	}

	s.cache.Invalidate(ctx, profileCachePattern(course.UserID), dashboardCachePattern)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionCourseReview, "external_courses", formatID(id),
		map[string]interface{}{"status": course.Status},
		map[string]interface{}{"status": status, "notes": notes}))

	course.Status = status
	course.Notes = notes
	course.ReviewedBy = &actor.ID
	course.ReviewedAt = &reviewedAt
	return course, nil
}

// CertificateLink issues a signed download URL to the owner or a reviewer.
func (s *CourseService) CertificateLink(ctx context.Context, actor models.Actor, id int64) (*dto.CertificateLinkResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	course, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.UserID != actor.ID {
		reviewer, err := s.roles.HasCapability(ctx, actor.Role, models.CapReviewCourses)
		if err != nil {
			return nil, err
		}
		if !reviewer {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course submission not found")
		}
	}
	if !course.HasCertificate() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no certificate uploaded")
	}
	token, expiresAt, err := s.signer.Generate(formatID(course.ID), *course.CertificatePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.CertificateLinkResponse{
		URL:       fmt.Sprintf("%s/courses/certificates/%s", base, token),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenCertificate validates a signed token and opens the certificate file.
func (s *CourseService) OpenCertificate(ctx context.Context, token string) (*CertificateDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	resourceID, relPath, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	id, err := strconv.ParseInt(resourceID, 10, 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	course, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !course.HasCertificate() || *course.CertificatePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read certificate metadata")
	}
	mimeType := "application/octet-stream"
	if course.CertificateMIME != nil {
		mimeType = *course.CertificateMIME
	}
	return &CertificateDownload{
		File:      file,
		Filename:  path.Base(relPath),
		MimeType:  mimeType,
		SizeBytes: info.Size(),
	}, nil
}

// ApprovedSummary returns count and hour total of approved submissions.
func (s *CourseService) ApprovedSummary(ctx context.Context, userID string) (models.CourseSummary, error) {
	summary, err := s.repo.ApprovedSummary(ctx, userID)
	if err != nil {
		return models.CourseSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise courses")
	}
	return summary, nil
}

// storeCertificate sniffs the upload, checks it against the allow list and
// size limit, and writes it under the owner's directory.
func (s *CourseService) storeCertificate(ownerID string, upload *dto.CertificateUpload) (string, string, error) {
	if s.storage == nil {
		return "", "", appErrors.Clone(appErrors.ErrInternal, "certificate storage unavailable")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(upload.Content, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if n == 0 {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	head = head[:n]
	mimeType := http.DetectContentType(head)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "mime type not allowed")
	}

	relPath := path.Join(ownerID, uuid.NewString()+certificateExtension(mimeType))
	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(upload.Content, s.cfg.MaxFileSize+1-int64(n)))
	written, err := s.storage.SaveStream(relPath, body)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist certificate")
	}
	if written > s.cfg.MaxFileSize {
		_ = s.storage.Delete(relPath)
		return "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	return relPath, mimeType, nil
}

func (s *CourseService) requireCapability(ctx context.Context, actor models.Actor, capability string) error {
	ok, err := s.roles.HasCapability(ctx, actor.Role, capability)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "missing capability "+capability)
	}
	return nil
}

func (s *CourseService) find(ctx context.Context, id int64) (*models.ExternalCourse, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course submission")
	}
	return course, nil
}

func certificateExtension(mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}
