package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/storage"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type courseRepoStub struct {
	items  []models.ExternalCourse
	nextID int64
}

func (r *courseRepoStub) Create(ctx context.Context, course *models.ExternalCourse) error {
	r.nextID++
	course.ID = r.nextID
	course.SubmittedAt = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.items = append(r.items, *course)
	return nil
}

func (r *courseRepoStub) FindByID(ctx context.Context, id int64) (*models.ExternalCourse, error) {
	for _, item := range r.items {
		if item.ID == id {
			copy := item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *courseRepoStub) List(ctx context.Context, filter models.ExternalCourseFilter) ([]models.ExternalCourse, int, error) {
	var out []models.ExternalCourse
	for _, item := range r.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && item.UserID != filter.UserID {
			continue
		}
		out = append(out, item)
	}
	return out, len(out), nil
}

func (r *courseRepoStub) ListByUser(ctx context.Context, userID string) ([]models.ExternalCourse, error) {
	out, _, err := r.List(ctx, models.ExternalCourseFilter{UserID: userID})
	return out, err
}

func (r *courseRepoStub) Review(ctx context.Context, id int64, status models.CourseStatus, reviewerID string, notes *string, reviewedAt time.Time) error {
	for i := range r.items {
		if r.items[i].ID == id && r.items[i].Status == models.CoursePending {
			r.items[i].Status = status
			r.items[i].ReviewedBy = &reviewerID
			r.items[i].Notes = notes
			r.items[i].ReviewedAt = &reviewedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *courseRepoStub) ApprovedSummary(ctx context.Context, userID string) (models.CourseSummary, error) {
	var summary models.CourseSummary
	for _, item := range r.items {
		if item.UserID == userID && item.Status == models.CourseApproved {
			summary.Count++
			summary.Hours += item.Hours
		}
	}
	return summary, nil
}

type courseFixture struct {
	svc   *CourseService
	repo  *courseRepoStub
	audit *auditStub
	cache *CacheService
}

func newCourseFixture(t *testing.T, maxSize int64) courseFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := &courseRepoStub{}
	audit := &auditStub{}
	cache := newTestCache()
	svc := NewCourseService(CourseServiceParams{
		Repo:    repo,
		Roles:   NewRoleService(newRoleRepoStub(seededRoles()...), nil, nil, nil),
		Storage: store,
		Signer:  storage.NewSignedURLSigner("test-secret", time.Minute),
		Cache:   cache,
		Audit:   audit,
		Config:  CourseServiceConfig{MaxFileSize: maxSize, AllowedMIMEs: []string{"application/pdf", "image/png"}},
	})
	return courseFixture{svc: svc, repo: repo, audit: audit, cache: cache}
}

var (
	staffActor    = models.Actor{ID: "u-1", Role: "frontline-staff"}
	otherStaff    = models.Actor{ID: "u-2", Role: "frontline-staff"}
	reviewerActor = models.Actor{ID: "admin", Role: models.RoleAdministrator}
)

func validCourse() dto.SubmitCourseRequest {
	return dto.SubmitCourseRequest{CourseName: "CPR Basics", Provider: "Red Cross", Instructor: "J. Doe", Hours: 4}
}

func pdfUpload() *dto.CertificateUpload {
	return &dto.CertificateUpload{Filename: "cert.pdf", Size: int64(len(samplePDF)), Content: bytes.NewReader(samplePDF)}
}

func TestCourseSubmitStoresCertificateAndServesSignedLink(t *testing.T) {
	f := newCourseFixture(t, 0)
	ctx := context.Background()

	course, err := f.svc.Submit(ctx, staffActor, validCourse(), pdfUpload())
	require.NoError(t, err)
	assert.Equal(t, models.CoursePending, course.Status)
	require.True(t, course.HasCertificate())
	assert.True(t, strings.HasPrefix(*course.CertificatePath, "u-1/"))
	assert.True(t, strings.HasSuffix(*course.CertificatePath, ".pdf"))
	assert.Equal(t, "application/pdf", *course.CertificateMIME)
	assert.Equal(t, []string{models.AuditActionCourseSubmit}, f.audit.actions())

	link, err := f.svc.CertificateLink(ctx, staffActor, course.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/api/v1/courses/certificates/"))
	assert.True(t, link.ExpiresAt.After(time.Now()))

	token := strings.TrimPrefix(link.URL, "/api/v1/courses/certificates/")
	download, err := f.svc.OpenCertificate(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, content)
	assert.Equal(t, "application/pdf", download.MimeType)
	assert.Equal(t, int64(len(samplePDF)), download.SizeBytes)

	_, err = f.svc.OpenCertificate(ctx, token+"x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseSubmitWithoutCertificate(t *testing.T) {
	f := newCourseFixture(t, 0)

	course, err := f.svc.Submit(context.Background(), staffActor, validCourse(), nil)
	require.NoError(t, err)
	assert.False(t, course.HasCertificate())

	_, err = f.svc.CertificateLink(context.Background(), staffActor, course.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseSubmitValidation(t *testing.T) {
	f := newCourseFixture(t, 0)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(r *dto.SubmitCourseRequest)
	}{
		{"missing name", func(r *dto.SubmitCourseRequest) { r.CourseName = "  " }},
		{"missing provider", func(r *dto.SubmitCourseRequest) { r.Provider = "" }},
		{"zero hours", func(r *dto.SubmitCourseRequest) { r.Hours = 0 }},
		{"too many hours", func(r *dto.SubmitCourseRequest) { r.Hours = 1000.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCourse()
			tc.mutate(&req)
			_, err := f.svc.Submit(ctx, staffActor, req, nil)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}

	req := validCourse()
	req.Hours = 1000
	_, err := f.svc.Submit(ctx, staffActor, req, nil)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, models.Actor{ID: "x", Role: "unknown"}, validCourse(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseSubmitRejectsBadCertificates(t *testing.T) {
	f := newCourseFixture(t, 64)
	ctx := context.Background()

	text := &dto.CertificateUpload{Filename: "cert.pdf", Size: 11, Content: strings.NewReader("hello world")}
	_, err := f.svc.Submit(ctx, staffActor, validCourse(), text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mime type not allowed")

	declared := &dto.CertificateUpload{Filename: "big.pdf", Size: 65, Content: bytes.NewReader(samplePDF)}
	_, err = f.svc.Submit(ctx, staffActor, validCourse(), declared)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	oversized := append(append([]byte{}, samplePDF...), bytes.Repeat([]byte("0"), 64)...)
	undeclared := &dto.CertificateUpload{Filename: "big.pdf", Content: bytes.NewReader(oversized)}
	_, err = f.svc.Submit(ctx, staffActor, validCourse(), undeclared)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	empty := &dto.CertificateUpload{Filename: "empty.pdf", Content: bytes.NewReader(nil)}
	_, err = f.svc.Submit(ctx, staffActor, validCourse(), empty)
	require.Error(t, err)
	assert.Empty(t, f.repo.items)
}

func TestCourseReviewOnlyFromPending(t *testing.T) {
	f := newCourseFixture(t, 0)
	ctx := context.Background()

	approved, err := f.svc.Submit(ctx, staffActor, validCourse(), nil)
	require.NoError(t, err)
	req := validCourse()
	req.Hours = 2.5
	rejected, err := f.svc.Submit(ctx, staffActor, req, nil)
	require.NoError(t, err)

	f.cache.Set(ctx, profileStatsKey(staffActor.ID), models.LearningStats{ExternalCourses: 9}, time.Minute)

	_, err = f.svc.Review(ctx, staffActor, approved.ID, dto.ReviewCourseRequest{Decision: "approve"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	reviewed, err := f.svc.Review(ctx, reviewerActor, approved.ID, dto.ReviewCourseRequest{Decision: "Approve", Notes: " verified "})
	require.NoError(t, err)
	assert.Equal(t, models.CourseApproved, reviewed.Status)
	require.NotNil(t, reviewed.Notes)
	assert.Equal(t, "verified", *reviewed.Notes)

	var cached models.LearningStats
	assert.False(t, f.cache.Get(ctx, profileStatsKey(staffActor.ID), &cached))

	_, err = f.svc.Review(ctx, reviewerActor, rejected.ID, dto.ReviewCourseRequest{Decision: "reject"})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, reviewerActor, approved.ID, dto.ReviewCourseRequest{Decision: "reject"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Review(ctx, reviewerActor, rejected.ID, dto.ReviewCourseRequest{Decision: "maybe"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	summary, err := f.svc.ApprovedSummary(ctx, staffActor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CourseSummary{Count: 1, Hours: 4}, summary)
}

func TestCourseListingAndLinkAccess(t *testing.T) {
	f := newCourseFixture(t, 0)
	ctx := context.Background()

	course, err := f.svc.Submit(ctx, staffActor, validCourse(), pdfUpload())
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, otherStaff, validCourse(), nil)
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, otherStaff)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "u-2", mine[0].UserID)

	_, _, err = f.svc.List(ctx, staffActor, dto.CourseQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	all, pagination, err := f.svc.List(ctx, reviewerActor, dto.CourseQuery{Status: models.CoursePending, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 100, pagination.Limit)

	_, _, err = f.svc.List(ctx, reviewerActor, dto.CourseQuery{Status: "archived"})
	require.Error(t, err)

	_, err = f.svc.CertificateLink(ctx, otherStaff, course.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CertificateLink(ctx, reviewerActor, course.ID)
	require.NoError(t, err)
}
