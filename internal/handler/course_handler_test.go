package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/middleware"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/service"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

type fakeCourseSrv struct {
	lastReq      dto.SubmitCourseRequest
	uploaded     []byte
	uploadName   string
	hadUpload    bool
	download     *service.CertificateDownload
	submitCalled bool
}

func (f *fakeCourseSrv) Submit(_ context.Context, actor models.Actor, req dto.SubmitCourseRequest, upload *dto.CertificateUpload) (*models.ExternalCourse, error) {
	f.submitCalled = true
	f.lastReq = req
	if upload != nil {
		f.hadUpload = true
		f.uploadName = upload.Filename
		f.uploaded, _ = io.ReadAll(upload.Content)
	}
	return &models.ExternalCourse{ID: 7, UserID: actor.ID, CourseName: req.CourseName, Status: models.CoursePending}, nil
}

func (f *fakeCourseSrv) ListMine(context.Context, models.Actor) ([]models.ExternalCourse, error) {
	return []models.ExternalCourse{}, nil
}

func (f *fakeCourseSrv) List(context.Context, models.Actor, dto.CourseQuery) ([]models.ExternalCourse, *models.Pagination, error) {
	return []models.ExternalCourse{}, &models.Pagination{}, nil
}

func (f *fakeCourseSrv) Review(_ context.Context, _ models.Actor, id int64, req dto.ReviewCourseRequest) (*models.ExternalCourse, error) {
	return &models.ExternalCourse{ID: id, Status: models.CourseApproved}, nil
}

func (f *fakeCourseSrv) CertificateLink(context.Context, models.Actor, int64) (*dto.CertificateLinkResponse, error) {
	return &dto.CertificateLinkResponse{URL: "/api/v1/courses/certificates/token"}, nil
}

func (f *fakeCourseSrv) OpenCertificate(_ context.Context, token string) (*service.CertificateDownload, error) {
	if f.download == nil || token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	return f.download, nil
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestCourseHandlerSubmitWithCertificate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeCourseSrv{}
	handler := NewCourseHandler(svc)

	body, contentType := multipartBody(t, map[string]string{
		"courseName": "CPR",
		"provider":   "Red Cross",
		"hours":      "4.5",
	}, "certificate", "cpr.pdf", []byte("%PDF-1.4 test"))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/courses", body)
	c.Request.Header.Set("Content-Type", contentType)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: "frontline-staff"})

	handler.Submit(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, dto.SubmitCourseRequest{CourseName: "CPR", Provider: "Red Cross", Hours: 4.5}, svc.lastReq)
	assert.True(t, svc.hadUpload)
	assert.Equal(t, "cpr.pdf", svc.uploadName)
	assert.Equal(t, []byte("%PDF-1.4 test"), svc.uploaded)
}

func TestCourseHandlerSubmitWithoutCertificate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeCourseSrv{}
	handler := NewCourseHandler(svc)

	body, contentType := multipartBody(t, map[string]string{
		"courseName": "CPR",
		"provider":   "Red Cross",
		"hours":      "2",
	}, "", "", nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/courses", body)
	c.Request.Header.Set("Content-Type", contentType)

	handler.Submit(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, svc.hadUpload)
}

func TestCourseHandlerSubmitRejectsBadHours(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeCourseSrv{}
	handler := NewCourseHandler(svc)

	body, contentType := multipartBody(t, map[string]string{"courseName": "CPR", "hours": "many"}, "", "", nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/courses", body)
	c.Request.Header.Set("Content-Type", contentType)

	handler.Submit(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, svc.submitCalled)
}

func TestCourseHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "cert.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	svc := &fakeCourseSrv{download: &service.CertificateDownload{File: file, Filename: "cert.pdf", MimeType: "application/pdf", SizeBytes: 13}}
	handler := NewCourseHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/certificates/good", nil)
	c.Params = gin.Params{{Key: "token", Value: "good"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="cert.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 body", rec.Body.String())

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/certificates/forged", nil)
	c.Params = gin.Params{{Key: "token", Value: "forged"}}

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCourseHandlerRejectsMalformedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(&fakeCourseSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/abc/certificate", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.CertificateLink(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
