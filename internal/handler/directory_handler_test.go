package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/internal/service"
)

type fakeDirectorySrv struct {
	imported    string
	removed     []int64
	lastProgram string
	lastFormat  string
}

func (f *fakeDirectorySrv) List(context.Context) ([]models.ProgramSite, error) {
	return []models.ProgramSite{{ID: 1, Program: "Health", Site: "Clinic A"}}, nil
}

func (f *fakeDirectorySrv) Programs(context.Context) ([]string, error) {
	return []string{"Health"}, nil
}

func (f *fakeDirectorySrv) SitesByProgram(_ context.Context, program string) ([]string, error) {
	f.lastProgram = program
	return []string{"Clinic A"}, nil
}

func (f *fakeDirectorySrv) Add(_ context.Context, _ models.Actor, req dto.ProgramSiteRequest) (*models.ProgramSite, error) {
	return &models.ProgramSite{ID: 2, Program: req.Program, Site: req.Site}, nil
}

func (f *fakeDirectorySrv) Edit(_ context.Context, _ models.Actor, id int64, req dto.ProgramSiteRequest) (*models.ProgramSite, error) {
	return &models.ProgramSite{ID: id, Program: req.Program, Site: req.Site}, nil
}

func (f *fakeDirectorySrv) Remove(_ context.Context, _ models.Actor, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDirectorySrv) Import(_ context.Context, _ models.Actor, r io.Reader) (*models.ImportResult, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.imported = string(payload)
	return &models.ImportResult{Processed: 1, Imported: 1, Errors: []models.ImportRowError{}}, nil
}

func (f *fakeDirectorySrv) Export(_ context.Context, format string) (*service.ExportFile, error) {
	f.lastFormat = format
	return &service.ExportFile{Filename: "program-sites-20260301.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

func TestDirectoryHandlerImportRawBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeDirectorySrv{}
	handler := NewDirectoryHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/directory/import", strings.NewReader("Program,Site\nHealth,Clinic A\n"))
	c.Request.Header.Set("Content-Type", "text/csv")

	handler.Import(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Program,Site\nHealth,Clinic A\n", svc.imported)
	assert.Contains(t, rec.Body.String(), `"imported":1`)
}

func TestDirectoryHandlerImportMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeDirectorySrv{}
	handler := NewDirectoryHandler(svc)

	body, contentType := multipartBody(t, nil, "file", "sites.csv", []byte("Health,Clinic B\n"))
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/directory/import", body)
	c.Request.Header.Set("Content-Type", contentType)

	handler.Import(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Health,Clinic B\n", svc.imported)
}

func TestDirectoryHandlerImportMultipartWithoutFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeDirectorySrv{}
	handler := NewDirectoryHandler(svc)

	body, contentType := multipartBody(t, map[string]string{"note": "x"}, "", "", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/directory/import", body)
	c.Request.Header.Set("Content-Type", contentType)

	handler.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.imported)
}

func TestDirectoryHandlerSitesAndExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeDirectorySrv{}
	handler := NewDirectoryHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/directory/sites?program=Health", nil)
	handler.Sites(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Health", svc.lastProgram)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/directory/export?format=pdf", nil)
	handler.Export(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pdf", svc.lastFormat)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestDirectoryHandlerDeleteRejectsBadID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeDirectorySrv{}
	handler := NewDirectoryHandler(svc)

	for _, raw := range []string{"abc", "0", "-3"} {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodDelete, "/directory/"+raw, nil)
		c.Params = gin.Params{{Key: "id", Value: raw}}

		handler.Delete(c)

		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
	assert.Empty(t, svc.removed)
}
