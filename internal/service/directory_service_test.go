package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
)

type programSiteRepoStub struct {
	items     []models.ProgramSite
	nextID    int64
	bulkCalls int
}

func (r *programSiteRepoStub) List(ctx context.Context) ([]models.ProgramSite, error) {
	return append([]models.ProgramSite(nil), r.items...), nil
}

func (r *programSiteRepoStub) FindByID(ctx context.Context, id int64) (*models.ProgramSite, error) {
	for _, item := range r.items {
		if item.ID == id {
			copy := item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *programSiteRepoStub) Programs(ctx context.Context) ([]string, error) {
	set := map[string]struct{}{}
	for _, item := range r.items {
		set[item.Program] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *programSiteRepoStub) SitesByProgram(ctx context.Context, program string) ([]string, error) {
	var out []string
	for _, item := range r.items {
		if item.Program == program {
			out = append(out, item.Site)
		}
	}
	return out, nil
}

func (r *programSiteRepoStub) Create(ctx context.Context, item *models.ProgramSite) error {
	r.nextID++
	item.ID = r.nextID
	r.items = append(r.items, *item)
	return nil
}

func (r *programSiteRepoStub) Update(ctx context.Context, item *models.ProgramSite) error {
	for i := range r.items {
		if r.items[i].ID == item.ID {
			r.items[i] = *item
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *programSiteRepoStub) Delete(ctx context.Context, id int64) error {
	for i := range r.items {
		if r.items[i].ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *programSiteRepoStub) BulkCreate(ctx context.Context, items []models.ProgramSite) error {
	r.bulkCalls++
	for i := range items {
		if err := r.Create(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func TestDirectoryImportThenExportScenario(t *testing.T) {
	repo := &programSiteRepoStub{}
	svc := NewDirectoryService(repo, nil, nil, nil, 0)
	ctx := context.Background()

	csv := "Program, Site\n\"Health\",\"Clinic A\"\n\"Health\",\"\"\n"
	result, err := svc.Import(ctx, models.Actor{ID: "admin"}, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, result.Processed, result.Imported+result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Equal(t, "missing site", result.Errors[0].Reason)
	assert.Equal(t, 1, repo.bulkCalls)

	file, err := svc.Export(ctx, "csv")
	require.NoError(t, err)
	assert.Equal(t, "Program,Site\nHealth,Clinic A\n", string(file.Data))
	assert.True(t, strings.HasPrefix(file.Filename, "program-sites-"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
}

func TestDirectoryImportWithoutHeader(t *testing.T) {
	repo := &programSiteRepoStub{}
	svc := NewDirectoryService(repo, nil, nil, nil, 0)

	result, err := svc.Import(context.Background(), models.Actor{}, strings.NewReader("Health,Clinic A\nSafety,Depot\n,Orphan\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, "missing program", result.Errors[0].Reason)
	assert.Len(t, repo.items, 2)
}

func TestDirectoryImportRejectsOversizedPayload(t *testing.T) {
	repo := &programSiteRepoStub{}
	svc := NewDirectoryService(repo, nil, nil, nil, 16)

	_, err := svc.Import(context.Background(), models.Actor{}, strings.NewReader("Health,Clinic A\nHealth,Clinic B\n"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.bulkCalls)
}

func TestDirectoryImportRejectsMalformedCSV(t *testing.T) {
	svc := NewDirectoryService(&programSiteRepoStub{}, nil, nil, nil, 0)
	_, err := svc.Import(context.Background(), models.Actor{}, strings.NewReader("\"Health,Clinic A\n"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDirectoryImportSkipsMalformedRows(t *testing.T) {
	repo := &programSiteRepoStub{}
	svc := NewDirectoryService(repo, nil, nil, nil, 0)

	input := "Program,Site\nHealth,Clinic A\nHe\"alth,Clinic B\nHealth,Clinic C\n"
	result, err := svc.Import(context.Background(), models.Actor{}, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, result.Processed, result.Imported+result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ImportRowError{Line: 3, Reason: "malformed row"}, result.Errors[0])

	require.Len(t, repo.items, 2)
	assert.Equal(t, "Clinic A", repo.items[0].Site)
	assert.Equal(t, "Clinic C", repo.items[1].Site)
}

func TestDirectoryRemoveDeletesExactlyOneRow(t *testing.T) {
	repo := &programSiteRepoStub{}
	audit := &auditStub{}
	svc := NewDirectoryService(repo, audit, nil, nil, 0)
	ctx := context.Background()

	for _, site := range []string{"Clinic A", "Clinic B", "Clinic C"} {
		_, err := svc.Add(ctx, models.Actor{}, dto.ProgramSiteRequest{Program: "Health", Site: site})
		require.NoError(t, err)
	}

	require.NoError(t, svc.Remove(ctx, models.Actor{}, 2))
	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Clinic A", items[0].Site)
	assert.Equal(t, "Clinic C", items[1].Site)

	err = svc.Remove(ctx, models.Actor{}, 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Contains(t, audit.actions(), models.AuditActionDirectoryRemove)
}

func TestDirectoryAddEditValidation(t *testing.T) {
	repo := &programSiteRepoStub{}
	svc := NewDirectoryService(repo, nil, nil, nil, 0)
	ctx := context.Background()

	_, err := svc.Add(ctx, models.Actor{}, dto.ProgramSiteRequest{Program: "  ", Site: "Clinic"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	item, err := svc.Add(ctx, models.Actor{}, dto.ProgramSiteRequest{Program: " Health ", Site: "Clinic A"})
	require.NoError(t, err)
	assert.Equal(t, "Health", item.Program)

	edited, err := svc.Edit(ctx, models.Actor{}, item.ID, dto.ProgramSiteRequest{Program: "Health", Site: "Clinic Z"})
	require.NoError(t, err)
	assert.Equal(t, "Clinic Z", edited.Site)

	_, err = svc.Edit(ctx, models.Actor{}, 99, dto.ProgramSiteRequest{Program: "Health", Site: "X"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	sites, err := svc.SitesByProgram(ctx, "Health")
	require.NoError(t, err)
	assert.Equal(t, []string{"Clinic Z"}, sites)

	_, err = svc.SitesByProgram(ctx, "")
	require.Error(t, err)
}

func TestDirectoryExportRejectsUnknownFormat(t *testing.T) {
	svc := NewDirectoryService(&programSiteRepoStub{}, nil, nil, nil, 0)
	_, err := svc.Export(context.Background(), "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
