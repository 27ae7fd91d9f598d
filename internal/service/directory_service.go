package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/training-roster-api/internal/dto"
	"github.com/noah-isme/training-roster-api/internal/models"
	appErrors "github.com/noah-isme/training-roster-api/pkg/errors"
	"github.com/noah-isme/training-roster-api/pkg/export"
)

type programSiteStore interface {
	List(ctx context.Context) ([]models.ProgramSite, error)
	FindByID(ctx context.Context, id int64) (*models.ProgramSite, error)
	Programs(ctx context.Context) ([]string, error)
	SitesByProgram(ctx context.Context, program string) ([]string, error)
	Create(ctx context.Context, item *models.ProgramSite) error
	Update(ctx context.Context, item *models.ProgramSite) error
	Delete(ctx context.Context, id int64) error
	BulkCreate(ctx context.Context, items []models.ProgramSite) error
}

// DirectoryService manages program/site mappings.
type DirectoryService struct {
	repo           programSiteStore
	audit          auditRecorder
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	maxImportBytes int64
	now            func() time.Time
}

// NewDirectoryService constructs the service. maxImportBytes bounds CSV uploads.
func NewDirectoryService(repo programSiteStore, audit auditRecorder, metrics *MetricsService, logger *zap.Logger, maxImportBytes int64) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = noopAuditor{}
	}
	if maxImportBytes <= 0 {
		maxImportBytes = 2 * 1024 * 1024
	}
	return &DirectoryService{
		repo:           repo,
		audit:          audit,
		metrics:        metrics,
		validator:      validator.New(),
		logger:         logger,
		maxImportBytes: maxImportBytes,
		now:            time.Now,
	}
}

// List returns every mapping in insertion order.
func (s *DirectoryService) List(ctx context.Context) ([]models.ProgramSite, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list program sites")
	}
	return items, nil
}

// Programs returns the distinct program names.
func (s *DirectoryService) Programs(ctx context.Context) ([]string, error) {
	programs, err := s.repo.Programs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	return programs, nil
}

// SitesByProgram returns the sites mapped to program.
func (s *DirectoryService) SitesByProgram(ctx context.Context, program string) ([]string, error) {
	program = strings.TrimSpace(program)
	if program == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program is required")
	}
	sites, err := s.repo.SitesByProgram(ctx, program)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sites")
	}
	return sites, nil
}

// Add stores a new mapping.
func (s *DirectoryService) Add(ctx context.Context, actor models.Actor, req dto.ProgramSiteRequest) (*models.ProgramSite, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	item := &models.ProgramSite{Program: req.Program, Site: req.Site}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add program site")
	}
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionDirectoryAdd, "program_site", formatID(item.ID), nil, item))
	return item, nil
}

// Edit renames the program and site of a mapping.
func (s *DirectoryService) Edit(ctx context.Context, actor models.Actor, id int64, req dto.ProgramSiteRequest) (*models.ProgramSite, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *existing
	existing.Program = req.Program
	existing.Site = req.Site
	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program site not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program site")
	}
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionDirectoryEdit, "program_site", formatID(id), before, existing))
	return existing, nil
}

// Remove deletes exactly one mapping.
func (s *DirectoryService) Remove(ctx context.Context, actor models.Actor, id int64) error {
	existing, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program site not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program site")
	}
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionDirectoryRemove, "program_site", formatID(id), existing, nil))
	return nil
}

// Import reads "Program, Site" rows. A header row is optional. Malformed rows
// and rows missing either column are skipped and reported; the rest are stored
// together.
func (s *DirectoryService) Import(ctx context.Context, actor models.Actor, r io.Reader) (*models.ImportResult, error) {
	payload, err := io.ReadAll(io.LimitReader(r, s.maxImportBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if int64(len(payload)) > s.maxImportBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import exceeds %d bytes", s.maxImportBytes))
	}
	records, err := export.ReadCSV(bytes.NewReader(payload))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file is not valid CSV")
	}
	if len(records) > 0 && isDirectoryHeader(records[0].Fields) {
		records = records[1:]
	}

	result := &models.ImportResult{Errors: []models.ImportRowError{}}
	valid := make([]models.ProgramSite, 0, len(records))
	for _, rec := range records {
		result.Processed++
		program, site := field(rec.Fields, 0), field(rec.Fields, 1)
		switch {
		case rec.Err != nil:
			result.Errors = append(result.Errors, models.ImportRowError{Line: rec.Line, Reason: "malformed row"})
		case program == "" && site == "":
			result.Errors = append(result.Errors, models.ImportRowError{Line: rec.Line, Reason: "missing program and site"})
		case program == "":
			result.Errors = append(result.Errors, models.ImportRowError{Line: rec.Line, Reason: "missing program"})
		case site == "":
			result.Errors = append(result.Errors, models.ImportRowError{Line: rec.Line, Reason: "missing site"})
		default:
			valid = append(valid, models.ProgramSite{Program: program, Site: site})
			continue
		}
		result.Skipped++
	}

	if err := s.repo.BulkCreate(ctx, valid); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import program sites")
	}
	result.Imported = len(valid)

	s.metrics.RecordImport(result.Imported, result.Skipped)
	s.audit.Record(ctx, newAuditEntry(actor, models.AuditActionDirectoryImport, "program_site", "", nil, map[string]int{
		"processed": result.Processed,
		"imported":  result.Imported,
		"skipped":   result.Skipped,
	}))
	s.logger.Info("program sites imported",
		zap.Int("processed", result.Processed),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Export renders the directory in insertion order.
func (s *DirectoryService) Export(ctx context.Context, format string) (*ExportFile, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{
		Title: "Program/Site Directory",
		Columns: []export.Column{
			{Key: "program", Label: "Program"},
			{Key: "site", Label: "Site"},
		},
		Rows: make([]map[string]string, 0, len(items)),
	}
	for _, item := range items {
		data.Rows = append(data.Rows, map[string]string{"program": item.Program, "site": item.Site})
	}
	return renderExport(format, "program-sites", data, s.now())
}

func (s *DirectoryService) validate(req *dto.ProgramSiteRequest) error {
	req.Program = strings.TrimSpace(req.Program)
	req.Site = strings.TrimSpace(req.Site)
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "program and site are required")
	}
	return nil
}

func (s *DirectoryService) find(ctx context.Context, id int64) (*models.ProgramSite, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program site not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program site")
	}
	return item, nil
}

func isDirectoryHeader(fields []string) bool {
	return strings.EqualFold(field(fields, 0), "program") && strings.EqualFold(field(fields, 1), "site")
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}
